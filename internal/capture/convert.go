package capture

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	s16Scale = 1 << 15
	s24Scale = 1 << 23
	s32Scale = 1 << 31
)

// Decode converts raw little-endian samples to float32 in [-1, 1], reusing
// dst when it is large enough. Trailing bytes that do not form a whole
// sample are ignored.
func Decode(data []byte, format SampleFormat, dst []float32) ([]float32, error) {
	bytesPerSample := format.BytesPerSample()
	if bytesPerSample == 0 {
		return nil, fmt.Errorf("unsupported sample format: %v", format)
	}

	n := len(data) / bytesPerSample
	if cap(dst) >= n {
		dst = dst[:n]
	} else {
		dst = make([]float32, n)
	}

	for i := range n {
		src := data[i*bytesPerSample:]

		switch format {
		case FormatU8:
			dst[i] = float32(int(src[0])-128) / 128

		case FormatS16:
			dst[i] = float32(int16(binary.LittleEndian.Uint16(src))) / s16Scale

		case FormatS24:
			val := int32(src[0]) | int32(src[1])<<8 | int32(src[2])<<16
			// Sign extend if the most significant bit is set
			if val&0x800000 != 0 {
				val |= -0x1000000
			}
			dst[i] = float32(val) / s24Scale

		case FormatS32:
			dst[i] = float32(float64(int32(binary.LittleEndian.Uint32(src))) / s32Scale)

		case FormatF32:
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src))
		}
	}

	return dst, nil
}
