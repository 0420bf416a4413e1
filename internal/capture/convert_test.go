package capture

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	f32 := make([]byte, 8)
	binary.LittleEndian.PutUint32(f32[0:], math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(f32[4:], math.Float32bits(-1))

	s32 := make([]byte, 8)
	binary.LittleEndian.PutUint32(s32[0:], uint32(1<<30))
	binary.LittleEndian.PutUint32(s32[4:], 0x80000000)

	tests := []struct {
		name   string
		data   []byte
		format SampleFormat
		want   []float32
	}{
		{"U8 midpoint and extremes", []byte{128, 0, 192}, FormatU8, []float32{0, -1, 0.5}},
		{"S16", []byte{0x00, 0x40, 0x00, 0x80}, FormatS16, []float32{0.5, -1}},
		{"S24 sign extension", []byte{0x00, 0x00, 0x40, 0x00, 0x00, 0xC0}, FormatS24, []float32{0.5, -0.5}},
		{"S32", s32, FormatS32, []float32{0.5, -1}},
		{"F32 passthrough", f32, FormatF32, []float32{0.25, -1}},
		{"partial trailing sample dropped", []byte{0x00, 0x40, 0x7F}, FormatS16, []float32{0.5}},
		{"empty", nil, FormatS24, []float32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Decode(tt.data, tt.format, nil)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-6, "sample %d", i)
			}
		})
	}
}

func TestDecodeReusesDestination(t *testing.T) {
	t.Parallel()

	dst := make([]float32, 0, 16)
	got, err := Decode([]byte{0x00, 0x40}, FormatS16, dst)
	require.NoError(t, err)
	assert.Equal(t, 16, cap(got))
	assert.Len(t, got, 1)
}

func TestDecodeUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte{1, 2}, FormatUnknown, nil)
	require.Error(t, err)
}
