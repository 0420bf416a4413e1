// Package recorder holds the voice-activated recording core: the loudness
// meter, the recording configuration store, the WAV writer and the detection
// state machine that ties them together.
package recorder

import "math"

// Buffer is one block of interleaved float samples in [-1, 1] as delivered
// by the capture device.
type Buffer struct {
	Data     []float32
	Channels int
}

// Frames returns the number of sample frames in the buffer.
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return len(b.Data)
	}
	return len(b.Data) / b.Channels
}

// MeasureLevel returns the loudness of channel 0 as the mean absolute sample
// amplitude scaled to a percentage. An empty buffer measures 0.
func MeasureLevel(buf Buffer) float64 {
	stride := max(buf.Channels, 1)
	if stride == 1 {
		return MeasureSamples(buf.Data)
	}

	var sum float64
	var n int
	for i := 0; i < len(buf.Data); i += stride {
		sum += math.Abs(float64(buf.Data[i]))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) * 100
}

// MeasureSamples is MeasureLevel for a single-channel sample slice.
func MeasureSamples(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples)) * 100
}
