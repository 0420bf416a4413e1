// Package capture owns the audio input stream and feeds captured buffers to
// the detector.
package capture

// SampleFormat is the on-the-wire sample encoding a device delivers.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatU8
	FormatS16
	FormatS24
	FormatS32
	FormatF32
)

// BytesPerSample returns the size of one sample, or 0 for unknown formats.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32, FormatF32:
		return 4
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "U8"
	case FormatS16:
		return "S16"
	case FormatS24:
		return "S24"
	case FormatS32:
		return "S32"
	case FormatF32:
		return "F32"
	default:
		return "Unknown"
	}
}

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	ID        string `json:"id"`
	IsDefault bool   `json:"isDefault"`
}

// StreamConfig selects the device and format of a capture stream. An empty
// DeviceID opens the system default device.
type StreamConfig struct {
	DeviceID   string
	SampleRate uint32
	Channels   uint32
}

// DataFunc receives raw interleaved samples from the device.
type DataFunc func(data []byte, frames uint32)

// Stream is an opened capture stream.
type Stream interface {
	Start() error
	// Close halts the stream and releases the device. No DataFunc call is
	// in progress or made after Close returns.
	Close() error
	Format() SampleFormat
	Channels() int
}

// Backend enumerates devices and opens capture streams.
type Backend interface {
	Devices() ([]DeviceInfo, error)
	Open(cfg StreamConfig, onData DataFunc) (Stream, error)
	Close() error
}
