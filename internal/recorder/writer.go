package recorder

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM   = 1
	outputDirPerms = 0o755
)

// SupportedBitDepths lists the PCM sample sizes OpenWAV accepts.
var SupportedBitDepths = []int{8, 16, 24, 32}

// Writer appends buffers to one session's output file.
type Writer interface {
	Append(buf Buffer) error
	Close() error
}

// WriterFactory opens the output for a session using its frozen config.
type WriterFactory func(cfg RecordingConfig) (Writer, error)

// WAVWriterFactory opens a WAVWriter at cfg.OutputPath.
func WAVWriterFactory(cfg RecordingConfig) (Writer, error) {
	return OpenWAV(cfg.OutputPath, int(math.Round(cfg.SampleRate)), cfg.BitDepth, cfg.Channels)
}

// WAVWriter writes linear PCM WAV files. The RIFF and data chunk sizes are
// patched on Close. Append and Close are safe to call from different
// goroutines; appends after Close are rejected.
type WAVWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	enc      *wav.Encoder
	format   *audio.Format
	bitDepth int
	scale    float64
	offset   int
	ints     []int
	frames   uint64
	closed   bool
}

// OpenWAV creates (or truncates) the file at path and writes the WAV header.
// Missing parent directories are created.
func OpenWAV(path string, sampleRate, bitDepth, channels int) (*WAVWriter, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, createFailed(path, fmt.Errorf("invalid format %d Hz, %d channels", sampleRate, channels))
	}
	if !slices.Contains(SupportedBitDepths, bitDepth) {
		return nil, createFailed(path, fmt.Errorf("unsupported bit depth %d", bitDepth))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, outputDirPerms); err != nil {
			return nil, createFailed(path, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, createFailed(path, err)
	}

	w := &WAVWriter{
		path:     path,
		file:     file,
		enc:      wav.NewEncoder(file, sampleRate, bitDepth, channels, wavFormatPCM),
		format:   &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		bitDepth: bitDepth,
		scale:    math.Pow(2, float64(bitDepth-1)) - 1,
	}
	// 8-bit WAV samples are unsigned.
	if bitDepth == 8 {
		w.offset = 128
	}

	// An empty write makes the encoder emit the RIFF header and open the data chunk.
	if err := w.enc.Write(&audio.IntBuffer{Format: w.format, SourceBitDepth: bitDepth}); err != nil {
		file.Close()
		return nil, createFailed(path, err)
	}

	return w, nil
}

// Append converts buf to integer PCM and writes it after all earlier buffers.
func (w *WAVWriter) Append(buf Buffer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if buf.Channels != w.format.NumChannels {
		return fmt.Errorf("%w: buffer has %d channels, file has %d", ErrWriteFailed, buf.Channels, w.format.NumChannels)
	}
	if len(buf.Data) == 0 {
		return nil
	}

	w.ints = slices.Grow(w.ints[:0], len(buf.Data))[:len(buf.Data)]
	for i, s := range buf.Data {
		w.ints[i] = w.quantize(s)
	}

	if err := w.enc.Write(&audio.IntBuffer{Data: w.ints, Format: w.format, SourceBitDepth: w.bitDepth}); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, w.path, err)
	}
	w.frames += uint64(buf.Frames())
	return nil
}

// quantize maps a float sample in [-1, 1] to the integer range of the bit depth.
func (w *WAVWriter) quantize(s float32) int {
	v := float64(s)
	if math.IsNaN(v) {
		v = 0
	}
	v = max(-1, min(1, v))
	return int(math.Round(v*w.scale)) + w.offset
}

// Frames returns the number of frames written so far.
func (w *WAVWriter) Frames() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Path returns the output file path.
func (w *WAVWriter) Path() string {
	return w.path
}

// Close finalizes the header and closes the file. Only the first call does
// any work.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("finalize %s: %w", w.path, encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("close %s: %w", w.path, fileErr)
	}
	return nil
}

func createFailed(path string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrCreateFailed, path, cause)
}
