package capture

import (
	"runtime"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/voxrec/internal/errors"
	"github.com/tphakala/voxrec/internal/logger"
)

// MalgoBackend captures from sound cards through miniaudio.
type MalgoBackend struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
	log logger.Logger
}

// getBackendForPlatform returns the appropriate malgo backend for the current platform
func getBackendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.New(nil).
			Component(componentName).
			Category(errors.CategoryAudioSource).
			Context("error", "unsupported operating system").
			Context("os", runtime.GOOS).
			Build()
	}
}

// NewMalgoBackend initializes the platform audio context.
func NewMalgoBackend() (*MalgoBackend, error) {
	backend, err := getBackendForPlatform()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}

	return &MalgoBackend{ctx: ctx, log: GetLogger()}, nil
}

// Devices returns the capture devices, skipping the null device.
func (b *MalgoBackend) Devices() ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos, err := b.captureDevicesLocked()
	if err != nil {
		return nil, err
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		if isNullDevice(infos[i].Name()) {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        decodeDeviceID(infos[i].ID.String()),
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

func (b *MalgoBackend) captureDevicesLocked() ([]malgo.DeviceInfo, error) {
	if b.ctx == nil {
		return nil, errors.Newf("audio context closed").
			Component(componentName).
			Category(errors.CategoryState).
			Build()
	}

	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}
	return infos, nil
}

// Open initializes a float32 capture stream. The device may deliver a
// different format; Stream.Format reports what was negotiated.
func (b *MalgoBackend) Open(cfg StreamConfig, onData DataFunc) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = cfg.Channels
	deviceConfig.SampleRate = cfg.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	if cfg.DeviceID != "" {
		infos, err := b.captureDevicesLocked()
		if err != nil {
			return nil, err
		}
		found := false
		for i := range infos {
			if decodeDeviceID(infos[i].ID.String()) == cfg.DeviceID {
				deviceConfig.Capture.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			return nil, errors.Newf("capture device %q disappeared", cfg.DeviceID).
				Component(componentName).
				Category(errors.CategoryNotFound).
				Build()
		}
	} else if b.ctx == nil {
		return nil, errors.Newf("audio context closed").
			Component(componentName).
			Category(errors.CategoryState).
			Build()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, framecount uint32) {
			onData(pInputSamples, framecount)
		},
		Stop: func() {
			b.log.Debug("capture device stopped", logger.String("device_id", cfg.DeviceID))
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_device").
			Context("device_id", cfg.DeviceID).
			Context("sample_rate", cfg.SampleRate).
			Context("channels", cfg.Channels).
			Build()
	}

	return &malgoStream{device: device}, nil
}

// Close releases the audio context.
func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

type malgoStream struct {
	mu     sync.Mutex
	device *malgo.Device
}

func (s *malgoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return errors.Newf("stream closed").Component(componentName).Category(errors.CategoryState).Build()
	}
	if err := s.device.Start(); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryAudioSource).
			Context("operation", "start_device").
			Build()
	}
	return nil
}

func (s *malgoStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return nil
	}
	err := s.device.Stop()
	s.device.Uninit()
	s.device = nil
	return err
}

func (s *malgoStream) Format() SampleFormat {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return FormatUnknown
	}
	switch s.device.CaptureFormat() {
	case malgo.FormatU8:
		return FormatU8
	case malgo.FormatS16:
		return FormatS16
	case malgo.FormatS24:
		return FormatS24
	case malgo.FormatS32:
		return FormatS32
	case malgo.FormatF32:
		return FormatF32
	default:
		return FormatUnknown
	}
}

func (s *malgoStream) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return 0
	}
	return int(s.device.CaptureChannels())
}
