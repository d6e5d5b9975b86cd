package backend

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"tremolo.click/internal/audio"
)

const (
	malgoPeriodMillis = 50
	malgoPeriods      = 2
)

// MalgoBackend drives real output devices through miniaudio.
type MalgoBackend struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	closed bool
}

// NewMalgoBackend initializes a miniaudio context.
func NewMalgoBackend() (*MalgoBackend, error) {
	slog.Debug("initializing malgo backend")

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo internal", "message", message)
	})
	if err != nil {
		slog.Error("failed to initialize malgo context", "error", err)
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	slog.Info("malgo backend initialized")
	return &MalgoBackend{ctx: ctx}, nil
}

// Name implements Backend.
func (b *MalgoBackend) Name() string { return "malgo" }

// Devices implements Backend.
func (b *MalgoBackend) Devices() ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}

	infos, err := b.ctx.Devices(malgo.Playback)
	if err != nil {
		slog.Error("failed to enumerate playback devices", "error", err)
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, DeviceInfo{
			ID:        info.ID.String(),
			Name:      info.Name(),
			IsDefault: info.IsDefault == 1,
		})
	}

	slog.Debug("enumerated playback devices", "count", len(devices))
	return devices, nil
}

// OpenStream implements Backend.
func (b *MalgoBackend) OpenStream(deviceID string, format audio.Format, cb StreamCallbacks) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}

	malgoFormat, err := toMalgoFormat(format.SampleFormat)
	if err != nil {
		return nil, err
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgoFormat
	deviceConfig.Playback.Channels = uint32(format.Layout.Channels())
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = malgoPeriodMillis
	deviceConfig.Periods = malgoPeriods
	deviceConfig.Alsa.NoMMap = 1

	if deviceID != "" {
		infos, err := b.ctx.Devices(malgo.Playback)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
		}
		found := false
		for i := range infos {
			if infos[i].ID.String() == deviceID {
				deviceConfig.Playback.DeviceID = infos[i].ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			slog.Error("requested device not found", "device_id", deviceID)
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
	}

	s := &malgoStream{
		format: format,
		cb:     cb,
		bufDur: float64(malgoPeriodMillis*malgoPeriods) / 1000.0,
	}

	onSamples := func(pOutputSample, _ []byte, frameCount uint32) {
		s.serve(pOutputSample, int(frameCount))
	}
	onStop := func() {
		s.deviceStopped()
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
		Stop: onStop,
	})
	if err != nil {
		slog.Error("failed to initialize playback device",
			"device_id", deviceID,
			"format", format.String(),
			"error", err)
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	s.device = device

	slog.Info("malgo stream opened",
		"device_id", deviceID,
		"format", format.String(),
		"buffer_duration", s.bufDur)

	return s, nil
}

// Close implements Backend.
func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	// malgo requires both Uninit and Free.
	if err := b.ctx.Uninit(); err != nil {
		slog.Error("failed to uninitialize malgo context", "error", err)
		return fmt.Errorf("failed to uninitialize malgo context: %w", err)
	}
	b.ctx.Free()

	slog.Debug("malgo backend closed")
	return nil
}

// malgoStream adapts miniaudio's single interleaved data callback onto the
// transaction protocol. Serving state is only touched from the data
// callback, so it needs no lock of its own.
type malgoStream struct {
	device *malgo.Device
	format audio.Format
	cb     StreamCallbacks
	bufDur float64

	mu       sync.Mutex
	started  bool
	closing  bool

	// transaction state, valid only inside serve
	out       []byte
	outFrames int
	offset    int
	serving   bool
}

func (s *malgoStream) serve(out []byte, frames int) {
	// Silence by default; the engine overwrites what it fills.
	for i := range out {
		out[i] = 0
	}

	s.out = out
	s.outFrames = frames
	s.offset = 0
	s.serving = true
	if s.cb.Write != nil {
		s.cb.Write(frames)
	}
	s.serving = false
	s.out = nil
}

func (s *malgoStream) deviceStopped() {
	s.mu.Lock()
	closing := s.closing || !s.started
	s.mu.Unlock()
	if closing {
		return
	}
	slog.Warn("malgo device stopped outside of stream control")
	if s.cb.Error != nil {
		s.cb.Error(ErrDeviceStopped)
	}
}

// Start implements Stream.
func (s *malgoStream) Start() error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

// SetPaused implements Stream.
func (s *malgoStream) SetPaused(paused bool) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.started = !paused
	s.mu.Unlock()

	if paused {
		if err := s.device.Stop(); err != nil {
			return fmt.Errorf("failed to pause playback device: %w", err)
		}
		return nil
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to resume playback device: %w", err)
	}
	return nil
}

// Close implements Stream.
func (s *malgoStream) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	// Stop before Uninit so no data callback is in flight afterwards.
	if err := s.device.Stop(); err != nil {
		slog.Debug("device stop during close", "error", err)
	}
	s.device.Uninit()

	slog.Debug("malgo stream closed")
	return nil
}

// Format implements Stream.
func (s *malgoStream) Format() audio.Format { return s.format }

// BufferDuration implements Stream.
func (s *malgoStream) BufferDuration() float64 { return s.bufDur }

// BeginWrite implements Stream.
func (s *malgoStream) BeginWrite(frames int) ([]ChannelArea, int, error) {
	if !s.serving {
		return nil, 0, ErrNotServing
	}
	avail := s.outFrames - s.offset
	if frames > avail {
		frames = avail
	}
	if frames <= 0 {
		return nil, 0, nil
	}

	bytesPerSample := s.format.SampleFormat.BytesPerSample()
	bytesPerFrame := s.format.BytesPerFrame()
	channels := s.format.Layout.Channels()

	areas := make([]ChannelArea, channels)
	base := s.offset * bytesPerFrame
	for ch := 0; ch < channels; ch++ {
		areas[ch] = ChannelArea{
			Buf:  s.out[base+ch*bytesPerSample:],
			Step: bytesPerFrame,
		}
	}
	return areas, frames, nil
}

// EndWrite implements Stream.
func (s *malgoStream) EndWrite(frames int) error {
	if !s.serving {
		return ErrNotServing
	}
	s.offset += frames
	return nil
}

func toMalgoFormat(f audio.SampleFormat) (malgo.FormatType, error) {
	switch f {
	case audio.SampleFormatU8:
		return malgo.FormatU8, nil
	case audio.SampleFormatS16:
		return malgo.FormatS16, nil
	case audio.SampleFormatS32:
		return malgo.FormatS32, nil
	case audio.SampleFormatF32:
		return malgo.FormatF32, nil
	default:
		// Planar layouts and f64 have no miniaudio representation.
		return malgo.FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}
