package backend

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"tremolo.click/internal/audio"
)

const otoBufferDuration = 100 * time.Millisecond

// OtoBackend plays through ebitengine/oto. It has no device enumeration
// and a process-wide context whose format is fixed on first open, so a
// reopen in a different format fails with ErrUnsupportedFormat; the
// engine surfaces that as a device-reopen-error event and keeps going.
type OtoBackend struct {
	mu        sync.Mutex
	ctx       *oto.Context
	ctxFormat audio.Format
	closed    bool
}

// NewOtoBackend creates an oto backend. The underlying context is created
// lazily on the first OpenStream, because oto fixes the format at context
// creation time.
func NewOtoBackend() *OtoBackend {
	slog.Debug("creating oto backend")
	return &OtoBackend{}
}

// Name implements Backend.
func (b *OtoBackend) Name() string { return "oto" }

// Devices implements Backend. oto only ever targets the system default.
func (b *OtoBackend) Devices() ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}
	return []DeviceInfo{{ID: "default", Name: "System default output (oto)", IsDefault: true}}, nil
}

// OpenStream implements Backend.
func (b *OtoBackend) OpenStream(deviceID string, format audio.Format, cb StreamCallbacks) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}
	if deviceID != "" && deviceID != "default" {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	otoFormat, err := toOtoFormat(format.SampleFormat)
	if err != nil {
		return nil, err
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if b.ctx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Layout.Channels(),
			Format:       otoFormat,
			BufferSize:   otoBufferDuration,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			slog.Error("failed to create oto context", "format", format.String(), "error", err)
			return nil, fmt.Errorf("failed to create oto context: %w", err)
		}
		<-ready
		b.ctx = ctx
		b.ctxFormat = format
		slog.Info("oto context created", "format", format.String())
	} else if !b.ctxFormat.Equal(format) {
		slog.Warn("oto context format is fixed for the process",
			"context_format", b.ctxFormat.String(),
			"requested_format", format.String())
		return nil, fmt.Errorf("%w: oto context is locked to %s", ErrUnsupportedFormat, b.ctxFormat)
	}

	s := &otoStream{
		format: format,
		cb:     cb,
		bufDur: otoBufferDuration.Seconds(),
	}
	s.player = b.ctx.NewPlayer(s)

	slog.Info("oto stream opened", "format", format.String())
	return s, nil
}

// Close implements Backend.
func (b *OtoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.ctx != nil {
		// oto contexts cannot be destroyed; suspending stops the mixer.
		if err := b.ctx.Suspend(); err != nil {
			slog.Debug("oto context suspend", "error", err)
		}
	}
	slog.Debug("oto backend closed")
	return nil
}

// otoStream adapts oto's pull-style io.Reader onto the transaction
// protocol. Read runs on oto's playback goroutine.
type otoStream struct {
	player *oto.Player
	format audio.Format
	cb     StreamCallbacks
	bufDur float64

	mu      sync.Mutex
	closed  bool

	// transaction state, valid only inside Read
	out       []byte
	outFrames int
	offset    int
	serving   bool
}

// Read implements io.Reader for the oto player.
func (s *otoStream) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}

	frames := len(p) / s.format.BytesPerFrame()
	if frames == 0 {
		return len(p), nil
	}

	s.out = p
	s.outFrames = frames
	s.offset = 0
	s.serving = true
	if s.cb.Write != nil {
		s.cb.Write(frames)
	}
	s.serving = false
	s.out = nil

	return frames * s.format.BytesPerFrame(), nil
}

// Start implements Stream.
func (s *otoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.player.Play()
	return nil
}

// SetPaused implements Stream.
func (s *otoStream) SetPaused(paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if paused {
		s.player.Pause()
	} else {
		s.player.Play()
	}
	return nil
}

// Close implements Stream.
func (s *otoStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("failed to close oto player: %w", err)
	}
	slog.Debug("oto stream closed")
	return nil
}

// Format implements Stream.
func (s *otoStream) Format() audio.Format { return s.format }

// BufferDuration implements Stream.
func (s *otoStream) BufferDuration() float64 { return s.bufDur }

// BeginWrite implements Stream.
func (s *otoStream) BeginWrite(frames int) ([]ChannelArea, int, error) {
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
func (s *otoStream) EndWrite(frames int) error {
	if !s.serving {
		return ErrNotServing
	}
	s.offset += frames
	return nil
}

func toOtoFormat(f audio.SampleFormat) (oto.Format, error) {
	switch f {
	case audio.SampleFormatU8:
		return oto.FormatUnsignedInt8, nil
	case audio.SampleFormatS16:
		return oto.FormatSignedInt16LE, nil
	case audio.SampleFormatF32:
		return oto.FormatFloat32LE, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}
