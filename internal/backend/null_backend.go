package backend

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tremolo.click/internal/audio"
)

const nullPeriodDuration = 100 * time.Millisecond

// NullBackend is a pure-Go backend with no audio hardware behind it. It
// accepts every valid format, including planar layouts, which makes it
// the fallback for formats the real backends reject and the device of
// choice for deterministic tests: a manually clocked null stream only
// invokes the write callback when Pump is called.
type NullBackend struct {
	mu          sync.Mutex
	closed      bool
	selfClocked bool
	openErr     error
	last        *NullStream
}

// NewNullBackend creates a null backend. With selfClocked set, opened
// streams pump themselves from a ticker goroutine at a real-time rate;
// otherwise the caller drives them with Pump.
func NewNullBackend(selfClocked bool) *NullBackend {
	slog.Debug("creating null backend", "self_clocked", selfClocked)
	return &NullBackend{selfClocked: selfClocked}
}

// Name implements Backend.
func (b *NullBackend) Name() string { return "null" }

// Devices implements Backend.
func (b *NullBackend) Devices() ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}
	return []DeviceInfo{{ID: "null", Name: "Null output", IsDefault: true}}, nil
}

// FailNextOpen makes the next OpenStream call fail with err.
func (b *NullBackend) FailNextOpen(err error) {
	b.mu.Lock()
	b.openErr = err
	b.mu.Unlock()
}

// LastStream returns the most recently opened stream, for tests that need
// to drive the device clock by hand.
func (b *NullBackend) LastStream() *NullStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// OpenStream implements Backend.
func (b *NullBackend) OpenStream(deviceID string, format audio.Format, cb StreamCallbacks) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBackendClosed
	}
	if err := b.openErr; err != nil {
		b.openErr = nil
		return nil, err
	}
	if deviceID != "" && deviceID != "null" {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	s := &NullStream{
		format:       format,
		cb:           cb,
		selfClocked:  b.selfClocked,
		periodFrames: format.SampleRate * int(nullPeriodDuration/time.Millisecond) / 1000,
		bufDur:       nullPeriodDuration.Seconds(),
	}
	b.last = s

	slog.Debug("null stream opened", "format", format.String(), "period_frames", s.periodFrames)
	return s, nil
}

// Close implements Backend.
func (b *NullBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	slog.Debug("null backend closed")
	return nil
}

// NullStream discards written audio. Optionally it captures the
// interleaved byte stream for inspection.
type NullStream struct {
	format       audio.Format
	cb           StreamCallbacks
	selfClocked  bool
	periodFrames int
	bufDur       float64

	mu      sync.Mutex
	started bool
	paused  bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}

	capture  bool
	captured []byte

	// transaction state, valid only while serving one Pump
	planes    [][]byte
	outFrames int
	offset    int
	serving   bool
}

// Capture starts recording every committed transaction's bytes.
func (s *NullStream) Capture() {
	s.mu.Lock()
	s.capture = true
	s.mu.Unlock()
}

// Captured returns a copy of the bytes written so far.
func (s *NullStream) Captured() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.captured))
	copy(out, s.captured)
	return out
}

// Pump runs one write callback for the given frame count, as the device
// clock would. It is the manual drive for tests; self-clocked streams
// call it from their ticker goroutine.
func (s *NullStream) Pump(frames int) {
	s.mu.Lock()
	if s.closed || !s.started || s.paused {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	channels := s.format.Layout.Channels()
	planes := make([][]byte, channels)
	if s.format.SampleFormat.IsPlanar() {
		for ch := range planes {
			planes[ch] = make([]byte, frames*s.format.SampleFormat.BytesPerSample())
		}
	} else {
		shared := make([]byte, frames*s.format.BytesPerFrame())
		for ch := range planes {
			planes[ch] = shared
		}
	}

	s.planes = planes
	s.outFrames = frames
	s.offset = 0
	s.serving = true
	if s.cb.Write != nil {
		s.cb.Write(frames)
	}
	s.serving = false
	s.planes = nil

	s.mu.Lock()
	if s.capture {
		if s.format.SampleFormat.IsPlanar() {
			for _, plane := range planes {
				s.captured = append(s.captured, plane...)
			}
		} else {
			s.captured = append(s.captured, planes[0]...)
		}
	}
	s.mu.Unlock()
}

// TriggerUnderflow simulates a hardware-level underrun report.
func (s *NullStream) TriggerUnderflow() {
	if s.cb.Underflow != nil {
		s.cb.Underflow()
	}
}

// TriggerError simulates a fatal stream error report.
func (s *NullStream) TriggerError(err error) {
	if s.cb.Error != nil {
		s.cb.Error(err)
	}
}

// Started reports whether the stream clock is running.
func (s *NullStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.paused && !s.closed
}

// Paused reports whether the clock is held by SetPaused.
func (s *NullStream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Closed reports whether the stream has been torn down.
func (s *NullStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Start implements Stream.
func (s *NullStream) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	launch := s.selfClocked && s.stop == nil
	if launch {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
	}
	s.mu.Unlock()

	if launch {
		go s.clockLoop()
	}
	return nil
}

func (s *NullStream) clockLoop() {
	defer close(s.done)
	ticker := time.NewTicker(nullPeriodDuration)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Pump(s.periodFrames)
		}
	}
}

// SetPaused implements Stream. Pausing and starting are orthogonal: a
// started stream resumes where it left off when unpaused.
func (s *NullStream) SetPaused(paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.paused = paused
	return nil
}

// Close implements Stream.
func (s *NullStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.started = false
	stop := s.stop
	done := s.done
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	slog.Debug("null stream closed")
	return nil
}

// Format implements Stream.
func (s *NullStream) Format() audio.Format { return s.format }

// BufferDuration implements Stream.
func (s *NullStream) BufferDuration() float64 { return s.bufDur }

// BeginWrite implements Stream.
func (s *NullStream) BeginWrite(frames int) ([]ChannelArea, int, error) {
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

	channels := s.format.Layout.Channels()
	areas := make([]ChannelArea, channels)
	if s.format.SampleFormat.IsPlanar() {
		bytesPerSample := s.format.SampleFormat.BytesPerSample()
		for ch := 0; ch < channels; ch++ {
			areas[ch] = ChannelArea{
				Buf:  s.planes[ch][s.offset*bytesPerSample:],
				Step: bytesPerSample,
			}
		}
	} else {
		bytesPerSample := s.format.SampleFormat.BytesPerSample()
		bytesPerFrame := s.format.BytesPerFrame()
		base := s.offset * bytesPerFrame
		for ch := 0; ch < channels; ch++ {
			areas[ch] = ChannelArea{
				Buf:  s.planes[0][base+ch*bytesPerSample:],
				Step: bytesPerFrame,
			}
		}
	}
	return areas, frames, nil
}

// EndWrite implements Stream.
func (s *NullStream) EndWrite(frames int) error {
	if !s.serving {
		return ErrNotServing
	}
	s.offset += frames
	return nil
}
