// Package engine is the real-time playback core: it pulls decoded buffers
// from an audio.Source, feeds them to a backend stream from the device's
// own callback, tracks the audible play head, and reopens the device when
// the stream format drifts in exact-format mode.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tremolo.click/internal/audio"
	"tremolo.click/internal/backend"
)

// Player errors.
var (
	ErrAlreadyAttached = errors.New("player is already attached to a source")
	ErrNotAttached     = errors.New("player is not attached to a source")
)

const defaultSinkBufferFrames = 8192

// PlayerConfig is read once at Attach; changing it afterwards has no
// effect until the next Attach.
type PlayerConfig struct {
	// DeviceID selects the output device; empty means the default device.
	DeviceID string
	// TargetFormat is the format to open the device in. Zero value means
	// 44100 Hz stereo signed 16-bit.
	TargetFormat audio.Format
	// UseExactFormat keeps buffers byte-exact and reopens the device to
	// follow stream format changes instead of converting upstream.
	UseExactFormat bool
	// SinkBufferFrames is the requested source-side queue capacity. Kept
	// small because queued audio cannot be clawed back.
	SinkBufferFrames int
	// Gain is the initial gain multiplier; zero means unity.
	Gain float64
	// EventCapacity bounds the event queue; zero means the default.
	EventCapacity int
}

// Player owns one playback session: an open device stream wired to a
// bound source. It is reusable across Attach/Detach cycles.
type Player struct {
	cfg     PlayerConfig
	backend backend.Backend
	events  *EventQueue

	gainMu sync.Mutex
	gain   float64

	// mu is the play-head mutex: it guards everything the device callback
	// and the watchdog share. cond wakes the watchdog.
	mu   sync.Mutex
	cond *sync.Cond

	source       audio.Source
	stream       backend.Stream
	deviceFormat audio.Format
	cursor       bufferCursor
	pos          positionTracker

	silenceFramesLeft int
	reopenRequested   bool
	abortRequested    bool

	watchdogRunning bool
	watchdogDone    chan struct{}

	attached bool
}

// NewPlayer creates a detached player on the given backend.
func NewPlayer(b backend.Backend, cfg PlayerConfig) *Player {
	if !cfg.TargetFormat.Valid() {
		cfg.TargetFormat = audio.Format{
			SampleRate:   44100,
			Layout:       audio.LayoutStereo,
			SampleFormat: audio.SampleFormatS16,
		}
	}
	if cfg.SinkBufferFrames <= 0 {
		cfg.SinkBufferFrames = defaultSinkBufferFrames
	}
	if cfg.Gain == 0 {
		cfg.Gain = 1.0
	}

	p := &Player{
		cfg:     cfg,
		backend: b,
		events:  NewEventQueue(cfg.EventCapacity),
		gain:    cfg.Gain,
	}
	p.cond = sync.NewCond(&p.mu)
	p.pos.clear()

	slog.Debug("player created",
		"device_id", cfg.DeviceID,
		"target_format", cfg.TargetFormat.String(),
		"exact_format", cfg.UseExactFormat,
		"sink_buffer_frames", cfg.SinkBufferFrames)
	return p
}

// Attach opens the device and binds the source, starting playback if the
// source transport is playing. On failure it unwinds through Detach and
// leaves the player reusable.
func (p *Player) Attach(source audio.Source) error {
	if p.attached {
		return ErrAlreadyAttached
	}
	p.mu.Lock()
	p.source = source
	p.mu.Unlock()

	stream, err := p.backend.OpenStream(p.cfg.DeviceID, p.cfg.TargetFormat, backend.StreamCallbacks{
		Write:     p.streamWrite,
		Underflow: p.streamUnderflow,
		Error:     p.streamError,
	})
	if err != nil {
		p.Detach()
		slog.Error("failed to open output stream",
			"device_id", p.cfg.DeviceID,
			"format", p.cfg.TargetFormat.String(),
			"error", err)
		return fmt.Errorf("failed to open output stream: %w", err)
	}

	p.mu.Lock()
	p.stream = stream
	p.deviceFormat = stream.Format()
	p.mu.Unlock()

	if p.cfg.UseExactFormat {
		p.mu.Lock()
		p.watchdogRunning = true
		p.watchdogDone = make(chan struct{})
		p.mu.Unlock()
		go p.watchdogLoop()
	}

	binding := &audio.SinkBinding{
		Format:          stream.Format(),
		BufferFrames:    p.cfg.SinkBufferFrames,
		DisableResample: p.cfg.UseExactFormat,
		Pause:           p.transportPause,
		Play:            p.transportPlay,
		Flush:           p.sinkFlush,
		Purge:           p.sinkPurge,
	}
	if err := source.BindSink(binding); err != nil {
		p.Detach()
		slog.Error("failed to bind source", "error", err)
		return fmt.Errorf("failed to bind source: %w", err)
	}

	if err := source.SetGain(p.Gain()); err != nil {
		slog.Warn("source rejected initial gain", "error", err)
	}

	p.mu.Lock()
	p.pos.clear()
	p.mu.Unlock()

	p.events.Reset()

	if !source.Playing() {
		if err := stream.SetPaused(true); err != nil {
			slog.Warn("failed to pause stream at attach", "error", err)
		}
	}

	// Start may run the write callback before returning, so no locks here.
	if err := stream.Start(); err != nil {
		p.Detach()
		slog.Error("failed to start output stream", "error", err)
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	p.attached = true
	slog.Info("player attached",
		"device_format", stream.Format().String(),
		"exact_format", p.cfg.UseExactFormat)
	return nil
}

// Detach stops the watchdog, aborts the event queue, unbinds the source,
// and closes the stream. Idempotent; also serves as the unwind path for a
// failed Attach.
func (p *Player) Detach() error {
	// Unbind before touching the play-head mutex: a callback parked in a
	// blocking pull holds that mutex, and the unbind is what wakes it.
	if source := p.source; source != nil {
		source.UnbindSink()
	}

	p.mu.Lock()
	p.abortRequested = true
	p.cond.Signal()
	done := p.watchdogDone
	p.mu.Unlock()

	if done != nil {
		<-done
		p.mu.Lock()
		p.watchdogRunning = false
		p.watchdogDone = nil
		p.mu.Unlock()
	}

	p.events.Flush()
	p.events.Abort()

	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()
	if stream != nil {
		if err := stream.Close(); err != nil {
			slog.Warn("failed to close stream at detach", "error", err)
		}
	}

	// No callback is in flight once the stream has closed, so the source
	// reference can drop.
	p.mu.Lock()
	p.source = nil
	p.cursor.release()
	p.pos.clear()
	p.reopenRequested = false
	p.silenceFramesLeft = 0
	p.abortRequested = false
	p.deviceFormat = audio.Format{}
	p.mu.Unlock()

	p.attached = false
	slog.Debug("player detached")
	return nil
}

// Position returns the item currently coming out of the device and the
// offset into it in seconds. A nil item with -1 seconds means nothing is
// audible.
func (p *Player) Position() (*audio.Item, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos.item, p.pos.seconds
}

// Event removes and returns the oldest pending event, blocking if asked.
func (p *Player) Event(block bool) (Event, error) {
	return p.events.Get(block)
}

// PeekEvent returns the oldest pending event without consuming it.
func (p *Player) PeekEvent(block bool) (Event, error) {
	return p.events.Peek(block)
}

// SetGain updates the gain multiplier, forwarding it to the bound source.
func (p *Player) SetGain(gain float64) error {
	p.gainMu.Lock()
	p.gain = gain
	p.gainMu.Unlock()

	p.mu.Lock()
	source := p.source
	p.mu.Unlock()
	if source == nil {
		return nil
	}
	return source.SetGain(gain)
}

// Gain returns the current gain multiplier.
func (p *Player) Gain() float64 {
	p.gainMu.Lock()
	defer p.gainMu.Unlock()
	return p.gain
}

// DeviceFormat returns the format the device is currently open in. In
// exact-format mode this changes across reopens.
func (p *Player) DeviceFormat() audio.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deviceFormat
}

// transportPause is the source's pause hook. Called without the play-head
// mutex: pausing a real device waits out an in-flight callback, and the
// callback holds that mutex.
func (p *Player) transportPause() {
	p.mu.Lock()
	stream := p.stream
	p.mu.Unlock()
	if stream == nil {
		return
	}
	if err := stream.SetPaused(true); err != nil {
		slog.Warn("failed to pause stream", "error", err)
	}
}

// transportPlay is the source's resume hook.
func (p *Player) transportPlay() {
	p.mu.Lock()
	stream := p.stream
	p.mu.Unlock()
	if stream == nil {
		return
	}
	if err := stream.SetPaused(false); err != nil {
		slog.Warn("failed to resume stream", "error", err)
	}
}

// sinkFlush is the source's flush hook: all queued audio is gone, so the
// adopted buffer and the play head no longer describe anything real.
func (p *Player) sinkFlush() {
	p.mu.Lock()
	p.cursor.release()
	p.pos.clear()
	p.mu.Unlock()
	slog.Debug("play head flushed")
}

// sinkPurge is the source's purge hook for one discarded item. Only
// reacts when that item is the one audible right now.
func (p *Player) sinkPurge(item *audio.Item) {
	p.mu.Lock()
	if p.pos.item == item {
		p.pos.clear()
		p.cursor.release()
		p.mu.Unlock()
		p.events.Emit(EventNowPlaying)
		return
	}
	p.mu.Unlock()
}
