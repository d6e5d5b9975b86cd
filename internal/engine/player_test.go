package engine

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"tremolo.click/internal/audio"
	"tremolo.click/internal/backend"
)

func testFormat() audio.Format {
	return audio.Format{
		SampleRate:   44100,
		Layout:       audio.LayoutStereo,
		SampleFormat: audio.SampleFormatS16,
	}
}

// makeBuffer builds an interleaved buffer filled with a recognizable
// nonzero pattern so silence is distinguishable in captures.
func makeBuffer(format audio.Format, item *audio.Item, frames int, pos float64) *audio.Buffer {
	data := make([]byte, frames*format.BytesPerFrame())
	for i := range data {
		data[i] = byte(i%250 + 1)
	}
	return audio.NewBuffer(format, frames, [][]byte{data}, item, pos, nil)
}

func newTestPlayer(t *testing.T, cfg PlayerConfig) (*Player, *backend.NullBackend) {
	t.Helper()
	b := backend.NewNullBackend(false)
	if cfg.TargetFormat.SampleRate == 0 {
		cfg.TargetFormat = testFormat()
	}
	p := NewPlayer(b, cfg)
	t.Cleanup(func() { p.Detach() })
	return p, b
}

func TestAttachDetachLifecycle(t *testing.T) {
	p, b := newTestPlayer(t, PlayerConfig{})
	source := audio.NewQueueSource(0)

	if err := p.Attach(source); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	stream := b.LastStream()
	if stream == nil {
		t.Fatal("no stream opened by Attach")
	}
	if !stream.Started() {
		t.Error("stream not started after Attach with a playing source")
	}

	if item, seconds := p.Position(); item != nil || seconds != -1 {
		t.Errorf("Position after Attach = (%v, %v), want (nil, -1)", item, seconds)
	}

	if err := p.Attach(source); !errors.Is(err, ErrAlreadyAttached) {
		t.Errorf("second Attach = %v, want ErrAlreadyAttached", err)
	}

	if err := p.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if !stream.Closed() {
		t.Error("stream not closed after Detach")
	}
	if _, err := p.Event(false); !errors.Is(err, ErrQueueAborted) {
		t.Errorf("Event after Detach = %v, want ErrQueueAborted", err)
	}

	// Detach is idempotent and the player stays reusable.
	if err := p.Detach(); err != nil {
		t.Fatalf("second Detach failed: %v", err)
	}
	source2 := audio.NewQueueSource(0)
	if err := p.Attach(source2); err != nil {
		t.Fatalf("reattach failed: %v", err)
	}
	if _, err := p.Event(false); !errors.Is(err, ErrNoEvent) {
		t.Errorf("Event after reattach = %v, want ErrNoEvent", err)
	}
}

func TestAttachFailureUnwinds(t *testing.T) {
	p, b := newTestPlayer(t, PlayerConfig{})
	openErr := errors.New("device busy")
	b.FailNextOpen(openErr)

	source := audio.NewQueueSource(0)
	if err := p.Attach(source); !errors.Is(err, openErr) {
		t.Fatalf("Attach = %v, want wrapped %v", err, openErr)
	}

	// The failed attach unwound; the same player attaches cleanly.
	if err := p.Attach(audio.NewQueueSource(0)); err != nil {
		t.Fatalf("Attach after failure: %v", err)
	}
}

func TestDetachUnblocksStalledPull(t *testing.T) {
	format := testFormat()
	p, b := newTestPlayer(t, PlayerConfig{TargetFormat: format})

	// Playing source, empty queue, input still open: the callback parks in
	// the blocking pull with the play-head mutex held.
	source := audio.NewQueueSource(0)
	if err := p.Attach(source); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	stream := b.LastStream()

	pumped := make(chan struct{})
	go func() {
		stream.Pump(64)
		close(pumped)
	}()
	time.Sleep(20 * time.Millisecond)

	detached := make(chan struct{})
	go func() {
		p.Detach()
		close(detached)
	}()

	select {
	case <-detached:
	case <-time.After(2 * time.Second):
		t.Fatal("Detach did not return while the callback was parked in a pull")
	}
	select {
	case <-pumped:
	case <-time.After(2 * time.Second):
		t.Fatal("write callback never returned after Detach")
	}
	if !stream.Closed() {
		t.Error("stream left open after Detach")
	}
}

func TestSetGainAfterDetach(t *testing.T) {
	p, _ := newTestPlayer(t, PlayerConfig{})
	source := audio.NewQueueSource(0)
	if err := p.Attach(source); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if err := p.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}

	if err := p.SetGain(0.5); err != nil {
		t.Fatalf("SetGain on a detached player: %v", err)
	}
	if p.Gain() != 0.5 {
		t.Errorf("Gain = %v, want 0.5", p.Gain())
	}
}

func TestPlaybackAdvancesPosition(t *testing.T) {
	format := testFormat()
	p, b := newTestPlayer(t, PlayerConfig{TargetFormat: format})

	item := &audio.Item{Path: "a.wav"}
	source := audio.NewQueueSource(0)
	buf := makeBuffer(format, item, 1024, 0)
	if err := source.Push(buf); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	source.CloseInput()

	if err := p.Attach(source); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	stream := b.LastStream()
	stream.Capture()

	stream.Pump(512)
	gotItem, seconds := p.Position()
	if gotItem != item {
		t.Fatalf("Position item = %v, want %v", gotItem, item)
	}
	wantSeconds := 512.0 / 44100.0
	if math.Abs(seconds-wantSeconds) > 1e-9 {
		t.Errorf("Position seconds = %v, want %v", seconds, wantSeconds)
	}

	if e, err := p.Event(false); err != nil || e != EventNowPlaying {
		t.Fatalf("first event = %v, %v, want EventNowPlaying", e, err)
	}

	stream.Pump(512)
	if _, seconds := p.Position(); math.Abs(seconds-1024.0/44100.0) > 1e-9 {
		t.Errorf("Position after full buffer = %v, want %v", seconds, 1024.0/44100.0)
	}

	// Next pump hits end of stream: play head clears, one more event.
	stream.Pump(256)
	if gotItem, seconds := p.Position(); gotItem != nil || seconds != -1 {
		t.Errorf("Position at end of stream = (%v, %v), want (nil, -1)", gotItem, seconds)
	}
	if e, err := p.Event(false); err != nil || e != EventNowPlaying {
		t.Fatalf("end-of-stream event = %v, %v, want EventNowPlaying", e, err)
	}
	if _, err := p.Event(false); !errors.Is(err, ErrNoEvent) {
		t.Errorf("extra event after end of stream: want ErrNoEvent, got %v", err)
	}

	// Pumping past the end keeps producing silence, not more events.
	stream.Pump(256)
	if _, err := p.Event(false); !errors.Is(err, ErrNoEvent) {
		t.Errorf("event after pumping past end: want ErrNoEvent, got %v", err)
	}

	captured := stream.Captured()
	bpf := format.BytesPerFrame()
	if len(captured) != (512+512+256+256)*bpf {
		t.Fatalf("captured %d bytes, want %d", len(captured), (512+512+256+256)*bpf)
	}
	if !bytes.Equal(captured[:1024*bpf], buf.Data[0]) {
		t.Error("captured audio does not match pushed buffer")
	}
	for i, v := range captured[1024*bpf:] {
		if v != 0 {
			t.Fatalf("expected silence after stream end, got %d at offset %d", v, i)
		}
	}
}

func TestNowPlayingPerItemTransition(t *testing.T) {
	format := testFormat()
	p, b := newTestPlayer(t, PlayerConfig{TargetFormat: format})

	itemA := &audio.Item{Path: "a.wav"}
	itemB := &audio.Item{Path: "b.wav"}
	source := audio.NewQueueSource(0)
	source.Push(makeBuffer(format, itemA, 100, 0))
	source.Push(makeBuffer(format, itemA, 100, 100.0/44100.0))
	source.Push(makeBuffer(format, itemB, 100, 0))
	source.CloseInput()

	if err := p.Attach(source); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	stream := b.LastStream()

	// Consuming two buffers of the same item announces that item once.
	stream.Pump(200)
	if p.events.Len() != 1 {
		t.Fatalf("events after two same-item buffers = %d, want 1", p.events.Len())
	}

	stream.Pump(100)
	if p.events.Len() != 2 {
		t.Fatalf("events after item change = %d, want 2", p.events.Len())
	}
	gotItem, _ := p.Position()
	if gotItem != itemB {
		t.Errorf("Position item = %v, want %v", gotItem, itemB)
	}
}

func TestPauseHoldsDeviceClock(t *testing.T) {
	format := testFormat()
	p, b := newTestPlayer(t, PlayerConfig{TargetFormat: format})

	source := audio.NewQueueSource(0)
	source.Pause()
	if err := p.Attach(source); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	stream := b.LastStream()

	if stream.Started() {
		t.Error("stream running after Attach with a paused source")
	}

	source.Play()
	if !stream.Started() {
		t.Error("stream not running after Play")
	}

	source.Pause()
	if stream.Started() {
		t.Error("stream still running after Pause")
	}
}

func TestPurgeResetsPlayHead(t *testing.T) {
	format := testFormat()
	p, b := newTestPlayer(t, PlayerConfig{TargetFormat: format})

	item := &audio.Item{Path: "a.wav"}
	other := &audio.Item{Path: "b.wav"}
	source := audio.NewQueueSource(0)
	source.Push(makeBuffer(format, item, 1024, 0))
	source.CloseInput()

	if err := p.Attach(source); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	stream := b.LastStream()
	stream.Pump(256)

	// Purging an item that is not audible changes nothing.
	eventsBefore := p.events.Len()
	source.PurgeItem(other)
	if gotItem, _ := p.Position(); gotItem != item {
		t.Fatalf("play head reset by unrelated purge")
	}
	if p.events.Len() != eventsBefore {
		t.Errorf("unrelated purge emitted an event")
	}

	source.PurgeItem(item)
	if gotItem, seconds := p.Position(); gotItem != nil || seconds != -1 {
		t.Errorf("Position after purge = (%v, %v), want (nil, -1)", gotItem, seconds)
	}
	if p.events.Len() != eventsBefore+1 {
		t.Errorf("purge of audible item emitted %d events, want 1", p.events.Len()-eventsBefore)
	}
}

func TestFlushClearsPlayHeadSilently(t *testing.T) {
	format := testFormat()
	p, b := newTestPlayer(t, PlayerConfig{TargetFormat: format})

	item := &audio.Item{Path: "a.wav"}
	source := audio.NewQueueSource(0)
	source.Push(makeBuffer(format, item, 1024, 0))
	source.CloseInput()

	if err := p.Attach(source); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	stream := b.LastStream()
	stream.Pump(256)
	eventsBefore := p.events.Len()

	source.Flush()
	if gotItem, seconds := p.Position(); gotItem != nil || seconds != -1 {
		t.Errorf("Position after flush = (%v, %v), want (nil, -1)", gotItem, seconds)
	}
	if p.events.Len() != eventsBefore {
		t.Errorf("flush emitted an event")
	}
}

func TestUnderflowEmitsEvent(t *testing.T) {
	p, b := newTestPlayer(t, PlayerConfig{})
	source := audio.NewQueueSource(0)
	if err := p.Attach(source); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	b.LastStream().TriggerUnderflow()
	if e, err := p.Event(false); err != nil || e != EventBufferUnderrun {
		t.Errorf("event after underflow = %v, %v, want EventBufferUnderrun", e, err)
	}
}

func TestSetGainForwardsToSource(t *testing.T) {
	p, _ := newTestPlayer(t, PlayerConfig{})
	source := audio.NewQueueSource(0)
	if err := p.Attach(source); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	if err := p.SetGain(0.5); err != nil {
		t.Fatalf("SetGain failed: %v", err)
	}
	if p.Gain() != 0.5 {
		t.Errorf("Gain = %v, want 0.5", p.Gain())
	}
}

func TestDeviceFormatReportsNegotiatedFormat(t *testing.T) {
	format := testFormat()
	p, _ := newTestPlayer(t, PlayerConfig{TargetFormat: format})
	source := audio.NewQueueSource(0)
	if err := p.Attach(source); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	if got := p.DeviceFormat(); !got.Equal(format) {
		t.Errorf("DeviceFormat = %v, want %v", got, format)
	}
}
