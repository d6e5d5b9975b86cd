package audio

import (
	"log/slog"
	"math"
	"sync"
)

// QueueSource is an in-process Source fed by an application thread. The
// CLI decodes files into buffers and pushes them here; the engine pulls
// from the other end. It implements the full sink-hook protocol, so it
// also serves as the reference source for engine tests.
type QueueSource struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue        []*Buffer
	queuedFrames int
	maxFrames    int
	closed       bool
	playing      bool
	gain         float64
	sink         *SinkBinding
}

// NewQueueSource creates an empty, playing source. maxFrames bounds how
// much audio may sit in the ready queue before Push blocks; a bound of 0
// means unbounded.
func NewQueueSource(maxFrames int) *QueueSource {
	slog.Debug("creating queue source", "max_frames", maxFrames)
	qs := &QueueSource{
		maxFrames: maxFrames,
		playing:   true,
		gain:      1.0,
	}
	qs.cond = sync.NewCond(&qs.mu)
	return qs
}

// BindSink attaches the engine's sink binding.
func (qs *QueueSource) BindSink(sink *SinkBinding) error {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	if qs.sink != nil {
		return ErrSinkBound
	}
	qs.sink = sink
	if sink.BufferFrames > 0 {
		qs.maxFrames = sink.BufferFrames
	}
	slog.Debug("sink bound to queue source",
		"format", sink.Format.String(),
		"buffer_frames", sink.BufferFrames,
		"disable_resample", sink.DisableResample)
	return nil
}

// UnbindSink detaches the bound sink and unblocks any waiting pushers.
func (qs *QueueSource) UnbindSink() {
	qs.mu.Lock()
	qs.sink = nil
	qs.cond.Broadcast()
	qs.mu.Unlock()
}

// Push applies the current gain to buf and appends it to the ready queue,
// blocking while the queue is at capacity. The source takes over the
// caller's reference.
func (qs *QueueSource) Push(buf *Buffer) error {
	qs.mu.Lock()
	for !qs.closed && qs.maxFrames > 0 && qs.queuedFrames >= qs.maxFrames && qs.sink != nil {
		qs.cond.Wait()
	}
	if qs.closed {
		qs.mu.Unlock()
		buf.Unref()
		return ErrSourceClosed
	}
	gain := qs.gain
	qs.mu.Unlock()

	// The buffer is not visible to the consumer yet, so scaling in
	// place here keeps it immutable from the engine's point of view.
	if gain != 1.0 {
		applyGain(buf, gain)
	}

	qs.mu.Lock()
	qs.queue = append(qs.queue, buf)
	qs.queuedFrames += buf.Frames
	qs.cond.Broadcast()
	qs.mu.Unlock()
	return nil
}

// CloseInput marks the end of the stream. Queued buffers still drain;
// NextBuffer reports PullEnd once the queue is empty.
func (qs *QueueSource) CloseInput() {
	qs.mu.Lock()
	qs.closed = true
	qs.cond.Broadcast()
	qs.mu.Unlock()
	slog.Debug("queue source input closed")
}

// NextBuffer implements Source. A blocking pull returns PullAgain as soon
// as no sink is bound, so a consumer detaching mid-starvation is never
// held waiting for audio that will not come.
func (qs *QueueSource) NextBuffer(block bool) (*Buffer, PullStatus) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	for {
		if len(qs.queue) > 0 {
			buf := qs.queue[0]
			qs.queue = qs.queue[1:]
			qs.queuedFrames -= buf.Frames
			qs.cond.Broadcast()
			return buf, PullBuffer
		}
		if qs.closed {
			return nil, PullEnd
		}
		if !block || qs.sink == nil {
			return nil, PullAgain
		}
		qs.cond.Wait()
	}
}

// Playing implements Source.
func (qs *QueueSource) Playing() bool {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return qs.playing
}

// Play resumes the transport and notifies the bound sink.
func (qs *QueueSource) Play() {
	qs.mu.Lock()
	qs.playing = true
	hook := qs.hookPlay()
	qs.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// Pause pauses the transport and notifies the bound sink.
func (qs *QueueSource) Pause() {
	qs.mu.Lock()
	qs.playing = false
	hook := qs.hookPause()
	qs.mu.Unlock()
	if hook != nil {
		hook()
	}
}

// Flush discards all queued audio and notifies the bound sink.
func (qs *QueueSource) Flush() {
	qs.mu.Lock()
	dropped := qs.queue
	qs.queue = nil
	qs.queuedFrames = 0
	var hook func()
	if qs.sink != nil {
		hook = qs.sink.Flush
	}
	qs.cond.Broadcast()
	qs.mu.Unlock()

	for _, buf := range dropped {
		buf.Unref()
	}
	if hook != nil {
		hook()
	}
	slog.Debug("queue source flushed", "buffers_dropped", len(dropped))
}

// PurgeItem discards queued audio belonging to item and notifies the
// bound sink, which resets its play head if item is currently audible.
func (qs *QueueSource) PurgeItem(item *Item) {
	qs.mu.Lock()
	kept := qs.queue[:0]
	var dropped []*Buffer
	for _, buf := range qs.queue {
		if buf.Item == item {
			dropped = append(dropped, buf)
			qs.queuedFrames -= buf.Frames
		} else {
			kept = append(kept, buf)
		}
	}
	qs.queue = kept
	var hook func(*Item)
	if qs.sink != nil {
		hook = qs.sink.Purge
	}
	qs.cond.Broadcast()
	qs.mu.Unlock()

	for _, buf := range dropped {
		buf.Unref()
	}
	if hook != nil {
		hook(item)
	}
	slog.Debug("queue source purged item", "item", item.Path, "buffers_dropped", len(dropped))
}

// SetGain implements Source. The gain applies to buffers pushed after the
// call; audio already queued keeps its mix.
func (qs *QueueSource) SetGain(gain float64) error {
	qs.mu.Lock()
	qs.gain = gain
	qs.mu.Unlock()
	slog.Debug("queue source gain changed", "gain", gain)
	return nil
}

func (qs *QueueSource) hookPlay() func() {
	if qs.sink == nil {
		return nil
	}
	return qs.sink.Play
}

func (qs *QueueSource) hookPause() func() {
	if qs.sink == nil {
		return nil
	}
	return qs.sink.Pause
}

// applyGain scales samples in place. Only interleaved S16 and F32 carry
// through the demo decode path; other formats pass unscaled.
func applyGain(buf *Buffer, gain float64) {
	switch buf.Format.SampleFormat {
	case SampleFormatS16:
		data := buf.Data[0]
		for i := 0; i+1 < len(data); i += 2 {
			sample := int16(uint16(data[i]) | uint16(data[i+1])<<8)
			scaled := float64(sample) * gain
			if scaled > math.MaxInt16 {
				scaled = math.MaxInt16
			} else if scaled < math.MinInt16 {
				scaled = math.MinInt16
			}
			out := int16(scaled)
			data[i] = byte(out)
			data[i+1] = byte(uint16(out) >> 8)
		}
	case SampleFormatF32:
		data := buf.Data[0]
		for i := 0; i+3 < len(data); i += 4 {
			bits := uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16 | uint32(data[i+3])<<24
			scaled := float32(float64(math.Float32frombits(bits)) * gain)
			out := math.Float32bits(scaled)
			data[i] = byte(out)
			data[i+1] = byte(out >> 8)
			data[i+2] = byte(out >> 16)
			data[i+3] = byte(out >> 24)
		}
	default:
		slog.Debug("gain not applied for sample format", "format", buf.Format.SampleFormat.String())
	}
}
