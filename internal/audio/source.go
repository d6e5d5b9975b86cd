package audio

import "errors"

// Common errors for Source implementations.
var (
	ErrSinkBound    = errors.New("a sink is already bound to this source")
	ErrSinkNotBound = errors.New("no sink is bound to this source")
	ErrSourceClosed = errors.New("audio source is closed")
)

// PullStatus is the result of a NextBuffer call.
type PullStatus int

const (
	// PullBuffer means a buffer was returned.
	PullBuffer PullStatus = iota
	// PullEnd means the source has no more audio, ever.
	PullEnd
	// PullAgain means no buffer is ready and the call was non-blocking.
	PullAgain
)

// SinkBinding describes the consumer side of a Source. The engine fills in
// the hook fields before binding; the source invokes them when transport
// state changes or when a track item is discarded. Hooks must be invoked
// without any source-internal lock held, since they re-enter the engine.
type SinkBinding struct {
	// Format is the negotiated device format the source should produce.
	Format Format
	// BufferFrames is the requested capacity of the source's ready queue.
	BufferFrames int
	// DisableResample asks the source to deliver buffers byte-exact in
	// their native format instead of converting to Format.
	DisableResample bool

	// Pause is invoked when the source transport pauses.
	Pause func()
	// Play is invoked when the source transport resumes.
	Play func()
	// Flush is invoked when all queued audio has been discarded.
	Flush func()
	// Purge is invoked when a specific item's audio has been discarded.
	Purge func(*Item)
}

// Source supplies decoded audio buffers and transport state. It is the
// upstream boundary of the playback engine: decode, mix, and resample
// concerns live behind this interface.
type Source interface {
	// NextBuffer returns the next ready buffer. With block set it waits
	// until a buffer is available or the stream ends; without it, it
	// returns PullAgain when nothing is ready. A blocking pull must also
	// return once the bound sink detaches, so UnbindSink never strands a
	// waiting consumer. The caller owns one reference on the returned
	// buffer.
	NextBuffer(block bool) (*Buffer, PullStatus)

	// Playing reports whether the transport is in the playing state.
	Playing() bool

	// SetGain forwards a gain multiplier to the source's mixing stage.
	SetGain(gain float64) error

	// BindSink attaches a consumer. At most one sink may be bound.
	BindSink(sink *SinkBinding) error

	// UnbindSink detaches the bound consumer, if any.
	UnbindSink()
}
