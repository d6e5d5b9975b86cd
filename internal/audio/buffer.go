package audio

import (
	"log/slog"
	"sync/atomic"
)

// Item is an opaque handle to the logical track a buffer belongs to.
// Items are compared by pointer identity; two buffers from the same track
// carry the same *Item.
type Item struct {
	Path string
	Meta map[string]string
}

// Buffer is an immutable, reference-counted chunk of decoded audio.
// Planar formats use one plane per channel; interleaved formats use a
// single plane. Pos is the buffer's start position within its item, in
// seconds.
type Buffer struct {
	Format Format
	Frames int
	Data   [][]byte
	Item   *Item
	Pos    float64

	refs    atomic.Int32
	release func(*Buffer)
}

// NewBuffer wraps decoded planes in a Buffer with a reference count of one.
// release, if non-nil, runs when the last reference is dropped.
func NewBuffer(format Format, frames int, data [][]byte, item *Item, pos float64, release func(*Buffer)) *Buffer {
	b := &Buffer{
		Format:  format,
		Frames:  frames,
		Data:    data,
		Item:    item,
		Pos:     pos,
		release: release,
	}
	b.refs.Store(1)
	return b
}

// Ref takes an additional reference.
func (b *Buffer) Ref() {
	if b == nil {
		return
	}
	b.refs.Add(1)
}

// Unref drops one reference, running the release hook when the count
// reaches zero. Safe to call on nil.
func (b *Buffer) Unref() {
	if b == nil {
		return
	}
	n := b.refs.Add(-1)
	if n < 0 {
		slog.Error("audio buffer reference count went negative", "refs", n)
		return
	}
	if n == 0 && b.release != nil {
		b.release(b)
	}
}
