package engine

import "tremolo.click/internal/audio"

// bufferCursor tracks consumption progress through at most one adopted
// buffer. It holds one reference on the buffer and is only touched under
// the player mutex.
type bufferCursor struct {
	buf   *audio.Buffer
	index int
}

// adopt takes ownership of buf, releasing any previous buffer. The
// caller's reference transfers to the cursor.
func (c *bufferCursor) adopt(buf *audio.Buffer) {
	c.release()
	c.buf = buf
}

// buffer returns the adopted buffer, or nil.
func (c *bufferCursor) buffer() *audio.Buffer { return c.buf }

// empty reports whether no buffer is adopted.
func (c *bufferCursor) empty() bool { return c.buf == nil }

// remaining returns the number of unconsumed frames, zero when empty.
func (c *bufferCursor) remaining() int {
	if c.buf == nil {
		return 0
	}
	return c.buf.Frames - c.index
}

// advance marks n more frames as consumed.
func (c *bufferCursor) advance(n int) {
	c.index += n
}

// release drops the adopted buffer's reference and resets the cursor.
// Safe to call when empty.
func (c *bufferCursor) release() {
	c.buf.Unref()
	c.buf = nil
	c.index = 0
}
