// Package backend abstracts platform audio output behind a callback-driven
// write-transaction protocol. The engine asks a Stream for channel write
// areas one bounded transaction at a time; implementations adapt that
// protocol onto whatever the underlying library offers.
package backend

import (
	"errors"

	"tremolo.click/internal/audio"
)

// Common errors for Backend implementations.
var (
	ErrBackendClosed       = errors.New("audio backend is closed")
	ErrBackendNotAvailable = errors.New("audio backend not available")
	ErrDeviceNotFound      = errors.New("audio device not found")
	ErrStreamClosed        = errors.New("audio stream is closed")
	ErrUnsupportedFormat   = errors.New("audio format not supported by backend")
	ErrNotServing          = errors.New("write transaction outside stream callback")
	ErrDeviceStopped       = errors.New("audio device stopped unexpectedly")
)

// DeviceInfo describes one output device.
type DeviceInfo struct {
	ID        string
	Name      string
	IsDefault bool
}

// ChannelArea is the write destination for one channel within a
// transaction. The sample for frame f starts at Buf[f*Step].
type ChannelArea struct {
	Buf  []byte
	Step int
}

// StreamCallbacks are invoked from the backend's own playback context.
type StreamCallbacks struct {
	// Write must fill up to the requested number of frames using
	// BeginWrite/EndWrite transactions. Frames it leaves unwritten play
	// as silence.
	Write func(frames int)
	// Underflow reports that the device ran out of data at the hardware
	// level. Optional.
	Underflow func()
	// Error reports a fatal stream condition. The stream produces no
	// further Write calls after an error. Optional.
	Error func(err error)
}

// Stream is one open output stream on a device. BeginWrite and EndWrite
// may only be called from within a Write callback.
type Stream interface {
	// Start begins playback. May invoke the Write callback before
	// returning, so the caller must not hold locks the callback takes.
	Start() error

	// SetPaused pauses or resumes the device clock.
	SetPaused(paused bool) error

	// Close tears the stream down. No callbacks run after Close returns.
	Close() error

	// Format returns the negotiated stream format.
	Format() audio.Format

	// BufferDuration returns the length in seconds of the device-side
	// buffering, the horizon after which written audio has left the
	// hardware queue.
	BufferDuration() float64

	// BeginWrite opens a transaction for up to the given frame count and
	// returns one write area per channel plus the granted frame count,
	// which may be smaller than requested.
	BeginWrite(frames int) ([]ChannelArea, int, error)

	// EndWrite commits the given number of frames of the open transaction.
	EndWrite(frames int) error
}

// Backend enumerates output devices and opens streams against them.
type Backend interface {
	// Name identifies the backend implementation.
	Name() string

	// Devices lists available output devices.
	Devices() ([]DeviceInfo, error)

	// OpenStream opens an output stream in the given format on the given
	// device, or the default device when deviceID is empty. The stream is
	// created stopped; call Start to begin playback.
	OpenStream(deviceID string, format audio.Format, cb StreamCallbacks) (Stream, error)

	// Close releases the backend. All streams must be closed first.
	Close() error
}
