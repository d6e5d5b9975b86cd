package audio

import (
	"errors"
	"io"
	"log/slog"
)

// Common decoder errors.
var (
	ErrInvalidData       = errors.New("invalid audio data")
	ErrReadFailure       = errors.New("failed to read audio data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// PCM is a fully decoded, interleaved audio clip.
type PCM struct {
	Samples []byte
	Format  Format
}

// Frames returns the number of frames in the clip.
func (p *PCM) Frames() int {
	bpf := p.Format.BytesPerFrame()
	if bpf == 0 {
		return 0
	}
	return len(p.Samples) / bpf
}

// Duration returns the clip length in seconds.
func (p *PCM) Duration() float64 {
	if p.Format.SampleRate == 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.Format.SampleRate)
}

// Decoder decodes one audio container format into PCM.
type Decoder interface {
	// Decode reads audio data from reader and returns decoded PCM data.
	Decode(reader io.Reader) (*PCM, error)

	// CanDecode checks if this decoder can handle the given filename.
	CanDecode(filename string) bool

	// FormatName returns the name of the format this decoder handles.
	FormatName() string
}

// ChunkPCM splits a decoded clip into reference-counted buffers of at most
// chunkFrames frames, all sharing item, with position timestamps running
// from the start of the clip. This is how a decoded file enters the
// engine's buffer protocol.
func ChunkPCM(pcm *PCM, item *Item, chunkFrames int) []*Buffer {
	if chunkFrames <= 0 {
		chunkFrames = 4096
	}
	bpf := pcm.Format.BytesPerFrame()
	total := pcm.Frames()

	var bufs []*Buffer
	for start := 0; start < total; start += chunkFrames {
		frames := chunkFrames
		if start+frames > total {
			frames = total - start
		}
		data := pcm.Samples[start*bpf : (start+frames)*bpf]
		pos := float64(start) / float64(pcm.Format.SampleRate)
		bufs = append(bufs, NewBuffer(pcm.Format, frames, [][]byte{data}, item, pos, nil))
	}

	slog.Debug("chunked PCM clip into buffers",
		"item", item.Path,
		"total_frames", total,
		"chunk_frames", chunkFrames,
		"buffers", len(bufs))

	return bufs
}
