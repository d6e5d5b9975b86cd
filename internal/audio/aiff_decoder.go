package audio

import (
	"bytes"
	"io"
	"log/slog"
	"strings"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
)

// AiffDecoder handles AIFF audio format decoding.
type AiffDecoder struct{}

// NewAiffDecoder creates a new AIFF decoder instance.
func NewAiffDecoder() *AiffDecoder {
	slog.Debug("creating new AIFF decoder instance")
	return &AiffDecoder{}
}

// FormatName returns the name of the format this decoder handles.
func (d *AiffDecoder) FormatName() string {
	return "AIFF"
}

// CanDecode checks if this decoder can handle the given filename.
func (d *AiffDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".aiff") || strings.HasSuffix(lower, ".aif")
}

// Decode reads AIFF audio data from reader and returns decoded PCM data.
func (d *AiffDecoder) Decode(reader io.Reader) (*PCM, error) {
	slog.Debug("starting AIFF decode operation")

	// go-audio/aiff needs a ReadSeeker, so read all data first.
	data, err := io.ReadAll(reader)
	if err != nil {
		slog.Error("failed to read AIFF data", "error", err)
		return nil, ErrReadFailure
	}
	if len(data) == 0 {
		slog.Error("empty AIFF data")
		return nil, ErrInvalidData
	}

	decoder := aiff.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		slog.Error("invalid AIFF file format")
		return nil, ErrInvalidData
	}

	sampleRate := int(decoder.SampleRate)
	layout := LayoutForChannels(int(decoder.NumChans))
	bitDepth := int(decoder.SampleBitDepth())

	slog.Debug("AIFF format detected",
		"sample_rate", sampleRate,
		"channels", decoder.NumChans,
		"bits_per_sample", bitDepth)

	if layout == LayoutNone || sampleRate == 0 {
		slog.Error("invalid AIFF format parameters",
			"channels", decoder.NumChans,
			"sample_rate", sampleRate)
		return nil, ErrInvalidData
	}

	var sampleFormat SampleFormat
	switch bitDepth {
	case 16:
		sampleFormat = SampleFormatS16
	case 24, 32:
		sampleFormat = SampleFormatS32
	default:
		slog.Error("unsupported AIFF bit depth", "bits", bitDepth)
		return nil, ErrUnsupportedFormat
	}

	pcmBuffer, err := decoder.FullPCMBuffer()
	if err != nil {
		slog.Error("failed to read AIFF samples", "error", err)
		return nil, ErrReadFailure
	}
	if pcmBuffer == nil || len(pcmBuffer.Data) == 0 {
		slog.Error("no audio data found in AIFF file")
		return nil, ErrInvalidData
	}

	raw := convertIntBuffer(pcmBuffer, bitDepth, sampleFormat)

	pcm := &PCM{
		Samples: raw,
		Format: Format{
			SampleRate:   sampleRate,
			Layout:       layout,
			SampleFormat: sampleFormat,
		},
	}

	slog.Info("AIFF decode completed successfully",
		"total_bytes", len(raw),
		"frames", pcm.Frames(),
		"format", pcm.Format.String())

	return pcm, nil
}

// convertIntBuffer serializes a go-audio IntBuffer to little-endian bytes,
// widening 24-bit samples into the top of the 32-bit range.
func convertIntBuffer(pcmBuffer *goaudio.IntBuffer, bitDepth int, sampleFormat SampleFormat) []byte {
	raw := make([]byte, 0, len(pcmBuffer.Data)*sampleFormat.BytesPerSample())
	for _, sample := range pcmBuffer.Data {
		switch {
		case sampleFormat == SampleFormatS16:
			v := int16(sample)
			raw = append(raw, byte(v), byte(uint16(v)>>8))
		case bitDepth == 24:
			v := int32(sample) << 8
			raw = append(raw, byte(v), byte(uint32(v)>>8), byte(uint32(v)>>16), byte(uint32(v)>>24))
		default:
			v := int32(sample)
			raw = append(raw, byte(v), byte(uint32(v)>>8), byte(uint32(v)>>16), byte(uint32(v)>>24))
		}
	}
	return raw
}
