package audio

import (
	"bytes"
	"io"
	"log/slog"
	"strings"

	"github.com/youpy/go-wav"
)

// WavDecoder handles WAV audio format decoding.
type WavDecoder struct{}

// NewWavDecoder creates a new WAV decoder instance.
func NewWavDecoder() *WavDecoder {
	slog.Debug("creating new WAV decoder instance")
	return &WavDecoder{}
}

// Decode reads WAV audio data from reader and returns decoded PCM data.
func (d *WavDecoder) Decode(reader io.Reader) (*PCM, error) {
	slog.Debug("starting WAV decode operation")

	// youpy/go-wav needs a ReadSeeker, so read all data first.
	data, err := io.ReadAll(reader)
	if err != nil {
		slog.Error("failed to read WAV data", "error", err)
		return nil, ErrReadFailure
	}
	if len(data) == 0 {
		slog.Error("empty WAV data")
		return nil, ErrInvalidData
	}

	wavReader := wav.NewReader(bytes.NewReader(data))
	format, err := wavReader.Format()
	if err != nil {
		slog.Error("failed to read WAV format", "error", err)
		return nil, ErrInvalidData
	}

	slog.Debug("WAV format detected",
		"sample_rate", format.SampleRate,
		"channels", format.NumChannels,
		"bits_per_sample", format.BitsPerSample)

	layout := LayoutForChannels(int(format.NumChannels))
	if layout == LayoutNone || format.SampleRate == 0 {
		slog.Error("invalid WAV format parameters",
			"channels", format.NumChannels,
			"sample_rate", format.SampleRate)
		return nil, ErrInvalidData
	}

	var sampleFormat SampleFormat
	switch format.BitsPerSample {
	case 16:
		sampleFormat = SampleFormatS16
	case 24, 32:
		// 24-bit widens to s32; the engine format set has no s24.
		sampleFormat = SampleFormatS32
	default:
		slog.Error("unsupported WAV bit depth", "bits", format.BitsPerSample)
		return nil, ErrUnsupportedFormat
	}

	var allSamples []wav.Sample
	for {
		samples, err := wavReader.ReadSamples()
		if err != nil {
			if err == io.EOF {
				break
			}
			slog.Error("failed to read WAV samples", "error", err)
			return nil, ErrReadFailure
		}
		if len(samples) == 0 {
			break
		}
		allSamples = append(allSamples, samples...)
	}

	if len(allSamples) == 0 {
		slog.Error("no audio data found in WAV file")
		return nil, ErrInvalidData
	}

	channels := int(format.NumChannels)
	raw := make([]byte, 0, len(allSamples)*channels*sampleFormat.BytesPerSample())
	for _, sample := range allSamples {
		for ch := 0; ch < channels; ch++ {
			var val int
			if ch < len(sample.Values) {
				val = sample.Values[ch]
			}
			switch {
			case sampleFormat == SampleFormatS16:
				raw = append(raw, byte(val), byte(val>>8))
			case format.BitsPerSample == 24:
				// Shift into the top of the 32-bit range.
				v := int32(val) << 8
				raw = append(raw, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
			default:
				v := int32(val)
				raw = append(raw, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
			}
		}
	}

	pcm := &PCM{
		Samples: raw,
		Format: Format{
			SampleRate:   int(format.SampleRate),
			Layout:       layout,
			SampleFormat: sampleFormat,
		},
	}

	slog.Info("WAV decode completed successfully",
		"total_bytes", len(raw),
		"frames", pcm.Frames(),
		"format", pcm.Format.String())

	return pcm, nil
}

// CanDecode checks if this decoder can handle the given filename.
func (d *WavDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".wave")
}

// FormatName returns the name of the format this decoder handles.
func (d *WavDecoder) FormatName() string {
	return "WAV"
}
