package audio

import "fmt"

// SampleFormat identifies the in-memory representation of one sample.
// Interleaved formats store all channels in a single plane; planar
// formats store one plane per channel.
type SampleFormat int

const (
	SampleFormatNone SampleFormat = iota
	SampleFormatU8
	SampleFormatS16
	SampleFormatS32
	SampleFormatF32
	SampleFormatF64
	SampleFormatU8P
	SampleFormatS16P
	SampleFormatS32P
	SampleFormatF32P
	SampleFormatF64P
)

// BytesPerSample returns the storage size of a single sample for one channel.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8, SampleFormatU8P:
		return 1
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatS32, SampleFormatS32P, SampleFormatF32, SampleFormatF32P:
		return 4
	case SampleFormatF64, SampleFormatF64P:
		return 8
	default:
		return 0
	}
}

// IsPlanar reports whether samples are stored one plane per channel.
func (f SampleFormat) IsPlanar() bool {
	switch f {
	case SampleFormatU8P, SampleFormatS16P, SampleFormatS32P, SampleFormatF32P, SampleFormatF64P:
		return true
	default:
		return false
	}
}

// Packed returns the interleaved counterpart of a planar format. Interleaved
// formats return themselves.
func (f SampleFormat) Packed() SampleFormat {
	switch f {
	case SampleFormatU8P:
		return SampleFormatU8
	case SampleFormatS16P:
		return SampleFormatS16
	case SampleFormatS32P:
		return SampleFormatS32
	case SampleFormatF32P:
		return SampleFormatF32
	case SampleFormatF64P:
		return SampleFormatF64
	default:
		return f
	}
}

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatNone:
		return "none"
	case SampleFormatU8:
		return "u8"
	case SampleFormatS16:
		return "s16"
	case SampleFormatS32:
		return "s32"
	case SampleFormatF32:
		return "f32"
	case SampleFormatF64:
		return "f64"
	case SampleFormatU8P:
		return "u8p"
	case SampleFormatS16P:
		return "s16p"
	case SampleFormatS32P:
		return "s32p"
	case SampleFormatF32P:
		return "f32p"
	case SampleFormatF64P:
		return "f64p"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// ParseSampleFormat is the inverse of SampleFormat.String.
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch s {
	case "u8":
		return SampleFormatU8, nil
	case "s16":
		return SampleFormatS16, nil
	case "s32":
		return SampleFormatS32, nil
	case "f32":
		return SampleFormatF32, nil
	case "f64":
		return SampleFormatF64, nil
	case "u8p":
		return SampleFormatU8P, nil
	case "s16p":
		return SampleFormatS16P, nil
	case "s32p":
		return SampleFormatS32P, nil
	case "f32p":
		return SampleFormatF32P, nil
	case "f64p":
		return SampleFormatF64P, nil
	default:
		return SampleFormatNone, fmt.Errorf("unknown sample format %q", s)
	}
}

// Layout is an enumerated channel layout.
type Layout int

const (
	LayoutNone Layout = iota
	LayoutMono
	LayoutStereo
)

// Channels returns the channel count of the layout.
func (l Layout) Channels() int {
	switch l {
	case LayoutMono:
		return 1
	case LayoutStereo:
		return 2
	default:
		return 0
	}
}

func (l Layout) String() string {
	switch l {
	case LayoutMono:
		return "mono"
	case LayoutStereo:
		return "stereo"
	default:
		return "none"
	}
}

// ParseLayout is the inverse of Layout.String.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "mono":
		return LayoutMono, nil
	case "stereo":
		return LayoutStereo, nil
	default:
		return LayoutNone, fmt.Errorf("unknown channel layout %q", s)
	}
}

// LayoutForChannels maps a channel count to a layout, LayoutNone if unsupported.
func LayoutForChannels(channels int) Layout {
	switch channels {
	case 1:
		return LayoutMono
	case 2:
		return LayoutStereo
	default:
		return LayoutNone
	}
}

// Format describes a stream of audio frames. It is a value type; equality
// is structural.
type Format struct {
	SampleRate   int
	Layout       Layout
	SampleFormat SampleFormat
}

// Equal reports structural equality with other.
func (f Format) Equal(other Format) bool {
	return f == other
}

// Valid reports whether all three fields are usable.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Layout.Channels() > 0 && f.SampleFormat.BytesPerSample() > 0
}

// BytesPerFrame returns the interleaved size of one frame across all channels.
func (f Format) BytesPerFrame() int {
	return f.SampleFormat.BytesPerSample() * f.Layout.Channels()
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%s/%s", f.SampleRate, f.Layout, f.SampleFormat)
}
