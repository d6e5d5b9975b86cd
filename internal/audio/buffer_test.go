package audio

import "testing"

func TestBufferRefCounting(t *testing.T) {
	released := 0
	buf := NewBuffer(
		Format{SampleRate: 44100, Layout: LayoutStereo, SampleFormat: SampleFormatS16},
		10, [][]byte{make([]byte, 40)}, &Item{Path: "a.wav"}, 0,
		func(*Buffer) { released++ },
	)

	buf.Ref()
	buf.Unref()
	if released != 0 {
		t.Fatal("release hook ran while references remain")
	}

	buf.Unref()
	if released != 1 {
		t.Fatalf("release hook ran %d times, want 1", released)
	}
}

func TestBufferUnrefWithoutHook(t *testing.T) {
	buf := NewBuffer(Format{}, 0, nil, nil, 0, nil)
	buf.Unref()
	// Dropping below zero logs but must not run a hook or panic.
	buf.Unref()
}

func TestBufferNilSafety(t *testing.T) {
	var buf *Buffer
	buf.Ref()
	buf.Unref()
}
