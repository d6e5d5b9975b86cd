package cli

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"tremolo.click/internal/backend"
)

// testWAV builds a minimal 16-bit stereo 44100 Hz WAV clip.
func testWAV(frames int) []byte {
	sampleData := make([]byte, frames*4)
	for i := range sampleData {
		sampleData[i] = byte(i%100 + 1)
	}

	wav := make([]byte, 0, 44+len(sampleData))
	wav = append(wav, []byte("RIFF")...)
	wav = append(wav, []byte{0, 0, 0, 0}...)
	wav = append(wav, []byte("WAVE")...)
	wav = append(wav, []byte("fmt ")...)
	wav = append(wav, []byte{16, 0, 0, 0}...)
	wav = append(wav, []byte{1, 0}...)          // PCM
	wav = append(wav, []byte{2, 0}...)          // stereo
	wav = append(wav, []byte{68, 172, 0, 0}...) // 44100
	wav = append(wav, []byte{16, 177, 2, 0}...) // byte rate
	wav = append(wav, []byte{4, 0}...)          // block align
	wav = append(wav, []byte{16, 0}...)         // bits per sample
	wav = append(wav, []byte("data")...)
	wav = append(wav, byte(len(sampleData)), byte(len(sampleData)>>8), 0, 0)
	wav = append(wav, sampleData...)

	totalSize := len(wav) - 8
	wav[4] = byte(totalSize)
	wav[5] = byte(totalSize >> 8)
	wav[6] = byte(totalSize >> 16)
	wav[7] = byte(totalSize >> 24)
	return wav
}

// testFactory routes every backend type to a self-clocked null backend so
// playback drains without hardware.
func newTestFactory() backend.Factory {
	return backend.NewFactoryWithConstructors(
		func() (backend.Backend, error) { return nil, errors.New("no audio hardware in tests") },
		func() backend.Backend { return backend.NewNullBackend(true) },
		func() backend.Backend { return backend.NewNullBackend(true) },
	)
}

func newTestCLI(fs afero.Fs) (*CLI, *bytes.Buffer, *bytes.Buffer) {
	c := NewCLIWithDependencies(fs, newTestFactory())
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	c.SetOutput(out, errOut)
	return c, out, errOut
}

func TestCLIVersionFlag(t *testing.T) {
	c, out, _ := newTestCLI(afero.NewMemMapFs())

	if code := c.Run([]string{"--version"}); code != 0 {
		t.Fatalf("Run(--version) = %d, want 0", code)
	}
	if !strings.Contains(out.String(), Version) {
		t.Errorf("version output %q missing %q", out.String(), Version)
	}
}

func TestCLINoArgsShowsHelp(t *testing.T) {
	c, out, _ := newTestCLI(afero.NewMemMapFs())

	if code := c.Run([]string{}); code != 0 {
		t.Fatalf("Run() = %d, want 0", code)
	}
	if !strings.Contains(out.String(), "tremolo") {
		t.Errorf("help output missing usage: %q", out.String())
	}
}

func TestCLIInvalidVolume(t *testing.T) {
	tests := []string{"loud", "1.5", "-0.1"}
	for _, vol := range tests {
		c, _, _ := newTestCLI(afero.NewMemMapFs())
		if code := c.Run([]string{"--volume", vol, "whatever.wav"}); code == 0 {
			t.Errorf("Run(--volume %s) succeeded, want failure", vol)
		}
	}
}

func TestCLIMissingFile(t *testing.T) {
	c, _, _ := newTestCLI(afero.NewMemMapFs())
	if code := c.Run([]string{"--backend", "null", "/missing.wav"}); code == 0 {
		t.Error("Run with missing file succeeded, want failure")
	}
}

func TestCLIDevicesCommand(t *testing.T) {
	c, out, _ := newTestCLI(afero.NewMemMapFs())

	if code := c.Run([]string{"devices", "--backend", "null"}); code != 0 {
		t.Fatalf("Run(devices) = %d, want 0", code)
	}
	output := out.String()
	if !strings.Contains(output, "Backend: null") {
		t.Errorf("devices output missing backend name: %q", output)
	}
	if !strings.Contains(output, "*") {
		t.Errorf("devices output missing default marker: %q", output)
	}
}

func TestCLIPlaysFileToCompletion(t *testing.T) {
	fs := afero.NewMemMapFs()
	// Longer than one null-backend pump period, so the now-playing event
	// is observed while the clip is still audible.
	if err := afero.WriteFile(fs, "/clip.wav", testWAV(9000), 0644); err != nil {
		t.Fatal(err)
	}

	c, out, _ := newTestCLI(fs)
	if code := c.Run([]string{"--backend", "null", "/clip.wav"}); code != 0 {
		t.Fatalf("Run(play) = %d, want 0", code)
	}
	if !strings.Contains(out.String(), "Now playing: /clip.wav") {
		t.Errorf("play output missing now-playing line: %q", out.String())
	}
}

func TestCLIPlayRecordsHistory(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/clip.wav", testWAV(9000), 0644); err != nil {
		t.Fatal(err)
	}

	// History databases live on the real filesystem (sqlite), so point the
	// config at a temp path.
	dbPath := filepath.Join(t.TempDir(), "history.db")
	configJSON := `{
  "volume": 1.0,
  "backend": "null",
  "sample_rate": 44100,
  "sample_format": "s16",
  "channels": "stereo",
  "log_level": "warn",
  "history": {"enabled": true, "path": ` + `"` + dbPath + `"}
}`
	if err := afero.WriteFile(fs, "/cfg.json", []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}

	c, out, _ := newTestCLI(fs)
	if code := c.Run([]string{"--config", "/cfg.json", "/clip.wav"}); code != 0 {
		t.Fatalf("Run(play with history) = %d, want 0", code)
	}
	if !strings.Contains(out.String(), "Now playing") {
		t.Fatalf("playback did not run: %q", out.String())
	}

	c2, out2, _ := newTestCLI(fs)
	if code := c2.Run([]string{"history", "--config", "/cfg.json"}); code != 0 {
		t.Fatalf("Run(history) = %d, want 0", code)
	}
	if !strings.Contains(out2.String(), "nowplaying") {
		t.Errorf("history output missing recorded event: %q", out2.String())
	}
	if !strings.Contains(out2.String(), "/clip.wav") {
		t.Errorf("history output missing item path: %q", out2.String())
	}
}

func TestCLIInvalidBackendFlag(t *testing.T) {
	c, _, _ := newTestCLI(afero.NewMemMapFs())
	if code := c.Run([]string{"devices", "--backend", "pulse"}); code == 0 {
		t.Error("Run with invalid backend succeeded, want failure")
	}
}
