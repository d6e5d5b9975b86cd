package config

import (
	"strings"
	"testing"

	"github.com/spf13/afero"

	"tremolo.click/internal/audio"
)

func TestGetDefaultConfig(t *testing.T) {
	cm := NewConfigManagerWithFs(afero.NewMemMapFs())
	cfg := cm.GetDefaultConfig()

	if cfg.Volume != 1.0 {
		t.Errorf("default volume = %v, want 1.0", cfg.Volume)
	}
	if cfg.Backend != "auto" {
		t.Errorf("default backend = %q, want auto", cfg.Backend)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("default sample rate = %d, want 44100", cfg.SampleRate)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("default log level = %q, want warn", cfg.LogLevel)
	}
	if err := cm.ValidateConfig(cfg); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	cm := NewConfigManagerWithFs(fs)

	cfg := cm.GetDefaultConfig()
	cfg.Volume = 0.25
	cfg.Backend = "null"
	cfg.ExactFormat = true
	cfg.SampleRate = 48000
	cfg.SampleFormat = "f32"

	path := "/home/user/.config/tremolo/config.json"
	if err := cm.SaveToFile(cfg, path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := cm.LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Volume != 0.25 || loaded.Backend != "null" || !loaded.ExactFormat {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
	if loaded.SampleRate != 48000 || loaded.SampleFormat != "f32" {
		t.Errorf("round trip lost format fields: %+v", loaded)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cm := NewConfigManagerWithFs(afero.NewMemMapFs())
	if _, err := cm.LoadFromFile("/nonexistent/config.json"); err == nil {
		t.Error("LoadFromFile on missing file returned nil error")
	}
}

func TestLoadFromFileInvalidJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/cfg.json", []byte("{not json"), 0644)

	cm := NewConfigManagerWithFs(fs)
	if _, err := cm.LoadFromFile("/cfg.json"); err == nil {
		t.Error("LoadFromFile on invalid JSON returned nil error")
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	cm := NewConfigManagerWithFs(afero.NewMemMapFs())
	cfg, err := cm.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Backend != "auto" {
		t.Errorf("fallback config backend = %q, want auto", cfg.Backend)
	}
}

func TestValidateConfig(t *testing.T) {
	cm := NewConfigManagerWithFs(afero.NewMemMapFs())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"volume too high", func(c *Config) { c.Volume = 1.5 }, "volume"},
		{"volume negative", func(c *Config) { c.Volume = -0.1 }, "volume"},
		{"bad backend", func(c *Config) { c.Backend = "pulse" }, "backend"},
		{"empty backend ok", func(c *Config) { c.Backend = "" }, ""},
		{"bad sample format", func(c *Config) { c.SampleFormat = "s24" }, "sample format"},
		{"bad channels", func(c *Config) { c.Channels = "quad" }, "layout"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log level"},
		{"negative rotation size", func(c *Config) { c.FileLogging.MaxSizeMB = -1 }, "max_size_mb"},
		{"negative sample rate", func(c *Config) { c.SampleRate = -1 }, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := cm.GetDefaultConfig()
			tt.mutate(cfg)
			err := cm.ValidateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateConfig = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateConfig = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestMergeConfigs(t *testing.T) {
	cm := NewConfigManagerWithFs(afero.NewMemMapFs())

	base := cm.GetDefaultConfig()
	override := &Config{Volume: 0.3, Backend: "oto", LogLevel: "debug", ExactFormat: true}

	merged := cm.MergeConfigs(base, override)
	if merged.Volume != 0.3 {
		t.Errorf("merged volume = %v, want 0.3", merged.Volume)
	}
	if merged.Backend != "oto" {
		t.Errorf("merged backend = %q, want oto", merged.Backend)
	}
	if merged.LogLevel != "debug" {
		t.Errorf("merged log level = %q, want debug", merged.LogLevel)
	}
	if !merged.ExactFormat {
		t.Error("merged exact_format = false, want true")
	}
	if merged.SampleRate != base.SampleRate {
		t.Errorf("merge clobbered sample rate: %d", merged.SampleRate)
	}
}

func TestApplyEnvironmentOverrides(t *testing.T) {
	cm := NewConfigManagerWithFs(afero.NewMemMapFs())

	t.Setenv("TREMOLO_VOLUME", "0.7")
	t.Setenv("TREMOLO_BACKEND", "null")
	t.Setenv("TREMOLO_EXACT", "true")
	t.Setenv("TREMOLO_SAMPLE_RATE", "96000")
	t.Setenv("TREMOLO_LOG_LEVEL", "debug")

	cfg := cm.ApplyEnvironmentOverrides(cm.GetDefaultConfig())
	if cfg.Volume != 0.7 {
		t.Errorf("volume = %v, want 0.7", cfg.Volume)
	}
	if cfg.Backend != "null" {
		t.Errorf("backend = %q, want null", cfg.Backend)
	}
	if !cfg.ExactFormat {
		t.Error("exact_format not applied")
	}
	if cfg.SampleRate != 96000 {
		t.Errorf("sample rate = %d, want 96000", cfg.SampleRate)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
}

func TestApplyEnvironmentOverridesRejectsInvalid(t *testing.T) {
	cm := NewConfigManagerWithFs(afero.NewMemMapFs())

	t.Setenv("TREMOLO_VOLUME", "loud")
	t.Setenv("TREMOLO_BACKEND", "pulse")
	t.Setenv("TREMOLO_SAMPLE_RATE", "-5")

	cfg := cm.ApplyEnvironmentOverrides(cm.GetDefaultConfig())
	if cfg.Volume != 1.0 {
		t.Errorf("invalid volume applied: %v", cfg.Volume)
	}
	if cfg.Backend != "auto" {
		t.Errorf("invalid backend applied: %q", cfg.Backend)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("invalid sample rate applied: %d", cfg.SampleRate)
	}
}

func TestTargetFormat(t *testing.T) {
	cm := NewConfigManagerWithFs(afero.NewMemMapFs())

	tests := []struct {
		name   string
		config Config
		want   audio.Format
	}{
		{
			"defaults",
			Config{},
			audio.Format{SampleRate: 44100, Layout: audio.LayoutStereo, SampleFormat: audio.SampleFormatS16},
		},
		{
			"full override",
			Config{SampleRate: 48000, SampleFormat: "f32", Channels: "mono"},
			audio.Format{SampleRate: 48000, Layout: audio.LayoutMono, SampleFormat: audio.SampleFormatF32},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cm.TargetFormat(&tt.config)
			if err != nil {
				t.Fatalf("TargetFormat failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("TargetFormat = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := cm.TargetFormat(&Config{SampleFormat: "dsd"}); err == nil {
		t.Error("TargetFormat accepted unknown sample format")
	}
}

func TestResolvePaths(t *testing.T) {
	cm := NewConfigManagerWithFs(afero.NewMemMapFs())

	if got := cm.ResolveLogFilePath("/var/log/t.log"); got != "/var/log/t.log" {
		t.Errorf("explicit log path not honored: %q", got)
	}
	if got := cm.ResolveLogFilePath(""); !strings.HasSuffix(got, "tremolo.log") {
		t.Errorf("default log path = %q, want tremolo.log under cache", got)
	}

	if got := cm.ResolveHistoryPath("/tmp/h.db"); got != "/tmp/h.db" {
		t.Errorf("explicit history path not honored: %q", got)
	}
	if got := cm.ResolveHistoryPath(""); !strings.HasSuffix(got, "history.db") {
		t.Errorf("default history path = %q, want history.db under data dir", got)
	}
}

func TestXDGConfigPathOrder(t *testing.T) {
	x := NewXDGDirs()
	paths := x.GetConfigPaths("config.json")
	if len(paths) == 0 {
		t.Fatal("no config paths generated")
	}
	for _, p := range paths {
		if !strings.Contains(p, "tremolo") {
			t.Errorf("config path %q missing app directory", p)
		}
		if !strings.HasSuffix(p, "config.json") {
			t.Errorf("config path %q missing filename", p)
		}
	}
}
