// Package config loads, validates, and saves tremolo configuration. Config
// files are JSON, discovered through XDG base directories, with TREMOLO_*
// environment variables layered on top.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"tremolo.click/internal/audio"
)

// FileLoggingConfig configures the rotating log file.
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`
	Filename   string `json:"filename"` // empty = XDG cache path
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// HistoryConfig configures the playback-event history database.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"` // empty = XDG data path
}

// Config represents tremolo configuration.
type Config struct {
	Volume       float64            `json:"volume"`        // gain multiplier (0.0 to 1.0)
	Backend      string             `json:"backend"`       // auto, malgo, oto, null
	Device       string             `json:"device"`        // output device ID, empty = default
	ExactFormat  bool               `json:"exact_format"`  // reopen device on stream format drift
	SampleRate   int                `json:"sample_rate"`   // target device sample rate
	SampleFormat string             `json:"sample_format"` // u8, s16, s32, f32, ...
	Channels     string             `json:"channels"`      // mono, stereo
	LogLevel     string             `json:"log_level"`     // debug, info, warn, error
	FileLogging  *FileLoggingConfig `json:"file_logging,omitempty"`
	History      *HistoryConfig     `json:"history,omitempty"`
}

// XDGInterface defines the interface for XDG directory operations.
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetCachePath(purpose string) string
	GetDataPath(purpose string) string
	CreateCacheDir(purpose string) error
	CreateDataDir(purpose string) error
}

// ConfigManager handles loading, saving, and validating configuration.
type ConfigManager struct {
	fs  afero.Fs
	xdg XDGInterface
}

// NewConfigManager creates a configuration manager on the real filesystem.
func NewConfigManager() *ConfigManager {
	slog.Debug("creating new config manager")
	return &ConfigManager{
		fs:  afero.NewOsFs(),
		xdg: NewXDGDirs(),
	}
}

// NewConfigManagerWithFs creates a configuration manager on the given
// filesystem, for tests.
func NewConfigManagerWithFs(fs afero.Fs) *ConfigManager {
	return &ConfigManager{
		fs:  fs,
		xdg: NewXDGDirs(),
	}
}

// GetDefaultConfig returns the default configuration.
func (cm *ConfigManager) GetDefaultConfig() *Config {
	defaultConfig := &Config{
		Volume:       1.0,
		Backend:      "auto",
		Device:       "",
		ExactFormat:  false,
		SampleRate:   44100,
		SampleFormat: "s16",
		Channels:     "stereo",
		LogLevel:     "warn",
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		History: &HistoryConfig{
			Enabled: false,
			Path:    "",
		},
	}

	slog.Debug("generated default config",
		"volume", defaultConfig.Volume,
		"backend", defaultConfig.Backend,
		"sample_rate", defaultConfig.SampleRate,
		"sample_format", defaultConfig.SampleFormat,
		"log_level", defaultConfig.LogLevel)

	return defaultConfig
}

// LoadFromFile loads configuration from a specific file.
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.fs, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cm.ValidateConfig(&config); err != nil {
		slog.Error("config validation failed", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"volume", config.Volume,
		"backend", config.Backend)

	return &config, nil
}

// SaveToFile saves configuration to a specific file.
func (cm *ConfigManager) SaveToFile(config *Config, filePath string) error {
	slog.Debug("saving config to file", "file_path", filePath)

	if err := cm.ValidateConfig(config); err != nil {
		slog.Error("cannot save invalid config", "error", err)
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(filePath)
	if err := cm.fs.MkdirAll(dir, 0755); err != nil {
		slog.Error("failed to create config directory", "directory", dir, "error", err)
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		slog.Error("failed to marshal config", "error", err)
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(cm.fs, filePath, data, 0644); err != nil {
		slog.Error("failed to write config file", "file_path", filePath, "error", err)
		return fmt.Errorf("failed to write config file: %w", err)
	}

	slog.Info("config saved successfully", "file_path", filePath)
	return nil
}

// LoadConfig loads configuration using XDG path discovery, falling back to
// defaults when no config file exists.
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	slog.Debug("loading config using XDG path discovery")

	configPaths := cm.xdg.GetConfigPaths("config.json")
	for i, configPath := range configPaths {
		slog.Debug("checking config path", "path_index", i, "path", configPath)
		if exists, _ := afero.Exists(cm.fs, configPath); exists {
			slog.Debug("found config file", "path", configPath)
			return cm.LoadFromFile(configPath)
		}
	}

	slog.Debug("no config file found, using defaults")
	return cm.GetDefaultConfig(), nil
}

// ValidateConfig validates configuration values.
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var errs []string

	if config.Volume < 0.0 || config.Volume > 1.0 {
		errs = append(errs, fmt.Sprintf("volume must be between 0.0 and 1.0, got %f", config.Volume))
	}

	if !cm.IsValidBackend(config.Backend) {
		errs = append(errs, fmt.Sprintf("invalid backend '%s', must be one of: %s",
			config.Backend, strings.Join(cm.GetSupportedBackends(), ", ")))
	}

	if config.SampleRate < 0 {
		errs = append(errs, fmt.Sprintf("sample_rate must be >= 0, got %d", config.SampleRate))
	}

	if config.SampleFormat != "" {
		if _, err := audio.ParseSampleFormat(config.SampleFormat); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if config.Channels != "" {
		if _, err := audio.ParseLayout(config.Channels); err != nil {
			errs = append(errs, err.Error())
		}
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if config.LogLevel != "" {
		valid := false
		for _, level := range validLogLevels {
			if config.LogLevel == level {
				valid = true
				break
			}
		}
		if !valid {
			errs = append(errs, fmt.Sprintf("invalid log level '%s', must be one of: %s",
				config.LogLevel, strings.Join(validLogLevels, ", ")))
		}
	}

	if fl := config.FileLogging; fl != nil {
		if fl.MaxSizeMB < 0 {
			errs = append(errs, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fl.MaxSizeMB))
		}
		if fl.MaxBackups < 0 {
			errs = append(errs, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fl.MaxBackups))
		}
		if fl.MaxAgeDays < 0 {
			errs = append(errs, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fl.MaxAgeDays))
		}
	}

	if len(errs) > 0 {
		errMsg := strings.Join(errs, "; ")
		slog.Error("config validation failed", "errors", errMsg)
		return fmt.Errorf("config validation failed: %s", errMsg)
	}

	slog.Debug("config validation passed")
	return nil
}

// MergeConfigs merges two configurations, with non-zero override fields
// taking precedence.
func (cm *ConfigManager) MergeConfigs(base, override *Config) *Config {
	slog.Debug("merging configurations")

	merged := *base

	if override.Volume != 0.0 {
		merged.Volume = override.Volume
	}
	if override.Backend != "" {
		merged.Backend = override.Backend
	}
	if override.Device != "" {
		merged.Device = override.Device
	}
	if override.ExactFormat {
		merged.ExactFormat = true
	}
	if override.SampleRate != 0 {
		merged.SampleRate = override.SampleRate
	}
	if override.SampleFormat != "" {
		merged.SampleFormat = override.SampleFormat
	}
	if override.Channels != "" {
		merged.Channels = override.Channels
	}
	if override.LogLevel != "" {
		merged.LogLevel = override.LogLevel
	}
	if override.FileLogging != nil {
		merged.FileLogging = override.FileLogging
	}
	if override.History != nil {
		merged.History = override.History
	}

	slog.Debug("configurations merged successfully")
	return &merged
}

// ApplyEnvironmentOverrides applies TREMOLO_* environment variables on top
// of config.
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	slog.Debug("applying environment variable overrides")

	result := *config

	if volStr := os.Getenv("TREMOLO_VOLUME"); volStr != "" {
		if vol, err := strconv.ParseFloat(volStr, 64); err == nil {
			result.Volume = vol
			slog.Debug("applied volume override from environment", "value", vol)
		} else {
			slog.Warn("invalid TREMOLO_VOLUME environment variable", "value", volStr, "error", err)
		}
	}

	if backend := os.Getenv("TREMOLO_BACKEND"); backend != "" {
		if cm.IsValidBackend(backend) {
			result.Backend = backend
			slog.Debug("applied backend override from environment", "value", backend)
		} else {
			slog.Warn("invalid TREMOLO_BACKEND environment variable", "value", backend)
		}
	}

	if device := os.Getenv("TREMOLO_DEVICE"); device != "" {
		result.Device = device
		slog.Debug("applied device override from environment", "value", device)
	}

	if exactStr := os.Getenv("TREMOLO_EXACT"); exactStr != "" {
		if exact, err := strconv.ParseBool(exactStr); err == nil {
			result.ExactFormat = exact
			slog.Debug("applied exact-format override from environment", "value", exact)
		} else {
			slog.Warn("invalid TREMOLO_EXACT environment variable", "value", exactStr, "error", err)
		}
	}

	if rateStr := os.Getenv("TREMOLO_SAMPLE_RATE"); rateStr != "" {
		if rate, err := strconv.Atoi(rateStr); err == nil && rate > 0 {
			result.SampleRate = rate
			slog.Debug("applied sample rate override from environment", "value", rate)
		} else {
			slog.Warn("invalid TREMOLO_SAMPLE_RATE environment variable", "value", rateStr)
		}
	}

	if logLevel := os.Getenv("TREMOLO_LOG_LEVEL"); logLevel != "" {
		result.LogLevel = logLevel
		slog.Debug("applied log level override from environment", "value", logLevel)
	}

	slog.Debug("environment overrides applied")
	return &result
}

// TargetFormat translates the configured format fields into an
// audio.Format, falling back to defaults for empty fields.
func (cm *ConfigManager) TargetFormat(config *Config) (audio.Format, error) {
	format := audio.Format{
		SampleRate:   44100,
		Layout:       audio.LayoutStereo,
		SampleFormat: audio.SampleFormatS16,
	}

	if config.SampleRate > 0 {
		format.SampleRate = config.SampleRate
	}
	if config.SampleFormat != "" {
		sf, err := audio.ParseSampleFormat(config.SampleFormat)
		if err != nil {
			return audio.Format{}, err
		}
		format.SampleFormat = sf
	}
	if config.Channels != "" {
		layout, err := audio.ParseLayout(config.Channels)
		if err != nil {
			return audio.Format{}, err
		}
		format.Layout = layout
	}

	return format, nil
}

// ResolveLogFilePath resolves the log file path, defaulting to the XDG
// cache directory when filename is empty.
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}
	return filepath.Join(cm.xdg.GetCachePath("logs"), "tremolo.log")
}

// ResolveHistoryPath resolves the history database path, defaulting to the
// XDG data directory when path is empty.
func (cm *ConfigManager) ResolveHistoryPath(path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(cm.xdg.GetDataPath(""), "history.db")
}

// GetSupportedBackends returns the supported backend names.
func (cm *ConfigManager) GetSupportedBackends() []string {
	return []string{"auto", "malgo", "oto", "null"}
}

// IsValidBackend checks whether a backend name is supported. The empty
// string is valid and defaults to auto.
func (cm *ConfigManager) IsValidBackend(backend string) bool {
	if backend == "" {
		return true
	}
	for _, supported := range cm.GetSupportedBackends() {
		if backend == supported {
			return true
		}
	}
	return false
}
