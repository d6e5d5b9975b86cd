package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const appDir = "tremolo"

// XDGDirs provides XDG Base Directory compliant paths for tremolo.
type XDGDirs struct{}

// NewXDGDirs creates a new XDG directory manager.
func NewXDGDirs() *XDGDirs {
	slog.Debug("creating new XDG directory manager")
	return &XDGDirs{}
}

// GetConfigPaths returns prioritized paths where config files can be found:
// user config dir first, then system config dirs.
func (x *XDGDirs) GetConfigPaths(filename string) []string {
	var paths []string

	userConfigPath := filepath.Join(xdg.ConfigHome, appDir)
	if filename != "" {
		userConfigPath = filepath.Join(userConfigPath, filename)
	}
	paths = append(paths, userConfigPath)

	for _, configDir := range xdg.ConfigDirs {
		systemConfigPath := filepath.Join(configDir, appDir)
		if filename != "" {
			systemConfigPath = filepath.Join(systemConfigPath, filename)
		}
		paths = append(paths, systemConfigPath)
	}

	slog.Debug("generated config paths",
		"filename", filename,
		"total_paths", len(paths),
		"user_path", userConfigPath)

	return paths
}

// GetCachePath returns the cache directory path for a specific purpose.
func (x *XDGDirs) GetCachePath(purpose string) string {
	baseDir := appDir
	if purpose != "" {
		baseDir = filepath.Join(baseDir, purpose)
	}

	cachePath := filepath.Join(xdg.CacheHome, baseDir)
	slog.Debug("generated cache path", "purpose", purpose, "cache_path", cachePath)
	return cachePath
}

// GetDataPath returns the data directory path for a specific purpose.
func (x *XDGDirs) GetDataPath(purpose string) string {
	baseDir := appDir
	if purpose != "" {
		baseDir = filepath.Join(baseDir, purpose)
	}

	dataPath := filepath.Join(xdg.DataHome, baseDir)
	slog.Debug("generated data path", "purpose", purpose, "data_path", dataPath)
	return dataPath
}

// CreateCacheDir creates the cache directory for a specific purpose.
func (x *XDGDirs) CreateCacheDir(purpose string) error {
	cachePath := x.GetCachePath(purpose)
	slog.Debug("creating cache directory", "path", cachePath)

	if err := os.MkdirAll(cachePath, 0755); err != nil {
		slog.Error("failed to create cache directory", "path", cachePath, "error", err)
		return err
	}
	return nil
}

// CreateDataDir creates the data directory for a specific purpose.
func (x *XDGDirs) CreateDataDir(purpose string) error {
	dataPath := x.GetDataPath(purpose)
	slog.Debug("creating data directory", "path", dataPath)

	if err := os.MkdirAll(dataPath, 0755); err != nil {
		slog.Error("failed to create data directory", "path", dataPath, "error", err)
		return err
	}
	return nil
}
