package cli

import (
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"tremolo.click/internal/config"
)

// setupLogging configures slog: stderr at the configured level, plus a
// rotating debug-level file when file logging is enabled. The two outputs
// filter independently through a SplitHandler.
func (c *CLI) setupLogging(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelWarn
	}

	stderrHandler := slog.NewTextHandler(c.rootCmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})

	if cfg.FileLogging == nil || !cfg.FileLogging.Enabled {
		slog.SetDefault(slog.New(stderrHandler))
		return
	}

	logFilePath := c.configManager.ResolveLogFilePath(cfg.FileLogging.Filename)
	logDir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		// Keep stderr logging rather than failing the command.
		slog.Error("failed to create log directory", "path", logDir, "error", err)
		slog.SetDefault(slog.New(stderrHandler))
		return
	}

	fileWriter := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    cfg.FileLogging.MaxSizeMB,
		MaxBackups: cfg.FileLogging.MaxBackups,
		MaxAge:     cfg.FileLogging.MaxAgeDays,
		Compress:   cfg.FileLogging.Compress,
	}
	fileHandler := slog.NewTextHandler(fileWriter, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	slog.SetDefault(slog.New(NewSplitHandler(stderrHandler, fileHandler)))
	slog.Debug("file logging enabled", "path", logFilePath, "stderr_level", level.String())
}
