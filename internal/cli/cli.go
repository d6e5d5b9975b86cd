// Package cli is the tremolo command-line interface: play audio files
// through the playback engine, list output devices, and inspect playback
// history.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"tremolo.click/internal/audio"
	"tremolo.click/internal/backend"
	"tremolo.click/internal/config"
	"tremolo.click/internal/engine"
	"tremolo.click/internal/history"
)

const Version = "0.3.0"

// CLI wires configuration, the backend factory, and the playback engine
// behind a cobra command tree.
type CLI struct {
	rootCmd        *cobra.Command
	fs             afero.Fs
	configManager  *config.ConfigManager
	backendFactory backend.Factory
}

// NewCLI creates a CLI on the real filesystem and backends.
func NewCLI() *CLI {
	return newCLI(afero.NewOsFs(), backend.NewFactory())
}

// NewCLIWithDependencies creates a CLI with an injected filesystem and
// backend factory, for tests.
func NewCLIWithDependencies(fs afero.Fs, factory backend.Factory) *CLI {
	return newCLI(fs, factory)
}

func newCLI(fs afero.Fs, factory backend.Factory) *CLI {
	slog.Debug("creating new CLI instance")

	c := &CLI{
		fs:             fs,
		configManager:  config.NewConfigManagerWithFs(fs),
		backendFactory: factory,
	}

	rootCmd := &cobra.Command{
		Use:   "tremolo [files...]",
		Short: "Real-time audio playback engine",
		Long: "Tremolo plays audio files through a real-time device callback, " +
			"tracking the audible play head and following stream format changes " +
			"by reopening the output device.",
		Args:          cobra.ArbitraryArgs,
		RunE:          c.runPlayE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("volume", "", "Gain multiplier (0.0 to 1.0)")
	rootCmd.PersistentFlags().String("backend", "", "Audio backend (auto, malgo, oto, null)")
	rootCmd.PersistentFlags().String("device", "", "Output device ID")
	rootCmd.PersistentFlags().Bool("exact", false, "Keep buffers byte-exact and reopen the device on format drift")
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(c.newDevicesCommand())
	rootCmd.AddCommand(c.newHistoryCommand())

	c.rootCmd = rootCmd
	return c
}

// Run executes the CLI with the given arguments.
func (c *CLI) Run(args []string) int {
	c.rootCmd.SetArgs(args)
	if err := c.rootCmd.Execute(); err != nil {
		c.rootCmd.PrintErrf("Error: %v\n", err)
		return 1
	}
	return 0
}

// SetOutput redirects command output, for tests.
func (c *CLI) SetOutput(out, errOut io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(errOut)
}

// loadConfig resolves the effective configuration: file, environment,
// then command-line flags, in increasing precedence.
func (c *CLI) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	volumeStr, _ := cmd.Flags().GetString("volume")
	backendFlag, _ := cmd.Flags().GetString("backend")
	deviceFlag, _ := cmd.Flags().GetString("device")
	exactFlag, _ := cmd.Flags().GetBool("exact")

	if volumeStr != "" {
		vol, err := strconv.ParseFloat(volumeStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid volume value '%s': %w", volumeStr, err)
		}
		if vol < 0.0 || vol > 1.0 {
			return nil, fmt.Errorf("volume must be between 0.0 and 1.0, got %f", vol)
		}
	}

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = c.configManager.LoadFromFile(configFile)
		if err != nil {
			slog.Warn("config file not found, using defaults", "file", configFile, "error", err)
			cfg = c.configManager.GetDefaultConfig()
		}
	} else {
		cfg, err = c.configManager.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	cfg = c.configManager.ApplyEnvironmentOverrides(cfg)

	if volumeStr != "" {
		vol, _ := strconv.ParseFloat(volumeStr, 64)
		cfg.Volume = vol
	}
	if backendFlag != "" {
		cfg.Backend = backendFlag
	}
	if deviceFlag != "" {
		cfg.Device = deviceFlag
	}
	if exactFlag {
		cfg.ExactFormat = true
	}

	if err := c.configManager.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runPlayE is the root command: decode the given files and play them.
func (c *CLI) runPlayE(cmd *cobra.Command, args []string) error {
	if version, _ := cmd.Flags().GetBool("version"); version {
		cmd.Printf("tremolo version %s\n", Version)
		return nil
	}

	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	c.setupLogging(cfg)

	if len(args) == 0 {
		return cmd.Help()
	}

	clips, err := c.decodeFiles(args)
	if err != nil {
		return err
	}

	targetFormat := clips[0].pcm.Format

	b, err := c.backendFactory.CreateBackend(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to create audio backend '%s': %w", cfg.Backend, err)
	}
	defer b.Close()

	player := engine.NewPlayer(b, engine.PlayerConfig{
		DeviceID:       cfg.Device,
		TargetFormat:   targetFormat,
		UseExactFormat: cfg.ExactFormat,
		Gain:           cfg.Volume,
	})

	source := audio.NewQueueSource(0)
	if err := player.Attach(source); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	defer player.Detach()

	var recorder *history.Recorder
	if cfg.History != nil && cfg.History.Enabled {
		dbPath := c.configManager.ResolveHistoryPath(cfg.History.Path)
		db, err := history.NewDatabase(dbPath)
		if err != nil {
			slog.Warn("history disabled: database unavailable", "path", dbPath, "error", err)
		} else {
			recorder = history.NewRecorder(db)
			defer recorder.Close()
		}
	}

	done := make(chan struct{})
	go c.consumeEvents(cmd, player, recorder, done)

	for _, clip := range clips {
		if !clip.pcm.Format.Equal(targetFormat) && !cfg.ExactFormat {
			slog.Warn("skipping file: format differs and exact mode is off",
				"file", clip.item.Path,
				"format", clip.pcm.Format.String(),
				"device_format", targetFormat.String())
			continue
		}
		for _, buf := range audio.ChunkPCM(clip.pcm, clip.item, 0) {
			if err := source.Push(buf); err != nil {
				slog.Error("failed to queue audio", "file", clip.item.Path, "error", err)
				break
			}
		}
	}
	source.CloseInput()

	<-done
	return nil
}

// consumeEvents drains player events until the end-of-stream transition,
// printing progress and feeding the history recorder.
func (c *CLI) consumeEvents(cmd *cobra.Command, player *engine.Player, recorder *history.Recorder, done chan struct{}) {
	defer close(done)
	for {
		e, err := player.Event(true)
		if err != nil {
			return
		}

		item, pos := player.Position()
		itemPath := ""
		if item != nil {
			itemPath = item.Path
		}
		if recorder != nil {
			recorder.Record(e.String(), itemPath, pos)
		}

		switch e {
		case engine.EventNowPlaying:
			if item == nil {
				return
			}
			cmd.Printf("Now playing: %s\n", itemPath)
		case engine.EventBufferUnderrun:
			slog.Warn("buffer underrun")
		case engine.EventDeviceReopened:
			cmd.Printf("Device reopened: %s\n", player.DeviceFormat())
		case engine.EventDeviceReopenError:
			cmd.PrintErrln("Device reopen failed; playback stalled")
		}
	}
}

type decodedClip struct {
	item *audio.Item
	pcm  *audio.PCM
}

// decodeFiles decodes every argument up front so format problems surface
// before the device opens.
func (c *CLI) decodeFiles(paths []string) ([]decodedClip, error) {
	registry := audio.NewDefaultRegistry()

	var clips []decodedClip
	for _, path := range paths {
		f, err := c.fs.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		pcm, err := registry.DecodeFile(path, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		clips = append(clips, decodedClip{
			item: &audio.Item{Path: path},
			pcm:  pcm,
		})
		slog.Debug("decoded file",
			"path", path,
			"format", pcm.Format.String(),
			"duration", pcm.Duration())
	}
	if len(clips) == 0 {
		return nil, fmt.Errorf("no playable files")
	}
	return clips, nil
}

// newDevicesCommand lists playback devices of the selected backend.
func (c *CLI) newDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio output devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			c.setupLogging(cfg)

			b, err := c.backendFactory.CreateBackend(cfg.Backend)
			if err != nil {
				return fmt.Errorf("failed to create audio backend '%s': %w", cfg.Backend, err)
			}
			defer b.Close()

			devices, err := b.Devices()
			if err != nil {
				return fmt.Errorf("failed to enumerate devices: %w", err)
			}

			cmd.Printf("Backend: %s\n", b.Name())
			for _, d := range devices {
				marker := " "
				if d.IsDefault {
					marker = "*"
				}
				cmd.Printf("%s %s\t%s\n", marker, d.ID, d.Name)
			}
			return nil
		},
	}
}

// newHistoryCommand prints recent playback events.
func (c *CLI) newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent playback events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			c.setupLogging(cfg)

			limit, _ := cmd.Flags().GetInt("limit")

			var histCfg config.HistoryConfig
			if cfg.History != nil {
				histCfg = *cfg.History
			}
			dbPath := c.configManager.ResolveHistoryPath(histCfg.Path)
			db, err := history.NewDatabase(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open history database: %w", err)
			}
			recorder := history.NewRecorder(db)
			defer recorder.Close()

			entries, err := recorder.Recent(limit)
			if err != nil {
				return fmt.Errorf("failed to read history: %w", err)
			}
			if len(entries) == 0 {
				cmd.Println("No playback history")
				return nil
			}
			for _, e := range entries {
				cmd.Printf("%s  %-18s %-40s %.2f\n",
					e.Timestamp.Format("2006-01-02 15:04:05"),
					e.Event, e.Item, e.Position)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of entries to show")
	return cmd
}

// Main is the process entry point shared by the binaries.
func Main() int {
	cli := NewCLI()
	return cli.Run(os.Args[1:])
}
