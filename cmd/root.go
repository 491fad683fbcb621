package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/audiolibrelab/whistle/internal/config"
)

var (
	cfg          *config.Config
	cfgFile      string
	logFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "whistle",
	Short: "Record a whistled tune and submit it for identification",
	Long: `Whistle records a short whistled melody from the microphone, lets you
pick the genre you think it belongs to, add comments, and submits the
recording for identification.

Run without arguments to start the interactive flow.`,
	Args: cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Use default config path if not specified and it exists
		path := cfgFile
		if path == "" {
			def := defaultConfigPath()
			if _, err := os.Stat(def); err == nil {
				path = def
			}
		}

		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if logFile != "" {
			cfg.Log.File = logFile
		}
		setupLogging(verboseLevel, cfg.Log)
		slog.Debug("Configuration loaded", "config", path, "artifact", cfg.ArtifactPath())

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/whistle.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file (rotated)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(genresCmd)
	rootCmd.AddCommand(submissionsCmd)
	rootCmd.AddCommand(serveCmd)
}

func defaultConfigPath() string {
	return os.ExpandEnv("$HOME/.config/whistle.yaml")
}

// setupLogging configures slog based on the verbose level and optional log file
func setupLogging(level int, logCfg config.LogConfig) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	default:
		slogLevel = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if logCfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(logCfg.File), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot create log directory: %v\n", err)
		} else {
			out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename:   logCfg.File,
				MaxSize:    logCfg.MaxSize,
				MaxBackups: logCfg.MaxBackups,
				MaxAge:     logCfg.MaxAge,
				Compress:   logCfg.Compress,
			})
		}
	}

	// Configure text handler for clean terminal output
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}
