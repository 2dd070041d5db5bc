package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hearthnet/hearth/client/internal/config"
)

// Version is set via ldflags during build.
var Version = "dev"

var (
	configPath string
	envFile    string
	level      = new(slog.LevelVar)
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hearth-client",
	Short: "Headless client for hearth-server",
	Long: `hearth-client connects to hearth-server the way a browser tab does.

  listen   stay connected and print every event as a JSON line
  notify   ask the server to announce an event (write-path services)
  stats    summarise the server's /metrics endpoint`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Events go to stdout; logs stay on stderr.
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("env file not loaded", "path", envFile, "err", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file (defaults apply when it does not exist)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "load environment variables from this file when it exists")

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(statsCmd)
}

// loadConfig reads --config. A missing file falls back to defaults and
// reports fromFile=false so callers skip the watcher.
func loadConfig() (cfg *config.Config, fromFile bool, err error) {
	if _, statErr := os.Stat(configPath); errors.Is(statErr, fs.ErrNotExist) {
		slog.Info("config file not found, using defaults", "path", configPath)
		cfg = config.Default()
		level.Set(cfg.Log.SlogLevel())
		return cfg, false, nil
	}
	cfg, err = config.Load(configPath)
	if err != nil {
		return nil, false, err
	}
	level.Set(cfg.Log.SlogLevel())
	return cfg, true, nil
}
