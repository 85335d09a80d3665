// Package cli implements the profilemerge CLI commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/demispk444/profilemerge/internal/config"
)

var (
	configPath string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "profilemerge",
	Short: "Merge browser profile data across browsers",
	Long: "Extract bookmarks, history and logins from Firefox, Chromium and " +
		"Netscape-export profiles into one dataset, detect duplicates, and " +
		"merge everything under a conflict-resolution strategy. Corrupted " +
		"SQLite stores are salvaged on the way in.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $PROFILEMERGE_CONFIG or built-in defaults)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

func loadConfig() *config.Config {
	path := configPath
	if path == "" {
		path = os.Getenv("PROFILEMERGE_CONFIG")
	}
	if path == "" {
		return config.Default()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		exitErr("load config", err)
	}
	return cfg
}

// newLogger builds the JSON logger every command hands to the pipeline.
// Logs go to stderr so stdout stays parseable.
func newLogger(cfg *config.Config) *slog.Logger {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
