// Package cmd holds the harvest CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/use-agent/harvest/config"
)

// Version is reported in persisted results.
var Version string

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "harvest collects the comments of an infinite-scroll note page with a headless browser.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger(config.LogConfig{Level: logLevel, Format: logFormat})
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "text or json")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context, so an interrupted scrape still closes the browser.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogger sends logs to stderr so stdout stays clean for previews.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
