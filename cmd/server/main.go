package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/focusrelay/internal/app"
	"github.com/vovakirdan/focusrelay/internal/config"
	"github.com/vovakirdan/focusrelay/internal/log"
)

const (
	Version = "0.1.0"
	appName = "focusrelay"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	serve := func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), configPath, overrides)
	}

	cmd := &cobra.Command{
		Use:          appName,
		Short:        "Real-time meeting focus relay",
		Long:         "Relays participant focus scores, chat and signals between meeting members over websockets.",
		SilenceUsage: true,
		RunE:         serve,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	flags.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.DurationVar(&overrides.AggregationWindow, "window", 0, "Aggregation window for average focus")
	flags.StringVar(&overrides.NATSURL, "nats-url", "", "NATS server URL; empty disables the snapshot feed and ingest")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the relay server (default)",
		RunE:  serve,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func run(parent context.Context, configPath string, overrides config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	bootLog := log.New("info")
	cfg, path, err := config.Load(bootLog, configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(overrides)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	logger := log.New(cfg.LogLevel)
	logger.Info().
		Str("config", path).
		Str("addr", cfg.Addr).
		Dur("window", cfg.AggregationWindow).
		Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		return err
	}
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
