package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"slotcal/internal/config"
	appLog "slotcal/internal/log"
)

const version = "0.3.0"

func main() {
	if err := newRoot().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "slotcal",
		Short:         "Drag-to-reschedule timeslot calendar",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			appLog.Info("slotcal starting", "version", version, "command", cmd.Name())
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/slotcal/config.yaml", "Path to config file")

	// Running slotcal without a subcommand serves.
	serve := serveCmd(&configPath)
	root.RunE = serve.RunE
	root.Flags().AddFlag(serve.Flags().Lookup("listen"))

	root.AddCommand(
		serve,
		printCmd(&configPath),
		snapshotCmd(&configPath),
		devServerCmd(),
	)
	return root
}

// loadConfig loads the config file and applies its log level.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", path)
		return nil, err
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", path)
		return nil, err
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
