package main

import (
	"context"

	"github.com/spf13/cobra"

	"slotcal/internal/capture"
	appLog "slotcal/internal/log"
)

func snapshotCmd(configPath *string) *cobra.Command {
	var opts capture.Options
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save a PNG of a running calendar page",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if opts.URL == "" {
				opts.URL = "http://" + cfg.Listen + "/calendar"
			}
			if cfg.BasicAuth != nil {
				opts.Username = cfg.BasicAuth.Username
				opts.Password = cfg.BasicAuth.Password
			}
			if err := capture.Snapshot(context.Background(), opts); err != nil {
				appLog.Error("snapshot failed", err, "url", opts.URL)
				return err
			}
			appLog.Info("snapshot written", "path", opts.OutputPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.URL, "url", "", "Calendar page URL (default http://<listen>/calendar)")
	cmd.Flags().StringVarP(&opts.OutputPath, "out", "o", "slotcal.png", "Output PNG path")
	cmd.Flags().IntVar(&opts.Width, "width", capture.DefaultWidth, "Viewport width in pixels")
	cmd.Flags().IntVar(&opts.Height, "height", capture.DefaultHeight, "Viewport height in pixels")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", capture.DefaultTimeout, "Capture timeout")
	return cmd
}
