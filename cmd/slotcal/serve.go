package main

import (
	"time"

	"github.com/spf13/cobra"

	"slotcal/internal/config"
	"slotcal/internal/ics"
	appLog "slotcal/internal/log"
	"slotcal/internal/remote"
	"slotcal/internal/view"
	"slotcal/internal/web"
)

// newView builds the calendar view for cfg. The view is not started.
func newView(cfg *config.Config, loc *time.Location) (*view.View, error) {
	blackouts, err := cfg.BlackoutRules(loc)
	if err != nil {
		return nil, err
	}
	feeds, err := cfg.Feeds()
	if err != nil {
		return nil, err
	}

	opts := view.Options{
		URL:          cfg.ServiceURL,
		UserID:       cfg.UserID,
		ProjectID:    cfg.ProjectID,
		Location:     loc,
		RefetchDelay: cfg.RefetchDelay,
		Refresh:      cfg.RefreshCron,
		Blackouts:    blackouts,
		MinDateToday: cfg.MinDateToday,
	}
	if len(feeds) > 0 {
		opts.Feeds = ics.NewFeeds(ics.NewFetcher(cfg.CacheDir), feeds, loc)
	}
	return view.New(remote.NewClient(), opts), nil
}

func serveCmd(configPath *string) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the calendar UI and keep it in sync with the timeslot service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			appLog.Info("effective config",
				"listen", cfg.Listen,
				"timezone", cfg.Timezone,
				"service_url", cfg.ServiceURL,
				"visible_months", cfg.VisibleMonths,
				"refresh", cfg.RefreshCron,
				"refetch_delay", cfg.RefetchDelay.String(),
				"drag_throttle", cfg.DragThrottle.String(),
				"blackouts", len(cfg.Blackouts),
				"busy_feeds", len(cfg.BusyFeeds),
			)

			v, err := newView(cfg, loc)
			if err != nil {
				return err
			}
			defer v.Close()

			ctx, cancel := signalContext()
			defer cancel()

			if err := v.Start(ctx); err != nil {
				// The UI stays up read-only; the refresh schedule reconnects.
				appLog.Warn("timeslot service unavailable, starting offline", "err", err)
			}

			srv := web.NewServer(cfg, v, loc)
			if err := srv.Run(ctx); err != nil {
				appLog.Error("http server failed", err)
				return err
			}
			appLog.Info("slotcal exiting")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
