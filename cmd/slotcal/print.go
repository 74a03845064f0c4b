package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"slotcal/internal/grid"
	appLog "slotcal/internal/log"
	"slotcal/internal/model"
	"slotcal/internal/textview"
)

func printCmd(configPath *string) *cobra.Command {
	var (
		months  int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Fetch the current timeslots once and print the calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			if months <= 0 {
				months = cfg.VisibleMonths
			}
			cfg.RefreshCron = ""

			v, err := newView(cfg, loc)
			if err != nil {
				return err
			}
			defer v.Close()

			ctx, cancel := signalContext()
			defer cancel()
			if err := v.Start(ctx); err != nil {
				return err
			}

			select {
			case <-v.Synced():
			case <-time.After(timeout):
				return errors.New("timed out waiting for timeslots")
			case <-ctx.Done():
				return ctx.Err()
			}

			st := v.State()
			today := model.StartOfDay(time.Now().In(loc))
			opts := grid.Options{
				FirstMonth: today,
				Months:     months,
				WeekStart:  cfg.Weekday(),
				Today:      today,
				Disabled:   st.Disabled,
				Location:   loc,
			}
			if cfg.MinDateToday {
				opts.MinDate = today
			}
			out := textview.Render(grid.Build(st.Events, opts), grid.Weekdays(cfg.Weekday()), st.Events)
			fmt.Fprint(cmd.OutOrStdout(), out)
			if len(st.Diagnostics) > 0 {
				appLog.Warn("some records were skipped", "count", len(st.Diagnostics))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&months, "months", 0, "Number of months to print (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "How long to wait for the first snapshot")
	return cmd
}
