package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	appLog "slotcal/internal/log"
	"slotcal/internal/remote"
)

func devServerCmd() *cobra.Command {
	var listen, seedPath string
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory timeslot service for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := loadSeed(seedPath, time.Now())
			if err != nil {
				return err
			}

			mux := http.NewServeMux()
			mux.Handle("/ws", remote.NewDevServer(seed))
			srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

			ctx, cancel := signalContext()
			defer cancel()
			go func() {
				<-ctx.Done()
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				_ = srv.Shutdown(shutdownCtx)
			}()

			appLog.Info("dev timeslot service listening", "url", "ws://"+listen+"/ws", "timeslots", len(seed))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8090", "Listen address")
	cmd.Flags().StringVar(&seedPath, "seed", "", "JSON file with an array of timeslots (default: demo data)")
	return cmd
}

func loadSeed(path string, now time.Time) ([]remote.Timeslot, error) {
	if path == "" {
		return demoSeed(now), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var slots []remote.Timeslot
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return slots, nil
}

// demoSeed spreads a few slots over the coming weeks.
func demoSeed(now time.Time) []remote.Timeslot {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	at := func(days, hour int) time.Time { return day.AddDate(0, 0, days).Add(time.Duration(hour) * time.Hour) }
	ada := &remote.User{ID: "u1", FirstName: "Ada", LastName: "Lovelace"}
	return []remote.Timeslot{
		{ID: "demo-1", Title: "Studio shoot", Status: "available", StartTime: at(2, 9), EndTime: at(4, 18), User: ada},
		{ID: "demo-2", Title: "Location scout", Status: "pending", StartTime: at(6, 10), EndTime: at(6, 16), User: ada},
		{ID: "demo-3", Title: "Edit week", Status: "available", StartTime: at(9, 9), EndTime: at(15, 17), Color: "#8b5cf6"},
		{ID: "demo-4", Title: "Holiday", Status: "busy", StartTime: at(18, 0), EndTime: at(21, 0), Notes: "out of office"},
		{ID: "demo-5", Title: "Review", StartTime: at(11, 14), EndTime: at(11, 15)},
	}
}
