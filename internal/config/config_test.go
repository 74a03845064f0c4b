package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != defaultListen || cfg.RefetchDelay != defaultRefetchDelay || cfg.DragThrottle != defaultDragThrottle {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config perms %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.RefetchDelay != cfg.RefetchDelay || again.ServiceURL != cfg.ServiceURL {
		t.Fatalf("round trip changed config: %+v", again)
	}
}

func TestLoadNormalizesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
timezone: Europe/Berlin
week_start: SUNDAY
visible_months: 99
drag_throttle: 50ms
blackouts:
  - name: weekend
    rrule: FREQ=WEEKLY;BYDAY=SA,SU
    start: "2025-01-04"
basic_auth:
  username: ""
  password: ""
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WeekStart != "sunday" || cfg.Weekday() != time.Sunday {
		t.Fatalf("week start %q", cfg.WeekStart)
	}
	if cfg.VisibleMonths != maxMonths {
		t.Fatalf("visible months not capped: %d", cfg.VisibleMonths)
	}
	if cfg.DragThrottle != 50*time.Millisecond || cfg.RefetchDelay != defaultRefetchDelay {
		t.Fatalf("durations %v %v", cfg.DragThrottle, cfg.RefetchDelay)
	}
	if cfg.BasicAuth != nil {
		t.Fatalf("empty basic auth should be dropped")
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	rules, err := cfg.BlackoutRules(loc)
	if err != nil {
		t.Fatalf("BlackoutRules: %v", err)
	}
	if len(rules) != 1 || rules[0].Start.Weekday() != time.Saturday || rules[0].Start.Location() != loc {
		t.Fatalf("unexpected rules %+v", rules)
	}
}

func TestBlackoutRulesRejectIncompleteEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Blackouts = []BlackoutConfig{{Name: "x"}}
	if _, err := cfg.BlackoutRules(time.UTC); err == nil {
		t.Fatalf("expected error for missing rrule")
	}
	cfg.Blackouts = []BlackoutConfig{{Name: "x", RRule: "FREQ=DAILY", Start: "April"}}
	if _, err := cfg.BlackoutRules(time.UTC); err == nil {
		t.Fatalf("expected error for bad start")
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFeedsValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BusyFeeds = []FeedConfig{
		{ID: "me", URL: "https://cal.example.com/me.ics"},
		{ID: "team", Name: "Team", URL: "https://cal.example.com/team.ics"},
	}
	cfg.Normalize()
	feeds, err := cfg.Feeds()
	if err != nil {
		t.Fatalf("Feeds: %v", err)
	}
	if len(feeds) != 2 || feeds[0].Name != "me" || feeds[1].Name != "Team" {
		t.Fatalf("unexpected feeds %+v", feeds)
	}

	cfg.BusyFeeds = append(cfg.BusyFeeds, FeedConfig{ID: "me", URL: "https://other.example.com/x.ics"})
	if _, err := cfg.Feeds(); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	cfg.BusyFeeds = []FeedConfig{{ID: "nourl"}}
	if _, err := cfg.Feeds(); err == nil {
		t.Fatalf("expected missing url error")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	cfg.RefreshCron = "every five minutes"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected bad cron spec error")
	}
	cfg.RefreshCron = ""
	cfg.Timezone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected bad timezone error")
	}
}
