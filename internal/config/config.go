package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"slotcal/internal/ics"
	"slotcal/internal/model"
	"slotcal/internal/reconcile"
)

// BlackoutConfig describes a recurring local unavailability, merged into
// the disabled-date index next to busy events from the service.
type BlackoutConfig struct {
	Name  string `yaml:"name" json:"name"`
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
	// RRule is an RFC 5545 rule without DTSTART, e.g. "FREQ=WEEKLY;BYDAY=SA,SU".
	RRule string `yaml:"rrule" json:"rrule"`
	// Start is the first date of the recurrence (YYYY-MM-DD).
	Start string `yaml:"start,omitempty" json:"start,omitempty"`
	Days  int    `yaml:"days,omitempty" json:"days,omitempty"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// FeedConfig is an external ICS calendar whose events block dates.
type FeedConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	URL  string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as display zone (e.g. "Europe/Berlin").
	// Whole-day arithmetic happens in this zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// ServiceURL is the websocket endpoint of the timeslot service.
	ServiceURL string `yaml:"service_url" json:"service_url"`
	UserID     string `yaml:"user_id" json:"user_id"`
	ProjectID  string `yaml:"project_id" json:"project_id"`

	// VisibleMonths is the number of month grids rendered from the current month.
	VisibleMonths int `yaml:"visible_months" json:"visible_months"`

	// MinDateToday disables dates before today.
	MinDateToday bool `yaml:"min_date_today" json:"min_date_today"`

	// RefreshCron is a cron schedule for periodic resync. Empty disables it.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// RefetchDelay separates a relocate request from the following refetch.
	RefetchDelay time.Duration `yaml:"refetch_delay" json:"refetch_delay"`

	// DragThrottle is the minimum interval between same-date projection updates.
	DragThrottle time.Duration `yaml:"drag_throttle" json:"drag_throttle"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Blackouts []BlackoutConfig `yaml:"blackouts" json:"blackouts"`

	// BusyFeeds are ICS calendars imported as busy events.
	BusyFeeds []FeedConfig `yaml:"busy_feeds" json:"busy_feeds"`

	// CacheDir keeps the last good body of every feed. Empty disables it.
	CacheDir string `yaml:"cache_dir,omitempty" json:"cache_dir,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen       = "127.0.0.1:8080"
	defaultTimezone     = "UTC"
	defaultServiceURL   = "ws://127.0.0.1:8090/ws"
	defaultMonths       = 3
	maxMonths           = 24
	defaultRefresh      = "*/5 * * * *"
	defaultRefetchDelay = 500 * time.Millisecond
	defaultDragThrottle = 32 * time.Millisecond
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		Timezone:      defaultTimezone,
		WeekStart:     "monday",
		ServiceURL:    defaultServiceURL,
		VisibleMonths: defaultMonths,
		MinDateToday:  true,
		RefreshCron:   defaultRefresh,
		RefetchDelay:  defaultRefetchDelay,
		DragThrottle:  defaultDragThrottle,
		LogLevel:      "info",
		Blackouts:     []BlackoutConfig{},
		BusyFeeds:     []FeedConfig{},
		BasicAuth:     nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	if c.ServiceURL == "" {
		c.ServiceURL = defaultServiceURL
	}
	if c.VisibleMonths <= 0 {
		c.VisibleMonths = defaultMonths
	}
	if c.VisibleMonths > maxMonths {
		c.VisibleMonths = maxMonths
	}
	if c.RefetchDelay <= 0 {
		c.RefetchDelay = defaultRefetchDelay
	}
	if c.DragThrottle <= 0 {
		c.DragThrottle = defaultDragThrottle
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Blackouts == nil {
		c.Blackouts = []BlackoutConfig{}
	}
	if c.BusyFeeds == nil {
		c.BusyFeeds = []FeedConfig{}
	}
	for i := range c.BusyFeeds {
		if c.BusyFeeds[i].Name == "" {
			c.BusyFeeds[i].Name = c.BusyFeeds[i].ID
		}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Weekday returns the first day of the week.
func (c *Config) Weekday() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// BlackoutRules converts the blackout entries for loc. Entries without a
// name or rule are rejected.
func (c *Config) BlackoutRules(loc *time.Location) ([]reconcile.Blackout, error) {
	out := make([]reconcile.Blackout, 0, len(c.Blackouts))
	for i, b := range c.Blackouts {
		if b.Name == "" || b.RRule == "" {
			return nil, fmt.Errorf("blackouts[%d]: name and rrule are required", i)
		}
		var start time.Time
		if b.Start != "" {
			t, err := model.ParseDateKey(b.Start, loc)
			if err != nil {
				return nil, fmt.Errorf("blackouts[%d] %s: start: %w", i, b.Name, err)
			}
			start = t
		}
		out = append(out, reconcile.Blackout{
			Name:  b.Name,
			Title: b.Title,
			RRule: b.RRule,
			Start: start,
			Days:  b.Days,
			Color: b.Color,
		})
	}
	return out, nil
}

// Validate checks the fields Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			return fmt.Errorf("refresh %q: %w", c.RefreshCron, err)
		}
	}
	if _, err := c.Feeds(); err != nil {
		return err
	}
	return nil
}

// Feeds validates the busy feed entries. IDs must be unique.
func (c *Config) Feeds() ([]ics.Feed, error) {
	seen := make(map[string]bool, len(c.BusyFeeds))
	out := make([]ics.Feed, 0, len(c.BusyFeeds))
	for i, f := range c.BusyFeeds {
		if f.ID == "" || f.URL == "" {
			return nil, fmt.Errorf("busy_feeds[%d]: id and url are required", i)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("busy_feeds[%d]: duplicate id %q", i, f.ID)
		}
		seen[f.ID] = true
		out = append(out, ics.Feed{ID: f.ID, Name: f.Name, URL: f.URL})
	}
	return out, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions,
// creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".slotcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
