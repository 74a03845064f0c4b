package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "slotcal/internal/log"
)

const maxFeedBytes = 8 << 20

// Feed is an external calendar whose events block dates, e.g. a
// personal calendar subscription.
type Feed struct {
	ID   string
	Name string
	URL  string
}

// cacheMeta is the validator state stored next to a cached body.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads feeds with conditional requests, keeping the last good
// body on disk so an unreachable feed keeps blocking its dates.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher returns a Fetcher caching under cacheDir. An empty cacheDir
// disables the disk cache.
func NewFetcher(cacheDir string) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

// Fetch returns the body of feed, fresh or cached.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) ([]byte, error) {
	if feed.URL == "" {
		return nil, errors.New("feed URL is empty")
	}

	dir := f.cachePath(feed.URL)
	meta, cached := f.loadCache(dir)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Warn("feed unreachable, using cache", "id", feed.ID, "url", redactURL(feed.URL), "err", err)
			return cached, nil
		}
		return nil, fmt.Errorf("fetch feed %s: %w", feed.ID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
		if err != nil {
			return nil, fmt.Errorf("read feed %s: %w", feed.ID, err)
		}
		meta := cacheMeta{
			URL:          feed.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveCache(dir, meta, body); err != nil {
			appLog.Error("feed cache save failed", err, "id", feed.ID)
		}
		appLog.Debug("feed fetched", "id", feed.ID, "url", redactURL(feed.URL), "bytes", len(body))
		return body, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return nil, fmt.Errorf("feed %s: 304 without cached body", feed.ID)
		}
		appLog.Debug("feed not modified", "id", feed.ID)
		return cached, nil

	default:
		if len(cached) > 0 {
			appLog.Warn("feed returned non-OK, using cache", "id", feed.ID, "status", resp.StatusCode)
			return cached, nil
		}
		return nil, fmt.Errorf("feed %s: %s", feed.ID, resp.Status)
	}
}

// cachePath is empty when caching is disabled.
func (f *Fetcher) cachePath(url string) string {
	if f.cacheDir == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCache(dir string) (cacheMeta, []byte) {
	var meta cacheMeta
	if dir == "" {
		return meta, nil
	}
	body, err := os.ReadFile(filepath.Join(dir, "body.ics"))
	if err != nil {
		return meta, nil
	}
	if data, err := os.ReadFile(filepath.Join(dir, "meta.json")); err == nil {
		_ = json.Unmarshal(data, &meta)
	}
	return meta, body
}

func (f *Fetcher) saveCache(dir string, meta cacheMeta, body []byte) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL hides paths and query strings, which often carry tokens.
func redactURL(raw string) string {
	const suffix = "/...(redacted)"
	for i := 0; i+3 <= len(raw); i++ {
		if raw[i:i+3] != "://" {
			continue
		}
		j := i + 3
		for j < len(raw) && raw[j] != '/' {
			j++
		}
		return raw[:j] + suffix
	}
	return "ics://...(redacted)"
}
