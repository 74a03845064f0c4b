// Package capture renders the calendar page in headless Chromium and saves
// it as a PNG, e.g. for sharing availability as an image.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	DefaultWidth   = 1280
	DefaultHeight  = 1600
	DefaultTimeout = 30 * time.Second

	// readySelector matches once the page session pushed its first grid.
	readySelector = `body[data-ready="true"]`
)

// Options defines parameters for a snapshot.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/calendar".
	URL string

	// OutputPath is where the PNG screenshot will be written.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels.
	Width  int
	Height int

	// Timeout bounds the entire capture.
	Timeout time.Duration

	// Username and Password are sent as HTTP Basic Auth when set.
	Username string
	Password string
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	if o.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

func (o *Options) authHeader() network.Headers {
	if o.Username == "" && o.Password == "" {
		return nil
	}
	token := base64.StdEncoding.EncodeToString([]byte(o.Username + ":" + o.Password))
	return network.Headers{"Authorization": "Basic " + token}
}

// Snapshot navigates to opts.URL, waits until the live grid has been
// rendered and writes a full-page PNG to opts.OutputPath.
func Snapshot(parentCtx context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{}
	if h := opts.authHeader(); h != nil {
		tasks = append(tasks, network.Enable(), network.SetExtraHTTPHeaders(h))
	}
	tasks = append(tasks,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		// Let the last grid swap paint.
		chromedp.Sleep(300*time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	)

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	return nil
}
