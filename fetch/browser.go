package fetch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserStrategy renders pages in headless Chrome. It is the middle rung of
// the cascade: slower than plain HTTP but able to run JavaScript, which many
// listing portals require, and the only strategy that can simulate infinite
// scroll.
type BrowserStrategy struct {
	allocCtx      context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	scrollPause   time.Duration
	settleWait    time.Duration
}

// NewBrowserStrategy starts a shared Chrome exec allocator. Call Close when
// the run is done.
func NewBrowserStrategy() *BrowserStrategy {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(defaultUserAgent),
	)
	if bin := findChromeBinary(); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	silentCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	return &BrowserStrategy{
		allocCtx:      silentCtx,
		cancelBrowser: cancelSilent,
		cancelAlloc:   cancelAlloc,
		scrollPause:   2 * time.Second,
		settleWait:    5 * time.Second,
	}
}

func (s *BrowserStrategy) Name() string { return "browser" }

// Close tears down the shared browser context, then the allocator behind it.
func (s *BrowserStrategy) Close() {
	s.cancelBrowser()
	s.cancelAlloc()
}

// Fetch navigates to the URL in a fresh tab, optionally simulating scroll
// steps, and returns the fully rendered document.
func (s *BrowserStrategy) Fetch(ctx context.Context, req Request) (*Page, error) {
	start := time.Now()

	tabCtx, cancel := chromedp.NewContext(s.allocCtx)
	defer cancel()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	// Honour caller cancellation as well as the tab timeout.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-tabCtx.Done():
		}
	}()

	actions := []chromedp.Action{
		chromedp.Navigate(req.URL),
		chromedp.Sleep(s.settleWait),
	}
	if req.ScrollSteps > 0 {
		actions = append(actions, s.scrollActions(req)...)
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if tabCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("browser: render %s: %w", req.URL, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("browser: render %s: %w", req.URL, err)
	}

	return &Page{
		URL:        req.URL,
		HTML:       html,
		StatusCode: 200,
		Elapsed:    time.Since(start),
	}, nil
}

// scrollActions scrolls the page up to req.ScrollSteps times, stopping early
// once a scroll produces no new list items.
func (s *BrowserStrategy) scrollActions(req Request) []chromedp.Action {
	countJS := fmt.Sprintf(`document.querySelectorAll(%q).length`, req.ItemSelector)

	return []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			prevCount := -1
			for step := 0; step < req.ScrollSteps; step++ {
				if err := chromedp.Run(ctx,
					chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
					chromedp.Sleep(s.scrollPause),
				); err != nil {
					return err
				}

				if req.ItemSelector == "" {
					continue
				}
				var count int
				if err := chromedp.Run(ctx, chromedp.Evaluate(countJS, &count)); err != nil {
					return err
				}
				if count == prevCount {
					return nil // nothing new appeared — stop scrolling
				}
				prevCount = count
			}
			return nil
		}),
	}
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
