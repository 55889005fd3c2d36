package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// HTTPStrategy is the cheapest rung of the cascade: a plain GET with a
// browser user agent. It cannot execute JavaScript, so infinite-scroll
// requests always escalate past it.
type HTTPStrategy struct {
	client    *http.Client
	userAgent string
}

// NewHTTPStrategy creates the plain-HTTP strategy with the given default
// timeout.
func NewHTTPStrategy(timeout time.Duration) *HTTPStrategy {
	return &HTTPStrategy{
		client:    &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}
}

func (s *HTTPStrategy) Name() string { return "http" }

// Fetch performs a single GET. Non-200 responses are returned as pages for
// the classifier to judge.
func (s *HTTPStrategy) Fetch(ctx context.Context, req Request) (*Page, error) {
	if req.ScrollSteps > 0 {
		// Scroll simulation needs a real browser.
		return nil, ErrUnsupported
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("http: build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", s.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml")
	httpReq.Header.Set("Accept-Language", "en-NG,en;q=0.9")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http: GET %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http: read body: %w", err)
	}

	return &Page{
		URL:        req.URL,
		HTML:       string(body),
		StatusCode: resp.StatusCode,
		Elapsed:    time.Since(start),
	}, nil
}
