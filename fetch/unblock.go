package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// UnblockStrategy is the last, most expensive rung of the cascade: a paid
// unblocking proxy that renders the page on the provider's side and returns
// the HTML. Every call costs credits, so it only runs after HTTP and the
// local browser have both been escalated past.
type UnblockStrategy struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewUnblockStrategy configures the proxy strategy. Returns nil when no API
// key is set, in which case the cascade simply ends at the browser.
func NewUnblockStrategy(endpoint, apiKey string, timeout time.Duration) *UnblockStrategy {
	if apiKey == "" || endpoint == "" {
		return nil
	}
	return &UnblockStrategy{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *UnblockStrategy) Name() string { return "unblock-proxy" }

// Fetch asks the provider to render the target URL. The provider executes
// JavaScript, so scroll simulation is forwarded as a parameter.
func (s *UnblockStrategy) Fetch(ctx context.Context, req Request) (*Page, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	params := url.Values{}
	params.Set("api_key", s.apiKey)
	params.Set("url", req.URL)
	params.Set("render_js", "true")
	if req.ScrollSteps > 0 {
		params.Set("scroll", strconv.Itoa(req.ScrollSteps))
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("unblock: build request: %w", err)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("unblock: GET %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unblock: read body: %w", err)
	}

	// The provider mirrors the upstream status code; its own failures come
	// back as 5xx and are classified as retries.
	return &Page{
		URL:        req.URL,
		HTML:       string(body),
		StatusCode: resp.StatusCode,
		Elapsed:    time.Since(start),
	}, nil
}
