// Package fetch implements the strategy cascade that turns a URL into
// rendered HTML. Strategies are tried in a configured order (plain HTTP,
// headless browser, unblocking proxy) and escalate on blocking or timeout
// signals; exhaustion yields a definitive FetchFailure the caller can treat
// as an empty page.
package fetch

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupported is returned by a strategy that cannot serve a request at
// all (for example scroll simulation over plain HTTP). The cascade escalates
// immediately without burning retries on it.
var ErrUnsupported = errors.New("request not supported by strategy")

// Request describes one page fetch.
type Request struct {
	URL     string
	SiteKey string
	Timeout time.Duration

	// ScrollSteps > 0 asks render-capable strategies to simulate infinite
	// scroll, stopping early when ItemSelector stops matching new elements.
	ScrollSteps  int
	ItemSelector string
}

// Page is a successfully rendered page.
type Page struct {
	URL        string
	HTML       string
	StatusCode int
	Strategy   string
	Elapsed    time.Duration
}

// Failure is returned when every strategy has been exhausted for a URL.
// The page is skipped; the site continues.
type Failure struct {
	URL     string
	SiteKey string
	Reason  string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("fetch exhausted for %s: %s", f.URL, f.Reason)
}

// Verdict is the classifier's decision about one response.
type Verdict int

const (
	// Pass — the response is usable HTML.
	Pass Verdict = iota
	// Retry — transient problem, try the same strategy again.
	Retry
	// Escalate — this strategy is blocked or unsuitable, move to the next.
	Escalate
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Retry:
		return "retry"
	case Escalate:
		return "escalate"
	}
	return "unknown"
}

// Classifier inspects a response and decides whether the fetching strategy
// passed, should retry, or should escalate to the next strategy.
type Classifier struct {
	// MinContentLength is the smallest HTML body considered a real page.
	// Block pages and interstitials tend to be tiny.
	MinContentLength int
	// BlockSignatures are lowercase substrings that identify known block
	// pages even when they come back with status 200.
	BlockSignatures []string
}

// NewClassifier returns a classifier tuned for the block pages seen in the
// wild on Nigerian listing portals (Cloudflare, PerimeterX, generic WAFs).
func NewClassifier() *Classifier {
	return &Classifier{
		MinContentLength: 512,
		BlockSignatures: []string{
			"access denied",
			"captcha",
			"cf-browser-verification",
			"checking your browser",
			"just a moment",
			"request blocked",
			"unusual traffic",
			"verify you are a human",
		},
	}
}

// Classify maps a (status, body) pair to a verdict plus a short reason.
func (c *Classifier) Classify(status int, html string) (Verdict, string) {
	switch {
	case status == 403 || status == 429 || status == 503:
		return Escalate, fmt.Sprintf("blocking status %d", status)
	case status == 404 || status == 410:
		return Escalate, fmt.Sprintf("page gone (%d)", status)
	case status >= 500:
		return Retry, fmt.Sprintf("server error %d", status)
	case status != 200:
		return Retry, fmt.Sprintf("unexpected status %d", status)
	}

	if len(html) < c.MinContentLength {
		return Escalate, fmt.Sprintf("suspiciously short body (%d bytes)", len(html))
	}

	lower := strings.ToLower(html)
	for _, sig := range c.BlockSignatures {
		if strings.Contains(lower, sig) {
			return Escalate, fmt.Sprintf("block signature %q", sig)
		}
	}

	return Pass, ""
}
