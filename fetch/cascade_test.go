package fetch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"property-scraper/utils"
)

// stubStrategy replays a scripted sequence of responses. After the script is
// exhausted it keeps returning the last entry.
type stubStrategy struct {
	name   string
	script []stubResponse
	calls  int
}

type stubResponse struct {
	status int
	html   string
	err    error
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Fetch(ctx context.Context, req Request) (*Page, error) {
	i := s.calls
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	s.calls++

	r := s.script[i]
	if r.err != nil {
		return nil, r.err
	}
	return &Page{URL: req.URL, HTML: r.html, StatusCode: r.status}, nil
}

var goodHTML = strings.Repeat("<div class=\"card\">3 Bed Flat</div>", 50)

func newTestCascade(abandonAfter int, strategies ...Strategy) *Cascade {
	return NewCascade(strategies, NewClassifier(), abandonAfter, utils.NewLogger())
}

func TestCascadeEscalatesOnBlock(t *testing.T) {
	blocked := &stubStrategy{name: "http", script: []stubResponse{{status: 403}}}
	browser := &stubStrategy{name: "browser", script: []stubResponse{{status: 200, html: goodHTML}}}
	c := newTestCascade(3, blocked, browser)

	page, err := c.Fetch(context.Background(), Request{URL: "https://x/y", SiteKey: "s"}, 5)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.Strategy != "browser" {
		t.Errorf("strategy: got %q, want browser", page.Strategy)
	}
	if blocked.calls != 1 {
		t.Errorf("blocked strategy calls: got %d, want 1 (escalate, not retry)", blocked.calls)
	}
}

func TestCascadeRetriesTransientErrors(t *testing.T) {
	flaky := &stubStrategy{name: "http", script: []stubResponse{
		{status: 500},
		{err: errors.New("connection reset")},
		{status: 200, html: goodHTML},
	}}
	c := newTestCascade(3, flaky)

	page, err := c.Fetch(context.Background(), Request{URL: "https://x/y", SiteKey: "s"}, 5)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if flaky.calls != 3 {
		t.Errorf("calls: got %d, want 3", flaky.calls)
	}
	if page.Strategy != "http" {
		t.Errorf("strategy: got %q, want http", page.Strategy)
	}
}

func TestCascadeBudgetCarriesOver(t *testing.T) {
	blocked := &stubStrategy{name: "http", script: []stubResponse{{status: 403}}}
	flakyBrowser := &stubStrategy{name: "browser", script: []stubResponse{
		{status: 500},
		{status: 200, html: goodHTML},
	}}
	c := newTestCascade(3, blocked, flakyBrowser)

	// Budget 3: 1 for http (escalate), 2 left for the browser retry + pass.
	page, err := c.Fetch(context.Background(), Request{URL: "https://x/y", SiteKey: "s"}, 3)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page == nil || page.Strategy != "browser" {
		t.Fatalf("expected browser success, got %+v", page)
	}
}

func TestCascadeExhaustionReturnsFailure(t *testing.T) {
	s1 := &stubStrategy{name: "http", script: []stubResponse{{status: 403}}}
	s2 := &stubStrategy{name: "browser", script: []stubResponse{{status: 403}}}
	c := newTestCascade(3, s1, s2)

	_, err := c.Fetch(context.Background(), Request{URL: "https://x/y", SiteKey: "s"}, 4)
	if err == nil {
		t.Fatal("expected failure after exhausting all strategies")
	}

	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("error type: got %T, want *Failure", err)
	}
	if failure.Reason == "" {
		t.Error("failure must carry a reason")
	}
}

func TestCascadeHintReordersStrategies(t *testing.T) {
	httpStrat := &stubStrategy{name: "http", script: []stubResponse{{status: 403}}}
	browser := &stubStrategy{name: "browser", script: []stubResponse{{status: 200, html: goodHTML}}}
	c := newTestCascade(3, httpStrat, browser)

	if _, err := c.Fetch(context.Background(), Request{URL: "https://x/1", SiteKey: "s"}, 5); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if got := c.Hint("s"); got != "browser" {
		t.Fatalf("hint: got %q, want browser", got)
	}

	// Second fetch should go straight to the hinted browser strategy.
	httpCallsBefore := httpStrat.calls
	if _, err := c.Fetch(context.Background(), Request{URL: "https://x/2", SiteKey: "s"}, 5); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if httpStrat.calls != httpCallsBefore {
		t.Errorf("http called %d more times; hinted fetch should skip it",
			httpStrat.calls-httpCallsBefore)
	}
}

func TestCascadeHintedStrategyFallsBack(t *testing.T) {
	httpStrat := &stubStrategy{name: "http", script: []stubResponse{{status: 200, html: goodHTML}}}
	browser := &stubStrategy{name: "browser", script: []stubResponse{{status: 200, html: goodHTML}}}
	c := newTestCascade(3, httpStrat, browser)

	if _, err := c.Fetch(context.Background(), Request{URL: "https://x/1", SiteKey: "s"}, 5); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if got := c.Hint("s"); got != "http" {
		t.Fatalf("hint: got %q, want http", got)
	}

	// Hinted strategy starts getting blocked — the full cascade must still
	// be available behind it.
	httpStrat.script = []stubResponse{{status: 403}}
	httpStrat.calls = 0

	page, err := c.Fetch(context.Background(), Request{URL: "https://x/2", SiteKey: "s"}, 5)
	if err != nil {
		t.Fatalf("fallback fetch: %v", err)
	}
	if page.Strategy != "browser" {
		t.Errorf("strategy after hint failure: got %q, want browser", page.Strategy)
	}
	if got := c.Hint("s"); got != "browser" {
		t.Errorf("hint should move to browser, got %q", got)
	}
}

func TestCascadeAbandonTally(t *testing.T) {
	dead := &stubStrategy{name: "http", script: []stubResponse{{status: 403}}}
	c := newTestCascade(2, dead)

	req := Request{URL: "https://x/y", SiteKey: "dead-site"}
	for i := 0; i < 2; i++ {
		if _, err := c.Fetch(context.Background(), req, 2); err == nil {
			t.Fatal("expected failure")
		}
	}

	if !c.Abandoned("dead-site") {
		t.Error("site should be abandoned after 2 consecutive full-cascade failures")
	}
	if c.Abandoned("other-site") {
		t.Error("unrelated site must not be abandoned")
	}
}

func TestCascadeSuccessResetsTally(t *testing.T) {
	s := &stubStrategy{name: "http", script: []stubResponse{
		{status: 403},
		{status: 200, html: goodHTML},
	}}
	c := newTestCascade(2, s)

	req := Request{URL: "https://x/y", SiteKey: "s"}
	_, _ = c.Fetch(context.Background(), req, 1)     // fails, tally 1
	if _, err := c.Fetch(context.Background(), req, 1); err != nil { // passes
		t.Fatalf("second fetch: %v", err)
	}

	if c.Abandoned("s") {
		t.Error("success must reset the consecutive-failure tally")
	}
}

func TestCascadeUnsupportedCostsNoBudget(t *testing.T) {
	httpStrat := &stubStrategy{name: "http", script: []stubResponse{{err: ErrUnsupported}}}
	browser := &stubStrategy{name: "browser", script: []stubResponse{{status: 200, html: goodHTML}}}
	c := newTestCascade(3, httpStrat, browser)

	page, err := c.Fetch(context.Background(), Request{URL: "https://x/y", SiteKey: "s", ScrollSteps: 5}, 1)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.Strategy != "browser" {
		t.Errorf("strategy: got %q, want browser", page.Strategy)
	}
}
