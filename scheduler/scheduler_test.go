package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"property-scraper/models"
	"property-scraper/registry"
	"property-scraper/utils"
)

func makeSites(n int) []registry.SiteDescriptor {
	sites := make([]registry.SiteDescriptor, n)
	for i := range sites {
		sites[i] = registry.SiteDescriptor{
			Key:     fmt.Sprintf("site-%02d", i),
			BaseURL: "https://example.ng",
			Enabled: true,
			Pagination: registry.Pagination{
				Mode:      registry.ModeNumbered,
				PageCap:   2,
				PageParam: "page",
			},
			Selectors: registry.SelectorMap{ListItem: "div.card"},
		}
	}
	return sites
}

// fakeRunner returns canned reports and tracks concurrency.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string

	blockKey string // site that hangs until its context expires
	failKey  string // site that errors immediately
	delay    time.Duration

	active int32
	peak   int32
}

func (f *fakeRunner) ScrapeSite(ctx context.Context, d *registry.SiteDescriptor) (models.SiteReport, error) {
	cur := atomic.AddInt32(&f.active, 1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if cur <= p || atomic.CompareAndSwapInt32(&f.peak, p, cur) {
			break
		}
	}
	defer atomic.AddInt32(&f.active, -1)

	f.mu.Lock()
	f.calls = append(f.calls, d.Key)
	f.mu.Unlock()

	if d.Key == f.blockKey {
		<-ctx.Done()
		return models.SiteReport{SiteKey: d.Key, Reason: "cut off mid-scrape"}, ctx.Err()
	}
	if d.Key == f.failKey {
		return models.SiteReport{SiteKey: d.Key, Reason: "boom"}, fmt.Errorf("site %s broke", d.Key)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return models.SiteReport{SiteKey: d.Key, Found: 10, Uploaded: 8}, nil
}

func TestPartitionDisjointAndOrdered(t *testing.T) {
	sites := makeSites(7)
	sessions, err := Partition(sites, Config{SitesPerSession: 3})
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}

	if len(sessions) != 3 {
		t.Fatalf("sessions: got %d, want 3", len(sessions))
	}
	if got := len(sessions[2].Sites); got != 1 {
		t.Errorf("last session size: got %d, want 1", got)
	}

	seen := make(map[string]string)
	ids := make(map[string]bool)
	var flat []string
	for _, s := range sessions {
		if s.State != StatePending {
			t.Errorf("fresh session state: got %q, want %q", s.State, StatePending)
		}
		if ids[s.ID] {
			t.Errorf("duplicate session ID %q", s.ID)
		}
		ids[s.ID] = true
		if s.Estimate <= 0 {
			t.Errorf("session %s estimate not positive", s.ID)
		}
		for _, d := range s.Sites {
			if prev, dup := seen[d.Key]; dup {
				t.Errorf("site %s in sessions %s and %s", d.Key, prev, s.ID)
			}
			seen[d.Key] = s.ID
			flat = append(flat, d.Key)
		}
	}
	for i, key := range flat {
		if want := fmt.Sprintf("site-%02d", i); key != want {
			t.Errorf("order broken at %d: got %s, want %s", i, key, want)
		}
	}
}

func TestPartitionRefusesOverCeiling(t *testing.T) {
	sites := makeSites(10)
	cfg := Config{
		SitesPerSession:  2,
		MaxParallel:      1,
		SessionTimeout:   time.Hour,
		JobCeiling:       time.Minute,
		PerPageCost:      30 * time.Second,
		SafetyMultiplier: 2,
	}

	if _, err := Partition(sites, cfg); err == nil {
		t.Fatal("expected a refusal when the worst case exceeds the job ceiling")
	}

	// The same plan fits under a generous ceiling.
	cfg.JobCeiling = 24 * time.Hour
	if _, err := Partition(sites, cfg); err != nil {
		t.Fatalf("generous ceiling should pass: %v", err)
	}
}

func TestPartitionCeilingAccountsForParallelism(t *testing.T) {
	sites := makeSites(4)
	cfg := Config{
		SitesPerSession:  1,
		SessionTimeout:   time.Hour,
		PerPageCost:      time.Minute,
		PerSiteOverhead:  time.Second,
		SafetyMultiplier: 1,
		// Each session ≈ 2m1s; serial worst case ≈ 8m4s.
		JobCeiling:  5 * time.Minute,
		MaxParallel: 1,
	}

	if _, err := Partition(sites, cfg); err == nil {
		t.Fatal("serial plan should exceed the ceiling")
	}

	cfg.MaxParallel = 4
	if _, err := Partition(sites, cfg); err != nil {
		t.Fatalf("parallel plan should fit: %v", err)
	}
}

func newTestExecutor(runner SiteRunner, cfg Config) *Executor {
	return NewExecutor(runner, cfg, utils.NewLogger())
}

func TestExecutorConsolidatesAllSessions(t *testing.T) {
	sites := makeSites(6)
	cfg := Config{SitesPerSession: 2, MaxParallel: 2, SessionTimeout: time.Minute}
	sessions, err := Partition(sites, cfg)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}

	runner := &fakeRunner{}
	report := newTestExecutor(runner, cfg).Run(context.Background(), "run-1", sessions)

	if len(report.Sites) != 6 {
		t.Fatalf("site reports: got %d, want 6", len(report.Sites))
	}
	totals := report.Totals()
	if totals.Found != 60 || totals.Uploaded != 48 {
		t.Errorf("totals: got found=%d uploaded=%d, want 60/48", totals.Found, totals.Uploaded)
	}
	for _, s := range report.Sessions {
		if s.State != StateCompleted {
			t.Errorf("session %s state: got %q, want %q", s.ID, s.State, StateCompleted)
		}
	}
}

func TestExecutorIsolatesTimedOutSession(t *testing.T) {
	sites := makeSites(6)
	cfg := Config{SitesPerSession: 2, MaxParallel: 3, SessionTimeout: 50 * time.Millisecond}
	sessions, err := Partition(sites, cfg)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}

	// site-02 hangs, so its session (site-02, site-03) times out.
	runner := &fakeRunner{blockKey: "site-02"}
	report := newTestExecutor(runner, cfg).Run(context.Background(), "run-2", sessions)

	states := make(map[string]string)
	for _, s := range report.Sessions {
		for _, key := range s.Sites {
			states[key] = s.State
		}
	}
	if states["site-02"] != StateTimedOut {
		t.Errorf("hung session state: got %q, want %q", states["site-02"], StateTimedOut)
	}
	for _, key := range []string{"site-00", "site-01", "site-04", "site-05"} {
		if states[key] != StateCompleted {
			t.Errorf("session of %s: got %q, want %q", key, states[key], StateCompleted)
		}
	}

	// Consolidation keeps every site, including the timed-out session's.
	if len(report.Sites) != 6 {
		t.Fatalf("site reports: got %d, want 6", len(report.Sites))
	}
	byKey := make(map[string]models.SiteReport)
	for _, r := range report.Sites {
		byKey[r.SiteKey] = r
	}
	if byKey["site-03"].Reason != "session timed out before site started" {
		t.Errorf("site-03 reason: got %q", byKey["site-03"].Reason)
	}
	if byKey["site-00"].Uploaded != 8 {
		t.Errorf("healthy site lost its report: %+v", byKey["site-00"])
	}
}

func TestExecutorMarksAllFailedSession(t *testing.T) {
	sites := makeSites(1)
	cfg := Config{SitesPerSession: 1, SessionTimeout: time.Minute}
	sessions, err := Partition(sites, cfg)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}

	runner := &fakeRunner{failKey: "site-00"}
	report := newTestExecutor(runner, cfg).Run(context.Background(), "run-3", sessions)

	if report.Sessions[0].State != StateFailed {
		t.Errorf("state: got %q, want %q", report.Sessions[0].State, StateFailed)
	}
	if report.Sessions[0].Err == "" {
		t.Error("failed session must carry the error")
	}
	// The partial report is still consolidated.
	if len(report.Sites) != 1 || report.Sites[0].Reason != "boom" {
		t.Errorf("partial report lost: %+v", report.Sites)
	}
}

func TestExecutorInterruptedRunNotMarkedCompleted(t *testing.T) {
	sites := makeSites(2)
	cfg := Config{SitesPerSession: 2, SessionTimeout: time.Minute}
	sessions, err := Partition(sites, cfg)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}

	// site-00 hangs until its context dies; the parent context is cancelled
	// mid-run, the way a SIGINT lands, well before the session timeout.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	runner := &fakeRunner{blockKey: "site-00"}
	report := newTestExecutor(runner, cfg).Run(ctx, "run-5", sessions)

	got := report.Sessions[0]
	if got.State == StateCompleted || got.State == StateFailed {
		t.Errorf("interrupted session state: got %q, want %q", got.State, StateTimedOut)
	}
	if got.State != StateTimedOut {
		t.Errorf("state: got %q, want %q", got.State, StateTimedOut)
	}
	if got.Err == "" {
		t.Error("interrupted session must carry the context error")
	}
}

func TestExecutorBoundsParallelism(t *testing.T) {
	sites := makeSites(6)
	cfg := Config{SitesPerSession: 1, MaxParallel: 2, SessionTimeout: time.Minute}
	sessions, err := Partition(sites, cfg)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}

	runner := &fakeRunner{delay: 20 * time.Millisecond}
	newTestExecutor(runner, cfg).Run(context.Background(), "run-4", sessions)

	if peak := atomic.LoadInt32(&runner.peak); peak > 2 {
		t.Errorf("peak concurrency: got %d, want <= 2", peak)
	}
	if len(runner.calls) != 6 {
		t.Errorf("calls: got %d, want 6", len(runner.calls))
	}
}
