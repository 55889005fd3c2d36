// Package scheduler partitions the enabled sites into bounded sessions and
// runs them with capped parallelism. A session that times out or fails is
// isolated: its partial output is kept and every other session still runs.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"property-scraper/models"
	"property-scraper/registry"
	"property-scraper/utils"
)

// Session states.
const (
	StatePending   = "PENDING"
	StateRunning   = "RUNNING"
	StateCompleted = "COMPLETED"
	StateTimedOut  = "TIMED_OUT"
	StateFailed    = "FAILED"
)

// SiteRunner scrapes one site end to end. The pipeline implements it; tests
// substitute fakes.
type SiteRunner interface {
	ScrapeSite(ctx context.Context, d *registry.SiteDescriptor) (models.SiteReport, error)
}

// Config holds the partitioning and execution knobs.
type Config struct {
	// SitesPerSession is the maximum number of sites per session.
	SitesPerSession int
	// MaxParallel bounds how many sessions run at once.
	MaxParallel int
	// SessionTimeout is the hard wall-clock limit for one session.
	SessionTimeout time.Duration
	// JobCeiling is the hard limit for the whole run. Partition refuses a
	// plan whose worst case exceeds it. Zero means no ceiling.
	JobCeiling time.Duration
	// SafetyMultiplier pads duration estimates for network variance.
	SafetyMultiplier float64
	// PerPageCost is the default estimated cost of one page fetch.
	PerPageCost time.Duration
	// PerSiteOverhead covers normalization, scoring and the sink upload.
	PerSiteOverhead time.Duration
}

func (c Config) withDefaults() Config {
	if c.SitesPerSession <= 0 {
		c.SitesPerSession = 3
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 1
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 10 * time.Minute
	}
	if c.SafetyMultiplier <= 0 {
		c.SafetyMultiplier = 1.5
	}
	if c.PerPageCost <= 0 {
		c.PerPageCost = 15 * time.Second
	}
	if c.PerSiteOverhead <= 0 {
		c.PerSiteOverhead = 30 * time.Second
	}
	return c
}

// Session is one scheduled unit of work: a disjoint subset of sites run
// sequentially under a shared timeout.
type Session struct {
	ID       string
	Sites    []registry.SiteDescriptor
	Estimate time.Duration

	State   string
	Elapsed time.Duration
	Err     string
}

// EstimateSite predicts the wall time one site needs, padded by the safety
// multiplier.
func EstimateSite(d *registry.SiteDescriptor, cfg Config) time.Duration {
	cfg = cfg.withDefaults()
	raw := time.Duration(d.PageBudget())*d.PerPageCost(cfg.PerPageCost) + cfg.PerSiteOverhead
	return time.Duration(float64(raw) * cfg.SafetyMultiplier)
}

// Partition splits sites into disjoint sessions of at most SitesPerSession
// each, preserving registry order. It returns an error when the plan's worst
// case cannot finish inside the job ceiling; refusing up front beats a run
// that is doomed to be killed halfway.
func Partition(sites []registry.SiteDescriptor, cfg Config) ([]*Session, error) {
	cfg = cfg.withDefaults()
	if len(sites) == 0 {
		return nil, fmt.Errorf("scheduler: no sites to partition")
	}

	var sessions []*Session
	for start := 0; start < len(sites); start += cfg.SitesPerSession {
		end := start + cfg.SitesPerSession
		if end > len(sites) {
			end = len(sites)
		}
		chunk := make([]registry.SiteDescriptor, end-start)
		copy(chunk, sites[start:end])

		var estimate time.Duration
		for i := range chunk {
			estimate += EstimateSite(&chunk[i], cfg)
		}
		sessions = append(sessions, &Session{
			ID:       uuid.NewString(),
			Sites:    chunk,
			Estimate: estimate,
			State:    StatePending,
		})
	}

	if cfg.JobCeiling > 0 {
		worst := worstCaseWall(sessions, cfg)
		if worst > cfg.JobCeiling {
			return nil, fmt.Errorf(
				"scheduler: worst-case run time %v exceeds job ceiling %v (%d sessions, %d parallel)",
				worst.Round(time.Second), cfg.JobCeiling, len(sessions), cfg.MaxParallel)
		}
	}

	return sessions, nil
}

// worstCaseWall sums the run's waves: sessions execute in groups of
// MaxParallel, and each session is bounded by its estimate or the session
// timeout, whichever is smaller.
func worstCaseWall(sessions []*Session, cfg Config) time.Duration {
	var wall time.Duration
	for i := 0; i < len(sessions); i += cfg.MaxParallel {
		end := i + cfg.MaxParallel
		if end > len(sessions) {
			end = len(sessions)
		}
		var waveMax time.Duration
		for _, s := range sessions[i:end] {
			bound := s.Estimate
			if bound > cfg.SessionTimeout {
				bound = cfg.SessionTimeout
			}
			if bound > waveMax {
				waveMax = bound
			}
		}
		wall += waveMax
	}
	return wall
}

// Executor runs sessions with bounded parallelism and consolidates their
// reports. It never fails fast: one bad session cannot sink the run.
type Executor struct {
	runner SiteRunner
	cfg    Config
	logger *utils.Logger
}

// NewExecutor builds an Executor around a SiteRunner.
func NewExecutor(runner SiteRunner, cfg Config, logger *utils.Logger) *Executor {
	return &Executor{runner: runner, cfg: cfg.withDefaults(), logger: logger}
}

// Run executes every session and returns the consolidated report. The report
// is produced unconditionally: timed-out and failed sessions contribute
// whatever partial site reports they managed to collect.
func (e *Executor) Run(ctx context.Context, runID string, sessions []*Session) *models.RunReport {
	started := time.Now()

	var (
		mu      sync.Mutex
		reports = make(map[string]*models.SiteReport)
		order   []string
	)
	collect := func(r models.SiteReport) {
		mu.Lock()
		defer mu.Unlock()
		if existing, ok := reports[r.SiteKey]; ok {
			existing.Merge(r)
			return
		}
		copied := r
		reports[r.SiteKey] = &copied
		order = append(order, r.SiteKey)
	}

	sem := make(chan struct{}, e.cfg.MaxParallel)
	var wg sync.WaitGroup
	for _, session := range sessions {
		s := session
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			e.runSession(ctx, s, collect)
		}()
	}
	wg.Wait()

	report := &models.RunReport{
		RunID:     runID,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	for _, key := range order {
		report.Sites = append(report.Sites, *reports[key])
	}
	sort.Slice(report.Sites, func(i, j int) bool {
		return report.Sites[i].SiteKey < report.Sites[j].SiteKey
	})
	for _, s := range sessions {
		report.Sessions = append(report.Sessions, models.SessionSummary{
			ID:       s.ID,
			Sites:    siteKeys(s.Sites),
			State:    s.State,
			Elapsed:  s.Elapsed,
			Estimate: s.Estimate,
			Err:      s.Err,
		})
	}
	return report
}

// runSession scrapes the session's sites sequentially under one timeout.
func (e *Executor) runSession(ctx context.Context, s *Session, collect func(models.SiteReport)) {
	s.State = StateRunning
	started := time.Now()

	sctx, cancel := context.WithTimeout(ctx, e.cfg.SessionTimeout)
	defer cancel()

	e.logger.Info("[scheduler] Session %s starting: sites=%v estimate=%v",
		shortID(s.ID), siteKeys(s.Sites), s.Estimate.Round(time.Second))

	failures := 0
	for i := range s.Sites {
		d := &s.Sites[i]

		if sctx.Err() != nil {
			collect(models.SiteReport{
				SiteKey: d.Key,
				Reason:  "session timed out before site started",
			})
			continue
		}

		report, err := e.runner.ScrapeSite(sctx, d)
		collect(report)
		if err != nil {
			failures++
			s.Err = err.Error()
			e.logger.Warn("[scheduler] Session %s: site %s failed: %v", shortID(s.ID), d.Key, err)
		}
	}

	s.Elapsed = time.Since(started)
	switch {
	case sctx.Err() != nil:
		// The session deadline and an interrupted run both land here: either
		// way the session was cut short, never completed.
		s.State = StateTimedOut
		if s.Err == "" {
			s.Err = sctx.Err().Error()
		}
	case failures == len(s.Sites):
		s.State = StateFailed
	default:
		s.State = StateCompleted
	}

	e.logger.Info("[scheduler] Session %s %s in %v",
		shortID(s.ID), s.State, s.Elapsed.Round(time.Millisecond))
}

func siteKeys(sites []registry.SiteDescriptor) []string {
	keys := make([]string, len(sites))
	for i := range sites {
		keys[i] = sites[i].Key
	}
	return keys
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
