package models

import "time"

// QualityReport is the scoring outcome for a single record.
type QualityReport struct {
	Score         int
	MissingFields []string
	Accepted      bool
	Floor         int
}

// Upload status values reported by the sink adapter.
const (
	UploadOK      = "ok"
	UploadPartial = "partial"
	UploadFailed  = "failed"
	UploadEmpty   = "empty"
)

// UploadReport summarises one site's sink upload. A zero-record outcome must
// always carry a non-empty Reason — silent empty "success" is a bug class.
type UploadReport struct {
	SiteKey  string
	Uploaded int
	Errors   int
	Skipped  int
	Status   string
	Reason   string
}

// SiteReport holds the per-site counters surfaced in the run report.
type SiteReport struct {
	SiteKey      string
	Found        int
	Normalized   int
	Deduplicated int
	Rejected     int
	Uploaded     int
	Errors       int
	Abandoned    bool
	Reason       string
}

// SessionSummary is the terminal status of one scheduled session.
type SessionSummary struct {
	ID       string
	Sites    []string
	State    string
	Elapsed  time.Duration
	Estimate time.Duration
	Err      string
}

// RunReport is the consolidated outcome of a whole run. It is produced
// unconditionally, even when sessions time out or fail.
type RunReport struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Sites     []SiteReport
	Sessions  []SessionSummary
}

// Totals sums the per-site counters.
func (r *RunReport) Totals() SiteReport {
	var t SiteReport
	for _, s := range r.Sites {
		t.Found += s.Found
		t.Normalized += s.Normalized
		t.Deduplicated += s.Deduplicated
		t.Rejected += s.Rejected
		t.Uploaded += s.Uploaded
		t.Errors += s.Errors
	}
	return t
}

// Merge folds another site report for the same site into s. Consolidation
// uses it when a timed-out session left a partial report behind.
func (s *SiteReport) Merge(o SiteReport) {
	s.Found += o.Found
	s.Normalized += o.Normalized
	s.Deduplicated += o.Deduplicated
	s.Rejected += o.Rejected
	s.Uploaded += o.Uploaded
	s.Errors += o.Errors
	if o.Abandoned {
		s.Abandoned = true
	}
	if s.Reason == "" {
		s.Reason = o.Reason
	}
}
