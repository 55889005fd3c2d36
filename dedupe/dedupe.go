// Package dedupe computes stable listing identities and reconciles
// duplicates. Deduplication runs in three passes: within a page, within a
// run (the shared Index), and against previously persisted records — the
// last pass is the sink's idempotent upsert itself, so no read-then-write
// race exists.
package dedupe

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"property-scraper/models"
)

// Fingerprint computes the stable identity hash for a record: the
// canonicalized source URL when present, otherwise title+price+location.
// It is stable under re-scraping the same listing, which is what makes
// cross-run deduplication meaningful.
func Fingerprint(r *models.Record) string {
	var key string
	if r.SourceURL != "" {
		key = "url|" + canonicalURL(r.SourceURL)
	} else {
		key = fmt.Sprintf("rec|%s|%d|%s|%s|%s",
			strings.ToLower(strings.TrimSpace(r.Title)),
			r.Price,
			strings.ToLower(r.Area),
			strings.ToLower(r.LGA),
			strings.ToLower(r.State),
		)
	}
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func canonicalURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimRight(u, "/")
}

// Merge reconciles two records with equal fingerprints, field by field: the
// later-seen record's non-null fields win over the earlier one's, and a
// later null never erases an earlier value. Attribution (site key and
// source URL) and the earliest FirstSeen stay with the first-seen record.
func Merge(older, newer *models.Record) *models.Record {
	m := *older

	if newer.Title != "" {
		m.Title = newer.Title
	}
	if newer.Price != 0 {
		m.Price = newer.Price
		m.Currency = newer.Currency
	}
	if newer.HasLocation() {
		m.Area, m.LGA, m.State = newer.Area, newer.LGA, newer.State
	}
	if newer.Bedrooms != 0 {
		m.Bedrooms = newer.Bedrooms
	}
	if newer.Bathrooms != 0 {
		m.Bathrooms = newer.Bathrooms
	}
	if newer.PropertyType != "" {
		m.PropertyType = newer.PropertyType
	}
	if newer.Description != "" {
		m.Description = newer.Description
	}
	if newer.Latitude != 0 || newer.Longitude != 0 {
		m.Latitude, m.Longitude = newer.Latitude, newer.Longitude
	}
	m.Images = unionStrings(older.Images, newer.Images)
	m.Degradations = unionStrings(older.Degradations, newer.Degradations)

	if newer.FirstSeen.Before(m.FirstSeen) {
		m.FirstSeen = newer.FirstSeen
	}
	if newer.LastSeen.After(m.LastSeen) {
		m.LastSeen = newer.LastSeen
	}
	return &m
}

func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Index is the run-scoped fingerprint set shared across sessions. Two
// parallel sessions can encounter the same listing, so all methods are
// safe for concurrent use.
type Index struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewIndex creates an empty index. It is created at run start and discarded
// at run end; the sink is the durable index across runs.
func NewIndex() *Index {
	return &Index{seen: make(map[string]time.Time)}
}

// Add records a fingerprint. Returns false if it was already present.
func (ix *Index) Add(fp string, firstSeen time.Time) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.seen[fp]; ok {
		return false
	}
	ix.seen[fp] = firstSeen
	return true
}

// Contains reports whether the fingerprint has been seen this run.
func (ix *Index) Contains(fp string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.seen[fp]
	return ok
}

// Size returns the number of fingerprints tracked.
func (ix *Index) Size() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.seen)
}

// Result summarises one dedupe pass.
type Result struct {
	Records []*models.Record // unique, merged records in first-seen order
	Merged  int              // in-batch duplicates folded into a survivor
	Dropped int              // duplicates of records already seen this run
}

// Dedupe fingerprints the given records, merges in-batch duplicates field by
// field, and drops records whose fingerprint was already registered in the
// run index by an earlier page or session.
func Dedupe(records []*models.Record, index *Index) Result {
	var res Result
	byFP := make(map[string]int)

	for _, r := range records {
		r.Fingerprint = Fingerprint(r)

		if i, dup := byFP[r.Fingerprint]; dup {
			res.Records[i] = Merge(res.Records[i], r)
			res.Merged++
			continue
		}

		if !index.Add(r.Fingerprint, r.FirstSeen) {
			res.Dropped++
			continue
		}

		byFP[r.Fingerprint] = len(res.Records)
		res.Records = append(res.Records, r)
	}

	return res
}
