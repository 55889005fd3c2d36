package models

import "time"

// RawCandidate holds one extracted listing exactly as it came off the page,
// before any normalization. Field values are raw strings; an empty string
// means the selector matched nothing.
type RawCandidate struct {
	SiteKey     string
	SourceURL   string
	PageIndex   int
	Title       string
	RawPrice    string
	RawLocation string
	RawBedrooms string
	RawBaths    string
	RawType     string
	Description string
	Images      []string
	ScrapedAt   time.Time
}

// Record is the canonical, normalized listing. Zero values ("" and 0) mean
// the field is unknown; the dedup engine relies on that convention when
// merging duplicates field by field.
type Record struct {
	Fingerprint  string
	SiteKey      string
	SourceURL    string
	Title        string
	Price        int64 // whole naira (or unit of Currency), 0 = unknown
	Currency     string
	Area         string
	LGA          string
	State        string
	Bedrooms     int
	Bathrooms    int
	PropertyType string
	Description  string
	Images       []string
	Latitude     float64
	Longitude    float64

	// Degradations lists fields the normalizer could not parse; the quality
	// scorer reads it when diagnosing low-scoring sites.
	Degradations []string

	Score     int
	FirstSeen time.Time
	LastSeen  time.Time
}

// HasLocation reports whether any part of the location hierarchy is known.
func (r *Record) HasLocation() bool {
	return r.Area != "" || r.LGA != "" || r.State != ""
}
