package storage

import (
	"context"

	"property-scraper/models"
)

// Sink is the batched-upsert contract every storage backend must satisfy.
// Uploads are keyed by fingerprint and must be idempotent: repeated uploads
// of the same record merge, never duplicate.
type Sink interface {
	Upload(ctx context.Context, siteKey string, records []*models.Record) models.UploadReport
	Exists(ctx context.Context, fingerprints []string) (map[string]bool, error)
	Close() error
}

// RawDumper persists unprocessed candidates for debugging a run.
type RawDumper interface {
	WriteRaw(candidates []*models.RawCandidate) error
	Close() error
}
