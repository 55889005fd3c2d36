package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"property-scraper/models"
	"property-scraper/utils"
)

// PostgresSink persists normalized, scored listings. Each batch is one
// atomic upsert keyed by fingerprint; a batch failure is isolated to that
// batch's records and subsequent batches proceed.
type PostgresSink struct {
	db        *sql.DB
	batchSize int
	logger    *utils.Logger
}

// NewPostgresSink opens a connection, runs schema migrations, and returns a
// ready-to-use sink.
func NewPostgresSink(dsn string, batchSize int, logger *utils.Logger) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := utils.RetryConfig{MaxAttempts: 10, BaseDelay: time.Second, Logger: logger}
	if err := retry.Do(context.Background(), "postgres ping", db.Ping); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	if batchSize <= 0 {
		batchSize = 50
	}
	s := &PostgresSink{db: db, batchSize: batchSize, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresSink) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			fingerprint   TEXT         PRIMARY KEY,
			site_key      VARCHAR(50)  NOT NULL,
			source_url    TEXT         NOT NULL DEFAULT '',
			title         TEXT         NOT NULL DEFAULT '',
			price         BIGINT       NOT NULL DEFAULT 0,
			currency      VARCHAR(8)   NOT NULL DEFAULT '',
			area          TEXT         NOT NULL DEFAULT '',
			lga           TEXT         NOT NULL DEFAULT '',
			state         TEXT         NOT NULL DEFAULT '',
			bedrooms      INT          NOT NULL DEFAULT 0,
			bathrooms     INT          NOT NULL DEFAULT 0,
			property_type TEXT         NOT NULL DEFAULT '',
			description   TEXT         NOT NULL DEFAULT '',
			images        TEXT[]       NOT NULL DEFAULT '{}',
			latitude      DOUBLE PRECISION NOT NULL DEFAULT 0,
			longitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
			score         INT          NOT NULL DEFAULT 0,
			first_seen    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			last_seen     TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_site_key ON listings(site_key);
		CREATE INDEX IF NOT EXISTS idx_listings_state    ON listings(state);
		CREATE INDEX IF NOT EXISTS idx_listings_price    ON listings(price);
		CREATE INDEX IF NOT EXISTS idx_listings_type     ON listings(property_type);
	`)
	return err
}

// Upload groups records into fixed-size batches and upserts each one. A
// zero-record outcome always carries a reason; a totally unreachable sink
// reports status failed rather than a silent empty success.
func (s *PostgresSink) Upload(ctx context.Context, siteKey string, records []*models.Record) models.UploadReport {
	report := models.UploadReport{SiteKey: siteKey}

	// Fingerprint is the upsert key. A record without one cannot be stored
	// idempotently, so it is skipped and counted rather than inserted under a
	// blank key shared with every other unkeyed record.
	queue := make([]*models.Record, 0, len(records))
	for _, r := range records {
		if r.Fingerprint == "" {
			report.Skipped++
			continue
		}
		queue = append(queue, r)
	}
	if report.Skipped > 0 {
		s.logger.Warn("[sink] Skipped %d unkeyed records for %s", report.Skipped, siteKey)
	}

	if len(queue) == 0 {
		report.Status = models.UploadEmpty
		if report.Skipped > 0 {
			report.Reason = fmt.Sprintf("all %d records skipped: missing fingerprint", report.Skipped)
		} else {
			report.Reason = "no records to upload"
		}
		return report
	}

	var lastErr error
	for i := 0; i < len(queue); i += s.batchSize {
		end := i + s.batchSize
		if end > len(queue) {
			end = len(queue)
		}
		batch := queue[i:end]

		if err := s.upsertBatch(ctx, batch); err != nil {
			// Batch failure is isolated: count these records, keep going.
			report.Errors += len(batch)
			lastErr = err
			s.logger.Error("[sink] Batch %d-%d for %s failed: %v", i, end, siteKey, err)
			continue
		}
		report.Uploaded += len(batch)
	}

	switch {
	case report.Uploaded == 0 && lastErr != nil:
		report.Status = models.UploadFailed
		report.Reason = lastErr.Error()
	case lastErr != nil:
		report.Status = models.UploadPartial
		report.Reason = lastErr.Error()
	default:
		report.Status = models.UploadOK
	}
	return report
}

// upsertBatch writes one batch as a single multi-row INSERT with
// merge-on-conflict semantics: an incoming null (zero) field never erases a
// stored value, and first_seen only ever moves earlier.
func (s *PostgresSink) upsertBatch(ctx context.Context, batch []*models.Record) error {
	const cols = 19
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)

	for idx, r := range batch {
		base := idx * cols
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs,
			r.Fingerprint, r.SiteKey, r.SourceURL, r.Title, r.Price, r.Currency,
			r.Area, r.LGA, r.State, r.Bedrooms, r.Bathrooms, r.PropertyType,
			r.Description, pq.Array(r.Images), r.Latitude, r.Longitude, r.Score,
			r.FirstSeen, r.LastSeen)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (
			fingerprint, site_key, source_url, title, price, currency,
			area, lga, state, bedrooms, bathrooms, property_type,
			description, images, latitude, longitude, score,
			first_seen, last_seen
		)
		VALUES %s
		ON CONFLICT (fingerprint) DO UPDATE SET
			source_url    = COALESCE(NULLIF(EXCLUDED.source_url, ''), listings.source_url),
			title         = COALESCE(NULLIF(EXCLUDED.title, ''), listings.title),
			price         = CASE WHEN EXCLUDED.price > 0 THEN EXCLUDED.price ELSE listings.price END,
			currency      = COALESCE(NULLIF(EXCLUDED.currency, ''), listings.currency),
			area          = COALESCE(NULLIF(EXCLUDED.area, ''), listings.area),
			lga           = COALESCE(NULLIF(EXCLUDED.lga, ''), listings.lga),
			state         = COALESCE(NULLIF(EXCLUDED.state, ''), listings.state),
			bedrooms      = CASE WHEN EXCLUDED.bedrooms > 0 THEN EXCLUDED.bedrooms ELSE listings.bedrooms END,
			bathrooms     = CASE WHEN EXCLUDED.bathrooms > 0 THEN EXCLUDED.bathrooms ELSE listings.bathrooms END,
			property_type = COALESCE(NULLIF(EXCLUDED.property_type, ''), listings.property_type),
			description   = COALESCE(NULLIF(EXCLUDED.description, ''), listings.description),
			images        = CASE WHEN array_length(EXCLUDED.images, 1) > 0 THEN EXCLUDED.images ELSE listings.images END,
			latitude      = CASE WHEN EXCLUDED.latitude  <> 0 THEN EXCLUDED.latitude  ELSE listings.latitude  END,
			longitude     = CASE WHEN EXCLUDED.longitude <> 0 THEN EXCLUDED.longitude ELSE listings.longitude END,
			score         = GREATEST(EXCLUDED.score, listings.score),
			first_seen    = LEAST(listings.first_seen, EXCLUDED.first_seen),
			last_seen     = GREATEST(listings.last_seen, EXCLUDED.last_seen),
			updated_at    = NOW()
	`, strings.Join(valueStrings, ","))

	_, err := s.db.ExecContext(ctx, query, valueArgs...)
	return err
}

// Exists reports which of the given fingerprints are already persisted.
// This backs the cross-run dedup pass.
func (s *PostgresSink) Exists(ctx context.Context, fingerprints []string) (map[string]bool, error) {
	out := make(map[string]bool, len(fingerprints))
	if len(fingerprints) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint FROM listings WHERE fingerprint = ANY($1)`,
		pq.Array(fingerprints))
	if err != nil {
		return nil, fmt.Errorf("postgres: exists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("postgres: scan fingerprint: %w", err)
		}
		out[fp] = true
	}
	return out, rows.Err()
}

// DatasetStats summarises the whole stored dataset after a run.
type DatasetStats struct {
	Total    int
	ByState  map[string]int
	AvgPrice int64
}

// Stats aggregates the listings table for the post-run summary. Priced
// records only feed the average; zero means unknown, not free.
func (s *PostgresSink) Stats(ctx context.Context) (*DatasetStats, error) {
	stats := &DatasetStats{ByState: make(map[string]int)}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(price) FILTER (WHERE price > 0), 0)::BIGINT FROM listings`)
	if err := row.Scan(&stats.Total, &stats.AvgPrice); err != nil {
		return nil, fmt.Errorf("postgres: stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM listings GROUP BY state ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: stats by state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan state count: %w", err)
		}
		stats.ByState[state] = n
	}
	return stats, rows.Err()
}

// Close closes the database connection.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
