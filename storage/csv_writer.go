package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"property-scraper/models"
)

// CSVWriter dumps raw (un-normalized) candidates to a CSV file so a run's
// extraction output can be inspected offline. It is safe for concurrent use
// by parallel sessions.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"site_key", "page", "title", "raw_price", "raw_location",
		"raw_bedrooms", "raw_baths", "raw_type", "url", "images", "scraped_at",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRaw appends the given candidates to the file.
func (c *CSVWriter) WriteRaw(candidates []*models.RawCandidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range candidates {
		row := []string{
			r.SiteKey,
			strconv.Itoa(r.PageIndex),
			r.Title,
			r.RawPrice,
			r.RawLocation,
			r.RawBedrooms,
			r.RawBaths,
			r.RawType,
			r.SourceURL,
			strings.Join(r.Images, " "),
			r.ScrapedAt.Format(time.RFC3339),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
