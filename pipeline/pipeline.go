// Package pipeline drives one site end to end: fetch pages in pagination
// order, extract candidates, normalize, deduplicate, score after merge, and
// upload in batches. Failures are contained at the narrowest scope: a bad
// page skips the page, a hopeless site is abandoned, and neither crosses
// the site boundary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"property-scraper/dedupe"
	"property-scraper/extract"
	"property-scraper/fetch"
	"property-scraper/geo"
	"property-scraper/models"
	"property-scraper/normalize"
	"property-scraper/quality"
	"property-scraper/registry"
	"property-scraper/storage"
	"property-scraper/utils"
)

// Options are the run-level knobs shared by all sites.
type Options struct {
	// PageCap further limits each site's page budget when > 0.
	PageCap int
	// AttemptBudget is the fetch cascade's total attempt budget per page.
	AttemptBudget int
	// EnrichDetails enables detail-page enrichment for sites that allow it.
	EnrichDetails bool
	// EnrichConcurrency bounds parallel detail fetches. It defaults to 1:
	// serial enrichment is the tested, explicit default.
	EnrichConcurrency int
	// Geocode enables coordinate enrichment.
	Geocode bool
	// DefaultTimeout is the per-fetch timeout for sites without an override.
	DefaultTimeout time.Duration
	// DefaultFloor is the global quality floor.
	DefaultFloor int
	// RateLimitMs paces page fetches within a site.
	RateLimitMs int
}

// Pipeline owns the per-site scrape flow. One Pipeline serves all sessions;
// its collaborators are all safe for concurrent use.
type Pipeline struct {
	cascade    *fetch.Cascade
	normalizer *normalize.Normalizer
	scorer     *quality.Scorer
	sink       storage.Sink
	index      *dedupe.Index
	geocoder   *geo.Geocoder
	raw        storage.RawDumper
	logger     *utils.Logger
	opts       Options
}

// New wires a Pipeline. geocoder and raw may be nil.
func New(
	cascade *fetch.Cascade,
	normalizer *normalize.Normalizer,
	scorer *quality.Scorer,
	sink storage.Sink,
	index *dedupe.Index,
	geocoder *geo.Geocoder,
	raw storage.RawDumper,
	opts Options,
	logger *utils.Logger,
) *Pipeline {
	if opts.EnrichConcurrency <= 0 {
		opts.EnrichConcurrency = 1
	}
	if opts.AttemptBudget <= 0 {
		opts.AttemptBudget = 4
	}
	return &Pipeline{
		cascade:    cascade,
		normalizer: normalizer,
		scorer:     scorer,
		sink:       sink,
		index:      index,
		geocoder:   geocoder,
		raw:        raw,
		logger:     logger,
		opts:       opts,
	}
}

// ScrapeSite runs the full pipeline for one site and always returns a
// report, partial or not. The error is non-nil only when the site produced
// nothing usable (abandoned, cancelled, or every page failed).
func (p *Pipeline) ScrapeSite(ctx context.Context, d *registry.SiteDescriptor) (models.SiteReport, error) {
	report := models.SiteReport{SiteKey: d.Key}
	started := time.Now()

	candidates, pagesFailed, err := p.collectPages(ctx, d, &report)
	if err != nil {
		report.Reason = err.Error()
		return report, err
	}
	report.Found = len(candidates)

	if p.raw != nil && len(candidates) > 0 {
		if err := p.raw.WriteRaw(candidates); err != nil {
			p.logger.Warn("[pipeline] Raw dump for %s failed: %v", d.Key, err)
		}
	}

	if len(candidates) == 0 {
		report.Reason = fmt.Sprintf("no candidates extracted (%d pages failed)", pagesFailed)
		p.logger.Warn("[pipeline] %s produced no candidates: %s", d.Key, report.Reason)
		return report, nil
	}

	if p.opts.EnrichDetails && d.EnrichDetails(true) {
		p.enrich(ctx, d, candidates)
	}

	// Normalize, then dedupe within the page batch and against the run
	// index in one pass per page grouping. Ordering within the site is
	// already page order, so first-seen semantics hold.
	records := make([]*models.Record, 0, len(candidates))
	for _, c := range candidates {
		records = append(records, p.normalizer.Normalize(c))
	}
	report.Normalized = len(records)

	res := dedupe.Dedupe(records, p.index)
	report.Deduplicated = res.Merged + res.Dropped

	// Cross-run pass: already-persisted fingerprints count as duplicates in
	// the report, but the records are still uploaded. The sink's
	// merge-on-write upsert is the idempotent third pass.
	if known, err := p.sink.Exists(ctx, fingerprintsOf(res.Records)); err != nil {
		p.logger.Warn("[pipeline] Cross-run index check for %s failed: %v", d.Key, err)
	} else {
		for _, r := range res.Records {
			if known[r.Fingerprint] {
				report.Deduplicated++
			}
		}
	}

	// Quality gate runs after merge, never before.
	accepted := make([]*models.Record, 0, len(res.Records))
	for _, r := range res.Records {
		if rep := p.scorer.Score(r, d.QualityFloor(p.opts.DefaultFloor)); rep.Accepted {
			accepted = append(accepted, r)
		} else {
			report.Rejected++
		}
	}

	if p.opts.Geocode && p.geocoder != nil {
		for _, r := range accepted {
			if pt, ok := p.geocoder.Geocode(ctx, r.Area, r.State); ok {
				r.Latitude, r.Longitude = pt.Lat, pt.Lng
			}
		}
	}

	upload := p.sink.Upload(ctx, d.Key, accepted)
	report.Uploaded = upload.Uploaded
	report.Errors += upload.Errors
	if upload.Status == models.UploadFailed {
		report.Reason = "sink: " + upload.Reason
	} else if upload.Status == models.UploadEmpty && report.Reason == "" {
		report.Reason = upload.Reason
	}

	p.logger.Info("[pipeline] %s done in %v: found=%d normalized=%d dedup=%d rejected=%d uploaded=%d errors=%d",
		d.Key, time.Since(started).Round(time.Millisecond), report.Found, report.Normalized,
		report.Deduplicated, report.Rejected, report.Uploaded, report.Errors)

	if upload.Status == models.UploadFailed {
		return report, fmt.Errorf("sink unreachable for %s: %s", d.Key, upload.Reason)
	}
	return report, nil
}

// collectPages walks the site's pagination and extracts raw candidates.
// Page N+1 is never fetched before page N completes: the stop conditions
// depend on page N's content.
func (p *Pipeline) collectPages(ctx context.Context, d *registry.SiteDescriptor, report *models.SiteReport) ([]*models.RawCandidate, int, error) {
	if d.Pagination.Mode == registry.ModeInfiniteScroll {
		return p.collectScrolled(ctx, d, report)
	}

	maxPages := d.Pagination.PageCap
	if p.opts.PageCap > 0 && p.opts.PageCap < maxPages {
		maxPages = p.opts.PageCap
	}

	var all []*models.RawCandidate
	pagesFailed := 0
	pageURL := d.StartURL()
	visited := utils.NewKeySet()

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return all, pagesFailed, fmt.Errorf("site %s cancelled on page %d: %w", d.Key, page, err)
		}
		if !visited.Add(pageURL) {
			// A next-page link pointing at an already-fetched URL means the
			// site's pagination loops; stop rather than spin until the cap.
			p.logger.Warn("[pipeline] %s pagination loops back to %s — stopping", d.Key, pageURL)
			break
		}
		if p.cascade.Abandoned(d.Key) {
			report.Abandoned = true
			return all, pagesFailed, fmt.Errorf("site %s abandoned after repeated fetch failures", d.Key)
		}

		rendered, err := p.cascade.Fetch(ctx, fetch.Request{
			URL:     pageURL,
			SiteKey: d.Key,
			Timeout: d.Timeout(p.opts.DefaultTimeout),
		}, p.opts.AttemptBudget)

		if err != nil {
			var failure *fetch.Failure
			if !errors.As(err, &failure) {
				return all, pagesFailed, err // context cancellation
			}
			// Page skipped, site continues. Selector-driven pagination
			// cannot find the next link without this page's content.
			pagesFailed++
			report.Errors++
			p.logger.Warn("[pipeline] %s page %d skipped: %v", d.Key, page, err)
			if d.Pagination.PageParam == "" {
				break
			}
			pageURL = extract.PageURL(d, page+1)
			continue
		}

		candidates, err := extract.List(rendered.HTML, d, page)
		if err != nil {
			pagesFailed++
			report.Errors++
			p.logger.Warn("[pipeline] %s page %d unparseable: %v", d.Key, page, err)
		}
		if len(candidates) == 0 && err == nil {
			p.logger.Debug("[pipeline] %s page %d empty, stopping pagination", d.Key, page)
			break
		}
		all = append(all, candidates...)

		next, err := p.nextPageURL(rendered.HTML, d, page)
		if err != nil || next == "" {
			break
		}
		pageURL = next

		if p.opts.RateLimitMs > 0 {
			time.Sleep(time.Duration(p.opts.RateLimitMs) * time.Millisecond)
		}
	}

	return all, pagesFailed, nil
}

func (p *Pipeline) nextPageURL(html string, d *registry.SiteDescriptor, page int) (string, error) {
	if d.Pagination.NextPageSelector != "" {
		return extract.NextPageURL(html, d)
	}
	if d.Pagination.PageParam != "" {
		return extract.PageURL(d, page+1), nil
	}
	return "", nil
}

// collectScrolled renders the infinite-scroll listing in one browser pass.
func (p *Pipeline) collectScrolled(ctx context.Context, d *registry.SiteDescriptor, report *models.SiteReport) ([]*models.RawCandidate, int, error) {
	rendered, err := p.cascade.Fetch(ctx, fetch.Request{
		URL:          d.StartURL(),
		SiteKey:      d.Key,
		Timeout:      d.Timeout(p.opts.DefaultTimeout),
		ScrollSteps:  d.Pagination.ScrollSteps,
		ItemSelector: d.Selectors.ListItem,
	}, p.opts.AttemptBudget)

	if err != nil {
		var failure *fetch.Failure
		if !errors.As(err, &failure) {
			return nil, 0, err
		}
		report.Errors++
		if p.cascade.Abandoned(d.Key) {
			report.Abandoned = true
			return nil, 1, fmt.Errorf("site %s abandoned after repeated fetch failures", d.Key)
		}
		return nil, 1, nil
	}

	candidates, err := extract.List(rendered.HTML, d, 1)
	if err != nil {
		report.Errors++
		return nil, 1, nil
	}
	return candidates, 0, nil
}

// enrich fetches detail pages through the cascade and overlays their fields
// onto the base candidates. Enrichment is best-effort: a timeout or failure
// degrades to "no enrichment" and never drops the base record.
func (p *Pipeline) enrich(ctx context.Context, d *registry.SiteDescriptor, candidates []*models.RawCandidate) {
	pool := utils.NewWorkerPool(p.opts.EnrichConcurrency, p.opts.RateLimitMs)
	seen := utils.NewKeySet()

	for _, candidate := range candidates {
		c := candidate
		if c.SourceURL == "" || !seen.Add(c.SourceURL) {
			continue
		}
		pool.Submit(func() {
			if ctx.Err() != nil || p.cascade.Abandoned(d.Key) {
				return
			}
			rendered, err := p.cascade.Fetch(ctx, fetch.Request{
				URL:     c.SourceURL,
				SiteKey: d.Key,
				Timeout: d.Timeout(p.opts.DefaultTimeout),
			}, 2)
			if err != nil {
				p.logger.Debug("[pipeline] Detail skipped for %s: %v", c.SourceURL, err)
				return
			}
			overlay, err := extract.Detail(rendered.HTML, d)
			if err != nil {
				return
			}
			overlay.Apply(c)
		})
	}
	pool.Wait()
}

func fingerprintsOf(records []*models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Fingerprint
	}
	return out
}
