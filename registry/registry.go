// Package registry loads and validates the per-site extraction rules that
// drive every downstream component. Descriptors are plain data: selectors,
// pagination strategy and per-site overrides, resolved once per run.
package registry

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"property-scraper/utils"
)

// Pagination modes supported by the extractors.
const (
	ModeNumbered       = "numbered"
	ModeInfiniteScroll = "infinite-scroll"
)

// Pagination is the tagged pagination strategy for one site. Numbered sites
// follow a next-page selector (or page query parameter) up to PageCap pages;
// infinite-scroll sites simulate up to ScrollSteps scrolls in the browser.
type Pagination struct {
	Mode             string `yaml:"mode"`
	PageCap          int    `yaml:"page_cap"`
	ScrollSteps      int    `yaml:"scroll_steps"`
	NextPageSelector string `yaml:"next_page_selector"`
	PageParam        string `yaml:"page_param"`
}

// SelectorMap holds the CSS selectors for list cards and detail pages.
// Empty selectors mean "field not available on this site" — extraction
// degrades, never fails.
type SelectorMap struct {
	ListItem     string `yaml:"list_item"`
	Title        string `yaml:"title"`
	Price        string `yaml:"price"`
	Location     string `yaml:"location"`
	Bedrooms     string `yaml:"bedrooms"`
	Bathrooms    string `yaml:"bathrooms"`
	PropertyType string `yaml:"property_type"`
	URL          string `yaml:"url"`
	Image        string `yaml:"image"`

	DetailDescription string `yaml:"detail_description"`
	DetailPrice       string `yaml:"detail_price"`
	DetailLocation    string `yaml:"detail_location"`
	DetailImage       string `yaml:"detail_image"`
}

// Overrides are the optional per-site knobs. Pointer fields distinguish
// "not set" from an explicit zero.
type Overrides struct {
	TimeoutSeconds   int   `yaml:"timeout_seconds"`
	PerPageSeconds   int   `yaml:"per_page_seconds"`
	QualityFloor     *int  `yaml:"quality_floor"`
	DetailEnrichment *bool `yaml:"detail_enrichment"`
}

// SiteDescriptor is one scrapeable source. Immutable during a run.
type SiteDescriptor struct {
	Key        string      `yaml:"key"`
	Name       string      `yaml:"name"`
	BaseURL    string      `yaml:"base_url"`
	Enabled    bool        `yaml:"enabled"`
	StartPath  string      `yaml:"start_path"`
	Pagination Pagination  `yaml:"pagination"`
	Selectors  SelectorMap `yaml:"selectors"`
	Overrides  Overrides   `yaml:"overrides"`
}

// StartURL joins the base URL and start path.
func (d *SiteDescriptor) StartURL() string {
	return strings.TrimRight(d.BaseURL, "/") + "/" + strings.TrimLeft(d.StartPath, "/")
}

// Timeout returns the per-site fetch timeout, falling back to def.
func (d *SiteDescriptor) Timeout(def time.Duration) time.Duration {
	if d.Overrides.TimeoutSeconds > 0 {
		return time.Duration(d.Overrides.TimeoutSeconds) * time.Second
	}
	return def
}

// PerPageCost returns the estimated wall time to fetch and process one page,
// used by the session partitioner.
func (d *SiteDescriptor) PerPageCost(def time.Duration) time.Duration {
	if d.Overrides.PerPageSeconds > 0 {
		return time.Duration(d.Overrides.PerPageSeconds) * time.Second
	}
	return def
}

// QualityFloor returns the per-site quality floor, falling back to def.
func (d *SiteDescriptor) QualityFloor(def int) int {
	if d.Overrides.QualityFloor != nil {
		return *d.Overrides.QualityFloor
	}
	return def
}

// EnrichDetails reports whether detail-page enrichment is enabled for this
// site, falling back to def.
func (d *SiteDescriptor) EnrichDetails(def bool) bool {
	if d.Overrides.DetailEnrichment != nil {
		return *d.Overrides.DetailEnrichment
	}
	return def
}

// PageBudget returns the number of list fetches the site may perform: pages
// for numbered sites, one scrolled render for infinite scroll.
func (d *SiteDescriptor) PageBudget() int {
	if d.Pagination.Mode == ModeInfiniteScroll {
		return 1
	}
	return d.Pagination.PageCap
}

// Registry is the validated set of site descriptors for one run.
type Registry struct {
	Sites []SiteDescriptor
}

type registryFile struct {
	Sites []SiteDescriptor `yaml:"sites"`
}

// Load reads descriptors from a YAML file. Malformed descriptors are skipped
// with a warning so one bad site never blocks the run; a malformed file is an
// error.
func Load(path string, logger *utils.Logger) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %q: %w", path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("registry: parse %q: %w", path, err)
	}

	reg := &Registry{}
	seen := make(map[string]struct{})
	for i := range file.Sites {
		d := file.Sites[i]
		if err := Validate(&d); err != nil {
			logger.Warn("[registry] Skipping site %q: %v", d.Key, err)
			continue
		}
		if _, dup := seen[d.Key]; dup {
			logger.Warn("[registry] Skipping duplicate site key %q", d.Key)
			continue
		}
		seen[d.Key] = struct{}{}
		reg.Sites = append(reg.Sites, d)
	}

	if len(reg.Sites) == 0 {
		return nil, fmt.Errorf("registry: no valid sites in %q", path)
	}
	return reg, nil
}

// Validate checks the invariants a descriptor must satisfy before any
// component may consume it.
func Validate(d *SiteDescriptor) error {
	if d.Key == "" {
		return fmt.Errorf("missing key")
	}
	u, err := url.Parse(d.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url %q", d.BaseURL)
	}
	if d.Selectors.ListItem == "" {
		return fmt.Errorf("selectors.list_item is required")
	}

	switch d.Pagination.Mode {
	case ModeNumbered:
		if d.Pagination.PageCap <= 0 {
			return fmt.Errorf("numbered pagination requires page_cap > 0")
		}
		if d.Pagination.NextPageSelector == "" && d.Pagination.PageParam == "" {
			return fmt.Errorf("numbered pagination requires next_page_selector or page_param")
		}
	case ModeInfiniteScroll:
		if d.Pagination.ScrollSteps <= 0 {
			return fmt.Errorf("infinite-scroll pagination requires scroll_steps > 0")
		}
	default:
		return fmt.Errorf("unknown pagination mode %q", d.Pagination.Mode)
	}

	return nil
}

// Enabled returns the enabled descriptors, optionally restricted to the
// given subset of site keys. Order is preserved so session partitioning is
// deterministic.
func (r *Registry) Enabled(subset []string) []SiteDescriptor {
	want := make(map[string]struct{}, len(subset))
	for _, k := range subset {
		want[strings.TrimSpace(k)] = struct{}{}
	}

	var out []SiteDescriptor
	for _, d := range r.Sites {
		if !d.Enabled {
			continue
		}
		if len(subset) > 0 {
			if _, ok := want[d.Key]; !ok {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

// Get returns the descriptor for key, or nil.
func (r *Registry) Get(key string) *SiteDescriptor {
	for i := range r.Sites {
		if r.Sites[i].Key == key {
			return &r.Sites[i]
		}
	}
	return nil
}
