// Package quality computes a 0–100 completeness score per record and gates
// persistence on a configurable floor. The gate is the single boundary
// between "scraped" and "persisted" and is evaluated after duplicate merge,
// since a merge can lift a record above the floor.
package quality

import (
	"strings"
	"sync/atomic"

	"property-scraper/models"
	"property-scraper/utils"
)

// Field weights. Title, price, location and URL carry most of the score;
// secondary fields round it out. The weights sum to 100.
const (
	weightTitle        = 20
	weightPrice        = 25
	weightLocation     = 20
	weightURL          = 15
	weightBedrooms     = 5
	weightBathrooms    = 3
	weightPropertyType = 4
	weightDescription  = 5
	weightImages       = 3
)

// Scorer evaluates record completeness.
type Scorer struct {
	// DefaultFloor is the global minimum score; sites may override it.
	DefaultFloor int

	logger   *utils.Logger
	rejected atomic.Int64
}

// NewScorer creates a Scorer with the given global floor.
func NewScorer(defaultFloor int, logger *utils.Logger) *Scorer {
	return &Scorer{DefaultFloor: defaultFloor, logger: logger}
}

// Score computes the completeness score for a record against a floor
// (pass the per-site floor, or s.DefaultFloor). The score is annotated on
// the record; rejections are counted and logged with the attained score and
// missing fields so low-quality sites can be diagnosed.
func (s *Scorer) Score(r *models.Record, floor int) models.QualityReport {
	if floor <= 0 {
		floor = s.DefaultFloor
	}

	score := 0
	var missing []string

	check := func(present bool, weight int, name string) {
		if present {
			score += weight
		} else {
			missing = append(missing, name)
		}
	}

	check(r.Title != "", weightTitle, "title")
	check(r.Price > 0, weightPrice, "price")
	check(r.HasLocation() && r.State != "Unknown", weightLocation, "location")
	check(r.SourceURL != "", weightURL, "listing_url")
	check(r.Bedrooms > 0, weightBedrooms, "bedrooms")
	check(r.Bathrooms > 0, weightBathrooms, "bathrooms")
	check(r.PropertyType != "", weightPropertyType, "property_type")
	check(r.Description != "", weightDescription, "description")
	check(len(r.Images) > 0, weightImages, "images")

	r.Score = score
	report := models.QualityReport{
		Score:         score,
		MissingFields: missing,
		Accepted:      score >= floor,
		Floor:         floor,
	}

	if !report.Accepted {
		s.rejected.Add(1)
		s.logger.Debug("[quality] Rejected %s (%s): score %d < floor %d, missing [%s]",
			r.Fingerprint, r.SiteKey, score, floor, strings.Join(missing, " "))
	}

	return report
}

// Rejected returns the number of records this scorer has rejected.
func (s *Scorer) Rejected() int {
	return int(s.rejected.Load())
}
