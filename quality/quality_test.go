package quality

import (
	"testing"
	"time"

	"property-scraper/dedupe"
	"property-scraper/models"
	"property-scraper/utils"
)

func fullRecord() *models.Record {
	return &models.Record{
		SiteKey:      "testsite",
		SourceURL:    "https://x/y",
		Title:        "3 Bed Flat, Lekki",
		Price:        35_000_000,
		Currency:     "NGN",
		Area:         "Lekki",
		LGA:          "Eti-Osa",
		State:        "Lagos",
		Bedrooms:     3,
		Bathrooms:    3,
		PropertyType: "Flat",
		Description:  "Newly built flat",
		Images:       []string{"https://x/img.jpg"},
	}
}

func TestScoreCompleteRecord(t *testing.T) {
	s := NewScorer(60, utils.NewLogger())
	rep := s.Score(fullRecord(), 0)

	if rep.Score != 100 {
		t.Errorf("complete record score = %d; want 100", rep.Score)
	}
	if !rep.Accepted {
		t.Error("complete record must be accepted")
	}
	if len(rep.MissingFields) != 0 {
		t.Errorf("missing fields: got %v, want none", rep.MissingFields)
	}
}

func TestScoreLekkiScenarioAboveFloor(t *testing.T) {
	// Title, price, location and URL present — the heavyweight fields.
	r := &models.Record{
		SourceURL: "https://x/y",
		Title:     "3 Bed Flat, Lekki, ₦35,000,000 For Sale",
		Price:     35_000_000,
		Currency:  "NGN",
		Area:      "Lekki",
		LGA:       "Eti-Osa",
		State:     "Lagos",
		Bedrooms:  3,

		PropertyType: "Flat",
	}

	s := NewScorer(60, utils.NewLogger())
	rep := s.Score(r, 0)
	if !rep.Accepted {
		t.Errorf("scenario record rejected with score %d (floor 60)", rep.Score)
	}
}

func TestScoreRejectionBelowFloor(t *testing.T) {
	s := NewScorer(60, utils.NewLogger())
	sparse := &models.Record{Title: "Mystery listing"}

	rep := s.Score(sparse, 0)
	if rep.Accepted {
		t.Errorf("sparse record accepted with score %d", rep.Score)
	}
	if len(rep.MissingFields) == 0 {
		t.Error("rejection must list missing fields")
	}
	if s.Rejected() != 1 {
		t.Errorf("rejected counter = %d; want 1", s.Rejected())
	}
}

func TestScorePerSiteFloorOverride(t *testing.T) {
	s := NewScorer(80, utils.NewLogger())
	r := &models.Record{
		SourceURL: "https://x/y",
		Title:     "Land at Epe",
		Price:     5_000_000,
		Currency:  "NGN",
	}

	strict := s.Score(r, 0) // global floor 80
	if strict.Accepted {
		t.Errorf("score %d should fail floor 80", strict.Score)
	}

	lenient := s.Score(r, 50) // per-site floor
	if !lenient.Accepted {
		t.Errorf("score %d should pass floor 50", lenient.Score)
	}
}

func TestScoreUnknownStateGetsNoLocationCredit(t *testing.T) {
	s := NewScorer(60, utils.NewLogger())

	known := &models.Record{Area: "Lekki", LGA: "Eti-Osa", State: "Lagos"}
	unknown := &models.Record{Area: "Somewhere Obscure", State: "Unknown"}

	if s.Score(known, 0).Score <= s.Score(unknown, 0).Score {
		t.Error("resolved location must outscore an unresolved one")
	}
}

// Merging two partial duplicates can only raise or maintain the score,
// never lower it — the quality gate runs after merge for exactly this
// reason.
func TestScoreMonotonicUnderMerge(t *testing.T) {
	s := NewScorer(60, utils.NewLogger())

	a := &models.Record{
		SourceURL: "https://x/y",
		Title:     "3 Bed Flat",
		FirstSeen: time.Unix(100, 0),
	}
	b := &models.Record{
		Price:     35_000_000,
		Currency:  "NGN",
		Area:      "Lekki",
		LGA:       "Eti-Osa",
		State:     "Lagos",
		FirstSeen: time.Unix(200, 0),
	}

	scoreA := s.Score(a, 0).Score
	scoreB := s.Score(b, 0).Score
	merged := dedupe.Merge(a, b)
	scoreM := s.Score(merged, 0).Score

	if scoreM < scoreA || scoreM < scoreB {
		t.Errorf("merged score %d below inputs (%d, %d)", scoreM, scoreA, scoreB)
	}

	// And here the merge lifts the record over the floor even though both
	// halves alone would be rejected.
	if scoreA >= 60 || scoreB >= 60 {
		t.Fatalf("test setup: inputs should each be below the floor (%d, %d)", scoreA, scoreB)
	}
	if scoreM < 60 {
		t.Errorf("merged record should clear the floor, scored %d", scoreM)
	}
}
