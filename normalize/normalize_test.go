package normalize

import (
	"testing"
	"time"

	"property-scraper/models"
	"property-scraper/utils"
)

func TestParsePriceIdioms(t *testing.T) {
	tests := []struct {
		raw          string
		wantAmount   int64
		wantCurrency string
		wantOK       bool
	}{
		{"₦35,000,000", 35_000_000, "NGN", true},
		{"₦5M", 5_000_000, "NGN", true},
		{"N5million", 5_000_000, "NGN", true},
		{"NGN 3.5m", 3_500_000, "NGN", true},
		{"950k", 950_000, "NGN", true},
		{"₦1.2B", 1_200_000_000, "NGN", true},
		{"450,000 per annum", 450_000, "NGN", true},
		{"$250,000", 250_000, "USD", true},
		{"£1,500", 1_500, "GBP", true},
		{"Price on request", 0, "", false},
		{"", 0, "", false},
		{"Contact agent", 0, "", false},
	}

	for _, tt := range tests {
		amount, currency, ok := ParsePrice(tt.raw)
		if ok != tt.wantOK {
			t.Errorf("ParsePrice(%q) ok = %v; want %v", tt.raw, ok, tt.wantOK)
			continue
		}
		if amount != tt.wantAmount {
			t.Errorf("ParsePrice(%q) amount = %d; want %d", tt.raw, amount, tt.wantAmount)
		}
		if ok && currency != tt.wantCurrency {
			t.Errorf("ParsePrice(%q) currency = %q; want %q", tt.raw, currency, tt.wantCurrency)
		}
	}
}

func TestParsePricePrefersCurrencyMarkedAmount(t *testing.T) {
	amount, currency, ok := ParsePrice("3 Bed Flat, Lekki, ₦35,000,000 For Sale")
	if !ok {
		t.Fatal("expected a price")
	}
	if amount != 35_000_000 {
		t.Errorf("amount = %d; want 35000000 (not the bedroom count)", amount)
	}
	if currency != "NGN" {
		t.Errorf("currency = %q; want NGN", currency)
	}
}

func TestParseLocationHierarchy(t *testing.T) {
	tests := []struct {
		raw       string
		wantArea  string
		wantLGA   string
		wantState string
	}{
		{"Lekki, Lagos", "Lekki", "Eti-Osa", "Lagos"},
		{"Gwarinpa, Abuja", "Gwarinpa", "Municipal Area Council", "FCT"},
		{"Yaba", "Yaba", "Lagos Mainland", "Lagos"},
		{"Somewhere Obscure", "Somewhere Obscure", "", "Unknown"},
	}

	for _, tt := range tests {
		place, ok := ParseLocation(tt.raw)
		if !ok {
			t.Errorf("ParseLocation(%q) ok = false", tt.raw)
			continue
		}
		if place.Area != tt.wantArea || place.LGA != tt.wantLGA || place.State != tt.wantState {
			t.Errorf("ParseLocation(%q) = %+v; want {%s %s %s}",
				tt.raw, place, tt.wantArea, tt.wantLGA, tt.wantState)
		}
	}

	if _, ok := ParseLocation("   "); ok {
		t.Error("blank location should not parse")
	}
}

func TestCanonicalType(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Flat / Apartment", "Flat"},
		{"flat", "Flat"},
		{"Semi-Detached Duplex", "Semi-Detached House"},
		{"Fully Detached Duplex", "Detached House"},
		{"Mini Flat", "Mini Flat"},
		{"Terraced Duplex", "Terrace"},
		{"Plot of Land", "Land"},
		{"Office Space", "Commercial"},
		{"Bungalow", "Bungalow"},
		{"", ""},
		{"mystery structure", ""},
	}

	for _, tt := range tests {
		if got := CanonicalType(tt.raw); got != tt.want {
			t.Errorf("CanonicalType(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeScenarioLekkiFlat(t *testing.T) {
	n := New(utils.NewLogger())
	c := &models.RawCandidate{
		SiteKey:   "testsite",
		SourceURL: "https://x/y",
		Title:     "3 Bed Flat, Lekki, ₦35,000,000 For Sale",
		ScrapedAt: time.Now(),
	}

	r := n.Normalize(c)

	if r.Bedrooms != 3 {
		t.Errorf("bedrooms = %d; want 3", r.Bedrooms)
	}
	if r.PropertyType != "Flat" {
		t.Errorf("property type = %q; want Flat", r.PropertyType)
	}
	if r.Area != "Lekki" {
		t.Errorf("area = %q; want Lekki", r.Area)
	}
	if r.Price != 35_000_000 {
		t.Errorf("price = %d; want 35000000", r.Price)
	}
	if r.Currency != "NGN" {
		t.Errorf("currency = %q; want NGN", r.Currency)
	}
}

func TestNormalizeStructuredFieldWinsOverTitle(t *testing.T) {
	n := New(utils.NewLogger())
	c := &models.RawCandidate{
		SiteKey:     "testsite",
		SourceURL:   "https://x/y",
		Title:       "5 Bedroom Duplex in Ikeja",
		RawBedrooms: "4",
		ScrapedAt:   time.Now(),
	}

	r := n.Normalize(c)
	if r.Bedrooms != 4 {
		t.Errorf("bedrooms = %d; want 4 (structured field wins)", r.Bedrooms)
	}
}

func TestNormalizeTitleFallbackForBeds(t *testing.T) {
	n := New(utils.NewLogger())
	c := &models.RawCandidate{
		SiteKey:   "testsite",
		SourceURL: "https://x/y",
		Title:     "Spacious 2-bedroom apartment, Yaba",
		ScrapedAt: time.Now(),
	}

	r := n.Normalize(c)
	if r.Bedrooms != 2 {
		t.Errorf("bedrooms = %d; want 2 (from title)", r.Bedrooms)
	}
	if r.PropertyType != "Flat" {
		t.Errorf("property type = %q; want Flat (apartment synonym)", r.PropertyType)
	}
	if r.State != "Lagos" {
		t.Errorf("state = %q; want Lagos (Yaba found in title)", r.State)
	}
}

func TestNormalizeTitleNumbersAreNotPrices(t *testing.T) {
	n := New(utils.NewLogger())
	c := &models.RawCandidate{
		SiteKey:   "testsite",
		SourceURL: "https://x/y",
		Title:     "Spacious 4 Bedroom Duplex in Ikeja",
		ScrapedAt: time.Now(),
	}

	r := n.Normalize(c)
	if r.Price != 0 {
		t.Errorf("price = %d; want 0 (bedroom count is not a price)", r.Price)
	}
	if r.Currency != "" {
		t.Errorf("currency = %q; want empty when no price found", r.Currency)
	}
	if r.Bedrooms != 4 {
		t.Errorf("bedrooms = %d; want 4", r.Bedrooms)
	}
}

func TestParseTitlePrice(t *testing.T) {
	tests := []struct {
		title      string
		wantAmount int64
		wantOK     bool
	}{
		{"3 Bed Flat, Lekki, ₦35,000,000 For Sale", 35_000_000, true},
		{"Land at Epe going for 120M", 120_000_000, true},
		{"Newly Built Duplex, 95,000,000", 95_000_000, true},
		{"Spacious 4 Bedroom Duplex in Ikeja", 0, false},
		{"2 Units Left at Phase 2, Magodo", 0, false},
		{"600sqm Plot in Sangotedo", 0, false},
	}

	for _, tt := range tests {
		amount, _, ok := parseTitlePrice(tt.title)
		if ok != tt.wantOK {
			t.Errorf("parseTitlePrice(%q) ok = %v; want %v", tt.title, ok, tt.wantOK)
			continue
		}
		if amount != tt.wantAmount {
			t.Errorf("parseTitlePrice(%q) amount = %d; want %d", tt.title, amount, tt.wantAmount)
		}
	}
}

func TestNormalizeMalformedInputNeverErrors(t *testing.T) {
	n := New(utils.NewLogger())
	c := &models.RawCandidate{
		SiteKey:     "testsite",
		SourceURL:   "https://x/y",
		Title:       "???",
		RawPrice:    "call for price",
		RawLocation: "",
		RawBedrooms: "many",
		ScrapedAt:   time.Now(),
	}

	r := n.Normalize(c)
	if r.Price != 0 {
		t.Errorf("unparseable price should degrade to 0, got %d", r.Price)
	}
	if r.Bedrooms != 0 {
		t.Errorf("unparseable bedrooms should degrade to 0, got %d", r.Bedrooms)
	}
	if len(r.Degradations) == 0 {
		t.Error("degradations must be recorded for the quality scorer")
	}
}
