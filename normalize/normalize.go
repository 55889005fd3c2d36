// Package normalize maps heterogeneous raw listing fields onto the canonical
// schema. Normalization is a pure, deterministic transform: malformed input
// degrades a field to its zero value and is recorded for the quality scorer,
// it never raises.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"property-scraper/models"
	"property-scraper/utils"
)

var (
	// amountRegexp captures the first numeric group plus an optional
	// magnitude suffix: "35,000,000", "5M", "5.5million", "950k".
	amountRegexp = regexp.MustCompile(`(?i)([\d][\d,]*(?:\.\d+)?)\s*(million|billion|thousand|[mbk])?\b`)
	// bedsRegexp matches "3 Bed", "3-bedroom", "3br" in titles.
	bedsRegexp = regexp.MustCompile(`(?i)(\d+)\s*[- ]?\s*(?:bed(?:room)?s?|br\b)`)
	// bathsRegexp matches "2 Bath", "2 bathrooms", "2 toilets".
	bathsRegexp = regexp.MustCompile(`(?i)(\d+)\s*[- ]?\s*(?:bath(?:room)?s?|toilets?)`)
	// countRegexp extracts a bare count from a structured field like "3".
	countRegexp = regexp.MustCompile(`\d+`)
)

// propertyTypeVocab canonicalizes property-type synonyms. Order matters:
// more specific patterns come before their substrings ("semi-detached"
// before "detached", "mini flat" before "flat").
var propertyTypeVocab = []struct {
	pattern   string
	canonical string
}{
	{"semi-detached", "Semi-Detached House"},
	{"semi detached", "Semi-Detached House"},
	{"fully detached", "Detached House"},
	{"detached", "Detached House"},
	{"mini flat", "Mini Flat"},
	{"mini-flat", "Mini Flat"},
	{"self contain", "Self Contain"},
	{"self-contain", "Self Contain"},
	{"terraced", "Terrace"},
	{"terrace", "Terrace"},
	{"townhouse", "Terrace"},
	{"town house", "Terrace"},
	{"penthouse", "Penthouse"},
	{"maisonette", "Maisonette"},
	{"duplex", "Duplex"},
	{"bungalow", "Bungalow"},
	{"apartment", "Flat"},
	{"flat", "Flat"},
	{"plot", "Land"},
	{"land", "Land"},
	{"acres", "Land"},
	{"hectare", "Land"},
	{"warehouse", "Commercial"},
	{"office", "Commercial"},
	{"shop", "Commercial"},
	{"commercial", "Commercial"},
	{"hotel", "Commercial"},
	{"house", "House"},
}

// Normalizer turns RawCandidates into canonical Records.
type Normalizer struct {
	logger *utils.Logger
}

// New creates a Normalizer.
func New(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize maps one raw candidate to a Record. Fingerprinting happens in
// the dedup engine, after this.
func (n *Normalizer) Normalize(c *models.RawCandidate) *models.Record {
	r := &models.Record{
		SiteKey:   c.SiteKey,
		SourceURL: strings.TrimSpace(c.SourceURL),
		Title:     collapseSpace(c.Title),
		Images:    c.Images,
		FirstSeen: c.ScrapedAt,
		LastSeen:  c.ScrapedAt,
	}
	r.Description = collapseSpace(c.Description)

	degrade := func(field string) {
		r.Degradations = append(r.Degradations, field)
	}

	// Price — structured field, falling back to an amount in the title.
	price, currency, ok := ParsePrice(c.RawPrice)
	if !ok && c.RawPrice != "" {
		degrade("price")
	}
	if !ok && c.RawPrice == "" {
		price, currency, ok = parseTitlePrice(r.Title)
	}
	if ok {
		r.Price = price
		r.Currency = currency
	}

	// Location — structured field first, then a known-area scan of the title.
	loc := c.RawLocation
	place, ok := ParseLocation(loc)
	if !ok {
		if found, hit := FindArea(r.Title); hit {
			place, ok = found, true
		} else if loc != "" {
			degrade("location")
		}
	}
	if ok {
		r.Area, r.LGA, r.State = place.Area, place.LGA, place.State
	}

	// Bedrooms/bathrooms — the structured field wins over a title-derived
	// value when both exist.
	r.Bedrooms = parseCount(c.RawBedrooms)
	if r.Bedrooms == 0 {
		if c.RawBedrooms != "" {
			degrade("bedrooms")
		}
		r.Bedrooms = matchCount(bedsRegexp, r.Title)
	}
	r.Bathrooms = parseCount(c.RawBaths)
	if r.Bathrooms == 0 {
		if c.RawBaths != "" {
			degrade("bathrooms")
		}
		r.Bathrooms = matchCount(bathsRegexp, r.Title)
	}

	// Property type — controlled vocabulary over the structured field, then
	// the title.
	r.PropertyType = CanonicalType(c.RawType)
	if r.PropertyType == "" {
		if c.RawType != "" {
			degrade("property_type")
		}
		r.PropertyType = CanonicalType(r.Title)
	}

	return r
}

// amount is one numeric candidate scanned out of a price string.
type amount struct {
	value    float64
	marked   bool // preceded by a currency symbol or naira prefix
	suffixed bool // carries a magnitude suffix (M, million, k, B)
}

func scanAmounts(raw string) []amount {
	var out []amount
	for _, idx := range amountRegexp.FindAllStringSubmatchIndex(raw, -1) {
		num := strings.ReplaceAll(raw[idx[2]:idx[3]], ",", "")
		value, err := strconv.ParseFloat(num, 64)
		if err != nil || value <= 0 {
			continue
		}

		suffix := ""
		if idx[4] >= 0 {
			suffix = strings.ToLower(raw[idx[4]:idx[5]])
		}
		switch suffix {
		case "m", "million":
			value *= 1_000_000
		case "b", "billion":
			value *= 1_000_000_000
		case "k", "thousand":
			value *= 1_000
		}

		out = append(out, amount{
			value:    value,
			marked:   currencyMarked(raw, idx[2]),
			suffixed: suffix != "",
		})
	}
	return out
}

// ParsePrice parses Nigerian price idioms: "₦5M", "N5million", "50k",
// "35,000,000", plus plain $/£/€ amounts. The returned amount is a whole
// unit of the currency (no minor units). ok is false when no amount could
// be extracted.
func ParsePrice(raw string) (int64, string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, "", false
	}

	// A price field can still contain several numbers ("450,000 per annum,
	// 2 payments"). Prefer an amount directly preceded by a currency marker;
	// otherwise take the largest, which is the price in every observed idiom.
	var best, bestMarked float64
	for _, a := range scanAmounts(raw) {
		if a.marked && a.value > bestMarked {
			bestMarked = a.value
		}
		if a.value > best {
			best = a.value
		}
	}

	if bestMarked > 0 {
		best = bestMarked
	}
	if best <= 0 {
		return 0, "", false
	}
	return int64(math.Round(best)), detectCurrency(raw), true
}

// minTitlePrice is the smallest bare number in a title accepted as a price.
// Below it, an unmarked number is a bedroom count, phase number or plot size.
const minTitlePrice = 100_000

// parseTitlePrice extracts a price from freeform title text. Unlike a
// structured price field, a title is full of numbers that are not prices, so
// an amount only counts when it is currency-marked, carries a magnitude
// suffix, or is large enough to be a plausible asking price. Titles with no
// such amount yield no price at all rather than a fabricated one.
func parseTitlePrice(title string) (int64, string, bool) {
	var best, bestMarked float64
	for _, a := range scanAmounts(title) {
		if !a.marked && !a.suffixed && a.value < minTitlePrice {
			continue
		}
		if a.marked && a.value > bestMarked {
			bestMarked = a.value
		}
		if a.value > best {
			best = a.value
		}
	}

	if bestMarked > 0 {
		best = bestMarked
	}
	if best <= 0 {
		return 0, "", false
	}
	return int64(math.Round(best)), detectCurrency(title), true
}

// currencyMarked reports whether the amount starting at pos is preceded by a
// currency symbol or naira prefix.
func currencyMarked(raw string, pos int) bool {
	prefix := strings.TrimSpace(raw[:pos])
	if prefix == "" {
		return false
	}
	for _, marker := range []string{"₦", "$", "£", "€"} {
		if strings.HasSuffix(prefix, marker) {
			return true
		}
	}
	upper := strings.ToUpper(prefix)
	if strings.HasSuffix(upper, "NGN") {
		return true
	}
	// A bare "N" prefix ("N5M") counts only when it is not the tail of a word.
	if strings.HasSuffix(upper, "N") {
		rest := upper[:len(upper)-1]
		return rest == "" || !unicode.IsLetter(rune(rest[len(rest)-1]))
	}
	return false
}

func detectCurrency(raw string) string {
	switch {
	case strings.Contains(raw, "$") || strings.Contains(strings.ToUpper(raw), "USD"):
		return "USD"
	case strings.Contains(raw, "£") || strings.Contains(strings.ToUpper(raw), "GBP"):
		return "GBP"
	case strings.Contains(raw, "€") || strings.Contains(strings.ToUpper(raw), "EUR"):
		return "EUR"
	default:
		// ₦, N-prefixed and bare amounts are all naira on these portals.
		return "NGN"
	}
}

// CanonicalType maps freeform property-type text onto the controlled
// vocabulary. Returns "" when nothing matches.
func CanonicalType(raw string) string {
	lower := strings.ToLower(raw)
	if strings.TrimSpace(lower) == "" {
		return ""
	}
	for _, v := range propertyTypeVocab {
		if strings.Contains(lower, v.pattern) {
			return v.canonical
		}
	}
	return ""
}

func parseCount(raw string) int {
	m := countRegexp.FindString(raw)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 0 || n > 50 {
		return 0
	}
	return n
}

func matchCount(re *regexp.Regexp, text string) int {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 || n > 50 {
		return 0
	}
	return n
}

// collapseSpace trims and collapses internal whitespace.
func collapseSpace(s string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(s), unicode.IsSpace)
	return strings.Join(fields, " ")
}
