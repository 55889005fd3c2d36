package normalize

import "strings"

// Place is one resolved rung of the location hierarchy.
type Place struct {
	Area  string
	LGA   string
	State string
}

// areaIndex maps lowercased area names to their LGA and state. It covers the
// areas that dominate Nigerian listing inventory; anything else falls back
// to the raw text with state "Unknown".
var areaIndex = map[string]Place{
	// Lagos
	"lekki":           {"Lekki", "Eti-Osa", "Lagos"},
	"lekki phase 1":   {"Lekki Phase 1", "Eti-Osa", "Lagos"},
	"ajah":            {"Ajah", "Eti-Osa", "Lagos"},
	"ikoyi":           {"Ikoyi", "Eti-Osa", "Lagos"},
	"victoria island": {"Victoria Island", "Eti-Osa", "Lagos"},
	"vi":              {"Victoria Island", "Eti-Osa", "Lagos"},
	"oniru":           {"Oniru", "Eti-Osa", "Lagos"},
	"ikate":           {"Ikate", "Eti-Osa", "Lagos"},
	"chevron":         {"Chevron", "Eti-Osa", "Lagos"},
	"sangotedo":       {"Sangotedo", "Eti-Osa", "Lagos"},
	"ibeju-lekki":     {"Ibeju-Lekki", "Ibeju-Lekki", "Lagos"},
	"ibeju lekki":     {"Ibeju-Lekki", "Ibeju-Lekki", "Lagos"},
	"epe":             {"Epe", "Epe", "Lagos"},
	"ikeja":           {"Ikeja", "Ikeja", "Lagos"},
	"ikeja gra":       {"Ikeja GRA", "Ikeja", "Lagos"},
	"maryland":        {"Maryland", "Ikeja", "Lagos"},
	"ogba":            {"Ogba", "Ikeja", "Lagos"},
	"ojodu":           {"Ojodu", "Ikeja", "Lagos"},
	"berger":          {"Berger", "Ikeja", "Lagos"},
	"yaba":            {"Yaba", "Lagos Mainland", "Lagos"},
	"ebute metta":     {"Ebute Metta", "Lagos Mainland", "Lagos"},
	"surulere":        {"Surulere", "Surulere", "Lagos"},
	"gbagada":         {"Gbagada", "Kosofe", "Lagos"},
	"magodo":          {"Magodo", "Kosofe", "Lagos"},
	"ketu":            {"Ketu", "Kosofe", "Lagos"},
	"ojota":           {"Ojota", "Kosofe", "Lagos"},
	"ikorodu":         {"Ikorodu", "Ikorodu", "Lagos"},
	"agege":           {"Agege", "Agege", "Lagos"},
	"isolo":           {"Isolo", "Oshodi-Isolo", "Lagos"},
	"oshodi":          {"Oshodi", "Oshodi-Isolo", "Lagos"},
	"festac":          {"Festac", "Amuwo-Odofin", "Lagos"},
	"amuwo-odofin":    {"Amuwo-Odofin", "Amuwo-Odofin", "Lagos"},
	"apapa":           {"Apapa", "Apapa", "Lagos"},
	"badagry":         {"Badagry", "Badagry", "Lagos"},
	"alimosho":        {"Alimosho", "Alimosho", "Lagos"},
	"egbeda":          {"Egbeda", "Alimosho", "Lagos"},
	"ipaja":           {"Ipaja", "Alimosho", "Lagos"},
	"ogudu":           {"Ogudu", "Kosofe", "Lagos"},
	"ilupeju":         {"Ilupeju", "Mushin", "Lagos"},
	"mushin":          {"Mushin", "Mushin", "Lagos"},
	"lagos island":    {"Lagos Island", "Lagos Island", "Lagos"},
	"obalende":        {"Obalende", "Lagos Island", "Lagos"},

	// Abuja (FCT)
	"gwarinpa":    {"Gwarinpa", "Municipal Area Council", "FCT"},
	"maitama":     {"Maitama", "Municipal Area Council", "FCT"},
	"asokoro":     {"Asokoro", "Municipal Area Council", "FCT"},
	"wuse":        {"Wuse", "Municipal Area Council", "FCT"},
	"wuse 2":      {"Wuse 2", "Municipal Area Council", "FCT"},
	"garki":       {"Garki", "Municipal Area Council", "FCT"},
	"jabi":        {"Jabi", "Municipal Area Council", "FCT"},
	"utako":       {"Utako", "Municipal Area Council", "FCT"},
	"gudu":        {"Gudu", "Municipal Area Council", "FCT"},
	"lugbe":       {"Lugbe", "Municipal Area Council", "FCT"},
	"lokogoma":    {"Lokogoma", "Municipal Area Council", "FCT"},
	"katampe":     {"Katampe", "Municipal Area Council", "FCT"},
	"guzape":      {"Guzape", "Municipal Area Council", "FCT"},
	"life camp":   {"Life Camp", "Municipal Area Council", "FCT"},
	"kubwa":       {"Kubwa", "Bwari", "FCT"},
	"karu":        {"Karu", "Municipal Area Council", "FCT"},

	// Rivers
	"port harcourt":     {"Port Harcourt", "Port Harcourt", "Rivers"},
	"gra port harcourt": {"GRA Port Harcourt", "Port Harcourt", "Rivers"},
	"eliozu":            {"Eliozu", "Obio-Akpor", "Rivers"},
	"rumuokoro":         {"Rumuokoro", "Obio-Akpor", "Rivers"},

	// Others
	"ibadan":  {"Ibadan", "Ibadan North", "Oyo"},
	"enugu":   {"Enugu", "Enugu North", "Enugu"},
	"owerri":  {"Owerri", "Owerri Municipal", "Imo"},
	"uyo":     {"Uyo", "Uyo", "Akwa Ibom"},
	"benin":   {"Benin City", "Oredo", "Edo"},
	"abeokuta": {"Abeokuta", "Abeokuta South", "Ogun"},
	"mowe":    {"Mowe", "Obafemi Owode", "Ogun"},
	"asaba":   {"Asaba", "Oshimili South", "Delta"},
	"kano":    {"Kano", "Kano Municipal", "Kano"},
	"kaduna":  {"Kaduna", "Kaduna North", "Kaduna"},
}

// stateNames recognises bare state mentions so "Lekki, Lagos" resolves the
// state even when only the area matched the index.
var stateNames = map[string]string{
	"lagos": "Lagos", "abuja": "FCT", "fct": "FCT", "rivers": "Rivers",
	"oyo": "Oyo", "ogun": "Ogun", "enugu": "Enugu", "imo": "Imo",
	"delta": "Delta", "edo": "Edo", "kano": "Kano", "kaduna": "Kaduna",
	"akwa ibom": "Akwa Ibom", "anambra": "Anambra", "abia": "Abia",
	"kwara": "Kwara", "osun": "Osun", "ondo": "Ondo", "ekiti": "Ekiti",
	"plateau": "Plateau", "cross river": "Cross River",
}

// ParseLocation decomposes freeform location text into area/LGA/state.
// Unmatched text degrades to the raw area with state "Unknown" rather than
// failing; fully empty input returns ok=false.
func ParseLocation(raw string) (Place, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Place{}, false
	}

	segments := splitSegments(raw)

	var place Place
	for _, seg := range segments {
		key := strings.ToLower(seg)
		if p, ok := areaIndex[key]; ok && place.Area == "" {
			place = p
			continue
		}
		if st, ok := stateNames[key]; ok && place.State == "" {
			place.State = st
		}
	}

	if place.Area == "" {
		// Keep the most specific segment as the area so nothing is lost.
		place.Area = titleCase(segments[0])
	}
	if place.State == "" {
		place.State = "Unknown"
	}
	return place, true
}

// FindArea scans freeform text (typically a title) for any known area name.
func FindArea(text string) (Place, bool) {
	lower := strings.ToLower(text)
	best := ""
	for name := range areaIndex {
		if strings.Contains(lower, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return Place{}, false
	}
	return areaIndex[best], true
}

func splitSegments(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '|'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{strings.TrimSpace(raw)}
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
