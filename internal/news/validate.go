package news

import (
	"strings"
)

// Categories accepted by the NewsData API.
var knownCategories = map[string]struct{}{
	"business": {}, "crime": {}, "domestic": {}, "education": {},
	"entertainment": {}, "environment": {}, "food": {}, "health": {},
	"lifestyle": {}, "other": {}, "politics": {}, "science": {},
	"sports": {}, "technology": {}, "top": {}, "tourism": {}, "world": {},
}

// ValidateParams checks a submission structurally before any job is created.
// Language and country use ISO two-letter codes; categories must be one of
// the upstream's fixed set.
func ValidateParams(p SearchParams) error {
	if strings.TrimSpace(p.Topic) == "" {
		return Errorf(KindValidation, "topic is required")
	}
	if p.Language != "" && !isISOCode(p.Language) {
		return Errorf(KindValidation, "unrecognized language code %q", p.Language)
	}
	if p.Country != "" && !isISOCode(p.Country) {
		return Errorf(KindValidation, "unrecognized country code %q", p.Country)
	}
	if p.Category != "" {
		if _, ok := knownCategories[strings.ToLower(p.Category)]; !ok {
			return Errorf(KindValidation, "unrecognized category %q", p.Category)
		}
	}
	return nil
}

func isISOCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
