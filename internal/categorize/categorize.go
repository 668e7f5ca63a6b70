// Package categorize assigns a category from description keywords alone. It
// never returns "other"; that label only comes from the classifier.
package categorize

import (
	"strings"

	"rentalscope/internal/models"
)

type rule struct {
	category string
	phrases  []string
}

// Checked in order, first match wins.
var keywordRules = []rule{
	{models.CategoryAirbnb, []string{"airbnb", "short term", "short-term", "nightly", "per night", "vacation rental"}},
	{models.CategoryStudio, []string{"studio"}},
	{models.CategoryBedroom, []string{"room for rent", "roommate", "shared apartment", "shared kitchen", "shared bathroom"}},
	{models.CategoryBed, []string{"shared room", "shared bedroom"}},
}

var bedroomPhrases = []struct {
	bedrooms int
	phrases  []string
}{
	{1, []string{"1 bedroom", "1-bedroom", "one bedroom"}},
	{2, []string{"2 bedroom", "2-bedroom", "two bedroom"}},
	{3, []string{"3 bedroom", "3-bedroom", "three bedroom"}},
	{4, []string{"4 bedroom", "4-bedroom", "four bedroom"}},
}

// Categorize returns the keyword category for a description. bedrooms is the
// extracted bedroom count, if any.
func Categorize(description string, bedrooms *int) string {
	desc := strings.ToLower(strings.TrimSpace(description))
	if desc == "" {
		return models.CategoryUnknown
	}

	for _, r := range keywordRules {
		if containsAny(desc, r.phrases) {
			return r.category
		}
	}

	// Counts outside 1-4 have no label in the vocabulary.
	if bedrooms != nil && *bedrooms >= 1 && *bedrooms <= 4 {
		return models.ApartmentCategory(*bedrooms)
	}

	for _, bp := range bedroomPhrases {
		if containsAny(desc, bp.phrases) {
			return models.ApartmentCategory(bp.bedrooms)
		}
	}

	return models.CategoryUnknown
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
