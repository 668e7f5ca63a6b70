package models

import "fmt"

// Category labels. The set is closed: anything else coming back from the
// classifier is rejected.
const (
	CategoryAirbnb    = "airbnb"
	CategoryStudio    = "studio apartment"
	CategoryBedroom   = "bedroom"
	CategoryBed       = "bed"
	CategoryOther     = "other"
	CategoryUnknown   = "unknown"
	categoryApartment = "%dbdr apartment"
)

// Where a listing's category came from.
const (
	CategorySourceHeuristic = "heuristic"
	CategorySourceAI        = "ai"
)

var categories = []string{
	CategoryAirbnb,
	CategoryStudio,
	ApartmentCategory(1),
	ApartmentCategory(2),
	ApartmentCategory(3),
	ApartmentCategory(4),
	CategoryBedroom,
	CategoryBed,
	CategoryOther,
	CategoryUnknown,
}

var categorySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	return set
}()

// ApartmentCategory returns the "<n>bdr apartment" label.
func ApartmentCategory(bedrooms int) string {
	return fmt.Sprintf(categoryApartment, bedrooms)
}

// Categories returns the closed vocabulary in prompt order.
func Categories() []string {
	out := make([]string, len(categories))
	copy(out, categories)
	return out
}

// IsCategory reports whether label is a member of the vocabulary.
func IsCategory(label string) bool {
	_, ok := categorySet[label]
	return ok
}
