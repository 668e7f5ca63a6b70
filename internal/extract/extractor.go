// Package extract maps raw marketplace documents onto models.Listing.
//
// Every target field is resolved through an ordered list of strategies; the
// first one producing a value wins and later strategies are never consulted.
package extract

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"rentalscope/internal/categorize"
	"rentalscope/internal/models"
)

// ErrMissingID marks a document that cannot become a listing. Callers count it
// as skipped, not as an error.
var ErrMissingID = errors.New("document has no listing id")

// ExtractionError is a malformed raw document.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed document: %s: %v", e.Reason, e.Err)
	}
	return "malformed document: " + e.Reason
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

const coordinatePrecision = 1e6

var (
	bedroomRegex  = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*-?\s*bedrooms?`)
	bathroomRegex = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*-?\s*bathrooms?`)
	bedRegex      = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*-?\s*bed`)
	bathRegex     = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*-?\s*bath`)
	dateRegex     = regexp.MustCompile(`(\d{4})/(\d{2})/(\d{2})`)

	petLabelWords = []string{"pet", "dog", "cat"}
	petPhrases    = []string{"pet friendly", "pets allowed", "pet-friendly", "dogs allowed", "cats allowed"}
)

// Extractor wraps Extract with a clock and the optional keyword category.
type Extractor struct {
	Now func() time.Time

	// AssignHeuristicCategory pre-populates Category with the keyword
	// categorizer. The classifier pass never overrides a non-empty value.
	AssignHeuristicCategory bool
}

// NewExtractor returns an extractor using the wall clock.
func NewExtractor(assignHeuristicCategory bool) *Extractor {
	return &Extractor{Now: time.Now, AssignHeuristicCategory: assignHeuristicCategory}
}

func (e *Extractor) Extract(doc Document) (*models.Listing, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	listing, err := Extract(doc, now())
	if err != nil {
		return nil, err
	}
	if e.AssignHeuristicCategory {
		listing.Category = categorize.Categorize(listing.Description, listing.Bedrooms)
		listing.CategorySource = models.CategorySourceHeuristic
	}
	return listing, nil
}

// Extract normalizes one document. now is only used for "available now".
func Extract(doc Document, now time.Time) (*models.Listing, error) {
	if doc == nil {
		return nil, &ExtractionError{Reason: "empty document"}
	}
	id, ok := doc.String("id")
	if !ok {
		return nil, ErrMissingID
	}

	l := &models.Listing{
		ID:          id,
		Title:       first(doc, titleChain),
		PriceCents:  priceCents(doc),
		City:        first(doc, cityChain),
		State:       first(doc, stateChain),
		PostalCode:  first(doc, postalCodeChain),
		Country:     first(doc, countryChain),
		Description: first(doc, descriptionChain),
		ImageURL:    first(doc, imageChain),
		Latitude:    coordinate(doc, "location", "latitude"),
		Longitude:   coordinate(doc, "location", "longitude"),
	}
	l.StreetAddress = streetAddress(doc, l.City, l.State)

	labels := displayLabels(doc)
	l.Bedrooms = count(doc, l, bedroomChain)
	l.Bathrooms = count(doc, l, bathroomChain)
	l.PetFriendly = petFriendly(labels, l.Description)
	l.AvailableDate = availableDate(labels, now)
	l.Amenities = amenities(labels)

	return l, nil
}

// stringStrategy produces a candidate value for one field, "" when it has none.
type stringStrategy func(Document) string

func field(keys ...string) stringStrategy {
	return func(d Document) string {
		s, _ := d.String(keys...)
		return s
	}
}

func first(doc Document, chain []stringStrategy) string {
	for _, strategy := range chain {
		if v := strategy(doc); v != "" {
			return v
		}
	}
	return ""
}

var (
	titleChain = []stringStrategy{
		field("marketplace_listing_title"),
		field("custom_title"),
	}
	cityChain = []stringStrategy{
		field("location", "reverse_geocode", "city"),
		field("location", "reverse_geocode_detailed", "city"),
	}
	stateChain = []stringStrategy{
		field("location", "reverse_geocode", "state"),
		field("location", "reverse_geocode_detailed", "state"),
	}
	postalCodeChain = []stringStrategy{
		field("location", "reverse_geocode", "postal_code"),
		field("location", "reverse_geocode_detailed", "postal_code"),
	}
	streetChain = []stringStrategy{
		field("location", "reverse_geocode_detailed", "street"),
		field("location", "reverse_geocode", "street"),
	}
	countryChain = []stringStrategy{
		field("location", "reverse_geocode_detailed", "country"),
		field("location", "reverse_geocode", "country"),
	}
	descriptionChain = []stringStrategy{
		field("listing_details", "redacted_description", "text"),
		field("redacted_description", "text"),
	}
	imageChain = []stringStrategy{
		field("primary_listing_photo", "listing_image", "uri"),
		field("primary_listing_photo", "image", "uri"),
		field("listing_photos", "0", "image", "uri"),
	}
)

func priceCents(doc Document) int64 {
	amount, ok := doc.Float("listing_price", "amount")
	if !ok {
		return 0
	}
	return models.CentsFromAmount(amount)
}

func coordinate(doc Document, keys ...string) *float64 {
	f, ok := doc.Float(keys...)
	if !ok {
		return nil
	}
	rounded := math.Round(f*coordinatePrecision) / coordinatePrecision
	return &rounded
}

// streetAddress falls back to the first subtitle that is not just the
// city/state line repeated.
func streetAddress(doc Document, city, state string) string {
	if street := first(doc, streetChain); street != "" {
		return street
	}
	city, state = strings.ToLower(city), strings.ToLower(state)
	for _, subtitle := range doc.Strings([]string{"subtitle"}, "custom_sub_titles_with_rendering_flags") {
		lower := strings.ToLower(subtitle)
		if city != "" && strings.Contains(lower, city) {
			continue
		}
		if state != "" && strings.Contains(lower, state) {
			continue
		}
		return subtitle
	}
	return ""
}

// countStrategy looks for a room count; l carries the already resolved
// title and description.
type countStrategy func(Document, *models.Listing) (int, bool)

func regexOn(re *regexp.Regexp, text func(Document, *models.Listing) string) countStrategy {
	return func(d Document, l *models.Listing) (int, bool) {
		return matchCount(re, text(d, l))
	}
}

func numeric(keys ...string) countStrategy {
	return func(d Document, _ *models.Listing) (int, bool) {
		return d.Int(keys...)
	}
}

func titleText(_ Document, l *models.Listing) string       { return l.Title }
func descriptionText(_ Document, l *models.Listing) string { return l.Description }
func unitRoomInfo(d Document, _ *models.Listing) string {
	s, _ := d.String("listing_details", "unit_room_info")
	return s
}

var (
	bedroomChain = []countStrategy{
		regexOn(bedroomRegex, titleText),
		regexOn(bedroomRegex, descriptionText),
		numeric("listing_details", "bedrooms"),
		regexOn(bedRegex, unitRoomInfo),
	}
	bathroomChain = []countStrategy{
		regexOn(bathroomRegex, titleText),
		regexOn(bathroomRegex, descriptionText),
		numeric("listing_details", "bathrooms"),
		regexOn(bathRegex, unitRoomInfo),
	}
)

func count(doc Document, l *models.Listing, chain []countStrategy) *int {
	for _, strategy := range chain {
		if n, ok := strategy(doc, l); ok {
			return &n
		}
	}
	return nil
}

func matchCount(re *regexp.Regexp, text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	var f float64
	if _, err := fmt.Sscanf(m[1], "%g", &f); err != nil {
		return 0, false
	}
	if f < 0 || f > maxCount {
		return 0, false
	}
	return int(f), true
}

func displayLabels(doc Document) []string {
	if labels := doc.Strings([]string{"display_label"}, "listing_details", "pdp_fields"); len(labels) > 0 {
		return labels
	}
	return doc.Strings([]string{"display_label"}, "pdp_fields")
}

func petFriendly(labels []string, description string) bool {
	for _, label := range labels {
		lower := strings.ToLower(label)
		for _, word := range petLabelWords {
			if strings.Contains(lower, word) {
				return true
			}
		}
	}
	desc := strings.ToLower(description)
	for _, phrase := range petPhrases {
		if strings.Contains(desc, phrase) {
			return true
		}
	}
	return false
}

func availableDate(labels []string, now time.Time) *time.Time {
	for _, label := range labels {
		if !strings.Contains(strings.ToLower(label), "available") {
			continue
		}
		if m := dateRegex.FindString(label); m != "" {
			if t, err := time.Parse("2006/01/02", m); err == nil {
				return &t
			}
		}
		if strings.Contains(strings.ToLower(label), "now") {
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
			return &today
		}
		return nil
	}
	return nil
}

func amenities(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		lower := strings.ToLower(label)
		if strings.Contains(lower, "bed") || strings.Contains(lower, "bath") || strings.Contains(lower, "available") {
			continue
		}
		out = append(out, label)
	}
	return out
}
