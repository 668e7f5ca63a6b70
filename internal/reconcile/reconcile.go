// Package reconcile decides how a freshly extracted listing is merged into
// the persisted one.
package reconcile

import (
	"slices"
	"time"

	"rentalscope/internal/models"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Result is the outcome of reconciling one candidate. Listing is the full
// record to persist; History is set only when the price changed.
type Result struct {
	Action  Action
	Listing models.Listing
	Changed []string
	History *models.PriceHistoryEntry

	// PreviousPriceCents is the persisted price before the merge. Zero on create.
	PreviousPriceCents int64
}

// PriceChanged reports whether the merge recorded a price change.
func (r Result) PriceChanged() bool {
	return r.History != nil
}

// Reconcile merges candidate into existing. A nil existing means the listing
// is new and is created as is, without history. Otherwise only fields that
// are present on the candidate overwrite the persisted values.
func Reconcile(candidate models.Listing, existing *models.Listing, now time.Time) Result {
	if existing == nil {
		created := candidate
		if created.Category != "" && created.CategorySource == "" {
			created.CategorySource = models.CategorySourceHeuristic
		}
		return Result{Action: ActionCreate, Listing: created}
	}

	merged := *existing
	var changed []string
	mark := func(field string, differs bool) {
		if differs {
			changed = append(changed, field)
		}
	}

	mergeString(&merged.Title, candidate.Title, "title", mark)
	mergeString(&merged.City, candidate.City, "city", mark)
	mergeString(&merged.State, candidate.State, "state", mark)
	mergeString(&merged.PostalCode, candidate.PostalCode, "postal_code", mark)
	mergeString(&merged.StreetAddress, candidate.StreetAddress, "street_address", mark)
	mergeString(&merged.Country, candidate.Country, "country", mark)
	mergeString(&merged.Description, candidate.Description, "description", mark)
	mergeString(&merged.ImageURL, candidate.ImageURL, "image_url", mark)
	mergeString(&merged.SourceFile, candidate.SourceFile, "source_file", mark)

	mergeFloat(&merged.Latitude, candidate.Latitude, "latitude", mark)
	mergeFloat(&merged.Longitude, candidate.Longitude, "longitude", mark)
	mergeInt(&merged.Bedrooms, candidate.Bedrooms, "bedrooms", mark)
	mergeInt(&merged.Bathrooms, candidate.Bathrooms, "bathrooms", mark)

	if len(candidate.Amenities) > 0 {
		mark("amenities", !slices.Equal(merged.Amenities, candidate.Amenities))
		merged.Amenities = slices.Clone(candidate.Amenities)
	}
	if candidate.PetFriendly {
		mark("pet_friendly", !merged.PetFriendly)
		merged.PetFriendly = true
	}
	if candidate.AvailableDate != nil {
		mark("available_date", merged.AvailableDate == nil || !merged.AvailableDate.Equal(*candidate.AvailableDate))
		d := *candidate.AvailableDate
		merged.AvailableDate = &d
	}

	// A persisted category is only replaced by a classification sweep.
	if merged.Category == "" && candidate.Category != "" {
		mark("category", true)
		merged.Category = candidate.Category
		merged.CategorySource = candidate.CategorySource
		if merged.CategorySource == "" {
			merged.CategorySource = models.CategorySourceHeuristic
		}
	}

	result := Result{
		Action:             ActionUpdate,
		PreviousPriceCents: existing.PriceCents,
	}

	// The price is always written; history only follows a change in its
	// two-decimal form.
	if existing.Price() != candidate.Price() {
		mark("price", true)
		result.History = &models.PriceHistoryEntry{
			ListingID:  existing.ID,
			PriceCents: candidate.PriceCents,
			RecordedAt: now.UTC(),
		}
	}
	merged.PriceCents = candidate.PriceCents

	result.Listing = merged
	result.Changed = changed
	return result
}

func mergeString(dst *string, v, field string, mark func(string, bool)) {
	if v == "" {
		return
	}
	mark(field, *dst != v)
	*dst = v
}

func mergeFloat(dst **float64, v *float64, field string, mark func(string, bool)) {
	if v == nil {
		return
	}
	mark(field, *dst == nil || **dst != *v)
	x := *v
	*dst = &x
}

func mergeInt(dst **int, v *int, field string, mark func(string, bool)) {
	if v == nil {
		return
	}
	mark(field, *dst == nil || **dst != *v)
	x := *v
	*dst = &x
}
