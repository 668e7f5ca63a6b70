package models

import (
	"fmt"
	"math"
	"time"
)

// Listing is the normalized, flattened form of one scraped rental document.
type Listing struct {
	ID             string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title          string     `gorm:"type:text" json:"title"`
	PriceCents     int64      `gorm:"not null;default:0" json:"price_cents"`
	City           string     `gorm:"type:varchar(128);index" json:"city"`
	State          string     `gorm:"type:varchar(128)" json:"state"`
	PostalCode     string     `gorm:"type:varchar(32)" json:"postal_code"`
	StreetAddress  string     `gorm:"type:text" json:"street_address"`
	Country        string     `gorm:"type:varchar(64)" json:"country"`
	Latitude       *float64   `json:"latitude"`
	Longitude      *float64   `json:"longitude"`
	Bedrooms       *int       `json:"bedrooms"`
	Bathrooms      *int       `json:"bathrooms"`
	Description    string     `gorm:"type:text" json:"description"`
	Amenities      []string   `gorm:"type:text;serializer:json" json:"amenities"`
	PetFriendly    bool       `gorm:"not null;default:false" json:"pet_friendly"`
	AvailableDate  *time.Time `gorm:"type:date" json:"available_date"`
	ImageURL       string     `gorm:"type:text" json:"image_url"`
	Category       string     `gorm:"type:varchar(32);index" json:"category"`
	CategorySource string     `gorm:"type:varchar(16)" json:"category_source"`
	SourceFile     string     `gorm:"type:text" json:"source_file"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Price returns the display form of the listing price, e.g. "1234.50".
func (l *Listing) Price() string {
	return FormatCents(l.PriceCents)
}

// PriceHistoryEntry records one observed price change. Rows are never updated.
type PriceHistoryEntry struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID  string    `gorm:"type:varchar(64);not null;index:idx_history_listing" json:"listing_id"`
	PriceCents int64     `gorm:"not null" json:"price_cents"`
	RecordedAt time.Time `gorm:"not null;index:idx_history_listing,priority:2" json:"recorded_at"`
	RunID      string    `gorm:"type:varchar(36)" json:"run_id"`
}

func (PriceHistoryEntry) TableName() string {
	return "price_history"
}

// CentsFromAmount converts a decimal amount to integer cents, rounding half away from zero.
// Negative amounts are clamped to zero; amounts too large for int64 cents are
// treated as unreadable and also give zero.
func CentsFromAmount(amount float64) int64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0
	}
	cents := math.Round(amount * 100)
	if cents >= float64(math.MaxInt64) {
		return 0
	}
	return int64(cents)
}

// FormatCents renders cents as a two-decimal string without currency symbol.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
