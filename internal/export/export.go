// Package export writes the listing table as a dataset directory: a CSV
// file, a GeoJSON file of the geolocated listings and the dataset metadata
// expected by the publishing CLI.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"rentalscope/internal/models"
)

const (
	CSVFile      = "listings.csv"
	GeoJSONFile  = "listings.geojson"
	MetadataFile = "dataset-metadata.json"
)

var csvHeader = []string{
	"id", "title", "price", "city", "state", "postal_code", "street_address", "country",
	"latitude", "longitude", "bedrooms", "bathrooms", "pet_friendly", "available_date",
	"category", "amenities", "image_url", "description",
}

// Metadata is the dataset descriptor read by the publishing CLI.
type Metadata struct {
	Title    string    `json:"title"`
	ID       string    `json:"id"`
	Licenses []License `json:"licenses"`
}

type License struct {
	Name string `json:"name"`
}

type Exporter struct {
	DatasetID string
	Title     string
	logger    *logrus.Logger
	now       func() time.Time
}

func NewExporter(datasetID string, logger *logrus.Logger) *Exporter {
	return &Exporter{
		DatasetID: datasetID,
		Title:     "Rental listings",
		logger:    logger,
		now:       time.Now,
	}
}

// Write replaces the dataset files in dir with the given listings.
func (e *Exporter) Write(dir string, listings []models.Listing) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	if err := writeCSV(filepath.Join(dir, CSVFile), listings); err != nil {
		return err
	}
	features, err := writeGeoJSON(filepath.Join(dir, GeoJSONFile), listings, e.now())
	if err != nil {
		return err
	}
	if err := e.writeMetadata(filepath.Join(dir, MetadataFile)); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"dir":        dir,
		"listings":   len(listings),
		"geolocated": features,
	}).Info("Exported dataset")
	return nil
}

func writeCSV(path string, listings []models.Listing) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i := range listings {
		if err := w.Write(csvRow(&listings[i])); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return f.Close()
}

func csvRow(l *models.Listing) []string {
	availableDate := ""
	if l.AvailableDate != nil {
		availableDate = l.AvailableDate.Format("2006-01-02")
	}
	return []string{
		l.ID,
		l.Title,
		l.Price(),
		l.City,
		l.State,
		l.PostalCode,
		l.StreetAddress,
		l.Country,
		formatFloat(l.Latitude),
		formatFloat(l.Longitude),
		formatInt(l.Bedrooms),
		formatInt(l.Bathrooms),
		strconv.FormatBool(l.PetFriendly),
		availableDate,
		l.Category,
		strings.Join(l.Amenities, "; "),
		l.ImageURL,
		l.Description,
	}
}

func writeGeoJSON(path string, listings []models.Listing, generated time.Time) (int, error) {
	fc := geojson.NewFeatureCollection()
	for i := range listings {
		l := &listings[i]
		if l.Latitude == nil || l.Longitude == nil {
			continue
		}

		feature := geojson.NewFeature(orb.Point{*l.Longitude, *l.Latitude})
		feature.ID = l.ID
		feature.Properties = geojson.Properties{
			"id":       l.ID,
			"title":    l.Title,
			"price":    l.Price(),
			"city":     l.City,
			"category": l.Category,
		}
		if l.Bedrooms != nil {
			feature.Properties["bedrooms"] = *l.Bedrooms
		}
		fc.Append(feature)
	}
	fc.ExtraMembers = geojson.Properties{
		"generated": generated.UTC().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return len(fc.Features), nil
}

func (e *Exporter) writeMetadata(path string) error {
	meta := Metadata{
		Title:    e.Title,
		ID:       e.DatasetID,
		Licenses: []License{{Name: "CC0-1.0"}},
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dataset metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
