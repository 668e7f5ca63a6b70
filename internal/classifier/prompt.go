package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"rentalscope/internal/models"
)

// Placeholder marks where the numbered listing block goes in the template.
const Placeholder = "{{LISTINGS}}"

const (
	descriptionLimit = 200
	amenityLimit     = 5
)

//go:embed prompts/categorize.txt
var defaultTemplate string

// Template is a prompt with a single listing placeholder.
type Template struct {
	text string
}

// NewTemplate validates that text carries the placeholder exactly once.
func NewTemplate(text string) (*Template, error) {
	if n := strings.Count(text, Placeholder); n != 1 {
		return nil, fmt.Errorf("prompt template must contain %s exactly once, found %d", Placeholder, n)
	}
	return &Template{text: text}, nil
}

// LoadTemplate reads the template file at path, or the bundled default when
// path is empty.
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return NewTemplate(defaultTemplate)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt template: %w", err)
	}
	return NewTemplate(string(data))
}

// Render substitutes the numbered rendering of batch into the template.
func (t *Template) Render(batch []models.Listing) string {
	return strings.Replace(t.text, Placeholder, RenderBatch(batch), 1)
}

// RenderBatch numbers listings from 1 in input order.
func RenderBatch(batch []models.Listing) string {
	var b strings.Builder
	for i := range batch {
		l := &batch[i]
		fmt.Fprintf(&b, "Listing %d:\n", i+1)
		if l.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", l.Title)
		}
		fmt.Fprintf(&b, "Price: $%s\n", l.Price())
		if loc := location(l); loc != "" {
			fmt.Fprintf(&b, "Location: %s\n", loc)
		}
		if l.Bedrooms != nil {
			fmt.Fprintf(&b, "Bedrooms: %d\n", *l.Bedrooms)
		}
		if l.Bathrooms != nil {
			fmt.Fprintf(&b, "Bathrooms: %d\n", *l.Bathrooms)
		}
		if len(l.Amenities) > 0 {
			amenities := l.Amenities
			if len(amenities) > amenityLimit {
				amenities = amenities[:amenityLimit]
			}
			fmt.Fprintf(&b, "Amenities: %s\n", strings.Join(amenities, ", "))
		}
		fmt.Fprintf(&b, "Description: %s\n\n", truncate(l.Description, descriptionLimit))
	}
	return strings.TrimRight(b.String(), "\n")
}

func location(l *models.Listing) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{l.City, l.State} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
