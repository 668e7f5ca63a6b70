package classifier

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentalscope/internal/models"
)

func TestLoadTemplate_Default(t *testing.T) {
	tmpl, err := LoadTemplate("")
	require.NoError(t, err)

	out := tmpl.Render([]models.Listing{{ID: "a", Description: "Cozy studio"}})
	assert.NotContains(t, out, Placeholder)
	assert.Contains(t, out, "studio apartment (full apartment/suite)")
	assert.Contains(t, out, "Listing 1:\nPrice: $0.00\nDescription: Cozy studio")
}

func TestLoadTemplate_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("Classify:\n{{LISTINGS}}\nEnd"), 0644))

	tmpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "Classify:\nListing 1:\nPrice: $9.99\nDescription: x\nEnd",
		tmpl.Render([]models.Listing{{ID: "a", PriceCents: 999, Description: "x"}}))

	_, err = LoadTemplate(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestNewTemplate_Placeholder(t *testing.T) {
	_, err := NewTemplate("no placeholder")
	assert.Error(t, err)

	_, err = NewTemplate("{{LISTINGS}} twice {{LISTINGS}}")
	assert.Error(t, err)
}

func TestRenderBatch_Truncation(t *testing.T) {
	beds, baths := 2, 1
	long := strings.Repeat("é", 250)
	out := RenderBatch([]models.Listing{
		{
			ID:          "a",
			Title:       "Sunny flat",
			PriceCents:  145000,
			City:        "Halifax",
			State:       "NS",
			Bedrooms:    &beds,
			Bathrooms:   &baths,
			Amenities:   []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"},
			Description: long,
		},
		{ID: "b", Description: "Second\n\nline"},
	})

	assert.Contains(t, out, "Listing 1:\nTitle: Sunny flat\nPrice: $1450.00\nLocation: Halifax, NS\nBedrooms: 2\nBathrooms: 1\n")
	assert.Contains(t, out, "Amenities: a1, a2, a3, a4, a5\n")
	assert.NotContains(t, out, "a6")
	assert.Contains(t, out, "Description: "+strings.Repeat("é", 200)+"\n")
	assert.NotContains(t, out, strings.Repeat("é", 201))
	assert.True(t, strings.HasSuffix(out, "Listing 2:\nPrice: $0.00\nDescription: Second line"))
}
