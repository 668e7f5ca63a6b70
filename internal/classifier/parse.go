package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"rentalscope/internal/models"
)

var ordinalPrefix = regexp.MustCompile(`^\d+\.\s*`)

type ValidationKind string

const (
	CountMismatch ValidationKind = "count_mismatch"
	UnknownLabel  ValidationKind = "unknown_label"
)

// ValidationError rejects a whole classifier response. No label from a
// rejected response is ever applied.
type ValidationError struct {
	Kind ValidationKind

	// CountMismatch
	Want, Got int

	// UnknownLabel
	Line    int
	Label   string
	Closest string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case CountMismatch:
		return fmt.Sprintf("classifier response has %d lines, expected %d", e.Got, e.Want)
	case UnknownLabel:
		return fmt.Sprintf("classifier response line %d: %q is not a known category (closest: %q)", e.Line, e.Label, e.Closest)
	default:
		return "invalid classifier response"
	}
}

// ParseResponse turns the oracle's free text into exactly want labels, in
// input order. Blank lines are ignored.
func ParseResponse(text string, want int) ([]string, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	labels := make([]string, 0, want)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label := normalizeLabel(line)
		if !models.IsCategory(label) {
			return nil, &ValidationError{
				Kind:    UnknownLabel,
				Line:    len(labels) + 1,
				Label:   label,
				Closest: closestCategory(label),
			}
		}
		labels = append(labels, label)
	}
	if len(labels) != want {
		return nil, &ValidationError{Kind: CountMismatch, Want: want, Got: len(labels)}
	}
	return labels, nil
}

func normalizeLabel(line string) string {
	line = ordinalPrefix.ReplaceAllString(line, "")
	return strings.TrimSpace(strings.ToLower(line))
}

// closestCategory is only used for the error message.
func closestCategory(label string) string {
	best, bestDist := "", -1
	for _, c := range models.Categories() {
		d := levenshtein.ComputeDistance(label, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
