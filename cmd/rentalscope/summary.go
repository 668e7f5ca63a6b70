package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"rentalscope/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func printSummary(summary *models.RunSummary) {
	if summary == nil {
		return
	}
	fmt.Fprintln(os.Stderr, renderSummary(summary))
}

// renderSummary formats the counters relevant to the run kind.
func renderSummary(s *models.RunSummary) string {
	type row struct {
		label string
		value int
	}
	var rows []row
	switch s.Kind {
	case models.RunKindImport:
		rows = []row{
			{"files", s.Files},
			{"processed", s.Processed},
			{"created", s.Created},
			{"updated", s.Updated},
			{"skipped", s.Skipped},
			{"errors", s.Errors},
			{"price changes", s.PriceChanges},
		}
		if s.BatchesClassified > 0 || s.BatchesFailed > 0 {
			rows = append(rows,
				row{"classified", s.Classified},
				row{"batches failed", s.BatchesFailed},
			)
		}
	case models.RunKindClassify:
		rows = []row{
			{"batches classified", s.BatchesClassified},
			{"batches failed", s.BatchesFailed},
			{"classified", s.Classified},
		}
	default:
		rows = []row{
			{"processed", s.Processed},
			{"classified", s.Classified},
			{"skipped", s.Skipped},
		}
	}

	status := "ok"
	if s.Failed {
		status = "failed"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s run %s (%s)", s.Kind, s.RunID, status)))
	for _, r := range rows {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-18s", r.label)))
		fmt.Fprintf(&b, " %d", r.value)
	}
	if d := s.Duration(); d > 0 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-18s", "duration")))
		b.WriteString(" " + d.Round(time.Millisecond).String())
	}
	return boxStyle.Render(b.String())
}
