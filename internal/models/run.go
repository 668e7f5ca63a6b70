package models

import "time"

type RunKind string

const (
	RunKindImport     RunKind = "import"
	RunKindClassify   RunKind = "classify"
	RunKindCategorize RunKind = "categorize"
)

// RunSummary holds the counters reported at the end of every run.
type RunSummary struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	RunID             string    `gorm:"type:varchar(36);uniqueIndex" json:"run_id"`
	Kind              RunKind   `gorm:"type:varchar(16);not null" json:"kind"`
	StartedAt         time.Time `gorm:"not null" json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Files             int       `json:"files"`
	Processed         int       `json:"processed"`
	Created           int       `json:"created"`
	Updated           int       `json:"updated"`
	Skipped           int       `json:"skipped"`
	Errors            int       `json:"errors"`
	PriceChanges      int       `json:"price_changes"`
	BatchesClassified int       `json:"batches_classified"`
	BatchesFailed     int       `json:"batches_failed"`
	Classified        int       `json:"classified"`
	Failed            bool      `json:"failed"`
}

// Duration returns how long the run took, or zero while it is still running.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
