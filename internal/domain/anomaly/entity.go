package anomaly

import (
	"encoding/json"
	"time"
)

// CostAnomaly represents a detected deviation from a provider's cost baseline
type CostAnomaly struct {
	ID        string    `db:"id" json:"id"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`

	// Subject
	Provider string `db:"provider" json:"provider"`
	Service  string `db:"service" json:"service"`

	// Detection results
	CurrentCost      float64  `db:"current_cost" json:"current_cost"`
	ExpectedCost     float64  `db:"expected_cost" json:"expected_cost"`
	DeviationPercent float64  `db:"deviation_percent" json:"deviation_percent"`
	Severity         Severity `db:"severity" json:"severity"`
	Description      string   `db:"description" json:"description"`

	Meta json.RawMessage `db:"meta" json:"meta,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Severity classifies how far a cost deviates from its baseline
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid checks if severity is valid
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// String returns string representation
func (s Severity) String() string {
	return string(s)
}

// SeverityForDeviation maps a deviation percentage to a severity class
func SeverityForDeviation(deviationPercent float64) Severity {
	switch {
	case deviationPercent < 100:
		return SeverityLow
	case deviationPercent < 200:
		return SeverityMedium
	case deviationPercent < 500:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}
