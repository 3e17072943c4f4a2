package detector

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"costguard/internal/domain/anomaly"
)

// DeviationThreshold is the minimum day-over-day deviation percentage
// that counts as an anomaly. Exactly at the threshold is normal.
const DeviationThreshold = 50.0

// Detector evaluates per-provider spend against rolling baselines.
// It is a pure computation: storage and notification are the
// orchestrator's concern.
type Detector struct{}

// New creates a detector
func New() *Detector {
	return &Detector{}
}

// Evaluate compares a provider's current-day spend against its baseline
// and returns a CostAnomaly when the deviation exceeds the threshold.
// Returns nil when:
//   - the baseline is zero or negative (new provider, no signal)
//   - the deviation is at or below the threshold
func (d *Detector) Evaluate(provider string, currentCost, baseline float64, now time.Time) *anomaly.CostAnomaly {
	if baseline <= 0 {
		return nil
	}

	deviation := (currentCost - baseline) / baseline * 100
	if deviation <= DeviationThreshold {
		return nil
	}

	// Severity bands are defined on the raw deviation; rounding is for
	// storage and display only.
	severity := anomaly.SeverityForDeviation(deviation)
	rounded := math.Round(deviation*10) / 10

	meta, _ := json.Marshal(map[string]interface{}{
		"baseline_cost": baseline,
		"detected_at":   now.UTC().Format(time.RFC3339),
	})

	return &anomaly.CostAnomaly{
		ID:               uuid.NewString(),
		Timestamp:        now.UTC(),
		Provider:         provider,
		Service:          "llm",
		CurrentCost:      currentCost,
		ExpectedCost:     baseline,
		DeviationPercent: rounded,
		Severity:         severity,
		Description: fmt.Sprintf("%s costs spiked %.1f%% day-over-day ($%.2f → $%.2f)",
			strings.ToUpper(provider), rounded, baseline, currentCost),
		Meta:      meta,
		CreatedAt: now.UTC(),
	}
}
