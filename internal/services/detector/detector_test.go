package detector

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costguard/internal/domain/anomaly"
)

func TestDetector_Evaluate_NoBaseline(t *testing.T) {
	d := New()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// A brand new provider has no history, so any spend is normal
	assert.Nil(t, d.Evaluate("openai", 500.0, 0, now))
	assert.Nil(t, d.Evaluate("openai", 500.0, -1.5, now))
}

func TestDetector_Evaluate_BelowThreshold(t *testing.T) {
	d := New()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// Deviation of exactly 50% is still normal
	assert.Nil(t, d.Evaluate("openai", 150.0, 100.0, now))
	assert.Nil(t, d.Evaluate("openai", 100.0, 100.0, now))
	assert.Nil(t, d.Evaluate("openai", 50.0, 100.0, now))
}

func TestDetector_Evaluate_SeverityBands(t *testing.T) {
	d := New()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		currentCost float64
		baseline    float64
		deviation   float64
		severity    anomaly.Severity
	}{
		{"just above threshold", 150.01, 100.0, 50.0, anomaly.SeverityLow},
		{"upper low band", 199.9, 100.0, 99.9, anomaly.SeverityLow},
		{"low despite rounding up to 100", 199.99, 100.0, 100.0, anomaly.SeverityLow},
		{"medium boundary", 200.0, 100.0, 100.0, anomaly.SeverityMedium},
		{"upper medium band", 299.9, 100.0, 199.9, anomaly.SeverityMedium},
		{"medium despite rounding up to 200", 299.99, 100.0, 200.0, anomaly.SeverityMedium},
		{"high boundary", 300.0, 100.0, 200.0, anomaly.SeverityHigh},
		{"upper high band", 599.9, 100.0, 499.9, anomaly.SeverityHigh},
		{"high despite rounding up to 500", 599.99, 100.0, 500.0, anomaly.SeverityHigh},
		{"critical boundary", 600.0, 100.0, 500.0, anomaly.SeverityCritical},
		{"extreme spike", 90.0, 10.0, 800.0, anomaly.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := d.Evaluate("openai", tt.currentCost, tt.baseline, now)
			require.NotNil(t, a)
			assert.InDelta(t, tt.deviation, a.DeviationPercent, 0.001)
			assert.Equal(t, tt.severity, a.Severity)
		})
	}
}

func TestDetector_Evaluate_AnomalyFields(t *testing.T) {
	d := New()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	a := d.Evaluate("anthropic", 90.0, 10.0, now)
	require.NotNil(t, a)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "anthropic", a.Provider)
	assert.Equal(t, "llm", a.Service)
	assert.Equal(t, 90.0, a.CurrentCost)
	assert.Equal(t, 10.0, a.ExpectedCost)
	assert.Equal(t, 800.0, a.DeviationPercent)
	assert.Equal(t, now, a.Timestamp)
	assert.Equal(t, "ANTHROPIC costs spiked 800.0% day-over-day ($10.00 → $90.00)", a.Description)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(a.Meta, &meta))
	assert.Equal(t, 10.0, meta["baseline_cost"])
}

func TestDetector_Evaluate_DeviationRounding(t *testing.T) {
	d := New()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// (100.333 - 60) / 60 * 100 = 67.221...
	a := d.Evaluate("openai", 100.333, 60.0, now)
	require.NotNil(t, a)
	assert.Equal(t, 67.2, a.DeviationPercent)
}
