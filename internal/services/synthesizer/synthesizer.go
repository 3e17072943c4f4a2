package synthesizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"costguard/internal/domain/action"
	"costguard/internal/domain/anomaly"
)

// ApprovalThreshold is the deviation percentage at and above which a
// proposed action requires human approval before execution.
const ApprovalThreshold = 100.0

// llmVendors are providers whose overspend is remediated by routing
// traffic to a cheaper model rather than scaling infrastructure down.
var llmVendors = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"google":    true,
	"deepseek":  true,
}

// Synthesizer converts a detected anomaly into a proposed remediation.
// It is a deterministic pure function of the anomaly; no I/O.
type Synthesizer struct{}

// New creates a synthesizer
func New() *Synthesizer {
	return &Synthesizer{}
}

// Synthesize builds an OptimizationAction proposal for an anomaly
func (s *Synthesizer) Synthesize(a *anomaly.CostAnomaly, now time.Time) *action.OptimizationAction {
	savings := decimal.NewFromFloat(a.CurrentCost - a.ExpectedCost)
	if savings.IsNegative() {
		savings = decimal.Zero
	}
	savings = savings.Round(2)

	actionType := action.TypeScaleDown
	if llmVendors[strings.ToLower(a.Provider)] {
		actionType = action.TypeSwitchModel
	}

	risk := riskForDeviation(a.DeviationPercent)
	savingsFloat, _ := savings.Float64()

	return &action.OptimizationAction{
		ID:               uuid.NewString(),
		AnomalyID:        a.ID,
		Timestamp:        now.UTC(),
		Type:             actionType,
		Description:      describe(actionType, a, savings),
		EstimatedSavings: savingsFloat,
		RiskLevel:        risk,
		RequiresApproval: a.DeviationPercent >= ApprovalThreshold,
		AutoApproved:     false,
		Status:           action.StatusPending,
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}
}

func riskForDeviation(deviationPercent float64) action.Risk {
	switch {
	case deviationPercent < 100:
		return action.RiskLow
	case deviationPercent < 200:
		return action.RiskMedium
	default:
		return action.RiskHigh
	}
}

func describe(t action.Type, a *anomaly.CostAnomaly, savings decimal.Decimal) string {
	switch t {
	case action.TypeSwitchModel:
		return fmt.Sprintf("Route %s traffic to a cheaper model (est. savings $%s/day)",
			a.Provider, savings.StringFixed(2))
	default:
		return fmt.Sprintf("Scale down %s %s resources (est. savings $%s/day)",
			a.Provider, a.Service, savings.StringFixed(2))
	}
}
