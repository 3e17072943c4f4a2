package baseline

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"costguard/internal/domain/usage"
	"costguard/pkg/logger"
)

// Estimator computes rolling per-provider cost baselines from the
// usage ledger. The baseline for a provider is its average daily
// spend over the trailing window, excluding the current day.
type Estimator struct {
	usageRepo usage.Repository
	clock     clockwork.Clock
	days      int
	log       *logger.Logger
}

// NewEstimator creates a baseline estimator over a trailing window of days
func NewEstimator(usageRepo usage.Repository, clock clockwork.Clock, days int) *Estimator {
	if days <= 0 {
		days = 7
	}
	return &Estimator{
		usageRepo: usageRepo,
		clock:     clock,
		days:      days,
		log:       logger.Get().With("component", "baseline_estimator"),
	}
}

// Baselines returns the average daily cost per provider over the
// trailing window [today-days, today), in UTC day boundaries.
// Providers with no usage in the window are absent from the map.
func (e *Estimator) Baselines(ctx context.Context) (map[string]float64, error) {
	today := e.startOfToday()
	from := today.AddDate(0, 0, -e.days)

	totals, err := e.usageRepo.GetProviderCosts(ctx, from, today)
	if err != nil {
		return nil, err
	}

	baselines := make(map[string]float64, len(totals))
	for provider, total := range totals {
		baselines[provider] = total / float64(e.days)
	}

	e.log.Debugf("Computed baselines for %d providers over %d days", len(baselines), e.days)
	return baselines, nil
}

// TodayCosts returns each provider's spend so far for the current UTC day
func (e *Estimator) TodayCosts(ctx context.Context) (map[string]float64, error) {
	today := e.startOfToday()
	return e.usageRepo.GetProviderCosts(ctx, today, today.AddDate(0, 0, 1))
}

// startOfToday returns midnight UTC of the current day
func (e *Estimator) startOfToday() time.Time {
	now := e.clock.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
