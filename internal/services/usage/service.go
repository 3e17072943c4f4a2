package usage

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"costguard/internal/domain/usage"
	"costguard/internal/metrics"
	"costguard/pkg/errors"
	"costguard/pkg/logger"
)

// Cache stores computed summaries to shield the ledger from repeated
// dashboard reads
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

// ProviderCost is one row of a cost breakdown
type ProviderCost struct {
	Provider string  `json:"provider"`
	Cost     float64 `json:"cost"`
}

// Summary describes spend for the current calendar month
type Summary struct {
	CurrentMonthCost float64        `json:"current_month_cost"`
	TopProviders     []ProviderCost `json:"top_providers"`
	GeneratedAt      time.Time      `json:"generated_at"`
}

const summaryCacheKey = "costguard:summary:month"
const summaryCacheTTL = 60 * time.Second

// Service handles usage record ingestion and ledger queries
type Service struct {
	repo  usage.Repository
	cache Cache
	clock clockwork.Clock
	log   *logger.Logger
}

// NewService creates a usage service
func NewService(repo usage.Repository, cache Cache, clock clockwork.Clock) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		clock: clock,
		log:   logger.Get().With("component", "usage_service"),
	}
}

// Ingest validates and buffers a usage record
func (s *Service) Ingest(ctx context.Context, rec *usage.Record) error {
	if rec.Provider == "" {
		return errors.Wrap(errors.ErrInvalidInput, "provider is required")
	}
	if rec.Cost < 0 {
		return errors.Wrap(errors.ErrInvalidInput, "cost must be non-negative")
	}
	if rec.QualityScore < 0 || rec.QualityScore > 1 {
		return errors.Wrap(errors.ErrInvalidInput, "quality_score must be in [0, 1]")
	}

	now := s.clock.Now().UTC()
	if rec.EventID == "" {
		rec.EventID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	rec.CreatedAt = now

	if err := s.repo.Store(ctx, rec); err != nil {
		return err
	}

	metrics.RecordUsage(rec.Provider, rec.Model, rec.Cost)
	return nil
}

// List returns usage records matching the filter
func (s *Service) List(ctx context.Context, filter usage.Filter) ([]*usage.Record, error) {
	if filter.To.IsZero() {
		filter.To = s.clock.Now().UTC()
	}
	if filter.From.IsZero() {
		filter.From = filter.To.AddDate(0, 0, -7)
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

// MonthSummary returns the current calendar month's total spend and
// the top five providers by cost. Results are cached briefly.
func (s *Service) MonthSummary(ctx context.Context) (*Summary, error) {
	if s.cache != nil {
		var cached Summary
		if err := s.cache.Get(ctx, summaryCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	now := s.clock.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	total, err := s.repo.GetTotalCost(ctx, monthStart, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get month total")
	}

	costs, err := s.repo.GetProviderCosts(ctx, monthStart, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get provider costs")
	}

	top := make([]ProviderCost, 0, len(costs))
	for provider, cost := range costs {
		top = append(top, ProviderCost{Provider: provider, Cost: cost})
	}
	sort.Slice(top, func(i, j int) bool { return top[i].Cost > top[j].Cost })
	if len(top) > 5 {
		top = top[:5]
	}

	summary := &Summary{
		CurrentMonthCost: total,
		TopProviders:     top,
		GeneratedAt:      now,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, summaryCacheKey, summary, summaryCacheTTL); err != nil {
			s.log.Warnf("Failed to cache summary: %v", err)
		}
	}

	return summary, nil
}
