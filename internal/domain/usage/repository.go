package usage

import (
	"context"
	"time"
)

// Filter narrows List queries
type Filter struct {
	Provider string
	From     time.Time
	To       time.Time
	Limit    int
}

// Repository defines operations for the usage ledger
type Repository interface {
	// Store buffers a usage record for batched insertion
	Store(ctx context.Context, rec *Record) error

	// List returns usage records matching the filter, newest first
	List(ctx context.Context, filter Filter) ([]*Record, error)

	// GetProviderCosts returns total cost grouped by provider for [from, to)
	GetProviderCosts(ctx context.Context, from, to time.Time) (map[string]float64, error)

	// GetTotalCost returns the total cost across all providers for [from, to)
	GetTotalCost(ctx context.Context, from, to time.Time) (float64, error)

	// Flush forces any buffered records to storage
	Flush(ctx context.Context) error
}
