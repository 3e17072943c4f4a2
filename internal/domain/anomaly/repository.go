package anomaly

import (
	"context"
	"time"
)

// Filter narrows List queries
type Filter struct {
	Provider string
	Severity Severity
	Since    time.Time
	Limit    int
	Offset   int
}

// Repository defines persistence operations for cost anomalies
type Repository interface {
	// Create persists a new anomaly
	Create(ctx context.Context, a *CostAnomaly) error

	// GetByID returns an anomaly by ID, or errors.ErrNotFound
	GetByID(ctx context.Context, id string) (*CostAnomaly, error)

	// List returns anomalies matching the filter, newest first
	List(ctx context.Context, filter Filter) ([]*CostAnomaly, error)

	// FlaggedProvidersSince returns the set of providers that already
	// have an anomaly recorded at or after the given time
	FlaggedProvidersSince(ctx context.Context, since time.Time) (map[string]bool, error)
}
