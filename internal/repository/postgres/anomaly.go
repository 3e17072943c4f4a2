package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"costguard/internal/domain/anomaly"
	"costguard/pkg/errors"
)

// Compile-time check
var _ anomaly.Repository = (*AnomalyRepository)(nil)

// AnomalyRepository implements anomaly.Repository using sqlx
type AnomalyRepository struct {
	db DBTX
}

// NewAnomalyRepository creates a new anomaly repository
func NewAnomalyRepository(db DBTX) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

// Create inserts a new anomaly
func (r *AnomalyRepository) Create(ctx context.Context, a *anomaly.CostAnomaly) error {
	query := `
		INSERT INTO cost_anomalies (
			id, timestamp, provider, service,
			current_cost, expected_cost, deviation_percent,
			severity, description, meta, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Timestamp, a.Provider, a.Service,
		a.CurrentCost, a.ExpectedCost, a.DeviationPercent,
		a.Severity, a.Description, a.Meta, a.CreatedAt,
	)

	return err
}

// GetByID retrieves an anomaly by ID
func (r *AnomalyRepository) GetByID(ctx context.Context, id string) (*anomaly.CostAnomaly, error) {
	var a anomaly.CostAnomaly

	query := `SELECT * FROM cost_anomalies WHERE id = $1`

	err := r.db.GetContext(ctx, &a, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, err
	}

	return &a, nil
}

// List returns anomalies matching the filter, newest first
func (r *AnomalyRepository) List(ctx context.Context, filter anomaly.Filter) ([]*anomaly.CostAnomaly, error) {
	query := `SELECT * FROM cost_anomalies WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Provider != "" {
		query += fmt.Sprintf(" AND provider = $%d", argIdx)
		args = append(args, filter.Provider)
		argIdx++
	}
	if filter.Severity != "" {
		query += fmt.Sprintf(" AND severity = $%d", argIdx)
		args = append(args, filter.Severity)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, filter.Since)
		argIdx++
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	anomalies := []*anomaly.CostAnomaly{}
	if err := r.db.SelectContext(ctx, &anomalies, query, args...); err != nil {
		return nil, err
	}

	return anomalies, nil
}

// FlaggedProvidersSince returns providers that already have an anomaly
// recorded at or after the given time
func (r *AnomalyRepository) FlaggedProvidersSince(ctx context.Context, since time.Time) (map[string]bool, error) {
	query := `SELECT DISTINCT provider FROM cost_anomalies WHERE timestamp >= $1`

	var providers []string
	if err := r.db.SelectContext(ctx, &providers, query, since); err != nil {
		return nil, err
	}

	flagged := make(map[string]bool, len(providers))
	for _, p := range providers {
		flagged[p] = true
	}

	return flagged, nil
}
