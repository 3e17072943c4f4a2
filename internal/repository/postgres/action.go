package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"costguard/internal/domain/action"
	"costguard/pkg/errors"
)

// Compile-time check
var _ action.Repository = (*ActionRepository)(nil)

// ActionRepository implements action.Repository using sqlx
type ActionRepository struct {
	db DBTX
}

// NewActionRepository creates a new action repository
func NewActionRepository(db DBTX) *ActionRepository {
	return &ActionRepository{db: db}
}

// Create inserts a new action
func (r *ActionRepository) Create(ctx context.Context, a *action.OptimizationAction) error {
	query := `
		INSERT INTO optimization_actions (
			id, anomaly_id, timestamp,
			action_type, description, estimated_savings, risk_level,
			requires_approval, auto_approved, status,
			meta, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.AnomalyID, a.Timestamp,
		a.Type, a.Description, a.EstimatedSavings, a.RiskLevel,
		a.RequiresApproval, a.AutoApproved, a.Status,
		a.Meta, a.CreatedAt, a.UpdatedAt,
	)

	return err
}

// GetByID retrieves an action by ID
func (r *ActionRepository) GetByID(ctx context.Context, id string) (*action.OptimizationAction, error) {
	var a action.OptimizationAction

	query := `SELECT * FROM optimization_actions WHERE id = $1`

	err := r.db.GetContext(ctx, &a, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, err
	}

	return &a, nil
}

// List returns actions matching the filter, newest first
func (r *ActionRepository) List(ctx context.Context, filter action.Filter) ([]*action.OptimizationAction, error) {
	query := `SELECT * FROM optimization_actions WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Risk != "" {
		query += fmt.Sprintf(" AND risk_level = $%d", argIdx)
		args = append(args, filter.Risk)
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

	actions := []*action.OptimizationAction{}
	if err := r.db.SelectContext(ctx, &actions, query, args...); err != nil {
		return nil, err
	}

	return actions, nil
}

// UpdateStatus atomically moves an action from expected to next status.
// The WHERE clause on the current status makes concurrent transitions
// race-safe: exactly one caller wins, the rest see ErrConflict.
func (r *ActionRepository) UpdateStatus(ctx context.Context, id string, expected, next action.Status) error {
	query := `
		UPDATE optimization_actions
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`

	res, err := r.db.ExecContext(ctx, query, next, time.Now().UTC(), id, expected)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	// Zero rows: either the action does not exist or it has moved on.
	var exists bool
	checkQuery := `SELECT EXISTS(SELECT 1 FROM optimization_actions WHERE id = $1)`
	if err := r.db.GetContext(ctx, &exists, checkQuery, id); err != nil {
		return err
	}
	if !exists {
		return errors.ErrNotFound
	}
	return errors.ErrConflict
}
