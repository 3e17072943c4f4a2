package action

import (
	"context"
)

// Filter narrows List queries
type Filter struct {
	Status Status
	Risk   Risk
	Limit  int
	Offset int
}

// Repository defines persistence operations for optimization actions
type Repository interface {
	// Create persists a new action
	Create(ctx context.Context, a *OptimizationAction) error

	// GetByID returns an action by ID, or errors.ErrNotFound
	GetByID(ctx context.Context, id string) (*OptimizationAction, error)

	// List returns actions matching the filter, newest first
	List(ctx context.Context, filter Filter) ([]*OptimizationAction, error)

	// UpdateStatus atomically moves an action from expected to next status.
	// Returns errors.ErrNotFound if the action does not exist and
	// errors.ErrConflict if the action is no longer in the expected status.
	UpdateStatus(ctx context.Context, id string, expected, next Status) error
}
