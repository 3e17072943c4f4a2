package action

import (
	"encoding/json"
	"time"
)

// OptimizationAction represents a proposed remediation for a cost anomaly
type OptimizationAction struct {
	ID        string    `db:"id" json:"id"`
	AnomalyID string    `db:"anomaly_id" json:"anomaly_id"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`

	// Proposal
	Type             Type    `db:"action_type" json:"action_type"`
	Description      string  `db:"description" json:"description"`
	EstimatedSavings float64 `db:"estimated_savings" json:"estimated_savings"`
	RiskLevel        Risk    `db:"risk_level" json:"risk_level"`

	// Approval
	RequiresApproval bool   `db:"requires_approval" json:"requires_approval"`
	AutoApproved     bool   `db:"auto_approved" json:"auto_approved"`
	Status           Status `db:"status" json:"status"`

	Meta json.RawMessage `db:"meta" json:"meta,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Type defines the kind of remediation proposed
type Type string

const (
	TypeSwitchModel   Type = "switch_model"
	TypeScaleDown     Type = "scale_down"
	TypeRightsize     Type = "rightsize"
	TypeEnableCaching Type = "enable_caching"
	TypeTerminateIdle Type = "terminate_idle"
	TypeOther         Type = "other"
)

// Valid checks if action type is valid
func (t Type) Valid() bool {
	switch t {
	case TypeSwitchModel, TypeScaleDown, TypeRightsize,
		TypeEnableCaching, TypeTerminateIdle, TypeOther:
		return true
	}
	return false
}

// String returns string representation
func (t Type) String() string {
	return string(t)
}

// Risk classifies the blast radius of executing an action
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Valid checks if risk level is valid
func (r Risk) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// String returns string representation
func (r Risk) String() string {
	return string(r)
}

// Status defines the action lifecycle state
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
)

// Valid checks if status is valid
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusExecuted, StatusFailed:
		return true
	}
	return false
}

// String returns string representation
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if the action is in a terminal state
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDenied, StatusExecuted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle transition
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusDenied || next == StatusExecuted
	case StatusApproved:
		return next == StatusExecuted || next == StatusFailed
	}
	return false
}
