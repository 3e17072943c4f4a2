package events

import (
	"context"
	"time"

	"costguard/internal/adapters/kafka"
	"costguard/internal/domain/action"
	"costguard/internal/domain/anomaly"
	"costguard/pkg/logger"
)

// AnomalyDetected is published when the detector flags a provider
type AnomalyDetected struct {
	AnomalyID        string    `json:"anomaly_id"`
	Provider         string    `json:"provider"`
	Severity         string    `json:"severity"`
	CurrentCost      float64   `json:"current_cost"`
	ExpectedCost     float64   `json:"expected_cost"`
	DeviationPercent float64   `json:"deviation_percent"`
	Description      string    `json:"description"`
	DetectedAt       time.Time `json:"detected_at"`
}

// ActionStatusChanged is published on every lifecycle transition
type ActionStatusChanged struct {
	ActionID   string    `json:"action_id"`
	AnomalyID  string    `json:"anomaly_id,omitempty"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	RiskLevel  string    `json:"risk_level"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits cost guard domain events to Kafka
type Publisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewPublisher creates an event publisher
func NewPublisher(producer *kafka.Producer) *Publisher {
	return &Publisher{
		producer: producer,
		log:      logger.Get().With("component", "event_publisher"),
	}
}

// PublishAnomalyDetected emits an anomaly detection event
func (p *Publisher) PublishAnomalyDetected(ctx context.Context, a *anomaly.CostAnomaly) error {
	event := AnomalyDetected{
		AnomalyID:        a.ID,
		Provider:         a.Provider,
		Severity:         a.Severity.String(),
		CurrentCost:      a.CurrentCost,
		ExpectedCost:     a.ExpectedCost,
		DeviationPercent: a.DeviationPercent,
		Description:      a.Description,
		DetectedAt:       a.Timestamp,
	}
	return p.producer.Publish(ctx, kafka.TopicAnomalies, a.Provider, event)
}

// PublishActionStatusChanged emits a lifecycle transition event
func (p *Publisher) PublishActionStatusChanged(ctx context.Context, a *action.OptimizationAction, from, to action.Status) error {
	event := ActionStatusChanged{
		ActionID:   a.ID,
		AnomalyID:  a.AnomalyID,
		From:       from.String(),
		To:         to.String(),
		RiskLevel:  a.RiskLevel.String(),
		OccurredAt: time.Now().UTC(),
	}
	return p.producer.Publish(ctx, kafka.TopicActions, a.ID, event)
}
