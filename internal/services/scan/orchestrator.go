package scan

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"costguard/internal/domain/action"
	"costguard/internal/domain/anomaly"
	"costguard/internal/metrics"
	"costguard/internal/notify"
	"costguard/internal/services/detector"
	"costguard/internal/services/synthesizer"
	"costguard/pkg/errors"
	"costguard/pkg/logger"
)

// BaselineSource supplies today's and trailing-window cost aggregates
type BaselineSource interface {
	Baselines(ctx context.Context) (map[string]float64, error)
	TodayCosts(ctx context.Context) (map[string]float64, error)
}

// ActionProposer persists a synthesized action proposal
type ActionProposer interface {
	Propose(ctx context.Context, a *action.OptimizationAction) error
}

// AnomalyPublisher emits anomaly detection events
type AnomalyPublisher interface {
	PublishAnomalyDetected(ctx context.Context, a *anomaly.CostAnomaly) error
}

// Notifier dispatches fire-and-forget operator alerts
type Notifier interface {
	Dispatch(n notify.Notification) <-chan struct{}
}

// Locker guards against concurrent scans of the same day
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// ProviderResult describes one provider's outcome within a scan
type ProviderResult struct {
	Provider         string  `json:"provider"`
	CurrentCost      float64 `json:"today_cost"`
	Baseline         float64 `json:"baseline_cost"`
	DeviationPercent float64 `json:"deviation_percent"`
	Flagged          bool    `json:"flagged"`
	AnomalyID        string  `json:"anomaly_id,omitempty"`
	ActionID         string  `json:"action_id,omitempty"`
	Severity         string  `json:"severity,omitempty"`
	Skipped          bool    `json:"skipped"`
	SkipReason       string  `json:"skip_reason,omitempty"`
	Err              string  `json:"error,omitempty"`
}

// Summary is the result of one scan pass
type Summary struct {
	ScannedAt      time.Time        `json:"scanned_at"`
	Providers      []ProviderResult `json:"providers"`
	AnomaliesFound int              `json:"anomalies_found"`
	ActionsCreated int              `json:"actions_created"`
}

// Orchestrator coordinates one detection pass end-to-end:
// fetch aggregates, compute baselines, detect, synthesize, persist,
// then dispatch notifications without blocking on delivery.
type Orchestrator struct {
	baselines   BaselineSource
	anomalyRepo anomaly.Repository
	detect      *detector.Detector
	synth       *synthesizer.Synthesizer
	proposer    ActionProposer
	events      AnomalyPublisher
	dispatcher  Notifier
	locker      Locker
	clock       clockwork.Clock
	lockTTL     time.Duration
	log         *logger.Logger
}

// NewOrchestrator creates a scan orchestrator
func NewOrchestrator(
	baselines BaselineSource,
	anomalyRepo anomaly.Repository,
	proposer ActionProposer,
	events AnomalyPublisher,
	dispatcher Notifier,
	locker Locker,
	clock clockwork.Clock,
	lockTTL time.Duration,
) *Orchestrator {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &Orchestrator{
		baselines:   baselines,
		anomalyRepo: anomalyRepo,
		detect:      detector.New(),
		synth:       synthesizer.New(),
		proposer:    proposer,
		events:      events,
		dispatcher:  dispatcher,
		locker:      locker,
		clock:       clock,
		lockTTL:     lockTTL,
		log:         logger.Get().With("component", "scan_orchestrator"),
	}
}

// Run executes one scan pass. A per-day lock prevents concurrent scans
// from double-creating anomalies; the flagged-provider snapshot is
// taken once at scan start so the pass is deterministic.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	now := o.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if o.locker != nil {
		lockKey := "costguard:scan:" + today.Format("2006-01-02")
		acquired, err := o.locker.AcquireLock(ctx, lockKey, o.lockTTL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to acquire scan lock")
		}
		if !acquired {
			return nil, errors.ErrScanInProgress
		}
		defer func() {
			if err := o.locker.ReleaseLock(context.Background(), lockKey); err != nil {
				o.log.Errorf("Failed to release scan lock: %v", err)
			}
		}()
	}

	todayCosts, err := o.baselines.TodayCosts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch today's costs")
	}

	baselines, err := o.baselines.Baselines(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute baselines")
	}

	flagged, err := o.anomalyRepo.FlaggedProvidersSince(ctx, today)
	if err != nil {
		return nil, errors.Wrap(err, "failed to snapshot flagged providers")
	}

	summary := &Summary{
		ScannedAt: now,
		Providers: make([]ProviderResult, 0, len(todayCosts)),
	}

	for provider, currentCost := range todayCosts {
		result := o.scanProvider(ctx, provider, currentCost, baselines[provider], flagged, now)
		summary.Providers = append(summary.Providers, result)
		if result.AnomalyID != "" {
			summary.AnomaliesFound++
		}
		if result.ActionID != "" {
			summary.ActionsCreated++
		}
	}

	metrics.RecordScan(o.clock.Now().UTC().Sub(now), nil)

	o.log.Infow("Scan completed",
		"providers", len(summary.Providers),
		"anomalies", summary.AnomaliesFound,
		"actions", summary.ActionsCreated,
	)
	return summary, nil
}

// scanProvider evaluates one provider. Errors are captured in the
// result rather than propagated: one provider's failure must not abort
// the scan for the others.
func (o *Orchestrator) scanProvider(
	ctx context.Context,
	provider string,
	currentCost, baseline float64,
	flagged map[string]bool,
	now time.Time,
) ProviderResult {
	result := ProviderResult{
		Provider:    provider,
		CurrentCost: currentCost,
		Baseline:    baseline,
	}
	if baseline > 0 {
		result.DeviationPercent = math.Round((currentCost-baseline)/baseline*1000) / 10
	}

	if flagged[provider] {
		result.Flagged = true
		result.Skipped = true
		result.SkipReason = "already flagged today"
		return result
	}

	a := o.detect.Evaluate(provider, currentCost, baseline, now)
	if a == nil {
		result.Skipped = true
		if baseline <= 0 {
			result.SkipReason = "no baseline"
		} else {
			result.SkipReason = "within normal range"
		}
		return result
	}

	if err := o.anomalyRepo.Create(ctx, a); err != nil {
		o.log.Errorf("Failed to persist anomaly for %s: %v", provider, err)
		result.Err = err.Error()
		return result
	}
	result.AnomalyID = a.ID
	result.Flagged = true
	result.Severity = a.Severity.String()
	metrics.RecordAnomaly(provider, a.Severity.String())

	o.log.Warnw("Anomaly detected",
		"provider", provider,
		"deviation_percent", a.DeviationPercent,
		"severity", a.Severity,
	)

	if o.events != nil {
		if err := o.events.PublishAnomalyDetected(ctx, a); err != nil {
			o.log.Errorf("Failed to publish anomaly event for %s: %v", provider, err)
		}
	}

	proposal := o.synth.Synthesize(a, now)
	if err := o.proposer.Propose(ctx, proposal); err != nil {
		o.log.Errorf("Failed to persist action for anomaly %s: %v", a.ID, err)
		result.Err = err.Error()
	} else {
		result.ActionID = proposal.ID
	}

	o.notify(a, proposal, result.ActionID != "")
	return result
}

// notify dispatches operator alerts: high and critical anomalies, plus
// every created action proposal. Fire-and-forget.
func (o *Orchestrator) notify(a *anomaly.CostAnomaly, proposal *action.OptimizationAction, actionCreated bool) {
	if o.dispatcher == nil {
		return
	}

	if a.Severity == anomaly.SeverityHigh || a.Severity == anomaly.SeverityCritical {
		o.dispatcher.Dispatch(notify.Notification{
			Kind:     "anomaly",
			Severity: a.Severity.String(),
			Subject:  fmt.Sprintf("%s cost anomaly (%s)", a.Provider, a.Severity),
			Body:     a.Description,
		})
	}

	if actionCreated {
		o.dispatcher.Dispatch(notify.Notification{
			Kind:     "action_proposed",
			Severity: a.Severity.String(),
			Subject:  fmt.Sprintf("Proposed: %s for %s", proposal.Type, a.Provider),
			Body: fmt.Sprintf("%s\nEstimated savings: $%.2f/day\nRisk: %s\nRequires approval: %t",
				proposal.Description, proposal.EstimatedSavings, proposal.RiskLevel, proposal.RequiresApproval),
		})
	}
}
