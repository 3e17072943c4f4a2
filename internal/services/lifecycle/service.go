package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"costguard/internal/domain/action"
	"costguard/internal/metrics"
	"costguard/internal/notify"
	"costguard/pkg/errors"
	"costguard/pkg/logger"
)

// BridgeNotifier delivers action status updates to the external
// orchestration system
type BridgeNotifier interface {
	NotifyStatus(ctx context.Context, actionID, status, approver string) error
}

// EventPublisher emits lifecycle transition events
type EventPublisher interface {
	PublishActionStatusChanged(ctx context.Context, a *action.OptimizationAction, from, to action.Status) error
}

// Notifier dispatches fire-and-forget operator alerts
type Notifier interface {
	Dispatch(n notify.Notification) <-chan struct{}
}

// Config holds lifecycle tuning knobs
type Config struct {
	AutoExecuteDelay time.Duration // delay before auto-executing approved low-risk actions
	ExecutorWorkers  int
	BridgeTimeout    time.Duration
}

// Service governs the optimization action state machine:
// pending -> approved -> executed, pending -> denied, approved -> failed.
// Terminal states reject further transitions. Approved low-risk actions
// are auto-executed after a short delay by a background worker pool.
type Service struct {
	repo       action.Repository
	bridge     BridgeNotifier
	events     EventPublisher
	dispatcher Notifier
	clock      clockwork.Clock
	cfg        Config
	log        *logger.Logger

	queue   chan string
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewService creates a lifecycle service
func NewService(
	repo action.Repository,
	bridge BridgeNotifier,
	events EventPublisher,
	dispatcher Notifier,
	clock clockwork.Clock,
	cfg Config,
) *Service {
	if cfg.AutoExecuteDelay <= 0 {
		cfg.AutoExecuteDelay = 2 * time.Second
	}
	if cfg.ExecutorWorkers <= 0 {
		cfg.ExecutorWorkers = 2
	}
	if cfg.BridgeTimeout <= 0 {
		cfg.BridgeTimeout = 45 * time.Second
	}

	return &Service{
		repo:       repo,
		bridge:     bridge,
		events:     events,
		dispatcher: dispatcher,
		clock:      clock,
		cfg:        cfg,
		log:        logger.Get().With("component", "action_lifecycle"),
		queue:      make(chan string, 100),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the auto-execution worker pool
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	for i := 0; i < s.cfg.ExecutorWorkers; i++ {
		s.wg.Add(1)
		go s.executorWorker(i)
	}

	s.log.Infow("Lifecycle service started", "executor_workers", s.cfg.ExecutorWorkers)
}

// Stop shuts down the worker pool and waits for in-flight executions
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.log.Info("Lifecycle service stopped")
}

// Propose persists a new action in pending state. Used both for
// synthesized proposals and for manually submitted actions.
func (s *Service) Propose(ctx context.Context, a *action.OptimizationAction) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = action.StatusPending
	}
	if a.Status != action.StatusPending {
		return errors.Wrapf(errors.ErrInvalidInput, "new action must be pending, got %s", a.Status)
	}
	if !a.Type.Valid() {
		a.Type = action.TypeOther
	}
	if !a.RiskLevel.Valid() {
		a.RiskLevel = action.RiskMedium
	}

	now := s.clock.Now().UTC()
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Meta == nil {
		a.Meta = json.RawMessage(`{}`)
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return errors.Wrap(err, "failed to create action")
	}

	s.log.Infow("Action proposed",
		"action_id", a.ID,
		"type", a.Type,
		"risk", a.RiskLevel,
		"requires_approval", a.RequiresApproval,
	)
	return nil
}

// Approve moves a pending action to approved. Low-risk actions are
// queued for auto-execution after the configured delay.
func (s *Service) Approve(ctx context.Context, id, approver string) (*action.OptimizationAction, error) {
	a, err := s.transition(ctx, id, action.StatusPending, action.StatusApproved, approver)
	if err != nil {
		return nil, err
	}

	if a.RiskLevel == action.RiskLow {
		s.scheduleAutoExecute(a.ID)
	}

	return a, nil
}

// Deny moves a pending action to denied (terminal)
func (s *Service) Deny(ctx context.Context, id, approver string) (*action.OptimizationAction, error) {
	return s.transition(ctx, id, action.StatusPending, action.StatusDenied, approver)
}

// Execute moves an approved action to executed. Pending actions may
// also be executed directly (operator-forced path).
func (s *Service) Execute(ctx context.Context, id, approver string) (*action.OptimizationAction, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !a.Status.CanTransition(action.StatusExecuted) {
		return nil, errors.Wrapf(errors.ErrInvalidTransition,
			"cannot execute action in status %s", a.Status)
	}

	return s.transition(ctx, id, a.Status, action.StatusExecuted, approver)
}

// OnExternalStatus applies a status callback from the external workflow
// system. Known statuses map onto lifecycle transitions; unknown
// statuses are logged and ignored.
func (s *Service) OnExternalStatus(ctx context.Context, id, externalStatus string) error {
	var target action.Status
	switch externalStatus {
	case "executed":
		target = action.StatusExecuted
	case "failed":
		target = action.StatusFailed
	default:
		s.log.Warnw("Ignoring unknown external status",
			"action_id", id,
			"status", externalStatus,
		)
		return nil
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !a.Status.CanTransition(target) {
		return errors.Wrapf(errors.ErrInvalidTransition,
			"external %s callback for action in status %s", externalStatus, a.Status)
	}

	_, err = s.transition(ctx, id, a.Status, target, "external")
	return err
}

// Get returns an action by ID
func (s *Service) Get(ctx context.Context, id string) (*action.OptimizationAction, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns actions matching the filter
func (s *Service) List(ctx context.Context, filter action.Filter) ([]*action.OptimizationAction, error) {
	return s.repo.List(ctx, filter)
}

// transition performs one CAS state change with its side effects.
// The repository guarantees exactly one winner under concurrency.
func (s *Service) transition(ctx context.Context, id string, from, to action.Status, approver string) (*action.OptimizationAction, error) {
	if !from.CanTransition(to) {
		return nil, errors.Wrapf(errors.ErrInvalidTransition, "%s -> %s", from, to)
	}

	if err := s.repo.UpdateStatus(ctx, id, from, to); err != nil {
		return nil, err
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.Infow("Action transitioned",
		"action_id", id,
		"from", from,
		"to", to,
		"approver", approver,
	)

	metrics.RecordTransition(from.String(), to.String())
	if to == action.StatusExecuted {
		metrics.EstimatedSavings.WithLabelValues(a.Type.String()).Add(a.EstimatedSavings)
	}

	if s.events != nil {
		if err := s.events.PublishActionStatusChanged(ctx, a, from, to); err != nil {
			s.log.Errorf("Failed to publish transition event for %s: %v", id, err)
		}
	}

	s.notifyBridgeAsync(id, to.String(), approver)

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(notify.Notification{
			Kind:    "action_status",
			Subject: fmt.Sprintf("Action %s %s", id, to),
			Body: fmt.Sprintf("%s\nStatus: %s -> %s\nEstimated savings: $%.2f",
				a.Description, from, to, a.EstimatedSavings),
		})
	}

	return a, nil
}

// notifyBridgeAsync pushes a status update to the external bridge
// without blocking the transition. Bridge failures are advisory.
func (s *Service) notifyBridgeAsync(id, status, approver string) {
	if s.bridge == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.BridgeTimeout)
		defer cancel()

		if err := s.bridge.NotifyStatus(ctx, id, status, approver); err != nil {
			s.log.Errorf("Bridge notify failed for action %s: %v", id, err)
		}
	}()
}

// scheduleAutoExecute queues an approved low-risk action for delayed
// execution
func (s *Service) scheduleAutoExecute(id string) {
	select {
	case s.queue <- id:
		s.log.Debugw("Queued action for auto-execution", "action_id", id)
	default:
		s.log.Warnw("Auto-execution queue full, dropping", "action_id", id)
	}
}

func (s *Service) executorWorker(workerID int) {
	defer s.wg.Done()

	for {
		select {
		case id := <-s.queue:
			// Grace period before firing, so an operator can still
			// intervene right after approval
			select {
			case <-s.clock.After(s.cfg.AutoExecuteDelay):
			case <-s.stopCh:
				return
			}
			s.autoExecute(id, workerID)

		case <-s.stopCh:
			return
		}
	}
}

// autoExecute re-validates the action before firing: the status or
// risk may have changed while the job sat in the queue.
func (s *Service) autoExecute(id string, workerID int) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.log.Errorf("Auto-execute lookup failed for %s: %v", id, err)
		return
	}

	if a.Status != action.StatusApproved || a.RiskLevel != action.RiskLow {
		s.log.Infow("Skipping auto-execution, action no longer eligible",
			"action_id", id,
			"status", a.Status,
			"risk", a.RiskLevel,
		)
		return
	}

	if _, err := s.transition(ctx, id, action.StatusApproved, action.StatusExecuted, "auto"); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			s.log.Infow("Auto-execution lost the race", "action_id", id)
			return
		}
		s.log.Errorf("Auto-execution failed for %s: %v", id, err)
		return
	}

	metrics.ActionsAutoExecuted.Inc()
	s.log.Infow("Action auto-executed", "action_id", id, "worker_id", workerID)
}
