package scan

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"costguard/internal/domain/action"
	"costguard/internal/domain/anomaly"
	"costguard/internal/notify"
	"costguard/pkg/errors"
)

// MockBaselineSource is a mock for BaselineSource
type MockBaselineSource struct {
	mock.Mock
}

func (m *MockBaselineSource) Baselines(ctx context.Context) (map[string]float64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}

func (m *MockBaselineSource) TodayCosts(ctx context.Context) (map[string]float64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}

// MockAnomalyRepository is a mock for anomaly.Repository
type MockAnomalyRepository struct {
	mock.Mock
}

func (m *MockAnomalyRepository) Create(ctx context.Context, a *anomaly.CostAnomaly) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAnomalyRepository) GetByID(ctx context.Context, id string) (*anomaly.CostAnomaly, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anomaly.CostAnomaly), args.Error(1)
}

func (m *MockAnomalyRepository) List(ctx context.Context, filter anomaly.Filter) ([]*anomaly.CostAnomaly, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*anomaly.CostAnomaly), args.Error(1)
}

func (m *MockAnomalyRepository) FlaggedProvidersSince(ctx context.Context, since time.Time) (map[string]bool, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

// MockProposer is a mock for ActionProposer
type MockProposer struct {
	mock.Mock
}

func (m *MockProposer) Propose(ctx context.Context, a *action.OptimizationAction) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

// MockLocker is a mock for Locker
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) ReleaseLock(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockDispatcher is a mock for Notifier
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(n notify.Notification) <-chan struct{} {
	m.Called(n)
	done := make(chan struct{})
	close(done)
	return done
}

func fixedClock() clockwork.Clock {
	return clockwork.NewFakeClockAt(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
}

func TestOrchestrator_Run_DetectsAndProposes(t *testing.T) {
	source := new(MockBaselineSource)
	anomalyRepo := new(MockAnomalyRepository)
	proposer := new(MockProposer)
	orch := NewOrchestrator(source, anomalyRepo, proposer, nil, nil, nil, fixedClock(), 0)

	ctx := context.Background()
	today := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	// openai spiked 800%, anthropic stayed flat, mistral has no history
	source.On("TodayCosts", ctx).Return(map[string]float64{
		"openai":    90.0,
		"anthropic": 10.5,
		"mistral":   3.0,
	}, nil)
	source.On("Baselines", ctx).Return(map[string]float64{
		"openai":    10.0,
		"anthropic": 10.0,
	}, nil)
	anomalyRepo.On("FlaggedProvidersSince", ctx, today).Return(map[string]bool{}, nil)
	anomalyRepo.On("Create", ctx, mock.AnythingOfType("*anomaly.CostAnomaly")).Return(nil)
	proposer.On("Propose", ctx, mock.AnythingOfType("*action.OptimizationAction")).Return(nil)

	summary, err := orch.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.AnomaliesFound)
	assert.Equal(t, 1, summary.ActionsCreated)
	assert.Len(t, summary.Providers, 3)

	byProvider := map[string]ProviderResult{}
	for _, r := range summary.Providers {
		byProvider[r.Provider] = r
	}

	assert.NotEmpty(t, byProvider["openai"].AnomalyID)
	assert.NotEmpty(t, byProvider["openai"].ActionID)
	assert.Equal(t, "critical", byProvider["openai"].Severity)
	assert.True(t, byProvider["openai"].Flagged)
	assert.Equal(t, 800.0, byProvider["openai"].DeviationPercent)

	assert.True(t, byProvider["anthropic"].Skipped)
	assert.Equal(t, "within normal range", byProvider["anthropic"].SkipReason)
	assert.False(t, byProvider["anthropic"].Flagged)

	assert.True(t, byProvider["mistral"].Skipped)
	assert.Equal(t, "no baseline", byProvider["mistral"].SkipReason)
	assert.Equal(t, 0.0, byProvider["mistral"].DeviationPercent)

	anomalyRepo.AssertNumberOfCalls(t, "Create", 1)
	proposer.AssertNumberOfCalls(t, "Propose", 1)
}

func TestOrchestrator_Run_SkipsFlaggedProviders(t *testing.T) {
	source := new(MockBaselineSource)
	anomalyRepo := new(MockAnomalyRepository)
	proposer := new(MockProposer)
	orch := NewOrchestrator(source, anomalyRepo, proposer, nil, nil, nil, fixedClock(), 0)

	ctx := context.Background()

	source.On("TodayCosts", ctx).Return(map[string]float64{"openai": 90.0}, nil)
	source.On("Baselines", ctx).Return(map[string]float64{"openai": 10.0}, nil)
	anomalyRepo.On("FlaggedProvidersSince", ctx, mock.Anything).
		Return(map[string]bool{"openai": true}, nil)

	summary, err := orch.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.AnomaliesFound)
	require.Len(t, summary.Providers, 1)
	assert.True(t, summary.Providers[0].Skipped)
	assert.True(t, summary.Providers[0].Flagged)
	assert.Equal(t, "already flagged today", summary.Providers[0].SkipReason)
	anomalyRepo.AssertNotCalled(t, "Create")
}

func TestOrchestrator_Run_ProviderFailureIsIsolated(t *testing.T) {
	source := new(MockBaselineSource)
	anomalyRepo := new(MockAnomalyRepository)
	proposer := new(MockProposer)
	orch := NewOrchestrator(source, anomalyRepo, proposer, nil, nil, nil, fixedClock(), 0)

	ctx := context.Background()

	source.On("TodayCosts", ctx).Return(map[string]float64{
		"openai":    90.0,
		"anthropic": 80.0,
	}, nil)
	source.On("Baselines", ctx).Return(map[string]float64{
		"openai":    10.0,
		"anthropic": 10.0,
	}, nil)
	anomalyRepo.On("FlaggedProvidersSince", ctx, mock.Anything).Return(map[string]bool{}, nil)

	// Persisting the openai anomaly fails, anthropic must still be scanned
	anomalyRepo.On("Create", ctx, mock.MatchedBy(func(a *anomaly.CostAnomaly) bool {
		return a.Provider == "openai"
	})).Return(errors.ErrUnavailable)
	anomalyRepo.On("Create", ctx, mock.MatchedBy(func(a *anomaly.CostAnomaly) bool {
		return a.Provider == "anthropic"
	})).Return(nil)
	proposer.On("Propose", ctx, mock.AnythingOfType("*action.OptimizationAction")).Return(nil)

	summary, err := orch.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.AnomaliesFound)
	assert.Equal(t, 1, summary.ActionsCreated)

	byProvider := map[string]ProviderResult{}
	for _, r := range summary.Providers {
		byProvider[r.Provider] = r
	}
	assert.NotEmpty(t, byProvider["openai"].Err)
	assert.Empty(t, byProvider["openai"].AnomalyID)
	assert.NotEmpty(t, byProvider["anthropic"].AnomalyID)
}

func TestOrchestrator_Run_LockNotAcquired(t *testing.T) {
	source := new(MockBaselineSource)
	anomalyRepo := new(MockAnomalyRepository)
	proposer := new(MockProposer)
	locker := new(MockLocker)
	orch := NewOrchestrator(source, anomalyRepo, proposer, nil, nil, locker, fixedClock(), time.Minute)

	ctx := context.Background()
	locker.On("AcquireLock", ctx, "costguard:scan:2026-08-30", time.Minute).Return(false, nil)

	_, err := orch.Run(ctx)
	assert.ErrorIs(t, err, errors.ErrScanInProgress)
	source.AssertNotCalled(t, "TodayCosts")
}

func TestOrchestrator_Run_ReleasesLock(t *testing.T) {
	source := new(MockBaselineSource)
	anomalyRepo := new(MockAnomalyRepository)
	proposer := new(MockProposer)
	locker := new(MockLocker)
	orch := NewOrchestrator(source, anomalyRepo, proposer, nil, nil, locker, fixedClock(), time.Minute)

	ctx := context.Background()
	locker.On("AcquireLock", ctx, "costguard:scan:2026-08-30", time.Minute).Return(true, nil)
	locker.On("ReleaseLock", mock.Anything, "costguard:scan:2026-08-30").Return(nil)
	source.On("TodayCosts", ctx).Return(map[string]float64{}, nil)
	source.On("Baselines", ctx).Return(map[string]float64{}, nil)
	anomalyRepo.On("FlaggedProvidersSince", ctx, mock.Anything).Return(map[string]bool{}, nil)

	_, err := orch.Run(ctx)
	require.NoError(t, err)
	locker.AssertExpectations(t)
}

func TestOrchestrator_Run_NotificationRules(t *testing.T) {
	source := new(MockBaselineSource)
	anomalyRepo := new(MockAnomalyRepository)
	proposer := new(MockProposer)
	dispatcher := new(MockDispatcher)
	orch := NewOrchestrator(source, anomalyRepo, proposer, nil, dispatcher, nil, fixedClock(), 0)

	ctx := context.Background()

	// openai is critical (800%), aws is low (60%): only openai gets an
	// anomaly alert, but both get action_proposed
	source.On("TodayCosts", ctx).Return(map[string]float64{
		"openai": 90.0,
		"aws":    16.0,
	}, nil)
	source.On("Baselines", ctx).Return(map[string]float64{
		"openai": 10.0,
		"aws":    10.0,
	}, nil)
	anomalyRepo.On("FlaggedProvidersSince", ctx, mock.Anything).Return(map[string]bool{}, nil)
	anomalyRepo.On("Create", ctx, mock.Anything).Return(nil)
	proposer.On("Propose", ctx, mock.Anything).Return(nil)

	dispatcher.On("Dispatch", mock.MatchedBy(func(n notify.Notification) bool {
		return n.Kind == "anomaly"
	})).Return()
	dispatcher.On("Dispatch", mock.MatchedBy(func(n notify.Notification) bool {
		return n.Kind == "action_proposed"
	})).Return()

	_, err := orch.Run(ctx)
	require.NoError(t, err)

	anomalyAlerts := 0
	actionAlerts := 0
	for _, call := range dispatcher.Calls {
		n := call.Arguments.Get(0).(notify.Notification)
		switch n.Kind {
		case "anomaly":
			anomalyAlerts++
		case "action_proposed":
			actionAlerts++
		}
	}
	assert.Equal(t, 1, anomalyAlerts)
	assert.Equal(t, 2, actionAlerts)
}

func TestOrchestrator_Run_TodayCostsFailureAborts(t *testing.T) {
	source := new(MockBaselineSource)
	anomalyRepo := new(MockAnomalyRepository)
	proposer := new(MockProposer)
	orch := NewOrchestrator(source, anomalyRepo, proposer, nil, nil, nil, fixedClock(), 0)

	ctx := context.Background()
	source.On("TodayCosts", ctx).Return(nil, errors.ErrUnavailable)

	_, err := orch.Run(ctx)
	assert.ErrorIs(t, err, errors.ErrUnavailable)
}
