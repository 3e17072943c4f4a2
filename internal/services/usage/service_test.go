package usage

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"costguard/internal/domain/usage"
	"costguard/pkg/errors"
)

// MockUsageRepository is a mock for usage.Repository
type MockUsageRepository struct {
	mock.Mock
}

func (m *MockUsageRepository) Store(ctx context.Context, rec *usage.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockUsageRepository) List(ctx context.Context, filter usage.Filter) ([]*usage.Record, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*usage.Record), args.Error(1)
}

func (m *MockUsageRepository) GetProviderCosts(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}

func (m *MockUsageRepository) GetTotalCost(ctx context.Context, from, to time.Time) (float64, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockUsageRepository) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockCache is a mock for Cache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func TestService_Ingest_FillsDefaults(t *testing.T) {
	mockRepo := new(MockUsageRepository)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	service := NewService(mockRepo, nil, clock)

	ctx := context.Background()
	mockRepo.On("Store", ctx, mock.AnythingOfType("*usage.Record")).Return(nil)

	rec := &usage.Record{
		Provider:     "openai",
		Model:        "gpt-4o",
		InputTokens:  1200,
		OutputTokens: 400,
		Cost:         0.034,
		QualityScore: 0.9,
	}

	require.NoError(t, service.Ingest(ctx, rec))
	mockRepo.AssertExpectations(t)

	assert.NotEmpty(t, rec.EventID)
	assert.Equal(t, clock.Now().UTC(), rec.Timestamp)
	assert.Equal(t, clock.Now().UTC(), rec.CreatedAt)
}

func TestService_Ingest_Validation(t *testing.T) {
	mockRepo := new(MockUsageRepository)
	service := NewService(mockRepo, nil, clockwork.NewFakeClock())
	ctx := context.Background()

	tests := []struct {
		name string
		rec  *usage.Record
	}{
		{"missing provider", &usage.Record{Cost: 1.0}},
		{"negative cost", &usage.Record{Provider: "openai", Cost: -0.5}},
		{"quality score above one", &usage.Record{Provider: "openai", Cost: 1.0, QualityScore: 1.5}},
		{"negative quality score", &usage.Record{Provider: "openai", Cost: 1.0, QualityScore: -0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.Ingest(ctx, tt.rec)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
		})
	}
	mockRepo.AssertNotCalled(t, "Store")
}

func TestService_List_Defaults(t *testing.T) {
	mockRepo := new(MockUsageRepository)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	service := NewService(mockRepo, nil, clock)

	ctx := context.Background()
	now := clock.Now().UTC()

	mockRepo.On("List", ctx, usage.Filter{
		From:  now.AddDate(0, 0, -7),
		To:    now,
		Limit: 100,
	}).Return([]*usage.Record{}, nil)

	_, err := service.List(ctx, usage.Filter{})
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestService_List_CapsLimit(t *testing.T) {
	mockRepo := new(MockUsageRepository)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	service := NewService(mockRepo, nil, clock)

	ctx := context.Background()
	mockRepo.On("List", ctx, mock.MatchedBy(func(f usage.Filter) bool {
		return f.Limit == 100
	})).Return([]*usage.Record{}, nil)

	_, err := service.List(ctx, usage.Filter{Limit: 5000})
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestService_MonthSummary(t *testing.T) {
	mockRepo := new(MockUsageRepository)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	service := NewService(mockRepo, nil, clock)

	ctx := context.Background()
	monthStart := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	now := clock.Now().UTC()

	mockRepo.On("GetTotalCost", ctx, monthStart, now).Return(1234.5, nil)
	mockRepo.On("GetProviderCosts", ctx, monthStart, now).Return(map[string]float64{
		"openai":    600.0,
		"anthropic": 400.0,
		"google":    150.0,
		"deepseek":  50.0,
		"aws":       30.0,
		"mistral":   4.5,
	}, nil)

	summary, err := service.MonthSummary(ctx)
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)

	assert.Equal(t, 1234.5, summary.CurrentMonthCost)
	require.Len(t, summary.TopProviders, 5)
	assert.Equal(t, "openai", summary.TopProviders[0].Provider)
	assert.Equal(t, "aws", summary.TopProviders[4].Provider)
	assert.Equal(t, now, summary.GeneratedAt)
}

func TestService_MonthSummary_CacheHit(t *testing.T) {
	mockRepo := new(MockUsageRepository)
	mockCache := new(MockCache)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	service := NewService(mockRepo, mockCache, clock)

	ctx := context.Background()
	mockCache.On("Get", ctx, "costguard:summary:month", mock.Anything).
		Run(func(args mock.Arguments) {
			dest := args.Get(2).(*Summary)
			dest.CurrentMonthCost = 999.0
		}).
		Return(nil)

	summary, err := service.MonthSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 999.0, summary.CurrentMonthCost)
	mockRepo.AssertNotCalled(t, "GetTotalCost")
}

func TestService_MonthSummary_CacheMissPopulates(t *testing.T) {
	mockRepo := new(MockUsageRepository)
	mockCache := new(MockCache)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	service := NewService(mockRepo, mockCache, clock)

	ctx := context.Background()
	mockCache.On("Get", ctx, "costguard:summary:month", mock.Anything).Return(errors.ErrNotFound)
	mockRepo.On("GetTotalCost", ctx, mock.Anything, mock.Anything).Return(10.0, nil)
	mockRepo.On("GetProviderCosts", ctx, mock.Anything, mock.Anything).Return(map[string]float64{}, nil)
	mockCache.On("Set", ctx, "costguard:summary:month", mock.Anything, 60*time.Second).Return(nil)

	_, err := service.MonthSummary(ctx)
	require.NoError(t, err)
	mockCache.AssertExpectations(t)
}
