package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costguard/internal/domain/anomaly"
	"costguard/internal/testsupport"
	"costguard/pkg/errors"
)

func newTestAnomaly(provider string, ts time.Time) *anomaly.CostAnomaly {
	return &anomaly.CostAnomaly{
		ID:               uuid.NewString(),
		Timestamp:        ts,
		Provider:         provider,
		Service:          "llm",
		CurrentCost:      90.0,
		ExpectedCost:     10.0,
		DeviationPercent: 800.0,
		Severity:         anomaly.SeverityCritical,
		Description:      "OPENAI costs spiked 800.0% day-over-day ($10.00 → $90.00)",
		Meta:             []byte(`{"baseline_cost":10}`),
		CreatedAt:        ts,
	}
}

func TestAnomalyRepository_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	defer testDB.Close()

	repo := NewAnomalyRepository(testDB.Tx())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	a := newTestAnomaly("openai", now)

	require.NoError(t, repo.Create(ctx, a))

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)

	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "openai", got.Provider)
	assert.Equal(t, anomaly.SeverityCritical, got.Severity)
	assert.InDelta(t, 800.0, got.DeviationPercent, 0.001)
	assert.JSONEq(t, `{"baseline_cost":10}`, string(got.Meta))
}

func TestAnomalyRepository_GetByID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	defer testDB.Close()

	repo := NewAnomalyRepository(testDB.Tx())

	_, err := repo.GetByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestAnomalyRepository_List(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	defer testDB.Close()

	repo := NewAnomalyRepository(testDB.Tx())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)

	older := newTestAnomaly("openai", now.Add(-2*time.Hour))
	older.Severity = anomaly.SeverityLow
	newer := newTestAnomaly("openai", now.Add(-time.Hour))
	other := newTestAnomaly("anthropic", now)

	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))
	require.NoError(t, repo.Create(ctx, other))

	t.Run("newest first", func(t *testing.T) {
		got, err := repo.List(ctx, anomaly.Filter{Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, other.ID, got[0].ID)
		assert.Equal(t, older.ID, got[2].ID)
	})

	t.Run("filter by provider", func(t *testing.T) {
		got, err := repo.List(ctx, anomaly.Filter{Provider: "anthropic", Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, other.ID, got[0].ID)
	})

	t.Run("filter by severity", func(t *testing.T) {
		got, err := repo.List(ctx, anomaly.Filter{Severity: anomaly.SeverityLow, Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, older.ID, got[0].ID)
	})

	t.Run("since filter", func(t *testing.T) {
		got, err := repo.List(ctx, anomaly.Filter{Since: now.Add(-90 * time.Minute), Limit: 10})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("limit and offset", func(t *testing.T) {
		got, err := repo.List(ctx, anomaly.Filter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, newer.ID, got[0].ID)
	})
}

func TestAnomalyRepository_FlaggedProvidersSince(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	defer testDB.Close()

	repo := NewAnomalyRepository(testDB.Tx())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newTestAnomaly("openai", now)))
	require.NoError(t, repo.Create(ctx, newTestAnomaly("anthropic", today.Add(-time.Hour))))

	flagged, err := repo.FlaggedProvidersSince(ctx, today)
	require.NoError(t, err)

	assert.True(t, flagged["openai"])
	assert.False(t, flagged["anthropic"])
}
