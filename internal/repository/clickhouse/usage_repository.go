package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"costguard/internal/domain/usage"
	"costguard/pkg/clickhouse"
	"costguard/pkg/errors"
	"costguard/pkg/logger"
)

var _ usage.Repository = (*UsageRepository)(nil)

// UsageRepository implements usage.Repository for ClickHouse.
// Writes go through a batch writer since per-row inserts are
// prohibitively slow for a high-frequency usage ledger.
type UsageRepository struct {
	conn        driver.Conn
	batchWriter *clickhouse.BatchWriter
}

// NewUsageRepository creates a new usage repository with batch writer
func NewUsageRepository(conn driver.Conn) *UsageRepository {
	repo := &UsageRepository{
		conn: conn,
	}

	repo.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig{
		FlushFunc:    repo.flushBatch,
		TableName:    "llm_usage",
		MaxBatchSize: 500,
		MaxAge:       5 * time.Second,
	})

	return repo
}

// Start begins the background flush loop
func (r *UsageRepository) Start(ctx context.Context) {
	r.batchWriter.Start(ctx)
}

// Stop gracefully shuts down the batch writer
func (r *UsageRepository) Stop(ctx context.Context) error {
	return r.batchWriter.Stop(ctx)
}

// Store buffers a usage record for batched insertion
func (r *UsageRepository) Store(ctx context.Context, rec *usage.Record) error {
	return r.batchWriter.Add(ctx, rec)
}

// Flush forces any buffered records to storage
func (r *UsageRepository) Flush(ctx context.Context) error {
	return r.batchWriter.Flush(ctx)
}

// flushBatch performs the actual batch insert to ClickHouse.
// PrepareBatch accumulates rows in memory; Send executes one
// INSERT for the whole batch.
func (r *UsageRepository) flushBatch(ctx context.Context, batch []interface{}) error {
	if len(batch) == 0 {
		return nil
	}

	log := logger.Get().With("component", "llm_usage_batch")

	query := `
		INSERT INTO llm_usage (
			timestamp, event_id,
			provider, model, service,
			input_tokens, output_tokens,
			cost, latency_ms, quality_score, created_at
		) VALUES (
			?, ?,
			?, ?, ?,
			?, ?,
			?, ?, ?, ?
		)
	`

	start := time.Now()

	stmt, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	defer stmt.Close()

	validItems := 0
	for _, item := range batch {
		rec, ok := item.(*usage.Record)
		if !ok {
			log.Warnf("Skipping invalid item type: %T", item)
			continue
		}

		err := stmt.Append(
			rec.Timestamp, rec.EventID,
			rec.Provider, rec.Model, rec.Service,
			rec.InputTokens, rec.OutputTokens,
			rec.Cost, rec.LatencyMs, rec.QualityScore, rec.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
		validItems++
	}

	if err := stmt.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}

	log.Infof("Batch inserted %d usage records in %v", validItems, time.Since(start))
	return nil
}

// List returns usage records matching the filter, newest first
func (r *UsageRepository) List(ctx context.Context, filter usage.Filter) ([]*usage.Record, error) {
	query := `
		SELECT timestamp, event_id,
		       provider, model, service,
		       input_tokens, output_tokens,
		       cost, latency_ms, quality_score, created_at
		FROM llm_usage
		WHERE timestamp >= ? AND timestamp < ?
	`
	args := []interface{}{filter.From, filter.To}

	if filter.Provider != "" {
		query += " AND provider = ?"
		args = append(args, filter.Provider)
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query usage records")
	}
	defer rows.Close()

	var records []*usage.Record
	for rows.Next() {
		var rec usage.Record
		if err := rows.Scan(
			&rec.Timestamp, &rec.EventID,
			&rec.Provider, &rec.Model, &rec.Service,
			&rec.InputTokens, &rec.OutputTokens,
			&rec.Cost, &rec.LatencyMs, &rec.QualityScore, &rec.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan usage record")
		}
		records = append(records, &rec)
	}

	return records, nil
}

// GetProviderCosts returns total cost grouped by provider for [from, to)
func (r *UsageRepository) GetProviderCosts(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	query := `
		SELECT provider, sum(cost) as total_cost
		FROM llm_usage
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY provider
		ORDER BY total_cost DESC
	`

	rows, err := r.conn.Query(ctx, query, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query provider costs")
	}
	defer rows.Close()

	costs := make(map[string]float64)
	for rows.Next() {
		var provider string
		var cost float64
		if err := rows.Scan(&provider, &cost); err != nil {
			return nil, errors.Wrap(err, "failed to scan provider cost")
		}
		costs[provider] = cost
	}

	return costs, nil
}

// GetTotalCost returns the total cost across all providers for [from, to)
func (r *UsageRepository) GetTotalCost(ctx context.Context, from, to time.Time) (float64, error) {
	query := `
		SELECT sum(cost) as total_cost
		FROM llm_usage
		WHERE timestamp >= ? AND timestamp < ?
	`

	var totalCost float64
	if err := r.conn.QueryRow(ctx, query, from, to).Scan(&totalCost); err != nil {
		return 0, errors.Wrap(err, "failed to get total cost")
	}

	return totalCost, nil
}
