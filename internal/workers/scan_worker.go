package workers

import (
	"context"
	"time"

	"costguard/internal/services/scan"
	"costguard/pkg/errors"
)

// ScanWorker periodically runs the anomaly detection pass.
// Disabled by default: scans are normally triggered through the API,
// and the per-day scan lock keeps overlapping triggers safe.
type ScanWorker struct {
	*BaseWorker
	orchestrator *scan.Orchestrator
}

// NewScanWorker creates a periodic scan worker
func NewScanWorker(orchestrator *scan.Orchestrator, interval time.Duration, enabled bool) *ScanWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ScanWorker{
		BaseWorker:   NewBaseWorker("cost_scan", interval, enabled),
		orchestrator: orchestrator,
	}
}

// Run executes one scan pass
func (w *ScanWorker) Run(ctx context.Context) error {
	start := time.Now()

	summary, err := w.orchestrator.Run(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrScanInProgress) {
			w.Log().Debug("Scan already in progress, skipping")
			w.RecordRun(time.Since(start))
			return nil
		}
		w.RecordError(err, time.Since(start))
		return err
	}

	w.RecordRun(time.Since(start))
	w.Log().Infow("Periodic scan finished",
		"anomalies", summary.AnomaliesFound,
		"actions", summary.ActionsCreated,
	)
	return nil
}
