package workers

import (
	"context"
	"sync"
	"time"

	"costguard/pkg/logger"
)

// Worker is a periodic background task driven by the Scheduler.
type Worker interface {
	Name() string

	// Run executes one iteration. The scheduler invokes it every Interval.
	Run(ctx context.Context) error

	Interval() time.Duration

	// Enabled gates scheduling; disabled workers are registered but never run.
	Enabled() bool
}

// WorkerHealth is a point-in-time snapshot of a worker's run history.
type WorkerHealth struct {
	LastRun      time.Time
	LastError    error
	RunCount     int64
	ErrorCount   int64
	LastDuration time.Duration
	Enabled      bool
}

// BaseWorker carries the bookkeeping shared by concrete workers: identity,
// schedule and run/error counters behind a lock.
type BaseWorker struct {
	name     string
	interval time.Duration
	enabled  bool
	log      *logger.Logger

	mu        sync.RWMutex
	lastRun   time.Time
	lastError error
	runs      int64
	failures  int64
	lastTook  time.Duration
}

func NewBaseWorker(name string, interval time.Duration, enabled bool) *BaseWorker {
	return &BaseWorker{
		name:     name,
		interval: interval,
		enabled:  enabled,
		log:      logger.Get().With("worker", name),
	}
}

func (w *BaseWorker) Name() string { return w.name }

func (w *BaseWorker) Interval() time.Duration { return w.interval }

func (w *BaseWorker) Enabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.enabled
}

func (w *BaseWorker) Log() *logger.Logger { return w.log }

// Health returns the current run counters.
func (w *BaseWorker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return WorkerHealth{
		LastRun:      w.lastRun,
		LastError:    w.lastError,
		RunCount:     w.runs,
		ErrorCount:   w.failures,
		LastDuration: w.lastTook,
		Enabled:      w.enabled,
	}
}

// RecordRun marks a successful iteration and clears the last error.
func (w *BaseWorker) RecordRun(duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastRun = time.Now()
	w.runs++
	w.lastError = nil
	w.lastTook = duration
}

// RecordError marks a failed iteration.
func (w *BaseWorker) RecordError(err error, duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastRun = time.Now()
	w.runs++
	w.failures++
	w.lastError = err
	w.lastTook = duration
}
