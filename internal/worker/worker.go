// Package worker runs background maintenance next to the HTTP server.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/observability"
	serviceinterfaces "helpcy/internal/services/interfaces"

	"go.opentelemetry.io/otel/attribute"
)

// Status represents the current state of the worker
type Status struct {
	IsRunning       bool      `json:"is_running"`
	IsPaused        bool      `json:"is_paused"`
	CurrentActivity string    `json:"current_activity,omitempty"`
	LastRunStart    time.Time `json:"last_run_start"`
	LastRunFinish   time.Time `json:"last_run_finish"`
	LastRunError    string    `json:"last_run_error,omitempty"`
	NextRun         time.Time `json:"next_run"`
}

// RunRecord tracks individual worker runs
type RunRecord struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"` // Success, Failure
	Details   string        `json:"details"`
}

// DraftCleaner is the maintenance task the worker runs each cycle
type DraftCleaner interface {
	CleanupIdleDrafts(ctx context.Context) (int, error)
}

var _ serviceinterfaces.Lifecycle = (*Worker)(nil)

// Worker periodically discards idle drafts
type Worker struct {
	cleaner       DraftCleaner
	instance      string
	interval      time.Duration
	status        Status
	history       []RunRecord
	mu            sync.RWMutex
	manualTrigger chan struct{}
	logger        *observability.Logger

	timeNow func() time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a worker that runs cleaner every interval
func NewWorker(cleaner DraftCleaner, instance string, interval time.Duration, logger *observability.Logger) *Worker {
	if instance == "" {
		instance = "default"
	}
	if interval <= 0 {
		interval = config.DefaultCleanupInterval
	}
	return &Worker{
		cleaner:       cleaner,
		instance:      instance,
		interval:      interval,
		status:        Status{CurrentActivity: "Initialized"},
		history:       make([]RunRecord, 0, config.WorkerMaxHistory),
		manualTrigger: make(chan struct{}, 1),
		logger:        logger,
		timeNow:       time.Now,
	}
}

// Startup starts the background loop; the service container calls it once
func (w *Worker) Startup(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil
	}

	// the loop outlives the startup context and stops on Shutdown
	loopCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.status.IsRunning = true
	w.status.NextRun = w.timeNow().Add(w.interval)

	go w.loop(loopCtx)

	w.logger.Info(ctx, "Worker started", map[string]interface{}{
		"instance": w.instance,
		"interval": w.interval.String(),
	})
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.run(ctx)
		case <-w.manualTrigger:
			w.logger.Info(ctx, "Worker triggered manually", map[string]interface{}{
				"instance": w.instance,
			})
			w.run(ctx)
		}
	}
}

// run executes a single worker cycle
func (w *Worker) run(ctx context.Context) {
	ctx, span := observability.TraceWorkerFunction(ctx, "run",
		attribute.String("worker.instance", w.instance),
	)
	defer observability.FinishSpan(span, nil)

	w.mu.Lock()
	if w.status.IsPaused {
		w.status.CurrentActivity = "Paused"
		w.status.NextRun = w.timeNow().Add(w.interval)
		w.mu.Unlock()
		span.SetAttributes(attribute.String("pause_reason", "Worker instance paused"))
		return
	}
	w.status.LastRunStart = w.timeNow()
	w.status.CurrentActivity = "Discarding idle drafts"
	w.mu.Unlock()

	purged, err := w.cleaner.CleanupIdleDrafts(ctx)
	details := fmt.Sprintf("discarded %d idle drafts", purged)
	if err != nil {
		w.logger.Error(ctx, "Worker run failed", err, map[string]interface{}{
			"instance": w.instance,
		})
		details = "cleanup failed"
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.status.LastRunFinish = w.timeNow()
	w.status.NextRun = w.status.LastRunFinish.Add(w.interval)
	w.status.CurrentActivity = "Idle"
	if err != nil {
		w.status.LastRunError = err.Error()
	} else {
		w.status.LastRunError = ""
	}
	w.recordRunHistory(details, err)
}

// recordRunHistory records the run in history and trims the slice; the
// caller holds mu
func (w *Worker) recordRunHistory(details string, err error) {
	record := RunRecord{
		StartTime: w.status.LastRunStart,
		EndTime:   w.status.LastRunFinish,
		Duration:  w.status.LastRunFinish.Sub(w.status.LastRunStart),
		Details:   details,
	}
	if err != nil {
		record.Status = "Failure"
	} else {
		record.Status = "Success"
	}
	w.history = append(w.history, record)
	if len(w.history) > config.WorkerMaxHistory {
		w.history = w.history[len(w.history)-config.WorkerMaxHistory:]
	}
}

// GetStatus returns the current worker status
func (w *Worker) GetStatus() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// GetHistory returns the worker's run history
func (w *Worker) GetHistory() []RunRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	history := make([]RunRecord, len(w.history))
	copy(history, w.history)
	return history
}

// GetInstance returns the worker instance name
func (w *Worker) GetInstance() string {
	return w.instance
}

// TriggerManualRun asks the loop for an immediate run. A trigger that is
// already pending absorbs this one.
func (w *Worker) TriggerManualRun() {
	select {
	case w.manualTrigger <- struct{}{}:
		w.logger.Info(context.Background(), "Manual trigger sent to worker", map[string]interface{}{
			"instance": w.instance,
		})
	default:
		w.logger.Info(context.Background(), "Manual trigger already pending for worker", map[string]interface{}{
			"instance": w.instance,
		})
	}
}

// Pause skips cycles until Resume
func (w *Worker) Pause(ctx context.Context) {
	w.mu.Lock()
	w.status.IsPaused = true
	w.mu.Unlock()
	w.logger.Info(ctx, "Worker paused", map[string]interface{}{"instance": w.instance})
}

// Resume re-enables cycles
func (w *Worker) Resume(ctx context.Context) {
	w.mu.Lock()
	w.status.IsPaused = false
	w.mu.Unlock()
	w.logger.Info(ctx, "Worker resumed", map[string]interface{}{"instance": w.instance})
}

// Shutdown stops the loop and waits for an in-flight run, bounded by ctx
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	w.logger.Info(ctx, "Worker starting shutdown", map[string]interface{}{
		"instance": w.instance,
	})
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	w.status.IsRunning = false
	w.status.CurrentActivity = "Stopped"
	w.mu.Unlock()

	w.logger.Info(ctx, "Worker shutdown completed", map[string]interface{}{
		"instance": w.instance,
	})
	return nil
}
