package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/hra-case-service/internal/config"
	"github.com/spec-kit/hra-case-service/internal/events"
	"github.com/spec-kit/hra-case-service/internal/service"
	apperrors "github.com/spec-kit/hra-case-service/pkg/util"
)

const (
	pausePollInterval    = 250 * time.Millisecond
	maxConsecutiveErrors = 5
)

// Runner drives bulk jobs in the background, one goroutine per job. Each
// job is owned by exactly one worker, which is what lets the persisted
// cursor double as the resume point.
type Runner struct {
	bulk       *service.BulkService
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.BulkConfig

	mu      sync.Mutex
	workers map[string]*jobWorker
}

type jobWorker struct {
	jobID        string
	cancel       context.CancelFunc
	paused       atomic.Bool
	lastProgress atomic.Int64
	done         chan struct{}
}

// NewRunner constructs the runner.
func NewRunner(cfg config.BulkConfig, bulk *service.BulkService, dispatcher events.Dispatcher, logger *zap.Logger) *Runner {
	return &Runner{
		bulk:       bulk,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		workers:    make(map[string]*jobWorker),
	}
}

// Start begins (or resumes) processing a job in the background. Starting a
// job that already has a live worker is a conflict.
func (r *Runner) Start(ctx context.Context, jobID string) error {
	r.mu.Lock()
	if _, running := r.workers[jobID]; running {
		r.mu.Unlock()
		return apperrors.NewConflict("job already running", map[string]any{"job_id": jobID})
	}
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &jobWorker{jobID: jobID, cancel: cancel, done: make(chan struct{})}
	w.lastProgress.Store(time.Now().UnixNano())
	r.workers[jobID] = w
	r.mu.Unlock()

	if _, err := r.bulk.Begin(workerCtx, jobID); err != nil {
		r.remove(jobID)
		cancel()
		return err
	}

	go r.run(workerCtx, w)
	go r.watchStall(workerCtx, w)
	return nil
}

// Pause suspends the worker between rows. The in-flight row finishes.
func (r *Runner) Pause(jobID string) error {
	w, err := r.worker(jobID)
	if err != nil {
		return err
	}
	w.paused.Store(true)
	r.logger.Info("bulk job paused", zap.String("job_id", jobID))
	return nil
}

// Resume lifts a pause.
func (r *Runner) Resume(jobID string) error {
	w, err := r.worker(jobID)
	if err != nil {
		return err
	}
	w.paused.Store(false)
	w.lastProgress.Store(time.Now().UnixNano())
	r.logger.Info("bulk job resumed", zap.String("job_id", jobID))
	return nil
}

// Cancel stops the worker. The job row stays in Processing so a later
// Start picks up where the cursor left off.
func (r *Runner) Cancel(jobID string) error {
	w, err := r.worker(jobID)
	if err != nil {
		return err
	}
	w.cancel()
	<-w.done
	r.logger.Info("bulk job worker cancelled", zap.String("job_id", jobID))
	return nil
}

// Paused reports the cooperative pause flag of a live worker.
func (r *Runner) Paused(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[jobID]
	return ok && w.paused.Load()
}

// Shutdown cancels every live worker and waits for them to stop.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	workers := make([]*jobWorker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.mu.Unlock()

	for _, w := range workers {
		w.cancel()
		<-w.done
	}
}

func (r *Runner) run(ctx context.Context, w *jobWorker) {
	defer close(w.done)
	defer r.remove(w.jobID)

	consecutiveErrors := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if w.paused.Load() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pausePollInterval):
			}
			continue
		}

		done, err := r.bulk.ProcessNextRow(ctx, w.jobID)
		if err != nil {
			if apperrors.IsCode(err, apperrors.CodeJobFailed) {
				return
			}
			consecutiveErrors++
			r.logger.Error("bulk row processing error",
				zap.String("job_id", w.jobID),
				zap.Int("consecutive", consecutiveErrors),
				zap.Error(err))
			if consecutiveErrors >= maxConsecutiveErrors {
				// Leave the job in Processing; a later Start resumes it.
				r.logger.Error("bulk worker giving up", zap.String("job_id", w.jobID))
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(consecutiveErrors) * time.Second):
			}
			continue
		}
		consecutiveErrors = 0
		w.lastProgress.Store(time.Now().UnixNano())
		if done {
			return
		}
		if delay := r.cfg.RowDelay(); delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

// watchStall warns once when a running job makes no progress for the
// configured interval, and re-arms after new progress.
func (r *Runner) watchStall(ctx context.Context, w *jobWorker) {
	stallAfter := r.cfg.StallAfter()
	ticker := time.NewTicker(stallAfter / 4)
	defer ticker.Stop()

	var notifiedAt int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
		}
		if w.paused.Load() {
			continue
		}
		last := w.lastProgress.Load()
		idle := time.Since(time.Unix(0, last))
		if idle < stallAfter || notifiedAt == last {
			if last != notifiedAt && idle < stallAfter {
				notifiedAt = 0
			}
			continue
		}
		notifiedAt = last

		job, err := r.bulk.GetJob(ctx, w.jobID)
		if err != nil {
			continue
		}
		if r.dispatcher != nil {
			_ = r.dispatcher.Publish(ctx, events.Event{
				ID:        uuid.NewString(),
				Type:      events.EventJobStalled,
				SubjectID: w.jobID,
				Timestamp: time.Now(),
				Payload: events.JobStalledPayload{
					ProcessedCases: job.ProcessedCases,
					Idle:           idle,
				},
			})
		}
	}
}

func (r *Runner) worker(jobID string) (*jobWorker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[jobID]
	if !ok {
		return nil, apperrors.NewNotFound("job worker", map[string]any{"job_id": jobID})
	}
	return w, nil
}

func (r *Runner) remove(jobID string) {
	r.mu.Lock()
	delete(r.workers, jobID)
	r.mu.Unlock()
}
