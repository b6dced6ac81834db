// Package queue drives durable enrichment jobs: a polling worker leases one
// eligible job at a time, runs the intelligence pipeline on its payload and
// applies the retry/backoff/dead-letter policy.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"skill-profiler/internal/model"
)

const (
	// DefaultMaxAttempts before a job is declared dead.
	DefaultMaxAttempts = 3
	// retryBackoff pushes a failed job's eligibility forward.
	retryBackoff = 5 * time.Minute
)

// JobPayload is the body of an enrichment job.
type JobPayload struct {
	Text      string `json:"text"`
	SourceRef string `json:"source_ref"`
}

// Store is the durable queue surface the worker needs.
type Store interface {
	EnqueueJob(ctx context.Context, studentID, provider string, payload []byte, maxAttempts int) (model.QueueJob, error)
	LeaseNextJob(ctx context.Context) (*model.QueueJob, error)
	FinishJob(ctx context.Context, id uuid.UUID, status, lastError string, nextRunAt time.Time) error
}

// Pipeline is the enrichment pass executed for each leased job.
type Pipeline interface {
	Run(ctx context.Context, studentID, provider, text, sourceRef string) error
}

// WorkerResult reports what one invocation did.
type WorkerResult struct {
	Processed bool       `json:"processed"`
	JobID     *uuid.UUID `json:"job_id,omitempty"`
	Status    string     `json:"status,omitempty"`
}

// Worker executes at most one job per invocation. It is a single-lease
// polling worker, safe under a single active worker process only.
type Worker struct {
	store    Store
	pipeline Pipeline
	logger   *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(store Store, pipeline Pipeline, logger *slog.Logger) *Worker {
	return &Worker{store: store, pipeline: pipeline, logger: logger}
}

// Enqueue creates a new queued job for a student.
func (w *Worker) Enqueue(ctx context.Context, studentID, provider string, payload JobPayload) (model.QueueJob, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return model.QueueJob{}, fmt.Errorf("marshal job payload: %w", err)
	}
	return w.store.EnqueueJob(ctx, studentID, provider, body, DefaultMaxAttempts)
}

// RunOnce leases the single oldest eligible job and executes it. A run with
// no eligible job is not an error.
func (w *Worker) RunOnce(ctx context.Context) (WorkerResult, error) {
	job, err := w.store.LeaseNextJob(ctx)
	if err != nil {
		return WorkerResult{}, fmt.Errorf("lease job: %w", err)
	}
	if job == nil {
		return WorkerResult{Processed: false}, nil
	}

	logger := w.logger.With("job_id", job.ID, "student_id", job.StudentID, "attempt", job.Attempts)
	logger.Info("Processing enrichment job")

	var payload JobPayload
	execErr := json.Unmarshal(job.Payload, &payload)
	if execErr == nil {
		execErr = w.pipeline.Run(ctx, job.StudentID, job.Provider, payload.Text, payload.SourceRef)
	}

	if execErr == nil {
		if err := w.store.FinishJob(ctx, job.ID, model.JobStatusSuccess, "", job.NextRunAt); err != nil {
			return WorkerResult{}, err
		}
		logger.Info("Job succeeded")
		return WorkerResult{Processed: true, JobID: &job.ID, Status: model.JobStatusSuccess}, nil
	}

	// Exhausted jobs go to the dead-letter state and are never retried;
	// anything else becomes eligible again after the backoff.
	status := model.JobStatusFailed
	nextRun := time.Now().Add(retryBackoff)
	if job.Attempts >= job.MaxAttempts {
		status = model.JobStatusDead
		nextRun = job.NextRunAt
	}
	if err := w.store.FinishJob(ctx, job.ID, status, execErr.Error(), nextRun); err != nil {
		return WorkerResult{}, err
	}
	logger.Warn("Job failed", "status", status, "error", execErr)
	return WorkerResult{Processed: true, JobID: &job.ID, Status: status}, nil
}
