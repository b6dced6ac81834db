package syncer

import (
	"log/slog"
	"sync"
	"time"

	custom_errors "skill-profiler/internal/errors"
	"skill-profiler/internal/model"
)

// Default staleness window: a profile synced more recently than this is fresh
// enough that autosync will not touch the host API.
const DefaultStaleAfter = 5 * time.Minute

// Tracker owns the per-student background sync state. It is process-local by
// design: a restart reads as "not in progress" and the staleness window heals
// the gap on the next autosync.
type Tracker struct {
	mu         sync.Mutex
	statuses   map[string]*model.BackgroundSyncStatus
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewTracker creates a Tracker with the given staleness window.
func NewTracker(staleAfter time.Duration, logger *slog.Logger) *Tracker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Tracker{
		statuses:   make(map[string]*model.BackgroundSyncStatus),
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Trigger starts fn in the background for the student, enforcing at most one
// concurrent sync per student. A second trigger while one is in progress
// returns ErrSyncInProgress without starting anything.
func (t *Tracker) Trigger(studentID string, fn func() error) error {
	t.mu.Lock()
	status, ok := t.statuses[studentID]
	if ok && status.InProgress {
		t.mu.Unlock()
		return custom_errors.ErrSyncInProgress
	}
	now := time.Now()
	if !ok {
		status = &model.BackgroundSyncStatus{}
		t.statuses[studentID] = status
	}
	status.InProgress = true
	status.StartedAt = &now
	status.Error = ""
	t.mu.Unlock()

	go func() {
		err := fn()

		t.mu.Lock()
		defer t.mu.Unlock()
		status.InProgress = false
		if err != nil {
			// lastSyncAt stays put: the last *successful* sync is what
			// the staleness policy cares about.
			status.Error = err.Error()
			t.logger.Error("Background sync failed", "student_id", studentID, "error", err)
			return
		}
		done := time.Now()
		status.LastSyncAt = &done
	}()

	return nil
}

// Status returns a snapshot of the student's sync state.
func (t *Tracker) Status(studentID string) model.BackgroundSyncStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, ok := t.statuses[studentID]
	if !ok {
		return model.BackgroundSyncStatus{}
	}
	return *status
}

// ShouldAutoSync reports whether an autosync call should kick off a
// background refresh: never while one is running, and only once the last
// successful sync is older than the staleness window.
func (t *Tracker) ShouldAutoSync(studentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, ok := t.statuses[studentID]
	if !ok {
		return true
	}
	if status.InProgress {
		return false
	}
	if status.LastSyncAt == nil {
		return true
	}
	return time.Since(*status.LastSyncAt) > t.staleAfter
}
