package syncer

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custom_errors "skill-profiler/internal/errors"
)

func newTestTracker(staleAfter time.Duration) *Tracker {
	return NewTracker(staleAfter, testLogger())
}

func TestTrackerRejectsConcurrentTrigger(t *testing.T) {
	tracker := newTestTracker(time.Minute)

	release := make(chan struct{})
	var runs atomic.Int32

	err := tracker.Trigger("student-1", func() error {
		runs.Add(1)
		<-release
		return nil
	})
	require.NoError(t, err)

	// Second trigger while the first is still running must be refused and
	// must not execute its function.
	err = tracker.Trigger("student-1", func() error {
		runs.Add(1)
		return nil
	})
	assert.ErrorIs(t, err, custom_errors.ErrSyncInProgress)

	status := tracker.Status("student-1")
	assert.True(t, status.InProgress)

	close(release)
	waitForIdle(t, tracker, "student-1")
	assert.Equal(t, int32(1), runs.Load())
}

func TestTrackerDifferentStudentsRunIndependently(t *testing.T) {
	tracker := newTestTracker(time.Minute)

	release := make(chan struct{})
	err := tracker.Trigger("student-1", func() error {
		<-release
		return nil
	})
	require.NoError(t, err)

	err = tracker.Trigger("student-2", func() error { return nil })
	assert.NoError(t, err)

	close(release)
	waitForIdle(t, tracker, "student-1")
}

func TestTrackerRecordsSuccess(t *testing.T) {
	tracker := newTestTracker(time.Minute)

	require.NoError(t, tracker.Trigger("student-1", func() error { return nil }))
	waitForIdle(t, tracker, "student-1")

	status := tracker.Status("student-1")
	assert.False(t, status.InProgress)
	assert.Empty(t, status.Error)
	require.NotNil(t, status.LastSyncAt)
	assert.WithinDuration(t, time.Now(), *status.LastSyncAt, 5*time.Second)
}

func TestTrackerRecordsFailureWithoutTouchingLastSync(t *testing.T) {
	tracker := newTestTracker(time.Minute)

	require.NoError(t, tracker.Trigger("student-1", func() error { return nil }))
	waitForIdle(t, tracker, "student-1")
	firstSync := tracker.Status("student-1").LastSyncAt
	require.NotNil(t, firstSync)

	require.NoError(t, tracker.Trigger("student-1", func() error {
		return errors.New("host unreachable")
	}))
	waitForIdle(t, tracker, "student-1")

	status := tracker.Status("student-1")
	assert.Equal(t, "host unreachable", status.Error)
	require.NotNil(t, status.LastSyncAt)
	assert.Equal(t, *firstSync, *status.LastSyncAt)
}

func TestTrackerRetriggerAllowedAfterCompletion(t *testing.T) {
	tracker := newTestTracker(time.Minute)

	require.NoError(t, tracker.Trigger("student-1", func() error { return nil }))
	waitForIdle(t, tracker, "student-1")

	assert.NoError(t, tracker.Trigger("student-1", func() error { return nil }))
	waitForIdle(t, tracker, "student-1")
}

func TestShouldAutoSync(t *testing.T) {
	tracker := newTestTracker(50 * time.Millisecond)

	// Unknown student has never synced.
	assert.True(t, tracker.ShouldAutoSync("student-1"))

	release := make(chan struct{})
	require.NoError(t, tracker.Trigger("student-1", func() error {
		<-release
		return nil
	}))
	assert.False(t, tracker.ShouldAutoSync("student-1"))

	close(release)
	waitForIdle(t, tracker, "student-1")

	// Fresh sync, then let it go stale.
	assert.False(t, tracker.ShouldAutoSync("student-1"))
	time.Sleep(60 * time.Millisecond)
	assert.True(t, tracker.ShouldAutoSync("student-1"))
}

// waitForIdle polls until the student's background run completes.
func waitForIdle(t *testing.T, tracker *Tracker, studentID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !tracker.Status(studentID).InProgress {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("background sync did not finish in time")
}
