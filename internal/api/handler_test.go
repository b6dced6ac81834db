package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custom_errors "skill-profiler/internal/errors"
	"skill-profiler/internal/githubapi"
	"skill-profiler/internal/model"
	"skill-profiler/internal/queue"
	"skill-profiler/internal/scancache"
	"skill-profiler/internal/syncer"
)

type fakeProfileStore struct {
	skills []model.StudentSkillRecord
}

func (f *fakeProfileStore) ListStudentSkills(ctx context.Context, studentID string) ([]model.StudentSkillRecord, error) {
	return f.skills, nil
}

func (f *fakeProfileStore) GetCredential(ctx context.Context, studentID, kind string) (string, error) {
	return "", custom_errors.ErrNotFound
}

// fakeSyncStore accepts every write. The sync path under test exercises the
// handler and tracker, not persistence.
type fakeSyncStore struct{}

func (fakeSyncStore) UpsertProject(ctx context.Context, p model.ProjectRecord) (model.ProjectRecord, error) {
	return p, nil
}
func (fakeSyncStore) ReplaceProjectSkills(ctx context.Context, projectID int64, s []model.InferredSkill) error {
	return nil
}
func (fakeSyncStore) UpsertStudentSkill(ctx context.Context, rec model.StudentSkillRecord) error {
	return nil
}
func (fakeSyncStore) ListStudentSkills(ctx context.Context, studentID string) ([]model.StudentSkillRecord, error) {
	return nil, nil
}
func (fakeSyncStore) DeleteStudentSkills(ctx context.Context, studentID string, skillNames []string) error {
	return nil
}
func (fakeSyncStore) CreateSyncRun(ctx context.Context, studentID string) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (fakeSyncStore) FinishSyncRun(ctx context.Context, id uuid.UUID, status, message string, detail []byte) error {
	return nil
}

// fakeHost serves an account with no repositories, the smallest complete pass.
type fakeHost struct{}

func (fakeHost) GetAuthenticatedUser(ctx context.Context) (*model.Account, error) {
	return &model.Account{GitHubID: 1, Login: "octocat"}, nil
}
func (fakeHost) ListRepositories(ctx context.Context, maxRepos int, includePrivate bool) ([]model.RepositorySummary, error) {
	return nil, nil
}
func (fakeHost) ListLanguages(ctx context.Context, owner, name string) (map[string]int64, error) {
	return nil, nil
}
func (fakeHost) CountRecentCommits(ctx context.Context, owner, name string, sampleSize int) (int, error) {
	return 0, nil
}
func (fakeHost) GetTree(ctx context.Context, owner, name, branch string) ([]githubapi.TreeEntry, error) {
	return nil, nil
}
func (fakeHost) GetBlob(ctx context.Context, owner, name, sha string) (string, error) {
	return "", nil
}

type fakeQueueStore struct {
	jobs []model.QueueJob
}

func (f *fakeQueueStore) EnqueueJob(ctx context.Context, studentID, provider string, payload []byte, maxAttempts int) (model.QueueJob, error) {
	job := model.QueueJob{
		ID:          uuid.New(),
		StudentID:   studentID,
		Provider:    provider,
		Payload:     payload,
		Status:      model.JobStatusQueued,
		MaxAttempts: maxAttempts,
	}
	f.jobs = append(f.jobs, job)
	return job, nil
}

func (f *fakeQueueStore) LeaseNextJob(ctx context.Context) (*model.QueueJob, error) {
	return nil, nil
}

func (f *fakeQueueStore) FinishJob(ctx context.Context, id uuid.UUID, status, lastError string, nextRunAt time.Time) error {
	return nil
}

type noopPipeline struct{}

func (noopPipeline) Run(ctx context.Context, studentID, provider, text, sourceRef string) error {
	return nil
}

type testEnv struct {
	router     http.Handler
	tracker    *syncer.Tracker
	profiles   *fakeProfileStore
	queueStore *fakeQueueStore
}

func newTestEnv(t *testing.T, staticToken string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	profiles := &fakeProfileStore{
		skills: []model.StudentSkillRecord{
			{StudentID: "student-1", Skill: "go", Proficiency: 0.8, Confidence: 0.6},
		},
	}
	tracker := syncer.NewTracker(time.Minute, logger)
	sync := syncer.NewSyncer(fakeSyncStore{}, scancache.New(16), logger)
	queueStore := &fakeQueueStore{}
	worker := queue.NewWorker(queueStore, noopPipeline{}, logger)

	router := NewRouter(Config{
		Store:       profiles,
		Syncer:      sync,
		Tracker:     tracker,
		Worker:      worker,
		ClientFor:   func(token string) syncer.HostClient { return fakeHost{} },
		StaticToken: staticToken,
		MaxRepos:    10,
	}, logger)

	return &testEnv{router: router, tracker: tracker, profiles: profiles, queueStore: queueStore}
}

func (e *testEnv) do(method, path string, body []byte, studentID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if studentID != "" {
		req.Header.Set("X-Student-ID", studentID)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) waitForIdle(t *testing.T, studentID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !e.tracker.Status(studentID).InProgress {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("background sync did not finish in time")
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, "token")
	rr := env.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestMissingStudentID(t *testing.T) {
	env := newTestEnv(t, "token")
	rr := env.do(http.MethodGet, "/v1/skills", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestListSkills(t *testing.T) {
	env := newTestEnv(t, "token")
	rr := env.do(http.MethodGet, "/v1/skills", nil, "student-1")
	require.Equal(t, http.StatusOK, rr.Code)

	var records []model.StudentSkillRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "go", records[0].Skill)
}

func TestTriggerSyncStartsBackgroundRun(t *testing.T) {
	env := newTestEnv(t, "token")

	rr := env.do(http.MethodPost, "/v1/sync", nil, "student-1")
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp struct {
		Started bool                       `json:"started"`
		Status  model.BackgroundSyncStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Started)

	env.waitForIdle(t, "student-1")
	status := env.tracker.Status("student-1")
	assert.Empty(t, status.Error)
	assert.NotNil(t, status.LastSyncAt)
}

func TestTriggerSyncConflictsWhileRunning(t *testing.T) {
	env := newTestEnv(t, "token")

	release := make(chan struct{})
	require.NoError(t, env.tracker.Trigger("student-1", func() error {
		<-release
		return nil
	}))
	defer func() {
		close(release)
		env.waitForIdle(t, "student-1")
	}()

	rr := env.do(http.MethodPost, "/v1/sync", nil, "student-1")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestTriggerSyncWithoutAnyCredential(t *testing.T) {
	env := newTestEnv(t, "")
	rr := env.do(http.MethodPost, "/v1/sync", nil, "student-1")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSyncStatus(t *testing.T) {
	env := newTestEnv(t, "token")
	rr := env.do(http.MethodGet, "/v1/sync/status", nil, "student-1")
	require.Equal(t, http.StatusOK, rr.Code)

	var status model.BackgroundSyncStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.False(t, status.InProgress)
	assert.Nil(t, status.LastSyncAt)
}

func TestProfileServesCachedSkillsAndAutosyncs(t *testing.T) {
	env := newTestEnv(t, "token")

	rr := env.do(http.MethodGet, "/v1/profile", nil, "student-1")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Skills        []model.StudentSkillRecord `json:"skills"`
		SyncTriggered bool                       `json:"sync_triggered"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Skills, 1)
	assert.Equal(t, "go", resp.Skills[0].Skill)
	// Never-synced student is stale, so the read triggers a refresh.
	assert.True(t, resp.SyncTriggered)

	env.waitForIdle(t, "student-1")

	// A fresh sync means the next read serves the cache with no trigger.
	rr = env.do(http.MethodGet, "/v1/profile", nil, "student-1")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.SyncTriggered)
}

func TestEnqueueIntel(t *testing.T) {
	env := newTestEnv(t, "token")

	body := []byte(`{"text":"Built a REST API in Go with PostgreSQL","source_ref":"readme:octocat/api"}`)
	rr := env.do(http.MethodPost, "/v1/intel/enqueue", body, "student-1")
	require.Equal(t, http.StatusCreated, rr.Code)

	var job model.QueueJob
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
	assert.Equal(t, "student-1", job.StudentID)
	assert.Equal(t, "github", job.Provider)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	require.Len(t, env.queueStore.jobs, 1)
}

func TestEnqueueIntelRejectsEmptyText(t *testing.T) {
	env := newTestEnv(t, "token")

	rr := env.do(http.MethodPost, "/v1/intel/enqueue", []byte(`{"text":""}`), "student-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, env.queueStore.jobs)
}

func TestRunWorkerOnceEmptyQueue(t *testing.T) {
	env := newTestEnv(t, "token")

	rr := env.do(http.MethodPost, "/v1/intel/worker/run", nil, "student-1")
	require.Equal(t, http.StatusOK, rr.Code)

	var result queue.WorkerResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.False(t, result.Processed)
}
