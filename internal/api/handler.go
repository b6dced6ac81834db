// Package api exposes the sync and enrichment entry points over HTTP. The
// layer is deliberately thin: it resolves identity, invokes the core and
// serializes the output. Bearer verification happens upstream; the caller
// identity arrives in the X-Student-ID header.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	custom_errors "skill-profiler/internal/errors"
	"skill-profiler/internal/model"
	"skill-profiler/internal/queue"
	"skill-profiler/internal/syncer"
)

const syncTimeout = 5 * time.Minute

// ProfileStore is the read/credential surface the handlers need.
type ProfileStore interface {
	ListStudentSkills(ctx context.Context, studentID string) ([]model.StudentSkillRecord, error)
	GetCredential(ctx context.Context, studentID, kind string) (string, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	store          ProfileStore
	syncer         *syncer.Syncer
	tracker        *syncer.Tracker
	worker         *queue.Worker
	clientFor      func(token string) syncer.HostClient
	staticToken    string
	maxRepos       int
	deepScanBudget int
	logger         *slog.Logger
}

// Config wires a Handler.
type Config struct {
	Store          ProfileStore
	Syncer         *syncer.Syncer
	Tracker        *syncer.Tracker
	Worker         *queue.Worker
	ClientFor      func(token string) syncer.HostClient
	StaticToken    string
	MaxRepos       int
	DeepScanBudget int
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(cfg Config, logger *slog.Logger) http.Handler {
	h := &Handler{
		store:          cfg.Store,
		syncer:         cfg.Syncer,
		tracker:        cfg.Tracker,
		worker:         cfg.Worker,
		clientFor:      cfg.ClientFor,
		staticToken:    cfg.StaticToken,
		maxRepos:       cfg.MaxRepos,
		deepScanBudget: cfg.DeepScanBudget,
		logger:         logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/sync", h.triggerSync)
		r.Get("/sync/status", h.syncStatus)
		r.Get("/profile", h.profile)
		r.Get("/skills", h.listSkills)
		r.Post("/intel/enqueue", h.enqueueIntel)
		r.Post("/intel/worker/run", h.runWorkerOnce)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// triggerSync starts a background sync for the caller.
// POST /v1/sync
func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.studentID(w, r)
	if !ok {
		return
	}

	started, err := h.startBackgroundSync(r.Context(), studentID)
	if err != nil {
		h.respondSyncError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]any{
		"started": started,
		"status":  h.tracker.Status(studentID),
	})
}

// syncStatus returns the poll-able background sync state.
// GET /v1/sync/status
func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.studentID(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, h.tracker.Status(studentID))
}

// profile returns cached skills immediately and refreshes in the background
// when the last successful sync is stale.
// GET /v1/profile
func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.studentID(w, r)
	if !ok {
		return
	}

	records, err := h.store.ListStudentSkills(r.Context(), studentID)
	if err != nil {
		h.logger.Error("Failed to list student skills", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	triggered := false
	if h.tracker.ShouldAutoSync(studentID) {
		started, err := h.startBackgroundSync(r.Context(), studentID)
		if err != nil && !errors.Is(err, custom_errors.ErrSyncInProgress) {
			// Autosync is best effort; stale data is still data.
			h.logger.Warn("Autosync trigger failed", "student_id", studentID, "error", err)
		}
		triggered = started
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"skills":         records,
		"sync":           h.tracker.Status(studentID),
		"sync_triggered": triggered,
	})
}

// listSkills returns the caller's stored skill records, best first.
// GET /v1/skills
func (h *Handler) listSkills(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.studentID(w, r)
	if !ok {
		return
	}
	records, err := h.store.ListStudentSkills(r.Context(), studentID)
	if err != nil {
		h.logger.Error("Failed to list student skills", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, records)
}

// enqueueIntel creates a durable enrichment job.
// POST /v1/intel/enqueue
func (h *Handler) enqueueIntel(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.studentID(w, r)
	if !ok {
		return
	}

	var body struct {
		Provider  string `json:"provider"`
		Text      string `json:"text"`
		SourceRef string `json:"source_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		respondWithError(w, http.StatusBadRequest, "Body must include non-empty 'text'")
		return
	}
	if body.Provider == "" {
		body.Provider = "github"
	}

	job, err := h.worker.Enqueue(r.Context(), studentID, body.Provider, queue.JobPayload{
		Text:      body.Text,
		SourceRef: body.SourceRef,
	})
	if err != nil {
		h.logger.Error("Failed to enqueue job", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusCreated, job)
}

// runWorkerOnce executes a single worker invocation.
// POST /v1/intel/worker/run
func (h *Handler) runWorkerOnce(w http.ResponseWriter, r *http.Request) {
	result, err := h.worker.RunOnce(r.Context())
	if err != nil {
		h.logger.Error("Worker invocation failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// startBackgroundSync resolves the caller's credential and hands the sync to
// the tracker. Returns whether a new sync was started.
func (h *Handler) startBackgroundSync(ctx context.Context, studentID string) (bool, error) {
	token, source, err := syncer.ResolveToken(ctx, h.store, studentID, h.staticToken)
	if err != nil {
		return false, err
	}
	h.logger.Info("Resolved sync credential", "student_id", studentID, "source", source)

	client := h.clientFor(token)
	err = h.tracker.Trigger(studentID, func() error {
		syncCtx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		_, err := h.syncer.Sync(syncCtx, client, syncer.Options{
			MaxRepos:       h.maxRepos,
			DeepScanBudget: h.deepScanBudget,
			IncludePrivate: source != model.CredentialSourceStatic,
			StudentID:      studentID,
		})
		return err
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (h *Handler) studentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	studentID := r.Header.Get("X-Student-ID")
	if studentID == "" {
		respondWithError(w, http.StatusUnauthorized, "Missing caller identity")
		return "", false
	}
	return studentID, true
}

func (h *Handler) respondSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, custom_errors.ErrSyncInProgress):
		respondWithError(w, http.StatusConflict, "Sync already in progress")
	case errors.Is(err, custom_errors.ErrReauthRequired):
		respondWithError(w, http.StatusUnauthorized, "Reauthorization required")
	default:
		h.logger.Error("Failed to trigger sync", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
