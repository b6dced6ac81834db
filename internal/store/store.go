// Package store is the Postgres persistence layer. Every logical table has
// explicit record types; no untyped maps cross this boundary.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	custom_errors "skill-profiler/internal/errors"
	"skill-profiler/internal/model"
)

// nodeTables whitelists the graph node tables; node types never reach SQL
// text without passing through it.
var nodeTables = map[string]string{
	model.NodeTypeSkill:      "skills",
	model.NodeTypeTechnology: "technologies",
	model.NodeTypeConcept:    "concepts",
}

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertProject creates or updates a project row by its host repo id.
func (s *Store) UpsertProject(ctx context.Context, p model.ProjectRecord) (model.ProjectRecord, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO projects (github_repo_id, owner, name, description, language, stars, forks, pushed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (github_repo_id) DO UPDATE SET
			description = EXCLUDED.description,
			language = EXCLUDED.language,
			stars = EXCLUDED.stars,
			forks = EXCLUDED.forks,
			pushed_at = EXCLUDED.pushed_at,
			updated_at = now()
		RETURNING id`,
		p.GitHubRepoID, p.Owner, p.Name, p.Description, p.Language, p.Stars, p.Forks, p.PushedAt)
	if err := row.Scan(&p.ID); err != nil {
		return model.ProjectRecord{}, fmt.Errorf("upsert project %s/%s: %w", p.Owner, p.Name, err)
	}
	return p, nil
}

// ReplaceProjectSkills replaces the skill set attached to a project.
func (s *Store) ReplaceProjectSkills(ctx context.Context, projectID int64, skills []model.InferredSkill) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM project_skills WHERE project_id = $1`, projectID); err != nil {
		return err
	}
	for _, skill := range skills {
		if _, err := tx.Exec(ctx, `
			INSERT INTO project_skills (project_id, skill, score) VALUES ($1, $2, $3)
			ON CONFLICT (project_id, skill) DO UPDATE SET score = EXCLUDED.score`,
			projectID, skill.Skill, skill.Score); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// UpsertStudentSkill writes one (student, skill) record by composite key.
func (s *Store) UpsertStudentSkill(ctx context.Context, rec model.StudentSkillRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO student_skills (student_id, skill, proficiency, confidence, usage_count, last_used, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (student_id, skill) DO UPDATE SET
			proficiency = EXCLUDED.proficiency,
			confidence = EXCLUDED.confidence,
			usage_count = EXCLUDED.usage_count,
			last_used = EXCLUDED.last_used,
			updated_at = now()`,
		rec.StudentID, rec.Skill, rec.Proficiency, rec.Confidence, rec.UsageCount, rec.LastUsed)
	return err
}

// BumpSkillUsage increments a student's usage evidence for a skill.
func (s *Store) BumpSkillUsage(ctx context.Context, studentID, skill string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO student_skills (student_id, skill, proficiency, confidence, usage_count, last_used, updated_at)
		VALUES ($1, $2, 0, 0, 1, now(), now())
		ON CONFLICT (student_id, skill) DO UPDATE SET
			usage_count = student_skills.usage_count + 1,
			last_used = now(),
			updated_at = now()`,
		studentID, skill)
	return err
}

// ListStudentSkills returns all skill records for a student, best first.
func (s *Store) ListStudentSkills(ctx context.Context, studentID string) ([]model.StudentSkillRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT student_id, skill, proficiency, confidence, usage_count, last_used
		FROM student_skills WHERE student_id = $1
		ORDER BY proficiency DESC, skill ASC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StudentSkillRecord
	for rows.Next() {
		var rec model.StudentSkillRecord
		if err := rows.Scan(&rec.StudentID, &rec.Skill, &rec.Proficiency, &rec.Confidence, &rec.UsageCount, &rec.LastUsed); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteStudentSkills removes the named skills for a student.
func (s *Store) DeleteStudentSkills(ctx context.Context, studentID string, skillNames []string) error {
	if len(skillNames) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM student_skills WHERE student_id = $1 AND skill = ANY($2)`,
		studentID, skillNames)
	return err
}

// CreateSyncRun opens a sync_runs row in the running state.
func (s *Store) CreateSyncRun(ctx context.Context, studentID string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_runs (id, student_id, status, started_at) VALUES ($1, $2, $3, now())`,
		id, studentID, model.RunStatusRunning)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// FinishSyncRun closes a sync run with its terminal status.
func (s *Store) FinishSyncRun(ctx context.Context, id uuid.UUID, status, message string, detail []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_runs SET status = $2, message = $3, detail = $4, finished_at = now() WHERE id = $1`,
		id, status, message, detail)
	return err
}

// EnqueueJob inserts a new queued enrichment job.
func (s *Store) EnqueueJob(ctx context.Context, studentID, provider string, payload []byte, maxAttempts int) (model.QueueJob, error) {
	job := model.QueueJob{
		ID:          uuid.New(),
		StudentID:   studentID,
		Provider:    provider,
		Payload:     payload,
		Status:      model.JobStatusQueued,
		MaxAttempts: maxAttempts,
		NextRunAt:   time.Now(),
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sync_queue (id, student_id, provider, payload, status, attempts, max_attempts, next_run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, now(), now())
		RETURNING created_at, updated_at`,
		job.ID, job.StudentID, job.Provider, job.Payload, job.Status, job.MaxAttempts, job.NextRunAt)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return model.QueueJob{}, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// LeaseNextJob leases the single oldest eligible job, marking it running and
// incrementing its attempt counter. Returns nil when nothing is eligible.
// SKIP LOCKED keeps a concurrent poll from double-leasing the same row.
func (s *Store) LeaseNextJob(ctx context.Context) (*model.QueueJob, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var job model.QueueJob
	err = tx.QueryRow(ctx, `
		SELECT id, student_id, provider, payload, status, attempts, max_attempts, next_run_at, last_error, created_at, updated_at
		FROM sync_queue
		WHERE status IN ($1, $2) AND next_run_at <= now()
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, model.JobStatusQueued, model.JobStatusFailed).
		Scan(&job.ID, &job.StudentID, &job.Provider, &job.Payload, &job.Status,
			&job.Attempts, &job.MaxAttempts, &job.NextRunAt, &job.LastError,
			&job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sync_queue SET status = $2, attempts = attempts + 1, updated_at = now() WHERE id = $1`,
		job.ID, model.JobStatusRunning); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	job.Status = model.JobStatusRunning
	job.Attempts++
	return &job, nil
}

// FinishJob settles a leased job into success, failed (retry later) or dead.
func (s *Store) FinishJob(ctx context.Context, id uuid.UUID, status, lastError string, nextRunAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_queue SET status = $2, last_error = $3, next_run_at = $4, updated_at = now() WHERE id = $1`,
		id, status, lastError, nextRunAt)
	return err
}

// GetOrCreateNode resolves a graph node by natural key, creating it if absent.
func (s *Store) GetOrCreateNode(ctx context.Context, nodeType, name string) (model.GraphNode, error) {
	table, ok := nodeTables[nodeType]
	if !ok {
		return model.GraphNode{}, fmt.Errorf("unknown node type %q", nodeType)
	}
	node := model.GraphNode{Type: nodeType, Name: name}
	// The no-op update makes RETURNING fire on conflict as well.
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (name, created_at) VALUES ($1, now())
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, table), name).Scan(&node.ID)
	if err != nil {
		return model.GraphNode{}, fmt.Errorf("get-or-create %s node %q: %w", nodeType, name, err)
	}
	return node, nil
}

// SetNodeEmbedding attaches an embedding vector to a node.
func (s *Store) SetNodeEmbedding(ctx context.Context, nodeType string, id int64, embedding []float32) error {
	table, ok := nodeTables[nodeType]
	if !ok {
		return fmt.Errorf("unknown node type %q", nodeType)
	}
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET embedding = $2 WHERE id = $1`, table), id, embedding)
	return err
}

// InsertMention records a source→node mention.
func (s *Store) InsertMention(ctx context.Context, m model.EntityMention) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entity_mentions (node_id, node_type, provider, source_ref, mention_text, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		m.NodeID, m.NodeType, m.Provider, m.SourceRef, m.Text, m.Score)
	return err
}

// UpsertEdge creates a co-occurrence edge or increments its weight.
func (s *Store) UpsertEdge(ctx context.Context, e model.KnowledgeEdge) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO knowledge_edges (source_id, source_type, target_id, target_type, relation, weight)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (source_id, source_type, target_id, target_type, relation)
		DO UPDATE SET weight = knowledge_edges.weight + 1`,
		e.SourceID, e.SourceType, e.TargetID, e.TargetType, e.Relation)
	return err
}

// CreateIntelligenceRun opens an intelligence_runs row in the running state.
func (s *Store) CreateIntelligenceRun(ctx context.Context, provider, sourceRef string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO intelligence_runs (id, provider, source_ref, status, started_at)
		VALUES ($1, $2, $3, $4, now())`,
		id, provider, sourceRef, model.RunStatusRunning)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// FinishIntelligenceRun closes an intelligence run.
func (s *Store) FinishIntelligenceRun(ctx context.Context, id uuid.UUID, status, message string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE intelligence_runs SET status = $2, message = $3, finished_at = now() WHERE id = $1`,
		id, status, message)
	return err
}

// RecomputeSkillAggregates triggers the server-side aggregate refresh.
func (s *Store) RecomputeSkillAggregates(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `SELECT refresh_skill_aggregates()`)
	return err
}

// SimilarNodes returns the nodes of one type closest to the query embedding.
func (s *Store) SimilarNodes(ctx context.Context, nodeType string, embedding []float32, limit int) ([]model.GraphNode, error) {
	table, ok := nodeTables[nodeType]
	if !ok {
		return nil, fmt.Errorf("unknown node type %q", nodeType)
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, name FROM %s
		WHERE embedding IS NOT NULL
		ORDER BY cosine_distance(embedding, $1) ASC
		LIMIT $2`, table), embedding, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GraphNode
	for rows.Next() {
		node := model.GraphNode{Type: nodeType}
		if err := rows.Scan(&node.ID, &node.Name); err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, rows.Err()
}

// GetCredential returns a stored access token of the given kind for a
// student, or ErrNotFound.
func (s *Store) GetCredential(ctx context.Context, studentID, kind string) (string, error) {
	var token string
	err := s.pool.QueryRow(ctx,
		`SELECT token FROM student_credentials WHERE student_id = $1 AND kind = $2`,
		studentID, kind).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", custom_errors.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return token, nil
}
