// Package syncer orchestrates one synchronization pass: fetch account and
// repository evidence from the source host, run the deep content scans, infer
// skills and persist the results.
package syncer

import (
	"context"
	"encoding/json"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"skill-profiler/internal/githubapi"
	"skill-profiler/internal/model"
	"skill-profiler/internal/scancache"
	"skill-profiler/internal/signals"
	"skill-profiler/internal/skills"
)

const (
	// Number of repositories to enrich in parallel.
	repoConcurrency = 5
	// Number of blob fetches in flight per repository deep scan.
	blobConcurrency = 8

	hardMaxRepos     = 100
	deepScanBudget   = 35
	commitSampleSize = 25
	maxFileSize      = 200_000
	maxFilesPerScan  = 52
	maxTextBlob      = 4_000
)

// HostClient is the read-only source-host surface the orchestrator consumes.
// *githubapi.Client satisfies it.
type HostClient interface {
	GetAuthenticatedUser(ctx context.Context) (*model.Account, error)
	ListRepositories(ctx context.Context, maxRepos int, includePrivate bool) ([]model.RepositorySummary, error)
	ListLanguages(ctx context.Context, owner, name string) (map[string]int64, error)
	CountRecentCommits(ctx context.Context, owner, name string, sampleSize int) (int, error)
	GetTree(ctx context.Context, owner, name, branch string) ([]githubapi.TreeEntry, error)
	GetBlob(ctx context.Context, owner, name, sha string) (string, error)
}

// SyncStore is the persistence surface one sync pass writes through.
type SyncStore interface {
	UpsertProject(ctx context.Context, p model.ProjectRecord) (model.ProjectRecord, error)
	ReplaceProjectSkills(ctx context.Context, projectID int64, s []model.InferredSkill) error
	UpsertStudentSkill(ctx context.Context, rec model.StudentSkillRecord) error
	ListStudentSkills(ctx context.Context, studentID string) ([]model.StudentSkillRecord, error)
	DeleteStudentSkills(ctx context.Context, studentID string, skillNames []string) error
	CreateSyncRun(ctx context.Context, studentID string) (uuid.UUID, error)
	FinishSyncRun(ctx context.Context, id uuid.UUID, status, message string, detail []byte) error
}

// Options bound one sync pass.
type Options struct {
	MaxRepos       int
	DeepScanBudget int
	IncludePrivate bool
	StudentID      string
}

// Syncer runs synchronization passes. The scan cache is shared across passes
// and owned by the caller.
type Syncer struct {
	store  SyncStore
	cache  *scancache.Cache
	logger *slog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(store SyncStore, cache *scancache.Cache, logger *slog.Logger) *Syncer {
	return &Syncer{store: store, cache: cache, logger: logger}
}

// Sync performs one full pass with the given host client. A failure fetching
// the account or the repository list fails the whole pass; everything past
// that point degrades per repository.
func (s *Syncer) Sync(ctx context.Context, client HostClient, opts Options) (*model.SyncResult, error) {
	runID, err := s.store.CreateSyncRun(ctx, opts.StudentID)
	if err != nil {
		return nil, err
	}

	result, err := s.run(ctx, client, opts)
	if err != nil {
		if ferr := s.store.FinishSyncRun(ctx, runID, model.RunStatusFailed, err.Error(), nil); ferr != nil {
			s.logger.Error("Failed to record sync failure", "run_id", runID, "error", ferr)
		}
		return nil, err
	}

	detail, _ := json.Marshal(map[string]int{
		"total_repos":  result.TotalRepos,
		"deep_scanned": result.DeepScanned,
		"skills":       len(result.Skills),
	})
	if ferr := s.store.FinishSyncRun(ctx, runID, model.RunStatusSuccess, "sync complete", detail); ferr != nil {
		s.logger.Error("Failed to record sync success", "run_id", runID, "error", ferr)
	}
	return result, nil
}

func (s *Syncer) run(ctx context.Context, client HostClient, opts Options) (*model.SyncResult, error) {
	maxRepos := opts.MaxRepos
	if maxRepos <= 0 || maxRepos > hardMaxRepos {
		maxRepos = hardMaxRepos
	}

	var (
		account *model.Account
		repos   []model.RepositorySummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		account, err = client.GetAuthenticatedUser(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		repos, err = client.ListRepositories(gctx, maxRepos, opts.IncludePrivate)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("Fetched account and repositories", "login", account.Login, "repos", len(repos))

	budget := opts.DeepScanBudget
	if budget <= 0 {
		budget = deepScanBudget
	}

	s.enrichMetadata(ctx, client, repos)
	deepScanned := s.deepScan(ctx, client, repos, budget)

	inferred := skills.InferSkills(repos)

	if err := s.persist(ctx, repos, inferred, opts.StudentID); err != nil {
		return nil, err
	}

	return &model.SyncResult{
		Account:      account,
		Repositories: repos,
		Skills:       inferred,
		TotalRepos:   len(repos),
		DeepScanned:  deepScanned,
	}, nil
}

// enrichMetadata fetches the language map and a commit sample for every
// repository. Each call fails independently and degrades to an empty result:
// one repository's API failure never aborts the pass.
func (s *Syncer) enrichMetadata(ctx context.Context, client HostClient, repos []model.RepositorySummary) {
	g := new(errgroup.Group)
	g.SetLimit(repoConcurrency)

	for i := range repos {
		repo := &repos[i]
		g.Go(func() error {
			inner := new(errgroup.Group)
			inner.Go(func() error {
				langs, err := client.ListLanguages(ctx, repo.Owner, repo.Name)
				if err != nil {
					s.logger.Warn("Language fetch failed, degrading to empty",
						"repo", repo.FullName(), "error", err)
					return nil
				}
				repo.Languages = langs
				return nil
			})
			inner.Go(func() error {
				count, err := client.CountRecentCommits(ctx, repo.Owner, repo.Name, commitSampleSize)
				if err != nil {
					s.logger.Warn("Commit sample fetch failed, degrading to zero",
						"repo", repo.FullName(), "error", err)
					return nil
				}
				repo.CommitSample = count
				return nil
			})
			return inner.Wait()
		})
	}
	_ = g.Wait()
}

// deepScan content-scans the most recently pushed repositories, up to the
// deep-scan budget, consulting the cache first. Returns how many repositories
// got deep-scan signals (cached or fresh).
func (s *Syncer) deepScan(ctx context.Context, client HostClient, repos []model.RepositorySummary, budget int) int {
	order := make([]int, len(repos))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return repos[order[a]].PushedAt.After(repos[order[b]].PushedAt)
	})
	if len(order) > budget {
		order = order[:budget]
	}

	scanned := 0
	for _, idx := range order {
		repo := &repos[idx]
		entry, ok := s.scanOne(ctx, client, *repo)
		if !ok {
			continue
		}
		repo.ManifestSignals = entry.ManifestSignals
		repo.ImportSignals = entry.ImportSignals
		repo.TextBlob = entry.TextBlob
		scanned++
	}
	return scanned
}

// scanOne returns the deep-scan entry for one repository, from cache when the
// revision marker is unchanged. A tree failure degrades to no entry; blob
// failures degrade per file.
func (s *Syncer) scanOne(ctx context.Context, client HostClient, repo model.RepositorySummary) (scancache.Entry, bool) {
	branch := repo.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	key := scancache.Key(repo.Owner, repo.Name, branch, repo.PushedAt)
	if entry, ok := s.cache.Get(key); ok {
		s.logger.Debug("Deep scan cache hit", "repo", repo.FullName())
		return entry, true
	}

	tree, err := client.GetTree(ctx, repo.Owner, repo.Name, branch)
	if err != nil {
		s.logger.Warn("Tree fetch failed, metadata-only for this repository",
			"repo", repo.FullName(), "error", err)
		return scancache.Entry{}, false
	}

	candidates := selectScanFiles(tree)

	type fetched struct {
		path    string
		kind    fileKind
		content string
	}
	results := make([]fetched, len(candidates))

	g := new(errgroup.Group)
	g.SetLimit(blobConcurrency)
	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			content, err := client.GetBlob(ctx, repo.Owner, repo.Name, cand.sha)
			if err != nil {
				s.logger.Warn("Blob fetch failed, skipping file",
					"repo", repo.FullName(), "path", cand.path, "error", err)
				return nil
			}
			results[i] = fetched{path: cand.path, kind: cand.kind, content: content}
			return nil
		})
	}
	_ = g.Wait()

	entry := scancache.Entry{ScannedAt: time.Now()}
	var text []byte
	for _, f := range results {
		if f.content == "" {
			continue
		}
		switch f.kind {
		case fileKindManifest:
			entry.ManifestSignals = append(entry.ManifestSignals, signals.ManifestSignals(f.path, f.content)...)
		case fileKindSource:
			entry.ImportSignals = append(entry.ImportSignals, signals.ImportSignals(f.path, f.content)...)
		case fileKindText:
			if len(text) < maxTextBlob {
				text = append(text, ' ')
				text = append(text, f.content...)
			}
		}
	}
	if len(text) > maxTextBlob {
		text = text[:maxTextBlob]
	}
	entry.TextBlob = string(text)
	entry.ManifestSignals = dedupeStrings(entry.ManifestSignals)
	entry.ImportSignals = dedupeStrings(entry.ImportSignals)

	s.cache.Put(key, entry)
	return entry, true
}

func (s *Syncer) persist(ctx context.Context, repos []model.RepositorySummary, inferred []model.InferredSkill, studentID string) error {
	for _, repo := range repos {
		project, err := s.store.UpsertProject(ctx, model.ProjectRecord{
			GitHubRepoID: repo.GitHubRepoID,
			Owner:        repo.Owner,
			Name:         repo.Name,
			Description:  repo.Description,
			Language:     repo.Language,
			Stars:        repo.Stars,
			Forks:        repo.Forks,
			PushedAt:     repo.PushedAt,
		})
		if err != nil {
			return err
		}

		var projectSkills []model.InferredSkill
		for _, skill := range inferred {
			if skills.MatchesRepo(repo, skill.Skill) {
				projectSkills = append(projectSkills, skill)
			}
		}
		if err := s.store.ReplaceProjectSkills(ctx, project.ID, projectSkills); err != nil {
			return err
		}
	}

	if studentID == "" {
		return nil
	}

	scores := skills.ScoreSkills(repos, inferred)
	current := make(map[string]struct{}, len(scores))
	for _, score := range scores {
		current[score.Skill] = struct{}{}
		if err := s.store.UpsertStudentSkill(ctx, model.StudentSkillRecord{
			StudentID:   studentID,
			Skill:       score.Skill,
			Proficiency: score.Proficiency,
			Confidence:  score.Confidence,
			UsageCount:  score.RepoCount,
			LastUsed:    score.LastUsed,
		}); err != nil {
			return err
		}
	}

	// Stale low-value labels are removed rather than left to linger.
	existing, err := s.store.ListStudentSkills(ctx, studentID)
	if err != nil {
		return err
	}
	var stale []string
	for _, rec := range existing {
		if _, ok := current[rec.Skill]; ok {
			continue
		}
		if skills.IsGenericNoise(rec.Skill) {
			stale = append(stale, rec.Skill)
		}
	}
	return s.store.DeleteStudentSkills(ctx, studentID, stale)
}

type fileKind int

const (
	fileKindManifest fileKind = iota
	fileKindSource
	fileKindText
)

type scanCandidate struct {
	path string
	sha  string
	kind fileKind
}

// scan file selection sets.
var manifestNames = map[string]struct{}{
	"package.json": {}, "package-lock.json": {}, "yarn.lock": {},
	"pnpm-lock.yaml": {}, "tsconfig.json": {}, "requirements.txt": {},
	"pyproject.toml": {}, "pipfile": {}, "setup.py": {}, "go.mod": {},
	"go.sum": {}, "cargo.toml": {}, "cargo.lock": {}, "gemfile": {},
	"gemfile.lock": {}, "pom.xml": {}, "build.gradle": {},
	"build.gradle.kts": {}, "composer.json": {}, "packages.config": {},
	"dockerfile": {}, "docker-compose.yml": {}, "docker-compose.yaml": {},
	".gitlab-ci.yml": {}, "makefile": {}, "cmakelists.txt": {},
	"mix.exs": {}, "pubspec.yaml": {},
}

var sourceExtensions = map[string]struct{}{
	".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {}, ".mjs": {},
	".py": {}, ".go": {}, ".java": {}, ".kt": {}, ".cs": {}, ".scala": {},
}

// selectScanFiles picks the manifest, readme/workflow and source files worth
// fetching, under the per-file size ceiling and the per-pass file cap.
func selectScanFiles(tree []githubapi.TreeEntry) []scanCandidate {
	var manifests, sources, texts []scanCandidate
	for _, e := range tree {
		if e.Size > maxFileSize {
			continue
		}
		base := lowerBase(e.Path)
		switch {
		case isWorkflowPath(e.Path):
			manifests = append(manifests, scanCandidate{e.Path, e.SHA, fileKindManifest})
		case hasManifestName(base) || hasSuffixLower(base, ".csproj"):
			manifests = append(manifests, scanCandidate{e.Path, e.SHA, fileKindManifest})
		case hasPrefixLower(base, "readme"):
			texts = append(texts, scanCandidate{e.Path, e.SHA, fileKindText})
		case hasSourceExtension(base):
			sources = append(sources, scanCandidate{e.Path, e.SHA, fileKindSource})
		}
	}

	// Manifests and readmes first, then sources, under the pass cap.
	out := make([]scanCandidate, 0, maxFilesPerScan)
	for _, group := range [][]scanCandidate{manifests, texts, sources} {
		for _, c := range group {
			if len(out) >= maxFilesPerScan {
				return out
			}
			out = append(out, c)
		}
	}
	return out
}

func lowerBase(p string) string {
	return strings.ToLower(path.Base(p))
}

func isWorkflowPath(p string) bool {
	lower := strings.ToLower(p)
	return strings.Contains(lower, ".github/workflows/") &&
		(strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml"))
}

func hasManifestName(base string) bool {
	_, ok := manifestNames[base]
	return ok
}

func hasSuffixLower(base, suffix string) bool {
	return strings.HasSuffix(base, suffix)
}

func hasPrefixLower(base, prefix string) bool {
	return strings.HasPrefix(base, prefix)
}

func hasSourceExtension(base string) bool {
	_, ok := sourceExtensions[path.Ext(base)]
	return ok
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
