package intel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"skill-profiler/internal/model"
	"skill-profiler/internal/skills"
)

const (
	// Bounded fan-out for embedding fetches within one pass.
	embedConcurrency = 4
	embedCacheSize   = 512

	relationCoOccurs = "co_occurs"
)

// extractionLabels is the fixed label set sent with every extraction call.
var extractionLabels = []string{
	"programming_language", "framework", "library", "tool", "platform",
	"skill", "concept",
}

// labelToNodeType coarsens service labels into the three node types.
var labelToNodeType = map[string]string{
	"programming_language": model.NodeTypeSkill,
	"skill":                model.NodeTypeSkill,
	"framework":            model.NodeTypeTechnology,
	"library":              model.NodeTypeTechnology,
	"tool":                 model.NodeTypeTechnology,
	"platform":             model.NodeTypeTechnology,
	"concept":              model.NodeTypeConcept,
}

// entityAliases pins known canonical names to a node identity regardless of
// what the service labeled them. Unresolved entities fall back to their
// canonicalized text and label-derived type.
var entityAliases = map[string]struct {
	Name string
	Type string
}{
	"go":               {"go", model.NodeTypeSkill},
	"python":           {"python", model.NodeTypeSkill},
	"typescript":       {"typescript", model.NodeTypeSkill},
	"javascript":       {"javascript", model.NodeTypeSkill},
	"rust":             {"rust", model.NodeTypeSkill},
	"react":            {"react", model.NodeTypeTechnology},
	"node.js":          {"node.js", model.NodeTypeTechnology},
	"postgresql":       {"postgresql", model.NodeTypeTechnology},
	"kubernetes":       {"kubernetes", model.NodeTypeTechnology},
	"docker":           {"docker", model.NodeTypeTechnology},
	"machine-learning": {"machine-learning", model.NodeTypeConcept},
	"ci-cd":            {"ci-cd", model.NodeTypeConcept},
	"rest":             {"rest", model.NodeTypeConcept},
	"microservices":    {"microservices", model.NodeTypeConcept},
}

// Extractor is the external NLP surface the pipeline consumes. *NLPClient
// satisfies it.
type Extractor interface {
	ExtractEntities(ctx context.Context, text string, labels []string) ([]Entity, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GraphStore is the persistence surface the pipeline writes through.
type GraphStore interface {
	GetOrCreateNode(ctx context.Context, nodeType, name string) (model.GraphNode, error)
	SetNodeEmbedding(ctx context.Context, nodeType string, id int64, embedding []float32) error
	InsertMention(ctx context.Context, m model.EntityMention) error
	UpsertEdge(ctx context.Context, e model.KnowledgeEdge) error
	BumpSkillUsage(ctx context.Context, studentID, skill string) error
	CreateIntelligenceRun(ctx context.Context, provider, sourceRef string) (uuid.UUID, error)
	FinishIntelligenceRun(ctx context.Context, id uuid.UUID, status, message string) error
	RecomputeSkillAggregates(ctx context.Context) error
}

// Pipeline canonicalizes extracted entities into graph nodes with embeddings
// and co-occurrence edges.
type Pipeline struct {
	store     GraphStore
	extractor Extractor
	logger    *slog.Logger
	// Embeddings are memoized across passes; the same entity text shows up
	// in many sources.
	embedCache *lru.Cache
}

// NewPipeline creates a Pipeline.
func NewPipeline(store GraphStore, extractor Extractor, logger *slog.Logger) (*Pipeline, error) {
	cache, err := lru.New(embedCacheSize)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		store:      store,
		extractor:  extractor,
		logger:     logger,
		embedCache: cache,
	}, nil
}

// Run executes one enrichment pass over a block of free text. The whole pass
// is wrapped in an intelligence run record; extraction failure fails the run,
// while a single embedding failure only degrades that node.
func (p *Pipeline) Run(ctx context.Context, studentID, provider, text, sourceRef string) error {
	runID, err := p.store.CreateIntelligenceRun(ctx, provider, sourceRef)
	if err != nil {
		return err
	}

	nodes, err := p.enrich(ctx, studentID, provider, text, sourceRef)
	if err != nil {
		if ferr := p.store.FinishIntelligenceRun(ctx, runID, model.RunStatusFailed, err.Error()); ferr != nil {
			p.logger.Error("Failed to record intelligence failure", "run_id", runID, "error", ferr)
		}
		return err
	}

	message := fmt.Sprintf("linked %d entities", len(nodes))
	if ferr := p.store.FinishIntelligenceRun(ctx, runID, model.RunStatusSuccess, message); ferr != nil {
		p.logger.Error("Failed to record intelligence success", "run_id", runID, "error", ferr)
	}
	return nil
}

func (p *Pipeline) enrich(ctx context.Context, studentID, provider, text, sourceRef string) ([]model.GraphNode, error) {
	entities, err := p.extractor.ExtractEntities(ctx, text, extractionLabels)
	if err != nil {
		return nil, err
	}

	touched := make([]model.GraphNode, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, entity := range entities {
		name, nodeType := resolveEntity(entity)
		if name == "" {
			continue
		}
		dedupKey := nodeType + ":" + name
		if _, ok := seen[dedupKey]; ok {
			continue
		}
		seen[dedupKey] = struct{}{}

		node, err := p.store.GetOrCreateNode(ctx, nodeType, name)
		if err != nil {
			return nil, err
		}

		if err := p.store.InsertMention(ctx, model.EntityMention{
			NodeID:    node.ID,
			NodeType:  nodeType,
			Provider:  provider,
			SourceRef: sourceRef,
			Text:      entity.Text,
			Score:     entity.Score,
		}); err != nil {
			return nil, err
		}

		if nodeType == model.NodeTypeSkill && studentID != "" {
			if err := p.store.BumpSkillUsage(ctx, studentID, name); err != nil {
				return nil, err
			}
		}

		touched = append(touched, node)
	}

	p.attachEmbeddings(ctx, touched)

	// Pairwise co-occurrence among everything this pass touched.
	for i := 0; i < len(touched); i++ {
		for j := i + 1; j < len(touched); j++ {
			if err := p.store.UpsertEdge(ctx, model.KnowledgeEdge{
				SourceID:   touched[i].ID,
				SourceType: touched[i].Type,
				TargetID:   touched[j].ID,
				TargetType: touched[j].Type,
				Relation:   relationCoOccurs,
			}); err != nil {
				return nil, err
			}
		}
	}

	if err := p.store.RecomputeSkillAggregates(ctx); err != nil {
		return nil, err
	}
	return touched, nil
}

// attachEmbeddings fetches and stores an embedding per node with bounded
// fan-out. Failures degrade that node only.
func (p *Pipeline) attachEmbeddings(ctx context.Context, nodes []model.GraphNode) {
	g := new(errgroup.Group)
	g.SetLimit(embedConcurrency)

	for _, node := range nodes {
		node := node
		g.Go(func() error {
			vec, err := p.embed(ctx, node.Name)
			if err != nil {
				p.logger.Warn("Embedding fetch failed, node stays unembedded",
					"node", node.Name, "error", err)
				return nil
			}
			if err := p.store.SetNodeEmbedding(ctx, node.Type, node.ID, vec); err != nil {
				p.logger.Warn("Embedding write failed", "node", node.Name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := p.embedCache.Get(text); ok {
		return cached.([]float32), nil
	}
	vec, err := p.extractor.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.embedCache.Add(text, vec)
	return vec, nil
}

// resolveEntity canonicalizes an extracted entity into a node identity.
func resolveEntity(entity Entity) (string, string) {
	nodeType, ok := labelToNodeType[entity.Label]
	if !ok {
		nodeType = model.NodeTypeConcept
	}
	name := skills.CanonicalSkillName(entity.Text)
	if alias, ok := entityAliases[name]; ok {
		return alias.Name, alias.Type
	}
	return name, nodeType
}
