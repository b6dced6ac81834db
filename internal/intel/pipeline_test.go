package intel

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"skill-profiler/internal/model"
)

// MockGraphStore is a mock of the GraphStore interface.
type MockGraphStore struct {
	mock.Mock
}

func (m *MockGraphStore) GetOrCreateNode(ctx context.Context, nodeType, name string) (model.GraphNode, error) {
	args := m.Called(ctx, nodeType, name)
	return args.Get(0).(model.GraphNode), args.Error(1)
}
func (m *MockGraphStore) SetNodeEmbedding(ctx context.Context, nodeType string, id int64, embedding []float32) error {
	args := m.Called(ctx, nodeType, id, embedding)
	return args.Error(0)
}
func (m *MockGraphStore) InsertMention(ctx context.Context, mention model.EntityMention) error {
	args := m.Called(ctx, mention)
	return args.Error(0)
}
func (m *MockGraphStore) UpsertEdge(ctx context.Context, e model.KnowledgeEdge) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}
func (m *MockGraphStore) BumpSkillUsage(ctx context.Context, studentID, skill string) error {
	args := m.Called(ctx, studentID, skill)
	return args.Error(0)
}
func (m *MockGraphStore) CreateIntelligenceRun(ctx context.Context, provider, sourceRef string) (uuid.UUID, error) {
	args := m.Called(ctx, provider, sourceRef)
	return args.Get(0).(uuid.UUID), args.Error(1)
}
func (m *MockGraphStore) FinishIntelligenceRun(ctx context.Context, id uuid.UUID, status, message string) error {
	args := m.Called(ctx, id, status, message)
	return args.Error(0)
}
func (m *MockGraphStore) RecomputeSkillAggregates(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// stubExtractor returns canned entities and counts embed calls.
type stubExtractor struct {
	entities   []Entity
	extractErr error
	embedCalls int
}

func (s *stubExtractor) ExtractEntities(_ context.Context, _ string, _ []string) ([]Entity, error) {
	return s.entities, s.extractErr
}

func (s *stubExtractor) Embed(_ context.Context, _ string) ([]float32, error) {
	s.embedCalls++
	return []float32{0.5, 0.5}, nil
}

func TestPipeline_Run_HappyPath(t *testing.T) {
	extractor := &stubExtractor{entities: []Entity{
		{Text: "Golang", Label: "programming_language", Score: 0.95},
		{Text: "Postgres", Label: "tool", Score: 0.9},
		{Text: "microservices", Label: "concept", Score: 0.8},
	}}

	st := new(MockGraphStore)
	runID := uuid.New()
	st.On("CreateIntelligenceRun", mock.Anything, "github", "repo:me/svc").Return(runID, nil)
	st.On("GetOrCreateNode", mock.Anything, model.NodeTypeSkill, "go").
		Return(model.GraphNode{ID: 1, Type: model.NodeTypeSkill, Name: "go"}, nil)
	st.On("GetOrCreateNode", mock.Anything, model.NodeTypeTechnology, "postgresql").
		Return(model.GraphNode{ID: 2, Type: model.NodeTypeTechnology, Name: "postgresql"}, nil)
	st.On("GetOrCreateNode", mock.Anything, model.NodeTypeConcept, "microservices").
		Return(model.GraphNode{ID: 3, Type: model.NodeTypeConcept, Name: "microservices"}, nil)
	st.On("InsertMention", mock.Anything, mock.Anything).Return(nil).Times(3)
	st.On("BumpSkillUsage", mock.Anything, "student-1", "go").Return(nil).Once()
	st.On("SetNodeEmbedding", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("UpsertEdge", mock.Anything, mock.Anything).Return(nil).Times(3)
	st.On("RecomputeSkillAggregates", mock.Anything).Return(nil).Once()
	st.On("FinishIntelligenceRun", mock.Anything, runID, model.RunStatusSuccess, mock.Anything).Return(nil).Once()

	p, err := NewPipeline(st, extractor, testLogger())
	require.NoError(t, err)

	err = p.Run(context.Background(), "student-1", "github", "some project text", "repo:me/svc")

	require.NoError(t, err)
	st.AssertExpectations(t)
	assert.Equal(t, 3, extractor.embedCalls)
}

func TestPipeline_Run_ExtractionFailureFailsRun(t *testing.T) {
	extractor := &stubExtractor{extractErr: errors.New("service down")}

	st := new(MockGraphStore)
	runID := uuid.New()
	st.On("CreateIntelligenceRun", mock.Anything, mock.Anything, mock.Anything).Return(runID, nil)
	st.On("FinishIntelligenceRun", mock.Anything, runID, model.RunStatusFailed, "service down").Return(nil).Once()

	p, err := NewPipeline(st, extractor, testLogger())
	require.NoError(t, err)

	err = p.Run(context.Background(), "student-1", "github", "text", "ref")

	require.Error(t, err)
	st.AssertExpectations(t)
}

func TestPipeline_Run_DeduplicatesEntities(t *testing.T) {
	extractor := &stubExtractor{entities: []Entity{
		{Text: "Golang", Label: "programming_language", Score: 0.95},
		{Text: "golang", Label: "programming_language", Score: 0.90},
	}}

	st := new(MockGraphStore)
	st.On("CreateIntelligenceRun", mock.Anything, mock.Anything, mock.Anything).Return(uuid.New(), nil)
	st.On("GetOrCreateNode", mock.Anything, model.NodeTypeSkill, "go").
		Return(model.GraphNode{ID: 1, Type: model.NodeTypeSkill, Name: "go"}, nil).Once()
	st.On("InsertMention", mock.Anything, mock.Anything).Return(nil).Once()
	st.On("BumpSkillUsage", mock.Anything, mock.Anything, "go").Return(nil).Once()
	st.On("SetNodeEmbedding", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("RecomputeSkillAggregates", mock.Anything).Return(nil)
	st.On("FinishIntelligenceRun", mock.Anything, mock.Anything, model.RunStatusSuccess, mock.Anything).Return(nil)

	p, err := NewPipeline(st, extractor, testLogger())
	require.NoError(t, err)

	err = p.Run(context.Background(), "student-1", "github", "text", "ref")

	require.NoError(t, err)
	// One node, so no co-occurrence edges at all.
	st.AssertNotCalled(t, "UpsertEdge", mock.Anything, mock.Anything)
	st.AssertExpectations(t)
}

func TestPipeline_EmbeddingsAreMemoized(t *testing.T) {
	extractor := &stubExtractor{entities: []Entity{
		{Text: "Django", Label: "framework", Score: 0.9},
	}}

	st := new(MockGraphStore)
	st.On("CreateIntelligenceRun", mock.Anything, mock.Anything, mock.Anything).Return(uuid.New(), nil)
	st.On("GetOrCreateNode", mock.Anything, model.NodeTypeTechnology, "django").
		Return(model.GraphNode{ID: 9, Type: model.NodeTypeTechnology, Name: "django"}, nil)
	st.On("InsertMention", mock.Anything, mock.Anything).Return(nil)
	st.On("SetNodeEmbedding", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("RecomputeSkillAggregates", mock.Anything).Return(nil)
	st.On("FinishIntelligenceRun", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	p, err := NewPipeline(st, extractor, testLogger())
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background(), "", "github", "text one", "ref1"))
	require.NoError(t, p.Run(context.Background(), "", "github", "text two", "ref2"))

	assert.Equal(t, 1, extractor.embedCalls, "second pass must hit the embedding cache")
}

func TestResolveEntity(t *testing.T) {
	name, nodeType := resolveEntity(Entity{Text: "Golang", Label: "programming_language"})
	assert.Equal(t, "go", name)
	assert.Equal(t, model.NodeTypeSkill, nodeType)

	name, nodeType = resolveEntity(Entity{Text: "Some Unknown Thing", Label: "mystery"})
	assert.Equal(t, "some-unknown-thing", name)
	assert.Equal(t, model.NodeTypeConcept, nodeType, "unknown labels fall back to concept")
}
