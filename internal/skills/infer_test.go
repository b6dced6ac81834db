package skills

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skill-profiler/internal/model"
)

func TestCanonicalSkillName(t *testing.T) {
	cases := map[string]string{
		"NodeJS":           "node.js",
		"nodejs":           "node.js",
		"cpp":              "c++",
		"CSharp":           "c#",
		"Golang":           "go",
		"React JS":         "react",
		"  Postgres  ":     "postgresql",
		"machine_learning": "machine-learning",
		"Vue":              "vue.js",
		"plainskill":       "plainskill",
		"weird!!name":      "weirdname",
	}
	for raw, want := range cases {
		assert.Equal(t, want, CanonicalSkillName(raw), "raw=%q", raw)
	}
}

func TestCanonicalSkillName_Idempotent(t *testing.T) {
	raws := []string{"NodeJS", "cpp", "csharp", "golang", "k8s", "rails", "Vue", "TS"}
	for _, raw := range raws {
		once := CanonicalSkillName(raw)
		twice := CanonicalSkillName(once)
		assert.Equal(t, once, twice, "canonicalization must be a fixed point for %q", raw)
	}
	// And for every alias table entry, not just a sample.
	for raw := range aliasTable {
		once := CanonicalSkillName(raw)
		assert.Equal(t, once, CanonicalSkillName(once), "alias %q", raw)
	}
}

func TestInferSkills_RanksAndFilters(t *testing.T) {
	repos := []model.RepositorySummary{
		{
			Language:    "TypeScript",
			Topics:      []string{"react"},
			Stars:       50,
			Description: "a github api playground",
		},
		{
			Language: "Python",
			Topics:   []string{"fastapi"},
			Stars:    2,
		},
	}

	inferred := InferSkills(repos)
	require.NotEmpty(t, inferred)

	pos := make(map[string]int)
	for i, s := range inferred {
		pos[s.Skill] = i
	}

	require.Contains(t, pos, "typescript")
	require.Contains(t, pos, "react")
	require.Contains(t, pos, "python")
	require.Contains(t, pos, "fastapi")

	assert.Less(t, pos["typescript"], pos["python"])
	assert.Less(t, pos["typescript"], pos["fastapi"])
	assert.Less(t, pos["react"], pos["python"])
	assert.Less(t, pos["react"], pos["fastapi"])

	assert.NotContains(t, pos, "api")
	assert.NotContains(t, pos, "github")
}

func TestInferSkills_OrderIndependent(t *testing.T) {
	var repos []model.RepositorySummary
	langs := []string{"Go", "Python", "TypeScript", "Rust", "Ruby"}
	for i := 0; i < 20; i++ {
		repos = append(repos, model.RepositorySummary{
			Language: langs[i%len(langs)],
			Topics:   []string{fmt.Sprintf("topic-%d", i%7)},
			Stars:    i * 3,
		})
	}

	want := InferSkills(repos)

	// Reversal flips every pairwise accumulation order; scores must still
	// match bit for bit, not just to within a rounding error.
	reversed := make([]model.RepositorySummary, len(repos))
	for i, r := range repos {
		reversed[len(repos)-1-i] = r
	}
	assert.Equal(t, want, InferSkills(reversed), "reversed input")

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		shuffled := make([]model.RepositorySummary, len(repos))
		copy(shuffled, repos)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		assert.Equal(t, want, InferSkills(shuffled), "trial %d", trial)
	}
}

func TestInferSkills_BackfillToFloor(t *testing.T) {
	// floorSkills-1 strong candidates plus low-score extras under minScore:
	// strict filtering alone would return floorSkills-1, backfill must raise
	// the count to exactly the floor.
	var repos []model.RepositorySummary
	for i := 0; i < floorSkills-1; i++ {
		repos = append(repos, model.RepositorySummary{
			Language: fmt.Sprintf("strong-lang-%02d", i),
		})
	}
	repos = append(repos, model.RepositorySummary{
		Description: "experiments with blockchain and serverless deployments",
	})

	inferred := InferSkills(repos)
	assert.Len(t, inferred, floorSkills)

	names := make(map[string]struct{})
	for _, s := range inferred {
		names[s.Skill] = struct{}{}
	}
	assert.Contains(t, names, "blockchain")
}

func TestInferSkills_BackfillExhaustsCandidates(t *testing.T) {
	repos := []model.RepositorySummary{{Language: "Go", Topics: []string{"cli"}}}

	inferred := InferSkills(repos)

	assert.Less(t, len(inferred), floorSkills, "fewer candidates than the floor returns all of them")
	names := make(map[string]struct{})
	for _, s := range inferred {
		names[s.Skill] = struct{}{}
	}
	assert.Contains(t, names, "go")
	assert.Contains(t, names, "cli", "generic tokens come back in the backfill pass")
}

func TestInferSkills_NeverExceedsCap(t *testing.T) {
	var repos []model.RepositorySummary
	for i := 0; i < 150; i++ {
		repos = append(repos, model.RepositorySummary{
			Language: fmt.Sprintf("lang-%03d", i),
			Topics:   []string{fmt.Sprintf("topic-%03d", i)},
		})
	}

	inferred := InferSkills(repos)
	assert.LessOrEqual(t, len(inferred), maxSkills)
}

func TestIsGenericNoise(t *testing.T) {
	assert.True(t, IsGenericNoise("api"))
	assert.True(t, IsGenericNoise("html"))
	assert.False(t, IsGenericNoise("typescript"))
}
