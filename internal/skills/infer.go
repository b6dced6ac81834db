// Package skills implements the inference engine that turns per-repository
// evidence into a ranked, bounded skill list, and the proficiency scorer that
// grades each inferred skill against the same evidence.
package skills

import (
	"regexp"
	"sort"
	"strings"

	"skill-profiler/internal/model"
)

// Per-source weight multipliers. Manifest dependencies are the most reliable
// evidence a repository offers; keyword matches against free text the least.
const (
	weightManifest        = 3.0
	weightPrimaryLanguage = 2.5
	weightTopic           = 2.0
	weightLanguage        = 1.5
	weightImport          = 1.2
	weightKeyword         = 0.5
)

// Filter thresholds and output bounds.
const (
	minScore        = 1.0
	genericMinScore = 3.0
	maxSkills       = 80
	floorSkills     = 30
)

// aliasTable maps normalized raw tokens to the canonical skill name. Every
// value is its own fixed point under normalization, which is what makes
// CanonicalSkillName idempotent.
var aliasTable = map[string]string{
	"nodejs":              "node.js",
	"node":                "node.js",
	"node-js":             "node.js",
	"nextjs":              "next.js",
	"nuxtjs":              "nuxt.js",
	"vuejs":               "vue.js",
	"vue":                 "vue.js",
	"reactjs":             "react",
	"react-js":            "react",
	"expressjs":           "express",
	"cpp":                 "c++",
	"c-plus-plus":         "c++",
	"csharp":              "c#",
	"c-sharp":             "c#",
	"dotnet":              ".net",
	"golang":              "go",
	"js":                  "javascript",
	"ts":                  "typescript",
	"py":                  "python",
	"postgres":            "postgresql",
	"psql":                "postgresql",
	"k8s":                 "kubernetes",
	"ml":                  "machine-learning",
	"dl":                  "deep-learning",
	"ai":                  "machine-learning",
	"tailwind":            "tailwindcss",
	"scss":                "sass",
	"gcp":                 "google-cloud",
	"amazon-web-services": "aws",
	"rails":               "ruby-on-rails",
	"tf":                  "terraform",
	"threejs":             "three.js",
	"socketio":            "websockets",
	"websocket":           "websockets",
	"rest-api":            "rest",
	"restful":             "rest",
}

// hardBlocked tokens are meta noise and never survive, not even in the
// backfill pass.
var hardBlocked = map[string]struct{}{
	"api": {}, "github": {}, "notebook": {}, "app": {}, "apps": {},
	"code": {}, "project": {}, "projects": {}, "demo": {}, "test": {},
	"tests": {}, "example": {}, "examples": {}, "template": {},
	"tutorial": {}, "starter": {}, "sample": {}, "hello-world": {},
	"website": {}, "web": {}, "data": {}, "tool": {}, "tools": {},
	"library": {}, "framework": {}, "software": {}, "programming": {},
	"awesome": {}, "repo": {}, "repository": {}, "config": {}, "dotfiles": {},
}

// generic tokens are real skills but weak signals on their own; they need a
// higher accumulated score to survive the strict filter.
var generic = map[string]struct{}{
	"html": {}, "css": {}, "json": {}, "yaml": {}, "xml": {}, "sql": {},
	"git": {}, "linux": {}, "bash": {}, "shell": {}, "http": {},
	"rest": {}, "markdown": {}, "regex": {}, "oop": {}, "cli": {},
	"frontend": {}, "backend": {}, "fullstack": {}, "database": {},
}

// keywordVocabulary is the fixed set used for fuzzy substring matching over
// repository free text. Deliberately small: free text is the noisiest source.
var keywordVocabulary = []string{
	"react", "angular", "vue.js", "svelte", "next.js", "node.js",
	"typescript", "javascript", "python", "django", "flask", "fastapi",
	"golang", "rust", "kotlin", "swift", "docker", "kubernetes",
	"terraform", "ansible", "graphql", "grpc", "postgresql", "mysql",
	"mongodb", "redis", "kafka", "rabbitmq", "elasticsearch",
	"machine-learning", "deep-learning", "tensorflow", "pytorch",
	"data-science", "microservices", "serverless", "blockchain",
	"aws", "azure", "google-cloud", "ci-cd", "devops",
}

var disallowedChars = regexp.MustCompile(`[^a-z0-9+#.\-]`)
var dashRuns = regexp.MustCompile(`-{2,}`)

// CanonicalSkillName normalizes a raw token and resolves it through the alias
// table. It is idempotent: applying it twice equals applying it once.
func CanonicalSkillName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.Join(strings.Fields(s), "-")
	s = disallowedChars.ReplaceAllString(s, "")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if canonical, ok := aliasTable[s]; ok {
		return canonical
	}
	return s
}

// IsGenericNoise reports whether a skill name belongs to the low-value sets
// that should not persist for a student once absent from a fresh inference.
func IsGenericNoise(name string) bool {
	if _, ok := hardBlocked[name]; ok {
		return true
	}
	_, ok := generic[name]
	return ok
}

// InferSkills accumulates weighted skill candidates across all repositories,
// ranks them, applies the two-tier filter and backfills to the floor when
// strict filtering leaves too few. The result is order-independent with
// respect to the input slice.
func InferSkills(repos []model.RepositorySummary) []model.InferredSkill {
	contributions := make(map[string][]float64)

	add := func(raw string, weight, boost float64) {
		name := CanonicalSkillName(raw)
		if name == "" {
			return
		}
		contributions[name] = append(contributions[name], weight*boost)
	}

	for _, repo := range repos {
		// Starred repositories carry stronger evidence, capped at 2x.
		boost := 1.0 + float64(min(repo.Stars, 100))/100.0

		if repo.Language != "" {
			add(repo.Language, weightPrimaryLanguage, boost)
		}
		for lang := range repo.Languages {
			add(lang, weightLanguage, boost)
		}
		for _, topic := range repo.Topics {
			add(topic, weightTopic, boost)
		}
		for _, sig := range repo.ManifestSignals {
			add(sig, weightManifest, boost)
		}
		for _, sig := range repo.ImportSignals {
			add(sig, weightImport, boost)
		}

		text := strings.ToLower(repo.Description + " " + repo.TextBlob)
		if text != " " {
			for _, kw := range keywordVocabulary {
				if strings.Contains(text, kw) {
					add(kw, weightKeyword, boost)
				}
			}
		}
	}

	ranked := rankCandidates(contributions)

	var result []model.InferredSkill
	for _, c := range ranked {
		if !passesStrictFilter(c) {
			continue
		}
		result = append(result, c)
	}

	// Backfill: strict filtering alone starves sparse profiles, so relax to
	// the hard block-list only and append best remaining candidates.
	if len(result) < floorSkills {
		included := make(map[string]struct{}, len(result))
		for _, s := range result {
			included[s.Skill] = struct{}{}
		}
		for _, c := range ranked {
			if len(result) >= floorSkills {
				break
			}
			if _, ok := included[c.Skill]; ok {
				continue
			}
			if _, blocked := hardBlocked[c.Skill]; blocked {
				continue
			}
			result = append(result, c)
		}
	}

	if len(result) > maxSkills {
		result = result[:maxSkills]
	}
	return result
}

func rankCandidates(contributions map[string][]float64) []model.InferredSkill {
	ranked := make([]model.InferredSkill, 0, len(contributions))
	for name, parts := range contributions {
		// Float addition is not associative; folding in sorted order keeps
		// the total independent of the input repository order.
		sort.Float64s(parts)
		score := 0.0
		for _, p := range parts {
			score += p
		}
		ranked = append(ranked, model.InferredSkill{Skill: name, Score: score})
	}
	// Name breaks score ties so the ranking is stable across input
	// permutations.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Skill < ranked[j].Skill
	})
	return ranked
}

func passesStrictFilter(c model.InferredSkill) bool {
	if _, ok := hardBlocked[c.Skill]; ok {
		return false
	}
	if _, ok := generic[c.Skill]; ok {
		return c.Score >= genericMinScore
	}
	return c.Score >= minScore
}
