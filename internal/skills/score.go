package skills

import (
	"math"
	"strings"
	"time"

	"skill-profiler/internal/model"
)

// ScoreSkills grades every inferred skill against the synced repositories.
// The formula is fixed and re-derivable from stored evidence; there is no
// model behind it, so a score can always be explained.
func ScoreSkills(repos []model.RepositorySummary, inferred []model.InferredSkill) []model.SkillScore {
	scores := make([]model.SkillScore, 0, len(inferred))
	for _, skill := range inferred {
		scores = append(scores, scoreOne(repos, skill.Skill))
	}
	return scores
}

func scoreOne(repos []model.RepositorySummary, skill string) model.SkillScore {
	var (
		repoCount    int
		totalBytes   int64
		totalCommits int
		totalStars   int
		lastUsed     time.Time
	)

	for _, repo := range repos {
		if !MatchesRepo(repo, skill) {
			continue
		}
		repoCount++
		for _, bytes := range repo.Languages {
			totalBytes += bytes
		}
		totalCommits += repo.CommitSample
		totalStars += repo.Stars
		if repo.PushedAt.After(lastUsed) {
			lastUsed = repo.PushedAt
		}
	}

	usageScore := math.Min(float64(repoCount)*15, 40)
	volumeScore := math.Min(math.Log10(float64(totalBytes)+1)*5, 30)
	qualityScore := math.Min(float64(totalStars)*2+float64(totalCommits)*0.5, 30)

	return model.SkillScore{
		Skill:       skill,
		Proficiency: clamp01((usageScore + volumeScore + qualityScore) / 100),
		Confidence:  clamp01(float64(repoCount+totalCommits) * 0.05),
		RepoCount:   repoCount,
		LastUsed:    lastUsed,
	}
}

// MatchesRepo reports whether a repository is evidence for a skill, by
// language, topic or free-text match.
func MatchesRepo(repo model.RepositorySummary, skill string) bool {
	if CanonicalSkillName(repo.Language) == skill {
		return true
	}
	for lang := range repo.Languages {
		if CanonicalSkillName(lang) == skill {
			return true
		}
	}
	for _, topic := range repo.Topics {
		if CanonicalSkillName(topic) == skill {
			return true
		}
	}
	text := strings.ToLower(repo.Description + " " + repo.TextBlob)
	return strings.Contains(text, skill)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
