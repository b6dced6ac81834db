package signals

import (
	"encoding/json"
	"path"
	"regexp"
	"strings"
)

var (
	requirementLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)`)
	goModRequire    = regexp.MustCompile(`(?m)^\s*([a-z0-9.\-]+\.[a-z]{2,}/[^\s]+)\s+v`)
	goSumLine       = regexp.MustCompile(`(?m)^([^\s]+)\s+v[0-9]`)
	tomlKeyLine     = regexp.MustCompile(`^\s*([A-Za-z0-9._-]+)\s*=`)
	gemLine         = regexp.MustCompile(`(?m)^\s*gem\s+['"]([^'"]+)['"]`)
	artifactIDTag   = regexp.MustCompile(`<artifactId>([^<]+)</artifactId>`)
	gradleDep       = regexp.MustCompile(`['"]([A-Za-z0-9._-]+):([A-Za-z0-9._-]+)(?::[^'"]*)?['"]`)
	packageRefAttr  = regexp.MustCompile(`(?:PackageReference\s+Include|package\s+id)="([^"]+)"`)
	dockerFrom      = regexp.MustCompile(`(?im)^FROM\s+([^\s:@]+)`)
	composeImage    = regexp.MustCompile(`(?m)^\s*image:\s*['"]?([^\s:'"]+)`)
	workflowUses    = regexp.MustCompile(`(?m)^\s*-?\s*uses:\s*([^\s@]+)`)
	mixDep          = regexp.MustCompile(`\{:([a-z0-9_]+)\s*,`)
	pipfileSection  = regexp.MustCompile(`(?s)\[(?:dev-)?packages\](.*?)(\z|\n\[)`)
	setupInstall    = regexp.MustCompile(`['"]([A-Za-z0-9][A-Za-z0-9._-]*)(?:[><=!~\[][^'"]*)?['"]`)
)

// ManifestSignals extracts skill tokens from a manifest, lockfile, CI config
// or build file. Unrecognized file names and malformed content yield nil.
func ManifestSignals(fileName, content string) []string {
	base := strings.ToLower(path.Base(fileName))
	lower := strings.ToLower(fileName)

	var out []string
	switch {
	case base == "package.json":
		out = append([]string{"node.js"}, jsonDependencyKeys(content)...)
	case base == "package-lock.json" || base == "yarn.lock" || base == "pnpm-lock.yaml":
		out = append([]string{"node.js"}, lockfileDeps(content)...)
	case base == "tsconfig.json":
		out = []string{"typescript"}
	case base == "requirements.txt" || strings.HasSuffix(base, "requirements.txt"):
		out = append([]string{"python"}, lineDeps(content, requirementLine)...)
	case base == "pyproject.toml":
		out = append([]string{"python"}, tomlDeps(content)...)
	case base == "pipfile":
		out = append([]string{"python"}, pipfileDeps(content)...)
	case base == "setup.py":
		out = append([]string{"python"}, quotedDeps(content)...)
	case base == "go.mod":
		out = append([]string{"go"}, regexDeps(content, goModRequire)...)
	case base == "go.sum":
		out = append([]string{"go"}, regexDeps(content, goSumLine)...)
	case base == "cargo.toml":
		out = append([]string{"rust"}, tomlDeps(content)...)
	case base == "cargo.lock":
		out = append([]string{"rust"}, tomlNameDeps(content)...)
	case base == "gemfile" || base == "gemfile.lock":
		out = append([]string{"ruby"}, regexDeps(content, gemLine)...)
	case base == "pom.xml":
		out = append([]string{"java", "maven"}, regexDeps(content, artifactIDTag)...)
	case base == "build.gradle" || base == "build.gradle.kts":
		out = append([]string{"java", "gradle"}, gradleDeps(content)...)
	case base == "composer.json":
		out = append([]string{"php"}, jsonDependencyKeys(content)...)
	case strings.HasSuffix(base, ".csproj") || base == "packages.config":
		out = append([]string{"c#", ".net"}, regexDeps(content, packageRefAttr)...)
	case base == "dockerfile" || strings.HasPrefix(base, "dockerfile."):
		out = append([]string{"docker"}, regexDeps(content, dockerFrom)...)
	case base == "docker-compose.yml" || base == "docker-compose.yaml":
		out = append([]string{"docker", "docker-compose"}, regexDeps(content, composeImage)...)
	case strings.Contains(lower, ".github/workflows/") && (strings.HasSuffix(base, ".yml") || strings.HasSuffix(base, ".yaml")):
		out = append([]string{"github-actions", "ci-cd"}, regexDeps(content, workflowUses)...)
	case base == ".gitlab-ci.yml":
		out = append([]string{"gitlab-ci", "ci-cd"}, regexDeps(content, composeImage)...)
	case base == "makefile":
		out = []string{"make"}
	case base == "cmakelists.txt":
		out = []string{"cmake", "c++"}
	case base == "mix.exs":
		out = append([]string{"elixir"}, regexDeps(content, mixDep)...)
	case base == "pubspec.yaml":
		out = append([]string{"dart"}, yamlDependencyKeys(content)...)
	default:
		return nil
	}
	return dedupe(out)
}

// jsonDependencyKeys walks dependency-map keys of a JSON manifest. Invalid
// JSON yields nothing.
func jsonDependencyKeys(content string) []string {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil
	}
	var out []string
	for _, section := range []string{"dependencies", "devDependencies", "peerDependencies", "require", "require-dev"} {
		raw, ok := doc[section]
		if !ok {
			continue
		}
		var deps map[string]json.RawMessage
		if err := json.Unmarshal(raw, &deps); err != nil {
			continue
		}
		for name := range deps {
			if skill, ok := resolveDep(name); ok {
				out = append(out, skill)
			}
		}
	}
	return out
}

// lockfileDeps scans a JS lockfile for quoted package names at line starts.
func lockfileDeps(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.Trim(strings.TrimSpace(line), `"':`)
		name := trimmed
		if i := strings.IndexAny(trimmed, "@ \t"); i > 0 {
			name = trimmed[:i]
		}
		if skill, ok := resolveDep(name); ok {
			out = append(out, skill)
		}
	}
	return out
}

func lineDeps(content string, re *regexp.Regexp) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if m := re.FindStringSubmatch(line); m != nil {
			if skill, ok := resolveDep(m[1]); ok {
				out = append(out, skill)
			}
		}
	}
	return out
}

func regexDeps(content string, re *regexp.Regexp) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(content, -1) {
		if skill, ok := resolveDep(m[1]); ok {
			out = append(out, skill)
		}
	}
	return out
}

// tomlDeps reads `name = ...` keys inside dependency sections of a TOML file.
func tomlDeps(content string) []string {
	var out []string
	inDeps := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			section := strings.ToLower(trimmed)
			inDeps = strings.Contains(section, "dependencies")
			continue
		}
		if !inDeps {
			continue
		}
		if m := tomlKeyLine.FindStringSubmatch(line); m != nil {
			if skill, ok := resolveDep(m[1]); ok {
				out = append(out, skill)
			}
		}
	}
	return out
}

// tomlNameDeps reads `name = "..."` values (Cargo.lock [[package]] blocks).
func tomlNameDeps(content string) []string {
	re := regexp.MustCompile(`(?m)^name\s*=\s*"([^"]+)"`)
	return regexDeps(content, re)
}

func pipfileDeps(content string) []string {
	var out []string
	for _, section := range pipfileSection.FindAllStringSubmatch(content, -1) {
		for _, line := range strings.Split(section[1], "\n") {
			if m := tomlKeyLine.FindStringSubmatch(line); m != nil {
				if skill, ok := resolveDep(m[1]); ok {
					out = append(out, skill)
				}
			}
		}
	}
	return out
}

func quotedDeps(content string) []string {
	var out []string
	for _, m := range setupInstall.FindAllStringSubmatch(content, -1) {
		if skill, ok := resolveDep(m[1]); ok {
			out = append(out, skill)
		}
	}
	return out
}

func gradleDeps(content string) []string {
	var out []string
	for _, m := range gradleDep.FindAllStringSubmatch(content, -1) {
		if skill, ok := resolveDep(m[2]); ok {
			out = append(out, skill)
		}
	}
	return out
}

// yamlDependencyKeys reads top-level keys under dependencies: blocks of a
// simple YAML manifest (pubspec).
func yamlDependencyKeys(content string) []string {
	var out []string
	inDeps := false
	for _, line := range strings.Split(content, "\n") {
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			inDeps = strings.HasPrefix(strings.TrimSpace(line), "dependencies")
			continue
		}
		if !inDeps {
			continue
		}
		name := strings.TrimSpace(strings.SplitN(line, ":", 2)[0])
		if skill, ok := resolveDep(name); ok {
			out = append(out, skill)
		}
	}
	return out
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
