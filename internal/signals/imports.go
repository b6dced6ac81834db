package signals

import (
	"path"
	"regexp"
	"strings"
)

var (
	jsImport     = regexp.MustCompile(`(?m)(?:import\s+(?:[^'"]*\s+from\s+)?|require\(\s*)['"]([^'"]+)['"]`)
	pyImport     = regexp.MustCompile(`(?m)^\s*(?:import\s+([\w.]+)|from\s+([\w.]+)\s+import)`)
	goImportLine = regexp.MustCompile(`(?m)^\s*(?:import\s+)?(?:[\w.]+\s+)?"([^"]+)"`)
	jvmImport    = regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([\w.]+)`)
	csUsing      = regexp.MustCompile(`(?m)^\s*using\s+([\w.]+)\s*;`)
)

// ImportSignals extracts skill tokens from a source file's import/using
// statements. Relative and project-local imports are discarded. Unrecognized
// extensions yield nil.
func ImportSignals(filePath, content string) []string {
	ext := strings.ToLower(path.Ext(filePath))

	var out []string
	switch ext {
	case ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs":
		out = jsImports(content)
	case ".py":
		out = pythonImports(content)
	case ".go":
		out = goImports(content)
	case ".java", ".kt", ".kts", ".scala":
		out = namespaceImports(content, jvmImport)
	case ".cs":
		out = namespaceImports(content, csUsing)
	default:
		return nil
	}
	return dedupe(out)
}

func jsImports(content string) []string {
	var out []string
	for _, m := range jsImport.FindAllStringSubmatch(content, -1) {
		target := m[1]
		if strings.HasPrefix(target, ".") || strings.HasPrefix(target, "/") {
			continue
		}
		// @scope/name keeps two segments, everything else keeps one.
		parts := strings.Split(target, "/")
		name := parts[0]
		if strings.HasPrefix(name, "@") && len(parts) > 1 {
			name = parts[0] + "/" + parts[1]
		}
		if skill, ok := resolveDep(name); ok {
			out = append(out, skill)
		}
	}
	return out
}

func pythonImports(content string) []string {
	var out []string
	for _, m := range pyImport.FindAllStringSubmatch(content, -1) {
		target := m[1]
		if target == "" {
			target = m[2]
		}
		if target == "" || strings.HasPrefix(target, ".") {
			continue
		}
		top := strings.SplitN(target, ".", 2)[0]
		if skill, ok := resolveDep(top); ok {
			out = append(out, skill)
		}
	}
	return out
}

func goImports(content string) []string {
	var out []string
	for _, m := range goImportLine.FindAllStringSubmatch(content, -1) {
		target := m[1]
		// Only external module paths carry a host segment.
		if !strings.Contains(strings.SplitN(target, "/", 2)[0], ".") {
			continue
		}
		if skill, ok := resolveDep(target); ok {
			out = append(out, skill)
		}
	}
	return out
}

func namespaceImports(content string, re *regexp.Regexp) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(content, -1) {
		if skill, ok := resolveImportPrefix(m[1]); ok {
			out = append(out, skill)
		}
	}
	return out
}
