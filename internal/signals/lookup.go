// Package signals turns manifest files, lockfiles and source imports into
// candidate skill tokens. All extractors are pure and never return errors:
// malformed content yields no signals.
package signals

import "strings"

// depToSkill maps dependency/package names, as they appear in manifests and
// lockfiles, to canonical skill tokens. Names not present here produce no
// signal: an unknown dependency is noise, not evidence.
var depToSkill = map[string]string{
	// JS / TS ecosystem
	"react":          "react",
	"react-dom":      "react",
	"react-native":   "react-native",
	"next":           "next.js",
	"nuxt":           "nuxt.js",
	"vue":            "vue.js",
	"@angular/core":  "angular",
	"svelte":         "svelte",
	"express":        "express",
	"fastify":        "fastify",
	"nestjs":         "nestjs",
	"@nestjs/core":   "nestjs",
	"typescript":     "typescript",
	"webpack":        "webpack",
	"vite":           "vite",
	"jest":           "jest",
	"mocha":          "mocha",
	"eslint":         "eslint",
	"tailwindcss":    "tailwindcss",
	"prisma":         "prisma",
	"@prisma/client": "prisma",
	"mongoose":       "mongodb",
	"mongodb":        "mongodb",
	"pg":             "postgresql",
	"mysql2":         "mysql",
	"redis":          "redis",
	"ioredis":        "redis",
	"graphql":        "graphql",
	"apollo-server":  "graphql",
	"socket.io":      "websockets",
	"three":          "three.js",
	"electron":       "electron",
	"axios":          "axios",

	// Python ecosystem
	"django":       "django",
	"flask":        "flask",
	"fastapi":      "fastapi",
	"numpy":        "numpy",
	"pandas":       "pandas",
	"scipy":        "scipy",
	"scikit-learn": "scikit-learn",
	"sklearn":      "scikit-learn",
	"torch":        "pytorch",
	"pytorch":      "pytorch",
	"tensorflow":   "tensorflow",
	"keras":        "tensorflow",
	"transformers": "hugging-face",
	"sqlalchemy":   "sqlalchemy",
	"celery":       "celery",
	"pytest":       "pytest",
	"requests":     "requests",
	"psycopg2":     "postgresql",
	"pymongo":      "mongodb",
	"boto3":        "aws",
	"matplotlib":   "matplotlib",
	"jupyter":      "jupyter",
	"langchain":    "langchain",
	"openai":       "openai",
	"pydantic":     "pydantic",

	// Go ecosystem (matched by final module path segment or full path)
	"gin":           "gin",
	"gin-gonic/gin": "gin",
	"echo":          "echo",
	"chi":           "chi",
	"fiber":         "fiber",
	"gorm":          "gorm",
	"pgx":           "postgresql",
	"go-redis":      "redis",
	"grpc":          "grpc",
	"grpc-go":       "grpc",
	"cobra":         "cobra",
	"viper":         "viper",
	"testify":       "testify",
	"kubernetes":    "kubernetes",
	"client-go":     "kubernetes",
	"docker":        "docker",
	"aws-sdk-go":    "aws",
	"aws-sdk-go-v2": "aws",
	"prometheus":    "prometheus",
	"kafka-go":      "kafka",
	"sarama":        "kafka",

	// JVM ecosystem
	"spring-boot-starter":     "spring",
	"spring-boot-starter-web": "spring",
	"spring-core":             "spring",
	"hibernate-core":          "hibernate",
	"junit":                   "junit",
	"kotlin-stdlib":           "kotlin",
	"scala-library":           "scala",
	"akka-actor":              "akka",

	// Ruby / PHP / Rust / others
	"rails":             "ruby-on-rails",
	"sinatra":           "sinatra",
	"rspec":             "rspec",
	"laravel/framework": "laravel",
	"symfony/symfony":   "symfony",
	"tokio":             "tokio",
	"serde":             "serde",
	"actix-web":         "actix",
	"rocket":            "rocket",
	"phoenix":           "phoenix",
	"flutter":           "flutter",
}

// importPrefixToSkill maps import/using namespace prefixes to skills. The
// longest matching prefix wins.
var importPrefixToSkill = map[string]string{
	"org.springframework":           "spring",
	"org.hibernate":                 "hibernate",
	"org.junit":                     "junit",
	"org.apache.spark":              "spark",
	"org.apache.kafka":              "kafka",
	"kotlinx":                       "kotlin",
	"akka":                          "akka",
	"android":                       "android",
	"androidx":                      "android",
	"System.Web":                    ".net",
	"Microsoft.AspNetCore":          "asp.net",
	"Microsoft.EntityFrameworkCore": "entity-framework",
	"Newtonsoft.Json":               ".net",
	"Xunit":                         "xunit",
	"UnityEngine":                   "unity",
}

// resolveDep returns the canonical skill for a dependency name, trying the
// exact name first and then its final path segment (Go module paths, scoped
// npm packages).
func resolveDep(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	if skill, ok := depToSkill[name]; ok {
		return skill, true
	}
	if strings.Contains(name, "/") {
		parts := strings.Split(name, "/")
		// owner/name pairs like gin-gonic/gin, then individual segments
		// from the end (module paths like jackc/pgx/v5/pgxpool).
		for i := len(parts) - 1; i > 0; i-- {
			if skill, ok := depToSkill[parts[i-1]+"/"+parts[i]]; ok {
				return skill, true
			}
		}
		for i := len(parts) - 1; i >= 1; i-- {
			if skill, ok := depToSkill[parts[i]]; ok {
				return skill, true
			}
		}
	}
	return "", false
}

// resolveImportPrefix returns the canonical skill for a namespace import,
// preferring the longest registered prefix.
func resolveImportPrefix(path string) (string, bool) {
	best := ""
	skill := ""
	for prefix, s := range importPrefixToSkill {
		if (path == prefix || strings.HasPrefix(path, prefix+".")) && len(prefix) > len(best) {
			best = prefix
			skill = s
		}
	}
	return skill, best != ""
}
