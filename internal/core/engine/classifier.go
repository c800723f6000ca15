package engine

import "strings"

// generalIndicators signal that fresh or explanatory material would help.
var generalIndicators = []string{
	"how to", "how do", "how does", "what is", "what are", "why does", "why is",
	"latest", "recent", "current", "newest", "today", "this year", "2024", "2025", "2026",
	"compare", "comparison", " vs ", "versus", "difference between", "alternatives",
	"best practice", "best way", "recommend",
	"error", "exception", "failed", "failing", "not working", "broken", "crash",
	"troubleshoot", "debug", "fix", "issue", "bug",
	"tutorial", "example", "guide", "documentation", "docs",
	"release", "changelog", "deprecated", "migrate", "migration", "upgrade",
	"news", "announce", "price", "pricing",
}

// technicalIndicators name ecosystems, tools and hosting sites.
var technicalIndicators = []string{
	"api", "sdk", "library", "package", "framework", "module", "dependency",
	"npm", "pip", "pypi", "cargo", "crate", "maven", "gradle", "nuget", "go get",
	"github", "gitlab", "bitbucket", "stackoverflow", "stack overflow",
	"react", "vue", "angular", "svelte", "next.js", "nextjs", "node.js", "nodejs", "deno",
	"django", "flask", "fastapi", "rails", "laravel", "spring", "express",
	"kubernetes", "k8s", "docker", "terraform", "helm", "ansible",
	"aws", "azure", "gcp", "vercel", "netlify", "cloudflare",
	"postgres", "mysql", "mongodb", "redis", "kafka", "elasticsearch",
	"typescript", "javascript", "python", "golang", "rust", "java", "kotlin", "swift",
	"tensorflow", "pytorch", "langchain", "openai", "anthropic",
	"version", "v1", "v2", "v3",
}

// NeedsSearch reports whether prompt shows any lexical sign that web search
// context would help. It is a substring match over the lower-cased prompt.
func NeedsSearch(prompt string) bool {
	lower := " " + strings.ToLower(strings.Join(strings.Fields(prompt), " ")) + " "
	if strings.TrimSpace(lower) == "" {
		return false
	}
	for _, set := range [][]string{generalIndicators, technicalIndicators} {
		for _, indicator := range set {
			if strings.Contains(lower, indicator) {
				return true
			}
		}
	}
	return false
}
