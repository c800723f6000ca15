package engine

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/ailink"
	"github.com/contextlens/contextlens/internal/ailink/prompt"
	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/observability"
)

// MaxQueries is the most queries generated for or accepted from one request.
const MaxQueries = 3

// PromptGenerator runs a registered prompt against the Model Gateway.
type PromptGenerator interface {
	GeneratePrompt(ctx context.Context, modelID core.ModelID, slug string, vars map[string]string) (*ailink.Generation, error)
}

// QueryGenerator turns one user prompt into targeted search queries.
type QueryGenerator struct {
	Model PromptGenerator
	// ModelID overrides the model used for query generation; empty uses
	// the prompt's own model id or the default.
	ModelID core.ModelID
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*\x{2022}]+|\d+[.)]|\(\d+\))\s*`)

// Generate returns 1 to MaxQueries non-empty queries and the source they
// came from. Any model failure falls back to the prompt itself.
func (g *QueryGenerator) Generate(ctx context.Context, userPrompt string, domain *core.DomainContext) ([]string, string) {
	fallback := []string{strings.TrimSpace(userPrompt)}
	if g == nil || g.Model == nil {
		return fallback, core.QueriesFromFallback
	}

	vars := map[string]string{"prompt": strings.TrimSpace(userPrompt)}
	if hint := domainSummary(domain); hint != "" {
		vars["context"] = hint
	}

	gen, err := g.Model.GeneratePrompt(ctx, g.ModelID, prompt.SlugSearchQueries, vars)
	if err != nil {
		observability.Warn("Search query generation failed, using prompt as query",
			zap.String("stage", string(core.StageAugmentation)),
			zap.Error(err))
		return fallback, core.QueriesFromFallback
	}

	queries := ParseQueries(gen.Text)
	if len(queries) == 0 {
		observability.Warn("Search query generation returned no usable lines, using prompt as query",
			zap.String("stage", string(core.StageAugmentation)))
		return fallback, core.QueriesFromFallback
	}
	return queries, core.QueriesGenerated
}

// ParseQueries splits model output into at most MaxQueries trimmed, non-empty
// lines, stripping list markers and wrapping quotes.
func ParseQueries(text string) []string {
	out := make([]string, 0, MaxQueries)
	for _, line := range strings.Split(text, "\n") {
		line = listMarker.ReplaceAllString(strings.TrimSpace(line), "")
		line = strings.Trim(strings.TrimSpace(line), "\"'`")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == MaxQueries {
			break
		}
	}
	return out
}

// CleanQueries trims caller-supplied queries, drops blanks and caps them.
func CleanQueries(queries []string) []string {
	out := make([]string, 0, min(len(queries), MaxQueries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		out = append(out, q)
		if len(out) == MaxQueries {
			break
		}
	}
	return out
}

func domainSummary(domain *core.DomainContext) string {
	if domain.IsZero() {
		return ""
	}
	parts := make([]string, 0, 3)
	if domain.Language != "" {
		parts = append(parts, "language: "+domain.Language)
	}
	if domain.Framework != "" {
		parts = append(parts, "framework: "+domain.Framework)
	}
	if domain.Subject != "" {
		parts = append(parts, "subject: "+domain.Subject)
	}
	return strings.Join(parts, ", ")
}
