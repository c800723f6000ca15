package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/contextlens/contextlens/internal/core"
)

const maxCellRunes = 80

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func healthLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

// searchSummary describes how search shaped a response.
func searchSummary(resp *core.GenerationResponse) string {
	d := resp.Diagnostics
	if !d.SearchUsed {
		return fmt.Sprintf("search skipped (%s)", decisionLabel(d.SearchDecision))
	}
	summary := fmt.Sprintf("%d results from %d queries (%s, queries %s)",
		len(resp.SearchResults), len(resp.SearchQueries), decisionLabel(d.SearchDecision), queriesLabel(d.QueriesSource))
	if d.AugmentationError != "" {
		summary += "; search failed: " + d.AugmentationError
	}
	return summary
}

func decisionLabel(decision string) string {
	if decision == "" {
		return "unknown"
	}
	return decision
}

func queriesLabel(source string) string {
	if source == "" {
		return "n/a"
	}
	return source
}

func modelLabel(resp *core.GenerationResponse) string {
	label := resp.ModelID
	if resp.Diagnostics.Provider != "" {
		label += " via " + resp.Diagnostics.Provider
		if resp.Diagnostics.Model != "" {
			label += "/" + resp.Diagnostics.Model
		}
	}
	return label
}

func tokensLabel(resp *core.GenerationResponse) string {
	if resp.TokensUsed == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *resp.TokensUsed)
}

func taskOutcome(task *core.BackgroundTask) string {
	if msg, ok := task.ErrorMessage(); ok {
		return msg
	}
	if resp, ok := task.Result(); ok && resp != nil {
		return resp.Content
	}
	return ""
}

// statsRows flattens search gateway counters into sorted key/value pairs.
func statsRows(stats core.Stats) [][2]string {
	keys := make([]string, 0, len(stats.SearchGatewayStats))
	for key := range stats.SearchGatewayStats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][2]string, 0, len(keys)+1)
	for _, key := range keys {
		rows = append(rows, [2]string{key, fmt.Sprintf("%v", stats.SearchGatewayStats[key])})
	}
	rows = append(rows, [2]string{"supported_model_ids", strings.Join(stats.SupportedModelIDs, ", ")})
	return rows
}
