package output

import (
	"fmt"
	"strings"

	"github.com/contextlens/contextlens/internal/core"
)

// MarkdownFormatter renders results as Markdown.
type MarkdownFormatter struct{}

// FormatResponse renders the content with a numbered sources list.
func (f *MarkdownFormatter) FormatResponse(resp *core.GenerationResponse) (string, error) {
	if resp == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(resp.Content))
	sb.WriteString("\n")

	if len(resp.SearchResults) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for i, result := range resp.SearchResults {
			sb.WriteString(fmt.Sprintf("%d. [%s](%s)\n", i+1, escapeMarkdownLink(result.Title), result.URL))
		}
	}

	sb.WriteString(fmt.Sprintf("\n_%s; %s; %dms_\n", modelLabel(resp), searchSummary(resp), resp.ProcessingTimeMs))
	return sb.String(), nil
}

// FormatTasks renders tasks as a Markdown table.
func (f *MarkdownFormatter) FormatTasks(tasks []*core.BackgroundTask) (string, error) {
	var sb strings.Builder
	sb.WriteString("| ID | Kind | Status | Prompt | Outcome |\n")
	sb.WriteString("|----|------|--------|--------|---------|\n")
	for _, task := range tasks {
		if task == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			escapeMarkdownCell(task.ID),
			escapeMarkdownCell(string(task.Kind)),
			escapeMarkdownCell(string(task.Status())),
			escapeMarkdownCell(truncate(task.Prompt, maxCellRunes/2)),
			escapeMarkdownCell(truncate(taskOutcome(task), maxCellRunes)),
		))
	}
	return sb.String(), nil
}

// FormatHealth renders gateway probe results.
func (f *MarkdownFormatter) FormatHealth(status core.HealthStatus) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Gateway | Status |\n")
	sb.WriteString("|---------|--------|\n")
	sb.WriteString(fmt.Sprintf("| model | %s |\n", healthLabel(status.ModelGatewayHealthy)))
	sb.WriteString(fmt.Sprintf("| search | %s |\n", healthLabel(status.SearchGatewayHealthy)))
	sb.WriteString(fmt.Sprintf("\n**Overall**: %s\n", healthLabel(status.Overall)))
	return sb.String(), nil
}

// FormatStats renders search counters and supported model ids.
func (f *MarkdownFormatter) FormatStats(stats core.Stats) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Stat | Value |\n")
	sb.WriteString("|------|-------|\n")
	for _, row := range statsRows(stats) {
		sb.WriteString(fmt.Sprintf("| %s | %s |\n", escapeMarkdownCell(row[0]), escapeMarkdownCell(row[1])))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	return strings.ReplaceAll(value, "\n", " ")
}

func escapeMarkdownLink(value string) string {
	value = strings.ReplaceAll(value, "[", "\\[")
	return strings.ReplaceAll(value, "]", "\\]")
}
