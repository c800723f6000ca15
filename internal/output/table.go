package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/contextlens/contextlens/internal/core"
)

// TableFormatter renders results as ASCII tables.
type TableFormatter struct{}

// NewTable returns a rounded table whose footer keeps its original case.
func NewTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	return t
}

// FormatResponse prints the generated content followed by a sources table.
func (f *TableFormatter) FormatResponse(resp *core.GenerationResponse) (string, error) {
	if resp == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(resp.Content))
	sb.WriteString("\n\n")

	meta := NewTable()
	meta.AppendRows([]table.Row{
		{"Model", modelLabel(resp)},
		{"Search", searchSummary(resp)},
		{"Tokens", tokensLabel(resp)},
		{"Time", fmt.Sprintf("%dms", resp.ProcessingTimeMs)},
	})
	sb.WriteString(meta.Render())

	if len(resp.SearchResults) > 0 {
		sources := NewTable()
		sources.AppendHeader(table.Row{"#", "Title", "URL", "Score"})
		for i, result := range resp.SearchResults {
			sources.AppendRow(table.Row{
				i + 1,
				truncate(result.Title, maxCellRunes/2),
				result.URL,
				fmt.Sprintf("%.2f", result.RelevanceScore),
			})
		}
		sb.WriteString("\n")
		sb.WriteString(sources.Render())
	}

	return sb.String(), nil
}

// FormatTasks renders one row per task.
func (f *TableFormatter) FormatTasks(tasks []*core.BackgroundTask) (string, error) {
	t := NewTable()
	t.AppendHeader(table.Row{"ID", "Kind", "Status", "Prompt", "Outcome"})

	counts := map[core.TaskStatus]int{}
	for _, task := range tasks {
		if task == nil {
			continue
		}
		status := task.Status()
		counts[status]++
		t.AppendRow(table.Row{
			task.ID,
			string(task.Kind),
			string(status),
			truncate(task.Prompt, maxCellRunes/2),
			truncate(taskOutcome(task), maxCellRunes),
		})
	}

	t.AppendFooter(table.Row{
		"",
		"",
		fmt.Sprintf("%d completed, %d failed", counts[core.TaskCompleted], counts[core.TaskError]),
		"",
		"",
	})
	return t.Render(), nil
}

// FormatHealth renders gateway probe results.
func (f *TableFormatter) FormatHealth(status core.HealthStatus) (string, error) {
	t := NewTable()
	t.AppendHeader(table.Row{"Gateway", "Status"})
	t.AppendRow(table.Row{"model", healthLabel(status.ModelGatewayHealthy)})
	t.AppendRow(table.Row{"search", healthLabel(status.SearchGatewayHealthy)})
	t.AppendFooter(table.Row{"overall", healthLabel(status.Overall)})
	return t.Render(), nil
}

// FormatStats renders search counters and supported model ids.
func (f *TableFormatter) FormatStats(stats core.Stats) (string, error) {
	t := NewTable()
	t.AppendHeader(table.Row{"Stat", "Value"})
	for _, row := range statsRows(stats) {
		t.AppendRow(table.Row{row[0], row[1]})
	}
	return t.Render(), nil
}
