package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/contextlens/contextlens/internal/core/engine"
	"github.com/contextlens/contextlens/internal/core/store"
	"github.com/contextlens/contextlens/internal/output"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Manage persisted rate limit state",
	Long: `Inspect or clear the per-endpoint rate limit windows shared by the
model and search gateways. Endpoints are keyed "<gateway>:<backend>",
for example "ailink:openai" or "search:brave".`,
}

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate limit state with effective limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := rateLimitFormat(cmd)
		if err != nil {
			return err
		}
		prefix, _ := cmd.Flags().GetString("prefix")
		query := store.RateLimitQuery{Prefix: strings.TrimSpace(prefix)}
		if query.Prefix == "" {
			query.All = true
		}

		rt, err := buildRuntime(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		db, err := rt.requireStore()
		if err != nil {
			return err
		}
		entries, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		sink, err := openCommandSink(cmd, format, "rate-limit.list")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		return writeRateLimitList(format, sink.writer, entries, rt.limiter, time.Now().UTC())
	},
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored rate limit state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := rateLimitFormat(cmd)
		if err != nil {
			return err
		}

		all, _ := cmd.Flags().GetBool("all")
		endpoint, _ := cmd.Flags().GetString("endpoint")
		prefix, _ := cmd.Flags().GetString("prefix")
		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		query := store.RateLimitQuery{
			All:      all,
			Endpoint: strings.TrimSpace(endpoint),
			Prefix:   strings.TrimSpace(prefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !yes && !dryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		sink, err := openCommandSink(cmd, format, "rate-limit.reset")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		var deleted int64
		if !dryRun {
			if deleted, err = db.ResetRateLimits(cmd.Context(), query); err != nil {
				return err
			}
		}
		return writeRateLimitReset(format, sink.writer, matched, deleted, dryRun)
	},
}

func rateLimitFormat(cmd *cobra.Command) (output.Format, error) {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return "", err
	}
	if format != output.FormatJSON && format != output.FormatTable {
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
	return format, nil
}

// rateLimitRow pairs stored state with the limit the limiter would apply.
type rateLimitRow struct {
	Endpoint     string     `json:"endpoint"`
	RequestCount int        `json:"request_count"`
	Limit        int        `json:"limit"`
	Window       string     `json:"window"`
	WindowStart  time.Time  `json:"window_start"`
	BackoffUntil *time.Time `json:"backoff_until,omitempty"`
	Last429At    *time.Time `json:"last_429_at,omitempty"`
	Blocked      bool       `json:"blocked"`
}

func buildRateLimitRows(entries []store.RateLimitEntry, limiter *engine.RateLimiter, now time.Time) []rateLimitRow {
	rows := make([]rateLimitRow, 0, len(entries))
	for _, entry := range entries {
		limit := limiter.LimitFor(entry.Endpoint)
		row := rateLimitRow{
			Endpoint:     entry.Endpoint,
			RequestCount: entry.State.RequestCount,
			Limit:        limit.RequestsPerWindow,
			Window:       limit.WindowDuration.String(),
			WindowStart:  entry.State.WindowStart,
			BackoffUntil: entry.State.BackoffUntil,
			Last429At:    entry.State.Last429At,
		}
		inWindow := now.Before(entry.State.WindowStart.Add(limit.WindowDuration))
		row.Blocked = (entry.State.BackoffUntil != nil && now.Before(*entry.State.BackoffUntil)) ||
			(inWindow && limit.RequestsPerWindow > 0 && entry.State.RequestCount >= limit.RequestsPerWindow)
		rows = append(rows, row)
	}
	return rows
}

func writeRateLimitList(format output.Format, w io.Writer, entries []store.RateLimitEntry, limiter *engine.RateLimiter, now time.Time) error {
	rows := buildRateLimitRows(entries, limiter, now)
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	t := output.NewTable()
	t.AppendHeader(table.Row{"Endpoint", "Used", "Window", "Backoff Until", "Blocked"})
	for _, row := range rows {
		backoff := "-"
		if row.BackoffUntil != nil {
			backoff = row.BackoffUntil.UTC().Format(time.RFC3339)
		}
		t.AppendRow(table.Row{
			row.Endpoint,
			fmt.Sprintf("%d/%d", row.RequestCount, row.Limit),
			row.Window,
			backoff,
			row.Blocked,
		})
	}
	if len(rows) == 0 {
		t.AppendRow(table.Row{"(no stored rate limit state)"})
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func writeRateLimitReset(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(map[string]any{
			"matched": matched,
			"deleted": deleted,
			"dry_run": dryRun,
		}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d rate limit entr(ies)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d rate limit entr(ies)\n", deleted, matched)
	return err
}

func init() {
	rootCmd.AddCommand(rateLimitCmd)
	rateLimitCmd.AddCommand(rateLimitListCmd, rateLimitResetCmd)

	rateLimitListCmd.Flags().String("prefix", "", "List endpoints with matching prefix")
	addOutputFlags(rateLimitListCmd, output.FormatTable, output.FormatJSON)

	rateLimitResetCmd.Flags().Bool("all", false, "Reset all endpoints")
	rateLimitResetCmd.Flags().String("endpoint", "", "Reset a single endpoint (exact match)")
	rateLimitResetCmd.Flags().String("prefix", "", "Reset endpoints with matching prefix")
	rateLimitResetCmd.Flags().Bool("yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().Bool("dry-run", false, "Show what would be deleted")
	addOutputFlags(rateLimitResetCmd, output.FormatTable, output.FormatJSON)
}
