package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/observability"
	"github.com/contextlens/contextlens/internal/output"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file|->",
	Short: "Run a batch of background tasks from a file",
	Long: `Read one task per line and process them concurrently.

Each line is either a bare prompt (research task) or "<kind>|<prompt>",
where kind is research, code-generation, analysis or search-and-summarize.
Blank lines and lines starting with # are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().Int("concurrency", 0, "Concurrent tasks (default from engine.workers)")
	batchCmd.Flags().Bool("no-search", false, "Disable web search for every task")
	addOutputFlags(batchCmd, allFormats...)
}

// batchLine is one parsed entry of a batch file.
type batchLine struct {
	Kind   string
	Prompt string
}

func runBatch(cmd *cobra.Command, args []string) error {
	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return err
	}
	if concurrency < 0 {
		return fmt.Errorf("--concurrency must be positive, got %d", concurrency)
	}
	noSearch, _ := cmd.Flags().GetBool("no-search")

	var reader io.Reader
	if args[0] == "-" {
		reader = cmd.InOrStdin()
	} else {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open batch file: %w", err)
		}
		defer file.Close() // nolint:errcheck // read-only
		reader = file
	}

	lines, err := parseBatchLines(reader)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return errors.New("batch file contains no tasks")
	}

	rt, err := buildRuntime(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if concurrency > 0 {
		rt.engine.Runner.Workers = concurrency
	}

	tasks := make([]*core.BackgroundTask, 0, len(lines))
	for i, line := range lines {
		task, err := rt.engine.CreateTask(cmd.Context(), line.Prompt, line.Kind, core.WithSearch(!noSearch))
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		tasks = append(tasks, task)
	}

	observability.CLILogger.Info("Running batch",
		zap.Int("tasks", len(tasks)),
		zap.Int("workers", rt.engine.Runner.Workers))

	results := rt.engine.RunBatch(cmd.Context(), tasks)

	return writeFormatted(cmd, "batch", func(f output.Formatter) (string, error) {
		return f.FormatTasks(results)
	})
}

// parseBatchLines reads "kind|prompt" or bare prompt lines. Text before a
// "|" that is not a known kind stays part of the prompt.
func parseBatchLines(r io.Reader) ([]batchLine, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxPromptFileBytes)

	var lines []batchLine
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		entry := batchLine{Prompt: text}
		if kind, prompt, ok := strings.Cut(text, "|"); ok {
			if _, err := core.ParseTaskKind(kind); err == nil {
				entry = batchLine{Kind: strings.TrimSpace(kind), Prompt: strings.TrimSpace(prompt)}
			}
		}
		if entry.Prompt == "" {
			return nil, fmt.Errorf("line %d: prompt is required", lineNo)
		}
		lines = append(lines, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	return lines, nil
}
