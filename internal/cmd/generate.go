package cmd

import (
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

const maxPromptFileBytes = 256 * 1024

var generateCmd = &cobra.Command{
	Use:   "generate <prompt|->",
	Short: "Generate a response, augmented with web search when useful",
	Long: `Generate a response for a prompt. Search runs when the prompt asks for
current information, or when --search is set; --no-search disables it.
Pass "-" to read the prompt from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	registerGenerateFlags(generateCmd)
}

func registerGenerateFlags(c *cobra.Command) {
	c.Flags().String("model", "", "Model id: quality, fast, long-context, multimodal")
	c.Flags().Bool("search", false, "Force web search on")
	c.Flags().Bool("no-search", false, "Force web search off")
	c.Flags().StringArray("query", nil, "Search query to run instead of generated ones (repeatable)")
	c.Flags().String("language", "", "Domain hint: programming language")
	c.Flags().String("framework", "", "Domain hint: framework")
	c.Flags().String("subject", "", "Domain hint: subject area")
	c.Flags().Int("max-results", 0, "Maximum search results (default from engine.max_search_results)")
	c.Flags().StringP("prompt-file", "f", "", "Read the prompt from a file")
	c.MarkFlagsMutuallyExclusive("search", "no-search")
	addOutputFlags(c, allFormats...)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	promptText, err := readPrompt(cmd, args)
	if err != nil {
		return err
	}

	req, err := buildGenerationRequest(cmd, promptText)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if req.MaxSearchResults == 0 {
		req.MaxSearchResults = rt.cfg.Engine.MaxSearchResults
	}

	observability.CLILogger.Debug("Processing request",
		zap.String("model", req.ModelID),
		zap.Int("queries", len(req.SearchQueries)))

	resp, err := rt.engine.ProcessRequest(cmd.Context(), req)
	if err != nil {
		return err
	}

	return writeFormatted(cmd, "generate", func(f output.Formatter) (string, error) {
		return f.FormatResponse(resp)
	})
}

func readPrompt(cmd *cobra.Command, args []string) (string, error) {
	promptFile, _ := cmd.Flags().GetString("prompt-file")

	var raw string
	switch {
	case promptFile != "" && len(args) > 0:
		return "", errors.New("pass either a prompt argument or --prompt-file, not both")
	case promptFile != "":
		content, err := readLimited(promptFile)
		if err != nil {
			return "", fmt.Errorf("reading prompt file: %w", err)
		}
		raw = content
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxPromptFileBytes))
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		raw = string(data)
	case len(args) == 1:
		raw = args[0]
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("prompt is required")
	}
	return raw, nil
}

func readLimited(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close() // nolint:errcheck // read-only

	data, err := io.ReadAll(io.LimitReader(file, maxPromptFileBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func buildGenerationRequest(cmd *cobra.Command, promptText string) (core.GenerationRequest, error) {
	req := core.GenerationRequest{Prompt: promptText}

	req.ModelID, _ = cmd.Flags().GetString("model")
	if req.ModelID != "" && !core.IsKnownModelID(req.ModelID) {
		observability.Warn("Unknown model id; falling back to default",
			zap.String("model", req.ModelID),
			zap.Strings("supported", core.SupportedModelIDs()))
	}

	if cmd.Flags().Changed("search") {
		on, _ := cmd.Flags().GetBool("search")
		req.ExplicitSearchEnable = &on
	}
	if cmd.Flags().Changed("no-search") {
		off, _ := cmd.Flags().GetBool("no-search")
		enabled := !off
		req.ExplicitSearchEnable = &enabled
	}

	queries, _ := cmd.Flags().GetStringArray("query")
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			req.SearchQueries = append(req.SearchQueries, q)
		}
	}

	domain := &core.DomainContext{}
	domain.Language, _ = cmd.Flags().GetString("language")
	domain.Framework, _ = cmd.Flags().GetString("framework")
	domain.Subject, _ = cmd.Flags().GetString("subject")
	if !domain.IsZero() {
		req.DomainContext = domain
	}

	maxResults, _ := cmd.Flags().GetInt("max-results")
	if maxResults < 0 {
		return req, fmt.Errorf("--max-results must be positive, got %d", maxResults)
	}
	req.MaxSearchResults = maxResults
	return req, nil
}
