package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/core/engine"
	"github.com/contextlens/contextlens/internal/observability"
)

const (
	GenerateToolName    = "generate"
	NeedsSearchToolName = "needs_search"
	HealthToolName      = "health"
)

var generateSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "prompt": {"type": "string", "description": "Prompt to answer"},
    "model": {"type": "string", "description": "Model id: quality, fast, long-context or multimodal"},
    "search": {"type": "boolean", "description": "Force web search on or off; omit to let the classifier decide"},
    "queries": {"type": "array", "items": {"type": "string"}, "description": "Search queries to use instead of generated ones"},
    "max_results": {"type": "integer", "minimum": 1, "maximum": 50, "description": "Cap on search results folded into the prompt"}
  },
  "required": ["prompt"]
}`)

var needsSearchSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "prompt": {"type": "string", "description": "Prompt to classify"}
  },
  "required": ["prompt"]
}`)

var healthSchema = json.RawMessage(`{"type": "object", "properties": {}}`)

// Engine is the orchestrator surface exposed as MCP tools.
type Engine interface {
	ProcessRequest(ctx context.Context, req core.GenerationRequest) (*core.GenerationResponse, error)
	HealthCheck(ctx context.Context) core.HealthStatus
}

// GenerateArguments are the arguments of the generate tool.
type GenerateArguments struct {
	Prompt     string   `json:"prompt"`
	Model      string   `json:"model,omitempty"`
	Search     *bool    `json:"search,omitempty"`
	Queries    []string `json:"queries,omitempty"`
	MaxResults int      `json:"max_results,omitempty"`
}

// NeedsSearchArguments are the arguments of the needs_search tool.
type NeedsSearchArguments struct {
	Prompt string `json:"prompt"`
}

type Service struct {
	engine    Engine
	mcpServer *server.MCPServer
}

// NewService registers the generate, needs_search and health tools.
func NewService(eng Engine, name, version string) *Service {
	s := &Service{
		engine:    eng,
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
	}

	s.mcpServer.AddTool(
		mcp.NewToolWithRawSchema(GenerateToolName, "Answer a prompt, augmenting it with web search results when useful", generateSchema),
		s.handleGenerate,
	)
	s.mcpServer.AddTool(
		mcp.NewToolWithRawSchema(NeedsSearchToolName, "Report whether a prompt would trigger web search", needsSearchSchema),
		s.handleNeedsSearch,
	)
	s.mcpServer.AddTool(
		mcp.NewToolWithRawSchema(HealthToolName, "Probe the model and search gateways", healthSchema),
		s.handleHealth,
	)

	return s
}

func (s *Service) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// HTTPHandler serves the tools over streamable HTTP at /mcp.
func (s *Service) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
	)
}

// ServeStdio serves the tools over stdin/stdout until the input closes.
func (s *Service) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Service) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args GenerateArguments
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to bind arguments: %v", err)), nil
	}
	if strings.TrimSpace(args.Prompt) == "" {
		return mcp.NewToolResultError("prompt is required"), nil
	}

	resp, err := s.engine.ProcessRequest(ctx, core.GenerationRequest{
		Prompt:               args.Prompt,
		ModelID:              args.Model,
		ExplicitSearchEnable: args.Search,
		SearchQueries:        args.Queries,
		MaxSearchResults:     args.MaxResults,
	})
	if err != nil {
		observability.Warn("mcp generate failed", zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(resp)
}

func (s *Service) handleNeedsSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args NeedsSearchArguments
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to bind arguments: %v", err)), nil
	}
	return jsonResult(map[string]bool{"needs_search": engine.NeedsSearch(args.Prompt)})
}

func (s *Service) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.HealthCheck(ctx))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
