package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/contextlens/contextlens/internal/ailink/content"
	"github.com/contextlens/contextlens/internal/ailink/driver"
)

const (
	// DefaultBaseURL is the Anthropic API root.
	DefaultBaseURL = "https://api.anthropic.com/v1"
	// APIVersion is sent as the anthropic-version header.
	APIVersion = "2023-06-01"

	defaultMaxTokens = 1024
)

// Client speaks the Anthropic messages API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL, apiKey string) *Client {
	url := strings.TrimSpace(baseURL)
	if url == "" {
		url = DefaultBaseURL
	}
	return &Client{BaseURL: url, APIKey: strings.TrimSpace(apiKey)}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return "anthropic"
}

// Capabilities describes supported features.
func (c *Client) Capabilities() driver.Capabilities {
	return driver.Capabilities{SupportsSystem: true, SupportsImages: true}
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a messages request. System messages are lifted into the
// top-level system field.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("anthropic client not configured")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}

	payload, err := buildMessagesRequest(req)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("x-api-key", c.APIKey)
	header.Set("anthropic-version", APIVersion)
	body, err := driver.PostJSON(ctx, driver.Exchange{
		Driver:     c.Name(),
		URL:        strings.TrimRight(c.BaseURL, "/") + "/messages",
		Header:     header,
		Model:      payload.Model,
		PromptSlug: req.PromptSlug,
		Client:     c.HTTPClient,
		Timeout:    c.Timeout,
	}, payload)
	if err != nil {
		return nil, err
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := &driver.Response{FinishReason: parsed.StopReason}
	for _, block := range parsed.Content {
		if block.Type != "text" {
			continue
		}
		out.Content = append(out.Content, content.ContentBlock{Type: content.ContentTypeText, Text: block.Text})
	}
	if parsed.Usage != nil {
		out.Usage = &driver.Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		}
	}
	return out, nil
}

func buildMessagesRequest(req *driver.Request) (*messagesRequest, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}

	payload := &messagesRequest{
		Model:       req.Model,
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Temperature,
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		payload.MaxTokens = *req.MaxTokens
	}

	var system []string
	for _, msg := range req.Messages {
		text := content.JoinText(msg.Content)
		if msg.Role == "system" {
			system = append(system, text)
			continue
		}
		payload.Messages = append(payload.Messages, message{Role: msg.Role, Content: text})
	}
	if len(payload.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}
	payload.System = strings.Join(system, "\n\n")
	return payload, nil
}
