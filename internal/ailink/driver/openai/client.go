// Package openai implements the chat completions driver shared by OpenAI
// and OpenAI-compatible providers.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/contextlens/contextlens/internal/ailink/driver"
)

// DefaultBaseURL is the OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// Client speaks the chat completions API. Point BaseURL at xAI, Ollama or
// vLLM to use it for those providers.
type Client struct {
	BaseURL     string
	APIKey      string
	Provider    string
	KeyOptional bool
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL, apiKey string) *Client {
	c := &Client{
		BaseURL:  strings.TrimSpace(baseURL),
		APIKey:   strings.TrimSpace(apiKey),
		Provider: "openai",
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	return c
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	if c == nil || strings.TrimSpace(c.Provider) == "" {
		return "openai"
	}
	return c.Provider
}

// Capabilities describes supported features.
func (c *Client) Capabilities() driver.Capabilities {
	return driver.Capabilities{SupportsSystem: true}
}

// Complete sends a chat completion request.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, errors.New("openai client not configured")
	}
	if c.APIKey == "" && !c.KeyOptional {
		return nil, errors.New("api key is required")
	}

	payload, err := newChatRequest(req)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.APIKey)
	}
	body, err := driver.PostJSON(ctx, driver.Exchange{
		Driver:     c.Name(),
		URL:        strings.TrimRight(c.BaseURL, "/") + "/chat/completions",
		Header:     header,
		Model:      payload.Model,
		PromptSlug: req.PromptSlug,
		Client:     c.HTTPClient,
		Timeout:    c.Timeout,
	}, payload)
	if err != nil {
		return nil, err
	}
	return parseChatResponse(body)
}
