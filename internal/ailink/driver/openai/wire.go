package openai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/contextlens/contextlens/internal/ailink/content"
	"github.com/contextlens/contextlens/internal/ailink/driver"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func newChatRequest(req *driver.Request) (*chatRequest, error) {
	switch {
	case req == nil:
		return nil, errors.New("request is required")
	case strings.TrimSpace(req.Model) == "":
		return nil, errors.New("model is required")
	case len(req.Messages) == 0:
		return nil, errors.New("messages are required")
	}

	out := &chatRequest{
		Model:       req.Model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, msg := range req.Messages {
		for _, block := range msg.Content {
			if block.Type != content.ContentTypeText && block.Type != content.ContentTypeJSON {
				return nil, fmt.Errorf("unsupported content type: %s", block.Type)
			}
		}
		out.Messages = append(out.Messages, chatMessage{Role: msg.Role, Content: content.JoinText(msg.Content)})
	}
	return out, nil
}

// parseChatResponse reads the first choice. A null message content yields
// a response without content blocks.
func parseChatResponse(body []byte) (*driver.Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("decode response: malformed JSON")
	}
	doc := gjson.ParseBytes(body)
	first := doc.Get("choices.0")
	if !first.Exists() {
		return nil, errors.New("empty response choices")
	}

	out := &driver.Response{FinishReason: first.Get("finish_reason").String()}
	if text := first.Get("message.content"); text.Type == gjson.String {
		out.Content = []content.ContentBlock{{Type: content.ContentTypeText, Text: text.Str}}
	}

	if usage := doc.Get("usage"); usage.IsObject() {
		prompt := int(usage.Get("prompt_tokens").Int())
		completion := int(usage.Get("completion_tokens").Int())
		total := int(usage.Get("total_tokens").Int())
		if total == 0 {
			total = prompt + completion
		}
		out.Usage = &driver.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
	}
	return out, nil
}
