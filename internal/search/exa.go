package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/contextlens/contextlens/internal/core"
)

const exaBaseURL = "https://api.exa.ai"

// Exa queries the Exa neural search API, which supports native domain hints.
type Exa struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func (e *Exa) Name() string { return "exa" }

type exaRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults"`
	Category   string `json:"category,omitempty"`
}

func (e *Exa) Search(ctx context.Context, q Query) (*BackendResult, error) {
	if strings.TrimSpace(e.APIKey) == "" {
		return nil, fmt.Errorf("exa api key is required")
	}
	base := strings.TrimSpace(e.BaseURL)
	if base == "" {
		base = exaBaseURL
	}

	payload := exaRequest{Query: q.Text, NumResults: min(q.Count, 10)}
	if !q.Domain.IsZero() && (q.Domain.Language != "" || q.Domain.Framework != "") {
		payload.Category = "github"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode exa request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(base, "/")+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build exa request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", e.APIKey)

	doc, err := doJSON(ctx, e.Client, e.Name(), req)
	if err != nil {
		return nil, err
	}

	found := hits(doc.Get("results"), func(item gjson.Result) (Hit, bool) {
		link := item.Get("url").String()
		if link == "" {
			return Hit{}, false
		}
		desc := item.Get("summary").String()
		if desc == "" {
			desc = item.Get("text").String()
		}
		if len(desc) > 500 {
			desc = desc[:500]
		}
		hitType := core.SearchResultWeb
		if payload.Category == "github" {
			hitType = core.SearchResultDocs
		}
		return Hit{
			Title:       item.Get("title").String(),
			URL:         link,
			Description: desc,
			Type:        hitType,
			Score:       scoreOf(item, "score"),
		}, true
	})
	return &BackendResult{Hits: found, Total: len(found)}, nil
}
