package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/contextlens/contextlens/internal/core"
)

const braveBaseURL = "https://api.search.brave.com/res/v1"

// Brave queries the Brave web search API.
type Brave struct {
	BaseURL string
	APIKey  string
	Country string
	Client  *http.Client
}

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Search(ctx context.Context, q Query) (*BackendResult, error) {
	if strings.TrimSpace(b.APIKey) == "" {
		return nil, fmt.Errorf("brave api key is required")
	}
	base := strings.TrimSpace(b.BaseURL)
	if base == "" {
		base = braveBaseURL
	}

	params := url.Values{}
	params.Set("q", q.Text)
	// Brave caps count at 20.
	params.Set("count", strconv.Itoa(min(q.Count, 20)))
	if b.Country != "" {
		params.Set("country", b.Country)
	}

	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(base, "/")+"/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build brave request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	doc, err := doJSON(ctx, b.Client, b.Name(), req)
	if err != nil {
		return nil, err
	}

	found := hits(doc.Get("web.results"), func(item gjson.Result) (Hit, bool) {
		link := item.Get("url").String()
		if link == "" {
			return Hit{}, false
		}
		hitType := core.SearchResultWeb
		if item.Get("subtype").String() == "news" {
			hitType = core.SearchResultNews
		}
		return Hit{
			Title:       item.Get("title").String(),
			URL:         link,
			Description: item.Get("description").String(),
			Type:        hitType,
			Score:       -1,
		}, true
	})
	return &BackendResult{Hits: found, Total: len(found)}, nil
}
