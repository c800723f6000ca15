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

const serpAPIBaseURL = "https://serpapi.com"

// SerpAPI queries SerpAPI; Engine selects the upstream engine (default duckduckgo).
type SerpAPI struct {
	BaseURL string
	APIKey  string
	Engine  string
	Client  *http.Client
}

func (s *SerpAPI) Name() string { return "serpapi" }

func (s *SerpAPI) Search(ctx context.Context, q Query) (*BackendResult, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, fmt.Errorf("serpapi api key is required")
	}
	base := strings.TrimSpace(s.BaseURL)
	if base == "" {
		base = serpAPIBaseURL
	}
	engine := strings.TrimSpace(s.Engine)
	if engine == "" {
		engine = "duckduckgo"
	}

	params := url.Values{}
	params.Set("api_key", s.APIKey)
	params.Set("engine", engine)
	params.Set("q", q.Text)
	params.Set("num", strconv.Itoa(q.Count))
	if engine == "duckduckgo" {
		params.Set("kl", "us-en")
	}

	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(base, "/")+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build serpapi request: %w", err)
	}

	doc, err := doJSON(ctx, s.Client, s.Name(), req)
	if err != nil {
		return nil, err
	}
	if msg := doc.Get("error").String(); msg != "" {
		// SerpAPI reports "no results" as an error string with a 200.
		if strings.Contains(strings.ToLower(msg), "hasn't returned any results") {
			return &BackendResult{}, nil
		}
		return nil, fmt.Errorf("serpapi: %s", msg)
	}

	found := hits(doc.Get("organic_results"), func(item gjson.Result) (Hit, bool) {
		link := item.Get("link").String()
		if link == "" {
			return Hit{}, false
		}
		return Hit{
			Title:       item.Get("title").String(),
			URL:         link,
			Description: item.Get("snippet").String(),
			Type:        core.SearchResultWeb,
			Score:       -1,
		}, true
	})

	total := int(doc.Get("search_information.total_results").Int())
	if total < len(found) {
		total = len(found)
	}
	return &BackendResult{Hits: found, Total: total}, nil
}
