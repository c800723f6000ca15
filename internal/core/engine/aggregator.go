package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/contextlens/contextlens/internal/core"
	"github.com/contextlens/contextlens/internal/observability"
	"github.com/contextlens/contextlens/internal/search"
)

// ErrNoQueries is returned by Gather when no usable query is supplied.
var ErrNoQueries = errors.New("no search queries")

// Aggregator fans queries out to the Search Gateway and merges the results.
type Aggregator struct {
	Search search.Gateway
}

// Gather runs every query concurrently and returns at most limit results:
// each query contributes up to ceil(limit/len(queries)) results in backend
// order, queries are flattened in input order, and a URL seen earlier wins.
// Failed queries are skipped; an error is returned only when all failed,
// together with a nil slice.
func (a *Aggregator) Gather(ctx context.Context, queries []string, limit int, domain *core.DomainContext) ([]core.SearchResult, error) {
	if a == nil || a.Search == nil {
		return nil, errors.New("search gateway not configured")
	}
	queries = CleanQueries(queries)
	if len(queries) == 0 {
		return nil, ErrNoQueries
	}
	if limit <= 0 {
		limit = core.DefaultMaxSearchResults
	}
	perQuery := (limit + len(queries) - 1) / len(queries)

	perIndex := make([][]core.SearchResult, len(queries))
	errs := make([]error, len(queries))

	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(i int, query string) {
			defer wg.Done()
			opts := search.Options{Count: perQuery}
			var (
				resp *search.Response
				err  error
			)
			if domain.IsZero() {
				resp, err = a.Search.Search(ctx, query, opts)
			} else {
				resp, err = a.Search.ContextSearch(ctx, query, domain, opts)
			}
			if err != nil {
				errs[i] = fmt.Errorf("query %q: %w", query, err)
				return
			}
			if resp == nil {
				return
			}
			results := resp.Results
			if len(results) > perQuery {
				results = results[:perQuery]
			}
			perIndex[i] = results
		}(i, query)
	}
	wg.Wait()

	var merr *multierror.Error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if merr != nil {
		observability.Warn("Search queries failed",
			zap.String("stage", string(core.StageAugmentation)),
			zap.Int("failed", merr.Len()),
			zap.Int("total", len(queries)),
			zap.Error(merr))
		if merr.Len() == len(queries) {
			return nil, merr.ErrorOrNil()
		}
	}

	seen := make(map[string]struct{}, limit)
	out := make([]core.SearchResult, 0, limit)
	for _, results := range perIndex {
		for _, result := range results {
			if len(out) == limit {
				return out, nil
			}
			if result.URL != "" {
				if _, dup := seen[result.URL]; dup {
					continue
				}
				seen[result.URL] = struct{}{}
			}
			out = append(out, result)
		}
	}
	return out, nil
}
