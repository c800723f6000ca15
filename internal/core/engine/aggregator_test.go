package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextlens/contextlens/internal/core"
)

func TestAggregatorPerQueryCapAndOrder(t *testing.T) {
	gw := &fakeSearch{}
	agg := &Aggregator{Search: gw}

	results, err := agg.Gather(context.Background(), []string{"alpha", "beta", "gamma"}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 10)

	// ceil(10/3) = 4 per query, flattened in query order, capped at 10.
	assert.Equal(t, "alpha #1", results[0].Title)
	assert.Equal(t, "alpha #4", results[3].Title)
	assert.Equal(t, "beta #1", results[4].Title)
	assert.Equal(t, "gamma #1", results[8].Title)
	assert.Equal(t, "gamma #2", results[9].Title)
	for _, count := range gw.counts {
		assert.Equal(t, 4, count)
	}
}

func TestAggregatorDedupesByURL(t *testing.T) {
	gw := &fakeSearch{perQuery: 2, shared: []string{"https://go.dev"}}
	agg := &Aggregator{Search: gw}

	results, err := agg.Gather(context.Background(), []string{"a", "b"}, 10, nil)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, r := range results {
		seen[r.URL]++
	}
	assert.Equal(t, 1, seen["https://go.dev"])
	assert.Equal(t, "https://go.dev", results[0].URL)
	assert.Len(t, results, 5)
}

func TestAggregatorSkipsFailedQuery(t *testing.T) {
	gw := &fakeSearch{perQuery: 2, failQuery: "beta"}
	agg := &Aggregator{Search: gw}

	results, err := agg.Gather(context.Background(), []string{"alpha", "beta", "gamma"}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "alpha #1", results[0].Title)
	assert.Equal(t, "gamma #1", results[2].Title)
}

func TestAggregatorAllFailed(t *testing.T) {
	agg := &Aggregator{Search: &fakeSearch{failAll: true}}
	results, err := agg.Gather(context.Background(), []string{"a", "b"}, 10, nil)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Contains(t, err.Error(), "2 errors occurred")
}

func TestAggregatorNilResponseIsEmpty(t *testing.T) {
	agg := &Aggregator{Search: &fakeSearch{nilResp: true}}
	results, err := agg.Gather(context.Background(), []string{"a"}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAggregatorUsesContextSearchWithDomain(t *testing.T) {
	gw := &fakeSearch{perQuery: 1}
	agg := &Aggregator{Search: gw}

	_, err := agg.Gather(context.Background(), []string{"hooks cleanup"}, 5, &core.DomainContext{Framework: "React"})
	require.NoError(t, err)
	assert.Empty(t, gw.queries)
	assert.Equal(t, []string{"hooks cleanup React"}, gw.contextQueries)

	_, err = agg.Gather(context.Background(), []string{"plain"}, 5, &core.DomainContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"plain"}, gw.queries)
}

func TestAggregatorRejectsEmptyInput(t *testing.T) {
	agg := &Aggregator{Search: &fakeSearch{}}
	_, err := agg.Gather(context.Background(), []string{" ", ""}, 10, nil)
	require.ErrorIs(t, err, ErrNoQueries)

	results, err := agg.Gather(context.Background(), []string{"q"}, 0, nil)
	require.NoError(t, err)
	assert.Len(t, results, core.DefaultMaxSearchResults)
}
