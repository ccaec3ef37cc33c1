package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/blackboard"
	"finsight/internal/capability"
	"finsight/internal/config"
	"finsight/internal/kg"
)

type stubSearcher struct{ queries []string }

func (s *stubSearcher) Search(_ context.Context, query string, _ int) ([]capability.SearchResult, error) {
	s.queries = append(s.queries, query)
	return []capability.SearchResult{{Title: query, Source: "stub"}}, nil
}

type stubMarket struct{}

func (stubMarket) Quote(_ context.Context, symbol string) (capability.MarketQuote, error) {
	return capability.MarketQuote{Symbol: symbol, Price: 100, Change: 1.5}, nil
}

type failingNews struct{}

func (failingNews) RecentNews(context.Context, string, int) ([]capability.NewsItem, error) {
	return nil, errors.New("feed unreachable")
}

const externalContent = "Acme Corp partnered with Beta Industries, Gamma Holdings, " +
	"Delta Systems and Epsilon Group this year."

func TestExternalAgentAllFlagsOff(t *testing.T) {
	board := blackboard.New()
	graph := kg.New(t.TempDir())
	agent := NewExternalAgent("mdna", board, graph, capability.Set{Web: &stubSearcher{}},
		config.CapabilitiesConfig{})

	result, err := agent.Process(context.Background(), externalContent, TaskContext{TaskID: "t1"})
	require.NoError(t, err)

	assert.Equal(t, 0.3, result.Confidence)
	assert.Empty(t, result.Output["external_data"])
	assert.Empty(t, result.Errors)
}

func TestExternalAgentEnabledCapabilities(t *testing.T) {
	board := blackboard.New()
	graph := kg.New(t.TempDir())
	web := &stubSearcher{}
	agent := NewExternalAgent("mdna", board, graph,
		capability.Set{Web: web, Market: stubMarket{}, News: failingNews{}},
		config.CapabilitiesConfig{EnableWebSearch: true, EnableMarketData: true, EnableNews: true})

	result, err := agent.Process(context.Background(), externalContent, TaskContext{TaskID: "t1"})
	require.NoError(t, err)

	// Web and market data succeeded; the failing news feed only adds notes.
	assert.Equal(t, 0.7, result.Confidence)
	assert.Len(t, web.queries, 3, "web lookups capped at three entities")

	external := result.Output["external_data"].(map[string]any)
	assert.Contains(t, external, "web_results")
	assert.Contains(t, external, "market_data")
	assert.NotContains(t, external, "news")

	require.Len(t, result.Errors, 2, "one note per news entity attempted")
	for _, e := range result.Errors {
		assert.Contains(t, e, "news fetch failed")
	}

	assert.NotEmpty(t, result.Output["insights"])
}

func TestSearchEntitiesDistinctAndSorted(t *testing.T) {
	entities := searchEntities("Acme Corp met Acme Corp and Beta Industries near Zurich Lake City Town Extra More Words")
	assert.LessOrEqual(t, len(entities), 5)
	assert.Contains(t, entities, "Acme Corp")
	// Sorted, deduplicated.
	for i := 1; i < len(entities); i++ {
		assert.Less(t, entities[i-1], entities[i])
	}
}
