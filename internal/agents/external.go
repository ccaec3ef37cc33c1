package agents

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"finsight/internal/blackboard"
	"finsight/internal/capability"
	"finsight/internal/config"
	"finsight/internal/kg"
)

// properNounPattern matches capitalized word runs that look like company
// names. A named-entity model would do better; this is good enough to seed
// external lookups.
var properNounPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)

// ExternalAgent enriches the analysis with web, market, and news context.
// Every capability is feature-flagged and failures never fail the task.
type ExternalAgent struct {
	base
	web    capability.WebSearcher
	market capability.MarketDataProvider
	news   capability.NewsProvider
	flags  config.CapabilitiesConfig
}

// NewExternalAgent wires an external-intelligence sub-agent for a section.
func NewExternalAgent(section string, board *blackboard.Board, graph *kg.Graph, caps capability.Set, flags config.CapabilitiesConfig) *ExternalAgent {
	return &ExternalAgent{
		base:   base{name: section + "_external", section: section, board: board, graph: graph},
		web:    caps.Web,
		market: caps.Market,
		news:   caps.News,
		flags:  flags,
	}
}

func (a *ExternalAgent) Process(ctx context.Context, content string, tc TaskContext) (Result, error) {
	start := time.Now()

	entities := searchEntities(content)

	// The three capability families are independent network lookups; run
	// them concurrently. Each goroutine owns its own result slot.
	var (
		webResults map[string][]capability.SearchResult
		quotes     map[string]capability.MarketQuote
		news       map[string][]capability.NewsItem

		mu   sync.Mutex
		errs []string
	)
	note := func(format string, args ...any) {
		mu.Lock()
		errs = append(errs, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.flags.EnableWebSearch && a.web != nil {
		g.Go(func() error {
			results := make(map[string][]capability.SearchResult)
			for _, entity := range limit(entities, 3) {
				hits, err := a.web.Search(gctx, entity, 5)
				if err != nil {
					note("web search failed: %v", err)
					continue
				}
				results[entity] = hits
			}
			webResults = results
			return nil
		})
	}
	if a.flags.EnableMarketData && a.market != nil {
		g.Go(func() error {
			out := make(map[string]capability.MarketQuote)
			for _, entity := range limit(entities, 2) {
				q, err := a.market.Quote(gctx, entity)
				if err != nil {
					note("market data failed: %v", err)
					continue
				}
				out[entity] = q
			}
			quotes = out
			return nil
		})
	}
	if a.flags.EnableNews && a.news != nil {
		g.Go(func() error {
			out := make(map[string][]capability.NewsItem)
			for _, entity := range limit(entities, 2) {
				items, err := a.news.RecentNews(gctx, entity, 10)
				if err != nil {
					note("news fetch failed: %v", err)
					continue
				}
				out[entity] = items
			}
			news = out
			return nil
		})
	}
	_ = g.Wait() // lookup failures land in errs, not as task errors

	external := make(map[string]any)
	if len(webResults) > 0 {
		external["web_results"] = webResults
	}
	if len(quotes) > 0 {
		external["market_data"] = quotes
	}
	if len(news) > 0 {
		external["news"] = news
	}

	output := map[string]any{
		"entities_searched": entities,
		"external_data":     external,
		"insights":          externalInsights(external),
	}

	confidence := 0.3
	if len(external) > 0 {
		confidence = 0.7
	}
	return Result{
		AgentName:     a.name,
		TaskID:        tc.TaskID,
		Output:        output,
		Confidence:    confidence,
		Metadata:      map[string]string{"chunk_id": tc.ChunkID},
		ExecutionTime: time.Since(start),
		Errors:        errs,
	}, nil
}

// searchEntities takes the first five distinct proper-noun runs, sorted for
// determinism.
func searchEntities(content string) []string {
	seen := make(map[string]bool)
	var entities []string
	for _, m := range properNounPattern.FindAllString(content, -1) {
		if seen[m] {
			continue
		}
		seen[m] = true
		entities = append(entities, m)
		if len(entities) == 5 {
			break
		}
	}
	sort.Strings(entities)
	return entities
}

func externalInsights(external map[string]any) []string {
	var insights []string

	if results, ok := external["web_results"].(map[string][]capability.SearchResult); ok {
		total := 0
		for _, hits := range results {
			total += len(hits)
		}
		if total > 0 {
			insights = append(insights, fmt.Sprintf("Found %d web references for mentioned entities", total))
		}
	}
	if quotes, ok := external["market_data"].(map[string]capability.MarketQuote); ok {
		symbols := make([]string, 0, len(quotes))
		for s := range quotes {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		for _, s := range symbols {
			insights = append(insights, fmt.Sprintf("%s trading at %.2f (%+.2f)", s, quotes[s].Price, quotes[s].Change))
		}
	}
	if news, ok := external["news"].(map[string][]capability.NewsItem); ok {
		total := 0
		for _, items := range news {
			total += len(items)
		}
		if total > 0 {
			insights = append(insights, fmt.Sprintf("Found %d recent news articles", total))
		}
	}
	return insights
}

func limit(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
