// Package capability defines the pluggable analysis capabilities the
// sub-agents call into. Each capability is an interface with a neutral
// default, so the pipeline degrades gracefully when a backend is not wired
// up or a feature flag is off.
package capability

import "context"

// SentimentScore is a probability distribution over sentiment labels plus
// the winning label.
type SentimentScore struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
	Label    string  `json:"label"`
}

// RiskScore holds per-category risk probabilities in [0,1].
type RiskScore struct {
	Compliance  float64 `json:"compliance"`
	Market      float64 `json:"market"`
	Operational float64 `json:"operational"`
}

// Max returns the largest category score.
func (r RiskScore) Max() float64 {
	m := r.Compliance
	if r.Market > m {
		m = r.Market
	}
	if r.Operational > m {
		m = r.Operational
	}
	return m
}

// SentimentScorer scores the sentiment of a text passage.
type SentimentScorer interface {
	ScoreSentiment(ctx context.Context, text string) (SentimentScore, error)
}

// RiskScorer scores per-category risk signals in a text passage.
type RiskScorer interface {
	ScoreRisk(ctx context.Context, text string) (RiskScore, error)
}

// ShenaniganDetector estimates the probability of accounting manipulation
// signals in a text passage.
type ShenaniganDetector interface {
	DetectShenanigans(ctx context.Context, text string) (float64, error)
}

// SearchResult is one hit from an external search capability.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// WebSearcher serves external context lookups.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// MarketQuote is a point-in-time market observation for a ticker.
type MarketQuote struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Change   float64 `json:"change"`
	Currency string  `json:"currency"`
}

// MarketDataProvider serves market quotes.
type MarketDataProvider interface {
	Quote(ctx context.Context, symbol string) (MarketQuote, error)
}

// NewsItem is one headline from a news capability.
type NewsItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at,omitempty"`
}

// NewsProvider serves recent news for a query.
type NewsProvider interface {
	RecentNews(ctx context.Context, query string, maxItems int) ([]NewsItem, error)
}

// Set bundles the capabilities handed to the section agents. Nil fields
// mean the capability is unavailable.
type Set struct {
	Sentiment   SentimentScorer
	Risk        RiskScorer
	Shenanigans ShenaniganDetector
	Web         WebSearcher
	Market      MarketDataProvider
	News        NewsProvider
}

// Defaults returns a set backed by the built-in keyword scorers with no
// external capabilities.
func Defaults() Set {
	return Set{
		Sentiment:   KeywordSentiment{},
		Risk:        KeywordRisk{},
		Shenanigans: KeywordShenanigans{},
	}
}

// NeutralSentiment always reports a fully neutral distribution. It stands
// in when no scorer is configured.
type NeutralSentiment struct{}

func (NeutralSentiment) ScoreSentiment(context.Context, string) (SentimentScore, error) {
	return SentimentScore{Neutral: 1.0, Label: "neutral"}, nil
}

// NeutralRisk always reports zero risk in every category.
type NeutralRisk struct{}

func (NeutralRisk) ScoreRisk(context.Context, string) (RiskScore, error) {
	return RiskScore{}, nil
}

// NeutralShenanigans always reports zero manipulation probability.
type NeutralShenanigans struct{}

func (NeutralShenanigans) DetectShenanigans(context.Context, string) (float64, error) {
	return 0, nil
}
