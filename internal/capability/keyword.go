package capability

import (
	"context"
	"strings"
)

// Lexicons for the built-in scorers. These are deliberately small and
// auditable; swap in a model-backed scorer for anything serious.
var goodKeywords = []string{
	"growth", "increase", "improved", "record", "strong", "profitable",
	"resilient", "positive", "expansion", "innovation", "opportunity",
	"beat", "exceeded", "surpassed",
}

var badKeywords = []string{
	"decline", "decrease", "loss", "risk", "fraud", "weakness",
	"material weakness", "litigation", "probe", "investigation",
	"non-compliance", "violation", "breach", "impairment", "downgrade",
}

var riskLexicon = map[string][]string{
	"compliance":  {"non-compliance", "violation", "breach", "litigation", "investigation", "probe", "fraud", "penalty", "sanction"},
	"market":      {"competition", "volatility", "downgrade", "demand decline", "pricing pressure", "macroeconomic", "recession", "currency"},
	"operational": {"material weakness", "impairment", "disruption", "shortage", "outage", "recall", "attrition", "capacity constraint"},
}

var shenaniganKeywords = []string{
	"restatement", "aggressive accounting", "off-balance", "related party",
	"channel stuffing", "cookie jar", "one-time gain", "revenue recognition",
	"going concern", "material weakness",
}

// SplitSentences breaks text on sentence terminators and newlines. It is a
// deliberately simple splitter.
func SplitSentences(text string) []string {
	var parts []string
	var buf strings.Builder
	for _, ch := range text {
		buf.WriteRune(ch)
		switch ch {
		case '.', '!', '?', '\n':
			if s := strings.TrimSpace(buf.String()); s != "" {
				parts = append(parts, s)
			}
			buf.Reset()
		}
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		parts = append(parts, s)
	}
	return parts
}

// GoodBadPoints classifies sentences by the good/bad lexicons, capping each
// list at 20. A sentence hitting both lexicons counts as bad.
func GoodBadPoints(text string) (good, bad []string) {
	for _, s := range SplitSentences(text) {
		ls := strings.ToLower(s)
		goodHit := containsAny(ls, goodKeywords)
		badHit := containsAny(ls, badKeywords)
		switch {
		case badHit:
			if len(bad) < 20 {
				bad = append(bad, s)
			}
		case goodHit:
			if len(good) < 20 {
				good = append(good, s)
			}
		}
	}
	return good, bad
}

func containsAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func countHits(lower string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		n += strings.Count(lower, k)
	}
	return n
}

// KeywordSentiment scores sentiment from good/bad keyword frequencies.
// Text with no lexicon hits scores fully neutral.
type KeywordSentiment struct{}

func (KeywordSentiment) ScoreSentiment(_ context.Context, text string) (SentimentScore, error) {
	lower := strings.ToLower(text)
	good := countHits(lower, goodKeywords)
	bad := countHits(lower, badKeywords)
	if good == 0 && bad == 0 {
		return SentimentScore{Neutral: 1.0, Label: "neutral"}, nil
	}

	total := float64(good + bad)
	score := SentimentScore{
		Positive: float64(good) / total,
		Negative: float64(bad) / total,
	}
	switch {
	case score.Positive > score.Negative:
		score.Label = "positive"
	case score.Negative > score.Positive:
		score.Label = "negative"
	default:
		score.Neutral = 1.0 - score.Positive - score.Negative
		score.Label = "neutral"
	}
	return score, nil
}

// KeywordRisk scores each risk category by lexicon hit count, 0.25 per hit
// capped at 1.0.
type KeywordRisk struct{}

func (KeywordRisk) ScoreRisk(_ context.Context, text string) (RiskScore, error) {
	lower := strings.ToLower(text)
	score := func(category string) float64 {
		v := 0.25 * float64(countHits(lower, riskLexicon[category]))
		if v > 1.0 {
			v = 1.0
		}
		return v
	}
	return RiskScore{
		Compliance:  score("compliance"),
		Market:      score("market"),
		Operational: score("operational"),
	}, nil
}

// KeywordShenanigans estimates manipulation probability from red-flag
// phrases, 0.35 per hit capped at 1.0.
type KeywordShenanigans struct{}

func (KeywordShenanigans) DetectShenanigans(_ context.Context, text string) (float64, error) {
	lower := strings.ToLower(text)
	v := 0.35 * float64(countHits(lower, shenaniganKeywords))
	if v > 1.0 {
		v = 1.0
	}
	return v, nil
}
