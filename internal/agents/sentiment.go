package agents

import (
	"context"
	"fmt"
	"time"

	"finsight/internal/blackboard"
	"finsight/internal/capability"
	"finsight/internal/kg"
)

// highRiskThreshold is the shenanigan probability above which sentiment is
// discounted.
const highRiskThreshold = 0.7

// SentimentAgent scores sentiment and screens for accounting manipulation
// signals.
type SentimentAgent struct {
	base
	scorer   capability.SentimentScorer
	detector capability.ShenaniganDetector
}

// NewSentimentAgent wires a sentiment sub-agent for a section.
func NewSentimentAgent(section string, board *blackboard.Board, graph *kg.Graph, caps capability.Set) *SentimentAgent {
	return &SentimentAgent{
		base:     base{name: section + "_sentiment", section: section, board: board, graph: graph},
		scorer:   caps.Sentiment,
		detector: caps.Shenanigans,
	}
}

func (a *SentimentAgent) Process(ctx context.Context, content string, tc TaskContext) (Result, error) {
	start := time.Now()
	var errs []string

	sentiment := capability.SentimentScore{Neutral: 1.0, Label: "neutral"}
	if a.scorer == nil {
		errs = append(errs, "sentiment scorer unavailable, using defaults")
	} else if s, err := a.scorer.ScoreSentiment(ctx, content); err != nil {
		errs = append(errs, fmt.Sprintf("sentiment scoring failed: %v", err))
	} else {
		sentiment = s
	}

	var shenaniganScore float64
	if a.detector == nil {
		errs = append(errs, "shenanigan detection unavailable")
	} else if v, err := a.detector.DetectShenanigans(ctx, content); err != nil {
		errs = append(errs, fmt.Sprintf("shenanigan detection failed: %v", err))
	} else {
		shenaniganScore = v
	}
	highRisk := shenaniganScore > highRiskThreshold

	// Positive counts fully, neutral half, negative not at all.
	sentimentScore := sentiment.Positive + 0.5*sentiment.Neutral
	if highRisk {
		sentimentScore *= 0.7
	}

	good, bad := capability.GoodBadPoints(content)

	output := map[string]any{
		"sentiment":          sentiment,
		"sentiment_score":    sentimentScore,
		"shenanigan_score":   shenaniganScore,
		"high_risk":          highRisk,
		"good_points":        good,
		"bad_points":         bad,
		"overall_assessment": assessment(sentiment.Label, highRisk),
	}

	a.board.AddSectionFinding(a.section, "sentiment_analysis", output)

	confidence := 0.9
	if len(errs) > 0 {
		confidence = 0.6
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

func assessment(label string, highRisk bool) string {
	switch {
	case highRisk:
		return fmt.Sprintf("CAUTION: %s sentiment with potential financial manipulation indicators detected", label)
	case label == "positive":
		return "Positive sentiment indicating healthy outlook"
	case label == "negative":
		return "Negative sentiment suggesting concerns or challenges"
	default:
		return "Neutral sentiment with balanced tone"
	}
}
