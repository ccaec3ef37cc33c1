package agents

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"finsight/internal/blackboard"
	"finsight/internal/capability"
	"finsight/internal/config"
	"finsight/internal/decompose"
	"finsight/internal/document"
	"finsight/internal/kg"
	"finsight/internal/memory"
)

type fixedSentiment struct{ score capability.SentimentScore }

func (f fixedSentiment) ScoreSentiment(context.Context, string) (capability.SentimentScore, error) {
	return f.score, nil
}

type fixedShenanigans struct{ v float64 }

func (f fixedShenanigans) DetectShenanigans(context.Context, string) (float64, error) {
	return f.v, nil
}

type fixedRisk struct{ score capability.RiskScore }

func (f fixedRisk) ScoreRisk(context.Context, string) (capability.RiskScore, error) {
	return f.score, nil
}

type failingRisk struct{}

func (failingRisk) ScoreRisk(context.Context, string) (capability.RiskScore, error) {
	return capability.RiskScore{}, errors.New("model offline")
}

func TestSentimentAgentDegradesWithoutCapabilities(t *testing.T) {
	board := blackboard.New()
	graph := kg.New(t.TempDir())
	agent := NewSentimentAgent("mdna", board, graph, capability.Set{})

	result, err := agent.Process(context.Background(), "Plain narrative text.", TaskContext{TaskID: "t1", ChunkID: "chunk_0"})
	require.NoError(t, err)

	assert.Equal(t, 0.6, result.Confidence)
	assert.Contains(t, result.Errors, "sentiment scorer unavailable, using defaults")
	assert.Contains(t, result.Errors, "shenanigan detection unavailable")

	// Neutral default: positive 0 + 0.5 * neutral 1.0.
	assert.Equal(t, 0.5, result.Output["sentiment_score"])
	assert.Equal(t, false, result.Output["high_risk"])

	findings := board.SectionFindings("mdna")["sentiment_analysis"]
	assert.Len(t, findings, 1)
}

func TestSentimentAgentDiscountsHighShenaniganScore(t *testing.T) {
	board := blackboard.New()
	graph := kg.New(t.TempDir())
	agent := NewSentimentAgent("mdna", board, graph, capability.Set{
		Sentiment:   fixedSentiment{capability.SentimentScore{Positive: 1.0, Label: "positive"}},
		Shenanigans: fixedShenanigans{0.9},
	})

	result, err := agent.Process(context.Background(), "Record growth driven by a restatement.", TaskContext{TaskID: "t1"})
	require.NoError(t, err)

	assert.Equal(t, 0.9, result.Confidence)
	assert.Equal(t, true, result.Output["high_risk"])
	assert.InDelta(t, 0.7, result.Output["sentiment_score"].(float64), 1e-9)
	assert.True(t, strings.HasPrefix(result.Output["overall_assessment"].(string), "CAUTION:"))
}

func TestRiskAgentCombinesSources(t *testing.T) {
	board := blackboard.New()
	graph := kg.New(t.TempDir())
	agent := NewRiskAgent("mdna", board, graph, capability.Set{
		Risk: fixedRisk{capability.RiskScore{Compliance: 0.8}},
	})

	content := "A data breach caused a significant loss this quarter."
	result, err := agent.Process(context.Background(), content, TaskContext{TaskID: "t1", ChunkID: "chunk_0"})
	require.NoError(t, err)

	assert.Equal(t, 0.85, result.Confidence)
	assert.Empty(t, result.Errors)

	// Model compliance (0.8), plus pattern hits for compliance/breach,
	// financial/loss, and cyber/breach. Dedupe is per (type, source), so
	// model and pattern compliance risks both survive.
	assert.Equal(t, 4, result.Output["total_risks_identified"])

	high := result.Output["high_priority_risks"].([]blackboard.Risk)
	require.Len(t, high, 1)
	assert.Equal(t, "compliance", high[0].Type)
	assert.Equal(t, "model", high[0].Source)

	assert.Len(t, board.SectionRisks()["mdna"], 4)
}

func TestRiskAgentDegradesOnScorerError(t *testing.T) {
	board := blackboard.New()
	graph := kg.New(t.TempDir())
	agent := NewRiskAgent("mdna", board, graph, capability.Set{Risk: failingRisk{}})

	result, err := agent.Process(context.Background(), "No hazards here.", TaskContext{TaskID: "t1"})
	require.NoError(t, err)

	assert.Equal(t, 0.7, result.Confidence)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "risk scoring failed")
	assert.Equal(t, 0, result.Output["total_risks_identified"])
}

func TestMetricsAgentExtractsFromText(t *testing.T) {
	board := blackboard.New()
	graph := kg.New(t.TempDir())
	agent := NewMetricsAgent("financial_statements", board, graph, capability.Set{})

	content := "The company reported $5.2 billion in revenue and 25% growth with an 18% margin."
	result, err := agent.Process(context.Background(), content, TaskContext{TaskID: "t1", ChunkID: "chunk_0"})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Output["total_metrics"])

	key := result.Output["key_metrics"].([]blackboard.Metric)
	require.Len(t, key, 3)
	types := make(map[string]string)
	for _, m := range key {
		types[m.Type] = m.Value
	}
	assert.Equal(t, "5.2", types["revenue"])
	assert.Equal(t, "25", types["growth_rate"])
	assert.Equal(t, "18", types["margin"])

	assert.Len(t, board.SectionMetrics()["financial_statements"], 3)
}

func TestMetricsAgentPullsGraphEntities(t *testing.T) {
	board := blackboard.New()
	graph := kg.New(t.TempDir())
	graph.AddEntity(kg.Entity{
		ID:         kg.EntityID(kg.TypeKPI, "Return on Equity"),
		Type:       kg.TypeKPI,
		Name:       "Return on Equity",
		Properties: map[string]string{"value": "14%"},
		References: []string{"chunk_0"},
	})

	agent := NewMetricsAgent("mdna", board, graph, capability.Set{})
	result, err := agent.Process(context.Background(), "narrative only", TaskContext{TaskID: "t1", ChunkID: "chunk_0"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Output["total_metrics"])
	metrics := board.SectionMetrics()["mdna"]
	require.Len(t, metrics, 1)
	assert.Equal(t, "knowledge_graph", metrics[0].Source)
	assert.Equal(t, "Return on Equity", metrics[0].Name)
}

func TestSectionAgentFanOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	board := blackboard.New()
	graph := kg.New(t.TempDir())
	cfg := *config.Default()
	sa := NewSectionAgent(document.SectionFinancialStatements, board, graph, nil, nil, capability.Defaults(), cfg)

	chunk := document.Chunk{
		ID:      "chunk_0",
		Content: "The balance sheet shows strong growth and a contained breach incident.",
	}
	tasks := []blackboard.Task{
		{ID: board.AddTask(decompose.Task{Type: decompose.TaskFinancialAnalysis, Content: chunk.Content}),
			Spec: decompose.Task{Type: decompose.TaskFinancialAnalysis, Content: chunk.Content}},
		{ID: board.AddTask(decompose.Task{Type: "unmapped_category", Content: chunk.Content}),
			Spec: decompose.Task{Type: "unmapped_category", Content: chunk.Content}},
	}

	results := sa.ProcessTasks(context.Background(), tasks, chunk)

	// Two tasks plus the always-run memory coordination pass.
	require.Len(t, results, 3)

	financial := results[tasks[0].ID]
	require.Len(t, financial.AgentRuns, 2)
	for _, run := range financial.AgentRuns {
		assert.True(t, run.Success, "agent %s: %s", run.Agent, run.Error)
	}

	fallback := results[tasks[1].ID]
	require.Len(t, fallback.AgentRuns, 1)
	assert.Equal(t, "sentiment", fallback.AgentRuns[0].Agent)

	mem := results["memory_coordination"]
	require.Len(t, mem.AgentRuns, 1)
	assert.True(t, mem.AgentRuns[0].Success)

	assert.True(t, board.IsTaskCompleted(tasks[0].ID))
	assert.True(t, board.IsTaskCompleted(tasks[1].ID))
	assert.Equal(t, 0, len(board.PendingTasks()))
}

func TestSectionAgentRecordsRecentActivity(t *testing.T) {
	board := blackboard.New()
	graph := kg.New(t.TempDir())

	longTerm, err := memory.OpenLongTerm(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { longTerm.Close() })

	cfg := *config.Default()
	sa := NewSectionAgent(document.SectionFinancialStatements, board, graph, longTerm, nil, capability.Defaults(), cfg)

	chunk := document.Chunk{ID: "chunk_0", Content: "The balance sheet shows strong growth."}
	tasks := []blackboard.Task{
		{ID: board.AddTask(decompose.Task{Type: decompose.TaskFinancialAnalysis, Content: chunk.Content}),
			Spec: decompose.Task{Type: decompose.TaskFinancialAnalysis, Content: chunk.Content}},
	}
	sa.ProcessTasks(context.Background(), tasks, chunk)

	// The coordination pass lands the task activity in long-term memory.
	records, err := longTerm.QueryRecent("financial_statements", "financial_statements", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Value["recent_activity"], "financial_analysis on chunk_0")
}

type slowAgent struct{ delay time.Duration }

func (s slowAgent) Name() string { return "slow" }

func (s slowAgent) Process(ctx context.Context, _ string, _ TaskContext) (Result, error) {
	select {
	case <-time.After(s.delay):
		return Result{AgentName: "slow"}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func TestRunSubAgentTimeout(t *testing.T) {
	board := blackboard.New()
	graph := kg.New(t.TempDir())
	cfg := *config.Default()
	cfg.Analysis.SubAgentTimeout = "20ms"
	sa := NewSectionAgent(document.SectionOther, board, graph, nil, nil, capability.Defaults(), cfg)

	run := sa.runSubAgent(context.Background(), slowAgent{delay: time.Second}, "slow", "text", TaskContext{TaskID: "t1"})

	assert.False(t, run.Success)
	assert.Contains(t, run.Error, "timed out")
	require.NotEmpty(t, board.Warnings())
	// Give the abandoned goroutine's select a moment to observe cancellation.
	time.Sleep(30 * time.Millisecond)
}
