package report

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/blackboard"
	"finsight/internal/capability"
	"finsight/internal/kg"
)

func TestGenerateCompilesReport(t *testing.T) {
	board := blackboard.New()
	graph := kg.New(t.TempDir())

	companyID := graph.AddEntity(kg.Entity{
		ID:         kg.EntityID(kg.TypeCompany, "Acme Corp"),
		Type:       kg.TypeCompany,
		Name:       "Acme Corp",
		References: []string{"chunk_0"},
	})
	metricID := graph.AddEntity(kg.Entity{
		ID:         kg.EntityID(kg.TypeMetric, "25%"),
		Type:       kg.TypeMetric,
		Name:       "25%",
		References: []string{"chunk_0"},
	})
	graph.AddRelationship(kg.Relationship{
		ID:         kg.RelationshipID(companyID, kg.RelIncreasedBy, metricID),
		SourceID:   companyID,
		TargetID:   metricID,
		Type:       kg.RelIncreasedBy,
		Confidence: 0.8,
		References: []string{"chunk_0"},
	})

	board.AddSectionSummary("financial_statements", "Strong quarter overall.")
	board.AddMetric("financial_statements", blackboard.Metric{Type: "revenue", Value: "5.2", Unit: "billion"})
	board.AddMetric("financial_statements", blackboard.Metric{Type: "growth_rate", Value: "25", Unit: "increase"})
	board.AddRisk("mdna", blackboard.Risk{Type: "compliance", Priority: "high", Source: "model"})
	board.AddRisk("mdna", blackboard.Risk{Type: "cyber", Priority: "medium", Source: "pattern_detection"})
	board.AddOpportunity("mdna", blackboard.Opportunity{Description: "Expansion into new markets"})
	board.AddSectionFinding("financial_statements", "sentiment_analysis", map[string]any{
		"sentiment": capability.SentimentScore{Positive: 0.8, Label: "positive"},
	})
	board.AddSectionFinding("corporate_governance", "governance_esg", map[string]any{
		"governance": map[string][]string{"board_members": {"Jane Doe"}},
		"esg":        map[string][]string{"environmental": {"carbon"}},
		"sdg":        []string{"SDG 13"},
	})

	gen := NewFinalGenerator(board, graph)
	report, err := gen.Generate()
	require.NoError(t, err)

	assert.Contains(t, report.ExecutiveSummary, "Acme Corp")
	assert.Contains(t, report.ExecutiveSummary, "Identified 2 risks")
	assert.Contains(t, report.ExecutiveSummary, "Found 1 opportunities")
	assert.Contains(t, report.ExecutiveSummary, "Overall sentiment: positive")
	assert.Contains(t, report.ExecutiveSummary, "revenue: 5.2")

	assert.Len(t, report.KeyMetrics, 2)

	assert.Equal(t, 2, report.RiskAssessment.TotalRisks)
	require.Len(t, report.RiskAssessment.HighPriority, 1)
	assert.Equal(t, "mdna", report.RiskAssessment.HighPriority[0].Section)
	assert.Len(t, report.RiskAssessment.MediumPriority, 1)

	require.Len(t, report.Opportunities, 1)
	assert.Equal(t, "mdna", report.Opportunities[0].Section)

	// One growth metric with an "increase" unit, no concerns.
	assert.Equal(t, "Healthy", report.FinancialHealth.Status)

	assert.Equal(t, []string{"Jane Doe"}, report.GovernanceESG.Governance["board_members"])
	assert.Equal(t, []string{"SDG 13"}, report.GovernanceESG.SDG)

	assert.Equal(t, 2, report.GraphInsights.TotalEntities)
	assert.Equal(t, 1, report.GraphInsights.TotalRelationships)
	assert.NotEmpty(t, report.GraphInsights.KeyEntities)

	// Board carries the rendered report for checkpointing.
	assert.NotEmpty(t, board.GlobalReport())
}

func TestKeyMetricsDedupesAndCaps(t *testing.T) {
	board := blackboard.New()
	graph := kg.New(t.TempDir())

	for i := 0; i < 15; i++ {
		board.AddMetric("financial_statements", blackboard.Metric{Type: "revenue", Value: fmt.Sprintf("%d", i)})
		board.AddMetric("mdna", blackboard.Metric{Type: "revenue", Value: fmt.Sprintf("%d", i)})
	}

	gen := NewFinalGenerator(board, graph)
	report, err := gen.Generate()
	require.NoError(t, err)

	// 30 recorded, 15 distinct (type, value) pairs.
	assert.Len(t, report.KeyMetrics, 15)
}

func TestKeyMetricsCapAtTwenty(t *testing.T) {
	board := blackboard.New()
	graph := kg.New(t.TempDir())

	for i := 0; i < 30; i++ {
		board.AddMetric("financial_statements", blackboard.Metric{Type: "revenue", Value: fmt.Sprintf("%d", i)})
	}

	gen := NewFinalGenerator(board, graph)
	report, err := gen.Generate()
	require.NoError(t, err)
	assert.Len(t, report.KeyMetrics, 20)
}

func TestFinancialHealthStatuses(t *testing.T) {
	cases := []struct {
		name    string
		metrics []blackboard.Metric
		want    string
	}{
		{
			name: "healthy",
			metrics: []blackboard.Metric{
				{Type: "growth_rate", Value: "25", Unit: "increase"},
			},
			want: "Healthy",
		},
		{
			name: "concerning",
			metrics: []blackboard.Metric{
				{Type: "net_loss", Value: "1.2"},
			},
			want: "Concerning",
		},
		{
			name: "stable",
			metrics: []blackboard.Metric{
				{Type: "growth_rate", Value: "25", Unit: "increase"},
				{Type: "net_loss", Value: "1.2"},
			},
			want: "Stable",
		},
		{
			name:    "no signals",
			metrics: nil,
			want:    "Stable",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			board := blackboard.New()
			for _, m := range tc.metrics {
				board.AddMetric("financial_statements", m)
			}
			gen := NewFinalGenerator(board, kg.New(t.TempDir()))
			report, err := gen.Generate()
			require.NoError(t, err)
			assert.Equal(t, tc.want, report.FinancialHealth.Status)
		})
	}
}

func TestRecommendationRules(t *testing.T) {
	board := blackboard.New()
	board.AddRisk("mdna", blackboard.Risk{Type: "compliance", Priority: "high"})
	board.AddRisk("mdna", blackboard.Risk{Type: "cyber", Priority: "high"})
	board.AddMetric("financial_statements", blackboard.Metric{Type: "net_loss", Value: "2"})

	gen := NewFinalGenerator(board, kg.New(t.TempDir()))
	report, err := gen.Generate()
	require.NoError(t, err)

	joined := strings.Join(report.Recommendations, "\n")
	assert.Contains(t, joined, "Address 2 high-priority risks immediately")
	assert.Contains(t, joined, "Review financial strategy and cost structure")
	assert.Contains(t, joined, "Enhance governance disclosure and transparency")
	assert.Contains(t, joined, "Consider adopting SDG framework")
}

func TestRecommendationsWithSDGFocus(t *testing.T) {
	board := blackboard.New()
	board.AddSectionFinding("esg", "governance_esg", map[string]any{
		"governance": map[string][]string{"committees": {"audit committee"}},
		"sdg":        []string{"SDG 7", "SDG 13"},
	})

	gen := NewFinalGenerator(board, kg.New(t.TempDir()))
	report, err := gen.Generate()
	require.NoError(t, err)

	joined := strings.Join(report.Recommendations, "\n")
	assert.Contains(t, joined, "Continue focus on 2 SDG goals")
	assert.NotContains(t, joined, "Enhance governance disclosure")
}

func TestDominantSentimentFromDecodedFindings(t *testing.T) {
	board := blackboard.New()
	// Shape produced when a checkpoint round-trips findings through JSON.
	board.AddSectionFinding("mdna", "sentiment_analysis", map[string]any{
		"sentiment": map[string]any{"label": "negative"},
	})
	board.AddSectionFinding("esg", "sentiment_analysis", map[string]any{
		"sentiment": map[string]any{"label": "negative"},
	})
	board.AddSectionFinding("financial_statements", "sentiment_analysis", map[string]any{
		"sentiment": capability.SentimentScore{Positive: 0.9, Label: "positive"},
	})

	gen := NewFinalGenerator(board, kg.New(t.TempDir()))
	report, err := gen.Generate()
	require.NoError(t, err)
	assert.Contains(t, report.ExecutiveSummary, "Overall sentiment: negative")
}
