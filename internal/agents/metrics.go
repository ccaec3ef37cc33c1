package agents

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"finsight/internal/blackboard"
	"finsight/internal/capability"
	"finsight/internal/kg"
)

// metricPatterns pair an extraction regex with the metric type it yields.
// Group 1 is the value, group 2 the optional unit.
var metricPatterns = []struct {
	re         *regexp.Regexp
	metricType string
}{
	{regexp.MustCompile(`(?i)\$?([\d,]+\.?\d*)\s*(million|billion|M|B)?\s*(?:in\s+)?(?:revenue|sales)`), "revenue"},
	{regexp.MustCompile(`(?i)\$?([\d,]+\.?\d*)\s*(million|billion|M|B)?\s*(?:in\s+)?(?:profit|earnings)`), "profit"},
	{regexp.MustCompile(`(?i)([\d.]+)%\s*(growth|increase|decrease)`), "growth_rate"},
	{regexp.MustCompile(`(?i)([\d.]+)%\s*(margin)`), "margin"},
	{regexp.MustCompile(`(?i)([\d.]+)[x\s]*(P/E|PE)`), "pe_ratio"},
}

// keyMetricTypes are the metric types surfaced as headline figures.
var keyMetricTypes = []string{"revenue", "profit", "growth_rate", "margin"}

// MetricsAgent extracts KPIs from text patterns and the knowledge graph.
type MetricsAgent struct {
	base
}

// NewMetricsAgent wires a metrics sub-agent for a section.
func NewMetricsAgent(section string, board *blackboard.Board, graph *kg.Graph, _ capability.Set) *MetricsAgent {
	return &MetricsAgent{
		base: base{name: section + "_metrics", section: section, board: board, graph: graph},
	}
}

func (a *MetricsAgent) Process(_ context.Context, content string, tc TaskContext) (Result, error) {
	start := time.Now()

	metrics := combineMetrics(extractTextMetrics(content), a.graphMetrics(tc.ChunkID))
	categorized := categorizeMetrics(metrics)

	for _, m := range metrics {
		a.board.AddMetric(a.section, m)
	}

	output := map[string]any{
		"metrics":        categorized,
		"key_metrics":    keyMetrics(metrics),
		"total_metrics":  len(metrics),
		"metric_summary": metricSummary(categorized),
	}

	return Result{
		AgentName:     a.name,
		TaskID:        tc.TaskID,
		Output:        output,
		Confidence:    0.9,
		Metadata:      map[string]string{"chunk_id": tc.ChunkID},
		ExecutionTime: time.Since(start),
	}, nil
}

// extractTextMetrics runs the extraction patterns, keeping 30 bytes of
// context on either side of each match.
func extractTextMetrics(content string) []blackboard.Metric {
	var metrics []blackboard.Metric
	for _, p := range metricPatterns {
		for _, idx := range p.re.FindAllStringSubmatchIndex(content, -1) {
			value := content[idx[2]:idx[3]]
			unit := ""
			if idx[4] >= 0 {
				unit = content[idx[4]:idx[5]]
			}
			ctxStart := idx[0] - 30
			if ctxStart < 0 {
				ctxStart = 0
			}
			ctxEnd := idx[1] + 30
			if ctxEnd > len(content) {
				ctxEnd = len(content)
			}
			metrics = append(metrics, blackboard.Metric{
				Type:    p.metricType,
				Value:   value,
				Unit:    unit,
				Context: content[ctxStart:ctxEnd],
				Source:  "text_extraction",
			})
		}
	}
	return metrics
}

// graphMetrics pulls metric-family entities referenced by this chunk.
func (a *MetricsAgent) graphMetrics(chunkID string) []blackboard.Metric {
	var metrics []blackboard.Metric
	for _, entityType := range []string{kg.TypeMetric, kg.TypeKPI, kg.TypeFinancialMetric} {
		for _, e := range a.graph.EntitiesByType(entityType) {
			for _, ref := range e.References {
				if ref == chunkID {
					metrics = append(metrics, blackboard.Metric{
						Type:     strings.ToLower(e.Type),
						Value:    e.Properties["value"],
						Name:     e.Name,
						Source:   "knowledge_graph",
						EntityID: e.ID,
					})
					break
				}
			}
		}
	}
	return metrics
}

// combineMetrics deduplicates by (type, value), text extractions first.
func combineMetrics(text, graph []blackboard.Metric) []blackboard.Metric {
	seen := make(map[string]bool)
	var unique []blackboard.Metric
	for _, m := range append(append([]blackboard.Metric(nil), text...), graph...) {
		key := m.Type + "_" + m.Value
		if !seen[key] {
			seen[key] = true
			unique = append(unique, m)
		}
	}
	return unique
}

func categorizeMetrics(metrics []blackboard.Metric) map[string][]blackboard.Metric {
	categories := map[string][]blackboard.Metric{
		"financial":   {},
		"operational": {},
		"growth":      {},
		"efficiency":  {},
		"other":       {},
	}
	for _, m := range metrics {
		t := strings.ToLower(m.Type)
		switch {
		case containsAnyOf(t, "revenue", "profit", "earnings", "cash"):
			categories["financial"] = append(categories["financial"], m)
		case containsAnyOf(t, "growth", "increase", "decrease"):
			categories["growth"] = append(categories["growth"], m)
		case containsAnyOf(t, "margin", "ratio", "efficiency"):
			categories["efficiency"] = append(categories["efficiency"], m)
		case containsAnyOf(t, "production", "output", "volume"):
			categories["operational"] = append(categories["operational"], m)
		default:
			categories["other"] = append(categories["other"], m)
		}
	}
	return categories
}

// keyMetrics surfaces up to 10 metrics of the headline types.
func keyMetrics(metrics []blackboard.Metric) []blackboard.Metric {
	var key []blackboard.Metric
	for _, m := range metrics {
		if containsAnyOf(m.Type, keyMetricTypes...) {
			key = append(key, m)
			if len(key) == 10 {
				break
			}
		}
	}
	return key
}

func metricSummary(categorized map[string][]blackboard.Metric) string {
	total := 0
	names := make([]string, 0, len(categorized))
	for name, ms := range categorized {
		total += len(ms)
		if len(ms) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%d %s", len(categorized[name]), name))
	}
	return fmt.Sprintf("Extracted %d metrics: %s", total, strings.Join(parts, ", "))
}

func containsAnyOf(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
