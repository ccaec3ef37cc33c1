package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finsight/internal/blackboard"
	"finsight/internal/capability"
	"finsight/internal/kg"
)

// riskPatterns maps risk categories to their trigger keywords.
var riskPatterns = []struct {
	riskType string
	keywords []string
}{
	{"compliance", []string{"violation", "non-compliance", "breach", "regulatory action"}},
	{"financial", []string{"loss", "impairment", "write-off", "default", "liquidity crisis"}},
	{"operational", []string{"disruption", "failure", "outage", "incident", "breakdown"}},
	{"strategic", []string{"competition", "market share loss", "obsolescence", "disruption"}},
	{"reputational", []string{"scandal", "controversy", "investigation", "lawsuit"}},
	{"cyber", []string{"breach", "hack", "ransomware", "data theft", "cyber attack"}},
}

// RiskAgent combines model, pattern, and knowledge-graph risk signals.
type RiskAgent struct {
	base
	scorer capability.RiskScorer
}

// NewRiskAgent wires a risk sub-agent for a section.
func NewRiskAgent(section string, board *blackboard.Board, graph *kg.Graph, caps capability.Set) *RiskAgent {
	return &RiskAgent{
		base:   base{name: section + "_risk", section: section, board: board, graph: graph},
		scorer: caps.Risk,
	}
}

func (a *RiskAgent) Process(ctx context.Context, content string, tc TaskContext) (Result, error) {
	start := time.Now()
	var errs []string

	var modelScore capability.RiskScore
	if a.scorer == nil {
		errs = append(errs, "risk scorer unavailable")
	} else if s, err := a.scorer.ScoreRisk(ctx, content); err != nil {
		errs = append(errs, fmt.Sprintf("risk scoring failed: %v", err))
	} else {
		modelScore = s
	}

	risks := combineRisks(modelScore, patternRisks(content), a.graphRisks(tc.ChunkID))

	categories := make(map[string][]blackboard.Risk)
	var highPriority []blackboard.Risk
	for _, r := range risks {
		categories[r.Type] = append(categories[r.Type], r)
		if r.Priority == "high" {
			highPriority = append(highPriority, r)
		}
		a.board.AddRisk(a.section, r)
	}

	output := map[string]any{
		"risk_categories":        categories,
		"high_priority_risks":    highPriority,
		"total_risks_identified": len(risks),
		"risk_summary":           riskSummary(len(risks), len(categories), len(highPriority)),
	}

	confidence := 0.85
	if len(errs) > 0 {
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

// patternRisks scans content against the keyword tables. Every matching
// keyword yields a medium-priority risk.
func patternRisks(content string) []blackboard.Risk {
	lower := strings.ToLower(content)
	var risks []blackboard.Risk
	for _, p := range riskPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				risks = append(risks, blackboard.Risk{
					Type:     p.riskType,
					Keyword:  kw,
					Priority: "medium",
					Source:   "pattern_detection",
				})
			}
		}
	}
	return risks
}

// graphRisks pulls RISK entities referenced by this chunk.
func (a *RiskAgent) graphRisks(chunkID string) []blackboard.Risk {
	var risks []blackboard.Risk
	for _, e := range a.graph.EntitiesByType(kg.TypeRisk) {
		for _, ref := range e.References {
			if ref == chunkID {
				risks = append(risks, blackboard.Risk{
					Type:        "kg_identified",
					Description: e.Name,
					Priority:    "medium",
					Source:      "knowledge_graph",
					EntityID:    e.ID,
				})
				break
			}
		}
	}
	return risks
}

// combineRisks merges the three sources and deduplicates by (type, source).
// Model categories only count above the 0.3 noise floor.
func combineRisks(model capability.RiskScore, pattern, graph []blackboard.Risk) []blackboard.Risk {
	var combined []blackboard.Risk
	for _, cat := range []struct {
		name  string
		score float64
	}{
		{"compliance", model.Compliance},
		{"market", model.Market},
		{"operational", model.Operational},
	} {
		if cat.score <= 0.3 {
			continue
		}
		priority := "low"
		if cat.score > 0.7 {
			priority = "high"
		} else if cat.score > 0.5 {
			priority = "medium"
		}
		combined = append(combined, blackboard.Risk{
			Type:     cat.name,
			Score:    cat.score,
			Priority: priority,
			Source:   "model",
		})
	}
	combined = append(combined, pattern...)
	combined = append(combined, graph...)

	seen := make(map[string]bool)
	var unique []blackboard.Risk
	for _, r := range combined {
		key := r.Type + "_" + r.Source
		if !seen[key] {
			seen[key] = true
			unique = append(unique, r)
		}
	}
	return unique
}

func riskSummary(total, categories, highPriority int) string {
	s := fmt.Sprintf("Identified %d total risks across %d categories. ", total, categories)
	if highPriority > 0 {
		s += fmt.Sprintf("%d high-priority risks require immediate attention.", highPriority)
	}
	return s
}
