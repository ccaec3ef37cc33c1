// Package report renders the final analysis report from the board and the
// knowledge graph.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"finsight/internal/blackboard"
	"finsight/internal/kg"
	"finsight/internal/logging"
	"finsight/internal/memory"
)

// SectionAnalysis bundles everything recorded for one section.
type SectionAnalysis struct {
	Summary       string                      `json:"summary"`
	Findings      map[string][]map[string]any `json:"findings"`
	Metrics       []blackboard.Metric         `json:"metrics"`
	Risks         []blackboard.Risk           `json:"risks"`
	Opportunities []blackboard.Opportunity    `json:"opportunities"`
}

// RiskAssessment groups all risks by priority.
type RiskAssessment struct {
	TotalRisks     int               `json:"total_risks"`
	HighPriority   []blackboard.Risk `json:"high_priority"`
	MediumPriority []blackboard.Risk `json:"medium_priority"`
	LowPriority    []blackboard.Risk `json:"low_priority"`
	RiskSummary    string            `json:"risk_summary"`
}

// FinancialHealth is the overall financial posture verdict.
type FinancialHealth struct {
	Status    string   `json:"status"`
	Strengths []string `json:"strengths"`
	Concerns  []string `json:"concerns"`
}

// GovernanceESGSummary merges governance and ESG findings across sections.
type GovernanceESGSummary struct {
	Governance map[string][]string `json:"governance"`
	ESG        map[string][]string `json:"esg"`
	SDG        []string            `json:"sdg"`
}

// KeyEntity is a high-centrality knowledge-graph node.
type KeyEntity struct {
	ID         string    `json:"id"`
	Centrality float64   `json:"centrality"`
	Entity     kg.Entity `json:"entity"`
}

// GraphInsights summarizes the knowledge graph for the report.
type GraphInsights struct {
	Statistics         kg.Stats    `json:"statistics"`
	KeyEntities        []KeyEntity `json:"key_entities"`
	TotalEntities      int         `json:"total_entities"`
	TotalRelationships int         `json:"total_relationships"`
}

// Report is the complete analysis output.
type Report struct {
	ExecutiveSummary     string                     `json:"executive_summary"`
	SectionAnalyses      map[string]SectionAnalysis `json:"section_analyses"`
	KeyMetrics           []blackboard.Metric        `json:"key_metrics"`
	RiskAssessment       RiskAssessment             `json:"risk_assessment"`
	Opportunities        []blackboard.Opportunity   `json:"opportunities"`
	FinancialHealth      FinancialHealth            `json:"financial_health"`
	GovernanceESG        GovernanceESGSummary       `json:"governance_esg_summary"`
	GraphInsights        GraphInsights              `json:"knowledge_graph_insights"`
	CrossSectionInsights []memory.SharedInsight     `json:"cross_section_insights"`
	Recommendations      []string                   `json:"recommendations"`
	Appendices           map[string]any             `json:"appendices"`
}

// FinalGenerator assembles the report once all chunks are processed.
type FinalGenerator struct {
	board *blackboard.Board
	graph *kg.Graph
	log   *zap.Logger
}

// NewFinalGenerator wires a report generator.
func NewFinalGenerator(board *blackboard.Board, graph *kg.Graph) *FinalGenerator {
	return &FinalGenerator{
		board: board,
		graph: graph,
		log:   logging.Get(logging.CategoryReport),
	}
}

// Generate builds the report and records it on the board.
func (g *FinalGenerator) Generate() (Report, error) {
	health := g.assessFinancialHealth()
	governanceESG := g.compileGovernanceESG()

	r := Report{
		ExecutiveSummary:     g.executiveSummary(),
		SectionAnalyses:      g.sectionAnalyses(),
		KeyMetrics:           g.keyMetrics(),
		RiskAssessment:       g.riskAssessment(),
		Opportunities:        g.opportunities(),
		FinancialHealth:      health,
		GovernanceESG:        governanceESG,
		GraphInsights:        g.graphInsights(),
		CrossSectionInsights: g.board.CollaborativeInsights(),
		Recommendations:      g.recommendations(health, governanceESG),
		Appendices:           g.appendices(),
	}

	rendered, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return Report{}, fmt.Errorf("render report: %w", err)
	}
	g.board.SetGlobalReport(string(rendered), r.ExecutiveSummary, r.Recommendations)

	g.log.Info("final report generated",
		zap.Int("sections", len(r.SectionAnalyses)),
		zap.Int("risks", r.RiskAssessment.TotalRisks),
		zap.Int("recommendations", len(r.Recommendations)))
	return r, nil
}

func (g *FinalGenerator) executiveSummary() string {
	var parts []string

	companies := g.graph.EntitiesByType(kg.TypeCompany)
	if len(companies) > 0 {
		parts = append(parts, fmt.Sprintf("Analysis of %s Annual Report", companies[0].Name))
	}

	totalRisks := 0
	for _, risks := range g.board.SectionRisks() {
		totalRisks += len(risks)
	}
	totalOpportunities := 0
	for _, opps := range g.board.SectionOpportunities() {
		totalOpportunities += len(opps)
	}

	parts = append(parts, "\nKey Findings:")
	parts = append(parts, fmt.Sprintf("- Identified %d risks across all sections", totalRisks))
	parts = append(parts, fmt.Sprintf("- Found %d opportunities for growth", totalOpportunities))

	if label := g.dominantSentiment(); label != "" {
		parts = append(parts, fmt.Sprintf("- Overall sentiment: %s", label))
	}

	financialMetrics := g.board.SectionMetrics()["financial_statements"]
	if len(financialMetrics) > 0 {
		parts = append(parts, "\nFinancial Highlights:")
		for i, m := range financialMetrics {
			if i == 5 {
				break
			}
			parts = append(parts, fmt.Sprintf("- %s: %s", m.Type, m.Value))
		}
	}

	return strings.Join(parts, "\n")
}

// dominantSentiment extracts the most frequent sentiment label across all
// recorded sentiment findings. Ties break alphabetically.
func (g *FinalGenerator) dominantSentiment() string {
	counts := make(map[string]int)
	for _, findings := range g.board.AllSectionFindings() {
		for _, analysis := range findings["sentiment_analysis"] {
			sentiment, ok := analysis["sentiment"]
			if !ok {
				continue
			}
			switch s := sentiment.(type) {
			case map[string]any:
				if label, ok := s["label"].(string); ok {
					counts[label]++
				}
			default:
				// Typed scores marshal through JSON with a label field.
				data, err := json.Marshal(s)
				if err != nil {
					continue
				}
				var decoded struct {
					Label string `json:"label"`
				}
				if json.Unmarshal(data, &decoded) == nil && decoded.Label != "" {
					counts[decoded.Label]++
				}
			}
		}
	}

	best, bestCount := "", 0
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}
	return best
}

func (g *FinalGenerator) sectionAnalyses() map[string]SectionAnalysis {
	analyses := make(map[string]SectionAnalysis)
	metrics := g.board.SectionMetrics()
	risks := g.board.SectionRisks()
	opportunities := g.board.SectionOpportunities()

	for section, summary := range g.board.SectionSummaries() {
		analyses[section] = SectionAnalysis{
			Summary:       summary,
			Findings:      g.board.SectionFindings(section),
			Metrics:       metrics[section],
			Risks:         risks[section],
			Opportunities: opportunities[section],
		}
	}
	return analyses
}

// keyMetrics flattens all section metrics, deduplicates by (type, value),
// and caps the list at 20.
func (g *FinalGenerator) keyMetrics() []blackboard.Metric {
	sections := g.board.SectionMetrics()
	names := sortedKeys(sections)

	seen := make(map[string]bool)
	var unique []blackboard.Metric
	for _, section := range names {
		for _, m := range sections[section] {
			key := m.Type + "_" + m.Value
			if seen[key] {
				continue
			}
			seen[key] = true
			unique = append(unique, m)
			if len(unique) == 20 {
				return unique
			}
		}
	}
	return unique
}

func (g *FinalGenerator) riskAssessment() RiskAssessment {
	sections := g.board.SectionRisks()
	var assessment RiskAssessment
	for _, section := range sortedKeys(sections) {
		for _, r := range sections[section] {
			r.Section = section
			assessment.TotalRisks++
			switch r.Priority {
			case "high":
				assessment.HighPriority = append(assessment.HighPriority, r)
			case "medium":
				assessment.MediumPriority = append(assessment.MediumPriority, r)
			default:
				assessment.LowPriority = append(assessment.LowPriority, r)
			}
		}
	}
	assessment.RiskSummary = fmt.Sprintf(
		"Identified %d total risks: %d high, %d medium, %d low priority",
		assessment.TotalRisks,
		len(assessment.HighPriority),
		len(assessment.MediumPriority),
		len(assessment.LowPriority))
	return assessment
}

func (g *FinalGenerator) opportunities() []blackboard.Opportunity {
	sections := g.board.SectionOpportunities()
	var all []blackboard.Opportunity
	for _, section := range sortedKeys(sections) {
		for _, o := range sections[section] {
			o.Section = section
			all = append(all, o)
		}
	}
	return all
}

func (g *FinalGenerator) assessFinancialHealth() FinancialHealth {
	health := FinancialHealth{Status: "Unknown", Strengths: []string{}, Concerns: []string{}}

	for _, m := range g.board.SectionMetrics()["financial_statements"] {
		t := strings.ToLower(m.Type)
		switch {
		case strings.Contains(t, "growth") && strings.Contains(strings.ToLower(m.Unit), "increase"):
			health.Strengths = append(health.Strengths, fmt.Sprintf("Positive growth in %s", t))
		case strings.Contains(t, "loss") || strings.Contains(strings.ToLower(m.Unit), "decrease"):
			health.Concerns = append(health.Concerns, fmt.Sprintf("Negative trend in %s", t))
		}
	}

	switch {
	case len(health.Strengths) > len(health.Concerns):
		health.Status = "Healthy"
	case len(health.Concerns) > len(health.Strengths):
		health.Status = "Concerning"
	default:
		health.Status = "Stable"
	}
	return health
}

func (g *FinalGenerator) compileGovernanceESG() GovernanceESGSummary {
	summary := GovernanceESGSummary{
		Governance: make(map[string][]string),
		ESG:        make(map[string][]string),
		SDG:        []string{},
	}

	all := g.board.AllSectionFindings()
	for _, section := range sortedKeys(all) {
		for _, analysis := range all[section]["governance_esg"] {
			mergeStringListMap(summary.Governance, analysis["governance"])
			mergeStringListMap(summary.ESG, analysis["esg"])
			summary.SDG = append(summary.SDG, toStringList(analysis["sdg"])...)
		}
	}

	seen := make(map[string]bool)
	var sdg []string
	for _, goal := range summary.SDG {
		if !seen[goal] {
			seen[goal] = true
			sdg = append(sdg, goal)
		}
	}
	sort.Strings(sdg)
	summary.SDG = sdg
	return summary
}

func (g *FinalGenerator) graphInsights() GraphInsights {
	stats := g.graph.SummaryStats()
	centrality := g.graph.Centrality(kg.CentralityDegree)

	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(centrality))
	for id, score := range centrality {
		ranked = append(ranked, scored{id, score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})

	var key []KeyEntity
	for i, s := range ranked {
		if i == 5 {
			break
		}
		e, _ := g.graph.Entity(s.id)
		key = append(key, KeyEntity{ID: s.id, Centrality: s.score, Entity: e})
	}

	return GraphInsights{
		Statistics:         stats,
		KeyEntities:        key,
		TotalEntities:      stats.TotalEntities,
		TotalRelationships: stats.TotalRelationships,
	}
}

func (g *FinalGenerator) recommendations(health FinancialHealth, governanceESG GovernanceESGSummary) []string {
	var recs []string

	highRisks := 0
	for _, risks := range g.board.SectionRisks() {
		for _, r := range risks {
			if r.Priority == "high" {
				highRisks++
			}
		}
	}
	if highRisks > 0 {
		recs = append(recs, fmt.Sprintf("Address %d high-priority risks immediately", highRisks))
	}

	if health.Status == "Concerning" {
		recs = append(recs, "Review financial strategy and cost structure")
	}

	if !hasGovernanceData(governanceESG.Governance) {
		recs = append(recs, "Enhance governance disclosure and transparency")
	}

	if len(governanceESG.SDG) > 0 {
		recs = append(recs, fmt.Sprintf("Continue focus on %d SDG goals", len(governanceESG.SDG)))
	} else {
		recs = append(recs, "Consider adopting SDG framework for sustainability reporting")
	}

	return recs
}

func (g *FinalGenerator) appendices() map[string]any {
	return map[string]any{
		"detailed_metrics":    g.board.SectionMetrics(),
		"processing_metadata": g.board.Summary(),
	}
}

func hasGovernanceData(governance map[string][]string) bool {
	for _, values := range governance {
		if len(values) > 0 {
			return true
		}
	}
	return false
}

// mergeStringListMap unions a finding's string-list map into dst. Findings
// come back from checkpoints as JSON maps, so both typed and decoded shapes
// are handled.
func mergeStringListMap(dst map[string][]string, value any) {
	switch v := value.(type) {
	case map[string][]string:
		for key, list := range v {
			for _, s := range list {
				if !containsStr(dst[key], s) {
					dst[key] = append(dst[key], s)
				}
			}
		}
	case map[string]any:
		for key, raw := range v {
			for _, s := range toStringList(raw) {
				if !containsStr(dst[key], s) {
					dst[key] = append(dst[key], s)
				}
			}
		}
	}
}

func toStringList(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
