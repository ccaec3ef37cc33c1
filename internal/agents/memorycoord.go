package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"finsight/internal/blackboard"
	"finsight/internal/kg"
	"finsight/internal/memory"
)

// sectionKeywords drives cross-section reference detection. A chunk in one
// section that mentions another section's vocabulary links the two.
var sectionKeywords = map[string][]string{
	"letter_to_shareholders": {"letter", "shareholders", "CEO message"},
	"mdna":                   {"MD&A", "management discussion", "analysis"},
	"financial_statements":   {"financial statements", "balance sheet", "income statement"},
	"audit_report":           {"audit", "auditor", "opinion"},
	"corporate_governance":   {"governance", "board", "directors"},
	"esg":                    {"ESG", "sustainability", "environmental"},
	"sdg_17":                 {"SDG", "sustainable development", "partnership"},
}

// defaultMemoryWindow is how many prior records feed the coordination pass
// when the config leaves memory_window unset.
const defaultMemoryWindow = 10

// MemoryCoordinatorAgent links the current section to prior runs and to the
// other sections. It is the only sub-agent that touches long-term memory.
type MemoryCoordinatorAgent struct {
	base
	longTerm *memory.LongTerm
	collab   *memory.Collaborative
	window   int
}

// NewMemoryCoordinatorAgent wires a memory-coordination sub-agent for a
// section. window bounds how many prior records each pass recalls.
func NewMemoryCoordinatorAgent(section string, board *blackboard.Board, graph *kg.Graph, longTerm *memory.LongTerm, collab *memory.Collaborative, window int) *MemoryCoordinatorAgent {
	if window <= 0 {
		window = defaultMemoryWindow
	}
	return &MemoryCoordinatorAgent{
		base:     base{name: section + "_memory", section: section, board: board, graph: graph},
		longTerm: longTerm,
		collab:   collab,
		window:   window,
	}
}

func (a *MemoryCoordinatorAgent) Process(_ context.Context, content string, tc TaskContext) (Result, error) {
	start := time.Now()
	var errs []string

	memories, err := a.retrieveMemories()
	if err != nil {
		errs = append(errs, fmt.Sprintf("memory retrieval failed: %v", err))
	}

	notifications := a.receiveMessages()
	crossRefs := a.findCrossReferences(content)
	insights := a.generateInsights(memories, crossRefs)

	if err := a.updateMemories(content, tc, len(insights)); err != nil {
		errs = append(errs, fmt.Sprintf("memory update failed: %v", err))
	}

	for _, insight := range insights {
		a.board.AddCollaborativeInsight(insight)
		if a.collab != nil {
			a.collab.ShareInsight(insight)
		}
	}
	for source, targets := range crossRefs {
		for _, target := range targets {
			a.board.AddCrossReference(source, target)
			if a.collab != nil {
				a.collab.AddCrossReference(source, target)
			}
			// Let the linked section's coordinator pick this up on its
			// next pass.
			a.sendMessage(target+"_memory",
				fmt.Sprintf("%s found related content in chunk %s", source, tc.ChunkID),
				blackboard.MessageInsight)
		}
	}

	output := map[string]any{
		"relevant_memories":      memories,
		"cross_references":       crossRefs,
		"collaborative_insights": insights,
		"peer_notifications":     len(notifications),
		"memory_summary":         memorySummary(memories, crossRefs),
	}

	return Result{
		AgentName:     a.name,
		TaskID:        tc.TaskID,
		Output:        output,
		Confidence:    0.9,
		Metadata:      map[string]string{"chunk_id": tc.ChunkID},
		ExecutionTime: time.Since(start),
		Errors:        errs,
	}, nil
}

// memoryView is a compact projection of a long-term record.
type memoryView struct {
	Key       string `json:"key"`
	Summary   string `json:"summary"`
	Sentiment string `json:"sentiment,omitempty"`
}

func (a *MemoryCoordinatorAgent) retrieveMemories() ([]memoryView, error) {
	if a.longTerm == nil {
		return nil, nil
	}
	records, err := a.longTerm.QueryRecent(a.section, a.section, a.window)
	if err != nil {
		return nil, err
	}
	views := make([]memoryView, 0, len(records))
	for _, r := range records {
		summary := r.Value["summary"]
		if len(summary) > 200 {
			summary = summary[:200]
		}
		views = append(views, memoryView{
			Key:       r.Key,
			Summary:   summary,
			Sentiment: r.Value["sentiment"],
		})
	}
	return views, nil
}

// findCrossReferences scans content for other sections' vocabulary.
func (a *MemoryCoordinatorAgent) findCrossReferences(content string) map[string][]string {
	lower := strings.ToLower(content)
	crossRefs := make(map[string][]string)

	sections := make([]string, 0, len(sectionKeywords))
	for s := range sectionKeywords {
		sections = append(sections, s)
	}
	sort.Strings(sections)

	for _, section := range sections {
		if section == a.section {
			continue
		}
		for _, kw := range sectionKeywords[section] {
			if strings.Contains(lower, strings.ToLower(kw)) {
				if !containsString(crossRefs[a.section], section) {
					crossRefs[a.section] = append(crossRefs[a.section], section)
				}
				break
			}
		}
	}
	return crossRefs
}

// generateInsights surfaces the dominant prior sentiment once enough
// history exists, plus one insight per newly linked section.
func (a *MemoryCoordinatorAgent) generateInsights(memories []memoryView, crossRefs map[string][]string) []memory.SharedInsight {
	var insights []memory.SharedInsight

	if len(memories) > 5 {
		counts := make(map[string]int)
		for _, m := range memories {
			if m.Sentiment != "" {
				counts[m.Sentiment]++
			}
		}
		if dominant := dominantLabel(counts); dominant != "" {
			insights = append(insights, memory.SharedInsight{
				AgentName:   a.name,
				SectionName: a.section,
				InsightType: "sentiment_trend",
				Content:     fmt.Sprintf("Consistent %s sentiment across %d prior passages in %s", dominant, len(memories), a.section),
				Confidence:  0.8,
			})
		}
	}

	for _, targets := range crossRefs {
		for _, target := range targets {
			insights = append(insights, memory.SharedInsight{
				AgentName:       a.name,
				SectionName:     a.section,
				InsightType:     "cross_reference",
				Content:         fmt.Sprintf("%s references content from %s", a.section, target),
				Confidence:      0.7,
				RelatedSections: []string{target},
			})
		}
	}
	return insights
}

func (a *MemoryCoordinatorAgent) updateMemories(content string, tc TaskContext, insightCount int) error {
	if a.longTerm == nil {
		return nil
	}
	summary := content
	if len(summary) > 200 {
		summary = summary[:200]
	}
	value := map[string]string{
		"summary":       summary,
		"insight_count": fmt.Sprintf("%d", insightCount),
	}
	if len(tc.Recent) > 0 {
		value["recent_activity"] = strings.Join(tc.Recent, "; ")
	}
	return a.longTerm.Upsert(a.section, a.section, tc.ChunkID, value)
}

func memorySummary(memories []memoryView, crossRefs map[string][]string) string {
	linked := 0
	for _, targets := range crossRefs {
		linked += len(targets)
	}
	return fmt.Sprintf("Recalled %d prior passages, linked %d related sections", len(memories), linked)
}

// dominantLabel picks the most frequent label, breaking ties
// alphabetically.
func dominantLabel(counts map[string]int) string {
	best := ""
	bestCount := 0
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		if counts[l] > bestCount {
			best = l
			bestCount = counts[l]
		}
	}
	return best
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
