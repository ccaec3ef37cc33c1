package agents

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"finsight/internal/blackboard"
	"finsight/internal/capability"
	"finsight/internal/kg"
)

var (
	boardMemberPattern = regexp.MustCompile(`(?i:board member|director|chairman|chairwoman|chairperson)[\s:]+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`)
	committeePattern   = regexp.MustCompile(`(?i)(audit|compensation|nominating|governance|risk|ethics)\s+committee`)
	sdgRefPattern      = regexp.MustCompile(`(?i)(?:SDG|Sustainable Development Goal)[\s-]?(\d{1,2})`)
)

var esgLexicon = map[string][]string{
	"environmental": {"carbon", "emissions", "renewable", "sustainability", "climate", "energy"},
	"social":        {"diversity", "inclusion", "community", "safety", "human rights"},
	"governance":    {"ethics", "transparency", "accountability", "compliance", "integrity"},
}

// GovernanceESGAgent extracts governance structures, ESG themes, and SDG
// references, and scores compliance and sustainability posture.
type GovernanceESGAgent struct {
	base
}

// NewGovernanceESGAgent wires a governance/ESG sub-agent for a section.
func NewGovernanceESGAgent(section string, board *blackboard.Board, graph *kg.Graph, _ capability.Set) *GovernanceESGAgent {
	return &GovernanceESGAgent{
		base: base{name: section + "_governance_esg", section: section, board: board, graph: graph},
	}
}

func (a *GovernanceESGAgent) Process(_ context.Context, content string, tc TaskContext) (Result, error) {
	start := time.Now()

	governance := extractGovernance(content)
	esg := extractESG(content)
	sdg := extractSDG(content)

	output := map[string]any{
		"governance":           governance,
		"esg":                  esg,
		"sdg":                  sdg,
		"compliance_score":     complianceScore(governance, esg),
		"sustainability_score": sustainabilityScore(esg, sdg),
	}

	a.board.AddSectionFinding(a.section, "governance_esg", output)

	return Result{
		AgentName:     a.name,
		TaskID:        tc.TaskID,
		Output:        output,
		Confidence:    0.85,
		Metadata:      map[string]string{"chunk_id": tc.ChunkID},
		ExecutionTime: time.Since(start),
	}, nil
}

func extractGovernance(content string) map[string][]string {
	governance := map[string][]string{
		"board_members":           {},
		"committees":              {},
		"policies":                {},
		"independence_indicators": {},
	}
	for _, m := range boardMemberPattern.FindAllStringSubmatch(content, -1) {
		governance["board_members"] = append(governance["board_members"], m[1])
	}
	for _, m := range committeePattern.FindAllString(content, -1) {
		governance["committees"] = append(governance["committees"], m)
	}
	if strings.Contains(strings.ToLower(content), "independent director") {
		governance["independence_indicators"] = append(
			governance["independence_indicators"], "Independent directors mentioned")
	}
	return governance
}

func extractESG(content string) map[string][]string {
	lower := strings.ToLower(content)
	esg := map[string][]string{
		"environmental": {},
		"social":        {},
		"governance":    {},
	}
	for _, pillar := range []string{"environmental", "social", "governance"} {
		for _, kw := range esgLexicon[pillar] {
			if strings.Contains(lower, kw) {
				esg[pillar] = append(esg[pillar], kw)
			}
		}
	}
	return esg
}

// extractSDG returns deduplicated "SDG N" labels for goals 1 through 17.
// Out-of-range numbers are discarded.
func extractSDG(content string) []string {
	seen := make(map[string]bool)
	var goals []string
	for _, m := range sdgRefPattern.FindAllStringSubmatch(content, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > 17 {
			continue
		}
		label := fmt.Sprintf("SDG %d", n)
		if !seen[label] {
			seen[label] = true
			goals = append(goals, label)
		}
	}
	sort.Strings(goals)
	return goals
}

func complianceScore(governance, esg map[string][]string) float64 {
	score := 0.5
	if len(governance["board_members"]) > 0 {
		score += 0.1
	}
	if n := len(governance["committees"]); n > 0 {
		if n > 3 {
			n = 3
		}
		score += 0.1 * float64(n)
	}
	if len(governance["independence_indicators"]) > 0 {
		score += 0.1
	}
	if len(esg["governance"]) > 0 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func sustainabilityScore(esg map[string][]string, sdg []string) float64 {
	score := 0.3
	if len(esg["environmental"]) > 0 {
		score += 0.2
	}
	if len(esg["social"]) > 0 {
		score += 0.2
	}
	if n := len(sdg); n > 0 {
		if n > 3 {
			n = 3
		}
		score += 0.1 * float64(n)
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
