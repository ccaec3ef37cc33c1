// Package decompose maps chunk content to prioritized analysis tasks.
//
// Each of the eight task categories has a fixed keyword table; a single
// case-insensitive substring hit emits exactly one task of that category.
// The output is a priority ordering (descending priority, ties broken by
// ascending dependency count), not a dependency-respecting schedule: the
// declared dependencies are informational hints, and a caller that needs
// execution-order guarantees must topologically sort on them itself.
package decompose

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"finsight/internal/logging"
)

// TaskType is an analysis task category.
type TaskType string

const (
	TaskFinancialAnalysis      TaskType = "financial_analysis"
	TaskRiskAssessment         TaskType = "risk_assessment"
	TaskPerformanceMetrics     TaskType = "performance_metrics"
	TaskGovernanceReview       TaskType = "governance_review"
	TaskSustainabilityAnalysis TaskType = "sustainability_analysis"
	TaskMarketAnalysis         TaskType = "market_analysis"
	TaskStrategyReview         TaskType = "strategy_review"
	TaskComplianceCheck        TaskType = "compliance_check"
)

// Task is a unit of analysis work inferred from chunk content. Tasks are
// ephemeral: generated fresh per chunk, never deduplicated across chunks.
type Task struct {
	Type         TaskType          `json:"task_type"`
	Content      string            `json:"content"`
	Priority     int               `json:"priority"`
	Dependencies []string          `json:"dependencies,omitempty"`
	TargetAgents []string          `json:"target_agents,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// taskPatterns lists the trigger keywords per category.
var taskPatterns = map[TaskType][]string{
	TaskFinancialAnalysis: {
		"financial statements", "balance sheet", "income statement",
		"cash flow", "ratios", "metrics",
	},
	TaskRiskAssessment: {
		"risk factors", "uncertainties", "challenges",
		"threats", "mitigation",
	},
	TaskPerformanceMetrics: {
		"KPI", "performance indicator", "benchmark",
		"growth rate", "market share",
	},
	TaskGovernanceReview: {
		"board", "directors", "committees",
		"governance structure", "policies",
	},
	TaskSustainabilityAnalysis: {
		"ESG", "sustainable", "environmental",
		"social responsibility", "carbon",
	},
	TaskMarketAnalysis: {
		"market conditions", "competition", "industry trends",
		"market share", "competitive advantage",
	},
	TaskStrategyReview: {
		"strategic initiatives", "objectives", "future plans",
		"expansion", "development",
	},
	TaskComplianceCheck: {
		"regulatory", "compliance", "legal requirements",
		"standards", "regulations",
	},
}

// priorityWeights carries the fixed priority per category (range 2-5).
var priorityWeights = map[TaskType]int{
	TaskFinancialAnalysis:      5,
	TaskRiskAssessment:         4,
	TaskPerformanceMetrics:     4,
	TaskGovernanceReview:       3,
	TaskSustainabilityAnalysis: 3,
	TaskMarketAnalysis:         3,
	TaskStrategyReview:         4,
	TaskComplianceCheck:        3,
}

// dependencyMap names the categories each category conceptually builds on.
var dependencyMap = map[TaskType][]string{
	TaskFinancialAnalysis:      nil,
	TaskRiskAssessment:         {string(TaskFinancialAnalysis)},
	TaskPerformanceMetrics:     {string(TaskFinancialAnalysis)},
	TaskGovernanceReview:       nil,
	TaskSustainabilityAnalysis: nil,
	TaskMarketAnalysis:         {string(TaskFinancialAnalysis)},
	TaskStrategyReview:         {string(TaskMarketAnalysis), string(TaskFinancialAnalysis)},
	TaskComplianceCheck:        {string(TaskGovernanceReview)},
}

// targetAgents maps each category to the report sections best placed to
// handle it.
var targetAgents = map[TaskType][]string{
	TaskFinancialAnalysis:      {"financial_statements", "mdna"},
	TaskRiskAssessment:         {"mdna", "audit_report"},
	TaskPerformanceMetrics:     {"mdna", "financial_statements"},
	TaskGovernanceReview:       {"corporate_governance"},
	TaskSustainabilityAnalysis: {"esg", "sdg_17"},
	TaskMarketAnalysis:         {"mdna", "letter_to_shareholders"},
	TaskStrategyReview:         {"letter_to_shareholders", "mdna"},
	TaskComplianceCheck:        {"audit_report", "corporate_governance"},
}

// orderedTypes fixes category evaluation order so output is deterministic
// before sorting.
var orderedTypes = []TaskType{
	TaskFinancialAnalysis,
	TaskRiskAssessment,
	TaskPerformanceMetrics,
	TaskGovernanceReview,
	TaskSustainabilityAnalysis,
	TaskMarketAnalysis,
	TaskStrategyReview,
	TaskComplianceCheck,
}

// Decomposer turns chunk content into analysis tasks.
type Decomposer struct {
	log *zap.Logger
}

// New creates a Decomposer.
func New() *Decomposer {
	return &Decomposer{log: logging.Get(logging.CategoryDecompose)}
}

// DecomposeContent emits at most one task per category whose keyword table
// matches the content, sorted by descending priority then ascending
// dependency count.
func (d *Decomposer) DecomposeContent(content string) []Task {
	lower := strings.ToLower(content)

	var tasks []Task
	for _, taskType := range orderedTypes {
		if !matchesAny(lower, taskPatterns[taskType]) {
			continue
		}
		tasks = append(tasks, Task{
			Type:         taskType,
			Content:      content,
			Priority:     priorityWeights[taskType],
			Dependencies: dependencyMap[taskType],
			TargetAgents: targetAgents[taskType],
			Metadata: map[string]string{
				"content_length": strconv.Itoa(len(content)),
				"task_type":      string(taskType),
			},
		})
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return len(tasks[i].Dependencies) < len(tasks[j].Dependencies)
	})

	d.log.Debug("decomposed content",
		zap.Int("tasks", len(tasks)),
		zap.Int("content_length", len(content)))
	return tasks
}

func matchesAny(lowerContent string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lowerContent, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
