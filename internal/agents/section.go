package agents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finsight/internal/blackboard"
	"finsight/internal/capability"
	"finsight/internal/config"
	"finsight/internal/decompose"
	"finsight/internal/document"
	"finsight/internal/kg"
	"finsight/internal/logging"
	"finsight/internal/memory"
)

// taskAgentRouting maps a task category to the sub-agents that handle it.
// Unknown categories fall back to sentiment analysis.
var taskAgentRouting = map[decompose.TaskType][]string{
	decompose.TaskFinancialAnalysis:      {"metrics", "sentiment"},
	decompose.TaskRiskAssessment:         {"risk", "sentiment"},
	decompose.TaskPerformanceMetrics:     {"metrics"},
	decompose.TaskGovernanceReview:       {"governance_esg"},
	decompose.TaskSustainabilityAnalysis: {"governance_esg"},
	decompose.TaskMarketAnalysis:         {"external", "metrics"},
	decompose.TaskStrategyReview:         {"sentiment", "memory"},
	decompose.TaskComplianceCheck:        {"governance_esg", "risk"},
}

// AgentRun wraps a sub-agent outcome with its success flag. A failed run
// carries the error text instead of failing the whole task.
type AgentRun struct {
	Agent   string `json:"agent"`
	Success bool   `json:"success"`
	Result  Result `json:"result"`
	Error   string `json:"error,omitempty"`
}

// TaskResult aggregates the sub-agent runs for one task.
type TaskResult struct {
	TaskID    string     `json:"task_id"`
	TaskType  string     `json:"task_type"`
	AgentRuns []AgentRun `json:"sub_agent_results"`
	Timestamp time.Time  `json:"timestamp"`
}

// SectionAgent orchestrates sub-agents for one document section.
type SectionAgent struct {
	Section string

	board     *blackboard.Board
	subAgents map[string]SubAgent
	recent    *memory.ShortTerm
	timeout   time.Duration
	log       *zap.Logger
}

// NewSectionAgent builds a section agent with the standard six sub-agents.
func NewSectionAgent(
	section document.Section,
	board *blackboard.Board,
	graph *kg.Graph,
	longTerm *memory.LongTerm,
	collab *memory.Collaborative,
	caps capability.Set,
	cfg config.Config,
) *SectionAgent {
	s := string(section)
	return &SectionAgent{
		Section: s,
		board:   board,
		subAgents: map[string]SubAgent{
			"sentiment":      NewSentimentAgent(s, board, graph, caps),
			"risk":           NewRiskAgent(s, board, graph, caps),
			"metrics":        NewMetricsAgent(s, board, graph, caps),
			"external":       NewExternalAgent(s, board, graph, caps, cfg.Capabilities),
			"governance_esg": NewGovernanceESGAgent(s, board, graph, caps),
			"memory":         NewMemoryCoordinatorAgent(s, board, graph, longTerm, collab, cfg.Analysis.MemoryWindow),
		},
		recent:  memory.NewShortTerm(cfg.Analysis.MemoryWindow),
		timeout: cfg.SubAgentTimeout(),
		log:     logging.Get(logging.CategoryAgents),
	}
}

// ProcessTasks runs each task's routed sub-agents concurrently, completes
// the tasks on the board, and finishes with a memory-coordination pass so
// cross-section awareness is maintained even when no task asked for it.
func (sa *SectionAgent) ProcessTasks(ctx context.Context, tasks []blackboard.Task, chunk document.Chunk) map[string]TaskResult {
	results := make(map[string]TaskResult)

	for _, task := range tasks {
		tc := TaskContext{
			TaskID:  task.ID,
			ChunkID: chunk.ID,
			Section: sa.Section,
		}

		names := taskAgentRouting[task.Spec.Type]
		if len(names) == 0 {
			names = []string{"sentiment"}
		}

		runs := make([]AgentRun, len(names))
		g, gctx := errgroup.WithContext(ctx)
		for i, name := range names {
			agent, ok := sa.subAgents[name]
			if !ok {
				runs[i] = AgentRun{Agent: name, Error: "unknown sub-agent"}
				continue
			}
			g.Go(func() error {
				runs[i] = sa.runSubAgent(gctx, agent, name, chunk.Content, tc)
				return nil
			})
		}
		_ = g.Wait() // sub-agent failures are captured in runs, not returned

		tr := TaskResult{
			TaskID:    task.ID,
			TaskType:  string(task.Spec.Type),
			AgentRuns: runs,
			Timestamp: time.Now(),
		}
		results[task.ID] = tr
		sa.board.CompleteTask(task.ID, tr)
		sa.recent.Add(fmt.Sprintf("%s on %s via %d sub-agents", task.Spec.Type, chunk.ID, len(runs)))
	}

	// The coordination pass sees the section's recent activity so it lands
	// in long-term memory alongside the chunk summary.
	memTC := TaskContext{
		TaskID:  "memory_coordination",
		ChunkID: chunk.ID,
		Section: sa.Section,
		Recent:  sa.recent.Notes(),
	}
	run := sa.runSubAgent(ctx, sa.subAgents["memory"], "memory", chunk.Content, memTC)
	results["memory_coordination"] = TaskResult{
		TaskID:    memTC.TaskID,
		TaskType:  "memory_coordination",
		AgentRuns: []AgentRun{run},
		Timestamp: time.Now(),
	}

	return results
}

// runSubAgent executes one sub-agent under the configured timeout. A
// timeout or error yields a failed run, never a failed task.
func (sa *SectionAgent) runSubAgent(ctx context.Context, agent SubAgent, name, content string, tc TaskContext) AgentRun {
	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if sa.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, sa.timeout)
	}
	defer cancel()

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := agent.Process(runCtx, content, tc)
		done <- outcome{r, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			sa.log.Warn("sub-agent failed",
				zap.String("agent", agent.Name()),
				zap.String("task_id", tc.TaskID),
				zap.Error(o.err))
			return AgentRun{Agent: name, Error: o.err.Error()}
		}
		return AgentRun{Agent: name, Success: true, Result: o.result}
	case <-runCtx.Done():
		err := fmt.Errorf("sub-agent %s timed out: %w", agent.Name(), runCtx.Err())
		sa.log.Warn("sub-agent timed out",
			zap.String("agent", agent.Name()),
			zap.String("task_id", tc.TaskID))
		sa.board.AddWarning(err.Error())
		return AgentRun{Agent: name, Error: err.Error()}
	}
}
