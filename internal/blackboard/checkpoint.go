package blackboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"finsight/internal/memory"
)

// snapshot is the JSON shape of a checkpoint. Every field the run needs to
// resume survives the round trip.
type snapshot struct {
	RunID             string       `json:"run_id"`
	CreatedAt         time.Time    `json:"created_at"`
	Chunks            []chunkState `json:"chunks"`
	CurrentChunkIndex int          `json:"current_chunk_index"`

	NodeStatus       map[string]NodeStatus  `json:"node_status"`
	NodeResults      map[string]NodeResult  `json:"node_results"`
	NodeDependencies map[string][]string    `json:"node_dependencies"`
	Nodes            map[string]map[string]string `json:"nodes"`

	Tasks          []*Task  `json:"tasks"`
	TaskQueue      []string `json:"task_queue"`
	CompletedTasks []string `json:"completed_tasks"`

	SectionSummaries     map[string]string                      `json:"section_summaries"`
	SectionFindings      map[string]map[string][]map[string]any `json:"section_findings"`
	SectionMetrics       map[string][]Metric                    `json:"section_metrics"`
	SectionRisks         map[string][]Risk                      `json:"section_risks"`
	SectionOpportunities map[string][]Opportunity               `json:"section_opportunities"`

	CrossReferences       map[string][]string    `json:"cross_references"`
	CollaborativeInsights []memory.SharedInsight `json:"collaborative_insights"`

	KGEntities      map[string][]string `json:"kg_entities"`
	KGRelationships map[string][]string `json:"kg_relationships"`
	KGSummary       map[string]any      `json:"kg_summary"`

	MessageQueue   []Message `json:"message_queue"`
	MessageHistory []Message `json:"message_history"`

	GlobalReport     string   `json:"global_report,omitempty"`
	ExecutiveSummary string   `json:"executive_summary,omitempty"`
	KeyHighlights    []string `json:"key_highlights,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// SaveCheckpoint writes the full board state to path as JSON.
func (b *Board) SaveCheckpoint(path string) error {
	// The snapshot aliases the live maps, so marshal before releasing the
	// lock; concurrent writers would otherwise race the encoder.
	b.mu.RLock()
	snap := b.snapshotLocked()
	data, err := json.MarshalIndent(snap, "", "  ")
	b.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	b.log.Info("checkpoint saved",
		zap.String("path", path),
		zap.Int("chunks", len(snap.Chunks)),
		zap.Int("tasks", len(snap.Tasks)))
	return nil
}

// LoadCheckpoint reads a checkpoint file and returns a board resumed from it.
func LoadCheckpoint(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("malformed checkpoint file %s: %w", path, err)
	}

	b := New()
	b.restore(snap)
	b.log.Info("checkpoint restored",
		zap.String("path", path),
		zap.String("run_id", b.RunID))
	return b, nil
}

func (b *Board) snapshotLocked() snapshot {
	completed := make([]string, 0, len(b.completedTasks))
	for id := range b.completedTasks {
		completed = append(completed, id)
	}
	sort.Strings(completed)

	return snapshot{
		RunID:             b.RunID,
		CreatedAt:         b.CreatedAt,
		Chunks:            append([]chunkState(nil), b.chunks...),
		CurrentChunkIndex: b.currentChunkIndex,

		Nodes:            b.nodes,
		NodeStatus:       b.nodeStatus,
		NodeResults:      b.nodeResults,
		NodeDependencies: b.nodeDependencies,

		Tasks:          b.tasks,
		TaskQueue:      append([]string(nil), b.taskQueue...),
		CompletedTasks: completed,

		SectionSummaries:     b.sectionSummaries,
		SectionFindings:      b.sectionFindings,
		SectionMetrics:       b.sectionMetrics,
		SectionRisks:         b.sectionRisks,
		SectionOpportunities: b.sectionOpportunities,

		CrossReferences:       b.crossReferences,
		CollaborativeInsights: append([]memory.SharedInsight(nil), b.collaborativeInsights...),

		KGEntities:      b.kgEntities,
		KGRelationships: b.kgRelationships,
		KGSummary:       b.kgSummary,

		MessageQueue:   append([]Message(nil), b.messageQueue...),
		MessageHistory: append([]Message(nil), b.messageHistory...),

		GlobalReport:     b.globalReport,
		ExecutiveSummary: b.executiveSummary,
		KeyHighlights:    append([]string(nil), b.keyHighlights...),
		Recommendations:  append([]string(nil), b.recommendations...),

		Metadata: b.metadata,
		Errors:   append([]string(nil), b.errors...),
		Warnings: append([]string(nil), b.warnings...),
	}
}

func (b *Board) restore(snap snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.RunID = snap.RunID
	b.CreatedAt = snap.CreatedAt
	b.chunks = snap.Chunks
	b.currentChunkIndex = snap.CurrentChunkIndex

	if snap.Nodes != nil {
		b.nodes = snap.Nodes
	}
	if snap.NodeStatus != nil {
		b.nodeStatus = snap.NodeStatus
	}
	if snap.NodeResults != nil {
		b.nodeResults = snap.NodeResults
	}
	if snap.NodeDependencies != nil {
		b.nodeDependencies = snap.NodeDependencies
	}

	b.tasks = snap.Tasks
	b.taskQueue = snap.TaskQueue
	b.completedTasks = make(map[string]bool, len(snap.CompletedTasks))
	for _, id := range snap.CompletedTasks {
		b.completedTasks[id] = true
	}

	if snap.SectionSummaries != nil {
		b.sectionSummaries = snap.SectionSummaries
	}
	if snap.SectionFindings != nil {
		b.sectionFindings = snap.SectionFindings
	}
	if snap.SectionMetrics != nil {
		b.sectionMetrics = snap.SectionMetrics
	}
	if snap.SectionRisks != nil {
		b.sectionRisks = snap.SectionRisks
	}
	if snap.SectionOpportunities != nil {
		b.sectionOpportunities = snap.SectionOpportunities
	}
	if snap.CrossReferences != nil {
		b.crossReferences = snap.CrossReferences
	}
	b.collaborativeInsights = snap.CollaborativeInsights

	if snap.KGEntities != nil {
		b.kgEntities = snap.KGEntities
	}
	if snap.KGRelationships != nil {
		b.kgRelationships = snap.KGRelationships
	}
	if snap.KGSummary != nil {
		b.kgSummary = snap.KGSummary
	}

	b.messageQueue = snap.MessageQueue
	b.messageHistory = snap.MessageHistory

	b.globalReport = snap.GlobalReport
	b.executiveSummary = snap.ExecutiveSummary
	b.keyHighlights = snap.KeyHighlights
	b.recommendations = snap.Recommendations

	if snap.Metadata != nil {
		b.metadata = snap.Metadata
	}
	b.errors = snap.Errors
	b.warnings = snap.Warnings
}
