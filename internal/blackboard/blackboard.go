// Package blackboard holds the shared mutable state for one document run.
//
// The orchestrator owns the Board; every other component mutates it only
// through the narrow methods here. Chunk processing is serialized, but
// sub-agents within one chunk run concurrently, so every mutation takes the
// board lock.
package blackboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finsight/internal/decompose"
	"finsight/internal/document"
	"finsight/internal/logging"
	"finsight/internal/memory"
)

// NodeStatus is the lifecycle state of a registered node.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// MessageType classifies board messages.
type MessageType string

const (
	MessageTask    MessageType = "task"
	MessageResult  MessageType = "result"
	MessageError   MessageType = "error"
	MessageInfo    MessageType = "info"
	MessageQuery   MessageType = "query"
	MessageInsight MessageType = "insight"
)

// Message is passed between agents through the board mailbox.
type Message struct {
	ID        string            `json:"id"`
	Type      MessageType       `json:"type"`
	Sender    string            `json:"sender"`
	Recipient string            `json:"recipient"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NodeResult records the outcome of a node execution.
type NodeResult struct {
	NodeID        string        `json:"node_id"`
	Status        NodeStatus    `json:"status"`
	Output        string        `json:"output,omitempty"`
	Errors        []string      `json:"errors,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// Task is a decomposed task tracked on the board.
type Task struct {
	ID     string         `json:"id"`
	Spec   decompose.Task `json:"spec"`
	Status string         `json:"status"`
	Result any            `json:"result,omitempty"`
}

// Metric is an extracted metric recorded for a section.
type Metric struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Unit     string `json:"unit,omitempty"`
	Name     string `json:"name,omitempty"`
	Context  string `json:"context,omitempty"`
	Source   string `json:"source,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
}

// Risk is an identified risk recorded for a section.
type Risk struct {
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Keyword     string  `json:"keyword,omitempty"`
	Priority    string  `json:"priority"`
	Source      string  `json:"source"`
	Score       float64 `json:"score,omitempty"`
	EntityID    string  `json:"entity_id,omitempty"`
	Section     string  `json:"section,omitempty"`
}

// Opportunity is an identified opportunity recorded for a section.
type Opportunity struct {
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
	EntityID    string `json:"entity_id,omitempty"`
	Section     string `json:"section,omitempty"`
}

// chunkState wraps an ingested chunk with its processing flag. The chunk
// itself stays immutable.
type chunkState struct {
	Chunk     document.Chunk `json:"chunk"`
	Processed bool           `json:"processed"`
}

// Board is the run-scoped shared state.
type Board struct {
	mu sync.RWMutex

	RunID     string
	CreatedAt time.Time

	chunks            []chunkState
	currentChunkIndex int

	nodes            map[string]map[string]string
	nodeStatus       map[string]NodeStatus
	nodeResults      map[string]NodeResult
	nodeDependencies map[string][]string

	tasks          []*Task
	taskQueue      []string
	completedTasks map[string]bool

	sectionSummaries     map[string]string
	sectionFindings      map[string]map[string][]map[string]any
	sectionMetrics       map[string][]Metric
	sectionRisks         map[string][]Risk
	sectionOpportunities map[string][]Opportunity

	crossReferences       map[string][]string
	collaborativeInsights []memory.SharedInsight

	kgEntities      map[string][]string // chunk ID -> entity IDs
	kgRelationships map[string][]string // chunk ID -> relationship IDs
	kgSummary       map[string]any

	messageQueue   []Message
	messageHistory []Message

	globalReport     string
	executiveSummary string
	keyHighlights    []string
	recommendations  []string

	metadata map[string]string
	errors   []string
	warnings []string

	log *zap.Logger
}

// New creates an empty board for a fresh document run.
func New() *Board {
	return &Board{
		RunID:            uuid.New().String(),
		CreatedAt:        time.Now(),
		nodes:            make(map[string]map[string]string),
		nodeStatus:       make(map[string]NodeStatus),
		nodeResults:      make(map[string]NodeResult),
		nodeDependencies: make(map[string][]string),
		completedTasks:   make(map[string]bool),

		sectionSummaries:     make(map[string]string),
		sectionFindings:      make(map[string]map[string][]map[string]any),
		sectionMetrics:       make(map[string][]Metric),
		sectionRisks:         make(map[string][]Risk),
		sectionOpportunities: make(map[string][]Opportunity),

		crossReferences: make(map[string][]string),
		kgEntities:      make(map[string][]string),
		kgRelationships: make(map[string][]string),
		kgSummary:       make(map[string]any),
		metadata:        make(map[string]string),

		log: logging.Get(logging.CategoryWorkflow),
	}
}

// AddChunk ingests a chunk. Chunks are immutable afterwards; only the
// processed flag changes.
func (b *Board) AddChunk(c document.Chunk) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, chunkState{Chunk: c})
}

// Chunk returns the chunk at index.
func (b *Board) Chunk(index int) (document.Chunk, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if index < 0 || index >= len(b.chunks) {
		return document.Chunk{}, false
	}
	return b.chunks[index].Chunk, true
}

// ChunkCount returns the number of ingested chunks.
func (b *Board) ChunkCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chunks)
}

// MarkChunkProcessed flags the chunk at index as processed.
func (b *Board) MarkChunkProcessed(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index >= 0 && index < len(b.chunks) {
		b.chunks[index].Processed = true
	}
}

// ProcessedChunks counts processed chunks.
func (b *Board) ProcessedChunks() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, c := range b.chunks {
		if c.Processed {
			n++
		}
	}
	return n
}

// SetCurrentChunk updates the loop cursor.
func (b *Board) SetCurrentChunk(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentChunkIndex = index
}

// AddNode registers a node with optional dependency gating.
func (b *Board) AddNode(nodeID string, config map[string]string, dependencies []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[nodeID] = config
	b.nodeStatus[nodeID] = NodePending
	if len(dependencies) > 0 {
		b.nodeDependencies[nodeID] = dependencies
	}
}

// UpdateNodeStatus sets a node's status.
func (b *Board) UpdateNodeStatus(nodeID string, status NodeStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeStatus[nodeID] = status
}

// AddNodeResult records a node execution result and its status.
func (b *Board) AddNodeResult(result NodeResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeResults[result.NodeID] = result
	b.nodeStatus[result.NodeID] = result.Status
}

// CanExecuteNode reports whether every dependency of nodeID has completed.
func (b *Board) CanExecuteNode(nodeID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, dep := range b.nodeDependencies[nodeID] {
		r, ok := b.nodeResults[dep]
		if !ok || r.Status != NodeCompleted {
			return false
		}
	}
	return true
}

// AddTask enqueues a decomposed task and returns its board ID.
func (b *Board) AddTask(spec decompose.Task) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := &Task{
		ID:     uuid.New().String(),
		Spec:   spec,
		Status: "pending",
	}
	b.tasks = append(b.tasks, t)
	b.taskQueue = append(b.taskQueue, t.ID)
	return t.ID
}

// CompleteTask removes the task from the pending queue and adds it to the
// completed set. Set semantics: completing twice changes nothing.
func (b *Board) CompleteTask(taskID string, result any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.completedTasks[taskID] = true
	queue := b.taskQueue[:0]
	for _, id := range b.taskQueue {
		if id != taskID {
			queue = append(queue, id)
		}
	}
	b.taskQueue = queue

	for _, t := range b.tasks {
		if t.ID == taskID {
			t.Status = "completed"
			t.Result = result
			break
		}
	}
}

// PendingTasks returns the IDs still queued.
func (b *Board) PendingTasks() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.taskQueue))
	copy(out, b.taskQueue)
	return out
}

// CompletedTaskCount returns the size of the completed set.
func (b *Board) CompletedTaskCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.completedTasks)
}

// IsTaskCompleted reports membership in the completed set.
func (b *Board) IsTaskCompleted(taskID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.completedTasks[taskID]
}

// AddSectionSummary appends to a section's summary.
func (b *Board) AddSectionSummary(section, summary string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.sectionSummaries[section]; ok {
		b.sectionSummaries[section] = existing + "\n\n" + summary
	} else {
		b.sectionSummaries[section] = summary
	}
}

// AddSectionFinding appends a typed finding payload to a section.
func (b *Board) AddSectionFinding(section, findingType string, finding map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sectionFindings[section] == nil {
		b.sectionFindings[section] = make(map[string][]map[string]any)
	}
	b.sectionFindings[section][findingType] = append(b.sectionFindings[section][findingType], finding)
}

// AddMetric records a metric for a section.
func (b *Board) AddMetric(section string, m Metric) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sectionMetrics[section] = append(b.sectionMetrics[section], m)
}

// AddRisk records a risk for a section.
func (b *Board) AddRisk(section string, r Risk) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sectionRisks[section] = append(b.sectionRisks[section], r)
}

// AddOpportunity records an opportunity for a section.
func (b *Board) AddOpportunity(section string, o Opportunity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sectionOpportunities[section] = append(b.sectionOpportunities[section], o)
}

// AddCrossReference records that source references target.
func (b *Board) AddCrossReference(source, target string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.crossReferences[source] {
		if t == target {
			return
		}
	}
	b.crossReferences[source] = append(b.crossReferences[source], target)
}

// CrossReferences returns the sections referenced by source.
func (b *Board) CrossReferences(source string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.crossReferences[source]))
	copy(out, b.crossReferences[source])
	return out
}

// AddCollaborativeInsight appends an insight to the run log.
func (b *Board) AddCollaborativeInsight(insight memory.SharedInsight) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if insight.Timestamp.IsZero() {
		insight.Timestamp = time.Now()
	}
	b.collaborativeInsights = append(b.collaborativeInsights, insight)
}

// CollaborativeInsights returns a copy of the insight log.
func (b *Board) CollaborativeInsights() []memory.SharedInsight {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]memory.SharedInsight, len(b.collaborativeInsights))
	copy(out, b.collaborativeInsights)
	return out
}

// TrackEntities records the knowledge-graph entity IDs for a chunk.
func (b *Board) TrackEntities(chunkID string, entityIDs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kgEntities[chunkID] = entityIDs
}

// TrackRelationships records the relationship IDs for a chunk.
func (b *Board) TrackRelationships(chunkID string, relationshipIDs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kgRelationships[chunkID] = relationshipIDs
}

// SetGraphSummary stores the latest knowledge-graph summary.
func (b *Board) SetGraphSummary(summary map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kgSummary = summary
}

// SendMessage appends to both the pull-once mailbox and the audit history.
func (b *Board) SendMessage(m Message) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messageQueue = append(b.messageQueue, m)
	b.messageHistory = append(b.messageHistory, m)
}

// ReceiveMessages drains and returns all messages addressed to recipient.
func (b *Board) ReceiveMessages(recipient string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var received []Message
	remaining := b.messageQueue[:0]
	for _, m := range b.messageQueue {
		if m.Recipient == recipient {
			received = append(received, m)
		} else {
			remaining = append(remaining, m)
		}
	}
	b.messageQueue = remaining
	return received
}

// Broadcast delivers a message to every registered node except the sender.
// The history records a single wildcard entry.
func (b *Board) Broadcast(sender, content string, msgType MessageType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	now := time.Now()
	b.messageHistory = append(b.messageHistory, Message{
		ID: id, Type: msgType, Sender: sender, Recipient: "*",
		Content: content, Timestamp: now,
	})
	for nodeID := range b.nodes {
		if nodeID == sender {
			continue
		}
		b.messageQueue = append(b.messageQueue, Message{
			ID: id, Type: msgType, Sender: sender, Recipient: nodeID,
			Content: content, Timestamp: now,
		})
	}
}

// MessageHistory returns a copy of the audit log.
func (b *Board) MessageHistory() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Message, len(b.messageHistory))
	copy(out, b.messageHistory)
	return out
}

// SetGlobalReport stores the rendered final report.
func (b *Board) SetGlobalReport(report, executiveSummary string, recommendations []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalReport = report
	b.executiveSummary = executiveSummary
	b.recommendations = recommendations
}

// GlobalReport returns the stored final report, if any.
func (b *Board) GlobalReport() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.globalReport
}

// AddError appends a timestamped error note.
func (b *Board) AddError(err string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, fmt.Sprintf("[%s] %s", time.Now().Format(time.RFC3339), err))
}

// AddWarning appends a timestamped warning note. Unknown-section and
// unknown-entity references land here rather than failing the run.
func (b *Board) AddWarning(warning string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.warnings = append(b.warnings, fmt.Sprintf("[%s] %s", time.Now().Format(time.RFC3339), warning))
}

// Warnings returns a copy of the warning log.
func (b *Board) Warnings() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.warnings))
	copy(out, b.warnings)
	return out
}

// SectionSummaries returns a copy of the per-section summaries.
func (b *Board) SectionSummaries() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.sectionSummaries))
	for k, v := range b.sectionSummaries {
		out[k] = v
	}
	return out
}

// SectionFindings returns the findings recorded for a section.
func (b *Board) SectionFindings(section string) map[string][]map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string][]map[string]any, len(b.sectionFindings[section]))
	for k, v := range b.sectionFindings[section] {
		out[k] = append([]map[string]any(nil), v...)
	}
	return out
}

// AllSectionFindings returns findings for every section.
func (b *Board) AllSectionFindings() map[string]map[string][]map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]map[string][]map[string]any, len(b.sectionFindings))
	for section, byType := range b.sectionFindings {
		cp := make(map[string][]map[string]any, len(byType))
		for k, v := range byType {
			cp[k] = append([]map[string]any(nil), v...)
		}
		out[section] = cp
	}
	return out
}

// SectionMetrics returns per-section metrics.
func (b *Board) SectionMetrics() map[string][]Metric {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string][]Metric, len(b.sectionMetrics))
	for k, v := range b.sectionMetrics {
		out[k] = append([]Metric(nil), v...)
	}
	return out
}

// SectionRisks returns per-section risks.
func (b *Board) SectionRisks() map[string][]Risk {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string][]Risk, len(b.sectionRisks))
	for k, v := range b.sectionRisks {
		out[k] = append([]Risk(nil), v...)
	}
	return out
}

// SectionOpportunities returns per-section opportunities.
func (b *Board) SectionOpportunities() map[string][]Opportunity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string][]Opportunity, len(b.sectionOpportunities))
	for k, v := range b.sectionOpportunities {
		out[k] = append([]Opportunity(nil), v...)
	}
	return out
}

// Summary reports run-level progress counters.
func (b *Board) Summary() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	processed := 0
	for _, c := range b.chunks {
		if c.Processed {
			processed++
		}
	}
	completedNodes := 0
	for _, s := range b.nodeStatus {
		if s == NodeCompleted {
			completedNodes++
		}
	}
	entityCount := 0
	for _, ids := range b.kgEntities {
		entityCount += len(ids)
	}
	relationshipCount := 0
	for _, ids := range b.kgRelationships {
		relationshipCount += len(ids)
	}

	sections := make([]string, 0, len(b.sectionSummaries))
	for s := range b.sectionSummaries {
		sections = append(sections, s)
	}

	return map[string]any{
		"run_id":                 b.RunID,
		"created_at":             b.CreatedAt.Format(time.RFC3339),
		"chunks_processed":       processed,
		"total_chunks":           len(b.chunks),
		"nodes_completed":        completedNodes,
		"total_nodes":            len(b.nodes),
		"tasks_completed":        len(b.completedTasks),
		"total_tasks":            len(b.tasks),
		"sections_analyzed":      sections,
		"kg_entities_count":      entityCount,
		"kg_relationships_count": relationshipCount,
		"errors":                 len(b.errors),
		"warnings":               len(b.warnings),
	}
}
