// Package agents implements the section agents and the specialized
// sub-agents they orchestrate. A section agent fans tasks out to sub-agents
// concurrently; each sub-agent reads the shared knowledge graph and writes
// its findings back to the board.
package agents

import (
	"context"
	"time"

	"finsight/internal/blackboard"
	"finsight/internal/kg"
)

// TaskContext carries per-task routing information into a sub-agent run.
type TaskContext struct {
	TaskID  string
	ChunkID string
	Section string
	Recent  []string // recent section activity, oldest first
}

// Result is the outcome of one sub-agent execution.
type Result struct {
	AgentName     string            `json:"agent_name"`
	TaskID        string            `json:"task_id"`
	Output        map[string]any    `json:"output"`
	Confidence    float64           `json:"confidence"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	ExecutionTime time.Duration     `json:"execution_time"`
	Errors        []string          `json:"errors,omitempty"`
}

// SubAgent analyzes one chunk of content in the context of a task.
// Implementations isolate their own failures: analysis problems are
// reported through Result.Errors and a lowered confidence, and the error
// return is reserved for context cancellation.
type SubAgent interface {
	Name() string
	Process(ctx context.Context, content string, tc TaskContext) (Result, error)
}

// base holds the wiring every sub-agent needs.
type base struct {
	name    string
	section string
	board   *blackboard.Board
	graph   *kg.Graph
}

func (b base) Name() string { return b.name }

// sendMessage posts a board message from this agent.
func (b base) sendMessage(recipient, content string, msgType blackboard.MessageType) {
	b.board.SendMessage(blackboard.Message{
		Type:      msgType,
		Sender:    b.name,
		Recipient: recipient,
		Content:   content,
	})
}

// receiveMessages drains this agent's mailbox.
func (b base) receiveMessages() []blackboard.Message {
	return b.board.ReceiveMessages(b.name)
}
