package blackboard

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/decompose"
	"finsight/internal/document"
)

func TestCompleteTaskSetSemantics(t *testing.T) {
	b := New()
	id := b.AddTask(decompose.Task{Type: decompose.TaskFinancialAnalysis, Priority: 5})
	other := b.AddTask(decompose.Task{Type: decompose.TaskRiskAssessment, Priority: 4})

	require.Len(t, b.PendingTasks(), 2)

	b.CompleteTask(id, "done")
	assert.Equal(t, 1, b.CompletedTaskCount())
	assert.Equal(t, []string{other}, b.PendingTasks())
	assert.True(t, b.IsTaskCompleted(id))

	// Completing again changes nothing.
	b.CompleteTask(id, "done again")
	assert.Equal(t, 1, b.CompletedTaskCount())
	assert.Equal(t, []string{other}, b.PendingTasks())
}

func TestCompleteUnknownTaskStillCounts(t *testing.T) {
	b := New()
	b.CompleteTask("never-added", nil)
	assert.Equal(t, 1, b.CompletedTaskCount())
	assert.True(t, b.IsTaskCompleted("never-added"))
}

func TestSectionSummaryAppends(t *testing.T) {
	b := New()
	b.AddSectionSummary("mdna", "first pass")
	b.AddSectionSummary("mdna", "second pass")

	assert.Equal(t, "first pass\n\nsecond pass", b.SectionSummaries()["mdna"])
}

func TestCrossReferencesDeduplicate(t *testing.T) {
	b := New()
	b.AddCrossReference("mdna", "esg")
	b.AddCrossReference("mdna", "esg")
	b.AddCrossReference("mdna", "audit_report")

	assert.Equal(t, []string{"esg", "audit_report"}, b.CrossReferences("mdna"))
}

func TestMessagesPullOnce(t *testing.T) {
	b := New()
	b.SendMessage(Message{Type: MessageInfo, Sender: "a", Recipient: "b", Content: "hello"})
	b.SendMessage(Message{Type: MessageInfo, Sender: "a", Recipient: "c", Content: "other"})

	received := b.ReceiveMessages("b")
	require.Len(t, received, 1)
	assert.Equal(t, "hello", received[0].Content)
	assert.NotEmpty(t, received[0].ID)

	assert.Empty(t, b.ReceiveMessages("b"), "mailbox drains on receive")
	assert.Len(t, b.MessageHistory(), 2, "history keeps everything")
}

func TestBroadcastSkipsSender(t *testing.T) {
	b := New()
	b.AddNode("a", nil, nil)
	b.AddNode("b", nil, nil)
	b.AddNode("c", nil, nil)

	b.Broadcast("a", "fan out", MessageInfo)

	assert.Empty(t, b.ReceiveMessages("a"))
	assert.Len(t, b.ReceiveMessages("b"), 1)
	assert.Len(t, b.ReceiveMessages("c"), 1)
}

func TestNodeDependencyGating(t *testing.T) {
	b := New()
	b.AddNode("first", nil, nil)
	b.AddNode("second", nil, []string{"first"})

	assert.True(t, b.CanExecuteNode("first"))
	assert.False(t, b.CanExecuteNode("second"))

	b.AddNodeResult(NodeResult{NodeID: "first", Status: NodeCompleted})
	assert.True(t, b.CanExecuteNode("second"))
}

func TestChunkLifecycle(t *testing.T) {
	b := New()
	b.AddChunk(document.Chunk{ID: "chunk_0", Content: "x"})
	b.AddChunk(document.Chunk{ID: "chunk_1", Content: "y"})

	assert.Equal(t, 2, b.ChunkCount())
	assert.Equal(t, 0, b.ProcessedChunks())

	b.MarkChunkProcessed(0)
	b.MarkChunkProcessed(99) // out of range, ignored
	assert.Equal(t, 1, b.ProcessedChunks())

	chunk, ok := b.Chunk(1)
	require.True(t, ok)
	assert.Equal(t, "chunk_1", chunk.ID)

	_, ok = b.Chunk(5)
	assert.False(t, ok)
}

func TestSummaryCounters(t *testing.T) {
	b := New()
	b.AddChunk(document.Chunk{ID: "chunk_0"})
	b.MarkChunkProcessed(0)
	id := b.AddTask(decompose.Task{Type: decompose.TaskFinancialAnalysis})
	b.CompleteTask(id, nil)
	b.AddSectionSummary("mdna", "summary")
	b.TrackEntities("chunk_0", []string{"e1", "e2"})
	b.AddError("boom")

	summary := b.Summary()
	assert.Equal(t, 1, summary["chunks_processed"])
	assert.Equal(t, 1, summary["total_chunks"])
	assert.Equal(t, 1, summary["tasks_completed"])
	assert.Equal(t, 2, summary["kg_entities_count"])
	assert.Equal(t, 1, summary["errors"])
	assert.Equal(t, []string{"mdna"}, summary["sections_analyzed"])
}

func TestConcurrentMutation(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.AddMetric("mdna", Metric{Type: "revenue", Value: "1"})
				b.AddRisk("mdna", Risk{Type: "market", Priority: "low", Source: "test"})
				b.AddSectionFinding("mdna", "sentiment_analysis", map[string]any{"n": j})
				b.AddWarning("w")
			}
		}()
	}
	wg.Wait()

	assert.Len(t, b.SectionMetrics()["mdna"], 400)
	assert.Len(t, b.SectionRisks()["mdna"], 400)
	assert.Len(t, b.Warnings(), 400)
}
