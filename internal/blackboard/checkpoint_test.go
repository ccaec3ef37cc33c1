package blackboard

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/decompose"
	"finsight/internal/document"
	"finsight/internal/memory"
)

func populatedBoard() *Board {
	b := New()
	b.AddChunk(document.Chunk{ID: "chunk_0", Content: "alpha", SectionHint: document.SectionMDNA})
	b.AddChunk(document.Chunk{ID: "chunk_1", Content: "beta"})
	b.MarkChunkProcessed(0)

	id := b.AddTask(decompose.Task{Type: decompose.TaskFinancialAnalysis, Priority: 5, Content: "alpha"})
	b.AddTask(decompose.Task{Type: decompose.TaskRiskAssessment, Priority: 4, Content: "alpha"})
	b.CompleteTask(id, map[string]any{"ok": true})

	b.AddSectionSummary("mdna", "first")
	b.AddSectionSummary("mdna", "second")
	b.AddSectionFinding("mdna", "sentiment_analysis", map[string]any{"label": "positive"})
	b.AddMetric("mdna", Metric{Type: "revenue", Value: "5.2", Unit: "billion"})
	b.AddRisk("mdna", Risk{Type: "market", Priority: "high", Source: "model", Score: 0.8})
	b.AddOpportunity("mdna", Opportunity{Description: "expansion opportunity"})
	b.AddCrossReference("mdna", "esg")
	b.AddCollaborativeInsight(memory.SharedInsight{
		AgentName:   "mdna_memory",
		SectionName: "mdna",
		InsightType: "sentiment_trend",
		Content:     "steady positive tone",
		Confidence:  0.8,
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	b.TrackEntities("chunk_0", []string{"e1"})
	b.TrackRelationships("chunk_0", []string{"r1"})
	b.AddWarning("minor issue")
	return b
}

func TestCheckpointRoundTrip(t *testing.T) {
	b := populatedBoard()
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, b.SaveCheckpoint(path))

	restored, err := LoadCheckpoint(path)
	require.NoError(t, err)

	assert.Equal(t, b.RunID, restored.RunID)
	assert.Equal(t, b.ChunkCount(), restored.ChunkCount())
	assert.Equal(t, b.ProcessedChunks(), restored.ProcessedChunks())
	assert.Equal(t, b.PendingTasks(), restored.PendingTasks())
	assert.Equal(t, b.CompletedTaskCount(), restored.CompletedTaskCount())
	assert.Equal(t, b.CrossReferences("mdna"), restored.CrossReferences("mdna"))
	assert.Equal(t, b.Warnings(), restored.Warnings())

	if diff := cmp.Diff(b.SectionSummaries(), restored.SectionSummaries()); diff != "" {
		t.Errorf("summaries mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(b.SectionMetrics(), restored.SectionMetrics()); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(b.SectionRisks(), restored.SectionRisks()); diff != "" {
		t.Errorf("risks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(b.SectionOpportunities(), restored.SectionOpportunities()); diff != "" {
		t.Errorf("opportunities mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(b.CollaborativeInsights(), restored.CollaborativeInsights()); diff != "" {
		t.Errorf("insights mismatch (-want +got):\n%s", diff)
	}

	// Numbers decode as float64; compare findings structurally by key.
	restoredFindings := restored.SectionFindings("mdna")
	require.Len(t, restoredFindings["sentiment_analysis"], 1)
	assert.Equal(t, "positive", restoredFindings["sentiment_analysis"][0]["label"])
}

func TestCheckpointResumeContinuesRun(t *testing.T) {
	b := populatedBoard()
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, b.SaveCheckpoint(path))

	restored, err := LoadCheckpoint(path)
	require.NoError(t, err)

	// The restored board stays fully mutable.
	id := restored.AddTask(decompose.Task{Type: decompose.TaskMarketAnalysis, Priority: 3})
	restored.CompleteTask(id, nil)
	assert.Equal(t, b.CompletedTaskCount()+1, restored.CompletedTaskCount())

	restored.MarkChunkProcessed(1)
	assert.Equal(t, 2, restored.ProcessedChunks())
}

func TestSaveCheckpointWhileBoardMutates(t *testing.T) {
	b := populatedBoard()
	dir := t.TempDir()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			b.AddMetric("mdna", Metric{Type: "revenue", Value: "5.2"})
			b.AddSectionFinding("mdna", "sentiment_analysis", map[string]any{"label": "positive"})
			b.AddCrossReference("mdna", "esg")
		}
	}()

	for i := 0; i < 10; i++ {
		require.NoError(t, b.SaveCheckpoint(filepath.Join(dir, "checkpoint.json")))
	}
	<-done

	restored, err := LoadCheckpoint(filepath.Join(dir, "checkpoint.json"))
	require.NoError(t, err)
	assert.Equal(t, b.RunID, restored.RunID)
}

func TestLoadCheckpointMissingFile(t *testing.T) {
	_, err := LoadCheckpoint(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadCheckpointMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	_, err := LoadCheckpoint(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}
