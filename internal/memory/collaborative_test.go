package memory

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossReferenceSymmetry(t *testing.T) {
	c := NewCollaborative()
	c.AddCrossReference("mdna", "financial_statements")

	assert.Equal(t, []string{"financial_statements"}, c.RelatedSections("mdna"))
	assert.Equal(t, []string{"mdna"}, c.RelatedSections("financial_statements"))

	// Adding the same edge again changes nothing.
	c.AddCrossReference("financial_statements", "mdna")
	assert.Equal(t, []string{"financial_statements"}, c.RelatedSections("mdna"))
}

func TestCollaborativeInsightsAcrossLinkedSections(t *testing.T) {
	c := NewCollaborative()
	c.ShareInsight(SharedInsight{AgentName: "mdna_memory", SectionName: "mdna", InsightType: "sentiment_trend", Content: "positive tone"})
	c.ShareInsight(SharedInsight{AgentName: "fs_memory", SectionName: "financial_statements", InsightType: "metric", Content: "revenue up"})
	c.ShareInsight(SharedInsight{AgentName: "esg_memory", SectionName: "esg", InsightType: "sdg", Content: "goal 13"})

	c.AddCrossReference("mdna", "financial_statements")

	combined := c.CollaborativeInsights("mdna")
	require.Contains(t, combined, "mdna")
	require.Contains(t, combined, "financial_statements")
	assert.NotContains(t, combined, "esg", "unlinked sections stay out")
	assert.Len(t, combined["mdna"], 1)
	assert.Len(t, combined["financial_statements"], 1)
}

func TestSectionInsightsIncludeRelated(t *testing.T) {
	c := NewCollaborative()
	c.ShareInsight(SharedInsight{
		AgentName:       "mdna_memory",
		SectionName:     "mdna",
		Content:         "references the audit opinion",
		RelatedSections: []string{"audit_report"},
	})

	assert.Len(t, c.SectionInsights("audit_report"), 1, "related_sections attach the insight")
	assert.Len(t, c.SectionInsights("mdna"), 1)
}

func TestAgentInsightsSinceFilter(t *testing.T) {
	c := NewCollaborative()
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c.ShareInsight(SharedInsight{AgentName: "a", SectionName: "mdna", Timestamp: early})
	c.ShareInsight(SharedInsight{AgentName: "a", SectionName: "mdna", Timestamp: late})
	c.ShareInsight(SharedInsight{AgentName: "b", SectionName: "mdna", Timestamp: late})

	assert.Len(t, c.AgentInsights("a", time.Time{}), 2)
	assert.Len(t, c.AgentInsights("a", early), 1, "since filter is exclusive")
}

// recordingNotifier collects notifications for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	done  chan struct{}
}

func (n *recordingNotifier) Notify(subscriber string, insight SharedInsight) {
	n.mu.Lock()
	n.calls = append(n.calls, subscriber+":"+insight.Content)
	n.mu.Unlock()
	n.done <- struct{}{}
}

func TestShareInsightNotifiesSubscribers(t *testing.T) {
	c := NewCollaborative()
	n := &recordingNotifier{done: make(chan struct{}, 4)}
	c.SetNotifier(n)
	c.Subscribe("esg_agent", "mdna_memory")
	c.Subscribe("other_agent", "someone_else")

	c.ShareInsight(SharedInsight{AgentName: "mdna_memory", SectionName: "mdna", Content: "hello"})

	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification never arrived")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, []string{"esg_agent:hello"}, n.calls)
}

func TestCollaborativeSaveLoad(t *testing.T) {
	c := NewCollaborative()
	c.ShareInsight(SharedInsight{AgentName: "a", SectionName: "mdna", Content: "x", Timestamp: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
	c.AddCrossReference("mdna", "esg")
	c.Subscribe("esg_agent", "a")

	path := filepath.Join(t.TempDir(), "collab.json")
	require.NoError(t, c.Save(path))

	loaded := NewCollaborative()
	require.NoError(t, loaded.Load(path))
	assert.Len(t, loaded.SectionInsights("mdna"), 1)
	assert.Equal(t, []string{"esg"}, loaded.RelatedSections("mdna"))
}

func TestCollaborativeLoadMissingFileOK(t *testing.T) {
	c := NewCollaborative()
	assert.NoError(t, c.Load(filepath.Join(t.TempDir(), "absent.json")))
}
