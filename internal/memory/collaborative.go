// Package memory provides the insight-exchange layer between section
// agents: an append-only shared insight log with pub/sub subscriptions, a
// symmetric cross-reference graph, a bounded short-term buffer, and a
// SQLite-backed long-term store.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"finsight/internal/logging"
)

// SharedInsight is an insight published by a section agent for others.
type SharedInsight struct {
	AgentName       string    `json:"agent_name"`
	SectionName     string    `json:"section_name"`
	Timestamp       time.Time `json:"timestamp"`
	InsightType     string    `json:"insight_type"`
	Content         string    `json:"content"`
	Confidence      float64   `json:"confidence"`
	RelatedSections []string  `json:"related_sections,omitempty"`
	References      []string  `json:"references,omitempty"`
}

// Notifier receives published insights. Delivery is best-effort and must
// not block the publisher.
type Notifier interface {
	Notify(subscriber string, insight SharedInsight)
}

// Collaborative is the cross-section insight exchange.
type Collaborative struct {
	mu sync.RWMutex

	insights      []SharedInsight     // append-only
	subscriptions map[string][]string // subscriber -> publishers
	crossRefs     map[string][]string // symmetric adjacency

	notifier Notifier
	log      *zap.Logger
}

// NewCollaborative creates an empty collaborative memory.
func NewCollaborative() *Collaborative {
	return &Collaborative{
		subscriptions: make(map[string][]string),
		crossRefs:     make(map[string][]string),
		log:           logging.Get(logging.CategoryMemory),
	}
}

// SetNotifier installs the subscriber notification sink.
func (c *Collaborative) SetNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

// ShareInsight appends an insight to the log and notifies subscribers of
// the publishing agent. Notification is fire-and-forget.
func (c *Collaborative) ShareInsight(insight SharedInsight) {
	if insight.Timestamp.IsZero() {
		insight.Timestamp = time.Now()
	}

	c.mu.Lock()
	c.insights = append(c.insights, insight)
	notifier := c.notifier
	var targets []string
	if notifier != nil {
		for subscriber, publishers := range c.subscriptions {
			for _, p := range publishers {
				if p == insight.AgentName {
					targets = append(targets, subscriber)
					break
				}
			}
		}
		sort.Strings(targets)
	}
	c.mu.Unlock()

	for _, subscriber := range targets {
		go notifier.Notify(subscriber, insight)
	}
}

// Subscribe registers subscriber for insights published by publisher.
func (c *Collaborative) Subscribe(subscriber, publisher string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.subscriptions[subscriber] {
		if p == publisher {
			return
		}
	}
	c.subscriptions[subscriber] = append(c.subscriptions[subscriber], publisher)
}

// AgentInsights returns insights published by an agent, optionally only
// those after since.
func (c *Collaborative) AgentInsights(agentName string, since time.Time) []SharedInsight {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []SharedInsight
	for _, i := range c.insights {
		if i.AgentName != agentName {
			continue
		}
		if !since.IsZero() && !i.Timestamp.After(since) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// SectionInsights returns insights attached to a section, either directly
// or via related_sections.
func (c *Collaborative) SectionInsights(section string) []SharedInsight {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sectionInsightsLocked(section)
}

func (c *Collaborative) sectionInsightsLocked(section string) []SharedInsight {
	var out []SharedInsight
	for _, i := range c.insights {
		if i.SectionName == section {
			out = append(out, i)
			continue
		}
		for _, related := range i.RelatedSections {
			if related == section {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// AddCrossReference links two sections; the edge is visible from both.
func (c *Collaborative) AddCrossReference(a, b string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crossRefs[a] = appendUnique(c.crossRefs[a], b)
	c.crossRefs[b] = appendUnique(c.crossRefs[b], a)
}

// RelatedSections returns sections connected to the given one.
func (c *Collaborative) RelatedSections(section string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.crossRefs[section]))
	copy(out, c.crossRefs[section])
	return out
}

// CollaborativeInsights returns, per section, the insights for the given
// section and every section cross-referenced with it.
func (c *Collaborative) CollaborativeInsights(section string) map[string][]SharedInsight {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := map[string][]SharedInsight{
		section: c.sectionInsightsLocked(section),
	}
	for _, related := range c.crossRefs[section] {
		out[related] = c.sectionInsightsLocked(related)
	}
	return out
}

// collaborativeSnapshot is the persisted form.
type collaborativeSnapshot struct {
	Insights      []SharedInsight     `json:"insights"`
	Subscriptions map[string][]string `json:"subscriptions"`
	CrossRefs     map[string][]string `json:"cross_references"`
}

// Save writes the insight log, subscriptions, and cross-references to path.
func (c *Collaborative) Save(path string) error {
	c.mu.RLock()
	snap := collaborativeSnapshot{
		Insights:      c.insights,
		Subscriptions: c.subscriptions,
		CrossRefs:     c.crossRefs,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal collaborative memory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create memory dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Load restores a previously saved snapshot. A missing file is not an
// error; a malformed one is.
func (c *Collaborative) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read collaborative memory: %w", err)
	}

	var snap collaborativeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("malformed collaborative memory file %s: %w", path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.insights = snap.Insights
	if snap.Subscriptions != nil {
		c.subscriptions = snap.Subscriptions
	}
	if snap.CrossRefs != nil {
		c.crossRefs = snap.CrossRefs
	}
	return nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
