// Package kg implements the entity/relationship knowledge graph built up
// during document analysis: rule-based extraction, adjacency queries, graph
// analytics, duplicate merging, and JSON persistence.
//
// The graph is an explicit adjacency structure: entities and relationships
// are stored by ID with outgoing/incoming relationship indexes per entity.
// Parallel edges between the same pair are allowed; they carry distinct
// relationship IDs.
package kg

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"finsight/internal/logging"
)

// Entity types recognized by the extractor.
const (
	TypeCompany         = "COMPANY"
	TypeSubsidiary      = "SUBSIDIARY"
	TypePerson          = "PERSON"
	TypeBoardMember     = "BOARD_MEMBER"
	TypeExecutive       = "EXECUTIVE"
	TypeMetric          = "METRIC"
	TypeKPI             = "KPI"
	TypeFinancialMetric = "FINANCIAL_METRIC"
	TypeRisk            = "RISK"
	TypeOpportunity     = "OPPORTUNITY"
	TypeTarget          = "TARGET"
	TypeInitiative      = "INITIATIVE"
	TypeProduct         = "PRODUCT"
	TypeService         = "SERVICE"
	TypeMarket          = "MARKET"
	TypeRegulation      = "REGULATION"
	TypeStandard        = "STANDARD"
	TypeSDGGoal         = "SDG_GOAL"
	TypeESGMetric       = "ESG_METRIC"
)

// Relationship types.
const (
	RelHasMetric      = "HAS_METRIC"
	RelReports        = "REPORTS"
	RelFacesRisk      = "FACES_RISK"
	RelHasOpportunity = "HAS_OPPORTUNITY"
	RelLedBy          = "LED_BY"
	RelLeads          = "LEADS"
	RelBoardMemberOf  = "BOARD_MEMBER_OF"
	RelSubsidiaryOf   = "SUBSIDIARY_OF"
	RelPartnersWith   = "PARTNERS_WITH"
	RelOperatesIn     = "OPERATES_IN"
	RelCompliesWith   = "COMPLIES_WITH"
	RelTargets        = "TARGETS"
	RelAchieved       = "ACHIEVED"
	RelIncreasedBy    = "INCREASED_BY"
	RelDecreasedBy    = "DECREASED_BY"
	RelComparedTo     = "COMPARED_TO"
	RelDependsOn      = "DEPENDS_ON"
	RelRelatedTo      = "RELATED_TO"
)

// Entity is a typed fact extracted from document text.
type Entity struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
	References []string          `json:"references,omitempty"` // chunk IDs
}

// Relationship is a typed directed link between two entities.
type Relationship struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id"`
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties,omitempty"`
	References []string          `json:"references,omitempty"`
	Confidence float64           `json:"confidence"`
}

// EntityID derives a stable, content-addressed entity identifier from the
// entity type and canonical name. The same (type, name) pair always maps to
// the same ID, making repeated extraction idempotent across runs.
func EntityID(entityType, name string) string {
	canonical := strings.ToLower(strings.TrimSpace(name))
	sum := sha256.Sum256([]byte(entityType + "|" + canonical))
	return entityType + "_" + hex.EncodeToString(sum[:6])
}

// RelationshipID derives a stable identifier for a (source, type, target)
// triple. Re-extracting the same relationship merges into one edge.
func RelationshipID(sourceID, relType, targetID string) string {
	sum := sha256.Sum256([]byte(sourceID + "|" + relType + "|" + targetID))
	return "REL_" + hex.EncodeToString(sum[:6])
}

// Graph is the knowledge graph store.
//
// Mutation happens on the orchestrator's chunk loop; sub-agents only read
// during fan-out. The RWMutex keeps that safe if a caller parallelizes
// across chunks.
type Graph struct {
	mu sync.RWMutex

	entities      map[string]*Entity
	relationships map[string]*Relationship

	entityOrder []string            // insertion order, first-seen wins on merge
	typeIndex   map[string][]string // entity type -> entity IDs
	chunkIndex  map[string][]string // chunk ID -> entity IDs
	outgoing    map[string][]string // entity ID -> relationship IDs
	incoming    map[string][]string // entity ID -> relationship IDs

	storageDir string
	log        *zap.Logger
}

// New creates an empty knowledge graph persisting under storageDir.
func New(storageDir string) *Graph {
	return &Graph{
		entities:      make(map[string]*Entity),
		relationships: make(map[string]*Relationship),
		typeIndex:     make(map[string][]string),
		chunkIndex:    make(map[string][]string),
		outgoing:      make(map[string][]string),
		incoming:      make(map[string][]string),
		storageDir:    storageDir,
		log:           logging.Get(logging.CategoryGraph),
	}
}

// AddEntity inserts an entity by ID, deriving the content-addressed ID from
// (type, name) when the caller leaves it empty. On ID collision the new
// entity wins but references are unioned, so re-extraction never loses
// provenance.
func (g *Graph) AddEntity(e Entity) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addEntityLocked(e)
}

func (g *Graph) addEntityLocked(e Entity) string {
	if e.ID == "" {
		e.ID = EntityID(e.Type, e.Name)
	}
	if existing, ok := g.entities[e.ID]; ok {
		e.References = unionStrings(existing.References, e.References)
		for k, v := range existing.Properties {
			if e.Properties == nil {
				e.Properties = make(map[string]string)
			}
			if _, present := e.Properties[k]; !present {
				e.Properties[k] = v
			}
		}
		// Refresh chunk index for any new references.
		g.entities[e.ID] = &e
		for _, chunkID := range e.References {
			g.chunkIndex[chunkID] = appendUnique(g.chunkIndex[chunkID], e.ID)
		}
		return e.ID
	}

	g.entities[e.ID] = &e
	g.entityOrder = append(g.entityOrder, e.ID)
	g.typeIndex[e.Type] = append(g.typeIndex[e.Type], e.ID)
	for _, chunkID := range e.References {
		g.chunkIndex[chunkID] = appendUnique(g.chunkIndex[chunkID], e.ID)
	}
	return e.ID
}

// AddRelationship inserts a directed edge keyed by relationship ID, deriving
// the ID from (source, type, target) when the caller leaves it empty.
// Endpoints referencing unknown entities are tolerated; incremental
// extraction routinely sees an endpoint before its entity is added.
// Re-adding the same ID unions references and keeps the higher confidence.
func (g *Graph) AddRelationship(r Relationship) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addRelationshipLocked(r)
}

func (g *Graph) addRelationshipLocked(r Relationship) string {
	if r.ID == "" {
		r.ID = RelationshipID(r.SourceID, r.Type, r.TargetID)
	}
	if existing, ok := g.relationships[r.ID]; ok {
		existing.References = unionStrings(existing.References, r.References)
		if r.Confidence > existing.Confidence {
			existing.Confidence = r.Confidence
		}
		return r.ID
	}

	g.relationships[r.ID] = &r
	g.outgoing[r.SourceID] = append(g.outgoing[r.SourceID], r.ID)
	g.incoming[r.TargetID] = append(g.incoming[r.TargetID], r.ID)
	return r.ID
}

// Entity returns the entity with the given ID.
func (g *Graph) Entity(id string) (Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// EntitiesByType returns all entities of a type, in insertion order.
func (g *Graph) EntitiesByType(entityType string) []Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Entity
	for _, id := range g.typeIndex[entityType] {
		if e, ok := g.entities[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// EntitiesByChunk returns all entities extracted from a chunk.
func (g *Graph) EntitiesByChunk(chunkID string) []Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Entity
	for _, id := range g.chunkIndex[chunkID] {
		if e, ok := g.entities[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// Direction selects relationship traversal direction.
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"
)

// RelationshipsByEntity returns relationships touching an entity.
func (g *Graph) RelationshipsByEntity(entityID string, dir Direction) []Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Relationship
	seen := make(map[string]bool)
	add := func(ids []string) {
		for _, rid := range ids {
			if seen[rid] {
				continue
			}
			seen[rid] = true
			if r, ok := g.relationships[rid]; ok {
				out = append(out, *r)
			}
		}
	}

	if dir == DirectionOut || dir == DirectionBoth {
		add(g.outgoing[entityID])
	}
	if dir == DirectionIn || dir == DirectionBoth {
		add(g.incoming[entityID])
	}
	return out
}

// Subgraph returns a new graph restricted to the given entity IDs, plus
// their direct neighbors when includeNeighbors is set. Relationships are
// carried over when both endpoints survive the restriction.
func (g *Graph) Subgraph(entityIDs []string, includeNeighbors bool) *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keep := make(map[string]bool)
	for _, id := range entityIDs {
		if _, ok := g.entities[id]; ok {
			keep[id] = true
		}
	}
	if includeNeighbors {
		for _, id := range entityIDs {
			for _, rid := range g.outgoing[id] {
				if r, ok := g.relationships[rid]; ok {
					keep[r.TargetID] = true
				}
			}
			for _, rid := range g.incoming[id] {
				if r, ok := g.relationships[rid]; ok {
					keep[r.SourceID] = true
				}
			}
		}
	}

	sub := New(g.storageDir)
	for _, id := range g.entityOrder {
		if keep[id] {
			sub.addEntityLocked(*g.entities[id])
		}
	}
	for _, r := range g.sortedRelationshipIDs() {
		rel := g.relationships[r]
		if keep[rel.SourceID] && keep[rel.TargetID] {
			sub.addRelationshipLocked(*rel)
		}
	}
	return sub
}

// MergeDuplicateEntities collapses entities whose case-normalized names
// match exactly. The first-seen entity of each group survives: references
// are unioned, missing properties filled from duplicates, and relationship
// endpoints rewritten. Idempotent; a second merge is a no-op.
//
// The threshold parameter is reserved for similarity-based merging and is
// currently unused beyond exact normalized matches.
func (g *Graph) MergeDuplicateEntities(threshold float64) int {
	_ = threshold

	g.mu.Lock()
	defer g.mu.Unlock()

	groups := make(map[string][]string)
	for _, id := range g.entityOrder {
		e, ok := g.entities[id]
		if !ok {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(e.Name))
		groups[normalized] = append(groups[normalized], id)
	}

	merged := 0
	for _, ids := range groups {
		if len(ids) < 2 {
			continue
		}
		canonical := g.entities[ids[0]]
		for _, dupID := range ids[1:] {
			dup := g.entities[dupID]

			canonical.References = unionStrings(canonical.References, dup.References)
			for k, v := range dup.Properties {
				if canonical.Properties == nil {
					canonical.Properties = make(map[string]string)
				}
				if _, present := canonical.Properties[k]; !present {
					canonical.Properties[k] = v
				}
			}

			g.rewriteEndpointsLocked(dupID, canonical.ID)
			g.removeEntityLocked(dupID)
			merged++
		}
		for _, chunkID := range canonical.References {
			g.chunkIndex[chunkID] = appendUnique(g.chunkIndex[chunkID], canonical.ID)
		}
	}

	if merged > 0 {
		g.log.Debug("merged duplicate entities", zap.Int("merged", merged))
	}
	return merged
}

// rewriteEndpointsLocked redirects every relationship endpoint from oldID
// to newID, re-keying the edge so its ID stays content-derived.
func (g *Graph) rewriteEndpointsLocked(oldID, newID string) {
	var affected []string
	affected = append(affected, g.outgoing[oldID]...)
	affected = append(affected, g.incoming[oldID]...)

	seen := make(map[string]bool)
	for _, rid := range affected {
		if seen[rid] {
			continue
		}
		seen[rid] = true
		r, ok := g.relationships[rid]
		if !ok {
			continue
		}

		g.detachRelationshipLocked(r)
		delete(g.relationships, rid)

		if r.SourceID == oldID {
			r.SourceID = newID
		}
		if r.TargetID == oldID {
			r.TargetID = newID
		}
		r.ID = RelationshipID(r.SourceID, r.Type, r.TargetID)
		g.addRelationshipLocked(*r)
	}
	delete(g.outgoing, oldID)
	delete(g.incoming, oldID)
}

func (g *Graph) detachRelationshipLocked(r *Relationship) {
	g.outgoing[r.SourceID] = removeString(g.outgoing[r.SourceID], r.ID)
	g.incoming[r.TargetID] = removeString(g.incoming[r.TargetID], r.ID)
}

func (g *Graph) removeEntityLocked(id string) {
	e, ok := g.entities[id]
	if !ok {
		return
	}
	delete(g.entities, id)
	g.typeIndex[e.Type] = removeString(g.typeIndex[e.Type], id)
	for chunkID := range g.chunkIndex {
		g.chunkIndex[chunkID] = removeString(g.chunkIndex[chunkID], id)
	}
	g.entityOrder = removeString(g.entityOrder, id)
}

// Stats summarizes graph size and shape.
type Stats struct {
	TotalEntities       int            `json:"total_entities"`
	TotalRelationships  int            `json:"total_relationships"`
	EntityTypes         map[string]int `json:"entity_types"`
	AvgDegree           float64        `json:"avg_degree"`
	ConnectedComponents int            `json:"connected_components"`
	Density             float64        `json:"density"`
}

// SummaryStats computes summary statistics for the graph.
func (g *Graph) SummaryStats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := Stats{
		TotalEntities:      len(g.entities),
		TotalRelationships: len(g.relationships),
		EntityTypes:        make(map[string]int),
	}
	for t, ids := range g.typeIndex {
		if len(ids) > 0 {
			stats.EntityTypes[t] = len(ids)
		}
	}

	n := len(g.entities)
	if n > 0 {
		totalDegree := 0
		for id := range g.entities {
			totalDegree += len(g.outgoing[id]) + len(g.incoming[id])
		}
		stats.AvgDegree = float64(totalDegree) / float64(n)
		stats.ConnectedComponents = g.weaklyConnectedComponentsLocked()
	}
	if n > 1 {
		stats.Density = float64(len(g.relationships)) / float64(n*(n-1))
	}
	return stats
}

// EntityCount returns the number of entities.
func (g *Graph) EntityCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entities)
}

// RelationshipCount returns the number of relationships.
func (g *Graph) RelationshipCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.relationships)
}

// sortedRelationshipIDs returns relationship IDs in a stable order.
func (g *Graph) sortedRelationshipIDs() []string {
	ids := make([]string, 0, len(g.relationships))
	for id := range g.relationships {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sortedEntityIDs returns entity IDs in insertion order.
func (g *Graph) sortedEntityIDsLocked() []string {
	out := make([]string, len(g.entityOrder))
	copy(out, g.entityOrder)
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
