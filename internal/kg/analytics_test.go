package kg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds a -> b -> c with an extra d -> b edge.
func chainGraph(t *testing.T) (*Graph, []string) {
	t.Helper()
	g := New(t.TempDir())
	a := g.AddEntity(Entity{Type: TypeCompany, Name: "Alpha"})
	b := g.AddEntity(Entity{Type: TypeCompany, Name: "Beta"})
	c := g.AddEntity(Entity{Type: TypeCompany, Name: "Gamma"})
	d := g.AddEntity(Entity{Type: TypeCompany, Name: "Delta"})
	g.AddRelationship(Relationship{SourceID: a, TargetID: b, Type: RelRelatedTo, Confidence: 0.6})
	g.AddRelationship(Relationship{SourceID: b, TargetID: c, Type: RelRelatedTo, Confidence: 0.6})
	g.AddRelationship(Relationship{SourceID: d, TargetID: b, Type: RelRelatedTo, Confidence: 0.6})
	return g, []string{a, b, c, d}
}

func TestFindPaths(t *testing.T) {
	g, ids := chainGraph(t)
	a, b, c := ids[0], ids[1], ids[2]

	paths := g.FindPaths(a, c, 5)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{a, b, c}, paths[0])

	assert.Empty(t, g.FindPaths(a, c, 1), "max length bounds the search")
	assert.Empty(t, g.FindPaths("missing", c, 5), "absent source yields no paths, no error")
	assert.Empty(t, g.FindPaths(c, a, 5), "paths follow edge direction")
}

func TestDegreeCentrality(t *testing.T) {
	g, ids := chainGraph(t)
	b := ids[1]

	centrality := g.Centrality(CentralityDegree)
	require.Len(t, centrality, 4)

	// Beta touches three of the other three nodes.
	assert.InDelta(t, 1.0, centrality[b], 1e-9)
	for _, id := range []string{ids[0], ids[2], ids[3]} {
		assert.Less(t, centrality[id], centrality[b])
	}
}

func TestBetweennessCentrality(t *testing.T) {
	g, ids := chainGraph(t)
	centrality := g.Centrality(CentralityBetweenness)
	require.Len(t, centrality, 4)
	assert.Greater(t, centrality[ids[1]], centrality[ids[0]], "middle node carries the shortest paths")
}

func TestEigenvectorCentralityEmptyGraph(t *testing.T) {
	g := New(t.TempDir())
	assert.Empty(t, g.Centrality(CentralityEigenvector))
}

func TestDetectCommunities(t *testing.T) {
	g := New(t.TempDir())
	a := g.AddEntity(Entity{Type: TypeCompany, Name: "Alpha"})
	b := g.AddEntity(Entity{Type: TypeCompany, Name: "Beta"})
	x := g.AddEntity(Entity{Type: TypeCompany, Name: "Xray"})
	y := g.AddEntity(Entity{Type: TypeCompany, Name: "Yankee"})
	g.AddRelationship(Relationship{SourceID: a, TargetID: b, Type: RelRelatedTo, Confidence: 0.6})
	g.AddRelationship(Relationship{SourceID: x, TargetID: y, Type: RelRelatedTo, Confidence: 0.6})

	communities := g.DetectCommunities()
	require.Len(t, communities, 2, "two disconnected pairs form two communities")

	membership := make(map[string]int)
	for i, community := range communities {
		for _, id := range community {
			membership[id] = i
		}
	}
	assert.Equal(t, membership[a], membership[b])
	assert.Equal(t, membership[x], membership[y])
	assert.NotEqual(t, membership[a], membership[x])
}

func TestSummaryStats(t *testing.T) {
	g, _ := chainGraph(t)
	stats := g.SummaryStats()
	assert.Equal(t, 4, stats.TotalEntities)
	assert.Equal(t, 3, stats.TotalRelationships)
	assert.Equal(t, 1, stats.ConnectedComponents)
	assert.Equal(t, 4, stats.EntityTypes[TypeCompany])
	assert.Greater(t, stats.Density, 0.0)
}
