package kg

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Extraction pattern tables. These are deliberately rule-based: extraction
// must be deterministic so repeated runs over the same chunk produce the
// same entity set.
var (
	currencyPattern = regexp.MustCompile(`(?i)\$[\d,]+\.?\d*(?:\s*(?:million|billion|M|B))?`)
	percentPattern  = regexp.MustCompile(`(?i)\d+\.?\d*%(?:\s*(?:growth|increase|decrease|margin))?`)
	kpiPattern      = regexp.MustCompile(`(?i)(revenue|profit|EBITDA|cash flow|debt|assets|liabilities)`)

	honorificPersonPattern = regexp.MustCompile(`(?:Mr\.|Ms\.|Dr\.|Mrs\.)\s+[A-Z][a-z]+\s+[A-Z][a-z]+`)
	titledPersonPattern    = regexp.MustCompile(`[A-Z][a-z]+\s+[A-Z][a-z]+,?\s+(?:CEO|CFO|CTO|COO|President|Director|Chairman)`)

	sdgPattern = regexp.MustCompile(`(?i)(?:SDG|Sustainable Development Goal)[\s-]?(\d{1,2})`)

	riskKeywords        = []string{"risk", "threat", "challenge", "uncertainty", "exposure"}
	opportunityKeywords = []string{"opportunity", "potential", "growth", "expansion", "innovation"}

	executiveTitles = []string{"CEO", "CFO", "CTO", "COO", "President"}
)

// sentenceNameLimit bounds the name of sentence-derived entities.
const sentenceNameLimit = 100

// verbPatterns maps relationship verb phrases to relationship types.
// Matched only against entity names already extracted for the chunk.
var verbPatterns = []struct {
	re      *regexp.Regexp
	relType string
}{
	{regexp.MustCompile(`(?i)(\w+)\s+increased\s+by\s+([\d.]+%)`), RelIncreasedBy},
	{regexp.MustCompile(`(?i)(\w+)\s+decreased\s+by\s+([\d.]+%)`), RelDecreasedBy},
	{regexp.MustCompile(`(?i)(\w+)\s+led\s+by\s+(\w+)`), RelLedBy},
	{regexp.MustCompile(`(?i)(\w+)\s+faces?\s+(\w+\s+risk)`), RelFacesRisk},
	{regexp.MustCompile(`(?i)(\w+)\s+achieved?\s+(\w+)`), RelAchieved},
	{regexp.MustCompile(`(?i)(\w+)\s+targets?\s+(\w+)`), RelTargets},
}

// Pattern-matched relationships carry higher confidence than proximity
// inferences.
const (
	patternConfidence   = 0.8
	proximityConfidence = 0.6
)

// DefaultProximityWindow is the character window within which two entities
// are assumed related.
const DefaultProximityWindow = 100

// ExtractEntities runs rule-based extraction over chunk text and returns
// candidate entities referencing chunkID. Nothing is added to the graph.
func (g *Graph) ExtractEntities(text, chunkID string) []Entity {
	var entities []Entity

	// Financial metrics, percentages, named KPIs.
	metricSpecs := []struct {
		re         *regexp.Regexp
		entityType string
	}{
		{currencyPattern, TypeFinancialMetric},
		{percentPattern, TypeMetric},
		{kpiPattern, TypeKPI},
	}
	for _, spec := range metricSpecs {
		for _, loc := range spec.re.FindAllStringIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			entities = append(entities, Entity{
				ID:   EntityID(spec.entityType, value),
				Type: spec.entityType,
				Name: value,
				Properties: map[string]string{
					"value":   value,
					"context": window(text, loc[0], loc[1], 50),
				},
				References: []string{chunkID},
			})
		}
	}

	// Risk and opportunity sentences.
	for _, sentence := range strings.Split(text, ".") {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)

		if containsAny(lower, riskKeywords) {
			entities = append(entities, sentenceEntity(TypeRisk, trimmed, chunkID))
		}
		if containsAny(lower, opportunityKeywords) {
			entities = append(entities, sentenceEntity(TypeOpportunity, trimmed, chunkID))
		}
	}

	// Persons, tagged Executive vs Board Member by nearby title keywords.
	for _, re := range []*regexp.Regexp{honorificPersonPattern, titledPersonPattern} {
		for _, match := range re.FindAllString(text, -1) {
			name := strings.Trim(strings.TrimSpace(match), ",")
			role := "Board Member"
			if containsAny(name, executiveTitles) {
				role = "Executive"
			}
			entities = append(entities, Entity{
				ID:         EntityID(TypePerson, name),
				Type:       TypePerson,
				Name:       name,
				Properties: map[string]string{"role": role},
				References: []string{chunkID},
			})
		}
	}

	// SDG goal references; only goals 1-17 exist.
	for _, m := range sdgPattern.FindAllStringSubmatchIndex(text, -1) {
		numText := text[m[2]:m[3]]
		goal, err := strconv.Atoi(numText)
		if err != nil || goal < 1 || goal > 17 {
			continue
		}
		name := "SDG " + strconv.Itoa(goal)
		entities = append(entities, Entity{
			ID:   EntityID(TypeSDGGoal, name),
			Type: TypeSDGGoal,
			Name: name,
			Properties: map[string]string{
				"goal":    strconv.Itoa(goal),
				"context": window(text, m[0], m[1], 100),
			},
			References: []string{chunkID},
		})
	}

	g.log.Debug("extracted entities",
		zap.String("chunk", chunkID),
		zap.Int("count", len(entities)))
	return entities
}

// ExtractRelationships derives relationships among entities extracted from
// the same chunk, using verb-pattern matching and proximity inference.
func (g *Graph) ExtractRelationships(text string, entities []Entity, chunkID string, proximityWindow int) []Relationship {
	if proximityWindow <= 0 {
		proximityWindow = DefaultProximityWindow
	}

	var relationships []Relationship

	// Text positions of entity names, for proximity inference.
	positions := make(map[string]int)
	for _, e := range entities {
		if pos := strings.Index(text, e.Name); pos >= 0 {
			positions[e.ID] = pos
		}
	}

	// Verb-pattern relationships between already-extracted entities.
	for _, vp := range verbPatterns {
		for _, m := range vp.re.FindAllStringSubmatch(text, -1) {
			subject, object := m[1], m[2]
			for i := range entities {
				for j := range entities {
					if entities[i].ID == entities[j].ID {
						continue
					}
					if strings.Contains(entities[i].Name, subject) && strings.Contains(entities[j].Name, object) {
						relationships = append(relationships, Relationship{
							ID:         RelationshipID(entities[i].ID, vp.relType, entities[j].ID),
							SourceID:   entities[i].ID,
							TargetID:   entities[j].ID,
							Type:       vp.relType,
							Properties: map[string]string{"extracted_from": m[0]},
							References: []string{chunkID},
							Confidence: patternConfidence,
						})
					}
				}
			}
		}
	}

	// Proximity inference: entities close together in the text are likely
	// related, with the type inferred from the entity type pair.
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			posA, okA := positions[entities[i].ID]
			posB, okB := positions[entities[j].ID]
			if !okA || !okB {
				continue
			}
			distance := posA - posB
			if distance < 0 {
				distance = -distance
			}
			if distance >= proximityWindow {
				continue
			}

			relType := inferRelType(entities[i], entities[j])
			relationships = append(relationships, Relationship{
				ID:         RelationshipID(entities[i].ID, relType, entities[j].ID),
				SourceID:   entities[i].ID,
				TargetID:   entities[j].ID,
				Type:       relType,
				Properties: map[string]string{"proximity_distance": strconv.Itoa(distance)},
				References: []string{chunkID},
				Confidence: proximityConfidence,
			})
		}
	}

	g.log.Debug("extracted relationships",
		zap.String("chunk", chunkID),
		zap.Int("count", len(relationships)))
	return relationships
}

// IngestText extracts entities and relationships from chunk text, adds them
// to the graph, merges duplicates, and returns the IDs added for the chunk.
func (g *Graph) IngestText(text, chunkID string, proximityWindow int) (entityIDs, relationshipIDs []string) {
	entities := g.ExtractEntities(text, chunkID)
	for _, e := range entities {
		entityIDs = append(entityIDs, g.AddEntity(e))
	}

	relationships := g.ExtractRelationships(text, entities, chunkID, proximityWindow)
	for _, r := range relationships {
		relationshipIDs = append(relationshipIDs, g.AddRelationship(r))
	}

	g.MergeDuplicateEntities(0)
	return entityIDs, relationshipIDs
}

// inferRelType maps an entity type pair to a relationship type.
func inferRelType(a, b Entity) string {
	switch {
	case a.Type == TypePerson && b.Type == TypeCompany:
		if strings.Contains(a.Properties["role"], "Executive") || strings.Contains(a.Name, "CEO") {
			return RelLeads
		}
		return RelBoardMemberOf
	case a.Type == TypeCompany && b.Type == TypeMetric:
		return RelHasMetric
	case a.Type == TypeCompany && b.Type == TypeRisk:
		return RelFacesRisk
	default:
		return RelRelatedTo
	}
}

func sentenceEntity(entityType, sentence, chunkID string) Entity {
	name := sentence
	if len(name) > sentenceNameLimit {
		name = name[:sentenceNameLimit]
	}
	return Entity{
		ID:         EntityID(entityType, name),
		Type:       entityType,
		Name:       name,
		Properties: map[string]string{"full_text": sentence},
		References: []string{chunkID},
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// window returns text surrounding [start,end) clamped to the text bounds.
func window(text string, start, end, radius int) string {
	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	hi := end + radius
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}
