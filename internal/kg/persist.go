package kg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

const (
	entitiesFile      = "entities.json"
	relationshipsFile = "relationships.json"
)

// Save writes entities and relationships to the storage directory as JSON.
// A graph loaded from the result is query-equivalent to this one.
func (g *Graph) Save() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.storageDir == "" {
		return fmt.Errorf("knowledge graph has no storage directory configured")
	}
	if err := os.MkdirAll(g.storageDir, 0755); err != nil {
		return fmt.Errorf("failed to create knowledge dir: %w", err)
	}

	entities := make(map[string]*Entity, len(g.entities))
	for id, e := range g.entities {
		entities[id] = e
	}
	if err := writeJSON(filepath.Join(g.storageDir, entitiesFile), entities); err != nil {
		return fmt.Errorf("failed to save entities: %w", err)
	}

	relationships := make(map[string]*Relationship, len(g.relationships))
	for id, r := range g.relationships {
		relationships[id] = r
	}
	if err := writeJSON(filepath.Join(g.storageDir, relationshipsFile), relationships); err != nil {
		return fmt.Errorf("failed to save relationships: %w", err)
	}

	g.log.Info("knowledge graph saved",
		zap.String("dir", g.storageDir),
		zap.Int("entities", len(g.entities)),
		zap.Int("relationships", len(g.relationships)))
	return nil
}

// Load reads a previously saved graph from the storage directory. Missing
// files are not an error (fresh run); a file that exists but fails to parse
// is fatal, since silently dropping persisted facts corrupts later analysis.
func (g *Graph) Load() error {
	entitiesPath := filepath.Join(g.storageDir, entitiesFile)
	if data, err := os.ReadFile(entitiesPath); err == nil {
		var entities map[string]Entity
		if err := json.Unmarshal(data, &entities); err != nil {
			return fmt.Errorf("malformed entities file %s: %w", entitiesPath, err)
		}
		// Insert in stable order so first-seen semantics survive reload.
		for _, id := range sortedKeys(entities) {
			g.AddEntity(entities[id])
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read entities: %w", err)
	}

	relationshipsPath := filepath.Join(g.storageDir, relationshipsFile)
	if data, err := os.ReadFile(relationshipsPath); err == nil {
		var relationships map[string]Relationship
		if err := json.Unmarshal(data, &relationships); err != nil {
			return fmt.Errorf("malformed relationships file %s: %w", relationshipsPath, err)
		}
		for _, id := range sortedKeys(relationships) {
			g.AddRelationship(relationships[id])
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read relationships: %w", err)
	}

	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
