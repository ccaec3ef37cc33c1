package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"finsight/internal/logging"
)

// Record is a long-term memory entry for an agent/section pair.
type Record struct {
	AgentName string            `json:"agent_name"`
	Section   string            `json:"section"`
	Key       string            `json:"key"`
	Value     map[string]string `json:"value"`
	CreatedAt time.Time         `json:"created_at"`
}

// LongTerm persists per-agent, per-section analysis records across runs in
// SQLite.
type LongTerm struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// OpenLongTerm opens (creating if needed) the long-term memory database.
func OpenLongTerm(path string) (*LongTerm, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create memory database dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	lt := &LongTerm{db: db, log: logging.Get(logging.CategoryStore)}
	if err := lt.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return lt, nil
}

func (lt *LongTerm) migrate() error {
	_, err := lt.db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_name TEXT NOT NULL,
			section TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_memory_agent_section
			ON memory_records(agent_name, section, id);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate memory database: %w", err)
	}
	return nil
}

// Upsert appends a record. History is kept; queries read the newest
// entries first.
func (lt *LongTerm) Upsert(agentName, section, key string, value map[string]string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal memory value: %w", err)
	}

	lt.mu.Lock()
	defer lt.mu.Unlock()

	_, err = lt.db.Exec(
		`INSERT INTO memory_records (agent_name, section, key, value) VALUES (?, ?, ?, ?)`,
		agentName, section, key, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to store memory record: %w", err)
	}
	lt.log.Debug("memory record stored",
		zap.String("agent", agentName),
		zap.String("section", section),
		zap.String("key", key))
	return nil
}

// QueryRecent returns up to limit most recent records for an agent/section
// pair, oldest first.
func (lt *LongTerm) QueryRecent(agentName, section string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	lt.mu.Lock()
	defer lt.mu.Unlock()

	rows, err := lt.db.Query(
		`SELECT agent_name, section, key, value, created_at
		 FROM memory_records
		 WHERE agent_name = ? AND section = ?
		 ORDER BY id DESC LIMIT ?`,
		agentName, section, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var valueJSON string
		if err := rows.Scan(&r.AgentName, &r.Section, &r.Key, &valueJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory record: %w", err)
		}
		if err := json.Unmarshal([]byte(valueJSON), &r.Value); err != nil {
			// A single corrupt row should not hide the rest.
			lt.log.Warn("skipping malformed memory record",
				zap.String("agent", r.AgentName),
				zap.String("key", r.Key),
				zap.Error(err))
			continue
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memory records: %w", err)
	}

	// Reverse to oldest-first so callers read history in order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Close releases the database handle.
func (lt *LongTerm) Close() error {
	return lt.db.Close()
}
