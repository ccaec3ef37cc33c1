// Package logging provides categorized structured logging for finsight.
// Each subsystem gets a named zap logger so log output can be filtered per
// category the same way the analysis pipeline is organized.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryWorkflow  Category = "workflow"  // Orchestrator chunk loop
	CategoryGraph     Category = "kgraph"    // Knowledge graph operations
	CategoryAgents    Category = "agents"    // Section agents and sub-agents
	CategoryDecompose Category = "decompose" // Task decomposition
	CategoryMemory    Category = "memory"    // Collaborative + long-term memory
	CategoryReport    Category = "report"    // Final report generation
	CategoryStore     Category = "store"     // Persistence (checkpoints, SQLite)
)

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	loggers = make(map[Category]*zap.Logger)
)

// Options configures the logging backend.
type Options struct {
	Level   string // debug, info, warn, error
	File    string // optional log file; stderr when empty
	Verbose bool   // forces debug level
}

// Init builds the root logger. Safe to call more than once; later calls
// replace the backend for all categories.
func Init(opts Options) error {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.Set(opts.Level); err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	if opts.File != "" {
		cfg.OutputPaths = []string{opts.File}
		cfg.ErrorOutputPaths = []string{opts.File}
	}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	mu.Lock()
	root = logger
	loggers = make(map[Category]*zap.Logger)
	mu.Unlock()
	return nil
}

// SetLogger replaces the root logger directly. Used by tests.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	root = l
	loggers = make(map[Category]*zap.Logger)
	mu.Unlock()
}

// Get returns the named logger for a category.
func Get(cat Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := root.Named(string(cat))
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
