// Package config loads finsight configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all finsight configuration.
type Config struct {
	// Analysis pipeline settings
	Analysis AnalysisConfig `yaml:"analysis"`

	// Storage paths
	Storage StorageConfig `yaml:"storage"`

	// External capability feature flags
	Capabilities CapabilitiesConfig `yaml:"capabilities"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// AnalysisConfig configures document processing.
type AnalysisConfig struct {
	MaxChunkChars      int    `yaml:"max_chunk_chars"`     // chunk size ceiling when splitting documents
	CheckpointInterval int    `yaml:"checkpoint_interval"` // save state every N chunks
	SubAgentTimeout    string `yaml:"sub_agent_timeout"`   // per sub-agent invocation budget, e.g. "30s"
	MemoryWindow       int    `yaml:"memory_window"`       // prior records consulted per section
	ProximityWindow    int    `yaml:"proximity_window"`    // char window for inferred relationships
}

// StorageConfig configures persistence locations.
type StorageConfig struct {
	OutputDir      string `yaml:"output_dir"`      // reports, checkpoints, graph export
	KnowledgeDir   string `yaml:"knowledge_dir"`   // knowledge graph save/load
	MemoryDatabase string `yaml:"memory_database"` // SQLite long-term memory store
}

// CapabilitiesConfig gates optional external intelligence sources.
// All default off; the engine degrades to neutral scoring without them.
type CapabilitiesConfig struct {
	EnableWebSearch  bool `yaml:"enable_web_search"`
	EnableMarketData bool `yaml:"enable_market_data"`
	EnableNews       bool `yaml:"enable_news"`
}

// LoggingConfig configures the zap backend.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			MaxChunkChars:      3000,
			CheckpointInterval: 10,
			SubAgentTimeout:    "30s",
			MemoryWindow:       10,
			ProximityWindow:    100,
		},
		Storage: StorageConfig{
			OutputDir:      "./finsight_output",
			KnowledgeDir:   "./finsight_output/knowledge",
			MemoryDatabase: "./finsight_output/memory.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file, applying defaults for any
// omitted field. A missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SubAgentTimeout returns the per sub-agent invocation budget as a
// duration, falling back to 30 seconds when unset or unparseable.
func (c *Config) SubAgentTimeout() time.Duration {
	d, err := time.ParseDuration(c.Analysis.SubAgentTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Validate checks invariants the pipeline relies on.
func (c *Config) Validate() error {
	if c.Analysis.MaxChunkChars <= 0 {
		return fmt.Errorf("analysis.max_chunk_chars must be positive, got %d", c.Analysis.MaxChunkChars)
	}
	if c.Analysis.CheckpointInterval <= 0 {
		return fmt.Errorf("analysis.checkpoint_interval must be positive, got %d", c.Analysis.CheckpointInterval)
	}
	if c.Analysis.ProximityWindow <= 0 {
		return fmt.Errorf("analysis.proximity_window must be positive, got %d", c.Analysis.ProximityWindow)
	}
	if c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir must not be empty")
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
