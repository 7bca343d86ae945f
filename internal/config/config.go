// Package config loads DIP reader configuration from YAML with environment
// overrides. A missing config file yields defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all DIP reader configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Archive and store locations
	Archive ArchiveConfig `yaml:"archive"`

	// Vector engine behavior
	Vector VectorConfig `yaml:"vector"`

	// Embedding provider
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ArchiveConfig configures the archive root and relational store file.
type ArchiveConfig struct {
	// Root is the directory holding the package manifest and document tree.
	Root string `yaml:"root"`

	// DatabasePath is the SQLite file holding both the relational model and
	// the vector backend. One file per archive identity.
	DatabasePath string `yaml:"database_path"`
}

// VectorConfig configures the similarity engine.
type VectorConfig struct {
	// Dimensions must match the embedding provider output.
	Dimensions int `yaml:"dimensions"`

	// FallbackFloor discards fallback-scan results scoring below it.
	FallbackFloor float64 `yaml:"fallback_floor"`

	// NativeFloor applies the same cut to the native backend. Zero keeps the
	// historical behavior of accepting everything the extension returns.
	NativeFloor float64 `yaml:"native_floor"`

	// ValidateDocID rejects vector writes whose doc id has no document row.
	ValidateDocID bool `yaml:"validate_doc_id"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider: "ollama" or "genai"
	Provider string `yaml:"provider"`

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`
}

// LoggingConfig configures the categorized debug logger.
type LoggingConfig struct {
	Level     string `yaml:"level"` // debug, info, warn, error
	DebugMode bool   `yaml:"debug_mode"`

	// Categories toggles individual log categories; unlisted ones stay on.
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "dipreader",
		Version: "0.3.0",

		Archive: ArchiveConfig{
			Root:         ".",
			DatabasePath: "data/archive.db",
		},

		Vector: VectorConfig{
			Dimensions:    384,
			FallbackFloor: 0.25,
			NativeFloor:   0,
			ValidateDocID: true,
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "all-minilm",
			GenAIModel:     "gemini-embedding-001",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	if c.Vector.Dimensions <= 0 {
		return fmt.Errorf("vector dimensions must be positive, got %d", c.Vector.Dimensions)
	}
	if c.Vector.FallbackFloor < 0 || c.Vector.FallbackFloor > 1 {
		return fmt.Errorf("fallback floor must be in [0,1], got %v", c.Vector.FallbackFloor)
	}
	if c.Vector.NativeFloor < 0 || c.Vector.NativeFloor > 1 {
		return fmt.Errorf("native floor must be in [0,1], got %v", c.Vector.NativeFloor)
	}
	switch c.Embedding.Provider {
	case "ollama", "genai":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
	}
	if url := os.Getenv("OLLAMA_ENDPOINT"); url != "" {
		c.Embedding.OllamaEndpoint = url
	}
	if path := os.Getenv("DIPREADER_DB"); path != "" {
		c.Archive.DatabasePath = path
	}
	if root := os.Getenv("DIPREADER_ROOT"); root != "" {
		c.Archive.Root = root
	}
}
