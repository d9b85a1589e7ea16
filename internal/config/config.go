// Package config loads and validates searchfuse configuration from YAML
// files and SEARCHFUSE_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// Config is the complete searchfuse configuration.
type Config struct {
	Search     SearchConfig     `yaml:"search" json:"search"`
	Lexical    LexicalConfig    `yaml:"lexical" json:"lexical"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Generator  GeneratorConfig  `yaml:"generator" json:"generator"`
	Corpus     CorpusConfig     `yaml:"corpus" json:"corpus"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// SearchConfig tunes retrieval behavior.
type SearchConfig struct {
	// RRFConstant is the RRF fusion smoothing parameter (k). Default 60,
	// the industry standard. Higher values reduce the impact of rank
	// differences.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// TopK is the default result count per search.
	TopK int `yaml:"top_k" json:"top_k"`

	// CandidateMultiplier scales TopK for each hybrid branch.
	CandidateMultiplier int `yaml:"candidate_multiplier" json:"candidate_multiplier"`

	// VectorTimeout bounds a single vector store call.
	VectorTimeout time.Duration `yaml:"vector_timeout" json:"vector_timeout"`
}

// LexicalConfig tunes the BM25 index.
type LexicalConfig struct {
	// K1 is the BM25 term-frequency saturation parameter.
	K1 float64 `yaml:"k1" json:"k1"`

	// B is the BM25 length-normalization parameter.
	B float64 `yaml:"b" json:"b"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env" json:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
}

// GeneratorConfig configures the chat model used for query transformations.
type GeneratorConfig struct {
	Model       string        `yaml:"model" json:"model"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	APIKeyEnv   string        `yaml:"api_key_env" json:"api_key_env"`
	Temperature float32       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// CorpusConfig configures document ingestion.
type CorpusConfig struct {
	// Dir is the directory holding .txt/.md documents to ingest.
	Dir string `yaml:"dir" json:"dir"`

	// WatchDebounce coalesces file change events before reindexing.
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		Search: SearchConfig{
			RRFConstant:         60,
			TopK:                10,
			CandidateMultiplier: 2,
			VectorTimeout:       5 * time.Second,
		},
		Lexical: LexicalConfig{
			K1: 1.5,
			B:  0.75,
		},
		Embeddings: EmbeddingsConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			APIKeyEnv:  "OPENAI_API_KEY",
			Timeout:    30 * time.Second,
			CacheSize:  4096,
		},
		Generator: GeneratorConfig{
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.1,
			MaxTokens:   512,
			Timeout:     30 * time.Second,
		},
		Corpus: CorpusConfig{
			WatchDebounce: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (optional, "" skips), then SEARCHFUSE_* environment overrides, then
// validation.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sferrors.New(sferrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", path), err)
		}
		return sferrors.New(sferrors.ErrCodeConfigInvalid,
			fmt.Sprintf("reading config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return sferrors.New(sferrors.ErrCodeConfigInvalid,
			fmt.Sprintf("parsing config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies SEARCHFUSE_* environment variable overrides.
// Env vars take priority over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEARCHFUSE_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("SEARCHFUSE_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.TopK = n
		}
	}
	if v := os.Getenv("SEARCHFUSE_BM25_K1"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Lexical.K1 = f
		}
	}
	if v := os.Getenv("SEARCHFUSE_BM25_B"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Lexical.B = f
		}
	}
	if v := os.Getenv("SEARCHFUSE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("SEARCHFUSE_EMBEDDINGS_BASE_URL"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("SEARCHFUSE_GENERATOR_MODEL"); v != "" {
		c.Generator.Model = v
	}
	if v := os.Getenv("SEARCHFUSE_GENERATOR_BASE_URL"); v != "" {
		c.Generator.BaseURL = v
	}
	if v := os.Getenv("SEARCHFUSE_CORPUS_DIR"); v != "" {
		c.Corpus.Dir = v
	}
	if v := os.Getenv("SEARCHFUSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks parameter ranges.
func (c *Config) Validate() error {
	if c.Search.RRFConstant <= 0 {
		return sferrors.New(sferrors.ErrCodeConfigInvalid,
			fmt.Sprintf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant), nil)
	}
	if c.Search.TopK <= 0 {
		return sferrors.New(sferrors.ErrCodeConfigInvalid,
			fmt.Sprintf("search.top_k must be positive, got %d", c.Search.TopK), nil)
	}
	if c.Search.CandidateMultiplier <= 0 {
		return sferrors.New(sferrors.ErrCodeConfigInvalid,
			fmt.Sprintf("search.candidate_multiplier must be positive, got %d", c.Search.CandidateMultiplier), nil)
	}
	if c.Lexical.K1 < 0 {
		return sferrors.New(sferrors.ErrCodeConfigInvalid,
			fmt.Sprintf("lexical.k1 must be non-negative, got %g", c.Lexical.K1), nil)
	}
	if c.Lexical.B < 0 || c.Lexical.B > 1 {
		return sferrors.New(sferrors.ErrCodeConfigInvalid,
			fmt.Sprintf("lexical.b must be in [0,1], got %g", c.Lexical.B), nil)
	}
	if c.Embeddings.Dimensions <= 0 {
		return sferrors.New(sferrors.ErrCodeConfigInvalid,
			fmt.Sprintf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions), nil)
	}
	return nil
}

// APIKey resolves the embeddings API key from its configured env var.
func (e EmbeddingsConfig) APIKey() string {
	return os.Getenv(e.APIKeyEnv)
}

// APIKey resolves the generator API key from its configured env var.
func (g GeneratorConfig) APIKey() string {
	return os.Getenv(g.APIKeyEnv)
}
