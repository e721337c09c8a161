package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend selects between an in-process/local model server and a hosted API.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config holds the intelligence API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds key namespace settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// ChunkingConfig holds sliding-window chunker settings.
type ChunkingConfig struct {
	WindowTokens   int    `yaml:"window_tokens"`
	OverlapTokens  int    `yaml:"overlap_tokens"`
	TokenizerModel string `yaml:"tokenizer_model"`
}

// OpenAIConfig holds hosted-API backend settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// OllamaConfig holds local model server settings.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Backend    string       `yaml:"backend"` // local, remote
	Dimensions int          `yaml:"dimensions"`
	BatchSize  int          `yaml:"batch_size"`
	OpenAI     OpenAIConfig `yaml:"openai"`
	Ollama     OllamaConfig `yaml:"ollama"`
}

// RateLimitConfig holds the remote generation sliding-window caps.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	RequestsPerDay    int `yaml:"requests_per_day"`
}

// GenerationConfig holds answer generation settings.
type GenerationConfig struct {
	Backend     string          `yaml:"backend"` // local, remote
	Temperature float32         `yaml:"temperature"`
	MaxTokens   int             `yaml:"max_tokens"`
	OpenAI      OpenAIConfig    `yaml:"openai"`
	Ollama      OllamaConfig    `yaml:"ollama"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// RetrievalConfig holds context retrieval settings.
type RetrievalConfig struct {
	SimilarityFloor  float64 `yaml:"similarity_floor"`
	DefaultTopK      int     `yaml:"default_top_k"`
	MaxContextTokens int     `yaml:"max_context_tokens"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "fksintel:"
	}
	if c.Chunking.WindowTokens <= 0 {
		c.Chunking.WindowTokens = 512
	}
	if c.Chunking.OverlapTokens <= 0 {
		c.Chunking.OverlapTokens = 50
	}
	if c.Chunking.TokenizerModel == "" {
		c.Chunking.TokenizerModel = "gpt-3.5-turbo"
	}
	if c.Embedding.Backend == "" {
		c.Embedding.Backend = BackendLocal
	}
	if c.Embedding.BatchSize <= 0 {
		if c.Embedding.Backend == BackendLocal {
			c.Embedding.BatchSize = 32
		} else {
			c.Embedding.BatchSize = 100
		}
	}
	if c.Embedding.Dimensions <= 0 {
		if c.Embedding.Backend == BackendLocal {
			c.Embedding.Dimensions = 384
		} else {
			c.Embedding.Dimensions = 1536
		}
	}
	if c.Embedding.OpenAI.Model == "" {
		c.Embedding.OpenAI.Model = "text-embedding-3-small"
	}
	if c.Embedding.Ollama.BaseURL == "" {
		c.Embedding.Ollama.BaseURL = "http://localhost:11434"
	}
	if c.Embedding.Ollama.Model == "" {
		c.Embedding.Ollama.Model = "all-minilm"
	}
	if c.Generation.Backend == "" {
		c.Generation.Backend = BackendLocal
	}
	if c.Generation.Temperature <= 0 {
		c.Generation.Temperature = 0.7
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 1000
	}
	if c.Generation.OpenAI.Model == "" {
		c.Generation.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Generation.Ollama.BaseURL == "" {
		c.Generation.Ollama.BaseURL = "http://localhost:11434"
	}
	if c.Generation.Ollama.Model == "" {
		c.Generation.Ollama.Model = "llama3.2:3b"
	}
	if c.Generation.RateLimit.RequestsPerMinute <= 0 {
		c.Generation.RateLimit.RequestsPerMinute = 15
	}
	if c.Generation.RateLimit.RequestsPerDay <= 0 {
		c.Generation.RateLimit.RequestsPerDay = 1500
	}
	if c.Retrieval.SimilarityFloor <= 0 {
		c.Retrieval.SimilarityFloor = 0.6
	}
	if c.Retrieval.DefaultTopK <= 0 {
		c.Retrieval.DefaultTopK = 5
	}
	if c.Retrieval.MaxContextTokens <= 0 {
		c.Retrieval.MaxContextTokens = 4000
	}
}

// Validate checks the configuration for correctness. Misconfiguration is
// fatal at startup, never degraded around.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Chunking.OverlapTokens >= c.Chunking.WindowTokens {
		return fmt.Errorf(
			"chunking.overlap_tokens (%d) must be strictly less than chunking.window_tokens (%d)",
			c.Chunking.OverlapTokens, c.Chunking.WindowTokens,
		)
	}
	if err := validateBackend("embedding", c.Embedding.Backend, c.Embedding.OpenAI.APIKey); err != nil {
		return err
	}
	if err := validateBackend("generation", c.Generation.Backend, c.Generation.OpenAI.APIKey); err != nil {
		return err
	}
	return nil
}

func validateBackend(section, backend, apiKey string) error {
	switch backend {
	case BackendLocal:
		return nil
	case BackendRemote:
		if apiKey == "" {
			return fmt.Errorf("%s.openai.api_key is required for the remote backend", section)
		}
		return nil
	default:
		return fmt.Errorf("%s.backend must be %q or %q, got %q", section, BackendLocal, BackendRemote, backend)
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
