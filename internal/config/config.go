// Package config loads amanrag configuration from defaults, user and project
// YAML files, an optional .env file, and AMANRAG_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Lexical backends.
const (
	LexicalBackendBleve  = "bleve"
	LexicalBackendSQLite = "sqlite"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// ProjectConfigName is the per-project config file name.
const ProjectConfigName = ".amanrag.yaml"

// Config represents the complete amanrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Dense      DenseConfig      `yaml:"dense" json:"dense"`
	Generation GenerationConfig `yaml:"generation" json:"generation"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// PathsConfig locates the persisted corpus and dense index artifacts.
type PathsConfig struct {
	// Chunks is the newline-delimited chunk record file.
	Chunks string `yaml:"chunks" json:"chunks"`
	// Index is the persisted dense graph.
	Index string `yaml:"index" json:"index"`
	// Meta is the dense corpus source, one row per vector.
	Meta string `yaml:"meta" json:"meta"`
}

// RetrievalConfig configures the retrieval engine.
type RetrievalConfig struct {
	TopK          int     `yaml:"top_k" json:"top_k"`
	MinScore      float64 `yaml:"min_score" json:"min_score"`
	CandidatePool int     `yaml:"candidate_pool" json:"candidate_pool"`
	// Hybrid enables the dense index. When false the engine runs bm25-only.
	Hybrid         bool          `yaml:"hybrid" json:"hybrid"`
	LexicalBackend string        `yaml:"lexical_backend" json:"lexical_backend"`
	EmbedTimeout   time.Duration `yaml:"embed_timeout" json:"embed_timeout"`
}

// EmbeddingsConfig configures the query embedder.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Host       string `yaml:"host" json:"host"`
	APIKey     string `yaml:"api_key" json:"-"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`

	// BreakerThreshold consecutive failures open the circuit for BreakerTimeout.
	BreakerThreshold int           `yaml:"breaker_threshold" json:"breaker_threshold"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout" json:"breaker_timeout"`
}

// DenseConfig tunes the HNSW graph used for dense search.
type DenseConfig struct {
	M        int `yaml:"m" json:"m"`
	EfSearch int `yaml:"ef_search" json:"ef_search"`
}

// GenerationConfig configures the answer generator.
type GenerationConfig struct {
	URL             string        `yaml:"url" json:"url"`
	Model           string        `yaml:"model" json:"model"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	Disabled        bool          `yaml:"disabled" json:"disabled"`
	MaxContextChars int           `yaml:"max_context_chars" json:"max_context_chars"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr             string   `yaml:"addr" json:"addr"`
	APIKey           string   `yaml:"api_key" json:"-"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins" json:"cors_allow_origins"`
	// Watch reloads the engine when artifacts change on disk.
	Watch bool `yaml:"watch" json:"watch"`
	// TelemetryDB persists query telemetry to SQLite. Empty keeps it in memory.
	TelemetryDB string `yaml:"telemetry_db" json:"telemetry_db"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Chunks: filepath.Join("data", "chunks", "chunks.jsonl"),
			Index:  filepath.Join("artifacts", "index", "index.hnsw"),
			Meta:   filepath.Join("artifacts", "index", "meta.jsonl"),
		},
		Retrieval: RetrievalConfig{
			TopK:           5,
			MinScore:       0.30,
			CandidatePool:  20,
			Hybrid:         true,
			LexicalBackend: LexicalBackendBleve,
			EmbedTimeout:   5 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Provider:         ProviderOllama,
			Model:            "nomic-embed-text",
			Host:             "http://localhost:11434",
			CacheSize:        1000,
			BreakerThreshold: 3,
			BreakerTimeout:   30 * time.Second,
		},
		Dense: DenseConfig{
			M:        16,
			EfSearch: 64,
		},
		Generation: GenerationConfig{
			URL:             "http://localhost:11434/api/generate",
			Model:           "llama3.1",
			Timeout:         180 * time.Second,
			MaxContextChars: 1200,
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetUserConfigPath returns the user-level config path, honoring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanrag", "config.yaml")
}

// Load builds the effective configuration for dir.
// Precedence, lowest first: defaults, user config, project config,
// dir/.env, environment variables. The result is validated.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(GetUserConfigPath()); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	if err := cfg.loadYAML(filepath.Join(dir, ProjectConfigName)); err != nil {
		return nil, err
	}

	// .env never overrides variables already present in the environment.
	envPath := filepath.Join(dir, ".env")
	if fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path on top of the current values. Keys absent from the
// file keep their current value. A missing file is not an error.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies AMANRAG_* variables (highest precedence).
func (c *Config) applyEnvOverrides() error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			default:
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("AMANRAG_CHUNKS_PATH", &c.Paths.Chunks)
	str("AMANRAG_INDEX_PATH", &c.Paths.Index)
	str("AMANRAG_META_PATH", &c.Paths.Meta)

	integer("AMANRAG_TOP_K", &c.Retrieval.TopK)
	float("AMANRAG_MIN_SCORE", &c.Retrieval.MinScore)
	integer("AMANRAG_CANDIDATE_POOL", &c.Retrieval.CandidatePool)
	boolean("AMANRAG_HYBRID", &c.Retrieval.Hybrid)
	str("AMANRAG_LEXICAL_BACKEND", &c.Retrieval.LexicalBackend)
	duration("AMANRAG_EMBED_TIMEOUT", &c.Retrieval.EmbedTimeout)

	str("AMANRAG_EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	str("AMANRAG_EMBEDDINGS_MODEL", &c.Embeddings.Model)
	str("AMANRAG_EMBEDDINGS_HOST", &c.Embeddings.Host)
	str("OPENAI_API_KEY", &c.Embeddings.APIKey)
	str("AMANRAG_EMBEDDINGS_API_KEY", &c.Embeddings.APIKey)
	integer("AMANRAG_EMBEDDINGS_DIMENSIONS", &c.Embeddings.Dimensions)

	str("AMANRAG_GENERATION_URL", &c.Generation.URL)
	str("AMANRAG_GENERATION_MODEL", &c.Generation.Model)
	duration("AMANRAG_GENERATION_TIMEOUT", &c.Generation.Timeout)
	boolean("AMANRAG_DISABLE_GENERATION", &c.Generation.Disabled)

	str("AMANRAG_ADDR", &c.Server.Addr)
	str("AMANRAG_API_KEY", &c.Server.APIKey)
	if v := os.Getenv("AMANRAG_CORS_ALLOW_ORIGINS"); v != "" {
		c.Server.CORSAllowOrigins = splitCSV(v)
	}
	str("AMANRAG_TELEMETRY_DB", &c.Server.TelemetryDB)

	str("AMANRAG_LOG_LEVEL", &c.Logging.Level)
	str("AMANRAG_LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Chunks == "" && c.Paths.Meta == "" {
		errs = append(errs, errors.New("paths: at least one of chunks or meta is required"))
	}

	r := c.Retrieval
	if r.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", r.TopK))
	}
	if r.MinScore < 0 || r.MinScore > 1 {
		errs = append(errs, fmt.Errorf("retrieval.min_score must be in [0,1], got %g", r.MinScore))
	}
	if r.CandidatePool != 0 && r.CandidatePool < r.TopK {
		errs = append(errs, fmt.Errorf("retrieval.candidate_pool (%d) must be >= top_k (%d)", r.CandidatePool, r.TopK))
	}
	switch r.LexicalBackend {
	case LexicalBackendBleve, LexicalBackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("retrieval.lexical_backend must be %q or %q, got %q",
			LexicalBackendBleve, LexicalBackendSQLite, r.LexicalBackend))
	}
	if r.EmbedTimeout <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.embed_timeout must be positive, got %s", r.EmbedTimeout))
	}

	switch c.Embeddings.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderStatic:
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider must be one of ollama, openai, static, got %q", c.Embeddings.Provider))
	}
	if c.Embeddings.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("embeddings.dimensions must not be negative, got %d", c.Embeddings.Dimensions))
	}
	if c.Embeddings.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("embeddings.cache_size must not be negative, got %d", c.Embeddings.CacheSize))
	}

	if c.Dense.M <= 0 || c.Dense.EfSearch <= 0 {
		errs = append(errs, fmt.Errorf("dense.m and dense.ef_search must be positive, got %d/%d", c.Dense.M, c.Dense.EfSearch))
	}

	if !c.Generation.Disabled && c.Generation.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("generation.timeout must be positive, got %s", c.Generation.Timeout))
	}
	if c.Generation.MaxContextChars <= 0 {
		errs = append(errs, fmt.Errorf("generation.max_context_chars must be positive, got %d", c.Generation.MaxContextChars))
	}

	return errors.Join(errs...)
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Resolve makes relative artifact paths absolute against dir.
func (c *Config) Resolve(dir string) {
	for _, p := range []*string{&c.Paths.Chunks, &c.Paths.Index, &c.Paths.Meta, &c.Server.TelemetryDB, &c.Logging.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
