// Package config provides configuration loading for docparser.
// Supports YAML files and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for docparser.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Inference     InferenceConfig     `yaml:"inference"`
	Vertex        VertexConfig        `yaml:"vertex"`
	Cache         CacheConfig         `yaml:"cache"`
	Results       ResultsConfig       `yaml:"results"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes"`
}

// PipelineConfig holds conversion settings.
type PipelineConfig struct {
	Concurrency int           `yaml:"concurrency"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
	DPI         int           `yaml:"dpi"`
	ValidatePDF bool          `yaml:"validate_pdf"`
	TempDir     string        `yaml:"temp_dir"`
}

// InferenceConfig selects and configures the page transcriber.
type InferenceConfig struct {
	Provider   string        `yaml:"provider"` // openai or vertex
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Prompt     string        `yaml:"prompt"`
	MaxTokens  int           `yaml:"max_tokens"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	Referer    string        `yaml:"referer"`
	Title      string        `yaml:"title"`

	// RejectRefusals fails a page whose reply is only a canned refusal.
	RejectRefusals bool `yaml:"reject_refusals"`
}

// VertexConfig holds Vertex AI settings.
type VertexConfig struct {
	ProjectID string `yaml:"project_id"`
	Region    string `yaml:"region"`
	Model     string `yaml:"model"`
}

// CacheConfig holds transcription cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // none, memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// ResultsConfig holds result publication settings.
type ResultsConfig struct {
	Driver string `yaml:"driver"` // none or gcs
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// JobsConfig holds job history settings.
type JobsConfig struct {
	Driver     string `yaml:"driver"` // none, sqlite, postgres or firestore
	DSN        string `yaml:"dsn"`
	ProjectID  string `yaml:"project_id"`
	Collection string `yaml:"collection"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration for a local vLLM endpoint.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     15 * time.Minute,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   15 * time.Minute,
			GracefulShutdown: 30 * time.Second,
			MaxBodyBytes:     64 << 20,
		},
		Pipeline: PipelineConfig{
			Concurrency: 1,
			DPI:         150,
			ValidatePDF: true,
		},
		Inference: InferenceConfig{
			Provider:   "openai",
			BaseURL:    "http://localhost:8000/v1",
			Model:      "infly/Infinity-Parser-7B",
			Prompt:     "Please transform the document's contents into Markdown format.",
			MaxTokens:  4096,
			Timeout:    5 * time.Minute,
			MaxRetries: 3,
		},
		Vertex: VertexConfig{
			Region: "us-central1",
			Model:  "gemini-1.5-pro",
		},
		Cache: CacheConfig{
			Driver:     "none",
			TTL:        24 * time.Hour,
			MaxEntries: 1000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "docparser:",
			},
		},
		Results: ResultsConfig{
			Driver: "none",
			Prefix: "markdown/",
		},
		Jobs: JobsConfig{
			Driver:     "none",
			Collection: "conversion_jobs",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "docparser",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline concurrency must be at least 1")
	}

	if c.Pipeline.DPI < 1 || c.Pipeline.DPI > 1200 {
		return fmt.Errorf("pdf dpi must be between 1 and 1200")
	}

	switch c.Inference.Provider {
	case "openai":
		if c.Inference.BaseURL == "" {
			return fmt.Errorf("inference base_url is required")
		}
	case "vertex":
		if c.Vertex.ProjectID == "" {
			return fmt.Errorf("vertex project_id is required")
		}
	default:
		return fmt.Errorf("invalid inference provider: %s", c.Inference.Provider)
	}

	if c.Inference.MaxTokens < 1 {
		return fmt.Errorf("inference max_tokens must be positive")
	}

	if c.Cache.Driver != "none" && c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	switch c.Results.Driver {
	case "none":
	case "gcs":
		if c.Results.Bucket == "" {
			return fmt.Errorf("results bucket is required for gcs")
		}
	default:
		return fmt.Errorf("invalid results driver: %s", c.Results.Driver)
	}

	switch c.Jobs.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.Jobs.DSN == "" {
			return fmt.Errorf("jobs dsn is required for %s", c.Jobs.Driver)
		}
	case "firestore":
		if c.Jobs.ProjectID == "" {
			return fmt.Errorf("jobs project_id is required for firestore")
		}
	default:
		return fmt.Errorf("invalid jobs driver: %s", c.Jobs.Driver)
	}

	if c.Observability.LogFormat != "json" && c.Observability.LogFormat != "console" {
		return fmt.Errorf("invalid log format: %s", c.Observability.LogFormat)
	}

	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("INFERENCE_PROVIDER"); v != "" {
		cfg.Inference.Provider = v
	}

	if v := os.Getenv("INFERENCE_BASE_URL"); v != "" {
		cfg.Inference.BaseURL = v
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Inference.APIKey = v
	}

	if v := os.Getenv("INFERENCE_API_KEY"); v != "" {
		cfg.Inference.APIKey = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Inference.Model = v
	}

	if v := os.Getenv("MAX_NEW_TOKENS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.Inference.MaxTokens = n
		}
	}

	if v := os.Getenv("REJECT_REFUSALS"); v != "" {
		cfg.Inference.RejectRefusals = v == "true" || v == "1"
	}

	if v := os.Getenv("PIPELINE_CONCURRENCY"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.Pipeline.Concurrency = n
		}
	}

	if v := os.Getenv("PDF_DPI"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.Pipeline.DPI = n
		}
	}

	if v := os.Getenv("TEMP_DIR"); v != "" {
		cfg.Pipeline.TempDir = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.URL = v
	}

	if v := os.Getenv("RESULTS_BUCKET"); v != "" {
		cfg.Results.Driver = "gcs"
		cfg.Results.Bucket = v
	}

	if v := os.Getenv("JOBS_DSN"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Jobs.Driver = "sqlite"
			cfg.Jobs.DSN = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Jobs.Driver = "postgres"
			cfg.Jobs.DSN = v
		}
	}

	if v := os.Getenv("PROJECT_ID"); v != "" {
		cfg.Vertex.ProjectID = v
		cfg.Jobs.ProjectID = v
	}

	if v := os.Getenv("VERTEX_AI_REGION"); v != "" {
		cfg.Vertex.Region = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
