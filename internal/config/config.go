package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Search     SearchConfig     `yaml:"search"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Storage    StorageConfig    `yaml:"storage"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Planner    PlannerConfig    `yaml:"planner"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	APIToken string `yaml:"api_token"`
}

type GeneratorConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type SearchConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxResults int           `yaml:"max_results"`
}

type TranscribeConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	DataDir   string `yaml:"data_dir"`
	UploadDir string `yaml:"upload_dir"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type PlannerConfig struct {
	EnableCodeExecution bool `yaml:"enable_code_execution"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 5000,
		},
		Generator: GeneratorConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Model:   "gemini-1.5-flash-latest",
			Timeout: 60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			BaseURL: "http://localhost:11434",
			Model:   "nomic-embed-text",
		},
		Search: SearchConfig{
			BaseURL:    "https://api.duckduckgo.com",
			Timeout:    5 * time.Second,
			MaxResults: 3,
		},
		Transcribe: TranscribeConfig{
			BaseURL: "http://localhost:9000",
			Timeout: 120 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:   dataDir,
			UploadDir: filepath.Join(dataDir, "uploads"),
		},
		Retrieval: RetrievalConfig{
			TopK: 7,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "docqa")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docqa"
	}
	return filepath.Join(home, ".docqa")
}

// Load reads configuration in ascending precedence: built-in defaults, the
// YAML config file (DOCQA_CONFIG or $XDG_CONFIG_HOME/docqa/config.yaml),
// a .env file in the working directory, then DOCQA_* environment variables.
//
// The generator API key is required; Load fails without it so the server
// never starts half-configured.
func Load() (Config, error) {
	// Populate the environment from .env if present, without overriding
	// variables already set by the caller.
	_ = godotenv.Load()

	cfg := defaults()

	path := configFilePath()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Generator.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: generator API key (set DOCQA_GENERATOR_API_KEY or generator.api_key in config.yaml)")
	}

	return cfg, nil
}

// configFilePath returns the config file to read, or "" when none exists.
func configFilePath() string {
	if p := os.Getenv("DOCQA_CONFIG"); p != "" {
		return p
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	p := filepath.Join(base, "docqa", "config.yaml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setInt("DOCQA_PORT", &cfg.Server.Port)
	setString("DOCQA_API_TOKEN", &cfg.Server.APIToken)
	setString("DOCQA_GENERATOR_BASE_URL", &cfg.Generator.BaseURL)
	setString("DOCQA_GENERATOR_API_KEY", &cfg.Generator.APIKey)
	setString("DOCQA_GENERATOR_MODEL", &cfg.Generator.Model)
	setDuration("DOCQA_GENERATOR_TIMEOUT", &cfg.Generator.Timeout)
	setString("DOCQA_EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL)
	setString("DOCQA_EMBEDDING_MODEL", &cfg.Embedding.Model)
	setString("DOCQA_SEARCH_BASE_URL", &cfg.Search.BaseURL)
	setDuration("DOCQA_SEARCH_TIMEOUT", &cfg.Search.Timeout)
	setInt("DOCQA_SEARCH_MAX_RESULTS", &cfg.Search.MaxResults)
	setString("DOCQA_TRANSCRIBE_BASE_URL", &cfg.Transcribe.BaseURL)
	setDuration("DOCQA_TRANSCRIBE_TIMEOUT", &cfg.Transcribe.Timeout)
	setString("DOCQA_DATA_DIR", &cfg.Storage.DataDir)
	setString("DOCQA_UPLOAD_DIR", &cfg.Storage.UploadDir)
	setInt("DOCQA_RETRIEVAL_TOP_K", &cfg.Retrieval.TopK)
	setBool("DOCQA_ENABLE_CODE_EXECUTION", &cfg.Planner.EnableCodeExecution)
	setString("DOCQA_LOG_LEVEL", &cfg.Log.Level)
}

// KV is a single config key/value pair for display.
type KV struct {
	Key   string
	Value string
}

// ShowAll flattens the config into sorted key/value pairs for `config show`.
// Secrets are masked.
func ShowAll(cfg Config) []KV {
	mask := func(s string) string {
		if s == "" {
			return "(unset)"
		}
		return "****"
	}
	kvs := []KV{
		{"server.port", strconv.Itoa(cfg.Server.Port)},
		{"server.api_token", mask(cfg.Server.APIToken)},
		{"generator.base_url", cfg.Generator.BaseURL},
		{"generator.api_key", mask(cfg.Generator.APIKey)},
		{"generator.model", cfg.Generator.Model},
		{"generator.timeout", cfg.Generator.Timeout.String()},
		{"embedding.base_url", cfg.Embedding.BaseURL},
		{"embedding.model", cfg.Embedding.Model},
		{"search.base_url", cfg.Search.BaseURL},
		{"search.timeout", cfg.Search.Timeout.String()},
		{"search.max_results", strconv.Itoa(cfg.Search.MaxResults)},
		{"transcribe.base_url", cfg.Transcribe.BaseURL},
		{"transcribe.timeout", cfg.Transcribe.Timeout.String()},
		{"storage.data_dir", cfg.Storage.DataDir},
		{"storage.upload_dir", cfg.Storage.UploadDir},
		{"retrieval.top_k", strconv.Itoa(cfg.Retrieval.TopK)},
		{"planner.enable_code_execution", strconv.FormatBool(cfg.Planner.EnableCodeExecution)},
		{"log.level", cfg.Log.Level},
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].Key < kvs[j].Key })
	return kvs
}
