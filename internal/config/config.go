package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"records-rag/internal/models"
)

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Salesforce SalesforceConfig `yaml:"salesforce"`
	Database   DatabaseConfig   `yaml:"database"`
	EmbedLLM   LLMConfig        `yaml:"embed_llm"`
	LLM        LLMConfig        `yaml:"llm"`
	RAG        RAGConfig        `yaml:"rag"`
	Server     ServerConfig     `yaml:"server"`
	Sources    SourcesConfig    `yaml:"sources"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SalesforceConfig holds the connected-app settings. Credentials are read
// from the environment and never from the YAML file.
type SalesforceConfig struct {
	LoginURL          string        `yaml:"login_url"`
	APIVersion        string        `yaml:"api_version"`
	DownloadURL       string        `yaml:"download_url"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	Timeout           time.Duration `yaml:"timeout"`

	Username       string `yaml:"-"`
	Password       string `yaml:"-"`
	ConsumerKey    string `yaml:"-"`
	ConsumerSecret string `yaml:"-"`
}

type DatabaseConfig struct {
	// DSN selects the exact-collection backend: postgres:// URLs use
	// Postgres, anything else is a SQLite path or file: URI.
	DSN   string `yaml:"dsn"`
	Debug bool   `yaml:"debug"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Key      string `yaml:"-"`
}

type RAGConfig struct {
	DBPath            string  `yaml:"db_path"`
	Compress          bool    `yaml:"compress"`
	EncryptionKey     string  `yaml:"-"`
	ChunkSize         int     `yaml:"chunk_size"`
	ChunkOverlap      int     `yaml:"chunk_overlap"`
	MaxDistance       float32 `yaml:"max_distance"`
	AssetsMaxDistance float32 `yaml:"assets_max_distance"`
	NResults          int     `yaml:"n_results"`
	BaseURL           string  `yaml:"base_url"`

	FilesSemanticCollection  string `yaml:"files_semantic_collection"`
	FilesExactCollection     string `yaml:"files_exact_collection"`
	AssetsSemanticCollection string `yaml:"assets_semantic_collection"`
	AssetsExactCollection    string `yaml:"assets_exact_collection"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SourcesConfig holds the record-store queries for each entity.
type SourcesConfig struct {
	Files  models.Query `yaml:"files"`
	Assets models.Query `yaml:"assets"`
	// Sync is the query used by add_document/delete_document. Falls back
	// to Files when empty.
	Sync models.Query `yaml:"sync"`
}

const (
	defaultChunkSize         = 600
	defaultChunkOverlap      = 40
	defaultMaxDistance       = 0.5
	defaultAssetsMaxDistance = 1.8
	defaultNResults          = 4
)

// LoadConfig reads the YAML file at path, loads a .env file from the
// working directory when one exists, then applies environment secrets and
// defaults. A missing YAML file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Salesforce.Username = os.Getenv("SF_USERNAME")
	cfg.Salesforce.Password = os.Getenv("SF_PASSWORD")
	cfg.Salesforce.ConsumerKey = os.Getenv("SF_CONSUMER_KEY")
	cfg.Salesforce.ConsumerSecret = os.Getenv("SF_CONSUMER_SECRET")
	if v := os.Getenv("SF_LOGIN_URL"); v != "" {
		cfg.Salesforce.LoginURL = v
	}
	cfg.EmbedLLM.Key = os.Getenv("EMBED_API_KEY")
	cfg.LLM.Key = os.Getenv("LLM_API_KEY")
	cfg.RAG.EncryptionKey = os.Getenv("RAG_ENCRYPTION_KEY")
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	sf := &cfg.Salesforce
	if sf.LoginURL == "" {
		sf.LoginURL = "https://test.salesforce.com"
	}
	if sf.APIVersion == "" {
		sf.APIVersion = "59.0"
	}
	if sf.RequestsPerSecond == 0 {
		sf.RequestsPerSecond = 10
	}
	if sf.Burst == 0 {
		sf.Burst = 5
	}
	if sf.SessionTTL == 0 {
		sf.SessionTTL = 2 * time.Hour
	}
	if sf.Timeout == 0 {
		sf.Timeout = 60 * time.Second
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:./data/exact.db"
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.EmbedLLM.BaseURL == "" && cfg.EmbedLLM.Provider == "ollama" {
		cfg.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "nomic-embed-text"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}

	rag := &cfg.RAG
	if rag.DBPath == "" {
		rag.DBPath = "./chromemdb"
	}
	if rag.ChunkSize <= 0 {
		rag.ChunkSize = defaultChunkSize
	}
	if rag.ChunkOverlap < 0 || rag.ChunkOverlap >= rag.ChunkSize {
		rag.ChunkOverlap = defaultChunkOverlap
	}
	if rag.MaxDistance <= 0 {
		rag.MaxDistance = defaultMaxDistance
	}
	if rag.AssetsMaxDistance <= 0 {
		rag.AssetsMaxDistance = defaultAssetsMaxDistance
	}
	if rag.NResults <= 0 {
		rag.NResults = defaultNResults
	}
	if rag.BaseURL == "" {
		rag.BaseURL = "http://0.0.0.0:8000"
	}
	if rag.FilesSemanticCollection == "" {
		rag.FilesSemanticCollection = "ContentVersion"
	}
	if rag.FilesExactCollection == "" {
		rag.FilesExactCollection = "exact_collection"
	}
	if rag.AssetsSemanticCollection == "" {
		rag.AssetsSemanticCollection = "assets_collection"
	}
	if rag.AssetsExactCollection == "" {
		rag.AssetsExactCollection = "assets_exact_collection"
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}

	if cfg.Sources.Files.Entity == "" {
		cfg.Sources.Files.Entity = models.EntityContentVersion
	}
	if cfg.Sources.Assets.Entity == "" {
		cfg.Sources.Assets.Entity = models.EntityKnowledge
	}
	if cfg.Sources.Sync.Entity == "" {
		cfg.Sources.Sync = cfg.Sources.Files
	}
}
