// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/kairix/ai"
	"github.com/poiesic/kairix/storage/audit"
	"github.com/poiesic/kairix/storage/neo4j"
	"gopkg.in/yaml.v3"
)

// Graph backends.
const (
	BackendNeo4j  = "neo4j"
	BackendBadger = "badger"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete runtime configuration.
type Config struct {
	Graph     GraphConfig     `yaml:"graph"`
	Audit     AuditConfig     `yaml:"audit"`
	AI        AIConfig        `yaml:"ai"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Log       LogConfig       `yaml:"log"`
}

type GraphConfig struct {
	Backend          string `yaml:"backend"`
	BadgerPath       string `yaml:"badger_path"`
	Neo4jURI         string `yaml:"neo4j_uri"`
	Neo4jUser        string `yaml:"neo4j_user"`
	Neo4jPassword    string `yaml:"neo4j_password"`
	Neo4jDatabase    string `yaml:"neo4j_database"`
	VectorDimensions int    `yaml:"vector_dimensions"`
}

type AuditConfig struct {
	Driver        string        `yaml:"driver"`
	SQLitePath    string        `yaml:"sqlite_path"`
	PostgresDSN   string        `yaml:"postgres_dsn"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

type AIConfig struct {
	InferenceHost      string `yaml:"inference_host"`
	EmbeddingHost      string `yaml:"embedding_host"`
	APIKey             string `yaml:"api_key"`
	SummarizerModel    string `yaml:"summarizer_model"`
	EmbedderModel      string `yaml:"embedder_model"`
	ChunkStrategy      string `yaml:"chunk_strategy"`
	ChunkSize          int    `yaml:"chunk_size"`
	ChunkOverlap       int    `yaml:"chunk_overlap"`
	EmbeddingBatchSize int    `yaml:"embedding_batch_size"`
}

type IngestionConfig struct {
	Dir      string   `yaml:"dir"`
	Enabled  bool     `yaml:"enabled"`
	Schedule string   `yaml:"schedule"`
	Patterns []string `yaml:"patterns"`
}

type SynthesisConfig struct {
	Agent     string `yaml:"agent"`
	KeyPrefix string `yaml:"key_prefix"`
	Workers   int    `yaml:"workers"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	neoDefaults := neo4j.DefaultConfig()
	return &Config{
		Graph: GraphConfig{
			Backend:          BackendNeo4j,
			BadgerPath:       "kairix-graph",
			Neo4jURI:         neoDefaults.URI,
			Neo4jUser:        neoDefaults.Username,
			Neo4jDatabase:    neoDefaults.Database,
			VectorDimensions: neoDefaults.VectorDimensions,
		},
		Audit: AuditConfig{
			Driver:        audit.DriverSQLite,
			SQLitePath:    "conversations.db",
			SlowThreshold: 200 * time.Millisecond,
		},
		AI: AIConfig{
			InferenceHost:      aiDefaults.InferenceHost,
			EmbeddingHost:      aiDefaults.EmbeddingHost,
			APIKey:             aiDefaults.APIKey,
			SummarizerModel:    aiDefaults.SummarizerModel,
			EmbedderModel:      aiDefaults.EmbeddingModel,
			ChunkStrategy:      aiDefaults.ChunkStrategy,
			ChunkSize:          aiDefaults.ChunkSize,
			ChunkOverlap:       aiDefaults.ChunkOverlap,
			EmbeddingBatchSize: aiDefaults.EmbeddingBatchSize,
		},
		Ingestion: IngestionConfig{
			Enabled:  true,
			Schedule: "@hourly",
			Patterns: []string{"*.json", "*.txt", "*.log"},
		},
		Synthesis: SynthesisConfig{
			Agent:   "kairix",
			Workers: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from defaults, an optional .env file, an optional
// YAML file and the environment, in that order. An empty path falls back
// to KAIRIX_CONFIG.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("KAIRIX_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	str("KAIRIX_GRAPH_BACKEND", &c.Graph.Backend)
	str("KAIRIX_BADGER_PATH", &c.Graph.BadgerPath)
	str("NEO4J_URL", &c.Graph.Neo4jURI)
	str("NEO4J_USER", &c.Graph.Neo4jUser)
	str("NEO4J_PASSWORD", &c.Graph.Neo4jPassword)
	str("NEO4J_DATABASE", &c.Graph.Neo4jDatabase)
	num("KAIRIX_VECTOR_DIMENSIONS", &c.Graph.VectorDimensions)

	str("KAIRIX_AUDIT_DRIVER", &c.Audit.Driver)
	str("SQLITE_DB_PATH", &c.Audit.SQLitePath)
	str("POSTGRES_DSN", &c.Audit.PostgresDSN)

	str("KAIRIX_INFERENCE_HOST", &c.AI.InferenceHost)
	str("KAIRIX_EMBEDDING_HOST", &c.AI.EmbeddingHost)
	str("KAIRIX_API_KEY", &c.AI.APIKey)
	str("KAIRIX_SUMMARIZER_MODEL", &c.AI.SummarizerModel)
	str("KAIRIX_EMBEDDER_MODEL", &c.AI.EmbedderModel)
	str("KAIRIX_CHUNK_STRATEGY", &c.AI.ChunkStrategy)
	num("KAIRIX_CHUNK_SIZE", &c.AI.ChunkSize)
	num("KAIRIX_CHUNK_OVERLAP", &c.AI.ChunkOverlap)
	num("KAIRIX_EMBEDDING_BATCH_SIZE", &c.AI.EmbeddingBatchSize)

	str("CHAT_LOGS_PATH", &c.Ingestion.Dir)
	if v, ok := lookup("CRON_ENABLED"); ok && v != "" {
		c.Ingestion.Enabled = strings.ToLower(strings.TrimSpace(v)) == "true"
	}
	str("KAIRIX_CRON_SCHEDULE", &c.Ingestion.Schedule)

	str("KAIRIX_AGENT", &c.Synthesis.Agent)
	str("KAIRIX_KEY_PREFIX", &c.Synthesis.KeyPrefix)
	num("KAIRIX_WORKERS", &c.Synthesis.Workers)

	str("KAIRIX_LOG_LEVEL", &c.Log.Level)
	str("KAIRIX_LOG_FILE", &c.Log.File)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate rejects unknown backends and drivers and non-positive sizes.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch c.Graph.Backend {
	case BackendNeo4j:
		if c.Graph.Neo4jURI == "" {
			return invalid("neo4j uri is required")
		}
	case BackendBadger:
		if c.Graph.BadgerPath == "" {
			return invalid("badger path is required")
		}
	default:
		return invalid("unknown graph backend %q", c.Graph.Backend)
	}
	if c.Graph.VectorDimensions <= 0 {
		return invalid("vector dimensions must be greater than 0")
	}

	switch c.Audit.Driver {
	case audit.DriverSQLite:
		if c.Audit.SQLitePath == "" {
			return invalid("sqlite path is required")
		}
	case audit.DriverPostgres:
		if c.Audit.PostgresDSN == "" {
			return invalid("postgres dsn is required")
		}
	default:
		return invalid("unknown audit driver %q", c.Audit.Driver)
	}

	if c.AI.ChunkSize <= 0 {
		return invalid("chunk size must be greater than 0")
	}
	if c.AI.EmbeddingBatchSize <= 0 {
		return invalid("embedding batch size must be greater than 0")
	}
	if c.Synthesis.Workers <= 0 {
		return invalid("workers must be greater than 0")
	}
	if len(c.Ingestion.Patterns) == 0 {
		return invalid("at least one ingestion pattern is required")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Neo4j returns the driver settings for the neo4j graph backend.
func (c *Config) Neo4j() neo4j.Config {
	cfg := neo4j.DefaultConfig()
	cfg.URI = c.Graph.Neo4jURI
	cfg.Username = c.Graph.Neo4jUser
	cfg.Password = c.Graph.Neo4jPassword
	cfg.Database = c.Graph.Neo4jDatabase
	cfg.VectorDimensions = c.Graph.VectorDimensions
	return cfg
}

// AuditStore returns the audit store settings.
func (c *Config) AuditStore() audit.Config {
	dsn := c.Audit.SQLitePath
	if c.Audit.Driver == audit.DriverPostgres {
		dsn = c.Audit.PostgresDSN
	}
	return audit.Config{
		Driver:        c.Audit.Driver,
		DSN:           dsn,
		SlowThreshold: c.Audit.SlowThreshold,
	}
}

// Provider returns the model provider settings.
func (c *Config) Provider() *ai.Config {
	return ai.NewConfig(
		ai.WithInferenceHost(c.AI.InferenceHost),
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithSummarizerModel(c.AI.SummarizerModel),
		ai.WithEmbeddingModel(c.AI.EmbedderModel),
		ai.WithChunking(c.AI.ChunkStrategy, c.AI.ChunkSize, c.AI.ChunkOverlap),
		ai.WithEmbeddingBatchSize(c.AI.EmbeddingBatchSize),
	)
}
