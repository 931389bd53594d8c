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


package ai

import (
	"errors"
	"strings"
)

// Chunking strategies understood by providers.
const (
	ChunkByTokens    = "token"
	ChunkByCharacter = "recursive"
)

// Config holds configuration for AI service providers.
type Config struct {
	// InferenceHost is the base URL for the chat completion API used for summaries.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server
	InferenceHost string

	// EmbeddingHost is the base URL for the embedding service API.
	EmbeddingHost string

	// APIKey is sent as the bearer token. Local servers accept any value.
	APIKey string

	// SummarizerModel is the model identifier used for summaries.
	// Example: "qwen2.5:3b", "gpt-4o-mini"
	SummarizerModel string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "nomic-embed-text"
	EmbeddingModel string

	// ChunkStrategy selects the splitter: "token" or "recursive".
	ChunkStrategy string

	// ChunkSize is the maximum chunk length, in tokens or characters
	// depending on ChunkStrategy.
	ChunkSize int

	// ChunkOverlap is the overlap between consecutive chunks.
	ChunkOverlap int

	// EmbeddingBatchSize bounds how many texts are sent per embedding request.
	EmbeddingBatchSize int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithInferenceHost sets the summarization service host URL.
func WithInferenceHost(host string) ConfigOption {
	return func(c *Config) {
		c.InferenceHost = host
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithHost sets both hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.InferenceHost = host
		c.EmbeddingHost = host
	}
}

// WithAPIKey sets the API token.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithSummarizerModel sets the summarization model identifier.
func WithSummarizerModel(model string) ConfigOption {
	return func(c *Config) {
		c.SummarizerModel = model
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithChunking sets the chunk strategy, size and overlap.
func WithChunking(strategy string, size, overlap int) ConfigOption {
	return func(c *Config) {
		c.ChunkStrategy = strategy
		c.ChunkSize = size
		c.ChunkOverlap = overlap
	}
}

// WithEmbeddingBatchSize sets the embedding batch size.
func WithEmbeddingBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingBatchSize = n
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		InferenceHost:      defaultHost,
		EmbeddingHost:      defaultHost,
		APIKey:             "none",
		SummarizerModel:    "qwen2.5:3b",
		EmbeddingModel:     "nomic-embed-text",
		ChunkStrategy:      ChunkByTokens,
		ChunkSize:          512,
		ChunkOverlap:       0,
		EmbeddingBatchSize: 32,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.InferenceHost = normalizeHost(c.InferenceHost)
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	if c.APIKey == "" {
		c.APIKey = "none"
	}
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.InferenceHost == "" {
		return errors.New("ai config: InferenceHost is required")
	}
	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.SummarizerModel == "" {
		return errors.New("ai config: SummarizerModel is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.ChunkStrategy != ChunkByTokens && c.ChunkStrategy != ChunkByCharacter {
		return errors.New("ai config: ChunkStrategy must be token or recursive")
	}
	if c.ChunkSize <= 0 {
		return errors.New("ai config: ChunkSize must be greater than 0")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return errors.New("ai config: ChunkOverlap must be between 0 and ChunkSize")
	}
	if c.EmbeddingBatchSize <= 0 {
		return errors.New("ai config: EmbeddingBatchSize must be greater than 0")
	}
	return nil
}
