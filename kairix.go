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


package kairix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/kairix/ai"
	"github.com/poiesic/kairix/ai/openai"
	"github.com/poiesic/kairix/config"
	"github.com/poiesic/kairix/ingestion"
	"github.com/poiesic/kairix/loader"
	"github.com/poiesic/kairix/search"
	"github.com/poiesic/kairix/storage"
	"github.com/poiesic/kairix/storage/audit"
	"github.com/poiesic/kairix/storage/badger"
	"github.com/poiesic/kairix/storage/neo4j"
	"github.com/poiesic/kairix/synthesis"
)

// System owns the stores and model provider used by every pipeline.
type System struct {
	cfg      *config.Config
	graph    storage.GraphStore
	audit    *audit.Store
	provider ai.AIProvider
	params   ai.InferenceParams
	logger   *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	graph    storage.GraphStore
	params   *ai.InferenceParams
	logger   *slog.Logger
}

// WithProvider uses provider instead of building one from the config.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) { o.provider = provider }
}

// WithGraphStore uses graph instead of opening the configured backend.
func WithGraphStore(graph storage.GraphStore) Option {
	return func(o *options) { o.graph = graph }
}

// WithInferenceParams overrides the summarization parameters.
func WithInferenceParams(params ai.InferenceParams) Option {
	return func(o *options) { o.params = &params }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Open connects the graph store, audit store and model provider described
// by cfg. Anything opened before a failure is closed again.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	params := ai.DefaultInferenceParams()
	if o.params != nil {
		params = *o.params
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	s := &System{cfg: cfg, params: params, logger: o.logger}

	var err error
	s.graph = o.graph
	if s.graph == nil {
		if s.graph, err = openGraph(ctx, cfg); err != nil {
			return nil, err
		}
	}

	if s.audit, err = audit.Open(cfg.AuditStore()); err != nil {
		s.graph.Close(ctx)
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	s.provider = o.provider
	if s.provider == nil {
		if s.provider, err = openai.NewProvider(cfg.Provider()); err != nil {
			s.audit.Close()
			s.graph.Close(ctx)
			return nil, err
		}
	}

	s.logger.Info("system opened",
		"graph", cfg.Graph.Backend,
		"audit", cfg.Audit.Driver,
		"summarizer", s.provider.Summarizer().ModelIdentifier(),
		"embedder", s.provider.Embedder().ModelIdentifier())
	return s, nil
}

func openGraph(ctx context.Context, cfg *config.Config) (storage.GraphStore, error) {
	switch cfg.Graph.Backend {
	case config.BackendBadger:
		g, err := badger.Open(cfg.Graph.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("open badger graph: %w", err)
		}
		return g, nil
	case config.BackendNeo4j:
		g, err := neo4j.Open(ctx, cfg.Neo4j())
		if err != nil {
			return nil, fmt.Errorf("open neo4j graph: %w", err)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown graph backend %q", cfg.Graph.Backend)
	}
}

// Close releases the provider and both stores.
func (s *System) Close(ctx context.Context) error {
	var errs []error
	if err := s.provider.Close(); err != nil {
		s.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := s.audit.Close(); err != nil {
		s.logger.Error("error closing audit store", "err", err)
		errs = append(errs, err)
	}
	if err := s.graph.Close(ctx); err != nil {
		s.logger.Error("error closing graph store", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *System) Config() *config.Config        { return s.cfg }
func (s *System) GraphStore() storage.GraphStore { return s.graph }
func (s *System) AuditStore() storage.AuditStore { return s.audit }
func (s *System) Provider() ai.AIProvider        { return s.provider }

// Bootstrap installs graph constraints and indexes.
func (s *System) Bootstrap(ctx context.Context) error {
	return s.graph.Bootstrap(ctx)
}

// NewOrchestrator creates a synthesis orchestrator using the configured
// worker count. Callers must Release it.
func (s *System) NewOrchestrator(opts ...synthesis.Option) (*synthesis.Orchestrator, error) {
	base := []synthesis.Option{
		synthesis.WithWorkers(s.cfg.Synthesis.Workers),
		synthesis.WithLogger(s.logger),
	}
	return synthesis.NewOrchestrator(s.graph, s.provider, s.params, append(base, opts...)...)
}

// NewIngestionJob creates an ingestion job mirroring into the graph store.
func (s *System) NewIngestionJob(opts ...ingestion.Option) (*ingestion.Job, error) {
	base := []ingestion.Option{
		ingestion.WithGraphStore(s.graph),
		ingestion.WithEnabled(s.cfg.Ingestion.Enabled),
		ingestion.WithPatterns(s.cfg.Ingestion.Patterns...),
		ingestion.WithLogger(s.logger),
	}
	return ingestion.NewJob(s.audit, s.provider, s.params, append(base, opts...)...)
}

func (s *System) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{search.WithLogger(s.logger)}
	return search.NewSearcher(s.graph, s.provider, append(base, opts...)...)
}

// LoadExport imports a ChatGPT export into the graph store.
func (s *System) LoadExport(ctx context.Context, path string) (*loader.Result, error) {
	return loader.LoadExport(ctx, s.graph, path, s.logger)
}
