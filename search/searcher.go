package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/kairix/ai"
	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/storage"
)

const (
	// DefaultMinScore is the similarity floor used when Recall gets a
	// non-positive minScore.
	DefaultMinScore float32 = 0.60

	// VerbatimBoost is added to shards containing every query term.
	VerbatimBoost float32 = 0.3

	// DefaultLimit caps results when Recall gets a non-positive limit.
	DefaultLimit = 10
)

// Result is a recalled memory shard.
type Result struct {
	Shard      *core.MemoryShard
	Similarity float32
	Verbatim   bool
	Score      float32
}

// Searcher recalls memory shards by similarity to a query.
type Searcher struct {
	graph    storage.GraphStore
	embedder ai.Embedder
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(graph storage.GraphStore, provider ai.AIProvider, opts ...Option) (*Searcher, error) {
	if graph == nil {
		return nil, ErrGraphStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		graph:    graph,
		embedder: provider.Embedder(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Recall returns up to limit shards whose vector_address is at least
// minScore similar to the query embedding, best first.
func (s *Searcher) Recall(ctx context.Context, query string, limit int, minScore float32) ([]*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	matches, err := s.graph.FindSimilarShards(ctx, vector, minScore, limit)
	if err != nil {
		s.logger.Error("error querying for similar shards", "err", err)
		return nil, err
	}

	queryTerms := terms(query)
	results := make([]*Result, 0, len(matches))
	for _, m := range matches {
		r := &Result{
			Shard:      m.Shard,
			Similarity: m.Score,
			Score:      m.Score,
		}
		if verbatim(m.Shard.Contents, queryTerms) {
			r.Verbatim = true
			r.Score += VerbatimBoost
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	s.logger.Debug("recall finished", "query", query, "hits", len(results))
	return results, nil
}
