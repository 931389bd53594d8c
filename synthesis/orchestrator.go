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


package synthesis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kairix/ai"
	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/storage"
)

// Failure stages recorded on core.ChunkFailure.
const (
	StageSummary   = "summary"
	StageEmbedding = "embedding"
	StageShard     = "shard"
	StageCanceled  = "canceled"
)

const lockStripes = 256

// Orchestrator turns every SourceDocument in the graph into MemoryShards.
// Work is spread over a worker pool; chunks are partitioned by key so that a
// key is only ever handled by one worker per run, and a striped lock keeps
// concurrent runs from racing on the same key.
type Orchestrator struct {
	graph      storage.GraphStore
	summarizer ai.Summarizer
	embedder   ai.Embedder
	chunker    ai.Chunker
	params     ai.InferenceParams

	pool    *ants.Pool
	workers int
	locks   *keyLocks

	maxAttempts int
	baseDelay   time.Duration

	progress         io.Writer
	progressInterval int

	logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithWorkers sets the number of concurrent workers.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			n = 1
		}
		o.workers = n
		return nil
	}
}

// WithRetry sets how provider calls are retried. Default is 3 attempts
// starting at 500ms.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(o *Orchestrator) error {
		if maxAttempts < 1 {
			return ErrInvalidMaxAttempts
		}
		o.maxAttempts = maxAttempts
		o.baseDelay = baseDelay
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithProgress writes a progress line to w every interval chunks.
func WithProgress(w io.Writer, interval int) Option {
	return func(o *Orchestrator) error {
		o.progress = w
		o.progressInterval = interval
		return nil
	}
}

// NewOrchestrator creates an orchestrator. params are validated up front so
// a bad prompt fails here rather than once per chunk.
func NewOrchestrator(graph storage.GraphStore, provider ai.AIProvider, params ai.InferenceParams, opts ...Option) (*Orchestrator, error) {
	if graph == nil {
		return nil, ErrGraphStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}

	o := &Orchestrator{
		graph:       graph,
		summarizer:  provider.Summarizer(),
		embedder:    provider.Embedder(),
		chunker:     provider.Chunker(),
		params:      params,
		workers:     workers,
		locks:       newKeyLocks(lockStripes),
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return nil, err
	}
	o.pool = pool
	o.logger = o.logger.With("component", "synthesis")
	return o, nil
}

// Release stops the worker pool.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}

type edge struct {
	rel core.Relation
	to  core.NodeRef
}

type outcome struct {
	shard   *core.MemoryShard
	failure *core.ChunkFailure
}

// Synthesize chunks every SourceDocument, keys each chunk under runPrefix and
// builds a Summary, Embedding and MemoryShard for every chunk that has no
// shard yet. New shards belong to the agent named namespace.
//
// A chunk that fails is reported in Failed and the rest of the batch carries
// on. Running Synthesize again retries only the chunks without a shard and
// reuses whatever artifacts they already have.
func (o *Orchestrator) Synthesize(ctx context.Context, namespace, runPrefix string) (*core.SynthesisResult, error) {
	if namespace == "" {
		return nil, ErrNamespaceRequired
	}

	agent, err := o.resolveAgent(ctx, namespace)
	if err != nil {
		return nil, err
	}

	docs, err := o.graph.AllSourceDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source documents: %w", err)
	}
	chunks, err := collectChunks(o.chunker, docs, runPrefix)
	if err != nil {
		return nil, err
	}

	existing, err := o.graph.MemoryShardUIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list memory shards: %w", err)
	}
	done := make(map[string]struct{}, len(existing))
	for _, uid := range existing {
		done[uid] = struct{}{}
	}

	result := &core.SynthesisResult{Total: len(chunks)}
	var pending []*core.Chunk
	for _, chunk := range chunks {
		if _, ok := done[chunk.Key]; ok {
			result.Skipped++
			continue
		}
		pending = append(pending, chunk)
	}

	o.logger.Info("synthesis started",
		"agent", agent.Name,
		"documents", len(docs),
		"chunks", len(chunks),
		"pending", len(pending))
	if len(pending) == 0 {
		return result, nil
	}

	var tracker *ProgressTracker
	if o.progress != nil {
		tracker = NewProgressTracker(o.progress, len(pending), o.progressInterval)
	}

	outcomes := make([]*outcome, len(chunks))
	var wg sync.WaitGroup
	for _, group := range partition(pending, o.workers) {
		if len(group) == 0 {
			continue
		}
		group := group
		work := func() {
			defer wg.Done()
			for _, chunk := range group {
				out := o.processChunk(ctx, agent, chunk)
				outcomes[chunk.Index] = out
				if tracker != nil {
					tracker.Done(out.failure != nil)
				}
			}
		}
		wg.Add(1)
		if err := o.pool.Submit(work); err != nil {
			o.logger.Warn("worker pool rejected task, running inline", "error", err)
			work()
		}
	}
	wg.Wait()

	if tracker != nil {
		tracker.Finish()
	}

	for _, out := range outcomes {
		if out == nil {
			continue
		}
		if out.failure != nil {
			result.Failed = append(result.Failed, *out.failure)
			continue
		}
		result.Shards = append(result.Shards, out.shard)
	}

	o.logger.Info("synthesis finished",
		"agent", agent.Name,
		"shards", len(result.Shards),
		"failed", len(result.Failed),
		"skipped", result.Skipped)
	return result, nil
}

func (o *Orchestrator) resolveAgent(ctx context.Context, name string) (*core.Agent, error) {
	agent, err := o.graph.FindAgent(ctx, name)
	if err == nil {
		return agent, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("find agent %s: %w", name, err)
	}
	agent, _, err = o.graph.CreateAgent(ctx, &core.Agent{Name: name})
	if err != nil {
		return nil, fmt.Errorf("create agent %s: %w", name, err)
	}
	return agent, nil
}

// processChunk runs get-or-create for the summary, embedding and shard of
// one chunk while holding the chunk's key lock.
func (o *Orchestrator) processChunk(ctx context.Context, agent *core.Agent, chunk *core.Chunk) *outcome {
	fail := func(stage string, err error) *outcome {
		f := core.NewChunkFailure(chunk, stage, err)
		o.logger.Warn("chunk failed", "key", chunk.Key, "source", f.SourceUID, "stage", stage, "error", err)
		return &outcome{failure: &f}
	}

	if err := ctx.Err(); err != nil {
		return fail(StageCanceled, err)
	}

	unlock := o.locks.lock(chunk.Key)
	defer unlock()

	summary, err := o.resolveSummary(ctx, chunk)
	if err != nil {
		return fail(StageSummary, err)
	}
	embedding, err := o.resolveEmbedding(ctx, chunk, summary)
	if err != nil {
		return fail(StageEmbedding, err)
	}
	shard, err := o.resolveShard(ctx, agent, chunk, summary, embedding)
	if err != nil {
		return fail(StageShard, err)
	}
	return &outcome{shard: shard}
}

func (o *Orchestrator) resolveSummary(ctx context.Context, chunk *core.Chunk) (*core.Summary, error) {
	summary, err := o.graph.GetSummary(ctx, chunk.Key)
	if err == nil {
		return summary, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	var text string
	err = RetryWithBackoff(ctx, func() error {
		var predictErr error
		text, predictErr = o.summarizer.Predict(ctx, chunk.Text, o.params)
		return predictErr
	}, o.maxAttempts, o.baseDelay)
	if err != nil {
		return nil, err
	}

	summary, _, err = o.graph.CreateSummary(ctx, &core.Summary{UID: chunk.Key, Text: text})
	return summary, err
}

func (o *Orchestrator) resolveEmbedding(ctx context.Context, chunk *core.Chunk, summary *core.Summary) (*core.Embedding, error) {
	embedding, err := o.graph.GetEmbedding(ctx, chunk.Key)
	if err == nil {
		return embedding, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	var vector []float32
	err = RetryWithBackoff(ctx, func() error {
		var embedErr error
		vector, embedErr = o.embedder.EmbedText(ctx, summary.Text)
		return embedErr
	}, o.maxAttempts, o.baseDelay)
	if err != nil {
		return nil, err
	}

	embedding, _, err = o.graph.CreateEmbedding(ctx, &core.Embedding{
		UID:    chunk.Key,
		Model:  o.embedder.ModelIdentifier(),
		Vector: vector,
	})
	return embedding, err
}

// resolveShard stores the shard and its mandatory edges. The agent edge is
// only added by the call that created the shard.
func (o *Orchestrator) resolveShard(ctx context.Context, agent *core.Agent, chunk *core.Chunk, summary *core.Summary, embedding *core.Embedding) (*core.MemoryShard, error) {
	shard, created, err := o.graph.CreateMemoryShard(ctx, &core.MemoryShard{
		UID:           chunk.Key,
		Contents:      summary.Text,
		VectorAddress: embedding.Vector,
	})
	if err != nil {
		return nil, err
	}

	ref := shard.Ref()
	edges := []edge{
		{core.RelHasEmbedding, embedding.Ref()},
		{core.RelHasSummary, summary.Ref()},
		{core.RelDerivedFrom, chunk.Source.Ref()},
	}
	if created {
		edges = append(edges, edge{core.RelBelongsTo, agent.Ref()})
	}
	for _, edge := range edges {
		if err := o.graph.Connect(ctx, ref, edge.rel, edge.to); err != nil {
			return nil, fmt.Errorf("connect %s: %w", edge.rel, err)
		}
	}
	return shard, nil
}
