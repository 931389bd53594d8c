package synthesis

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/kairix/ai"
	"github.com/poiesic/kairix/ai/mock"
	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T, contents ...string) *badger.GraphStore {
	t.Helper()
	graph, err := badger.NewMemoryGraphStore()
	require.NoError(t, err)
	t.Cleanup(func() { graph.Close(context.Background()) })

	for i, content := range contents {
		_, _, err := graph.CreateSourceDocument(context.Background(), &core.SourceDocument{
			UID:        "doc-" + string(rune('a'+i)),
			Label:      "test",
			SourceType: "test",
			Content:    content,
		})
		require.NoError(t, err)
	}
	return graph
}

func newTestOrchestrator(t *testing.T, graph *badger.GraphStore, provider ai.AIProvider, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithWorkers(4), WithRetry(1, 0)}, opts...)
	orch, err := NewOrchestrator(graph, provider, ai.DefaultInferenceParams(), opts...)
	require.NoError(t, err)
	t.Cleanup(orch.Release)
	return orch
}

func TestNewOrchestrator_Validation(t *testing.T) {
	graph := newTestGraph(t)
	provider := mock.NewMockProvider()
	params := ai.DefaultInferenceParams()

	_, err := NewOrchestrator(nil, provider, params)
	assert.ErrorIs(t, err, ErrGraphStoreRequired)

	_, err = NewOrchestrator(graph, nil, params)
	assert.ErrorIs(t, err, ErrAIProviderRequired)

	bad := params
	bad.RequestedTokens = 0
	_, err = NewOrchestrator(graph, provider, bad)
	assert.ErrorIs(t, err, ai.ErrInvalidInferenceParams)

	_, err = NewOrchestrator(graph, provider, params, WithRetry(0, 0))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestSynthesize_ExactlyOnce(t *testing.T) {
	ctx := context.Background()
	graph := newTestGraph(t, "alpha", "beta")
	summarizer := mock.NewMockSummarizer("SUMMARY")
	provider := mock.NewMockProviderWithServices(summarizer, mock.NewMockEmbedder(), mock.NewFixedChunker(5))
	orch := newTestOrchestrator(t, graph, provider)

	result, err := orch.Synthesize(ctx, "kairix", "run")
	require.NoError(t, err)
	assert.Equal(t, 10, result.Total)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Shards, 10)
	for _, shard := range result.Shards {
		assert.Equal(t, "SUMMARY", shard.Contents)
		assert.Len(t, shard.VectorAddress, mock.DefaultDimensions)
	}

	counts, err := graph.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, &core.GraphCounts{SourceDocuments: 2, Agents: 1, Summaries: 10, Embeddings: 10, MemoryShards: 10}, counts)

	again, err := orch.Synthesize(ctx, "kairix", "run")
	require.NoError(t, err)
	assert.Empty(t, again.Shards)
	assert.Equal(t, 10, again.Skipped)

	after, err := graph.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, counts, after)
	assert.Equal(t, 10, summarizer.CallCount(), "second run must not call the model")
}

func TestSynthesize_KeysAreScopedByPrefix(t *testing.T) {
	ctx := context.Background()
	graph := newTestGraph(t, "alpha")
	provider := mock.NewMockProviderWithServices(mock.NewMockSummarizer(""), mock.NewMockEmbedder(), mock.NewFixedChunker(2))
	orch := newTestOrchestrator(t, graph, provider)

	_, err := orch.Synthesize(ctx, "kairix", "one")
	require.NoError(t, err)
	result, err := orch.Synthesize(ctx, "kairix", "two")
	require.NoError(t, err)
	assert.Len(t, result.Shards, 2)

	for _, shard := range result.Shards {
		assert.True(t, strings.HasPrefix(shard.UID, "two-"))
	}
}

func TestSynthesize_DuplicateChunksCollapse(t *testing.T) {
	ctx := context.Background()
	graph := newTestGraph(t, "same\n\nsame\n\nother", "same")
	provider := mock.NewMockProviderWithServices(mock.NewMockSummarizer(""), mock.NewMockEmbedder(), mock.NewMockChunker())
	orch := newTestOrchestrator(t, graph, provider)

	result, err := orch.Synthesize(ctx, "kairix", "run")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Len(t, result.Shards, 2)
}

func TestSynthesize_PartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	graph := newTestGraph(t, "doc")
	summarizer := mock.NewMockSummarizer("")
	embedder := mock.NewMockEmbedder()
	failing := true
	embedder.WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		if failing && strings.HasSuffix(text, "#2") {
			return nil, errors.New("embedder unavailable")
		}
		return []float32{1, 0, 0, 0, 0, 0, 0, 0}, nil
	})
	provider := mock.NewMockProviderWithServices(summarizer, embedder, mock.NewFixedChunker(5))
	orch := newTestOrchestrator(t, graph, provider)

	result, err := orch.Synthesize(ctx, "kairix", "run")
	require.NoError(t, err)
	require.Len(t, result.Shards, 4)
	require.Len(t, result.Failed, 1)

	failure := result.Failed[0]
	assert.Equal(t, 2, failure.Index)
	assert.Equal(t, "doc-a", failure.SourceUID)
	assert.Equal(t, StageEmbedding, failure.Stage)
	assert.Contains(t, failure.Message, "embedder unavailable")
	assert.Equal(t, core.IdempotencyKey("run", "doc#2"), failure.Key)

	for _, shard := range result.Shards {
		links, err := graph.ShardLinks(ctx, shard.UID)
		require.NoError(t, err)
		assert.Equal(t, shard.UID, links.SummaryUID)
		assert.Equal(t, shard.UID, links.EmbeddingUID)
		assert.Equal(t, "doc-a", links.SourceUID)
		assert.Equal(t, "kairix", links.AgentName)
	}

	t.Run("rerun retries only the failed chunk", func(t *testing.T) {
		failing = false
		calls := summarizer.CallCount()

		retry, err := orch.Synthesize(ctx, "kairix", "run")
		require.NoError(t, err)
		assert.Len(t, retry.Shards, 1)
		assert.Empty(t, retry.Failed)
		assert.Equal(t, 4, retry.Skipped)
		assert.Equal(t, calls, summarizer.CallCount(), "existing summary should be reused")
	})
}

func TestSynthesize_SummarizerFailure(t *testing.T) {
	ctx := context.Background()
	graph := newTestGraph(t, "doc")
	summarizer := mock.NewMockSummarizer("").WithPredictFunc(func(ctx context.Context, text string, params ai.InferenceParams) (string, error) {
		return "", errors.New("timeout")
	})
	provider := mock.NewMockProviderWithServices(summarizer, mock.NewMockEmbedder(), mock.NewFixedChunker(2))
	orch := newTestOrchestrator(t, graph, provider, WithRetry(2, 0))

	result, err := orch.Synthesize(ctx, "kairix", "run")
	require.NoError(t, err)
	assert.Empty(t, result.Shards)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, StageSummary, result.Failed[0].Stage)
	assert.Equal(t, 4, summarizer.CallCount(), "each chunk retried once")

	counts, err := graph.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Summaries)
}

func TestSynthesize_ConcurrentRuns(t *testing.T) {
	ctx := context.Background()
	graph := newTestGraph(t, "alpha", "beta", "gamma")
	summarizer := mock.NewMockSummarizer("SUMMARY")
	provider := mock.NewMockProviderWithServices(summarizer, mock.NewMockEmbedder(), mock.NewFixedChunker(6))
	orch := newTestOrchestrator(t, graph, provider)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.Synthesize(ctx, "kairix", "run")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counts, err := graph.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 18, counts.Summaries)
	assert.Equal(t, 18, counts.Embeddings)
	assert.Equal(t, 18, counts.MemoryShards)
	assert.Equal(t, 1, counts.Agents)
	assert.Equal(t, 18, summarizer.CallCount(), "each key summarized once")

	report, err := orch.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), "broken shards: %+v", report.Broken)
}

func TestSynthesize_Canceled(t *testing.T) {
	graph := newTestGraph(t, "doc")
	provider := mock.NewMockProviderWithServices(mock.NewMockSummarizer(""), mock.NewMockEmbedder(), mock.NewFixedChunker(3))
	orch := newTestOrchestrator(t, graph, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := orch.Synthesize(ctx, "kairix", "run")
	require.NoError(t, err)
	assert.Empty(t, result.Shards)
	require.Len(t, result.Failed, 3)
	for _, f := range result.Failed {
		assert.Equal(t, StageCanceled, f.Stage)
		assert.ErrorIs(t, f, context.Canceled)
	}
}

func TestSynthesize_NamespaceRequired(t *testing.T) {
	orch := newTestOrchestrator(t, newTestGraph(t), mock.NewMockProvider())
	_, err := orch.Synthesize(context.Background(), "", "run")
	assert.ErrorIs(t, err, ErrNamespaceRequired)
}

func TestSynthesize_Progress(t *testing.T) {
	var buf bytes.Buffer
	graph := newTestGraph(t, "alpha")
	provider := mock.NewMockProviderWithServices(mock.NewMockSummarizer(""), mock.NewMockEmbedder(), mock.NewFixedChunker(4))
	orch := newTestOrchestrator(t, graph, provider, WithProgress(&buf, 2))

	_, err := orch.Synthesize(context.Background(), "kairix", "run")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "4/4")
}

func TestVerify_ReportsBrokenShards(t *testing.T) {
	ctx := context.Background()
	graph := newTestGraph(t, "alpha")
	provider := mock.NewMockProviderWithServices(mock.NewMockSummarizer(""), mock.NewMockEmbedder(), mock.NewFixedChunker(2))
	orch := newTestOrchestrator(t, graph, provider)

	_, err := orch.Synthesize(ctx, "kairix", "run")
	require.NoError(t, err)

	_, _, err = graph.CreateMemoryShard(ctx, &core.MemoryShard{UID: "orphan", Contents: "x", VectorAddress: []float32{1}})
	require.NoError(t, err)

	report, err := orch.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.False(t, report.OK())
	require.Len(t, report.Broken, 1)
	assert.Equal(t, "orphan", report.Broken[0].UID)
	assert.Contains(t, report.Broken[0].Problems, "missing summary")
	assert.NotContains(t, report.Broken[0].Problems, "missing agent")
}

// ghostAgentGraph reports an agent edge whose target was never created.
type ghostAgentGraph struct {
	*badger.GraphStore
}

func (g ghostAgentGraph) ShardLinks(ctx context.Context, shardUID string) (*core.ShardLinks, error) {
	links, err := g.GraphStore.ShardLinks(ctx, shardUID)
	if err != nil {
		return nil, err
	}
	links.AgentName = "ghost"
	return links, nil
}

func TestVerify_AgentEdgeIsOptional(t *testing.T) {
	ctx := context.Background()
	graph := newTestGraph(t)
	provider := mock.NewMockProviderWithServices(mock.NewMockSummarizer(""), mock.NewMockEmbedder(), mock.NewMockChunker())

	// A shard linked to its summary, embedding and source but to no agent.
	doc, _, err := graph.CreateSourceDocument(ctx, &core.SourceDocument{UID: "doc", Label: "test", SourceType: "conversation", Content: "hi"})
	require.NoError(t, err)
	sum, _, err := graph.CreateSummary(ctx, &core.Summary{UID: core.SummaryUID("k"), Text: "hi"})
	require.NoError(t, err)
	emb, _, err := graph.CreateEmbedding(ctx, &core.Embedding{UID: core.EmbeddingUID("k"), Model: "m", Vector: []float32{1}})
	require.NoError(t, err)
	shard, _, err := graph.CreateMemoryShard(ctx, &core.MemoryShard{UID: core.ShardUID("k"), Contents: "hi", VectorAddress: []float32{1}})
	require.NoError(t, err)
	require.NoError(t, graph.Connect(ctx, shard.Ref(), core.RelHasSummary, sum.Ref()))
	require.NoError(t, graph.Connect(ctx, shard.Ref(), core.RelHasEmbedding, emb.Ref()))
	require.NoError(t, graph.Connect(ctx, shard.Ref(), core.RelDerivedFrom, doc.Ref()))

	report, err := newTestOrchestrator(t, graph, provider).Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.True(t, report.OK())

	orch, err := NewOrchestrator(ghostAgentGraph{graph}, provider, ai.DefaultInferenceParams(), WithWorkers(1))
	require.NoError(t, err)
	defer orch.Release()

	report, err = orch.Verify(ctx)
	require.NoError(t, err)
	require.Len(t, report.Broken, 1)
	assert.Equal(t, []string{"agent ghost not found"}, report.Broken[0].Problems)
}
