package neo4j

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyProperty(t *testing.T) {
	assert.Equal(t, "name", keyProperty(core.LabelAgent))
	assert.Equal(t, "uid", keyProperty(core.LabelMemoryShard))
	assert.Equal(t, "uid", keyProperty(core.LabelSourceDocument))
}

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements(384)
	require.Len(t, stmts, 6)
	for _, stmt := range stmts {
		assert.Contains(t, stmt, "IF NOT EXISTS")
	}
	assert.Contains(t, stmts[4], "(n:Agent) REQUIRE n.name IS UNIQUE")
	assert.Contains(t, stmts[5], VectorIndexName)
	assert.Contains(t, stmts[5], "`vector.dimensions`: 384")
}

func TestConnectQuery(t *testing.T) {
	t.Run("single target replaces other edges", func(t *testing.T) {
		q := connectQuery(core.LabelMemoryShard, core.RelBelongsTo, core.LabelAgent)
		assert.Contains(t, q, "MATCH (b:Agent {name: $to})")
		assert.Contains(t, q, "OPTIONAL MATCH (a)-[old:BELONGS_TO]->(other)")
		assert.Contains(t, q, "MERGE (a)-[:BELONGS_TO]->(b)")
	})

	t.Run("relates keeps existing edges", func(t *testing.T) {
		q := connectQuery(core.LabelMemoryShard, core.RelRelates, core.LabelMemoryShard)
		assert.NotContains(t, q, "DELETE")
		assert.True(t, strings.HasSuffix(q, "RETURN 1 AS ok"))
	})
}

func TestPropsRoundTrip(t *testing.T) {
	shard := &core.MemoryShard{UID: "k", Contents: "text", VectorAddress: []float32{0.5, -1}}
	props := memoryShardProps(shard)
	// Bolt hands lists back as []any of float64.
	props["vector_address"] = []any{0.5, -1.0}
	assert.Equal(t, shard, memoryShardFromProps(props))

	doc := &core.SourceDocument{UID: "d", Label: "l", SourceType: "chatgpt", Content: "c"}
	assert.Equal(t, doc, sourceDocumentFromProps(sourceDocumentProps(doc)))

	emb := &core.Embedding{UID: "e", Model: "m", Vector: []float32{1, 2}}
	assert.Equal(t, emb, embeddingFromProps(embeddingProps(emb)))

	assert.Equal(t, &core.Summary{}, summaryFromProps(asMap(nil)))
}

func TestFloat32s(t *testing.T) {
	assert.Equal(t, []float32{1, 2}, float32s([]any{1.0, int64(2)}))
	assert.Equal(t, []float32{3}, float32s([]float64{3}))
	assert.Nil(t, float32s("nope"))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.URI = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.VectorDimensions = 0
	assert.Error(t, cfg.Validate())
}

func TestClosedStore(t *testing.T) {
	store := &GraphStore{client: &Client{}}
	_, err := store.MemoryShardUIDs(context.Background())
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.NoError(t, store.Close(context.Background()))
}

// TestGraphStore_Live runs against a real server when KAIRIX_TEST_NEO4J_URI is set.
func TestGraphStore_Live(t *testing.T) {
	uri := os.Getenv("KAIRIX_TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("KAIRIX_TEST_NEO4J_URI not set")
	}
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.URI = uri
	cfg.Username = os.Getenv("KAIRIX_TEST_NEO4J_USER")
	cfg.Password = os.Getenv("KAIRIX_TEST_NEO4J_PASSWORD")
	cfg.VectorDimensions = 2

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer store.Close(ctx)
	require.NoError(t, store.Bootstrap(ctx))

	uid := "live-test-" + uuid.NewString()
	_, created, err := store.CreateSummary(ctx, &core.Summary{UID: uid, Text: "first"})
	require.NoError(t, err)
	assert.True(t, created)

	got, created, err := store.CreateSummary(ctx, &core.Summary{UID: uid, Text: "second"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "first", got.Text)
}
