package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/storage"
)

// maxConflictRetries bounds how often a write is replayed after a
// transaction conflict with a concurrent writer.
const maxConflictRetries = 5

// GraphStore implements storage.GraphStore on BadgerDB.
// Nodes are stored as CBOR values under node keys; edges are stored as
// separate keys pointing at their target.
type GraphStore struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.GraphStore = (*GraphStore)(nil)

// NewGraphStore creates a graph store over backend. The store takes ownership
// of the backend and closes it on Close.
func NewGraphStore(backend *Backend) *GraphStore {
	return &GraphStore{
		backend: backend,
		logger:  backend.logger,
	}
}

// Open opens (or creates) a graph store in the directory at path.
func Open(path string) (*GraphStore, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return NewGraphStore(backend), nil
}

// Bootstrap is a no-op: uniqueness is enforced by the key layout.
func (g *GraphStore) Bootstrap(ctx context.Context) error {
	return nil
}

// Close closes the underlying backend.
func (g *GraphStore) Close(ctx context.Context) error {
	return g.backend.Close()
}

func (g *GraphStore) GetSourceDocument(ctx context.Context, uid string) (*core.SourceDocument, error) {
	return getNode[core.SourceDocument](g.backend, core.LabelSourceDocument, uid)
}

func (g *GraphStore) CreateSourceDocument(ctx context.Context, doc *core.SourceDocument) (*core.SourceDocument, bool, error) {
	if err := core.ValidateSourceDocument(doc); err != nil {
		return nil, false, err
	}
	return createNode(g.backend, core.LabelSourceDocument, doc.UID, doc)
}

func (g *GraphStore) AllSourceDocuments(ctx context.Context) ([]*core.SourceDocument, error) {
	return allNodes[core.SourceDocument](g.backend, core.LabelSourceDocument)
}

func (g *GraphStore) FindAgent(ctx context.Context, name string) (*core.Agent, error) {
	return getNode[core.Agent](g.backend, core.LabelAgent, name)
}

func (g *GraphStore) CreateAgent(ctx context.Context, agent *core.Agent) (*core.Agent, bool, error) {
	if err := core.ValidateAgent(agent); err != nil {
		return nil, false, err
	}
	return createNode(g.backend, core.LabelAgent, agent.Name, agent)
}

func (g *GraphStore) GetSummary(ctx context.Context, uid string) (*core.Summary, error) {
	return getNode[core.Summary](g.backend, core.LabelSummary, uid)
}

func (g *GraphStore) CreateSummary(ctx context.Context, summary *core.Summary) (*core.Summary, bool, error) {
	if err := core.ValidateSummary(summary); err != nil {
		return nil, false, err
	}
	return createNode(g.backend, core.LabelSummary, summary.UID, summary)
}

func (g *GraphStore) GetEmbedding(ctx context.Context, uid string) (*core.Embedding, error) {
	return getNode[core.Embedding](g.backend, core.LabelEmbedding, uid)
}

func (g *GraphStore) CreateEmbedding(ctx context.Context, embedding *core.Embedding) (*core.Embedding, bool, error) {
	if err := core.ValidateEmbedding(embedding); err != nil {
		return nil, false, err
	}
	return createNode(g.backend, core.LabelEmbedding, embedding.UID, embedding)
}

func (g *GraphStore) GetMemoryShard(ctx context.Context, uid string) (*core.MemoryShard, error) {
	return getNode[core.MemoryShard](g.backend, core.LabelMemoryShard, uid)
}

func (g *GraphStore) CreateMemoryShard(ctx context.Context, shard *core.MemoryShard) (*core.MemoryShard, bool, error) {
	if err := core.ValidateMemoryShard(shard); err != nil {
		return nil, false, err
	}
	return createNode(g.backend, core.LabelMemoryShard, shard.UID, shard)
}

// MemoryShardUIDs scans shard keys without loading values.
func (g *GraphStore) MemoryShardUIDs(ctx context.Context) ([]string, error) {
	var uids []string
	err := g.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeNodeLabelPrefix(core.LabelMemoryShard)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			uids = append(uids, nodeKeyFromKey(core.LabelMemoryShard, iter.Item().Key()))
		}
		return nil
	}, false)
	return uids, err
}

// FindSimilarShards scans every shard and ranks by cosine similarity.
func (g *GraphStore) FindSimilarShards(ctx context.Context, vector []float32, minScore float32, limit int) ([]core.ShardMatch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be greater than 0", storage.ErrInvalidQuery)
	}

	shards, err := allNodes[core.MemoryShard](g.backend, core.LabelMemoryShard)
	if err != nil {
		return nil, err
	}

	var matches []core.ShardMatch
	for _, shard := range shards {
		score := cosineSimilarity(vector, shard.VectorAddress)
		if score >= minScore {
			matches = append(matches, core.ShardMatch{Shard: shard, Score: score})
		}
	}

	slices.SortFunc(matches, func(a, b core.ShardMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.Shard.UID, b.Shard.UID)
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Counts counts node keys per label.
func (g *GraphStore) Counts(ctx context.Context) (*core.GraphCounts, error) {
	counts := &core.GraphCounts{}
	targets := []struct {
		label string
		dst   *int
	}{
		{core.LabelSourceDocument, &counts.SourceDocuments},
		{core.LabelAgent, &counts.Agents},
		{core.LabelSummary, &counts.Summaries},
		{core.LabelEmbedding, &counts.Embeddings},
		{core.LabelMemoryShard, &counts.MemoryShards},
	}

	err := g.backend.WithTx(func(tx *badger.Txn) error {
		for _, target := range targets {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = makeNodeLabelPrefix(target.label)
			opts.PrefetchValues = false
			iter := tx.NewIterator(opts)
			for iter.Rewind(); iter.Valid(); iter.Next() {
				*target.dst++
			}
			iter.Close()
		}
		return nil
	}, false)
	return counts, err
}

// getNode reads a single node. Returns storage.ErrNotFound when absent.
func getNode[T any](b *Backend, label, key string) (*T, error) {
	var result *T
	err := b.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readNode[T](tx, makeNodeKey(label, key))
		return err
	}, false)
	return result, err
}

func readNode[T any](tx *badger.Txn, key []byte) (*T, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var node *T
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		node, unmarshalErr = storage.Unmarshal[T](val)
		return unmarshalErr
	})
	return node, err
}

// createNode inserts node under key unless a node with that key exists.
// Concurrent inserts of the same key conflict at commit; the loser re-reads
// and returns the winner's node.
func createNode[T any](b *Backend, label, key string, node *T) (*T, bool, error) {
	nodeKey := makeNodeKey(label, key)

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		var stored *T
		created := false

		err := b.WithTx(func(tx *badger.Txn) error {
			existing, err := readNode[T](tx, nodeKey)
			if err == nil {
				stored = existing
				return nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return err
			}

			data, err := storage.Marshal(node)
			if err != nil {
				return err
			}
			if err := tx.Set(nodeKey, data); err != nil {
				return err
			}
			stored = node
			created = true
			return tx.Commit()
		}, true)

		if errors.Is(err, badger.ErrConflict) {
			b.logger.Debug("insert conflict, retrying", "label", label, "key", key, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return stored, created, nil
	}
	return nil, false, fmt.Errorf("%w: %s %s", badger.ErrConflict, label, key)
}

// allNodes loads every node of a label in key order.
func allNodes[T any](b *Backend, label string) ([]*T, error) {
	var nodes []*T
	err := b.WithTx(func(tx *badger.Txn) error {
		return forEachPrefix(tx, makeNodeLabelPrefix(label), func(_, val []byte) error {
			node, err := storage.Unmarshal[T](val)
			if err != nil {
				return err
			}
			nodes = append(nodes, node)
			return nil
		})
	}, false)
	return nodes, err
}
