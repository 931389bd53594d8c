package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/storage"
)

// Connect stores an edge between two existing nodes.
func (g *GraphStore) Connect(ctx context.Context, from core.NodeRef, rel core.Relation, to core.NodeRef) error {
	if err := errors.Join(storage.ValidateRef(from), storage.ValidateRef(to)); err != nil {
		return err
	}
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err := g.backend.WithTx(func(tx *badger.Txn) error {
			for _, ref := range []core.NodeRef{from, to} {
				if _, err := tx.Get(makeNodeKey(ref.Label, ref.Key)); err != nil {
					if errors.Is(err, badger.ErrKeyNotFound) {
						return fmt.Errorf("%w: %s %s", storage.ErrNotFound, ref.Label, ref.Key)
					}
					return err
				}
			}

			if rel.SingleTarget() {
				if err := tx.Set(makeEdgeKey(from, rel), encodeRef(to)); err != nil {
					return err
				}
			} else {
				if err := tx.Set(makeMultiEdgeKey(from, rel, to.Key), encodeRef(to)); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)

		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: connect %s", badger.ErrConflict, rel)
}

// ShardLinks reads the single-target edges leaving a shard.
func (g *GraphStore) ShardLinks(ctx context.Context, shardUID string) (*core.ShardLinks, error) {
	links := &core.ShardLinks{ShardUID: shardUID}
	shard := core.NodeRef{Label: core.LabelMemoryShard, Key: shardUID}

	err := g.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := tx.Get(makeNodeKey(shard.Label, shard.Key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}

		targets := []struct {
			rel core.Relation
			dst *string
		}{
			{core.RelHasSummary, &links.SummaryUID},
			{core.RelHasEmbedding, &links.EmbeddingUID},
			{core.RelDerivedFrom, &links.SourceUID},
			{core.RelBelongsTo, &links.AgentName},
		}
		for _, target := range targets {
			item, err := tx.Get(makeEdgeKey(shard, target.rel))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				*target.dst = decodeRef(val).Key
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return links, nil
}
