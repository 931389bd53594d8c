package synthesis

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/kairix/ai"
	"github.com/poiesic/kairix/core"
)

// collectChunks splits every document and keys each piece under runPrefix.
// A key produced twice in one run is kept once, at its first position.
func collectChunks(chunker ai.Chunker, docs []*core.SourceDocument, runPrefix string) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	seen := make(map[string]struct{})

	for _, doc := range docs {
		texts, err := chunker.Chunk(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", doc.UID, err)
		}
		for _, text := range texts {
			key := core.IdempotencyKey(runPrefix, text)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			chunks = append(chunks, &core.Chunk{
				Key:    key,
				Text:   text,
				Index:  len(chunks),
				Source: doc,
			})
		}
	}
	return chunks, nil
}

// keyHash maps a key onto 64 bits for partition and lock selection.
func keyHash(key string) uint64 {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(key))
	return binary.BigEndian.Uint64(h.Sum(nil))
}

// partition groups chunks so that a key always lands in the same group.
func partition(chunks []*core.Chunk, n int) [][]*core.Chunk {
	if n < 1 {
		n = 1
	}
	groups := make([][]*core.Chunk, n)
	for _, chunk := range chunks {
		i := keyHash(chunk.Key) % uint64(n)
		groups[i] = append(groups[i], chunk)
	}
	return groups
}

// keyLocks is a fixed set of mutexes selected by key hash.
type keyLocks struct {
	stripes []sync.Mutex
}

func newKeyLocks(n int) *keyLocks {
	if n < 1 {
		n = 1
	}
	return &keyLocks{stripes: make([]sync.Mutex, n)}
}

func (l *keyLocks) lock(key string) func() {
	m := &l.stripes[keyHash(key)%uint64(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
