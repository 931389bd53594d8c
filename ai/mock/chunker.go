package mock

import (
	"fmt"
	"strings"
)

// MockChunker is a test double for ai.Chunker.
type MockChunker struct {
	// ChunkFunc is called by Chunk if set.
	// If nil, text is split on blank lines.
	ChunkFunc func(text string) ([]string, error)
}

// NewMockChunker creates a chunker that splits on blank lines.
func NewMockChunker() *MockChunker {
	return &MockChunker{}
}

// NewFixedChunker returns a chunker that cuts every document into n parts
// labelled with the document text, so distinct documents give distinct chunks.
func NewFixedChunker(n int) *MockChunker {
	return &MockChunker{
		ChunkFunc: func(text string) ([]string, error) {
			out := make([]string, n)
			for i := range out {
				out[i] = fmt.Sprintf("%s#%d", text, i)
			}
			return out, nil
		},
	}
}

// Chunk splits text.
func (m *MockChunker) Chunk(text string) ([]string, error) {
	if m.ChunkFunc != nil {
		return m.ChunkFunc(text)
	}
	var out []string
	for _, part := range strings.Split(text, "\n\n") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}
