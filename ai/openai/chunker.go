package openai

import (
	"github.com/poiesic/kairix/ai"
	"github.com/tmc/langchaingo/textsplitter"
)

// Chunker implements ai.Chunker with langchaingo text splitters.
type Chunker struct {
	splitter textsplitter.TextSplitter
}

func newChunker(config *ai.Config) (*Chunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []textsplitter.Option{
		textsplitter.WithChunkSize(config.ChunkSize),
		textsplitter.WithChunkOverlap(config.ChunkOverlap),
	}

	var splitter textsplitter.TextSplitter
	switch config.ChunkStrategy {
	case ai.ChunkByCharacter:
		splitter = textsplitter.NewRecursiveCharacter(opts...)
	default:
		splitter = textsplitter.NewTokenSplitter(opts...)
	}
	return &Chunker{splitter: splitter}, nil
}

// NewChunker creates a chunker for the configured strategy.
func NewChunker(config *ai.Config) (ai.Chunker, error) {
	return newChunker(config)
}

// Chunk splits text into ordered chunks. Empty text yields no chunks.
func (c *Chunker) Chunk(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	return c.splitter.SplitText(text)
}
