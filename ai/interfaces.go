package ai

import "context"

// Summarizer turns text into a condensed summary using an inference model.
// Implementations must be thread-safe for concurrent use.
type Summarizer interface {
	// Predict renders params' prompt around text, runs the model and returns
	// the completion. Any error is a provider error and is safe to retry later.
	Predict(ctx context.Context, text string, params InferenceParams) (string, error)

	// ModelIdentifier names the model used, for provenance records.
	ModelIdentifier() string
}

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector has the model's fixed dimensionality.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// ModelIdentifier names the embedding model, recorded on every Embedding.
	ModelIdentifier() string
}

// Chunker splits a document into ordered chunks.
// Identical input must always produce identical output.
type Chunker interface {
	Chunk(text string) ([]string, error)
}

// AIProvider aggregates the model services used by synthesis and ingestion.
// A provider is constructed once and passed to the components that need it.
type AIProvider interface {
	// Summarizer returns the summarization service.
	Summarizer() Summarizer

	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Chunker returns the document splitter.
	Chunker() Chunker

	// Close releases resources held by the provider and its services.
	Close() error
}
