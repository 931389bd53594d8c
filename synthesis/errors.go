package synthesis

import "errors"

var (
	// ErrGraphStoreRequired is returned when a graph store is not provided.
	ErrGraphStoreRequired = errors.New("graph store required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrNamespaceRequired is returned when Synthesize is called without an agent name.
	ErrNamespaceRequired = errors.New("namespace required")

	// ErrInvalidMaxAttempts is returned when retry attempts is less than 1.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")
)
