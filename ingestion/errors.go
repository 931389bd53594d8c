package ingestion

import "errors"

var (
	// ErrAuditStoreRequired is returned when an audit store is not provided.
	ErrAuditStoreRequired = errors.New("audit store required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrDirectoryUnreadable is returned when the input directory cannot be scanned.
	ErrDirectoryUnreadable = errors.New("input directory unreadable")

	// ErrNoPatterns is returned when WithPatterns is given no patterns.
	ErrNoPatterns = errors.New("at least one file pattern required")
)
