// Package audit keeps the relational record of ingestion runs.
//
// It stores conversations, their fragments, mirrored summaries and
// embeddings, job rows and per-conversation processing status in SQLite or
// Postgres through gorm. Every exported method runs in its own transaction
// and none of them touch the graph store.
package audit
