// Package ingestion runs the conversation ingestion job.
//
// A Job scans a directory for conversation files and records each new file,
// its messages and their summaries and embeddings in the audit store. When a
// graph store is configured every message is also mirrored into the memory
// graph. Graph failures never fail a file; they are collected, reported in
// the job's error details and raised once through the Alerter.
//
// Progress is tracked per run in a CronJob row and per file in a
// ProcessingStatus row whose state only moves forward.
package ingestion
