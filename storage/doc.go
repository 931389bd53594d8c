// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage defines the persistence contracts for kairix.
//
// Two independent stores back the pipeline:
//
//   - GraphStore: content-addressed memory artifacts (SourceDocument, Agent,
//     Summary, Embedding, MemoryShard) and the edges between them
//   - AuditStore: relational bookkeeping of ingestion runs (conversations,
//     fragments, summary and embedding mirrors, jobs, processing status)
//
// No transaction spans both stores. A write may succeed in the audit store and
// fail in the graph store; callers treat that as a recorded, non-fatal error.
//
// # Implementations
//
//   - storage/neo4j: GraphStore on Neo4j, MERGE based insert-if-absent
//   - storage/badger: embedded GraphStore on BadgerDB, used for local runs and tests
//   - storage/audit: AuditStore on gorm with SQLite or PostgreSQL
//
// # Thread Safety
//
// All implementations must be safe for concurrent use from multiple goroutines.
package storage
