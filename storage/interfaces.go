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


package storage

import (
	"context"

	"github.com/poiesic/kairix/core"
)

// GraphStore is the property-graph persistence for memory artifacts.
//
// Every Create method is an atomic insert-if-absent keyed by uid (or name for
// agents). When the node already exists the stored node is returned with
// created=false and nothing is overwritten. A node created by one call is
// visible to the next Get on the same store.
type GraphStore interface {
	// Bootstrap installs uniqueness constraints and indexes. It is idempotent
	// and must run before first use.
	Bootstrap(ctx context.Context) error

	// GetSourceDocument returns ErrNotFound if the document doesn't exist.
	GetSourceDocument(ctx context.Context, uid string) (*core.SourceDocument, error)
	CreateSourceDocument(ctx context.Context, doc *core.SourceDocument) (*core.SourceDocument, bool, error)
	// AllSourceDocuments returns every document ordered by uid.
	AllSourceDocuments(ctx context.Context) ([]*core.SourceDocument, error)

	// FindAgent returns ErrNotFound if no agent has that name.
	FindAgent(ctx context.Context, name string) (*core.Agent, error)
	CreateAgent(ctx context.Context, agent *core.Agent) (*core.Agent, bool, error)

	GetSummary(ctx context.Context, uid string) (*core.Summary, error)
	CreateSummary(ctx context.Context, summary *core.Summary) (*core.Summary, bool, error)

	GetEmbedding(ctx context.Context, uid string) (*core.Embedding, error)
	CreateEmbedding(ctx context.Context, embedding *core.Embedding) (*core.Embedding, bool, error)

	GetMemoryShard(ctx context.Context, uid string) (*core.MemoryShard, error)
	CreateMemoryShard(ctx context.Context, shard *core.MemoryShard) (*core.MemoryShard, bool, error)
	// MemoryShardUIDs returns the uid of every stored shard.
	MemoryShardUIDs(ctx context.Context) ([]string, error)

	// Connect creates the edge from -[rel]-> to. Both nodes must exist, otherwise
	// ErrNotFound is returned. For single-target relations an existing edge to a
	// different node is replaced. Connecting twice is a no-op.
	Connect(ctx context.Context, from core.NodeRef, rel core.Relation, to core.NodeRef) error

	// ShardLinks reports the single-target edges of a shard.
	ShardLinks(ctx context.Context, shardUID string) (*core.ShardLinks, error)

	// FindSimilarShards returns shards whose vector_address has cosine
	// similarity >= minScore with vector, best first, at most limit results.
	FindSimilarShards(ctx context.Context, vector []float32, minScore float32, limit int) ([]core.ShardMatch, error)

	// Counts reports node totals per label.
	Counts(ctx context.Context) (*core.GraphCounts, error)

	Close(ctx context.Context) error
}

// AuditStore is the relational record of ingestion runs. Each method runs in
// its own transaction: all of its writes commit or none do. It does not
// depend on the GraphStore.
type AuditStore interface {
	// StoreConversation inserts a conversation keyed by the checksum of content.
	// It returns stored=false and an empty id when a conversation with the same
	// checksum already exists.
	StoreConversation(ctx context.Context, filePath, content, format string) (id string, stored bool, err error)

	// GetConversationByChecksum returns ErrNotFound if nothing matches.
	GetConversationByChecksum(ctx context.Context, checksum string) (*core.Conversation, error)

	// GetUnprocessedConversations returns conversations without processed_at, oldest first.
	GetUnprocessedConversations(ctx context.Context) ([]*core.Conversation, error)

	// MarkConversationProcessed sets processed_at to now.
	MarkConversationProcessed(ctx context.Context, id string) error

	StoreFragment(ctx context.Context, fragment *core.Fragment) (string, error)

	// GetFragments returns a conversation's fragments in sequence order.
	GetFragments(ctx context.Context, conversationID string) ([]*core.Fragment, error)

	// StoreSummary mirrors a fragment's summary. One per fragment.
	StoreSummary(ctx context.Context, fragmentID, summaryText, model string) (string, error)

	// StoreEmbedding mirrors a fragment's embedding, packed as little-endian
	// float32 bytes with its dimensions recorded. One per fragment.
	StoreEmbedding(ctx context.Context, fragmentID string, vector []float32, model string) (string, error)

	// GetFragmentSummary and GetFragmentEmbedding return ErrNotFound when the
	// fragment has no mirror row.
	GetFragmentSummary(ctx context.Context, fragmentID string) (*core.FragmentSummary, error)
	GetFragmentEmbedding(ctx context.Context, fragmentID string) (*core.FragmentEmbedding, error)

	// CreateJob inserts a running job.
	CreateJob(ctx context.Context) (*core.CronJob, error)

	// UpdateJob applies update. Terminal statuses set end_time. Moving a job out
	// of a terminal status returns ErrInvalidTransition.
	UpdateJob(ctx context.Context, id string, update core.JobUpdate) error

	// CreateProcessingStatus inserts a pending row for the conversation.
	CreateProcessingStatus(ctx context.Context, conversationID, jobID string) error

	// UpdateProcessingStatus moves a conversation forward. Backward moves
	// return ErrInvalidTransition and leave the row untouched. An empty stage
	// keeps the current stage.
	UpdateProcessingStatus(ctx context.Context, conversationID string, status core.ProcessingState, stage, errorMessage string) error

	// GetProcessingStatus returns ErrNotFound if no row exists.
	GetProcessingStatus(ctx context.Context, conversationID string) (*core.ProcessingStatus, error)

	// GetJobHistory returns the most recent jobs first.
	GetJobHistory(ctx context.Context, limit int) ([]*core.CronJob, error)

	// GetJobDetails returns ErrNotFound if the job doesn't exist.
	GetJobDetails(ctx context.Context, id string) (*core.JobDetails, error)

	Close() error
}
