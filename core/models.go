package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// IdempotencyKey derives the content-addressed identity of a chunk.
// Identical text under the same namespace always yields the same key.
func IdempotencyKey(namespace, text string) string {
	sum := sha256.Sum256([]byte(text))
	return namespace + "-" + hex.EncodeToString(sum[:])
}

// Checksum returns the hex encoded SHA-256 digest of a file's contents.
// It is used for file-level deduplication, independent of chunk keys.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// FragmentKey derives the graph identity of an ingested conversation fragment.
func FragmentKey(conversationID, fragmentID string) string {
	sum := sha256.Sum256([]byte(conversationID + "_" + fragmentID))
	return hex.EncodeToString(sum[:])
}

// SummaryUID, EmbeddingUID and ShardUID namespace a fragment key per artifact type.
func SummaryUID(fragmentKey string) string   { return "summary_" + fragmentKey }
func EmbeddingUID(fragmentKey string) string { return "embedding_" + fragmentKey }
func ShardUID(fragmentKey string) string     { return "shard_" + fragmentKey }

// Node labels used by graph stores.
const (
	LabelSourceDocument = "SourceDocument"
	LabelAgent          = "Agent"
	LabelSummary        = "Summary"
	LabelEmbedding      = "Embedding"
	LabelMemoryShard    = "MemoryShard"
)

// Relation names a directed edge type between graph nodes.
type Relation string

const (
	RelHasEmbedding Relation = "HAS_EMBEDDING"
	RelHasSummary   Relation = "HAS_SUMMARY"
	RelDerivedFrom  Relation = "DERIVED_FROM"
	RelBelongsTo    Relation = "BELONGS_TO"
	RelRelates      Relation = "RELATES"
)

// SingleTarget reports whether a node may hold at most one edge of this relation.
// Only RELATES is many-to-many.
func (r Relation) SingleTarget() bool {
	return r != RelRelates
}

// NodeRef addresses a graph node by label and key.
// The key is the uid for every label except Agent, which is keyed by name.
type NodeRef struct {
	Label string
	Key   string
}

// SourceDocument is an imported document. Content is write-once.
type SourceDocument struct {
	UID        string
	Label      string
	SourceType string
	Content    string
}

// Ref returns the node reference for the document.
func (d *SourceDocument) Ref() NodeRef { return NodeRef{Label: LabelSourceDocument, Key: d.UID} }

// Agent owns memory shards. Name is unique.
type Agent struct {
	Name string
}

func (a *Agent) Ref() NodeRef { return NodeRef{Label: LabelAgent, Key: a.Name} }

// Summary holds the condensed text of a chunk, keyed by the chunk's idempotency key.
type Summary struct {
	UID  string
	Text string
}

func (s *Summary) Ref() NodeRef { return NodeRef{Label: LabelSummary, Key: s.UID} }

// Embedding holds the vector derived from a Summary's text.
type Embedding struct {
	UID    string
	Model  string
	Vector []float32
}

func (e *Embedding) Ref() NodeRef { return NodeRef{Label: LabelEmbedding, Key: e.UID} }

// MemoryShard is the terminal persisted unit combining a summary and its embedding.
type MemoryShard struct {
	UID           string
	Contents      string
	VectorAddress []float32
}

func (m *MemoryShard) Ref() NodeRef { return NodeRef{Label: LabelMemoryShard, Key: m.UID} }

// ShardLinks lists the targets of a shard's outgoing single-target edges.
// Empty strings mean the edge is missing.
type ShardLinks struct {
	ShardUID     string
	SummaryUID   string
	EmbeddingUID string
	SourceUID    string
	AgentName    string
}

// GraphCounts reports node totals per label.
type GraphCounts struct {
	SourceDocuments int
	Agents          int
	Summaries       int
	Embeddings      int
	MemoryShards    int
}

// Chunk is a transient unit of text cut from a SourceDocument. It is never persisted.
type Chunk struct {
	Key    string
	Text   string
	Index  int // position across the whole run, used to keep results ordered
	Source *SourceDocument
}

// ShardMatch is a memory shard returned by similarity search.
type ShardMatch struct {
	Shard *MemoryShard
	Score float32
}

// SynthesisResult reports the outcome of one synthesis run.
type SynthesisResult struct {
	Shards  []*MemoryShard
	Failed  []ChunkFailure
	Total   int // chunks produced from all documents
	Skipped int // chunks whose shard already existed
}

// ChunkFailure records why a chunk could not be turned into a shard.
type ChunkFailure struct {
	Key       string    `json:"key"`
	SourceUID string    `json:"source_uid"`
	Index     int       `json:"index"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
	err       error
}

// NewChunkFailure builds a failure for chunk at stage.
func NewChunkFailure(chunk *Chunk, stage string, err error) ChunkFailure {
	f := ChunkFailure{
		Key:     chunk.Key,
		Index:   chunk.Index,
		Stage:   stage,
		Message: err.Error(),
		At:      time.Now().UTC(),
		err:     err,
	}
	if chunk.Source != nil {
		f.SourceUID = chunk.Source.UID
	}
	return f
}

func (f ChunkFailure) Error() string {
	return "chunk " + f.Key + " failed at " + f.Stage + ": " + f.Message
}

func (f ChunkFailure) Unwrap() error { return f.err }
