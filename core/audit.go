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


package core

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// Conversation is an ingested source file, deduplicated by checksum.
type Conversation struct {
	ID           string
	FilePath     string
	FileName     string
	Content      string
	Format       string
	Checksum     string
	DiscoveredAt time.Time
	ProcessedAt  *time.Time
}

// Fragment is one message of a Conversation.
type Fragment struct {
	ID             string
	ConversationID string
	SequenceNumber int
	Content        string
	Role           string
	TokenCount     int
}

// FragmentSummary is the audit copy of a fragment's summary.
type FragmentSummary struct {
	ID          string
	FragmentID  string
	SummaryText string
	ModelUsed   string
	CreatedAt   time.Time
}

// FragmentEmbedding is the audit copy of a fragment's embedding.
type FragmentEmbedding struct {
	ID         string
	FragmentID string
	Vector     []float32
	ModelName  string
	Dimensions int
	CreatedAt  time.Time
}

// FileFailure records a file the ingestion job could not process.
type FileFailure struct {
	Path string
	err  error
}

// NewFileFailure wraps err with the file it came from.
func NewFileFailure(path string, err error) FileFailure {
	return FileFailure{Path: path, err: err}
}

func (f FileFailure) Error() string { return f.Path + ": " + f.err.Error() }

func (f FileFailure) Unwrap() error { return f.err }

// TokenCount counts whitespace separated words.
func TokenCount(text string) int {
	return len(strings.Fields(text))
}

// JobStatus is the lifecycle state of an ingestion run.
type JobStatus string

const (
	JobRunning             JobStatus = "running"
	JobCompleted           JobStatus = "completed"
	JobCompletedWithErrors JobStatus = "completed_with_errors"
	JobFailed              JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCompletedWithErrors || s == JobFailed
}

// CanTransition reports whether a job may move from s to next.
// A running job may be updated in place; terminal states are final.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobRunning:
		return next == JobRunning || next.Terminal()
	default:
		return false
	}
}

// CronJob is one ingestion run.
type CronJob struct {
	ID             string
	StartTime      time.Time
	EndTime        *time.Time
	Status         JobStatus
	FilesFound     int
	FilesProcessed int
	ErrorsCount    int
	ErrorDetails   []byte // JSON document, nil when there is nothing to report
}

// JobUpdate carries the fields to change on a CronJob. Nil fields are left as is.
type JobUpdate struct {
	Status         JobStatus
	FilesFound     *int
	FilesProcessed *int
	ErrorsCount    *int
	ErrorDetails   []byte
}

// ProcessingState is the per-conversation state within a job.
type ProcessingState string

const (
	StatePending    ProcessingState = "pending"
	StateProcessing ProcessingState = "processing"
	StateCompleted  ProcessingState = "completed"
	StateFailed     ProcessingState = "failed"
)

var stateRank = map[ProcessingState]int{
	StatePending:    0,
	StateProcessing: 1,
	StateCompleted:  2,
	StateFailed:     2,
}

// CanTransition reports whether a conversation may move from s to next.
// Processing may be repeated to advance the stage; completed and failed are final.
func (s ProcessingState) CanTransition(next ProcessingState) bool {
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	to, ok := stateRank[next]
	if !ok {
		return false
	}
	if from == 2 {
		return false
	}
	if s == StateProcessing && next == StateProcessing {
		return true
	}
	return to > from
}

// Processing stages recorded on ProcessingStatus.
const (
	StageParsing  = "parsing"
	StageChunking = "chunking"
	StageDone     = "done"
)

// StageSummarizing, StageEmbedding and StageGraphSync name per-fragment stages.
func StageSummarizing(i int) string { return fmt.Sprintf("summarizing_%d", i) }
func StageEmbedding(i int) string   { return fmt.Sprintf("embedding_%d", i) }
func StageGraphSync(i int) string   { return fmt.Sprintf("graph_sync_%d", i) }

// ProcessingStatus tracks a Conversation's progress within a job.
type ProcessingStatus struct {
	ConversationID string
	JobID          string
	Status         ProcessingState
	Stage          string
	ErrorMessage   string
	UpdatedAt      time.Time
}

// JobDetails is a job with the processing rows that reference it.
type JobDetails struct {
	Job      *CronJob
	Statuses []*ProcessingStatus
}

// EncodeVector packs a vector as little-endian float32 bytes.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a vector written by EncodeVector.
func DecodeVector(data []byte, dimensions int) ([]float32, error) {
	if len(data) != dimensions*4 {
		return nil, fmt.Errorf("%w: %d bytes for %d dimensions", ErrVectorSize, len(data), dimensions)
	}
	v := make([]float32, dimensions)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}
