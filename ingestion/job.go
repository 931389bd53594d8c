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


package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/poiesic/kairix/ai"
	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/storage"
)

// Job ingests conversation files into the audit store and, optionally, the
// memory graph.
type Job struct {
	audit      storage.AuditStore
	graph      storage.GraphStore
	summarizer ai.Summarizer
	embedder   ai.Embedder
	params     ai.InferenceParams
	alerter    Alerter

	enabled         bool
	patterns        []string
	summarizerModel string
	logger          *slog.Logger
}

// Option configures a Job.
type Option func(*Job) error

// WithGraphStore mirrors every fragment into graph.
// Without it only the audit store is written.
func WithGraphStore(graph storage.GraphStore) Option {
	return func(j *Job) error {
		j.graph = graph
		return nil
	}
}

// WithAlerter sets where aggregate failures are broadcast.
// Default is a LogAlerter.
func WithAlerter(alerter Alerter) Option {
	return func(j *Job) error {
		j.alerter = alerter
		return nil
	}
}

// WithEnabled turns the job on or off. A disabled job's Run does nothing.
func WithEnabled(enabled bool) Option {
	return func(j *Job) error {
		j.enabled = enabled
		return nil
	}
}

// WithPatterns sets the file globs scanned in the input directory.
func WithPatterns(patterns ...string) Option {
	return func(j *Job) error {
		if len(patterns) == 0 {
			return ErrNoPatterns
		}
		j.patterns = patterns
		return nil
	}
}

// WithSummarizerModel overrides the model name recorded on summaries.
func WithSummarizerModel(model string) Option {
	return func(j *Job) error {
		j.summarizerModel = model
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) error {
		if logger == nil {
			logger = slog.Default()
		}
		j.logger = logger
		return nil
	}
}

// NewJob creates an ingestion job.
func NewJob(audit storage.AuditStore, provider ai.AIProvider, params ai.InferenceParams, opts ...Option) (*Job, error) {
	if audit == nil {
		return nil, ErrAuditStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	j := &Job{
		audit:      audit,
		summarizer: provider.Summarizer(),
		embedder:   provider.Embedder(),
		params:     params,
		enabled:    true,
		patterns:   DefaultPatterns,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(j); err != nil {
			return nil, err
		}
	}
	if j.alerter == nil {
		j.alerter = NewLogAlerter(j.logger)
	}
	if j.summarizerModel == "" {
		j.summarizerModel = j.summarizer.ModelIdentifier()
	}
	j.logger = j.logger.With("component", "ingestion")
	return j, nil
}

// run holds the counters of one Run.
type run struct {
	jobID       string
	processed   int
	errors      int
	graphErrors []string
	failures    []core.FileFailure

	// stale maps the checksums of conversations an earlier run stored but
	// never finished to their file paths.
	stale map[string]string
}

// Run ingests every matching file in dir and returns the finished job row.
// It returns nil, nil when the job is disabled.
//
// Per-file failures are recorded and the loop moves on; they make the job
// completed_with_errors. Only a failure outside the file loop, such as an
// unreadable directory or a cancelled ctx, marks the job failed and is
// returned as an error. The job row is finalized even when ctx is done.
func (j *Job) Run(ctx context.Context, dir string) (*core.CronJob, error) {
	if !j.enabled {
		j.logger.Info("ingestion disabled, skipping run")
		return nil, nil
	}

	job, err := j.audit.CreateJob(ctx)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	j.logger.Info("ingestion started", "job", job.ID, "dir", dir)

	// Bookkeeping after the loop must survive cancellation of ctx.
	final := context.WithoutCancel(ctx)

	r := &run{jobID: job.ID, stale: j.staleConversations(ctx)}
	if err := j.processAll(ctx, r, dir); err != nil {
		j.fail(final, r, err)
		return j.finished(final, job), err
	}

	status := core.JobCompleted
	if r.errors > 0 || len(r.graphErrors) > 0 {
		status = core.JobCompletedWithErrors
	}

	update := core.JobUpdate{
		Status:         status,
		FilesProcessed: &r.processed,
		ErrorsCount:    &r.errors,
	}
	if len(r.graphErrors) > 0 || len(r.failures) > 0 {
		fileErrors := make([]string, 0, len(r.failures))
		for _, f := range r.failures {
			fileErrors = append(fileErrors, f.Error())
		}
		update.ErrorDetails = mustJSON(map[string][]string{
			"graph_errors": nonNil(r.graphErrors),
			"file_errors":  fileErrors,
		})
	}
	if err := j.audit.UpdateJob(final, job.ID, update); err != nil {
		return nil, fmt.Errorf("finalize job: %w", err)
	}

	if len(r.graphErrors) > 0 {
		j.alerter.Alert(final, fmt.Sprintf("Graph storage failed for %d operations. Check logs for details.", len(r.graphErrors)))
	}

	j.logger.Info("ingestion finished",
		"job", job.ID,
		"status", status,
		"processed", r.processed,
		"errors", r.errors,
		"graph_errors", len(r.graphErrors))
	return j.finished(final, job), nil
}

func (j *Job) processAll(ctx context.Context, r *run, dir string) error {
	files, err := scanFiles(dir, j.patterns)
	if err != nil {
		return err
	}
	found := len(files)
	if err := j.audit.UpdateJob(ctx, r.jobID, core.JobUpdate{FilesFound: &found}); err != nil {
		return err
	}
	j.logger.Info("files found", "count", found)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := j.processFile(ctx, r, path); err != nil {
			r.errors++
			r.failures = append(r.failures, core.NewFileFailure(path, err))
			j.logger.Error("file failed", "path", path, "error", err)
		} else {
			r.processed++
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := j.audit.UpdateJob(ctx, r.jobID, core.JobUpdate{
			FilesProcessed: &r.processed,
			ErrorsCount:    &r.errors,
		}); err != nil {
			return err
		}
	}
	return nil
}

// fail records a fatal run error on the job and raises an alert.
func (j *Job) fail(ctx context.Context, r *run, cause error) {
	j.logger.Error("ingestion failed", "job", r.jobID, "error", cause)
	err := j.audit.UpdateJob(ctx, r.jobID, core.JobUpdate{
		Status:         core.JobFailed,
		FilesProcessed: &r.processed,
		ErrorsCount:    &r.errors,
		ErrorDetails:   mustJSON(map[string]string{"error": cause.Error()}),
	})
	if err != nil {
		j.logger.Error("could not mark job failed", "job", r.jobID, "error", err)
	}
	j.alerter.Alert(ctx, "Conversation ingestion job failed: "+cause.Error())
}

// staleConversations lists conversations left unfinished by earlier runs.
// Their files are deduplicated by checksum and are not retried.
func (j *Job) staleConversations(ctx context.Context) map[string]string {
	pending, err := j.audit.GetUnprocessedConversations(ctx)
	if err != nil {
		j.logger.Warn("could not list unprocessed conversations", "error", err)
		return nil
	}
	stale := make(map[string]string, len(pending))
	for _, c := range pending {
		stale[c.Checksum] = c.FilePath
	}
	if len(stale) > 0 {
		j.logger.Warn("conversations left unprocessed by earlier runs", "count", len(stale))
	}
	return stale
}

// finished re-reads the job row, falling back to the row from CreateJob.
func (j *Job) finished(ctx context.Context, job *core.CronJob) *core.CronJob {
	details, err := j.audit.GetJobDetails(ctx, job.ID)
	if err != nil {
		j.logger.Warn("could not reload job", "job", job.ID, "error", err)
		return job
	}
	return details.Job
}

// processFile ingests one file. A duplicate of an earlier file counts as
// processed without doing any work.
func (j *Job) processFile(ctx context.Context, r *run, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	messages, format := parseConversation(content)

	conversationID, stored, err := j.audit.StoreConversation(ctx, path, string(content), format)
	if err != nil {
		return err
	}
	if !stored {
		if first, ok := r.stale[core.Checksum(string(content))]; ok {
			j.logger.Warn("file failed in an earlier run, not retried", "path", path, "first_seen", first)
			return nil
		}
		j.logger.Info("file already processed", "path", path)
		return nil
	}

	if err := j.audit.CreateProcessingStatus(ctx, conversationID, r.jobID); err != nil {
		return err
	}
	if err := j.ingestMessages(ctx, r, path, conversationID, messages); err != nil {
		if statusErr := j.audit.UpdateProcessingStatus(context.WithoutCancel(ctx), conversationID, core.StateFailed, "", err.Error()); statusErr != nil {
			j.logger.Warn("could not mark conversation failed", "conversation", conversationID, "error", statusErr)
		}
		return err
	}

	j.logger.Info("file processed", "path", path, "fragments", len(messages))
	return nil
}

func (j *Job) ingestMessages(ctx context.Context, r *run, path, conversationID string, messages []message) error {
	stage := func(name string) error {
		return j.audit.UpdateProcessingStatus(ctx, conversationID, core.StateProcessing, name, "")
	}

	if err := stage(core.StageParsing); err != nil {
		return err
	}
	if err := stage(core.StageChunking); err != nil {
		return err
	}

	for i, msg := range messages {
		fragment := newFragment(conversationID, i, msg)
		fragmentID, err := j.audit.StoreFragment(ctx, fragment)
		if err != nil {
			return err
		}

		if err := stage(core.StageSummarizing(i)); err != nil {
			return err
		}
		summary, err := j.summarizer.Predict(ctx, msg.Content, j.params)
		if err != nil {
			return fmt.Errorf("summarize fragment %d: %w", i, err)
		}
		if _, err := j.audit.StoreSummary(ctx, fragmentID, summary, j.summarizerModel); err != nil {
			return err
		}

		if err := stage(core.StageEmbedding(i)); err != nil {
			return err
		}
		vector, err := j.embedder.EmbedText(ctx, msg.Content)
		if err != nil {
			return fmt.Errorf("embed fragment %d: %w", i, err)
		}
		if _, err := j.audit.StoreEmbedding(ctx, fragmentID, vector, j.embedder.ModelIdentifier()); err != nil {
			return err
		}

		if j.graph == nil {
			continue
		}
		if err := stage(core.StageGraphSync(i)); err != nil {
			return err
		}
		if err := j.mirror(ctx, conversationID, fragmentID, i, msg.Content, summary, vector); err != nil {
			r.graphErrors = append(r.graphErrors, fmt.Sprintf("Graph storage failed for %s: %v", path, err))
			j.logger.Warn("graph mirror failed", "path", path, "fragment", i, "error", err)
		}
	}

	if err := j.audit.MarkConversationProcessed(ctx, conversationID); err != nil {
		return err
	}
	return j.audit.UpdateProcessingStatus(ctx, conversationID, core.StateCompleted, core.StageDone, "")
}

// mirror writes the SourceDocument, Summary, Embedding and MemoryShard of
// one fragment into the graph and links them. Nodes are insert-if-absent and
// edges are idempotent.
func (j *Job) mirror(ctx context.Context, conversationID, fragmentID string, idx int, content, summary string, vector []float32) error {
	key := core.FragmentKey(conversationID, fragmentID)

	doc, _, err := j.graph.CreateSourceDocument(ctx, &core.SourceDocument{
		UID:        key,
		Label:      sourceLabel(conversationID, idx),
		SourceType: "conversation",
		Content:    content,
	})
	if err != nil {
		return err
	}
	sum, _, err := j.graph.CreateSummary(ctx, &core.Summary{UID: core.SummaryUID(key), Text: summary})
	if err != nil {
		return err
	}
	emb, _, err := j.graph.CreateEmbedding(ctx, &core.Embedding{
		UID:    core.EmbeddingUID(key),
		Model:  j.embedder.ModelIdentifier(),
		Vector: vector,
	})
	if err != nil {
		return err
	}
	shard, _, err := j.graph.CreateMemoryShard(ctx, &core.MemoryShard{
		UID:           core.ShardUID(key),
		Contents:      summary,
		VectorAddress: vector,
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, link := range []struct {
		rel core.Relation
		to  core.NodeRef
	}{
		{core.RelHasEmbedding, emb.Ref()},
		{core.RelHasSummary, sum.Ref()},
		{core.RelDerivedFrom, doc.Ref()},
	} {
		if err := j.graph.Connect(ctx, shard.Ref(), link.rel, link.to); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
