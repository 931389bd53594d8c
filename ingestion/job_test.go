package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/poiesic/kairix/ai"
	"github.com/poiesic/kairix/ai/mock"
	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/storage"
	"github.com/poiesic/kairix/storage/audit"
	"github.com/poiesic/kairix/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAlerter struct {
	mu       sync.Mutex
	messages []string
}

func (a *recordingAlerter) Alert(ctx context.Context, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
}

func (a *recordingAlerter) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages...)
}

// brokenGraph fails every write. Unimplemented methods panic through the
// nil embedded interface.
type brokenGraph struct {
	storage.GraphStore
}

func (brokenGraph) CreateSourceDocument(ctx context.Context, doc *core.SourceDocument) (*core.SourceDocument, bool, error) {
	return nil, false, errors.New("graph unavailable")
}

func newAuditStore(t *testing.T) *audit.Store {
	t.Helper()
	store, err := audit.Open(audit.Config{
		Driver: audit.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "audit.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func conversationJSON(t *testing.T, contents ...string) string {
	t.Helper()
	msgs := []message{}
	for i, c := range contents {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs = append(msgs, message{Role: role, Content: c})
	}
	data, err := json.Marshal(transcript{Messages: &msgs})
	require.NoError(t, err)
	return string(data)
}

func newJob(t *testing.T, store storage.AuditStore, opts ...Option) *Job {
	t.Helper()
	job, err := NewJob(store, mock.NewMockProvider(), ai.DefaultInferenceParams(), opts...)
	require.NoError(t, err)
	return job
}

func TestNewJob_Validation(t *testing.T) {
	store := newAuditStore(t)
	params := ai.DefaultInferenceParams()

	_, err := NewJob(nil, mock.NewMockProvider(), params)
	assert.ErrorIs(t, err, ErrAuditStoreRequired)

	_, err = NewJob(store, nil, params)
	assert.ErrorIs(t, err, ErrAIProviderRequired)

	_, err = NewJob(store, mock.NewMockProvider(), ai.InferenceParams{})
	assert.ErrorIs(t, err, ai.ErrInvalidInferenceParams)

	_, err = NewJob(store, mock.NewMockProvider(), params, WithPatterns())
	assert.ErrorIs(t, err, ErrNoPatterns)
}

func TestRun_GraphFailuresCompleteWithErrors(t *testing.T) {
	ctx := context.Background()
	store := newAuditStore(t)
	alerts := &recordingAlerter{}
	job := newJob(t, store, WithGraphStore(brokenGraph{}), WithAlerter(alerts))

	dir := t.TempDir()
	writeFile(t, dir, "a.json", conversationJSON(t, "first question", "first answer", "follow up"))
	writeFile(t, dir, "b.json", conversationJSON(t, "another topic", "a reply", "thanks"))

	result, err := job.Run(ctx, dir)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, core.JobCompletedWithErrors, result.Status)
	assert.Equal(t, 2, result.FilesFound)
	assert.Equal(t, 2, result.FilesProcessed)
	assert.Equal(t, 0, result.ErrorsCount)
	assert.NotNil(t, result.EndTime)

	var details map[string][]string
	require.NoError(t, json.Unmarshal(result.ErrorDetails, &details))
	assert.Len(t, details["graph_errors"], 6)
	assert.Empty(t, details["file_errors"])

	// Audit writes are independent of the graph.
	for _, name := range []string{"a.json", "b.json"} {
		content, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		conv, err := store.GetConversationByChecksum(ctx, core.Checksum(string(content)))
		require.NoError(t, err)
		assert.NotNil(t, conv.ProcessedAt)

		fragments, err := store.GetFragments(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, fragments, 3)
		for _, f := range fragments {
			summary, err := store.GetFragmentSummary(ctx, f.ID)
			require.NoError(t, err)
			assert.NotEmpty(t, summary.SummaryText)
			embedding, err := store.GetFragmentEmbedding(ctx, f.ID)
			require.NoError(t, err)
			assert.Equal(t, mock.DefaultDimensions, embedding.Dimensions)
		}

		status, err := store.GetProcessingStatus(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, core.StateCompleted, status.Status)
		assert.Equal(t, core.StageDone, status.Stage)
	}

	got := alerts.all()
	require.Len(t, got, 1)
	assert.Equal(t, "Graph storage failed for 6 operations. Check logs for details.", got[0])
}

func TestRun_MirrorsIntoGraph(t *testing.T) {
	ctx := context.Background()
	store := newAuditStore(t)
	graph, err := badger.NewMemoryGraphStore()
	require.NoError(t, err)
	t.Cleanup(func() { graph.Close(ctx) })

	alerts := &recordingAlerter{}
	job := newJob(t, store, WithGraphStore(graph), WithAlerter(alerts))

	dir := t.TempDir()
	writeFile(t, dir, "chat.json", conversationJSON(t, "hello there", "general kenobi"))

	result, err := job.Run(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, result.Status)
	assert.Nil(t, result.ErrorDetails)
	assert.Empty(t, alerts.all())

	counts, err := graph.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, &core.GraphCounts{SourceDocuments: 2, Summaries: 2, Embeddings: 2, MemoryShards: 2}, counts)

	uids, err := graph.MemoryShardUIDs(ctx)
	require.NoError(t, err)
	for _, uid := range uids {
		links, err := graph.ShardLinks(ctx, uid)
		require.NoError(t, err)
		assert.NotEmpty(t, links.SummaryUID)
		assert.NotEmpty(t, links.EmbeddingUID)
		assert.NotEmpty(t, links.SourceUID)
		assert.Empty(t, links.AgentName)
	}
}

func TestRun_DuplicateFilesCountAsProcessed(t *testing.T) {
	ctx := context.Background()
	store := newAuditStore(t)
	provider := mock.NewMockProviderWithServices(mock.NewMockSummarizer("summary"), mock.NewMockEmbedder(), mock.NewMockChunker())
	job, err := NewJob(store, provider, ai.DefaultInferenceParams())
	require.NoError(t, err)

	dir := t.TempDir()
	body := conversationJSON(t, "only message")
	writeFile(t, dir, "one.json", body)
	writeFile(t, dir, "copy.json", body)

	result, err := job.Run(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, result.Status)
	assert.Equal(t, 2, result.FilesProcessed)
	assert.Equal(t, 1, provider.GetMockSummarizer().CallCount())

	// A second run over the same directory does no model work.
	result, err = job.Run(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesProcessed)
	assert.Equal(t, 1, provider.GetMockSummarizer().CallCount())

	history, err := store.GetJobHistory(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRun_TextFallback(t *testing.T) {
	ctx := context.Background()
	store := newAuditStore(t)
	job := newJob(t, store)

	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "plain notes, not json")
	writeFile(t, dir, "ignored.md", "not matched")

	result, err := job.Run(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesFound)

	conv, err := store.GetConversationByChecksum(ctx, core.Checksum("plain notes, not json"))
	require.NoError(t, err)
	assert.Equal(t, FormatText, conv.Format)

	fragments, err := store.GetFragments(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, "user", fragments[0].Role)
	assert.Equal(t, 4, fragments[0].TokenCount)
}

func TestRun_FileFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	store := newAuditStore(t)
	summarizer := mock.NewMockSummarizer("ok").WithPredictFunc(func(ctx context.Context, text string, params ai.InferenceParams) (string, error) {
		if text == "poison" {
			return "", errors.New("model refused")
		}
		return "ok", nil
	})
	provider := mock.NewMockProviderWithServices(summarizer, mock.NewMockEmbedder(), mock.NewMockChunker())
	alerts := &recordingAlerter{}
	job, err := NewJob(store, provider, ai.DefaultInferenceParams(), WithAlerter(alerts))
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "bad.json", conversationJSON(t, "fine", "poison"))
	writeFile(t, dir, "good.json", conversationJSON(t, "all good"))

	result, err := job.Run(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompletedWithErrors, result.Status)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Equal(t, 1, result.ErrorsCount)

	var details map[string][]string
	require.NoError(t, json.Unmarshal(result.ErrorDetails, &details))
	require.Len(t, details["file_errors"], 1)
	assert.Contains(t, details["file_errors"][0], "model refused")
	assert.Empty(t, alerts.all())

	conv, err := store.GetConversationByChecksum(ctx, core.Checksum(conversationJSON(t, "fine", "poison")))
	require.NoError(t, err)
	assert.Nil(t, conv.ProcessedAt)
	status, err := store.GetProcessingStatus(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StateFailed, status.Status)
	assert.Contains(t, status.ErrorMessage, "model refused")
}

func TestRun_MissingDirectoryFails(t *testing.T) {
	ctx := context.Background()
	store := newAuditStore(t)
	alerts := &recordingAlerter{}
	job := newJob(t, store, WithAlerter(alerts))

	result, err := job.Run(ctx, filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, ErrDirectoryUnreadable)
	require.NotNil(t, result)
	assert.Equal(t, core.JobFailed, result.Status)
	assert.NotNil(t, result.EndTime)

	var details map[string]string
	require.NoError(t, json.Unmarshal(result.ErrorDetails, &details))
	assert.Contains(t, details["error"], "nope")

	got := alerts.all()
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "Conversation ingestion job failed: ")
}

func TestRun_CancelledRunIsFinalized(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newAuditStore(t)
	summarizer := mock.NewMockSummarizer("ok").WithPredictFunc(func(ctx context.Context, text string, params ai.InferenceParams) (string, error) {
		cancel()
		return "", ctx.Err()
	})
	provider := mock.NewMockProviderWithServices(summarizer, mock.NewMockEmbedder(), mock.NewMockChunker())
	alerts := &recordingAlerter{}
	job, err := NewJob(store, provider, ai.DefaultInferenceParams(), WithAlerter(alerts))
	require.NoError(t, err)

	dir := t.TempDir()
	first := conversationJSON(t, "first file")
	writeFile(t, dir, "a.json", first)
	writeFile(t, dir, "b.json", conversationJSON(t, "second file"))

	result, err := job.Run(ctx, dir)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, core.JobFailed, result.Status)
	assert.NotNil(t, result.EndTime)
	assert.Equal(t, 2, result.FilesFound)
	assert.Equal(t, 0, result.FilesProcessed)
	assert.Equal(t, 1, result.ErrorsCount)
	assert.Equal(t, 1, summarizer.CallCount())

	var details map[string]string
	require.NoError(t, json.Unmarshal(result.ErrorDetails, &details))
	assert.Contains(t, details["error"], "context canceled")

	bg := context.Background()
	conv, err := store.GetConversationByChecksum(bg, core.Checksum(first))
	require.NoError(t, err)
	status, err := store.GetProcessingStatus(bg, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StateFailed, status.Status)

	got := alerts.all()
	require.Len(t, got, 1)
	assert.Equal(t, "Conversation ingestion job failed: context canceled", got[0])
}

func TestRun_JSONWithoutMessagesIsText(t *testing.T) {
	ctx := context.Background()
	store := newAuditStore(t)
	job := newJob(t, store)

	body := `{"title":"notes","body":"remember the milk"}`
	dir := t.TempDir()
	writeFile(t, dir, "notes.json", body)

	result, err := job.Run(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, result.Status)

	conv, err := store.GetConversationByChecksum(ctx, core.Checksum(body))
	require.NoError(t, err)
	assert.Equal(t, FormatText, conv.Format)

	fragments, err := store.GetFragments(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, body, fragments[0].Content)
}

func TestRun_ReportsConversationsLeftUnprocessed(t *testing.T) {
	ctx := context.Background()
	store := newAuditStore(t)
	summarizer := mock.NewMockSummarizer("ok").WithPredictFunc(func(ctx context.Context, text string, params ai.InferenceParams) (string, error) {
		return "", errors.New("model refused")
	})
	provider := mock.NewMockProviderWithServices(summarizer, mock.NewMockEmbedder(), mock.NewMockChunker())
	var logs bytes.Buffer
	job, err := NewJob(store, provider, ai.DefaultInferenceParams(),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "bad.json", conversationJSON(t, "poison"))

	result, err := job.Run(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ErrorsCount)
	assert.NotContains(t, logs.String(), "not retried")

	result, err = job.Run(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, result.Status)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Equal(t, 1, summarizer.CallCount())
	assert.Contains(t, logs.String(), "conversations left unprocessed by earlier runs")
	assert.Contains(t, logs.String(), "file failed in an earlier run, not retried")
}

func TestRun_Disabled(t *testing.T) {
	store := newAuditStore(t)
	job := newJob(t, store, WithEnabled(false))

	result, err := job.Run(context.Background(), "/does/not/matter")
	require.NoError(t, err)
	assert.Nil(t, result)

	history, err := store.GetJobHistory(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestWallAlerter(t *testing.T) {
	var calls [][]string
	a := NewWallAlerter(nil)
	a.run = func(ctx context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		return errors.New("not installed")
	}

	a.Alert(context.Background(), "disk full")

	assert.Equal(t, [][]string{
		{"wall", "[Kairix Cron Error] disk full"},
		{"logger", "-t", "kairix-cron", "ERROR: disk full"},
	}, calls)
}

func TestParseConversation(t *testing.T) {
	msgs, format := parseConversation([]byte(`{"messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"  "}]}`))
	assert.Equal(t, FormatJSON, format)
	assert.Equal(t, []message{{Role: "user", Content: "hi"}}, msgs)

	msgs, format = parseConversation([]byte(`[1,2,3]`))
	assert.Equal(t, FormatText, format)
	assert.Len(t, msgs, 1)

	body := `{"title":"notes","body":"remember the milk"}`
	msgs, format = parseConversation([]byte(body))
	assert.Equal(t, FormatText, format)
	assert.Equal(t, []message{{Role: "user", Content: body}}, msgs)

	msgs, format = parseConversation([]byte(`{"messages":null}`))
	assert.Equal(t, FormatText, format)
	assert.Len(t, msgs, 1)

	msgs, _ = parseConversation([]byte("   \n"))
	assert.Empty(t, msgs)
}
