package audit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "audit.db")), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func intPtr(i int) *int { return &i }

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.db")
	store, err := Open(Config{Driver: DriverSQLite, DSN: path})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = Open(Config{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)

	_, err = Open(Config{Driver: DriverSQLite})
	assert.Error(t, err)
}

func TestStoreConversation_ChecksumDedup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, stored, err := store.StoreConversation(ctx, "/data/a.json", "same content", "json")
	require.NoError(t, err)
	assert.True(t, stored)
	assert.NotEmpty(t, id)

	dupID, stored, err := store.StoreConversation(ctx, "/other/b.txt", "same content", "text")
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Empty(t, dupID)

	var count int64
	require.NoError(t, store.db.Model(&conversationRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	conv, err := store.GetConversationByChecksum(ctx, core.Checksum("same content"))
	require.NoError(t, err)
	assert.Equal(t, id, conv.ID)
	assert.Equal(t, "a.json", conv.FileName)
	assert.Equal(t, "json", conv.Format)

	_, err = store.GetConversationByChecksum(ctx, core.Checksum("other"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUnprocessedConversations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, _, err := store.StoreConversation(ctx, "a.txt", "one", "text")
	require.NoError(t, err)
	second, _, err := store.StoreConversation(ctx, "b.txt", "two", "text")
	require.NoError(t, err)

	require.NoError(t, store.MarkConversationProcessed(ctx, first))

	pending, err := store.GetUnprocessedConversations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].ID)

	assert.ErrorIs(t, store.MarkConversationProcessed(ctx, "missing"), storage.ErrNotFound)
}

func TestFragmentMirrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	convID, _, err := store.StoreConversation(ctx, "a.json", "content", "json")
	require.NoError(t, err)

	for i, text := range []string{"hello there", "general kenobi"} {
		frag := &core.Fragment{ConversationID: convID, SequenceNumber: i, Content: text, Role: "user", TokenCount: core.TokenCount(text)}
		fragID, err := store.StoreFragment(ctx, frag)
		require.NoError(t, err)
		assert.Equal(t, fragID, frag.ID)

		_, err = store.StoreSummary(ctx, fragID, "summary "+text, "qwen")
		require.NoError(t, err)
		_, err = store.StoreEmbedding(ctx, fragID, []float32{float32(i), 0.25, -1}, "nomic")
		require.NoError(t, err)
	}

	frags, err := store.GetFragments(ctx, convID)
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, 0, frags[0].SequenceNumber)
	assert.Equal(t, 2, frags[1].TokenCount)

	summary, err := store.GetFragmentSummary(ctx, frags[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "summary general kenobi", summary.SummaryText)
	assert.Equal(t, "qwen", summary.ModelUsed)

	emb, err := store.GetFragmentEmbedding(ctx, frags[1].ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0.25, -1}, emb.Vector)
	assert.Equal(t, 3, emb.Dimensions)

	t.Run("one summary per fragment", func(t *testing.T) {
		_, err := store.StoreSummary(ctx, frags[0].ID, "again", "qwen")
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("missing mirror", func(t *testing.T) {
		_, err := store.GetFragmentSummary(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = store.GetFragmentEmbedding(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestUpdateJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job, err := store.CreateJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.JobRunning, job.Status)
	assert.Nil(t, job.EndTime)

	require.NoError(t, store.UpdateJob(ctx, job.ID, core.JobUpdate{FilesFound: intPtr(3)}))

	details := []byte(`{"graph_errors":["boom"],"file_errors":[]}`)
	require.NoError(t, store.UpdateJob(ctx, job.ID, core.JobUpdate{
		Status:         core.JobCompletedWithErrors,
		FilesProcessed: intPtr(2),
		ErrorsCount:    intPtr(1),
		ErrorDetails:   details,
	}))

	got, err := store.GetJobDetails(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobCompletedWithErrors, got.Job.Status)
	assert.Equal(t, 3, got.Job.FilesFound)
	assert.Equal(t, 2, got.Job.FilesProcessed)
	assert.Equal(t, 1, got.Job.ErrorsCount)
	require.NotNil(t, got.Job.EndTime)

	var decoded map[string][]string
	require.NoError(t, json.Unmarshal(got.Job.ErrorDetails, &decoded))
	assert.Equal(t, []string{"boom"}, decoded["graph_errors"])

	err = store.UpdateJob(ctx, job.ID, core.JobUpdate{Status: core.JobRunning})
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)

	err = store.UpdateJob(ctx, "missing", core.JobUpdate{Status: core.JobFailed})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcessingStatus_Monotonic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	convID, _, err := store.StoreConversation(ctx, "a.txt", "x", "text")
	require.NoError(t, err)
	job, err := store.CreateJob(ctx)
	require.NoError(t, err)

	require.NoError(t, store.CreateProcessingStatus(ctx, convID, job.ID))
	status, err := store.GetProcessingStatus(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, core.StatePending, status.Status)

	require.NoError(t, store.UpdateProcessingStatus(ctx, convID, core.StateProcessing, core.StageParsing, ""))
	require.NoError(t, store.UpdateProcessingStatus(ctx, convID, core.StateProcessing, core.StageSummarizing(0), ""))
	require.NoError(t, store.UpdateProcessingStatus(ctx, convID, core.StateCompleted, core.StageDone, ""))

	err = store.UpdateProcessingStatus(ctx, convID, core.StateProcessing, core.StageParsing, "")
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)
	err = store.UpdateProcessingStatus(ctx, convID, core.StatePending, "", "")
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)

	status, err = store.GetProcessingStatus(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, status.Status)
	assert.Equal(t, core.StageDone, status.Stage)

	details, err := store.GetJobDetails(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, details.Statuses, 1)
	assert.Equal(t, convID, details.Statuses[0].ConversationID)

	_, err = store.GetProcessingStatus(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcessingStatus_FailedKeepsMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	convID, _, err := store.StoreConversation(ctx, "a.txt", "x", "text")
	require.NoError(t, err)
	job, err := store.CreateJob(ctx)
	require.NoError(t, err)
	require.NoError(t, store.CreateProcessingStatus(ctx, convID, job.ID))
	require.NoError(t, store.UpdateProcessingStatus(ctx, convID, core.StateProcessing, core.StageEmbedding(1), ""))
	require.NoError(t, store.UpdateProcessingStatus(ctx, convID, core.StateFailed, "", "model offline"))

	status, err := store.GetProcessingStatus(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, core.StateFailed, status.Status)
	assert.Equal(t, "embedding_1", status.Stage)
	assert.Equal(t, "model offline", status.ErrorMessage)
}

func TestGetJobHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := store.CreateJob(ctx)
		require.NoError(t, err)
		ids = append(ids, job.ID)
		time.Sleep(5 * time.Millisecond)
	}

	history, err := store.GetJobHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ids[2], history[0].ID)
	assert.Equal(t, ids[1], history[1].ID)

	all, err := store.GetJobHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = store.GetJobDetails(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
