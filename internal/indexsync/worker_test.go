package indexsync

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
)

func strPtr(s string) *string { return &s }

func seed(t *testing.T, m *store.MemoryStore, id string, status store.Status, updatedAt int64, body string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.InsertInfo(ctx, store.ArticleInfo{
		ArticleID: id, UserID: "u1", Status: status, Version: store.VersionSplit,
		SortKey: updatedAt, Title: strPtr("title " + id), UpdatedAt: updatedAt,
		SyncElasticsearch: store.SyncDirty, CreatedAt: updatedAt,
	}))
	require.NoError(t, m.InsertContent(ctx, store.ArticleContent{ArticleID: id, Body: strPtr(body)}))
}

func TestRunSyncsBatchAndClearsFlags(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	seed(t, mem, "pub", store.StatusPublic, 100, "<p>hello</p>")
	seed(t, mem, "draft", store.StatusDraft, 200, "<p>gone</p>")
	seed(t, mem, "del", store.StatusDelete, 300, "<p>gone</p>")
	index := search.NewMemoryIndex()
	w := NewWorker(mem, index, 10, nil)

	report, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Batch: 3, Upserted: 1, Deleted: 2, Cleared: 3}, report)

	doc, ok := index.Get("pub")
	require.True(t, ok)
	assert.Equal(t, "hello", doc.Body)
	assert.Equal(t, 1, index.Len())

	dirty, err := mem.ListDirty(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, dirty)

	info, _ := mem.GetInfo(ctx, "pub")
	assert.Equal(t, int64(100), info.UpdatedAt, "clearing the flag must not move updated_at")

	report, err = w.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Batch)
	upserts, deletes := index.Calls()
	assert.Equal(t, 1, upserts)
	assert.Equal(t, 2, deletes)
}

func TestRunHonoursBatchSizeOldestFirst(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	seed(t, mem, "newer", store.StatusPublic, 200, "b")
	seed(t, mem, "older", store.StatusPublic, 100, "a")
	index := search.NewMemoryIndex()

	report, err := NewWorker(mem, index, 1, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Batch)
	_, ok := index.Get("older")
	assert.True(t, ok)
	_, ok = index.Get("newer")
	assert.False(t, ok)
}

func TestRunLeavesFailedRecordsDirty(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	seed(t, mem, "a1", store.StatusPublic, 100, "x")
	index := search.NewMemoryIndex()
	index.FailWith(errors.New("index down"))
	metrics := NewMetrics("test")
	w := NewWorker(mem, index, 10, metrics)

	report, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.records.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.lastBatch))

	info, _ := mem.GetInfo(ctx, "a1")
	assert.Equal(t, store.SyncDirty, info.SyncElasticsearch)

	_, err = w.RunUntilClean(ctx, 5)
	assert.ErrorIs(t, err, ErrStalled)

	index.FailWith(nil)
	total, err := w.RunUntilClean(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, total.Upserted)
}

// racingStore bumps updated_at while the worker is talking to the index.
type racingStore struct {
	*store.MemoryStore
	raced bool
}

func (r *racingStore) GetContent(ctx context.Context, articleID string) (store.ArticleContent, error) {
	if !r.raced {
		r.raced = true
		info, _ := r.MemoryStore.GetInfo(ctx, articleID)
		next := info.UpdatedAt + 1
		dirty := store.SyncDirty
		_ = r.MemoryStore.UpdateInfo(ctx, articleID, store.InfoUpdate{UpdatedAt: &next, SyncElasticsearch: &dirty}, store.Expect{})
	}
	return r.MemoryStore.GetContent(ctx, articleID)
}

func TestRunKeepsRecordDirtyWhenChangedMidPass(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	seed(t, mem, "a1", store.StatusPublic, 100, "x")
	rs := &racingStore{MemoryStore: mem}
	index := search.NewMemoryIndex()
	w := NewWorker(rs, index, 10, nil)

	report, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Conflicts)
	assert.Zero(t, report.Cleared)

	info, _ := mem.GetInfo(ctx, "a1")
	assert.Equal(t, store.SyncDirty, info.SyncElasticsearch)

	report, err = w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cleared)
	upserts, _ := index.Calls()
	assert.Equal(t, 2, upserts)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	mem := store.NewMemoryStore()
	seed(t, mem, "a1", store.StatusPublic, 100, "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWorker(mem, search.NewMemoryIndex(), 10, nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// slowIndex runs beforeUpsert once, ahead of the first upsert it forwards.
type slowIndex struct {
	*search.MemoryIndex
	beforeUpsert func()
}

func (s *slowIndex) UpsertArticle(doc search.ArticleDocument) error {
	if hook := s.beforeUpsert; hook != nil {
		s.beforeUpsert = nil
		hook()
	}
	return s.MemoryIndex.UpsertArticle(doc)
}

func TestOverlappingPassesLeaveNoStaleDocument(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	seed(t, mem, "a1", store.StatusPublic, 100, "x")
	index := search.NewMemoryIndex()
	other := NewWorker(mem, index, 10, nil)

	slow := &slowIndex{MemoryIndex: index}
	slow.beforeUpsert = func() {
		draft := store.StatusDraft
		dirty := store.SyncDirty
		next := int64(101)
		require.NoError(t, mem.UpdateInfo(ctx, "a1", store.InfoUpdate{
			Status: &draft, SyncElasticsearch: &dirty, UpdatedAt: &next,
		}, store.Expect{}))
		report, err := other.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, report.Deleted)
		require.Equal(t, 1, report.Cleared)
	}

	report, err := NewWorker(mem, slow, 10, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Conflicts)
	_, indexed := index.Get("a1")
	require.True(t, indexed, "the stale upsert landed after the delete")

	info, _ := mem.GetInfo(ctx, "a1")
	assert.Equal(t, store.SyncDirty, info.SyncElasticsearch)
	assert.Equal(t, int64(101), info.UpdatedAt)

	_, err = other.RunUntilClean(ctx, 5)
	require.NoError(t, err)
	_, indexed = index.Get("a1")
	assert.False(t, indexed)
	info, _ = mem.GetInfo(ctx, "a1")
	assert.Equal(t, store.SyncClean, info.SyncElasticsearch)
}
