package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/api/internal/articleid"
	"inkwell/api/internal/store"
)

type fakeStore struct {
	*store.MemoryStore
	insertHistoryFn func(ctx context.Context, entry store.ArticleContentEditHistory) error
}

func (f *fakeStore) InsertHistory(ctx context.Context, entry store.ArticleContentEditHistory) error {
	if f.insertHistoryFn != nil {
		return f.insertHistoryFn(ctx, entry)
	}
	return f.MemoryStore.InsertHistory(ctx, entry)
}

func frozenClock() *articleid.Clock {
	return articleid.NewClockAt(func() time.Time { return time.Unix(1700000000, 0) })
}

func strPtr(s string) *string { return &s }

func TestRecordAndReadBack(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(store.NewMemoryStore(), frozenClock())

	exists, err := r.Exists(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, exists)

	for _, title := range []string{"v1", "v2", "v3"} {
		_, err := r.Record(ctx, "a1", "u1", Snapshot{Title: strPtr(title)})
		require.NoError(t, err)
	}

	recent, err := r.Recent(ctx, "a1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "v3", *recent[0].Title)
	assert.Equal(t, "v2", *recent[1].Title)

	first, err := r.First(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "v1", *first.Title)

	exists, err = r.Exists(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRecordRetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	calls := 0
	fs := &fakeStore{MemoryStore: mem}
	fs.insertHistoryFn = func(ctx context.Context, entry store.ArticleContentEditHistory) error {
		calls++
		if calls == 1 {
			return store.ErrAlreadyExists
		}
		return mem.InsertHistory(ctx, entry)
	}

	entry, err := NewRecorder(fs, frozenClock()).Record(ctx, "a1", "u1", Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, time.Unix(1700000000, 0).UnixMicro()+1, entry.SortKey)
}

func TestRecordGivesUpAfterBoundedAttempts(t *testing.T) {
	calls := 0
	fs := &fakeStore{MemoryStore: store.NewMemoryStore()}
	fs.insertHistoryFn = func(context.Context, store.ArticleContentEditHistory) error {
		calls++
		return store.ErrAlreadyExists
	}

	_, err := NewRecorder(fs, frozenClock()).Record(context.Background(), "a1", "u1", Snapshot{})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
	assert.Equal(t, recordAttempts, calls)
}

func TestRecordDoesNotRetryOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	fs := &fakeStore{MemoryStore: store.NewMemoryStore()}
	fs.insertHistoryFn = func(context.Context, store.ArticleContentEditHistory) error {
		calls++
		return boom
	}

	_, err := NewRecorder(fs, frozenClock()).Record(context.Background(), "a1", "u1", Snapshot{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
