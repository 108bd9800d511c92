// Package history keeps the append-only record of edits made to public
// articles.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"inkwell/api/internal/store"
)

const recordAttempts = 3

type historyStore interface {
	InsertHistory(ctx context.Context, entry store.ArticleContentEditHistory) error
	ListHistory(ctx context.Context, articleID string, limit int) ([]store.ArticleContentEditHistory, error)
	FirstHistory(ctx context.Context, articleID string) (store.ArticleContentEditHistory, error)
	HasHistory(ctx context.Context, articleID string) (bool, error)
}

type sortKeySource interface {
	Next() int64
	Now() int64
}

// Snapshot is the editable part of an article at the moment of an edit.
type Snapshot struct {
	Title       *string
	Body        *string
	Overview    *string
	EyeCatchURL *string
}

type Recorder struct {
	store historyStore
	clock sortKeySource
}

func NewRecorder(store historyStore, clock sortKeySource) *Recorder {
	return &Recorder{store: store, clock: clock}
}

// Record appends a snapshot under a fresh sort key. A key collision is
// retried with a new key; existing entries are never overwritten.
func (r *Recorder) Record(ctx context.Context, articleID, editorID string, snap Snapshot) (store.ArticleContentEditHistory, error) {
	var err error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		entry := store.ArticleContentEditHistory{
			ArticleID:   articleID,
			SortKey:     r.clock.Next(),
			UserID:      editorID,
			Title:       snap.Title,
			Body:        snap.Body,
			Overview:    snap.Overview,
			EyeCatchURL: snap.EyeCatchURL,
			CreatedAt:   r.clock.Now(),
		}
		err = r.store.InsertHistory(ctx, entry)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return store.ArticleContentEditHistory{}, fmt.Errorf("record edit history: %w", err)
		}
		slog.Warn("edit history sort key collision", "article_id", articleID, "attempt", attempt)
	}
	return store.ArticleContentEditHistory{}, fmt.Errorf("record edit history: %w", err)
}

// Recent returns up to n entries, newest first.
func (r *Recorder) Recent(ctx context.Context, articleID string, n int) ([]store.ArticleContentEditHistory, error) {
	if n <= 0 {
		n = 20
	}
	return r.store.ListHistory(ctx, articleID, n)
}

// First returns the chronologically earliest entry.
func (r *Recorder) First(ctx context.Context, articleID string) (store.ArticleContentEditHistory, error) {
	return r.store.FirstHistory(ctx, articleID)
}

func (r *Recorder) Exists(ctx context.Context, articleID string) (bool, error) {
	return r.store.HasHistory(ctx, articleID)
}
