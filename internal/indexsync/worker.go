// Package indexsync drains articles flagged dirty into the search index.
//
// A pass reads a bounded batch of dirty records oldest first, pushes each to
// the index and clears the flag only if updated_at is unchanged since the
// read. Overlapping passes are safe: index writes are idempotent and a
// record changed mid-pass stays dirty for the next one.
package indexsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
)

const DefaultBatchSize = 10

// ErrStalled is returned by RunUntilClean when a pass clears nothing.
var ErrStalled = errors.New("index sync made no progress")

type syncStore interface {
	ListDirty(ctx context.Context, limit int) ([]store.ArticleInfo, error)
	GetContent(ctx context.Context, articleID string) (store.ArticleContent, error)
	UpdateInfo(ctx context.Context, articleID string, update store.InfoUpdate, expect store.Expect) error
}

// Report summarizes one or more passes.
type Report struct {
	Batch     int
	Upserted  int
	Deleted   int
	Cleared   int
	Conflicts int
	Failed    int
}

func (r *Report) add(other Report) {
	r.Batch += other.Batch
	r.Upserted += other.Upserted
	r.Deleted += other.Deleted
	r.Cleared += other.Cleared
	r.Conflicts += other.Conflicts
	r.Failed += other.Failed
}

type Worker struct {
	store     syncStore
	index     search.Indexer
	batchSize int
	metrics   *Metrics
}

func NewWorker(store syncStore, index search.Indexer, batchSize int, metrics *Metrics) *Worker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if metrics == nil {
		metrics = NewMetrics("")
	}
	return &Worker{store: store, index: index, batchSize: batchSize, metrics: metrics}
}

func (w *Worker) Metrics() *Metrics {
	return w.metrics
}

// Run executes one pass. Only a failure to read the batch is returned as an
// error; per-record failures are logged, counted and left dirty.
func (w *Worker) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report, err := w.run(ctx)
	w.metrics.RecordRun(report, time.Since(start), err)
	return report, err
}

func (w *Worker) run(ctx context.Context) (Report, error) {
	var report Report
	infos, err := w.store.ListDirty(ctx, w.batchSize)
	if err != nil {
		return report, fmt.Errorf("list dirty articles: %w", err)
	}
	report.Batch = len(infos)

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		w.syncRecord(ctx, info, &report)
	}
	return report, nil
}

func (w *Worker) syncRecord(ctx context.Context, info store.ArticleInfo, report *Report) {
	if info.Status == store.StatusPublic {
		content, err := w.store.GetContent(ctx, info.ArticleID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			report.Failed++
			slog.Error("index sync: read content", "article_id", info.ArticleID, "err", err)
			return
		}
		if err := w.index.UpsertArticle(search.ComposeDocument(info, content)); err != nil {
			report.Failed++
			slog.Error("index sync: upsert", "article_id", info.ArticleID, "err", err)
			return
		}
		report.Upserted++
	} else {
		if err := w.index.DeleteArticle(info.ArticleID); err != nil {
			report.Failed++
			slog.Error("index sync: delete", "article_id", info.ArticleID, "err", err)
			return
		}
		report.Deleted++
	}

	clean := store.SyncClean
	seen := info.UpdatedAt
	err := w.store.UpdateInfo(ctx, info.ArticleID,
		store.InfoUpdate{SyncElasticsearch: &clean},
		store.Expect{UpdatedAt: &seen})
	switch {
	case err == nil:
		report.Cleared++
	case errors.Is(err, store.ErrConditionFailed):
		report.Conflicts++
		w.redirty(ctx, info.ArticleID)
	case errors.Is(err, store.ErrNotFound):
		// Draft deleted after the read; the index delete above already covers it.
		report.Cleared++
	default:
		report.Failed++
		slog.Error("index sync: clear dirty flag", "article_id", info.ArticleID, "err", err)
	}
}

// redirty re-raises the flag after a lost clear. An overlapping pass may
// already have synced the newer version and cleared it, in which case the
// write this pass just made to the index is stale. updated_at is left as is.
func (w *Worker) redirty(ctx context.Context, articleID string) {
	dirty := store.SyncDirty
	err := w.store.UpdateInfo(ctx, articleID, store.InfoUpdate{SyncElasticsearch: &dirty}, store.Expect{})
	switch {
	case err == nil:
		slog.Debug("index sync: record changed during sync, left dirty", "article_id", articleID)
	case errors.Is(err, store.ErrNotFound):
	default:
		slog.Error("index sync: re-mark dirty", "article_id", articleID, "err", err)
	}
}

// RunUntilClean repeats passes until one finds no dirty records, at most
// maxPasses times.
func (w *Worker) RunUntilClean(ctx context.Context, maxPasses int) (Report, error) {
	var total Report
	for pass := 0; maxPasses <= 0 || pass < maxPasses; pass++ {
		report, err := w.Run(ctx)
		total.add(report)
		if err != nil {
			return total, err
		}
		if report.Batch == 0 {
			return total, nil
		}
		if report.Cleared == 0 && report.Conflicts == 0 {
			return total, ErrStalled
		}
	}
	return total, fmt.Errorf("index sync still dirty after %d passes", maxPasses)
}
