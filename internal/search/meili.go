package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const DefaultIndex = "articles"

const (
	taskTimeout      = 30 * time.Second
	taskPollInterval = 50 * time.Millisecond
)

// Meili implements Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	index   string
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the article index.
// An unreachable server is tolerated; the health loop picks it up later.
func NewMeili(url, apiKey, index string) *Meili {
	if index == "" {
		index = DefaultIndex
	}
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		index:  index,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		slog.Warn("meilisearch unavailable", "url", url, "err", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        m.index,
		PrimaryKey: "article_id",
	}); err != nil {
		slog.Info("create index (may already exist)", "index", m.index, "err", err)
	}

	index := m.client.Index(m.index)
	filterable := []interface{}{"user_id", "price"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		slog.Warn("update filterable attributes", "index", m.index, "err", err)
	}
	sortable := []string{"published_at", "sort_key"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		slog.Warn("update sortable attributes", "index", m.index, "err", err)
	}
	searchable := []string{"title", "overview", "body"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		slog.Warn("update searchable attributes", "index", m.index, "err", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Meili) checkHealth() {
	_, err := m.client.Health()
	wasHealthy := m.healthy.Load()
	m.healthy.Store(err == nil)
	if err == nil && !wasHealthy {
		slog.Info("meilisearch recovered, reconfiguring index", "index", m.index)
		m.configureIndex()
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// UpsertArticle adds or replaces the article document. While the server is
// unhealthy it fails immediately so the caller keeps the record dirty.
func (m *Meili) UpsertArticle(doc ArticleDocument) error {
	if !m.healthy.Load() {
		return ErrUnavailable
	}
	info, err := m.client.Index(m.index).AddDocuments([]ArticleDocument{doc}, nil)
	if err != nil {
		m.healthy.Store(false)
		return fmt.Errorf("meilisearch upsert %s: %w", doc.ArticleID, err)
	}
	if err := m.await(info); err != nil {
		return fmt.Errorf("meilisearch upsert %s: %w", doc.ArticleID, err)
	}
	return nil
}

// DeleteArticle removes the article document. Meilisearch treats deleting
// an unknown id as a successful task.
func (m *Meili) DeleteArticle(articleID string) error {
	if !m.healthy.Load() {
		return ErrUnavailable
	}
	info, err := m.client.Index(m.index).DeleteDocument(articleID, nil)
	if err != nil {
		m.healthy.Store(false)
		return fmt.Errorf("meilisearch delete %s: %w", articleID, err)
	}
	if err := m.await(info); err != nil {
		return fmt.Errorf("meilisearch delete %s: %w", articleID, err)
	}
	return nil
}

// await blocks until Meilisearch has processed the task. Accepting a task
// is not success: a document can still be rejected when it runs.
func (m *Meili) await(info *meili.TaskInfo) error {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	task, err := m.client.WaitForTaskWithContext(ctx, info.TaskUID, taskPollInterval)
	if err != nil {
		return fmt.Errorf("wait for task %d: %w", info.TaskUID, err)
	}
	if task.Status != meili.TaskStatusSucceeded {
		return fmt.Errorf("task %d %s: %s (%s)", info.TaskUID, task.Status, task.Error.Message, task.Error.Code)
	}
	return nil
}
