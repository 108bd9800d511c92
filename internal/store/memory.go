package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps all record sets in process memory. It honours the same
// conditional-write contract as PostgresStore and backs tests and -memory runs.
type MemoryStore struct {
	mu        sync.Mutex
	infos     map[string]ArticleInfo
	contents  map[string]ArticleContent
	edits     map[string]ArticleContentEdit
	history   map[string][]ArticleContentEditHistory
	deleted   map[string]DeletedDraftArticleInfo
	deletedC  map[string]DeletedDraftArticleContent
	purchases map[purchaseKey][]PurchaseStatus
}

type purchaseKey struct {
	articleID string
	userID    string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		infos:     make(map[string]ArticleInfo),
		contents:  make(map[string]ArticleContent),
		edits:     make(map[string]ArticleContentEdit),
		history:   make(map[string][]ArticleContentEditHistory),
		deleted:   make(map[string]DeletedDraftArticleInfo),
		deletedC:  make(map[string]DeletedDraftArticleContent),
		purchases: make(map[purchaseKey][]PurchaseStatus),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) GetInfo(_ context.Context, articleID string) (ArticleInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.infos[articleID]
	if !ok {
		return ArticleInfo{}, ErrNotFound
	}
	return info, nil
}

func (m *MemoryStore) InsertInfo(_ context.Context, info ArticleInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.infos[info.ArticleID]; ok {
		return ErrAlreadyExists
	}
	m.infos[info.ArticleID] = info
	return nil
}

func (m *MemoryStore) UpdateInfo(_ context.Context, articleID string, update InfoUpdate, expect Expect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.infos[articleID]
	if !ok {
		return ErrNotFound
	}
	if expect.Status != "" && info.Status != expect.Status {
		return ErrConditionFailed
	}
	if expect.UserID != "" && info.UserID != expect.UserID {
		return ErrConditionFailed
	}
	if expect.UpdatedAt != nil && info.UpdatedAt != *expect.UpdatedAt {
		return ErrConditionFailed
	}

	if update.Status != nil {
		info.Status = *update.Status
	}
	if update.Title.Set {
		info.Title = update.Title.Value
	}
	if update.Overview.Set {
		info.Overview = update.Overview.Value
	}
	if update.EyeCatchURL.Set {
		info.EyeCatchURL = update.EyeCatchURL.Value
	}
	if update.Price.Set {
		info.Price = update.Price.Value
	}
	if update.PublishedAt.Set {
		info.PublishedAt = update.PublishedAt.Value
	}
	if update.SyncElasticsearch != nil {
		info.SyncElasticsearch = *update.SyncElasticsearch
	}
	if update.UpdatedAt != nil {
		info.UpdatedAt = *update.UpdatedAt
	}
	m.infos[articleID] = info
	return nil
}

func (m *MemoryStore) DeleteInfo(_ context.Context, articleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.infos, articleID)
	return nil
}

func (m *MemoryStore) ListByOwner(_ context.Context, userID string, status Status, page Page) ([]ArticleInfo, error) {
	return m.listNewest(page, func(info ArticleInfo) bool {
		return info.UserID == userID && info.Status == status
	}), nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, status Status, page Page) ([]ArticleInfo, error) {
	return m.listNewest(page, func(info ArticleInfo) bool {
		return info.Status == status
	}), nil
}

func (m *MemoryStore) listNewest(page Page, match func(ArticleInfo) bool) []ArticleInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]ArticleInfo, 0)
	for _, info := range m.infos {
		if !match(info) {
			continue
		}
		if page.Before > 0 && info.SortKey >= page.Before {
			continue
		}
		items = append(items, info)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SortKey > items[j].SortKey })
	if len(items) > page.limit() {
		items = items[:page.limit()]
	}
	return items
}

func (m *MemoryStore) ListDirty(_ context.Context, limit int) ([]ArticleInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]ArticleInfo, 0)
	for _, info := range m.infos {
		if info.SyncElasticsearch == SyncDirty {
			items = append(items, info)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].UpdatedAt == items[j].UpdatedAt {
			return items[i].ArticleID < items[j].ArticleID
		}
		return items[i].UpdatedAt < items[j].UpdatedAt
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *MemoryStore) MarkAllDirty(_ context.Context, now int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, info := range m.infos {
		info.SyncElasticsearch = SyncDirty
		info.UpdatedAt = max(info.UpdatedAt+1, now)
		m.infos[id] = info
	}
	return int64(len(m.infos)), nil
}

func (m *MemoryStore) GetContent(_ context.Context, articleID string) (ArticleContent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.contents[articleID]
	if !ok {
		return ArticleContent{}, ErrNotFound
	}
	return content, nil
}

func (m *MemoryStore) InsertContent(_ context.Context, content ArticleContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contents[content.ArticleID]; ok {
		return ErrAlreadyExists
	}
	m.contents[content.ArticleID] = content
	return nil
}

func (m *MemoryStore) UpdateContent(_ context.Context, articleID string, update ContentUpdate) error {
	if update.empty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.contents[articleID]
	if !ok {
		return ErrNotFound
	}
	if update.Title.Set {
		content.Title = update.Title.Value
	}
	if update.Body.Set {
		content.Body = update.Body.Value
	}
	if update.PaidBody.Set {
		content.PaidBody = update.PaidBody.Value
	}
	m.contents[articleID] = content
	return nil
}

func (m *MemoryStore) DeleteContent(_ context.Context, articleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contents, articleID)
	return nil
}

func (m *MemoryStore) GetContentEdit(_ context.Context, articleID string) (ArticleContentEdit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	edit, ok := m.edits[articleID]
	if !ok {
		return ArticleContentEdit{}, ErrNotFound
	}
	return edit, nil
}

func (m *MemoryStore) PutContentEdit(_ context.Context, edit ArticleContentEdit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits[edit.ArticleID] = edit
	return nil
}

func (m *MemoryStore) DeleteContentEdit(_ context.Context, articleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.edits, articleID)
	return nil
}

func (m *MemoryStore) InsertHistory(_ context.Context, entry ArticleContentEditHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.history[entry.ArticleID] {
		if existing.SortKey == entry.SortKey {
			return ErrAlreadyExists
		}
	}
	// Insertion order is irrelevant; reads sort by sort_key.
	m.history[entry.ArticleID] = append(m.history[entry.ArticleID], entry)
	return nil
}

func (m *MemoryStore) ListHistory(_ context.Context, articleID string, limit int) ([]ArticleContentEditHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]ArticleContentEditHistory(nil), m.history[articleID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].SortKey > items[j].SortKey })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		items = make([]ArticleContentEditHistory, 0)
	}
	return items, nil
}

func (m *MemoryStore) FirstHistory(_ context.Context, articleID string) (ArticleContentEditHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[articleID]
	if len(entries) == 0 {
		return ArticleContentEditHistory{}, ErrNotFound
	}
	first := entries[0]
	for _, entry := range entries[1:] {
		if entry.SortKey < first.SortKey {
			first = entry
		}
	}
	return first, nil
}

func (m *MemoryStore) HasHistory(_ context.Context, articleID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history[articleID]) > 0, nil
}

func (m *MemoryStore) ArchiveDraft(_ context.Context, info ArticleInfo, content *ArticleContent, deletedAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deleted[info.ArticleID]; !ok {
		m.deleted[info.ArticleID] = DeletedDraftArticleInfo{ArticleInfo: info, DeletedAt: deletedAt}
	}
	if content != nil {
		if _, ok := m.deletedC[content.ArticleID]; !ok {
			m.deletedC[content.ArticleID] = DeletedDraftArticleContent{ArticleContent: *content, DeletedAt: deletedAt}
		}
	}
	return nil
}

func (m *MemoryStore) GetDeletedDraft(_ context.Context, articleID string) (DeletedDraftArticleInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.deleted[articleID]
	if !ok {
		return DeletedDraftArticleInfo{}, ErrNotFound
	}
	return item, nil
}

func (m *MemoryStore) GetDeletedDraftContent(_ context.Context, articleID string) (DeletedDraftArticleContent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.deletedC[articleID]
	if !ok {
		return DeletedDraftArticleContent{}, ErrNotFound
	}
	return item, nil
}

// AddPurchase records a purchase attempt. Purchases are written by the
// wallet subsystem in production; here it seeds the read path.
func (m *MemoryStore) AddPurchase(articleID, userID string, status PurchaseStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := purchaseKey{articleID: articleID, userID: userID}
	m.purchases[key] = append(m.purchases[key], status)
}

func (m *MemoryStore) PurchaseStatus(_ context.Context, articleID, userID string) (PurchaseStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := m.purchases[purchaseKey{articleID: articleID, userID: userID}]
	if len(statuses) == 0 {
		return "", ErrNotFound
	}
	best := statuses[0]
	for _, status := range statuses[1:] {
		if purchaseRank(status) < purchaseRank(best) {
			best = status
		}
	}
	return best, nil
}

func purchaseRank(status PurchaseStatus) int {
	switch status {
	case PurchaseDone:
		return 0
	case PurchaseDoing:
		return 1
	default:
		return 2
	}
}
