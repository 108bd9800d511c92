package search

import "sync"

// MemoryIndex is an in-process Indexer used with the in-memory store.
type MemoryIndex struct {
	mu      sync.Mutex
	docs    map[string]ArticleDocument
	upserts int
	deletes int
	failErr error
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]ArticleDocument)}
}

func (m *MemoryIndex) UpsertArticle(doc ArticleDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.failErr != nil {
		return m.failErr
	}
	m.docs[doc.ArticleID] = doc
	return nil
}

func (m *MemoryIndex) DeleteArticle(articleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.failErr != nil {
		return m.failErr
	}
	delete(m.docs, articleID)
	return nil
}

// FailWith makes every following call fail with err until called with nil.
func (m *MemoryIndex) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *MemoryIndex) Get(articleID string) (ArticleDocument, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[articleID]
	return doc, ok
}

func (m *MemoryIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// Calls returns how many upserts and deletes were attempted.
func (m *MemoryIndex) Calls() (upserts, deletes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts, m.deletes
}
