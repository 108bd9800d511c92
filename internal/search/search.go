package search

import "errors"

// ErrUnavailable is returned when the index backend is known to be down.
var ErrUnavailable = errors.New("search index unavailable")

// ArticleDocument is the projection of a public article held by the index.
// It never includes paid content.
type ArticleDocument struct {
	ArticleID   string `json:"article_id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Overview    string `json:"overview"`
	Body        string `json:"body"`
	EyeCatchURL string `json:"eye_catch_url,omitempty"`
	Price       *int64 `json:"price,omitempty"`
	PublishedAt int64  `json:"published_at"`
	SortKey     int64  `json:"sort_key"`
}

// Indexer pushes articles into a search index. Both operations are
// idempotent; deleting an absent document is not an error.
type Indexer interface {
	UpsertArticle(doc ArticleDocument) error
	DeleteArticle(articleID string) error
}
