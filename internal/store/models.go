package store

type Status string

const (
	StatusDraft  Status = "draft"
	StatusPublic Status = "public"
	StatusDelete Status = "delete"
)

// Values of ArticleInfo.SyncElasticsearch.
const (
	SyncDirty = 0
	SyncClean = 1
)

// Content-splitting schemes. Version 2 keeps the full text of a paid
// article in paid_body and only the preview in body.
const (
	VersionLegacy = 1
	VersionSplit  = 2
)

type PurchaseStatus string

const (
	PurchaseDoing PurchaseStatus = "doing"
	PurchaseDone  PurchaseStatus = "done"
	PurchaseFail  PurchaseStatus = "fail"
)

type ArticleInfo struct {
	ArticleID         string  `db:"article_id"`
	UserID            string  `db:"user_id"`
	Status            Status  `db:"status"`
	Version           int     `db:"version"`
	SortKey           int64   `db:"sort_key"`
	Price             *int64  `db:"price"`
	Title             *string `db:"title"`
	Overview          *string `db:"overview"`
	EyeCatchURL       *string `db:"eye_catch_url"`
	PublishedAt       *int64  `db:"published_at"`
	UpdatedAt         int64   `db:"updated_at"`
	SyncElasticsearch int     `db:"sync_elasticsearch"`
	CreatedAt         int64   `db:"created_at"`
}

// IsPaid reports whether the article is sold; presence of a price is the marker.
func (a ArticleInfo) IsPaid() bool {
	return a.Price != nil
}

type ArticleContent struct {
	ArticleID string  `db:"article_id"`
	Title     *string `db:"title"`
	Body      *string `db:"body"`
	PaidBody  *string `db:"paid_body"`
	CreatedAt int64   `db:"created_at"`
}

// ArticleContentEdit is the staging row for an in-flight edit of a public article.
type ArticleContentEdit struct {
	ArticleID   string  `db:"article_id"`
	UserID      string  `db:"user_id"`
	Title       *string `db:"title"`
	Body        *string `db:"body"`
	Overview    *string `db:"overview"`
	EyeCatchURL *string `db:"eye_catch_url"`
	UpdatedAt   int64   `db:"updated_at"`
}

// ArticleContentEditHistory rows are append-only.
type ArticleContentEditHistory struct {
	ArticleID   string  `db:"article_id"`
	SortKey     int64   `db:"sort_key"`
	UserID      string  `db:"user_id"`
	Title       *string `db:"title"`
	Body        *string `db:"body"`
	Overview    *string `db:"overview"`
	EyeCatchURL *string `db:"eye_catch_url"`
	CreatedAt   int64   `db:"created_at"`
}

type DeletedDraftArticleInfo struct {
	ArticleInfo
	DeletedAt int64 `db:"deleted_at"`
}

type DeletedDraftArticleContent struct {
	ArticleContent
	DeletedAt int64 `db:"deleted_at"`
}

// Optional is a partial-update field. The zero value leaves the column
// untouched; Set with a nil Value writes NULL.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func SetTo[T any](value *T) Optional[T] {
	return Optional[T]{Set: true, Value: value}
}

type InfoUpdate struct {
	Status            *Status
	Title             Optional[string]
	Overview          Optional[string]
	EyeCatchURL       Optional[string]
	Price             Optional[int64]
	PublishedAt       Optional[int64]
	SyncElasticsearch *int
	UpdatedAt         *int64
}

func (u InfoUpdate) empty() bool {
	return u.Status == nil && !u.Title.Set && !u.Overview.Set && !u.EyeCatchURL.Set &&
		!u.Price.Set && !u.PublishedAt.Set && u.SyncElasticsearch == nil && u.UpdatedAt == nil
}

// Expect is an equality condition evaluated atomically with a write.
// Empty fields are not checked.
type Expect struct {
	Status    Status
	UserID    string
	UpdatedAt *int64
}

func (e Expect) empty() bool {
	return e.Status == "" && e.UserID == "" && e.UpdatedAt == nil
}

type ContentUpdate struct {
	Title    Optional[string]
	Body     Optional[string]
	PaidBody Optional[string]
}

func (u ContentUpdate) empty() bool {
	return !u.Title.Set && !u.Body.Set && !u.PaidBody.Set
}

// Page selects a window of a sort_key-descending listing. Before is an
// exclusive upper bound on sort_key; zero starts from the newest record.
type Page struct {
	Limit  int
	Before int64
}

func (p Page) limit() int {
	if p.Limit <= 0 || p.Limit > 100 {
		return 20
	}
	return p.Limit
}
