package article

import (
	"context"
	"errors"

	"inkwell/api/internal/store"
)

// Summary is the listing shape of an article. It carries no body.
type Summary struct {
	ArticleID   string       `json:"articleId"`
	UserID      string       `json:"userId"`
	Status      store.Status `json:"status"`
	Version     int          `json:"version"`
	SortKey     int64        `json:"sortKey"`
	Title       *string      `json:"title,omitempty"`
	Overview    *string      `json:"overview,omitempty"`
	EyeCatchURL *string      `json:"eyeCatchUrl,omitempty"`
	Price       *int64       `json:"price,omitempty"`
	PublishedAt *int64       `json:"publishedAt,omitempty"`
	UpdatedAt   int64        `json:"updatedAt"`
	CreatedAt   int64        `json:"createdAt"`
}

// ArticleView is a single article as shown to a reader. Body holds the paid
// text only when Purchased is true.
type ArticleView struct {
	Summary
	Body      *string `json:"body,omitempty"`
	Purchased bool    `json:"purchased"`
}

type EditView struct {
	ArticleID   string  `json:"articleId"`
	Title       *string `json:"title,omitempty"`
	Body        *string `json:"body,omitempty"`
	Overview    *string `json:"overview,omitempty"`
	EyeCatchURL *string `json:"eyeCatchUrl,omitempty"`
	Staged      bool    `json:"staged"`
}

type HistoryEntry struct {
	ArticleID   string  `json:"articleId"`
	SortKey     int64   `json:"sortKey"`
	EditorID    string  `json:"editorId"`
	Title       *string `json:"title,omitempty"`
	Body        *string `json:"body,omitempty"`
	Overview    *string `json:"overview,omitempty"`
	EyeCatchURL *string `json:"eyeCatchUrl,omitempty"`
	CreatedAt   int64   `json:"createdAt"`
}

func summarize(info store.ArticleInfo) Summary {
	return Summary{
		ArticleID:   info.ArticleID,
		UserID:      info.UserID,
		Status:      info.Status,
		Version:     info.Version,
		SortKey:     info.SortKey,
		Title:       info.Title,
		Overview:    info.Overview,
		EyeCatchURL: info.EyeCatchURL,
		Price:       info.Price,
		PublishedAt: info.PublishedAt,
		UpdatedAt:   info.UpdatedAt,
		CreatedAt:   info.CreatedAt,
	}
}

func stagedView(edit store.ArticleContentEdit) EditView {
	return EditView{
		ArticleID:   edit.ArticleID,
		Title:       edit.Title,
		Body:        edit.Body,
		Overview:    edit.Overview,
		EyeCatchURL: edit.EyeCatchURL,
		Staged:      true,
	}
}

// GetArticle assembles a public article for viewerID, who may be empty for
// anonymous readers. The paid text replaces the preview only for a viewer
// holding a completed purchase.
func (s *Service) GetArticle(ctx context.Context, viewerID, articleID string) (ArticleView, error) {
	info, err := s.loadPublic(ctx, articleID)
	if err != nil {
		return ArticleView{}, err
	}
	content, err := s.store.GetContent(ctx, articleID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return ArticleView{}, internalError("read article content", err)
	}

	view := ArticleView{Summary: summarize(info), Body: content.Body}
	if !info.IsPaid() {
		return view, nil
	}
	if content.PaidBody == nil {
		// body may still hold the unsplit text of an interrupted transition.
		view.Body = nil
		return view, nil
	}
	purchased, err := s.hasPurchased(ctx, articleID, viewerID)
	if err != nil {
		return ArticleView{}, err
	}
	if purchased {
		view.Body = content.PaidBody
		view.Purchased = true
	}
	return view, nil
}

// GetDraft is the owner's view of an unpublished article, always with the
// full text.
func (s *Service) GetDraft(ctx context.Context, userID, articleID string) (ArticleView, error) {
	info, err := s.loadOwned(ctx, userID, articleID, store.StatusDraft)
	if err != nil {
		return ArticleView{}, err
	}
	content, err := s.store.GetContent(ctx, articleID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return ArticleView{}, internalError("read article content", err)
	}
	return ArticleView{Summary: summarize(info), Body: draftText(content)}, nil
}

// FirstVersion returns the revision a purchaser originally paid for: the
// earliest history entry, or the live paid text if the article was never
// edited after publishing.
func (s *Service) FirstVersion(ctx context.Context, viewerID, articleID string) (ArticleView, error) {
	info, err := s.loadPublic(ctx, articleID)
	if err != nil {
		return ArticleView{}, err
	}
	if !info.IsPaid() {
		return ArticleView{}, notFound("article is not sold")
	}
	purchased, err := s.hasPurchased(ctx, articleID, viewerID)
	if err != nil {
		return ArticleView{}, err
	}
	if !purchased {
		return ArticleView{}, notAuthorized("article has not been purchased")
	}

	view := ArticleView{Summary: summarize(info), Purchased: true}
	first, err := s.history.First(ctx, articleID)
	switch {
	case err == nil:
		view.Title = first.Title
		view.Overview = first.Overview
		view.EyeCatchURL = first.EyeCatchURL
		view.Body = first.Body
		return view, nil
	case !errors.Is(err, store.ErrNotFound):
		return ArticleView{}, internalError("read first version", err)
	}

	content, err := s.store.GetContent(ctx, articleID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return ArticleView{}, internalError("read article content", err)
	}
	view.Body = content.PaidBody
	return view, nil
}

// ListHistory returns the owner's edit history, newest first.
func (s *Service) ListHistory(ctx context.Context, userID, articleID string, limit int) ([]HistoryEntry, error) {
	if _, err := s.loadOwned(ctx, userID, articleID, ""); err != nil {
		return nil, err
	}
	entries, err := s.history.Recent(ctx, articleID, limit)
	if err != nil {
		return nil, internalError("list edit history", err)
	}
	items := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		items = append(items, HistoryEntry{
			ArticleID:   entry.ArticleID,
			SortKey:     entry.SortKey,
			EditorID:    entry.UserID,
			Title:       entry.Title,
			Body:        entry.Body,
			Overview:    entry.Overview,
			EyeCatchURL: entry.EyeCatchURL,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return items, nil
}

func (s *Service) ListPublic(ctx context.Context, page store.Page) ([]Summary, error) {
	infos, err := s.store.ListByStatus(ctx, store.StatusPublic, page)
	if err != nil {
		return nil, internalError("list public articles", err)
	}
	return summarizeAll(infos), nil
}

func (s *Service) ListMine(ctx context.Context, userID string, status store.Status, page store.Page) ([]Summary, error) {
	if status != store.StatusDraft && status != store.StatusPublic {
		return nil, validationError("status must be draft or public")
	}
	infos, err := s.store.ListByOwner(ctx, userID, status, page)
	if err != nil {
		return nil, internalError("list articles", err)
	}
	return summarizeAll(infos), nil
}

func summarizeAll(infos []store.ArticleInfo) []Summary {
	items := make([]Summary, 0, len(infos))
	for _, info := range infos {
		items = append(items, summarize(info))
	}
	return items
}

func (s *Service) loadPublic(ctx context.Context, articleID string) (store.ArticleInfo, error) {
	info, err := s.store.GetInfo(ctx, articleID)
	if errors.Is(err, store.ErrNotFound) {
		return store.ArticleInfo{}, notFound("article not found")
	}
	if err != nil {
		return store.ArticleInfo{}, internalError("read article info", err)
	}
	if info.Status != store.StatusPublic {
		return store.ArticleInfo{}, notFound("article not found")
	}
	return info, nil
}

func (s *Service) hasPurchased(ctx context.Context, articleID, viewerID string) (bool, error) {
	if viewerID == "" {
		return false, nil
	}
	status, err := s.store.PurchaseStatus(ctx, articleID, viewerID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, internalError("read purchase status", err)
	}
	return status == store.PurchaseDone, nil
}
