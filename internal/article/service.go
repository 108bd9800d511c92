// Package article implements the publication lifecycle of an article:
// draft, public and the terminal deleted state.
//
// Writes span several record sets without a transaction. Every transition
// is ordered so that an interruption leaves a state that the next call or the
// index sync worker can repair.
package article

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"inkwell/api/internal/history"
	"inkwell/api/internal/store"
)

type dataStore interface {
	GetInfo(ctx context.Context, articleID string) (store.ArticleInfo, error)
	InsertInfo(ctx context.Context, info store.ArticleInfo) error
	UpdateInfo(ctx context.Context, articleID string, update store.InfoUpdate, expect store.Expect) error
	DeleteInfo(ctx context.Context, articleID string) error
	ListByOwner(ctx context.Context, userID string, status store.Status, page store.Page) ([]store.ArticleInfo, error)
	ListByStatus(ctx context.Context, status store.Status, page store.Page) ([]store.ArticleInfo, error)
	GetContent(ctx context.Context, articleID string) (store.ArticleContent, error)
	InsertContent(ctx context.Context, content store.ArticleContent) error
	UpdateContent(ctx context.Context, articleID string, update store.ContentUpdate) error
	DeleteContent(ctx context.Context, articleID string) error
	GetContentEdit(ctx context.Context, articleID string) (store.ArticleContentEdit, error)
	PutContentEdit(ctx context.Context, edit store.ArticleContentEdit) error
	DeleteContentEdit(ctx context.Context, articleID string) error
	ArchiveDraft(ctx context.Context, info store.ArticleInfo, content *store.ArticleContent, deletedAt int64) error
	PurchaseStatus(ctx context.Context, articleID, userID string) (store.PurchaseStatus, error)
}

type idSource interface {
	New() (sortKey int64, id string, err error)
}

type historyRecorder interface {
	Record(ctx context.Context, articleID, editorID string, snap history.Snapshot) (store.ArticleContentEditHistory, error)
	Recent(ctx context.Context, articleID string, n int) ([]store.ArticleContentEditHistory, error)
	First(ctx context.Context, articleID string) (store.ArticleContentEditHistory, error)
	Exists(ctx context.Context, articleID string) (bool, error)
}

type clock interface {
	Now() int64
}

type Service struct {
	store   dataStore
	ids     idSource
	history historyRecorder
	clock   clock
}

func NewService(store dataStore, ids idSource, history historyRecorder, clock clock) *Service {
	return &Service{store: store, ids: ids, history: history, clock: clock}
}

// DraftInput updates a draft. A nil field is left as is; an empty string
// clears the field.
type DraftInput struct {
	Title       *string
	Body        *string
	Overview    *string
	EyeCatchURL *string
}

type PublishInput struct {
	Price *int64
}

// EditInput is the complete proposed content of a public article. Unlike
// DraftInput every field is written, nil meaning empty.
type EditInput struct {
	Title       *string
	Body        *string
	Overview    *string
	EyeCatchURL *string
}

// CreateDraft claims a new identifier and creates an empty draft. A
// collision returns a retryable AlreadyExists error.
func (s *Service) CreateDraft(ctx context.Context, userID string) (Summary, error) {
	if strings.TrimSpace(userID) == "" {
		return Summary{}, validationError("user id is required")
	}
	sortKey, articleID, err := s.ids.New()
	if err != nil {
		return Summary{}, internalError("generate article id", err)
	}

	now := s.clock.Now()
	info := store.ArticleInfo{
		ArticleID:         articleID,
		UserID:            userID,
		Status:            store.StatusDraft,
		Version:           store.VersionSplit,
		SortKey:           sortKey,
		UpdatedAt:         now,
		SyncElasticsearch: store.SyncClean,
		CreatedAt:         now,
	}
	if err := s.store.InsertInfo(ctx, info); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return Summary{}, &Error{Kind: KindAlreadyExists, Code: "ARTICLE_ID_TAKEN", Message: "article id already exists", Err: err}
		}
		return Summary{}, internalError("create article info", err)
	}

	// The draft stands without its content row; UpdateDraft creates it.
	if err := s.store.InsertContent(ctx, store.ArticleContent{ArticleID: articleID, CreatedAt: now}); err != nil {
		slog.Warn("draft created without content", "article_id", articleID, "err", err)
	}

	slog.Info("draft created", "article_id", articleID, "user_id", userID)
	return summarize(info), nil
}

func (s *Service) UpdateDraft(ctx context.Context, userID, articleID string, input DraftInput) (Summary, error) {
	info, err := s.loadOwned(ctx, userID, articleID, store.StatusDraft)
	if err != nil {
		return Summary{}, err
	}

	title := normalize(input.Title)
	update := store.InfoUpdate{UpdatedAt: s.nextUpdatedAt(info)}
	if input.Title != nil {
		update.Title = store.SetTo(title)
	}
	if input.Overview != nil {
		update.Overview = store.SetTo(normalize(input.Overview))
	}
	if input.EyeCatchURL != nil {
		update.EyeCatchURL = store.SetTo(normalize(input.EyeCatchURL))
	}
	if err := s.updateInfo(ctx, articleID, update, store.Expect{Status: store.StatusDraft, UserID: userID}); err != nil {
		return Summary{}, err
	}

	var content store.ContentUpdate
	if input.Title != nil {
		content.Title = store.SetTo(title)
	}
	if input.Body != nil {
		content.Body = store.SetTo(normalize(input.Body))
		content.PaidBody = store.SetTo[string](nil)
	}
	if err := s.writeContent(ctx, articleID, content); err != nil {
		return Summary{}, err
	}

	return s.summary(ctx, articleID)
}

// Publish makes a draft public. With a price the body is split at the
// paywall line: the preview stays in body, the full text moves to paid_body.
func (s *Service) Publish(ctx context.Context, userID, articleID string, input PublishInput) (Summary, error) {
	info, err := s.loadOwned(ctx, userID, articleID, store.StatusDraft)
	if err != nil {
		return Summary{}, err
	}
	if input.Price != nil {
		if err := validatePrice(*input.Price); err != nil {
			return Summary{}, err
		}
	}

	content, err := s.store.GetContent(ctx, articleID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Summary{}, internalError("read article content", err)
	}
	full := draftText(content)

	split, err := paidContent(full, input.Price)
	if err != nil {
		return Summary{}, err
	}
	// Content is written before the status flips so that a public article
	// never exposes the unsplit text.
	if err := s.writeContent(ctx, articleID, split); err != nil {
		return Summary{}, err
	}

	public := store.StatusPublic
	dirty := store.SyncDirty
	update := store.InfoUpdate{
		Status:            &public,
		Price:             store.SetTo(input.Price),
		SyncElasticsearch: &dirty,
		UpdatedAt:         s.nextUpdatedAt(info),
	}
	if info.PublishedAt == nil {
		now := s.clock.Now()
		update.PublishedAt = store.SetTo(&now)
	}
	if err := s.updateInfo(ctx, articleID, update, store.Expect{Status: store.StatusDraft, UserID: userID}); err != nil {
		if input.Price != nil {
			s.restoreDraftText(ctx, articleID, full)
		}
		return Summary{}, err
	}

	slog.Info("article published", "article_id", articleID, "paid", input.Price != nil)
	return s.summary(ctx, articleID)
}

// EditPublic stages a new revision of a public article and records it in
// the edit history. The live content and the search index are untouched
// until Republish.
func (s *Service) EditPublic(ctx context.Context, userID, articleID string, expectVersion int, input EditInput) (EditView, error) {
	info, err := s.loadOwned(ctx, userID, articleID, store.StatusPublic)
	if err != nil {
		return EditView{}, err
	}
	if info.Version != expectVersion {
		return EditView{}, notFound("article not found")
	}

	edit := store.ArticleContentEdit{
		ArticleID:   articleID,
		UserID:      userID,
		Title:       normalize(input.Title),
		Body:        normalize(input.Body),
		Overview:    normalize(input.Overview),
		EyeCatchURL: normalize(input.EyeCatchURL),
		UpdatedAt:   s.clock.Now(),
	}
	if info.IsPaid() && (edit.Body == nil || !strings.Contains(*edit.Body, PaywallMarker)) {
		return EditView{}, validationError("paid article body must contain a paywall line")
	}

	if err := s.store.PutContentEdit(ctx, edit); err != nil {
		return EditView{}, internalError("stage article edit", err)
	}
	if _, err := s.history.Record(ctx, articleID, userID, history.Snapshot{
		Title:       edit.Title,
		Body:        edit.Body,
		Overview:    edit.Overview,
		EyeCatchURL: edit.EyeCatchURL,
	}); err != nil {
		return EditView{}, internalError("record article edit", err)
	}

	return stagedView(edit), nil
}

// GetPublicEdit returns the staged revision, or the live content when
// nothing is staged.
func (s *Service) GetPublicEdit(ctx context.Context, userID, articleID string) (EditView, error) {
	info, err := s.loadOwned(ctx, userID, articleID, store.StatusPublic)
	if err != nil {
		return EditView{}, err
	}

	edit, err := s.store.GetContentEdit(ctx, articleID)
	if err == nil {
		return stagedView(edit), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return EditView{}, internalError("read article edit", err)
	}

	content, err := s.store.GetContent(ctx, articleID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return EditView{}, internalError("read article content", err)
	}
	return EditView{
		ArticleID:   articleID,
		Title:       info.Title,
		Body:        draftText(content),
		Overview:    info.Overview,
		EyeCatchURL: info.EyeCatchURL,
	}, nil
}

// Republish promotes the staged revision to the live article and marks it
// for re-indexing.
func (s *Service) Republish(ctx context.Context, userID, articleID string) (Summary, error) {
	info, err := s.loadOwned(ctx, userID, articleID, store.StatusPublic)
	if err != nil {
		return Summary{}, err
	}
	edit, err := s.store.GetContentEdit(ctx, articleID)
	if errors.Is(err, store.ErrNotFound) {
		return Summary{}, notFound("no staged edit")
	}
	if err != nil {
		return Summary{}, internalError("read article edit", err)
	}
	content, err := paidContent(edit.Body, info.Price)
	if err != nil {
		return Summary{}, err
	}
	content.Title = store.SetTo(edit.Title)
	// The dirty flag is set after the content lands, so the worker cannot
	// clear it against the previous revision.
	if err := s.writeContent(ctx, articleID, content); err != nil {
		return Summary{}, err
	}

	dirty := store.SyncDirty
	update := store.InfoUpdate{
		Title:             store.SetTo(edit.Title),
		Overview:          store.SetTo(edit.Overview),
		EyeCatchURL:       store.SetTo(edit.EyeCatchURL),
		SyncElasticsearch: &dirty,
		UpdatedAt:         s.nextUpdatedAt(info),
	}
	if err := s.updateInfo(ctx, articleID, update, store.Expect{Status: store.StatusPublic, UserID: userID}); err != nil {
		return Summary{}, err
	}
	if err := s.store.DeleteContentEdit(ctx, articleID); err != nil {
		return Summary{}, internalError("clear article edit", err)
	}

	slog.Info("article republished", "article_id", articleID)
	return s.summary(ctx, articleID)
}

// Unpublish returns a public article to draft and discards any staged edit.
func (s *Service) Unpublish(ctx context.Context, userID, articleID string) (Summary, error) {
	info, err := s.loadOwned(ctx, userID, articleID, store.StatusPublic)
	if err != nil {
		return Summary{}, err
	}
	if err := s.store.DeleteContentEdit(ctx, articleID); err != nil {
		return Summary{}, internalError("clear article edit", err)
	}

	draft := store.StatusDraft
	dirty := store.SyncDirty
	update := store.InfoUpdate{
		Status:            &draft,
		SyncElasticsearch: &dirty,
		UpdatedAt:         s.nextUpdatedAt(info),
	}
	if err := s.updateInfo(ctx, articleID, update, store.Expect{Status: store.StatusPublic, UserID: userID}); err != nil {
		return Summary{}, err
	}

	// Only once the article is no longer public may body hold the full text.
	content, err := s.store.GetContent(ctx, articleID)
	if err == nil && content.PaidBody != nil {
		s.restoreDraftText(ctx, articleID, content.PaidBody)
	}

	slog.Info("article unpublished", "article_id", articleID)
	return s.summary(ctx, articleID)
}

// DeleteDraft archives a never-edited draft and removes its live rows.
func (s *Service) DeleteDraft(ctx context.Context, userID, articleID string) error {
	info, err := s.loadOwned(ctx, userID, articleID, store.StatusDraft)
	if err != nil {
		return err
	}
	edited, err := s.history.Exists(ctx, articleID)
	if err != nil {
		return internalError("check edit history", err)
	}
	if edited {
		return notFound("article not found")
	}

	var archived *store.ArticleContent
	content, err := s.store.GetContent(ctx, articleID)
	switch {
	case err == nil:
		archived = &content
	case !errors.Is(err, store.ErrNotFound):
		return internalError("read article content", err)
	}

	// Archive first: a failure below leaves the live draft intact and the
	// call can be repeated.
	if err := s.store.ArchiveDraft(ctx, info, archived, s.clock.Now()); err != nil {
		return internalError("archive draft", err)
	}
	if err := s.store.DeleteContent(ctx, articleID); err != nil {
		return internalError("delete article content", err)
	}
	if err := s.store.DeleteInfo(ctx, articleID); err != nil {
		return internalError("delete article info", err)
	}

	slog.Info("draft deleted", "article_id", articleID)
	return nil
}

// DeletePublic moves a public article to the terminal deleted state. Its
// rows are kept; the sync worker removes it from the index.
func (s *Service) DeletePublic(ctx context.Context, userID, articleID string) error {
	info, err := s.loadOwned(ctx, userID, articleID, store.StatusPublic)
	if err != nil {
		return err
	}
	if err := s.store.DeleteContentEdit(ctx, articleID); err != nil {
		return internalError("clear article edit", err)
	}

	deleted := store.StatusDelete
	dirty := store.SyncDirty
	update := store.InfoUpdate{
		Status:            &deleted,
		SyncElasticsearch: &dirty,
		UpdatedAt:         s.nextUpdatedAt(info),
	}
	if err := s.updateInfo(ctx, articleID, update, store.Expect{Status: store.StatusPublic, UserID: userID}); err != nil {
		return err
	}

	slog.Info("article deleted", "article_id", articleID)
	return nil
}

// loadOwned enforces the common precondition of every owner operation.
func (s *Service) loadOwned(ctx context.Context, userID, articleID string, status store.Status) (store.ArticleInfo, error) {
	if strings.TrimSpace(articleID) == "" {
		return store.ArticleInfo{}, validationError("article id is required")
	}
	info, err := s.store.GetInfo(ctx, articleID)
	if errors.Is(err, store.ErrNotFound) {
		return store.ArticleInfo{}, notFound("article not found")
	}
	if err != nil {
		return store.ArticleInfo{}, internalError("read article info", err)
	}
	if info.UserID != userID {
		return store.ArticleInfo{}, notAuthorized("article belongs to another user")
	}
	if status != "" && info.Status != status {
		return store.ArticleInfo{}, notFound("article not found")
	}
	return info, nil
}

// updateInfo maps a lost race on the guarded write to NotFound: the article
// is no longer in the state the transition requires.
func (s *Service) updateInfo(ctx context.Context, articleID string, update store.InfoUpdate, expect store.Expect) error {
	err := s.store.UpdateInfo(ctx, articleID, update, expect)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrConditionFailed):
		return notFound("article not found")
	default:
		return internalError("update article info", err)
	}
}

// writeContent updates the content row, creating it when draft creation
// stopped short of it.
func (s *Service) writeContent(ctx context.Context, articleID string, update store.ContentUpdate) error {
	err := s.store.UpdateContent(ctx, articleID, update)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return internalError("update article content", err)
	}

	content := store.ArticleContent{ArticleID: articleID, CreatedAt: s.clock.Now()}
	content.Title = update.Title.Value
	content.Body = update.Body.Value
	content.PaidBody = update.PaidBody.Value
	err = s.store.InsertContent(ctx, content)
	if errors.Is(err, store.ErrAlreadyExists) {
		err = s.store.UpdateContent(ctx, articleID, update)
	}
	if err != nil {
		return internalError("create article content", err)
	}
	return nil
}

// restoreDraftText puts the full text back into body, but only while the
// article is a draft. A concurrent publish owns the content otherwise.
func (s *Service) restoreDraftText(ctx context.Context, articleID string, full *string) {
	info, err := s.store.GetInfo(ctx, articleID)
	if err != nil {
		slog.Warn("restore draft text: read article info", "article_id", articleID, "err", err)
		return
	}
	if info.Status != store.StatusDraft {
		slog.Debug("restore draft text skipped", "article_id", articleID, "status", info.Status)
		return
	}
	err = s.store.UpdateContent(ctx, articleID, store.ContentUpdate{
		Body:     store.SetTo(full),
		PaidBody: store.SetTo[string](nil),
	})
	if err != nil {
		slog.Warn("restore draft text failed", "article_id", articleID, "err", err)
	}
}

// nextUpdatedAt always moves the concurrency token forward, even for two
// writes in the same second.
func (s *Service) nextUpdatedAt(info store.ArticleInfo) *int64 {
	next := max(s.clock.Now(), info.UpdatedAt+1)
	return &next
}

func (s *Service) summary(ctx context.Context, articleID string) (Summary, error) {
	info, err := s.store.GetInfo(ctx, articleID)
	if err != nil {
		return Summary{}, internalError("read article info", err)
	}
	return summarize(info), nil
}

// normalize stores empty strings as NULL.
func normalize(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	v := *value
	return &v
}
