package operation

import (
	"context"

	"github.com/go-playground/validator/v10"

	"inkwell/api/internal/article"
	"inkwell/api/internal/store"
)

type ArticleRef struct {
	ArticleID string `json:"articleId" validate:"required,max=64"`
}

type UpdateDraftInput struct {
	ArticleID   string  `json:"articleId" validate:"required,max=64"`
	Title       *string `json:"title" validate:"omitempty,max=255"`
	Body        *string `json:"body" validate:"omitempty,max=65535"`
	Overview    *string `json:"overview" validate:"omitempty,max=1500"`
	EyeCatchURL *string `json:"eyeCatchUrl" validate:"omitempty,max=2048"`
}

type PublishInput struct {
	ArticleID string `json:"articleId" validate:"required,max=64"`
	Price     *int64 `json:"price" validate:"omitempty,min=1,max=100000"`
}

type EditPublicInput struct {
	ArticleID   string  `json:"articleId" validate:"required,max=64"`
	Version     int     `json:"version" validate:"required,oneof=1 2"`
	Title       *string `json:"title" validate:"omitempty,max=255"`
	Body        *string `json:"body" validate:"omitempty,max=65535"`
	Overview    *string `json:"overview" validate:"omitempty,max=1500"`
	EyeCatchURL *string `json:"eyeCatchUrl" validate:"omitempty,max=2048"`
}

type ListHistoryInput struct {
	ArticleID string `json:"articleId" validate:"required,max=64"`
	Limit     int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

type ListPublicInput struct {
	Limit  int   `json:"limit" validate:"omitempty,min=1,max=100"`
	Before int64 `json:"before" validate:"omitempty,min=0"`
}

type ListMineInput struct {
	Status string `json:"status" validate:"required,oneof=draft public"`
	Limit  int    `json:"limit" validate:"omitempty,min=1,max=100"`
	Before int64  `json:"before" validate:"omitempty,min=0"`
}

// ArticleOperations returns one operation per lifecycle call of svc.
func ArticleOperations(svc *article.Service, v *validator.Validate) []Operation {
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return []Operation{
		New("article.create_draft", v, func(ctx context.Context, userID string, _ Empty) (article.Summary, error) {
			return svc.CreateDraft(ctx, userID)
		}),
		New("article.update_draft", v, func(ctx context.Context, userID string, in UpdateDraftInput) (article.Summary, error) {
			return svc.UpdateDraft(ctx, userID, in.ArticleID, article.DraftInput{
				Title:       in.Title,
				Body:        in.Body,
				Overview:    in.Overview,
				EyeCatchURL: in.EyeCatchURL,
			})
		}),
		New("article.publish", v, func(ctx context.Context, userID string, in PublishInput) (article.Summary, error) {
			return svc.Publish(ctx, userID, in.ArticleID, article.PublishInput{Price: in.Price})
		}),
		New("article.edit_public", v, func(ctx context.Context, userID string, in EditPublicInput) (article.EditView, error) {
			return svc.EditPublic(ctx, userID, in.ArticleID, in.Version, article.EditInput{
				Title:       in.Title,
				Body:        in.Body,
				Overview:    in.Overview,
				EyeCatchURL: in.EyeCatchURL,
			})
		}),
		New("article.get_public_edit", v, func(ctx context.Context, userID string, in ArticleRef) (article.EditView, error) {
			return svc.GetPublicEdit(ctx, userID, in.ArticleID)
		}),
		New("article.republish", v, func(ctx context.Context, userID string, in ArticleRef) (article.Summary, error) {
			return svc.Republish(ctx, userID, in.ArticleID)
		}),
		New("article.unpublish", v, func(ctx context.Context, userID string, in ArticleRef) (article.Summary, error) {
			return svc.Unpublish(ctx, userID, in.ArticleID)
		}),
		New("article.delete_draft", v, func(ctx context.Context, userID string, in ArticleRef) (Empty, error) {
			return Empty{}, svc.DeleteDraft(ctx, userID, in.ArticleID)
		}),
		New("article.delete_public", v, func(ctx context.Context, userID string, in ArticleRef) (Empty, error) {
			return Empty{}, svc.DeletePublic(ctx, userID, in.ArticleID)
		}),
		New("article.get", v, func(ctx context.Context, userID string, in ArticleRef) (article.ArticleView, error) {
			return svc.GetArticle(ctx, userID, in.ArticleID)
		}),
		New("article.get_draft", v, func(ctx context.Context, userID string, in ArticleRef) (article.ArticleView, error) {
			return svc.GetDraft(ctx, userID, in.ArticleID)
		}),
		New("article.first_version", v, func(ctx context.Context, userID string, in ArticleRef) (article.ArticleView, error) {
			return svc.FirstVersion(ctx, userID, in.ArticleID)
		}),
		New("article.list_history", v, func(ctx context.Context, userID string, in ListHistoryInput) ([]article.HistoryEntry, error) {
			return svc.ListHistory(ctx, userID, in.ArticleID, in.Limit)
		}),
		New("article.list_public", v, func(ctx context.Context, _ string, in ListPublicInput) ([]article.Summary, error) {
			return svc.ListPublic(ctx, store.Page{Limit: in.Limit, Before: in.Before})
		}),
		New("article.list_mine", v, func(ctx context.Context, userID string, in ListMineInput) ([]article.Summary, error) {
			return svc.ListMine(ctx, userID, store.Status(in.Status), store.Page{Limit: in.Limit, Before: in.Before})
		}),
	}
}
