package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const infoColumns = `article_id, user_id, status, version, sort_key, price, title, overview,
	eye_catch_url, published_at, updated_at, sync_elasticsearch, created_at`

const contentColumns = `article_id, title, body, paid_body, created_at`

const editColumns = `article_id, user_id, title, body, overview, eye_catch_url, updated_at`

const historyColumns = `article_id, sort_key, user_id, title, body, overview, eye_catch_url, created_at`

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetInfo(ctx context.Context, articleID string) (ArticleInfo, error) {
	var info ArticleInfo
	err := s.db.GetContext(ctx, &info, `SELECT `+infoColumns+` FROM article_info WHERE article_id=$1`, articleID)
	if errors.Is(err, sql.ErrNoRows) {
		return ArticleInfo{}, ErrNotFound
	}
	if err != nil {
		return ArticleInfo{}, fmt.Errorf("get article info: %w", err)
	}
	return info, nil
}

func (s *PostgresStore) InsertInfo(ctx context.Context, info ArticleInfo) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO article_info (`+infoColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (article_id) DO NOTHING
	`, info.ArticleID, info.UserID, string(info.Status), info.Version, info.SortKey, info.Price, info.Title,
		info.Overview, info.EyeCatchURL, info.PublishedAt, info.UpdatedAt, info.SyncElasticsearch, info.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert article info: %w", err)
	}
	return requireInserted(res, "article info")
}

// UpdateInfo applies a partial update guarded by expect. A row that exists
// but fails the guard yields ErrConditionFailed.
func (s *PostgresStore) UpdateInfo(ctx context.Context, articleID string, update InfoUpdate, expect Expect) error {
	if update.empty() {
		return nil
	}

	args := []any{articleID}
	bind := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	var sets []string
	if update.Status != nil {
		sets = append(sets, "status="+bind(string(*update.Status)))
	}
	if update.Title.Set {
		sets = append(sets, "title="+bind(update.Title.Value))
	}
	if update.Overview.Set {
		sets = append(sets, "overview="+bind(update.Overview.Value))
	}
	if update.EyeCatchURL.Set {
		sets = append(sets, "eye_catch_url="+bind(update.EyeCatchURL.Value))
	}
	if update.Price.Set {
		sets = append(sets, "price="+bind(update.Price.Value))
	}
	if update.PublishedAt.Set {
		sets = append(sets, "published_at="+bind(update.PublishedAt.Value))
	}
	if update.SyncElasticsearch != nil {
		sets = append(sets, "sync_elasticsearch="+bind(*update.SyncElasticsearch))
	}
	if update.UpdatedAt != nil {
		sets = append(sets, "updated_at="+bind(*update.UpdatedAt))
	}

	where := []string{"article_id=$1"}
	if expect.Status != "" {
		where = append(where, "status="+bind(string(expect.Status)))
	}
	if expect.UserID != "" {
		where = append(where, "user_id="+bind(expect.UserID))
	}
	if expect.UpdatedAt != nil {
		where = append(where, "updated_at="+bind(*expect.UpdatedAt))
	}

	query := "UPDATE article_info SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update article info: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update article info rows: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if expect.empty() {
		return ErrNotFound
	}
	exists, err := s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM article_info WHERE article_id=$1)`, articleID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConditionFailed
}

func (s *PostgresStore) DeleteInfo(ctx context.Context, articleID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM article_info WHERE article_id=$1`, articleID); err != nil {
		return fmt.Errorf("delete article info: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, userID string, status Status, page Page) ([]ArticleInfo, error) {
	args := []any{userID, string(status)}
	query := `SELECT ` + infoColumns + ` FROM article_info WHERE user_id=$1 AND status=$2`
	if page.Before > 0 {
		args = append(args, page.Before)
		query += fmt.Sprintf(" AND sort_key < $%d", len(args))
	}
	args = append(args, page.limit())
	query += fmt.Sprintf(" ORDER BY sort_key DESC LIMIT $%d", len(args))
	return s.selectInfo(ctx, "list articles by owner", query, args...)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, page Page) ([]ArticleInfo, error) {
	args := []any{string(status)}
	query := `SELECT ` + infoColumns + ` FROM article_info WHERE status=$1`
	if page.Before > 0 {
		args = append(args, page.Before)
		query += fmt.Sprintf(" AND sort_key < $%d", len(args))
	}
	args = append(args, page.limit())
	query += fmt.Sprintf(" ORDER BY sort_key DESC LIMIT $%d", len(args))
	return s.selectInfo(ctx, "list articles by status", query, args...)
}

// ListDirty returns records awaiting index synchronization, oldest change first.
func (s *PostgresStore) ListDirty(ctx context.Context, limit int) ([]ArticleInfo, error) {
	return s.selectInfo(ctx, "list dirty articles", `
		SELECT `+infoColumns+`
		FROM article_info
		WHERE sync_elasticsearch=$1
		ORDER BY updated_at ASC
		LIMIT $2
	`, SyncDirty, limit)
}

// MarkAllDirty flags every article for re-synchronization. updated_at is
// bumped so that a concurrently running sync pass cannot clear the flag.
func (s *PostgresStore) MarkAllDirty(ctx context.Context, now int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE article_info
		SET sync_elasticsearch=$1, updated_at=GREATEST(updated_at + 1, $2)
	`, SyncDirty, now)
	if err != nil {
		return 0, fmt.Errorf("mark all articles dirty: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) selectInfo(ctx context.Context, op, query string, args ...any) ([]ArticleInfo, error) {
	items := make([]ArticleInfo, 0)
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

func (s *PostgresStore) GetContent(ctx context.Context, articleID string) (ArticleContent, error) {
	var content ArticleContent
	err := s.db.GetContext(ctx, &content, `SELECT `+contentColumns+` FROM article_content WHERE article_id=$1`, articleID)
	if errors.Is(err, sql.ErrNoRows) {
		return ArticleContent{}, ErrNotFound
	}
	if err != nil {
		return ArticleContent{}, fmt.Errorf("get article content: %w", err)
	}
	return content, nil
}

func (s *PostgresStore) InsertContent(ctx context.Context, content ArticleContent) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO article_content (`+contentColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (article_id) DO NOTHING
	`, content.ArticleID, content.Title, content.Body, content.PaidBody, content.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert article content: %w", err)
	}
	return requireInserted(res, "article content")
}

func (s *PostgresStore) UpdateContent(ctx context.Context, articleID string, update ContentUpdate) error {
	if update.empty() {
		return nil
	}
	args := []any{articleID}
	var sets []string
	add := func(column string, value *string) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if update.Title.Set {
		add("title", update.Title.Value)
	}
	if update.Body.Set {
		add("body", update.Body.Value)
	}
	if update.PaidBody.Set {
		add("paid_body", update.PaidBody.Value)
	}

	res, err := s.db.ExecContext(ctx, "UPDATE article_content SET "+strings.Join(sets, ", ")+" WHERE article_id=$1", args...)
	if err != nil {
		return fmt.Errorf("update article content: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update article content rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteContent(ctx context.Context, articleID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM article_content WHERE article_id=$1`, articleID); err != nil {
		return fmt.Errorf("delete article content: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetContentEdit(ctx context.Context, articleID string) (ArticleContentEdit, error) {
	var edit ArticleContentEdit
	err := s.db.GetContext(ctx, &edit, `SELECT `+editColumns+` FROM article_content_edit WHERE article_id=$1`, articleID)
	if errors.Is(err, sql.ErrNoRows) {
		return ArticleContentEdit{}, ErrNotFound
	}
	if err != nil {
		return ArticleContentEdit{}, fmt.Errorf("get article content edit: %w", err)
	}
	return edit, nil
}

func (s *PostgresStore) PutContentEdit(ctx context.Context, edit ArticleContentEdit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO article_content_edit (`+editColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (article_id) DO UPDATE SET
			user_id=EXCLUDED.user_id,
			title=EXCLUDED.title,
			body=EXCLUDED.body,
			overview=EXCLUDED.overview,
			eye_catch_url=EXCLUDED.eye_catch_url,
			updated_at=EXCLUDED.updated_at
	`, edit.ArticleID, edit.UserID, edit.Title, edit.Body, edit.Overview, edit.EyeCatchURL, edit.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put article content edit: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteContentEdit(ctx context.Context, articleID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM article_content_edit WHERE article_id=$1`, articleID); err != nil {
		return fmt.Errorf("delete article content edit: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertHistory(ctx context.Context, entry ArticleContentEditHistory) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO article_content_edit_history (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (article_id, sort_key) DO NOTHING
	`, entry.ArticleID, entry.SortKey, entry.UserID, entry.Title, entry.Body, entry.Overview, entry.EyeCatchURL, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert edit history: %w", err)
	}
	return requireInserted(res, "edit history")
}

func (s *PostgresStore) ListHistory(ctx context.Context, articleID string, limit int) ([]ArticleContentEditHistory, error) {
	items := make([]ArticleContentEditHistory, 0)
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+historyColumns+`
		FROM article_content_edit_history
		WHERE article_id=$1
		ORDER BY sort_key DESC
		LIMIT $2
	`, articleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list edit history: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) FirstHistory(ctx context.Context, articleID string) (ArticleContentEditHistory, error) {
	var entry ArticleContentEditHistory
	err := s.db.GetContext(ctx, &entry, `
		SELECT `+historyColumns+`
		FROM article_content_edit_history
		WHERE article_id=$1
		ORDER BY sort_key ASC
		LIMIT 1
	`, articleID)
	if errors.Is(err, sql.ErrNoRows) {
		return ArticleContentEditHistory{}, ErrNotFound
	}
	if err != nil {
		return ArticleContentEditHistory{}, fmt.Errorf("first edit history: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) HasHistory(ctx context.Context, articleID string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM article_content_edit_history WHERE article_id=$1)`, articleID)
}

// ArchiveDraft copies a draft into the deleted-draft tables. Replaying it is
// harmless; the first archive wins.
func (s *PostgresStore) ArchiveDraft(ctx context.Context, info ArticleInfo, content *ArticleContent, deletedAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deleted_draft_article_info (`+infoColumns+`, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (article_id) DO NOTHING
	`, info.ArticleID, info.UserID, string(info.Status), info.Version, info.SortKey, info.Price, info.Title,
		info.Overview, info.EyeCatchURL, info.PublishedAt, info.UpdatedAt, info.SyncElasticsearch, info.CreatedAt, deletedAt)
	if err != nil {
		return fmt.Errorf("archive draft info: %w", err)
	}
	if content == nil {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deleted_draft_article_content (`+contentColumns+`, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (article_id) DO NOTHING
	`, content.ArticleID, content.Title, content.Body, content.PaidBody, content.CreatedAt, deletedAt)
	if err != nil {
		return fmt.Errorf("archive draft content: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDeletedDraft(ctx context.Context, articleID string) (DeletedDraftArticleInfo, error) {
	var item DeletedDraftArticleInfo
	err := s.db.GetContext(ctx, &item, `
		SELECT `+infoColumns+`, deleted_at FROM deleted_draft_article_info WHERE article_id=$1
	`, articleID)
	if errors.Is(err, sql.ErrNoRows) {
		return DeletedDraftArticleInfo{}, ErrNotFound
	}
	if err != nil {
		return DeletedDraftArticleInfo{}, fmt.Errorf("get deleted draft: %w", err)
	}
	return item, nil
}

// PurchaseStatus returns the most favorable purchase state the user holds
// for the article.
func (s *PostgresStore) PurchaseStatus(ctx context.Context, articleID, userID string) (PurchaseStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT status
		FROM paid_articles
		WHERE article_id=$1 AND user_id=$2
		ORDER BY CASE status WHEN 'done' THEN 0 WHEN 'doing' THEN 1 ELSE 2 END, sort_key DESC
		LIMIT 1
	`, articleID, userID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read purchase status: %w", err)
	}
	return PurchaseStatus(status), nil
}

func (s *PostgresStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check existence: %w", err)
	}
	return exists, nil
}

func requireInserted(res sql.Result, what string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert %s rows: %w", what, err)
	}
	if affected == 0 {
		return ErrAlreadyExists
	}
	return nil
}
