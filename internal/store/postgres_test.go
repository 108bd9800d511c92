package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "pgx")), mock
}

func infoRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"article_id", "user_id", "status", "version", "sort_key", "price", "title", "overview",
		"eye_catch_url", "published_at", "updated_at", "sync_elasticsearch", "created_at",
	})
}

func TestPostgresGetInfoScansNullableColumns(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM article_info WHERE article_id=\$1`).
		WithArgs("a1").
		WillReturnRows(infoRows().AddRow("a1", "u1", "public", int64(2), int64(1700000000000000), int64(300), "Title", nil, nil, int64(1700000100), int64(1700000200), int64(0), int64(1700000000)))

	info, err := s.GetInfo(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, StatusPublic, info.Status)
	assert.Equal(t, VersionSplit, info.Version)
	require.NotNil(t, info.Price)
	assert.Equal(t, int64(300), *info.Price)
	require.NotNil(t, info.Title)
	assert.Equal(t, "Title", *info.Title)
	assert.Nil(t, info.Overview)
	assert.Equal(t, SyncDirty, info.SyncElasticsearch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetInfoMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM article_info`).WithArgs("nope").WillReturnRows(infoRows())

	_, err := s.GetInfo(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresInsertInfoCollision(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO article_info .+ ON CONFLICT \(article_id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.InsertInfo(context.Background(), ArticleInfo{ArticleID: "a1", UserID: "u1", Status: StatusDraft, Version: VersionSplit})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateInfoBuildsGuardedStatement(t *testing.T) {
	s, mock := newMockStore(t)
	status := StatusPublic
	dirty := SyncDirty
	updatedAt := int64(200)

	query := "UPDATE article_info SET status=$2, sync_elasticsearch=$3, updated_at=$4 WHERE article_id=$1 AND status=$5 AND user_id=$6"
	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs("a1", "public", 0, int64(200), "draft", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateInfo(context.Background(), "a1",
		InfoUpdate{Status: &status, SyncElasticsearch: &dirty, UpdatedAt: &updatedAt},
		Expect{Status: StatusDraft, UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateInfoDistinguishesConditionFromMissing(t *testing.T) {
	s, mock := newMockStore(t)
	clean := SyncClean
	seen := int64(100)

	mock.ExpectExec(`UPDATE article_info SET sync_elasticsearch=\$2 WHERE article_id=\$1 AND updated_at=\$3`).
		WithArgs("a1", 1, int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := s.UpdateInfo(context.Background(), "a1", InfoUpdate{SyncElasticsearch: &clean}, Expect{UpdatedAt: &seen})
	assert.ErrorIs(t, err, ErrConditionFailed)

	mock.ExpectExec(`UPDATE article_info`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err = s.UpdateInfo(context.Background(), "gone", InfoUpdate{SyncElasticsearch: &clean}, Expect{UpdatedAt: &seen})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateInfoWritesNull(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE article_info SET title=$2, price=$3 WHERE article_id=$1")).
		WithArgs("a1", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateInfo(context.Background(), "a1", InfoUpdate{
		Title: SetTo[string](nil),
		Price: SetTo[int64](nil),
	}, Expect{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListDirtyOrdersOldestFirst(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`WHERE sync_elasticsearch=\$1 ORDER BY updated_at ASC LIMIT \$2`).
		WithArgs(0, 10).
		WillReturnRows(infoRows().
			AddRow("a1", "u1", "public", int64(2), int64(1), nil, nil, nil, nil, nil, int64(10), int64(0), int64(1)).
			AddRow("a2", "u1", "draft", int64(2), int64(2), nil, nil, nil, nil, nil, int64(20), int64(0), int64(2)))

	items, err := s.ListDirty(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a1", items[0].ArticleID)
	assert.Equal(t, StatusDraft, items[1].Status)
}

func TestPostgresListByOwnerPaginates(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`WHERE user_id=\$1 AND status=\$2 AND sort_key < \$3 ORDER BY sort_key DESC LIMIT \$4`).
		WithArgs("u1", "draft", int64(500), 5).
		WillReturnRows(infoRows())

	items, err := s.ListByOwner(context.Background(), "u1", StatusDraft, Page{Limit: 5, Before: 500})
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertHistoryCollision(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO article_content_edit_history .+ ON CONFLICT \(article_id, sort_key\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.InsertHistory(context.Background(), ArticleContentEditHistory{ArticleID: "a1", SortKey: 1, UserID: "u1"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestPostgresPurchaseStatusPrefersDone(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT status FROM paid_articles .+ ORDER BY CASE status WHEN 'done' THEN 0`).
		WithArgs("a1", "reader").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("done"))

	status, err := s.PurchaseStatus(context.Background(), "a1", "reader")
	require.NoError(t, err)
	assert.Equal(t, PurchaseDone, status)

	mock.ExpectQuery(`SELECT status FROM paid_articles`).
		WithArgs("a1", "stranger").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	_, err = s.PurchaseStatus(context.Background(), "a1", "stranger")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresArchiveDraftWithoutContent(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO deleted_draft_article_info`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.ArchiveDraft(context.Background(), ArticleInfo{ArticleID: "a1", UserID: "u1", Status: StatusDraft}, nil, 99)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
