package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sitecms-api/internal/models"
)

var inquiryRowColumns = []string{"id", "name", "email", "phone", "subject", "message", "status", "ip_address", "user_agent", "created_at", "updated_at", "reply_count"}

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestInquiryRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewInquiryRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO contact_inquiries")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	inquiry := &models.Inquiry{Name: "Rina", Email: "rina@example.com", Message: "Need a quote", IPAddress: "10.0.0.1", UserAgent: "curl"}
	require.NoError(t, repo.Create(context.Background(), inquiry))
	require.NotEmpty(t, inquiry.ID)
	assert.Equal(t, models.InquiryStatusNew, inquiry.Status)
	assert.False(t, inquiry.CreatedAt.IsZero())

	now := time.Now()
	rows := sqlmock.NewRows(inquiryRowColumns).
		AddRow(inquiry.ID, "Rina", "rina@example.com", nil, "Quote", "Need a quote", "read", "10.0.0.1", "curl", now, now, 0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM contact_inquiries i WHERE i.id = $1")).
		WithArgs(inquiry.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), inquiry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InquiryStatusRead, found.Status)
	require.NotNil(t, found.Subject)
	assert.Equal(t, "Quote", *found.Subject)
	assert.Nil(t, found.Phone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInquiryRepositoryGetByIDMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM contact_inquiries i WHERE i.id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(inquiryRowColumns))

	_, err := NewInquiryRepository(db).GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInquiryRepositoryListDefaultExcludesArchived(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM contact_inquiries i WHERE i.status <> 'archived'")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE i.status <> 'archived' ORDER BY i.created_at DESC, i.id ASC LIMIT 20 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows(inquiryRowColumns).
			AddRow("inq-1", "Rina", "rina@example.com", nil, nil, "Hello", "new", "", "", now, now, 0))

	items, total, err := NewInquiryRepository(db).List(context.Background(), models.InquiryFilter{}.Normalize())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "inq-1", items[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInquiryRepositoryListAllHasNoStatusFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM contact_inquiries i$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM contact_inquiries i ORDER BY i.created_at DESC, i.id ASC LIMIT 20 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows(inquiryRowColumns))

	items, total, err := NewInquiryRepository(db).List(context.Background(), models.InquiryFilter{Status: "all"}.Normalize())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInquiryRepositoryListSentSearchAndSort(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	filter := models.InquiryFilter{Status: "sent", Search: "Raton_50%", Page: 2, PageSize: 10, SortBy: "email", SortOrder: "asc"}.Normalize()
	pattern := `%raton\_50\%%`

	mock.ExpectQuery(regexp.QuoteMeta("EXISTS (SELECT 1 FROM contact_replies r WHERE r.inquiry_id = i.id) AND LOWER(i.name || i.email || COALESCE(i.phone, '') || COALESCE(i.subject, '') || i.message) LIKE $1 ESCAPE '\\'")).
		WithArgs(pattern).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY LOWER(i.email) ASC, i.id ASC LIMIT 10 OFFSET 10")).
		WithArgs(pattern).
		WillReturnRows(sqlmock.NewRows(inquiryRowColumns))

	_, total, err := NewInquiryRepository(db).List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInquiryRepositoryListExactStatusAndSubjectSort(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	filter := models.InquiryFilter{Status: "archived", SortBy: "subject"}.Normalize()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE i.status = $1")).
		WithArgs("archived").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY LOWER(COALESCE(i.subject, '')) DESC, i.id ASC")).
		WithArgs("archived").
		WillReturnRows(sqlmock.NewRows(inquiryRowColumns))

	_, _, err := NewInquiryRepository(db).List(context.Background(), filter)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInquiryRepositoryListRejectsUnknownStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	_, _, err := NewInquiryRepository(db).List(context.Background(), models.InquiryFilter{Status: "deleted"}.Normalize())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInquiryRepositoryListAllForExport(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY i.created_at DESC, i.id ASC LIMIT 1000 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows(inquiryRowColumns))

	items, err := NewInquiryRepository(db).ListAll(context.Background(), models.InquiryFilter{}.Normalize(), 1000)
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInquiryRepositoryStats(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE i.status = 'new') AS new_count")).
		WillReturnRows(sqlmock.NewRows([]string{"new_count", "read_count", "replied_count", "archived_count", "sent_count", "total_count"}).
			AddRow(3, 2, 4, 1, 5, 10))

	stats, err := NewInquiryRepository(db).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.InquiryStats{New: 3, Read: 2, Replied: 4, Archived: 1, Sent: 5, Total: 10}, *stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInquiryRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInquiryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE contact_inquiries SET status = $2")).
		WithArgs("inq-1", "archived", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "inq-1", models.InquiryStatusArchived))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE contact_inquiries SET status = $2")).
		WithArgs("missing", "archived", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.UpdateStatus(context.Background(), "missing", models.InquiryStatusArchived), sql.ErrNoRows)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = $2")).
		WithArgs("inq-1", "new", "read", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	changed, err := repo.UpdateStatusIf(context.Background(), "inq-1", models.InquiryStatusNew, models.InquiryStatusRead)
	require.NoError(t, err)
	assert.False(t, changed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInquiryRepositoryDeleteCascadesFiles(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM contact_inquiries WHERE id = $1 FOR UPDATE")).
		WithArgs("inq-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("inq-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT attachment_path FROM contact_replies")).
		WithArgs("inq-1").
		WillReturnRows(sqlmock.NewRows([]string{"attachment_path"}).AddRow("r1/a.pdf").AddRow("r2/b.png"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM contact_replies WHERE inquiry_id = $1")).
		WithArgs("inq-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM contact_inquiries WHERE id = $1")).
		WithArgs("inq-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var removed []string
	err := NewInquiryRepository(db).Delete(context.Background(), "inq-1", func(paths []string) error {
		removed = paths
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1/a.pdf", "r2/b.png"}, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInquiryRepositoryDeleteRollsBackOnFileFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("inq-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("inq-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT attachment_path FROM contact_replies")).
		WithArgs("inq-1").
		WillReturnRows(sqlmock.NewRows([]string{"attachment_path"}).AddRow("r1/a.pdf"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM contact_replies")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM contact_inquiries")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	storageErr := errors.New("disk unavailable")
	err := NewInquiryRepository(db).Delete(context.Background(), "inq-1", func([]string) error { return storageErr })
	require.ErrorIs(t, err, storageErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInquiryRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := NewInquiryRepository(db).Delete(context.Background(), "missing", nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_now\\`, escapeLike(`50% off_now\`))
}
