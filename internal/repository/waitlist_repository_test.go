package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ScepterCode/class-admission-api/internal/models"
)

func newWaitlistMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func waitlistRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "class_id", "student_id", "position", "priority", "added_at", "notified_at", "notification_expires_at", "responded", "response"})
}

func TestWaitlistRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT waitlist_capacity FROM class_offerings").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"waitlist_capacity"}).AddRow(10))
	mock.ExpectQuery("SELECT 1 FROM waitlist_entries").
		WithArgs("c1", "s1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM waitlist_entries WHERE class_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM waitlist_entries")).
		WithArgs("c1", 5, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE waitlist_entries SET position = position + 1")).
		WithArgs("c1", 2).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO waitlist_entries").
		WithArgs(sqlmock.AnyArg(), "c1", "s1", 2, 5, sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := repo.Insert(context.Background(), "c1", "s1", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Position)
	assert.Equal(t, 5, entry.Priority)
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryInsertDuplicate(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT waitlist_capacity FROM class_offerings").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"waitlist_capacity"}).AddRow(10))
	mock.ExpectQuery("SELECT 1 FROM waitlist_entries").
		WithArgs("c1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Insert(context.Background(), "c1", "s1", 0)
	assert.ErrorIs(t, err, ErrDuplicateWaitlistEntry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryInsertCapacityReached(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT waitlist_capacity FROM class_offerings").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"waitlist_capacity"}).AddRow(2))
	mock.ExpectQuery("SELECT 1 FROM waitlist_entries").
		WithArgs("c1", "s1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM waitlist_entries WHERE class_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.Insert(context.Background(), "c1", "s1", 0)
	assert.ErrorIs(t, err, ErrWaitlistCapacityReached)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryInsertMissingClass(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT waitlist_capacity FROM class_offerings").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Insert(context.Background(), "missing", "s1", 0)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWaitlistRepositoryRemove(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM class_offerings WHERE id = $1 FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("SELECT id, class_id, student_id, position").
		WithArgs("c1", "s2").
		WillReturnRows(waitlistRows().AddRow("w2", "c1", "s2", 2, 0, time.Now(), nil, nil, false, nil))
	mock.ExpectExec("DELETE FROM waitlist_entries").
		WithArgs("w2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE waitlist_entries SET position = position - 1")).
		WithArgs("c1", 2).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	entry, err := repo.Remove(context.Background(), "c1", "s2")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryRemoveMissing(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM class_offerings WHERE id = $1 FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("SELECT id, class_id, student_id, position").
		WithArgs("c1", "ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Remove(context.Background(), "c1", "ghost")
	assert.ErrorIs(t, err, ErrWaitlistEntryMissing)
}

func TestWaitlistRepositoryPeekNext(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, class_id, student_id, position").
		WithArgs("c1", now, 2).
		WillReturnRows(waitlistRows().
			AddRow("w1", "c1", "s1", 1, 0, now, nil, nil, false, nil).
			AddRow("w2", "c1", "s2", 2, 0, now, nil, nil, false, nil))

	entries, err := repo.PeekNext(context.Background(), "c1", 2, now)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s1", entries[0].StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryMarkNotified(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	now := time.Now().UTC()
	expires := now.Add(48 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE waitlist_entries SET notified_at = $1, notification_expires_at = $2 WHERE id IN ($3,$4)")).
		WithArgs(now, expires, "w1", "w2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.MarkNotified(context.Background(), []string{"w1", "w2"}, now, expires)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryMarkNotifiedEmpty(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	// No IDs means no round trip at all.
	err := repo.MarkNotified(context.Background(), nil, time.Now(), time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryClearNotification(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET notified_at = NULL, notification_expires_at = NULL, responded = false, response = NULL")).
		WithArgs("w1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ClearNotification(context.Background(), "w1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryClaimResponse(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND notified_at IS NOT NULL AND responded = false")).
		WithArgs("w1", models.WaitlistResponseAccept).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.ClaimResponse(context.Background(), "w1", models.WaitlistResponseAccept)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryClaimResponseAlreadyAnswered(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	// An expiry sweep got there first, so the conditional update finds
	// no unanswered notification to claim.
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND notified_at IS NOT NULL AND responded = false")).
		WithArgs("w1", models.WaitlistResponseAccept).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.ClaimResponse(context.Background(), "w1", models.WaitlistResponseAccept)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryClaimExpired(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	cutoff := time.Now().UTC()
	notified := cutoff.Add(-3 * time.Hour)
	expired := cutoff.Add(-time.Hour)
	resp := models.WaitlistResponseNoResponse
	mock.ExpectQuery(regexp.QuoteMeta("SET responded = true, response = $1")).
		WithArgs(models.WaitlistResponseNoResponse, cutoff).
		WillReturnRows(waitlistRows().AddRow("w1", "c1", "s1", 1, 0, notified, notified, expired, true, resp))

	claimed, err := repo.ClaimExpired(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.True(t, claimed[0].Responded)
	require.NotNil(t, claimed[0].Response)
	assert.Equal(t, models.WaitlistResponseNoResponse, *claimed[0].Response)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryFindByStudentMissing(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectQuery("SELECT id, class_id, student_id, position").
		WithArgs("c1", "ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByStudent(context.Background(), "c1", "ghost")
	assert.ErrorIs(t, err, ErrWaitlistEntryMissing)
}

func TestWaitlistRepositoryListByClass(t *testing.T) {
	db, mock, cleanup := newWaitlistMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, class_id, student_id, position").
		WithArgs("c1").
		WillReturnRows(waitlistRows().
			AddRow("w1", "c1", "s1", 1, 5, now, nil, nil, false, nil).
			AddRow("w2", "c1", "s2", 2, 0, now, nil, nil, false, nil))

	entries, err := repo.ListByClass(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}
