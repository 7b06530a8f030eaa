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

func newEnrollmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func enrollmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "class_id", "status", "justification", "reviewed_by", "review_notes", "requested_at", "decided_at", "updated_at"})
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollment_records").
		WithArgs(sqlmock.AnyArg(), "s1", "c1", models.EnrollmentStatusEnrolled, nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now().UTC()
	record := &models.EnrollmentRecord{
		StudentID: "s1",
		ClassID:   "c1",
		Status:    models.EnrollmentStatusEnrolled,
		DecidedAt: &now,
	}
	require.NoError(t, repo.Create(context.Background(), record))
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.RequestedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, student_id, class_id, status").
		WithArgs("s1", "c1", models.EnrollmentStatusPending, models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted).
		WillReturnRows(enrollmentRows().AddRow("e1", "s1", "c1", models.EnrollmentStatusWaitlisted, nil, nil, nil, now, nil, now))

	record, err := repo.FindActive(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWaitlisted, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindActiveNone(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT id, student_id, class_id, status").
		WithArgs("s1", "c1", models.EnrollmentStatusPending, models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted).
		WillReturnError(sql.ErrNoRows)

	// Absence travels as the raw sentinel for the service layer to map.
	_, err := repo.FindActive(context.Background(), "s1", "c1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestEnrollmentRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec("UPDATE enrollment_records").
		WithArgs("e1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusDropped, &now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateStatus(context.Background(), "e1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusDropped, &now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatusStale(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// The record already left the expected status, so the conditional
	// update touches nothing and the caller learns it lost the race.
	now := time.Now().UTC()
	mock.ExpectExec("UPDATE enrollment_records").
		WithArgs("e1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusDropped, &now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateStatus(context.Background(), "e1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusDropped, &now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateReview(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("review_notes = NULLIF($4, '')")).
		WithArgs("e1", models.EnrollmentStatusRejected, "reviewer-1", "missing prerequisite", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateReview(context.Background(), "e1", models.EnrollmentStatusRejected, "reviewer-1", "missing prerequisite", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListPending(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, student_id, class_id, status").
		WithArgs("c1", models.EnrollmentStatusPending).
		WillReturnRows(enrollmentRows().
			AddRow("e1", "s1", "c1", models.EnrollmentStatusPending, nil, nil, nil, now.Add(-time.Hour), nil, now).
			AddRow("e2", "s2", "c1", models.EnrollmentStatusPending, nil, nil, nil, now, nil, now))

	records, err := repo.ListPending(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "e1", records[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListPendingAllClasses(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, student_id, class_id, status").
		WithArgs("", models.EnrollmentStatusPending).
		WillReturnRows(enrollmentRows().
			AddRow("e1", "s1", "c1", models.EnrollmentStatusPending, nil, nil, nil, now, nil, now).
			AddRow("e2", "s2", "c2", models.EnrollmentStatusPending, nil, nil, nil, now, nil, now))

	records, err := repo.ListPending(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
