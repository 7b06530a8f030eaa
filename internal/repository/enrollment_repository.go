package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ScepterCode/class-admission-api/internal/models"
)

const enrollmentColumns = `id, student_id, class_id, status, justification, reviewed_by, review_notes, requested_at, decided_at, updated_at`

// EnrollmentRepository handles persistence of enrollment records.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, record *models.EnrollmentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RequestedAt.IsZero() {
		record.RequestedAt = time.Now().UTC()
	}
	record.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO enrollment_records (id, student_id, class_id, status, justification, reviewed_by, review_notes, requested_at, decided_at, updated_at)
        VALUES (:id, :student_id, :class_id, :status, :justification, :reviewed_by, :review_notes, :requested_at, :decided_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create enrollment record: %w", err)
	}
	return nil
}

// FindByID returns an enrollment record by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollment_records WHERE id = $1`, enrollmentColumns)
	var record models.EnrollmentRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindActive returns the single active record for a (student, class) pair.
func (r *EnrollmentRepository) FindActive(ctx context.Context, studentID, classID string) (*models.EnrollmentRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollment_records
        WHERE student_id = $1 AND class_id = $2 AND status IN ($3, $4, $5)
        ORDER BY requested_at DESC LIMIT 1`, enrollmentColumns)
	var record models.EnrollmentRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, classID,
		models.EnrollmentStatusPending, models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateStatus transitions a record between two states, stamping
// decided_at. The update is conditional on the record still holding the
// expected status; the bool reports whether the transition fired, so two
// racing callers cannot both claim the same transition.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, from, to models.EnrollmentStatus, decidedAt *time.Time) (bool, error) {
	const query = `UPDATE enrollment_records
        SET status = $3, decided_at = $4, updated_at = NOW()
        WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, decidedAt)
	if err != nil {
		return false, fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update enrollment status: %w", err)
	}
	return affected == 1, nil
}

// UpdateReview records a reviewer decision alongside the status transition.
func (r *EnrollmentRepository) UpdateReview(ctx context.Context, id string, status models.EnrollmentStatus, reviewedBy, reviewNotes string, decidedAt time.Time) error {
	const query = `UPDATE enrollment_records
        SET status = $2, reviewed_by = $3, review_notes = NULLIF($4, ''), decided_at = $5, updated_at = NOW()
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, reviewedBy, reviewNotes, decidedAt); err != nil {
		return fmt.Errorf("update enrollment review: %w", err)
	}
	return nil
}

// ListPending returns PENDING records oldest first, optionally scoped to
// one class. An empty classID lists across all classes.
func (r *EnrollmentRepository) ListPending(ctx context.Context, classID string) ([]models.EnrollmentRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollment_records
        WHERE ($1 = '' OR class_id = $1) AND status = $2 ORDER BY requested_at ASC`, enrollmentColumns)
	var records []models.EnrollmentRecord
	if err := r.db.SelectContext(ctx, &records, query, classID, models.EnrollmentStatusPending); err != nil {
		return nil, fmt.Errorf("list pending enrollments: %w", err)
	}
	return records, nil
}
