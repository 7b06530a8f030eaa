package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment record.
type EnrollmentStatus string

// Possible enrollment statuses. REJECTED and DROPPED are terminal.
const (
	EnrollmentStatusPending    EnrollmentStatus = "PENDING"
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusRejected   EnrollmentStatus = "REJECTED"
	EnrollmentStatusDropped    EnrollmentStatus = "DROPPED"
)

// Active reports whether the status still blocks a new request for the
// same (student, class) pair.
func (s EnrollmentStatus) Active() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusEnrolled, EnrollmentStatusWaitlisted:
		return true
	}
	return false
}

// EnrollmentRecord captures a student's admission state for a class.
// At most one active record exists per (student, class).
type EnrollmentRecord struct {
	ID            string           `db:"id" json:"id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	ClassID       string           `db:"class_id" json:"class_id"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	Justification *string          `db:"justification" json:"justification,omitempty"`
	ReviewedBy    *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNotes   *string          `db:"review_notes" json:"review_notes,omitempty"`
	RequestedAt   time.Time        `db:"requested_at" json:"requested_at"`
	DecidedAt     *time.Time       `db:"decided_at" json:"decided_at,omitempty"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}
