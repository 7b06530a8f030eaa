package models

import "time"

// EnrollmentType governs how a class admits students.
type EnrollmentType string

// Supported enrollment types.
const (
	EnrollmentTypeOpen           EnrollmentType = "OPEN"
	EnrollmentTypeRestricted     EnrollmentType = "RESTRICTED"
	EnrollmentTypeInvitationOnly EnrollmentType = "INVITATION_ONLY"
)

// ClassOffering is a capacity-limited class. CurrentEnrollment is mutated
// only through the ledger's conditional updates, never written directly.
type ClassOffering struct {
	ID                string         `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	Capacity          int            `db:"capacity" json:"capacity"`
	CurrentEnrollment int            `db:"current_enrollment" json:"current_enrollment"`
	WaitlistCapacity  int            `db:"waitlist_capacity" json:"waitlist_capacity"`
	EnrollmentType    EnrollmentType `db:"enrollment_type" json:"enrollment_type"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// AvailableSeats returns the number of unreserved seats.
func (c *ClassOffering) AvailableSeats() int {
	free := c.Capacity - c.CurrentEnrollment
	if free < 0 {
		return 0
	}
	return free
}

// SeatSummary is a read-only view of a class's capacity state.
type SeatSummary struct {
	ClassID    string `db:"class_id" json:"class_id"`
	ClassName  string `db:"class_name" json:"class_name"`
	Capacity   int    `db:"capacity" json:"capacity"`
	Enrolled   int    `db:"enrolled" json:"enrolled"`
	Available  int    `db:"available" json:"available"`
	Waitlisted int    `db:"waitlisted" json:"waitlisted"`
}
