package handler

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ScepterCode/class-admission-api/internal/models"
	"github.com/ScepterCode/class-admission-api/internal/repository"
)

// stubLedger serves a fixed set of classes with live seat counters.
type stubLedger struct {
	classes map[string]*models.ClassOffering
}

func newStubLedger(classes ...*models.ClassOffering) *stubLedger {
	l := &stubLedger{classes: make(map[string]*models.ClassOffering)}
	for _, c := range classes {
		l.classes[c.ID] = c
	}
	return l
}

func (l *stubLedger) FindByID(_ context.Context, id string) (*models.ClassOffering, error) {
	c, ok := l.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (l *stubLedger) TryReserveSeat(_ context.Context, id string) (bool, error) {
	c, ok := l.classes[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	if c.CurrentEnrollment >= c.Capacity {
		return false, nil
	}
	c.CurrentEnrollment++
	return true, nil
}

func (l *stubLedger) ReleaseSeat(_ context.Context, id string) error {
	c, ok := l.classes[id]
	if !ok {
		return sql.ErrNoRows
	}
	if c.CurrentEnrollment > 0 {
		c.CurrentEnrollment--
	}
	return nil
}

func (l *stubLedger) SeatSummary(_ context.Context, id string) (*models.SeatSummary, error) {
	c, ok := l.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.SeatSummary{ClassID: c.ID, ClassName: c.Name, Capacity: c.Capacity, Enrolled: c.CurrentEnrollment, Available: c.AvailableSeats()}, nil
}

// stubWaitlist is a slice-backed queue with positional ordering.
type stubWaitlist struct {
	entries []*models.WaitlistEntry
}

func (w *stubWaitlist) Insert(_ context.Context, classID, studentID string, priority int) (*models.WaitlistEntry, error) {
	for _, e := range w.entries {
		if e.ClassID == classID && e.StudentID == studentID {
			return nil, repository.ErrDuplicateWaitlistEntry
		}
	}
	entry := &models.WaitlistEntry{
		ID:        uuid.NewString(),
		ClassID:   classID,
		StudentID: studentID,
		Priority:  priority,
		AddedAt:   time.Now().UTC(),
	}
	w.entries = append(w.entries, entry)
	w.reflow(classID)
	return entry, nil
}

func (w *stubWaitlist) Remove(_ context.Context, classID, studentID string) (*models.WaitlistEntry, error) {
	for i, e := range w.entries {
		if e.ClassID == classID && e.StudentID == studentID {
			removed := *e
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			w.reflow(classID)
			return &removed, nil
		}
	}
	return nil, repository.ErrWaitlistEntryMissing
}

func (w *stubWaitlist) PeekNext(_ context.Context, classID string, n int, now time.Time) ([]models.WaitlistEntry, error) {
	var out []models.WaitlistEntry
	for _, e := range w.ordered(classID) {
		if len(out) == n {
			break
		}
		if e.Responded {
			continue
		}
		if e.NotificationExpiresAt != nil && now.Before(*e.NotificationExpiresAt) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (w *stubWaitlist) MarkNotified(_ context.Context, ids []string, notifiedAt, expiresAt time.Time) error {
	for _, id := range ids {
		for _, e := range w.entries {
			if e.ID == id {
				n, x := notifiedAt, expiresAt
				e.NotifiedAt = &n
				e.NotificationExpiresAt = &x
			}
		}
	}
	return nil
}

func (w *stubWaitlist) ClearNotification(_ context.Context, id string) error {
	for _, e := range w.entries {
		if e.ID == id {
			e.NotifiedAt = nil
			e.NotificationExpiresAt = nil
			e.Responded = false
			e.Response = nil
		}
	}
	return nil
}

func (w *stubWaitlist) ClaimResponse(_ context.Context, id string, response models.WaitlistResponse) (bool, error) {
	for _, e := range w.entries {
		if e.ID != id {
			continue
		}
		if e.Responded || e.NotifiedAt == nil {
			return false, nil
		}
		e.Responded = true
		resp := response
		e.Response = &resp
		return true, nil
	}
	return false, nil
}

func (w *stubWaitlist) ClaimExpired(_ context.Context, cutoff time.Time) ([]models.WaitlistEntry, error) {
	var claimed []models.WaitlistEntry
	for _, e := range w.entries {
		if e.Responded || e.NotificationExpiresAt == nil || e.NotificationExpiresAt.After(cutoff) {
			continue
		}
		e.Responded = true
		resp := models.WaitlistResponseNoResponse
		e.Response = &resp
		claimed = append(claimed, *e)
	}
	return claimed, nil
}

func (w *stubWaitlist) FindByStudent(_ context.Context, classID, studentID string) (*models.WaitlistEntry, error) {
	for _, e := range w.entries {
		if e.ClassID == classID && e.StudentID == studentID {
			return e, nil
		}
	}
	return nil, repository.ErrWaitlistEntryMissing
}

func (w *stubWaitlist) CountByClass(_ context.Context, classID string) (int, error) {
	count := 0
	for _, e := range w.entries {
		if e.ClassID == classID {
			count++
		}
	}
	return count, nil
}

func (w *stubWaitlist) ListByClass(_ context.Context, classID string) ([]models.WaitlistEntry, error) {
	var out []models.WaitlistEntry
	for _, e := range w.ordered(classID) {
		out = append(out, *e)
	}
	return out, nil
}

func (w *stubWaitlist) ordered(classID string) []*models.WaitlistEntry {
	var list []*models.WaitlistEntry
	for _, e := range w.entries {
		if e.ClassID == classID {
			list = append(list, e)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority > list[j].Priority
		}
		return list[i].AddedAt.Before(list[j].AddedAt)
	})
	return list
}

func (w *stubWaitlist) reflow(classID string) {
	for i, e := range w.ordered(classID) {
		e.Position = i + 1
	}
}

// stubEnrollments stores records keyed by ID.
type stubEnrollments struct {
	records map[string]*models.EnrollmentRecord
}

func newStubEnrollments() *stubEnrollments {
	return &stubEnrollments{records: make(map[string]*models.EnrollmentRecord)}
}

func (m *stubEnrollments) Create(_ context.Context, record *models.EnrollmentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	m.records[record.ID] = record
	return nil
}

func (m *stubEnrollments) FindByID(_ context.Context, id string) (*models.EnrollmentRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return r, nil
}

func (m *stubEnrollments) FindActive(_ context.Context, studentID, classID string) (*models.EnrollmentRecord, error) {
	for _, r := range m.records {
		if r.StudentID == studentID && r.ClassID == classID && r.Status.Active() {
			return r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *stubEnrollments) UpdateStatus(_ context.Context, id string, from, to models.EnrollmentStatus, decidedAt *time.Time) (bool, error) {
	r, ok := m.records[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	r.DecidedAt = decidedAt
	return true, nil
}

func (m *stubEnrollments) UpdateReview(_ context.Context, id string, status models.EnrollmentStatus, reviewedBy, reviewNotes string, decidedAt time.Time) error {
	r, ok := m.records[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Status = status
	r.ReviewedBy = &reviewedBy
	if reviewNotes != "" {
		r.ReviewNotes = &reviewNotes
	}
	r.DecidedAt = &decidedAt
	return nil
}

func (m *stubEnrollments) ListPending(_ context.Context, classID string) ([]models.EnrollmentRecord, error) {
	var out []models.EnrollmentRecord
	for _, r := range m.records {
		if r.Status != models.EnrollmentStatusPending {
			continue
		}
		if classID != "" && r.ClassID != classID {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}
