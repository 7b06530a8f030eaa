package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ScepterCode/class-admission-api/internal/models"
	"github.com/ScepterCode/class-admission-api/internal/repository"
)

// memLedger is an in-memory capacity ledger safe for concurrent use.
type memLedger struct {
	mu           sync.Mutex
	classes      map[string]*models.ClassOffering
	findErr      error
	releaseCalls int
}

func newMemLedger(classes ...*models.ClassOffering) *memLedger {
	l := &memLedger{classes: make(map[string]*models.ClassOffering)}
	for _, c := range classes {
		copied := *c
		l.classes[c.ID] = &copied
	}
	return l
}

func (l *memLedger) FindByID(_ context.Context, id string) (*models.ClassOffering, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.findErr != nil {
		return nil, l.findErr
	}
	c, ok := l.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (l *memLedger) TryReserveSeat(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
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

func (l *memLedger) ReleaseSeat(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.classes[id]
	if !ok {
		return sql.ErrNoRows
	}
	l.releaseCalls++
	if c.CurrentEnrollment > 0 {
		c.CurrentEnrollment--
	}
	return nil
}

func (l *memLedger) releases() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releaseCalls
}

func (l *memLedger) SeatSummary(_ context.Context, id string) (*models.SeatSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.SeatSummary{
		ClassID:   c.ID,
		ClassName: c.Name,
		Capacity:  c.Capacity,
		Enrolled:  c.CurrentEnrollment,
		Available: c.AvailableSeats(),
	}, nil
}

func (l *memLedger) enrolled(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.classes[id].CurrentEnrollment
}

// memWaitlist keeps real queue semantics: positions stay a contiguous
// 1..N sequence ordered by (priority desc, added_at asc).
type memWaitlist struct {
	mu        sync.Mutex
	capacity  map[string]int
	entries   []*models.WaitlistEntry
	clock     time.Time
	removeErr error
	// claimHook runs once at the start of the next ClaimResponse call,
	// before the lock is taken, to interleave a competing operation.
	claimHook func()
}

func newMemWaitlist() *memWaitlist {
	return &memWaitlist{capacity: make(map[string]int), clock: time.Now().UTC()}
}

func (w *memWaitlist) setCapacity(classID string, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.capacity[classID] = n
}

func (w *memWaitlist) Insert(_ context.Context, classID, studentID string, priority int) (*models.WaitlistEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	count := 0
	for _, e := range w.entries {
		if e.ClassID != classID {
			continue
		}
		if e.StudentID == studentID {
			return nil, repository.ErrDuplicateWaitlistEntry
		}
		count++
	}
	if cap, ok := w.capacity[classID]; ok && count >= cap {
		return nil, repository.ErrWaitlistCapacityReached
	}

	w.clock = w.clock.Add(time.Millisecond)
	entry := &models.WaitlistEntry{
		ID:        uuid.NewString(),
		ClassID:   classID,
		StudentID: studentID,
		Priority:  priority,
		AddedAt:   w.clock,
	}
	w.entries = append(w.entries, entry)
	w.reflow(classID)
	copied := *entry
	return &copied, nil
}

func (w *memWaitlist) Remove(_ context.Context, classID, studentID string) (*models.WaitlistEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removeErr != nil {
		return nil, w.removeErr
	}
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

func (w *memWaitlist) PeekNext(_ context.Context, classID string, n int, now time.Time) ([]models.WaitlistEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	candidates := w.ordered(classID)
	out := make([]models.WaitlistEntry, 0, n)
	for _, e := range candidates {
		if len(out) == n {
			break
		}
		if e.Responded {
			continue
		}
		if e.NotifiedAt != nil && e.NotificationExpiresAt != nil && now.Before(*e.NotificationExpiresAt) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (w *memWaitlist) MarkNotified(_ context.Context, ids []string, notifiedAt, expiresAt time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
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

func (w *memWaitlist) ClearNotification(_ context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
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

func (w *memWaitlist) ClaimResponse(_ context.Context, id string, response models.WaitlistResponse) (bool, error) {
	if hook := w.claimHook; hook != nil {
		w.claimHook = nil
		hook()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
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

func (w *memWaitlist) ClaimExpired(_ context.Context, cutoff time.Time) ([]models.WaitlistEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var claimed []models.WaitlistEntry
	for _, e := range w.entries {
		if e.Responded || e.NotificationExpiresAt == nil {
			continue
		}
		if e.NotificationExpiresAt.After(cutoff) {
			continue
		}
		e.Responded = true
		resp := models.WaitlistResponseNoResponse
		e.Response = &resp
		claimed = append(claimed, *e)
	}
	return claimed, nil
}

func (w *memWaitlist) FindByStudent(_ context.Context, classID, studentID string) (*models.WaitlistEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.entries {
		if e.ClassID == classID && e.StudentID == studentID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, repository.ErrWaitlistEntryMissing
}

func (w *memWaitlist) CountByClass(_ context.Context, classID string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	count := 0
	for _, e := range w.entries {
		if e.ClassID == classID {
			count++
		}
	}
	return count, nil
}

func (w *memWaitlist) ListByClass(_ context.Context, classID string) ([]models.WaitlistEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.WaitlistEntry, 0)
	for _, e := range w.ordered(classID) {
		out = append(out, *e)
	}
	return out, nil
}

func (w *memWaitlist) ordered(classID string) []*models.WaitlistEntry {
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

func (w *memWaitlist) reflow(classID string) {
	for i, e := range w.ordered(classID) {
		e.Position = i + 1
	}
}

func (w *memWaitlist) positions(classID string) map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]int)
	for _, e := range w.entries {
		if e.ClassID == classID {
			out[e.StudentID] = e.Position
		}
	}
	return out
}

// memEnrollments stores records keyed by ID.
type memEnrollments struct {
	mu        sync.Mutex
	records   map[string]*models.EnrollmentRecord
	createErr error
}

func newMemEnrollments() *memEnrollments {
	return &memEnrollments{records: make(map[string]*models.EnrollmentRecord)}
}

func (m *memEnrollments) Create(_ context.Context, record *models.EnrollmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	copied := *record
	m.records[record.ID] = &copied
	return nil
}

func (m *memEnrollments) FindByID(_ context.Context, id string) (*models.EnrollmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *r
	return &copied, nil
}

func (m *memEnrollments) FindActive(_ context.Context, studentID, classID string) (*models.EnrollmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.EnrollmentRecord
	for _, r := range m.records {
		if r.StudentID != studentID || r.ClassID != classID || !r.Status.Active() {
			continue
		}
		if latest == nil || r.RequestedAt.After(latest.RequestedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	copied := *latest
	return &copied, nil
}

func (m *memEnrollments) UpdateStatus(_ context.Context, id string, from, to models.EnrollmentStatus, decidedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	r.DecidedAt = decidedAt
	return true, nil
}

func (m *memEnrollments) UpdateReview(_ context.Context, id string, status models.EnrollmentStatus, reviewedBy, reviewNotes string, decidedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memEnrollments) ListPending(_ context.Context, classID string) ([]models.EnrollmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (m *memEnrollments) byStudent(studentID, classID string) *models.EnrollmentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.EnrollmentRecord
	for _, r := range m.records {
		if r.StudentID != studentID || r.ClassID != classID {
			continue
		}
		if latest == nil || r.RequestedAt.After(latest.RequestedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil
	}
	copied := *latest
	return &copied
}

// recordingNotifier captures delivered kinds per recipient.
type recordingNotifier struct {
	mu    sync.Mutex
	kinds map[string][]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{kinds: make(map[string][]string)}
}

func (n *recordingNotifier) Notify(_ context.Context, recipientID, kind string, _ map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds[recipientID] = append(n.kinds[recipientID], kind)
}

func (n *recordingNotifier) received(recipientID, kind string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range n.kinds[recipientID] {
		if k == kind {
			return true
		}
	}
	return false
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, kinds := range n.kinds {
		for _, k := range kinds {
			if k == kind {
				total++
			}
		}
	}
	return total
}

// fixedRiskScorer returns a constant score per student.
type fixedRiskScorer struct {
	scores map[string]float64
}

func (s *fixedRiskScorer) Score(_ context.Context, studentID, _ string) (float64, error) {
	return s.scores[studentID], nil
}

func newEngine(ledger *memLedger, waitlist *memWaitlist, enrollments *memEnrollments, notifier Notifier, opts ...func(*EngineConfig)) *EnrollmentService {
	cfg := EngineConfig{ResponseWindow: 48 * time.Hour, MaxNotifyBatch: 10}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewEnrollmentService(ledger, waitlist, enrollments, nil, notifier, nil, nil, cfg, nil, nil)
}
