package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ScepterCode/class-admission-api/internal/models"
	"github.com/ScepterCode/class-admission-api/internal/repository"
	appErrors "github.com/ScepterCode/class-admission-api/pkg/errors"
)

type capacityLedger interface {
	FindByID(ctx context.Context, id string) (*models.ClassOffering, error)
	TryReserveSeat(ctx context.Context, id string) (bool, error)
	ReleaseSeat(ctx context.Context, id string) error
	SeatSummary(ctx context.Context, id string) (*models.SeatSummary, error)
}

type waitlistStore interface {
	Insert(ctx context.Context, classID, studentID string, priority int) (*models.WaitlistEntry, error)
	Remove(ctx context.Context, classID, studentID string) (*models.WaitlistEntry, error)
	PeekNext(ctx context.Context, classID string, n int, now time.Time) ([]models.WaitlistEntry, error)
	MarkNotified(ctx context.Context, ids []string, notifiedAt, expiresAt time.Time) error
	ClearNotification(ctx context.Context, id string) error
	ClaimResponse(ctx context.Context, id string, response models.WaitlistResponse) (bool, error)
	ClaimExpired(ctx context.Context, cutoff time.Time) ([]models.WaitlistEntry, error)
	FindByStudent(ctx context.Context, classID, studentID string) (*models.WaitlistEntry, error)
	CountByClass(ctx context.Context, classID string) (int, error)
	ListByClass(ctx context.Context, classID string) ([]models.WaitlistEntry, error)
}

type enrollmentStore interface {
	Create(ctx context.Context, record *models.EnrollmentRecord) error
	FindByID(ctx context.Context, id string) (*models.EnrollmentRecord, error)
	FindActive(ctx context.Context, studentID, classID string) (*models.EnrollmentRecord, error)
	UpdateStatus(ctx context.Context, id string, from, to models.EnrollmentStatus, decidedAt *time.Time) (bool, error)
	UpdateReview(ctx context.Context, id string, status models.EnrollmentStatus, reviewedBy, reviewNotes string, decidedAt time.Time) error
	ListPending(ctx context.Context, classID string) ([]models.EnrollmentRecord, error)
}

type snapshotCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// RequestEnrollmentRequest describes an admission request.
type RequestEnrollmentRequest struct {
	StudentID     string `json:"student_id" validate:"required"`
	ClassID       string `json:"class_id" validate:"required"`
	Justification string `json:"justification"`
	Priority      int    `json:"priority" validate:"gte=0"`
}

// WaitlistResponseRequest is a notified candidate's answer to a seat offer.
type WaitlistResponseRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Response  string `json:"response" validate:"required,oneof=accept decline"`
}

// BulkEnrollRequest enrolls many students into one class.
type BulkEnrollRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,required"`
	ClassID    string   `json:"class_id" validate:"required"`
}

// AdmissionResult is the outcome of an admission operation. Soft outcomes
// such as WAITLISTED or PENDING are successes, not errors.
type AdmissionResult struct {
	RecordID    string                  `json:"record_id,omitempty"`
	StudentID   string                  `json:"student_id"`
	ClassID     string                  `json:"class_id"`
	Status      models.EnrollmentStatus `json:"status"`
	Position    int                     `json:"position,omitempty"`
	Probability float64                 `json:"probability,omitempty"`
	Note        string                  `json:"note,omitempty"`
}

// BulkOutcome reports one student's result within a bulk enrollment.
type BulkOutcome struct {
	StudentID string                  `json:"student_id"`
	Status    models.EnrollmentStatus `json:"status,omitempty"`
	Position  int                     `json:"position,omitempty"`
	Error     *appErrors.Error        `json:"error,omitempty"`
}

// BulkCounts aggregates bulk outcomes per status.
type BulkCounts struct {
	Enrolled   int `json:"enrolled"`
	Waitlisted int `json:"waitlisted"`
	Pending    int `json:"pending"`
	Rejected   int `json:"rejected"`
}

// BulkEnrollSummary is the result of a bulk enrollment run.
type BulkEnrollSummary struct {
	TotalProcessed int           `json:"total_processed"`
	Successful     int           `json:"successful"`
	Summary        BulkCounts    `json:"summary"`
	Outcomes       []BulkOutcome `json:"outcomes"`
}

// EngineConfig tunes the admission engine.
type EngineConfig struct {
	ResponseWindow time.Duration
	MaxNotifyBatch int
	RiskEnabled    bool
	RiskThreshold  float64
}

// EnrollmentService is the admission state machine. It decides ENROLLED /
// WAITLISTED / PENDING outcomes against the capacity ledger and drives
// promotion when seats free up.
type EnrollmentService struct {
	ledger      capacityLedger
	waitlist    waitlistStore
	enrollments enrollmentStore
	caches      snapshotCache
	notifier    Notifier
	risk        RiskScorer
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         EngineConfig
}

// NewEnrollmentService constructs the engine.
func NewEnrollmentService(ledger capacityLedger, waitlist waitlistStore, enrollments enrollmentStore, caches snapshotCache, notifier Notifier, risk RiskScorer, metrics *MetricsService, cfg EngineConfig, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if risk == nil {
		risk = NopRiskScorer{}
	}
	if cfg.ResponseWindow <= 0 {
		cfg.ResponseWindow = 48 * time.Hour
	}
	if cfg.RiskThreshold <= 0 {
		cfg.RiskThreshold = 0.8
	}
	return &EnrollmentService{
		ledger:      ledger,
		waitlist:    waitlist,
		enrollments: enrollments,
		caches:      caches,
		notifier:    notifier,
		risk:        risk,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// RequestEnrollment admits, waitlists, or routes a request for review.
func (s *EnrollmentService) RequestEnrollment(ctx context.Context, req RequestEnrollmentRequest) (*AdmissionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment request")
	}

	class, err := s.lookupClass(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}

	existing, err := s.enrollments.FindActive(ctx, req.StudentID, req.ClassID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Persistence(err, "failed to check active enrollment")
	}
	if existing != nil {
		if existing.Status == models.EnrollmentStatusPending {
			return nil, appErrors.ErrDuplicateRequest
		}
		return nil, appErrors.ErrAlreadyEnrolled
	}

	switch class.EnrollmentType {
	case models.EnrollmentTypeInvitationOnly:
		return s.rejectOutright(ctx, req, "enrollment is by invitation only")
	case models.EnrollmentTypeRestricted:
		return s.routeToApproval(ctx, req, "")
	}

	if s.cfg.RiskEnabled {
		score, err := s.risk.Score(ctx, req.StudentID, req.ClassID)
		if err != nil {
			s.logger.Sugar().Warnw("risk scoring unavailable, admitting without it",
				"student_id", req.StudentID, "class_id", req.ClassID, "error", err)
		} else if score >= s.cfg.RiskThreshold {
			return s.routeToApproval(ctx, req, "flagged for manual review")
		}
	}

	return s.seat(ctx, req.StudentID, req.ClassID, req.Priority)
}

// seat runs the capacity check and creates the resulting record. Shared by
// direct requests and approved restricted requests.
func (s *EnrollmentService) seat(ctx context.Context, studentID, classID string, priority int) (*AdmissionResult, error) {
	granted, err := s.ledger.TryReserveSeat(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrClassNotFound
		}
		return nil, appErrors.Persistence(err, "failed to reserve seat")
	}

	if granted {
		now := time.Now().UTC()
		record := &models.EnrollmentRecord{
			StudentID:   studentID,
			ClassID:     classID,
			Status:      models.EnrollmentStatusEnrolled,
			RequestedAt: now,
			DecidedAt:   &now,
		}
		if err := s.enrollments.Create(ctx, record); err != nil {
			// Roll the seat back so the counter stays truthful.
			if releaseErr := s.ledger.ReleaseSeat(ctx, classID); releaseErr != nil {
				s.logger.Sugar().Errorw("failed to release seat after record error",
					"class_id", classID, "error", releaseErr)
			}
			return nil, appErrors.Persistence(err, "failed to create enrollment record")
		}
		s.metrics.RecordAdmissionOutcome("enrolled")
		s.notifier.Notify(ctx, studentID, NotifyEnrollmentConfirmed, map[string]interface{}{
			"class_id": classID,
		})
		return &AdmissionResult{
			RecordID:  record.ID,
			StudentID: studentID,
			ClassID:   classID,
			Status:    models.EnrollmentStatusEnrolled,
		}, nil
	}

	entry, err := s.waitlist.Insert(ctx, classID, studentID, priority)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateWaitlistEntry):
			return nil, appErrors.ErrAlreadyWaitlisted
		case errors.Is(err, repository.ErrWaitlistCapacityReached):
			s.metrics.RecordAdmissionOutcome("rejected")
			return nil, appErrors.ErrWaitlistFull
		case err == sql.ErrNoRows:
			return nil, appErrors.ErrClassNotFound
		}
		return nil, appErrors.Persistence(err, "failed to join waitlist")
	}

	record := &models.EnrollmentRecord{
		StudentID:   studentID,
		ClassID:     classID,
		Status:      models.EnrollmentStatusWaitlisted,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.enrollments.Create(ctx, record); err != nil {
		// Roll the queue entry back so no one waits without a record.
		if _, rmErr := s.waitlist.Remove(ctx, classID, studentID); rmErr != nil {
			s.logger.Sugar().Errorw("failed to remove waitlist entry after record error",
				"class_id", classID, "student_id", studentID, "error", rmErr)
		}
		return nil, appErrors.Persistence(err, "failed to create enrollment record")
	}

	s.invalidateWaitlistCache(ctx, classID)
	s.metrics.RecordAdmissionOutcome("waitlisted")
	s.notifier.Notify(ctx, studentID, NotifyWaitlisted, map[string]interface{}{
		"class_id": classID,
		"position": entry.Position,
	})
	return &AdmissionResult{
		RecordID:    record.ID,
		StudentID:   studentID,
		ClassID:     classID,
		Status:      models.EnrollmentStatusWaitlisted,
		Position:    entry.Position,
		Probability: EstimateProbability(entry.Position),
	}, nil
}

// SeatApproved re-runs the capacity check for a request approved by review.
// Losing the seat in the meantime is an expected outcome: the student is
// waitlisted and the result carries a note rather than an error.
func (s *EnrollmentService) SeatApproved(ctx context.Context, record *models.EnrollmentRecord, approverID, notes string) (*AdmissionResult, error) {
	if record.Status != models.EnrollmentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "enrollment request is not pending review")
	}

	now := time.Now().UTC()
	granted, err := s.ledger.TryReserveSeat(ctx, record.ClassID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrClassNotFound
		}
		return nil, appErrors.Persistence(err, "failed to reserve seat")
	}

	if granted {
		if err := s.enrollments.UpdateReview(ctx, record.ID, models.EnrollmentStatusEnrolled, approverID, notes, now); err != nil {
			if releaseErr := s.ledger.ReleaseSeat(ctx, record.ClassID); releaseErr != nil {
				s.logger.Sugar().Errorw("failed to release seat after review error",
					"class_id", record.ClassID, "error", releaseErr)
			}
			return nil, appErrors.Persistence(err, "failed to record approval")
		}
		s.metrics.RecordAdmissionOutcome("enrolled")
		s.notifier.Notify(ctx, record.StudentID, NotifyEnrollmentApproved, map[string]interface{}{
			"class_id": record.ClassID,
		})
		return &AdmissionResult{
			RecordID:  record.ID,
			StudentID: record.StudentID,
			ClassID:   record.ClassID,
			Status:    models.EnrollmentStatusEnrolled,
		}, nil
	}

	entry, err := s.waitlist.Insert(ctx, record.ClassID, record.StudentID, 0)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateWaitlistEntry):
			return nil, appErrors.ErrAlreadyWaitlisted
		case errors.Is(err, repository.ErrWaitlistCapacityReached):
			// Leave the record pending so the reviewer can retry once
			// seats or waitlist slots free up.
			return nil, appErrors.ErrWaitlistFull
		case err == sql.ErrNoRows:
			return nil, appErrors.ErrClassNotFound
		}
		return nil, appErrors.Persistence(err, "failed to join waitlist")
	}
	if err := s.enrollments.UpdateReview(ctx, record.ID, models.EnrollmentStatusWaitlisted, approverID, notes, now); err != nil {
		return nil, appErrors.Persistence(err, "failed to record approval")
	}

	s.invalidateWaitlistCache(ctx, record.ClassID)
	s.metrics.RecordAdmissionOutcome("waitlisted")
	s.notifier.Notify(ctx, record.StudentID, NotifyWaitlisted, map[string]interface{}{
		"class_id": record.ClassID,
		"position": entry.Position,
	})
	return &AdmissionResult{
		RecordID:    record.ID,
		StudentID:   record.StudentID,
		ClassID:     record.ClassID,
		Status:      models.EnrollmentStatusWaitlisted,
		Position:    entry.Position,
		Probability: EstimateProbability(entry.Position),
		Note:        "class filled during review; student placed on waitlist",
	}, nil
}

// Withdraw drops an active record, releasing the seat and promoting the
// next candidate when the record was seated.
func (s *EnrollmentService) Withdraw(ctx context.Context, recordID string) (*AdmissionResult, error) {
	record, err := s.enrollments.FindByID(ctx, recordID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment record not found")
		}
		return nil, appErrors.Persistence(err, "failed to load enrollment record")
	}

	now := time.Now().UTC()
	switch record.Status {
	case models.EnrollmentStatusEnrolled:
		// Claim the transition first; only the caller that flips the row
		// releases the seat, so a duplicate withdrawal cannot decrement
		// the counter twice.
		ok, err := s.enrollments.UpdateStatus(ctx, record.ID, models.EnrollmentStatusEnrolled, models.EnrollmentStatusDropped, &now)
		if err != nil {
			return nil, appErrors.Persistence(err, "failed to drop enrollment")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "enrollment changed concurrently")
		}
		if err := s.ledger.ReleaseSeat(ctx, record.ClassID); err != nil && err != sql.ErrNoRows {
			return nil, appErrors.Persistence(err, "failed to release seat")
		}
		if err := s.ProcessWaitlist(ctx, record.ClassID); err != nil {
			s.logger.Sugar().Warnw("promotion after withdrawal failed",
				"class_id", record.ClassID, "error", err)
		}
	case models.EnrollmentStatusWaitlisted:
		ok, err := s.enrollments.UpdateStatus(ctx, record.ID, models.EnrollmentStatusWaitlisted, models.EnrollmentStatusDropped, &now)
		if err != nil {
			return nil, appErrors.Persistence(err, "failed to drop enrollment")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "enrollment changed concurrently")
		}
		if _, err := s.waitlist.Remove(ctx, record.ClassID, record.StudentID); err != nil &&
			!errors.Is(err, repository.ErrWaitlistEntryMissing) {
			return nil, appErrors.Persistence(err, "failed to leave waitlist")
		}
		s.invalidateWaitlistCache(ctx, record.ClassID)
	case models.EnrollmentStatusPending:
		ok, err := s.enrollments.UpdateStatus(ctx, record.ID, models.EnrollmentStatusPending, models.EnrollmentStatusDropped, &now)
		if err != nil {
			return nil, appErrors.Persistence(err, "failed to cancel request")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "enrollment changed concurrently")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "enrollment already finalized")
	}

	return &AdmissionResult{
		RecordID:  record.ID,
		StudentID: record.StudentID,
		ClassID:   record.ClassID,
		Status:    models.EnrollmentStatusDropped,
	}, nil
}

// ProcessWaitlist offers freed seats to the lowest-position candidates
// without a live notification. When no seats are free it returns without
// touching the queue.
func (s *EnrollmentService) ProcessWaitlist(ctx context.Context, classID string) error {
	class, err := s.lookupClass(ctx, classID)
	if err != nil {
		return err
	}
	available := class.AvailableSeats()
	if available <= 0 {
		return nil
	}
	if s.cfg.MaxNotifyBatch > 0 && available > s.cfg.MaxNotifyBatch {
		available = s.cfg.MaxNotifyBatch
	}

	now := time.Now().UTC()
	entries, err := s.waitlist.PeekNext(ctx, classID, available, now)
	if err != nil {
		return appErrors.Persistence(err, "failed to peek waitlist")
	}
	if len(entries) == 0 {
		return nil
	}

	expiresAt := now.Add(s.cfg.ResponseWindow)
	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	if err := s.waitlist.MarkNotified(ctx, ids, now, expiresAt); err != nil {
		return appErrors.Persistence(err, "failed to mark notifications")
	}

	s.invalidateWaitlistCache(ctx, classID)
	for _, entry := range entries {
		s.metrics.RecordWaitlistOffer()
		s.notifier.Notify(ctx, entry.StudentID, NotifyWaitlistOffer, map[string]interface{}{
			"class_id":   classID,
			"position":   entry.Position,
			"expires_at": expiresAt,
		})
	}
	return nil
}

// HandleWaitlistResponse consumes a notified candidate's accept or decline.
func (s *EnrollmentService) HandleWaitlistResponse(ctx context.Context, classID string, req WaitlistResponseRequest) (*AdmissionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid waitlist response")
	}

	entry, err := s.waitlist.FindByStudent(ctx, classID, req.StudentID)
	if err != nil {
		if errors.Is(err, repository.ErrWaitlistEntryMissing) {
			return nil, appErrors.ErrWaitlistEntryNotFound
		}
		return nil, appErrors.Persistence(err, "failed to load waitlist entry")
	}
	if !entry.Notified() || entry.Responded {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "no active seat offer to respond to")
	}

	// Claim the answer before touching the seat counter. The conditional
	// update loses to a concurrent expiry sweep, so a response that arrives
	// after the sweep claimed the entry is turned away instead of racing it.
	response := models.WaitlistResponse(req.Response)
	claimed, err := s.waitlist.ClaimResponse(ctx, entry.ID, response)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to record waitlist response")
	}
	if !claimed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "no active seat offer to respond to")
	}

	if response == models.WaitlistResponseAccept {
		return s.acceptOffer(ctx, entry)
	}
	return s.declineOffer(ctx, entry)
}

func (s *EnrollmentService) acceptOffer(ctx context.Context, entry *models.WaitlistEntry) (*AdmissionResult, error) {
	granted, err := s.ledger.TryReserveSeat(ctx, entry.ClassID)
	if err != nil {
		s.reopenOffer(ctx, entry)
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrClassNotFound
		}
		return nil, appErrors.Persistence(err, "failed to reserve seat")
	}
	if !granted {
		// Another acceptance raced ahead. Reopen the offer so the entry
		// is eligible for the next promotion cycle.
		s.reopenOffer(ctx, entry)
		s.metrics.RecordSeatConflict()
		s.invalidateWaitlistCache(ctx, entry.ClassID)
		return nil, appErrors.ErrClassFull
	}

	if _, err := s.waitlist.Remove(ctx, entry.ClassID, entry.StudentID); err != nil {
		s.releaseSeat(ctx, entry.ClassID)
		s.reopenOffer(ctx, entry)
		return nil, appErrors.Persistence(err, "failed to leave waitlist")
	}

	now := time.Now().UTC()
	result := &AdmissionResult{
		StudentID: entry.StudentID,
		ClassID:   entry.ClassID,
		Status:    models.EnrollmentStatusEnrolled,
	}
	record, err := s.enrollments.FindActive(ctx, entry.StudentID, entry.ClassID)
	switch {
	case err == sql.ErrNoRows:
		record = &models.EnrollmentRecord{
			StudentID:   entry.StudentID,
			ClassID:     entry.ClassID,
			Status:      models.EnrollmentStatusEnrolled,
			RequestedAt: entry.AddedAt,
			DecidedAt:   &now,
		}
		if err := s.enrollments.Create(ctx, record); err != nil {
			s.releaseSeat(ctx, entry.ClassID)
			return nil, appErrors.Persistence(err, "failed to create enrollment record")
		}
	case err != nil:
		s.releaseSeat(ctx, entry.ClassID)
		return nil, appErrors.Persistence(err, "failed to load enrollment record")
	default:
		ok, err := s.enrollments.UpdateStatus(ctx, record.ID, record.Status, models.EnrollmentStatusEnrolled, &now)
		if err != nil {
			s.releaseSeat(ctx, entry.ClassID)
			return nil, appErrors.Persistence(err, "failed to update enrollment record")
		}
		if !ok {
			s.releaseSeat(ctx, entry.ClassID)
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "enrollment changed concurrently")
		}
	}
	result.RecordID = record.ID

	s.invalidateWaitlistCache(ctx, entry.ClassID)
	s.metrics.RecordAdmissionOutcome("enrolled")
	s.notifier.Notify(ctx, entry.StudentID, NotifyEnrollmentConfirmed, map[string]interface{}{
		"class_id": entry.ClassID,
	})
	return result, nil
}

// reopenOffer reverts a claimed response, putting the entry back in plain
// waiting state. Best effort: a failure here self-heals on the next sweep.
func (s *EnrollmentService) reopenOffer(ctx context.Context, entry *models.WaitlistEntry) {
	if err := s.waitlist.ClearNotification(ctx, entry.ID); err != nil {
		s.logger.Sugar().Errorw("failed to reopen waitlist offer",
			"entry_id", entry.ID, "error", err)
	}
}

// releaseSeat rolls back a reservation after a downstream failure so the
// counter stays truthful.
func (s *EnrollmentService) releaseSeat(ctx context.Context, classID string) {
	if err := s.ledger.ReleaseSeat(ctx, classID); err != nil && err != sql.ErrNoRows {
		s.logger.Sugar().Errorw("failed to release seat after acceptance error",
			"class_id", classID, "error", err)
	}
}

func (s *EnrollmentService) declineOffer(ctx context.Context, entry *models.WaitlistEntry) (*AdmissionResult, error) {
	if _, err := s.waitlist.Remove(ctx, entry.ClassID, entry.StudentID); err != nil {
		s.reopenOffer(ctx, entry)
		return nil, appErrors.Persistence(err, "failed to leave waitlist")
	}

	now := time.Now().UTC()
	result := &AdmissionResult{
		StudentID: entry.StudentID,
		ClassID:   entry.ClassID,
		Status:    models.EnrollmentStatusDropped,
	}
	record, err := s.enrollments.FindActive(ctx, entry.StudentID, entry.ClassID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Persistence(err, "failed to load enrollment record")
	}
	if record != nil {
		if _, err := s.enrollments.UpdateStatus(ctx, record.ID, record.Status, models.EnrollmentStatusDropped, &now); err != nil {
			return nil, appErrors.Persistence(err, "failed to update enrollment record")
		}
		result.RecordID = record.ID
	}

	s.invalidateWaitlistCache(ctx, entry.ClassID)
	s.notifier.Notify(ctx, entry.StudentID, NotifyWaitlistRemoved, map[string]interface{}{
		"class_id": entry.ClassID,
	})
	// The declined offer frees a notification slot; offer the seat to the
	// next candidate right away.
	if err := s.ProcessWaitlist(ctx, entry.ClassID); err != nil {
		s.logger.Sugar().Warnw("promotion after decline failed",
			"class_id", entry.ClassID, "error", err)
	}
	return result, nil
}

// BulkEnroll applies RequestEnrollment per student. Outcomes are
// independent: one failure never blocks or rolls back the others.
func (s *EnrollmentService) BulkEnroll(ctx context.Context, req BulkEnrollRequest) (*BulkEnrollSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk enrollment request")
	}

	summary := &BulkEnrollSummary{Outcomes: make([]BulkOutcome, 0, len(req.StudentIDs))}
	for _, studentID := range req.StudentIDs {
		summary.TotalProcessed++
		result, err := s.RequestEnrollment(ctx, RequestEnrollmentRequest{
			StudentID: studentID,
			ClassID:   req.ClassID,
		})
		if err != nil {
			summary.Summary.Rejected++
			summary.Outcomes = append(summary.Outcomes, BulkOutcome{
				StudentID: studentID,
				Error:     appErrors.FromError(err),
			})
			continue
		}
		outcome := BulkOutcome{StudentID: studentID, Status: result.Status, Position: result.Position}
		switch result.Status {
		case models.EnrollmentStatusEnrolled:
			summary.Summary.Enrolled++
			summary.Successful++
		case models.EnrollmentStatusWaitlisted:
			summary.Summary.Waitlisted++
			summary.Successful++
		case models.EnrollmentStatusPending:
			summary.Summary.Pending++
			summary.Successful++
		default:
			summary.Summary.Rejected++
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
	}
	return summary, nil
}

// SeatSummary returns the capacity view for dashboards.
func (s *EnrollmentService) SeatSummary(ctx context.Context, classID string) (*models.SeatSummary, error) {
	summary, err := s.ledger.SeatSummary(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrClassNotFound
		}
		return nil, appErrors.Persistence(err, "failed to load seat summary")
	}
	return summary, nil
}

func (s *EnrollmentService) routeToApproval(ctx context.Context, req RequestEnrollmentRequest, note string) (*AdmissionResult, error) {
	record := &models.EnrollmentRecord{
		StudentID:   req.StudentID,
		ClassID:     req.ClassID,
		Status:      models.EnrollmentStatusPending,
		RequestedAt: time.Now().UTC(),
	}
	if req.Justification != "" {
		record.Justification = &req.Justification
	}
	if err := s.enrollments.Create(ctx, record); err != nil {
		return nil, appErrors.Persistence(err, "failed to create pending request")
	}
	s.metrics.RecordAdmissionOutcome("pending")
	s.notifier.Notify(ctx, req.StudentID, NotifyApprovalPending, map[string]interface{}{
		"class_id": req.ClassID,
	})
	return &AdmissionResult{
		RecordID:  record.ID,
		StudentID: req.StudentID,
		ClassID:   req.ClassID,
		Status:    models.EnrollmentStatusPending,
		Note:      note,
	}, nil
}

func (s *EnrollmentService) rejectOutright(ctx context.Context, req RequestEnrollmentRequest, note string) (*AdmissionResult, error) {
	now := time.Now().UTC()
	record := &models.EnrollmentRecord{
		StudentID:   req.StudentID,
		ClassID:     req.ClassID,
		Status:      models.EnrollmentStatusRejected,
		RequestedAt: now,
		DecidedAt:   &now,
	}
	if err := s.enrollments.Create(ctx, record); err != nil {
		return nil, appErrors.Persistence(err, "failed to create enrollment record")
	}
	s.metrics.RecordAdmissionOutcome("rejected")
	s.notifier.Notify(ctx, req.StudentID, NotifyEnrollmentRejected, map[string]interface{}{
		"class_id": req.ClassID,
		"reason":   note,
	})
	return &AdmissionResult{
		RecordID:  record.ID,
		StudentID: req.StudentID,
		ClassID:   req.ClassID,
		Status:    models.EnrollmentStatusRejected,
		Note:      note,
	}, nil
}

func (s *EnrollmentService) lookupClass(ctx context.Context, classID string) (*models.ClassOffering, error) {
	class, err := s.ledger.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrClassNotFound
		}
		return nil, appErrors.Persistence(err, "failed to load class")
	}
	return class, nil
}

func (s *EnrollmentService) invalidateWaitlistCache(ctx context.Context, classID string) {
	if s.caches == nil {
		return
	}
	if err := s.caches.DeleteByPattern(ctx, fmt.Sprintf("waitlist:%s:*", classID)); err != nil {
		s.logger.Sugar().Warnw("waitlist cache invalidation failed", "class_id", classID, "error", err)
	}
}
