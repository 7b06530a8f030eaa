package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ScepterCode/class-admission-api/internal/models"
	appErrors "github.com/ScepterCode/class-admission-api/pkg/errors"
)

// seater is the slice of the admission engine the approval flow needs:
// re-running the capacity check once a reviewer signs off.
type seater interface {
	SeatApproved(ctx context.Context, record *models.EnrollmentRecord, approverID, notes string) (*AdmissionResult, error)
}

// ReviewRequest carries a reviewer's decision on a pending request.
type ReviewRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required"`
	Notes      string `json:"notes"`
}

// ApprovalService handles the manual review queue for restricted classes
// and risk-flagged requests.
type ApprovalService struct {
	enrollments enrollmentStore
	engine      seater
	notifier    Notifier
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewApprovalService constructs the service.
func NewApprovalService(enrollments enrollmentStore, engine seater, notifier Notifier, validate *validator.Validate, logger *zap.Logger) *ApprovalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ApprovalService{
		enrollments: enrollments,
		engine:      engine,
		notifier:    notifier,
		validator:   validate,
		logger:      logger,
	}
}

// ListPending returns requests awaiting review, oldest first. An empty
// classID lists across all classes.
func (s *ApprovalService) ListPending(ctx context.Context, classID string) ([]models.EnrollmentRecord, error) {
	records, err := s.enrollments.ListPending(ctx, classID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list pending requests")
	}
	return records, nil
}

// Approve grants a pending request. Approval does not bypass capacity:
// the engine re-runs the seat check and the student may land on the
// waitlist if the class filled during review.
func (s *ApprovalService) Approve(ctx context.Context, recordID string, req ReviewRequest) (*AdmissionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review request")
	}

	record, err := s.loadPending(ctx, recordID)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.SeatApproved(ctx, record, req.ReviewerID, req.Notes)
	if err != nil {
		return nil, err
	}
	s.logger.Sugar().Infow("enrollment request approved",
		"record_id", recordID, "reviewer_id", req.ReviewerID, "outcome", result.Status)
	return result, nil
}

// Reject denies a pending request with the reviewer's notes.
func (s *ApprovalService) Reject(ctx context.Context, recordID string, req ReviewRequest) (*AdmissionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review request")
	}

	record, err := s.loadPending(ctx, recordID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.enrollments.UpdateReview(ctx, record.ID, models.EnrollmentStatusRejected, req.ReviewerID, req.Notes, now); err != nil {
		return nil, appErrors.Persistence(err, "failed to record rejection")
	}

	s.notifier.Notify(ctx, record.StudentID, NotifyEnrollmentRejected, map[string]interface{}{
		"class_id": record.ClassID,
		"reason":   req.Notes,
	})
	s.logger.Sugar().Infow("enrollment request rejected",
		"record_id", recordID, "reviewer_id", req.ReviewerID)
	return &AdmissionResult{
		RecordID:  record.ID,
		StudentID: record.StudentID,
		ClassID:   record.ClassID,
		Status:    models.EnrollmentStatusRejected,
		Note:      req.Notes,
	}, nil
}

func (s *ApprovalService) loadPending(ctx context.Context, recordID string) (*models.EnrollmentRecord, error) {
	record, err := s.enrollments.FindByID(ctx, recordID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment record not found")
		}
		return nil, appErrors.Persistence(err, "failed to load enrollment record")
	}
	if record.Status != models.EnrollmentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "enrollment request is not pending review")
	}
	return record, nil
}
