package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ScepterCode/class-admission-api/internal/models"
	"github.com/ScepterCode/class-admission-api/internal/repository"
	appErrors "github.com/ScepterCode/class-admission-api/pkg/errors"
)

// probability bands for waitlist positions, front-loaded so the head of
// the queue reads near-certain and the tail reads unlikely.
const (
	probFloor = 0.08
)

// EstimateProbability maps a waitlist position to an estimated chance of
// eventually receiving a seat. Strictly decreasing in position down to a
// small floor.
func EstimateProbability(position int) float64 {
	switch {
	case position <= 0:
		return 0
	case position == 1:
		return 0.95
	case position == 2:
		return 0.90
	case position == 3:
		return 0.85
	case position <= 10:
		return 0.78 - 0.08*float64(position-4)
	case position <= 15:
		return 0.26 - 0.03*float64(position-11)
	default:
		return probFloor
	}
}

// AddToWaitlistRequest joins a student to a class waitlist directly.
type AddToWaitlistRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Priority  int    `json:"priority" validate:"gte=0"`
}

// WaitlistService exposes queue reads and direct queue membership
// operations. Admission-driven queue writes live in EnrollmentService.
type WaitlistService struct {
	waitlist  waitlistStore
	caches    snapshotCache
	notifier  Notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewWaitlistService constructs the service.
func NewWaitlistService(waitlist waitlistStore, caches snapshotCache, notifier Notifier, metrics *MetricsService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *WaitlistService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &WaitlistService{
		waitlist:  waitlist,
		caches:    caches,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cacheTTL:  cacheTTL,
	}
}

// Add places a student on a class waitlist outside the admission flow,
// e.g. administrative inserts with a priority boost.
func (s *WaitlistService) Add(ctx context.Context, classID string, req AddToWaitlistRequest) (*models.WaitlistEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid waitlist request")
	}

	entry, err := s.waitlist.Insert(ctx, classID, req.StudentID, req.Priority)
	if err != nil {
		switch {
		case err == repository.ErrDuplicateWaitlistEntry:
			return nil, appErrors.ErrAlreadyWaitlisted
		case err == repository.ErrWaitlistCapacityReached:
			return nil, appErrors.ErrWaitlistFull
		}
		return nil, appErrors.Persistence(err, "failed to join waitlist")
	}

	s.invalidate(ctx, classID)
	s.notifier.Notify(ctx, req.StudentID, NotifyWaitlisted, map[string]interface{}{
		"class_id": classID,
		"position": entry.Position,
	})
	return entry, nil
}

// Remove takes a student off a class waitlist and closes up the gap.
func (s *WaitlistService) Remove(ctx context.Context, classID, studentID string) error {
	entry, err := s.waitlist.Remove(ctx, classID, studentID)
	if err != nil {
		if err == repository.ErrWaitlistEntryMissing {
			return appErrors.ErrWaitlistEntryNotFound
		}
		return appErrors.Persistence(err, "failed to leave waitlist")
	}

	s.invalidate(ctx, classID)
	s.notifier.Notify(ctx, studentID, NotifyWaitlistRemoved, map[string]interface{}{
		"class_id": classID,
		"position": entry.Position,
	})
	return nil
}

// Status returns the student's queue snapshot, cache-first. Position reads
// are the hot path during registration windows.
func (s *WaitlistService) Status(ctx context.Context, classID, studentID string) (*models.WaitlistStatus, error) {
	cacheKey := fmt.Sprintf("waitlist:%s:%s", classID, studentID)
	if s.caches != nil {
		var cached models.WaitlistStatus
		if err := s.caches.Get(ctx, cacheKey, &cached); err == nil {
			s.metrics.RecordCacheHit()
			return &cached, nil
		}
		s.metrics.RecordCacheMiss()
	}

	entry, err := s.waitlist.FindByStudent(ctx, classID, studentID)
	if err != nil {
		if err == repository.ErrWaitlistEntryMissing {
			return nil, appErrors.ErrWaitlistEntryNotFound
		}
		return nil, appErrors.Persistence(err, "failed to load waitlist entry")
	}
	total, err := s.waitlist.CountByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to count waitlist")
	}

	status := &models.WaitlistStatus{
		ClassID:     classID,
		StudentID:   studentID,
		Position:    entry.Position,
		Total:       total,
		Probability: EstimateProbability(entry.Position),
	}
	if entry.OfferLive(time.Now().UTC()) {
		status.NotifiedAt = entry.NotifiedAt
		status.ExpiresAt = entry.NotificationExpiresAt
	}

	if s.caches != nil {
		if err := s.caches.Set(ctx, cacheKey, status, s.cacheTTL); err != nil {
			s.logger.Sugar().Warnw("failed to cache waitlist status", "key", cacheKey, "error", err)
		}
	}
	return status, nil
}

// Roster lists a class waitlist in queue order.
func (s *WaitlistService) Roster(ctx context.Context, classID string) ([]models.WaitlistEntry, error) {
	entries, err := s.waitlist.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Persistence(err, "failed to list waitlist")
	}
	return entries, nil
}

func (s *WaitlistService) invalidate(ctx context.Context, classID string) {
	if s.caches == nil {
		return
	}
	if err := s.caches.DeleteByPattern(ctx, fmt.Sprintf("waitlist:%s:*", classID)); err != nil {
		s.logger.Sugar().Warnw("waitlist cache invalidation failed", "class_id", classID, "error", err)
	}
}
