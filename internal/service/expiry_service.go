package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ScepterCode/class-admission-api/internal/models"
	"github.com/ScepterCode/class-admission-api/internal/repository"
	appErrors "github.com/ScepterCode/class-admission-api/pkg/errors"
)

// promoter is the slice of the admission engine the sweeper needs once
// expired candidates have been dropped.
type promoter interface {
	ProcessWaitlist(ctx context.Context, classID string) error
}

// ExpiryService sweeps lapsed seat offers. Claiming marks the entries
// responded in the same statement that selects them, so two concurrent
// sweeps never process the same entry twice.
type ExpiryService struct {
	waitlist    waitlistStore
	enrollments enrollmentStore
	engine      promoter
	notifier    Notifier
	metrics     *MetricsService
	logger      *zap.Logger
	interval    time.Duration
}

// NewExpiryService constructs the sweeper.
func NewExpiryService(waitlist waitlistStore, enrollments enrollmentStore, engine promoter, notifier Notifier, metrics *MetricsService, interval time.Duration, logger *zap.Logger) *ExpiryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ExpiryService{
		waitlist:    waitlist,
		enrollments: enrollments,
		engine:      engine,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
		interval:    interval,
	}
}

// ProcessExpired claims every lapsed offer, removes the candidates from
// their queues, and promotes the next candidates in affected classes.
// Returns the number of entries expired.
func (s *ExpiryService) ProcessExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	claimed, err := s.waitlist.ClaimExpired(ctx, now)
	if err != nil {
		return 0, appErrors.Persistence(err, "failed to claim expired offers")
	}
	s.metrics.RecordSweepRun()
	if len(claimed) == 0 {
		return 0, nil
	}

	affected := make(map[string]struct{}, len(claimed))
	for _, entry := range claimed {
		if _, err := s.waitlist.Remove(ctx, entry.ClassID, entry.StudentID); err != nil &&
			!errors.Is(err, repository.ErrWaitlistEntryMissing) {
			s.logger.Sugar().Errorw("failed to remove expired entry",
				"class_id", entry.ClassID, "student_id", entry.StudentID, "error", err)
			continue
		}
		affected[entry.ClassID] = struct{}{}

		record, err := s.enrollments.FindActive(ctx, entry.StudentID, entry.ClassID)
		if err != nil && err != sql.ErrNoRows {
			s.logger.Sugar().Errorw("failed to load record for expired entry",
				"class_id", entry.ClassID, "student_id", entry.StudentID, "error", err)
		} else if record != nil {
			// Only drop records still waiting. A student whose acceptance
			// landed between the claim and this point keeps their seat.
			decidedAt := now
			ok, err := s.enrollments.UpdateStatus(ctx, record.ID, models.EnrollmentStatusWaitlisted, models.EnrollmentStatusDropped, &decidedAt)
			if err != nil {
				s.logger.Sugar().Errorw("failed to drop record for expired entry",
					"record_id", record.ID, "error", err)
			} else if !ok {
				s.logger.Sugar().Infow("expired entry record already moved on",
					"record_id", record.ID, "status", record.Status)
			}
		}

		s.metrics.RecordExpiredNotification()
		s.notifier.Notify(ctx, entry.StudentID, NotifyWaitlistExpired, map[string]interface{}{
			"class_id": entry.ClassID,
		})
	}

	for classID := range affected {
		if err := s.engine.ProcessWaitlist(ctx, classID); err != nil {
			s.logger.Sugar().Warnw("promotion after expiry failed",
				"class_id", classID, "error", err)
		}
	}

	s.logger.Sugar().Infow("expired offers swept", "expired", len(claimed), "classes", len(affected))
	return len(claimed), nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *ExpiryService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Sugar().Infow("expiry sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Sugar().Infow("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.ProcessExpired(ctx); err != nil {
				s.logger.Sugar().Errorw("expiry sweep failed", "error", err)
			}
		}
	}
}
