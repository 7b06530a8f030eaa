package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ScepterCode/class-admission-api/pkg/jobs"
)

// Notification kinds emitted by the admission flow. Template rendering and
// channel selection happen downstream; the core only names the event.
const (
	NotifyEnrollmentConfirmed = "enrollment_confirmed"
	NotifyWaitlisted          = "waitlisted"
	NotifyWaitlistOffer       = "waitlist_offer"
	NotifyWaitlistExpired     = "waitlist_expired"
	NotifyWaitlistRemoved     = "waitlist_removed"
	NotifyApprovalPending     = "approval_pending"
	NotifyEnrollmentApproved  = "enrollment_approved"
	NotifyEnrollmentRejected  = "enrollment_rejected"
)

// Notifier dispatches fire-and-forget notifications. Delivery failure must
// never roll back a committed state transition, so implementations do not
// return errors to the caller.
type Notifier interface {
	Notify(ctx context.Context, recipientID, kind string, payload map[string]interface{})
}

// NotificationSender delivers a single notification. The production
// binding is an external email/push collaborator; LogSender is the default.
type NotificationSender interface {
	Send(ctx context.Context, recipientID, kind string, payload map[string]interface{}) error
}

// LogSender records notifications in the log stream. It stands in when no
// delivery collaborator is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements NotificationSender.
func (s *LogSender) Send(_ context.Context, recipientID, kind string, payload map[string]interface{}) error {
	s.logger.Sugar().Infow("notification", "recipient", recipientID, "kind", kind, "payload", payload)
	return nil
}

type notificationJob struct {
	RecipientID string
	Kind        string
	Payload     map[string]interface{}
}

// QueueNotifier dispatches notifications through an in-memory worker queue
// so admission paths never block on delivery.
type QueueNotifier struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// QueueNotifierConfig sizes the dispatch pool.
type QueueNotifierConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

// NewQueueNotifier constructs a QueueNotifier backed by the given sender.
func NewQueueNotifier(sender NotificationSender, cfg QueueNotifierConfig, logger *zap.Logger) *QueueNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = NewLogSender(logger)
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(notificationJob)
		if !ok {
			logger.Sugar().Errorw("notification job with unexpected payload", "job_id", job.ID)
			return nil
		}
		return sender.Send(ctx, payload.RecipientID, payload.Kind, payload.Payload)
	}
	queue := jobs.NewQueue("notifications", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logger,
	})
	return &QueueNotifier{queue: queue, logger: logger}
}

// Start launches the dispatch workers.
func (n *QueueNotifier) Start(ctx context.Context) {
	n.queue.Start(ctx)
}

// Stop drains the workers.
func (n *QueueNotifier) Stop() {
	n.queue.Stop()
}

// Notify implements Notifier.
func (n *QueueNotifier) Notify(_ context.Context, recipientID, kind string, payload map[string]interface{}) {
	err := n.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    kind,
		Payload: notificationJob{RecipientID: recipientID, Kind: kind, Payload: payload},
	})
	if err != nil {
		n.logger.Sugar().Warnw("notification dropped", "recipient", recipientID, "kind", kind, "error", err)
	}
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, string, string, map[string]interface{}) {}
