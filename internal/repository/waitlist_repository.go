package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ScepterCode/class-admission-api/internal/models"
)

// Sentinel errors surfaced to the service layer, which maps them onto the
// public taxonomy.
var (
	ErrDuplicateWaitlistEntry  = errors.New("waitlist entry already exists")
	ErrWaitlistCapacityReached = errors.New("waitlist capacity reached")
	ErrWaitlistEntryMissing    = errors.New("waitlist entry missing")
)

const waitlistColumns = `id, class_id, student_id, position, priority, added_at, notified_at, notification_expires_at, responded, response`

// WaitlistRepository persists the ordered queue of waiting candidates.
// Every mutation runs inside a transaction that first locks the class row,
// so position assignment and reflow are serialized per class while distinct
// classes never contend.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository constructs the repository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

// Insert adds a candidate and assigns its rank: above all entries with
// lower priority, below same-priority entries that arrived earlier.
// Trailing entries shift down by one in the same transaction.
func (r *WaitlistRepository) Insert(ctx context.Context, classID, studentID string, priority int) (*models.WaitlistEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin waitlist insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var waitlistCapacity int
	if err := tx.GetContext(ctx, &waitlistCapacity,
		`SELECT waitlist_capacity FROM class_offerings WHERE id = $1 FOR UPDATE`, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("lock class: %w", err)
	}

	var exists int
	err = tx.GetContext(ctx, &exists,
		`SELECT 1 FROM waitlist_entries WHERE class_id = $1 AND student_id = $2 LIMIT 1`, classID, studentID)
	if err == nil {
		return nil, ErrDuplicateWaitlistEntry
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check waitlist entry: %w", err)
	}

	var total int
	if err := tx.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM waitlist_entries WHERE class_id = $1`, classID); err != nil {
		return nil, fmt.Errorf("count waitlist: %w", err)
	}
	if waitlistCapacity > 0 && total >= waitlistCapacity {
		return nil, ErrWaitlistCapacityReached
	}

	addedAt := time.Now().UTC()
	var ahead int
	if err := tx.GetContext(ctx, &ahead,
		`SELECT COUNT(*) FROM waitlist_entries
         WHERE class_id = $1 AND (priority > $2 OR (priority = $2 AND added_at < $3))`,
		classID, priority, addedAt); err != nil {
		return nil, fmt.Errorf("rank waitlist entry: %w", err)
	}
	position := ahead + 1

	if _, err := tx.ExecContext(ctx,
		`UPDATE waitlist_entries SET position = position + 1 WHERE class_id = $1 AND position >= $2`,
		classID, position); err != nil {
		return nil, fmt.Errorf("shift waitlist positions: %w", err)
	}

	entry := &models.WaitlistEntry{
		ID:        uuid.NewString(),
		ClassID:   classID,
		StudentID: studentID,
		Position:  position,
		Priority:  priority,
		AddedAt:   addedAt,
	}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO waitlist_entries (id, class_id, student_id, position, priority, added_at, responded)
         VALUES (:id, :class_id, :student_id, :position, :priority, :added_at, :responded)`, entry); err != nil {
		return nil, fmt.Errorf("insert waitlist entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit waitlist insert: %w", err)
	}
	return entry, nil
}

// Remove deletes the entry and reflows every trailing position down by one
// as a single batch; intermediate states are never visible.
func (r *WaitlistRepository) Remove(ctx context.Context, classID, studentID string) (*models.WaitlistEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin waitlist remove: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var one int
	if err := tx.GetContext(ctx, &one,
		`SELECT 1 FROM class_offerings WHERE id = $1 FOR UPDATE`, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("lock class: %w", err)
	}

	var entry models.WaitlistEntry
	err = tx.GetContext(ctx, &entry,
		fmt.Sprintf(`SELECT %s FROM waitlist_entries WHERE class_id = $1 AND student_id = $2`, waitlistColumns),
		classID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrWaitlistEntryMissing
		}
		return nil, fmt.Errorf("load waitlist entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM waitlist_entries WHERE id = $1`, entry.ID); err != nil {
		return nil, fmt.Errorf("delete waitlist entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE waitlist_entries SET position = position - 1 WHERE class_id = $1 AND position > $2`,
		classID, entry.Position); err != nil {
		return nil, fmt.Errorf("reflow waitlist positions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit waitlist remove: %w", err)
	}
	return &entry, nil
}

// PeekNext returns the n lowest-position entries that hold no live offer.
func (r *WaitlistRepository) PeekNext(ctx context.Context, classID string, n int, now time.Time) ([]models.WaitlistEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM waitlist_entries
        WHERE class_id = $1 AND responded = false
          AND (notified_at IS NULL OR notification_expires_at <= $2)
        ORDER BY position ASC LIMIT $3`, waitlistColumns)
	var entries []models.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID, now, n); err != nil {
		return nil, fmt.Errorf("peek waitlist: %w", err)
	}
	return entries, nil
}

// MarkNotified stamps the offer window on the given entries.
func (r *WaitlistRepository) MarkNotified(ctx context.Context, ids []string, notifiedAt, expiresAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := []interface{}{notifiedAt, expiresAt}
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, id)
	}
	query := fmt.Sprintf(
		`UPDATE waitlist_entries SET notified_at = $1, notification_expires_at = $2 WHERE id IN (%s)`,
		strings.Join(placeholders, ","))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// ClearNotification resets the offer window, returning the entry to plain
// waiting state after a lost seat race. The response fields clear with the
// timestamps so a reverted claim does not leave the entry answered.
func (r *WaitlistRepository) ClearNotification(ctx context.Context, id string) error {
	const query = `UPDATE waitlist_entries
        SET notified_at = NULL, notification_expires_at = NULL, responded = false, response = NULL
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("clear notification: %w", err)
	}
	return nil
}

// ClaimResponse records a student's answer to an open offer. The update is
// conditional on the entry still holding an unanswered notification, which
// serializes it against ClaimExpired: whichever side commits first wins and
// the other sees zero rows.
func (r *WaitlistRepository) ClaimResponse(ctx context.Context, id string, response models.WaitlistResponse) (bool, error) {
	const query = `UPDATE waitlist_entries
        SET responded = true, response = $2
        WHERE id = $1 AND notified_at IS NOT NULL AND responded = false`
	res, err := r.db.ExecContext(ctx, query, id, response)
	if err != nil {
		return false, fmt.Errorf("claim waitlist response: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim waitlist response: %w", err)
	}
	return affected == 1, nil
}

// ClaimExpired marks every unanswered offer past the cutoff as no_response
// and returns the claimed rows. The conditional update makes concurrent
// sweeps safe: a row is claimed exactly once.
func (r *WaitlistRepository) ClaimExpired(ctx context.Context, cutoff time.Time) ([]models.WaitlistEntry, error) {
	query := fmt.Sprintf(`UPDATE waitlist_entries
        SET responded = true, response = $1
        WHERE notified_at IS NOT NULL AND notification_expires_at < $2 AND responded = false
        RETURNING %s`, waitlistColumns)
	var claimed []models.WaitlistEntry
	if err := r.db.SelectContext(ctx, &claimed, query, models.WaitlistResponseNoResponse, cutoff); err != nil {
		return nil, fmt.Errorf("claim expired notifications: %w", err)
	}
	return claimed, nil
}

// FindByStudent returns a student's entry for a class.
func (r *WaitlistRepository) FindByStudent(ctx context.Context, classID, studentID string) (*models.WaitlistEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM waitlist_entries WHERE class_id = $1 AND student_id = $2`, waitlistColumns)
	var entry models.WaitlistEntry
	if err := r.db.GetContext(ctx, &entry, query, classID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrWaitlistEntryMissing
		}
		return nil, fmt.Errorf("find waitlist entry: %w", err)
	}
	return &entry, nil
}

// CountByClass returns the waitlist depth for a class.
func (r *WaitlistRepository) CountByClass(ctx context.Context, classID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM waitlist_entries WHERE class_id = $1`, classID); err != nil {
		return 0, fmt.Errorf("count waitlist: %w", err)
	}
	return total, nil
}

// ListByClass returns the full queue for a class ordered by position.
func (r *WaitlistRepository) ListByClass(ctx context.Context, classID string) ([]models.WaitlistEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM waitlist_entries WHERE class_id = $1 ORDER BY position ASC`, waitlistColumns)
	var entries []models.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID); err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}
