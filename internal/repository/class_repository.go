package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ScepterCode/class-admission-api/internal/models"
)

// ClassRepository is the capacity ledger. It owns the authoritative seat
// counter for every class offering; current_enrollment is only ever moved
// through the conditional updates below.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class offering by its ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassOffering, error) {
	const query = `SELECT id, name, capacity, current_enrollment, waitlist_capacity, enrollment_type, created_at, updated_at
        FROM class_offerings WHERE id = $1`
	var class models.ClassOffering
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// TryReserveSeat atomically claims one seat. The guard and the increment
// run in a single UPDATE so concurrent callers can never push
// current_enrollment past capacity.
func (r *ClassRepository) TryReserveSeat(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE class_offerings
        SET current_enrollment = current_enrollment + 1, updated_at = NOW()
        WHERE id = $1 AND current_enrollment < capacity`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("reserve seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve seat result: %w", err)
	}
	if affected == 1 {
		return true, nil
	}
	// No row moved: either the class is full or it does not exist.
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM class_offerings WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return false, sql.ErrNoRows
		}
		return false, fmt.Errorf("check class: %w", err)
	}
	return false, nil
}

// ReleaseSeat atomically frees one seat, floored at zero.
func (r *ClassRepository) ReleaseSeat(ctx context.Context, id string) error {
	const query = `UPDATE class_offerings
        SET current_enrollment = current_enrollment - 1, updated_at = NOW()
        WHERE id = $1 AND current_enrollment > 0`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release seat result: %w", err)
	}
	if affected == 1 {
		return nil
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM class_offerings WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		return fmt.Errorf("check class: %w", err)
	}
	// Counter already at zero; releasing is a no-op.
	return nil
}

// SeatSummary returns the capacity view joined with the waitlist depth.
func (r *ClassRepository) SeatSummary(ctx context.Context, id string) (*models.SeatSummary, error) {
	const query = `SELECT c.id AS class_id, c.name AS class_name, c.capacity,
        c.current_enrollment AS enrolled,
        GREATEST(c.capacity - c.current_enrollment, 0) AS available,
        (SELECT COUNT(*) FROM waitlist_entries w WHERE w.class_id = c.id) AS waitlisted
        FROM class_offerings c WHERE c.id = $1`
	var summary models.SeatSummary
	if err := r.db.GetContext(ctx, &summary, query, id); err != nil {
		return nil, err
	}
	return &summary, nil
}
