package models

import "time"

// WaitlistResponse is a notified candidate's answer to a seat offer.
type WaitlistResponse string

// Possible responses.
const (
	WaitlistResponseAccept     WaitlistResponse = "accept"
	WaitlistResponseDecline    WaitlistResponse = "decline"
	WaitlistResponseNoResponse WaitlistResponse = "no_response"
)

// WaitlistEntry is one waiting candidate. Positions per class are a
// contiguous 1..N sequence ordered by (priority desc, added_at asc).
// NotifiedAt and NotificationExpiresAt are either both set or both nil.
type WaitlistEntry struct {
	ID                    string            `db:"id" json:"id"`
	ClassID               string            `db:"class_id" json:"class_id"`
	StudentID             string            `db:"student_id" json:"student_id"`
	Position              int               `db:"position" json:"position"`
	Priority              int               `db:"priority" json:"priority"`
	AddedAt               time.Time         `db:"added_at" json:"added_at"`
	NotifiedAt            *time.Time        `db:"notified_at" json:"notified_at,omitempty"`
	NotificationExpiresAt *time.Time        `db:"notification_expires_at" json:"notification_expires_at,omitempty"`
	Responded             bool              `db:"responded" json:"responded"`
	Response              *WaitlistResponse `db:"response" json:"response,omitempty"`
}

// Notified reports whether the entry currently holds a seat offer.
func (e *WaitlistEntry) Notified() bool {
	return e.NotifiedAt != nil && e.NotificationExpiresAt != nil
}

// OfferLive reports whether the entry holds an unexpired, unanswered offer.
func (e *WaitlistEntry) OfferLive(now time.Time) bool {
	return e.Notified() && !e.Responded && now.Before(*e.NotificationExpiresAt)
}

// WaitlistStatus is the read-side snapshot served to students.
type WaitlistStatus struct {
	ClassID     string     `json:"class_id"`
	StudentID   string     `json:"student_id"`
	Position    int        `json:"position"`
	Total       int        `json:"total"`
	Probability float64    `json:"probability"`
	NotifiedAt  *time.Time `json:"notified_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}
