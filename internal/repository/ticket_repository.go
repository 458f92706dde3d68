package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/ticket-booking/internal/model"
)

// TicketRepo persists sold tickets.  Uniqueness of (event_id, seat_id) is
// enforced by the table itself; Create reports a violation as
// ErrDuplicateTicket.
type TicketRepo struct {
	db *sql.DB
}

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// ExistsForEventAndSeat reports whether the seat already has a ticket.
func (r *TicketRepo) ExistsForEventAndSeat(ctx context.Context, eventID, seatID uint64) (bool, error) {
	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tickets WHERE event_id = ? AND seat_id = ?)`,
		eventID, seatID).Scan(&exists)
	if err != nil {
		return false, storageErr(err)
	}
	return exists, nil
}

// Create inserts the ticket and populates its ID.
func (r *TicketRepo) Create(ctx context.Context, t *model.Ticket) error {
	const q = `INSERT INTO tickets (event_id, seat_id, seat_label, user_id, purchased_at, reminder_sent)
	           VALUES (?, ?, ?, ?, ?, ?)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q,
		t.EventID, nullUint(t.SeatID), t.SeatLabel, nullUint(t.UserID), t.PurchasedAt.UTC(), t.ReminderSent)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: event %d seat %s", ErrDuplicateTicket, t.EventID, t.SeatLabel)
		}
		return storageErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

const ticketColumns = `t.id, t.event_id, t.seat_id, t.seat_label, t.user_id, t.purchased_at, t.reminder_sent`

func scanTicket(dest *model.Ticket, extra ...any) []any {
	return append([]any{&dest.ID, &dest.EventID, nullUintScanner{&dest.SeatID}, &dest.SeatLabel,
		nullUintScanner{&dest.UserID}, &dest.PurchasedAt, &dest.ReminderSent}, extra...)
}

// ListByEvent returns every ticket of the event.
func (r *TicketRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Ticket, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets t WHERE t.event_id = ? ORDER BY t.id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(scanTicket(&t)...); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListByUser returns the user's tickets with their event, newest first.
func (r *TicketRepo) ListByUser(ctx context.Context, userID uint64) ([]model.TicketDetail, error) {
	const q = `SELECT ` + ticketColumns + `, e.title, e.starts_at, e.venue, e.city
	           FROM tickets t
	           JOIN events e ON e.id = t.event_id
	           WHERE t.user_id = ?
	           ORDER BY t.purchased_at DESC, t.id DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TicketDetail
	for rows.Next() {
		var (
			d        model.TicketDetail
			startsAt sql.NullTime
		)
		if err := rows.Scan(scanTicket(&d.Ticket, &d.EventTitle, &startsAt, &d.Venue, &d.City)...); err != nil {
			return nil, err
		}
		if startsAt.Valid {
			ts := startsAt.Time.UTC()
			d.StartsAt = &ts
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListUnsentReminders returns tickets whose reminder has not been sent,
// whose owner can receive a push and whose event starts within [from, to].
func (r *TicketRepo) ListUnsentReminders(ctx context.Context, from, to time.Time) ([]model.ReminderCandidate, error) {
	const q = `SELECT ` + ticketColumns + `, e.title, e.starts_at, u.device_token
	           FROM tickets t
	           JOIN events e ON e.id = t.event_id
	           JOIN users u ON u.id = t.user_id
	           WHERE t.reminder_sent = 0
	             AND e.starts_at BETWEEN ? AND ?
	             AND u.device_token IS NOT NULL AND u.device_token <> ''
	           ORDER BY e.starts_at, t.id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ReminderCandidate
	for rows.Next() {
		var c model.ReminderCandidate
		if err := rows.Scan(scanTicket(&c.Ticket, &c.EventTitle, &c.StartsAt, &c.DeviceToken)...); err != nil {
			return nil, err
		}
		c.StartsAt = c.StartsAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClaimReminder sets reminder_sent on the ticket if it is still unset.  It
// reports whether this call flipped the flag, so only one sender wins.
func (r *TicketRepo) ClaimReminder(ctx context.Context, id uint64) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE tickets SET reminder_sent = 1 WHERE id = ? AND reminder_sent = 0`, id)
	if err != nil {
		return false, storageErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseReminder clears reminder_sent on tickets whose push could not be
// handed over, so a later scan retries them.
func (r *TicketRepo) ReleaseReminder(ctx context.Context, ids ...uint64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `UPDATE tickets SET reminder_sent = 0 WHERE id IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`
	_, err := conn(ctx, r.db).ExecContext(ctx, q, args...)
	return storageErr(err)
}

func nullUint(p *uint64) any {
	if p == nil {
		return nil
	}
	return *p
}

// nullUintScanner scans a nullable unsigned column into a *uint64 field.
type nullUintScanner struct{ dest **uint64 }

func (s nullUintScanner) Scan(src any) error {
	var n sql.NullInt64
	if err := n.Scan(src); err != nil {
		return err
	}
	if !n.Valid {
		*s.dest = nil
		return nil
	}
	v := uint64(n.Int64)
	*s.dest = &v
	return nil
}
