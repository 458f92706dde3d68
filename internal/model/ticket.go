package model

import "time"

// Ticket records that a seat of an event has been sold (`tickets` table).
// At most one ticket exists per (event, seat); the database enforces it.
// SeatID becomes nil only if the seat row is removed, and UserID is nil for
// guest purchases or when the owner was deleted.
type Ticket struct {
    ID           uint64    `json:"id"`
    EventID      uint64    `json:"event_id"`
    SeatID       *uint64   `json:"seat_id"`
    SeatLabel    string    `json:"seat_label"`
    UserID       *uint64   `json:"user_id"`
    PurchasedAt  time.Time `json:"purchased_at"`
    ReminderSent bool      `json:"reminder_sent"`
}

// TicketDetail is a ticket joined with the event it belongs to.  It backs
// the "my tickets" listing.
type TicketDetail struct {
    Ticket
    EventTitle string     `json:"event_title"`
    StartsAt   *time.Time `json:"starts_at"`
    Venue      string     `json:"venue"`
    City       string     `json:"city"`
}

// ReminderCandidate is a ticket that still waits for its pre-event
// reminder, together with the data needed to send it.
type ReminderCandidate struct {
    Ticket      Ticket
    EventTitle  string
    StartsAt    time.Time
    DeviceToken string
}
