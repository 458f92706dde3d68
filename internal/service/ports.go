package service

import (
	"context"
	"time"

	"github.com/iliyamo/ticket-booking/internal/model"
)

// Transactor runs fn inside one storage transaction.  Store methods called
// with the ctx passed to fn take part in it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventLookup resolves events by id.
type EventLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
}

// EventStore is the full event persistence used by EventService.
type EventStore interface {
	EventLookup
	Create(ctx context.Context, e *model.Event) error
	List(ctx context.Context, city string) ([]model.Event, error)
	Update(ctx context.Context, e *model.Event) error
	Delete(ctx context.Context, id uint64) error
}

// SeatStore persists seat maps.
type SeatStore interface {
	CreateBulk(ctx context.Context, seats []model.Seat) error
	ListByEvent(ctx context.Context, eventID uint64) ([]model.Seat, error)
	FindByEventAndLabel(ctx context.Context, eventID uint64, label string) (*model.Seat, error)
}

// TicketStore persists tickets.  Create must reject a second ticket for the
// same (event, seat) with repository.ErrDuplicateTicket.  ClaimReminder must
// flip reminder_sent atomically and report true to exactly one caller.
type TicketStore interface {
	ExistsForEventAndSeat(ctx context.Context, eventID, seatID uint64) (bool, error)
	Create(ctx context.Context, t *model.Ticket) error
	ListByEvent(ctx context.Context, eventID uint64) ([]model.Ticket, error)
	ListUnsentReminders(ctx context.Context, from, to time.Time) ([]model.ReminderCandidate, error)
	ClaimReminder(ctx context.Context, id uint64) (bool, error)
	ReleaseReminder(ctx context.Context, ids ...uint64) error
}

// UserLookup resolves users by id.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// Sender delivers a push notification to one device.  Delivery is best
// effort; a nil error only means the message was handed over.
type Sender interface {
	Send(ctx context.Context, deviceToken, title, body string) error
}

// Logger is the leveled logger services write to.  *log.Logger from
// labstack/gommon satisfies it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Clock allows injecting time in services.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// SystemClock returns a clock backed by time.Now in UTC.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now().UTC() }
