package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-booking/internal/model"
	"github.com/iliyamo/ticket-booking/internal/monitoring"
	"github.com/iliyamo/ticket-booking/internal/queue"
	"github.com/iliyamo/ticket-booking/internal/repository"
)

// BookRequest asks for a set of seats of one event.  UserID is nil for a
// guest purchase.
type BookRequest struct {
	EventID    uint64
	SeatLabels []string
	UserID     *uint64
}

// BookResult is the outcome of a successful booking.
type BookResult struct {
	Event   *model.Event
	Tickets []model.Ticket
}

// BookingPublisher announces committed bookings.
type BookingPublisher interface {
	PublishTicketsBooked(ctx context.Context, ev queue.TicketsBookedEvent) error
}

// BookingCoordinator books seats all-or-nothing.  It keeps no in-process
// lock: concurrent requests for the same seat are settled by the
// (event, seat) unique key in storage, so exactly one of them wins.
type BookingCoordinator struct {
	tx        Transactor
	events    EventLookup
	seats     SeatStore
	tickets   TicketStore
	users     UserLookup
	sender    Sender
	publisher BookingPublisher
	clock     Clock
	log       Logger

	horizon     time.Duration
	maxAttempts int
}

// BookingOption customises a BookingCoordinator.
type BookingOption func(*BookingCoordinator)

// WithInstantReminderHorizon sets how close to the start a booking must be
// for the reminder to go out right away.  Default 24h.
func WithInstantReminderHorizon(d time.Duration) BookingOption {
	return func(c *BookingCoordinator) { c.horizon = d }
}

// WithMaxAttempts bounds how often a request is run when storage aborts
// the transaction.  Default 3.
func WithMaxAttempts(n int) BookingOption {
	return func(c *BookingCoordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithPublisher makes the coordinator announce committed bookings.
func WithPublisher(p BookingPublisher) BookingOption {
	return func(c *BookingCoordinator) { c.publisher = p }
}

func NewBookingCoordinator(tx Transactor, events EventLookup, seats SeatStore, tickets TicketStore,
	users UserLookup, sender Sender, clock Clock, log Logger, opts ...BookingOption) *BookingCoordinator {
	c := &BookingCoordinator{
		tx:          tx,
		events:      events,
		seats:       seats,
		tickets:     tickets,
		users:       users,
		sender:      sender,
		clock:       clock,
		log:         log,
		horizon:     24 * time.Hour,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Book sells every requested seat or none of them.  Unknown, already sold
// and repeated labels make the whole request fail with *ConflictError
// listing them in request order.
func (c *BookingCoordinator) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	start := time.Now()
	res, err := c.book(ctx, req)

	var conflict *ConflictError
	switch {
	case err == nil:
		monitoring.TrackBooking(monitoring.BookingSuccess, len(res.Tickets), time.Since(start))
	case errors.As(err, &conflict):
		monitoring.TrackBooking(monitoring.BookingConflict, 0, time.Since(start))
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrEmptySeatList):
		monitoring.TrackBooking(monitoring.BookingInvalid, 0, time.Since(start))
	default:
		monitoring.TrackBooking(monitoring.BookingError, 0, time.Since(start))
	}
	return res, err
}

func (c *BookingCoordinator) book(ctx context.Context, req BookRequest) (*BookResult, error) {
	event, err := c.events.GetByID(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("load event %d: %w", req.EventID, err)
	}
	if len(req.SeatLabels) == 0 {
		return nil, ErrEmptySeatList
	}

	var tickets []model.Ticket
	for attempt := 1; ; attempt++ {
		tickets, err = c.claim(ctx, event, req)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrTxAborted) && attempt < c.maxAttempts && ctx.Err() == nil {
			c.log.Warnf("booking: event %d attempt %d aborted by storage, retrying: %v", event.ID, attempt, err)
			monitoring.TrackBookingRetry()
			continue
		}
		return nil, err
	}

	c.afterCommit(ctx, event, req, tickets)
	return &BookResult{Event: event, Tickets: tickets}, nil
}

// claim runs one booking attempt in a single transaction.  Each seat is
// checked and inserted right away so the unique key arbitrates races; any
// failure rolls the whole attempt back.
func (c *BookingCoordinator) claim(ctx context.Context, event *model.Event, req BookRequest) ([]model.Ticket, error) {
	var created []model.Ticket
	err := c.tx.WithTx(ctx, func(ctx context.Context) error {
		created = created[:0]
		var failed []string
		claimed := make(map[uint64]bool, len(req.SeatLabels))
		now := c.clock.Now()

		for _, raw := range req.SeatLabels {
			label := NormalizeLabel(raw)
			if label == "" {
				failed = append(failed, raw)
				continue
			}
			seat, err := c.seats.FindByEventAndLabel(ctx, event.ID, label)
			if errors.Is(err, repository.ErrSeatNotFound) {
				failed = append(failed, label)
				continue
			}
			if err != nil {
				return fmt.Errorf("resolve seat %s: %w", label, err)
			}
			if claimed[seat.ID] {
				failed = append(failed, label)
				continue
			}
			taken, err := c.tickets.ExistsForEventAndSeat(ctx, event.ID, seat.ID)
			if err != nil {
				return fmt.Errorf("check seat %s: %w", label, err)
			}
			if taken {
				failed = append(failed, label)
				continue
			}

			seatID := seat.ID
			t := model.Ticket{
				EventID:     event.ID,
				SeatID:      &seatID,
				SeatLabel:   seat.Label,
				UserID:      req.UserID,
				PurchasedAt: now,
			}
			if err := c.tickets.Create(ctx, &t); err != nil {
				if errors.Is(err, repository.ErrDuplicateTicket) {
					// lost the race after the existence check
					failed = append(failed, label)
					continue
				}
				return fmt.Errorf("create ticket %s: %w", label, err)
			}
			claimed[seat.ID] = true
			created = append(created, t)
		}

		if len(failed) > 0 {
			return &ConflictError{Labels: failed}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// afterCommit runs the best-effort follow-ups of a committed booking.
// Failures are logged and never undo the booking.
func (c *BookingCoordinator) afterCommit(ctx context.Context, event *model.Event, req BookRequest, tickets []model.Ticket) {
	if c.publisher != nil {
		if err := c.publisher.PublishTicketsBooked(ctx, bookedEvent(event, req, tickets, c.clock.Now())); err != nil {
			c.log.Warnf("booking: publish tickets booked for event %d: %v", event.ID, err)
		}
	}
	c.sendInstantReminder(ctx, event, req, tickets)
}

// sendInstantReminder pushes one reminder for the booking when the event
// starts within the horizon.  Tickets are claimed before the push so a
// concurrent scan cannot remind them a second time; claims are released
// again when the push fails.
func (c *BookingCoordinator) sendInstantReminder(ctx context.Context, event *model.Event, req BookRequest, tickets []model.Ticket) {
	if req.UserID == nil || event.StartsAt == nil {
		return
	}
	remaining := event.StartsAt.Sub(c.clock.Now())
	if remaining < 0 || remaining >= c.horizon {
		return
	}
	user, err := c.users.GetByID(ctx, *req.UserID)
	if err != nil {
		c.log.Warnf("booking: load user %d for reminder: %v", *req.UserID, err)
		return
	}
	if !user.HasDeviceToken() {
		return
	}

	var (
		ids     []uint64
		claimed []model.Ticket
	)
	for _, t := range tickets {
		ok, err := c.tickets.ClaimReminder(ctx, t.ID)
		if err != nil {
			c.log.Errorf("booking: claim reminder for ticket %d: %v", t.ID, err)
			continue
		}
		if ok {
			ids = append(ids, t.ID)
			claimed = append(claimed, t)
		}
	}
	if len(ids) == 0 {
		return
	}

	title := "Your event starts soon"
	body := fmt.Sprintf("%q starts in %s. Seats: %s", event.Title, humanizeDuration(remaining), joinLabels(claimed))
	if err := c.sender.Send(ctx, *user.DeviceToken, title, body); err != nil {
		monitoring.TrackReminder(monitoring.ReminderInstant, false)
		c.log.Warnf("booking: instant reminder to user %d for event %d failed: %v", user.ID, event.ID, err)
		if err := c.tickets.ReleaseReminder(context.WithoutCancel(ctx), ids...); err != nil {
			c.log.Errorf("booking: release reminder claims %v: %v", ids, err)
		}
		return
	}
	monitoring.TrackReminder(monitoring.ReminderInstant, true)

	sent := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		sent[id] = true
	}
	for i := range tickets {
		if sent[tickets[i].ID] {
			tickets[i].ReminderSent = true
		}
	}
}

func bookedEvent(event *model.Event, req BookRequest, tickets []model.Ticket, now time.Time) queue.TicketsBookedEvent {
	ev := queue.TicketsBookedEvent{
		EventID:    event.ID,
		EventTitle: event.Title,
		UserID:     req.UserID,
		TicketIDs:  make([]uint64, len(tickets)),
		SeatLabels: make([]string, len(tickets)),
		BookedAt:   now.Format(time.RFC3339),
	}
	if event.StartsAt != nil {
		ev.StartsAt = event.StartsAt.Format(time.RFC3339)
	}
	for i, t := range tickets {
		ev.TicketIDs[i] = t.ID
		ev.SeatLabels[i] = t.SeatLabel
	}
	return ev
}

func joinLabels(tickets []model.Ticket) string {
	out := ""
	for i, t := range tickets {
		if i > 0 {
			out += ", "
		}
		out += t.SeatLabel
	}
	return out
}

// humanizeDuration renders d rounded down to hours, or minutes below one
// hour.
func humanizeDuration(d time.Duration) string {
	if d >= time.Hour {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	m := int(d / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
