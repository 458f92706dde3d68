package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/ticket-booking/internal/model"
	"github.com/iliyamo/ticket-booking/internal/repository"
)

// SeatState is the booking state of one seat.
type SeatState string

const (
	SeatAvailable SeatState = "available"
	SeatBooked    SeatState = "booked"
)

// SeatStatus pairs a seat with its current state.
type SeatStatus struct {
	Seat  model.Seat
	State SeatState
}

// AvailabilityIndex derives seat states from the tickets of an event.  It
// keeps no state of its own and reads storage on every call.
type AvailabilityIndex struct {
	events  EventLookup
	seats   SeatStore
	tickets TicketStore
	log     Logger
}

func NewAvailabilityIndex(events EventLookup, seats SeatStore, tickets TicketStore, log Logger) *AvailabilityIndex {
	return &AvailabilityIndex{events: events, seats: seats, tickets: tickets, log: log}
}

// Status returns every seat of the event in row-major order.  A seat is
// booked exactly when some ticket of the event references it.
func (x *AvailabilityIndex) Status(ctx context.Context, eventID uint64) ([]SeatStatus, error) {
	if _, err := x.events.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("load event %d: %w", eventID, err)
	}

	seats, err := x.seats.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list seats of event %d: %w", eventID, err)
	}
	tickets, err := x.tickets.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list tickets of event %d: %w", eventID, err)
	}

	holder := make(map[uint64]uint64, len(tickets)) // seat id -> ticket id
	for _, t := range tickets {
		if t.SeatID == nil {
			continue
		}
		if prev, dup := holder[*t.SeatID]; dup {
			x.log.Errorf("availability: event %d seat %d is held by tickets %d and %d", eventID, *t.SeatID, prev, t.ID)
			return nil, fmt.Errorf("%w: event %d seat %d (tickets %d, %d)", ErrDuplicateBooking, eventID, *t.SeatID, prev, t.ID)
		}
		holder[*t.SeatID] = t.ID
	}

	out := make([]SeatStatus, len(seats))
	for i, s := range seats {
		state := SeatAvailable
		if _, ok := holder[s.ID]; ok {
			state = SeatBooked
		}
		out[i] = SeatStatus{Seat: s, State: state}
	}
	return out, nil
}
