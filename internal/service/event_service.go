package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/ticket-booking/internal/model"
)

// Default seat grid of a new event.
const (
	DefaultRows = 10
	DefaultCols = 10
)

// EventService manages events and their seat maps.
type EventService struct {
	tx     Transactor
	events EventStore
	seats  SeatStore
	log    Logger
}

func NewEventService(tx Transactor, events EventStore, seats SeatStore, log Logger) *EventService {
	return &EventService{tx: tx, events: events, seats: seats, log: log}
}

// EventPatch carries the fields of a partial update; nil means unchanged.
// ClearStartsAt unschedules the event.
type EventPatch struct {
	Title         *string
	Description   *string
	StartsAt      *time.Time
	ClearStartsAt bool
	Price         *decimal.Decimal
	City          *string
	Venue         *string
	Location      *string
	ImageBanner   *string
	ImageKey      *string
}

func validateEvent(e *model.Event) error {
	e.Title = strings.TrimSpace(e.Title)
	e.City = strings.TrimSpace(e.City)
	if e.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if e.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidEvent)
	}
	if e.StartsAt != nil {
		t := e.StartsAt.UTC()
		e.StartsAt = &t
	}
	return nil
}

// Create stores the event and its rows x cols seat map in one transaction,
// so either both exist or neither does.  It returns the generated seats.
func (s *EventService) Create(ctx context.Context, e *model.Event, rows, cols int) ([]model.Seat, error) {
	if err := validateEvent(e); err != nil {
		return nil, err
	}
	if rows <= 0 || cols <= 0 {
		return nil, ErrInvalidDimensions
	}

	var seats []model.Seat
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.events.Create(ctx, e); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		var err error
		seats, err = GenerateSeats(e.ID, rows, cols)
		if err != nil {
			return err
		}
		if err := s.seats.CreateBulk(ctx, seats); err != nil {
			return fmt.Errorf("insert seats: %w", err)
		}
		return nil
	})
	if err != nil {
		e.ID = 0
		return nil, err
	}
	s.log.Infof("event %d %q created with %dx%d seats", e.ID, e.Title, rows, cols)
	return seats, nil
}

// Get returns one event.
func (s *EventService) Get(ctx context.Context, id uint64) (*model.Event, error) {
	return s.events.GetByID(ctx, id)
}

// List returns all events, or those of one city.  A city filter that
// matches nothing is reported as ErrEventNotFound.
func (s *EventService) List(ctx context.Context, city string) ([]model.Event, error) {
	events, err := s.events.List(ctx, city)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(city) != "" && len(events) == 0 {
		return nil, fmt.Errorf("%w in city %q", ErrEventNotFound, city)
	}
	return events, nil
}

// Update applies p to the event and stores it.  The seat map is immutable.
func (s *EventService) Update(ctx context.Context, id uint64, p EventPatch) (*model.Event, error) {
	var updated *model.Event
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		e, err := s.events.GetByID(ctx, id)
		if err != nil {
			return err
		}
		p.apply(e)
		if err := validateEvent(e); err != nil {
			return err
		}
		if err := s.events.Update(ctx, e); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (p EventPatch) apply(e *model.Event) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&e.Title, p.Title)
	set(&e.Description, p.Description)
	set(&e.City, p.City)
	set(&e.Venue, p.Venue)
	set(&e.Location, p.Location)
	set(&e.ImageBanner, p.ImageBanner)
	set(&e.ImageKey, p.ImageKey)
	if p.Price != nil {
		e.Price = *p.Price
	}
	switch {
	case p.ClearStartsAt:
		e.StartsAt = nil
	case p.StartsAt != nil:
		t := *p.StartsAt
		e.StartsAt = &t
	}
}

// Delete removes the event with its seats and tickets.
func (s *EventService) Delete(ctx context.Context, id uint64) error {
	if err := s.events.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Infof("event %d deleted", id)
	return nil
}

// IsValidation reports whether err is a client input error of this
// package.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidEvent) || errors.Is(err, ErrInvalidDimensions) || errors.Is(err, ErrEmptySeatList)
}
