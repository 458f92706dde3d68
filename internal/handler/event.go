package handler

import (
    "context"
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-booking/internal/model"
    "github.com/iliyamo/ticket-booking/internal/service"
)

// EventReader is the read side of service.EventService.
type EventReader interface {
    Get(ctx context.Context, id uint64) (*model.Event, error)
    List(ctx context.Context, city string) ([]model.Event, error)
}

// SeatIndex reports seat availability (service.AvailabilityIndex).
type SeatIndex interface {
    Status(ctx context.Context, eventID uint64) ([]service.SeatStatus, error)
}

// PublicHandler serves the anonymous event browsing routes.
type PublicHandler struct {
    Events EventReader
    Seats  SeatIndex
}

func NewPublicHandler(events EventReader, seats SeatIndex) *PublicHandler {
    return &PublicHandler{Events: events, Seats: seats}
}

// PublicSeat is one entry of the seat map.
type PublicSeat struct {
    ID      uint64 `json:"id"`
    EventID uint64 `json:"event_id"`
    Label   string `json:"label"`
    Row     int    `json:"row"`
    Col     int    `json:"col"`
    Status  string `json:"status"`
    Booked  bool   `json:"booked"`
}

// ListEvents returns all events, optionally filtered by ?city=.
func (h *PublicHandler) ListEvents(c echo.Context) error {
    ctx, cancel := requestCtx(c)
    defer cancel()

    events, err := h.Events.List(ctx, c.QueryParam("city"))
    if err != nil {
        if errors.Is(err, service.ErrEventNotFound) {
            return errorJSON(c, http.StatusNotFound, "no events found in this city")
        }
        return internalError(c, "list events failed", err)
    }
    if events == nil {
        events = []model.Event{}
    }
    return c.JSON(http.StatusOK, echo.Map{"items": events})
}

// GetEvent returns one event.
func (h *PublicHandler) GetEvent(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return errorJSON(c, http.StatusBadRequest, "invalid event id")
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    e, err := h.Events.Get(ctx, id)
    if err != nil {
        if errors.Is(err, service.ErrEventNotFound) {
            return errorJSON(c, http.StatusNotFound, "event not found")
        }
        return internalError(c, "load event failed", err)
    }
    return c.JSON(http.StatusOK, e)
}

// GetSeats returns the seat map of an event with the state of every seat.
func (h *PublicHandler) GetSeats(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return errorJSON(c, http.StatusBadRequest, "invalid event id")
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    statuses, err := h.Seats.Status(ctx, id)
    if err != nil {
        if errors.Is(err, service.ErrEventNotFound) {
            return errorJSON(c, http.StatusNotFound, "event not found")
        }
        return internalError(c, "load seats failed", err)
    }
    out := make([]PublicSeat, len(statuses))
    for i, st := range statuses {
        out[i] = PublicSeat{
            ID:      st.Seat.ID,
            EventID: st.Seat.EventID,
            Label:   st.Seat.Label,
            Row:     st.Seat.RowNum,
            Col:     st.Seat.ColNum,
            Status:  string(st.State),
            Booked:  st.State == service.SeatBooked,
        }
    }
    return c.JSON(http.StatusOK, echo.Map{"items": out})
}
