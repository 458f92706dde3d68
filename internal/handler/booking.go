package handler

import (
    "context"
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-booking/internal/middleware"
    "github.com/iliyamo/ticket-booking/internal/model"
    "github.com/iliyamo/ticket-booking/internal/service"
)

// Booker books seats (service.BookingCoordinator).
type Booker interface {
    Book(ctx context.Context, req service.BookRequest) (*service.BookResult, error)
}

// TicketLister lists the tickets a user owns.
type TicketLister interface {
    ListByUser(ctx context.Context, userID uint64) ([]model.TicketDetail, error)
}

// BookingHandler serves ticket purchase and the caller's ticket list.
type BookingHandler struct {
    Booker  Booker
    Tickets TicketLister
}

func NewBookingHandler(b Booker, t TicketLister) *BookingHandler {
    return &BookingHandler{Booker: b, Tickets: t}
}

type bookReq struct {
    EventID uint64   `json:"event_id"`
    Seats   []string `json:"seats"`
}

// Book sells the requested seats to the caller, or to a guest when the
// request carries no token.  Either every seat is sold or none is.
func (h *BookingHandler) Book(c echo.Context) error {
    var req bookReq
    if err := c.Bind(&req); err != nil {
        return errorJSON(c, http.StatusBadRequest, "invalid body")
    }
    if req.EventID == 0 {
        return errorJSON(c, http.StatusBadRequest, "event_id is required")
    }

    br := service.BookRequest{EventID: req.EventID, SeatLabels: req.Seats}
    if uid, ok := middleware.UserID(c); ok {
        br.UserID = &uid
    }

    // The booking retries internally, so it gets the request context
    // rather than the per-query timeout.
    res, err := h.Booker.Book(c.Request().Context(), br)
    if err != nil {
        var conflict *service.ConflictError
        switch {
        case errors.As(err, &conflict):
            return c.JSON(http.StatusConflict, echo.Map{"error": "seats unavailable", "seats": conflict.Labels})
        case errors.Is(err, service.ErrEventNotFound):
            return errorJSON(c, http.StatusNotFound, "event not found")
        case errors.Is(err, service.ErrEmptySeatList):
            return errorJSON(c, http.StatusBadRequest, err.Error())
        }
        return internalError(c, "booking failed", err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"created": len(res.Tickets), "tickets": res.Tickets})
}

// MyTickets lists the caller's tickets, newest first.
func (h *BookingHandler) MyTickets(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return errorJSON(c, http.StatusUnauthorized, "unauthorized")
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    tickets, err := h.Tickets.ListByUser(ctx, uid)
    if err != nil {
        return internalError(c, "list tickets failed", err)
    }
    if tickets == nil {
        tickets = []model.TicketDetail{}
    }
    return c.JSON(http.StatusOK, echo.Map{"items": tickets})
}
