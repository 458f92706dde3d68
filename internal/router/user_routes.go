package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-booking/internal/handler"
	"github.com/iliyamo/ticket-booking/internal/middleware"
	"github.com/iliyamo/ticket-booking/internal/model"
)

// RegisterBooking registers ticket purchase and the ticket list.  Booking
// is open to guests; a bearer token, when sent, must be valid and ties the
// tickets to the caller.
func RegisterBooking(e *echo.Echo, h *handler.BookingHandler, jwtSecret string) {
	e.POST("/v1/bookings", h.Book, middleware.OptionalJWT(jwtSecret))

	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)
	g.GET("/my-tickets", h.MyTickets)
}
