package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"

    "github.com/iliyamo/ticket-booking/internal/model"
    "github.com/iliyamo/ticket-booking/internal/repository"
    "github.com/iliyamo/ticket-booking/internal/service"
)

// EventAdmin is service.EventService.
type EventAdmin interface {
    EventReader
    Create(ctx context.Context, e *model.Event, rows, cols int) ([]model.Seat, error)
    Update(ctx context.Context, id uint64, p service.EventPatch) (*model.Event, error)
    Delete(ctx context.Context, id uint64) error
}

// UserAdmin is the part of repository.UserRepo used by admins.
type UserAdmin interface {
    Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error)
    List(ctx context.Context) ([]model.User, error)
    UpdateRole(ctx context.Context, id uint64, role string) error
}

// AdminHandler serves /v1/admin.  Purge, when set, drops cached public
// event responses after every event write.
type AdminHandler struct {
    Events     EventAdmin
    Users      UserAdmin
    BcryptCost int
    Purge      func(ctx context.Context) error
}

func NewAdminHandler(events EventAdmin, users UserAdmin, bcryptCost int, purge func(ctx context.Context) error) *AdminHandler {
    return &AdminHandler{Events: events, Users: users, BcryptCost: bcryptCost, Purge: purge}
}

// startsAtLayouts are the accepted starts_at formats.  Values without an
// offset are read as UTC.
var startsAtLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02 15:04:05"}

func parseStartsAt(s string) (time.Time, error) {
    s = strings.TrimSpace(s)
    var err error
    for _, layout := range startsAtLayouts {
        var t time.Time
        if t, err = time.Parse(layout, s); err == nil {
            return t.UTC(), nil
        }
    }
    return time.Time{}, err
}

type eventBody struct {
    Title       *string          `json:"title"`
    Description *string          `json:"description"`
    StartsAt    *string          `json:"starts_at"` // "" unschedules on update
    Price       *decimal.Decimal `json:"price"`
    City        *string          `json:"city"`
    Venue       *string          `json:"venue"`
    Location    *string          `json:"location"`
    ImageBanner *string          `json:"image_banner"`
    ImageKey    *string          `json:"image_key"`
    Rows        *int             `json:"rows"`
    Cols        *int             `json:"cols"`
}

func (b eventBody) patch() (service.EventPatch, error) {
    p := service.EventPatch{
        Title:       b.Title,
        Description: b.Description,
        Price:       b.Price,
        City:        b.City,
        Venue:       b.Venue,
        Location:    b.Location,
        ImageBanner: b.ImageBanner,
        ImageKey:    b.ImageKey,
    }
    if b.StartsAt != nil {
        if strings.TrimSpace(*b.StartsAt) == "" {
            p.ClearStartsAt = true
        } else {
            t, err := parseStartsAt(*b.StartsAt)
            if err != nil {
                return p, err
            }
            p.StartsAt = &t
        }
    }
    return p, nil
}

func (h *AdminHandler) purge(c echo.Context) {
    if h.Purge == nil {
        return
    }
    if err := h.Purge(c.Request().Context()); err != nil {
        c.Logger().Warnf("purge event cache: %v", err)
    }
}

// ListEvents returns every event.
func (h *AdminHandler) ListEvents(c echo.Context) error {
    ctx, cancel := requestCtx(c)
    defer cancel()
    events, err := h.Events.List(ctx, "")
    if err != nil {
        return internalError(c, "list events failed", err)
    }
    if events == nil {
        events = []model.Event{}
    }
    return c.JSON(http.StatusOK, echo.Map{"items": events})
}

// CreateEvent stores an event with a rows x cols seat map (10x10 unless
// given).
func (h *AdminHandler) CreateEvent(c echo.Context) error {
    var body eventBody
    if err := c.Bind(&body); err != nil {
        return errorJSON(c, http.StatusBadRequest, "invalid body")
    }
    p, err := body.patch()
    if err != nil {
        return errorJSON(c, http.StatusBadRequest, "invalid starts_at format")
    }
    rows, cols := service.DefaultRows, service.DefaultCols
    if body.Rows != nil {
        rows = *body.Rows
    }
    if body.Cols != nil {
        cols = *body.Cols
    }

    var e model.Event
    if p.Title != nil {
        e.Title = *p.Title
    }
    if p.Description != nil {
        e.Description = *p.Description
    }
    e.StartsAt = p.StartsAt
    if p.Price != nil {
        e.Price = *p.Price
    }
    if p.City != nil {
        e.City = *p.City
    }
    if p.Venue != nil {
        e.Venue = *p.Venue
    }
    if p.Location != nil {
        e.Location = *p.Location
    }
    if p.ImageBanner != nil {
        e.ImageBanner = *p.ImageBanner
    }
    if p.ImageKey != nil {
        e.ImageKey = *p.ImageKey
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    seats, err := h.Events.Create(ctx, &e, rows, cols)
    if err != nil {
        if service.IsValidation(err) {
            return errorJSON(c, http.StatusBadRequest, err.Error())
        }
        return internalError(c, "create event failed", err)
    }
    h.purge(c)
    return c.JSON(http.StatusCreated, echo.Map{"event": e, "seats_created": len(seats)})
}

// UpdateEvent applies a partial update.  Omitted fields stay unchanged.
func (h *AdminHandler) UpdateEvent(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return errorJSON(c, http.StatusBadRequest, "invalid event id")
    }
    var body eventBody
    if err := c.Bind(&body); err != nil {
        return errorJSON(c, http.StatusBadRequest, "invalid body")
    }
    if body.Rows != nil || body.Cols != nil {
        return errorJSON(c, http.StatusBadRequest, "the seat map cannot be changed")
    }
    p, err := body.patch()
    if err != nil {
        return errorJSON(c, http.StatusBadRequest, "invalid starts_at format")
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    e, err := h.Events.Update(ctx, id, p)
    if err != nil {
        switch {
        case errors.Is(err, service.ErrEventNotFound):
            return errorJSON(c, http.StatusNotFound, "event not found")
        case service.IsValidation(err):
            return errorJSON(c, http.StatusBadRequest, err.Error())
        }
        return internalError(c, "update event failed", err)
    }
    h.purge(c)
    return c.JSON(http.StatusOK, e)
}

// DeleteEvent removes an event with its seats and tickets.
func (h *AdminHandler) DeleteEvent(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return errorJSON(c, http.StatusBadRequest, "invalid event id")
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    if err := h.Events.Delete(ctx, id); err != nil {
        if errors.Is(err, service.ErrEventNotFound) {
            return errorJSON(c, http.StatusNotFound, "event not found")
        }
        return internalError(c, "delete event failed", err)
    }
    h.purge(c)
    return c.NoContent(http.StatusNoContent)
}

type adminUser struct {
    ID             uint64    `json:"id"`
    Name           string    `json:"name"`
    Email          string    `json:"email"`
    Role           string    `json:"role"`
    HasDeviceToken bool      `json:"has_device_token"`
    CreatedAt      time.Time `json:"created_at"`
}

// ListUsers returns every account.
func (h *AdminHandler) ListUsers(c echo.Context) error {
    ctx, cancel := requestCtx(c)
    defer cancel()
    users, err := h.Users.List(ctx)
    if err != nil {
        return internalError(c, "list users failed", err)
    }
    out := make([]adminUser, len(users))
    for i, u := range users {
        out[i] = adminUser{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, HasDeviceToken: u.HasDeviceToken(), CreatedAt: u.CreatedAt}
    }
    return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// CreateUser adds an account with the given role; role defaults to USER.
func (h *AdminHandler) CreateUser(c echo.Context) error {
    var body struct {
        Name     string `json:"name"`
        Email    string `json:"email"`
        Password string `json:"password"`
        Role     string `json:"role"`
    }
    if err := c.Bind(&body); err != nil {
        return errorJSON(c, http.StatusBadRequest, "invalid body")
    }
    name := strings.TrimSpace(body.Name)
    email := strings.ToLower(strings.TrimSpace(body.Email))
    if name == "" || email == "" || body.Password == "" {
        return errorJSON(c, http.StatusBadRequest, "name, email and password are required")
    }
    if !validEmail(email) {
        return errorJSON(c, http.StatusBadRequest, "invalid email")
    }
    role := strings.ToUpper(strings.TrimSpace(body.Role))
    if role == "" {
        role = model.RoleUser
    }
    if role != model.RoleUser && role != model.RoleAdmin {
        return errorJSON(c, http.StatusBadRequest, "role must be USER or ADMIN")
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    id, err := h.Users.Create(ctx, name, email, body.Password, role, h.BcryptCost)
    if err != nil {
        if errors.Is(err, repository.ErrEmailExists) {
            return errorJSON(c, http.StatusConflict, "email already exists")
        }
        return internalError(c, "create user failed", err)
    }
    return c.JSON(http.StatusCreated, adminUser{ID: id, Name: name, Email: email, Role: role, CreatedAt: time.Now().UTC()})
}

// UpdateUserRole sets a user's role to USER or ADMIN.
func (h *AdminHandler) UpdateUserRole(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return errorJSON(c, http.StatusBadRequest, "invalid user id")
    }
    var body struct {
        Role string `json:"role"`
    }
    if err := c.Bind(&body); err != nil {
        return errorJSON(c, http.StatusBadRequest, "invalid body")
    }
    role := strings.ToUpper(strings.TrimSpace(body.Role))
    if role != model.RoleUser && role != model.RoleAdmin {
        return errorJSON(c, http.StatusBadRequest, "role must be USER or ADMIN")
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    if err := h.Users.UpdateRole(ctx, id, role); err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return errorJSON(c, http.StatusNotFound, "user not found")
        }
        return internalError(c, "update role failed", err)
    }
    return c.JSON(http.StatusOK, echo.Map{"id": id, "role": role})
}
