package handler

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/ticket-booking/internal/config"
    "github.com/iliyamo/ticket-booking/internal/middleware"
    "github.com/iliyamo/ticket-booking/internal/model"
    "github.com/iliyamo/ticket-booking/internal/repository"
    "github.com/iliyamo/ticket-booking/internal/service"
    "github.com/iliyamo/ticket-booking/internal/utils"
)

const secret = "handler-test-secret"

func call(e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, path, strings.NewReader(body))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    if token != "" {
        req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
    t.Helper()
    var m map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
    return m
}

func tokenFor(t *testing.T, id uint64, role string) string {
    t.Helper()
    at, err := utils.NewAccessToken(secret, id, role, 5)
    require.NoError(t, err)
    return at.Token
}

// ---- booking ----

type fakeBooker struct {
    got service.BookRequest
    res *service.BookResult
    err error
}

func (f *fakeBooker) Book(_ context.Context, req service.BookRequest) (*service.BookResult, error) {
    f.got = req
    return f.res, f.err
}

type fakeTickets struct{ byUser map[uint64][]model.TicketDetail }

func (f fakeTickets) ListByUser(_ context.Context, id uint64) ([]model.TicketDetail, error) {
    return f.byUser[id], nil
}

func bookingEcho(b Booker, tl TicketLister) *echo.Echo {
    h := NewBookingHandler(b, tl)
    e := echo.New()
    e.POST("/v1/bookings", h.Book, middleware.OptionalJWT(secret))
    e.GET("/v1/my-tickets", h.MyTickets, middleware.JWTAuth(secret))
    return e
}

func TestBook(t *testing.T) {
    t.Run("guest booking succeeds", func(t *testing.T) {
        b := &fakeBooker{res: &service.BookResult{Tickets: []model.Ticket{{ID: 1, SeatLabel: "A1"}, {ID: 2, SeatLabel: "A2"}}}}
        rec := call(bookingEcho(b, fakeTickets{}), http.MethodPost, "/v1/bookings", `{"event_id":5,"seats":["A1","A2"]}`, "")

        assert.Equal(t, http.StatusCreated, rec.Code)
        assert.EqualValues(t, 2, decode(t, rec)["created"])
        assert.Equal(t, uint64(5), b.got.EventID)
        assert.Equal(t, []string{"A1", "A2"}, b.got.SeatLabels)
        assert.Nil(t, b.got.UserID)
    })

    t.Run("signed-in booking carries the user", func(t *testing.T) {
        b := &fakeBooker{res: &service.BookResult{Tickets: []model.Ticket{{ID: 1}}}}
        rec := call(bookingEcho(b, fakeTickets{}), http.MethodPost, "/v1/bookings", `{"event_id":5,"seats":["A1"]}`, tokenFor(t, 9, model.RoleUser))

        assert.Equal(t, http.StatusCreated, rec.Code)
        require.NotNil(t, b.got.UserID)
        assert.Equal(t, uint64(9), *b.got.UserID)
    })

    t.Run("conflict lists the failed seats", func(t *testing.T) {
        b := &fakeBooker{err: &service.ConflictError{Labels: []string{"A1", "Z9"}}}
        rec := call(bookingEcho(b, fakeTickets{}), http.MethodPost, "/v1/bookings", `{"event_id":5,"seats":["A1","Z9"]}`, "")

        assert.Equal(t, http.StatusConflict, rec.Code)
        assert.JSONEq(t, `{"error":"seats unavailable","seats":["A1","Z9"]}`, rec.Body.String())
    })

    cases := []struct {
        name string
        body string
        err  error
        want int
    }{
        {"missing event id", `{"seats":["A1"]}`, nil, http.StatusBadRequest},
        {"unknown event", `{"event_id":5,"seats":["A1"]}`, service.ErrEventNotFound, http.StatusNotFound},
        {"empty seat list", `{"event_id":5,"seats":[]}`, service.ErrEmptySeatList, http.StatusBadRequest},
        {"storage failure", `{"event_id":5,"seats":["A1"]}`, errors.New("boom"), http.StatusInternalServerError},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            rec := call(bookingEcho(&fakeBooker{err: tc.err}, fakeTickets{}), http.MethodPost, "/v1/bookings", tc.body, "")
            assert.Equal(t, tc.want, rec.Code)
        })
    }
}

func TestMyTickets(t *testing.T) {
    tl := fakeTickets{byUser: map[uint64][]model.TicketDetail{
        3: {{Ticket: model.Ticket{ID: 11, SeatLabel: "B2"}, EventTitle: "Jazz"}},
    }}
    e := bookingEcho(&fakeBooker{}, tl)

    rec := call(e, http.MethodGet, "/v1/my-tickets", "", tokenFor(t, 3, model.RoleUser))
    assert.Equal(t, http.StatusOK, rec.Code)
    items := decode(t, rec)["items"].([]any)
    require.Len(t, items, 1)
    assert.Equal(t, "Jazz", items[0].(map[string]any)["event_title"])

    rec = call(e, http.MethodGet, "/v1/my-tickets", "", tokenFor(t, 4, model.RoleUser))
    assert.JSONEq(t, `{"items":[]}`, rec.Body.String())

    assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodGet, "/v1/my-tickets", "", "").Code)
}

// ---- public ----

type fakeEvents struct {
    events  map[uint64]model.Event
    created *model.Event
    rows    int
    cols    int
    patch   service.EventPatch
    deleted []uint64
}

func (f *fakeEvents) Get(_ context.Context, id uint64) (*model.Event, error) {
    e, ok := f.events[id]
    if !ok {
        return nil, service.ErrEventNotFound
    }
    return &e, nil
}

func (f *fakeEvents) List(_ context.Context, city string) ([]model.Event, error) {
    var out []model.Event
    for _, e := range f.events {
        if city == "" || strings.EqualFold(city, e.City) {
            out = append(out, e)
        }
    }
    if city != "" && len(out) == 0 {
        return nil, service.ErrEventNotFound
    }
    return out, nil
}

func (f *fakeEvents) Create(_ context.Context, e *model.Event, rows, cols int) ([]model.Seat, error) {
    if strings.TrimSpace(e.Title) == "" {
        return nil, service.ErrInvalidEvent
    }
    e.ID = 77
    f.created, f.rows, f.cols = e, rows, cols
    return make([]model.Seat, rows*cols), nil
}

func (f *fakeEvents) Update(_ context.Context, id uint64, p service.EventPatch) (*model.Event, error) {
    e, ok := f.events[id]
    if !ok {
        return nil, service.ErrEventNotFound
    }
    f.patch = p
    if p.Title != nil {
        e.Title = *p.Title
    }
    return &e, nil
}

func (f *fakeEvents) Delete(_ context.Context, id uint64) error {
    if _, ok := f.events[id]; !ok {
        return service.ErrEventNotFound
    }
    f.deleted = append(f.deleted, id)
    return nil
}

type fakeSeatIndex map[uint64][]service.SeatStatus

func (f fakeSeatIndex) Status(_ context.Context, id uint64) ([]service.SeatStatus, error) {
    st, ok := f[id]
    if !ok {
        return nil, service.ErrEventNotFound
    }
    return st, nil
}

func TestPublicRoutes(t *testing.T) {
    events := &fakeEvents{events: map[uint64]model.Event{
        1: {ID: 1, Title: "Jazz", City: "Oslo", Price: decimal.RequireFromString("12.5")},
    }}
    seats := fakeSeatIndex{1: {
        {Seat: model.Seat{ID: 10, EventID: 1, Label: "A1", RowNum: 1, ColNum: 1}, State: service.SeatBooked},
        {Seat: model.Seat{ID: 11, EventID: 1, Label: "A2", RowNum: 1, ColNum: 2}, State: service.SeatAvailable},
    }}
    h := NewPublicHandler(events, seats)
    e := echo.New()
    e.GET("/v1/events", h.ListEvents)
    e.GET("/v1/events/:id", h.GetEvent)
    e.GET("/v1/events/:id/seats", h.GetSeats)

    rec := call(e, http.MethodGet, "/v1/events?city=oslo", "", "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Len(t, decode(t, rec)["items"], 1)

    assert.Equal(t, http.StatusNotFound, call(e, http.MethodGet, "/v1/events?city=Paris", "", "").Code)

    rec = call(e, http.MethodGet, "/v1/events/1", "", "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "12.5", decode(t, rec)["price"])
    assert.Equal(t, http.StatusNotFound, call(e, http.MethodGet, "/v1/events/2", "", "").Code)
    assert.Equal(t, http.StatusBadRequest, call(e, http.MethodGet, "/v1/events/abc", "", "").Code)

    rec = call(e, http.MethodGet, "/v1/events/1/seats", "", "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"items":[
        {"id":10,"event_id":1,"label":"A1","row":1,"col":1,"status":"booked","booked":true},
        {"id":11,"event_id":1,"label":"A2","row":1,"col":2,"status":"available","booked":false}
    ]}`, rec.Body.String())
    assert.Equal(t, http.StatusNotFound, call(e, http.MethodGet, "/v1/events/3/seats", "", "").Code)
}

// ---- admin ----

type fakeUserAdmin struct {
    users []model.User
    roles map[uint64]string
}

func (f *fakeUserAdmin) Create(_ context.Context, name, email, _, role string, _ int) (uint64, error) {
    for _, u := range f.users {
        if u.Email == email {
            return 0, repository.ErrEmailExists
        }
    }
    id := uint64(len(f.users) + 100)
    f.users = append(f.users, model.User{ID: id, Name: name, Email: email, Role: role})
    return id, nil
}

func (f *fakeUserAdmin) List(context.Context) ([]model.User, error) { return f.users, nil }

func (f *fakeUserAdmin) UpdateRole(_ context.Context, id uint64, role string) error {
    for _, u := range f.users {
        if u.ID == id {
            f.roles[id] = role
            return nil
        }
    }
    return repository.ErrUserNotFound
}

func adminEcho(h *AdminHandler) *echo.Echo {
    e := echo.New()
    g := e.Group("/v1/admin", middleware.JWTAuth(secret), middleware.RequireRole(model.RoleAdmin))
    g.GET("/events", h.ListEvents)
    g.POST("/events", h.CreateEvent)
    g.PATCH("/events/:id", h.UpdateEvent)
    g.DELETE("/events/:id", h.DeleteEvent)
    g.GET("/users", h.ListUsers)
    g.POST("/users", h.CreateUser)
    g.PATCH("/users/:id/role", h.UpdateUserRole)
    return e
}

func TestAdminEvents(t *testing.T) {
    events := &fakeEvents{events: map[uint64]model.Event{1: {ID: 1, Title: "Jazz"}}}
    purges := 0
    h := NewAdminHandler(events, &fakeUserAdmin{}, 4, func(context.Context) error { purges++; return nil })
    e := adminEcho(h)
    admin := tokenFor(t, 1, model.RoleAdmin)

    assert.Equal(t, http.StatusForbidden, call(e, http.MethodGet, "/v1/admin/events", "", tokenFor(t, 2, model.RoleUser)).Code)

    rec := call(e, http.MethodPost, "/v1/admin/events", `{"title":"Opera","price":"30.00","starts_at":"2026-12-01 19:30"}`, admin)
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    assert.EqualValues(t, 100, decode(t, rec)["seats_created"])
    assert.Equal(t, 10, events.rows)
    assert.Equal(t, 10, events.cols)
    require.NotNil(t, events.created.StartsAt)
    assert.Equal(t, time.Date(2026, 12, 1, 19, 30, 0, 0, time.UTC), *events.created.StartsAt)

    rec = call(e, http.MethodPost, "/v1/admin/events", `{"title":"Gig","rows":2,"cols":3,"starts_at":"2026-12-01T19:30:00+01:00"}`, admin)
    require.Equal(t, http.StatusCreated, rec.Code)
    assert.Equal(t, 2, events.rows)
    assert.Equal(t, 3, events.cols)
    assert.Equal(t, time.Date(2026, 12, 1, 18, 30, 0, 0, time.UTC), *events.created.StartsAt)

    assert.Equal(t, http.StatusBadRequest, call(e, http.MethodPost, "/v1/admin/events", `{"title":"X","starts_at":"tomorrow"}`, admin).Code)
    assert.Equal(t, http.StatusBadRequest, call(e, http.MethodPost, "/v1/admin/events", `{"title":""}`, admin).Code)

    rec = call(e, http.MethodPatch, "/v1/admin/events/1", `{"title":"Jazz Night","starts_at":""}`, admin)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.True(t, events.patch.ClearStartsAt)
    assert.Equal(t, "Jazz Night", decode(t, rec)["title"])

    assert.Equal(t, http.StatusBadRequest, call(e, http.MethodPatch, "/v1/admin/events/1", `{"rows":5}`, admin).Code)
    assert.Equal(t, http.StatusNotFound, call(e, http.MethodPatch, "/v1/admin/events/9", `{"title":"x"}`, admin).Code)

    assert.Equal(t, http.StatusNoContent, call(e, http.MethodDelete, "/v1/admin/events/1", "", admin).Code)
    assert.Equal(t, []uint64{1}, events.deleted)
    assert.Equal(t, http.StatusNotFound, call(e, http.MethodDelete, "/v1/admin/events/9", "", admin).Code)

    assert.Equal(t, 4, purges)
}

func TestAdminUsers(t *testing.T) {
    users := &fakeUserAdmin{users: []model.User{{ID: 5, Name: "Ann", Email: "ann@example.com", Role: model.RoleUser}}, roles: map[uint64]string{}}
    e := adminEcho(NewAdminHandler(&fakeEvents{}, users, 4, nil))
    admin := tokenFor(t, 1, model.RoleAdmin)

    rec := call(e, http.MethodGet, "/v1/admin/users", "", admin)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.NotContains(t, rec.Body.String(), "password")

    rec = call(e, http.MethodPatch, "/v1/admin/users/5/role", `{"role":"admin"}`, admin)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, model.RoleAdmin, users.roles[5])

    assert.Equal(t, http.StatusBadRequest, call(e, http.MethodPatch, "/v1/admin/users/5/role", `{"role":"OWNER"}`, admin).Code)
    assert.Equal(t, http.StatusNotFound, call(e, http.MethodPatch, "/v1/admin/users/6/role", `{"role":"USER"}`, admin).Code)
}

func TestAdminCreateUser(t *testing.T) {
    users := &fakeUserAdmin{users: []model.User{{ID: 5, Name: "Ann", Email: "ann@example.com", Role: model.RoleUser}}, roles: map[uint64]string{}}
    e := adminEcho(NewAdminHandler(&fakeEvents{}, users, 4, nil))
    admin := tokenFor(t, 1, model.RoleAdmin)

    rec := call(e, http.MethodPost, "/v1/admin/users", `{"name":" Bo ","email":"BO@example.com","password":"pw123456","role":"admin"}`, admin)
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    body := decode(t, rec)
    assert.Equal(t, "bo@example.com", body["email"])
    assert.Equal(t, model.RoleAdmin, body["role"])
    assert.NotContains(t, rec.Body.String(), "pw123456")

    rec = call(e, http.MethodPost, "/v1/admin/users", `{"name":"Cy","email":"cy@example.com","password":"pw"}`, admin)
    require.Equal(t, http.StatusCreated, rec.Code)
    assert.Equal(t, model.RoleUser, decode(t, rec)["role"])

    cases := []struct {
        name string
        body string
        want int
    }{
        {"duplicate email", `{"name":"Ann","email":"ann@example.com","password":"pw"}`, http.StatusConflict},
        {"missing password", `{"name":"Di","email":"di@example.com"}`, http.StatusBadRequest},
        {"bad email", `{"name":"Di","email":"nope","password":"pw"}`, http.StatusBadRequest},
        {"unknown role", `{"name":"Di","email":"di@example.com","password":"pw","role":"OWNER"}`, http.StatusBadRequest},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            assert.Equal(t, tc.want, call(e, http.MethodPost, "/v1/admin/users", tc.body, admin).Code)
        })
    }

    assert.Equal(t, http.StatusForbidden,
        call(e, http.MethodPost, "/v1/admin/users", `{"name":"Ed","email":"ed@example.com","password":"pw"}`, tokenFor(t, 2, model.RoleUser)).Code)
}

func TestParseStartsAt(t *testing.T) {
    want := time.Date(2026, 3, 4, 5, 6, 0, 0, time.UTC)
    for _, s := range []string{"2026-03-04T05:06:00Z", "2026-03-04 05:06", " 2026-03-04T05:06 ", "2026-03-04 05:06:00"} {
        got, err := parseStartsAt(s)
        require.NoError(t, err, s)
        assert.Equal(t, want, got, s)
    }
    _, err := parseStartsAt("04/03/2026")
    assert.Error(t, err)
}

// ---- auth ----

type fakeUsers struct {
    byID       map[uint64]*model.User
    nextID     uint64
    resetToken string
    resetExp   time.Time
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[uint64]*model.User{}, nextID: 1} }

func (f *fakeUsers) Create(_ context.Context, name, email, password, role string, cost int) (uint64, error) {
    for _, u := range f.byID {
        if u.Email == email {
            return 0, repository.ErrEmailExists
        }
    }
    hash, err := utils.HashPassword(password, cost)
    if err != nil {
        return 0, err
    }
    id := f.nextID
    f.nextID++
    f.byID[id] = &model.User{ID: id, Name: name, Email: email, PasswordHash: hash, Role: role}
    return id, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
    for _, u := range f.byID {
        if u.Email == email {
            cp := *u
            return &cp, nil
        }
    }
    return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
    u, ok := f.byID[id]
    if !ok {
        return nil, repository.ErrUserNotFound
    }
    cp := *u
    return &cp, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id uint64, name, email string) error {
    for _, u := range f.byID {
        if u.Email == email && u.ID != id {
            return repository.ErrEmailExists
        }
    }
    f.byID[id].Name, f.byID[id].Email = name, email
    return nil
}

func (f *fakeUsers) SetDeviceToken(_ context.Context, id uint64, token string) error {
    u, ok := f.byID[id]
    if !ok {
        return repository.ErrUserNotFound
    }
    if token == "" {
        u.DeviceToken = nil
    } else {
        u.DeviceToken = &token
    }
    return nil
}

func (f *fakeUsers) SetResetToken(_ context.Context, _ uint64, token string, exp time.Time) error {
    f.resetToken, f.resetExp = token, exp
    return nil
}

func (f *fakeUsers) ResetPassword(_ context.Context, token, newPassword string, cost int, now time.Time) error {
    if token == "" || token != f.resetToken || !now.Before(f.resetExp) {
        return repository.ErrResetTokenInvalid
    }
    f.resetToken = ""
    return nil
}

type fakeTokens struct {
    live map[string]uint64
}

func (f *fakeTokens) StoreRefresh(_ context.Context, uid uint64, hash string, _ time.Time) error {
    f.live[hash] = uid
    return nil
}

func (f *fakeTokens) ValidateRefresh(_ context.Context, hash string, _ time.Time) (uint64, error) {
    uid, ok := f.live[hash]
    if !ok {
        return 0, repository.ErrRefreshInvalid
    }
    return uid, nil
}

func (f *fakeTokens) RevokeByHash(_ context.Context, hash string) error {
    delete(f.live, hash)
    return nil
}

func (f *fakeTokens) RevokeAllForUser(_ context.Context, uid uint64) error {
    for h, id := range f.live {
        if id == uid {
            delete(f.live, h)
        }
    }
    return nil
}

func authEcho(h *AuthHandler) *echo.Echo {
    e := echo.New()
    a := e.Group("/v1/auth")
    a.POST("/register", h.Register)
    a.POST("/login", h.Login)
    a.POST("/refresh", h.Refresh)
    a.POST("/refresh-access", h.RefreshAccess)
    a.POST("/logout", h.Logout)
    a.POST("/forgot-password", h.ForgotPassword)
    a.POST("/reset-password", h.ResetPassword)
    me := e.Group("/v1", middleware.JWTAuth(secret))
    me.GET("/me", h.Me)
    me.PUT("/me", h.UpdateMe)
    me.PUT("/me/device-token", h.SetDeviceToken)
    return e
}

func TestAuthFlow(t *testing.T) {
    users, tokens := newFakeUsers(), &fakeTokens{live: map[string]uint64{}}
    cfg := config.Config{JWTSecret: secret, AccessTTLMin: 5, RefreshTTLDays: 1, BcryptCost: 4, ResetTokenTTL: 10 * time.Minute}
    h := NewAuthHandler(cfg, users, tokens)
    e := authEcho(h)

    rec := call(e, http.MethodPost, "/v1/auth/register", `{"name":"Ann","email":" Ann@Example.com ","password":"pw123456"}`, "")
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    reg := decode(t, rec)
    user := reg["user"].(map[string]any)
    assert.Equal(t, "ann@example.com", user["email"])
    assert.Equal(t, model.RoleUser, user["role"])

    assert.Equal(t, http.StatusConflict, call(e, http.MethodPost, "/v1/auth/register", `{"name":"A","email":"ann@example.com","password":"x"}`, "").Code)
    assert.Equal(t, http.StatusBadRequest, call(e, http.MethodPost, "/v1/auth/register", `{"email":"b@example.com","password":"x"}`, "").Code)

    assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodPost, "/v1/auth/login", `{"email":"ann@example.com","password":"wrong"}`, "").Code)
    assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodPost, "/v1/auth/login", `{"email":"bob@example.com","password":"x"}`, "").Code)
    rec = call(e, http.MethodPost, "/v1/auth/login", `{"email":"ann@example.com","password":"pw123456"}`, "")
    require.Equal(t, http.StatusOK, rec.Code)
    login := decode(t, rec)
    access := login["access"].(map[string]any)["token"].(string)
    refresh := login["refresh"].(map[string]any)["token"].(string)

    // rotation: the old refresh token stops working
    rec = call(e, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+refresh+`"}`, "")
    require.Equal(t, http.StatusOK, rec.Code)
    rotated := decode(t, rec)["refresh"].(map[string]any)["token"].(string)
    assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+refresh+`"}`, "").Code)

    rec = call(e, http.MethodPost, "/v1/auth/refresh-access", `{"refresh_token":"`+rotated+`"}`, "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, decode(t, rec), "access")

    rec = call(e, http.MethodGet, "/v1/me", "", access)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "Ann", decode(t, rec)["name"])

    rec = call(e, http.MethodPut, "/v1/me", `{"name":"Anna"}`, access)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "Anna", users.byID[1].Name)
    assert.Equal(t, "ann@example.com", users.byID[1].Email)
    assert.Equal(t, http.StatusBadRequest, call(e, http.MethodPut, "/v1/me", `{"email":"nope"}`, access).Code)

    assert.Equal(t, http.StatusNoContent, call(e, http.MethodPut, "/v1/me/device-token", `{"device_token":"fcm-1"}`, access).Code)
    require.NotNil(t, users.byID[1].DeviceToken)
    assert.Equal(t, "fcm-1", *users.byID[1].DeviceToken)

    assert.Equal(t, http.StatusNoContent, call(e, http.MethodPost, "/v1/auth/logout", "", access).Code)
    assert.Empty(t, tokens.live)
    assert.Equal(t, http.StatusBadRequest, call(e, http.MethodPost, "/v1/auth/logout", "", "").Code)
}

func TestPasswordReset(t *testing.T) {
    users := newFakeUsers()
    _, err := users.Create(context.Background(), "Ann", "ann@example.com", "old-password", model.RoleUser, 4)
    require.NoError(t, err)
    now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
    h := NewAuthHandler(config.Config{JWTSecret: secret, BcryptCost: 4, ResetTokenTTL: 10 * time.Minute}, users, &fakeTokens{live: map[string]uint64{}})
    h.Now = func() time.Time { return now }
    e := authEcho(h)

    assert.Equal(t, http.StatusNotFound, call(e, http.MethodPost, "/v1/auth/forgot-password", `{"email":"bob@example.com"}`, "").Code)

    rec := call(e, http.MethodPost, "/v1/auth/forgot-password", `{"email":"ann@example.com"}`, "")
    require.Equal(t, http.StatusOK, rec.Code)
    token := decode(t, rec)["token"].(string)
    assert.Equal(t, users.resetToken, token)
    assert.Equal(t, now.Add(10*time.Minute), users.resetExp)

    assert.Equal(t, http.StatusBadRequest, call(e, http.MethodPost, "/v1/auth/reset-password", `{"token":"wrong","new_password":"n"}`, "").Code)
    assert.Equal(t, http.StatusOK, call(e, http.MethodPost, "/v1/auth/reset-password", `{"token":"`+token+`","new_password":"n"}`, "").Code)
    assert.Equal(t, http.StatusBadRequest, call(e, http.MethodPost, "/v1/auth/reset-password", `{"token":"`+token+`","new_password":"n"}`, "").Code)
}

func TestHealth(t *testing.T) {
    e := echo.New()
    e.GET("/healthz", Health(pinger{}))
    e.GET("/down", Health(pinger{err: errors.New("gone")}))
    assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/healthz", "", "").Code)
    assert.Equal(t, http.StatusServiceUnavailable, call(e, http.MethodGet, "/down", "", "").Code)
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }
