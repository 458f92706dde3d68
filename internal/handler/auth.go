package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/ticket-booking/internal/config"
    "github.com/iliyamo/ticket-booking/internal/model"
    "github.com/iliyamo/ticket-booking/internal/repository"
    "github.com/iliyamo/ticket-booking/internal/utils"
)

// UserStore is the part of repository.UserRepo the auth endpoints use.
type UserStore interface {
    Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error)
    GetByEmail(ctx context.Context, email string) (*model.User, error)
    GetByID(ctx context.Context, id uint64) (*model.User, error)
    UpdateProfile(ctx context.Context, id uint64, name, email string) error
    SetDeviceToken(ctx context.Context, id uint64, token string) error
    SetResetToken(ctx context.Context, id uint64, token string, exp time.Time) error
    ResetPassword(ctx context.Context, token, newPassword string, cost int, now time.Time) error
}

// TokenStore is the refresh token table.
type TokenStore interface {
    StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
    ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
    RevokeByHash(ctx context.Context, tokenHash string) error
    RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler serves /v1/auth and the caller's own profile.
type AuthHandler struct {
    Cfg    config.Config
    Users  UserStore
    Tokens TokenStore
    Now    func() time.Time
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Now: time.Now}
}

type registerReq struct {
    Name     string `json:"name"`
    Email    string `json:"email"`
    Password string `json:"password"`
}
type loginReq struct {
    Email    string `json:"email"`
    Password string `json:"password"`
}
type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}
type profileReq struct {
    Name  *string `json:"name"`
    Email *string `json:"email"`
}
type deviceTokenReq struct {
    DeviceToken string `json:"device_token"`
}
type forgotReq struct {
    Email string `json:"email"`
}
type resetReq struct {
    Token       string `json:"token"`
    NewPassword string `json:"new_password"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}
type userPart struct {
    ID    uint64 `json:"id"`
    Name  string `json:"name"`
    Email string `json:"email"`
    Role  string `json:"role"`
}
type authResp struct {
    User    userPart  `json:"user"`
    Access  tokenPart `json:"access"`
    Refresh tokenPart `json:"refresh"`
}

func validEmail(s string) bool {
    at := strings.IndexByte(s, '@')
    return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t")
}

// issue creates an access/refresh pair for u and stores the refresh hash.
func (h *AuthHandler) issue(ctx context.Context, c echo.Context, u userPart, status int) error {
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
    if err != nil {
        return internalError(c, "issue access failed", err)
    }
    refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
    if err != nil {
        return internalError(c, "issue refresh failed", err)
    }
    if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
        return internalError(c, "save refresh failed", err)
    }
    return c.JSON(status, authResp{
        User:    u,
        Access:  tokenPart{Token: access.Token, Expires: access.Exp},
        Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
    })
}

// Register creates a USER account and logs it in.  Admins are promoted
// through the admin API.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := c.Bind(&req); err != nil {
        return errorJSON(c, http.StatusBadRequest, "invalid body")
    }
    req.Name = strings.TrimSpace(req.Name)
    req.Email = strings.ToLower(strings.TrimSpace(req.Email))
    if req.Name == "" || req.Email == "" || req.Password == "" {
        return errorJSON(c, http.StatusBadRequest, "name, email and password are required")
    }
    if !validEmail(req.Email) {
        return errorJSON(c, http.StatusBadRequest, "invalid email")
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    uid, err := h.Users.Create(ctx, req.Name, req.Email, req.Password, model.RoleUser, h.Cfg.BcryptCost)
    if err != nil {
        if errors.Is(err, repository.ErrEmailExists) {
            return errorJSON(c, http.StatusConflict, "email already exists")
        }
        return internalError(c, "create user failed", err)
    }
    return h.issue(ctx, c, userPart{ID: uid, Name: req.Name, Email: req.Email, Role: model.RoleUser}, http.StatusCreated)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return errorJSON(c, http.StatusBadRequest, "invalid body")
    }
    req.Email = strings.ToLower(strings.TrimSpace(req.Email))
    if req.Email == "" || req.Password == "" {
        return errorJSON(c, http.StatusBadRequest, "email and password are required")
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    u, err := h.Users.GetByEmail(ctx, req.Email)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return errorJSON(c, http.StatusUnauthorized, "invalid credentials")
        }
        return internalError(c, "query failed", err)
    }
    if !utils.VerifyPassword(u.PasswordHash, req.Password) {
        return errorJSON(c, http.StatusUnauthorized, "invalid credentials")
    }
    return h.issue(ctx, c, userPart{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}, http.StatusOK)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
        return errorJSON(c, http.StatusBadRequest, "refresh_token required")
    }
    hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

    ctx, cancel := requestCtx(c)
    defer cancel()

    userID, err := h.Tokens.ValidateRefresh(ctx, hash, h.Now())
    if err != nil {
        if errors.Is(err, repository.ErrRefreshInvalid) {
            return errorJSON(c, http.StatusUnauthorized, "invalid refresh")
        }
        return internalError(c, "validate refresh failed", err)
    }
    if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
        return internalError(c, "revoke refresh failed", err)
    }
    u, err := h.Users.GetByID(ctx, userID)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return errorJSON(c, http.StatusUnauthorized, "invalid refresh")
        }
        return internalError(c, "load user failed", err)
    }
    return h.issue(ctx, c, userPart{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}, http.StatusOK)
}

// RefreshAccess returns a new access token and keeps the refresh token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
        return errorJSON(c, http.StatusBadRequest, "refresh_token required")
    }
    hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

    ctx, cancel := requestCtx(c)
    defer cancel()

    userID, err := h.Tokens.ValidateRefresh(ctx, hash, h.Now())
    if err != nil {
        if errors.Is(err, repository.ErrRefreshInvalid) {
            return errorJSON(c, http.StatusUnauthorized, "invalid refresh")
        }
        return internalError(c, "validate refresh failed", err)
    }
    u, err := h.Users.GetByID(ctx, userID)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return errorJSON(c, http.StatusUnauthorized, "invalid refresh")
        }
        return internalError(c, "load user failed", err)
    }
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
    if err != nil {
        return internalError(c, "issue access failed", err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "access": tokenPart{Token: access.Token, Expires: access.Exp},
    })
}

// Logout revokes one session when a refresh_token is posted, or every
// session of the caller when only a valid bearer token is sent.
func (h *AuthHandler) Logout(c echo.Context) error {
    var uid uint64
    if raw := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer "); raw != "" {
        if claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, raw); err == nil {
            uid = claims.UserID
        }
    }
    var req refreshReq
    _ = c.Bind(&req)
    refreshToken := strings.TrimSpace(req.RefreshToken)

    ctx, cancel := requestCtx(c)
    defer cancel()

    switch {
    case refreshToken != "":
        hash := utils.HashRefreshRaw(refreshToken)
        if _, err := h.Tokens.ValidateRefresh(ctx, hash, h.Now()); err != nil {
            if errors.Is(err, repository.ErrRefreshInvalid) {
                return errorJSON(c, http.StatusUnauthorized, "invalid refresh token")
            }
            return internalError(c, "logout failed", err)
        }
        if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
            return internalError(c, "logout failed", err)
        }
        return c.NoContent(http.StatusNoContent)
    case uid != 0:
        if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
            return internalError(c, "logout failed", err)
        }
        return c.NoContent(http.StatusNoContent)
    }
    return errorJSON(c, http.StatusBadRequest, "provide Authorization header or refresh_token")
}

// ForgotPassword starts a password reset.  There is no mail transport:
// the token is logged and returned in the body.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
    var req forgotReq
    if err := c.Bind(&req); err != nil {
        return errorJSON(c, http.StatusBadRequest, "invalid body")
    }
    email := strings.ToLower(strings.TrimSpace(req.Email))
    if email == "" {
        return errorJSON(c, http.StatusBadRequest, "email is required")
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    u, err := h.Users.GetByEmail(ctx, email)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return errorJSON(c, http.StatusNotFound, "user not found")
        }
        return internalError(c, "query failed", err)
    }
    rt := utils.NewResetToken(h.Now(), h.Cfg.ResetTokenTTL)
    if err := h.Users.SetResetToken(ctx, u.ID, rt.Token, rt.Exp); err != nil {
        return internalError(c, "save reset token failed", err)
    }
    c.Logger().Infof("password reset token for %s: %s (expires %s)", u.Email, rt.Token, rt.Exp.Format(time.RFC3339))
    return c.JSON(http.StatusOK, echo.Map{
        "message": "reset token issued",
        "token":   rt.Token,
        "expires": rt.Exp,
    })
}

// ResetPassword sets a new password using a live reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
    var req resetReq
    if err := c.Bind(&req); err != nil {
        return errorJSON(c, http.StatusBadRequest, "invalid body")
    }
    req.Token = strings.TrimSpace(req.Token)
    if req.Token == "" || req.NewPassword == "" {
        return errorJSON(c, http.StatusBadRequest, "token and new_password are required")
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    if err := h.Users.ResetPassword(ctx, req.Token, req.NewPassword, h.Cfg.BcryptCost, h.Now()); err != nil {
        if errors.Is(err, repository.ErrResetTokenInvalid) {
            return errorJSON(c, http.StatusBadRequest, "invalid or expired token")
        }
        return internalError(c, "reset password failed", err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "password reset"})
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return errorJSON(c, http.StatusUnauthorized, "unauthorized")
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    u, err := h.Users.GetByID(ctx, uid)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return errorJSON(c, http.StatusNotFound, "user not found")
        }
        return internalError(c, "load user failed", err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "id":               u.ID,
        "name":             u.Name,
        "email":            u.Email,
        "role":             u.Role,
        "has_device_token": u.HasDeviceToken(),
        "created_at":       u.CreatedAt,
    })
}

// UpdateMe changes the caller's name and/or email.
func (h *AuthHandler) UpdateMe(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return errorJSON(c, http.StatusUnauthorized, "unauthorized")
    }
    var req profileReq
    if err := c.Bind(&req); err != nil {
        return errorJSON(c, http.StatusBadRequest, "invalid body")
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    u, err := h.Users.GetByID(ctx, uid)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return errorJSON(c, http.StatusNotFound, "user not found")
        }
        return internalError(c, "load user failed", err)
    }
    name, email := u.Name, u.Email
    if req.Name != nil {
        name = strings.TrimSpace(*req.Name)
    }
    if req.Email != nil {
        email = strings.ToLower(strings.TrimSpace(*req.Email))
    }
    if name == "" || !validEmail(email) {
        return errorJSON(c, http.StatusBadRequest, "name must not be empty and email must be valid")
    }
    if err := h.Users.UpdateProfile(ctx, uid, name, email); err != nil {
        if errors.Is(err, repository.ErrEmailExists) {
            return errorJSON(c, http.StatusConflict, "email already exists")
        }
        return internalError(c, "update profile failed", err)
    }
    return c.JSON(http.StatusOK, userPart{ID: uid, Name: name, Email: email, Role: u.Role})
}

// SetDeviceToken registers the push token of the caller's device.  An
// empty token turns reminders off.
func (h *AuthHandler) SetDeviceToken(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return errorJSON(c, http.StatusUnauthorized, "unauthorized")
    }
    var req deviceTokenReq
    if err := c.Bind(&req); err != nil {
        return errorJSON(c, http.StatusBadRequest, "invalid body")
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    if err := h.Users.SetDeviceToken(ctx, uid, req.DeviceToken); err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return errorJSON(c, http.StatusNotFound, "user not found")
        }
        return internalError(c, "save device token failed", err)
    }
    return c.NoContent(http.StatusNoContent)
}
