package model

import "time"

// Roles stored in users.role and carried in the access token.
const (
    RoleUser  = "USER"
    RoleAdmin = "ADMIN"
)

// User represents an account as stored in the `users` table.  Secrets are
// excluded from JSON so the struct can be returned by handlers directly.
//
// Fields:
//  ID                  – primary key identifier.
//  Name                – display name.
//  Email               – unique, lower-cased e-mail address.
//  PasswordHash        – bcrypt hash of the password.
//  Role                – USER or ADMIN.
//  ResetToken          – pending password reset token (nullable).
//  ResetTokenExpiresAt – expiry of ResetToken (nullable).
//  DeviceToken         – push delivery token of the user's device (nullable).
//  CreatedAt           – timestamp of creation.
//  UpdatedAt           – timestamp of last update.
type User struct {
    ID                  uint64     `json:"id"`
    Name                string     `json:"name"`
    Email               string     `json:"email"`
    PasswordHash        string     `json:"-"`
    Role                string     `json:"role"`
    ResetToken          *string    `json:"-"`
    ResetTokenExpiresAt *time.Time `json:"-"`
    DeviceToken         *string    `json:"-"`
    CreatedAt           time.Time  `json:"created_at"`
    UpdatedAt           time.Time  `json:"updated_at"`
}

// HasDeviceToken reports whether push notifications can be delivered to
// the user.
func (u *User) HasDeviceToken() bool {
    return u != nil && u.DeviceToken != nil && *u.DeviceToken != ""
}

// RefreshToken models an entry in the `refresh_tokens` table.  The plain
// token is never stored, only its SHA-256 hash.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
