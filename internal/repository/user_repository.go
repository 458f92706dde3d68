package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/ticket-booking/internal/model"
	"github.com/iliyamo/ticket-booking/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, name, email, password_hash, role, reset_token, reset_token_expires_at,
	device_token, created_at, updated_at`

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u           model.User
		resetToken  sql.NullString
		resetExp    sql.NullTime
		deviceToken sql.NullString
	)
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &resetToken, &resetExp,
		&deviceToken, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if resetToken.Valid {
		u.ResetToken = &resetToken.String
	}
	if resetExp.Valid {
		t := resetExp.Time.UTC()
		u.ResetTokenExpiresAt = &t
	}
	if deviceToken.Valid {
		u.DeviceToken = &deviceToken.String
	}
	return &u, nil
}

// Create hashes the password, inserts the user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, role) VALUES (?,?,?,?)",
		strings.TrimSpace(name), email, hash, role)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	row := conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email=?", strings.ToLower(strings.TrimSpace(email)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.getOne(ctx, "id=?", id)
}

// List returns all users ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := conn(ctx, r.DB).QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *UserRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := conn(ctx, r.DB).ExecContext(ctx, q, args...)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrEmailExists
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// 0 rows also means "no change"; tell the two apart.
		var one int
		err := conn(ctx, r.DB).QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=?", args[len(args)-1]).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// UpdateProfile changes name and email.  The email must stay unique.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, name, email string) error {
	return r.execOne(ctx, "UPDATE users SET name=?, email=? WHERE id=?",
		strings.TrimSpace(name), strings.ToLower(strings.TrimSpace(email)), id)
}

// UpdateRole changes the user's role.
func (r *UserRepo) UpdateRole(ctx context.Context, id uint64, role string) error {
	return r.execOne(ctx, "UPDATE users SET role=? WHERE id=?", role, id)
}

// SetDeviceToken stores the push delivery token; an empty token clears it.
func (r *UserRepo) SetDeviceToken(ctx context.Context, id uint64, token string) error {
	var v any
	if token = strings.TrimSpace(token); token != "" {
		v = token
	}
	return r.execOne(ctx, "UPDATE users SET device_token=? WHERE id=?", v, id)
}

// SetResetToken records a pending password reset for the user.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, token string, exp time.Time) error {
	return r.execOne(ctx, "UPDATE users SET reset_token=?, reset_token_expires_at=? WHERE id=?",
		token, exp.UTC(), id)
}

// ResetPassword replaces the password of the user holding a live reset
// token and clears the token, so it works once.
func (r *UserRepo) ResetPassword(ctx context.Context, token, newPassword string, cost int, now time.Time) error {
	hash, err := utils.HashPassword(newPassword, cost)
	if err != nil {
		return err
	}
	res, err := conn(ctx, r.DB).ExecContext(ctx,
		`UPDATE users SET password_hash=?, reset_token=NULL, reset_token_expires_at=NULL
		 WHERE reset_token=? AND reset_token_expires_at > ?`,
		hash, token, now.UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrResetTokenInvalid
	}
	return nil
}
