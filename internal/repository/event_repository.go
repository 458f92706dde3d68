package repository // repository defines data access for events

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/ticket-booking/internal/model"
)

// EventRepo provides methods to work with events in the database.  Every
// method joins the transaction carried by ctx, if any.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo with the given DB handle.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

const eventColumns = `id, title, description, starts_at, price, city, venue, location,
	image_banner, image_key, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner) (*model.Event, error) {
	var (
		e        model.Event
		startsAt sql.NullTime
	)
	if err := s.Scan(&e.ID, &e.Title, &e.Description, &startsAt, &e.Price, &e.City, &e.Venue,
		&e.Location, &e.ImageBanner, &e.ImageKey, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if startsAt.Valid {
		t := startsAt.Time.UTC()
		e.StartsAt = &t
	}
	return &e, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Create inserts the event and populates its ID.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	const q = `INSERT INTO events (title, description, starts_at, price, city, venue, location, image_banner, image_key)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, e.Title, e.Description, nullTime(e.StartsAt), e.Price,
		e.City, e.Venue, e.Location, e.ImageBanner, e.ImageKey)
	if err != nil {
		return storageErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// GetByID retrieves an event by id.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return e, nil
}

// List returns events ordered by start time (unscheduled last).  A non-empty
// city restricts the result; the column collation makes the match
// case-insensitive.
func (r *EventRepo) List(ctx context.Context, city string) ([]model.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if city = strings.TrimSpace(city); city != "" {
		q += ` WHERE city = ?`
		args = append(args, city)
	}
	q += ` ORDER BY starts_at IS NULL, starts_at, id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Update overwrites every mutable column of the event.
func (r *EventRepo) Update(ctx context.Context, e *model.Event) error {
	const q = `UPDATE events
	           SET title = ?, description = ?, starts_at = ?, price = ?, city = ?, venue = ?,
	               location = ?, image_banner = ?, image_key = ?, updated_at = CURRENT_TIMESTAMP
	           WHERE id = ?`
	res, err := conn(ctx, r.db).ExecContext(ctx, q, e.Title, e.Description, nullTime(e.StartsAt), e.Price,
		e.City, e.Venue, e.Location, e.ImageBanner, e.ImageKey, e.ID)
	if err != nil {
		return storageErr(err)
	}
	// MySQL reports 0 affected rows when nothing changed, so confirm existence.
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, e.ID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the event; seats and tickets go with it (ON DELETE CASCADE).
func (r *EventRepo) Delete(ctx context.Context, id uint64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return storageErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEventNotFound
	}
	return nil
}
