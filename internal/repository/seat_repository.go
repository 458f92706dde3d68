package repository // repository defines data access for seats

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"errors"       // errors for sentinel comparisons
	"strings"

	"github.com/iliyamo/ticket-booking/internal/model"
)

// SeatRepo provides methods to work with seats in the database.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// CreateBulk inserts multiple seats in a single statement.  Call it with a
// transactional ctx to make the seat map appear together with its event.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO seats (event_id, label, row_num, col_num) VALUES `)
	args := make([]interface{}, 0, len(seats)*4)
	for i, seat := range seats {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?)")
		args = append(args, seat.EventID, seat.Label, seat.RowNum, seat.ColNum)
	}
	_, err := conn(ctx, r.db).ExecContext(ctx, b.String(), args...)
	return storageErr(err)
}

// ListByEvent retrieves all seats of an event in row-major order.
func (r *SeatRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Seat, error) {
	const q = `SELECT id, event_id, label, row_num, col_num
	           FROM seats
	           WHERE event_id = ?
	           ORDER BY row_num, col_num`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.EventID, &s.Label, &s.RowNum, &s.ColNum); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// FindByEventAndLabel resolves a seat label within an event.
func (r *SeatRepo) FindByEventAndLabel(ctx context.Context, eventID uint64, label string) (*model.Seat, error) {
	const q = `SELECT id, event_id, label, row_num, col_num
	           FROM seats WHERE event_id = ? AND label = ?`
	var s model.Seat
	err := conn(ctx, r.db).QueryRowContext(ctx, q, eventID, label).
		Scan(&s.ID, &s.EventID, &s.Label, &s.RowNum, &s.ColNum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeatNotFound
		}
		return nil, storageErr(err)
	}
	return &s, nil
}
