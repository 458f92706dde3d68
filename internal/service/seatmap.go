package service

import (
	"strconv"
	"strings"

	"github.com/iliyamo/ticket-booking/internal/model"
)

// RowLabel converts a 1-based row number to its letter label using
// bijective base 26: 1 -> A, 26 -> Z, 27 -> AA, 702 -> ZZ, 703 -> AAA.
// Non-positive rows yield "".
func RowLabel(row int) string {
	if row <= 0 {
		return ""
	}
	var buf [16]byte
	i := len(buf)
	for n := row; n > 0; n = (n - 1) / 26 {
		i--
		buf[i] = byte('A' + (n-1)%26)
	}
	return string(buf[i:])
}

// SeatLabel is the label of the seat at (row, col), e.g. "B7".
func SeatLabel(row, col int) string {
	return RowLabel(row) + strconv.Itoa(col)
}

// NormalizeLabel trims and upper-cases a client supplied seat label.
func NormalizeLabel(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// GenerateSeats lays out a rows x cols grid for the event in row-major
// order.  Row and column numbers start at 1.
func GenerateSeats(eventID uint64, rows, cols int) ([]model.Seat, error) {
	if rows <= 0 || cols <= 0 {
		return nil, ErrInvalidDimensions
	}
	seats := make([]model.Seat, 0, rows*cols)
	for r := 1; r <= rows; r++ {
		prefix := RowLabel(r)
		for c := 1; c <= cols; c++ {
			seats = append(seats, model.Seat{
				EventID: eventID,
				Label:   prefix + strconv.Itoa(c),
				RowNum:  r,
				ColNum:  c,
			})
		}
	}
	return seats, nil
}
