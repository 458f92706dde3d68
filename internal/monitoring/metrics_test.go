package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackBooking(t *testing.T) {
	before := testutil.ToFloat64(bookingsTotal.WithLabelValues(BookingSuccess))
	seatsBefore := testutil.ToFloat64(bookedSeatsTotal)

	TrackBooking(BookingSuccess, 3, 20*time.Millisecond)
	TrackBooking(BookingConflict, 2, time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(bookingsTotal.WithLabelValues(BookingSuccess)))
	assert.Equal(t, seatsBefore+3, testutil.ToFloat64(bookedSeatsTotal))
}

func TestTrackReminder(t *testing.T) {
	sent := testutil.ToFloat64(remindersSent.WithLabelValues(ReminderScan))
	failed := testutil.ToFloat64(reminderFailures.WithLabelValues(ReminderScan))

	TrackReminder(ReminderScan, true)
	TrackReminder(ReminderScan, false)
	TrackReminder(ReminderScan, false)

	assert.Equal(t, sent+1, testutil.ToFloat64(remindersSent.WithLabelValues(ReminderScan)))
	assert.Equal(t, failed+2, testutil.ToFloat64(reminderFailures.WithLabelValues(ReminderScan)))
}
