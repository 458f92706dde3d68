// Package monitoring owns the Prometheus collectors of the service.  They
// register with the default registry, which GET /metrics exposes.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Booking outcomes used as the "result" label.
const (
	BookingSuccess  = "success"
	BookingConflict = "conflict"
	BookingInvalid  = "invalid"
	BookingError    = "error"
)

// Reminder paths used as the "path" label.
const (
	ReminderInstant = "instant"
	ReminderScan    = "scan"
)

var (
	bookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_total",
			Help: "Booking requests by result",
		},
		[]string{"result"},
	)

	bookedSeatsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booked_seats_total",
			Help: "Seats sold",
		},
	)

	bookingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "booking_duration_seconds",
			Help:    "Time spent processing a booking request, retries included",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	bookingRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_retries_total",
			Help: "Booking transactions retried after a deadlock or lock wait timeout",
		},
	)

	remindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Reminder pushes handed to the sender",
		},
		[]string{"path"},
	)

	reminderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_failures_total",
			Help: "Reminder pushes that failed to send",
		},
		[]string{"path"},
	)
)

// TrackBooking records one finished booking request.
func TrackBooking(result string, seats int, took time.Duration) {
	bookingsTotal.WithLabelValues(result).Inc()
	if result == BookingSuccess && seats > 0 {
		bookedSeatsTotal.Add(float64(seats))
	}
	bookingDuration.Observe(took.Seconds())
}

// TrackBookingRetry records a retried booking transaction.
func TrackBookingRetry() {
	bookingRetries.Inc()
}

// TrackReminder records one reminder dispatch attempt.
func TrackReminder(path string, ok bool) {
	if ok {
		remindersSent.WithLabelValues(path).Inc()
		return
	}
	reminderFailures.WithLabelValues(path).Inc()
}
