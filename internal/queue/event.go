// Package queue defines message payloads exchanged over the message broker
// and the consumer that turns booking events into a log file.
package queue

// TicketsBookedEvent is published when a booking request commits.  It
// carries enough information for downstream consumers to log, notify, or
// trigger analytics without querying the primary database.
type TicketsBookedEvent struct {
    EventID    uint64   `json:"event_id"`
    EventTitle string   `json:"event_title"`
    StartsAt   string   `json:"starts_at,omitempty"`
    UserID     *uint64  `json:"user_id,omitempty"` // nil for guest bookings
    TicketIDs  []uint64 `json:"ticket_ids"`
    SeatLabels []string `json:"seats"`
    BookedAt   string   `json:"booked_at"`
}

// PushNotification is one push message for the notification gateway that
// owns delivery to devices.
type PushNotification struct {
    DeviceToken string `json:"device_token"`
    Title       string `json:"title"`
    Body        string `json:"body"`
    Type        string `json:"type"`
    CreatedAt   string `json:"created_at"`
}
