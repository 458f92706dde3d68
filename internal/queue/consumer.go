package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// Logger is the subset of the gommon logger the consumer writes to.
type Logger interface {
    Infof(format string, args ...interface{})
    Warnf(format string, args ...interface{})
    Errorf(format string, args ...interface{})
}

// BookingConsumer appends one line per TicketsBookedEvent to a log file.
type BookingConsumer struct {
    URL     string
    Queue   string
    LogPath string
    Log     Logger
}

// Run connects to RabbitMQ, declares the queue (durable) and consumes
// messages until ctx is cancelled.  Broken connections are redialled with
// exponential backoff.  A message that cannot be handled is rejected
// without requeue so the consumer keeps going.
func (bc *BookingConsumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(bc.URL)
        if err != nil {
            bc.Log.Warnf("booking-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = bc.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        bc.Log.Warnf("booking-consumer: consume loop ended: %v; reconnecting", err)
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (bc *BookingConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        bc.Log.Warnf("booking-consumer: set QoS failed: %v", err)
    }
    if _, err := ch.QueueDeclare(bc.Queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(bc.Queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }
    bc.Log.Infof("booking-consumer: consuming %s", bc.Queue)

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := bc.handleMessage(d.Body); err != nil {
                bc.Log.Errorf("booking-consumer: handle message failed: %v", err)
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (bc *BookingConsumer) handleMessage(body []byte) error {
    var ev TicketsBookedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if err := os.MkdirAll(filepath.Dir(bc.LogPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(bc.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatBookingLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatBookingLine renders the single log line written for a booking.
func FormatBookingLine(ev TicketsBookedEvent) string {
    user := "guest"
    if ev.UserID != nil {
        user = fmt.Sprint(*ev.UserID)
    }
    starts := ev.StartsAt
    if starts == "" {
        starts = "unscheduled"
    }
    return fmt.Sprintf("[%s] Tickets booked | event_id=%d | event=%q | starts_at=%s | user_id=%s | tickets=%d | seats=[%s]\n",
        ev.BookedAt, ev.EventID, ev.EventTitle, starts, user, len(ev.TicketIDs), strings.Join(ev.SeatLabels, ","))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
