package service

import (
    "context"
    "encoding/json"
    "errors"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    q "github.com/iliyamo/ticket-booking/internal/queue"
)

// AMQPPublisher publishes JSON messages to durable RabbitMQ queues through
// the default exchange.  The connection is opened lazily, shared by all
// publishes and redialled after the broker drops it.  A channel is opened
// per publish.  Errors are logged and returned; callers treat publishing as
// fire-and-forget.
type AMQPPublisher struct {
    url          string
    bookingQueue string
    log          Logger

    mu   sync.Mutex
    conn *amqp.Connection
    dial func(url string) (*amqp.Connection, error)
}

// dialTimeout bounds connecting to the broker so an unreachable broker
// fails publishes fast.
const dialTimeout = 2 * time.Second

func NewAMQPPublisher(url, bookingQueue string, log Logger) *AMQPPublisher {
    return &AMQPPublisher{url: url, bookingQueue: bookingQueue, log: log, dial: dialBroker}
}

func dialBroker(url string) (*amqp.Connection, error) {
    return amqp.DialConfig(url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(dialTimeout),
    })
}

// connection returns the shared connection, dialling a new one when it is
// missing or closed.  The dial happens outside p.mu; when two callers race
// the first stored connection wins and the other is closed.
func (p *AMQPPublisher) connection() (*amqp.Connection, error) {
    p.mu.Lock()
    if p.conn != nil && !p.conn.IsClosed() {
        conn := p.conn
        p.mu.Unlock()
        return conn, nil
    }
    p.mu.Unlock()

    conn, err := p.dial(p.url)
    if err != nil {
        return nil, err
    }

    p.mu.Lock()
    defer p.mu.Unlock()
    if p.conn != nil && !p.conn.IsClosed() {
        _ = conn.Close()
        return p.conn, nil
    }
    p.conn = conn
    return conn, nil
}

// Publish marshals v and publishes it as a persistent message to queue.
func (p *AMQPPublisher) Publish(ctx context.Context, queue string, v any) error {
    body, err := json.Marshal(v)
    if err != nil {
        p.log.Errorf("rabbitmq: marshal message for %s failed: %v", queue, err)
        return err
    }
    conn, err := p.connection()
    if err != nil {
        p.log.Warnf("rabbitmq: dial failed: %v", err)
        return err
    }
    ch, err := conn.Channel()
    if err != nil {
        p.log.Warnf("rabbitmq: channel open failed: %v", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
        p.log.Warnf("rabbitmq: queue declare %s failed: %v", queue, err)
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
        p.log.Warnf("rabbitmq: publish to %s failed: %v", queue, err)
        return err
    }
    return nil
}

// PublishTicketsBooked publishes ev to the booking queue.
func (p *AMQPPublisher) PublishTicketsBooked(ctx context.Context, ev q.TicketsBookedEvent) error {
    return p.Publish(ctx, p.bookingQueue, ev)
}

// Close closes the shared connection, if open.
func (p *AMQPPublisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.conn == nil {
        return nil
    }
    err := p.conn.Close()
    p.conn = nil
    if errors.Is(err, amqp.ErrClosed) {
        return nil
    }
    return err
}
