package service

import (
    "context"
    "time"

    q "github.com/iliyamo/ticket-booking/internal/queue"
)

// pushKind tags every push message so the gateway can route it.
const pushKind = "EVENT_REMINDER"

type queuePublisher interface {
    Publish(ctx context.Context, queue string, v any) error
}

// QueueSender hands push notifications to the notification gateway through
// a broker queue.  Delivery to the device is the gateway's job.
type QueueSender struct {
    pub   queuePublisher
    queue string
    clock Clock
}

// NewQueueSender returns a Sender publishing to queue.
func NewQueueSender(pub queuePublisher, queue string, clock Clock) *QueueSender {
    return &QueueSender{pub: pub, queue: queue, clock: clock}
}

func (s *QueueSender) Send(ctx context.Context, deviceToken, title, body string) error {
    return s.pub.Publish(ctx, s.queue, q.PushNotification{
        DeviceToken: deviceToken,
        Title:       title,
        Body:        body,
        Type:        pushKind,
        CreatedAt:   s.clock.Now().Format(time.RFC3339),
    })
}

// LogSender only logs pushes.  It is used when push delivery is disabled.
type LogSender struct{ Log Logger }

func (s LogSender) Send(_ context.Context, deviceToken, title, body string) error {
    s.Log.Infof("push (disabled): token=%s title=%q body=%q", maskToken(deviceToken), title, body)
    return nil
}

func maskToken(t string) string {
    if len(t) <= 6 {
        return "***"
    }
    return t[:6] + "***"
}
