// Package queue_publisher publishes settlement notification intents to
// RabbitMQ.  Failures are returned so the caller can retry; they never
// undo a settlement.
package queue_publisher

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/numbers-lottery/internal/game"
    "github.com/iliyamo/numbers-lottery/internal/logger"
    "github.com/iliyamo/numbers-lottery/internal/model"
    q "github.com/iliyamo/numbers-lottery/internal/queue"
)

// Publisher implements game.NotificationSink over one durable queue.
type Publisher struct {
    URL   string
    Queue string
    Now   func() time.Time
}

func New(url, queue string) *Publisher {
    return &Publisher{URL: url, Queue: queue, Now: time.Now}
}

var _ game.NotificationSink = (*Publisher)(nil)

// Enqueue publishes every intent as a persistent message over a single
// connection.  Each message id is derived from the intent, so consumers can
// drop duplicates produced by a retried batch.
func (p *Publisher) Enqueue(ctx context.Context, intents ...model.NotificationIntent) error {
    if len(intents) == 0 {
        return nil
    }
    conn, err := amqp.Dial(p.URL)
    if err != nil {
        logger.Warnf("rabbitmq: dial failed: %v", err)
        return fmt.Errorf("dial: %w", err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    now := time.Now()
    if p.Now != nil {
        now = p.Now()
    }
    for _, in := range intents {
        pub, err := p.publishing(in, now)
        if err != nil {
            return err
        }
        if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, pub); err != nil {
            return fmt.Errorf("publish round=%d user=%d: %w", in.RoundID, in.RecipientID, err)
        }
    }
    logger.Debugf("rabbitmq: published %d intents to %s", len(intents), p.Queue)
    return nil
}

func (p *Publisher) publishing(in model.NotificationIntent, now time.Time) (amqp.Publishing, error) {
    msg := q.NewNotificationMessage(in, now)
    body, err := json.Marshal(msg)
    if err != nil {
        return amqp.Publishing{}, fmt.Errorf("marshal intent: %w", err)
    }
    return amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    msg.MessageID(),
        Type:         string(in.Kind),
        Timestamp:    now.UTC(),
        Body:         body,
    }, nil
}
