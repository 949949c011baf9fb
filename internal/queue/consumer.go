package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/numbers-lottery/internal/logger"
    "github.com/iliyamo/numbers-lottery/internal/model"
)

// Inbox stores rendered notifications.  Insert reports false for an
// intent that was already stored.
type Inbox interface {
    Insert(ctx context.Context, n model.Notification) (bool, error)
}

// errPoison marks a message that can never be processed.
var errPoison = errors.New("poison message")

// Consumer drains the notification queue into the inbox.
type Consumer struct {
    URL   string
    Queue string
    Inbox Inbox
    Now   func() time.Time
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with a capped exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            logger.Warnf("notify-consumer: dial failed: %v; retrying in %s", err, backoff)
            if !wait(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        logger.Warnf("notify-consumer: consume loop ended: %v; reconnecting", err)
        if !wait(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        logger.Warnf("notify-consumer: set QoS failed: %v", err)
    }
    if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            c.settle(d, c.Handle(ctx, d.Body))
        }
    }
}

func (c *Consumer) settle(d amqp.Delivery, err error) {
    switch {
    case err == nil:
        _ = d.Ack(false)
    case errors.Is(err, errPoison):
        logger.Errorf("notify-consumer: dropping message %s: %v", d.MessageId, err)
        _ = d.Nack(false, false)
    default:
        logger.Warnf("notify-consumer: requeue message %s: %v", d.MessageId, err)
        _ = d.Nack(false, true)
    }
}

// Handle processes one message body.  A malformed body wraps errPoison;
// a storage failure is returned as is so the message is redelivered.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
    var msg NotificationMessage
    if err := json.Unmarshal(body, &msg); err != nil {
        return fmt.Errorf("%w: unmarshal: %v", errPoison, err)
    }
    if err := msg.validate(); err != nil {
        return fmt.Errorf("%w: %v", errPoison, err)
    }
    now := time.Now()
    if c.Now != nil {
        now = c.Now()
    }
    inserted, err := c.Inbox.Insert(ctx, msg.Notification(now))
    if err != nil {
        return fmt.Errorf("store notification: %w", err)
    }
    if !inserted {
        logger.Debugf("notify-consumer: duplicate intent round=%d user=%d kind=%s", msg.RoundID, msg.RecipientID, msg.Kind)
    }
    return nil
}

// IsPoison reports whether err came from a message that cannot be processed.
func IsPoison(err error) bool { return errors.Is(err, errPoison) }

func wait(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
