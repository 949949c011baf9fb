// Package queue defines the notification payload carried over the message
// broker and the consumer that turns it into inbox rows.
package queue

import (
    "fmt"
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/numbers-lottery/internal/model"
)

// NotificationMessage is published once per notification intent after a
// round is settled.  It carries enough to render the inbox entry without
// querying the rounds table.
type NotificationMessage struct {
    RecipientID   uint64                 `json:"recipient_user_id"`
    Kind          model.NotificationKind `json:"kind"`
    RoundID       uint64                 `json:"round_id"`
    DigitLength   int                    `json:"digits"`
    WinningNumber int                    `json:"winning_number"`
    SettledAt     string                 `json:"settled_at"`
}

// NewNotificationMessage wraps an intent for publishing.
func NewNotificationMessage(in model.NotificationIntent, at time.Time) NotificationMessage {
    return NotificationMessage{
        RecipientID:   in.RecipientID,
        Kind:          in.Kind,
        RoundID:       in.RoundID,
        DigitLength:   in.DigitLength,
        WinningNumber: in.WinningNumber,
        SettledAt:     at.UTC().Format(time.RFC3339),
    }
}

// MessageID is stable for an intent, so a republished intent carries the
// same id as the first attempt.
func (m NotificationMessage) MessageID() string {
    key := fmt.Sprintf("%d:%d:%s", m.RoundID, m.RecipientID, m.Kind)
    return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// Render builds the inbox title and body.
func (m NotificationMessage) Render() (title, body string) {
    number := fmt.Sprintf("%0*d", m.DigitLength, m.WinningNumber)
    if m.Kind == model.NotifyWinner {
        return fmt.Sprintf("You won round #%d", m.RoundID),
            fmt.Sprintf("Your number %s was drawn in the %d-digit round #%d. Congratulations!", number, m.DigitLength, m.RoundID)
    }
    return fmt.Sprintf("Round #%d results", m.RoundID),
        fmt.Sprintf("The winning number of the %d-digit round #%d is %s. Better luck next round.", m.DigitLength, m.RoundID, number)
}

// Notification converts the message into an inbox row.
func (m NotificationMessage) Notification(now time.Time) model.Notification {
    title, body := m.Render()
    return model.Notification{
        UserID:        m.RecipientID,
        RoundID:       m.RoundID,
        Kind:          m.Kind,
        WinningNumber: m.WinningNumber,
        Title:         title,
        Body:          body,
        CreatedAt:     now.UTC(),
    }
}

func (m NotificationMessage) validate() error {
    if m.RecipientID == 0 || m.RoundID == 0 {
        return fmt.Errorf("missing recipient or round")
    }
    if m.Kind != model.NotifyWinner && m.Kind != model.NotifyRoundResult {
        return fmt.Errorf("unknown kind %q", m.Kind)
    }
    if m.DigitLength != 3 && m.DigitLength != 4 {
        return fmt.Errorf("bad digit length %d", m.DigitLength)
    }
    return nil
}
