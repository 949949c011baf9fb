package model

import "time"

// NotificationKind distinguishes winners from the other participants.
type NotificationKind string

const (
    NotifyWinner      NotificationKind = "WINNER"
    NotifyRoundResult NotificationKind = "ROUND_RESULT"
)

// NotificationIntent is produced by settlement and handed to the delivery
// collaborator.  (RecipientID, Kind, RoundID) identifies an intent.
type NotificationIntent struct {
    RecipientID   uint64           `json:"recipient_user_id"`
    Kind          NotificationKind `json:"kind"`
    RoundID       uint64           `json:"round_id"`
    DigitLength   int              `json:"digits"`
    WinningNumber int              `json:"winning_number"`
}

// Notification is an inbox row written by the delivery consumer.
//
// Fields:
//  ID            – notifications.id.
//  UserID        – recipient.
//  RoundID       – settled round.
//  Kind          – WINNER or ROUND_RESULT.
//  WinningNumber – the round's winning number.
//  Title, Body   – rendered text.
//  CreatedAt     – insertion timestamp.
//  ReadAt        – when the user marked it read (nullable).
type Notification struct {
    ID            uint64           `json:"id"`
    UserID        uint64           `json:"user_id"`
    RoundID       uint64           `json:"round_id"`
    Kind          NotificationKind `json:"kind"`
    WinningNumber int              `json:"winning_number"`
    Title         string           `json:"title"`
    Body          string           `json:"body"`
    CreatedAt     time.Time        `json:"created_at"`
    ReadAt        *time.Time       `json:"read_at,omitempty"`
}
