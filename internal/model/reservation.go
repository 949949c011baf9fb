package model

import "time"

// Reservation is one player's claim on one number inside a round.  The
// pair (RoundID, Number) is unique, and a player holds either zero or
// exactly BlockSize reservations per round.
//
// Fields:
//  ID         – game_numbers.id.
//  RoundID    – round the number belongs to.
//  Number     – the reserved number, stored without padding.
//  Slot       – position 1..5 inside the holder's block (display only).
//  UserID     – holder.
//  ReservedAt – insertion timestamp.
type Reservation struct {
    ID         uint64    // game_numbers.id
    RoundID    uint64    // game_numbers.round_id
    Number     int       // game_numbers.number
    Slot       int       // game_numbers.slot
    UserID     uint64    // game_numbers.user_id
    ReservedAt time.Time // game_numbers.reserved_at
}

// Holding pairs a holder with one number; settlement reads these.
type Holding struct {
    UserID uint64
    Number int
}

// Selection is a player's block in a specific round.
type Selection struct {
    RoundID uint64 `json:"round_id"`
    Numbers []int  `json:"numbers"`
}

// HistoryItem describes one round a player took part in.
type HistoryItem struct {
    RoundID       uint64     `json:"round_id"`
    DigitLength   int        `json:"digits"`
    State         RoundState `json:"state"`
    WinningNumber *int       `json:"winning_number"`
    Numbers       []int      `json:"numbers"`
    OpenedAt      time.Time  `json:"opened_at"`
    ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// RoundSummary is the operator's view of a round.
type RoundSummary struct {
    ID            uint64     `json:"id"`
    DigitLength   int        `json:"digits"`
    State         RoundState `json:"state"`
    WinningNumber *int       `json:"winning_number"`
    Reserved      int        `json:"reserved"`
    Players       int        `json:"players"`
    OpenedAt      time.Time  `json:"opened_at"`
    ClosedAt      *time.Time `json:"closed_at,omitempty"`
}
