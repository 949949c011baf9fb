package model

import "time"

// RoundState is the stored lifecycle state of a round.
type RoundState string

const (
    RoundOpen   RoundState = "OPEN"
    RoundClosed RoundState = "CLOSED"
)

// Phase is the derived lifecycle phase of the round pool for one digit
// length.  Only OPEN and CLOSED are stored; the other two are observed
// between transactions.
type Phase string

const (
    PhaseNoOpenRound Phase = "NO_OPEN_ROUND"
    PhaseOpen        Phase = "OPEN"
    PhasePendingRoll Phase = "FULL_PENDING_ROLLOVER"
    PhaseClosed      Phase = "CLOSED"
)

// BlockSize is the number of distinct numbers every player holds in a round.
const BlockSize = 5

// Round represents one instance of the numbers pool for a digit length.
// A round accepts reservations while it is OPEN and has no winning number.
//
// Fields:
//  ID            – rounds.id, assigned by the database.
//  DigitLength   – 3 or 4; fixes the numeric domain and the capacity.
//  State         – OPEN or CLOSED.
//  WinningNumber – set once by settlement (nullable).
//  OpenedAt      – creation timestamp.
//  ClosedAt      – when the round left OPEN (nullable).
//  SettledAt     – when the winning number was fixed (nullable).
type Round struct {
    ID            uint64     // rounds.id
    DigitLength   int        // rounds.digit_length
    State         RoundState // rounds.state
    WinningNumber *int       // rounds.winning_number (nullable)
    OpenedAt      time.Time  // rounds.opened_at
    ClosedAt      *time.Time // rounds.closed_at (nullable)
    SettledAt     *time.Time // rounds.settled_at (nullable)
}

// Accepting reports whether the round can still take reservations.
func (r *Round) Accepting() bool {
    return r.State == RoundOpen && r.WinningNumber == nil
}

// Settled reports whether a winning number has been fixed.
func (r *Round) Settled() bool { return r.WinningNumber != nil }

// Capacity returns how many numbers exist in the round's domain.
func (r *Round) Capacity() int { return Capacity(r.DigitLength) }

// ValidDigitLength reports whether d is a supported digit length.
func ValidDigitLength(d int) bool { return d == 3 || d == 4 }

// Capacity returns 10^d for a supported digit length and 0 otherwise.
func Capacity(d int) int {
    switch d {
    case 3:
        return 1000
    case 4:
        return 10000
    }
    return 0
}

// PhaseOf derives the lifecycle phase from a round and its reservation
// count.  A nil round means no round is open for the digit length.
func PhaseOf(r *Round, reserved int) Phase {
    switch {
    case r == nil:
        return PhaseNoOpenRound
    case !r.Accepting():
        return PhaseClosed
    case reserved >= r.Capacity():
        return PhasePendingRoll
    }
    return PhaseOpen
}
