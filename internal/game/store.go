package game

import (
	"context"
	"time"

	"github.com/iliyamo/numbers-lottery/internal/model"
)

// LockMode selects the row lock taken when a round is read.
type LockMode int

const (
	LockNone      LockMode = iota // consistent read
	LockShared                    // SELECT ... FOR SHARE
	LockExclusive                 // SELECT ... FOR UPDATE
)

// Tx is the set of row operations the core issues inside one transaction.
// Every decision is taken on what a Tx returns; nothing is cached between
// transactions.
type Tx interface {
	// OpenRound returns the newest OPEN round without a winning number for
	// digits, or ErrNotFound.
	OpenRound(ctx context.Context, digits int, lock LockMode) (*model.Round, error)
	// CreateRound inserts an OPEN round.  It returns ErrDuplicate when
	// another OPEN, unsettled round for digits already exists.
	CreateRound(ctx context.Context, digits int, at time.Time) (*model.Round, error)
	// Round loads a round by id, or ErrNotFound.
	Round(ctx context.Context, id uint64, lock LockMode) (*model.Round, error)
	CountReserved(ctx context.Context, roundID uint64) (int, error)
	TakenNumbers(ctx context.Context, roundID uint64) ([]int, error)
	// HolderNumbers returns the user's numbers in slot order.
	HolderNumbers(ctx context.Context, roundID, userID uint64) ([]int, error)
	// InsertBlock inserts one row per number, skipping numbers already held
	// in the round, and returns how many rows were actually inserted.
	InsertBlock(ctx context.Context, roundID, userID uint64, numbers []int, at time.Time) (int, error)
	DeleteBlock(ctx context.Context, roundID, userID uint64) (int, error)
	// CloseRound moves an OPEN round to CLOSED and reports whether this
	// call made the transition.
	CloseRound(ctx context.Context, roundID uint64, at time.Time) (bool, error)
	// SettleRound fixes the winning number and closes the round.  It
	// reports false when a winning number was already set.
	SettleRound(ctx context.Context, roundID uint64, winning int, at time.Time) (bool, error)
	Holdings(ctx context.Context, roundID uint64) ([]model.Holding, error)
}

// Store runs transactions against the round store.
type Store interface {
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Views serves the read-only projections.  They are not part of any
// allocation decision.
type Views interface {
	// LastSelection returns the newest round where the user holds a full
	// block, or ErrNotFound.
	LastSelection(ctx context.Context, userID uint64) (*model.Selection, error)
	History(ctx context.Context, userID uint64, limit, offset int) ([]model.HistoryItem, int, error)
	ListRounds(ctx context.Context, limit, offset int) ([]model.RoundSummary, int, error)
}

// EntitlementSource reads the billing subsystem's snapshot for a user.
type EntitlementSource interface {
	GetEntitlement(ctx context.Context, userID uint64) (model.Entitlement, error)
}

// NotificationSink accepts notification intents for delivery.
type NotificationSink interface {
	Enqueue(ctx context.Context, intents ...model.NotificationIntent) error
}
