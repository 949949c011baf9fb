package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/numbers-lottery/internal/game"
	"github.com/iliyamo/numbers-lottery/internal/model"
)

// GameStore is the MySQL round store.  It implements game.Store through
// InTx and game.Views through its read methods.
type GameStore struct{ DB *sql.DB }

func NewGameStore(db *sql.DB) *GameStore { return &GameStore{DB: db} }

var (
	_ game.Store = (*GameStore)(nil)
	_ game.Views = (*GameStore)(nil)
)

// InTx begins a transaction, runs fn and commits when fn succeeds.  Any
// error, including one from Commit, rolls the transaction back.
func (s *GameStore) InTx(ctx context.Context, fn func(tx game.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translate(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&gameTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate(err)
	}
	committed = true
	return nil
}

type gameTx struct{ tx *sql.Tx }

const roundCols = `id, digit_length, state, winning_number, opened_at, closed_at, settled_at`

func lockClause(lock game.LockMode) string {
	switch lock {
	case game.LockShared:
		return " FOR SHARE"
	case game.LockExclusive:
		return " FOR UPDATE"
	}
	return ""
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(sc rowScanner) (*model.Round, error) {
	var (
		r        model.Round
		state    string
		winning  sql.NullInt64
		closedAt sql.NullTime
		settled  sql.NullTime
	)
	if err := sc.Scan(&r.ID, &r.DigitLength, &state, &winning, &r.OpenedAt, &closedAt, &settled); err != nil {
		return nil, translate(err)
	}
	r.State = model.RoundState(state)
	if winning.Valid {
		w := int(winning.Int64)
		r.WinningNumber = &w
	}
	if closedAt.Valid {
		t := closedAt.Time
		r.ClosedAt = &t
	}
	if settled.Valid {
		t := settled.Time
		r.SettledAt = &t
	}
	return &r, nil
}

func (t *gameTx) OpenRound(ctx context.Context, digits int, lock game.LockMode) (*model.Round, error) {
	q := `SELECT ` + roundCols + ` FROM rounds
	      WHERE digit_length = ? AND state = 'OPEN' AND winning_number IS NULL
	      ORDER BY id DESC LIMIT 1` + lockClause(lock)
	return scanRound(t.tx.QueryRowContext(ctx, q, digits))
}

// CreateRound relies on the unique open_slot column: a second OPEN,
// unsettled round for the same digit length fails with 1062.
func (t *gameTx) CreateRound(ctx context.Context, digits int, at time.Time) (*model.Round, error) {
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO rounds (digit_length, state, opened_at) VALUES (?, 'OPEN', ?)",
		digits, at)
	if err != nil {
		return nil, translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.Round{ID: uint64(id), DigitLength: digits, State: model.RoundOpen, OpenedAt: at}, nil
}

func (t *gameTx) Round(ctx context.Context, id uint64, lock game.LockMode) (*model.Round, error) {
	q := `SELECT ` + roundCols + ` FROM rounds WHERE id = ?` + lockClause(lock)
	return scanRound(t.tx.QueryRowContext(ctx, q, id))
}

func (t *gameTx) CountReserved(ctx context.Context, roundID uint64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM game_numbers WHERE round_id = ?", roundID).Scan(&n)
	return n, translate(err)
}

func (t *gameTx) TakenNumbers(ctx context.Context, roundID uint64) ([]int, error) {
	return queryInts(ctx, t.tx, "SELECT number FROM game_numbers WHERE round_id = ? ORDER BY number", roundID)
}

func (t *gameTx) HolderNumbers(ctx context.Context, roundID, userID uint64) ([]int, error) {
	return queryInts(ctx, t.tx,
		"SELECT number FROM game_numbers WHERE round_id = ? AND user_id = ? ORDER BY slot, id",
		roundID, userID)
}

// InsertBlock issues one INSERT IGNORE for the whole block.  Rows whose
// (round_id, number) already exists are skipped, so RowsAffected is the
// number of numbers this call actually won.
func (t *gameTx) InsertBlock(ctx context.Context, roundID, userID uint64, numbers []int, at time.Time) (int, error) {
	if len(numbers) == 0 {
		return 0, nil
	}
	var b strings.Builder
	b.WriteString("INSERT IGNORE INTO game_numbers (round_id, number, slot, user_id, reserved_at) VALUES ")
	args := make([]interface{}, 0, len(numbers)*5)
	for i, n := range numbers {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, roundID, n, i+1, userID, at)
	}
	res, err := t.tx.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, translate(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *gameTx) DeleteBlock(ctx context.Context, roundID, userID uint64) (int, error) {
	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM game_numbers WHERE round_id = ? AND user_id = ?", roundID, userID)
	if err != nil {
		return 0, translate(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *gameTx) CloseRound(ctx context.Context, roundID uint64, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE rounds SET state = 'CLOSED', closed_at = ? WHERE id = ? AND state = 'OPEN'",
		at, roundID)
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SettleRound keeps an earlier capacity closed_at and only ever sets the
// winning number once.
func (t *gameTx) SettleRound(ctx context.Context, roundID uint64, winning int, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE rounds
		 SET winning_number = ?, settled_at = ?, closed_at = COALESCE(closed_at, ?), state = 'CLOSED'
		 WHERE id = ? AND winning_number IS NULL`,
		winning, at, at, roundID)
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t *gameTx) Holdings(ctx context.Context, roundID uint64) ([]model.Holding, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT user_id, number FROM game_numbers WHERE round_id = ? ORDER BY user_id, number", roundID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var out []model.Holding
	for rows.Next() {
		var h model.Holding
		if err := rows.Scan(&h.UserID, &h.Number); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, translate(rows.Err())
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryInts(ctx context.Context, q querier, query string, args ...any) ([]int, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	out := make([]int, 0, 8)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, translate(rows.Err())
}
