package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/numbers-lottery/internal/game"
	"github.com/iliyamo/numbers-lottery/internal/model"
)

var at = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var roundColumns = []string{"id", "digit_length", "state", "winning_number", "opened_at", "closed_at", "settled_at"}

func TestTranslate(t *testing.T) {
	assert.Nil(t, translate(nil))
	assert.ErrorIs(t, translate(sql.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, translate(&mysql.MySQLError{Number: 1062}), ErrDuplicate)
	assert.ErrorIs(t, translate(&mysql.MySQLError{Number: 1205}), game.ErrTransient)
	assert.ErrorIs(t, translate(fmt.Errorf("exec: %w", &mysql.MySQLError{Number: 1213})), game.ErrTransient)
	assert.ErrorIs(t, translate(context.DeadlineExceeded), game.ErrTransient)

	other := &mysql.MySQLError{Number: 1146}
	assert.Same(t, other, translate(other))
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM rounds WHERE id = ? FOR UPDATE")).WithArgs(7).
		WillReturnRows(sqlmock.NewRows(roundColumns).AddRow(7, 3, "OPEN", nil, at, nil, nil))
	mock.ExpectCommit()

	var got *model.Round
	err := NewGameStore(db).InTx(context.Background(), func(tx game.Tx) error {
		r, err := tx.Round(context.Background(), 7, game.LockExclusive)
		got = r
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoundOpen, got.State)
	assert.Nil(t, got.WinningNumber)
	assert.Nil(t, got.ClosedAt)
}

func TestInTxRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := NewGameStore(db).InTx(context.Background(), func(game.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestOpenRoundSharedLockAndNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("ORDER BY id DESC LIMIT 1 FOR SHARE")).WithArgs(4).
		WillReturnRows(sqlmock.NewRows(roundColumns).AddRow(9, 4, "OPEN", nil, at, nil, nil))
	mock.ExpectQuery(q("ORDER BY id DESC LIMIT 1")).WithArgs(3).
		WillReturnRows(sqlmock.NewRows(roundColumns))
	mock.ExpectRollback()

	err := NewGameStore(db).InTx(context.Background(), func(tx game.Tx) error {
		r, err := tx.OpenRound(context.Background(), 4, game.LockShared)
		require.NoError(t, err)
		assert.Equal(t, uint64(9), r.ID)
		_, err = tx.OpenRound(context.Background(), 3, game.LockNone)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRoundDuplicateOpenSlot(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO rounds (digit_length, state, opened_at)")).WithArgs(3, at).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '3' for key 'uq_rounds_open_slot'"})
	mock.ExpectRollback()

	err := NewGameStore(db).InTx(context.Background(), func(tx game.Tx) error {
		_, err := tx.CreateRound(context.Background(), 3, at)
		return err
	})
	assert.ErrorIs(t, err, game.ErrDuplicate)
}

func TestInsertBlockCountsWonRows(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT IGNORE INTO game_numbers (round_id, number, slot, user_id, reserved_at) VALUES (?, ?, ?, ?, ?),(?, ?, ?, ?, ?)")).
		WithArgs(5, 11, 1, 2, at, 5, 12, 2, 2, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var won int
	err := NewGameStore(db).InTx(context.Background(), func(tx game.Tx) error {
		var err error
		won, err = tx.InsertBlock(context.Background(), 5, 2, []int{11, 12}, at)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, won)
}

func TestSettleRoundOnlyOnce(t *testing.T) {
	db, mock := newMock(t)
	settle := q("UPDATE rounds") + `\s+` + q("SET winning_number = ?, settled_at = ?, closed_at = COALESCE(closed_at, ?), state = 'CLOSED'")
	mock.ExpectBegin()
	mock.ExpectExec(settle).WithArgs(42, at, at, 8).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(settle).WithArgs(43, at, at, 8).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := NewGameStore(db).InTx(context.Background(), func(tx game.Tx) error {
		ok, err := tx.SettleRound(context.Background(), 8, 42, at)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = tx.SettleRound(context.Background(), 8, 43, at)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestHoldingsAndDeadlock(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT user_id, number FROM game_numbers WHERE round_id = ?")).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "number"}).AddRow(1, 4).AddRow(2, 9))
	mock.ExpectExec(q("DELETE FROM game_numbers")).WithArgs(3, 1).
		WillReturnError(&mysql.MySQLError{Number: 1213})
	mock.ExpectRollback()

	err := NewGameStore(db).InTx(context.Background(), func(tx game.Tx) error {
		hs, err := tx.Holdings(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, []model.Holding{{UserID: 1, Number: 4}, {UserID: 2, Number: 9}}, hs)
		_, err = tx.DeleteBlock(context.Background(), 3, 1)
		return err
	})
	assert.ErrorIs(t, err, game.ErrTransient)
}

func TestLastSelection(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(q("HAVING COUNT(*) >= ?")).WithArgs(1, model.BlockSize).
		WillReturnRows(sqlmock.NewRows([]string{"round_id"}).AddRow(12))
	mock.ExpectQuery(q("ORDER BY slot, id")).WithArgs(12, 1).
		WillReturnRows(sqlmock.NewRows([]string{"number"}).AddRow(5).AddRow(1).AddRow(9).AddRow(3).AddRow(7))

	sel, err := NewGameStore(db).LastSelection(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, &model.Selection{RoundID: 12, Numbers: []int{5, 1, 9, 3, 7}}, sel)
}

func TestHistoryGroupsNumbersPerRound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(q("SELECT COUNT(DISTINCT round_id)")).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(2))
	mock.ExpectQuery(q("FROM rounds r")).WithArgs(1, 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "digit_length", "state", "winning_number", "opened_at", "closed_at"}).
			AddRow(6, 4, "OPEN", nil, at, nil).
			AddRow(2, 3, "CLOSED", 17, at, at))
	mock.ExpectQuery(q("round_id IN (?,?)")).WithArgs(1, 6, 2).
		WillReturnRows(sqlmock.NewRows([]string{"round_id", "number"}).
			AddRow(2, 17).AddRow(2, 18).AddRow(6, 100))

	items, total, err := NewGameStore(db).History(context.Background(), 1, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, []int{100}, items[0].Numbers)
	assert.Equal(t, []int{17, 18}, items[1].Numbers)
	require.NotNil(t, items[1].WinningNumber)
	assert.Equal(t, 17, *items[1].WinningNumber)
}

func TestHistoryEmpty(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(q("SELECT COUNT(DISTINCT round_id)")).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))

	items, total, err := NewGameStore(db).History(context.Background(), 1, 20, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, items)
}

func TestListRounds(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(q("SELECT COUNT(*) FROM rounds")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery(q("LEFT JOIN game_numbers gn")).WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "digit_length", "state", "winning_number", "opened_at", "closed_at", "reserved", "players"}).
			AddRow(3, 3, "OPEN", nil, at, nil, 15, 3))

	out, total, err := NewGameStore(db).ListRounds(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 15, out[0].Reserved)
	assert.Equal(t, 3, out[0].Players)
}

func TestSubscriptionEntitlement(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepo(db)
	repo.Now = func() time.Time { return at }
	cols := []string{"user_id", "status", "max_digits", "current_period_end"}

	mock.ExpectQuery(q("FROM subscriptions WHERE user_id=?")).WithArgs(1).
		WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery(q("FROM subscriptions WHERE user_id=?")).WithArgs(2).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(2, "active", 4, at.Add(time.Hour)))
	mock.ExpectQuery(q("FROM subscriptions WHERE user_id=?")).WithArgs(3).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(3, "active", 4, at.Add(-time.Hour)))

	e, err := repo.GetEntitlement(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.Entitlement{MaxDigitLength: 3}, e)

	e, err = repo.GetEntitlement(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, model.Entitlement{Active: true, MaxDigitLength: 4}, e)

	e, err = repo.GetEntitlement(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, e.Active)
}

func TestNotificationInsertIsIdempotent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationRepo(db)
	n := model.Notification{UserID: 1, RoundID: 2, Kind: model.NotifyWinner, WinningNumber: 5, Title: "t", Body: "b", CreatedAt: at}

	mock.ExpectExec(q("INSERT IGNORE INTO notifications")).WithArgs(1, 2, "WINNER", 5, "t", "b", at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(q("INSERT IGNORE INTO notifications")).WithArgs(1, 2, "WINNER", 5, "t", "b", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Insert(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Insert(context.Background(), n)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotificationMarkRead(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationRepo(db)

	n, err := repo.MarkRead(context.Background(), 1, nil, at)
	require.NoError(t, err)
	assert.Zero(t, n)

	mock.ExpectExec(q("id IN (?,?)")).WithArgs(at, 1, 4, 5).WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = repo.MarkRead(context.Background(), 1, []uint64{4, 5}, at)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(q("INSERT INTO users")).WithArgs("a@b.io", sqlmock.AnyArg(), model.RolePlayer).
		WillReturnError(&mysql.MySQLError{Number: 1062})

	_, err := NewUserRepo(db).Create(context.Background(), " A@b.io ", "password123", model.RolePlayer, 4)
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestTokenValidateRefresh(t *testing.T) {
	db, mock := newMock(t)
	cols := []string{"id", "user_id", "token_hash", "expires_at", "revoked_at", "created_at"}
	now := time.Now().UTC()
	mock.ExpectQuery(q("FROM refresh_tokens WHERE token_hash=?")).WithArgs("live").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, 9, "live", now.Add(time.Hour), nil, now))
	mock.ExpectQuery(q("FROM refresh_tokens WHERE token_hash=?")).WithArgs("revoked").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(2, 9, "revoked", now.Add(time.Hour), now, now))

	repo := NewTokenRepo(db)
	uid, err := repo.ValidateRefresh(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), uid)
	_, err = repo.ValidateRefresh(context.Background(), "revoked")
	assert.ErrorIs(t, err, ErrNotFound)
}
