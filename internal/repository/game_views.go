package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/numbers-lottery/internal/model"
)

// LastSelection returns the newest round where the user holds a full block.
func (s *GameStore) LastSelection(ctx context.Context, userID uint64) (*model.Selection, error) {
	var roundID uint64
	err := s.DB.QueryRowContext(ctx,
		`SELECT round_id FROM game_numbers
		 WHERE user_id = ?
		 GROUP BY round_id
		 HAVING COUNT(*) >= ?
		 ORDER BY round_id DESC LIMIT 1`,
		userID, model.BlockSize).Scan(&roundID)
	if err != nil {
		return nil, translate(err)
	}
	nums, err := queryInts(ctx, s.DB,
		"SELECT number FROM game_numbers WHERE round_id = ? AND user_id = ? ORDER BY slot, id",
		roundID, userID)
	if err != nil {
		return nil, err
	}
	if len(nums) > model.BlockSize {
		nums = nums[:model.BlockSize]
	}
	return &model.Selection{RoundID: roundID, Numbers: nums}, nil
}

// History returns one page of the rounds the user holds numbers in, newest
// first, plus the total number of such rounds.
func (s *GameStore) History(ctx context.Context, userID uint64, limit, offset int) ([]model.HistoryItem, int, error) {
	var total int
	if err := s.DB.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT round_id) FROM game_numbers WHERE user_id = ?", userID).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}
	items := make([]model.HistoryItem, 0)
	if total == 0 {
		return items, 0, nil
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT r.id, r.digit_length, r.state, r.winning_number, r.opened_at, r.closed_at
		 FROM rounds r
		 WHERE r.id IN (SELECT DISTINCT round_id FROM game_numbers WHERE user_id = ?)
		 ORDER BY r.id DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()
	index := make(map[uint64]int)
	for rows.Next() {
		var (
			it       model.HistoryItem
			state    string
			winning  sql.NullInt64
			closedAt sql.NullTime
		)
		if err := rows.Scan(&it.RoundID, &it.DigitLength, &state, &winning, &it.OpenedAt, &closedAt); err != nil {
			return nil, 0, err
		}
		it.State = model.RoundState(state)
		if winning.Valid {
			w := int(winning.Int64)
			it.WinningNumber = &w
		}
		if closedAt.Valid {
			c := closedAt.Time
			it.ClosedAt = &c
		}
		it.Numbers = []int{}
		index[it.RoundID] = len(items)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translate(err)
	}
	if len(items) == 0 {
		return items, total, nil
	}

	// Numbers for every round on the page in one query.
	args := make([]interface{}, 0, len(items)+1)
	args = append(args, userID)
	placeholders := make([]string, 0, len(items))
	for _, it := range items {
		args = append(args, it.RoundID)
		placeholders = append(placeholders, "?")
	}
	nrows, err := s.DB.QueryContext(ctx,
		`SELECT round_id, number FROM game_numbers
		 WHERE user_id = ? AND round_id IN (`+strings.Join(placeholders, ",")+`)
		 ORDER BY round_id, slot, id`,
		args...)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer nrows.Close()
	for nrows.Next() {
		var rid uint64
		var n int
		if err := nrows.Scan(&rid, &n); err != nil {
			return nil, 0, err
		}
		if idx, ok := index[rid]; ok {
			items[idx].Numbers = append(items[idx].Numbers, n)
		}
	}
	return items, total, translate(nrows.Err())
}

// ListRounds returns one page of all rounds with their fill level.
func (s *GameStore) ListRounds(ctx context.Context, limit, offset int) ([]model.RoundSummary, int, error) {
	var total int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM rounds").Scan(&total); err != nil {
		return nil, 0, translate(err)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT r.id, r.digit_length, r.state, r.winning_number, r.opened_at, r.closed_at,
		        COUNT(gn.id), COUNT(DISTINCT gn.user_id)
		 FROM rounds r
		 LEFT JOIN game_numbers gn ON gn.round_id = r.id
		 GROUP BY r.id
		 ORDER BY r.id DESC
		 LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()
	out := make([]model.RoundSummary, 0)
	for rows.Next() {
		var (
			rs       model.RoundSummary
			state    string
			winning  sql.NullInt64
			closedAt sql.NullTime
		)
		if err := rows.Scan(&rs.ID, &rs.DigitLength, &state, &winning, &rs.OpenedAt, &closedAt,
			&rs.Reserved, &rs.Players); err != nil {
			return nil, 0, err
		}
		rs.State = model.RoundState(state)
		if winning.Valid {
			w := int(winning.Int64)
			rs.WinningNumber = &w
		}
		if closedAt.Valid {
			c := closedAt.Time
			rs.ClosedAt = &c
		}
		out = append(out, rs)
	}
	return out, total, translate(rows.Err())
}
