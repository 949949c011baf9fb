package memstore

import (
	"context"

	"github.com/iliyamo/numbers-lottery/internal/game"
	"github.com/iliyamo/numbers-lottery/internal/model"
)

func (s *Store) LastSelection(ctx context.Context, userID uint64) (*model.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.newestFirst() {
		held := s.heldBy(id, userID)
		if len(held) >= model.BlockSize {
			return &model.Selection{RoundID: id, Numbers: held[:model.BlockSize]}, nil
		}
	}
	return nil, game.ErrNotFound
}

func (s *Store) History(ctx context.Context, userID uint64, limit, offset int) ([]model.HistoryItem, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.HistoryItem
	for _, id := range s.newestFirst() {
		held := s.heldBy(id, userID)
		if len(held) == 0 {
			continue
		}
		r := s.rounds[id]
		all = append(all, model.HistoryItem{
			RoundID:       r.ID,
			DigitLength:   r.DigitLength,
			State:         r.State,
			WinningNumber: r.WinningNumber,
			Numbers:       held,
			OpenedAt:      r.OpenedAt,
			ClosedAt:      r.ClosedAt,
		})
	}
	return window(all, limit, offset), len(all), nil
}

func (s *Store) ListRounds(ctx context.Context, limit, offset int) ([]model.RoundSummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]model.RoundSummary, 0, len(s.rounds))
	for _, id := range s.newestFirst() {
		r := s.rounds[id]
		players := make(map[uint64]struct{})
		rr := s.rowsOf(id)
		for _, row := range rr.byNumber {
			players[row.userID] = struct{}{}
		}
		all = append(all, model.RoundSummary{
			ID:            r.ID,
			DigitLength:   r.DigitLength,
			State:         r.State,
			WinningNumber: r.WinningNumber,
			Reserved:      len(rr.byNumber),
			Players:       len(players),
			OpenedAt:      r.OpenedAt,
			ClosedAt:      r.ClosedAt,
		})
	}
	return window(all, limit, offset), len(all), nil
}

func window[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

var _ game.Views = (*Store)(nil)
