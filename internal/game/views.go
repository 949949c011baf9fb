package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/numbers-lottery/internal/model"
)

const (
	defaultPerPage = 20
	maxPerPage     = 200
)

// Page carries one page of a listing plus the total row count.
type Page[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// RoundResult is the public record of a settled round.
type RoundResult struct {
	RoundID       uint64    `json:"round_id"`
	DigitLength   int       `json:"digits"`
	WinningNumber int       `json:"winning_number"`
	SettledAt     time.Time `json:"settled_at"`
	Winners       []uint64  `json:"winners"`
	Participants  int       `json:"participants"`
}

// CurrentReservation returns the caller's block in the open round for
// digits, or ErrNotFound when there is no open round or no full block.
func (s *Service) CurrentReservation(ctx context.Context, userID uint64, digits int) (*model.Selection, error) {
	if !model.ValidDigitLength(digits) {
		return nil, fmt.Errorf("%w: digits must be 3 or 4", ErrInvalidInput)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	var sel *model.Selection
	err := s.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.OpenRound(ctx, digits, LockNone)
		if err != nil {
			return err
		}
		held, err := tx.HolderNumbers(ctx, r.ID, userID)
		if err != nil {
			return err
		}
		if len(held) < model.BlockSize {
			return ErrNotFound
		}
		sel = &model.Selection{RoundID: r.ID, Numbers: held[:model.BlockSize]}
		return nil
	})
	if err != nil {
		return nil, transient(err)
	}
	return sel, nil
}

// LastSelection returns the newest round, in any state, where the user
// holds a full block.
func (s *Service) LastSelection(ctx context.Context, userID uint64) (*model.Selection, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	sel, err := s.views.LastSelection(ctx, userID)
	return sel, transient(err)
}

// History pages through the rounds the user took part in, newest first.
// Only users with an active entitlement may read it.
func (s *Service) History(ctx context.Context, userID uint64, page, perPage int) (Page[model.HistoryItem], error) {
	page, perPage = clampPage(page, perPage)
	out := Page[model.HistoryItem]{Items: []model.HistoryItem{}, Page: page, PerPage: perPage}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	active, err := s.gate.Active(ctx, userID)
	if err != nil {
		return out, transient(err)
	}
	if !active {
		return out, ErrNotEntitled
	}
	items, total, err := s.views.History(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return out, transient(err)
	}
	if items != nil {
		out.Items = items
	}
	out.Total = total
	return out, nil
}

// ListRounds pages through every round, newest first.
func (s *Service) ListRounds(ctx context.Context, page, perPage int) (Page[model.RoundSummary], error) {
	page, perPage = clampPage(page, perPage)
	out := Page[model.RoundSummary]{Items: []model.RoundSummary{}, Page: page, PerPage: perPage}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	items, total, err := s.views.ListRounds(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return out, transient(err)
	}
	if items != nil {
		out.Items = items
	}
	out.Total = total
	return out, nil
}

// Result returns the settled result of a round.  It fails with
// ErrNotSettled while the round has no winning number.
func (s *Service) Result(ctx context.Context, roundID uint64) (*RoundResult, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	var res *RoundResult
	err := s.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.Round(ctx, roundID, LockNone)
		if errors.Is(err, ErrNotFound) {
			return ErrRoundNotFound
		}
		if err != nil {
			return err
		}
		if !r.Settled() {
			return ErrNotSettled
		}
		holdings, err := tx.Holdings(ctx, roundID)
		if err != nil {
			return err
		}
		st := buildSettlement(r, *r.WinningNumber, holdings)
		res = &RoundResult{
			RoundID:       r.ID,
			DigitLength:   r.DigitLength,
			WinningNumber: *r.WinningNumber,
			Winners:       st.Winners,
			Participants:  len(st.Participants),
		}
		if r.SettledAt != nil {
			res.SettledAt = *r.SettledAt
		}
		return nil
	})
	if err != nil {
		return nil, transient(err)
	}
	return res, nil
}

func clampPage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case perPage == 0:
		perPage = defaultPerPage
	case perPage < 1:
		perPage = 1
	case perPage > maxPerPage:
		perPage = maxPerPage
	}
	return page, perPage
}
