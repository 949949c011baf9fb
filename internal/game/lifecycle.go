package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/numbers-lottery/internal/logger"
	"github.com/iliyamo/numbers-lottery/internal/model"
)

// ensureAttempts bounds the lock, re-check, insert loop.  Losing the insert
// race twice in a row means the winner's row is visible to the next locking
// read.
const ensureAttempts = 3

// RoundStatus describes the round pool for one digit length.
type RoundStatus struct {
	RoundID     *uint64     `json:"round_id"`
	DigitLength int         `json:"digits"`
	Reserved    int         `json:"reserved"`
	Capacity    int         `json:"capacity"`
	Phase       model.Phase `json:"phase"`
}

// EnsureOpenRound returns the id of the single OPEN, unsettled round for
// digits, creating it when none exists.
func (s *Service) EnsureOpenRound(ctx context.Context, digits int) (uint64, error) {
	if !model.ValidDigitLength(digits) {
		return 0, fmt.Errorf("%w: digits must be 3 or 4", ErrInvalidInput)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	var id uint64
	err := s.store.InTx(ctx, func(tx Tx) error {
		r, err := s.ensureOpenRoundTx(ctx, tx, digits)
		if err != nil {
			return err
		}
		id = r.ID
		return nil
	})
	if err != nil {
		return 0, transient(err)
	}
	return id, nil
}

// ensureOpenRoundTx locks the candidate row, re-checks it and inserts a new
// round when there is none.  A full round found here is closed first, so a
// failed post-commit completion heals on the next caller.
func (s *Service) ensureOpenRoundTx(ctx context.Context, tx Tx, digits int) (*model.Round, error) {
	for attempt := 0; attempt < ensureAttempts; attempt++ {
		r, err := tx.OpenRound(ctx, digits, LockExclusive)
		switch {
		case err == nil:
			full, err := s.closeIfFullTx(ctx, tx, r)
			if err != nil {
				return nil, err
			}
			if !full {
				return r, nil
			}
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("find open round: %w", err)
		}
		created, err := tx.CreateRound(ctx, digits, s.now())
		if errors.Is(err, ErrDuplicate) {
			// Another transaction created it first; defer to its row.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create round: %w", err)
		}
		s.metrics.roundsOpened.WithLabelValues(digitsLabel(digits)).Inc()
		logger.Log.Infow("round opened", "round_id", created.ID, "digits", digits)
		return created, nil
	}
	return nil, fmt.Errorf("%w: could not resolve open round for %d digits", ErrTransient, digits)
}

// closeIfFullTx closes r when every number is reserved and reports whether
// this call closed it.  r must be locked exclusively by the caller.
func (s *Service) closeIfFullTx(ctx context.Context, tx Tx, r *model.Round) (bool, error) {
	if !r.Accepting() {
		return false, nil
	}
	used, err := tx.CountReserved(ctx, r.ID)
	if err != nil {
		return false, fmt.Errorf("count reserved: %w", err)
	}
	if used < r.Capacity() {
		return false, nil
	}
	closed, err := tx.CloseRound(ctx, r.ID, s.now())
	if err != nil {
		return false, fmt.Errorf("close round: %w", err)
	}
	if closed {
		s.metrics.roundsCompleted.WithLabelValues(digitsLabel(r.DigitLength)).Inc()
		logger.Log.Infow("round completed", "round_id", r.ID, "digits", r.DigitLength, "reserved", used)
	}
	return closed, nil
}

// CompleteIfFull closes the round when it reached capacity and provisions
// its successor in the same transaction.  It reports whether this call
// closed the round.
func (s *Service) CompleteIfFull(ctx context.Context, roundID uint64) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	completed := false
	err := s.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.Round(ctx, roundID, LockExclusive)
		if errors.Is(err, ErrNotFound) {
			return ErrRoundNotFound
		}
		if err != nil {
			return fmt.Errorf("load round: %w", err)
		}
		closed, err := s.closeIfFullTx(ctx, tx, r)
		if err != nil || !closed {
			return err
		}
		if _, err := s.ensureOpenRoundTx(ctx, tx, r.DigitLength); err != nil {
			return err
		}
		completed = true
		return nil
	})
	if err != nil {
		return false, transient(err)
	}
	return completed, nil
}

// RoundStatus reports the open round for digits and its fill level.
func (s *Service) RoundStatus(ctx context.Context, digits int) (RoundStatus, error) {
	st := RoundStatus{DigitLength: digits, Capacity: model.Capacity(digits)}
	if !model.ValidDigitLength(digits) {
		return st, fmt.Errorf("%w: digits must be 3 or 4", ErrInvalidInput)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	err := s.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.OpenRound(ctx, digits, LockNone)
		if errors.Is(err, ErrNotFound) {
			st.Phase = model.PhaseOf(nil, 0)
			return nil
		}
		if err != nil {
			return err
		}
		used, err := tx.CountReserved(ctx, r.ID)
		if err != nil {
			return err
		}
		id := r.ID
		st.RoundID = &id
		st.Reserved = used
		st.Phase = model.PhaseOf(r, used)
		return nil
	})
	return st, transient(err)
}
