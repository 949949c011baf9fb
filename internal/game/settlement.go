package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/numbers-lottery/internal/logger"
	"github.com/iliyamo/numbers-lottery/internal/model"
)

// Settlement is the result of a successful Settle call.
type Settlement struct {
	RoundID       uint64                     `json:"round_id"`
	DigitLength   int                        `json:"digits"`
	WinningNumber int                        `json:"winning_number"`
	Winners       []uint64                   `json:"winners"`
	Participants  []uint64                   `json:"participants"`
	Intents       []model.NotificationIntent `json:"-"`
	NextRoundID   uint64                     `json:"next_round_id"`
}

// Settle fixes the winning number of a round, closes it and provisions the
// successor round in one transaction.  Notification intents are dispatched
// after commit; a delivery failure never undoes the settlement.
func (s *Service) Settle(ctx context.Context, roundID uint64, winning int) (*Settlement, error) {
	res, err := s.settle(ctx, roundID, winning)
	if err != nil {
		s.metrics.settlements.WithLabelValues(settleLabel(err)).Inc()
		return nil, err
	}
	s.metrics.settlements.WithLabelValues("ok").Inc()
	logger.Log.Infow("round settled",
		"round_id", res.RoundID,
		"digits", res.DigitLength,
		"winning_number", res.WinningNumber,
		"winners", len(res.Winners),
		"participants", len(res.Participants),
		"next_round_id", res.NextRoundID,
	)
	// The request may be gone by now; delivery still has to happen.
	s.dispatch(context.WithoutCancel(ctx), res.Intents)
	return res, nil
}

func (s *Service) settle(ctx context.Context, roundID uint64, winning int) (*Settlement, error) {
	if winning < 0 {
		return nil, fmt.Errorf("%w: winning number must not be negative", ErrInvalidInput)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var res *Settlement
	err := s.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.Round(ctx, roundID, LockExclusive)
		if errors.Is(err, ErrNotFound) {
			return ErrRoundNotFound
		}
		if err != nil {
			return fmt.Errorf("lock round: %w", err)
		}
		if r.Settled() {
			return ErrAlreadySettled
		}
		if winning >= r.Capacity() {
			return fmt.Errorf("%w: winning number must be between 0 and %d", ErrInvalidInput, r.Capacity()-1)
		}
		ok, err := tx.SettleRound(ctx, roundID, winning, s.now())
		if err != nil {
			return fmt.Errorf("settle round: %w", err)
		}
		if !ok {
			return ErrAlreadySettled
		}
		holdings, err := tx.Holdings(ctx, roundID)
		if err != nil {
			return fmt.Errorf("read holders: %w", err)
		}
		next, err := s.ensureOpenRoundTx(ctx, tx, r.DigitLength)
		if err != nil {
			return err
		}
		res = buildSettlement(r, winning, holdings)
		res.NextRoundID = next.ID
		return nil
	})
	if err != nil {
		return nil, transient(err)
	}
	return res, nil
}

// buildSettlement splits distinct holders into winners and the rest and
// produces one intent per holder.
func buildSettlement(r *model.Round, winning int, holdings []model.Holding) *Settlement {
	won := make(map[uint64]bool)
	for _, h := range holdings {
		if _, seen := won[h.UserID]; !seen {
			won[h.UserID] = false
		}
		if h.Number == winning {
			won[h.UserID] = true
		}
	}
	res := &Settlement{
		RoundID:       r.ID,
		DigitLength:   r.DigitLength,
		WinningNumber: winning,
		Winners:       []uint64{},
		Participants:  make([]uint64, 0, len(won)),
	}
	for uid, w := range won {
		res.Participants = append(res.Participants, uid)
		if w {
			res.Winners = append(res.Winners, uid)
		}
	}
	sortIDs(res.Participants)
	sortIDs(res.Winners)
	for _, uid := range res.Participants {
		kind := model.NotifyRoundResult
		if won[uid] {
			kind = model.NotifyWinner
		}
		res.Intents = append(res.Intents, model.NotificationIntent{
			RecipientID:   uid,
			Kind:          kind,
			RoundID:       r.ID,
			DigitLength:   r.DigitLength,
			WinningNumber: winning,
		})
	}
	return res
}

// dispatch hands intents to the sink, retrying the whole batch with a
// doubling backoff.  The sink dedupes on (recipient, kind, round).
func (s *Service) dispatch(ctx context.Context, intents []model.NotificationIntent) {
	if len(intents) == 0 {
		return
	}
	if s.sink == nil {
		logger.Log.Warnw("no notification sink configured; intents dropped",
			"round_id", intents[0].RoundID, "intents", len(intents))
		s.countIntents(intents, "dropped")
		return
	}
	backoff := s.opts.PublishBackoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = s.sink.Enqueue(ctx, intents...); err == nil {
			s.countIntents(intents, "ok")
			return
		}
		logger.Log.Warnw("enqueue notifications failed",
			"round_id", intents[0].RoundID, "attempt", attempt, "err", err)
		if attempt >= s.opts.PublishAttempts {
			break
		}
		if werr := sleepCtx(ctx, backoff); werr != nil {
			err = werr
			break
		}
		backoff *= 2
	}
	s.countIntents(intents, "failed")
	logger.Log.Errorw("notifications not delivered", "round_id", intents[0].RoundID, "intents", len(intents), "err", err)
}

func (s *Service) countIntents(intents []model.NotificationIntent, result string) {
	for _, in := range intents {
		s.metrics.notifications.WithLabelValues(string(in.Kind), result).Inc()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func settleLabel(err error) string {
	switch {
	case errors.Is(err, ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, ErrRoundNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrTransient):
		return "transient"
	}
	return "error"
}

func sortIDs(ids []uint64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
