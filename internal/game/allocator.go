package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/iliyamo/numbers-lottery/internal/logger"
	"github.com/iliyamo/numbers-lottery/internal/model"
)

// CommitStatus is the terminal outcome of a commit attempt.
type CommitStatus string

const (
	StatusOK                 CommitStatus = "OK"
	StatusInvalidInput       CommitStatus = "INVALID_INPUT"
	StatusNotEntitled        CommitStatus = "NOT_ENTITLED"
	StatusRoundClosed        CommitStatus = "ROUND_CLOSED"
	StatusAlreadyComplete    CommitStatus = "ALREADY_COMPLETE"
	StatusPartialBlockExists CommitStatus = "PARTIAL_BLOCK_EXISTS"
	StatusNumbersTaken       CommitStatus = "NUMBERS_TAKEN"
)

// CommitOutcome is returned for every commit that reached a decision.
// Numbers is set for ALREADY_COMPLETE and PARTIAL_BLOCK_EXISTS.
type CommitOutcome struct {
	Status         CommitStatus `json:"status"`
	Numbers        []int        `json:"numbers,omitempty"`
	RoundCompleted bool         `json:"round_completed"`
	Reason         string       `json:"reason,omitempty"`
}

// PreviewResult is an advisory set of numbers.  RoundID is nil for filler.
type PreviewResult struct {
	RoundID *uint64 `json:"round_id"`
	Numbers []int   `json:"numbers"`
}

// maxDomain is the upper bound of the largest supported domain.
var maxDomain = model.Capacity(4)

// Preview proposes up to five free numbers from the open round for digits.
// An entitled caller resolves the round through EnsureOpenRound; anyone
// else gets locally generated filler and storage is never touched.  A
// caller who already holds a full block in the round gets that block back.
// Nothing is persisted besides a round created by EnsureOpenRound.
func (s *Service) Preview(ctx context.Context, userID uint64, digits int) (PreviewResult, error) {
	if !model.ValidDigitLength(digits) {
		return PreviewResult{}, fmt.Errorf("%w: digits must be 3 or 4", ErrInvalidInput)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	dec, err := s.gate.Authorize(ctx, userID, digits)
	if err != nil {
		// A failed lookup degrades to the guest path.
		logger.Log.Warnw("preview entitlement lookup failed", "user_id", userID, "err", err)
	}
	if !dec.Allowed {
		s.metrics.previews.WithLabelValues("filler").Inc()
		return PreviewResult{Numbers: filler(model.Capacity(digits), model.BlockSize)}, nil
	}

	var p PreviewResult
	err = s.store.InTx(ctx, func(tx Tx) error {
		r, err := s.ensureOpenRoundTx(ctx, tx, digits)
		if err != nil {
			return err
		}
		id := r.ID
		p.RoundID = &id
		held, err := tx.HolderNumbers(ctx, r.ID, userID)
		if err != nil {
			return err
		}
		if len(held) >= model.BlockSize {
			p.Numbers = held[:model.BlockSize]
			return nil
		}
		taken, err := tx.TakenNumbers(ctx, r.ID)
		if err != nil {
			return err
		}
		p.Numbers = sampleFree(r.Capacity(), taken, model.BlockSize)
		return nil
	})
	if err != nil {
		return PreviewResult{}, transient(err)
	}
	s.metrics.previews.WithLabelValues("round").Inc()
	return p, nil
}

// Commit reserves exactly five distinct numbers for userID in roundID.  The
// block is inserted in one transaction and kept only when all five rows
// were new; otherwise nothing is written.  Expected conflicts come back as
// an outcome with a nil error; the error is for store failures.
func (s *Service) Commit(ctx context.Context, userID, roundID uint64, numbers []int) (CommitOutcome, error) {
	out, err := s.commit(ctx, userID, roundID, numbers)
	if err != nil {
		return CommitOutcome{}, err
	}
	s.metrics.commits.WithLabelValues(string(out.Status)).Inc()
	if out.Status != StatusOK {
		logger.Log.Debugw("commit refused", "user_id", userID, "round_id", roundID, "status", out.Status)
	}
	return out, nil
}

func (s *Service) commit(ctx context.Context, userID, roundID uint64, numbers []int) (CommitOutcome, error) {
	if reason := validateBlock(numbers, maxDomain); reason != "" {
		return CommitOutcome{Status: StatusInvalidInput, Reason: reason}, nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	// The round's digit length fixes the domain and the tier needed.  The
	// state read here decides nothing; it is re-read under lock below.
	var digits int
	err := s.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.Round(ctx, roundID, LockNone)
		if err != nil {
			return err
		}
		digits = r.DigitLength
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return CommitOutcome{Status: StatusRoundClosed, Reason: "round not found"}, nil
	}
	if err != nil {
		return CommitOutcome{}, transient(fmt.Errorf("load round: %w", err))
	}
	if reason := validateBlock(numbers, model.Capacity(digits)); reason != "" {
		return CommitOutcome{Status: StatusInvalidInput, Reason: reason}, nil
	}
	dec, err := s.gate.Authorize(ctx, userID, digits)
	if err != nil {
		return CommitOutcome{}, transient(err)
	}
	if !dec.Allowed {
		return CommitOutcome{Status: StatusNotEntitled, Reason: dec.Reason}, nil
	}

	var out CommitOutcome
	full := false
	err = s.store.InTx(ctx, func(tx Tx) error {
		// Shared lock: commits on one round run in parallel, closing waits.
		r, err := tx.Round(ctx, roundID, LockShared)
		if errors.Is(err, ErrNotFound) {
			out = CommitOutcome{Status: StatusRoundClosed, Reason: "round not found"}
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock round: %w", err)
		}
		if !r.Accepting() {
			out = CommitOutcome{Status: StatusRoundClosed, Reason: "round closed"}
			return nil
		}
		used, err := tx.CountReserved(ctx, roundID)
		if err != nil {
			return fmt.Errorf("count reserved: %w", err)
		}
		if used >= r.Capacity() {
			full = true
			out = CommitOutcome{Status: StatusRoundClosed, Reason: "round full"}
			return nil
		}
		held, err := tx.HolderNumbers(ctx, roundID, userID)
		if err != nil {
			return fmt.Errorf("holder numbers: %w", err)
		}
		switch {
		case len(held) >= model.BlockSize:
			out = CommitOutcome{Status: StatusAlreadyComplete, Numbers: held[:model.BlockSize]}
			return nil
		case len(held) > 0:
			out = CommitOutcome{Status: StatusPartialBlockExists, Numbers: held}
			return nil
		}
		inserted, err := tx.InsertBlock(ctx, roundID, userID, numbers, s.now())
		if err != nil {
			return fmt.Errorf("insert block: %w", err)
		}
		if inserted != model.BlockSize {
			out = CommitOutcome{Status: StatusNumbersTaken}
			return errRollback
		}
		out = CommitOutcome{Status: StatusOK}
		return nil
	})
	if err != nil && !errors.Is(err, errRollback) {
		return CommitOutcome{}, transient(err)
	}

	if out.Status == StatusOK || full {
		completed, err := s.CompleteIfFull(ctx, roundID)
		if err != nil {
			// The block is committed; the next EnsureOpenRound closes the
			// round if this completion check did not.
			logger.Log.Errorw("complete round failed", "round_id", roundID, "err", err)
		}
		if out.Status == StatusOK {
			out.RoundCompleted = completed
		}
	}
	return out, nil
}

// Release deletes every reservation the user holds in the round and
// returns how many rows went.  Releasing nothing is not an error.
func (s *Service) Release(ctx context.Context, userID, roundID uint64) (int, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	released := 0
	err := s.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.Round(ctx, roundID, LockShared)
		if errors.Is(err, ErrNotFound) {
			return ErrRoundNotFound
		}
		if err != nil {
			return fmt.Errorf("lock round: %w", err)
		}
		if !r.Accepting() {
			return ErrRoundClosed
		}
		released, err = tx.DeleteBlock(ctx, roundID, userID)
		return err
	})
	if err != nil {
		return 0, transient(err)
	}
	s.metrics.releases.Add(float64(released))
	if released > 0 {
		logger.Log.Infow("block released", "user_id", userID, "round_id", roundID, "released", released)
	}
	return released, nil
}

// validateBlock checks count, distinctness and range against [0, domain).
// It returns an empty string when the block is well formed.
func validateBlock(numbers []int, domain int) string {
	if len(numbers) != model.BlockSize {
		return fmt.Sprintf("exactly %d numbers required", model.BlockSize)
	}
	seen := make(map[int]struct{}, len(numbers))
	for _, n := range numbers {
		if n < 0 || n >= domain {
			return fmt.Sprintf("numbers must be between 0 and %d", domain-1)
		}
		if _, dup := seen[n]; dup {
			return "numbers must be distinct"
		}
		seen[n] = struct{}{}
	}
	return ""
}

// sampleFree draws up to k numbers uniformly from [0, capacity) minus taken.
func sampleFree(capacity int, taken []int, k int) []int {
	used := make(map[int]struct{}, len(taken))
	for _, n := range taken {
		used[n] = struct{}{}
	}
	free := make([]int, 0, capacity-len(used))
	for n := 0; n < capacity; n++ {
		if _, ok := used[n]; !ok {
			free = append(free, n)
		}
	}
	if k > len(free) {
		k = len(free)
	}
	for i := 0; i < k; i++ {
		j := i + rand.Intn(len(free)-i)
		free[i], free[j] = free[j], free[i]
	}
	return free[:k:k]
}

// filler returns k distinct random numbers in [0, capacity) for display.
func filler(capacity, k int) []int {
	out := make([]int, 0, k)
	seen := make(map[int]struct{}, k)
	for len(out) < k && len(out) < capacity {
		n := rand.Intn(capacity)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
