// Package memstore is an in-memory game.Store and game.Views.  Transactions
// are serialized by one mutex and undone from a journal on rollback, which
// gives the same observable guarantees as the MySQL schema: unique numbers
// per round, one OPEN unsettled round per digit length, atomic blocks.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/numbers-lottery/internal/game"
	"github.com/iliyamo/numbers-lottery/internal/model"
)

type row struct {
	userID uint64
	slot   int
	at     time.Time
	seq    uint64
}

type roundRows struct {
	byNumber map[int]*row
}

// Store keeps rounds and reservations in memory.
type Store struct {
	mu      sync.Mutex
	nextID  uint64
	nextSeq uint64
	rounds  map[uint64]*model.Round
	rows    map[uint64]*roundRows
	// Fail, when set, is returned by the next InTx call instead of running fn.
	Fail error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		rounds: make(map[uint64]*model.Round),
		rows:   make(map[uint64]*roundRows),
	}
}

// InTx runs fn under the store lock.  Writes are undone when fn fails.
func (s *Store) InTx(ctx context.Context, fn func(tx game.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		err := s.Fail
		s.Fail = nil
		return err
	}
	t := &tx{s: s}
	if err := fn(t); err != nil {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		return err
	}
	return nil
}

// Seed inserts rows outside any allocation rules.  Tests use it to build
// legacy states such as partial blocks or nearly full rounds.
func (s *Store) Seed(roundID, userID uint64, numbers ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rr := s.rowsOf(roundID)
	for i, n := range numbers {
		s.nextSeq++
		rr.byNumber[n] = &row{userID: userID, slot: i + 1, at: time.Now().UTC(), seq: s.nextSeq}
	}
}

// Rows returns how many reservations the user holds in the round.
func (s *Store) Rows(roundID, userID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rowsOf(roundID).byNumber {
		if r.userID == userID {
			n++
		}
	}
	return n
}

// Round returns a copy of a round, or nil.
func (s *Store) Round(id uint64) *model.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

// OpenRounds returns every OPEN, unsettled round for digits.
func (s *Store) OpenRounds(digits int) []model.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Round
	for _, r := range s.rounds {
		if r.DigitLength == digits && r.Accepting() {
			out = append(out, *r)
		}
	}
	return out
}

func (s *Store) rowsOf(roundID uint64) *roundRows {
	rr, ok := s.rows[roundID]
	if !ok {
		rr = &roundRows{byNumber: make(map[int]*row)}
		s.rows[roundID] = rr
	}
	return rr
}

func (s *Store) heldBy(roundID, userID uint64) []int {
	type held struct {
		n    int
		slot int
		seq  uint64
	}
	var hs []held
	for n, r := range s.rowsOf(roundID).byNumber {
		if r.userID == userID {
			hs = append(hs, held{n, r.slot, r.seq})
		}
	}
	sort.Slice(hs, func(i, j int) bool {
		if hs[i].slot != hs[j].slot {
			return hs[i].slot < hs[j].slot
		}
		return hs[i].seq < hs[j].seq
	})
	out := make([]int, len(hs))
	for i, h := range hs {
		out[i] = h.n
	}
	return out
}

// newestFirst returns round ids in descending order.
func (s *Store) newestFirst() []uint64 {
	ids := make([]uint64, 0, len(s.rounds))
	for id := range s.rounds {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids
}

type tx struct {
	s    *Store
	undo []func()
}

// Locks are implicit: the whole transaction holds the store mutex.
func (t *tx) OpenRound(_ context.Context, digits int, _ game.LockMode) (*model.Round, error) {
	var best *model.Round
	for _, r := range t.s.rounds {
		if r.DigitLength == digits && r.Accepting() && (best == nil || r.ID > best.ID) {
			best = r
		}
	}
	if best == nil {
		return nil, game.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (t *tx) CreateRound(_ context.Context, digits int, at time.Time) (*model.Round, error) {
	for _, r := range t.s.rounds {
		if r.DigitLength == digits && r.Accepting() {
			return nil, game.ErrDuplicate
		}
	}
	t.s.nextID++
	r := &model.Round{ID: t.s.nextID, DigitLength: digits, State: model.RoundOpen, OpenedAt: at}
	t.s.rounds[r.ID] = r
	t.undo = append(t.undo, func() { delete(t.s.rounds, r.ID) })
	cp := *r
	return &cp, nil
}

func (t *tx) Round(_ context.Context, id uint64, _ game.LockMode) (*model.Round, error) {
	r, ok := t.s.rounds[id]
	if !ok {
		return nil, game.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (t *tx) CountReserved(_ context.Context, roundID uint64) (int, error) {
	return len(t.s.rowsOf(roundID).byNumber), nil
}

func (t *tx) TakenNumbers(_ context.Context, roundID uint64) ([]int, error) {
	rr := t.s.rowsOf(roundID)
	out := make([]int, 0, len(rr.byNumber))
	for n := range rr.byNumber {
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

func (t *tx) HolderNumbers(_ context.Context, roundID, userID uint64) ([]int, error) {
	return t.s.heldBy(roundID, userID), nil
}

func (t *tx) InsertBlock(_ context.Context, roundID, userID uint64, numbers []int, at time.Time) (int, error) {
	rr := t.s.rowsOf(roundID)
	inserted := 0
	for i, n := range numbers {
		if _, taken := rr.byNumber[n]; taken {
			continue
		}
		t.s.nextSeq++
		rr.byNumber[n] = &row{userID: userID, slot: i + 1, at: at, seq: t.s.nextSeq}
		num := n
		t.undo = append(t.undo, func() { delete(rr.byNumber, num) })
		inserted++
	}
	return inserted, nil
}

func (t *tx) DeleteBlock(_ context.Context, roundID, userID uint64) (int, error) {
	rr := t.s.rowsOf(roundID)
	deleted := 0
	for n, r := range rr.byNumber {
		if r.userID != userID {
			continue
		}
		delete(rr.byNumber, n)
		num, old := n, r
		t.undo = append(t.undo, func() { rr.byNumber[num] = old })
		deleted++
	}
	return deleted, nil
}

func (t *tx) CloseRound(_ context.Context, roundID uint64, at time.Time) (bool, error) {
	r, ok := t.s.rounds[roundID]
	if !ok || r.State != model.RoundOpen {
		return false, nil
	}
	prev := *r
	r.State = model.RoundClosed
	r.ClosedAt = &at
	t.undo = append(t.undo, func() { *r = prev })
	return true, nil
}

func (t *tx) SettleRound(_ context.Context, roundID uint64, winning int, at time.Time) (bool, error) {
	r, ok := t.s.rounds[roundID]
	if !ok || r.WinningNumber != nil {
		return false, nil
	}
	prev := *r
	w := winning
	r.WinningNumber = &w
	r.SettledAt = &at
	if r.State == model.RoundOpen {
		r.State = model.RoundClosed
		r.ClosedAt = &at
	}
	t.undo = append(t.undo, func() { *r = prev })
	return true, nil
}

func (t *tx) Holdings(_ context.Context, roundID uint64) ([]model.Holding, error) {
	rr := t.s.rowsOf(roundID)
	out := make([]model.Holding, 0, len(rr.byNumber))
	for n, r := range rr.byNumber {
		out = append(out, model.Holding{UserID: r.userID, Number: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

var _ game.Store = (*Store)(nil)
