package game_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/numbers-lottery/internal/game"
	"github.com/iliyamo/numbers-lottery/internal/game/memstore"
	"github.com/iliyamo/numbers-lottery/internal/model"
)

type fixture struct {
	svc  *game.Service
	st   *memstore.Store
	ents *memstore.Entitlements
	sink *memstore.Sink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		st:   memstore.New(),
		ents: memstore.NewEntitlements(),
		sink: &memstore.Sink{},
	}
	f.svc = game.NewService(f.st, f.st, f.ents, f.sink, game.Options{
		OpTimeout:      time.Second,
		PublishBackoff: time.Millisecond,
		Metrics:        game.MustNewMetrics(prometheus.NewRegistry()),
	})
	return f
}

func (f *fixture) openRound(t *testing.T, digits int) uint64 {
	t.Helper()
	id, err := f.svc.EnsureOpenRound(context.Background(), digits)
	require.NoError(t, err)
	return id
}

// fill seeds count numbers starting at 0, five per synthetic user starting
// at user id 1000.
func (f *fixture) fill(roundID uint64, count int) {
	uid := uint64(1000)
	for n := 0; n < count; n += model.BlockSize {
		block := make([]int, 0, model.BlockSize)
		for i := n; i < n+model.BlockSize && i < count; i++ {
			block = append(block, i)
		}
		f.st.Seed(roundID, uid, block...)
		uid++
	}
}

func TestCommitOK(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	rid := f.openRound(t, 3)

	out, err := f.svc.Commit(context.Background(), 1, rid, []int{7, 42, 0, 999, 500})
	require.NoError(t, err)
	require.Equal(t, game.StatusOK, out.Status)
	require.False(t, out.RoundCompleted)
	require.Equal(t, 5, f.st.Rows(rid, 1))

	sel, err := f.svc.CurrentReservation(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Equal(t, rid, sel.RoundID)
	require.Equal(t, []int{7, 42, 0, 999, 500}, sel.Numbers)
}

func TestCommitInvalidInput(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 4)
	rid := f.openRound(t, 3)

	cases := map[string][]int{
		"too few":        {1, 2, 3, 4},
		"too many":       {1, 2, 3, 4, 5, 6},
		"duplicate":      {1, 2, 3, 4, 4},
		"negative":       {-1, 2, 3, 4, 5},
		"out of domain":  {1, 2, 3, 4, 1000},
		"beyond 4 digit": {1, 2, 3, 4, 10000},
	}
	for name, nums := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := f.svc.Commit(context.Background(), 1, rid, nums)
			require.NoError(t, err)
			require.Equal(t, game.StatusInvalidInput, out.Status)
			require.NotEmpty(t, out.Reason)
		})
	}
	require.Zero(t, f.st.Rows(rid, 1))
}

func TestCommitUnknownRoundIsClosed(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	out, err := f.svc.Commit(context.Background(), 1, 404, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, game.StatusRoundClosed, out.Status)
}

func TestCommitTierTooLow(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	rid := f.openRound(t, 4)

	out, err := f.svc.Commit(context.Background(), 1, rid, []int{1000, 2000, 3000, 4000, 5000})
	require.NoError(t, err)
	require.Equal(t, game.StatusNotEntitled, out.Status)
	require.Equal(t, game.ReasonTierTooLow, out.Reason)
	require.Zero(t, f.st.Rows(rid, 1))
}

func TestCommitWithoutSubscription(t *testing.T) {
	f := newFixture(t)
	rid := f.openRound(t, 3)
	out, err := f.svc.Commit(context.Background(), 9, rid, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, game.StatusNotEntitled, out.Status)
	require.Equal(t, game.ReasonInactive, out.Reason)
}

func TestCommitAlreadyComplete(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	rid := f.openRound(t, 3)
	_, err := f.svc.Commit(context.Background(), 1, rid, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)

	out, err := f.svc.Commit(context.Background(), 1, rid, []int{6, 7, 8, 9, 10})
	require.NoError(t, err)
	require.Equal(t, game.StatusAlreadyComplete, out.Status)
	require.Equal(t, []int{1, 2, 3, 4, 5}, out.Numbers)
	require.Equal(t, 5, f.st.Rows(rid, 1))
}

func TestCommitPartialBlockRefused(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	rid := f.openRound(t, 3)
	f.st.Seed(rid, 1, 11, 12, 13)

	out, err := f.svc.Commit(context.Background(), 1, rid, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, game.StatusPartialBlockExists, out.Status)
	require.Equal(t, []int{11, 12, 13}, out.Numbers)
	require.Equal(t, 3, f.st.Rows(rid, 1))
}

func TestCommitNumbersTakenLeavesNoResidue(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	f.ents.Set(2, 3)
	rid := f.openRound(t, 3)
	_, err := f.svc.Commit(context.Background(), 1, rid, []int{1, 2, 3, 4, 42})
	require.NoError(t, err)

	out, err := f.svc.Commit(context.Background(), 2, rid, []int{42, 100, 101, 102, 103})
	require.NoError(t, err)
	require.Equal(t, game.StatusNumbersTaken, out.Status)
	require.Zero(t, f.st.Rows(rid, 2))
}

func TestConcurrentCommitsOnSameNumber(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	f.ents.Set(2, 3)
	rid := f.openRound(t, 3)

	blocks := map[uint64][]int{
		1: {42, 1, 2, 3, 4},
		2: {5, 6, 42, 7, 8},
	}
	results := make(map[uint64]game.CommitStatus)
	outs := make(chan struct {
		uid uint64
		st  game.CommitStatus
	}, 2)
	var g errgroup.Group
	for uid, nums := range blocks {
		uid, nums := uid, nums
		g.Go(func() error {
			out, err := f.svc.Commit(context.Background(), uid, rid, nums)
			if err != nil {
				return err
			}
			outs <- struct {
				uid uint64
				st  game.CommitStatus
			}{uid, out.Status}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(outs)
	for o := range outs {
		results[o.uid] = o.st
	}

	var ok, taken int
	for uid, st := range results {
		switch st {
		case game.StatusOK:
			ok++
			require.Equal(t, 5, f.st.Rows(rid, uid))
		case game.StatusNumbersTaken:
			taken++
			require.Zero(t, f.st.Rows(rid, uid))
		default:
			t.Fatalf("unexpected status %s", st)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, taken)
}

func TestLastBlockCompletesRoundAndOpensSuccessor(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	f.ents.Set(2, 3)
	rid := f.openRound(t, 3)
	f.fill(rid, 995)

	out, err := f.svc.Commit(context.Background(), 1, rid, []int{995, 996, 997, 998, 999})
	require.NoError(t, err)
	require.Equal(t, game.StatusOK, out.Status)
	require.True(t, out.RoundCompleted)

	require.Equal(t, model.RoundClosed, f.st.Round(rid).State)
	open := f.st.OpenRounds(3)
	require.Len(t, open, 1)
	require.NotEqual(t, rid, open[0].ID)

	late, err := f.svc.Commit(context.Background(), 2, rid, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, game.StatusRoundClosed, late.Status)
}

func TestConcurrentCommitsFillRoundExactlyOnce(t *testing.T) {
	f := newFixture(t)
	rid := f.openRound(t, 3)
	f.fill(rid, 975)

	completions := make(chan bool, 5)
	var g errgroup.Group
	for i := 0; i < 5; i++ {
		uid := uint64(i + 1)
		f.ents.Set(uid, 3)
		base := 975 + i*5
		nums := []int{base, base + 1, base + 2, base + 3, base + 4}
		g.Go(func() error {
			out, err := f.svc.Commit(context.Background(), uid, rid, nums)
			if err != nil {
				return err
			}
			if out.Status != game.StatusOK {
				return errors.New("unexpected status " + string(out.Status))
			}
			completions <- out.RoundCompleted
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(completions)

	completed := 0
	for c := range completions {
		if c {
			completed++
		}
	}
	require.Equal(t, 1, completed)
	require.Equal(t, model.RoundClosed, f.st.Round(rid).State)
	require.Len(t, f.st.OpenRounds(3), 1)
}

func TestFullButOpenRoundHealsOnEnsure(t *testing.T) {
	f := newFixture(t)
	rid := f.openRound(t, 3)
	f.fill(rid, 1000)

	st, err := f.svc.RoundStatus(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, model.PhasePendingRoll, st.Phase)

	next := f.openRound(t, 3)
	require.NotEqual(t, rid, next)
	require.Equal(t, model.RoundClosed, f.st.Round(rid).State)
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	rid := f.openRound(t, 3)
	_, err := f.svc.Commit(context.Background(), 1, rid, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)

	n, err := f.svc.Release(context.Background(), 1, rid)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	n, err = f.svc.Release(context.Background(), 1, rid)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestReleaseWithoutEntitlement(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	rid := f.openRound(t, 3)
	_, err := f.svc.Commit(context.Background(), 1, rid, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	f.ents.Revoke(1)

	n, err := f.svc.Release(context.Background(), 1, rid)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	// Freed numbers are available again.
	f.ents.Set(2, 3)
	out, err := f.svc.Commit(context.Background(), 2, rid, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, game.StatusOK, out.Status)
}

func TestReleaseRefusedOnSettledRound(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	rid := f.openRound(t, 3)
	_, err := f.svc.Commit(context.Background(), 1, rid, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	_, err = f.svc.Settle(context.Background(), rid, 3)
	require.NoError(t, err)

	_, err = f.svc.Release(context.Background(), 1, rid)
	require.ErrorIs(t, err, game.ErrRoundClosed)
	require.Equal(t, 5, f.st.Rows(rid, 1))

	_, err = f.svc.Release(context.Background(), 1, 9999)
	require.ErrorIs(t, err, game.ErrRoundNotFound)
}

func TestPreviewGuestGetsFillerWithoutRound(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Preview(context.Background(), 0, 4)
	require.NoError(t, err)
	require.Nil(t, p.RoundID)
	require.Len(t, p.Numbers, 5)
	seen := map[int]bool{}
	for _, n := range p.Numbers {
		require.GreaterOrEqual(t, n, 0)
		require.Less(t, n, 10000)
		require.False(t, seen[n])
		seen[n] = true
	}
	require.Empty(t, f.st.OpenRounds(4))
}

func TestPreviewEntitledCreatesRoundAndSkipsTaken(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	p, err := f.svc.Preview(context.Background(), 1, 3)
	require.NoError(t, err)
	require.NotNil(t, p.RoundID)
	require.Len(t, p.Numbers, 5)

	// Leave exactly three free numbers.
	f.fill(*p.RoundID, 995)
	f.st.Seed(*p.RoundID, 77, 995, 996)
	p2, err := f.svc.Preview(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Equal(t, *p.RoundID, *p2.RoundID)
	require.ElementsMatch(t, []int{997, 998, 999}, p2.Numbers)
}

func TestPreviewReturnsHeldBlock(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	rid := f.openRound(t, 3)
	_, err := f.svc.Commit(context.Background(), 1, rid, []int{9, 8, 7, 6, 5})
	require.NoError(t, err)

	p, err := f.svc.Preview(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Equal(t, rid, *p.RoundID)
	require.Equal(t, []int{9, 8, 7, 6, 5}, p.Numbers)
}

func TestPreviewTierTooLowGetsFiller(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	p, err := f.svc.Preview(context.Background(), 1, 4)
	require.NoError(t, err)
	require.Nil(t, p.RoundID)
	require.Empty(t, f.st.OpenRounds(4))
}

func TestPreviewRejectsBadDigits(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Preview(context.Background(), 0, 5)
	require.ErrorIs(t, err, game.ErrInvalidInput)
}
