package game_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/numbers-lottery/internal/game"
)

func TestHistoryRequiresActiveEntitlement(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.History(context.Background(), 1, 1, 10)
	require.ErrorIs(t, err, game.ErrNotEntitled)
}

func TestHistoryAndLastSelection(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 4)
	ctx := context.Background()

	r3 := f.openRound(t, 3)
	_, err := f.svc.Commit(ctx, 1, r3, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	_, err = f.svc.Settle(ctx, r3, 3)
	require.NoError(t, err)
	r4 := f.openRound(t, 4)
	_, err = f.svc.Commit(ctx, 1, r4, []int{1000, 2000, 3000, 4000, 5000})
	require.NoError(t, err)

	last, err := f.svc.LastSelection(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, r4, last.RoundID)

	page, err := f.svc.History(ctx, 1, 1, 1)
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	require.Equal(t, r4, page.Items[0].RoundID)

	page, err = f.svc.History(ctx, 1, 2, 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, r3, page.Items[0].RoundID)
	require.Equal(t, 3, *page.Items[0].WinningNumber)

	page, err = f.svc.History(ctx, 1, 1, 5000)
	require.NoError(t, err)
	require.Equal(t, 200, page.PerPage)
}

func TestLastSelectionNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.LastSelection(context.Background(), 1)
	require.ErrorIs(t, err, game.ErrNotFound)
	_, err = f.svc.CurrentReservation(context.Background(), 1, 3)
	require.ErrorIs(t, err, game.ErrNotFound)
}

func TestListRounds(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	f.ents.Set(2, 3)
	rid := f.openRound(t, 3)
	_, err := f.svc.Commit(context.Background(), 1, rid, []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	_, err = f.svc.Commit(context.Background(), 2, rid, []int{6, 7, 8, 9, 10})
	require.NoError(t, err)

	page, err := f.svc.ListRounds(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, page.Page)
	require.Equal(t, 20, page.PerPage)
	require.Equal(t, 1, page.Total)
	require.Equal(t, 10, page.Items[0].Reserved)
	require.Equal(t, 2, page.Items[0].Players)
}

func TestRoundStatusPhases(t *testing.T) {
	f := newFixture(t)
	st, err := f.svc.RoundStatus(context.Background(), 4)
	require.NoError(t, err)
	require.Nil(t, st.RoundID)
	require.EqualValues(t, "NO_OPEN_ROUND", st.Phase)
	require.Equal(t, 10000, st.Capacity)

	rid := f.openRound(t, 4)
	st, err = f.svc.RoundStatus(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, rid, *st.RoundID)
	require.EqualValues(t, "OPEN", st.Phase)
}

func TestEnsureOpenRoundConcurrentCallersAgree(t *testing.T) {
	f := newFixture(t)
	ids := make(chan uint64, 8)
	errs := make(chan error, 8)
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			id, err := f.svc.EnsureOpenRound(context.Background(), 3)
			ids <- id
			errs <- err
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	close(ids)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	first := uint64(0)
	for id := range ids {
		if first == 0 {
			first = id
		}
		require.Equal(t, first, id)
	}
	require.Len(t, f.st.OpenRounds(3), 1)
}

func TestTransientStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.ents.Set(1, 3)
	f.st.Fail = errors.Join(game.ErrTransient, errors.New("deadlock"))
	_, err := f.svc.EnsureOpenRound(context.Background(), 3)
	require.ErrorIs(t, err, game.ErrTransient)
}
