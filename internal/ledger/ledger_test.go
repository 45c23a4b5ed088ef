package ledger

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditmint/pkg/domain"
)

var (
	alice = domain.IdentityFromAddress(common.HexToAddress("0x00000000000000000000000000000000000a11ce"))
	bob   = domain.IdentityFromAddress(common.HexToAddress("0x0000000000000000000000000000000000000b0b"))
)

func TestExecute_CommitsCreditsAndEvents(t *testing.T) {
	l := New()

	events, err := l.Execute(Call{Caller: alice, Block: 7}, func(tx *Tx) error {
		if err := tx.Credit(bob, big.NewInt(500)); err != nil {
			return err
		}
		tx.Emit("Transfer", big.NewInt(500), domain.NullIdentity, bob)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(500), l.BalanceOf(bob))
	assert.Equal(t, big.NewInt(500), l.TotalSupply())
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, uint64(7), events[0].Block)
	assert.Equal(t, []domain.Identity{domain.NullIdentity, bob}, events[0].Topics)
}

func TestExecute_RollsBackOnError(t *testing.T) {
	l := New()
	_, err := l.Execute(Call{Caller: alice}, func(tx *Tx) error {
		return tx.Credit(alice, big.NewInt(10))
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = l.Execute(Call{Caller: alice}, func(tx *Tx) error {
		require.NoError(t, tx.Credit(alice, big.NewInt(5)))
		require.NoError(t, tx.Credit(bob, big.NewInt(7)))
		tx.Emit("Transfer", big.NewInt(7), domain.NullIdentity, bob)
		assert.Equal(t, big.NewInt(22), tx.TotalSupply(), "changes are visible inside the transaction")
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, big.NewInt(10), l.BalanceOf(alice))
	assert.Zero(t, l.BalanceOf(bob).Sign())
	assert.Equal(t, big.NewInt(10), l.TotalSupply())
	events, _ := l.EventsSince(0, 0)
	assert.Empty(t, events)
}

func TestExecute_RollsBackOnPanic(t *testing.T) {
	l := New()
	assert.Panics(t, func() {
		_, _ = l.Execute(Call{Caller: alice}, func(tx *Tx) error {
			_ = tx.Credit(bob, big.NewInt(3))
			panic("contract bug")
		})
	})
	assert.Zero(t, l.TotalSupply().Sign())
}

func TestExecute_JournalUndoRunsInReverse(t *testing.T) {
	l := New()
	var order []int
	_, err := l.Execute(Call{}, func(tx *Tx) error {
		tx.OnRevert(func() { order = append(order, 1) })
		tx.OnRevert(func() { order = append(order, 2) })
		return errors.New("revert")
	})
	require.Error(t, err)
	assert.Equal(t, []int{2, 1}, order)
}

func TestCredit_RejectsInvalidAmounts(t *testing.T) {
	l := New()
	_, err := l.Execute(Call{}, func(tx *Tx) error {
		return tx.Credit(bob, big.NewInt(0))
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = l.Execute(Call{}, func(tx *Tx) error {
		if err := tx.Credit(bob, MaxSupply); err != nil {
			return err
		}
		return tx.Credit(bob, big.NewInt(1))
	})
	assert.ErrorIs(t, err, ErrSupplyOverflow)
	assert.Zero(t, l.TotalSupply().Sign(), "overflowing transaction is rolled back entirely")
}

func TestAs_SwitchesCallerForNestedFrame(t *testing.T) {
	l := New()
	_, err := l.Execute(Call{Caller: alice}, func(tx *Tx) error {
		assert.Equal(t, alice, tx.Caller())
		err := tx.As(bob, func(inner *Tx) error {
			assert.Equal(t, bob, inner.Caller())
			assert.Equal(t, 1, inner.Depth())
			return nil
		})
		assert.Equal(t, alice, tx.Caller())
		assert.Equal(t, 0, tx.Depth())
		return err
	})
	require.NoError(t, err)
}

func TestDeliver_InvokesReceiver(t *testing.T) {
	l := New()
	var got *big.Int
	l.SetReceiver(bob, ReceiverFunc(func(tx *Tx, from domain.Identity, amount *big.Int) error {
		got = amount
		return nil
	}))

	_, err := l.Execute(Call{}, func(tx *Tx) error {
		require.NoError(t, tx.Deliver(alice, domain.NullIdentity, big.NewInt(1)))
		return tx.Deliver(bob, domain.NullIdentity, big.NewInt(42))
	})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), got)
}

func TestEventsSince_SignalsNextCommit(t *testing.T) {
	l := New()
	events, changed := l.EventsSince(0, 0)
	require.Empty(t, events)

	_, err := l.Execute(Call{}, func(tx *Tx) error {
		tx.Emit("MinterAuthorized", nil, bob)
		tx.Emit("MinterAuthorized", nil, alice)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-changed:
	default:
		t.Fatal("expected change signal after commit")
	}

	events, _ = l.EventsSince(0, 1)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].Seq)

	events, _ = l.EventsSince(1, 0)
	require.Len(t, events, 1)
	assert.Equal(t, alice, events[0].Topics[0])
}

func TestFilterEvents(t *testing.T) {
	l := New()
	_, err := l.Execute(Call{}, func(tx *Tx) error {
		tx.Emit("MinterAuthorized", nil, bob)
		tx.Emit("MintSecure", big.NewInt(3), alice)
		tx.Emit("MintSecure", big.NewInt(4), bob)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, l.FilterEvents(Filter{Name: "MintSecure"}), 2)
	assert.Len(t, l.FilterEvents(Filter{Topic: bob}), 2)
	byBoth := l.FilterEvents(Filter{Name: "MintSecure", Topic: bob})
	require.Len(t, byBoth, 1)
	assert.Equal(t, big.NewInt(4), byBoth[0].Value)
}

func TestExecute_SerializesConcurrentMutations(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Execute(Call{}, func(tx *Tx) error {
				return tx.Credit(alice, big.NewInt(2))
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, big.NewInt(100), l.BalanceOf(alice))
	assert.Equal(t, big.NewInt(100), l.TotalSupply())
}

func TestFilterEvents_Since(t *testing.T) {
	l := New()
	for range 3 {
		_, err := l.Execute(Call{}, func(tx *Tx) error {
			tx.Emit("MintSecure", big.NewInt(1), bob)
			return nil
		})
		require.NoError(t, err)
	}
	events := l.FilterEvents(Filter{Since: 1})
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[0].Seq)
}

func TestExecute_AbortRollsBackEvenWhenSwallowed(t *testing.T) {
	l := New()
	cause := errors.New("nested call rejected")

	_, err := l.Execute(Call{Caller: alice}, func(tx *Tx) error {
		require.NoError(t, tx.Credit(bob, big.NewInt(3)))
		tx.Emit("Transfer", big.NewInt(3), domain.NullIdentity, bob)
		_ = tx.As(bob, func(inner *Tx) error {
			inner.Abort(cause)
			inner.Abort(errors.New("later cause"))
			return cause
		})
		return nil
	})
	require.ErrorIs(t, err, cause)

	assert.Zero(t, l.BalanceOf(bob).Sign())
	assert.Zero(t, l.TotalSupply().Sign())
	events, _ := l.EventsSince(0, 0)
	assert.Empty(t, events)
}
