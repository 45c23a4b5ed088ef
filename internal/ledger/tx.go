package ledger

import (
	"math/big"

	"creditmint/pkg/domain"
)

// Tx is the execution context of one Execute call. It is only valid inside the callback
// and must not be retained.
type Tx struct {
	ledger  *Ledger
	call    Call
	caller  domain.Identity
	depth   int
	journal []func()
	events  []Event
	abort   error
}

// Call returns the outermost frame.
func (tx *Tx) Call() Call {
	return tx.call
}

// Caller returns the identity invoking the current frame.
func (tx *Tx) Caller() domain.Identity {
	return tx.caller
}

// Depth is 0 for the outermost frame and grows with each nested As.
func (tx *Tx) Depth() int {
	return tx.depth
}

// As runs fn in a nested frame whose caller is the given identity. State changes made by
// fn belong to the same atomic transaction.
func (tx *Tx) As(caller domain.Identity, fn func(tx *Tx) error) error {
	prev := tx.caller
	tx.caller = caller
	tx.depth++
	defer func() {
		tx.caller = prev
		tx.depth--
	}()
	return fn(tx)
}

// BalanceOf returns id's balance as seen by this transaction.
func (tx *Tx) BalanceOf(id domain.Identity) *big.Int {
	return tx.ledger.balanceOf(id)
}

// TotalSupply returns the supply as seen by this transaction.
func (tx *Tx) TotalSupply() *big.Int {
	return new(big.Int).Set(tx.ledger.supply)
}

// Credit increases to's balance and the total supply by amount.
func (tx *Tx) Credit(to domain.Identity, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l := tx.ledger
	newSupply := new(big.Int).Add(l.supply, amount)
	if newSupply.Cmp(MaxSupply) > 0 {
		return ErrSupplyOverflow
	}

	prevSupply := l.supply
	prevBalance, had := l.balances[to]
	newBalance := new(big.Int).Add(l.balanceOf(to), amount)

	l.supply = newSupply
	l.balances[to] = newBalance
	tx.OnRevert(func() {
		l.supply = prevSupply
		if had {
			l.balances[to] = prevBalance
		} else {
			delete(l.balances, to)
		}
	})
	return nil
}

// Deliver runs the receiver code attached to `to`, if any.
func (tx *Tx) Deliver(to, from domain.Identity, amount *big.Int) error {
	r, ok := tx.ledger.receivers[to]
	if !ok {
		return nil
	}
	return r.OnReceive(tx, from, new(big.Int).Set(amount))
}

// Emit queues a notification; it is published only if the transaction commits.
func (tx *Tx) Emit(name string, value *big.Int, topics ...domain.Identity) {
	ev := Event{Name: name, Topics: append([]domain.Identity(nil), topics...)}
	if value != nil {
		ev.Value = new(big.Int).Set(value)
	}
	tx.events = append(tx.events, ev)
}

// Abort marks the whole transaction as failed. Execute rolls it back and returns cause
// even when every frame above swallowed the error. Only the first cause is kept.
func (tx *Tx) Abort(cause error) {
	if tx.abort == nil && cause != nil {
		tx.abort = cause
	}
}

// Aborted returns the cause passed to Abort, or nil.
func (tx *Tx) Aborted() error {
	return tx.abort
}

// OnRevert records an undo step. Contracts use it to journal their own storage.
func (tx *Tx) OnRevert(undo func()) {
	tx.journal = append(tx.journal, undo)
}

func (tx *Tx) revert() {
	for i := len(tx.journal) - 1; i >= 0; i-- {
		tx.journal[i]()
	}
	tx.journal = nil
	tx.events = nil
}
