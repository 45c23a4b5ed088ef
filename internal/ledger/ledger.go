// Package ledger models the value-transfer engine the token contract runs on: balances,
// total supply, an append-only notification log, and serialized all-or-nothing execution.
//
// Every mutation runs inside Execute. A mutation either commits completely (state changes
// and notifications) or is rolled back through the journal, so no observer ever sees a
// partial state.
package ledger

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"creditmint/pkg/domain"
)

var (
	// ErrInvalidAmount is returned when a credit is not strictly positive.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrSupplyOverflow is returned when a credit would push total supply past 2^256-1.
	ErrSupplyOverflow = errors.New("ledger: total supply overflow")
)

// MaxSupply is the largest representable supply (uint256).
var MaxSupply = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Call describes the outermost frame a mutation executes in.
type Call struct {
	Caller domain.Identity
	TxHash common.Hash
	Block  uint64
}

// Receiver is code attached to an identity that runs when the identity is credited.
// It executes inside the crediting transaction and may call back into contracts, which
// is exactly the re-entry path the token's guard defends against.
type Receiver interface {
	OnReceive(tx *Tx, from domain.Identity, amount *big.Int) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(tx *Tx, from domain.Identity, amount *big.Int) error

func (f ReceiverFunc) OnReceive(tx *Tx, from domain.Identity, amount *big.Int) error {
	return f(tx, from, amount)
}

// Ledger is the in-process state engine. It is safe for concurrent use; mutations are
// serialized by a single writer lock.
type Ledger struct {
	mu        sync.RWMutex
	balances  map[domain.Identity]*big.Int
	supply    *big.Int
	events    []Event
	receivers map[domain.Identity]Receiver
	changed   chan struct{}
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:  make(map[domain.Identity]*big.Int),
		supply:    new(big.Int),
		receivers: make(map[domain.Identity]Receiver),
		changed:   make(chan struct{}),
	}
}

// Execute runs fn as one atomic mutation. If fn returns an error, panics, or any frame
// called Abort, every state change it made is undone and none of its notifications are
// published. An abort cause takes precedence over the error fn returned. The committed
// notifications are returned on success.
func (l *Ledger) Execute(call Call, fn func(tx *Tx) error) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &Tx{ledger: l, call: call, caller: call.Caller}
	committed := false
	defer func() {
		if !committed {
			tx.revert()
		}
	}()

	err := fn(tx)
	if cause := tx.Aborted(); cause != nil {
		err = cause
	}
	if err != nil {
		return nil, err
	}

	committed = true
	return l.publish(tx), nil
}

// publish appends the transaction's notifications to the log. Caller holds l.mu.
func (l *Ledger) publish(tx *Tx) []Event {
	if len(tx.events) == 0 {
		return nil
	}
	out := make([]Event, len(tx.events))
	for i, ev := range tx.events {
		ev.Seq = uint64(len(l.events)) + 1
		ev.TxHash = tx.call.TxHash
		ev.Block = tx.call.Block
		l.events = append(l.events, ev)
		out[i] = ev
	}
	close(l.changed)
	l.changed = make(chan struct{})
	return out
}

// Read runs fn while holding the read lock so contract state can be inspected without
// racing a concurrent Execute.
func (l *Ledger) Read(fn func()) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn()
}

// BalanceOf returns a copy of id's balance.
func (l *Ledger) BalanceOf(id domain.Identity) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceOf(id)
}

// TotalSupply returns a copy of the total supply.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.supply)
}

// SetReceiver attaches (or with nil, detaches) receiver code to an identity.
func (l *Ledger) SetReceiver(id domain.Identity, r Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r == nil {
		delete(l.receivers, id)
		return
	}
	l.receivers[id] = r
}

// EventsSince returns committed notifications with Seq > cursor, at most limit of them
// (limit <= 0 means all), plus a channel that is closed on the next commit. Reading both
// under one lock lets tailers wait without missing an append.
func (l *Ledger) EventsSince(cursor uint64, limit int) ([]Event, <-chan struct{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if cursor >= uint64(len(l.events)) {
		return nil, l.changed
	}
	tail := l.events[cursor:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]Event, len(tail))
	for i, ev := range tail {
		out[i] = ev.clone()
	}
	return out, l.changed
}

// FilterEvents returns every committed notification matching f.
func (l *Ledger) FilterEvents(f Filter) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, ev := range l.events {
		if f.Match(ev) {
			out = append(out, ev.clone())
		}
	}
	return out
}

func (l *Ledger) balanceOf(id domain.Identity) *big.Int {
	if bal, ok := l.balances[id]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}
