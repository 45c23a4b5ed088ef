package token

import (
	"sync/atomic"

	"creditmint/internal/ledger"
	dErrors "creditmint/pkg/domain-errors"
)

var ErrReentrantCall = dErrors.New(dErrors.CodeReentrancy, "reentrant call")

// Guard is a single-holder reentrancy lock. A nested Enter while the guard is held fails
// immediately and aborts the running transaction, so recipient code cannot swallow the
// rejection and let the outer call commit.
type Guard struct {
	held atomic.Bool
}

// Enter acquires the guard or aborts tx and returns ErrReentrantCall.
func (g *Guard) Enter(tx *ledger.Tx) error {
	if !g.held.CompareAndSwap(false, true) {
		tx.Abort(ErrReentrantCall)
		return ErrReentrantCall
	}
	return nil
}

// Exit releases the guard. Only the frame that entered may call it.
func (g *Guard) Exit() {
	g.held.Store(false)
}

// Held reports whether a guarded invocation is in progress.
func (g *Guard) Held() bool {
	return g.held.Load()
}
