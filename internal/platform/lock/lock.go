// Package lock provides keyed mutual exclusion for work that must not interleave per key,
// such as sequence-number assignment for one signing identity.
package lock

import (
	"context"
	"errors"

	dErrors "creditmint/pkg/domain-errors"
)

// ErrNotHeld is returned by a release whose lock expired or was taken over.
var ErrNotHeld = errors.New("lock: not held")

// Release gives the lock back. It is safe to call once.
type Release func(ctx context.Context) error

// Locker acquires exclusive holds on keys. Acquire blocks until the key is free or ctx
// is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

func aborted(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "lock acquisition timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeCanceled, "lock acquisition canceled")
}
