//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditmint/pkg/testutil/containers"
)

func TestRedis_Integration(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	locker := NewRedis(rc.Client, WithRetryInterval(5*time.Millisecond), WithKeyPrefix("test:"))

	t.Run("second holder waits until release", func(t *testing.T) {
		release, err := locker.Acquire(ctx, "signer")
		require.NoError(t, err)

		acquired := make(chan Release, 1)
		go func() {
			r, err := locker.Acquire(ctx, "signer")
			if err == nil {
				acquired <- r
			}
		}()

		select {
		case <-acquired:
			t.Fatal("lock acquired while held")
		case <-time.After(50 * time.Millisecond):
		}

		require.NoError(t, release(ctx))
		select {
		case r := <-acquired:
			require.NoError(t, r(ctx))
		case <-time.After(2 * time.Second):
			t.Fatal("waiter never acquired the lock")
		}
	})

	t.Run("live hold is renewed past its ttl", func(t *testing.T) {
		short := NewRedis(rc.Client, WithTTL(90*time.Millisecond), WithRetryInterval(5*time.Millisecond), WithKeyPrefix("test:"))
		release, err := short.Acquire(ctx, "slow")
		require.NoError(t, err)
		time.Sleep(300 * time.Millisecond)

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = short.Acquire(waitCtx, "slow")
		require.Error(t, err, "renewed hold must still exclude other holders")

		require.NoError(t, release(ctx))
		next, err := short.Acquire(ctx, "slow")
		require.NoError(t, err)
		require.NoError(t, next(ctx))
	})

	t.Run("taken-over hold cannot be released by the old holder", func(t *testing.T) {
		release, err := locker.Acquire(ctx, "expiring")
		require.NoError(t, err)
		require.NoError(t, rc.Client.Del(ctx, "test:expiring").Err())

		next, err := locker.Acquire(ctx, "expiring")
		require.NoError(t, err)
		assert.ErrorIs(t, release(ctx), ErrNotHeld)
		require.NoError(t, next(ctx))
	})

	t.Run("acquire gives up with the context", func(t *testing.T) {
		release, err := locker.Acquire(ctx, "busy")
		require.NoError(t, err)
		defer func() { _ = release(ctx) }()

		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		defer cancel()
		_, err = locker.Acquire(waitCtx, "busy")
		assert.Error(t, err)
	})
}
