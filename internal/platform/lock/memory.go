package lock

import (
	"context"
	"sync"
)

// numShards bounds memory regardless of how many keys are seen. Keys that collide on a
// shard serialize with each other, which is safe but slower.
const numShards = 64

// Memory is an in-process Locker. Each shard is a one-slot semaphore so waiters can
// give up when their context ends.
type Memory struct {
	once   sync.Once
	shards [numShards]chan struct{}
}

// NewMemory returns an in-process Locker.
func NewMemory() *Memory {
	m := &Memory{}
	m.init()
	return m
}

func (m *Memory) init() {
	m.once.Do(func() {
		for i := range m.shards {
			m.shards[i] = make(chan struct{}, 1)
		}
	})
}

func (m *Memory) Acquire(ctx context.Context, key string) (Release, error) {
	m.init()
	if err := ctx.Err(); err != nil {
		return nil, aborted(err)
	}
	slot := m.shards[hashKey(key)%numShards]
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, aborted(ctx.Err())
	}

	var released sync.Once
	return func(context.Context) error {
		err := ErrNotHeld
		released.Do(func() {
			<-slot
			err = nil
		})
		return err
	}, nil
}

// hashKey is FNV-1a.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
