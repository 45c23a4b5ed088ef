package lock

import (
	"context"
	"log/slog"

	dErrors "creditmint/pkg/domain-errors"
	"creditmint/pkg/platform/circuit"
)

// Fallback prefers the primary locker and switches to a process-local one once the
// breaker opens. While degraded, submissions stay serialized within this process only.
type Fallback struct {
	primary  Locker
	fallback Locker
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

// NewFallback wraps primary. A nil breaker gets the default thresholds.
func NewFallback(primary, fallback Locker, breaker *circuit.Breaker, logger *slog.Logger) *Fallback {
	if breaker == nil {
		breaker = circuit.New("lock")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

// Degraded reports whether the fallback is in use.
func (f *Fallback) Degraded() bool {
	return f.breaker.IsOpen()
}

func (f *Fallback) Acquire(ctx context.Context, key string) (Release, error) {
	release, err := f.primary.Acquire(ctx, key)
	if err == nil {
		usePrimary, change := f.breaker.RecordSuccess()
		if change.Closed {
			f.logger.InfoContext(ctx, "lock backend recovered", "breaker", f.breaker.Name())
		}
		if usePrimary {
			return release, nil
		}
		// still recovering: keep using the local lock so every holder agrees
		if rerr := release(ctx); rerr != nil {
			f.logger.WarnContext(ctx, "releasing probe lock failed", "error", rerr)
		}
		return f.fallback.Acquire(ctx, key)
	}
	if !dErrors.HasCode(err, dErrors.CodeInfrastructure) {
		return nil, err
	}

	useFallback, change := f.breaker.RecordFailure()
	if change.Opened {
		f.logger.WarnContext(ctx, "lock backend unavailable, using local lock",
			"breaker", f.breaker.Name(),
			"error", err,
		)
	}
	if !useFallback {
		return nil, err
	}
	return f.fallback.Acquire(ctx, key)
}
