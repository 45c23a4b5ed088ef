// Package notify forwards committed ledger notifications to external sinks. Delivery is
// at least once: a batch is retried until every sink accepts it, and each message
// carries a stable id derived from its log position for downstream deduplication.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"creditmint/internal/ledger"
	"creditmint/pkg/domain"
)

const (
	defaultBatchSize  = 100
	defaultRetryDelay = time.Second
)

// Source is the ledger's notification log.
type Source interface {
	EventsSince(cursor uint64, limit int) ([]ledger.Event, <-chan struct{})
}

// Sink receives batches of messages. Publish must be safe to call again with the same
// batch after a failure.
type Sink interface {
	Name() string
	Publish(ctx context.Context, msgs []Message) error
}

// Relay tails a Source and fans each batch out to every sink.
type Relay struct {
	source     Source
	sinks      []Sink
	contract   domain.Identity
	batchSize  int
	retryDelay time.Duration
	cursor     atomic.Uint64
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.retryDelay = d
		}
	}
}

// WithStartCursor resumes after the given sequence number.
func WithStartCursor(seq uint64) Option {
	return func(r *Relay) {
		r.cursor.Store(seq)
	}
}

// NewRelay creates a relay for the contract at contract.
func NewRelay(source Source, contract domain.Identity, sinks []Sink, opts ...Option) *Relay {
	r := &Relay{
		source:     source,
		sinks:      sinks,
		contract:   contract,
		batchSize:  defaultBatchSize,
		retryDelay: defaultRetryDelay,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cursor is the sequence number of the last delivered notification.
func (r *Relay) Cursor() uint64 {
	return r.cursor.Load()
}

// Run delivers notifications until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	for {
		events, changed := r.source.EventsSince(r.cursor.Load(), r.batchSize)
		if len(events) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
				continue
			}
		}

		msgs := make([]Message, len(events))
		for i, ev := range events {
			msgs[i] = r.toMessage(ev)
		}
		if err := r.deliver(ctx, msgs); err != nil {
			return nil
		}
		r.cursor.Store(events[len(events)-1].Seq)
	}
}

// deliver retries the batch until all sinks accept it. It only returns an error when ctx
// ends first.
func (r *Relay) deliver(ctx context.Context, msgs []Message) error {
	for attempt := 1; ; attempt++ {
		err := r.publishAll(ctx, msgs)
		if err == nil {
			return nil
		}
		r.logger.WarnContext(ctx, "notification delivery failed, retrying",
			"attempt", attempt,
			"first_seq", msgs[0].Seq,
			"last_seq", msgs[len(msgs)-1].Seq,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}
}

func (r *Relay) publishAll(ctx context.Context, msgs []Message) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sink := range r.sinks {
		g.Go(func() error {
			if err := sink.Publish(gctx, msgs); err != nil {
				return fmt.Errorf("sink %s: %w", sink.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Relay) toMessage(ev ledger.Event) Message {
	msg := Message{
		ID:        MessageID(r.contract, ev.Seq).String(),
		Contract:  r.contract.Hex(),
		Seq:       ev.Seq,
		Name:      ev.Name,
		Topics:    make([]string, len(ev.Topics)),
		Block:     ev.Block,
		RelayedAt: r.now().UTC(),
	}
	for i, t := range ev.Topics {
		msg.Topics[i] = t.Hex()
	}
	if ev.Value != nil {
		msg.Value = ev.Value.String()
	}
	if ev.TxHash != (common.Hash{}) {
		msg.TxHash = ev.TxHash.Hex()
	}
	return msg
}

// MessageID is stable for a given contract and log position.
func MessageID(contract domain.Identity, seq uint64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", contract.Hex(), seq)))
}
