// Package coordinator turns one external credit event into exactly one signed, submitted
// and tracked ledger transaction, and reports its terminal outcome synchronously.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"creditmint/internal/chain"
	"creditmint/internal/coordinator/metrics"
	"creditmint/internal/platform/lock"
	"creditmint/internal/token"
	"creditmint/pkg/domain"
	dErrors "creditmint/pkg/domain-errors"
	"creditmint/pkg/requestcontext"
)

const (
	DefaultPollInterval   = 5 * time.Second
	DefaultConfirmTimeout = 5 * time.Minute
	DefaultSubmitTimeout  = 30 * time.Second
	DefaultGasCeiling     = 300000

	tracerName = "creditmint/coordinator"
)

// Service is the transaction coordinator. It holds everything a request needs: the
// network, the signing identity and the contract address. Requests sharing the signer
// are serialized from nonce lookup through broadcast; polling runs unlocked.
type Service struct {
	network        chain.Network
	signer         chain.Signer
	contract       domain.Identity
	decimals       uint8
	gasCeiling     uint64
	pollInterval   time.Duration
	confirmTimeout time.Duration
	submitTimeout  time.Duration
	locker         lock.Locker
	metrics        *metrics.Metrics
	logger         *slog.Logger
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLocker replaces the in-process submission lock, e.g. with a Redis lock shared by
// several coordinator replicas using the same signing identity.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithDecimals(decimals uint8) Option {
	return func(s *Service) {
		s.decimals = decimals
	}
}

func WithGasCeiling(gas uint64) Option {
	return func(s *Service) {
		if gas > 0 {
			s.gasCeiling = gas
		}
	}
}

// WithPolling sets the receipt lookup interval and the overall confirmation budget.
func WithPolling(interval, budget time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.pollInterval = interval
		}
		if budget > 0 {
			s.confirmTimeout = budget
		}
	}
}

// WithSubmitTimeout bounds the broadcast call. The broadcast ignores caller
// cancellation so that a started submission is never cut off halfway.
func WithSubmitTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.submitTimeout = d
		}
	}
}

// New constructs a Service that signs with signer and calls the contract at contract.
func New(network chain.Network, signer chain.Signer, contract domain.Identity, opts ...Option) *Service {
	s := &Service{
		network:        network,
		signer:         signer,
		contract:       contract,
		decimals:       token.DefaultDecimals,
		gasCeiling:     DefaultGasCeiling,
		pollInterval:   DefaultPollInterval,
		confirmTimeout: DefaultConfirmTimeout,
		submitTimeout:  DefaultSubmitTimeout,
		locker:         lock.NewMemory(),
		logger:         slog.Default(),
		tracer:         otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signer returns the identity envelopes are signed with.
func (s *Service) Signer() domain.Identity {
	return s.signer.Identity()
}

// Mint validates and scales ev, then drives one mintSecure transaction to a terminal
// state. The returned Outcome is never nil; the error is nil only when the outcome is
// Confirmed. Validation failures return before any network interaction.
func (s *Service) Mint(ctx context.Context, ev CreditEvent) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.mint")
	defer span.End()

	out := &Outcome{State: StateReceived}
	s.transition(ctx, out, StateValidating)

	amount, err := ScaleMagnitude(ev.Magnitude, s.decimals)
	if err != nil {
		return s.finish(ctx, span, out, StateFailed, err)
	}
	target, err := ParseTarget(ev.Target)
	if err != nil {
		return s.finish(ctx, span, out, StateFailed, err)
	}
	data, err := token.PackMint(token.MethodMintSecure, target, amount)
	if err != nil {
		return s.finish(ctx, span, out, StateFailed, err)
	}

	span.SetAttributes(
		attribute.String("target", target.Hex()),
		attribute.String("amount", amount.String()),
	)
	out.AmountMinted = amount

	out, err = s.run(ctx, span, out, data)
	if err == nil && s.metrics != nil {
		s.metrics.AddMinted(wholeTokens(amount, s.decimals))
	}
	return out, err
}

// Transact drives arbitrary contract calldata (e.g. authorize, revoke, mintOwner) from
// the signing identity through the same prepare, submit and confirm pipeline.
func (s *Service) Transact(ctx context.Context, method string, data []byte) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.transact",
		trace.WithAttributes(attribute.String("method", method)))
	defer span.End()

	out := &Outcome{State: StateReceived}
	s.transition(ctx, out, StateValidating)
	if len(data) < 4 {
		return s.finish(ctx, span, out, StateFailed,
			dErrors.New(dErrors.CodeValidation, "calldata is missing a method selector"))
	}
	return s.run(ctx, span, out, data)
}

func (s *Service) run(ctx context.Context, span trace.Span, out *Outcome, data []byte) (*Outcome, error) {
	if s.metrics != nil {
		s.metrics.IncrementInFlight()
		defer s.metrics.DecrementInFlight()
	}

	handle, err := s.prepareAndSubmit(ctx, out, data)
	if err != nil {
		return s.finish(ctx, span, out, StateFailed, err)
	}
	out.TxHash = handle
	span.SetAttributes(attribute.String("tx_hash", handle.Hex()))
	s.transition(ctx, out, StateSubmitted)

	s.transition(ctx, out, StatePolling)
	receipt, err := s.awaitReceipt(ctx, handle)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeTimeout) {
			return s.finish(ctx, span, out, StateTimedOut, err)
		}
		return s.finish(ctx, span, out, StateFailed, err)
	}

	out.BlockNumber = receipt.BlockNumber
	out.BlockHash = receipt.BlockHash
	if !receipt.Success {
		msg := "Transaction failed"
		if receipt.Reason != "" {
			msg += ": " + receipt.Reason
		}
		return s.finish(ctx, span, out, StateFailed, dErrors.New(dErrors.CodeExecutionFailed, msg))
	}
	return s.finish(ctx, span, out, StateConfirmed, nil)
}

// prepareAndSubmit holds the signer's lock from nonce lookup through broadcast.
func (s *Service) prepareAndSubmit(ctx context.Context, out *Outcome, data []byte) (common.Hash, error) {
	from := s.signer.Identity()
	release, err := s.locker.Acquire(ctx, "signer:"+from.Hex())
	if err != nil {
		if ctx.Err() != nil {
			return common.Hash{}, canceled(ctx)
		}
		return common.Hash{}, dErrors.Wrap(err, dErrors.CodeInfrastructure, "Failed to prepare transaction")
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "submission lock release failed",
				"request_id", requestcontext.RequestID(ctx),
				"signer", from.Hex(),
				"error", err,
			)
		}
	}()

	s.transition(ctx, out, StatePreparing)
	signed, err := s.prepare(ctx, from, data)
	if err != nil {
		return common.Hash{}, err
	}
	return s.submit(ctx, signed)
}

func (s *Service) prepare(ctx context.Context, from domain.Identity, data []byte) (*chain.SignedEnvelope, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.prepare")
	defer span.End()
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveStage("prepare", start)
	}

	nonce, err := s.network.PendingNonce(ctx, from)
	if err != nil {
		return nil, s.prepareError(ctx, span, err, "failed to get nonce")
	}
	feeRate, err := s.network.SuggestFeeRate(ctx)
	if err != nil {
		return nil, s.prepareError(ctx, span, err, "failed to get gas price")
	}
	networkID, err := s.network.NetworkID(ctx)
	if err != nil {
		return nil, s.prepareError(ctx, span, err, "failed to get network ID")
	}

	signed, err := s.signer.Sign(chain.Envelope{
		From:       from,
		To:         s.contract,
		Nonce:      nonce,
		FeeRate:    feeRate,
		GasCeiling: s.gasCeiling,
		NetworkID:  networkID,
		Data:       data,
	})
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Failed to prepare transaction: failed to sign envelope")
	}
	span.SetAttributes(attribute.Int64("nonce", int64(nonce)))
	return signed, nil
}

func (s *Service) prepareError(ctx context.Context, span trace.Span, err error, what string) error {
	span.RecordError(err)
	if ctx.Err() != nil {
		return canceled(ctx)
	}
	return dErrors.Wrap(err, dErrors.CodeInfrastructure, "Failed to prepare transaction: "+what)
}

// submit broadcasts env. Caller cancellation is deliberately detached here; only the
// submit timeout bounds the call.
func (s *Service) submit(ctx context.Context, env *chain.SignedEnvelope) (common.Hash, error) {
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
	defer cancel()
	submitCtx, span := s.tracer.Start(submitCtx, "coordinator.submit")
	defer span.End()
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveStage("submit", start)
	}

	handle, err := s.network.Submit(submitCtx, env)
	if err != nil {
		span.RecordError(err)
		return common.Hash{}, dErrors.Wrap(err, dErrors.CodeInfrastructure, "Failed to mint tokens")
	}
	s.logger.InfoContext(ctx, "envelope submitted",
		"request_id", requestcontext.RequestID(ctx),
		"tx_hash", handle.Hex(),
		"nonce", env.Nonce,
	)
	return handle, nil
}

// awaitReceipt polls until a receipt is observed, a lookup fails fatally, the budget
// runs out, or ctx ends. Pending and unreachable lookups are retried.
func (s *Service) awaitReceipt(ctx context.Context, handle common.Hash) (*chain.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "coordinator.confirm")
	defer span.End()
	start := time.Now()
	if s.metrics != nil {
		defer s.metrics.ObserveStage("confirm", start)
	}

	budgetCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if s.metrics != nil {
			s.metrics.IncrementPollAttempt()
		}
		receipt, err := s.network.Receipt(budgetCtx, handle)
		switch {
		case err == nil:
			span.SetAttributes(attribute.Int("poll_attempts", attempt))
			return receipt, nil
		case errors.Is(err, chain.ErrPending):
		case errors.Is(err, chain.ErrUnreachable):
			s.logger.DebugContext(ctx, "receipt lookup unreachable, retrying",
				"tx_hash", handle.Hex(),
				"attempt", attempt,
				"error", err,
			)
		case budgetCtx.Err() != nil:
		default:
			span.RecordError(err)
			return nil, dErrors.Wrap(err, dErrors.CodeInfrastructure, "Error waiting for transaction")
		}

		select {
		case <-budgetCtx.Done():
			if ctx.Err() != nil {
				return nil, canceled(ctx)
			}
			return nil, dErrors.New(dErrors.CodeTimeout,
				fmt.Sprintf("Error waiting for transaction: not confirmed within %s", s.confirmTimeout))
		case <-ticker.C:
		}
	}
}

func (s *Service) transition(ctx context.Context, out *Outcome, next State) {
	out.State = next
	s.logger.DebugContext(ctx, "coordinator transition",
		"request_id", requestcontext.RequestID(ctx),
		"state", string(next),
	)
}

func (s *Service) finish(ctx context.Context, span trace.Span, out *Outcome, state State, err error) (*Outcome, error) {
	out.State = state
	out.Err = err
	code := ""
	if err != nil {
		code = string(dErrors.GetCode(err))
		span.SetStatus(codes.Error, err.Error())
	}
	if s.metrics != nil {
		s.metrics.IncrementRequest(string(state), code)
	}

	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"state", string(state),
	}
	if out.Broadcast() {
		attrs = append(attrs, "tx_hash", out.TxHash.Hex())
	}
	switch {
	case err == nil:
		attrs = append(attrs, "block", out.BlockNumber)
		s.logger.InfoContext(ctx, "transaction confirmed", attrs...)
	case dErrors.IsClientError(dErrors.GetCode(err)):
		attrs = append(attrs, "error", err.Error())
		s.logger.InfoContext(ctx, "request rejected", attrs...)
	case state == StateTimedOut:
		attrs = append(attrs, "error", err.Error())
		s.logger.WarnContext(ctx, "confirmation wait timed out", attrs...)
	default:
		attrs = append(attrs, "code", code, "error", err.Error())
		s.logger.ErrorContext(ctx, "transaction failed", attrs...)
	}
	return out, err
}

func canceled(ctx context.Context) error {
	return dErrors.Wrap(context.Cause(ctx), dErrors.CodeCanceled, "request canceled")
}
