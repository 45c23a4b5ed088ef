// Package evm adapts a go-ethereum JSON-RPC node to the chain.Network interface.
package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"creditmint/internal/chain"
	"creditmint/pkg/domain"
)

const defaultCallTimeout = 15 * time.Second

// Client talks to one node endpoint.
type Client struct {
	rpc         *ethclient.Client
	callTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCallTimeout bounds each individual RPC. A call that exceeds it while the caller's
// context is still live is reported as chain.ErrUnreachable.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Dial connects to the node at url.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial ledger node: %w", err)
	}
	return NewClient(rpc, opts...), nil
}

// NewClient wraps an existing ethclient.
func NewClient(rpc *ethclient.Client, opts ...Option) *Client {
	c := &Client{
		rpc:         rpc,
		callTimeout: defaultCallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) PendingNonce(ctx context.Context, from domain.Identity) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	nonce, err := c.rpc.PendingNonceAt(callCtx, from.Address())
	if err != nil {
		return 0, classify(ctx, err)
	}
	return nonce, nil
}

func (c *Client) SuggestFeeRate(ctx context.Context) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	price, err := c.rpc.SuggestGasPrice(callCtx)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return price, nil
}

func (c *Client) NetworkID(ctx context.Context) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	id, err := c.rpc.NetworkID(callCtx)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return id, nil
}

func (c *Client) Submit(ctx context.Context, env *chain.SignedEnvelope) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(env.Raw); err != nil {
		return common.Hash{}, fmt.Errorf("decode envelope: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	if err := c.rpc.SendTransaction(callCtx, tx); err != nil {
		return common.Hash{}, classify(ctx, err)
	}
	c.logger.DebugContext(ctx, "envelope broadcast",
		"tx_hash", tx.Hash().Hex(),
		"nonce", tx.Nonce(),
	)
	return tx.Hash(), nil
}

func (c *Client) Receipt(ctx context.Context, handle common.Hash) (*chain.Receipt, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	r, err := c.rpc.TransactionReceipt(callCtx, handle)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return toReceipt(r), nil
}

func toReceipt(r *types.Receipt) *chain.Receipt {
	out := &chain.Receipt{
		TxHash:    r.TxHash,
		Success:   r.Status == types.ReceiptStatusSuccessful,
		BlockHash: r.BlockHash,
		GasUsed:   r.GasUsed,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	if !out.Success {
		out.Reason = "execution reverted"
	}
	return out
}

// classify maps node errors onto the chain sentinels. parent is the caller's context; a
// per-call deadline that fires while parent is live means the node did not answer.
func classify(parent context.Context, err error) error {
	switch {
	case errors.Is(err, ethereum.NotFound):
		return chain.ErrPending
	case parent.Err() != nil:
		return err
	case errors.Is(err, context.DeadlineExceeded), isTransport(err):
		return fmt.Errorf("%w: %v", chain.ErrUnreachable, err)
	default:
		return err
	}
}

func isTransport(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed)
}
