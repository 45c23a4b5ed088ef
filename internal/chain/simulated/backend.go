// Package simulated is an in-process ledger network. It accepts signed envelopes into a
// mempool, mines them into numbered blocks against the token contract, and serves
// receipts, so the coordinator can run end to end without an external node.
package simulated

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"creditmint/internal/chain"
	"creditmint/internal/ledger"
	"creditmint/internal/token"
	"creditmint/pkg/domain"
)

const (
	// DefaultNetworkID matches common local development chains.
	DefaultNetworkID = 1337

	intrinsicGas   = 21000
	calldataGas    = 16
	defaultFeeRate = 1_000_000_000
)

// Submission rejections, mirroring what a node reports on broadcast.
var (
	ErrUnknownContract = errors.New("envelope is not addressed to the deployed contract")
	ErrNonceTooLow     = errors.New("nonce too low")
	ErrNonceGap        = errors.New("nonce too high")
	ErrIntrinsicGas    = errors.New("intrinsic gas too low")
	ErrAlreadyKnown    = errors.New("already known")
)

// ErrOutOfGas is the failure reason of an envelope whose gas ceiling cannot cover its
// execution. The nonce is consumed and the ceiling is charged, as on a real node.
var ErrOutOfGas = errors.New("out of gas")

// Block summarizes one mined block.
type Block struct {
	Number   uint64
	Hash     common.Hash
	TxHashes []common.Hash
}

type pendingEnvelope struct {
	env *chain.SignedEnvelope
}

// Backend implements chain.Network over a token contract.
type Backend struct {
	mu        sync.Mutex
	token     *token.Token
	networkID *big.Int
	feeRate   *big.Int
	nonces    map[domain.Identity]uint64
	pool      []pendingEnvelope
	known     map[common.Hash]struct{}
	receipts  map[common.Hash]*chain.Receipt
	head      uint64
	headHash  common.Hash
	logger    *slog.Logger

	unreachable atomic.Bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithNetworkID sets the chain id envelopes must be signed for.
func WithNetworkID(id int64) Option {
	return func(b *Backend) {
		if id > 0 {
			b.networkID = big.NewInt(id)
		}
	}
}

// WithFeeRate sets the suggested fee rate.
func WithFeeRate(rate *big.Int) Option {
	return func(b *Backend) {
		if rate != nil && rate.Sign() >= 0 {
			b.feeRate = new(big.Int).Set(rate)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New returns a backend serving tok.
func New(tok *token.Token, opts ...Option) *Backend {
	b := &Backend{
		token:     tok,
		networkID: big.NewInt(DefaultNetworkID),
		feeRate:   big.NewInt(defaultFeeRate),
		nonces:    make(map[domain.Identity]uint64),
		known:     make(map[common.Hash]struct{}),
		receipts:  make(map[common.Hash]*chain.Receipt),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetReachable toggles a simulated outage. While unreachable every call fails with
// chain.ErrUnreachable; mining continues.
func (b *Backend) SetReachable(ok bool) {
	b.unreachable.Store(!ok)
}

func (b *Backend) reachable() error {
	if b.unreachable.Load() {
		return chain.ErrUnreachable
	}
	return nil
}

func (b *Backend) PendingNonce(_ context.Context, from domain.Identity) (uint64, error) {
	if err := b.reachable(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingNonce(from), nil
}

// pendingNonce counts mined plus pooled envelopes. Caller holds b.mu.
func (b *Backend) pendingNonce(from domain.Identity) uint64 {
	n := b.nonces[from]
	for _, p := range b.pool {
		if p.env.From == from {
			n++
		}
	}
	return n
}

func (b *Backend) SuggestFeeRate(_ context.Context) (*big.Int, error) {
	if err := b.reachable(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.feeRate), nil
}

func (b *Backend) NetworkID(_ context.Context) (*big.Int, error) {
	if err := b.reachable(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(b.networkID), nil
}

// Submit verifies the signature, recipient, nonce and gas ceiling and queues the envelope
// for the next block.
func (b *Backend) Submit(ctx context.Context, env *chain.SignedEnvelope) (common.Hash, error) {
	if err := b.reachable(); err != nil {
		return common.Hash{}, err
	}
	opened, err := chain.Open(env.Raw, b.networkID)
	if err != nil {
		return common.Hash{}, err
	}
	if opened.To != b.token.Address() {
		return common.Hash{}, ErrUnknownContract
	}
	if opened.GasCeiling < intrinsicGas {
		return common.Hash{}, ErrIntrinsicGas
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.known[opened.Hash]; dup {
		return common.Hash{}, ErrAlreadyKnown
	}
	if _, mined := b.receipts[opened.Hash]; mined {
		return common.Hash{}, ErrAlreadyKnown
	}
	want := b.pendingNonce(opened.From)
	switch {
	case opened.Nonce < want:
		return common.Hash{}, fmt.Errorf("%w: next nonce %d, envelope nonce %d", ErrNonceTooLow, want, opened.Nonce)
	case opened.Nonce > want:
		return common.Hash{}, fmt.Errorf("%w: next nonce %d, envelope nonce %d", ErrNonceGap, want, opened.Nonce)
	}

	b.pool = append(b.pool, pendingEnvelope{env: opened})
	b.known[opened.Hash] = struct{}{}
	b.logger.DebugContext(ctx, "envelope accepted",
		"tx_hash", opened.Hash.Hex(),
		"from", opened.From.Hex(),
		"nonce", opened.Nonce,
	)
	return opened.Hash, nil
}

func (b *Backend) Receipt(_ context.Context, handle common.Hash) (*chain.Receipt, error) {
	if err := b.reachable(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[handle]
	if !ok {
		return nil, chain.ErrPending
	}
	out := *r
	return &out, nil
}

// Commit mines every pooled envelope into a new block. Each envelope executes atomically
// against the contract; a failed execution still consumes its nonce and yields a receipt
// with Success false.
func (b *Backend) Commit() Block {
	b.mu.Lock()
	defer b.mu.Unlock()

	number := b.head + 1
	pool := b.pool
	b.pool = nil

	hashes := make([]common.Hash, len(pool))
	for i, p := range pool {
		hashes[i] = p.env.Hash
	}
	blockHash := hashBlock(b.headHash, number, hashes)

	for _, p := range pool {
		env := p.env
		delete(b.known, env.Hash)
		b.nonces[env.From] = env.Nonce + 1

		used := gasRequired(env)
		var err error
		if used > env.GasCeiling {
			used = env.GasCeiling
			err = ErrOutOfGas
		} else {
			call := ledger.Call{Caller: env.From, TxHash: env.Hash, Block: number}
			_, err = b.token.Ledger().Execute(call, func(tx *ledger.Tx) error {
				return b.token.Dispatch(tx, env.Data)
			})
		}

		receipt := &chain.Receipt{
			TxHash:      env.Hash,
			Success:     err == nil,
			BlockNumber: number,
			BlockHash:   blockHash,
			GasUsed:     used,
		}
		if err != nil {
			receipt.Reason = err.Error()
			b.logger.Info("envelope reverted",
				"tx_hash", env.Hash.Hex(),
				"block", number,
				"reason", err.Error(),
			)
		}
		b.receipts[env.Hash] = receipt
	}

	b.head = number
	b.headHash = blockHash
	if len(pool) > 0 {
		b.logger.Info("block mined",
			"block", number,
			"block_hash", blockHash.Hex(),
			"tx_count", len(pool),
		)
	}
	return Block{Number: number, Hash: blockHash, TxHashes: hashes}
}

// Head returns the latest block number and hash.
func (b *Backend) Head() (uint64, common.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head, b.headHash
}

// Pending returns the number of pooled envelopes.
func (b *Backend) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pool)
}

// Run mines a block every interval until ctx is done.
func (b *Backend) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("block interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.Commit()
		}
	}
}

func gasRequired(env *chain.SignedEnvelope) uint64 {
	return uint64(intrinsicGas) + uint64(len(env.Data))*calldataGas
}

func hashBlock(parent common.Hash, number uint64, txs []common.Hash) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(parent[:])
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], number)
	h.Write(num[:])
	for _, tx := range txs {
		h.Write(tx[:])
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}
