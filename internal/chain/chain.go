// Package chain defines how the coordinator talks to a ledger network: signed submission
// envelopes go in through Submit, finality comes back through Receipt. Adapters live in
// subpackages (evm for a JSON-RPC node, simulated for the in-process ledger).
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"creditmint/pkg/domain"
	"creditmint/pkg/platform/sentinel"
)

//go:generate mockgen -source=chain.go -destination=mocks/chain_mock.go -package=mocks Network,Signer

var (
	// ErrPending means the network has no finalized result for the handle yet.
	ErrPending = fmt.Errorf("chain: receipt %w", sentinel.ErrNotFound)
	// ErrUnreachable means the network endpoint could not be reached for this lookup.
	ErrUnreachable = fmt.Errorf("chain: node %w", sentinel.ErrUnavailable)
)

// Envelope is an unsigned submission: one contract call from one signing identity.
type Envelope struct {
	From       domain.Identity
	To         domain.Identity
	Nonce      uint64
	FeeRate    *big.Int
	GasCeiling uint64
	NetworkID  *big.Int
	Data       []byte
}

// SignedEnvelope is an envelope plus its signature and wire encoding.
type SignedEnvelope struct {
	Envelope
	Hash      common.Hash
	Signature []byte
	Raw       []byte
}

// Receipt is the network's finalized outcome for one envelope.
type Receipt struct {
	TxHash      common.Hash
	Success     bool
	BlockNumber uint64
	BlockHash   common.Hash
	GasUsed     uint64
	// Reason is set by networks that report why execution was rejected.
	Reason string
}

// Network is the narrow view of the ledger network the coordinator depends on.
type Network interface {
	PendingNonce(ctx context.Context, from domain.Identity) (uint64, error)
	SuggestFeeRate(ctx context.Context) (*big.Int, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	// Submit broadcasts a signed envelope and returns its handle. A nil error means the
	// broadcast happened and cannot be recalled.
	Submit(ctx context.Context, env *SignedEnvelope) (common.Hash, error)
	// Receipt returns ErrPending while the envelope is not finalized and ErrUnreachable
	// when the endpoint could not answer.
	Receipt(ctx context.Context, handle common.Hash) (*Receipt, error)
}

// Signer holds the signing credential of one identity.
type Signer interface {
	Identity() domain.Identity
	Sign(env Envelope) (*SignedEnvelope, error)
}
