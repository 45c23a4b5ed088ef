// Package token implements the credit contract: an Authorization Registry (owner plus
// delegated minters) and a Mint Executor with guarded entry points, running on the
// ledger's serialized all-or-nothing execution.
package token

import (
	"math/big"

	"creditmint/internal/ledger"
	"creditmint/pkg/domain"
	dErrors "creditmint/pkg/domain-errors"
)

// Notification names, matching the ABI events.
const (
	EventTransfer         = "Transfer"
	EventMinterAuthorized = "MinterAuthorized"
	EventMinterRevoked    = "MinterRevoked"
	EventMintSecure       = "MintSecure"
)

// DefaultDecimals is the base-unit exponent: one whole credit is 10^18 base units.
const DefaultDecimals = 18

var (
	ErrNotOwner      = dErrors.New(dErrors.CodeForbidden, "caller is not the owner")
	ErrNotAuthorized = dErrors.New(dErrors.CodeForbidden, "caller is not authorized to mint")
	ErrNullMinter    = dErrors.New(dErrors.CodeValidation, "minter cannot be the null identity")
	ErrNullTarget    = dErrors.New(dErrors.CodeValidation, "cannot mint to the null identity")
	ErrZeroAmount    = dErrors.New(dErrors.CodeValidation, "amount must be greater than zero")
)

// Token is a deployed credit contract. Mutating methods take the ledger transaction they
// run in; the caller of that transaction is the message sender.
type Token struct {
	ledger   *ledger.Ledger
	address  domain.Identity
	owner    domain.Identity
	name     string
	symbol   string
	decimals uint8

	minters map[domain.Identity]struct{}
	guard   Guard
}

// Option configures token metadata at deployment.
type Option func(*Token)

// WithMetadata sets the display name, symbol and decimals.
func WithMetadata(name, symbol string, decimals uint8) Option {
	return func(t *Token) {
		t.name = name
		t.symbol = symbol
		t.decimals = decimals
	}
}

// Deploy creates the contract at address with the given owner and mints initialSupply
// (base units, may be zero or nil) to the owner.
func Deploy(l *ledger.Ledger, address, owner domain.Identity, initialSupply *big.Int, opts ...Option) (*Token, error) {
	if l == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "ledger is required")
	}
	if address.IsNull() {
		return nil, dErrors.New(dErrors.CodeValidation, "contract address cannot be the null identity")
	}
	if owner.IsNull() {
		return nil, dErrors.New(dErrors.CodeValidation, "owner cannot be the null identity")
	}

	t := &Token{
		ledger:   l,
		address:  address,
		owner:    owner,
		name:     "Credit",
		symbol:   "CRD",
		decimals: DefaultDecimals,
		minters:  make(map[domain.Identity]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	if initialSupply != nil && initialSupply.Sign() > 0 {
		_, err := l.Execute(ledger.Call{Caller: owner}, func(tx *ledger.Tx) error {
			if err := tx.Credit(owner, initialSupply); err != nil {
				return err
			}
			tx.Emit(EventTransfer, initialSupply, domain.NullIdentity, owner)
			return nil
		})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeExecutionFailed, "failed to mint initial supply")
		}
	}
	return t, nil
}

// Address is the contract's own identity.
func (t *Token) Address() domain.Identity { return t.address }

// Owner returns the registry owner.
func (t *Token) Owner() domain.Identity { return t.owner }

func (t *Token) Name() string    { return t.name }
func (t *Token) Symbol() string  { return t.symbol }
func (t *Token) Decimals() uint8 { return t.decimals }

// Ledger exposes the state engine the contract runs on.
func (t *Token) Ledger() *ledger.Ledger { return t.ledger }

// TotalSupply returns the committed total supply.
func (t *Token) TotalSupply() *big.Int {
	return t.ledger.TotalSupply()
}

// BalanceOf returns id's committed balance.
func (t *Token) BalanceOf(id domain.Identity) *big.Int {
	return t.ledger.BalanceOf(id)
}

// Notifications returns committed events matching f.
func (t *Token) Notifications(f ledger.Filter) []ledger.Event {
	return t.ledger.FilterEvents(f)
}
