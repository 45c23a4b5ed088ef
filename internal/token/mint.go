package token

import (
	"errors"
	"math/big"

	"creditmint/internal/ledger"
	"creditmint/pkg/domain"
	dErrors "creditmint/pkg/domain-errors"
)

// MintOwner credits amount to `to`. Owner only. Guarded like MintSecure so neither path
// can be re-entered while a mint is in progress.
func (t *Token) MintOwner(tx *ledger.Tx, to domain.Identity, amount *big.Int) error {
	if err := t.guard.Enter(tx); err != nil {
		return err
	}
	defer t.guard.Exit()

	if err := t.onlyOwner(tx); err != nil {
		return err
	}
	return t.mint(tx, to, amount, false)
}

// MintSecure credits amount to `to`. Owner or delegated minter; reentrancy guarded.
// Emits exactly one MintSecure notification on success.
func (t *Token) MintSecure(tx *ledger.Tx, to domain.Identity, amount *big.Int) error {
	if err := t.guard.Enter(tx); err != nil {
		return err
	}
	defer t.guard.Exit()

	if !t.isAuthorized(tx.Caller()) {
		return ErrNotAuthorized
	}
	return t.mint(tx, to, amount, true)
}

func validateMint(to domain.Identity, amount *big.Int) error {
	if to.IsNull() {
		return ErrNullTarget
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	return nil
}

func (t *Token) mint(tx *ledger.Tx, to domain.Identity, amount *big.Int, secure bool) error {
	if err := validateMint(to, amount); err != nil {
		return err
	}
	if err := tx.Credit(to, amount); err != nil {
		if errors.Is(err, ledger.ErrSupplyOverflow) {
			return dErrors.Wrap(err, dErrors.CodeExecutionFailed, "mint exceeds maximum supply")
		}
		return dErrors.Wrap(err, dErrors.CodeExecutionFailed, "mint failed")
	}

	tx.Emit(EventTransfer, amount, domain.NullIdentity, to)
	if secure {
		tx.Emit(EventMintSecure, amount, to)
	}
	// Recipient code runs while the guard is still held.
	return tx.Deliver(to, domain.NullIdentity, amount)
}
