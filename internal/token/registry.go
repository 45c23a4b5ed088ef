package token

import (
	"creditmint/internal/ledger"
	"creditmint/pkg/domain"
)

// Authorize adds minter to the delegated minter set. Owner only.
func (t *Token) Authorize(tx *ledger.Tx, minter domain.Identity) error {
	if err := t.onlyOwner(tx); err != nil {
		return err
	}
	if minter.IsNull() {
		return ErrNullMinter
	}

	if _, ok := t.minters[minter]; !ok {
		t.minters[minter] = struct{}{}
		tx.OnRevert(func() { delete(t.minters, minter) })
	}
	tx.Emit(EventMinterAuthorized, nil, minter)
	return nil
}

// Revoke removes minter from the delegated minter set. Owner only. Revoking a
// non-member succeeds and still notifies.
func (t *Token) Revoke(tx *ledger.Tx, minter domain.Identity) error {
	if err := t.onlyOwner(tx); err != nil {
		return err
	}
	if minter.IsNull() {
		return ErrNullMinter
	}

	if _, ok := t.minters[minter]; ok {
		delete(t.minters, minter)
		tx.OnRevert(func() { t.minters[minter] = struct{}{} })
	}
	tx.Emit(EventMinterRevoked, nil, minter)
	return nil
}

// IsAuthorized reports whether id may use the delegated mint path. The owner always may.
func (t *Token) IsAuthorized(id domain.Identity) bool {
	var ok bool
	t.ledger.Read(func() {
		ok = t.isAuthorized(id)
	})
	return ok
}

// Minters returns the current delegated minter set, excluding the owner.
func (t *Token) Minters() []domain.Identity {
	var out []domain.Identity
	t.ledger.Read(func() {
		out = make([]domain.Identity, 0, len(t.minters))
		for m := range t.minters {
			out = append(out, m)
		}
	})
	return out
}

// isAuthorized must run inside Execute or Read.
func (t *Token) isAuthorized(id domain.Identity) bool {
	if id.IsNull() {
		return false
	}
	if id == t.owner {
		return true
	}
	_, ok := t.minters[id]
	return ok
}

func (t *Token) onlyOwner(tx *ledger.Tx) error {
	if tx.Caller() != t.owner {
		return ErrNotOwner
	}
	return nil
}
