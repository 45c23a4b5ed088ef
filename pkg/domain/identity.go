// Package domain holds value types shared by the ledger model, the chain adapters and the
// coordinator.
package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	dErrors "creditmint/pkg/domain-errors"
)

// IdentityLength is the width of an identity in bytes.
const IdentityLength = common.AddressLength

// Identity is an opaque, fixed-width account address. The zero value is the null identity:
// it is never a valid mint target or minter.
type Identity common.Address

// NullIdentity is the reserved "no identity" value.
var NullIdentity = Identity{}

// IdentityFromAddress converts a go-ethereum address.
func IdentityFromAddress(addr common.Address) Identity {
	return Identity(addr)
}

// ParseIdentity parses a hex address (with or without 0x prefix) and rejects the null
// identity.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}
	if !common.IsHexAddress(s) {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "invalid address")
	}
	id := Identity(common.HexToAddress(s))
	if id.IsNull() {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "null identity is not allowed")
	}
	return id, nil
}

// Address returns the go-ethereum form.
func (i Identity) Address() common.Address {
	return common.Address(i)
}

// IsNull reports whether i is the reserved null identity.
func (i Identity) IsNull() bool {
	return i == NullIdentity
}

// Hex returns the EIP-55 checksummed hex form.
func (i Identity) Hex() string {
	return common.Address(i).Hex()
}

func (i Identity) String() string {
	return i.Hex()
}

// MarshalText implements encoding.TextMarshaler so identities serialize as hex.
func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.Hex()), nil
}

// UnmarshalText accepts any well-formed hex address, including the null identity.
func (i *Identity) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if !common.IsHexAddress(s) {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid address")
	}
	*i = Identity(common.HexToAddress(s))
	return nil
}
