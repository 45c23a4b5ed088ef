package token

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"creditmint/internal/ledger"
	"creditmint/pkg/domain"
	dErrors "creditmint/pkg/domain-errors"
)

// Method names of the compatibility surface.
const (
	MethodAuthorize    = "authorize"
	MethodRevoke       = "revoke"
	MethodIsAuthorized = "isAuthorized"
	MethodMintOwner    = "mintOwner"
	MethodMintSecure   = "mintSecure"
	MethodTotalSupply  = "totalSupply"
	MethodBalanceOf    = "balanceOf"
	MethodOwner        = "owner"
)

// ABIJSON describes the contract's entry points and notifications.
const ABIJSON = `[
  {"type":"function","name":"authorize","stateMutability":"nonpayable","inputs":[{"name":"minter","type":"address"}],"outputs":[]},
  {"type":"function","name":"revoke","stateMutability":"nonpayable","inputs":[{"name":"minter","type":"address"}],"outputs":[]},
  {"type":"function","name":"isAuthorized","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"mintOwner","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"mintSecure","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]},
  {"type":"event","name":"MinterAuthorized","anonymous":false,"inputs":[{"name":"minter","type":"address","indexed":true}]},
  {"type":"event","name":"MinterRevoked","anonymous":false,"inputs":[{"name":"minter","type":"address","indexed":true}]},
  {"type":"event","name":"MintSecure","anonymous":false,"inputs":[{"name":"to","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
]`

var contractABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ABIJSON))
	if err != nil {
		panic("token: invalid ABI: " + err.Error())
	}
	return parsed
}

// ABI returns the parsed contract ABI.
func ABI() abi.ABI {
	return contractABI
}

// Pack encodes calldata for a mutating entry point.
func Pack(method string, args ...any) ([]byte, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "failed to encode "+method+" call")
	}
	return data, nil
}

// PackMint encodes mintSecure or mintOwner calldata.
func PackMint(method string, to domain.Identity, amount *big.Int) ([]byte, error) {
	return Pack(method, to.Address(), amount)
}

// PackMinter encodes authorize or revoke calldata.
func PackMinter(method string, minter domain.Identity) ([]byte, error) {
	return Pack(method, minter.Address())
}

// Dispatch decodes calldata and runs the matching entry point inside tx. View methods are
// accepted and have no effect, as on a real ledger.
func (t *Token) Dispatch(tx *ledger.Tx, data []byte) error {
	if len(data) < 4 {
		return dErrors.New(dErrors.CodeValidation, "calldata is missing a method selector")
	}
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "unknown method selector")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "malformed "+method.Name+" arguments")
	}

	switch method.Name {
	case MethodAuthorize:
		return t.Authorize(tx, identityArg(args[0]))
	case MethodRevoke:
		return t.Revoke(tx, identityArg(args[0]))
	case MethodMintOwner:
		return t.MintOwner(tx, identityArg(args[0]), amountArg(args[1]))
	case MethodMintSecure:
		return t.MintSecure(tx, identityArg(args[0]), amountArg(args[1]))
	default:
		return nil
	}
}

func identityArg(v any) domain.Identity {
	addr, _ := v.(common.Address)
	return domain.IdentityFromAddress(addr)
}

func amountArg(v any) *big.Int {
	amount, _ := v.(*big.Int)
	return amount
}
