package coordinator

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"creditmint/internal/ledger"
	"creditmint/pkg/domain"
	dErrors "creditmint/pkg/domain-errors"
)

// Plain decimal only; exponent notation is refused so a tiny payload cannot demand a
// huge power of ten.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// ScaleMagnitude converts a decimal amount of whole tokens into base units. The result
// must be a positive whole number of base units no larger than the maximum supply.
func ScaleMagnitude(text string, decimals uint8) (*big.Int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "Sales amount is required")
	}
	if !decimalPattern.MatchString(text) {
		return nil, dErrors.New(dErrors.CodeValidation, "Sales amount must be a decimal number")
	}
	r, ok := new(big.Rat).SetString(text)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "Sales amount must be a decimal number")
	}
	if r.Sign() <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "Sales amount must be positive")
	}

	r.Mul(r, new(big.Rat).SetInt(decimalFactor(decimals)))
	if !r.IsInt() {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("Sales amount has more than %d decimal places", decimals))
	}
	amount := new(big.Int).Set(r.Num())
	if amount.Cmp(ledger.MaxSupply) > 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "Sales amount is too large")
	}
	return amount, nil
}

// ParseTarget parses the recipient identity of a credit event.
func ParseTarget(text string) (domain.Identity, error) {
	id, err := domain.ParseIdentity(text)
	if err != nil {
		return domain.NullIdentity, dErrors.Wrap(err, dErrors.CodeValidation, "Invalid Ethereum address")
	}
	return id, nil
}

func decimalFactor(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// wholeTokens converts base units back to tokens for reporting.
func wholeTokens(amount *big.Int, decimals uint8) float64 {
	f, _ := new(big.Rat).SetFrac(amount, decimalFactor(decimals)).Float64()
	return f
}
