package coordinator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	dErrors "creditmint/pkg/domain-errors"
)

// State is a stage of one coordinator request.
type State string

const (
	StateReceived   State = "received"
	StateValidating State = "validating"
	StatePreparing  State = "preparing"
	StateSubmitted  State = "submitted"
	StatePolling    State = "polling"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed_out"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateTimedOut
}

// CreditEvent is one externally reported sale. Magnitude is decimal text in whole tokens;
// Target is the recipient identity as a hex string.
type CreditEvent struct {
	Magnitude string
	Target    string
}

// Outcome is the terminal report of one request. TxHash is set once an envelope has
// been broadcast, even if the request later failed or timed out.
type Outcome struct {
	State        State
	TxHash       common.Hash
	BlockNumber  uint64
	BlockHash    common.Hash
	AmountMinted *big.Int
	Err          error
}

// Confirmed reports whether the request ended with a successful, finalized execution.
func (o *Outcome) Confirmed() bool {
	return o != nil && o.State == StateConfirmed
}

// Broadcast reports whether an envelope left the coordinator.
func (o *Outcome) Broadcast() bool {
	return o != nil && o.TxHash != (common.Hash{})
}

// Code returns the error code of a failed outcome, or "" when confirmed.
func (o *Outcome) Code() dErrors.Code {
	if o == nil || o.Err == nil {
		return ""
	}
	return dErrors.GetCode(o.Err)
}
