package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"creditmint/pkg/domain"
)

// Event is a committed notification. Topics are the indexed subject fields external
// consumers filter on, in declaration order.
type Event struct {
	Seq    uint64            `json:"seq"`
	Name   string            `json:"name"`
	Topics []domain.Identity `json:"topics"`
	Value  *big.Int          `json:"value,omitempty"`
	TxHash common.Hash       `json:"txHash"`
	Block  uint64            `json:"block"`
}

func (e Event) clone() Event {
	out := e
	out.Topics = append([]domain.Identity(nil), e.Topics...)
	if e.Value != nil {
		out.Value = new(big.Int).Set(e.Value)
	}
	return out
}

// Filter selects events by name, any indexed topic, and log position. Zero fields match
// everything.
type Filter struct {
	Name  string
	Topic domain.Identity
	Since uint64
}

// Match reports whether ev satisfies f.
func (f Filter) Match(ev Event) bool {
	if ev.Seq <= f.Since {
		return false
	}
	if f.Name != "" && f.Name != ev.Name {
		return false
	}
	if f.Topic.IsNull() {
		return true
	}
	for _, t := range ev.Topics {
		if t == f.Topic {
			return true
		}
	}
	return false
}
