package handler

import (
	"github.com/ethereum/go-ethereum/common"

	"creditmint/internal/ledger"
)

// Amounts are decimal strings of base units; they routinely exceed 2^53.

type ContractResponse struct {
	Address  string `json:"address"`
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type SupplyResponse struct {
	TotalSupply string `json:"totalSupply"`
	Decimals    uint8  `json:"decimals"`
}

type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type MintersResponse struct {
	Owner   string   `json:"owner"`
	Minters []string `json:"minters"`
}

type AuthorizationResponse struct {
	Address    string `json:"address"`
	Authorized bool   `json:"authorized"`
	Owner      bool   `json:"owner"`
}

type EventResponse struct {
	Seq    uint64   `json:"seq"`
	Name   string   `json:"name"`
	Topics []string `json:"topics"`
	Value  string   `json:"value,omitempty"`
	TxHash string   `json:"txHash,omitempty"`
	Block  uint64   `json:"block"`
}

type EventsResponse struct {
	Events []EventResponse `json:"events"`
	// Cursor is the since value that continues after this page.
	Cursor uint64 `json:"cursor"`
	More   bool   `json:"more"`
}

func toEventResponse(ev ledger.Event) EventResponse {
	out := EventResponse{
		Seq:    ev.Seq,
		Name:   ev.Name,
		Topics: make([]string, len(ev.Topics)),
		Block:  ev.Block,
	}
	for i, t := range ev.Topics {
		out.Topics[i] = t.Hex()
	}
	if ev.Value != nil {
		out.Value = ev.Value.String()
	}
	if ev.TxHash != (common.Hash{}) {
		out.TxHash = ev.TxHash.Hex()
	}
	return out
}
