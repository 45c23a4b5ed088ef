package handler

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"creditmint/internal/coordinator"
	dErrors "creditmint/pkg/domain-errors"
)

// MintResponse is returned for every POST /mint outcome, success or not.
type MintResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Code         string `json:"code,omitempty"`
	State        string `json:"state,omitempty"`
	TxHash       string `json:"txHash,omitempty"`
	BlockNumber  uint64 `json:"blockNumber,omitempty"`
	BlockHash    string `json:"blockHash,omitempty"`
	AmountMinted string `json:"amountMinted,omitempty"`
}

func toMintResponse(out *coordinator.Outcome, err error) MintResponse {
	resp := MintResponse{Success: err == nil}
	if out != nil {
		resp.State = string(out.State)
		if out.Broadcast() {
			resp.TxHash = out.TxHash.Hex()
		}
		if out.BlockHash != (common.Hash{}) || out.BlockNumber != 0 {
			resp.BlockNumber = out.BlockNumber
			resp.BlockHash = out.BlockHash.Hex()
		}
	}
	if err == nil {
		resp.Message = "Tokens minted successfully"
		if out != nil && out.AmountMinted != nil {
			resp.AmountMinted = out.AmountMinted.String()
		}
		return resp
	}
	resp.Code = string(dErrors.GetCode(err))
	resp.Message = failureMessage(err)
	return resp
}

// failureMessage keeps internal errors opaque and shows everything else with its cause.
func failureMessage(err error) string {
	if dErrors.GetCode(err) == dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return de.Message
		}
		return "internal error"
	}
	return err.Error()
}
