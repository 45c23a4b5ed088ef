package handler

import (
	"encoding/json"
	"strings"

	dErrors "creditmint/pkg/domain-errors"
)

// MintRequest is the body of POST /mint. Sales is the sale magnitude in whole tokens and
// Company is the recipient address.
type MintRequest struct {
	Sales   json.Number `json:"sales"`
	Company string      `json:"company"`
}

// Validate normalizes the request and checks required fields. Range and format checks
// happen in the coordinator so every entry point shares them.
func (r *MintRequest) Validate() error {
	r.Company = strings.TrimSpace(r.Company)
	if r.Sales == "" {
		return dErrors.New(dErrors.CodeValidation, "Sales amount is required")
	}
	if r.Company == "" {
		return dErrors.New(dErrors.CodeValidation, "Invalid Ethereum address")
	}
	return nil
}
