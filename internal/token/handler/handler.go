// Package handler exposes read-only views of the in-process contract and its
// notification log.
package handler

import (
	"log/slog"
	"math/big"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"creditmint/internal/ledger"
	"creditmint/pkg/domain"
	dErrors "creditmint/pkg/domain-errors"
	"creditmint/pkg/platform/httputil"
	"creditmint/pkg/requestcontext"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Contract is the query surface of the deployed token.
type Contract interface {
	Address() domain.Identity
	Owner() domain.Identity
	Name() string
	Symbol() string
	Decimals() uint8
	TotalSupply() *big.Int
	BalanceOf(id domain.Identity) *big.Int
	IsAuthorized(id domain.Identity) bool
	Minters() []domain.Identity
	Notifications(f ledger.Filter) []ledger.Event
}

// Handler serves /ledger queries.
type Handler struct {
	contract Contract
	logger   *slog.Logger
}

// New creates a ledger query Handler.
func New(contract Contract, logger *slog.Logger) *Handler {
	return &Handler{contract: contract, logger: logger}
}

// Register registers the query routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/owner", h.handleOwner)
		r.Get("/supply", h.handleSupply)
		r.Get("/balances/{address}", h.handleBalance)
		r.Get("/minters", h.handleMinters)
		r.Get("/minters/{address}", h.handleIsAuthorized)
		r.Get("/events", h.handleEvents)
	})
}

func (h *Handler) handleOwner(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, ContractResponse{
		Address:  h.contract.Address().Hex(),
		Owner:    h.contract.Owner().Hex(),
		Name:     h.contract.Name(),
		Symbol:   h.contract.Symbol(),
		Decimals: h.contract.Decimals(),
	})
}

func (h *Handler) handleSupply(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, SupplyResponse{
		TotalSupply: h.contract.TotalSupply().String(),
		Decimals:    h.contract.Decimals(),
	})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identityParam(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{
		Address: id.Hex(),
		Balance: h.contract.BalanceOf(id).String(),
	})
}

func (h *Handler) handleMinters(w http.ResponseWriter, r *http.Request) {
	minters := h.contract.Minters()
	out := make([]string, len(minters))
	for i, m := range minters {
		out[i] = m.Hex()
	}
	sort.Strings(out)
	httputil.WriteJSON(w, http.StatusOK, MintersResponse{
		Owner:   h.contract.Owner().Hex(),
		Minters: out,
	})
}

func (h *Handler) handleIsAuthorized(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identityParam(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AuthorizationResponse{
		Address:    id.Hex(),
		Authorized: h.contract.IsAuthorized(id),
		Owner:      id == h.contract.Owner(),
	})
}

// handleEvents lists notifications after ?since=N, optionally filtered by ?name= and
// ?topic=, at most ?limit= entries.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f ledger.Filter

	if raw := q.Get("since"); raw != "" {
		since, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.writeError(w, r, dErrors.New(dErrors.CodeValidation, "since must be a non-negative integer"))
			return
		}
		f.Since = since
	}
	limit := defaultEventLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, r, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxEventLimit)
	}
	f.Name = q.Get("name")
	if raw := q.Get("topic"); raw != "" {
		topic, err := domain.ParseIdentity(raw)
		if err != nil {
			h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeValidation, "topic must be a valid address"))
			return
		}
		f.Topic = topic
	}

	events := h.contract.Notifications(f)
	resp := EventsResponse{Events: make([]EventResponse, 0, min(len(events), limit))}
	for i, ev := range events {
		if i == limit {
			resp.More = true
			break
		}
		resp.Events = append(resp.Events, toEventResponse(ev))
	}
	if n := len(resp.Events); n > 0 {
		resp.Cursor = resp.Events[n-1].Seq
	} else {
		resp.Cursor = f.Since
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) identityParam(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	id, err := domain.ParseIdentity(chi.URLParam(r, "address"))
	if err != nil {
		h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeValidation, "invalid address"))
		return domain.NullIdentity, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.InfoContext(r.Context(), "rejected ledger query",
		"request_id", requestcontext.RequestID(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)
	httputil.WriteError(w, err)
}
