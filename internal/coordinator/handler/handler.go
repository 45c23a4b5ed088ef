package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"creditmint/internal/coordinator"
	dErrors "creditmint/pkg/domain-errors"
	"creditmint/pkg/platform/httputil"
	"creditmint/pkg/requestcontext"
)

// Service is the coordinator operation the handler drives.
type Service interface {
	Mint(ctx context.Context, ev coordinator.CreditEvent) (*coordinator.Outcome, error)
}

// Handler serves the mint endpoint.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// New creates a mint Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// Register registers the mint route with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/mint", h.HandleMint)
}

// HandleMint converts one sale into a mint and blocks until the transaction reaches a
// terminal state. Client disconnects abandon the wait; the broadcast stands.
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, err := httputil.Decode[MintRequest](r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid mint request",
			"request_id", requestID,
			"error", err,
		)
		if dErrors.HasCode(err, dErrors.CodeBadRequest) {
			err = dErrors.New(dErrors.CodeBadRequest, "Invalid request payload")
		}
		h.write(w, nil, err)
		return
	}

	out, err := h.service.Mint(ctx, coordinator.CreditEvent{
		Magnitude: req.Sales.String(),
		Target:    req.Company,
	})
	h.write(w, out, err)
}

func (h *Handler) write(w http.ResponseWriter, out *coordinator.Outcome, err error) {
	status := http.StatusOK
	if err != nil {
		status = dErrors.ToHTTPStatus(dErrors.GetCode(err))
	}
	httputil.WriteJSON(w, status, toMintResponse(out, err))
}
