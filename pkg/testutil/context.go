package testutil

import (
	"net/http"

	"creditmint/pkg/requestcontext"
)

// WithRequestID sets the request id the middleware would assign.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithPrincipal marks the request as authenticated by principal.
func WithPrincipal(req *http.Request, principal string) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), principal))
}
