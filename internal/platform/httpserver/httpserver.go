// Package httpserver builds and runs the service's HTTP server.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"creditmint/internal/platform/config"
)

// New builds an HTTP server from cfg.
func New(cfg config.Server, handler http.Handler) *http.Server {
	readHeader := cfg.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = 5 * time.Second
	}
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: readHeader,
	}
}

// Run serves until ctx is done, then shuts down within shutdownTimeout. Request contexts
// derive from ctx, so in-flight handlers see cancellation as soon as shutdown starts and
// can still write their response before the connection closes.
func Run(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	if srv.BaseContext == nil {
		srv.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
