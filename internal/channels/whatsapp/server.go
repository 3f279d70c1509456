package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/meterdesk/core/logger"
)

const shutdownTimeout = 10 * time.Second

// Serve listens on addr until ctx is cancelled, then drains in-flight requests.
// ready, when non-nil, receives the bound address once the listener is up.
func Serve(ctx context.Context, addr string, handler http.Handler, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("whatsapp: listen on %s: %w", addr, err)
	}
	if ready != nil {
		ready(ln.Addr())
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	logger.WA.Info("webhook listening",
		slog.String("event", "listen"),
		slog.String("listen", ln.Addr().String()),
	)

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("whatsapp: shutdown: %w", err)
	}
	<-serveDone
	logger.WA.Info("webhook stopped", slog.String("event", "shutdown"))
	return nil
}
