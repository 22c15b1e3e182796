package setup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	// #nosec G108 -- pprof is only served on localhost
	_ "net/http/pprof"
	"time"

	"go.uber.org/zap"
)

// pprofServer represents the pprof HTTP server.
type pprofServer struct {
	srv      *http.Server
	listener net.Listener
}

// startPprofServer serves the pprof handlers on localhost in the background.
func startPprofServer(ctx context.Context, port int, logger *zap.Logger) (*pprofServer, error) {
	pprofAddr := fmt.Sprintf("localhost:%d", port)

	srv := &http.Server{
		Addr:              pprofAddr,
		Handler:           http.DefaultServeMux,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", pprofAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	go func() {
		logger.Info("Starting pprof server", zap.String("address", pprofAddr))

		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Pprof server failed", zap.Error(err))
		}
	}()

	return &pprofServer{
		srv:      srv,
		listener: listener,
	}, nil
}

// shutdown stops the server and releases its listener.
func (p *pprofServer) shutdown(ctx context.Context) error {
	err := p.srv.Shutdown(ctx)
	_ = p.listener.Close()

	return err
}
