package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/koustreak/querygate/internal/config"
	"github.com/koustreak/querygate/internal/logger"
)

// Serve runs h on cfg.Address until ctx is cancelled, then shuts down
// gracefully within cfg.ShutdownTimeout.
func Serve(ctx context.Context, cfg config.HTTPConfig, h http.Handler, log *logger.Logger) error {
	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return err
	}
	return serve(ctx, ln, cfg, h, log)
}

func serve(ctx context.Context, ln net.Listener, cfg config.HTTPConfig, h http.Handler, log *logger.Logger) error {
	srv := &http.Server{
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return log.WithContext(context.Background()) },
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoWith("starting api server", map[string]interface{}{"addr": ln.Addr().String()})
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	log.Info("shutting down api server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return err
	}
	return nil
}
