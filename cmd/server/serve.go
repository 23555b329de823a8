package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillsociety/auditions/internal/api"
	"github.com/quillsociety/auditions/internal/middleware"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), e)
		},
	}
}

func runServe(ctx context.Context, e *env) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := e.openRepo(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := repo.Close(); cerr != nil {
			e.logger.Warn("failed to close store", "error", cerr)
		}
	}()

	sc := e.cfg.Server
	auth := middleware.NewAuth(sc.JWTSecret)
	if auth.Insecure() {
		e.logger.Warn("AUDITIONS_JWT_SECRET is not set; using the development secret")
	}
	rt := api.NewRouter(repo, auth, api.Options{
		CORSOrigins: sc.CORSOrigins,
		LoginRate:   sc.LoginRate,
		LoginBurst:  sc.LoginBurst,
		FanOutBatch: e.cfg.FanOut.BatchSize,
		TokenTTL:    sc.TokenTTL,
		Commit:      sc.Commit,
		BuildTime:   sc.BuildTime,
	}, e.logger)

	handler := rt.Handler()
	if sc.StaticDir != "" {
		mux := http.NewServeMux()
		mux.Handle("/api/", handler)
		mux.Handle("/health", handler)
		mux.Handle("/version", handler)
		mux.Handle("/metrics", handler)
		mux.Handle("/", middleware.SecureHeaders(http.FileServer(http.Dir(sc.StaticDir))))
		handler = mux
	}

	srv := &http.Server{
		Addr:              sc.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with the process so open watch sockets close.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("auditions server listening", "addr", sc.Addr, "driver", e.cfg.Store.Driver, "commit", sc.Commit)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	e.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
