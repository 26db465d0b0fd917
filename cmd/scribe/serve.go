package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CZERTAINLY/Scribe/internal/log"
)

const shutdownTimeout = 15 * time.Second

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attrs := slog.Group("scribe",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	a, err := newApp(ctx, config)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              config.Service.ListenAddr(),
		Handler:           a.router(config),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		_ = a.Close(context.Background())
		return fmt.Errorf("listening on %s: %w", srv.Addr, err)
	}

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.InfoContext(ctx, "listening", "addr", ln.Addr().String(), "mount", config.Service.MountPath())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.InfoContext(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		// closing the broker ends the event streams, so Shutdown is not
		// blocked by them
		appErr := a.Close(shutdownCtx)
		return errors.Join(appErr, srv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}
