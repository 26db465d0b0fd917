package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CZERTAINLY/Scribe/internal/log"
	"github.com/CZERTAINLY/Scribe/internal/model"
)

// exitCodeError is returned when a command failed and already told the user
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func doRender(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attrs := slog.Group("scribe",
		slog.String("cmd", "render"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	target, err := filepath.Abs(model.ResolveAliasedPath(args[0], model.UserHome()))
	if err != nil {
		return err
	}
	line, err := cmd.Flags().GetInt("line")
	if err != nil {
		return err
	}
	encoding, err := cmd.Flags().GetString("encoding")
	if err != nil {
		return err
	}

	// the prune scheduler is not needed by a single render
	cfg := config
	if cfg.Publish != nil {
		p := *cfg.Publish
		p.Prune = ""
		cfg.Publish = &p
	} else {
		cfg.Publish = &model.Publish{}
	}

	a, err := newApp(ctx, cfg, &jsonLines{w: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close(context.WithoutCancel(ctx))
	}()

	if !a.supervisor.RequestRender(ctx, target, line, encoding) {
		return fmt.Errorf("render of %s not started", target)
	}
	job, _ := a.supervisor.Current()
	<-job.Done()

	res, _ := job.Result()
	if !res.Succeeded {
		return exitCodeError{code: 1}
	}
	return nil
}

// jsonLines writes every event as a single JSON line.
type jsonLines struct {
	mx sync.Mutex
	w  io.Writer
}

func (j *jsonLines) Notify(_ context.Context, e model.Event) error {
	j.mx.Lock()
	defer j.mx.Unlock()
	return json.NewEncoder(j.w).Encode(e)
}
