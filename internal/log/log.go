package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/CZERTAINLY/Scribe/internal/model"
)

type slogKeyT struct{}

var slogKey slogKeyT

// ContextHandler adds attributes stored by ContextAttrs to every record.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{
		Handler: handler,
	}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(slogKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}

	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	parent, _ := ctx.Value(slogKey).([]slog.Attr)
	a := make([]slog.Attr, 0, len(parent)+len(attrs))
	a = append(a, parent...)
	a = append(a, attrs...)
	return context.WithValue(ctx, slogKey, a)
}

// New returns a JSON logger writing to dest, which is one of
// model.LogStderr, model.LogStdout, model.LogDiscard or a file path.
// The returned closer must be called on shutdown.
func New(verbose bool, dest string) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer
	var closer io.Closer = io.NopCloser(nil)
	switch dest {
	case "", model.LogStderr:
		w = os.Stderr
	case model.LogStdout:
		w = os.Stdout
	case model.LogDiscard:
		w = io.Discard
	default:
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w, closer = f, f
	}

	base := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	})
	return slog.New(NewContextHandler(base)), closer, nil
}
