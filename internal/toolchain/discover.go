package toolchain

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Context describes the toolchain installation as reported to clients.
type Context struct {
	Installed bool   `json:"toolchain_installed"`
	Program   string `json:"program"`
	Version   string `json:"version,omitempty"`
	HelperDir string `json:"helper_dir,omitempty"`
}

// Discover queries the package version and the helper directory concurrently.
// A missing installation is reported in Context, not as an error; only
// cancellation of ctx fails.
func Discover(ctx context.Context, r *Rscript) (Context, error) {
	ret := Context{Program: r.Program()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := r.Version(ctx)
		if err != nil {
			slog.DebugContext(ctx, "rmarkdown version", "error", err)
			return ctx.Err()
		}
		ret.Installed = true
		ret.Version = v
		return nil
	})
	g.Go(func() error {
		dir, err := r.HelperDir(ctx)
		if err != nil {
			slog.DebugContext(ctx, "helper directory", "error", err)
			return ctx.Err()
		}
		ret.HelperDir = dir
		return nil
	})
	if err := g.Wait(); err != nil {
		return Context{Program: r.Program()}, err
	}
	return ret, nil
}

// Context is Discover bound to r.
func (r *Rscript) Context(ctx context.Context) (Context, error) {
	return Discover(ctx, r)
}
