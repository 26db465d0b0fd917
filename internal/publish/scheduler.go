package publish

import (
	"context"
	"fmt"
	"log/slog"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/CZERTAINLY/Scribe/internal/model"
)

// NewPruneScheduler returns a not yet started scheduler which prunes reg
// according to the cron expression expr (five fields or a @macro).
func NewPruneScheduler(ctx context.Context, reg *Registry, expr string) (gocron.Scheduler, error) {
	every, err := model.ParseCron(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing publish.prune: %w", err)
	}
	slog.DebugContext(ctx, "successfully parsed", "cron", expr, "interval", every.String())

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(func() {
			if _, err := reg.Prune(ctx); err != nil {
				slog.ErrorContext(ctx, "pruning publish registry", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}
