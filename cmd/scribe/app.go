package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"

	"github.com/CZERTAINLY/Scribe/internal/api"
	"github.com/CZERTAINLY/Scribe/internal/artifact"
	"github.com/CZERTAINLY/Scribe/internal/events"
	"github.com/CZERTAINLY/Scribe/internal/model"
	"github.com/CZERTAINLY/Scribe/internal/present"
	"github.com/CZERTAINLY/Scribe/internal/publish"
	"github.com/CZERTAINLY/Scribe/internal/render"
	"github.com/CZERTAINLY/Scribe/internal/rewrite"
	"github.com/CZERTAINLY/Scribe/internal/toolchain"
)

// app holds the components shared by the commands.
type app struct {
	home       string
	toolchain  *toolchain.Rscript
	broker     *events.Broker
	registry   *publish.Registry
	scheduler  gocron.Scheduler
	rdb        *redis.Client
	supervisor *render.Supervisor
}

// newApp wires the components described by cfg. Events go to the broker, the
// log, the optional Redis sink and the extra notifiers.
func newApp(ctx context.Context, cfg model.Config, extra ...model.Notifier) (*app, error) {
	renderCfg := cfg.RenderOrDefault()
	poll, err := renderCfg.PollInterval()
	if err != nil {
		return nil, fmt.Errorf("parsing render.poll: %w", err)
	}
	grace, err := renderCfg.Grace()
	if err != nil {
		return nil, fmt.Errorf("parsing render.kill_grace: %w", err)
	}

	a := &app{
		home:      model.UserHome(),
		toolchain: toolchain.New(renderCfg, cfg.HelperOrDefault()),
	}

	buffer := events.DefaultBuffer
	if cfg.Events != nil && cfg.Events.Buffer > 0 {
		buffer = cfg.Events.Buffer
	}
	a.broker = events.NewBroker(buffer)
	notifiers := events.Multi{a.broker, events.LogSink{}}
	if cfg.Events != nil && cfg.Events.Redis != nil && cfg.Events.Redis.Enabled {
		rdb, err := events.DialRedis(ctx, cfg.Events.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.rdb = rdb
		notifiers = append(notifiers, events.NewRedisSink(rdb, cfg.Events.Redis.Key))
	}
	notifiers = append(notifiers, extra...)

	publishCfg := cfg.PublishOrDefault()
	registryPath := publishCfg.Registry
	if registryPath == "" {
		registryPath = filepath.Join(userConfigPath, "published.yaml")
	}
	a.registry, err = publish.Open(registryPath)
	if err != nil {
		a.closeRedis()
		return nil, err
	}
	if publishCfg.Prune != "" {
		a.scheduler, err = publish.NewPruneScheduler(ctx, a.registry, publishCfg.Prune)
		if err != nil {
			a.closeRedis()
			return nil, err
		}
	}

	a.supervisor = render.NewSupervisor(ctx, render.Deps{
		Toolchain: a.toolchain,
		Notifier:  notifiers,
		Published: a.registry,
		Augmenter: present.New(),
		Options: render.Options{
			Mount:        cfg.Service.MountPath(),
			EncodePasses: renderCfg.Passes(),
			Poll:         poll,
			KillGrace:    grace,
			Home:         a.home,
		},
	})
	return a, nil
}

func (a *app) router(cfg model.Config) http.Handler {
	helperCfg := cfg.HelperOrDefault()
	rw := rewrite.Options{Segment: helperCfg.Segment}
	if helperCfg.InjectConfig {
		rw.InjectConfig = rewrite.ConfigScript
	}
	return api.NewRouter(api.Deps{
		Supervisor: a.supervisor,
		Broker:     a.broker,
		Toolchain:  a.toolchain,
		Registry:   a.registry,
		Artifacts: artifact.New(a.toolchain, artifact.Options{
			Mount:   cfg.Service.MountPath(),
			Home:    a.home,
			Rewrite: rw,
		}),
		Home: a.home,
	})
}

// Close stops the active render and releases all resources.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	a.broker.Close()
	if err := a.supervisor.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping render: %w", err))
	}
	if a.scheduler != nil {
		if err := a.scheduler.Shutdown(); err != nil {
			slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
		}
	}
	a.closeRedis()
	return errors.Join(errs...)
}

func (a *app) closeRedis() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}
