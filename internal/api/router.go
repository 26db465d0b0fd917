// Package api exposes render control over HTTP.
//
//	GET  /api/context           toolchain installation
//	POST /api/render            {file, line, encoding} -> {started}
//	POST /api/render/terminate  cancel the active render
//	GET  /api/render/status     last render job
//	GET  /api/events            server sent events
//	GET  /api/publish           ?output_file= -> {published, id}
//	POST /api/publish           {output_file, id}
//	GET  /api/source-type       ?file= -> {type}
//
// The artifact routes are mounted on the same router.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CZERTAINLY/Scribe/internal/artifact"
	"github.com/CZERTAINLY/Scribe/internal/events"
	"github.com/CZERTAINLY/Scribe/internal/httpkit"
	"github.com/CZERTAINLY/Scribe/internal/publish"
	"github.com/CZERTAINLY/Scribe/internal/render"
	"github.com/CZERTAINLY/Scribe/internal/toolchain"
)

type ToolchainInfo interface {
	Context(ctx context.Context) (toolchain.Context, error)
}

type Deps struct {
	Supervisor *render.Supervisor
	Broker     *events.Broker
	Toolchain  ToolchainInfo
	Registry   *publish.Registry // optional
	Artifacts  *artifact.Server  // optional
	Home       string            // resolves ~ in request paths
}

type handler struct {
	Deps
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(httpkit.RequestLog, httpkit.Recover)

	h := handler{Deps: d}

	r.Get("/healthz", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/context", h.context)
		r.Post("/render", h.render)
		r.Post("/render/terminate", h.terminate)
		r.Get("/render/status", h.status)
		r.Get("/events", h.events)
		r.Get("/publish", h.published)
		r.Post("/publish", h.publish)
		r.Get("/source-type", h.sourceType)
	})

	if d.Artifacts != nil {
		d.Artifacts.Mount(r)
	}
	return r
}

func (h handler) health(w http.ResponseWriter, _ *http.Request) {
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
