package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CZERTAINLY/Scribe/internal/httpkit"
)

const keepAlive = 15 * time.Second

// events streams render events as server sent events:
//
//	event: render_output
//	data: {"job_id":"...","type":"normal","output":"..."}
func (h handler) events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	sub, unsubscribe := h.Broker.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	httpkit.NoCache(w.Header())
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		slog.WarnContext(ctx, "event stream: flushing not supported", "error", err)
		return
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(e.Data)
			if err != nil {
				slog.ErrorContext(ctx, "encoding event", "event", e.Type, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
