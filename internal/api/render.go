package api

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/CZERTAINLY/Scribe/internal/httpkit"
	"github.com/CZERTAINLY/Scribe/internal/model"
	"github.com/CZERTAINLY/Scribe/internal/render"
	"github.com/CZERTAINLY/Scribe/internal/toolchain"
)

type RenderRequest struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Encoding string `json:"encoding"`
}

type RenderResponse struct {
	Started bool `json:"started"`
}

type StatusResponse struct {
	Running   bool           `json:"running"`
	HasOutput bool           `json:"has_output"`
	Job       *render.Status `json:"job"`
}

func (h handler) context(w http.ResponseWriter, r *http.Request) {
	tc, err := h.Toolchain.Context(r.Context())
	if err != nil {
		httpkit.WriteErr(w, http.StatusServiceUnavailable, httpkit.CodeInternal, "toolchain discovery failed", nil)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, tc)
}

func (h handler) render(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, http.StatusBadRequest, httpkit.CodeValidation, "invalid json body", nil)
		return
	}
	target, ok := h.resolve(req.File)
	if !ok {
		httpkit.WriteErr(w, http.StatusBadRequest, httpkit.CodeValidation, "file must be an absolute or ~ path", map[string]any{"field": "file"})
		return
	}

	started := h.Supervisor.RequestRender(r.Context(), target, req.Line, strings.TrimSpace(req.Encoding))
	httpkit.WriteJSON(w, http.StatusOK, RenderResponse{Started: started})
}

func (h handler) terminate(w http.ResponseWriter, _ *http.Request) {
	h.Supervisor.RequestTermination()
	w.WriteHeader(http.StatusNoContent)
}

func (h handler) status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Running:   h.Supervisor.IsRunning(),
		HasOutput: h.Supervisor.HasOutput(),
	}
	if job, ok := h.Supervisor.Current(); ok {
		st := job.Status()
		resp.Job = &st
	}
	httpkit.WriteJSON(w, http.StatusOK, resp)
}

func (h handler) sourceType(w http.ResponseWriter, r *http.Request) {
	path, ok := h.resolve(r.URL.Query().Get("file"))
	if !ok {
		httpkit.WriteErr(w, http.StatusBadRequest, httpkit.CodeValidation, "file must be an absolute or ~ path", map[string]any{"field": "file"})
		return
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		httpkit.WriteErr(w, http.StatusNotFound, httpkit.CodeNotFound, model.AliasPath(path, h.Home)+" not found", nil)
		return
	}
	if err != nil {
		slog.WarnContext(r.Context(), "reading source", "error", err)
		httpkit.WriteErr(w, http.StatusInternalServerError, httpkit.CodeInternal, "reading source failed", nil)
		return
	}
	defer f.Close()
	// the legacy marker is expected in the head of the document
	head, err := io.ReadAll(io.LimitReader(f, 64*1024))
	if err != nil {
		httpkit.WriteErr(w, http.StatusInternalServerError, httpkit.CodeInternal, "reading source failed", nil)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"type": toolchain.SourceType(path, head)})
}

// resolve expands ~ and accepts absolute paths only
func (h handler) resolve(p string) (string, bool) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", false
	}
	p = model.ResolveAliasedPath(p, h.Home)
	if !filepath.IsAbs(p) {
		return "", false
	}
	return filepath.Clean(p), true
}
