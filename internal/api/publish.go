package api

import (
	"net/http"

	"github.com/CZERTAINLY/Scribe/internal/httpkit"
)

type PublishRequest struct {
	OutputFile string `json:"output_file"`
	ID         string `json:"id"`
}

type PublishedResponse struct {
	Published bool   `json:"published"`
	ID        string `json:"id,omitempty"`
}

func (h handler) published(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil {
		httpkit.WriteErr(w, http.StatusNotFound, httpkit.CodeNotFound, "publish registry is disabled", nil)
		return
	}
	path, ok := h.resolve(r.URL.Query().Get("output_file"))
	if !ok {
		httpkit.WriteErr(w, http.StatusBadRequest, httpkit.CodeValidation, "output_file must be an absolute or ~ path", map[string]any{"field": "output_file"})
		return
	}
	id, found := h.Registry.ID(path)
	httpkit.WriteJSON(w, http.StatusOK, PublishedResponse{Published: found, ID: id})
}

func (h handler) publish(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil {
		httpkit.WriteErr(w, http.StatusNotFound, httpkit.CodeNotFound, "publish registry is disabled", nil)
		return
	}
	var req PublishRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, http.StatusBadRequest, httpkit.CodeValidation, "invalid json body", nil)
		return
	}
	path, ok := h.resolve(req.OutputFile)
	if !ok {
		httpkit.WriteErr(w, http.StatusBadRequest, httpkit.CodeValidation, "output_file must be an absolute or ~ path", map[string]any{"field": "output_file"})
		return
	}
	if err := h.Registry.Record(r.Context(), path, req.ID); err != nil {
		httpkit.WriteErr(w, http.StatusBadRequest, httpkit.CodeValidation, err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
