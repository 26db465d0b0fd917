package httpkit_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/CZERTAINLY/Scribe/internal/httpkit"
	"github.com/stretchr/testify/require"
)

func TestWriteErr(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	httpkit.WriteErr(rec, http.StatusNotFound, httpkit.CodeNotFound, "gone", map[string]any{"path": "/x"})

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var env httpkit.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, httpkit.CodeNotFound, env.Error.Code)
	require.Equal(t, "gone", env.Error.Message)
	require.Equal(t, "/x", env.Error.Details["path"])
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()
	type body struct {
		File string `json:"file"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"file":"a.Rmd"}`))
	var b body
	require.NoError(t, httpkit.DecodeJSON(req, &b))
	require.Equal(t, "a.Rmd", b.File)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"file":"a.Rmd","extra":1}`))
	require.Error(t, httpkit.DecodeJSON(req, &b))
}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	h := httpkit.RequestLog(httpkit.Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotEmpty(t, rec.Header().Get(httpkit.RequestIDHeader))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(httpkit.RequestIDHeader, "abc")
	httpkit.RequestLog(http.NotFoundHandler()).ServeHTTP(rec, req)
	require.Equal(t, "abc", rec.Header().Get(httpkit.RequestIDHeader))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
