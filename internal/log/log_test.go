package log_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/CZERTAINLY/Scribe/internal/log"
	"github.com/stretchr/testify/require"
)

func TestContextAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(log.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := log.ContextAttrs(t.Context(), slog.String("job_id", "42"))
	child := log.ContextAttrs(ctx, slog.String("target", "/tmp/a.Rmd"))
	logger.InfoContext(child, "render started")
	logger.InfoContext(ctx, "parent")

	dec := json.NewDecoder(&buf)
	var first, second map[string]any
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))

	require.Equal(t, "42", first["job_id"])
	require.Equal(t, "/tmp/a.Rmd", first["target"])
	require.Equal(t, "42", second["job_id"])
	require.NotContains(t, second, "target")
}

func TestNew(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "scribe.log")
	logger, closer, err := log.New(true, path)
	require.NoError(t, err)
	logger.Debug("hello", "k", "v")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"msg":"hello"`)

	_, closer, err = log.New(false, "discard")
	require.NoError(t, err)
	require.NoError(t, closer.Close())
}
