package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CZERTAINLY/Scribe/internal/model"
)

func TestLoadConfig_DefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "scribe.yaml")
	require.NoError(t, storeConfig(path, model.DefaultConfig()))
	t.Setenv("SCRIBECONFIG", path)

	got, cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, path, got)
	require.Equal(t, model.DefaultConfig(), cfg)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 0\nservice:\n  listen: nope\n"), 0o644))
	t.Setenv("SCRIBECONFIG", path)

	_, _, err := loadConfig()
	require.Error(t, err)
}

func TestJSONLines(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	j := &jsonLines{w: &buf}
	require.NoError(t, j.Notify(t.Context(), model.Event{
		Type: model.EventRenderOutput,
		Data: model.RenderOutput{JobID: "j", Type: model.OutputError, Text: "line\n"},
	}))
	require.NoError(t, j.Notify(t.Context(), model.Event{
		Type: model.EventRenderCompleted,
		Data: model.RenderResult{JobID: "j", PreviewSlide: -1},
	}))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var e struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(lines[0], &e))
	require.Equal(t, "render_output", e.Type)
	require.JSONEq(t, `{"job_id":"j","type":"error","output":"line\n"}`, string(e.Data))
}
