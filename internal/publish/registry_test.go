package publish_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CZERTAINLY/Scribe/internal/publish"
)

func TestRegistry(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "published.yaml")
	doc := filepath.Join(dir, "report.html")
	gone := filepath.Join(dir, "gone.html")
	require.NoError(t, os.WriteFile(doc, []byte("<html/>"), 0o644))

	reg, err := publish.Open(path)
	require.NoError(t, err)
	require.False(t, reg.Published(doc))

	require.NoError(t, reg.Record(t.Context(), doc, "rpubs-1"))
	require.NoError(t, reg.Record(t.Context(), gone, "rpubs-2"))
	require.NoError(t, reg.Record(t.Context(), doc, "rpubs-3"))
	require.Error(t, reg.Record(t.Context(), "relative.html", "x"))
	require.Error(t, reg.Record(t.Context(), doc, " "))

	// reopen from disk
	reg, err = publish.Open(path)
	require.NoError(t, err)
	require.True(t, reg.Published(doc))
	require.True(t, reg.Published(filepath.Join(dir, ".", "report.html")))
	id, ok := reg.ID(doc)
	require.True(t, ok)
	require.Equal(t, "rpubs-3", id)
	require.Len(t, reg.Entries(), 2)

	n, err := reg.Prune(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.False(t, reg.Published(gone))

	reg, err = publish.Open(path)
	require.NoError(t, err)
	entries := reg.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, doc, entries[0].OutputFile)
	require.False(t, entries[0].PublishedAt.IsZero())
}

func TestOpen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	reg, err := publish.Open("")
	require.NoError(t, err)
	require.NoError(t, reg.Record(t.Context(), filepath.Join(dir, "a.html"), "x"))
	require.True(t, reg.Published(filepath.Join(dir, "a.html")))

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("entries: {"), 0o644))
	_, err = publish.Open(broken)
	require.Error(t, err)
}

func TestPruneScheduler(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	reg, err := publish.Open(filepath.Join(dir, "published.yaml"))
	require.NoError(t, err)
	require.NoError(t, reg.Record(t.Context(), filepath.Join(dir, "gone.html"), "x"))

	_, err = publish.NewPruneScheduler(t.Context(), reg, "not a cron")
	require.Error(t, err)

	s, err := publish.NewPruneScheduler(t.Context(), reg, "@every 1s")
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Shutdown() })

	require.Eventually(t, func() bool {
		return len(reg.Entries()) == 0
	}, 10*time.Second, 50*time.Millisecond)
}
