package render_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CZERTAINLY/Scribe/internal/model"
	"github.com/CZERTAINLY/Scribe/internal/render"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_Completed(t *testing.T) {
	t.Parallel()
	dir, target := document(t)
	rec := &recorder{}
	tc := shToolchain{
		script: "echo rendering; printf '<html></html>' > out.html; echo 'Output created: out.html'",
		format: model.OutputFormat{Name: "html_document"},
	}
	sup := render.NewSupervisor(t.Context(), render.Deps{
		Toolchain: tc,
		Notifier:  rec,
		Options:   render.Options{Home: dir},
	})

	require.True(t, sup.RequestRender(t.Context(), target, 3, "UTF-8"))
	job := wait(t, sup)

	require.Equal(t, render.StateCompleted, job.State())
	require.Equal(t, filepath.Join(dir, "out.html"), job.OutputPath())
	require.True(t, sup.HasOutput())
	require.False(t, sup.IsRunning())

	res, ok := job.Result()
	require.True(t, ok)
	require.True(t, res.Succeeded)
	require.Equal(t, "~/doc.Rmd", res.TargetFile)
	require.Equal(t, "~/out.html", res.OutputFile)
	require.Equal(t, "rmd_output/~%252Fout.html/", res.OutputURL)
	require.Equal(t, "html_document", res.OutputFormat.Name)
	require.Equal(t, -1, res.PreviewSlide)

	events := rec.events()
	require.GreaterOrEqual(t, len(events), 3)
	require.Equal(t, model.EventRenderStarted, events[0].Type)
	require.Equal(t, model.EventRenderCompleted, events[len(events)-1].Type)
	require.Equal(t, "rendering\nOutput created: out.html\n", rec.text(model.OutputNormal))
	for _, e := range events[1 : len(events)-1] {
		require.Equal(t, model.EventRenderOutput, e.Type)
	}
}

func TestSupervisor_Failed(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		script   string
	}{
		{
			scenario: "non zero exit",
			script:   "touch out.html; echo 'Output created: out.html'; exit 1",
		},
		{
			scenario: "no marker",
			script:   "touch out.html; echo done",
		},
		{
			scenario: "missing output file",
			script:   "echo 'Output created: out.html'",
		},
		{
			scenario: "marker on stderr and missing file",
			script:   "echo 'Output created: gone.html' >&2",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			_, target := document(t)
			rec := &recorder{}
			sup := render.NewSupervisor(t.Context(), render.Deps{
				Toolchain: shToolchain{script: tc.script},
				Notifier:  rec,
			})

			require.True(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))
			job := wait(t, sup)

			require.Equal(t, render.StateFailed, job.State())
			require.Empty(t, job.OutputPath())
			require.False(t, sup.HasOutput())
			res, ok := job.Result()
			require.True(t, ok)
			require.False(t, res.Succeeded)
			require.Empty(t, res.OutputURL)
			require.Equal(t, 1, rec.count(model.EventRenderCompleted))
		})
	}
}

func TestSupervisor_MarkerOnStderr(t *testing.T) {
	t.Parallel()
	dir, target := document(t)
	sup := render.NewSupervisor(t.Context(), render.Deps{
		Toolchain: shToolchain{script: "touch out.pdf; echo 'Output created: out.pdf' >&2"},
	})

	require.True(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))
	job := wait(t, sup)

	require.Equal(t, render.StateCompleted, job.State())
	require.Equal(t, filepath.Join(dir, "out.pdf"), job.OutputPath())
	res, _ := job.Result()
	require.False(t, res.Published)
}

func TestSupervisor_SingleFlight(t *testing.T) {
	t.Parallel()
	_, target := document(t)
	rec := &recorder{}
	sup := render.NewSupervisor(t.Context(), render.Deps{
		Toolchain: shToolchain{script: "echo started; sleep 30"},
		Notifier:  rec,
		Options:   render.Options{Poll: 10 * time.Millisecond},
	})

	require.True(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))
	first, ok := sup.Current()
	require.True(t, ok)
	require.True(t, sup.IsRunning())

	require.False(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))
	second, _ := sup.Current()
	require.Same(t, first, second)
	require.Equal(t, 1, rec.count(model.EventRenderStarted))

	sup.RequestTermination()
	job := wait(t, sup)
	require.Equal(t, render.StateCancelled, job.State())
	require.False(t, sup.IsRunning())

	res, ok := job.Result()
	require.True(t, ok)
	require.False(t, res.Succeeded)
	require.Equal(t, 1, rec.count(model.EventRenderCompleted))
}

func TestSupervisor_KillAfterGrace(t *testing.T) {
	t.Parallel()
	_, target := document(t)
	sup := render.NewSupervisor(t.Context(), render.Deps{
		Toolchain: shToolchain{script: "trap '' TERM; echo ready; sleep 30"},
		Options: render.Options{
			Poll:      10 * time.Millisecond,
			KillGrace: 100 * time.Millisecond,
		},
	})

	require.True(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))
	start := time.Now()
	sup.RequestTermination()
	job := wait(t, sup)

	require.Equal(t, render.StateCancelled, job.State())
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestSupervisor_CancelledDespiteOutput(t *testing.T) {
	t.Parallel()
	dir, target := document(t)
	rec := &recorder{}
	sup := render.NewSupervisor(t.Context(), render.Deps{
		Toolchain: shToolchain{
			script: `trap 'printf x > out.html; echo "Output created: out.html"; exit 0' TERM; echo ready; sleep 30 & wait`,
		},
		Notifier: rec,
		Options:  render.Options{Poll: 10 * time.Millisecond},
	})

	require.True(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))
	require.Eventually(t, func() bool {
		return strings.Contains(rec.text(model.OutputNormal), "ready")
	}, 10*time.Second, 10*time.Millisecond)

	sup.RequestTermination()
	job := wait(t, sup)

	require.Equal(t, render.StateCancelled, job.State())
	require.Empty(t, job.OutputPath())
	require.False(t, sup.HasOutput())
	require.FileExists(t, filepath.Join(dir, "out.html"))
	res, ok := job.Result()
	require.True(t, ok)
	require.False(t, res.Succeeded)
	require.Empty(t, res.OutputFile)
	require.Empty(t, res.OutputURL)
}

func TestSupervisor_DetachedChildHoldsOutput(t *testing.T) {
	t.Parallel()
	dir, target := document(t)
	sup := render.NewSupervisor(t.Context(), render.Deps{
		Toolchain: shToolchain{
			script: "printf x > out.html; echo 'Output created: out.html'; (sleep 30 &); exit 0",
		},
		Options: render.Options{
			Poll:      10 * time.Millisecond,
			KillGrace: 200 * time.Millisecond,
		},
	})

	start := time.Now()
	require.True(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))
	job := wait(t, sup)

	require.Less(t, time.Since(start), 10*time.Second)
	require.Equal(t, render.StateCompleted, job.State())
	require.Equal(t, filepath.Join(dir, "out.html"), job.OutputPath())
	require.False(t, sup.IsRunning())

	// the next render is not blocked by the leftover child
	require.True(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))
	wait(t, sup)
}

func TestSupervisor_RejectsDuringProbe(t *testing.T) {
	t.Parallel()
	_, target := document(t)
	tc := gatedToolchain{
		shToolchain: shToolchain{script: "touch out.html; echo 'Output created: out.html'"},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	sup := render.NewSupervisor(t.Context(), render.Deps{Toolchain: tc})

	first := make(chan bool, 1)
	go func() {
		first <- sup.RequestRender(t.Context(), target, 0, "UTF-8")
	}()
	select {
	case <-tc.entered:
	case <-time.After(10 * time.Second):
		t.Fatal("output format probe was not called")
	}
	require.True(t, sup.IsRunning())

	begin := time.Now()
	require.False(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))
	require.Less(t, time.Since(begin), time.Second)

	close(tc.release)
	require.True(t, <-first)
	job := wait(t, sup)
	require.Equal(t, render.StateCompleted, job.State())
}

func TestSupervisor_LaunchFailure(t *testing.T) {
	t.Parallel()
	_, target := document(t)
	rec := &recorder{}
	sup := render.NewSupervisor(t.Context(), render.Deps{
		Toolchain: brokenToolchain{},
		Notifier:  rec,
	})

	require.True(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))
	job := wait(t, sup)

	require.Equal(t, render.StateFailed, job.State())
	require.Contains(t, rec.text(model.OutputError), "Error rendering ")
	events := rec.events()
	require.Len(t, events, 3)
	require.Equal(t, model.EventRenderStarted, events[0].Type)
	require.Equal(t, model.EventRenderCompleted, events[2].Type)

	// a failed launch does not block the next request
	require.True(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))
	wait(t, sup)
}

func TestSupervisor_ProbeFailure(t *testing.T) {
	t.Parallel()
	_, target := document(t)
	sup := render.NewSupervisor(t.Context(), render.Deps{
		Toolchain: shToolchain{
			script:   "touch out.html; echo 'Output created: out.html'",
			probeErr: errors.New("rmarkdown is not installed"),
		},
	})

	require.True(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))
	job := wait(t, sup)
	require.Equal(t, render.StateCompleted, job.State())
	res, _ := job.Result()
	require.Empty(t, res.OutputFormat.Name)
}

func TestSupervisor_PublishedAndAugmented(t *testing.T) {
	t.Parallel()
	dir, target := document(t)
	aug := &augmenter{}
	sup := render.NewSupervisor(t.Context(), render.Deps{
		Toolchain: shToolchain{
			script: "touch out.html; echo 'Output created: out.html'",
			format: model.OutputFormat{Name: "ioslides_presentation"},
		},
		Published: published{filepath.Join(dir, "out.html"): true},
		Augmenter: aug,
	})

	require.True(t, sup.RequestRender(t.Context(), target, 12, "UTF-8"))
	job := wait(t, sup)

	res, ok := job.Result()
	require.True(t, ok)
	require.True(t, res.Published)
	require.Equal(t, 2, res.PreviewSlide)
	require.Equal(t, 12, aug.line)
	require.Equal(t, "ioslides_presentation", aug.format)
}

func TestSupervisor_Close(t *testing.T) {
	t.Parallel()
	_, target := document(t)
	sup := render.NewSupervisor(t.Context(), render.Deps{
		Toolchain: shToolchain{script: "sleep 30"},
		Options:   render.Options{Poll: 10 * time.Millisecond},
	})

	require.True(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	require.NoError(t, sup.Close(ctx))

	job, ok := sup.Current()
	require.True(t, ok)
	require.Equal(t, render.StateCancelled, job.State())
	require.False(t, sup.RequestRender(t.Context(), target, 0, "UTF-8"))
}

func TestSupervisor_TerminateIdle(t *testing.T) {
	t.Parallel()
	sup := render.NewSupervisor(t.Context(), render.Deps{Toolchain: brokenToolchain{}})
	sup.RequestTermination()
	require.False(t, sup.IsRunning())
	require.False(t, sup.HasOutput())
	_, ok := sup.Current()
	require.False(t, ok)
	require.NoError(t, sup.Close(t.Context()))
}

// document creates an empty source document in a fresh directory
func document(t *testing.T) (dir, target string) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}
	dir = t.TempDir()
	target = filepath.Join(dir, "doc.Rmd")
	require.NoError(t, os.WriteFile(target, []byte("# Title\n"), 0o644))
	return dir, target
}

func wait(t *testing.T, sup *render.Supervisor) *render.Job {
	t.Helper()
	job, ok := sup.Current()
	require.True(t, ok)
	select {
	case <-job.Done():
	case <-time.After(20 * time.Second):
		t.Fatal("render did not finish in time")
	}
	return job
}

type shToolchain struct {
	script   string
	format   model.OutputFormat
	probeErr error
}

func (s shToolchain) Command(target, _ string) (render.Command, error) {
	return render.Command{
		Path: "sh",
		Args: []string{"-c", s.script},
		Dir:  filepath.Dir(target),
	}, nil
}

func (s shToolchain) OutputFormat(context.Context, string, string) (model.OutputFormat, error) {
	return s.format, s.probeErr
}

// gatedToolchain blocks the output format probe until release is closed.
// entered is closed on the first probe, so it supports one render only.
type gatedToolchain struct {
	shToolchain
	entered chan struct{}
	release chan struct{}
}

func (g gatedToolchain) OutputFormat(ctx context.Context, target, encoding string) (model.OutputFormat, error) {
	close(g.entered)
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return g.shToolchain.OutputFormat(ctx, target, encoding)
}

type brokenToolchain struct{}

func (brokenToolchain) Command(target, _ string) (render.Command, error) {
	return render.Command{
		Path: filepath.Join(filepath.Dir(target), "no-such-program"),
		Dir:  filepath.Dir(target),
	}, nil
}

func (brokenToolchain) OutputFormat(context.Context, string, string) (model.OutputFormat, error) {
	return model.OutputFormat{}, nil
}

type published map[string]bool

func (p published) Published(path string) bool {
	return p[path]
}

type augmenter struct {
	line   int
	format string
}

func (a *augmenter) Augment(_ context.Context, format model.OutputFormat, _ string, line int, res *model.RenderResult) {
	a.line = line
	a.format = format.Name
	res.PreviewSlide = 2
}

type recorder struct {
	mx   sync.Mutex
	list []model.Event
}

func (r *recorder) Notify(_ context.Context, e model.Event) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.list = append(r.list, e)
	return nil
}

func (r *recorder) events() []model.Event {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]model.Event(nil), r.list...)
}

func (r *recorder) count(typ model.EventType) int {
	var n int
	for _, e := range r.events() {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) text(kind model.OutputKind) string {
	var sb strings.Builder
	for _, e := range r.events() {
		if out, ok := e.Data.(model.RenderOutput); ok && out.Type == kind {
			sb.WriteString(out.Text)
		}
	}
	return sb.String()
}
