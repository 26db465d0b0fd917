package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/CZERTAINLY/Scribe/internal/log"
	"github.com/CZERTAINLY/Scribe/internal/model"
)

type State int32

const (
	StateStarting State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active is true for Starting and Running.
func (s State) Active() bool {
	return s == StateStarting || s == StateRunning
}

// Status is a point in time copy of a job.
type Status struct {
	ID         string              `json:"id"`
	TargetFile string              `json:"target_file"`
	SourceLine int                 `json:"source_line"`
	Encoding   string              `json:"encoding"`
	State      State               `json:"state"`
	Result     *model.RenderResult `json:"result,omitempty"`
}

// Job supervises a single execution of the render toolchain.
//
// All state transitions after start happen on the goroutine executing run;
// readers only see them through atomics or the mutex protected result.
type Job struct {
	id         string
	target     string
	sourceLine int
	encoding   string
	deps       Deps

	state      atomic.Int32
	cancelled  atomic.Bool
	cancel     chan struct{}
	cancelOnce sync.Once
	done       chan struct{}

	runner *Runner
	output Output

	mx         sync.RWMutex
	format     model.OutputFormat
	outputPath string
	result     *model.RenderResult
}

func newJob(target string, sourceLine int, encoding string, deps Deps) *Job {
	j := &Job{
		id:         uuid.NewString(),
		target:     target,
		sourceLine: sourceLine,
		encoding:   encoding,
		deps:       deps,
		cancel:     make(chan struct{}),
		done:       make(chan struct{}),
		runner:     NewRunner(deps.Options.KillGrace),
	}
	j.state.Store(int32(StateStarting))
	return j
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Target() string {
	return j.target
}

func (j *Job) State() State {
	return State(j.state.Load())
}

// Done is closed after the result has been published.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns the published result, ok is false while the job is active.
func (j *Job) Result() (model.RenderResult, bool) {
	j.mx.RLock()
	defer j.mx.RUnlock()
	if j.result == nil {
		return model.RenderResult{}, false
	}
	return *j.result, true
}

// OutputPath is set only for completed jobs.
func (j *Job) OutputPath() string {
	j.mx.RLock()
	defer j.mx.RUnlock()
	return j.outputPath
}

// HasOutput is true once the job ended and its output file exists.
func (j *Job) HasOutput() bool {
	if j.State().Active() {
		return false
	}
	path := j.OutputPath()
	return path != "" && exists(path)
}

// Terminate requests a cancellation. The job ends once the process exits.
func (j *Job) Terminate() {
	j.cancelled.Store(true)
	j.cancelOnce.Do(func() { close(j.cancel) })
}

func (j *Job) Status() Status {
	s := Status{
		ID:         j.id,
		TargetFile: j.alias(j.target),
		SourceLine: j.sourceLine,
		Encoding:   j.encoding,
		State:      j.State(),
	}
	if res, ok := j.Result(); ok {
		s.Result = &res
	}
	return s
}

// start probes the output format and launches the process. It returns as soon
// as the process is spawned; the rest happens on a goroutine bound to jobCtx.
func (j *Job) start(reqCtx, jobCtx context.Context) {
	attrs := []slog.Attr{
		slog.String("job_id", j.id),
		slog.String("target", j.target),
	}
	reqCtx = log.ContextAttrs(reqCtx, attrs...)
	jobCtx = log.ContextAttrs(jobCtx, attrs...)

	format, err := j.deps.Toolchain.OutputFormat(reqCtx, j.target, j.encoding)
	if err != nil {
		slog.WarnContext(reqCtx, "output format probe failed", "error", err)
		format = model.OutputFormat{}
	}
	j.mx.Lock()
	j.format = format
	j.mx.Unlock()

	j.notify(jobCtx, model.Event{
		Type: model.EventRenderStarted,
		Data: model.RenderStarted{
			JobID:        j.id,
			OutputFormat: format,
			TargetFile:   j.alias(j.target),
		},
	})

	if j.cancelled.Load() || jobCtx.Err() != nil {
		j.finalize(jobCtx, StateCancelled, "")
		return
	}

	cmd, err := j.deps.Toolchain.Command(j.target, j.encoding)
	if err == nil {
		err = j.runner.Start(jobCtx, cmd)
	}
	if err != nil {
		slog.ErrorContext(jobCtx, "render launch failed", "error", err)
		j.emitOutput(jobCtx, model.OutputError, fmt.Sprintf("Error rendering %s %s", j.alias(j.target), err))
		j.finalize(jobCtx, StateFailed, "")
		return
	}

	j.state.Store(int32(StateRunning))
	slog.InfoContext(jobCtx, "render started", "format", format.Name)
	go j.run(jobCtx)
}

func (j *Job) run(ctx context.Context) {
	ticker := time.NewTicker(j.deps.Options.Poll)
	defer ticker.Stop()

	var (
		chunks    = j.runner.Output()
		exited    <-chan Exit
		killAfter <-chan time.Time
		cancel    = j.cancel
		ctxDone   = ctx.Done()
		signalled bool
	)

	// proceed is the continuation check; the first false
	// answer sends SIGTERM and arms the kill timer
	proceed := func() bool {
		if !j.cancelled.Load() {
			return true
		}
		if !signalled {
			signalled = true
			slog.InfoContext(ctx, "terminating render")
			if err := j.runner.Terminate(); err != nil {
				slog.DebugContext(ctx, "terminate", "error", err)
			}
			killAfter = time.After(j.deps.Options.KillGrace)
		}
		return false
	}

	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				exited = j.runner.Exited()
				continue
			}
			if !proceed() {
				continue
			}
			j.output.Append(c)
			j.emitOutput(ctx, c.Kind, string(c.Data))
		case <-ticker.C:
			proceed()
		case <-cancel:
			cancel = nil
			proceed()
		case <-ctxDone:
			ctxDone = nil
			j.Terminate()
			proceed()
		case <-killAfter:
			killAfter = nil
			slog.WarnContext(ctx, "render did not stop in time: killing")
			if err := j.runner.Kill(); err != nil {
				slog.DebugContext(ctx, "kill", "error", err)
			}
		case e := <-exited:
			j.complete(ctx, e)
			return
		}
	}
}

// complete scans the whole output for the marker only now, so a marker split
// between two chunks is never missed.
func (j *Job) complete(ctx context.Context, e Exit) {
	exitCode := e.ExitCode()
	path, found := FindOutputFile(j.output.Bytes(), filepath.Dir(j.target))

	state := StateFailed
	switch {
	case j.cancelled.Load():
		state = StateCancelled
	case exitCode == 0 && found && exists(path):
		state = StateCompleted
	case exitCode == 0:
		slog.WarnContext(ctx, "render exited successfully without an output file", "marker_found", found, "path", path)
	}
	if state != StateCompleted {
		path = ""
	}

	slog.InfoContext(ctx, "render finished",
		"state", state,
		"exit_code", exitCode,
		"output", path,
		"elapsed", e.Stopped.Sub(e.Started).String(),
	)
	j.finalize(ctx, state, path)
}

// finalize publishes the result. It is called exactly once per job.
func (j *Job) finalize(ctx context.Context, state State, outputPath string) {
	j.mx.RLock()
	format := j.format
	j.mx.RUnlock()

	res := model.RenderResult{
		JobID:        j.id,
		Succeeded:    state == StateCompleted,
		TargetFile:   j.alias(j.target),
		OutputFormat: format,
		PreviewSlide: -1,
	}
	if outputPath != "" {
		res.OutputFile = j.alias(outputPath)
		res.OutputURL = OutputURL(j.deps.Options.Mount, res.OutputFile, j.deps.Options.EncodePasses)
		if isWebDocument(outputPath) && j.deps.Published != nil {
			res.Published = j.deps.Published.Published(outputPath)
		}
	}
	if j.deps.Augmenter != nil {
		j.deps.Augmenter.Augment(ctx, format, j.target, j.sourceLine, &res)
	}

	j.mx.Lock()
	j.outputPath = outputPath
	j.result = &res
	j.mx.Unlock()
	j.state.Store(int32(state))

	j.notify(ctx, model.Event{Type: model.EventRenderCompleted, Data: res})
	close(j.done)
}

func (j *Job) emitOutput(ctx context.Context, kind model.OutputKind, text string) {
	j.notify(ctx, model.Event{
		Type: model.EventRenderOutput,
		Data: model.RenderOutput{JobID: j.id, Type: kind, Text: text},
	})
}

func (j *Job) notify(ctx context.Context, event model.Event) {
	// events of a cancelled job must still reach the clients
	ctx = context.WithoutCancel(ctx)
	if err := j.deps.Notifier.Notify(ctx, event); err != nil {
		slog.WarnContext(ctx, "event notification failed", "event", event.Type, "error", err)
	}
}

func (j *Job) alias(path string) string {
	return model.AliasPath(path, j.deps.Options.Home)
}

func isWebDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	}
	return false
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
