package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/CZERTAINLY/Scribe/internal/model"
)

var (
	ErrRenderInProgress = errors.New("render in progress")
	ErrNotStarted       = errors.New("render not started")
)

// Command describes the external program to run.
type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// Chunk is a piece of process output as it was read from one of its pipes.
type Chunk struct {
	Kind model.OutputKind
	Data []byte
}

// Exit is delivered once the process ended and its output was delivered, or
// the wait delay after the exit expired.
type Exit struct {
	State   *os.ProcessState
	Err     error
	Started time.Time
	Stopped time.Time
}

// ExitCode returns -1 when the process did not exit normally.
func (e Exit) ExitCode() int {
	if e.State == nil {
		return -1
	}
	return e.State.ExitCode()
}

// Runner is a thin wrapper around os/exec which runs at most one process.
// Start does not wait on the process; stdout and stderr chunks arrive on
// Output in the order they were written, Exited fires after Output is closed.
//
// Descendants of the process may inherit its stdout and stderr. The runner
// waits for them at most waitDelay after the process itself exited.
type Runner struct {
	waitDelay time.Duration

	mx   sync.Mutex
	cmd  *exec.Cmd
	sink *chunkSink
	exit chan Exit
}

func NewRunner(waitDelay time.Duration) *Runner {
	return &Runner{waitDelay: waitDelay}
}

// Start runs the process described by proto. It returns ErrRenderInProgress
// when the runner already started a process, or an exec/working directory error.
func (r *Runner) Start(ctx context.Context, proto Command) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.cmd != nil {
		return ErrRenderInProgress
	}

	if proto.Dir != "" {
		info, err := os.Stat(proto.Dir)
		if err != nil {
			return fmt.Errorf("working directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("working directory %s: not a directory", proto.Dir)
		}
	}

	sink := &chunkSink{ch: make(chan Chunk, 64)}
	cmd := exec.Command(proto.Path, proto.Args...)
	cmd.Dir = proto.Dir
	if len(proto.Env) > 0 {
		cmd.Env = append(os.Environ(), proto.Env...)
	}
	cmd.Stdout = sink.writer(model.OutputNormal)
	cmd.Stderr = sink.writer(model.OutputError)
	cmd.WaitDelay = r.waitDelay
	setProcessGroup(cmd)

	started := time.Now().UTC()
	if err := cmd.Start(); err != nil {
		return err
	}
	slog.DebugContext(ctx, "process started", "path", proto.Path, "args", proto.Args, "pid", cmd.Process.Pid)

	r.cmd = cmd
	r.sink = sink
	r.exit = make(chan Exit, 1)

	go r.wait(ctx, cmd, sink, started)
	return nil
}

func (r *Runner) wait(ctx context.Context, cmd *exec.Cmd, sink *chunkSink, started time.Time) {
	err := cmd.Wait()
	if errors.Is(err, exec.ErrWaitDelay) {
		slog.DebugContext(ctx, "output still held open after exit", "wait_delay", r.waitDelay.String())
	}
	sink.close()
	r.exit <- Exit{
		State:   cmd.ProcessState,
		Err:     err,
		Started: started,
		Stopped: time.Now().UTC(),
	}
	close(r.exit)
}

// Output returns the channel of output chunks, closed right before the Exit
// value is sent.
func (r *Runner) Output() <-chan Chunk {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.sink == nil {
		return nil
	}
	return r.sink.ch
}

// Exited returns the channel receiving the single Exit value.
func (r *Runner) Exited() <-chan Exit {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.exit
}

// Terminate asks the process and its children to stop.
func (r *Runner) Terminate() error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.cmd == nil {
		return ErrNotStarted
	}
	return terminate(r.cmd.Process)
}

// Kill stops the process and its children immediately.
func (r *Runner) Kill() error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.cmd == nil {
		return ErrNotStarted
	}
	return kill(r.cmd.Process)
}

// chunkSink turns the writes of exec's copying goroutines into Chunks. After
// close, late writes from goroutines abandoned by the wait delay fail.
type chunkSink struct {
	mx     sync.Mutex
	closed bool
	ch     chan Chunk
}

func (s *chunkSink) writer(kind model.OutputKind) io.Writer {
	return streamWriter{sink: s, kind: kind}
}

func (s *chunkSink) send(kind model.OutputKind, p []byte) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.closed {
		return 0, os.ErrClosed
	}
	s.ch <- Chunk{Kind: kind, Data: append([]byte(nil), p...)}
	return len(p), nil
}

func (s *chunkSink) close() {
	s.mx.Lock()
	defer s.mx.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

type streamWriter struct {
	sink *chunkSink
	kind model.OutputKind
}

func (w streamWriter) Write(p []byte) (int, error) {
	return w.sink.send(w.kind, p)
}
