// Package render supervises the external document renderer. A Supervisor
// runs at most one Job at a time; each job owns a single goroutine which
// relays the process output as events and, once the process exited, scans
// the output for the "Output created: " marker.
package render

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/CZERTAINLY/Scribe/internal/model"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	deps   Deps

	mx      sync.Mutex // guards the active job check and swap
	current atomic.Pointer[Job]
}

// NewSupervisor creates a supervisor; ctx bounds the lifetime of all jobs.
func NewSupervisor(ctx context.Context, deps Deps) *Supervisor {
	ctx, cancel := context.WithCancel(ctx)
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	return &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		deps:   deps.withDefaults(),
	}
}

// RequestRender starts rendering target unless a render is already active.
// It returns once the process has been spawned (or failed to spawn); it
// never waits for the render to finish. A concurrent request is rejected
// without waiting for the output format probe.
func (s *Supervisor) RequestRender(ctx context.Context, target string, sourceLine int, encoding string) bool {
	job := s.claim(ctx, target, sourceLine, encoding)
	if job == nil {
		return false
	}
	job.start(ctx, s.ctx)
	return true
}

// claim stores a new Starting job, or returns nil when another job is active.
func (s *Supervisor) claim(ctx context.Context, target string, sourceLine int, encoding string) *Job {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.ctx.Err() != nil {
		slog.WarnContext(ctx, "supervisor closed: ignoring render request", "target", target)
		return nil
	}
	if cur := s.current.Load(); cur != nil && cur.State().Active() {
		slog.DebugContext(ctx, "render already active: ignoring", "target", target, "job_id", cur.ID())
		return nil
	}

	job := newJob(target, sourceLine, encoding, s.deps)
	s.current.Store(job)
	return job
}

// RequestTermination cancels the active job, if any.
func (s *Supervisor) RequestTermination() {
	if cur := s.current.Load(); cur != nil && cur.State().Active() {
		cur.Terminate()
	}
}

func (s *Supervisor) IsRunning() bool {
	cur := s.current.Load()
	return cur != nil && cur.State().Active()
}

func (s *Supervisor) HasOutput() bool {
	cur := s.current.Load()
	return cur != nil && cur.HasOutput()
}

// Current returns the last job, active or not.
func (s *Supervisor) Current() (*Job, bool) {
	cur := s.current.Load()
	return cur, cur != nil
}

// Close terminates the active job and waits until it published its result
// or ctx is done.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mx.Lock()
	s.cancel()
	s.mx.Unlock()

	cur := s.current.Load()
	if cur == nil {
		return nil
	}
	select {
	case <-cur.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.Event) error { return nil }
