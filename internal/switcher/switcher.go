// Package switcher implements the single-slot process-switching
// coordinator described in §4.7: at most one running llama-server per
// Switcher, reused when its config accepts the pending request and
// swapped for a fresh process otherwise.
package switcher

import (
	"sync"

	"modeld/internal/llamaproc"
)

// current holds the live spec+context pair, mirroring the teacher's single
// in-flight generation channel (size-1 `genCh`) generalized from
// per-model to per-switcher, since a Switcher owns at most one process.
type current struct {
	spec llamaproc.Spec
	ctx  *llamaproc.Context
}

// Switcher serializes hand-offs between concurrent callers onto a single
// running llama-server process.
type Switcher struct {
	mu  sync.Mutex // the serializer: held for the whole withContext body
	cur *current
}

// New returns an empty Switcher with no running process.
func New() *Switcher {
	return &Switcher{}
}

// WithContext acquires the serializer, ensures a context exists that
// accepts pending (reusing the current one or swapping), runs body against
// it while still holding the lock, and releases the lock on return. The
// context remains alive afterward for future calls.
func WithContext[T any](s *Switcher, pending llamaproc.Spec, body func(*llamaproc.Context) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.cur != nil && s.cur.spec.Accept(pending) {
		return body(s.cur.ctx)
	}

	if s.cur != nil {
		_ = s.cur.ctx.Close(false)
		s.cur = nil
	}

	ctx, err := pending.Start()
	if err != nil {
		return zero, err
	}
	s.cur = &current{spec: pending, ctx: ctx}
	return body(ctx)
}

// Stop closes the current context, if any, releasing its resources. It
// acquires the serializer, so it waits for a WithContext call in progress
// to return first.
func (s *Switcher) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	err := s.cur.ctx.Close(false)
	s.cur = nil
	return err
}

// CurrentPort returns the port of the running process, or 0 if none.
func (s *Switcher) CurrentPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return 0
	}
	return s.cur.ctx.Port()
}
