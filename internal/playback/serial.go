// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playback

import "sync"

// serial runs steps one at a time in submission order. Whichever goroutine
// finds the queue idle drains it; steps posted while a step is running (for
// example a callback fired synchronously by an engine) run right after it.
// A panicking step is recovered and reported to onPanic so the queue keeps
// draining.
type serial struct {
	mu       sync.Mutex
	queue    []func()
	draining bool

	onPanic func(v any)
}

// post enqueues fn without waiting for it.
func (s *serial) post(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()
	s.drain()
}

// run enqueues fn and waits until it has executed. It must not be called from
// inside a step.
func (s *serial) run(fn func()) {
	done := make(chan struct{})
	s.post(func() {
		defer close(done)
		fn()
	})
	<-done
}

func (s *serial) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.step(fn)
	}
}

func (s *serial) step(fn func()) {
	defer func() {
		if v := recover(); v != nil && s.onPanic != nil {
			s.onPanic(v)
		}
	}()
	fn()
}
