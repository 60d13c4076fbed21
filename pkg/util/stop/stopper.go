// Copyright 2025 The Barnacle Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package stop provides the Stopper, which coordinates server shutdown with
// outstanding asynchronous work. Components launch background work through a
// shared Stopper; shutdown first quiesces (new tasks are refused and the
// quiescence channel closes), then waits for running tasks to drain, then
// invokes registered closers.
package stop

import (
	"context"

	"github.com/barnacledb/barnacle/pkg/util/log"
	"github.com/barnacledb/barnacle/pkg/util/syncutil"
	"github.com/cockroachdb/errors"
)

// ErrUnavailable indicates that the server is quiescing and is unable to
// process new work.
var ErrUnavailable = errors.New("node unavailable; try another peer")

// Closer is an interface for objects to attach to the stopper to be closed
// once the stopper completes.
type Closer interface {
	Close()
}

// CloserFn is type that allows any function to be a Closer.
type CloserFn func()

// Close implements the Closer interface.
func (f CloserFn) Close() {
	f()
}

// A Stopper provides control over the lifecycle of goroutines started through
// it via its RunTask and RunAsyncTask methods.
//
// When Stop is invoked, the Stopper:
//
//   - it invokes Quiesce, which causes the Stopper to refuse new work, closes
//     the channel returned by ShouldQuiesce, and blocks until all
//     outstanding tasks have completed;
//   - it runs all of the methods supplied to AddCloser.
type Stopper struct {
	quiescer chan struct{} // Closed when quiescing
	stopped  chan struct{} // Closed when stopped completely

	mu struct {
		syncutil.Mutex
		quiescing bool
		numTasks  int
		// quiesced is closed once numTasks drops to zero while quiescing.
		// Tasks cannot be added after quiescing begins, so the count only
		// decreases from then on and the channel is closed at most once.
		quiesced chan struct{}
		closers  []Closer
	}
}

// NewStopper returns an instance of Stopper.
func NewStopper() *Stopper {
	s := &Stopper{
		quiescer: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	s.mu.quiesced = make(chan struct{})
	return s
}

// AddCloser adds an object to close after the stopper has been stopped.
func (s *Stopper) AddCloser(c Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.quiescing {
		// Close immediately; the stopper is already shutting down.
		c.Close()
		return
	}
	s.mu.closers = append(s.mu.closers, c)
}

// RunTask adds one to the count of tasks left to quiesce in the system,
// then runs function f synchronously. Returns ErrUnavailable if the Stopper
// is quiescing, in which case the function is not executed.
func (s *Stopper) RunTask(ctx context.Context, taskName string, f func(context.Context)) error {
	if !s.addTask() {
		return ErrUnavailable
	}
	defer s.removeTask()
	f(ctx)
	return nil
}

// RunAsyncTask is like RunTask, except the callback f is run in a goroutine.
// The call returns as soon as the task is spawned.
func (s *Stopper) RunAsyncTask(
	ctx context.Context, taskName string, f func(context.Context),
) error {
	if !s.addTask() {
		return ErrUnavailable
	}
	go func() {
		defer s.removeTask()
		f(ctx)
	}()
	return nil
}

func (s *Stopper) addTask() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.quiescing {
		return false
	}
	s.mu.numTasks++
	return true
}

func (s *Stopper) removeTask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.numTasks--
	if s.mu.numTasks < 0 {
		panic(errors.AssertionFailedf("negative task count"))
	}
	if s.mu.quiescing && s.mu.numTasks == 0 {
		close(s.mu.quiesced)
	}
}

// NumTasks returns the number of active tasks.
func (s *Stopper) NumTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.numTasks
}

// ShouldQuiesce returns a channel which will be closed when Stop has been
// invoked and outstanding tasks should begin to quiesce.
func (s *Stopper) ShouldQuiesce() <-chan struct{} {
	if s == nil {
		// A nil stopper quiesces never.
		return nil
	}
	return s.quiescer
}

// IsStopped returns a channel which will be closed after Stop has completed.
func (s *Stopper) IsStopped() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.stopped
}

// Quiesce moves the stopper to state quiescing and waits until all tasks
// complete. This is used from Stop.
func (s *Stopper) Quiesce(ctx context.Context) {
	s.mu.Lock()
	if !s.mu.quiescing {
		s.mu.quiescing = true
		close(s.quiescer)
		if s.mu.numTasks == 0 {
			// No tasks to wait for; release any past or future waiters.
			close(s.mu.quiesced)
		}
	}
	numTasks := s.mu.numTasks
	quiesced := s.mu.quiesced
	s.mu.Unlock()
	if numTasks > 0 {
		log.Infof(ctx, "quiescing; tasks left: %d", numTasks)
	}
	<-quiesced
}

// Stop signals all live workers to stop and then waits for each to
// confirm it has stopped.
func (s *Stopper) Stop(ctx context.Context) {
	s.Quiesce(ctx)
	s.mu.Lock()
	closers := s.mu.closers
	s.mu.closers = nil
	s.mu.Unlock()
	for _, c := range closers {
		c.Close()
	}
	close(s.stopped)
}
