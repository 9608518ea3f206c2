// Copyright 2024 The PennOS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package coopthread provides the one concrete implementation of the
// cooperative-thread primitive PennOS's scheduler is specified against:
// a goroutine gated by two unbuffered channels standing in for the
// host's signal-driven context switch (see SPEC_FULL.md §4.10).
//
// Continue resumes the underlying goroutine until it reaches the next
// safe point and calls SuspendSelf (or Exit); Suspend only raises a
// request flag that SuspendSelf is guaranteed to observe before running
// any further user code, so a thread can never escape a pending
// suspension request.
package coopthread

import (
	"runtime"
	"sync"
)

// Func is the entry point run on a Cap's goroutine. It must call
// SuspendSelf at its own safe points (syscalls, quantum boundaries) and
// return its result to terminate.
type Func func(self *Cap, arg any) any

// Cap is an opaque cooperative-thread handle, analogous to the original
// implementation's ThreadCap.
type Cap struct {
	resumeCh  chan struct{}
	stoppedCh chan struct{}

	mu        sync.Mutex
	done      bool
	result    any
	suspend   bool // suspend requested by the scheduler, consumed by SuspendSelf
	terminate bool // forced-exit requested by the scheduler, consumed at the next wake
	started   bool
	finished  chan struct{}
}

// Start creates a thread that is immediately runnable but not yet
// executing; its goroutine blocks until the first Continue.
func Start(fn Func, arg any) *Cap {
	c := &Cap{
		resumeCh:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
		finished:  make(chan struct{}),
	}
	go func() {
		<-c.resumeCh // wait for the first quantum (or a Terminate before ever running)
		defer func() {
			c.mu.Lock()
			c.done = true
			c.mu.Unlock()
			close(c.finished)
			c.stoppedCh <- struct{}{}
		}()
		c.mu.Lock()
		terminated := c.terminate
		c.mu.Unlock()
		if terminated {
			return
		}
		result := fn(c, arg)
		c.mu.Lock()
		c.result = result
		c.mu.Unlock()
	}()
	return c
}

// Continue resumes the thread and blocks until the thread reaches a
// safe point via SuspendSelf or terminates (fn returns or Exit is
// called). No timer is involved: a thread that never calls SuspendSelf
// keeps Continue blocked until it terminates.
func (c *Cap) Continue() {
	c.resumeCh <- struct{}{}
	<-c.stoppedCh
}

// Suspend is called by the scheduler from outside the thread. It
// returns true if the thread has already terminated. It never blocks:
// it only arms the suspend flag that the next SuspendSelf call must
// honor before resuming user code.
func (c *Cap) Suspend() (terminated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return true
	}
	c.suspend = true
	return false
}

// SuspendSelf is called from within the running thread to yield control
// back to the scheduler until it is next picked. It always checks (and
// clears) the pending suspend flag first, which is what guarantees a
// thread cannot run past a suspension request. On the resuming side, it
// checks for a pending Terminate request and, if one is set, unwinds the
// goroutine via runtime.Goexit instead of returning to user code — this
// is what lets the scheduler force-terminate a thread that is parked
// here rather than currently running.
func (c *Cap) SuspendSelf() {
	c.mu.Lock()
	c.suspend = false
	c.mu.Unlock()
	c.stoppedCh <- struct{}{}
	<-c.resumeCh
	c.mu.Lock()
	terminated := c.terminate
	c.mu.Unlock()
	if terminated {
		runtime.Goexit()
	}
}

// Terminate forces a non-running thread to exit. It must only be called
// on a thread that is not the one currently executing (the caller would
// otherwise deadlock waiting on its own resumeCh/stoppedCh exchange):
// the scheduler's single-runner invariant guarantees every other PCB's
// thread is parked either in Start's initial wait or in SuspendSelf.
// Terminate wakes it exactly like Continue would, but with the
// terminate flag armed so the wake unwinds the goroutine instead of
// resuming user code, and blocks until that unwind has fully completed
// (finished is closed), so a subsequent Join never hangs.
func (c *Cap) Terminate() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.terminate = true
	c.mu.Unlock()
	c.resumeCh <- struct{}{}
	<-c.stoppedCh
}

// Exit terminates the calling thread immediately with the given result
// and does not return to its caller, mirroring the primitive's exit(2)
// contract. It must be called from within the thread's own goroutine.
func (c *Cap) Exit(result any) {
	c.mu.Lock()
	c.result = result
	c.mu.Unlock()
	runtime.Goexit()
}

// Done reports whether the thread has terminated (fn returned or Exit
// was called), without blocking.
func (c *Cap) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Result returns the thread's terminal value. Only meaningful once Done
// reports true.
func (c *Cap) Result() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Join blocks until the thread has fully terminated (its goroutine has
// returned), so the scheduler can safely drop its last reference after
// reaping.
func (c *Cap) Join() {
	<-c.finished
}
