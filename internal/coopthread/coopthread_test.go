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

package coopthread

import "testing"

func TestStartNotRunningUntilContinue(t *testing.T) {
	ran := make(chan struct{}, 1)
	c := Start(func(self *Cap, arg any) any {
		ran <- struct{}{}
		return 42
	}, nil)

	select {
	case <-ran:
		t.Fatal("thread ran before Continue was called")
	default:
	}

	c.Continue()
	c.Join()
	if !c.Done() {
		t.Fatal("thread should be done after returning")
	}
	if c.Result() != 42 {
		t.Fatalf("Result() = %v, want 42", c.Result())
	}
}

func TestSuspendSelfRoundTrips(t *testing.T) {
	step := 0
	c := Start(func(self *Cap, arg any) any {
		step = 1
		self.SuspendSelf()
		step = 2
		self.SuspendSelf()
		step = 3
		return nil
	}, nil)

	c.Continue()
	if step != 1 {
		t.Fatalf("step = %d after first quantum, want 1", step)
	}
	c.Continue()
	if step != 2 {
		t.Fatalf("step = %d after second quantum, want 2", step)
	}
	c.Continue()
	c.Join()
	if step != 3 {
		t.Fatalf("step = %d after final quantum, want 3", step)
	}
	if !c.Done() {
		t.Fatal("thread should report done once fn has returned")
	}
}

func TestSuspendReportsTermination(t *testing.T) {
	c := Start(func(self *Cap, arg any) any { return nil }, nil)
	c.Continue()
	c.Join()
	if terminated := c.Suspend(); !terminated {
		t.Fatal("Suspend on an already-terminated thread must report true")
	}
}

func TestExitDoesNotReturnToCaller(t *testing.T) {
	reachedAfterExit := false
	c := Start(func(self *Cap, arg any) any {
		self.Exit("bye")
		reachedAfterExit = true
		return nil
	}, nil)
	c.Continue()
	c.Join()
	if reachedAfterExit {
		t.Fatal("code after Exit must never run")
	}
	if c.Result() != "bye" {
		t.Fatalf("Result() = %v, want %q", c.Result(), "bye")
	}
}

func TestSuspendFlagConsumedBySuspendSelf(t *testing.T) {
	gate := make(chan struct{})
	reachedSuspendSelf := make(chan bool, 1)
	c := Start(func(self *Cap, arg any) any {
		<-gate
		reachedSuspendSelf <- true
		self.SuspendSelf()
		return nil
	}, nil)

	continueDone := make(chan struct{})
	go func() {
		c.Continue()
		close(continueDone)
	}()

	// While the thread is still blocked on gate (mid-quantum), a
	// suspend request must not be mistaken for termination.
	if terminated := c.Suspend(); terminated {
		t.Fatal("thread blocked on gate should not be reported as terminated")
	}

	close(gate)
	<-continueDone
	select {
	case <-reachedSuspendSelf:
	default:
		t.Fatal("thread should have run up to its first SuspendSelf")
	}
	c.mu.Lock()
	pending := c.suspend
	c.mu.Unlock()
	if pending {
		t.Fatal("SuspendSelf should have consumed the pending suspend request")
	}

	c.Continue()
	c.Join()
}
