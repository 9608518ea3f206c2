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

package pkernel

import (
	"testing"

	"github.com/pennstudent/pennos/internal/kerrno"
	"github.com/pennstudent/pennos/internal/pfat"
)

// syscallsFor is a test helper: most FS syscalls never suspend, so they
// can be exercised directly against a booted scheduler's PCBs without
// driving the tick loop.
func syscallsFor(sched *Scheduler, pid int) *Syscalls {
	return &Syscalls{sched: sched, pid: pid}
}

func TestConcurrentWriteLockAcrossProcesses(t *testing.T) {
	sched := newTestScheduler(t)
	childEntry := func(sys *Syscalls, argv []string) int { return 0 }
	shellEntry := func(sys *Syscalls, argv []string) int { return 0 }
	shellPid, err := sched.Boot(shellEntry, nil)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	procA := shellPid
	procB, err := sched.Spawn(childEntry, nil, PriorityMedium, shellPid)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	sysA := syscallsFor(sched, procA)
	sysB := syscallsFor(sched, procB)

	fdA := sysA.Open("f", pfat.FWrite)
	if fdA < 0 {
		t.Fatalf("first open failed: errno %v", sched.procs[procA].Errnumber)
	}
	if fdB := sysB.Open("f", pfat.FWrite); fdB != -1 {
		t.Fatalf("second concurrent write open should fail, got fd=%d", fdB)
	}
	if sched.procs[procB].Errnumber != kerrno.EAlreadyWriteLocked {
		t.Fatalf("expected EAlreadyWriteLocked, got %v", sched.procs[procB].Errnumber)
	}
	if rc := sysA.Close(fdA); rc != 0 {
		t.Fatalf("Close: rc=%d errno=%v", rc, sched.procs[procA].Errnumber)
	}
	fdB := sysB.Open("f", pfat.FWrite)
	if fdB < 0 {
		t.Fatalf("open after release failed: errno %v", sched.procs[procB].Errnumber)
	}
	sysB.Close(fdB)
}

func TestFdInheritanceOnSpawn(t *testing.T) {
	sched := newTestScheduler(t)
	shellEntry := func(sys *Syscalls, argv []string) int { return 0 }
	shellPid, err := sched.Boot(shellEntry, nil)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	sysParent := syscallsFor(sched, shellPid)
	fd := sysParent.Open("shared.txt", pfat.FWrite)
	if fd < 0 {
		t.Fatalf("Open: errno %v", sched.procs[shellPid].Errnumber)
	}

	childEntry := func(sys *Syscalls, argv []string) int { return 0 }
	childPid, err := sched.Spawn(childEntry, nil, PriorityMedium, shellPid)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	child := sched.procs[childPid]
	if !child.ProcessFDTable[fd].InUse {
		t.Fatalf("child did not inherit parent's open fd")
	}
	if child.ProcessFDTable[fd].GlobalFD != sched.procs[shellPid].ProcessFDTable[fd].GlobalFD {
		t.Fatalf("child's inherited fd points at a different global fd")
	}

	sysChild := syscallsFor(sched, childPid)
	if rc := sysChild.Close(fd); rc != 0 {
		t.Fatalf("child Close: rc=%d", rc)
	}
	if !sched.procs[shellPid].ProcessFDTable[fd].InUse {
		t.Fatalf("closing in the child must not affect the parent's local slot")
	}
}

func TestReadWriteOnSpecialFdsBypassFilesystem(t *testing.T) {
	sched := newTestScheduler(t)
	shellEntry := func(sys *Syscalls, argv []string) int { return 0 }
	shellPid, err := sched.Boot(shellEntry, nil)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	sys := syscallsFor(sched, shellPid)
	n := sys.Write(FdStdout, []byte("hello"))
	if n != 5 {
		t.Fatalf("Write to stdout: got %d, want 5", n)
	}
	if rc := sys.Lseek(FdStdout, pfat.FSeekSet, 0); rc != -1 {
		t.Fatalf("Lseek on stdout should fail with special-fd sentinel, got %d", rc)
	}
	if sched.procs[shellPid].Errnumber != kerrno.ESpecialFd {
		t.Fatalf("expected ESpecialFd, got %v", sched.procs[shellPid].Errnumber)
	}
}
