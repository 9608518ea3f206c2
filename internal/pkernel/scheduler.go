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
	"github.com/pennstudent/pennos/internal/coopthread"
	"github.com/pennstudent/pennos/internal/kerrno"
	"github.com/pennstudent/pennos/internal/pennconfig"
	"github.com/pennstudent/pennos/internal/penlog"
	"github.com/pennstudent/pennos/internal/pfat"
)

// EntryFunc is a process's body. It receives a Syscalls handle scoped
// to its own pid and its argv, and returns the status passed to
// s_exit-equivalent bookkeeping when it returns instead of calling
// Syscalls.Exit explicitly.
type EntryFunc func(sys *Syscalls, argv []string) int

// Scheduler owns every PCB and all queue state. Exactly one goroutine
// drives it at a time: the Tick caller between quanta, and the current
// PCB's own thread during a quantum (via Continue, which blocks the
// caller until the thread reaches a safe point). That single-runner
// invariant — the same one internal/pfat.FileSystem relies on — is why
// no mutex guards scheduler state.
type Scheduler struct {
	Config pennconfig.Config
	FS     *pfat.FileSystem
	Log    *penlog.Logger

	procs   map[int]*PCB
	nextPid int

	ready   [3][]int
	blocked []int
	stopped []int
	zombie  []int

	current      int
	quantum      int
	terminalPid  int
	shellStarted bool
	loggedOut    bool
}

// NewScheduler constructs a scheduler bound to a mounted filesystem and
// trace logger, ready for Boot.
func NewScheduler(cfg pennconfig.Config, fs *pfat.FileSystem, log *penlog.Logger) *Scheduler {
	return &Scheduler{
		Config:  cfg,
		FS:      fs,
		Log:     log,
		procs:   make(map[int]*PCB),
		nextPid: InitPid,
	}
}

// Boot creates the init PCB and spawns the shell-equivalent entry point
// as its first child, matching spec §2's "a process-wide init PCB is
// created, then a user-supplied entry is spawned."
func (s *Scheduler) Boot(shell EntryFunc, argv []string) (shellPid int, err error) {
	if _, ok := s.procs[InitPid]; ok {
		return 0, kerrno.EInitExists
	}
	initPCB := s.newProcess(0, PriorityHigh, "init", nil)
	initPCB.Thread = coopthread.Start(wrapEntry(s, initPCB.Pid, initEntry), nil)
	s.pushReady(initPCB)

	pid, err := s.Spawn(shell, argv, PriorityMedium, InitPid)
	if err != nil {
		return 0, err
	}
	s.terminalPid = pid
	s.shellStarted = true
	return pid, nil
}

func wrapEntry(s *Scheduler, pid int, fn EntryFunc) coopthread.Func {
	return func(cap *coopthread.Cap, arg any) any {
		sys := &Syscalls{sched: s, pid: pid}
		argv, _ := arg.([]string)
		status := fn(sys, argv)
		s.k_proc_exit(pid, status|StatusExited)
		return status
	}
}

// initEntry is the init process's body: reap whatever zombies are
// available without blocking, then yield. The scheduler's init-
// throttling rule (below) keeps this from spinning.
func initEntry(sys *Syscalls, _ []string) int {
	for {
		for {
			pid, _, _ := sys.Waitpid(WaitAny, true)
			if pid <= 0 {
				break
			}
		}
		sys.cap().SuspendSelf()
	}
}

func (s *Scheduler) newProcess(ppid int, priority Priority, command string, argv []string) *PCB {
	pid := s.nextPid
	s.nextPid++
	p := newPCB(pid, ppid, priority, command, argv, s.Config.ProcessFDTableSize)
	s.procs[pid] = p
	return p
}

// Spawn creates a new PCB, deep-copies the parent's per-process fd
// table, starts its thread suspended, and places it in its ready queue.
func (s *Scheduler) Spawn(fn EntryFunc, argv []string, priority Priority, ppid int) (int, error) {
	parent, ok := s.procs[ppid]
	if !ok {
		return 0, kerrno.ENoSuchProcess
	}
	command := ""
	if len(argv) > 0 {
		command = argv[0]
	}
	child := s.newProcess(ppid, priority, command, argv)
	child.ProcessFDTable = deepCopyFDTable(parent.ProcessFDTable)
	parent.Children = append(parent.Children, child.Pid)
	child.Thread = coopthread.Start(wrapEntry(s, child.Pid, fn), argv)
	s.pushReady(child)
	s.Log.Event(s.quantum, penlog.OpCreate, child.Pid, int(priority), -1, command)
	return child.Pid, nil
}

// --- queue manipulation -------------------------------------------------

func removePid(q []int, pid int) ([]int, bool) {
	for i, v := range q {
		if v == pid {
			return append(q[:i], q[i+1:]...), true
		}
	}
	return q, false
}

// removeFromActiveQueue unlinks pid from whichever of ready/blocked/
// stopped currently holds it. Per spec §9's design note, it is
// tolerated (not an error) for the currently-running PCB to be absent
// from all of them — it is logically "removed" for its quantum.
func (s *Scheduler) removeFromActiveQueue(pid int) bool {
	for i := range s.ready {
		if q, ok := removePid(s.ready[i], pid); ok {
			s.ready[i] = q
			return true
		}
	}
	if q, ok := removePid(s.blocked, pid); ok {
		s.blocked = q
		return true
	}
	if q, ok := removePid(s.stopped, pid); ok {
		s.stopped = q
		return true
	}
	return false
}

func (s *Scheduler) pushReady(p *PCB) {
	p.State = StateRunning
	s.ready[p.Priority] = append(s.ready[p.Priority], p.Pid)
}

func (s *Scheduler) pushBlocked(p *PCB) {
	p.State = StateBlocked
	s.blocked = append(s.blocked, p.Pid)
}

func (s *Scheduler) pushStopped(p *PCB) {
	p.State = StateStopped
	s.stopped = append(s.stopped, p.Pid)
}

func (s *Scheduler) pushZombie(p *PCB) {
	p.State = StateZombied
	s.zombie = append(s.zombie, p.Pid)
}

// --- selection -----------------------------------------------------------

// pickReady implements the 19-slot weighted pattern with same-tick
// priority fallthrough (High → Medium → Low), plus the init-throttling
// rule: init is only eligible when zombies await reaping or the shell
// has not yet appeared.
func (s *Scheduler) pickReady() (pid int, ok bool) {
	pattern := s.Config.SchedulePattern
	want := Priority(pattern[s.quantum%len(pattern)])
	order := []Priority{want}
	for p := Priority(0); p < 3; p++ {
		if p != want {
			order = append(order, p)
		}
	}
	for _, pr := range order {
		for _, candidate := range s.ready[pr] {
			if candidate == InitPid && !s.initEligible() {
				continue
			}
			s.ready[pr], _ = removePid(s.ready[pr], candidate)
			return candidate, true
		}
	}
	return 0, false
}

func (s *Scheduler) initEligible() bool {
	return len(s.zombie) > 0 || !s.shellStarted
}

// --- tick ------------------------------------------------------------------

// Tick runs one scheduler quantum (spec §4.2). It returns false once
// Logout has been requested; the first Tick after Logout runs nothing.
func (s *Scheduler) Tick() bool {
	if s.loggedOut {
		return false
	}

	for _, pid := range append([]int(nil), s.blocked...) {
		p := s.procs[pid]
		if p.SleepTime > 0 {
			p.SleepTime -= 0.1
			if p.SleepTime <= 0 {
				p.SleepTime = 0
				s.unblock(p)
			}
		}
	}

	pid, ok := s.pickReady()
	if !ok {
		return !s.loggedOut
	}

	p := s.procs[pid]
	s.current = pid
	s.Log.Event(s.quantum, penlog.OpSchedule, pid, int(p.Priority), -1, p.Command)
	p.Thread.Continue()
	s.current = 0

	switch p.State {
	case StateZombied, StateStopped, StateBlocked:
		// Left wherever k_proc_exit/k_stop_process/pushBlocked already moved it.
	default:
		s.pushReady(p)
	}

	s.quantum++
	return !s.loggedOut
}

// unblock moves a blocked PCB whose sleep has expired back to ready.
func (s *Scheduler) unblock(p *PCB) {
	if q, ok := removePid(s.blocked, p.Pid); ok {
		s.blocked = q
	}
	s.Log.Event(s.quantum, penlog.OpUnblocked, p.Pid, int(p.Priority), -1, p.Command)
	s.pushReady(p)
}

// Current returns the pid of the PCB currently executing its quantum,
// or 0 if none (between quanta).
func (s *Scheduler) Current() int { return s.current }

// Quantum returns the current quantum counter.
func (s *Scheduler) Quantum() int { return s.quantum }

// Lookup returns the PCB for pid, if it still exists in the process
// table (including zombies awaiting reaping).
func (s *Scheduler) Lookup(pid int) (*PCB, bool) {
	p, ok := s.procs[pid]
	return p, ok
}
