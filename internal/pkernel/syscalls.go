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
	"fmt"
	"os"

	"github.com/pennstudent/pennos/internal/coopthread"
	"github.com/pennstudent/pennos/internal/kerrno"
	"github.com/pennstudent/pennos/internal/penlog"
	"github.com/pennstudent/pennos/internal/pfat"
)

// formatLsLine renders one directory entry as "perm size mtime name",
// spec §4.3's ls line format.
func formatLsLine(e pfat.DirEntry) string {
	return fmt.Sprintf("%s %d %d %s", pfat.PermString(e.Perm), e.Size, e.Mtime, e.Name)
}

// Syscalls is the shell-facing surface (spec §4.4, §6), bound to one
// running PCB. A process's entry function receives exactly one of
// these and must not retain it past its own lifetime.
type Syscalls struct {
	sched *Scheduler
	pid   int
}

func (sys *Syscalls) self() *PCB { return sys.sched.procs[sys.pid] }

func (sys *Syscalls) cap() *coopthread.Cap { return sys.self().Thread }

func (sys *Syscalls) fail(code kerrno.Errno) int {
	sys.self().Errnumber = code
	return -1
}

// Spawn starts fn as a new child of the caller (s_spawn).
func (sys *Syscalls) Spawn(fn EntryFunc, argv []string, priority Priority) int {
	pid, err := sys.sched.Spawn(fn, argv, priority, sys.pid)
	if err != nil {
		return sys.fail(err.(kerrno.Errno))
	}
	return pid
}

// Waitpid implements s_waitpid / k_waitpid (spec §4.2). It blocks by
// suspending the caller's own thread and looping on resume, exactly as
// the spec's recursive description prescribes.
func (sys *Syscalls) Waitpid(pid int, nohang bool) (int, int, error) {
	for {
		p := sys.self()
		reaped, status, done, err := sys.sched.k_waitpid_attempt(sys.pid, pid)
		if err != nil {
			return -1, 0, err
		}
		if done {
			return reaped, status, nil
		}
		if nohang {
			return 0, 0, nil
		}
		p.WaitedChild = pid
		sys.sched.pushBlocked(p)
		sys.sched.Log.Event(sys.sched.quantum, penlog.OpBlocked, p.Pid, int(p.Priority), -1, p.Command)
		sys.cap().SuspendSelf()
	}
}

// k_waitpid_attempt performs one non-blocking pass of k_waitpid's
// cascade: (reaped pid, status, done, err). done is true when the call
// can return immediately (a zombie was reaped, a stopped child was
// found, or an error occurred); false means the caller should block.
func (s *Scheduler) k_waitpid_attempt(callerPid, target int) (reaped int, status int, done bool, err error) {
	caller := s.procs[callerPid]

	if target == WaitAny {
		if len(caller.Children) == 0 {
			return 0, 0, true, kerrno.EPidNotFound
		}
		for _, cpid := range caller.Children {
			c := s.procs[cpid]
			if c.State == StateZombied {
				return s.reap(caller, c), c.ExitStatus, true, nil
			}
		}
		for _, cpid := range caller.Children {
			c := s.procs[cpid]
			if c.State == StateStopped {
				return 0, 0, true, nil
			}
		}
		return 0, 0, false, nil
	}

	c, ok := s.procs[target]
	if !ok || c.Ppid != callerPid {
		return 0, 0, true, kerrno.EPidNotFound
	}
	if c.State == StateZombied {
		return s.reap(caller, c), c.ExitStatus, true, nil
	}
	if c.State == StateStopped {
		return 0, 0, true, nil
	}
	return 0, 0, false, nil
}

func (s *Scheduler) reap(parent, child *PCB) int {
	if q, ok := removePid(s.zombie, child.Pid); ok {
		s.zombie = q
	}
	parent.Children, _ = removePid(parent.Children, child.Pid)
	s.Log.Event(s.quantum, penlog.OpWaited, child.Pid, int(child.Priority), -1, child.Command)
	child.Thread.Join()
	delete(s.procs, child.Pid)
	return child.Pid
}

// Exit implements s_exit: it never returns to the caller.
func (sys *Syscalls) Exit(status int) {
	sys.sched.k_proc_exit(sys.pid, status|StatusExited)
	sys.cap().Exit(status)
}

// k_proc_exit zombifies pid, wakes at most one waiting parent,
// reparents its children to init, and force-terminates its underlying
// thread (spec §4.2 step 6). When pid is not the PCB currently
// executing its quantum, that thread is parked in Start's initial wait
// or in SuspendSelf with no further chance to reach its own exit path,
// so it is driven to completion here via Terminate — otherwise it would
// stay zombied forever without ever finishing, and a later Waitpid's
// reap would block indefinitely on Thread.Join(). The currently
// executing PCB (a normal return from its entry function, or an
// explicit Exit) is left to terminate itself, since Terminate cannot be
// called on a thread's own running goroutine without deadlocking it.
func (s *Scheduler) k_proc_exit(pid int, status int) {
	p, ok := s.procs[pid]
	if !ok || p.State == StateZombied {
		return
	}
	p.State = StateZombied
	p.ExitStatus = status
	s.removeFromActiveQueue(pid) // tolerated if pid is the current PCB and absent
	s.pushZombie(p)
	s.Log.Event(s.quantum, penlog.OpZombie, pid, int(p.Priority), -1, p.Command)

	if s.terminalPid == pid && p.Ppid != 0 {
		s.terminalPid = p.Ppid
	}

	s.wakeOneWaiter(p)
	s.reparentChildren(p)

	if pid != s.current {
		p.Thread.Terminate()
	}
}

// wakeOneWaiter scans the blocked queue for a PCB waiting specifically
// on p, or waiting on any child with p among its children, and unblocks
// the first match (spec's wake-one law).
func (s *Scheduler) wakeOneWaiter(p *PCB) {
	for _, bpid := range s.blocked {
		b := s.procs[bpid]
		if b.WaitedChild == p.Pid || (b.WaitedChild == WaitAny && contains(b.Children, p.Pid)) {
			s.unblock(b)
			return
		}
	}
}

func contains(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// reparentChildren adopts p's live children into init, atomically with
// respect to the rest of p's exit (spec's orphan-adoption law).
func (s *Scheduler) reparentChildren(p *PCB) {
	initPCB := s.procs[InitPid]
	for _, cpid := range p.Children {
		c, ok := s.procs[cpid]
		if !ok {
			continue
		}
		c.Ppid = InitPid
		initPCB.Children = append(initPCB.Children, cpid)
		s.Log.Event(s.quantum, penlog.OpOrphan, cpid, int(c.Priority), -1, c.Command)
	}
	p.Children = nil
}

// Kill implements s_kill for the five recognized signals. Killing pid 1
// fails unconditionally, regardless of which signal is sent.
func (sys *Syscalls) Kill(pid int, sig Signal) int {
	if pid == InitPid {
		return sys.fail(kerrno.ETriedToKillInit)
	}
	target, ok := sys.sched.procs[pid]
	if !ok {
		return sys.fail(kerrno.EPidNotFound)
	}
	switch sig {
	case SigTerm:
		sys.sched.k_proc_exit(pid, StatusExited)
	case SigStop:
		if err := sys.sched.k_stop_process(pid); err != nil {
			return sys.fail(err.(kerrno.Errno))
		}
	case SigCont:
		if err := sys.sched.k_continue_process(pid); err != nil {
			return sys.fail(err.(kerrno.Errno))
		}
	case SigInt:
		if target.IgnoreSigint {
			return 0
		}
		sys.sched.k_proc_exit(pid, StatusExited)
	case SigTstp:
		if target.IgnoreSigtstp {
			return 0
		}
		if err := sys.sched.k_stop_process(pid); err != nil {
			return sys.fail(err.(kerrno.Errno))
		}
	}
	return 0
}

// k_stop_process moves pid to the stopped queue and wakes a waiting
// parent (spec §4.2).
func (s *Scheduler) k_stop_process(pid int) error {
	if pid == InitPid {
		return kerrno.EStopNonActive
	}
	p, ok := s.procs[pid]
	if !ok {
		return kerrno.EPidNotFound
	}
	if p.State == StateStopped {
		return kerrno.EStopStopped
	}
	if p.State == StateZombied {
		return kerrno.EStopNonActive
	}
	if pid != s.current && !s.removeFromActiveQueue(pid) {
		return kerrno.EStopNonActive
	}
	s.pushStopped(p)
	s.Log.Event(s.quantum, penlog.OpStopped, pid, int(p.Priority), -1, p.Command)
	if parent, ok := s.procs[p.Ppid]; ok && parent.State == StateBlocked {
		if parent.WaitedChild == pid || parent.WaitedChild == WaitAny {
			s.unblock(parent)
		}
	}
	return nil
}

// k_continue_process moves pid from stopped back into the appropriate
// ready queue.
func (s *Scheduler) k_continue_process(pid int) error {
	p, ok := s.procs[pid]
	if !ok {
		return kerrno.EPidNotFound
	}
	if p.State != StateStopped {
		return kerrno.EContinueNonStopped
	}
	q, found := removePid(s.stopped, pid)
	if !found {
		return kerrno.EInvalidSchedulerState
	}
	s.stopped = q
	s.pushReady(p)
	s.Log.Event(s.quantum, penlog.OpContinued, pid, int(p.Priority), -1, p.Command)
	return nil
}

// Nice implements s_nice / k_set_priority: update the field, and if the
// PCB is currently in a ready queue, move it to the new one.
func (sys *Syscalls) Nice(pid int, priority Priority) int {
	p, ok := sys.sched.procs[pid]
	if !ok {
		return sys.fail(kerrno.EPidNotFound)
	}
	old := p.Priority
	if p.State == StateRunning && pid != sys.sched.current {
		if q, found := removePid(sys.sched.ready[old], pid); found {
			sys.sched.ready[old] = q
			p.Priority = priority
			sys.sched.ready[priority] = append(sys.sched.ready[priority], pid)
			sys.sched.Log.Event(sys.sched.quantum, penlog.OpNice, pid, int(old), int(priority), p.Command)
			return 0
		}
	}
	p.Priority = priority
	sys.sched.Log.Event(sys.sched.quantum, penlog.OpNice, pid, int(old), int(priority), p.Command)
	return 0
}

// Sleep implements s_sleep: set sleep_time, block, and suspend. It is
// restartable — a spurious wake loops while sleep_time remains
// positive, per spec §4.2.
func (sys *Syscalls) Sleep(ticks float64) {
	p := sys.self()
	for ticks > 0 {
		p.SleepTime = ticks
		sys.sched.pushBlocked(p)
		sys.sched.Log.Event(sys.sched.quantum, penlog.OpSleeping, p.Pid, int(p.Priority), -1, p.Command)
		sys.cap().SuspendSelf()
		ticks = p.SleepTime
	}
}

// Tcsetpid implements s_tcsetpid: only the current terminal owner may
// transfer control.
func (sys *Syscalls) Tcsetpid(pid int) int {
	if sys.sched.terminalPid != sys.pid {
		return sys.fail(kerrno.ETcsetNoTerminalControl)
	}
	if _, ok := sys.sched.procs[pid]; !ok {
		return sys.fail(kerrno.EPidNotFound)
	}
	sys.sched.terminalPid = pid
	return 0
}

// IgnoreSigint sets/clears the caller's SIGINT-ignore flag.
func (sys *Syscalls) IgnoreSigint(ignore bool) { sys.self().IgnoreSigint = ignore }

// IgnoreSigtstp sets/clears the caller's SIGTSTP-ignore flag.
func (sys *Syscalls) IgnoreSigtstp(ignore bool) { sys.self().IgnoreSigtstp = ignore }

// Logout requests that the scheduler loop exit at its next iteration
// (spec §4.2's Logout).
func (sys *Syscalls) Logout() { sys.sched.loggedOut = true }

// --- filesystem syscalls (spec §4.3, §4.4) ---------------------------------

func (sys *Syscalls) allocLocalFD() (int, error) {
	table := sys.self().ProcessFDTable
	for i, e := range table {
		if !e.InUse {
			return i, nil
		}
	}
	return 0, kerrno.EFdOutOfRange
}

// Open implements s_open: translate to a global fd via the filesystem,
// then bind it to a free local slot.
func (sys *Syscalls) Open(name string, mode int) int {
	gfd, offset, err := sys.sched.FS.Open(name, mode)
	if err != nil {
		return sys.fail(err.(kerrno.Errno))
	}
	local, lerr := sys.allocLocalFD()
	if lerr != nil {
		sys.sched.FS.Close(gfd, mode)
		return sys.fail(lerr.(kerrno.Errno))
	}
	sys.self().ProcessFDTable[local] = ProcessFDEntry{InUse: true, GlobalFD: gfd, Offset: offset, Mode: mode}
	return local
}

// ownsStdin reports whether the caller may perform stdin I/O without
// being auto-stopped (spec §4.4's TTY-background simulation).
func (sys *Syscalls) ownsStdin(local int) bool {
	return local != FdStdin || sys.sched.terminalPid == sys.pid
}

// Read implements s_read. A background read from stdin stops the
// caller as if it received SIGSTOP, matching the TTY simulation.
func (sys *Syscalls) Read(local int, buf []byte) int {
	p := sys.self()
	if local < 0 || local >= len(p.ProcessFDTable) || !p.ProcessFDTable[local].InUse {
		return sys.fail(kerrno.EFdOutOfRange)
	}
	if !sys.ownsStdin(local) {
		sys.sched.k_stop_process(sys.pid)
		sys.cap().SuspendSelf()
	}
	if local == FdStdin {
		return 0 // no console input source wired into this kernel core
	}
	entry := &p.ProcessFDTable[local]
	n, newOffset, err := sys.sched.FS.Read(entry.GlobalFD, entry.Mode, entry.Offset, buf)
	if err != nil {
		return sys.fail(err.(kerrno.Errno))
	}
	entry.Offset = newOffset
	return n
}

// Write implements s_write.
func (sys *Syscalls) Write(local int, data []byte) int {
	p := sys.self()
	if local < 0 || local >= len(p.ProcessFDTable) || !p.ProcessFDTable[local].InUse {
		return sys.fail(kerrno.EFdOutOfRange)
	}
	// Terminal streams bypass pfat entirely and go to the host's streams.
	if local == FdStdout {
		n, _ := os.Stdout.Write(data)
		return n
	}
	if local == FdStderr {
		n, _ := os.Stderr.Write(data)
		return n
	}
	entry := &p.ProcessFDTable[local]
	n, newOffset, err := sys.sched.FS.Write(entry.GlobalFD, entry.Mode, entry.Offset, data)
	if err != nil {
		return sys.fail(err.(kerrno.Errno))
	}
	entry.Offset = newOffset
	return n
}

// Lseek implements s_lseek. Special fds return the special-fd sentinel
// that write then treats as a no-op success (spec §4.3).
func (sys *Syscalls) Lseek(local int, whence int, offset int64) int {
	p := sys.self()
	if local < 0 || local >= len(p.ProcessFDTable) || !p.ProcessFDTable[local].InUse {
		return sys.fail(kerrno.EFdOutOfRange)
	}
	if local == FdStdin || local == FdStdout || local == FdStderr {
		return sys.fail(kerrno.ESpecialFd)
	}
	entry := &p.ProcessFDTable[local]
	newOffset, err := sys.sched.FS.Lseek(entry.GlobalFD, whence, offset, entry.Offset)
	if err != nil {
		return sys.fail(err.(kerrno.Errno))
	}
	entry.Offset = newOffset
	return int(newOffset)
}

// Close implements s_close.
func (sys *Syscalls) Close(local int) int {
	p := sys.self()
	if local < 0 || local >= len(p.ProcessFDTable) || !p.ProcessFDTable[local].InUse {
		return sys.fail(kerrno.EFdOutOfRange)
	}
	entry := p.ProcessFDTable[local]
	p.ProcessFDTable[local] = ProcessFDEntry{}
	if local == FdStdin || local == FdStdout || local == FdStderr {
		return 0
	}
	if err := sys.sched.FS.Close(entry.GlobalFD, entry.Mode); err != nil {
		return sys.fail(err.(kerrno.Errno))
	}
	return 0
}

// Unlink implements s_unlink.
func (sys *Syscalls) Unlink(name string) int {
	if err := sys.sched.FS.Unlink(name); err != nil {
		return sys.fail(err.(kerrno.Errno))
	}
	return 0
}

// Ls implements s_ls, returning formatted lines for the shell to print.
func (sys *Syscalls) Ls() ([]string, int) {
	entries, err := sys.sched.FS.ListEntries()
	if err != nil {
		return nil, sys.fail(err.(kerrno.Errno))
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, formatLsLine(e))
	}
	return out, 0
}

// Chmod implements s_chmod.
func (sys *Syscalls) Chmod(name string, op int, bits uint8) int {
	if err := sys.sched.FS.Chmod(name, op, bits); err != nil {
		return sys.fail(err.(kerrno.Errno))
	}
	return 0
}

// Mv implements s_mv.
func (sys *Syscalls) Mv(src, dst string) int {
	if err := sys.sched.FS.Mv(src, dst); err != nil {
		return sys.fail(err.(kerrno.Errno))
	}
	return 0
}

// FprintfShort implements s_fprintf_short: a minimal formatted write to
// stdout/stderr, bypassing the filesystem exactly as Write does for
// those two fds.
func (sys *Syscalls) FprintfShort(local int, msg string) int {
	return sys.Write(local, []byte(msg))
}
