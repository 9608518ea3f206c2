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

// Package pkernel is the scheduler kernel: PCB lifecycle, the three
// priority-weighted ready queues plus blocked/stopped/zombie queues,
// wait/exit rendezvous, signal dispatch, and the shell-facing syscall
// surface built on top of internal/coopthread and internal/pfat
// (spec §3, §4.2, §4.4).
package pkernel

import (
	"github.com/pennstudent/pennos/internal/coopthread"
	"github.com/pennstudent/pennos/internal/kerrno"
)

// State is a PCB's scheduling state.
type State int

const (
	StateRunning State = iota
	StateBlocked
	StateStopped
	StateZombied
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateStopped:
		return "stopped"
	case StateZombied:
		return "zombied"
	default:
		return "unknown"
	}
}

// Priority is one of the three ready-queue classes.
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityMedium Priority = 1
	PriorityLow    Priority = 2
)

// Exit status bits (spec §6).
const (
	StatusExited   = 1 << 0
	StatusStopped  = 1 << 1
	StatusSignaled = 1 << 2
)

// Signals recognized by s_kill.
type Signal int

const (
	SigTerm Signal = iota
	SigStop
	SigCont
	SigInt
	SigTstp
)

// Sentinel values for PCB.WaitedChild. No real pid is ever 0 or -1, so
// both are safe to use as sentinels alongside real pids.
const (
	WaitNone = 0  // not currently blocked in waitpid
	WaitAny  = -1 // blocked waiting for any child
)

// InitPid is the reserved pid of the init process.
const InitPid = 1

// ProcessFDEntry is one row of a PCB's per-process fd table (spec §3,
// §4.4): a local fd maps to a global fd plus its own mode and cursor.
type ProcessFDEntry struct {
	InUse    bool
	GlobalFD int
	Offset   int64
	Mode     int
}

// Special, kernel-reserved local fds preloaded into every new PCB.
const (
	FdStdin  = 0
	FdStdout = 1
	FdStderr = 2
)

// PCB is one process's complete state (spec §3).
type PCB struct {
	Pid      int
	Ppid     int
	Pgid     int
	IsLeader bool

	State       State
	Priority    Priority
	SleepTime   float64
	Command     string
	Argv        []string
	WaitedChild int

	Children []int

	ProcessFDTable []ProcessFDEntry

	ExitStatus    int
	IgnoreSigint  bool
	IgnoreSigtstp bool
	Errnumber     kerrno.Errno

	Thread *coopthread.Cap
}

// specialGlobalFD marks a per-process fd slot that refers to a
// terminal stream rather than a pfat global fd.
const specialGlobalFD = -1

func newPCB(pid, ppid int, priority Priority, command string, argv []string, fdTableSize int) *PCB {
	argvCopy := make([]string, len(argv))
	copy(argvCopy, argv)
	table := make([]ProcessFDEntry, fdTableSize)
	table[FdStdin] = ProcessFDEntry{InUse: true, GlobalFD: specialGlobalFD, Mode: fdModeRead}
	table[FdStdout] = ProcessFDEntry{InUse: true, GlobalFD: specialGlobalFD, Mode: fdModeWrite}
	table[FdStderr] = ProcessFDEntry{InUse: true, GlobalFD: specialGlobalFD, Mode: fdModeWrite}
	return &PCB{
		Pid:            pid,
		Ppid:           ppid,
		Pgid:           pid,
		IsLeader:       true,
		State:          StateRunning,
		Priority:       priority,
		Command:        command,
		Argv:           argvCopy,
		WaitedChild:    WaitNone,
		ProcessFDTable: table,
	}
}

// fdModeRead/fdModeWrite mirror pfat.FRead/pfat.FWrite without importing
// pfat here, since the terminal streams never touch the filesystem.
const (
	fdModeRead  = 0
	fdModeWrite = 1
)

// deepCopyFDTable clones a parent's per-process fd table for a spawned
// child (spec §3's "inherit parent's process-fd table").
func deepCopyFDTable(parent []ProcessFDEntry) []ProcessFDEntry {
	out := make([]ProcessFDEntry, len(parent))
	copy(out, parent)
	return out
}
