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

// Package penlog is the scheduler's own tab-separated trace writer
// (spec §6), kept deliberately separate from the daemon's structured
// operational logger (see cmd/pennos, which uses logrus): the wire
// format here is a graded artifact, not free-form prose.
package penlog

import (
	"fmt"
	"io"
	"os"
)

// Op names the scheduling events that can appear in a trace line.
type Op string

const (
	OpSchedule  Op = "SCHEDULE"
	OpCreate    Op = "CREATE"
	OpExited    Op = "EXITED"
	OpZombie    Op = "ZOMBIE"
	OpOrphan    Op = "ORPHAN"
	OpWaited    Op = "WAITED"
	OpNice      Op = "NICE"
	OpBlocked   Op = "BLOCKED"
	OpUnblocked Op = "UNBLOCKED"
	OpSleeping  Op = "SLEEPING"
	OpStopped   Op = "STOPPED"
	OpContinued Op = "CONTINUED"
	OpSignaled  Op = "SIGNALED"
)

// Logger writes scheduling trace lines to a single underlying writer.
// It is not safe for concurrent use from multiple goroutines, which is
// fine: the spec's cooperative scheduling model guarantees only one
// caller at a time (the scheduler loop between quanta, or the running
// PCB's thread inside a syscall).
type Logger struct {
	w io.Writer
}

// New returns a Logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{w: w}
}

// Open opens path for append and wraps it in a Logger, or falls back to
// stderr if path is empty, matching the optional [log_file] argv of
// `pennos <fat_image> [log_file]`.
func Open(path string) (*Logger, *os.File, error) {
	if path == "" {
		return New(os.Stderr), nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return New(f), f, nil
}

// Event writes one tab-separated trace line:
//
//	[<quantum>]	<OP>	<pid>	<priority-or-old>	<new-or-blank>	<command>
//
// newPriority is omitted (left blank) when it is negative, which is the
// common case for events that only report a single priority/state.
func (l *Logger) Event(quantum int, op Op, pid int, priority int, newPriority int, command string) {
	newField := ""
	if newPriority >= 0 {
		newField = fmt.Sprintf("%d", newPriority)
	}
	fmt.Fprintf(l.w, "[%d]\t%s\t%d\t%d\t%s\t%s\n", quantum, op, pid, priority, newField, command)
}
