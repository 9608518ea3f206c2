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

// Package kerrno defines the closed taxonomy of negative error codes
// returned by PennOS's kernel and filesystem layers.
//
// Kernel functions return an Errno directly instead of wrapping it in
// errors.New, so callers can compare codes (err == kerrno.EPidNotFound)
// the way the spec's syscall layer does when it stashes the code into
// a PCB's errnumber field for a later perror-equivalent.
package kerrno

import "fmt"

// Errno is a negative integer error code from the closed taxonomy.
type Errno int

// Process-layer codes.
const (
	ENoInit Errno = -(iota + 1)
	EInitExists
	EBadArgv
	ENoSuchProcess
	ENoCurrentProcess
	ETriedToKillInit
	EContinueNonStopped
	EStopStopped
	EStopNonActive
	EPidNotFound
	ERunningNotInReady
	EInvalidPCB
	EInvalidSchedulerState
	EInvalidArgument
	ETcsetNoTerminalControl
	EAllocationFailed
)

// Filesystem-layer codes.
const (
	EInvalidFilename Errno = -(iota + 100)
	EFileNotFound
	EFileExistsReadonly
	EWrongPermissions
	EAlreadyWriteLocked
	ENoEmptyBlocks
	EFdOutOfRange
	EFdNotInTable
	ESpecialFd
	ESeekOverflow
	ESeekNegative
	EBadWhence
	EBadMode
	EReadFailed
	EWriteFailed
)

var messages = map[Errno]string{
	ENoInit:                 "scheduler has no init process",
	EInitExists:             "init process already exists",
	EBadArgv:                "invalid argv",
	ENoSuchProcess:          "no such process",
	ENoCurrentProcess:       "no process is currently executing",
	ETriedToKillInit:        "cannot kill init",
	EContinueNonStopped:     "cannot continue a process that is not stopped",
	EStopStopped:            "process is already stopped",
	EStopNonActive:          "cannot stop a process that is not active",
	EPidNotFound:            "pid not found",
	ERunningNotInReady:      "running process unexpectedly found in ready queue",
	EInvalidPCB:             "invalid process control block",
	EInvalidSchedulerState:  "invalid scheduler state",
	EInvalidArgument:        "invalid argument",
	ETcsetNoTerminalControl: "caller does not own the terminal",
	EAllocationFailed:       "allocation failed",

	EInvalidFilename:    "invalid filename",
	EFileNotFound:       "file not found",
	EFileExistsReadonly: "file exists and is not writable",
	EWrongPermissions:   "wrong permissions",
	EAlreadyWriteLocked: "file is already open for writing",
	ENoEmptyBlocks:      "no empty blocks left on device",
	EFdOutOfRange:       "file descriptor out of range",
	EFdNotInTable:       "file descriptor not in table",
	ESpecialFd:          "special file descriptor",
	ESeekOverflow:       "seek offset overflows file",
	ESeekNegative:       "seek offset is negative",
	EBadWhence:          "invalid whence value",
	EBadMode:            "invalid open mode",
	EReadFailed:         "read failed",
	EWriteFailed:        "write failed",
}

// Error implements error so an Errno can be used anywhere an error is
// expected, while still supporting direct equality comparison against
// the named constants above.
func (e Errno) Error() string {
	if msg, ok := messages[e]; ok {
		return msg
	}
	return fmt.Sprintf("errno %d", int(e))
}

// Strerror formats prefix: <message>\n the way u_perror does in the
// original shell layer.
func Strerror(prefix string, e Errno) string {
	return fmt.Sprintf("%s: %s\n", prefix, e.Error())
}
