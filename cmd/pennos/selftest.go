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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"github.com/pennstudent/pennos/internal/pennconfig"
	"github.com/pennstudent/pennos/internal/penlog"
	"github.com/pennstudent/pennos/internal/pfat"
	"github.com/pennstudent/pennos/internal/pkernel"
)

// selftestCommand runs a quick in-process exercise of the scheduler and
// filesystem against a scratch image, for a build-time sanity check
// without needing `go test` (spec §8's end-to-end scenarios 1 and 2,
// abbreviated).
type selftestCommand struct{}

func (*selftestCommand) Name() string     { return "selftest" }
func (*selftestCommand) Synopsis() string { return "exercise the scheduler and filesystem once" }
func (*selftestCommand) Usage() string {
	return "selftest - mkfs/mount a scratch image, spawn and reap a few children, round-trip a file\n"
}
func (*selftestCommand) SetFlags(*flag.FlagSet) {}

func (*selftestCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	dir, err := os.MkdirTemp("", "pennos-selftest-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "selftest: %v\n", err)
		return subcommands.ExitFailure
	}
	defer os.RemoveAll(dir)

	imagePath := filepath.Join(dir, "selftest.fat")
	if err := pfat.Mkfs(imagePath, 2, 0); err != nil {
		fmt.Fprintf(os.Stderr, "selftest: mkfs: %v\n", err)
		return subcommands.ExitFailure
	}
	fs, err := pfat.Mount(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "selftest: mount: %v\n", err)
		return subcommands.ExitFailure
	}
	defer fs.Unmount()

	if err := exerciseFile(fs); err != nil {
		fmt.Fprintf(os.Stderr, "selftest: filesystem check failed: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := exerciseScheduler(fs); err != nil {
		fmt.Fprintf(os.Stderr, "selftest: scheduler check failed: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Println("selftest: ok")
	return subcommands.ExitSuccess
}

// exerciseFile runs spec §8 scenario 1: write "hello world" to a fresh
// file, close it, reopen it for reading, and read it back from offset 0.
func exerciseFile(fs *pfat.FileSystem) error {
	gfd, _, err := fs.Open("a", pfat.FWrite)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	payload := []byte("hello world")
	if _, _, err := fs.Write(gfd, pfat.FWrite, 0, payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := fs.Close(gfd, pfat.FWrite); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	rfd, _, err := fs.Open("a", pfat.FRead)
	if err != nil {
		return fmt.Errorf("reopen: %w", err)
	}
	defer fs.Close(rfd, pfat.FRead)
	buf := make([]byte, 32)
	n, _, err := fs.Read(rfd, pfat.FRead, 0, buf)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if string(buf[:n]) != string(payload) {
		return fmt.Errorf("round trip mismatch: got %q, want %q", buf[:n], payload)
	}
	return nil
}

// exerciseScheduler runs spec §8 scenario 2: three children sleep and
// exit, the parent waits for all three and expects distinct pids.
func exerciseScheduler(fs *pfat.FileSystem) error {
	sched := pkernel.NewScheduler(pennconfig.Default(), fs, penlog.New(io.Discard))
	results := make(chan []int, 1)

	child := func(sys *pkernel.Syscalls, _ []string) int {
		sys.Sleep(3)
		return 0
	}
	parent := func(sys *pkernel.Syscalls, _ []string) int {
		var spawned []int
		for i := 0; i < 3; i++ {
			spawned = append(spawned, sys.Spawn(child, nil, pkernel.PriorityMedium))
		}
		var reaped []int
		for i := 0; i < 3; i++ {
			pid, _, _ := sys.Waitpid(pkernel.WaitAny, false)
			reaped = append(reaped, pid)
		}
		results <- reaped
		return 0
	}

	if _, err := sched.Boot(parent, nil); err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	for i := 0; i < 2000 && len(results) == 0; i++ {
		sched.Tick()
	}
	select {
	case reaped := <-results:
		seen := map[int]bool{}
		for _, pid := range reaped {
			if pid <= 0 || seen[pid] {
				return fmt.Errorf("unexpected reaped pid set: %v", reaped)
			}
			seen[pid] = true
		}
		return nil
	default:
		return fmt.Errorf("timed out waiting for children to be reaped")
	}
}
