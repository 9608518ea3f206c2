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
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/pennstudent/pennos/internal/imagelock"
	"github.com/pennstudent/pennos/internal/penlog"
	"github.com/pennstudent/pennos/internal/pennconfig"
	"github.com/pennstudent/pennos/internal/pfat"
	"github.com/pennstudent/pennos/internal/pkernel"
	"github.com/pennstudent/pennos/internal/privdrop"
)

// imageLockTimeout bounds how long boot waits for a concurrently
// mounted image to become available before giving up.
const imageLockTimeout = 5 * time.Second

type bootCommand struct {
	configPath string
}

func (*bootCommand) Name() string     { return "boot" }
func (*bootCommand) Synopsis() string { return "mount a FAT image and run the scheduler" }
func (*bootCommand) Usage() string {
	return "boot <fat_image> [log_file] - mount fat_image and run the PennOS scheduler until logout\n"
}

func (b *bootCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.configPath, "config", "", "path to a TOML config file (optional)")
}

func (b *bootCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() < 1 || f.NArg() > 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	imagePath := f.Arg(0)
	logPath := ""
	if f.NArg() == 2 {
		logPath = f.Arg(1)
	}

	cfg, err := pennconfig.Load(b.configPath)
	if err != nil {
		logrus.WithError(err).Error("loading configuration")
		return subcommands.ExitFailure
	}

	lock, err := imagelock.Acquire(imagePath, imageLockTimeout)
	if err != nil {
		logrus.WithError(err).WithField("image", imagePath).Error("acquiring image lock")
		return subcommands.ExitFailure
	}
	defer lock.Release()

	if err := privdrop.Drop(); err != nil {
		logrus.WithError(err).Warn("dropping capabilities failed, continuing with current privileges")
	}

	fs, err := pfat.Mount(imagePath)
	if err != nil {
		logrus.WithError(err).WithField("image", imagePath).Error("mounting FAT image")
		return subcommands.ExitFailure
	}
	defer fs.Unmount()

	logger, logFile, err := penlog.Open(logPath)
	if err != nil {
		logrus.WithError(err).WithField("log_file", logPath).Error("opening scheduler trace log")
		return subcommands.ExitFailure
	}
	if logFile != nil {
		defer logFile.Close()
	}

	sched := pkernel.NewScheduler(cfg, fs, logger)
	shellPid, err := sched.Boot(shellEntry, nil)
	if err != nil {
		logrus.WithError(err).Error("booting scheduler")
		return subcommands.ExitFailure
	}
	logrus.WithFields(logrus.Fields{
		"image":     imagePath,
		"shell_pid": shellPid,
	}).Info("pennos booted")

	sched.Run()
	logrus.Info("pennos logged out cleanly")
	return subcommands.ExitSuccess
}

// shellEntry stands in for the line-oriented shell REPL, which spec §1
// places out of scope for this core: it exercises spawn/wait/logout
// once so a fresh boot can be observed end to end, then logs out.
func shellEntry(sys *pkernel.Syscalls, _ []string) int {
	sys.FprintfShort(pkernel.FdStdout, fmt.Sprintf("pennos: kernel online, quantum=%d\n", 0))
	pid := sys.Spawn(selfCheckEntry, []string{"selfcheck"}, pkernel.PriorityMedium)
	if pid > 0 {
		sys.Waitpid(pid, false)
	}
	sys.Logout()
	return 0
}

func selfCheckEntry(sys *pkernel.Syscalls, _ []string) int {
	sys.Sleep(2)
	return 0
}
