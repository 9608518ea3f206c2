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

// Command pennos boots the scheduler kernel against a mounted FAT16
// image: `pennos <fat_image> [log_file]` (spec §6). The shell REPL,
// command parser, and job-control surface that would normally run atop
// this kernel are out of the core's scope (spec §1) and are not
// implemented here; boot instead hands control to a minimal init/shell
// pair so the kernel's own lifecycle can be observed end to end.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&bootCommand{}, "")
	subcommands.Register(&selftestCommand{}, "")

	flag.Parse()
	// A bare `pennos <fat_image> [log_file]` runs the boot subcommand.
	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "boot", "selftest", "help", "flags":
		default:
			flag.CommandLine.Parse(append([]string{"boot"}, flag.Args()...))
		}
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	os.Exit(int(subcommands.Execute(context.Background())))
}
