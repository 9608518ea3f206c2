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

// Command mkfs writes a fresh PennOS FAT16 image: `mkfs <image>
// <blocks_in_fat> <block_size_config>` (spec §6). It is the standalone
// image-creation tool referenced by spec §1 as an external collaborator
// of the filesystem core.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/pennstudent/pennos/internal/pfat"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <image> <blocks_in_fat> <block_size_config>\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() != 3 {
		flag.Usage()
		os.Exit(2)
	}

	imagePath := flag.Arg(0)
	blocksInFat, err := strconv.Atoi(flag.Arg(1))
	if err != nil {
		logrus.WithError(err).Fatal("invalid blocks_in_fat")
	}
	blockSizeConfig, err := strconv.Atoi(flag.Arg(2))
	if err != nil {
		logrus.WithError(err).Fatal("invalid block_size_config")
	}

	if err := pfat.Mkfs(imagePath, blocksInFat, blockSizeConfig); err != nil {
		logrus.WithError(err).WithField("image", imagePath).Fatal("mkfs failed")
	}
	logrus.WithFields(logrus.Fields{
		"image":             imagePath,
		"blocks_in_fat":     blocksInFat,
		"block_size_config": blockSizeConfig,
	}).Info("image created")
}
