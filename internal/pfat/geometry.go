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

// Package pfat implements the FAT16-style filesystem core: image
// mount/unmount, block-chain allocation, the root directory, the
// global and per-process-shared open-file-description table, and the
// open/read/write/lseek/close/unlink/ls/chmod/mv syscall layer
// (spec §4.3, §4.4).
package pfat

import "github.com/pennstudent/pennos/internal/kerrno"

// Open modes. The original source conflated F_READ/F_WRITE across two
// headers ({0,1,2} vs {1,0,2}); spec §9 picks READ=0, WRITE=1, APPEND=2
// and this package uses that encoding exclusively.
const (
	FRead   = 0
	FWrite  = 1
	FAppend = 2
)

// Lseek whence values.
const (
	FSeekSet = 1
	FSeekCur = 2
	FSeekEnd = 3
)

// Permission bits. X requires R.
const (
	PermR = 4
	PermW = 2
	PermX = 1
)

// Chmod operators.
const (
	ChmodSet    = 0
	ChmodAdd    = 1
	ChmodRemove = 2
)

// Directory entry type byte.
const (
	TypeFile = 0
)

const (
	freeBlock = 0x0000
	chainEnd  = 0xFFFF

	dirEntrySize = 64
	nameLen      = 32

	maxBlocksInFat      = 32
	maxBlockSizeConfig  = 4
	geometryEntry       = 0
	rootDirInitialEntry = 1
	rootDirInitialBlock = 1
	fatEntrySizeBytes   = 2
)

// blockSizes maps a block_size_config nibble (0..4) to its byte size.
var blockSizes = [5]int{256, 512, 1024, 2048, 4096}

// BlockSizeForConfig returns the block size in bytes for a given
// block_size_config, or an error if out of range.
func BlockSizeForConfig(cfg int) (int, error) {
	if cfg < 0 || cfg > maxBlockSizeConfig {
		return 0, kerrno.EInvalidArgument
	}
	return blockSizes[cfg], nil
}

// dataBlockCount returns the number of addressable data blocks for a
// given geometry, per spec §6: (fatEntries - 2) when block_size_config
// is 4, otherwise (fatEntries - 1).
func dataBlockCount(fatEntries int, blockSizeConfig int) int {
	if blockSizeConfig == 4 {
		return fatEntries - 2
	}
	return fatEntries - 1
}
