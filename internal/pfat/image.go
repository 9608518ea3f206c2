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

package pfat

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"

	"github.com/pennstudent/pennos/internal/kerrno"
)

// FileSystem is one mounted FAT16 image. Its mmap'd region is the
// entire image file (FAT region followed by the data region); every
// access goes through bounds-checked helpers below rather than raw
// slice arithmetic at call sites, per the design note in spec §9 about
// exposing the FAT as a mapped region.
//
// FileSystem carries no internal lock. Spec §5 guarantees at most one
// PCB's thread runs at a time, and internal/coopthread's channel
// handshake (Continue/SuspendSelf) establishes a real happens-before
// edge between successive runners in Go's memory model, so the single-
// runner invariant is sufficient here exactly as it is in the source
// kernel.
type FileSystem struct {
	path string
	file *os.File
	data []byte

	blocksInFat     int
	blockSizeConfig int
	blockSize       int
	fatEntries      int // number of 2-byte FAT cells
	dataBlocks      int // number of addressable data blocks, 1..dataBlocks
	dataRegionOff   int

	// openByDirSlot / globalTable together model the "global FD table"
	// of spec §3: exactly one GlobalFDEntry exists per currently-open
	// file, shared by every local fd referencing it.
	openByDirSlot map[int]int
	globalTable   map[int]*GlobalFDEntry
	nextGlobalFD  int
}

// GlobalFDEntry is the process-shared open-file record from spec §3.
type GlobalFDEntry struct {
	DirSlot    int
	Offset     int64
	RefCount   int
	WriteLock  bool
	Mode       int
	PermCache  uint8
	Size       uint32
	FirstBlock uint16
}

// Mkfs writes a fresh FAT16 image to path per spec §6's layout:
// geometry at entry 0, a one-block root directory chain terminated at
// entry 1, and a zeroed data region.
func Mkfs(path string, blocksInFat int, blockSizeConfig int) error {
	if blocksInFat < 1 || blocksInFat > maxBlocksInFat {
		return kerrno.EInvalidArgument
	}
	blockSize, err := BlockSizeForConfig(blockSizeConfig)
	if err != nil {
		return err
	}
	fatRegionSize := blocksInFat * blockSize
	fatEntries := fatRegionSize / fatEntrySizeBytes
	dataBlocks := dataBlockCount(fatEntries, blockSizeConfig)
	if dataBlocks < 1 {
		return kerrno.EInvalidArgument
	}

	image := make([]byte, fatRegionSize+dataBlocks*blockSize)
	binary.LittleEndian.PutUint16(image[0:2], uint16(blocksInFat)<<8|uint16(blockSizeConfig))
	binary.LittleEndian.PutUint16(image[2:4], chainEnd)

	return os.WriteFile(path, image, 0o644)
}

// Mount opens path, maps the whole image, and parses its geometry from
// the first FAT entry.
func Mount(path string) (*FileSystem, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := int(st.Size())
	if size < 4 {
		f.Close()
		return nil, kerrno.EInvalidArgument
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	geom := binary.LittleEndian.Uint16(data[0:2])
	blocksInFat := int(geom >> 8)
	blockSizeConfig := int(geom & 0xFF)
	blockSize, err := BlockSizeForConfig(blockSizeConfig)
	if err != nil {
		unix.Munmap(data)
		f.Close()
		return nil, err
	}
	fatRegionSize := blocksInFat * blockSize
	if fatRegionSize <= 0 || fatRegionSize > size {
		unix.Munmap(data)
		f.Close()
		return nil, kerrno.EInvalidArgument
	}

	fatEntries := fatRegionSize / fatEntrySizeBytes
	fs := &FileSystem{
		path:            path,
		file:            f,
		data:            data,
		blocksInFat:     blocksInFat,
		blockSizeConfig: blockSizeConfig,
		blockSize:       blockSize,
		fatEntries:      fatEntries,
		dataBlocks:      dataBlockCount(fatEntries, blockSizeConfig),
		dataRegionOff:   fatRegionSize,
		openByDirSlot:   make(map[int]int),
		globalTable:     make(map[int]*GlobalFDEntry),
	}
	return fs, nil
}

// Unmount unmaps the image and zeroes the in-memory state.
func (fs *FileSystem) Unmount() error {
	if fs.data != nil {
		if err := unix.Munmap(fs.data); err != nil {
			return err
		}
	}
	err := fs.file.Close()
	fs.data = nil
	fs.file = nil
	fs.openByDirSlot = nil
	fs.globalTable = nil
	return err
}

// --- FAT table access -------------------------------------------------

func (fs *FileSystem) fatGet(entry int) (uint16, error) {
	if entry < 0 || entry >= fs.fatEntries {
		return 0, kerrno.EInvalidArgument
	}
	off := entry * fatEntrySizeBytes
	return binary.LittleEndian.Uint16(fs.data[off : off+2]), nil
}

func (fs *FileSystem) fatSet(entry int, val uint16) error {
	if entry < 0 || entry >= fs.fatEntries {
		return kerrno.EInvalidArgument
	}
	off := entry * fatEntrySizeBytes
	binary.LittleEndian.PutUint16(fs.data[off:off+2], val)
	return nil
}

// allocBlock finds the first free FAT entry, marks it as a
// single-block chain terminator, and returns its block number. There
// is no allocator metadata beyond the FAT itself, so this is O(N) over
// the table by design (spec §4.3).
func (fs *FileSystem) allocBlock() (int, error) {
	for i := rootDirInitialBlock + 1; i <= fs.dataBlocks; i++ {
		v, err := fs.fatGet(i)
		if err != nil {
			return 0, err
		}
		if v == freeBlock {
			if err := fs.fatSet(i, chainEnd); err != nil {
				return 0, err
			}
			return i, nil
		}
	}
	return 0, kerrno.ENoEmptyBlocks
}

// chainBlocks walks the chain starting at start, returning every block
// number visited (not including the terminator).
func (fs *FileSystem) chainBlocks(start int) ([]int, error) {
	var blocks []int
	cur := start
	for cur != chainEnd {
		if cur == freeBlock {
			return nil, kerrno.EInvalidPCB // invariant 3 of spec §8 violated
		}
		blocks = append(blocks, cur)
		next, err := fs.fatGet(cur)
		if err != nil {
			return nil, err
		}
		cur = int(next)
	}
	return blocks, nil
}

// appendBlockToChain allocates a new block and links it to the tail of
// the chain starting at start, returning the new block number.
func (fs *FileSystem) appendBlockToChain(start int) (int, error) {
	blocks, err := fs.chainBlocks(start)
	if err != nil {
		return 0, err
	}
	tail := start
	if len(blocks) > 0 {
		tail = blocks[len(blocks)-1]
	}
	newBlock, err := fs.allocBlock()
	if err != nil {
		return 0, err
	}
	if err := fs.fatSet(tail, uint16(newBlock)); err != nil {
		return 0, err
	}
	return newBlock, nil
}

// freeChain releases every block in the chain starting at start back
// to free (0x0000).
func (fs *FileSystem) freeChain(start int) error {
	cur := start
	for cur != chainEnd && cur != freeBlock {
		next, err := fs.fatGet(cur)
		if err != nil {
			return err
		}
		if err := fs.fatSet(cur, freeBlock); err != nil {
			return err
		}
		cur = int(next)
	}
	return nil
}

// truncateToOneBlock frees every block after the first in the chain
// starting at start, leaving a single zero-length block.
func (fs *FileSystem) truncateToOneBlock(start int) error {
	next, err := fs.fatGet(start)
	if err != nil {
		return err
	}
	if next == chainEnd {
		return nil
	}
	if err := fs.freeChain(int(next)); err != nil {
		return err
	}
	return fs.fatSet(start, chainEnd)
}

func (fs *FileSystem) blockOffset(block int) int {
	return fs.dataRegionOff + (block-1)*fs.blockSize
}

func (fs *FileSystem) readBlock(block int) []byte {
	off := fs.blockOffset(block)
	return fs.data[off : off+fs.blockSize]
}

// Flush calls msync on the mapped region so directory writes are
// durable before the backing file is observed by another mount (spec
// §4.3's "flush on close/unlink/chmod/mv").
func (fs *FileSystem) Flush() error {
	return unix.Msync(fs.data, unix.MS_SYNC)
}
