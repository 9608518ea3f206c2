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

import "github.com/pennstudent/pennos/internal/kerrno"

// entriesPerBlock returns how many 64-byte directory records fit in one
// block.
func (fs *FileSystem) entriesPerBlock() int {
	return fs.blockSize / dirEntrySize
}

// slotLocation maps a directory slot index (0-based, in on-disk order)
// to the block number and byte offset within that block that holds it,
// extending the root directory chain with fresh blocks as needed.
func (fs *FileSystem) slotLocation(slot int, extend bool) (block int, offInBlock int, err error) {
	perBlock := fs.entriesPerBlock()
	blockIdx := slot / perBlock
	offInBlock = (slot % perBlock) * dirEntrySize

	blocks, err := fs.chainBlocks(rootDirInitialBlock)
	if err != nil {
		return 0, 0, err
	}
	for len(blocks) <= blockIdx {
		if !extend {
			return 0, 0, kerrno.EInvalidArgument
		}
		if _, err := fs.appendBlockToChain(rootDirInitialBlock); err != nil {
			return 0, 0, err
		}
		blocks, err = fs.chainBlocks(rootDirInitialBlock)
		if err != nil {
			return 0, 0, err
		}
	}
	return blocks[blockIdx], offInBlock, nil
}

// readDirSlot reads the entry at slot, which must already exist.
func (fs *FileSystem) readDirSlot(slot int) (DirEntry, error) {
	block, off, err := fs.slotLocation(slot, false)
	if err != nil {
		return DirEntry{}, err
	}
	b := fs.readBlock(block)
	return UnmarshalDirEntry(b[off : off+dirEntrySize])
}

// writeDirSlot writes entry at slot, extending the directory chain if
// slot falls past its current length. Directory-entry writes are
// atomic at the 64-byte granularity: the whole packed record is copied
// into the mapped block in one go.
func (fs *FileSystem) writeDirSlot(slot int, entry DirEntry) error {
	block, off, err := fs.slotLocation(slot, true)
	if err != nil {
		return err
	}
	packed := entry.Marshal()
	b := fs.readBlock(block)
	copy(b[off:off+dirEntrySize], packed[:])
	return nil
}

// totalSlots returns how many directory slots currently exist across
// the whole root-directory chain.
func (fs *FileSystem) totalSlots() (int, error) {
	blocks, err := fs.chainBlocks(rootDirInitialBlock)
	if err != nil {
		return 0, err
	}
	return len(blocks) * fs.entriesPerBlock(), nil
}

// findDirEntry linearly scans the root directory for name.
func (fs *FileSystem) findDirEntry(name string) (slot int, entry DirEntry, found bool, err error) {
	total, err := fs.totalSlots()
	if err != nil {
		return 0, DirEntry{}, false, err
	}
	for i := 0; i < total; i++ {
		e, err := fs.readDirSlot(i)
		if err != nil {
			return 0, DirEntry{}, false, err
		}
		if !e.Free() && e.Name == name {
			return i, e, true, nil
		}
	}
	return 0, DirEntry{}, false, nil
}

// allocDirSlot returns the first free slot, reusing a deleted entry's
// slot before extending the chain.
func (fs *FileSystem) allocDirSlot() (int, error) {
	total, err := fs.totalSlots()
	if err != nil {
		return 0, err
	}
	for i := 0; i < total; i++ {
		e, err := fs.readDirSlot(i)
		if err != nil {
			return 0, err
		}
		if e.Free() {
			return i, nil
		}
	}
	return total, nil // writeDirSlot will extend the chain for us
}

// ListEntries returns every live directory entry in on-disk order, for
// the ls syscall.
func (fs *FileSystem) ListEntries() ([]DirEntry, error) {
	total, err := fs.totalSlots()
	if err != nil {
		return nil, err
	}
	var out []DirEntry
	for i := 0; i < total; i++ {
		e, err := fs.readDirSlot(i)
		if err != nil {
			return nil, err
		}
		if !e.Free() {
			out = append(out, e)
		}
	}
	return out, nil
}
