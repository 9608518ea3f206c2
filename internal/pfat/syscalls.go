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

// defaultPerm is applied to newly created files: readable and writable,
// not executable. The spec does not pin a default; this choice mirrors
// a typical Unix umask result for a plain data file.
const defaultPerm = PermR | PermW

// Open implements the mode table of spec §4.3. It returns a global fd
// index and the initial offset (0, except APPEND onto an existing
// file, which starts at the file's current size).
func (fs *FileSystem) Open(name string, mode int) (gfd int, offset int64, err error) {
	if name == "" || len(name) >= nameLen {
		return 0, 0, kerrno.EInvalidFilename
	}
	slot, entry, found, err := fs.findDirEntry(name)
	if err != nil {
		return 0, 0, err
	}

	switch mode {
	case FRead:
		if !found {
			return 0, 0, kerrno.EFileNotFound
		}
		if entry.Perm&PermR == 0 {
			return 0, 0, kerrno.EWrongPermissions
		}
		if existing, ok := fs.openByDirSlot[slot]; ok {
			fs.globalTable[existing].RefCount++
			return existing, 0, nil
		}
		gfd = fs.allocGlobalFD(slot, false, FRead, entry)
		return gfd, 0, nil

	case FWrite:
		if found {
			if entry.Perm&PermW == 0 {
				return 0, 0, kerrno.EFileExistsReadonly
			}
			if existing, ok := fs.openByDirSlot[slot]; ok {
				e := fs.globalTable[existing]
				if e.WriteLock {
					return 0, 0, kerrno.EAlreadyWriteLocked
				}
				if err := fs.truncateToOneBlock(int(entry.FirstBlock)); err != nil {
					return 0, 0, err
				}
				entry.Size = 0
				entry.Mtime = nowMtime()
				if err := fs.writeDirSlot(slot, entry); err != nil {
					return 0, 0, err
				}
				e.RefCount++
				e.WriteLock = true
				e.Mode = FWrite
				e.Size = 0
				return existing, 0, nil
			}
			if err := fs.truncateToOneBlock(int(entry.FirstBlock)); err != nil {
				return 0, 0, err
			}
			entry.Size = 0
			entry.Mtime = nowMtime()
			if err := fs.writeDirSlot(slot, entry); err != nil {
				return 0, 0, err
			}
			gfd = fs.allocGlobalFD(slot, true, FWrite, entry)
			return gfd, 0, nil
		}
		block, err := fs.allocBlock()
		if err != nil {
			return 0, 0, err
		}
		newSlot, err := fs.allocDirSlot()
		if err != nil {
			return 0, 0, err
		}
		newEntry := DirEntry{Name: name, Size: 0, FirstBlock: uint16(block), Type: TypeFile, Perm: defaultPerm, Mtime: nowMtime()}
		if err := fs.writeDirSlot(newSlot, newEntry); err != nil {
			return 0, 0, err
		}
		gfd = fs.allocGlobalFD(newSlot, true, FWrite, newEntry)
		return gfd, 0, nil

	case FAppend:
		if found {
			if entry.Perm&PermW == 0 {
				return 0, 0, kerrno.EFileExistsReadonly
			}
			if existing, ok := fs.openByDirSlot[slot]; ok {
				e := fs.globalTable[existing]
				if e.WriteLock {
					return 0, 0, kerrno.EAlreadyWriteLocked
				}
				e.RefCount++
				e.WriteLock = true
				e.Mode = FAppend
				return existing, int64(entry.Size), nil
			}
			gfd = fs.allocGlobalFD(slot, true, FAppend, entry)
			return gfd, int64(entry.Size), nil
		}
		block, err := fs.allocBlock()
		if err != nil {
			return 0, 0, err
		}
		newSlot, err := fs.allocDirSlot()
		if err != nil {
			return 0, 0, err
		}
		newEntry := DirEntry{Name: name, Size: 0, FirstBlock: uint16(block), Type: TypeFile, Perm: defaultPerm, Mtime: nowMtime()}
		if err := fs.writeDirSlot(newSlot, newEntry); err != nil {
			return 0, 0, err
		}
		gfd = fs.allocGlobalFD(newSlot, true, FAppend, newEntry)
		return gfd, 0, nil

	default:
		return 0, 0, kerrno.EBadMode
	}
}

func (fs *FileSystem) allocGlobalFD(slot int, writeLock bool, mode int, entry DirEntry) int {
	gfd := fs.nextGlobalFD
	fs.nextGlobalFD++
	fs.globalTable[gfd] = &GlobalFDEntry{
		DirSlot:    slot,
		Offset:     0,
		RefCount:   1,
		WriteLock:  writeLock,
		Mode:       mode,
		PermCache:  entry.Perm,
		Size:       entry.Size,
		FirstBlock: entry.FirstBlock,
	}
	fs.openByDirSlot[slot] = gfd
	return gfd
}

// Read reads up to len(buf) bytes starting at offset. callerMode is the
// mode the caller originally opened the file with — permission checks
// are against the caller's own fd, not the (possibly shared) global
// entry, since a writer and a reader can share one global entry.
func (fs *FileSystem) Read(gfd int, callerMode int, offset int64, buf []byte) (n int, newOffset int64, err error) {
	e, ok := fs.globalTable[gfd]
	if !ok {
		return 0, 0, kerrno.EFdNotInTable
	}
	if callerMode != FRead {
		return 0, 0, kerrno.EWrongPermissions
	}
	if offset < 0 {
		return 0, 0, kerrno.ESeekNegative
	}
	size := int64(e.Size)
	if offset >= size {
		return 0, offset, nil
	}
	toRead := int64(len(buf))
	if offset+toRead > size {
		toRead = size - offset
	}
	blocks, err := fs.chainBlocks(int(e.FirstBlock))
	if err != nil {
		return 0, 0, kerrno.EReadFailed
	}
	pos := offset
	read := 0
	for int64(read) < toRead {
		blockIdx := int(pos / int64(fs.blockSize))
		posInBlock := int(pos % int64(fs.blockSize))
		if blockIdx >= len(blocks) {
			break
		}
		blk := fs.readBlock(blocks[blockIdx])
		avail := fs.blockSize - posInBlock
		n := int(toRead) - read
		if n > avail {
			n = avail
		}
		copy(buf[read:read+n], blk[posInBlock:posInBlock+n])
		read += n
		pos += int64(n)
	}
	return read, offset + int64(read), nil
}

// Write writes data starting at offset, extending the file's block
// chain as needed, and refreshes size/mtime on the directory entry.
func (fs *FileSystem) Write(gfd int, callerMode int, offset int64, data []byte) (n int, newOffset int64, err error) {
	e, ok := fs.globalTable[gfd]
	if !ok {
		return 0, 0, kerrno.EFdNotInTable
	}
	if callerMode != FWrite && callerMode != FAppend {
		return 0, 0, kerrno.EWrongPermissions
	}
	if offset < 0 {
		return 0, 0, kerrno.ESeekNegative
	}
	blocks, err := fs.chainBlocks(int(e.FirstBlock))
	if err != nil {
		return 0, 0, kerrno.EWriteFailed
	}

	pos := offset
	written := 0
writeLoop:
	for written < len(data) {
		blockIdx := int(pos / int64(fs.blockSize))
		posInBlock := int(pos % int64(fs.blockSize))
		for blockIdx >= len(blocks) {
			nb, err := fs.appendBlockToChain(int(e.FirstBlock))
			if err != nil {
				if written == 0 {
					return 0, 0, err
				}
				break writeLoop
			}
			blocks = append(blocks, nb)
		}
		blk := fs.readBlock(blocks[blockIdx])
		avail := fs.blockSize - posInBlock
		n := len(data) - written
		if n > avail {
			n = avail
		}
		copy(blk[posInBlock:posInBlock+n], data[written:written+n])
		written += n
		pos += int64(n)
	}

	newSize := uint32(offset + int64(written))
	if newSize > e.Size {
		e.Size = newSize
	}
	dirEntry, err := fs.readDirSlot(e.DirSlot)
	if err != nil {
		return written, offset + int64(written), err
	}
	if e.Size > dirEntry.Size {
		dirEntry.Size = e.Size
	}
	dirEntry.Mtime = nowMtime()
	if err := fs.writeDirSlot(e.DirSlot, dirEntry); err != nil {
		return written, offset + int64(written), err
	}
	return written, offset + int64(written), nil
}

// Lseek computes a new offset per F_SEEK_SET/CUR/END. It never reads
// past the file's recorded size: seeking beyond it is treated as
// overflow, since writes in this filesystem only ever extend a chain
// contiguously from its current tail.
func (fs *FileSystem) Lseek(gfd int, whence int, arg int64, currentOffset int64) (int64, error) {
	e, ok := fs.globalTable[gfd]
	if !ok {
		return 0, kerrno.EFdNotInTable
	}
	var newOffset int64
	switch whence {
	case FSeekSet:
		newOffset = arg
	case FSeekCur:
		newOffset = currentOffset + arg
	case FSeekEnd:
		newOffset = int64(e.Size) + arg
	default:
		return 0, kerrno.EBadWhence
	}
	if newOffset < 0 {
		return 0, kerrno.ESeekNegative
	}
	if newOffset > int64(e.Size) {
		return 0, kerrno.ESeekOverflow
	}
	return newOffset, nil
}

// Close drops the caller's reference. When callerMode held the write
// lock, it is released regardless of whether other readers remain
// attached to the same global entry. The entry (and its directory-entry
// flush) is freed once the reference count reaches zero.
func (fs *FileSystem) Close(gfd int, callerMode int) error {
	e, ok := fs.globalTable[gfd]
	if !ok {
		return kerrno.EFdNotInTable
	}
	e.RefCount--
	if callerMode == FWrite || callerMode == FAppend {
		e.WriteLock = false
	}
	if e.RefCount <= 0 {
		delete(fs.globalTable, gfd)
		delete(fs.openByDirSlot, e.DirSlot)
		return fs.Flush()
	}
	return nil
}

// Unlink removes name, freeing its block chain. It fails while any
// global FD entry still references the file (closest fit in the closed
// error taxonomy: EWrongPermissions — the taxonomy has no dedicated
// "resource busy" code).
func (fs *FileSystem) Unlink(name string) error {
	slot, entry, found, err := fs.findDirEntry(name)
	if err != nil {
		return err
	}
	if !found {
		return kerrno.EFileNotFound
	}
	if _, busy := fs.openByDirSlot[slot]; busy {
		return kerrno.EWrongPermissions
	}
	if err := fs.freeChain(int(entry.FirstBlock)); err != nil {
		return err
	}
	if err := fs.writeDirSlot(slot, DirEntry{}); err != nil {
		return err
	}
	return fs.Flush()
}

// Chmod applies op (SET/ADD/REMOVE) with bits to name's permission
// byte, rejecting any result where X would be set without R.
func (fs *FileSystem) Chmod(name string, op int, bits uint8) error {
	slot, entry, found, err := fs.findDirEntry(name)
	if err != nil {
		return err
	}
	if !found {
		return kerrno.EFileNotFound
	}
	var newPerm uint8
	switch op {
	case ChmodSet:
		newPerm = bits
	case ChmodAdd:
		newPerm = entry.Perm | bits
	case ChmodRemove:
		newPerm = entry.Perm &^ bits
	default:
		return kerrno.EBadMode
	}
	if newPerm&PermX != 0 && newPerm&PermR == 0 {
		return kerrno.EBadMode
	}
	entry.Perm = newPerm
	entry.Mtime = nowMtime()
	if err := fs.writeDirSlot(slot, entry); err != nil {
		return err
	}
	if gfd, ok := fs.openByDirSlot[slot]; ok {
		fs.globalTable[gfd].PermCache = newPerm
	}
	return fs.Flush()
}

// Mv renames src to dst within the same (flat) directory.
func (fs *FileSystem) Mv(src, dst string) error {
	if dst == "" || len(dst) >= nameLen {
		return kerrno.EInvalidFilename
	}
	_, _, dstFound, err := fs.findDirEntry(dst)
	if err != nil {
		return err
	}
	if dstFound {
		return kerrno.EInvalidFilename
	}
	slot, entry, found, err := fs.findDirEntry(src)
	if err != nil {
		return err
	}
	if !found {
		return kerrno.EFileNotFound
	}
	entry.Name = dst
	if err := fs.writeDirSlot(slot, entry); err != nil {
		return err
	}
	return fs.Flush()
}

// PermString renders perm as an "rwx"-style three-character string for
// ls, e.g. "rw-".
func PermString(perm uint8) string {
	out := []byte{'-', '-', '-'}
	if perm&PermR != 0 {
		out[0] = 'r'
	}
	if perm&PermW != 0 {
		out[1] = 'w'
	}
	if perm&PermX != 0 {
		out[2] = 'x'
	}
	return string(out)
}
