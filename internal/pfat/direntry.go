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
	"time"

	"github.com/pennstudent/pennos/internal/kerrno"
)

// DirEntry is the 64-byte, little-endian, tightly packed root directory
// record from spec §3:
//
//	name[32] || size:u32 || first_block:u16 || type:u8 || perm:u8 || mtime:i64 || padding[16]
//
// Go struct layout and alignment are not something the wire format can
// rely on, so DirEntry is packed/unpacked explicitly with Marshal/
// Unmarshal rather than cast over the mmap'd bytes directly — the same
// discipline the teacher's +marshal-annotated wire types use for
// CopyOut/CopyIn instead of trusting Go's in-memory layout.
type DirEntry struct {
	Name       string
	Size       uint32
	FirstBlock uint16
	Type       uint8
	Perm       uint8
	Mtime      int64
}

// Free reports whether the entry's slot is unused.
func (e DirEntry) Free() bool {
	return len(e.Name) == 0 || e.Name[0] == 0
}

// Marshal packs e into exactly dirEntrySize bytes.
func (e DirEntry) Marshal() [dirEntrySize]byte {
	var buf [dirEntrySize]byte
	n := copy(buf[0:nameLen], e.Name)
	_ = n
	binary.LittleEndian.PutUint32(buf[32:36], e.Size)
	binary.LittleEndian.PutUint16(buf[36:38], e.FirstBlock)
	buf[38] = e.Type
	buf[39] = e.Perm
	binary.LittleEndian.PutUint64(buf[40:48], uint64(e.Mtime))
	// buf[48:64] padding stays zero.
	return buf
}

// UnmarshalDirEntry unpacks a dirEntrySize-byte record.
func UnmarshalDirEntry(buf []byte) (DirEntry, error) {
	if len(buf) != dirEntrySize {
		return DirEntry{}, kerrno.EInvalidArgument
	}
	nameEnd := 0
	for nameEnd < nameLen && buf[nameEnd] != 0 {
		nameEnd++
	}
	e := DirEntry{
		Name:       string(buf[0:nameEnd]),
		Size:       binary.LittleEndian.Uint32(buf[32:36]),
		FirstBlock: binary.LittleEndian.Uint16(buf[36:38]),
		Type:       buf[38],
		Perm:       buf[39],
		Mtime:      int64(binary.LittleEndian.Uint64(buf[40:48])),
	}
	if buf[0] == 0 {
		e.Name = "" // keep Free() well defined for an all-zero slot
	}
	return e, nil
}

func nowMtime() int64 {
	return time.Now().Unix()
}
