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
	"path/filepath"
	"testing"

	"github.com/pennstudent/pennos/internal/kerrno"
)

func mustMount(t *testing.T, blocksInFat, blockSizeConfig int) *FileSystem {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.fat")
	if err := Mkfs(path, blocksInFat, blockSizeConfig); err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	fs, err := Mount(path)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() { fs.Unmount() })
	return fs
}

func TestMkfsMountRoundTrip(t *testing.T) {
	fs := mustMount(t, 2, 0)
	entries, err := fs.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty directory on fresh image, got %d entries", len(entries))
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs := mustMount(t, 2, 0)

	gfd, _, err := fs.Open("a.txt", FWrite)
	if err != nil {
		t.Fatalf("Open write: %v", err)
	}
	payload := []byte("hello, pennos")
	n, _, err := fs.Write(gfd, FWrite, 0, payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("Write n = %d, want %d", n, len(payload))
	}
	if err := fs.Close(gfd, FWrite); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rfd, _, err := fs.Open("a.txt", FRead)
	if err != nil {
		t.Fatalf("Open read: %v", err)
	}
	buf := make([]byte, 64)
	n, _, err = fs.Read(rfd, FRead, 0, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("round trip mismatch: got %q, want %q", buf[:n], payload)
	}
	if err := fs.Close(rfd, FRead); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWriteSpansMultipleBlocks(t *testing.T) {
	fs := mustMount(t, 4, 0) // block size 256
	gfd, _, err := fs.Open("big.txt", FWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	if _, _, err := fs.Write(gfd, FWrite, 0, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Close(gfd, FWrite); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rfd, _, err := fs.Open("big.txt", FRead)
	if err != nil {
		t.Fatalf("Open read: %v", err)
	}
	buf := make([]byte, len(payload))
	n, _, err := fs.Read(rfd, FRead, 0, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("got %d bytes, want %d", n, len(payload))
	}
	for i := range payload {
		if buf[i] != payload[i] {
			t.Fatalf("mismatch at byte %d: got %d want %d", i, buf[i], payload[i])
		}
	}
}

func TestConcurrentWriteLockRejected(t *testing.T) {
	fs := mustMount(t, 2, 0)
	gfd, _, err := fs.Open("locked.txt", FWrite)
	if err != nil {
		t.Fatalf("Open first writer: %v", err)
	}
	if _, _, err := fs.Open("locked.txt", FWrite); err != kerrno.EAlreadyWriteLocked {
		t.Fatalf("second writer open: got %v, want EAlreadyWriteLocked", err)
	}
	// Readers are still allowed to join while a writer holds the file.
	if _, _, err := fs.Open("locked.txt", FRead); err != nil {
		t.Fatalf("reader open while write-locked: %v", err)
	}
	if err := fs.Close(gfd, FWrite); err != nil {
		t.Fatalf("Close writer: %v", err)
	}
	// Now that the writer released the lock, a new writer may open it.
	gfd2, _, err := fs.Open("locked.txt", FWrite)
	if err != nil {
		t.Fatalf("Open after release: %v", err)
	}
	if err := fs.Close(gfd2, FWrite); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestUnlinkRejectsOpenFile(t *testing.T) {
	fs := mustMount(t, 2, 0)
	gfd, _, err := fs.Open("held.txt", FWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := fs.Unlink("held.txt"); err == nil {
		t.Fatalf("expected Unlink to fail while file is open")
	}
	if err := fs.Close(gfd, FWrite); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fs.Unlink("held.txt"); err != nil {
		t.Fatalf("Unlink after close: %v", err)
	}
	if _, _, found, err := fs.findDirEntry("held.txt"); err != nil || found {
		t.Fatalf("entry should be gone after unlink, found=%v err=%v", found, err)
	}
}

func TestChmodIdempotentSet(t *testing.T) {
	fs := mustMount(t, 2, 0)
	gfd, _, err := fs.Open("perm.txt", FWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := fs.Close(gfd, FWrite); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fs.Chmod("perm.txt", ChmodSet, PermR); err != nil {
		t.Fatalf("Chmod 1: %v", err)
	}
	_, first, _, err := fs.findDirEntry("perm.txt")
	if err != nil {
		t.Fatalf("findDirEntry: %v", err)
	}
	if err := fs.Chmod("perm.txt", ChmodSet, PermR); err != nil {
		t.Fatalf("Chmod 2: %v", err)
	}
	_, second, _, err := fs.findDirEntry("perm.txt")
	if err != nil {
		t.Fatalf("findDirEntry: %v", err)
	}
	if first.Perm != second.Perm {
		t.Fatalf("chmod SET is not idempotent: %v vs %v", first.Perm, second.Perm)
	}
}

func TestChmodRejectsExecuteWithoutRead(t *testing.T) {
	fs := mustMount(t, 2, 0)
	gfd, _, err := fs.Open("x.txt", FWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := fs.Close(gfd, FWrite); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fs.Chmod("x.txt", ChmodSet, PermX); err != kerrno.EBadMode {
		t.Fatalf("Chmod X without R: got %v, want EBadMode", err)
	}
}

func TestMvRejectsExistingDestination(t *testing.T) {
	fs := mustMount(t, 2, 0)
	for _, name := range []string{"src.txt", "dst.txt"} {
		gfd, _, err := fs.Open(name, FWrite)
		if err != nil {
			t.Fatalf("Open %s: %v", name, err)
		}
		if err := fs.Close(gfd, FWrite); err != nil {
			t.Fatalf("Close %s: %v", name, err)
		}
	}
	if err := fs.Mv("src.txt", "dst.txt"); err != kerrno.EInvalidFilename {
		t.Fatalf("Mv onto existing dest: got %v, want EInvalidFilename", err)
	}
	if err := fs.Mv("src.txt", "renamed.txt"); err != nil {
		t.Fatalf("Mv: %v", err)
	}
	if _, _, found, _ := fs.findDirEntry("renamed.txt"); !found {
		t.Fatalf("renamed.txt should exist after Mv")
	}
}

func TestLseekRejectsNegativeAndOverflow(t *testing.T) {
	fs := mustMount(t, 2, 0)
	gfd, _, err := fs.Open("seek.txt", FWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := fs.Write(gfd, FWrite, 0, []byte("abcd")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := fs.Lseek(gfd, FSeekSet, -1, 0); err != kerrno.ESeekNegative {
		t.Fatalf("negative seek: got %v, want ESeekNegative", err)
	}
	if _, err := fs.Lseek(gfd, FSeekEnd, 100, 0); err != kerrno.ESeekOverflow {
		t.Fatalf("overflow seek: got %v, want ESeekOverflow", err)
	}
	off, err := fs.Lseek(gfd, FSeekSet, 2, 0)
	if err != nil || off != 2 {
		t.Fatalf("seek to 2: off=%d err=%v", off, err)
	}
}

func TestChainInvariantDetectsFreeBlockMidChain(t *testing.T) {
	fs := mustMount(t, 2, 0)
	gfd, _, err := fs.Open("chain.txt", FWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, entry, _, err := fs.findDirEntry("chain.txt")
	if err != nil {
		t.Fatalf("findDirEntry: %v", err)
	}
	// Corrupt the chain directly: point the first block at a freed cell.
	if err := fs.fatSet(int(entry.FirstBlock), freeBlock); err != nil {
		t.Fatalf("fatSet: %v", err)
	}
	if _, err := fs.chainBlocks(int(entry.FirstBlock)); err != kerrno.EInvalidPCB {
		t.Fatalf("chainBlocks on corrupted chain: got %v, want EInvalidPCB", err)
	}
	fs.Close(gfd, FWrite)
}

func TestMkfsRejectsOutOfRangeGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.fat")
	if err := Mkfs(path, 0, 0); err != kerrno.EInvalidArgument {
		t.Fatalf("blocksInFat=0: got %v, want EInvalidArgument", err)
	}
	if err := Mkfs(path, 2, 9); err != kerrno.EInvalidArgument {
		t.Fatalf("bad block size config: got %v, want EInvalidArgument", err)
	}
}

func TestPermStringFormatting(t *testing.T) {
	cases := map[uint8]string{
		0:                     "---",
		PermR:                 "r--",
		PermR | PermW:         "rw-",
		PermR | PermW | PermX: "rwx",
	}
	for perm, want := range cases {
		if got := PermString(perm); got != want {
			t.Fatalf("PermString(%d) = %q, want %q", perm, got, want)
		}
	}
}

func TestUnmountThenMountAgainSeesPersistedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.fat")
	if err := Mkfs(path, 2, 0); err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	fs, err := Mount(path)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	gfd, _, err := fs.Open("durable.txt", FWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := fs.Write(gfd, FWrite, 0, []byte("data")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Close(gfd, FWrite); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fs.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	fs2, err := Mount(path)
	if err != nil {
		t.Fatalf("remount: %v", err)
	}
	defer fs2.Unmount()
	entries, err := fs2.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "durable.txt" {
		t.Fatalf("expected durable.txt to survive remount, got %+v", entries)
	}
}

func TestOpenRejectsMissingFileForRead(t *testing.T) {
	fs := mustMount(t, 2, 0)
	if _, _, err := fs.Open("nope.txt", FRead); err != kerrno.EFileNotFound {
		t.Fatalf("Open missing for read: got %v, want EFileNotFound", err)
	}
}
