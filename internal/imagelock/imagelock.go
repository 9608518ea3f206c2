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

// Package imagelock guards opening a PennOS FAT image with an advisory
// exclusive lock, retried with exponential backoff when the image is
// already mounted by another process — grounded on runsc/sandbox's
// backoff-guarded retry of sandbox start (SPEC_FULL.md §4.8). This is a
// host-level precaution layered in front of the FAT mount routine in
// internal/pfat; it does not replace any of that package's semantics.
package imagelock

import (
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"
)

// Locked is a held advisory lock on an open image file. Release drops
// the lock and closes the underlying file descriptor.
type Locked struct {
	f *os.File
}

// Release unlocks and closes the image file.
func (l *Locked) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}

// File returns the underlying open file handle.
func (l *Locked) File() *os.File {
	return l.f
}

// Acquire opens path read-write and takes a non-blocking exclusive
// flock, retrying with capped exponential backoff until maxElapsed has
// passed. A concurrently mounted image causes EWOULDBLOCK on each
// attempt; once maxElapsed is exceeded, Acquire returns the last
// attempt's lock error.
func Acquire(path string, maxElapsed time.Duration) (*Locked, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("imagelock: open %s: %w", path, err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed

	op := func() error {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err != nil {
			return fmt.Errorf("imagelock: %s is locked by another process: %w", path, err)
		}
		return nil
	}

	if err := backoff.Retry(op, b); err != nil {
		f.Close()
		return nil, err
	}
	return &Locked{f: f}, nil
}
