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

//go:build linux

// Package privdrop best-effort bounds this process's capability set
// before cmd/pennos mounts an image supplied by an untrusted caller,
// grounded on runsc/sandbox's syndtr/gocapability usage
// (SPEC_FULL.md §4.9). Failures here are logged and ignored: this is
// defense in depth around an already-trusted local binary, not an
// access-control boundary the spec depends on.
package privdrop

import "github.com/syndtr/gocapability/capability"

// keptCapabilities is the minimal set PennOS needs once mounted: none of
// the ambient-capability bits a general-purpose shell host would want,
// since PennOS never execs external binaries or manages real devices.
var keptCapabilities = []capability.Cap{
	capability.CAP_DAC_OVERRIDE, // read/write the FAT image regardless of its on-disk owner
}

// Drop bounds the effective/permitted/inheritable capability sets to
// keptCapabilities. It returns an error instead of panicking so callers
// can log-and-continue per SPEC_FULL.md §4.9.
func Drop() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return err
	}
	if err := caps.Load(); err != nil {
		return err
	}
	caps.Clear(capability.CAPS)
	caps.Set(capability.CAPS, keptCapabilities...)
	return caps.Apply(capability.CAPS)
}
