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

package pkernel

import "time"

// Run drives Tick on a periodic timer at the configured interval until
// Logout is called (spec §2's "a periodic timer... drives the
// scheduler loop"). It returns at the first tick after Logout.
//
// Per spec §5, the only true host-level concurrency is between the
// timer and the scheduler loop, and the timer does nothing but wake
// this loop — exactly what time.Ticker gives us here, with no signal
// handler or extra goroutine required.
func (s *Scheduler) Run() {
	ticker := time.NewTicker(s.Config.TickInterval())
	defer ticker.Stop()
	for range ticker.C {
		if !s.Tick() {
			return
		}
	}
}
