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

package penlog

import (
	"bytes"
	"testing"
)

func TestEventFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Event(12, OpSchedule, 3, 1, -1, "shell")
	want := "[12]\tSCHEDULE\t3\t1\t\tshell\n"
	if buf.String() != want {
		t.Errorf("Event produced %q, want %q", buf.String(), want)
	}
}

func TestEventWithNewPriority(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Event(5, OpNice, 7, 2, 0, "worker")
	want := "[5]\tNICE\t7\t2\t0\tworker\n"
	if buf.String() != want {
		t.Errorf("Event produced %q, want %q", buf.String(), want)
	}
}

func TestOpenEmptyPathFallsBackToStderr(t *testing.T) {
	l, f, err := Open("")
	if err != nil {
		t.Fatalf("Open(\"\") returned error: %v", err)
	}
	if f != nil {
		t.Fatal("Open(\"\") should not return a file handle")
	}
	if l == nil {
		t.Fatal("Open(\"\") should still return a usable Logger")
	}
}
