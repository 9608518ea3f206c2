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

package pennconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() must validate cleanly, got %v", err)
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if cfg.TickIntervalMS != DefaultTickIntervalMS {
		t.Errorf("TickIntervalMS = %d, want default %d", cfg.TickIntervalMS, DefaultTickIntervalMS)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pennos.toml")
	contents := `
tick_interval_ms = 50
fat_image = "/tmp/fs.img"
process_fd_table_size = 2048
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.TickIntervalMS != 50 {
		t.Errorf("TickIntervalMS = %d, want 50", cfg.TickIntervalMS)
	}
	if cfg.FATImage != "/tmp/fs.img" {
		t.Errorf("FATImage = %q, want /tmp/fs.img", cfg.FATImage)
	}
	if cfg.ProcessFDTableSize != 2048 {
		t.Errorf("ProcessFDTableSize = %d, want 2048", cfg.ProcessFDTableSize)
	}
	// Unset field keeps its default.
	if len(cfg.SchedulePattern) != len(DefaultSchedulePattern) {
		t.Errorf("SchedulePattern should fall back to default when unset")
	}
}

func TestValidateRejectsBadPattern(t *testing.T) {
	cfg := Default()
	cfg.SchedulePattern = []int{0, 1, 3}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for schedule_pattern entry out of [0,2]")
	}
}

func TestTickInterval(t *testing.T) {
	cfg := Default()
	if cfg.TickInterval().Milliseconds() != DefaultTickIntervalMS {
		t.Errorf("TickInterval() = %v, want %dms", cfg.TickInterval(), DefaultTickIntervalMS)
	}
}
