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

// Package pennconfig parses the optional boot-time TOML config PennOS
// reads tunables from (SPEC_FULL.md §4.7): tick interval, the priority
// schedule pattern, the per-process FD table size, and a FAT image path.
// The image path is parsed but not used by `pennos boot`, which always
// takes the image from its first argument. Absence of a config file is
// not an error.
package pennconfig

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultSchedulePattern is the 19-slot priority pattern from spec §4.2.
// Index k selects which priority class's ready queue the scheduler
// tries first on tick k%19, falling through High -> Medium -> Low if
// that class's queue is empty.
var DefaultSchedulePattern = []int{0, 0, 1, 0, 0, 1, 2, 0, 1, 1, 0, 0, 1, 2, 0, 2, 1, 0, 2}

const (
	DefaultTickIntervalMS      = 100
	DefaultProcessFDTableSize  = 1024
	minProcessFDTableSize      = 1
	minSchedulePatternLen      = 1
	maxSchedulePatternPriority = 2
)

// Config holds PennOS's boot-time tunables.
type Config struct {
	TickIntervalMS     int    `toml:"tick_interval_ms"`
	SchedulePattern    []int  `toml:"schedule_pattern"`
	ProcessFDTableSize int    `toml:"process_fd_table_size"`
	FATImage           string `toml:"fat_image"`
}

// Default returns the configuration PennOS boots with when no config
// file is supplied.
func Default() Config {
	pattern := make([]int, len(DefaultSchedulePattern))
	copy(pattern, DefaultSchedulePattern)
	return Config{
		TickIntervalMS:     DefaultTickIntervalMS,
		SchedulePattern:    pattern,
		ProcessFDTableSize: DefaultProcessFDTableSize,
	}
}

// Load reads a TOML config file at path, applying it on top of
// Default() so unset fields keep their defaults. An empty path returns
// Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	var parsed struct {
		TickIntervalMS     *int   `toml:"tick_interval_ms"`
		SchedulePattern    []int  `toml:"schedule_pattern"`
		ProcessFDTableSize *int   `toml:"process_fd_table_size"`
		FATImage           string `toml:"fat_image"`
	}
	if _, err := toml.DecodeFile(path, &parsed); err != nil {
		return Config{}, fmt.Errorf("pennconfig: decode %s: %w", path, err)
	}
	if parsed.TickIntervalMS != nil {
		cfg.TickIntervalMS = *parsed.TickIntervalMS
	}
	if len(parsed.SchedulePattern) > 0 {
		cfg.SchedulePattern = parsed.SchedulePattern
	}
	if parsed.ProcessFDTableSize != nil {
		cfg.ProcessFDTableSize = *parsed.ProcessFDTableSize
	}
	if parsed.FATImage != "" {
		cfg.FATImage = parsed.FATImage
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the config's tunables are usable.
func (c Config) Validate() error {
	if c.TickIntervalMS <= 0 {
		return fmt.Errorf("pennconfig: tick_interval_ms must be positive, got %d", c.TickIntervalMS)
	}
	if c.ProcessFDTableSize < minProcessFDTableSize {
		return fmt.Errorf("pennconfig: process_fd_table_size must be >= %d, got %d", minProcessFDTableSize, c.ProcessFDTableSize)
	}
	if len(c.SchedulePattern) < minSchedulePatternLen {
		return fmt.Errorf("pennconfig: schedule_pattern must not be empty")
	}
	for _, p := range c.SchedulePattern {
		if p < 0 || p > maxSchedulePatternPriority {
			return fmt.Errorf("pennconfig: schedule_pattern entries must be in [0,%d], got %d", maxSchedulePatternPriority, p)
		}
	}
	return nil
}

// TickInterval returns the tick interval as a time.Duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}
