// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package main

import (
	"bufio"
	"fmt"
	"os"
)

// rateStep is one entry of a limit.file schedule: at atSec seconds into the
// phase, the total ops/sec limit becomes opsPerSec.
type rateStep struct {
	atSec     int64
	opsPerSec int64
}

// loadRateSchedule parses a rate file of "time_sec ops_per_sec" lines.
// Timestamps must be strictly increasing.
func loadRateSchedule(path string) ([]rateStep, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rate file: %w", err)
	}
	defer f.Close()

	var steps []rateStep
	last := int64(-1)
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		var step rateStep
		if _, err := fmt.Sscanf(text, "%d %d", &step.atSec, &step.opsPerSec); err != nil {
			return nil, fmt.Errorf("rate file %s line %d: %w", path, line, err)
		}
		if step.atSec <= last {
			return nil, fmt.Errorf("rate file %s line %d: timestamps must increase", path, line)
		}
		last = step.atSec
		steps = append(steps, step)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return steps, nil
}
