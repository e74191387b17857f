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

package behavior

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Trace maps a replay id to its inter-arrival intervals in seconds.
type Trace map[int][]float64

// LoadTrace parses a JSON trace file of the form
// {"<id>": {"intervals": [<float seconds>, ...]}, ...}.
// Missing files, non-integer ids, and non-numeric intervals are errors.
func LoadTrace(path string) (Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("behavior: open trace: %w", err)
	}
	var raw map[string]struct {
		Intervals []float64 `json:"intervals"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("behavior: parse trace %s: %w", path, err)
	}
	trace := make(Trace, len(raw))
	for idStr, entry := range raw {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return nil, fmt.Errorf("behavior: trace %s: non-integer id %q", path, idStr)
		}
		trace[id] = entry.Intervals
	}
	return trace, nil
}
