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

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fairdb/internal/behavior"
	"fairdb/internal/stats"
)

// BehaviorSpec is one phase of a client's behavior script as written in the
// workload YAML.
type BehaviorSpec struct {
	Type            string  `yaml:"type"`
	RequestRateQPS  int     `yaml:"request_rate_qps"`
	DurationS       int     `yaml:"duration_s"`
	BurstDurationMS int     `yaml:"burst_duration_ms"`
	IdleDurationMS  int     `yaml:"idle_duration_ms"`
	Repeats         int     `yaml:"repeats"`
	TraceFile       string  `yaml:"trace_file"`
	ReplayClientID  int     `yaml:"replay_client_id"`
	ScaleRatio      float64 `yaml:"scale_ratio"`
}

// ClientSpec is one tenant's declaration.
type ClientSpec struct {
	ClientID            int                `yaml:"client_id"`
	CF                  string             `yaml:"cf"`
	RecordCount         int64              `yaml:"record_count"`
	InsertStart         int64              `yaml:"insert_start"`
	RequestDistribution string             `yaml:"request_distribution"`
	ZipfianConst        *float64           `yaml:"zipfian_const"`
	OpDistribution      map[string]float64 `yaml:"op_distribution"`
	Steady              bool               `yaml:"steady"`
	Behaviors           []BehaviorSpec     `yaml:"behaviors"`
}

type workloadFile struct {
	Clients []ClientSpec `yaml:"clients"`
}

// LoadClients parses and validates the workload YAML. Client ids must be
// unique and cover [0, N); the returned slice is indexed by client id.
func LoadClients(path string) ([]ClientSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open workload: %w", err)
	}
	var wf workloadFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("config: parse workload %s: %w", path, err)
	}
	if len(wf.Clients) == 0 {
		return nil, fmt.Errorf("config: workload %s declares no clients", path)
	}

	n := len(wf.Clients)
	out := make([]ClientSpec, n)
	seen := make([]bool, n)
	for _, c := range wf.Clients {
		if c.ClientID < 0 || c.ClientID >= n {
			return nil, fmt.Errorf("config: client_id %d out of range [0, %d)", c.ClientID, n)
		}
		if seen[c.ClientID] {
			return nil, fmt.Errorf("config: duplicate client_id %d", c.ClientID)
		}
		seen[c.ClientID] = true
		if c.CF == "" {
			c.CF = "default"
		}
		if c.RequestDistribution == "" {
			c.RequestDistribution = "uniform"
		}
		if c.RecordCount <= 0 {
			return nil, fmt.Errorf("config: client %d: record_count must be positive", c.ClientID)
		}
		if _, err := c.Phases(); err != nil {
			return nil, fmt.Errorf("config: client %d: %w", c.ClientID, err)
		}
		if _, err := c.OpWeights(); err != nil {
			return nil, fmt.Errorf("config: client %d: %w", c.ClientID, err)
		}
		out[c.ClientID] = c
	}
	return out, nil
}

// Phases converts the YAML behaviors into executor phases.
func (c ClientSpec) Phases() ([]behavior.Phase, error) {
	phases := make([]behavior.Phase, 0, len(c.Behaviors))
	for i, b := range c.Behaviors {
		var p behavior.Phase
		switch b.Type {
		case "STEADY":
			p = behavior.Phase{Type: behavior.Steady, QPS: b.RequestRateQPS, DurationS: b.DurationS}
		case "BURSTY":
			p = behavior.Phase{
				Type:    behavior.Bursty,
				QPS:     b.RequestRateQPS,
				BurstMS: b.BurstDurationMS,
				IdleMS:  b.IdleDurationMS,
				Repeats: b.Repeats,
			}
		case "INACTIVE":
			p = behavior.Phase{Type: behavior.Inactive, DurationS: b.DurationS}
		case "REPLAY":
			p = behavior.Phase{
				Type:       behavior.Replay,
				TraceFile:  b.TraceFile,
				ReplayID:   b.ReplayClientID,
				ScaleRatio: b.ScaleRatio,
			}
		default:
			return nil, fmt.Errorf("behavior %d: unknown type %q", i, b.Type)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("behavior %d: %w", i, err)
		}
		phases = append(phases, p)
	}
	return phases, nil
}

// OpWeights resolves the op mix. A missing op_distribution means 100% READ.
func (c ClientSpec) OpWeights() (map[stats.Op]float64, error) {
	if len(c.OpDistribution) == 0 {
		return map[stats.Op]float64{stats.OpRead: 1.0}, nil
	}
	out := make(map[stats.Op]float64, len(c.OpDistribution))
	total := 0.0
	for name, weight := range c.OpDistribution {
		op, err := stats.ParseOp(name)
		if err != nil {
			return nil, err
		}
		if weight < 0 {
			return nil, fmt.Errorf("op %s has negative weight %v", name, weight)
		}
		out[op] = weight
		total += weight
	}
	if total <= 0 {
		return nil, fmt.Errorf("op_distribution has no positive weights")
	}
	return out, nil
}
