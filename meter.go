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

package fairdb

import "sync/atomic"

// cache line size varies; we over-pad to 128 bytes to avoid false sharing
// between tenants hammering adjacent counters.
const meterPad = 128 - 8 // atomic.Int64 is 8 bytes; remainder to reach >=128

type meterCell struct {
	val atomic.Int64
	_   [meterPad]byte
}

// Meter holds cumulative per-(tenant, resource) usage counters. Adds are
// byte-granular relaxed atomic increments; snapshots report KB. Each counter
// is read atomically on its own; a copy is not consistent across the three
// counters of one tenant, nor across tenants. Counters never decrease.
type Meter struct {
	tenants int
	cells   []meterCell // tenants * numResources, tenant-major
}

// NewMeter creates a meter for the given tenant count. Tenant ids are dense
// integers in [0, tenants).
func NewMeter(tenants int) *Meter {
	return &Meter{
		tenants: tenants,
		cells:   make([]meterCell, tenants*int(numResources)),
	}
}

// Tenants returns the number of tenants the meter was sized for.
func (m *Meter) Tenants() int { return m.tenants }

// Add accumulates bytes into the (tenant, resource) counter. Negative deltas
// are ignored to preserve monotonicity.
func (m *Meter) Add(tenant int, r Resource, bytes int64) {
	if bytes <= 0 {
		return
	}
	m.cells[tenant*int(numResources)+int(r)].val.Add(bytes)
}

// Bytes reads one raw counter.
func (m *Meter) Bytes(tenant int, r Resource) int64 {
	return m.cells[tenant*int(numResources)+int(r)].val.Load()
}

// Usage returns one tenant's cumulative counters in KB.
func (m *Meter) Usage(tenant int) ResourceUsage {
	return ResourceUsage{
		IOWriteKB:  m.Bytes(tenant, ResourceIOWrite) / 1024,
		IOReadKB:   m.Bytes(tenant, ResourceIORead) / 1024,
		MemWriteKB: m.Bytes(tenant, ResourceMemWrite) / 1024,
	}
}

// Snapshot copies all counters. Each counter is loaded separately, so any
// value in the copy, within one tenant or across tenants, may lag or lead
// another by in-flight adds.
func (m *Meter) Snapshot() []ResourceUsage {
	out := make([]ResourceUsage, m.tenants)
	for i := 0; i < m.tenants; i++ {
		out[i] = m.Usage(i)
	}
	return out
}
