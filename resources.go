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

// Package fairdb provides the hot-path resource-accounting primitives of the
// multi-tenant benchmark harness: byte-granular usage counters and a
// per-tenant token-bucket rate limiter for read and write I/O.
package fairdb

import (
	"fmt"
	"time"
)

// Resource identifies one of the three contended resources tracked per tenant.
type Resource int

const (
	ResourceIOWrite Resource = iota
	ResourceIORead
	ResourceMemWrite

	numResources
)

// Direction selects the read or write side of the I/O rate limiter.
type Direction int

const (
	DirWrite Direction = iota
	DirRead

	numDirections
)

func (d Direction) String() string {
	if d == DirRead {
		return "read"
	}
	return "write"
}

// Priority tags an acquisition. PriorityHigh bypasses the waiter queue and may
// drive a bucket's token count negative; the debt is repaid by later refills.
type Priority int

const (
	PriorityUser Priority = iota
	PriorityHigh
)

// ResourceShares is one tenant's allocation as computed by the scheduler.
type ResourceShares struct {
	WriteKBPS     uint32
	ReadKBPS      uint32
	MemtableKB    uint32
	MemtableCount uint8
}

// CSV renders the shares in resource_shares.log column order:
// write_rate_limit_kbs,read_rate_limit_kbs,write_buffer_size_kb,max_write_buffer_number.
func (s ResourceShares) CSV() string {
	return fmt.Sprintf("%d,%d,%d,%d", s.WriteKBPS, s.ReadKBPS, s.MemtableKB, s.MemtableCount)
}

// ResourceUsage is a tenant's cumulative usage counters in KB. Counters only
// increase; interval rates are derived by differencing two snapshots.
type ResourceUsage struct {
	IOWriteKB  int64
	IOReadKB   int64
	MemWriteKB int64
}

// CSV renders the usage in resource_usage.log column order:
// io_write_kbs,io_read_kbs,mem_write_kbs.
func (u ResourceUsage) CSV() string {
	return fmt.Sprintf("%d,%d,%d", u.IOWriteKB, u.IOReadKB, u.MemWriteKB)
}

// UsageRate converts two cumulative snapshots into a per-second KB rate over
// the given interval. A non-positive interval yields a zero rate.
func UsageRate(prev, cur ResourceUsage, interval time.Duration) ResourceUsage {
	secs := interval.Seconds()
	if secs <= 0 {
		return ResourceUsage{}
	}
	return ResourceUsage{
		IOWriteKB:  int64(float64(cur.IOWriteKB-prev.IOWriteKB) / secs),
		IOReadKB:   int64(float64(cur.IOReadKB-prev.IOReadKB) / secs),
		MemWriteKB: int64(float64(cur.MemWriteKB-prev.MemWriteKB) / secs),
	}
}

// MaxUsage takes the per-resource maximum of two usage vectors. The scheduler
// uses this to fold a lookback window into its smoothed demand estimate.
func MaxUsage(a, b ResourceUsage) ResourceUsage {
	return ResourceUsage{
		IOWriteKB:  maxi64(a.IOWriteKB, b.IOWriteKB),
		IOReadKB:   maxi64(a.IOReadKB, b.IOReadKB),
		MemWriteKB: maxi64(a.MemWriteKB, b.MemWriteKB),
	}
}

func maxi64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
