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

package sched

import "testing"

const (
	testCap   = int64(200 * 1024) // 200 MB/s in KB/s
	testFloor = int64(10 * 1024)
	testRamp  = 1.5
)

func sum(v []int64) int64 {
	var s int64
	for _, x := range v {
		s += x
	}
	return s
}

// Starvation freedom: every tenant gets at least the floor every cycle.
func TestPRF_Floor(t *testing.T) {
	cases := []struct {
		name    string
		demands []int64
	}{
		{"AllIdle", []int64{0, 0, 0, 0}},
		{"OneHog", []int64{500 * 1024, 0, 0, 0}},
		{"Mixed", []int64{1, 100, 50 * 1024, 500 * 1024}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alloc := PRF(testCap, tc.demands, testRamp, testFloor)
			for i, a := range alloc {
				if a < testFloor {
					t.Errorf("tenant %d alloc %d below floor %d", i, a, testFloor)
				}
			}
		})
	}
}

// Capacity: the allocation sums to at most the cap within 1% tolerance.
func TestPRF_Capacity(t *testing.T) {
	cases := [][]int64{
		{500 * 1024, 500 * 1024},
		{500 * 1024, 0},
		{100, 200, 300, 400},
		{50 * 1024, 50 * 1024, 50 * 1024, 50 * 1024},
	}
	for _, demands := range cases {
		alloc := PRF(testCap, demands, testRamp, testFloor)
		if s := sum(alloc); s > testCap+testCap/100 {
			t.Errorf("demands %v: sum %d exceeds cap %d by more than 1%%", demands, s, testCap)
		}
	}
}

// Max-min fairness under uniform saturated demand: everyone gets cap/N.
func TestPRF_UniformDemand(t *testing.T) {
	demands := []int64{500 * 1024, 500 * 1024, 500 * 1024, 500 * 1024}
	alloc := PRF(testCap, demands, testRamp, testFloor)
	want := testCap / int64(len(demands))
	for i, a := range alloc {
		if diff := a - want; diff < -testFloor || diff > testFloor {
			t.Errorf("tenant %d alloc %d, want %d +/- floor", i, a, want)
		}
	}
}

// A single tenant with saturated demand gets the whole cap.
func TestPRF_SingleTenant(t *testing.T) {
	alloc := PRF(testCap, []int64{500 * 1024}, testRamp, testFloor)
	if alloc[0] != testCap {
		t.Errorf("single saturated tenant alloc %d, want %d", alloc[0], testCap)
	}
}

// All idle: floors only, summing within cap.
func TestPRF_AllIdle(t *testing.T) {
	alloc := PRF(testCap, []int64{0, 0, 0, 0}, testRamp, testFloor)
	for i, a := range alloc {
		if a != testFloor {
			t.Errorf("idle tenant %d alloc %d, want floor %d", i, a, testFloor)
		}
	}
	if s := sum(alloc); s > testCap {
		t.Errorf("idle allocations sum %d exceed cap %d", s, testCap)
	}
}

// A small demand is ramped above its observed usage so a waking tenant can
// grow next cycle, even after normalization trims the overshoot.
func TestPRF_RampHeadroom(t *testing.T) {
	demands := []int64{40 * 1024, 500 * 1024}
	alloc := PRF(testCap, demands, 2.0, testFloor)
	if alloc[0] <= demands[0] {
		t.Errorf("ramped alloc %d, want headroom above demand %d", alloc[0], demands[0])
	}
}

// The allocation is insensitive to tenant order: sorting is by demand, but
// results map back to tenant ids.
func TestPRF_OrderIndependent(t *testing.T) {
	a := PRF(testCap, []int64{100 * 1024, 10 * 1024, 300 * 1024}, testRamp, testFloor)
	b := PRF(testCap, []int64{10 * 1024, 300 * 1024, 100 * 1024}, testRamp, testFloor)
	if a[0] != b[2] || a[1] != b[0] || a[2] != b[1] {
		t.Errorf("permuted demands produced inconsistent allocations: %v vs %v", a, b)
	}
}

func TestMemtableProjection(t *testing.T) {
	const (
		capacityKB = int64(1024 * 1024) // 1 GB
		minKB      = int64(16 * 1024)
		maxKB      = int64(64 * 1024)
		minCount   = 2
	)

	t.Run("FloorsFirst", func(t *testing.T) {
		sizes, counts := MemtableProjection([]int64{0, 0, 0, 0}, capacityKB, maxKB, minKB, minCount)
		for i := range sizes {
			if sizes[i] != minKB {
				t.Errorf("tenant %d size %d, want min %d", i, sizes[i], minKB)
			}
			if counts[i] < minCount {
				t.Errorf("tenant %d count %d below min %d", i, counts[i], minCount)
			}
		}
	})

	t.Run("SurplusFollowsDemand", func(t *testing.T) {
		sizes, counts := MemtableProjection([]int64{300 * 1024, 100 * 1024}, capacityKB, maxKB, minKB, minCount)
		if counts[0] <= counts[1] {
			t.Errorf("high-demand tenant got %d buffers, low-demand got %d", counts[0], counts[1])
		}
		var total int64
		for i := range sizes {
			total += sizes[i] * int64(counts[i])
		}
		if total > capacityKB {
			t.Errorf("projected total %d KB exceeds capacity %d KB", total, capacityKB)
		}
	})

	t.Run("EqualDemandEqualSplit", func(t *testing.T) {
		_, counts := MemtableProjection([]int64{100, 100, 100, 100}, capacityKB, maxKB, minKB, minCount)
		for i := 1; i < len(counts); i++ {
			if counts[i] != counts[0] {
				t.Errorf("equal demand produced unequal counts: %v", counts)
			}
		}
	})
}
