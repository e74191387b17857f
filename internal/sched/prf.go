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

// Package sched is the fair-share scheduler: a periodic control loop that
// samples per-tenant usage, smooths it over a lookback window, computes a
// progressive-filling allocation per resource, and pushes the new shares to
// the rate limiter and write-buffer manager.
package sched

import "sort"

// PRF computes a max-min fair allocation of capacity over the smoothed
// demands by progressive filling. Tenants are satisfied from least to most
// demanding; a satisfied tenant receives ramp x demand (never below floor)
// so it can grow past its current usage without waiting a full window, and
// once demand outstrips the remaining fair share, the remainder is divided
// evenly. The result is normalized so the ramp headroom cannot push the sum
// past capacity, while every tenant keeps at least floor.
func PRF(capacity int64, demands []int64, ramp float64, floor int64) []int64 {
	n := len(demands)
	if n == 0 {
		return nil
	}
	alloc := make([]int64, n)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return demands[order[a]] < demands[order[b]]
	})

	remaining := capacity
	for pos, id := range order {
		unassigned := int64(n - pos)
		fair := remaining / unassigned
		demand := demands[id]
		if demand < fair {
			a := int64(ramp * float64(demand))
			if a < floor {
				a = floor
			}
			alloc[id] = a
			remaining -= demand
			continue
		}
		// Evenly divide what is left among everyone still unassigned.
		if fair < floor {
			fair = floor
		}
		for _, rest := range order[pos:] {
			alloc[rest] = fair
		}
		break
	}

	normalize(alloc, capacity, floor)
	return alloc
}

// normalize scales the allocation down when the ramp factor overshot
// capacity. Every tenant keeps its floor and only the part above the floor is
// scaled proportionally, so the result fits capacity whenever the floors do.
func normalize(alloc []int64, capacity, floor int64) {
	var sum, above int64
	for _, a := range alloc {
		sum += a
		if a > floor {
			above += a - floor
		}
	}
	if sum <= capacity {
		return
	}
	budget := capacity - floor*int64(len(alloc))
	for i, a := range alloc {
		s := floor
		if budget > 0 && a > floor {
			s += int64(float64(a-floor) * float64(budget) / float64(above))
		}
		alloc[i] = s
	}
}

// MemtableProjection converts a per-tenant memtable allocation in KB into
// (write_buffer_size_kb, max_write_buffer_number) pairs: every tenant gets
// the floor of minCount buffers of minKB, then the surplus capacity is dealt
// out as additional min-size buffers proportionally to demand. Sizes are
// bounded by maxKB and counts by what fits in a u8.
func MemtableProjection(allocKB []int64, capacityKB, maxKB, minKB int64, minCount int) (sizesKB []int64, counts []int) {
	n := len(allocKB)
	sizesKB = make([]int64, n)
	counts = make([]int, n)
	if n == 0 {
		return
	}
	size := minKB
	if size > maxKB {
		size = maxKB
	}
	var total int64
	for i := range allocKB {
		sizesKB[i] = size
		counts[i] = minCount
		total += allocKB[i]
	}

	surplus := (capacityKB - int64(n)*int64(minCount)*size) / size
	if surplus <= 0 {
		return
	}
	for i := range allocKB {
		var p float64
		if total > 0 {
			p = float64(allocKB[i]) / float64(total)
		} else {
			p = 1.0 / float64(n)
		}
		counts[i] += int(p * float64(surplus))
		if counts[i] > 255 {
			counts[i] = 255
		}
	}
	return
}
