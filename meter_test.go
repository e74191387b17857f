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

import (
	"sync"
	"testing"
	"time"
)

func TestMeter_Basics(t *testing.T) {
	m := NewMeter(3)

	m.Add(0, ResourceIOWrite, 10*1024)
	m.Add(0, ResourceIOWrite, 5*1024)
	m.Add(1, ResourceIORead, 7*1024)
	m.Add(2, ResourceMemWrite, 3*1024)
	m.Add(2, ResourceMemWrite, -100) // ignored: counters are monotonic

	snap := m.Snapshot()
	if got := snap[0].IOWriteKB; got != 15 {
		t.Errorf("tenant 0 IOWriteKB = %d, want 15", got)
	}
	if got := snap[1].IOReadKB; got != 7 {
		t.Errorf("tenant 1 IOReadKB = %d, want 7", got)
	}
	if got := snap[2].MemWriteKB; got != 3 {
		t.Errorf("tenant 2 MemWriteKB = %d, want 3", got)
	}
	if snap[0].IOReadKB != 0 || snap[0].MemWriteKB != 0 {
		t.Errorf("tenant 0 unexpected cross-resource bleed: %+v", snap[0])
	}
	if got := m.Bytes(0, ResourceIOWrite); got != 15*1024 {
		t.Errorf("raw bytes = %d, want %d", got, 15*1024)
	}
}

// TestMeter_Monotonic hammers one counter from many goroutines and verifies
// that successive reads of that counter never decrease.
func TestMeter_Monotonic(t *testing.T) {
	m := NewMeter(2)
	done := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					m.Add(1, ResourceIOWrite, 1)
				}
			}
		}()
	}

	prev := int64(-1)
	for i := 0; i < 1000; i++ {
		cur := m.Bytes(1, ResourceIOWrite)
		if cur < prev {
			t.Fatalf("counter went backwards: %d -> %d", prev, cur)
		}
		prev = cur
	}
	close(done)
	wg.Wait()
}

func TestUsageRate(t *testing.T) {
	prev := ResourceUsage{IOWriteKB: 100, IOReadKB: 50, MemWriteKB: 10}
	cur := ResourceUsage{IOWriteKB: 300, IOReadKB: 150, MemWriteKB: 60}

	rate := UsageRate(prev, cur, 500*time.Millisecond)
	if rate.IOWriteKB != 400 || rate.IOReadKB != 200 || rate.MemWriteKB != 100 {
		t.Errorf("UsageRate = %+v, want {400 200 100}", rate)
	}

	if got := UsageRate(prev, cur, 0); got != (ResourceUsage{}) {
		t.Errorf("zero interval should yield zero rate, got %+v", got)
	}
}

func TestMaxUsage(t *testing.T) {
	a := ResourceUsage{IOWriteKB: 5, IOReadKB: 20, MemWriteKB: 1}
	b := ResourceUsage{IOWriteKB: 9, IOReadKB: 3, MemWriteKB: 1}
	got := MaxUsage(a, b)
	want := ResourceUsage{IOWriteKB: 9, IOReadKB: 20, MemWriteKB: 1}
	if got != want {
		t.Errorf("MaxUsage = %+v, want %+v", got, want)
	}
}
