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
	"context"
	"testing"
	"time"
)

func BenchmarkMeterAdd(b *testing.B) {
	m := NewMeter(8)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Add(3, ResourceIOWrite, 4096)
		}
	})
}

func BenchmarkMeterSnapshot(b *testing.B) {
	m := NewMeter(8)
	for t := 0; t < 8; t++ {
		m.Add(t, ResourceIOWrite, 1<<20)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}
}

func BenchmarkLimiterUncontendedGrant(b *testing.B) {
	l, err := NewLimiter(LimiterOptions{Tenants: 1, RefillPeriod: time.Millisecond, InitialKBPS: 1 << 30})
	if err != nil {
		b.Fatal(err)
	}
	defer l.Close()
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = l.Acquire(ctx, 0, DirWrite, 1, PriorityHigh)
	}
}
