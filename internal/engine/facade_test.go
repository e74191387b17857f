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

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fairdb"
	"fairdb/internal/stats"
	"fairdb/internal/writebuffer"
)

// newTestFacade wires a facade over memdb with generous rates so grants do
// not stall the test.
func newTestFacade(t *testing.T, tenants int) (*Facade, *fairdb.Meter, *stats.Measurements) {
	t.Helper()
	meter := fairdb.NewMeter(tenants)
	limiter, err := fairdb.NewLimiter(fairdb.LimiterOptions{
		Tenants:      tenants,
		RefillPeriod: time.Millisecond,
		InitialKBPS:  1 << 22, // ~4 GB/s
	})
	require.NoError(t, err)
	t.Cleanup(limiter.Close)

	buffers, err := writebuffer.NewManager(writebuffer.Options{
		Tenants:          tenants,
		TotalCapBytes:    256 << 20,
		MinMemtableBytes: 16 << 20,
		MinMemtableCount: 2,
	})
	require.NoError(t, err)

	meas := stats.NewMeasurements(tenants)
	f := NewFacade(newMemDB(), limiter, buffers, meter, meas, zap.NewNop(),
		FacadeOptions{Tenants: tenants})
	t.Cleanup(f.Close)
	return f, meter, meas
}

func TestFacadeWritePathAccounting(t *testing.T) {
	f, meter, meas := newTestFacade(t, 2)
	ctx := context.Background()

	values := []Field{{Name: "field0", Value: make([]byte, 1000)}}
	require.NoError(t, f.Insert(ctx, 0, "cf0", "user1", values, fairdb.PriorityUser))

	want := RowBytes("user1", values)
	require.Equal(t, want, meter.Bytes(0, fairdb.ResourceIOWrite))
	require.Equal(t, want, meter.Bytes(0, fairdb.ResourceMemWrite))
	require.Zero(t, meter.Bytes(1, fairdb.ResourceIOWrite), "wrong tenant accounted")

	rows := meas.Drain()
	require.Len(t, rows, 1)
	require.Equal(t, stats.OpInsert, rows[0].Op)
	require.EqualValues(t, 1, rows[0].Count)
}

func TestFacadeReadAccountsActualBytes(t *testing.T) {
	f, meter, meas := newTestFacade(t, 1)
	ctx := context.Background()

	values := []Field{{Name: "field0", Value: make([]byte, 500)}}
	require.NoError(t, f.Insert(ctx, 0, "cf0", "user1", values, fairdb.PriorityUser))

	require.NoError(t, f.Read(ctx, 0, "cf0", "user1", nil, fairdb.PriorityUser))
	require.Equal(t, FieldsBytes(values), meter.Bytes(0, fairdb.ResourceIORead))

	// A miss transfers nothing and counts as a failed read.
	require.ErrorIs(t, f.Read(ctx, 0, "cf0", "missing", nil, fairdb.PriorityUser), ErrNotFound)
	require.Equal(t, FieldsBytes(values), meter.Bytes(0, fairdb.ResourceIORead))

	var okReads, failedReads int64
	for _, r := range meas.Drain() {
		switch r.Op {
		case stats.OpRead:
			okReads = r.Count
		case stats.OpReadFailed:
			failedReads = r.Count
		}
	}
	require.EqualValues(t, 1, okReads)
	require.EqualValues(t, 1, failedReads)
}

func TestFacadeReadModifyWrite(t *testing.T) {
	f, meter, meas := newTestFacade(t, 1)
	ctx := context.Background()

	seed := []Field{{Name: "field0", Value: []byte("before")}}
	require.NoError(t, f.Insert(ctx, 0, "cf0", "user1", seed, fairdb.PriorityUser))

	update := []Field{{Name: "field0", Value: []byte("after")}}
	require.NoError(t, f.ReadModifyWrite(ctx, 0, "cf0", "user1", nil, update, fairdb.PriorityUser))

	require.Positive(t, meter.Bytes(0, fairdb.ResourceIORead))
	require.Positive(t, meter.Bytes(0, fairdb.ResourceIOWrite))

	found := false
	for _, r := range meas.Drain() {
		if r.Op == stats.OpReadModifyWrite {
			found = true
			require.EqualValues(t, 1, r.Count)
		}
	}
	require.True(t, found, "READMODIFYWRITE not measured")

	row, err := f.DB().Read(ctx, "cf0", "user1", nil)
	require.NoError(t, err)
	require.Equal(t, []byte("after"), row[0].Value)
}

func TestFacadeScanAndBatch(t *testing.T) {
	f, meter, _ := newTestFacade(t, 1)
	ctx := context.Background()

	kvs := make([]KV, 5)
	for i := range kvs {
		kvs[i] = KV{Key: KeyNameForTest(i), Values: []Field{{Name: "field0", Value: []byte("v")}}}
	}
	require.NoError(t, f.InsertBatch(ctx, 0, "cf0", kvs, fairdb.PriorityUser))

	before := meter.Bytes(0, fairdb.ResourceIORead)
	require.NoError(t, f.Scan(ctx, 0, "cf0", kvs[0].Key, 3, nil, fairdb.PriorityUser))
	require.Greater(t, meter.Bytes(0, fairdb.ResourceIORead), before)
}

// KeyNameForTest builds deterministic ordered keys without importing the
// workload package (which would cycle).
func KeyNameForTest(i int) string {
	return "user" + string(rune('0'+i))
}

func TestFacadeCounters(t *testing.T) {
	f, _, _ := newTestFacade(t, 2)
	ctx := context.Background()

	values := []Field{{Name: "field0", Value: make([]byte, 4096)}}
	require.NoError(t, f.Insert(ctx, 1, "cf1", "user1", values, fairdb.PriorityUser))

	counters := f.Counters()
	require.Len(t, counters, 2)
	require.Positive(t, counters[1].IOWriteKB)
	require.Zero(t, counters[0].IOWriteKB)
}
