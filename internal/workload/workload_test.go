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

package workload

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fairdb"
	"fairdb/internal/engine"
	"fairdb/internal/stats"
	"fairdb/internal/writebuffer"
)

func testFacade(t *testing.T) *engine.Facade {
	t.Helper()
	limiter, err := fairdb.NewLimiter(fairdb.LimiterOptions{
		Tenants: 1, RefillPeriod: time.Millisecond, InitialKBPS: 1 << 22,
	})
	require.NoError(t, err)
	t.Cleanup(limiter.Close)

	buffers, err := writebuffer.NewManager(writebuffer.Options{
		Tenants: 1, TotalCapBytes: 256 << 20, MinMemtableBytes: 16 << 20, MinMemtableCount: 2,
	})
	require.NoError(t, err)

	db, err := engine.Create("memdb", nil)
	require.NoError(t, err)
	f := engine.NewFacade(db, limiter, buffers, fairdb.NewMeter(1),
		stats.NewMeasurements(1), zap.NewNop(), engine.FacadeOptions{Tenants: 1})
	t.Cleanup(f.Close)
	return f
}

func TestKeyName(t *testing.T) {
	require.Equal(t, "user0", KeyName(0))
	require.Equal(t, "user12345", KeyName(12345))
}

func TestWorkloadValidation(t *testing.T) {
	_, err := New(Options{Table: "cf0"})
	require.Error(t, err, "zero record count must be rejected")

	_, err = New(Options{Table: "cf0", RecordCount: 10, RequestDist: "exotic"})
	require.Error(t, err)

	_, err = New(Options{Table: "cf0", RecordCount: 10, FieldLenDist: "exotic"})
	require.Error(t, err)
}

func TestDefaultMixIsAllReads(t *testing.T) {
	w, err := New(Options{Table: "cf0", RecordCount: 100})
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.Equal(t, stats.OpRead, w.NextOp())
	}
}

func TestLoadThenTransactions(t *testing.T) {
	ctx := context.Background()
	f := testFacade(t)

	const records = 200
	w, err := New(Options{
		Table:       "cf0",
		RecordCount: records,
		OpWeights: map[stats.Op]float64{
			stats.OpRead:   0.5,
			stats.OpUpdate: 0.2,
			stats.OpInsert: 0.2,
			stats.OpScan:   0.1,
		},
		FieldCount: 3,
		FieldLen:   32,
		Seed:       42,
	})
	require.NoError(t, err)

	for i := 0; i < records; i++ {
		require.NoError(t, w.DoInsert(ctx, f, 0))
	}

	// Every loaded key is present under the canonical name.
	_, err = f.DB().Read(ctx, "cf0", KeyName(0), nil)
	require.NoError(t, err)
	_, err = f.DB().Read(ctx, "cf0", KeyName(records-1), nil)
	require.NoError(t, err)

	// A burst of mixed transactions runs without failures against the
	// seeded keyspace (reads target only acknowledged keys).
	for i := 0; i < 500; i++ {
		require.NoError(t, w.DoTransaction(ctx, f, 0))
	}
}

func TestDoOpEveryKind(t *testing.T) {
	ctx := context.Background()
	f := testFacade(t)

	w, err := New(Options{Table: "cf0", RecordCount: 100, BatchSize: 4, Seed: 7})
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, w.DoInsert(ctx, f, 0))
	}

	ops := []stats.Op{
		stats.OpRead, stats.OpReadBatch, stats.OpUpdate, stats.OpInsert,
		stats.OpInsertBatch, stats.OpScan, stats.OpReadModifyWrite,
		stats.OpReadModifyInsertBatch, stats.OpRandomInsert,
	}
	for _, op := range ops {
		require.NoError(t, w.DoOp(ctx, f, 0, op), "op %v", op)
	}
	// Delete succeeds against a key that exists.
	require.NoError(t, w.DoOp(ctx, f, 0, stats.OpDelete))
}
