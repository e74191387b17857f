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
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fairdb"
	"fairdb/internal/stats"
	"fairdb/internal/writebuffer"
)

// FacadeOptions tunes the facade's data-plane behavior.
type FacadeOptions struct {
	// Tenants is the number of tenants sharing the engine.
	Tenants int

	// FlushDelay simulates the drain time of one memtable flush before its
	// bytes are released back to the budget. Default 2ms.
	FlushDelay time.Duration

	// StallRetry is the cadence at which a stalled write re-attempts its
	// memtable reservation. Default 1ms.
	StallRetry time.Duration
}

// Facade is the uniform KV operation surface the workers call. Every call is
// tagged with a tenant id and runs the same path: token acquisition (writes
// sized by key+value footprint, reads accounted at grant from actual bytes),
// memtable reservation for writes, the backend op, and a latency report.
type Facade struct {
	db      DB
	limiter *fairdb.Limiter
	buffers *writebuffer.Manager
	meter   *fairdb.Meter
	meas    *stats.Measurements
	log     *zap.Logger
	opts    FacadeOptions

	pending []atomic.Int64 // unflushed memtable bytes per tenant

	wg        sync.WaitGroup
	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewFacade wires the facade and starts one flusher per tenant. The flusher
// consumes the write-buffer manager's flush requests, models the flush drain,
// and releases the tenant's pending bytes.
func NewFacade(db DB, limiter *fairdb.Limiter, buffers *writebuffer.Manager,
	meter *fairdb.Meter, meas *stats.Measurements, log *zap.Logger, opts FacadeOptions) *Facade {
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 2 * time.Millisecond
	}
	if opts.StallRetry <= 0 {
		opts.StallRetry = time.Millisecond
	}
	f := &Facade{
		db:      db,
		limiter: limiter,
		buffers: buffers,
		meter:   meter,
		meas:    meas,
		log:     log,
		opts:    opts,
		pending: make([]atomic.Int64, opts.Tenants),
		stopCh:  make(chan struct{}),
	}
	for t := 0; t < opts.Tenants; t++ {
		f.wg.Add(1)
		go f.flusher(t)
	}
	return f
}

// DB exposes the wrapped backend for load-phase direct access.
func (f *Facade) DB() DB { return f.db }

// Counters returns the cumulative per-tenant usage the scheduler samples.
func (f *Facade) Counters() []fairdb.ResourceUsage { return f.meter.Snapshot() }

// CacheStats reports the backend's hit/miss counters for a table, or zeros
// when the backend keeps none.
func (f *Facade) CacheStats(table string) (hits, misses uint64) {
	if c, ok := f.db.(CacheCounters); ok {
		return c.CacheStats(table)
	}
	return 0, 0
}

// Close stops the flushers. In-flight operations finish on their own.
func (f *Facade) Close() {
	f.closeOnce.Do(func() { close(f.stopCh) })
	f.wg.Wait()
}

func (f *Facade) flusher(tenant int) {
	defer f.wg.Done()
	for {
		select {
		case <-f.stopCh:
			return
		case <-f.buffers.FlushRequests(tenant):
			select {
			case <-time.After(f.opts.FlushDelay):
			case <-f.stopCh:
				return
			}
			if n := f.pending[tenant].Swap(0); n > 0 {
				f.buffers.Release(tenant, uint64(n))
			}
		}
	}
}

// reserveMemtable retries the tenant's reservation until it commits or the
// caller is cancelled. Stalls manifest as latency, never as errors.
func (f *Facade) reserveMemtable(ctx context.Context, tenant int, bytes uint64) error {
	for {
		if f.buffers.Reserve(tenant, bytes) {
			return nil
		}
		select {
		case <-time.After(f.opts.StallRetry):
		case <-ctx.Done():
			return fairdb.ErrCancelled
		case <-f.stopCh:
			return fairdb.ErrCancelled
		}
	}
}

// report classifies the result and records service latency. Cancellation is
// a drain: it leaves no trace in the histograms.
func (f *Facade) report(tenant int, op stats.Op, start time.Time, err error) {
	if errors.Is(err, fairdb.ErrCancelled) {
		return
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			f.log.Debug("read miss", zap.Int("tenant", tenant), zap.Stringer("op", op))
		}
		op = op.Failed()
	}
	f.meas.Report(tenant, op, time.Since(start))
}

// write runs the shared write path around fn, whose serialized footprint is
// bytes.
func (f *Facade) write(ctx context.Context, tenant int, op stats.Op, bytes int64,
	pri fairdb.Priority, fn func() error) error {
	start := time.Now()
	if err := f.limiter.Acquire(ctx, tenant, fairdb.DirWrite, bytes, pri); err != nil {
		return err
	}
	f.meter.Add(tenant, fairdb.ResourceIOWrite, bytes)
	if err := f.reserveMemtable(ctx, tenant, uint64(bytes)); err != nil {
		return err
	}
	f.meter.Add(tenant, fairdb.ResourceMemWrite, bytes)
	f.pending[tenant].Add(bytes)
	err := fn()
	f.report(tenant, op, start, err)
	return err
}

// read runs the shared read path: the backend op first, then a token grant
// sized by the bytes actually returned. The grant wait is part of the
// measured service latency.
func (f *Facade) read(ctx context.Context, tenant int, op stats.Op,
	pri fairdb.Priority, fn func() (int64, error)) error {
	start := time.Now()
	actual, err := fn()
	if err == nil && actual > 0 {
		if aerr := f.limiter.Acquire(ctx, tenant, fairdb.DirRead, actual, pri); aerr != nil {
			return aerr
		}
		f.meter.Add(tenant, fairdb.ResourceIORead, actual)
	}
	f.report(tenant, op, start, err)
	return err
}

// Read fetches one row, optionally filtered to named fields.
func (f *Facade) Read(ctx context.Context, tenant int, table, key string,
	fields []string, pri fairdb.Priority) error {
	return f.read(ctx, tenant, stats.OpRead, pri, func() (int64, error) {
		row, err := f.db.Read(ctx, table, key, fields)
		return FieldsBytes(row), err
	})
}

// ReadBatch fetches several rows; the grant is sized by the batch total.
func (f *Facade) ReadBatch(ctx context.Context, tenant int, table string,
	keys []string, fields []string, pri fairdb.Priority) error {
	return f.read(ctx, tenant, stats.OpReadBatch, pri, func() (int64, error) {
		var total int64
		for _, key := range keys {
			row, err := f.db.Read(ctx, table, key, fields)
			if err != nil {
				return total, err
			}
			total += FieldsBytes(row)
		}
		return total, nil
	})
}

// Scan walks count rows from startKey.
func (f *Facade) Scan(ctx context.Context, tenant int, table, startKey string,
	count int, fields []string, pri fairdb.Priority) error {
	return f.read(ctx, tenant, stats.OpScan, pri, func() (int64, error) {
		rows, err := f.db.Scan(ctx, table, startKey, count, fields)
		var total int64
		for _, row := range rows {
			total += FieldsBytes(row)
		}
		return total, err
	})
}

// Update rewrites the named fields of an existing row.
func (f *Facade) Update(ctx context.Context, tenant int, table, key string,
	values []Field, pri fairdb.Priority) error {
	return f.write(ctx, tenant, stats.OpUpdate, RowBytes(key, values), pri, func() error {
		return f.db.Update(ctx, table, key, values)
	})
}

// Insert writes a new row at the tail of the tenant's key sequence.
func (f *Facade) Insert(ctx context.Context, tenant int, table, key string,
	values []Field, pri fairdb.Priority) error {
	return f.write(ctx, tenant, stats.OpInsert, RowBytes(key, values), pri, func() error {
		return f.db.Insert(ctx, table, key, values)
	})
}

// RandomInsert is Insert against a randomly chosen key, measured separately.
func (f *Facade) RandomInsert(ctx context.Context, tenant int, table, key string,
	values []Field, pri fairdb.Priority) error {
	return f.write(ctx, tenant, stats.OpRandomInsert, RowBytes(key, values), pri, func() error {
		return f.db.Insert(ctx, table, key, values)
	})
}

// InsertBatch writes a batch of rows in one backend call.
func (f *Facade) InsertBatch(ctx context.Context, tenant int, table string,
	kvs []KV, pri fairdb.Priority) error {
	var bytes int64
	for _, kv := range kvs {
		bytes += RowBytes(kv.Key, kv.Values)
	}
	return f.write(ctx, tenant, stats.OpInsertBatch, bytes, pri, func() error {
		return f.db.InsertBatch(ctx, table, kvs)
	})
}

// ReadModifyWrite reads a row and writes updated fields back.
func (f *Facade) ReadModifyWrite(ctx context.Context, tenant int, table, key string,
	readFields []string, values []Field, pri fairdb.Priority) error {
	start := time.Now()
	row, err := f.db.Read(ctx, table, key, readFields)
	if err == nil {
		if actual := FieldsBytes(row); actual > 0 {
			if aerr := f.limiter.Acquire(ctx, tenant, fairdb.DirRead, actual, pri); aerr != nil {
				return aerr
			}
			f.meter.Add(tenant, fairdb.ResourceIORead, actual)
		}
		bytes := RowBytes(key, values)
		if err = f.limiter.Acquire(ctx, tenant, fairdb.DirWrite, bytes, pri); err != nil {
			return err
		}
		f.meter.Add(tenant, fairdb.ResourceIOWrite, bytes)
		if err = f.reserveMemtable(ctx, tenant, uint64(bytes)); err != nil {
			return err
		}
		f.meter.Add(tenant, fairdb.ResourceMemWrite, bytes)
		f.pending[tenant].Add(bytes)
		err = f.db.Update(ctx, table, key, values)
	}
	f.report(tenant, stats.OpReadModifyWrite, start, err)
	return err
}

// ReadModifyInsertBatch reads one anchor row then inserts a batch derived
// from it.
func (f *Facade) ReadModifyInsertBatch(ctx context.Context, tenant int, table, readKey string,
	kvs []KV, pri fairdb.Priority) error {
	start := time.Now()
	row, err := f.db.Read(ctx, table, readKey, nil)
	if err == nil || errors.Is(err, ErrNotFound) {
		if actual := FieldsBytes(row); actual > 0 {
			if aerr := f.limiter.Acquire(ctx, tenant, fairdb.DirRead, actual, pri); aerr != nil {
				return aerr
			}
			f.meter.Add(tenant, fairdb.ResourceIORead, actual)
		}
		var bytes int64
		for _, kv := range kvs {
			bytes += RowBytes(kv.Key, kv.Values)
		}
		if err = f.limiter.Acquire(ctx, tenant, fairdb.DirWrite, bytes, pri); err != nil {
			return err
		}
		f.meter.Add(tenant, fairdb.ResourceIOWrite, bytes)
		if err = f.reserveMemtable(ctx, tenant, uint64(bytes)); err != nil {
			return err
		}
		f.meter.Add(tenant, fairdb.ResourceMemWrite, bytes)
		f.pending[tenant].Add(bytes)
		err = f.db.InsertBatch(ctx, table, kvs)
	}
	f.report(tenant, stats.OpReadModifyInsertBatch, start, err)
	return err
}

// Delete removes one row. Deletes are writes for rate-limiting purposes but
// carry only the key footprint.
func (f *Facade) Delete(ctx context.Context, tenant int, table, key string,
	pri fairdb.Priority) error {
	return f.write(ctx, tenant, stats.OpDelete, int64(len(key)), pri, func() error {
		return f.db.Delete(ctx, table, key)
	})
}
