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
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"

	"fairdb"
	"fairdb/internal/engine"
	"fairdb/internal/stats"
)

// Options describes one tenant's workload shape.
type Options struct {
	Table       string
	RecordCount int64
	InsertStart int64

	// RequestDist is uniform, zipfian, or latest. Default uniform.
	RequestDist  string
	ZipfianConst *float64

	// OpWeights is the tenant's operation mix; empty means 100% READ.
	OpWeights map[stats.Op]float64

	// OperationCount sizes the zipfian keyspace headroom for new keys.
	OperationCount int64

	FieldCount   int
	FieldLen     int
	FieldLenDist string // constant, uniform, zipfian
	FieldPrefix  string

	ReadAllFields  bool
	WriteAllFields bool

	MinScanLen  int
	MaxScanLen  int
	ScanLenDist string // uniform, zipfian

	BatchSize int

	Seed uint64
}

func (o *Options) applyDefaults() {
	if o.RequestDist == "" {
		o.RequestDist = "uniform"
	}
	if o.FieldCount <= 0 {
		o.FieldCount = 10
	}
	if o.FieldLen <= 0 {
		o.FieldLen = 100
	}
	if o.FieldLenDist == "" {
		o.FieldLenDist = "constant"
	}
	if o.FieldPrefix == "" {
		o.FieldPrefix = "field"
	}
	if o.MinScanLen <= 0 {
		o.MinScanLen = 1
	}
	if o.MaxScanLen <= 0 {
		o.MaxScanLen = 100
	}
	if o.ScanLenDist == "" {
		o.ScanLenDist = "uniform"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 16
	}
	if o.Seed == 0 {
		o.Seed = 0x5eed
	}
}

// Workload synthesizes one tenant's requests: key selection, row payloads,
// and the weighted op choice. Safe for concurrent use by multiple workers.
type Workload struct {
	opts Options

	opChooser  *Discrete[stats.Op]
	keyChooser IntGenerator
	loadSeq    *Counter
	insertSeq  *AcknowledgedCounter
	fieldLen   IntGenerator
	fieldIdx   *Uniform
	scanLen    IntGenerator

	mu sync.Mutex
	r  *rand.Rand
}

// New validates options and builds the tenant's generators.
func New(opts Options) (*Workload, error) {
	opts.applyDefaults()
	if opts.RecordCount <= 0 {
		return nil, fmt.Errorf("workload: record count must be positive, have %d", opts.RecordCount)
	}

	w := &Workload{
		opts:      opts,
		opChooser: NewDiscrete[stats.Op](opts.Seed + 1),
		loadSeq:   NewCounter(opts.InsertStart),
		insertSeq: NewAcknowledgedCounter(opts.RecordCount),
		fieldIdx:  NewUniform(0, int64(opts.FieldCount-1), opts.Seed+2),
		r:         rand.New(rand.NewPCG(opts.Seed+3, opts.Seed^0xa0761d6478bd642f)),
	}

	if len(opts.OpWeights) == 0 {
		w.opChooser.Add(stats.OpRead, 1.0)
	} else {
		for op, weight := range opts.OpWeights {
			w.opChooser.Add(op, weight)
		}
	}
	if w.opChooser.Len() == 0 {
		return nil, fmt.Errorf("workload: op distribution for table %q has no positive weights", opts.Table)
	}

	switch opts.RequestDist {
	case "uniform":
		w.keyChooser = NewUniform(0, opts.RecordCount-1, opts.Seed+4)
	case "zipfian":
		// Build over a keyspace larger than what exists at the start so new
		// inserts do not shift popular keys; unseeded picks are retried.
		insertWeight := opts.OpWeights[stats.OpInsert]
		newKeys := int64(float64(opts.OperationCount) * insertWeight * 2)
		theta := DefaultZipfianConst
		if opts.ZipfianConst != nil {
			theta = *opts.ZipfianConst
		}
		w.keyChooser = NewScrambledZipfian(0, opts.RecordCount+newKeys-1, theta, opts.Seed+4)
	case "latest":
		w.keyChooser = NewSkewedLatest(w.insertSeq, opts.Seed+4)
	default:
		return nil, fmt.Errorf("workload: unknown request distribution %q", opts.RequestDist)
	}

	switch opts.FieldLenDist {
	case "constant":
		w.fieldLen = NewConstant(int64(opts.FieldLen))
	case "uniform":
		w.fieldLen = NewUniform(1, int64(opts.FieldLen), opts.Seed+5)
	case "zipfian":
		w.fieldLen = NewZipfian(1, int64(opts.FieldLen), DefaultZipfianConst, opts.Seed+5)
	default:
		return nil, fmt.Errorf("workload: unknown field length distribution %q", opts.FieldLenDist)
	}

	switch opts.ScanLenDist {
	case "uniform":
		w.scanLen = NewUniform(int64(opts.MinScanLen), int64(opts.MaxScanLen), opts.Seed+6)
	case "zipfian":
		w.scanLen = NewZipfian(int64(opts.MinScanLen), int64(opts.MaxScanLen), DefaultZipfianConst, opts.Seed+6)
	default:
		return nil, fmt.Errorf("workload: unknown scan length distribution %q", opts.ScanLenDist)
	}
	return w, nil
}

// Table returns the tenant's bound table name.
func (w *Workload) Table() string { return w.opts.Table }

// KeyName renders the canonical key for a key number.
func KeyName(keyNum int64) string {
	return "user" + strconv.FormatInt(keyNum, 10)
}

// nextTransactionKey picks a key that is known to exist: choices above the
// acknowledged insert horizon are redrawn.
func (w *Workload) nextTransactionKey() int64 {
	for {
		k := w.keyChooser.Next()
		if k <= w.insertSeq.Last() {
			return k
		}
	}
}

func (w *Workload) buildValues(all bool) []engine.Field {
	n := w.opts.FieldCount
	if !all {
		n = 1
	}
	values := make([]engine.Field, 0, n)
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := 0; i < n; i++ {
		idx := i
		if !all {
			idx = int(w.fieldIdx.Next())
		}
		buf := make([]byte, w.fieldLen.Next())
		randomBytes(w.r, buf)
		values = append(values, engine.Field{
			Name:  w.opts.FieldPrefix + strconv.Itoa(idx),
			Value: buf,
		})
	}
	return values
}

func (w *Workload) readFields() []string {
	if w.opts.ReadAllFields {
		return nil
	}
	return []string{w.opts.FieldPrefix + strconv.FormatInt(w.fieldIdx.Next(), 10)}
}

// DoInsert seeds one record during the load phase.
func (w *Workload) DoInsert(ctx context.Context, f *engine.Facade, tenant int) error {
	key := KeyName(w.loadSeq.Next())
	return f.Insert(ctx, tenant, w.opts.Table, key, w.buildValues(true), fairdb.PriorityUser)
}

// NextOp draws from the tenant's weighted op mix.
func (w *Workload) NextOp() stats.Op { return w.opChooser.Next() }

// DoTransaction draws an op from the mix and executes it against the facade.
// Per-op errors are returned for logging but never abort a phase.
func (w *Workload) DoTransaction(ctx context.Context, f *engine.Facade, tenant int) error {
	return w.DoOp(ctx, f, tenant, w.NextOp())
}

// DoOp executes one specific operation kind.
func (w *Workload) DoOp(ctx context.Context, f *engine.Facade, tenant int, op stats.Op) error {
	table := w.opts.Table
	switch op {
	case stats.OpRead:
		key := KeyName(w.nextTransactionKey())
		return f.Read(ctx, tenant, table, key, w.readFields(), fairdb.PriorityUser)

	case stats.OpReadBatch:
		keys := make([]string, w.opts.BatchSize)
		for i := range keys {
			keys[i] = KeyName(w.nextTransactionKey())
		}
		return f.ReadBatch(ctx, tenant, table, keys, w.readFields(), fairdb.PriorityUser)

	case stats.OpUpdate:
		key := KeyName(w.nextTransactionKey())
		return f.Update(ctx, tenant, table, key, w.buildValues(w.opts.WriteAllFields), fairdb.PriorityUser)

	case stats.OpInsert:
		keyNum := w.insertSeq.Next()
		err := f.Insert(ctx, tenant, table, KeyName(keyNum), w.buildValues(true), fairdb.PriorityUser)
		w.insertSeq.Acknowledge(keyNum)
		return err

	case stats.OpInsertBatch:
		start := w.nextTransactionKey()
		kvs := w.buildBatch(start)
		return f.InsertBatch(ctx, tenant, table, kvs, fairdb.PriorityUser)

	case stats.OpScan:
		key := KeyName(w.nextTransactionKey())
		return f.Scan(ctx, tenant, table, key, int(w.scanLen.Next()), w.readFields(), fairdb.PriorityUser)

	case stats.OpReadModifyWrite:
		key := KeyName(w.nextTransactionKey())
		return f.ReadModifyWrite(ctx, tenant, table, key, w.readFields(),
			w.buildValues(w.opts.WriteAllFields), fairdb.PriorityUser)

	case stats.OpReadModifyInsertBatch:
		readKey := KeyName(w.nextTransactionKey())
		kvs := w.buildBatch(w.nextTransactionKey())
		return f.ReadModifyInsertBatch(ctx, tenant, table, readKey, kvs, fairdb.PriorityUser)

	case stats.OpDelete:
		key := KeyName(w.nextTransactionKey())
		return f.Delete(ctx, tenant, table, key, fairdb.PriorityUser)

	case stats.OpRandomInsert:
		key := KeyName(w.nextTransactionKey())
		return f.RandomInsert(ctx, tenant, table, key, w.buildValues(true), fairdb.PriorityUser)
	}
	return fmt.Errorf("workload: unhandled op %v", op)
}

func (w *Workload) buildBatch(startKey int64) []engine.KV {
	kvs := make([]engine.KV, w.opts.BatchSize)
	for i := range kvs {
		kvs[i] = engine.KV{
			Key:    KeyName(startKey + int64(i)),
			Values: w.buildValues(true),
		}
	}
	return kvs
}
