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
	"sort"
	"sync"
	"sync/atomic"
)

func init() {
	Register("memdb", func(props map[string]string) (DB, error) {
		return newMemDB(), nil
	})
}

// memTable is one table's row store with lazily re-sorted key order for
// scans and hit/miss counters standing in for a block cache.
type memTable struct {
	mu     sync.RWMutex
	rows   map[string][]byte
	keys   []string
	sorted bool

	hits   atomic.Uint64
	misses atomic.Uint64
}

// memDB is the in-process backend: a map-of-tables row store with the same
// operation surface and error contract as a real engine. It exists to
// exercise the scheduler data plane without external infrastructure.
type memDB struct {
	mu     sync.RWMutex
	tables map[string]*memTable
}

func newMemDB() *memDB {
	return &memDB{tables: make(map[string]*memTable)}
}

func (db *memDB) table(name string) *memTable {
	db.mu.RLock()
	t, ok := db.tables[name]
	db.mu.RUnlock()
	if ok {
		return t
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if t, ok = db.tables[name]; ok {
		return t
	}
	t = &memTable{rows: make(map[string][]byte)}
	db.tables[name] = t
	return t
}

func (db *memDB) Init(ctx context.Context) error { return nil }
func (db *memDB) Cleanup() error                 { return nil }

func (db *memDB) Read(ctx context.Context, table, key string, fields []string) ([]Field, error) {
	t := db.table(table)
	t.mu.RLock()
	data, ok := t.rows[key]
	t.mu.RUnlock()
	if !ok {
		t.misses.Add(1)
		return nil, ErrNotFound
	}
	t.hits.Add(1)
	if fields == nil {
		return DeserializeRow(data)
	}
	return DeserializeRowFilter(data, fields)
}

func (db *memDB) Scan(ctx context.Context, table, startKey string, count int, fields []string) ([][]Field, error) {
	t := db.table(table)
	t.mu.Lock()
	if !t.sorted {
		sort.Strings(t.keys)
		t.sorted = true
	}
	idx := sort.SearchStrings(t.keys, startKey)
	end := idx + count
	if end > len(t.keys) {
		end = len(t.keys)
	}
	picked := make([]string, end-idx)
	copy(picked, t.keys[idx:end])
	out := make([][]Field, 0, len(picked))
	var err error
	for _, k := range picked {
		var row []Field
		if fields == nil {
			row, err = DeserializeRow(t.rows[k])
		} else {
			row, err = DeserializeRowFilter(t.rows[k], fields)
		}
		if err != nil {
			break
		}
		out = append(out, row)
	}
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	t.hits.Add(uint64(len(out)))
	return out, nil
}

func (db *memDB) Update(ctx context.Context, table, key string, values []Field) error {
	t := db.table(table)
	t.mu.Lock()
	defer t.mu.Unlock()
	old, ok := t.rows[key]
	if !ok {
		return ErrNotFound
	}
	// Merge updated fields into the existing row.
	row, err := DeserializeRow(old)
	if err != nil {
		return err
	}
	for _, v := range values {
		found := false
		for i := range row {
			if row[i].Name == v.Name {
				row[i].Value = v.Value
				found = true
				break
			}
		}
		if !found {
			row = append(row, v)
		}
	}
	t.rows[key] = SerializeRow(row)
	return nil
}

func (db *memDB) Insert(ctx context.Context, table, key string, values []Field) error {
	t := db.table(table)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.rows[key]; !exists {
		t.keys = append(t.keys, key)
		t.sorted = false
	}
	t.rows[key] = SerializeRow(values)
	return nil
}

func (db *memDB) InsertBatch(ctx context.Context, table string, kvs []KV) error {
	t := db.table(table)
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, kv := range kvs {
		if _, exists := t.rows[kv.Key]; !exists {
			t.keys = append(t.keys, kv.Key)
			t.sorted = false
		}
		t.rows[kv.Key] = SerializeRow(kv.Values)
	}
	return nil
}

func (db *memDB) Delete(ctx context.Context, table, key string) error {
	t := db.table(table)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[key]; !ok {
		return ErrNotFound
	}
	delete(t.rows, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
	return nil
}

// CacheStats reports the table's hit/miss counters for the status dump.
func (db *memDB) CacheStats(table string) (hits, misses uint64) {
	t := db.table(table)
	return t.hits.Load(), t.misses.Load()
}
