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
	"strconv"
	"sync/atomic"
)

func init() {
	Register("basic", func(props map[string]string) (DB, error) {
		noop, _ := strconv.ParseBool(props["basic.silent"])
		_ = noop
		return &basicDB{}, nil
	})
}

// basicDB stores nothing: Read reports ErrNotFound, every other operation
// succeeds with an empty result. Useful for dry
// runs that exercise the scheduler and dispatch path without storage cost.
type basicDB struct {
	ops atomic.Int64
}

func (db *basicDB) Init(ctx context.Context) error { return nil }
func (db *basicDB) Cleanup() error                 { return nil }

func (db *basicDB) Read(ctx context.Context, table, key string, fields []string) ([]Field, error) {
	db.ops.Add(1)
	return nil, ErrNotFound
}

func (db *basicDB) Scan(ctx context.Context, table, startKey string, count int, fields []string) ([][]Field, error) {
	db.ops.Add(1)
	return nil, nil
}

func (db *basicDB) Update(ctx context.Context, table, key string, values []Field) error {
	db.ops.Add(1)
	return nil
}

func (db *basicDB) Insert(ctx context.Context, table, key string, values []Field) error {
	db.ops.Add(1)
	return nil
}

func (db *basicDB) InsertBatch(ctx context.Context, table string, kvs []KV) error {
	db.ops.Add(1)
	return nil
}

func (db *basicDB) Delete(ctx context.Context, table, key string) error {
	db.ops.Add(1)
	return nil
}
