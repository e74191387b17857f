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

// Package engine defines the storage-engine boundary, a name-to-constructor
// backend registry, and the measured, rate-limited facade the workers call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound reports a read against a key that does not exist. It is an
// expected outcome for unseeded keys, logged but never fatal.
var ErrNotFound = errors.New("engine: key not found")

// Field is one named column of a row.
type Field struct {
	Name  string
	Value []byte
}

// KV pairs a key with its row for batch writes.
type KV struct {
	Key    string
	Values []Field
}

// DB is the capability set every storage backend provides. Implementations
// must be safe for concurrent use. Reads return ErrNotFound for missing keys;
// any other non-nil error counts as a failed operation.
type DB interface {
	Init(ctx context.Context) error
	Cleanup() error

	Read(ctx context.Context, table, key string, fields []string) ([]Field, error)
	Scan(ctx context.Context, table, startKey string, count int, fields []string) ([][]Field, error)
	Update(ctx context.Context, table, key string, values []Field) error
	Insert(ctx context.Context, table, key string, values []Field) error
	InsertBatch(ctx context.Context, table string, kvs []KV) error
	Delete(ctx context.Context, table, key string) error
}

// CacheCounters is optionally implemented by backends that expose block-cache
// style hit/miss accounting per table. The status dump reports zeros when the
// backend does not.
type CacheCounters interface {
	CacheStats(table string) (hits, misses uint64)
}

// Constructor builds a backend from string properties.
type Constructor func(props map[string]string) (DB, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Constructor{}
)

// Register installs a backend constructor under a name. Called from package
// init functions; duplicate names panic.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("engine: duplicate backend " + name)
	}
	registry[name] = ctor
}

// Create instantiates a registered backend by name.
func Create(name string, props map[string]string) (DB, error) {
	registryMu.Lock()
	ctor, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("engine: unknown backend %q (have %v)", name, Names())
	}
	return ctor(props)
}

// Names lists the registered backends, sorted.
func Names() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
