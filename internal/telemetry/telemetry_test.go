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

package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"fairdb"
)

func TestExporterGauges(t *testing.T) {
	e := NewExporter()

	e.ObserveShares(0, fairdb.ResourceShares{
		WriteKBPS: 1000, ReadKBPS: 2000, MemtableKB: 16384, MemtableCount: 4,
	})
	e.ObserveUsage(0, fairdb.ResourceUsage{IOWriteKB: 800, IOReadKB: 1500, MemWriteKB: 100})

	if got := testutil.ToFloat64(shareWriteKBPS.WithLabelValues("0")); got != 1000 {
		t.Errorf("share_write_kbps = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(shareMemtableCount.WithLabelValues("0")); got != 4 {
		t.Errorf("share_memtable_count = %v, want 4", got)
	}
	if got := testutil.ToFloat64(usageReadKBPS.WithLabelValues("0")); got != 1500 {
		t.Errorf("usage_read_kbps = %v, want 1500", got)
	}

	// A later cycle overwrites, never accumulates.
	e.ObserveShares(0, fairdb.ResourceShares{WriteKBPS: 500})
	if got := testutil.ToFloat64(shareWriteKBPS.WithLabelValues("0")); got != 500 {
		t.Errorf("share_write_kbps after update = %v, want 500", got)
	}
}

// NewExporter is safe to call repeatedly: registration happens once.
func TestNewExporterIdempotent(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("second NewExporter panicked: %v", r)
		}
	}()
	_ = NewExporter()
	_ = NewExporter()
}
