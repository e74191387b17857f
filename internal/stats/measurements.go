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

package stats

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Latencies are recorded in microseconds; one hour is far beyond any
// operation we measure, including queueing delay under stall.
const (
	histMin = 1
	histMax = int64(60 * time.Minute / time.Microsecond)
	histSig = 3
)

// Measurements keeps one latency histogram per (tenant, op). Reports are
// cheap; Drain snapshots and resets, so each CSV interval stands alone.
type Measurements struct {
	tenants int
	mu      []sync.Mutex // one lock per tenant
	hists   [][]*hdrhistogram.Histogram
}

// NewMeasurements sizes the pipeline for the given tenant count.
func NewMeasurements(tenants int) *Measurements {
	m := &Measurements{
		tenants: tenants,
		mu:      make([]sync.Mutex, tenants),
		hists:   make([][]*hdrhistogram.Histogram, tenants),
	}
	for t := 0; t < tenants; t++ {
		m.hists[t] = make([]*hdrhistogram.Histogram, NumOps)
		for o := Op(0); o < NumOps; o++ {
			m.hists[t][o] = hdrhistogram.New(histMin, histMax, histSig)
		}
	}
	return m
}

// Report records one latency sample for a tenant and op kind.
func (m *Measurements) Report(tenant int, op Op, latency time.Duration) {
	if tenant < 0 || tenant >= m.tenants || op < 0 || op >= NumOps {
		return
	}
	us := latency.Microseconds()
	if us < histMin {
		us = histMin
	}
	if us > histMax {
		us = histMax
	}
	m.mu[tenant].Lock()
	_ = m.hists[tenant][op].RecordValue(us)
	m.mu[tenant].Unlock()
}

// Row is one interval's summary for a (tenant, op) with at least one sample.
// Latency fields are in microseconds.
type Row struct {
	Tenant int
	Op     Op
	Count  int64
	Max    int64
	Min    int64
	Avg    float64
	P50    int64
	P90    int64
	P99    int64
	P999   int64
}

// CSV renders the row's op columns:
// op_type,count,max,min,avg,50p,90p,99p,99.9p.
func (r Row) CSV() string {
	return fmt.Sprintf("%s,%d,%d,%d,%.1f,%d,%d,%d,%d",
		r.Op, r.Count, r.Max, r.Min, r.Avg, r.P50, r.P90, r.P99, r.P999)
}

// Drain returns rows for every (tenant, op) with a nonzero count and resets
// the underlying histograms.
func (m *Measurements) Drain() []Row {
	var rows []Row
	for t := 0; t < m.tenants; t++ {
		m.mu[t].Lock()
		for o := Op(0); o < NumOps; o++ {
			h := m.hists[t][o]
			if h.TotalCount() == 0 {
				continue
			}
			rows = append(rows, Row{
				Tenant: t,
				Op:     o,
				Count:  h.TotalCount(),
				Max:    h.Max(),
				Min:    h.Min(),
				Avg:    h.Mean(),
				P50:    h.ValueAtQuantile(50),
				P90:    h.ValueAtQuantile(90),
				P99:    h.ValueAtQuantile(99),
				P999:   h.ValueAtQuantile(99.9),
			})
			h.Reset()
		}
		m.mu[t].Unlock()
	}
	return rows
}

// StatusLine formats a compact one-line summary for terminal status prints.
func StatusLine(rows []Row) string {
	if len(rows) == 0 {
		return "no samples"
	}
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("c%d %s n=%d p99=%dus", r.Tenant, r.Op, r.Count, r.P99))
	}
	return strings.Join(parts, " | ")
}
