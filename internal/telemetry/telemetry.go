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

// Package telemetry exposes the scheduler's outputs and the data plane's
// counters as Prometheus metrics, with an optional standalone /metrics
// endpoint. Label cardinality is bounded by the tenant count.
package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fairdb"
)

var (
	shareWriteKBPS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fairdb_share_write_kbps",
		Help: "Scheduler-assigned write I/O share per tenant (KB/s)",
	}, []string{"tenant"})
	shareReadKBPS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fairdb_share_read_kbps",
		Help: "Scheduler-assigned read I/O share per tenant (KB/s)",
	}, []string{"tenant"})
	shareMemtableKB = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fairdb_share_memtable_kb",
		Help: "Scheduler-assigned memtable size per tenant (KB)",
	}, []string{"tenant"})
	shareMemtableCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fairdb_share_memtable_count",
		Help: "Scheduler-assigned memtable count per tenant",
	}, []string{"tenant"})
	usageWriteKBPS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fairdb_usage_write_kbps",
		Help: "Observed write I/O rate per tenant in the last cycle (KB/s)",
	}, []string{"tenant"})
	usageReadKBPS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fairdb_usage_read_kbps",
		Help: "Observed read I/O rate per tenant in the last cycle (KB/s)",
	}, []string{"tenant"})
	usageMemKBPS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fairdb_usage_mem_kbps",
		Help: "Observed memtable write rate per tenant in the last cycle (KB/s)",
	}, []string{"tenant"})
	schedCyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fairdb_sched_cycles_total",
		Help: "Completed scheduler allocation cycles",
	})
)

var registerOnce sync.Once

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(shareWriteKBPS, shareReadKBPS, shareMemtableKB,
			shareMemtableCount, usageWriteKBPS, usageReadKBPS, usageMemKBPS,
			schedCyclesTotal)
	})
}

// Exporter implements the scheduler's Observer over the Prometheus gauges.
type Exporter struct{}

// NewExporter registers the metrics (idempotent) and returns an exporter.
func NewExporter() *Exporter {
	register()
	return &Exporter{}
}

// ObserveShares records one tenant's freshly assigned shares.
func (e *Exporter) ObserveShares(tenant int, s fairdb.ResourceShares) {
	t := strconv.Itoa(tenant)
	shareWriteKBPS.WithLabelValues(t).Set(float64(s.WriteKBPS))
	shareReadKBPS.WithLabelValues(t).Set(float64(s.ReadKBPS))
	shareMemtableKB.WithLabelValues(t).Set(float64(s.MemtableKB))
	shareMemtableCount.WithLabelValues(t).Set(float64(s.MemtableCount))
	if tenant == 0 {
		schedCyclesTotal.Inc()
	}
}

// ObserveUsage records one tenant's measured rates for the last cycle.
func (e *Exporter) ObserveUsage(tenant int, u fairdb.ResourceUsage) {
	t := strconv.Itoa(tenant)
	usageWriteKBPS.WithLabelValues(t).Set(float64(u.IOWriteKB))
	usageReadKBPS.WithLabelValues(t).Set(float64(u.IOReadKB))
	usageMemKBPS.WithLabelValues(t).Set(float64(u.MemWriteKB))
}

// Serve starts a dedicated /metrics endpoint on addr. Returns the server so
// the driver can shut it down; errors after startup are logged, not fatal.
func Serve(addr string, log *zap.Logger) *http.Server {
	register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics endpoint stopped", zap.Error(err))
		}
	}()
	return srv
}
