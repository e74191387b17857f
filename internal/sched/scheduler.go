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

package sched

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fairdb"
	"fairdb/internal/latch"
	"fairdb/internal/stats"
	"fairdb/internal/writebuffer"
)

// Options tunes the control loop. A malformed Options is fatal at startup;
// everything after that is best-effort.
type Options struct {
	// Interval is the control cycle length T_sched. Default 100ms.
	Interval time.Duration

	// LookbackIntervals is the smoothing window K. Default 10.
	LookbackIntervals int

	// RampUpMultiplier is applied to smoothed demand so a bursting tenant
	// can outgrow its observed usage without waiting K cycles. Default 1.5.
	RampUpMultiplier float64

	// Capacities. I/O in KB/s, memtable budget in KB.
	IOReadCapacityKBPS  int64
	IOWriteCapacityKBPS int64
	MemtableCapacityKB  int64

	// Memtable shaping.
	MaxMemtableKB    int64
	MinMemtableKB    int64
	MinMemtableCount int

	// Floors guarantee starvation freedom. Defaults: 10 MB/s and 10 MB.
	IOFloorKBPS int64
	MemFloorKB  int64
}

func (o *Options) validate() error {
	if o.Interval <= 0 {
		o.Interval = 100 * time.Millisecond
	}
	if o.LookbackIntervals <= 0 {
		o.LookbackIntervals = 10
	}
	if o.RampUpMultiplier <= 0 {
		o.RampUpMultiplier = 1.5
	}
	if o.RampUpMultiplier < 1 {
		return fmt.Errorf("sched: ramp-up multiplier must be >= 1, have %v", o.RampUpMultiplier)
	}
	if o.IOReadCapacityKBPS <= 0 || o.IOWriteCapacityKBPS <= 0 {
		return errors.New("sched: I/O capacities must be positive")
	}
	if o.MemtableCapacityKB <= 0 {
		return errors.New("sched: memtable capacity must be positive")
	}
	if o.MinMemtableKB <= 0 || o.MaxMemtableKB < o.MinMemtableKB {
		return errors.New("sched: memtable size bounds are inconsistent")
	}
	if o.MinMemtableCount <= 0 {
		o.MinMemtableCount = 1
	}
	if o.IOFloorKBPS <= 0 {
		o.IOFloorKBPS = 10 * 1024
	}
	if o.MemFloorKB <= 0 {
		o.MemFloorKB = 10 * 1024
	}
	return nil
}

// State is the scheduler lifecycle.
type State int32

const (
	StateInit State = iota
	StateWarmup
	StateSteady
	StateShuttingDown
	StateDone
)

// UsageSource samples cumulative per-tenant usage counters.
type UsageSource interface {
	Counters() []fairdb.ResourceUsage
}

// RateSink receives the per-direction rate vectors.
type RateSink interface {
	SetRates(kbps []uint32, dir fairdb.Direction)
}

// ShareSink receives the memtable quota vector.
type ShareSink interface {
	SetShares(shares []writebuffer.Share)
}

// Observer is notified of each cycle's outputs, e.g. for Prometheus gauges.
type Observer interface {
	ObserveShares(tenant int, s fairdb.ResourceShares)
	ObserveUsage(tenant int, u fairdb.ResourceUsage)
}

// Scheduler runs the periodic fair-share control loop.
type Scheduler struct {
	opts    Options
	tenants int

	usage    UsageSource
	rates    RateSink
	shares   ShareSink
	observer Observer

	shareLog *stats.CSVLog
	usageLog *stats.CSVLog
	log      *zap.Logger

	state atomic.Int32
}

// New validates the options (fatal on error) and builds the scheduler.
// shareLog, usageLog, and observer may be nil.
func New(tenants int, opts Options, usage UsageSource, rates RateSink, shares ShareSink,
	shareLog, usageLog *stats.CSVLog, observer Observer, log *zap.Logger) (*Scheduler, error) {
	if tenants <= 0 {
		return nil, errors.New("sched: tenant count must be positive")
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		opts:     opts,
		tenants:  tenants,
		usage:    usage,
		rates:    rates,
		shares:   shares,
		observer: observer,
		shareLog: shareLog,
		usageLog: usageLog,
		log:      log,
	}, nil
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Run executes the control loop until the latch releases. The first cycle
// only seeds the previous-usage snapshot; allocation starts on the second.
// Cycle failures are non-fatal: the last allocation stays in force.
func (s *Scheduler) Run(l *latch.CountDownLatch) {
	s.state.Store(int32(StateWarmup))
	s.log.Info("resource scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("lookback", s.opts.LookbackIntervals),
		zap.Float64("ramp", s.opts.RampUpMultiplier))

	var (
		prev   []fairdb.ResourceUsage
		window [][]fairdb.ResourceUsage
	)

	for !l.AwaitTimeout(s.opts.Interval) {
		total := s.usage.Counters()
		if len(total) != s.tenants {
			s.log.Warn("usage snapshot has wrong arity; keeping last allocation",
				zap.Int("got", len(total)), zap.Int("want", s.tenants))
			continue
		}
		// Warmup: the first cycle only seeds the previous snapshot.
		if prev == nil {
			prev = total
			s.state.Store(int32(StateSteady))
			continue
		}

		interval := make([]fairdb.ResourceUsage, s.tenants)
		for i := 0; i < s.tenants; i++ {
			interval[i] = fairdb.UsageRate(prev[i], total[i], s.opts.Interval)
		}
		prev = total

		window = append(window, interval)
		if len(window) > s.opts.LookbackIntervals {
			window = window[1:]
		}

		s.runCycle(window, interval)
	}

	s.state.Store(int32(StateShuttingDown))
	if s.shareLog != nil {
		_ = s.shareLog.Flush()
	}
	if s.usageLog != nil {
		_ = s.usageLog.Flush()
	}
	s.state.Store(int32(StateDone))
	s.log.Info("resource scheduler stopped")
}

// runCycle folds the window into smoothed demands, allocates each resource
// independently, and pushes the result to the data plane.
func (s *Scheduler) runCycle(window [][]fairdb.ResourceUsage, interval []fairdb.ResourceUsage) {
	smoothed := make([]fairdb.ResourceUsage, s.tenants)
	for _, sample := range window {
		for i := 0; i < s.tenants; i++ {
			smoothed[i] = fairdb.MaxUsage(smoothed[i], sample[i])
		}
	}

	readDemand := make([]int64, s.tenants)
	writeDemand := make([]int64, s.tenants)
	memDemand := make([]int64, s.tenants)
	for i, u := range smoothed {
		readDemand[i] = u.IOReadKB
		writeDemand[i] = u.IOWriteKB
		memDemand[i] = u.MemWriteKB
	}

	readAlloc := PRF(s.opts.IOReadCapacityKBPS, readDemand, s.opts.RampUpMultiplier, s.opts.IOFloorKBPS)
	writeAlloc := PRF(s.opts.IOWriteCapacityKBPS, writeDemand, s.opts.RampUpMultiplier, s.opts.IOFloorKBPS)
	memAlloc := PRF(s.opts.MemtableCapacityKB, memDemand, s.opts.RampUpMultiplier, s.opts.MemFloorKB)
	sizesKB, counts := MemtableProjection(memAlloc, s.opts.MemtableCapacityKB,
		s.opts.MaxMemtableKB, s.opts.MinMemtableKB, s.opts.MinMemtableCount)

	readRates := make([]uint32, s.tenants)
	writeRates := make([]uint32, s.tenants)
	wbShares := make([]writebuffer.Share, s.tenants)
	shares := make([]fairdb.ResourceShares, s.tenants)
	for i := 0; i < s.tenants; i++ {
		readRates[i] = clampU32(readAlloc[i])
		writeRates[i] = clampU32(writeAlloc[i])
		wbShares[i] = writebuffer.Share{
			ReservedBytes: uint64(sizesKB[i]) * 1024 * uint64(counts[i]),
			MemtableCount: counts[i],
		}
		shares[i] = fairdb.ResourceShares{
			WriteKBPS:     writeRates[i],
			ReadKBPS:      readRates[i],
			MemtableKB:    clampU32(sizesKB[i]),
			MemtableCount: uint8(counts[i]),
		}
	}

	s.rates.SetRates(writeRates, fairdb.DirWrite)
	s.rates.SetRates(readRates, fairdb.DirRead)
	s.shares.SetShares(wbShares)

	now := time.Now().UnixMicro()
	for i := 0; i < s.tenants; i++ {
		if s.shareLog != nil {
			s.shareLog.Append(fmt.Sprintf("%d,%d,%s", now, i, shares[i].CSV()))
		}
		if s.usageLog != nil {
			s.usageLog.Append(fmt.Sprintf("%d,%d,%s", now, i, interval[i].CSV()))
		}
		if s.observer != nil {
			s.observer.ObserveShares(i, shares[i])
			s.observer.ObserveUsage(i, interval[i])
		}
	}
}

func clampU32(v int64) uint32 {
	if v < 0 {
		return 0
	}
	if v > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(v)
}

// Log file headers, matching the CSV schemas the analysis tooling expects.
const (
	ShareLogHeader = "timestamp,client_id,write_rate_limit_kbs,read_rate_limit_kbs,write_buffer_size_kb,max_write_buffer_number"
	UsageLogHeader = "timestamp,client_id,io_write_kbs,io_read_kbs,mem_write_kbs"
)
