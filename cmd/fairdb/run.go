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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"fairdb"
	"fairdb/internal/behavior"
	"fairdb/internal/config"
	"fairdb/internal/engine"
	"fairdb/internal/latch"
	"fairdb/internal/pool"
	"fairdb/internal/sched"
	"fairdb/internal/stats"
	"fairdb/internal/telemetry"
	"fairdb/internal/workload"
	"fairdb/internal/writebuffer"
)

const clientStatsHeader = "timestamp,client_id,op_type,count,max,min,avg,50p,90p,99p,99.9p,cache_hits,cache_misses"

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// harness bundles everything the phases share.
type harness struct {
	log     *zap.Logger
	props   *config.Properties
	clients []config.ClientSpec

	meter     *fairdb.Meter
	limiter   *fairdb.Limiter
	buffers   *writebuffer.Manager
	meas      *stats.Measurements
	facade    *engine.Facade
	workloads []*workload.Workload

	schedOpts sched.Options
	logsDir   string
	show      bool
}

func run(args []string) error {
	props, err := parseArgs(args)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	doLoad, err := props.Bool("doload", false)
	if err != nil {
		return err
	}
	doTxn, err := props.Bool("dotransaction", false)
	if err != nil {
		return err
	}
	if !doLoad && !doTxn {
		return fmt.Errorf("no phase selected: pass -load and/or -run")
	}

	cfgPath := props.Get("config", "")
	if cfgPath == "" {
		return fmt.Errorf("no client config: pass -p config=<workload.yaml>")
	}
	clients, err := config.LoadClients(cfgPath)
	if err != nil {
		return err
	}
	n := len(clients)

	h := &harness{log: log, props: props, clients: clients}
	if h.schedOpts, err = schedOptions(props); err != nil {
		return err
	}
	if h.show, err = props.Bool("status", false); err != nil {
		return err
	}

	h.logsDir = props.Get("logs.dir", "logs")
	if err := os.MkdirAll(h.logsDir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := h.build(ctx); err != nil {
		return err
	}
	defer h.teardown()

	runID := uuid.NewString()[:8]
	log.Info("fairdb bench starting",
		zap.String("run_id", runID),
		zap.Int("clients", n),
		zap.String("backend", props.Get("dbname", "memdb")),
		zap.Bool("load", doLoad),
		zap.Bool("transaction", doTxn))

	if addr := props.Get("metrics.addr", ""); addr != "" {
		srv := telemetry.Serve(addr, log.Named("metrics"))
		defer srv.Close()
	}

	if doLoad {
		if err := h.loadPhase(ctx); err != nil {
			return err
		}
	}

	if sleepS, err := props.Int("sleepafterload", 0); err != nil {
		return err
	} else if sleepS > 0 && doTxn {
		log.Info("sleeping between phases", zap.Int("seconds", sleepS))
		select {
		case <-time.After(time.Duration(sleepS) * time.Second):
		case <-ctx.Done():
		}
	}

	if doTxn {
		if err := h.transactionPhase(ctx); err != nil {
			return err
		}
	}
	log.Info("fairdb bench finished", zap.String("run_id", runID))
	return nil
}

func schedOptions(props *config.Properties) (sched.Options, error) {
	var o sched.Options
	var err error
	if o.Interval, err = props.DurationMS("rsched_interval_ms", 100*time.Millisecond); err != nil {
		return o, err
	}
	if o.LookbackIntervals, err = props.Int("lookback_intervals", 10); err != nil {
		return o, err
	}
	if o.RampUpMultiplier, err = props.Float("rsched_rampup_multiplier", 1.5); err != nil {
		return o, err
	}
	if o.IOReadCapacityKBPS, err = props.Int64("io_read_capacity_kbps", 200*1024); err != nil {
		return o, err
	}
	if o.IOWriteCapacityKBPS, err = props.Int64("io_write_capacity_kbps", 200*1024); err != nil {
		return o, err
	}
	if o.MemtableCapacityKB, err = props.Int64("memtable_capacity_kb", 1024*1024); err != nil {
		return o, err
	}
	if o.MaxMemtableKB, err = props.Int64("max_memtable_size_kb", 64*1024); err != nil {
		return o, err
	}
	if o.MinMemtableKB, err = props.Int64("min_memtable_size_kb", 16*1024); err != nil {
		return o, err
	}
	if o.MinMemtableCount, err = props.Int("min_memtable_count", 2); err != nil {
		return o, err
	}
	return o, nil
}

// build constructs the data plane bottom-up: meter, limiter, write-buffer
// manager, backend, facade, and one workload per tenant.
func (h *harness) build(ctx context.Context) error {
	n := len(h.clients)
	h.meter = fairdb.NewMeter(n)

	refill, err := h.props.DurationMS("refill_period_ms", time.Millisecond)
	if err != nil {
		return err
	}
	h.limiter, err = fairdb.NewLimiter(fairdb.LimiterOptions{
		Tenants:      n,
		RefillPeriod: refill,
		InitialKBPS:  uint32(h.schedOpts.IOWriteCapacityKBPS / int64(n)),
	})
	if err != nil {
		return err
	}

	steady := make([]bool, n)
	for i, c := range h.clients {
		steady[i] = c.Steady
	}
	h.buffers, err = writebuffer.NewManager(writebuffer.Options{
		Tenants:          n,
		TotalCapBytes:    uint64(h.schedOpts.MemtableCapacityKB) * 1024,
		MinMemtableBytes: uint64(h.schedOpts.MinMemtableKB) * 1024,
		MinMemtableCount: h.schedOpts.MinMemtableCount,
		Steady:           steady,
	})
	if err != nil {
		return err
	}

	h.meas = stats.NewMeasurements(n)

	db, err := engine.Create(h.props.Get("dbname", "memdb"), h.props.Map())
	if err != nil {
		return err
	}
	if err := db.Init(ctx); err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	h.facade = engine.NewFacade(db, h.limiter, h.buffers, h.meter, h.meas,
		h.log.Named("engine"), engine.FacadeOptions{Tenants: n})

	h.workloads = make([]*workload.Workload, n)
	for i, c := range h.clients {
		opts, err := h.workloadOptions(c)
		if err != nil {
			return err
		}
		if h.workloads[i], err = workload.New(opts); err != nil {
			return fmt.Errorf("client %d: %w", i, err)
		}
	}
	return nil
}

func (h *harness) workloadOptions(c config.ClientSpec) (workload.Options, error) {
	var o workload.Options
	var err error
	o.Table = c.CF
	o.RecordCount = c.RecordCount
	o.InsertStart = c.InsertStart
	o.RequestDist = c.RequestDistribution
	o.ZipfianConst = c.ZipfianConst
	if o.OpWeights, err = c.OpWeights(); err != nil {
		return o, err
	}

	// Total expected ops sizes the zipfian keyspace headroom. Trace problems
	// surface as TraceIO errors at phase start; here they only cost sizing.
	phases, err := c.Phases()
	if err != nil {
		return o, err
	}
	if total, err := behavior.TotalOps(phases); err == nil {
		o.OperationCount = int64(total)
	} else {
		h.log.Warn("could not size workload from script", zap.Int("client", c.ClientID), zap.Error(err))
	}

	if o.FieldCount, err = h.props.Int("fieldcount", 10); err != nil {
		return o, err
	}
	if o.FieldLen, err = h.props.Int("fieldlength", 100); err != nil {
		return o, err
	}
	o.FieldLenDist = h.props.Get("field_len_dist", "constant")
	if o.ReadAllFields, err = h.props.Bool("readallfields", true); err != nil {
		return o, err
	}
	if o.WriteAllFields, err = h.props.Bool("writeallfields", false); err != nil {
		return o, err
	}
	if o.MinScanLen, err = h.props.Int("minscanlength", 1); err != nil {
		return o, err
	}
	if o.MaxScanLen, err = h.props.Int("maxscanlength", 100); err != nil {
		return o, err
	}
	o.ScanLenDist = h.props.Get("scanlengthdistribution", "uniform")
	if o.BatchSize, err = h.props.Int("batch_size", 16); err != nil {
		return o, err
	}
	o.Seed = uint64(c.ClientID + 1)
	return o, nil
}

func (h *harness) teardown() {
	h.facade.Close()
	h.limiter.Close()
	if err := h.facade.DB().Cleanup(); err != nil {
		h.log.Warn("engine cleanup", zap.Error(err))
	}
}

// loadPhase seeds each tenant's table with its record count.
func (h *harness) loadPhase(ctx context.Context) error {
	n := len(h.clients)
	h.log.Info("load phase starting")
	start := time.Now()

	l := latch.New(n)
	statusDone := h.startStatusLoop(l, "client_stats_load.log")

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once
	for i := range h.clients {
		wg.Add(1)
		go func(tenant int) {
			defer wg.Done()
			defer l.CountDown()
			wl := h.workloads[tenant]
			count := h.clients[tenant].RecordCount
			for k := int64(0); k < count; k++ {
				if ctx.Err() != nil {
					return
				}
				if err := wl.DoInsert(ctx, h.facade, tenant); err != nil {
					errOnce.Do(func() { firstErr = fmt.Errorf("load client %d: %w", tenant, err) })
					return
				}
			}
		}(i)
	}
	wg.Wait()
	<-statusDone

	h.log.Info("load phase done", zap.Duration("elapsed", time.Since(start)))
	return firstErr
}

// transactionPhase runs the behavior executors against the worker pool with
// the scheduler and status loops alongside.
func (h *harness) transactionPhase(ctx context.Context) error {
	n := len(h.clients)
	h.log.Info("transaction phase starting")
	start := time.Now()

	workers, err := h.props.Int("tpool_threads", 4)
	if err != nil {
		return err
	}
	queueCap, err := h.props.Int("queue_cap", 0)
	if err != nil {
		return err
	}
	p, err := pool.New(ctx, pool.Options{
		Workers:      workers,
		Tenants:      n,
		QueueCap:     queueCap,
		Measurements: h.meas,
	})
	if err != nil {
		return err
	}

	l := latch.New(n)
	statusDone := h.startStatusLoop(l, "client_stats.log")

	schedDone := make(chan struct{})
	useSched, err := h.props.Bool("rsched", true)
	if err != nil {
		return err
	}
	if useSched {
		shareLog, err := stats.NewCSVLog(filepath.Join(h.logsDir, "resource_shares.log"), sched.ShareLogHeader)
		if err != nil {
			return err
		}
		usageLog, err := stats.NewCSVLog(filepath.Join(h.logsDir, "resource_usage.log"), sched.UsageLogHeader)
		if err != nil {
			return err
		}
		s, err := sched.New(n, h.schedOpts, h.facade, h.limiter, h.buffers,
			shareLog, usageLog, telemetry.NewExporter(), h.log.Named("sched"))
		if err != nil {
			return err
		}
		go func() {
			defer close(schedDone)
			defer shareLog.Close()
			defer usageLog.Close()
			s.Run(l)
		}()
	} else {
		close(schedDone)
	}

	opsLimiters, limitDone, err := h.startOpsLimit(ctx, l)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for i := range h.clients {
		wg.Add(1)
		go func(tenant int) {
			defer wg.Done()
			defer l.CountDown()
			h.runExecutor(ctx, p, opsLimiters[tenant], tenant)
		}(i)
	}
	wg.Wait()
	l.Await()
	<-schedDone
	<-limitDone
	p.Stop()
	<-statusDone

	h.log.Info("transaction phase done", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// runExecutor drives one tenant's behavior script, handing each generated
// request to the tenant's queue. Trace errors are fatal for the tenant only.
func (h *harness) runExecutor(ctx context.Context, p *pool.Pool, rlim *rate.Limiter, tenant int) {
	phases, err := h.clients[tenant].Phases()
	if err != nil {
		h.log.Error("behavior script rejected", zap.Int("client", tenant), zap.Error(err))
		return
	}
	wl := h.workloads[tenant]
	send := func() {
		if rlim != nil {
			if err := rlim.Wait(ctx); err != nil {
				return
			}
		}
		err := p.AsyncDispatch(pool.Job{Tenant: tenant, Run: func(jctx context.Context) {
			if err := wl.DoTransaction(jctx, h.facade, tenant); err != nil && jctx.Err() == nil {
				// Per-op failures are already counted in the failed
				// histograms; nothing else to do here.
				_ = err
			}
		}})
		if err != nil {
			return
		}
	}
	if err := behavior.Run(ctx, phases, send); err != nil && ctx.Err() == nil {
		h.log.Error("behavior executor failed", zap.Int("client", tenant), zap.Error(err))
	}
}

// startStatusLoop launches the measurement dumper. It always writes the CSV;
// terminal prints are gated on -s.
func (h *harness) startStatusLoop(l *latch.CountDownLatch, filename string) <-chan struct{} {
	done := make(chan struct{})
	interval, err := h.props.DurationMS("status.interval_ms", 500*time.Millisecond)
	if err != nil {
		interval = 500 * time.Millisecond
	}
	logfile, ferr := stats.NewCSVLog(filepath.Join(h.logsDir, filename), clientStatsHeader)
	if ferr != nil {
		h.log.Warn("client stats log disabled", zap.Error(ferr))
	}
	go func() {
		defer close(done)
		start := time.Now()
		for {
			released := l.AwaitTimeout(interval)
			nowMS := time.Now().UnixMilli()
			rows := h.meas.Drain()
			for _, r := range rows {
				hits, misses := h.facade.CacheStats(h.clients[r.Tenant].CF)
				if logfile != nil {
					logfile.Append(fmt.Sprintf("%d,%d,%s,%d,%d", nowMS, r.Tenant, r.CSV(), hits, misses))
				}
			}
			if h.show {
				h.log.Info("status",
					zap.Duration("elapsed", time.Since(start).Round(time.Second)),
					zap.String("ops", stats.StatusLine(rows)))
			}
			if released {
				break
			}
		}
		if logfile != nil {
			_ = logfile.Close()
		}
	}()
	return done
}

// startOpsLimit wires the optional op-level throttle: a fixed limit.ops rate
// split across tenants, optionally rescheduled over time by limit.file.
func (h *harness) startOpsLimit(ctx context.Context, l *latch.CountDownLatch) ([]*rate.Limiter, <-chan struct{}, error) {
	n := len(h.clients)
	limiters := make([]*rate.Limiter, n)
	done := make(chan struct{})

	opsLimit, err := h.props.Int64("limit.ops", 0)
	if err != nil {
		return nil, nil, err
	}
	rateFile := h.props.Get("limit.file", "")
	if opsLimit <= 0 && rateFile == "" {
		close(done)
		return limiters, done, nil
	}

	perTenant := rate.Inf
	if opsLimit > 0 {
		perTenant = rate.Limit(float64(opsLimit) / float64(n))
	}
	for i := range limiters {
		limiters[i] = rate.NewLimiter(perTenant, burstFor(perTenant))
	}

	if rateFile == "" {
		close(done)
		return limiters, done, nil
	}
	schedule, err := loadRateSchedule(rateFile)
	if err != nil {
		return nil, nil, err
	}
	go func() {
		defer close(done)
		last := int64(0)
		for _, step := range schedule {
			if l.AwaitTimeout(time.Duration(step.atSec-last) * time.Second) {
				return
			}
			last = step.atSec
			per := rate.Limit(float64(step.opsPerSec) / float64(n))
			for _, rl := range limiters {
				rl.SetLimit(per)
				rl.SetBurst(burstFor(per))
			}
			h.log.Info("ops limit updated", zap.Int64("ops_per_sec", step.opsPerSec))
		}
	}()
	return limiters, done, nil
}

func burstFor(limit rate.Limit) int {
	if limit == rate.Inf {
		return 1
	}
	b := int(limit / 10)
	if b < 1 {
		b = 1
	}
	return b
}
