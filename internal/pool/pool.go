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

// Package pool is the bounded worker pool with one FIFO queue per tenant.
// Workers scan tenant queues round-robin from an offset derived from their
// id, which bounds head-of-line blocking to one visit per tenant.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"fairdb/internal/stats"
)

// Job is one unit of tenant work. Run receives the pool's context; a
// cancelled context means the job should treat itself as a drain.
type Job struct {
	Tenant int
	Run    func(ctx context.Context)
}

type queuedJob struct {
	job      Job
	enqueued time.Time
	done     chan struct{} // non-nil for synchronous dispatch
}

// Handle tracks a synchronously dispatched job.
type Handle struct{ done chan struct{} }

// Wait blocks until the job has executed.
func (h *Handle) Wait() { <-h.done }

// Options configures Pool construction.
type Options struct {
	// Workers is the number of worker goroutines.
	Workers int

	// Tenants is the number of tenant queues.
	Tenants int

	// QueueCap bounds each tenant queue; 0 means unbounded. When a queue is
	// full, enqueue blocks the caller — natural backpressure on the
	// behavior executor.
	QueueCap int

	// Measurements receives QueueWait reports for dispatch queueing delay.
	// Optional.
	Measurements *stats.Measurements
}

// Pool dispatches tenant jobs to a bounded worker set. Within a tenant, jobs
// run FIFO; across tenants no order is guaranteed.
type Pool struct {
	opts Options
	ctx  context.Context

	mu       sync.Mutex
	cond     *sync.Cond
	queues   [][]*queuedJob
	queued   int
	stopping bool

	wg sync.WaitGroup
}

// ErrStopped reports an enqueue against a stopped pool.
var ErrStopped = errors.New("pool: stopped")

// New starts the pool. ctx is handed to every job and cancels blocked
// enqueues on shutdown.
func New(ctx context.Context, opts Options) (*Pool, error) {
	if opts.Workers <= 0 {
		return nil, errors.New("pool: Options.Workers must be positive")
	}
	if opts.Tenants <= 0 {
		return nil, errors.New("pool: Options.Tenants must be positive")
	}
	p := &Pool{
		opts:   opts,
		ctx:    ctx,
		queues: make([][]*queuedJob, opts.Tenants),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p, nil
}

// AsyncDispatch enqueues a job on its tenant's queue, tagged with the
// enqueue instant. Blocks while the queue is at capacity.
func (p *Pool) AsyncDispatch(job Job) error {
	return p.enqueue(&queuedJob{job: job, enqueued: time.Now()})
}

// Dispatch enqueues a job and returns a completion handle.
func (p *Pool) Dispatch(job Job) (*Handle, error) {
	q := &queuedJob{job: job, enqueued: time.Now(), done: make(chan struct{})}
	if err := p.enqueue(q); err != nil {
		return nil, err
	}
	return &Handle{done: q.done}, nil
}

func (p *Pool) enqueue(q *queuedJob) error {
	t := q.job.Tenant
	p.mu.Lock()
	for !p.stopping && p.opts.QueueCap > 0 && len(p.queues[t]) >= p.opts.QueueCap {
		p.cond.Wait()
	}
	if p.stopping {
		p.mu.Unlock()
		return ErrStopped
	}
	p.queues[t] = append(p.queues[t], q)
	p.queued++
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

// worker scans tenant queues round-robin starting from its id offset,
// dequeuing one job per visit.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	cursor := id % p.opts.Tenants
	for {
		p.mu.Lock()
		for p.queued == 0 && !p.stopping {
			p.cond.Wait()
		}
		if p.queued == 0 && p.stopping {
			p.mu.Unlock()
			return
		}
		var q *queuedJob
		for i := 0; i < p.opts.Tenants; i++ {
			idx := (cursor + i) % p.opts.Tenants
			if len(p.queues[idx]) > 0 {
				q = p.queues[idx][0]
				p.queues[idx] = p.queues[idx][1:]
				p.queued--
				cursor = (idx + 1) % p.opts.Tenants
				break
			}
		}
		p.cond.Broadcast()
		p.mu.Unlock()
		if q == nil {
			continue
		}
		if p.opts.Measurements != nil {
			p.opts.Measurements.Report(q.job.Tenant, stats.OpQueueWait, time.Since(q.enqueued))
		}
		q.job.Run(p.ctx)
		if q.done != nil {
			close(q.done)
		}
	}
}

// Queued reports the total number of jobs waiting across all queues.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queued
}

// Stop drains the queues, then joins the workers. Further dispatches fail
// with ErrStopped; blocked enqueues are released.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopping = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}
