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

// Package behavior generates request timing for each tenant from a script of
// phases: steady cadence, bursts, idle stretches, and trace replay.
package behavior

import (
	"context"
	"fmt"
	"time"
)

// PhaseType tags a behavior phase.
type PhaseType int

const (
	Steady PhaseType = iota
	Bursty
	Inactive
	Replay
)

func (p PhaseType) String() string {
	switch p {
	case Steady:
		return "STEADY"
	case Bursty:
		return "BURSTY"
	case Inactive:
		return "INACTIVE"
	case Replay:
		return "REPLAY"
	}
	return fmt.Sprintf("PhaseType(%d)", int(p))
}

// Phase is one step of a tenant's behavior script.
type Phase struct {
	Type PhaseType

	// Steady and Bursty.
	QPS int

	// Steady and Inactive, in seconds.
	DurationS int

	// Bursty.
	BurstMS int
	IdleMS  int
	Repeats int

	// Replay.
	TraceFile  string
	ReplayID   int
	ScaleRatio float64
}

// Validate rejects phases the executor cannot run.
func (p Phase) Validate() error {
	switch p.Type {
	case Steady:
		if p.QPS <= 0 {
			return fmt.Errorf("behavior: STEADY requires positive qps, have %d", p.QPS)
		}
		if p.DurationS < 0 {
			return fmt.Errorf("behavior: STEADY duration must be >= 0, have %d", p.DurationS)
		}
	case Bursty:
		if p.QPS <= 0 {
			return fmt.Errorf("behavior: BURSTY requires positive qps, have %d", p.QPS)
		}
		if p.Repeats < 0 {
			return fmt.Errorf("behavior: BURSTY repeats must be >= 0, have %d", p.Repeats)
		}
	case Inactive:
		if p.DurationS < 0 {
			return fmt.Errorf("behavior: INACTIVE duration must be >= 0, have %d", p.DurationS)
		}
	case Replay:
		if p.TraceFile == "" {
			return fmt.Errorf("behavior: REPLAY requires a trace file")
		}
		if p.ScaleRatio <= 0 {
			return fmt.Errorf("behavior: REPLAY scale ratio must be > 0, have %v", p.ScaleRatio)
		}
	default:
		return fmt.Errorf("behavior: unknown phase type %d", int(p.Type))
	}
	return nil
}

// busyWaitThreshold: below this emission interval we spin instead of
// sleeping to keep cadence jitter under the timer granularity.
const busyWaitThreshold = time.Millisecond

// Run executes the phases in order, calling send once per generated request.
// It returns early with ctx.Err() on cancellation, or a TraceIO error at the
// start of a replay phase.
func Run(ctx context.Context, phases []Phase, send func()) error {
	for _, p := range phases {
		if err := p.Validate(); err != nil {
			return err
		}
		var err error
		switch p.Type {
		case Steady:
			err = runSteady(ctx, p.QPS, p.DurationS, send)
		case Bursty:
			err = runBursty(ctx, p, send)
		case Inactive:
			err = sleep(ctx, time.Duration(p.DurationS)*time.Second)
		case Replay:
			err = runReplay(ctx, p, send)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func runSteady(ctx context.Context, qps, durationS int, send func()) error {
	interval := time.Second / time.Duration(qps)
	total := qps * durationS
	return emitPaced(ctx, total, interval, send)
}

func runBursty(ctx context.Context, p Phase, send func()) error {
	interval := time.Second / time.Duration(p.QPS)
	perBurst := p.QPS * p.BurstMS / 1000
	idle := time.Duration(p.IdleMS) * time.Millisecond
	for r := 0; r < p.Repeats; r++ {
		if err := emitPaced(ctx, perBurst, interval, send); err != nil {
			return err
		}
		if err := sleep(ctx, idle); err != nil {
			return err
		}
	}
	return nil
}

func runReplay(ctx context.Context, p Phase, send func()) error {
	trace, err := LoadTrace(p.TraceFile)
	if err != nil {
		return err
	}
	intervals, ok := trace[p.ReplayID]
	if !ok {
		return fmt.Errorf("behavior: replay id %d not found in trace %s", p.ReplayID, p.TraceFile)
	}
	for _, iv := range intervals {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		send()
		scaled := time.Duration(iv / p.ScaleRatio * float64(time.Second))
		if scaled < 0 {
			scaled = 0
		}
		if err := sleep(ctx, scaled); err != nil {
			return err
		}
	}
	return nil
}

// emitPaced sends total requests on an absolute-time cadence so pacing does
// not drift with send latency.
func emitPaced(ctx context.Context, total int, interval time.Duration, send func()) error {
	next := time.Now()
	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		send()
		next = next.Add(interval)
		if err := sleepUntil(ctx, next, interval < busyWaitThreshold); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sleepUntil parks until the deadline. When spin is set the final stretch is
// a busy-wait with periodic cancellation checks.
func sleepUntil(ctx context.Context, until time.Time, spin bool) error {
	if !spin {
		return sleep(ctx, time.Until(until))
	}
	if coarse := time.Until(until) - 500*time.Microsecond; coarse > 0 {
		if err := sleep(ctx, coarse); err != nil {
			return err
		}
	}
	for i := 0; time.Now().Before(until); i++ {
		if i%1024 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}
	return nil
}

// TotalOps statically computes the number of requests a script emits. Replay
// phases contribute the length of their interval list; trace errors surface
// here the same way they would at phase start.
func TotalOps(phases []Phase) (int, error) {
	total := 0
	for _, p := range phases {
		if err := p.Validate(); err != nil {
			return 0, err
		}
		switch p.Type {
		case Steady:
			total += p.QPS * p.DurationS
		case Bursty:
			total += p.QPS * p.BurstMS / 1000 * p.Repeats
		case Replay:
			trace, err := LoadTrace(p.TraceFile)
			if err != nil {
				return 0, err
			}
			intervals, ok := trace[p.ReplayID]
			if !ok {
				return 0, fmt.Errorf("behavior: replay id %d not found in trace %s", p.ReplayID, p.TraceFile)
			}
			total += len(intervals)
		}
	}
	return total, nil
}
