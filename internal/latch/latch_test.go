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

package latch

import (
	"testing"
	"time"
)

func TestLatchReleasesAtZero(t *testing.T) {
	l := New(3)
	if l.Released() {
		t.Fatal("fresh latch already released")
	}
	l.CountDown()
	l.CountDown()
	if l.Released() {
		t.Fatal("released before final count-down")
	}
	l.CountDown()
	if !l.Released() {
		t.Fatal("not released at zero")
	}
	l.CountDown() // extra calls are no-ops
	l.Await()     // must not block
}

func TestAwaitTimeoutTicks(t *testing.T) {
	l := New(1)
	start := time.Now()
	if l.AwaitTimeout(20 * time.Millisecond) {
		t.Fatal("AwaitTimeout reported release on a held latch")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("AwaitTimeout returned after %v, want about 20ms", elapsed)
	}
	l.CountDown()
	if !l.AwaitTimeout(time.Hour) {
		t.Fatal("AwaitTimeout did not observe release")
	}
}

func TestNonPositiveCountStartsReleased(t *testing.T) {
	if !New(0).Released() {
		t.Fatal("zero-count latch should start released")
	}
}
