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

package writebuffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const mb = uint64(1024 * 1024)

func newTestManager(t *testing.T, tenants int, capBytes uint64, steady []bool) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		Tenants:          tenants,
		TotalCapBytes:    capBytes,
		MinMemtableBytes: 1 * mb,
		MinMemtableCount: 2,
		Steady:           steady,
	})
	require.NoError(t, err)
	return m
}

func TestReserveWithinFloor(t *testing.T) {
	m := newTestManager(t, 2, 64*mb, []bool{true, true})

	require.True(t, m.Reserve(0, 1*mb))
	require.True(t, m.Reserve(0, 1*mb)) // floor is 2 x 1 MB
	require.Equal(t, 2*mb, m.Used(0))
	require.Equal(t, 2*mb, m.GlobalUsed())
}

func TestReserveStallRequestsFlush(t *testing.T) {
	m := newTestManager(t, 2, 64*mb, []bool{true, true})

	require.True(t, m.Reserve(0, 2*mb))
	// Quota exhausted: next reserve stalls and posts exactly one flush request.
	require.False(t, m.Reserve(0, 1*mb))
	select {
	case <-m.FlushRequests(0):
	default:
		t.Fatal("stall did not request a flush")
	}

	// Flush completes; the retry succeeds.
	m.Release(0, 2*mb)
	require.True(t, m.Reserve(0, 1*mb))
}

func TestGlobalCapEnforced(t *testing.T) {
	m := newTestManager(t, 2, 3*mb, []bool{true, true})
	m.SetShares([]Share{
		{ReservedBytes: 3 * mb, MemtableCount: 2},
		{ReservedBytes: 3 * mb, MemtableCount: 2},
	})

	require.True(t, m.Reserve(0, 2*mb))
	// Tenant 1 has quota but the global cap is nearly spent.
	require.False(t, m.Reserve(1, 2*mb))
	require.True(t, m.Reserve(1, 1*mb))
	require.LessOrEqual(t, m.GlobalUsed(), 3*mb)
}

// An idle bursty tenant's reservation is elastic capacity for others; an
// idle steady tenant's is not.
func TestElasticPool(t *testing.T) {
	t.Run("BurstyYields", func(t *testing.T) {
		m := newTestManager(t, 2, 64*mb, []bool{true, false})
		// Tenant 0's floor is 2 MB; tenant 1 (bursty, idle) contributes 2 MB.
		require.True(t, m.Reserve(0, 4*mb))
	})

	t.Run("SteadyHolds", func(t *testing.T) {
		m := newTestManager(t, 2, 64*mb, []bool{true, true})
		require.False(t, m.Reserve(0, 4*mb))
	})

	t.Run("ActiveBurstyHolds", func(t *testing.T) {
		m := newTestManager(t, 2, 64*mb, []bool{true, false})
		require.True(t, m.Reserve(1, 1*mb)) // bursty tenant demands its space back
		require.False(t, m.Reserve(0, 4*mb))
	})
}

func TestSetSharesFloorClamp(t *testing.T) {
	m := newTestManager(t, 2, 64*mb, []bool{true, false})
	m.SetShares([]Share{
		{ReservedBytes: 0, MemtableCount: 0},
		{ReservedBytes: 0, MemtableCount: 0},
	})

	shares := m.Shares()
	// Steady tenant 0 keeps the floor; bursty tenant 1 may be cut to zero.
	require.Equal(t, 2*mb, shares[0].ReservedBytes)
	require.Equal(t, uint64(0), shares[1].ReservedBytes)
	// Count never drops below the minimum for either class.
	require.Equal(t, 2, shares[0].MemtableCount)
	require.Equal(t, 2, shares[1].MemtableCount)
}

func TestReleaseClampsToUsed(t *testing.T) {
	m := newTestManager(t, 1, 64*mb, nil)
	require.True(t, m.Reserve(0, 1*mb))
	m.Release(0, 5*mb) // over-release is clamped, not wrapped
	require.Equal(t, uint64(0), m.Used(0))
	require.Equal(t, uint64(0), m.GlobalUsed())
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(Options{Tenants: 0, TotalCapBytes: mb})
	require.Error(t, err)
	_, err = NewManager(Options{Tenants: 1})
	require.Error(t, err)
}
