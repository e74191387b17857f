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

// Package stats is the measurement pipeline: per-(tenant, op) latency
// histograms and the periodic CSV status dump.
package stats

import "fmt"

// Op identifies an operation kind for measurement and dispatch purposes.
// QueueWait is a pseudo-op reporting dispatch queueing delay; the *Failed
// variants count non-OK completions separately from the success histograms.
type Op int

const (
	OpInsert Op = iota
	OpRead
	OpUpdate
	OpScan
	OpReadModifyWrite
	OpDelete
	OpRandomInsert
	OpInsertBatch
	OpReadBatch
	OpReadModifyInsertBatch
	OpQueueWait
	OpInsertFailed
	OpReadFailed
	OpUpdateFailed
	OpScanFailed
	OpReadModifyWriteFailed
	OpDeleteFailed
	OpRandomInsertFailed
	OpInsertBatchFailed
	OpReadBatchFailed
	OpReadModifyInsertBatchFailed

	NumOps
)

var opNames = [NumOps]string{
	"INSERT", "READ", "UPDATE", "SCAN", "READMODIFYWRITE", "DELETE",
	"RANDOM_INSERT", "INSERT_BATCH", "READ_BATCH", "READ_MODIFY_INSERT_BATCH",
	"QUEUE_WAIT",
	"INSERT_FAILED", "READ_FAILED", "UPDATE_FAILED", "SCAN_FAILED",
	"READMODIFYWRITE_FAILED", "DELETE_FAILED", "RANDOM_INSERT_FAILED",
	"INSERT_BATCH_FAILED", "READ_BATCH_FAILED", "READ_MODIFY_INSERT_BATCH_FAILED",
}

func (o Op) String() string {
	if o < 0 || o >= NumOps {
		return fmt.Sprintf("Op(%d)", int(o))
	}
	return opNames[o]
}

// Failed maps a success op to its failure counterpart. QueueWait has none.
func (o Op) Failed() Op {
	switch o {
	case OpInsert:
		return OpInsertFailed
	case OpRead:
		return OpReadFailed
	case OpUpdate:
		return OpUpdateFailed
	case OpScan:
		return OpScanFailed
	case OpReadModifyWrite:
		return OpReadModifyWriteFailed
	case OpDelete:
		return OpDeleteFailed
	case OpRandomInsert:
		return OpRandomInsertFailed
	case OpInsertBatch:
		return OpInsertBatchFailed
	case OpReadBatch:
		return OpReadBatchFailed
	case OpReadModifyInsertBatch:
		return OpReadModifyInsertBatchFailed
	}
	return o
}

// ParseOp resolves an op name as written in workload configs.
func ParseOp(name string) (Op, error) {
	for i := Op(0); i < NumOps; i++ {
		if opNames[i] == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("stats: unknown operation %q", name)
}
