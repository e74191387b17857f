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

package engine

import (
	"encoding/binary"
	"errors"
)

var errTruncatedRow = errors.New("engine: truncated row")

// SerializeRow encodes fields as repeat{u32 len || name || u32 len || value},
// little-endian. This is the single on-wire row format for every backend.
func SerializeRow(values []Field) []byte {
	size := 0
	for _, f := range values {
		size += 8 + len(f.Name) + len(f.Value)
	}
	data := make([]byte, 0, size)
	var lenBuf [4]byte
	for _, f := range values {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(f.Name)))
		data = append(data, lenBuf[:]...)
		data = append(data, f.Name...)
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(f.Value)))
		data = append(data, lenBuf[:]...)
		data = append(data, f.Value...)
	}
	return data
}

// DeserializeRow decodes a full row.
func DeserializeRow(data []byte) ([]Field, error) {
	var values []Field
	p := 0
	for p < len(data) {
		name, next, err := readChunk(data, p)
		if err != nil {
			return nil, err
		}
		value, next2, err := readChunk(data, next)
		if err != nil {
			return nil, err
		}
		values = append(values, Field{Name: string(name), Value: append([]byte{}, value...)})
		p = next2
	}
	return values, nil
}

// DeserializeRowFilter decodes only the named fields, preserving row order.
func DeserializeRowFilter(data []byte, fields []string) ([]Field, error) {
	want := make(map[string]bool, len(fields))
	for _, f := range fields {
		want[f] = true
	}
	var values []Field
	p := 0
	for p < len(data) && len(values) < len(fields) {
		name, next, err := readChunk(data, p)
		if err != nil {
			return nil, err
		}
		value, next2, err := readChunk(data, next)
		if err != nil {
			return nil, err
		}
		if want[string(name)] {
			values = append(values, Field{Name: string(name), Value: append([]byte{}, value...)})
		}
		p = next2
	}
	return values, nil
}

func readChunk(data []byte, p int) ([]byte, int, error) {
	if p+4 > len(data) {
		return nil, 0, errTruncatedRow
	}
	n := int(binary.LittleEndian.Uint32(data[p : p+4]))
	p += 4
	if p+n > len(data) {
		return nil, 0, errTruncatedRow
	}
	return data[p : p+n], p + n, nil
}

// RowBytes is the serialized footprint of a row, used to size token grants.
func RowBytes(key string, values []Field) int64 {
	n := int64(len(key))
	for _, f := range values {
		n += 8 + int64(len(f.Name)) + int64(len(f.Value))
	}
	return n
}

// FieldsBytes is the decoded payload size of a result row.
func FieldsBytes(values []Field) int64 {
	var n int64
	for _, f := range values {
		n += int64(len(f.Name)) + int64(len(f.Value))
	}
	return n
}
