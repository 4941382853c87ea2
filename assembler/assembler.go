// Copyright 2024 The Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package assembler implements the Striped Result Assembler: gathering
// the per-object partial reads a striped read fans out into one
// contiguous destination buffer. Each reported range carries a
// declared length (what the read was supposed to cover) and a
// delivered length (what actually came back, possibly shorter for a
// sparse object); AssembleResult walks them in order and decides
// whether a short final range gets zero-padded out to its declared
// length or has its trailing hole elided.
package assembler

import (
	"fmt"
	"sort"
)

// entry is one reported range: [bufOff, bufOff+declared) was requested,
// but only data (len(data) <= declared) was actually delivered.
type entry struct {
	bufOff   uint64
	declared uint64
	data     []byte
}

// Assembler accumulates partial results keyed by buffer offset. Build one
// with NewAssembler, which allocates its entry map; adding results to a
// zero-value Assembler panics on the nil map.
type Assembler struct {
	entries map[uint64]*entry
}

func NewAssembler() *Assembler {
	return &Assembler{entries: make(map[uint64]*entry)}
}

// AddPartialResult is add_partial_result: data is the dense bytes a
// single object read returned, to be spliced across extents in order ,
// one object's read may cover several disjoint buffer regions when its
// ObjectExtent coalesced non-adjacent chunks (striping.BufferExtent).
// Each extent gets min(len(remaining data), extent.BufLen) bytes; a
// short read leaves later extents in the same call, and any extent
// entirely past the delivered bytes, with no data at all.
func (a *Assembler) AddPartialResult(data []byte, extents []BufferExtent) error {
	for _, be := range extents {
		if _, dup := a.entries[be.BufOff]; dup {
			return fmt.Errorf("assembler: duplicate entry at buf offset %d", be.BufOff)
		}
		n := uint64(len(data))
		if n > be.BufLen {
			n = be.BufLen
		}
		a.entries[be.BufOff] = &entry{bufOff: be.BufOff, declared: be.BufLen, data: data[:n]}
		data = data[n:]
	}
	return nil
}

// BufferExtent mirrors striping.BufferExtent without importing striping,
// so callers outside the striping/objectclient chain (e.g. tests) can
// construct assembler input directly.
type BufferExtent struct {
	BufOff uint64
	BufLen uint64
}

// SparseRun is one dense run in an object's sparse-read reply, keyed by
// its offset within the object's read window (src_off -> run_len).
type SparseRun struct {
	Off uint64
	Len uint64
}

// AddPartialSparseResult is add_partial_sparse_result: data holds only
// the dense bytes described by sparseMap (holes are omitted, not
// zero-filled, on the wire), and blOff is the object-local offset the
// first byte of sparseMap corresponds to. For each extent, gaps between
// dense runs are recorded as zero-length declared-nonzero entries (pure
// holes) and dense runs are spliced the same way
// AddPartialResult does.
func (a *Assembler) AddPartialSparseResult(data []byte, sparseMap []SparseRun, blOff uint64, extents []BufferExtent) error {
	cursor := 0 // index into sparseMap
	objectOff := blOff
	for _, be := range extents {
		remaining := be.BufLen
		extentOff := be.BufOff

		for remaining > 0 {
			if cursor >= len(sparseMap) {
				// No more dense runs: the rest of this extent is a pure
				// hole.
				a.entries[extentOff] = &entry{bufOff: extentOff, declared: remaining}
				objectOff += remaining
				extentOff += remaining
				remaining = 0
				break
			}
			run := sparseMap[cursor]
			if run.Off > objectOff {
				// Gap before the next dense run.
				gap := run.Off - objectOff
				if gap > remaining {
					gap = remaining
				}
				a.entries[extentOff] = &entry{bufOff: extentOff, declared: gap}
				objectOff += gap
				extentOff += gap
				remaining -= gap
				if remaining == 0 {
					break
				}
			}
			if run.Off+run.Len <= objectOff {
				// Fully consumed by a previous extent; advance past it.
				cursor++
				continue
			}
			// objectOff now lies inside (or at the start of) this dense
			// run; splice from data.
			skip := objectOff - run.Off
			avail := run.Len - skip
			take := avail
			if take > remaining {
				take = remaining
			}
			a.entries[extentOff] = &entry{bufOff: extentOff, declared: take, data: data[:take]}
			data = data[take:]
			objectOff += take
			extentOff += take
			remaining -= take
			if take == avail {
				cursor++
			}
		}
	}
	return nil
}

// AssembleResult walks entries in descending buf-offset order,
// prepending each to the output. zeroTail
// controls what happens to a short (delivered < declared) range that is
// still the tail of everything assembled so far: when true, or once
// anything has already been prepended, the shortfall is zero-padded in
// place; when false and nothing has been prepended yet, the shortfall
// is simply omitted and the result is shorter than the nominal length.
func (a *Assembler) AssembleResult(zeroTail bool) ([]byte, error) {
	offs := make([]uint64, 0, len(a.entries))
	for off := range a.entries {
		offs = append(offs, off)
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })

	for i := 0; i < len(offs); i++ {
		want := uint64(0)
		if i > 0 {
			prev := a.entries[offs[i-1]]
			want = prev.bufOff + prev.declared
		}
		if offs[i] != want {
			return nil, fmt.Errorf("assembler: gap in coverage before offset %d (expected %d)", offs[i], want)
		}
	}

	var out []byte
	for i := len(offs) - 1; i >= 0; i-- {
		e := a.entries[offs[i]]
		shortfall := e.declared - uint64(len(e.data))
		if shortfall == 0 {
			out = append(append([]byte{}, e.data...), out...)
			continue
		}
		if zeroTail || len(out) > 0 {
			padded := make([]byte, 0, shortfall+uint64(len(e.data))+uint64(len(out)))
			padded = append(padded, e.data...)
			padded = append(padded, make([]byte, shortfall)...)
			out = append(padded, out...)
			continue
		}
		// Trailing hole elided: this is the highest-offset entry, output
		// is still empty, and the caller doesn't want a zero tail.
		out = append(append([]byte{}, e.data...), out...)
	}
	return out, nil
}
