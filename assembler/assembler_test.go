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

package assembler

import (
	"bytes"
	"testing"
)

// TestAssembleFullCoverage is property 9: when every byte of the
// requested range is reported in full, AssembleResult returns the bytes
// exactly as given, in offset order regardless of report order.
func TestAssembleFullCoverage(t *testing.T) {
	a := NewAssembler()
	if err := a.AddPartialResult([]byte("World"), []BufferExtent{{BufOff: 5, BufLen: 5}}); err != nil {
		t.Fatalf("AddPartialResult: %v", err)
	}
	if err := a.AddPartialResult([]byte("Hello"), []BufferExtent{{BufOff: 0, BufLen: 5}}); err != nil {
		t.Fatalf("AddPartialResult: %v", err)
	}
	got, err := a.AssembleResult(true)
	if err != nil {
		t.Fatalf("AssembleResult: %v", err)
	}
	if !bytes.Equal(got, []byte("HelloWorld")) {
		t.Fatalf("got %q, want %q", got, "HelloWorld")
	}
}

// TestAssembleShortReadZeroFillsWhenRequested is property 10: a short
// read against a sparse object zero-fills the remainder of its
// requested range when zero_tail is true, even though it is the last
// (highest-offset) entry.
func TestAssembleShortReadZeroFillsWhenRequested(t *testing.T) {
	a := NewAssembler()
	if err := a.AddPartialResult([]byte("Hi"), []BufferExtent{{BufOff: 0, BufLen: 10}}); err != nil {
		t.Fatalf("AddPartialResult: %v", err)
	}
	got, err := a.AssembleResult(true)
	if err != nil {
		t.Fatalf("AssembleResult: %v", err)
	}
	want := []byte{'H', 'i', 0, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestAssembleShortReadAtTailElided is property 11: a short read at the
// tail with zero_tail=false produces a result whose length equals the
// last delivered byte position, with no trailing zeros.
func TestAssembleShortReadAtTailElided(t *testing.T) {
	a := NewAssembler()
	if err := a.AddPartialResult([]byte("data"), []BufferExtent{{BufOff: 0, BufLen: 4}}); err != nil {
		t.Fatalf("AddPartialResult: %v", err)
	}
	if err := a.AddPartialResult([]byte("Hi"), []BufferExtent{{BufOff: 4, BufLen: 10}}); err != nil {
		t.Fatalf("AddPartialResult: %v", err)
	}
	got, err := a.AssembleResult(false)
	if err != nil {
		t.Fatalf("AssembleResult: %v", err)
	}
	want := []byte("dataHi")
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestAssembleShortReadNotAtTailStillZeroFilled checks that a short read
// followed by more (fully covered) entries at higher offsets still gets
// zero-padded even with zero_tail=false, since only the true tail can
// ever be elided.
func TestAssembleShortReadNotAtTailStillZeroFilled(t *testing.T) {
	a := NewAssembler()
	if err := a.AddPartialResult([]byte("Hi"), []BufferExtent{{BufOff: 0, BufLen: 4}}); err != nil {
		t.Fatalf("AddPartialResult: %v", err)
	}
	if err := a.AddPartialResult([]byte("more"), []BufferExtent{{BufOff: 4, BufLen: 4}}); err != nil {
		t.Fatalf("AddPartialResult: %v", err)
	}
	got, err := a.AssembleResult(false)
	if err != nil {
		t.Fatalf("AssembleResult: %v", err)
	}
	want := []byte{'H', 'i', 0, 0, 'm', 'o', 'r', 'e'}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestAssembleSparseHole checks a hole in the middle, reported without
// any delivered bytes at all, e.g. an object that stat'd as not existing.
func TestAssembleSparseHole(t *testing.T) {
	a := NewAssembler()
	if err := a.AddPartialResult([]byte("data"), []BufferExtent{{BufOff: 0, BufLen: 4}}); err != nil {
		t.Fatalf("AddPartialResult: %v", err)
	}
	if err := a.AddPartialSparseResult(nil, nil, 0, []BufferExtent{{BufOff: 4, BufLen: 4}}); err != nil {
		t.Fatalf("AddPartialSparseResult: %v", err)
	}
	got, err := a.AssembleResult(true)
	if err != nil {
		t.Fatalf("AssembleResult: %v", err)
	}
	want := []byte{'d', 'a', 't', 'a', 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestAssembleSparseResultGapThenData exercises add_partial_sparse_result
// against a sparse_map describing a hole followed by a dense run within
// one extent.
func TestAssembleSparseResultGapThenData(t *testing.T) {
	a := NewAssembler()
	sparseMap := []SparseRun{{Off: 4, Len: 4}}
	if err := a.AddPartialSparseResult([]byte("tail"), sparseMap, 0, []BufferExtent{{BufOff: 0, BufLen: 8}}); err != nil {
		t.Fatalf("AddPartialSparseResult: %v", err)
	}
	got, err := a.AssembleResult(true)
	if err != nil {
		t.Fatalf("AssembleResult: %v", err)
	}
	want := []byte{0, 0, 0, 0, 't', 'a', 'i', 'l'}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestAssembleInternalGapErrors is the coverage-invariant check: a byte
// range that no extent ever reported on is a genuine inconsistency, not
// a hole, and must fail rather than silently zero-filling.
func TestAssembleInternalGapErrors(t *testing.T) {
	a := NewAssembler()
	if err := a.AddPartialResult([]byte("data"), []BufferExtent{{BufOff: 0, BufLen: 4}}); err != nil {
		t.Fatalf("AddPartialResult: %v", err)
	}
	// [4,10) never reported by anything.
	if err := a.AddPartialResult([]byte("later"), []BufferExtent{{BufOff: 10, BufLen: 5}}); err != nil {
		t.Fatalf("AddPartialResult: %v", err)
	}
	if _, err := a.AssembleResult(true); err == nil {
		t.Fatal("expected an error for the uncovered gap")
	}
}

func TestAssembleDuplicateOffsetRejected(t *testing.T) {
	a := NewAssembler()
	if err := a.AddPartialResult([]byte("data"), []BufferExtent{{BufOff: 0, BufLen: 4}}); err != nil {
		t.Fatalf("AddPartialResult: %v", err)
	}
	if err := a.AddPartialResult([]byte("more"), []BufferExtent{{BufOff: 0, BufLen: 4}}); err == nil {
		t.Fatal("expected duplicate-offset error")
	}
}
