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

package striping

import (
	"math/rand"
	"testing"
)

// TestFileToExtentsRoundTrip checks that:
// concatenating buffer_extents of all returned extents in emission order
// yields exactly [0, len) contiguously.
func TestFileToExtentsRoundTrip(t *testing.T) {
	layouts := []Layout{
		{StripeUnit: 64, StripeCount: 2, ObjectSize: 128},
		{StripeUnit: 4096, StripeCount: 4, ObjectSize: 16384},
		{StripeUnit: 128, StripeCount: 3, ObjectSize: 128},
	}

	rng := rand.New(rand.NewSource(7))
	for li, layout := range layouts {
		for trial := 0; trial < 20; trial++ {
			fileOff := uint64(rng.Intn(5000))
			length := uint64(rng.Intn(5000) + 1)

			extents, err := FileToExtents(layout, fileOff, length, DefaultOidFormatter(1))
			if err != nil {
				t.Fatalf("layout %d: FileToExtents: %v", li, err)
			}

			covered := make([]bool, length)
			for _, ex := range extents {
				for _, be := range ex.BufferExtents {
					if be.BufOff+be.BufLen > length {
						t.Fatalf("layout %d: buffer extent out of range: %+v len=%d", li, be, length)
					}
					for i := uint64(0); i < be.BufLen; i++ {
						if covered[be.BufOff+i] {
							t.Fatalf("layout %d: byte %d covered twice", li, be.BufOff+i)
						}
						covered[be.BufOff+i] = true
					}
				}
			}
			for i, c := range covered {
				if !c {
					t.Fatalf("layout %d: byte %d not covered (fileOff=%d len=%d)", li, i, fileOff, length)
				}
			}
		}
	}
}

// TestFileToExtentsOidUniqueness is property 2.
func TestFileToExtentsOidUniqueness(t *testing.T) {
	layout := Layout{StripeUnit: 4096, StripeCount: 4, ObjectSize: 16384}
	extents, err := FileToExtents(layout, 1000, 500000, DefaultOidFormatter(42))
	if err != nil {
		t.Fatalf("FileToExtents: %v", err)
	}
	seen := make(map[string]bool)
	for _, ex := range extents {
		if seen[ex.OID] {
			t.Fatalf("oid %s appears more than once", ex.OID)
		}
		seen[ex.OID] = true
	}
}

// TestExtentToFileInverse is property 3: for every extent returned by
// FileToExtents, ExtentToFile inverts it back to the file ranges implied
// by its buffer_extents, shifted by the original fileOff.
func TestExtentToFileInverse(t *testing.T) {
	layout := Layout{StripeUnit: 64, StripeCount: 3, ObjectSize: 192}
	fileOff := uint64(37)
	length := uint64(4000)

	extents, err := FileToExtents(layout, fileOff, length, DefaultOidFormatter(9))
	if err != nil {
		t.Fatalf("FileToExtents: %v", err)
	}

	for _, ex := range extents {
		runs, err := ExtentToFile(layout, ex.ObjectNo, ex.Offset, ex.Length)
		if err != nil {
			t.Fatalf("ExtentToFile: %v", err)
		}

		var wantRuns []FileRun
		for _, be := range ex.BufferExtents {
			fo := fileOff + be.BufOff
			if n := len(wantRuns); n > 0 && wantRuns[n-1].FileOff+wantRuns[n-1].Length == fo {
				wantRuns[n-1].Length += be.BufLen
			} else {
				wantRuns = append(wantRuns, FileRun{FileOff: fo, Length: be.BufLen})
			}
		}

		if len(runs) != len(wantRuns) {
			t.Fatalf("oid %s: got %d runs, want %d: got=%v want=%v", ex.OID, len(runs), len(wantRuns), runs, wantRuns)
		}
		for i := range runs {
			if runs[i] != wantRuns[i] {
				t.Fatalf("oid %s: run %d = %+v, want %+v", ex.OID, i, runs[i], wantRuns[i])
			}
		}
	}
}

// TestFileToExtentsS3 exercises a two-way stripe layout over [0,320),
// resolved by the FileToExtents formula rather than by hand: the fifth
// stripe unit (bytes 256-319) opens the second object set and so lands
// on object 2, giving three extents.
func TestFileToExtentsS3(t *testing.T) {
	layout := Layout{StripeUnit: 64, StripeCount: 2, ObjectSize: 128}
	extents, err := FileToExtents(layout, 0, 320, DefaultOidFormatter(1))
	if err != nil {
		t.Fatalf("FileToExtents: %v", err)
	}
	if len(extents) != 3 {
		t.Fatalf("got %d extents, want 3: %+v", len(extents), extents)
	}

	obj0, obj1, obj2 := extents[0], extents[1], extents[2]
	if obj0.ObjectNo != 0 || obj0.Offset != 0 || obj0.Length != 128 {
		t.Fatalf("obj0 = %+v", obj0)
	}
	wantBE0 := []BufferExtent{{BufOff: 0, BufLen: 64}, {BufOff: 128, BufLen: 64}}
	if len(obj0.BufferExtents) != len(wantBE0) || obj0.BufferExtents[0] != wantBE0[0] || obj0.BufferExtents[1] != wantBE0[1] {
		t.Fatalf("obj0 buffer extents = %+v, want %+v", obj0.BufferExtents, wantBE0)
	}

	if obj1.ObjectNo != 1 || obj1.Offset != 0 || obj1.Length != 128 {
		t.Fatalf("obj1 = %+v", obj1)
	}
	if obj2.ObjectNo != 2 || obj2.Offset != 0 || obj2.Length != 64 {
		t.Fatalf("obj2 = %+v", obj2)
	}
}

func TestLayoutValidate(t *testing.T) {
	bad := Layout{StripeUnit: 100, StripeCount: 1, ObjectSize: 250}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for non-multiple object_size")
	}
}
