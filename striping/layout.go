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

// Package striping implements the pure striping algebra: mapping a
// logical file byte range to a set of object extents under a fixed
// layout, and back.
package striping

import "fmt"

// Layout fixes the striping parameters for an object set.
type Layout struct {
	StripeUnit  uint64
	StripeCount uint64
	ObjectSize  uint64
}

// Validate checks the invariant object_size % stripe_unit == 0 plus the
// basic non-zero requirements the formulas below assume.
func (l Layout) Validate() error {
	if l.StripeUnit == 0 || l.StripeCount == 0 || l.ObjectSize == 0 {
		return fmt.Errorf("striping: layout fields must be non-zero: %+v", l)
	}
	if l.ObjectSize%l.StripeUnit != 0 {
		return fmt.Errorf("striping: object_size %d not a multiple of stripe_unit %d", l.ObjectSize, l.StripeUnit)
	}
	return nil
}

// StripesPerObject is object_size / stripe_unit.
func (l Layout) StripesPerObject() uint64 {
	return l.ObjectSize / l.StripeUnit
}

// Period is stripe_count * object_size, the file-offset cycle length.
func (l Layout) Period() uint64 {
	return l.StripeCount * l.ObjectSize
}

// OLoc is the routing tuple the object client uses to place/locate an
// object. Its internals are opaque to striping and probe; they only ever
// pass it through unchanged from the caller to the object client.
type OLoc struct {
	Pool string
}

// BufferExtent associates an object-local sub-range with a disjoint
// region of the caller's contiguous buffer.
type BufferExtent struct {
	BufOff uint64
	BufLen uint64
}

// ObjectExtent is one (oid, object-local range) pair produced by
// FileToExtents.
type ObjectExtent struct {
	OID           string
	ObjectNo      uint64
	OLoc          OLoc
	Offset        uint64
	Length        uint64
	BufferExtents []BufferExtent
}

// OidFormatter derives the opaque object id for objectno, typically
// derived from (ino, objectno).
type OidFormatter func(objectno uint64) string

// DefaultOidFormatter returns the conventional "ino.objectno" naming.
func DefaultOidFormatter(ino uint64) OidFormatter {
	return func(objectno uint64) string {
		return fmt.Sprintf("%016x.%016x", ino, objectno)
	}
}
