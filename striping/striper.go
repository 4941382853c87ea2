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

// FileToExtents maps the file byte range [fileOff, fileOff+length) to an
// ordered sequence of ObjectExtents, one per distinct oid, in
// first-appearance order. It is a pure function: no I/O, no locking, and
// the test oracle for ExtentToFile.
func FileToExtents(layout Layout, fileOff, length uint64, oidFor OidFormatter) ([]*ObjectExtent, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}

	stripesPerObject := layout.StripesPerObject()

	byExtent := make(map[string]*ObjectExtent)
	var order []*ObjectExtent

	fileCursor := fileOff
	end := fileOff + length

	for fileCursor < end {
		block := fileCursor / layout.StripeUnit
		stripe := block / layout.StripeCount
		stripePos := block % layout.StripeCount
		objectSet := stripe / stripesPerObject
		objectNo := objectSet*layout.StripeCount + stripePos
		byteInUnit := fileCursor % layout.StripeUnit
		xOffset := (stripe%stripesPerObject)*layout.StripeUnit + byteInUnit

		remaining := end - fileCursor
		chunkLen := layout.StripeUnit - byteInUnit
		if chunkLen > remaining {
			chunkLen = remaining
		}

		oid := oidFor(objectNo)
		ex, exists := byExtent[oid]
		bufOff := fileCursor - fileOff

		if !exists {
			ex = &ObjectExtent{
				OID:      oid,
				ObjectNo: objectNo,
				Offset:   xOffset,
				Length:   chunkLen,
			}
			ex.BufferExtents = appendBufferExtent(ex.BufferExtents, bufOff, chunkLen)
			byExtent[oid] = ex
			order = append(order, ex)
		} else {
			mergeIntoExtent(ex, xOffset, chunkLen)
			ex.BufferExtents = appendBufferExtent(ex.BufferExtents, bufOff, chunkLen)
		}

		fileCursor += chunkLen
	}

	return order, nil
}

// mergeIntoExtent folds a new object-local run [xOffset, xOffset+chunkLen)
// into ex's envelope. Every ObjectExtent has a
// single (offset, length) pair even when a custom OidFormatter maps
// multiple non-contiguous runs onto one oid, so this widens the envelope
// rather than rejecting the non-contiguous case.
func mergeIntoExtent(ex *ObjectExtent, xOffset, chunkLen uint64) {
	newEnd := xOffset + chunkLen
	curEnd := ex.Offset + ex.Length
	if xOffset < ex.Offset {
		ex.Offset = xOffset
	}
	if newEnd > curEnd {
		curEnd = newEnd
	}
	ex.Length = curEnd - ex.Offset
}

// appendBufferExtent appends (bufOff, length) to extents, extending the
// tail entry in place when it is contiguous in buffer space, this is
// coalescing adjacent chunks into one BufferExtent rather than emitting
// one entry per chunk.
func appendBufferExtent(extents []BufferExtent, bufOff, length uint64) []BufferExtent {
	if n := len(extents); n > 0 {
		tail := &extents[n-1]
		if tail.BufOff+tail.BufLen == bufOff {
			tail.BufLen += length
			return extents
		}
	}
	return append(extents, BufferExtent{BufOff: bufOff, BufLen: length})
}

// FileRun is one contiguous file-offset run produced by ExtentToFile.
type FileRun struct {
	FileOff uint64
	Length  uint64
}

// ExtentToFile is the inverse of FileToExtents: given an object-local
// range [objOff, objOff+length) on object objectno, it returns the
// contiguous file-offset runs that range corresponds to. Each run has
// length <= stripe_unit, since object-local contiguity does not imply
// file contiguity once stripe_count > 1 interleaves other objects'
// stripes between occurrences of this one.
func ExtentToFile(layout Layout, objectno uint64, objOff, length uint64) ([]FileRun, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}

	stripesPerObject := layout.StripesPerObject()
	objectSet := objectno / layout.StripeCount
	stripePos := objectno % layout.StripeCount

	var runs []FileRun
	cursor := objOff
	end := objOff + length

	for cursor < end {
		stripeInObject := cursor / layout.StripeUnit
		byteInUnit := cursor % layout.StripeUnit
		stripe := objectSet*stripesPerObject + stripeInObject
		block := stripe*layout.StripeCount + stripePos
		fileOff := block*layout.StripeUnit + byteInUnit

		remaining := end - cursor
		chunkLen := layout.StripeUnit - byteInUnit
		if chunkLen > remaining {
			chunkLen = remaining
		}

		runs = append(runs, FileRun{FileOff: fileOff, Length: chunkLen})

		cursor += chunkLen
	}

	return runs, nil
}
