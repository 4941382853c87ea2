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

package soc

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	cerrors "github.com/chenggangschool/cephcore/util/errors"
	"github.com/chenggangschool/cephcore/objectclient"
	"github.com/chenggangschool/cephcore/striping"
)

// fakeObjectClient is an in-memory stand-in for the OSD collaborator:
// each object is a dense byte slice growable by Write, read back
// exactly, with Stat/Read on a missing oid reporting ErrNotFound.
type fakeObjectClient struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func newFakeObjectClient() *fakeObjectClient {
	return &fakeObjectClient{objs: make(map[string][]byte)}
}

func (f *fakeObjectClient) Stat(ctx context.Context, oid string, oloc striping.OLoc, snap objectclient.SnapID, flags objectclient.StatFlags) (uint64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objs[oid]
	if !ok {
		return 0, time.Time{}, cerrors.New(cerrors.ErrNotFound, "not found")
	}
	return uint64(len(data)), time.Time{}, nil
}

func (f *fakeObjectClient) Read(ctx context.Context, oid string, oloc striping.OLoc, snap objectclient.SnapID, off, length uint64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objs[oid]
	if !ok {
		return nil, cerrors.New(cerrors.ErrNotFound, "not found")
	}
	if off >= uint64(len(data)) {
		return nil, nil
	}
	end := off + length
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	out := make([]byte, end-off)
	copy(out, data[off:end])
	return out, nil
}

func (f *fakeObjectClient) Write(ctx context.Context, oid string, oloc striping.OLoc, snapCtx objectclient.SnapContext, off uint64, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.growLocked(oid, off+uint64(len(data)))
	copy(f.objs[oid][off:], data)
	return nil
}

func (f *fakeObjectClient) WriteTrunc(ctx context.Context, oid string, oloc striping.OLoc, snapCtx objectclient.SnapContext, off uint64, data []byte, truncSize uint64) error {
	if err := f.Write(ctx, oid, oloc, snapCtx, off, data); err != nil {
		return err
	}
	return f.TruncateOp(ctx, oid, oloc, snapCtx, truncSize)
}

func (f *fakeObjectClient) Zero(ctx context.Context, oid string, oloc striping.OLoc, snapCtx objectclient.SnapContext, off, length uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objs[oid]
	if !ok {
		return cerrors.New(cerrors.ErrNotFound, "not found")
	}
	end := off + length
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	for i := off; i < end; i++ {
		data[i] = 0
	}
	return nil
}

func (f *fakeObjectClient) Remove(ctx context.Context, oid string, oloc striping.OLoc, snapCtx objectclient.SnapContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objs, oid)
	return nil
}

func (f *fakeObjectClient) TruncateOp(ctx context.Context, oid string, oloc striping.OLoc, snapCtx objectclient.SnapContext, size uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objs[oid]; !ok {
		return cerrors.New(cerrors.ErrNotFound, "not found")
	}
	f.growLocked(oid, size)
	f.objs[oid] = f.objs[oid][:size]
	return nil
}

func (f *fakeObjectClient) growLocked(oid string, size uint64) {
	data := f.objs[oid]
	if uint64(len(data)) >= size {
		return
	}
	grown := make([]byte, size)
	copy(grown, data)
	f.objs[oid] = grown
}

func testLayout() striping.Layout {
	return striping.Layout{StripeUnit: 64, StripeCount: 2, ObjectSize: 128}
}

// TestWriteThenReadRoundTrip exercises a striped write spanning several
// objects followed by a read of the same range.
func TestWriteThenReadRoundTrip(t *testing.T) {
	oc := newFakeObjectClient()
	c := NewClient(oc, nil)
	layout := testLayout()
	oidFor := striping.DefaultOidFormatter(1)

	payload := make([]byte, 500)
	for i := range payload {
		payload[i] = byte(i)
	}

	ctx := context.Background()
	if err := c.Write(ctx, 1, layout, objectclient.SnapContext{}, oidFor, 0, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := c.Read(ctx, 1, layout, objectclient.SnapID(0), oidFor, 0, uint64(len(payload)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %v bytes, want %v bytes", len(got), len(payload))
	}
}

// TestReadOfNeverWrittenRangeIsZero checks that reading a range nothing
// ever wrote returns zeros rather than an error, relying on the
// "absent object reports size 0" convention the probe engine assumes.
func TestReadOfNeverWrittenRangeIsZero(t *testing.T) {
	oc := newFakeObjectClient()
	c := NewClient(oc, nil)
	layout := testLayout()
	oidFor := striping.DefaultOidFormatter(1)

	got, err := c.Read(context.Background(), 1, layout, objectclient.SnapID(0), oidFor, 0, 256)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := make([]byte, 256)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want all zero", got)
	}
}

// TestReadShortObjectZeroFillsTail checks a partially written object
// read back past its written length zero-fills the remainder.
func TestReadShortObjectZeroFillsTail(t *testing.T) {
	oc := newFakeObjectClient()
	c := NewClient(oc, nil)
	layout := testLayout()
	oidFor := striping.DefaultOidFormatter(1)
	ctx := context.Background()

	if err := c.Write(ctx, 1, layout, objectclient.SnapContext{}, oidFor, 0, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := c.Read(ctx, 1, layout, objectclient.SnapID(0), oidFor, 0, 64)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := make([]byte, 64)
	copy(want, "hello")
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestGetSizeAfterWrite checks that probing after a partial write
// recovers the logical end exactly at the last written byte.
func TestGetSizeAfterWrite(t *testing.T) {
	oc := newFakeObjectClient()
	c := NewClient(oc, nil)
	layout := testLayout()
	oidFor := striping.DefaultOidFormatter(1)
	ctx := context.Background()

	if err := c.Write(ctx, 1, layout, objectclient.SnapContext{}, oidFor, 0, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	res, err := c.GetSize(ctx, 1, layout, objectclient.SnapID(0), oidFor, 0, true, false)
	if err != nil {
		t.Fatalf("GetSize: %v", err)
	}
	if res.Size != 5 {
		t.Fatalf("got size %d, want 5", res.Size)
	}
}

// TestGetSizeEmptyFile checks that probing an ino with no objects at
// all resolves to size 0.
func TestGetSizeEmptyFile(t *testing.T) {
	oc := newFakeObjectClient()
	c := NewClient(oc, nil)
	layout := testLayout()
	oidFor := striping.DefaultOidFormatter(1)

	res, err := c.GetSize(context.Background(), 1, layout, objectclient.SnapID(0), oidFor, 0, true, false)
	if err != nil {
		t.Fatalf("GetSize: %v", err)
	}
	if res.Size != 0 {
		t.Fatalf("got size %d, want 0", res.Size)
	}
}

// TestTruncateShrinkRemovesTrailingObjects checks that shrinking past an
// object boundary removes the now-unreachable trailing object and
// truncates the boundary object to its new local size.
func TestTruncateShrinkRemovesTrailingObjects(t *testing.T) {
	oc := newFakeObjectClient()
	c := NewClient(oc, nil)
	layout := testLayout() // stripe_unit=64, stripe_count=2, object_size=128 -> period 256
	oidFor := striping.DefaultOidFormatter(1)
	ctx := context.Background()

	payload := make([]byte, 300)
	if err := c.Write(ctx, 1, layout, objectclient.SnapContext{}, oidFor, 0, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := c.Truncate(ctx, 1, layout, objectclient.SnapContext{}, oidFor, 300, 10); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	res, err := c.GetSize(ctx, 1, layout, objectclient.SnapID(0), oidFor, 0, true, false)
	if err != nil {
		t.Fatalf("GetSize after truncate: %v", err)
	}
	if res.Size != 10 {
		t.Fatalf("got size %d after truncate, want 10", res.Size)
	}
}

// TestTruncateGrowIsObjectStoreNoOp checks that growing never issues any
// object-store op: a subsequent read of the grown range still comes back
// all zero and nothing explodes.
func TestTruncateGrowIsObjectStoreNoOp(t *testing.T) {
	oc := newFakeObjectClient()
	c := NewClient(oc, nil)
	layout := testLayout()
	oidFor := striping.DefaultOidFormatter(1)
	ctx := context.Background()

	if err := c.Write(ctx, 1, layout, objectclient.SnapContext{}, oidFor, 0, []byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Truncate(ctx, 1, layout, objectclient.SnapContext{}, oidFor, 2, 1000); err != nil {
		t.Fatalf("Truncate (grow): %v", err)
	}

	got, err := c.Read(ctx, 1, layout, objectclient.SnapID(0), oidFor, 2, 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, make([]byte, 10)) {
		t.Fatalf("got %v, want all zero", got)
	}
}

// TestPurgeRangeRemovesObjects exercises the synchronous PurgeRange
// wrapper end to end against the batcher.
func TestPurgeRangeRemovesObjects(t *testing.T) {
	oc := newFakeObjectClient()
	c := NewClient(oc, nil)
	layout := testLayout()
	oidFor := striping.DefaultOidFormatter(1)
	ctx := context.Background()

	for i := uint64(0); i < 5; i++ {
		if err := oc.Write(ctx, oidFor(i), striping.OLoc{}, objectclient.SnapContext{}, 0, []byte("x")); err != nil {
			t.Fatalf("seed write: %v", err)
		}
	}

	if err := c.PurgeRange(ctx, 1, layout, objectclient.SnapContext{}, oidFor, 0, 5); err != nil {
		t.Fatalf("PurgeRange: %v", err)
	}

	for i := uint64(0); i < 5; i++ {
		if _, _, err := oc.Stat(ctx, oidFor(i), striping.OLoc{}, 0, 0); !cerrors.Is(err, cerrors.ErrNotFound) {
			t.Fatalf("object %d still present after purge", i)
		}
	}
}

// TestZeroFillSkipsKnownEmptyObjects checks that once Read has
// observed an object as absent, ZeroFill against the same range does
// not fail even though the object was never created.
func TestZeroFillSkipsKnownEmptyObjects(t *testing.T) {
	oc := newFakeObjectClient()
	c := NewClient(oc, nil)
	layout := testLayout()
	oidFor := striping.DefaultOidFormatter(1)
	ctx := context.Background()

	if _, err := c.Read(ctx, 1, layout, objectclient.SnapID(0), oidFor, 0, 128); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if err := c.ZeroFill(ctx, 1, layout, objectclient.SnapContext{}, oidFor, 0, 128); err != nil {
		t.Fatalf("ZeroFill: %v", err)
	}
}
