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

// Package soc is the Striping & Object Client compound-operation layer:
// it composes striping (the extent algebra), probe (sparse-size
// recovery), purge (bounded-parallel removal) and assembler (result
// gathering) over the objectclient collaborator into the file-shaped
// operations callers actually want, striped read, striped write,
// truncate, zero-fill, and size/mtime probing, rather than making every
// caller hand-assemble those from the lower-level pieces. One client
// type wraps a lower transport, fanning a logical op out into
// concurrent per-extent calls and gathering the results back up.
package soc

import (
	"context"
	"sync"
	"time"

	"github.com/chenggangschool/cephcore/assembler"
	cerrors "github.com/chenggangschool/cephcore/util/errors"
	"github.com/chenggangschool/cephcore/util/log"
	"github.com/chenggangschool/cephcore/objectclient"
	"github.com/chenggangschool/cephcore/probe"
	"github.com/chenggangschool/cephcore/purge"
	"github.com/chenggangschool/cephcore/striping"
)

// Client is the SOC compound-operation layer over one ObjectClient.
type Client struct {
	oc      objectclient.ObjectClient
	probe   *probe.Engine
	batcher *purge.Batcher

	mu         sync.Mutex
	knownZero  map[string]bool // objects a prior Read found absent; cleared by Write
}

// NewClient builds a Client. batcher may be nil, in which case a default
// one (no throughput limiter) is built over oc.
func NewClient(oc objectclient.ObjectClient, batcher *purge.Batcher) *Client {
	if batcher == nil {
		batcher = purge.NewBatcher(oc, nil)
	}
	return &Client{
		oc:        oc,
		probe:     probe.NewEngine(oc),
		batcher:   batcher,
		knownZero: make(map[string]bool),
	}
}

// Read performs a striped read of [off, off+length) against ino under
// layout, returning a contiguous buffer of exactly length bytes
// (short/absent objects read as zero). Each
// object's read is independent and runs concurrently; the first
// non-ErrNotFound error aborts the read once all in-flight reads drain.
func (c *Client) Read(ctx context.Context, ino uint64, layout striping.Layout, snap objectclient.SnapID, oidFor striping.OidFormatter, off, length uint64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	extents, err := striping.FileToExtents(layout, off, length, oidFor)
	if err != nil {
		return nil, err
	}

	asm := assembler.NewAssembler()
	type outcome struct {
		ex   *striping.ObjectExtent
		data []byte
		err  error
	}
	results := make(chan outcome, len(extents))
	for _, ex := range extents {
		ex := ex
		go func() {
			data, err := c.oc.Read(ctx, ex.OID, ex.OLoc, snap, ex.Offset, ex.Length)
			results <- outcome{ex: ex, data: data, err: err}
		}()
	}

	var firstErr error
	for i := 0; i < len(extents); i++ {
		res := <-results
		bes := toAssemblerExtents(res.ex.BufferExtents)
		if res.err != nil {
			if !cerrors.Is(res.err, cerrors.ErrNotFound) {
				if firstErr == nil {
					firstErr = res.err
				}
				continue
			}
			if err := asm.AddPartialSparseResult(nil, nil, 0, bes); err != nil && firstErr == nil {
				firstErr = err
			}
			c.markKnownZero(res.ex.OID)
			continue
		}
		if err := asm.AddPartialResult(res.data, bes); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return asm.AssembleResult(true)
}

// Write performs a striped write of data at off against ino under
// layout. Every per-object write must succeed; the first error is
// returned once every in-flight write has completed, matching probe and
// purge's drain-before-report discipline.
func (c *Client) Write(ctx context.Context, ino uint64, layout striping.Layout, snapCtx objectclient.SnapContext, oidFor striping.OidFormatter, off uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	extents, err := striping.FileToExtents(layout, off, uint64(len(data)), oidFor)
	if err != nil {
		return err
	}

	results := make(chan error, len(extents))
	for _, ex := range extents {
		ex := ex
		go func() {
			buf := gatherBuffer(data, ex.BufferExtents)
			results <- c.oc.Write(ctx, ex.OID, ex.OLoc, snapCtx, ex.Offset, buf)
		}()
	}

	var firstErr error
	for i := 0; i < len(extents); i++ {
		if err := <-results; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		c.clearKnownZero(extents)
	}
	return firstErr
}

// ZeroFill punches a hole of [off, off+length) against ino under layout.
// An object that an earlier Read on this Client found absent, and that
// no Write has touched since, is skipped rather than round-tripping an
// op that would be a no-op on an already-absent object. Only Read
// records absent objects; GetSize and ZeroFill do not.
func (c *Client) ZeroFill(ctx context.Context, ino uint64, layout striping.Layout, snapCtx objectclient.SnapContext, oidFor striping.OidFormatter, off, length uint64) error {
	if length == 0 {
		return nil
	}
	extents, err := striping.FileToExtents(layout, off, length, oidFor)
	if err != nil {
		return err
	}

	results := make(chan error, len(extents))
	pending := 0
	for _, ex := range extents {
		if c.isKnownZero(ex.OID) {
			log.LogDebugf("soc: skipping zero on already-empty object %s", ex.OID)
			continue
		}
		ex := ex
		pending++
		go func() {
			results <- c.oc.Zero(ctx, ex.OID, ex.OLoc, snapCtx, ex.Offset, ex.Length)
		}()
	}

	var firstErr error
	for i := 0; i < pending; i++ {
		if err := <-results; err != nil && !cerrors.Is(err, cerrors.ErrNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Truncate changes ino's logical size from oldSize to newSize under
// layout. Growing and shrinking are split: growing
// never touches the object store (a sparse file already reads the new
// range as zero; nothing written means nothing to truncate), while
// shrinking removes every object now entirely beyond newSize through the
// purge batcher and issues a single TruncateOp on the boundary object
// straddling newSize, if any.
func (c *Client) Truncate(ctx context.Context, ino uint64, layout striping.Layout, snapCtx objectclient.SnapContext, oidFor striping.OidFormatter, oldSize, newSize uint64) error {
	if newSize >= oldSize {
		return nil
	}
	if newSize == 0 {
		return c.truncateToZero(ctx, ino, layout, snapCtx, oidFor, oldSize)
	}

	boundaryExtents, err := striping.FileToExtents(layout, newSize-1, 1, oidFor)
	if err != nil {
		return err
	}
	if len(boundaryExtents) != 1 {
		return cerrors.New(cerrors.ErrDecode, "soc: truncate boundary spans more than one object")
	}
	boundary := boundaryExtents[0]
	localSize := boundary.Offset + boundary.Length

	if err := c.oc.TruncateOp(ctx, boundary.OID, boundary.OLoc, snapCtx, localSize); err != nil && !cerrors.Is(err, cerrors.ErrNotFound) {
		return err
	}

	firstTrailing := boundary.ObjectNo + 1
	lastExtents, err := striping.FileToExtents(layout, oldSize-1, 1, oidFor)
	if err != nil {
		return err
	}
	if len(lastExtents) != 1 {
		return cerrors.New(cerrors.ErrDecode, "soc: truncate old-size boundary spans more than one object")
	}
	lastObjectNo := lastExtents[0].ObjectNo
	if lastObjectNo < firstTrailing {
		return nil
	}

	done := make(chan error, 1)
	c.batcher.Purge(ctx, purge.Range{
		Ino:        ino,
		Layout:     layout,
		OidFor:     oidFor,
		SnapCtx:    snapCtx,
		FirstObj:   firstTrailing,
		NumObjects: lastObjectNo - firstTrailing + 1,
	}, func(err error) { done <- err })
	return <-done
}

func (c *Client) truncateToZero(ctx context.Context, ino uint64, layout striping.Layout, snapCtx objectclient.SnapContext, oidFor striping.OidFormatter, oldSize uint64) error {
	lastExtents, err := striping.FileToExtents(layout, oldSize-1, 1, oidFor)
	if err != nil {
		return err
	}
	lastObjectNo := uint64(0)
	if len(lastExtents) == 1 {
		lastObjectNo = lastExtents[0].ObjectNo
	}
	done := make(chan error, 1)
	c.batcher.Purge(ctx, purge.Range{
		Ino:        ino,
		Layout:     layout,
		OidFor:     oidFor,
		SnapCtx:    snapCtx,
		FirstObj:   0,
		NumObjects: lastObjectNo + 1,
	}, func(err error) { done <- err })
	return <-done
}

// PurgeRange removes the num objects starting at firstObj, blocking the
// caller until every removal has landed; see purge.Batcher for the
// asynchronous form.
func (c *Client) PurgeRange(ctx context.Context, ino uint64, layout striping.Layout, snapCtx objectclient.SnapContext, oidFor striping.OidFormatter, firstObj, num uint64) error {
	done := make(chan error, 1)
	c.batcher.Purge(ctx, purge.Range{
		Ino:        ino,
		Layout:     layout,
		OidFor:     oidFor,
		SnapCtx:    snapCtx,
		FirstObj:   firstObj,
		NumObjects: num,
	}, func(err error) { done <- err })
	return <-done
}

// ProbeResult is the synchronous counterpart of probe.Result, returned by
// GetSize.
type ProbeResult struct {
	Size  uint64
	Mtime time.Time
}

// GetSize recovers ino's logical size (and, if wantMtime, its latest
// mtime) by probing the sparse set of objects that actually exist.
// forward/startFrom carry the same meaning as
// probe.Engine.Start. The objects this probe finds absent are not
// recorded, so GetSize does not let a later ZeroFill skip them.
func (c *Client) GetSize(ctx context.Context, ino uint64, layout striping.Layout, snap objectclient.SnapID, oidFor striping.OidFormatter, startFrom uint64, forward, wantMtime bool) (ProbeResult, error) {
	done := make(chan probe.Result, 1)
	c.probe.Start(ctx, ino, layout, snap, startFrom, forward, wantMtime, oidFor, func(r probe.Result) { done <- r })
	r := <-done
	if r.Err != nil {
		return ProbeResult{}, r.Err
	}
	return ProbeResult{Size: r.End, Mtime: r.Mtime}, nil
}

func (c *Client) markKnownZero(oid string) {
	c.mu.Lock()
	c.knownZero[oid] = true
	c.mu.Unlock()
}

func (c *Client) isKnownZero(oid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.knownZero[oid]
}

func (c *Client) clearKnownZero(extents []*striping.ObjectExtent) {
	c.mu.Lock()
	for _, ex := range extents {
		delete(c.knownZero, ex.OID)
	}
	c.mu.Unlock()
}

func toAssemblerExtents(bes []striping.BufferExtent) []assembler.BufferExtent {
	out := make([]assembler.BufferExtent, len(bes))
	for i, be := range bes {
		out[i] = assembler.BufferExtent{BufOff: be.BufOff, BufLen: be.BufLen}
	}
	return out
}

// gatherBuffer splices the per-extent regions of data (itself offset
// from the write's own starting offset) back into one dense object-write
// payload, the inverse of assembler.AddPartialResult's splice.
func gatherBuffer(data []byte, bes []striping.BufferExtent) []byte {
	total := uint64(0)
	for _, be := range bes {
		total += be.BufLen
	}
	out := make([]byte, 0, total)
	for _, be := range bes {
		out = append(out, data[be.BufOff:be.BufOff+be.BufLen]...)
	}
	return out
}
