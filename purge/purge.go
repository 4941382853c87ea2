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

// Package purge implements a bounded-concurrency batcher for per-object range operations:
// issuing a remove (or other per-object op) against a contiguous run of
// objectnos with bounded fan-out, and running exactly one completion
// callback once every op in the range has landed.
package purge

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	cerrors "github.com/chenggangschool/cephcore/util/errors"
	"github.com/chenggangschool/cephcore/util/log"
	"github.com/chenggangschool/cephcore/objectclient"
	"github.com/chenggangschool/cephcore/striping"
)

// MaxParallel bounds the number of outstanding per-object ops for any one
// range.
const MaxParallel = 10

// Remover is the slice of objectclient.ObjectClient the batcher needs.
type Remover interface {
	Remove(ctx context.Context, oid string, oloc striping.OLoc, snapCtx objectclient.SnapContext) error
}

// Batcher issues bounded-parallel ranges of Remove calls.
type Batcher struct {
	remover Remover
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewBatcher builds a Batcher over remover. limiter may be nil, which is
// equivalent to rate.NewLimiter(rate.Inf, 0): an always-on but normally
// unbounded throughput gate that callers can tighten later without
// touching the call sites.
func NewBatcher(remover Remover, limiter *rate.Limiter) *Batcher {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return &Batcher{
		remover: remover,
		sem:     semaphore.NewWeighted(MaxParallel),
		limiter: limiter,
	}
}

// Range is one purge request: remove numObjects objects starting at
// firstObj.
type Range struct {
	Ino       uint64
	Layout    striping.Layout
	OidFor    striping.OidFormatter
	SnapCtx   objectclient.SnapContext
	FirstObj  uint64
	NumObjects uint64
}

// Purge removes r.NumObjects objects starting at r.FirstObj and invokes
// onCommit exactly once, with the first error encountered (if any) once
// every op in the range has completed. Purge blocks until the range has
// been fully dispatched but does not wait for completion; onCommit runs
// from whichever goroutine happens to observe the last completion.
func (b *Batcher) Purge(ctx context.Context, r Range, onCommit func(error)) {
	if r.NumObjects == 0 {
		onCommit(nil)
		return
	}
	if r.NumObjects == 1 {
		// Fast path: no fan-out bookkeeping needed for a single object.
		oid := r.OidFor(r.FirstObj)
		err := b.removeOne(ctx, oid, r.SnapCtx)
		onCommit(err)
		return
	}

	var (
		mu       sync.Mutex
		firstErr error
		inflight = int(r.NumObjects)
	)

	finish := func(err error) {
		mu.Lock()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		inflight--
		done := inflight == 0
		var result error
		if done {
			result = firstErr
		}
		mu.Unlock()
		if done {
			onCommit(result)
		}
	}

	for i := uint64(0); i < r.NumObjects; i++ {
		objectno := r.FirstObj + i
		if err := b.sem.Acquire(ctx, 1); err != nil {
			finish(cerrors.Wrap(cerrors.ErrTransient, err, "purge: semaphore acquire"))
			continue
		}
		oid := r.OidFor(objectno)
		go func(oid string) {
			defer b.sem.Release(1)
			err := b.removeOne(ctx, oid, r.SnapCtx)
			finish(err)
		}(oid)
	}
}

func (b *Batcher) removeOne(ctx context.Context, oid string, snapCtx objectclient.SnapContext) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return cerrors.Wrap(cerrors.ErrTransient, err, "purge: rate limiter")
	}
	err := b.remover.Remove(ctx, oid, striping.OLoc{}, snapCtx)
	if err != nil && !cerrors.Is(err, cerrors.ErrNotFound) {
		log.LogWarnf("purge: remove %s failed: %v", oid, err)
		return err
	}
	return nil
}
