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

// Package probe implements the Probe Engine: recovering a sparse file's
// logical length (and optionally its latest mtime) from the sizes of the
// objects that actually exist.
//
// Some implementations of this search drive it through per-stat
// completion callbacks and an explicit ops counter so the probe can
// outlive any one pending stat. Go doesn't need that trick: the probe's
// goroutine owns a WaitGroup-free fan-out over a channel and is garbage
// collected normally once it returns, so this keeps the callback-based
// public API (on_finish fires exactly once) but drops the
// manual lifetime management underneath it.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/dustin/go-humanize"
	"github.com/rs/xid"

	cerrors "github.com/chenggangschool/cephcore/util/errors"
	"github.com/chenggangschool/cephcore/util/log"
	"github.com/chenggangschool/cephcore/objectclient"
	"github.com/chenggangschool/cephcore/striping"
)

// Stater is the slice of objectclient.ObjectClient the probe engine needs.
type Stater interface {
	Stat(ctx context.Context, oid string, oloc striping.OLoc, snap objectclient.SnapID, flags objectclient.StatFlags) (size uint64, mtime time.Time, err error)
}

// Direction is the probe's search direction.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Result is delivered to a probe's completion callback exactly once.
type Result struct {
	End   uint64
	Mtime time.Time
	Err   error
}

// Engine runs probes against a Stater.
type Engine struct {
	stat Stater
}

func NewEngine(stat Stater) *Engine {
	return &Engine{stat: stat}
}

type statOutcome struct {
	index int
	size  uint64
	mtime time.Time
	err   error
}

// Start launches a probe and returns immediately; onFinish is invoked
// exactly once, from a separate goroutine, with the outcome. ino/layout/
// snap/oidFor are the object-locating parameters; startFrom/forward/
// wantMtime are the probe's search parameters.
func (e *Engine) Start(
	ctx context.Context,
	ino uint64,
	layout striping.Layout,
	snap objectclient.SnapID,
	startFrom uint64,
	forward bool,
	wantMtime bool,
	oidFor striping.OidFormatter,
	onFinish func(Result),
) {
	id := xid.New().String()
	go e.run(ctx, id, ino, layout, snap, startFrom, forward, wantMtime, oidFor, onFinish)
}

func (e *Engine) run(
	ctx context.Context,
	id string,
	ino uint64,
	layout striping.Layout,
	snap objectclient.SnapID,
	startFrom uint64,
	forward bool,
	wantMtime bool,
	oidFor striping.OidFormatter,
	onFinish func(Result),
) {
	if err := layout.Validate(); err != nil {
		onFinish(Result{Err: err})
		return
	}

	period := layout.Period()
	if period == 0 {
		onFinish(Result{Err: fmt.Errorf("probe %s: zero period", id)})
		return
	}

	var probingOff uint64
	if forward {
		probingOff = (startFrom / period) * period
	} else {
		if startFrom == 0 {
			onFinish(Result{End: 0})
			return
		}
		probingOff = ((startFrom - 1) / period) * period
	}

	known := make(map[string]uint64)
	var maxMtime time.Time
	var firstErr error
	var foundSize bool
	var endOff uint64

	for {
		extents, err := striping.FileToExtents(layout, probingOff, period, oidFor)
		if err != nil {
			onFinish(Result{Err: err})
			return
		}

		e.statWindow(ctx, extents, layout, snap, known, &maxMtime, &firstErr)

		if firstErr != nil {
			onFinish(Result{Err: firstErr})
			return
		}

		traversal := extents
		if !forward {
			traversal = reversedExtents(extents)
		}

		boundary, ok := analyzeWindow(traversal, probingOff, layout.ObjectSize, forward, probingOff > 0, known)
		if ok {
			foundSize = true
			endOff = boundary
		}

		done := foundSize && (forward || !wantMtime || probingOff == 0)
		log.LogDebugf("probe %s: window probingOff=%s done=%v foundSize=%v", id, humanize.Bytes(probingOff), done, foundSize)
		if done {
			onFinish(Result{End: endOff, Mtime: maxMtime})
			return
		}

		if forward {
			probingOff += period
		} else {
			if probingOff == 0 {
				// Exhausted the whole file without a definitive boundary;
				// treat as empty, matching the forward empty-file case.
				onFinish(Result{End: 0, Mtime: maxMtime})
				return
			}
			probingOff -= period
		}
	}
}

func (e *Engine) statWindow(
	ctx context.Context,
	extents []*striping.ObjectExtent,
	layout striping.Layout,
	snap objectclient.SnapID,
	known map[string]uint64,
	maxMtime *time.Time,
	firstErr *error,
) {
	n := len(extents)
	if n == 0 {
		return
	}
	outstanding := bitset.New(uint(n))
	for i := range extents {
		outstanding.Set(uint(i))
	}

	results := make(chan statOutcome, n)
	for i, ex := range extents {
		i, ex := i, ex
		go func() {
			size, mtime, err := e.stat.Stat(ctx, ex.OID, ex.OLoc, snap, objectclient.StatRWOrdered)
			results <- statOutcome{index: i, size: size, mtime: mtime, err: err}
		}()
	}

	for received := 0; received < n; received++ {
		res := <-results
		outstanding.Clear(uint(res.index))
		oid := extents[res.index].OID
		if res.err != nil {
			if cerrors.Is(res.err, cerrors.ErrNotFound) {
				known[oid] = 0
				continue
			}
			if *firstErr == nil {
				*firstErr = res.err
			}
			continue
		}
		known[oid] = res.size
		if res.mtime.After(*maxMtime) {
			*maxMtime = res.mtime
		}
	}
	// All in-flight stats have now drained (outstanding.None()). Errors
	// are latched but every stat is still awaited before analysis proceeds.
	_ = outstanding.None()
}

func reversedExtents(in []*striping.ObjectExtent) []*striping.ObjectExtent {
	out := make([]*striping.ObjectExtent, len(in))
	for i, ex := range in {
		out[len(in)-1-i] = ex
	}
	return out
}

// analyzeWindow walks one window's extents in traversal order and
// returns the logical end offset if a boundary was found in this window.
func analyzeWindow(
	extents []*striping.ObjectExtent,
	probingOff uint64,
	objectSize uint64,
	forward bool,
	windowNotFirst bool,
	known map[string]uint64,
) (uint64, bool) {
	for _, ex := range extents {
		size := known[ex.OID]

		if size == objectSize {
			// Fully written, regardless of direction: the boundary, if
			// any, lies elsewhere.
			continue
		}
		if !forward && size == 0 && windowNotFirst {
			// Absent and not yet at the base window: an unwritten
			// trailing object proves nothing about where real data
			// stops further down.
			continue
		}

		oleft := size
		if ex.Offset <= size {
			oleft = size - ex.Offset
		}
		remaining := oleft
		for _, be := range ex.BufferExtents {
			if remaining < be.BufLen {
				return probingOff + be.BufOff + remaining, true
			}
			remaining -= be.BufLen
		}
		// size == ex.Length exactly: the object's observed size matches
		// the full range asked for in this extent but not the whole
		// object (partial-object extent at a layout/probe boundary);
		// treat the end as just past the last buffer extent.
		if n := len(ex.BufferExtents); n > 0 {
			last := ex.BufferExtents[n-1]
			return probingOff + last.BufOff + last.BufLen, true
		}
		return probingOff, true
	}
	return 0, false
}
