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

// Package objectclient declares the object-service collaborator, out of
// scope here: the layer that actually performs
// stat/read/write/remove/zero/truncate against a single object. probe
// and purge each depend on the narrowest slice of this interface they
// use (probe.Stater, purge.Remover), per Go convention; soc takes the
// full interface below.
package objectclient

import (
	"context"
	"time"

	"github.com/chenggangschool/cephcore/striping"
)

// SnapID selects a read-consistency snapshot. Zero is "no snapshot" (head).
type SnapID uint64

// SnapContext is the write-time snapshot vector: the snapshot being
// written under, plus the set of snapshot ids already pinned for this
// object, threaded the same way a write path allocates then writes
// under one generation at a time.
type SnapContext struct {
	Seq    uint64
	Snaps  []SnapID
}

// StatFlags modifies Stat's read-consistency requirements. RWOrdered
// requests the stat observe all writes already acknowledged to the
// caller (stat(oid, snap, flags|RWORDERED)).
type StatFlags uint32

const StatRWOrdered StatFlags = 0x1

// ObjectClient is the full external object-service collaborator
// interface.
type ObjectClient interface {
	Stat(ctx context.Context, oid string, oloc striping.OLoc, snap SnapID, flags StatFlags) (size uint64, mtime time.Time, err error)
	Read(ctx context.Context, oid string, oloc striping.OLoc, snap SnapID, off, length uint64) ([]byte, error)
	Write(ctx context.Context, oid string, oloc striping.OLoc, snapCtx SnapContext, off uint64, data []byte) error
	WriteTrunc(ctx context.Context, oid string, oloc striping.OLoc, snapCtx SnapContext, off uint64, data []byte, truncSize uint64) error
	Zero(ctx context.Context, oid string, oloc striping.OLoc, snapCtx SnapContext, off, length uint64) error
	Remove(ctx context.Context, oid string, oloc striping.OLoc, snapCtx SnapContext) error
	TruncateOp(ctx context.Context, oid string, oloc striping.OLoc, snapCtx SnapContext, size uint64) error
}
