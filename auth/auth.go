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

// Package auth implements the Auth Negotiator: picking a mutually
// supported protocol, running its challenge/response exchange, and
// tracking rotating session secrets so the caller can refresh them
// before they expire. The protocol split generalizes a one-shot ticket
// fetch into the long-lived, tick-driven exchange a monitor session
// runs over a persistent connection.
package auth

import (
	"time"

	cerrors "github.com/chenggangschool/cephcore/util/errors"
	"github.com/chenggangschool/cephcore/proto"
)

// Protocol identifies an auth method, one entry of a
// supported_protocols set<u32>.
type Protocol uint32

const (
	ProtoNone         Protocol = 0
	ProtoSharedSecret Protocol = 2
)

// KeySet is the bitmask of service key families a Handler should fetch
// once authenticated.
type KeySet uint32

const (
	WantMonKeys KeySet = 1 << iota
	WantOSDKeys
	WantMDSKeys
)

// Secret is one rotating session key, keyed by the id the service
// assigned it and the time after which it is no longer valid.
type Secret struct {
	ID         uint64
	Key        []byte
	Expiration time.Time
}

// Handler drives one protocol's side of the negotiation. BuildRequest/
// HandleResponse implement the initial AUTH/AUTH_REPLY handshake;
// BuildRotatingRequest implements the recurring secret renewal that
// runs once the handler already holds a session.
type Handler interface {
	Protocol() Protocol
	NeedTickets() bool
	SetWantKeys(keys KeySet)
	SetGlobalID(id uint64)
	Reset()

	BuildRequest() ([]byte, error)
	HandleResponse(payload []byte) error

	BuildRotatingRequest() ([]byte, error)
	HandleRotatingResponse(payload []byte) error
	NeedNewSecrets(cutoff time.Time) bool
}

// Factory constructs a fresh Handler for principal, keyed by secret
// (the pre-shared key material for protocols that need one; ignored by
// ProtoNone).
type Factory func(principal proto.EntityName, secret []byte) Handler

var registry = map[Protocol]Factory{
	ProtoNone:         func(principal proto.EntityName, secret []byte) Handler { return newNoneHandler() },
	ProtoSharedSecret: func(principal proto.EntityName, secret []byte) Handler { return newSharedSecretHandler(principal, secret) },
}

// Register adds or replaces a protocol's factory, so callers can supply
// a stronger scheme without forking this package.
func Register(p Protocol, f Factory) {
	registry[p] = f
}

// Negotiate picks the highest-numbered protocol that appears in both
// supported (a list of wire protocol numbers) and the locally registered
// set, matching Ceph's own "prefer the strongest protocol" client policy.
func Negotiate(supported []uint32) (Protocol, error) {
	var best Protocol
	found := false
	for _, s := range supported {
		p := Protocol(s)
		if _, ok := registry[p]; !ok {
			continue
		}
		if !found || p > best {
			best = p
			found = true
		}
	}
	if !found {
		return 0, cerrors.New(cerrors.ErrAuthFatal, "auth: no mutually supported protocol")
	}
	return best, nil
}

// New builds a Handler for protocol p.
func New(p Protocol, principal proto.EntityName, secret []byte) (Handler, error) {
	f, ok := registry[p]
	if !ok {
		return nil, cerrors.New(cerrors.ErrAuthFatal, "auth: unregistered protocol")
	}
	return f(principal, secret), nil
}

// SupportedProtocols lists every protocol this process can negotiate,
// for inclusion in an outgoing AUTH request's supported_protocols set.
func SupportedProtocols() []uint32 {
	out := make([]uint32, 0, len(registry))
	for p := range registry {
		out = append(out, uint32(p))
	}
	return out
}
