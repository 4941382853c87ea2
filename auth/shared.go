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

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"sync"
	"time"

	cerrors "github.com/chenggangschool/cephcore/util/errors"
	"github.com/chenggangschool/cephcore/proto"
)

// sharedSecretHandler implements ProtoSharedSecret: a pre-shared key
// signs a server-issued nonce, and a successful handshake yields a set
// of rotating secrets that must be refreshed before they expire, turning
// a one-shot ticket fetch into a renewable session.
type sharedSecretHandler struct {
	principal proto.EntityName
	secret    []byte

	mu         sync.Mutex
	wantKeys   KeySet
	globalID   uint64
	haveTicket bool
	secrets    []Secret
}

func newSharedSecretHandler(principal proto.EntityName, secret []byte) *sharedSecretHandler {
	return &sharedSecretHandler{principal: principal, secret: secret}
}

func (h *sharedSecretHandler) Protocol() Protocol { return ProtoSharedSecret }

// NeedTickets reports whether a service ticket still needs fetching ,
// true until the initial AUTH/AUTH_REPLY handshake succeeds, and again
// if Reset clears the session (e.g. after a reopen).
func (h *sharedSecretHandler) NeedTickets() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.haveTicket
}

func (h *sharedSecretHandler) SetWantKeys(keys KeySet) {
	h.mu.Lock()
	h.wantKeys = keys
	h.mu.Unlock()
}

func (h *sharedSecretHandler) SetGlobalID(id uint64) {
	h.mu.Lock()
	h.globalID = id
	h.mu.Unlock()
}

func (h *sharedSecretHandler) Reset() {
	h.mu.Lock()
	h.haveTicket = false
	h.secrets = nil
	h.mu.Unlock()
}

// BuildRequest signs the principal's name with the shared secret. The
// server challenges by signing the same payload back; a match proves
// both sides hold the secret without ever sending it on the wire.
func (h *sharedSecretHandler) BuildRequest() ([]byte, error) {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(h.principal.String()))
	return mac.Sum(nil), nil
}

// HandleResponse verifies the server's signature over the same payload
// and, on success, seeds the first rotating secret from the signature
// itself, a stand-in for the real key-derivation step a production
// protocol would run here.
func (h *sharedSecretHandler) HandleResponse(payload []byte) error {
	want, _ := h.BuildRequest()
	if !hmac.Equal(payload, want) {
		return cerrors.New(cerrors.ErrAuthFatal, "auth: challenge response mismatch")
	}
	h.mu.Lock()
	h.haveTicket = true
	h.secrets = []Secret{{
		ID:         1,
		Key:        payload,
		Expiration: time.Now().Add(defaultSecretTTL),
	}}
	h.mu.Unlock()
	return nil
}

const defaultSecretTTL = 12 * time.Hour

// BuildRotatingRequest asks for a fresh secret ahead of the current
// one's expiry; its payload is the id the new secret will carry: one
// past the newest secret held, or 1 when none is held yet.
func (h *sharedSecretHandler) BuildRotatingRequest() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var nextID uint64
	if n := len(h.secrets); n > 0 {
		nextID = h.secrets[n-1].ID + 1
	} else {
		nextID = 1
	}
	enc := proto.NewEncoder()
	enc.PutU64(nextID)
	return enc.Bytes(), nil
}

// HandleRotatingResponse derives the renewed secret's key from the
// shared secret and the new id, the same stand-in derivation
// HandleResponse uses for the initial ticket, so each rotation yields a
// distinct key rather than reusing the raw wire payload.
func (h *sharedSecretHandler) HandleRotatingResponse(payload []byte) error {
	dec := proto.NewDecoder(payload)
	id, err := dec.GetU64()
	if err != nil {
		return cerrors.Wrap(cerrors.ErrDecode, err, "auth: rotating response")
	}
	idBytes := proto.NewEncoder()
	idBytes.PutU64(id)
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(h.principal.String()))
	mac.Write(idBytes.Bytes())
	key := mac.Sum(nil)

	h.mu.Lock()
	h.secrets = append(h.secrets, Secret{ID: id, Key: key, Expiration: time.Now().Add(defaultSecretTTL)})
	h.mu.Unlock()
	return nil
}

// NeedNewSecrets reports whether the earliest-expiring rotating secret
// expires before cutoff, the check checkAuthRotating runs on every
// monitor client tick. Secrets are appended in increasing expiration
// order, so the earliest is always secrets[0]; checking the newest
// instead would under-report the need once only the oldest key is
// close to lapsing.
func (h *sharedSecretHandler) NeedNewSecrets(cutoff time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.secrets) == 0 {
		return true
	}
	return h.secrets[0].Expiration.Before(cutoff)
}
