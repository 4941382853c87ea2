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

package proto

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MonInfo is one monitor roster entry. Rank is the entry's position in
// Mons, not a stored field, so MonMap stays a plain immutable value: two
// maps (or fields) that could drift out of sync with the slice ordering
// are exactly the bug component 4.A's "ranks are the position in the
// defined ordering" invariant forbids.
type MonInfo struct {
	Name string
	Addr string
}

// MonMap is the immutable cluster-membership snapshot. A MonMap is never
// mutated in place; mon.Client replaces its pointer atomically when a
// newer one arrives.
type MonMap struct {
	Epoch uint64
	Fsid  uuid.UUID
	Mons  []MonInfo
}

// Size returns the number of monitors in the map.
func (m *MonMap) Size() int { return len(m.Mons) }

// NameByRank returns the monitor name at rank i, or "" if out of range.
func (m *MonMap) NameByRank(i int) string {
	if i < 0 || i >= len(m.Mons) {
		return ""
	}
	return m.Mons[i].Name
}

// RankByName returns the rank of the monitor named n, and whether it exists.
func (m *MonMap) RankByName(n string) (int, bool) {
	for i, mon := range m.Mons {
		if mon.Name == n {
			return i, true
		}
	}
	return 0, false
}

// InstByName returns the address of the monitor named n, and whether it exists.
func (m *MonMap) InstByName(n string) (string, bool) {
	for _, mon := range m.Mons {
		if mon.Name == n {
			return mon.Addr, true
		}
	}
	return "", false
}

// AddrToName returns the monitor name bound to address a, and whether it exists.
func (m *MonMap) AddrToName(a string) (string, bool) {
	for _, mon := range m.Mons {
		if mon.Addr == a {
			return mon.Name, true
		}
	}
	return "", false
}

func (m *MonMap) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "epoch %d fsid %s\n", m.Epoch, m.Fsid)
	for i, mon := range m.Mons {
		fmt.Fprintf(&b, "%d: %s %s\n", i, mon.Addr, mon.Name)
	}
	return b.String()
}

// Encode serializes the map as a u32 version-prefixed aggregate.
func (m *MonMap) Encode() []byte {
	e := NewEncoder()
	e.PutU32(1) // struct version
	e.PutU64(m.Epoch)
	e.PutBytes(m.Fsid[:])
	e.PutU32(uint32(len(m.Mons)))
	for _, mon := range m.Mons {
		e.PutString(mon.Name)
		e.PutString(mon.Addr)
	}
	return e.Bytes()
}

// DecodeMonMap decodes the MON_MAP body into a fresh, immutable MonMap.
func DecodeMonMap(body []byte) (*MonMap, error) {
	d := NewDecoder(body)
	if _, err := d.GetU32(); err != nil { // struct version, ignored for now
		return nil, err
	}
	m := &MonMap{}
	var err error
	if m.Epoch, err = d.GetU64(); err != nil {
		return nil, err
	}
	raw, err := d.GetBytes()
	if err != nil {
		return nil, err
	}
	if m.Fsid, err = uuid.FromBytes(raw); err != nil {
		return nil, err
	}
	n, err := d.GetU32()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, n)
	m.Mons = make([]MonInfo, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := d.GetString()
		if err != nil {
			return nil, err
		}
		addr, err := d.GetString()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("monmap decode: duplicate monitor name %q", name)
		}
		seen[name] = struct{}{}
		m.Mons = append(m.Mons, MonInfo{Name: name, Addr: addr})
	}
	return m, nil
}
