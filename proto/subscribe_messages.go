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

import "github.com/google/uuid"

// SubItem is one entry of the MON_SUBSCRIBE map<string,(u64 start, u8 flags)>.
type SubItem struct {
	Start uint64
	Flags uint8
}

const SubOnetimeFlag uint8 = 0x1

// Subscribe is the MON_SUBSCRIBE message body.
type Subscribe struct {
	Topics map[string]SubItem
}

func (s *Subscribe) Encode() []byte {
	e := NewEncoder()
	e.PutU32(uint32(len(s.Topics)))
	for topic, item := range s.Topics {
		e.PutString(topic)
		e.PutU64(item.Start)
		e.PutU8(item.Flags)
	}
	return e.Bytes()
}

func DecodeSubscribe(body []byte) (*Subscribe, error) {
	d := NewDecoder(body)
	n, err := d.GetU32()
	if err != nil {
		return nil, err
	}
	topics := make(map[string]SubItem, n)
	for i := uint32(0); i < n; i++ {
		topic, err := d.GetString()
		if err != nil {
			return nil, err
		}
		start, err := d.GetU64()
		if err != nil {
			return nil, err
		}
		flags, err := d.GetU8()
		if err != nil {
			return nil, err
		}
		topics[topic] = SubItem{Start: start, Flags: flags}
	}
	return &Subscribe{Topics: topics}, nil
}

// SubscribeAck is the MON_SUBSCRIBE_ACK message body: u32 interval_seconds,
// uuid fsid.
type SubscribeAck struct {
	IntervalSeconds uint32
	Fsid            uuid.UUID
}

func (a *SubscribeAck) Encode() []byte {
	e := NewEncoder()
	e.PutU32(a.IntervalSeconds)
	e.PutBytes(a.Fsid[:])
	return e.Bytes()
}

func DecodeSubscribeAck(body []byte) (*SubscribeAck, error) {
	d := NewDecoder(body)
	a := &SubscribeAck{}
	var err error
	if a.IntervalSeconds, err = d.GetU32(); err != nil {
		return nil, err
	}
	raw, err := d.GetBytes()
	if err != nil {
		return nil, err
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return nil, err
	}
	a.Fsid = id
	return a, nil
}

// GetVersion is the MON_GET_VERSION message body: string what, u64 handle.
type GetVersion struct {
	What   string
	Handle uint64
}

func (g *GetVersion) Encode() []byte {
	e := NewEncoder()
	e.PutString(g.What)
	e.PutU64(g.Handle)
	return e.Bytes()
}

func DecodeGetVersion(body []byte) (*GetVersion, error) {
	d := NewDecoder(body)
	g := &GetVersion{}
	var err error
	if g.What, err = d.GetString(); err != nil {
		return nil, err
	}
	if g.Handle, err = d.GetU64(); err != nil {
		return nil, err
	}
	return g, nil
}

// GetVersionReply is the MON_GET_VERSION_REPLY body: u64 handle,
// u64 version, u64 oldest_version.
type GetVersionReply struct {
	Handle        uint64
	Version       uint64
	OldestVersion uint64
}

func (g *GetVersionReply) Encode() []byte {
	e := NewEncoder()
	e.PutU64(g.Handle)
	e.PutU64(g.Version)
	e.PutU64(g.OldestVersion)
	return e.Bytes()
}

func DecodeGetVersionReply(body []byte) (*GetVersionReply, error) {
	d := NewDecoder(body)
	g := &GetVersionReply{}
	var err error
	if g.Handle, err = d.GetU64(); err != nil {
		return nil, err
	}
	if g.Version, err = d.GetU64(); err != nil {
		return nil, err
	}
	if g.OldestVersion, err = d.GetU64(); err != nil {
		return nil, err
	}
	return g, nil
}
