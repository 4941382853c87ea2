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

// AuthRequest is the AUTH message body, bit-exact on the wire:
// u8 struct_v=1, set<u32> supported_protocols, EntityName, u64 global_id,
// protocol_payload.
type AuthRequest struct {
	StructV             uint8
	SupportedProtocols  []uint32
	Principal           EntityName
	GlobalID            uint64
	ProtocolPayload     []byte
}

func NewAuthRequest(supported []uint32, principal EntityName, globalID uint64, payload []byte) *AuthRequest {
	return &AuthRequest{
		StructV:            1,
		SupportedProtocols: supported,
		Principal:          principal,
		GlobalID:           globalID,
		ProtocolPayload:    payload,
	}
}

func (r *AuthRequest) Encode() []byte {
	e := NewEncoder()
	e.PutU8(r.StructV)
	e.PutU32Set(r.SupportedProtocols)
	r.Principal.encode(e)
	e.PutU64(r.GlobalID)
	e.PutBytes(r.ProtocolPayload)
	return e.Bytes()
}

func DecodeAuthRequest(body []byte) (*AuthRequest, error) {
	d := NewDecoder(body)
	r := &AuthRequest{}
	var err error
	if r.StructV, err = d.GetU8(); err != nil {
		return nil, err
	}
	if r.SupportedProtocols, err = d.GetU32Set(); err != nil {
		return nil, err
	}
	if r.Principal, err = decodeEntityName(d); err != nil {
		return nil, err
	}
	if r.GlobalID, err = d.GetU64(); err != nil {
		return nil, err
	}
	if r.ProtocolPayload, err = d.GetBytes(); err != nil {
		return nil, err
	}
	return r, nil
}

// AuthReply is the AUTH_REPLY message body: u32 protocol, i32 result,
// u64 global_id, bytes payload.
type AuthReply struct {
	Protocol uint32
	Result   int32
	GlobalID uint64
	Payload  []byte
}

func (r *AuthReply) Encode() []byte {
	e := NewEncoder()
	e.PutU32(r.Protocol)
	e.PutI32(r.Result)
	e.PutU64(r.GlobalID)
	e.PutBytes(r.Payload)
	return e.Bytes()
}

func DecodeAuthReply(body []byte) (*AuthReply, error) {
	d := NewDecoder(body)
	r := &AuthReply{}
	var err error
	if r.Protocol, err = d.GetU32(); err != nil {
		return nil, err
	}
	if r.Result, err = d.GetI32(); err != nil {
		return nil, err
	}
	if r.GlobalID, err = d.GetU64(); err != nil {
		return nil, err
	}
	if r.Payload, err = d.GetBytes(); err != nil {
		return nil, err
	}
	return r, nil
}
