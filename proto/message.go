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

// MsgType enumerates the wire message types, each a fixed uint8 opcode.
type MsgType uint8

const (
	MsgMonGetMap           MsgType = 0x01
	MsgMonMap              MsgType = 0x02
	MsgAuth                MsgType = 0x03
	MsgAuthReply           MsgType = 0x04
	MsgMonSubscribe        MsgType = 0x05
	MsgMonSubscribeAck     MsgType = 0x06
	MsgMonGetVersion       MsgType = 0x07
	MsgMonGetVersionReply  MsgType = 0x08
	MsgMonKeepalive        MsgType = 0x09
	MsgMonKeepaliveAck     MsgType = 0x0A
	MsgLog                 MsgType = 0x0B
	MsgAuthRotatingRequest MsgType = 0x0C
	MsgAuthRotatingReply   MsgType = 0x0D
)

func (t MsgType) String() string {
	switch t {
	case MsgMonGetMap:
		return "MON_GET_MAP"
	case MsgMonMap:
		return "MON_MAP"
	case MsgAuth:
		return "AUTH"
	case MsgAuthReply:
		return "AUTH_REPLY"
	case MsgMonSubscribe:
		return "MON_SUBSCRIBE"
	case MsgMonSubscribeAck:
		return "MON_SUBSCRIBE_ACK"
	case MsgMonGetVersion:
		return "MON_GET_VERSION"
	case MsgMonGetVersionReply:
		return "MON_GET_VERSION_REPLY"
	case MsgMonKeepalive:
		return "MON_KEEPALIVE"
	case MsgMonKeepaliveAck:
		return "MON_KEEPALIVE_ACK"
	case MsgLog:
		return "LOG"
	case MsgAuthRotatingRequest:
		return "AUTH_ROTATING_REQUEST"
	case MsgAuthRotatingReply:
		return "AUTH_ROTATING_REPLY"
	default:
		return "UNKNOWN"
	}
}

// Message is the unit the messenger collaborator (out of scope here)
// ships between client and monitor: an opcode plus a
// pre-encoded body. mon builds these with the Encode* helpers below and
// hands them to messenger.Connection.Send; ms_dispatch callbacks hand
// Messages back for Decode*.
type Message struct {
	Type MsgType
	Body []byte
}

// EntityName identifies the authenticating principal, e.g. "client.admin".
type EntityName struct {
	EntityType string
	ID         string
}

func (n EntityName) String() string {
	return n.EntityType + "." + n.ID
}

func (n EntityName) encode(e *Encoder) {
	e.PutString(n.EntityType)
	e.PutString(n.ID)
}

func decodeEntityName(d *Decoder) (EntityName, error) {
	t, err := d.GetString()
	if err != nil {
		return EntityName{}, err
	}
	id, err := d.GetString()
	if err != nil {
		return EntityName{}, err
	}
	return EntityName{EntityType: t, ID: id}, nil
}
