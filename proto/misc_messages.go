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

// Keepalive carries the sender's clock, in Unix nanoseconds, so the
// monitor's ack can echo it back for round-trip timing.
type Keepalive struct {
	SentUnixNano uint64
}

func (k *Keepalive) Encode() []byte {
	e := NewEncoder()
	e.PutU64(k.SentUnixNano)
	return e.Bytes()
}

func DecodeKeepalive(body []byte) (*Keepalive, error) {
	d := NewDecoder(body)
	sent, err := d.GetU64()
	if err != nil {
		return nil, err
	}
	return &Keepalive{SentUnixNano: sent}, nil
}

// KeepaliveAck echoes the client's timestamp so the client can compute
// round-trip time.
type KeepaliveAck struct {
	EchoedSentUnixNano uint64
}

func (k *KeepaliveAck) Encode() []byte {
	e := NewEncoder()
	e.PutU64(k.EchoedSentUnixNano)
	return e.Bytes()
}

func DecodeKeepaliveAck(body []byte) (*KeepaliveAck, error) {
	d := NewDecoder(body)
	echoed, err := d.GetU64()
	if err != nil {
		return nil, err
	}
	return &KeepaliveAck{EchoedSentUnixNano: echoed}, nil
}

// LogBatch is a fire-and-forget batch of client log lines, sent to the
// monitor opportunistically during ticks.
type LogBatch struct {
	Lines []string
}

func (l *LogBatch) Encode() []byte {
	e := NewEncoder()
	e.PutU32(uint32(len(l.Lines)))
	for _, line := range l.Lines {
		e.PutString(line)
	}
	return e.Bytes()
}

func DecodeLogBatch(body []byte) (*LogBatch, error) {
	d := NewDecoder(body)
	n, err := d.GetU32()
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := d.GetString()
		if err != nil {
			return nil, err
		}
		lines = append(lines, s)
	}
	return &LogBatch{Lines: lines}, nil
}
