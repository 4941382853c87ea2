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

// Package proto defines the bit-exact wire bodies that travel between
// the client and the monitor cluster, and a small little-endian codec
// for them (fixed-width opcodes, encoding/binary writes)
// rather than reaching for a general serialization library: the wire
// format here is specified field-by-field, not something a schema-driven
// codec would buy us anything for.
package proto

import (
	"bytes"
	"encoding/binary"
	"fmt"

	cerrors "github.com/chenggangschool/cephcore/util/errors"
)

// Encoder appends little-endian primitives to an internal buffer.
type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf.Bytes() }

func (e *Encoder) PutU8(v uint8)   { e.buf.WriteByte(v) }
func (e *Encoder) PutU32(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); e.buf.Write(b[:]) }
func (e *Encoder) PutU64(v uint64) { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); e.buf.Write(b[:]) }
func (e *Encoder) PutI32(v int32)  { e.PutU32(uint32(v)) }

func (e *Encoder) PutBytes(b []byte) {
	e.PutU32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *Encoder) PutString(s string) {
	e.PutBytes([]byte(s))
}

// PutU32Set encodes set<u32> as a u32 count followed by the elements in
// the order given.
func (e *Encoder) PutU32Set(vals []uint32) {
	e.PutU32(uint32(len(vals)))
	for _, v := range vals {
		e.PutU32(v)
	}
}

// Decoder consumes little-endian primitives from a fixed buffer,
// returning a decode-kind error on underrun rather than panicking: a
// malformed reply should fail that one call, never crash the process.
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(b []byte) *Decoder { return &Decoder{buf: b} }

func (d *Decoder) remaining() int { return len(d.buf) - d.off }

func (d *Decoder) need(n int) error {
	if d.remaining() < n {
		return cerrors.New(cerrors.ErrDecode, fmt.Sprintf("need %d bytes, have %d", n, d.remaining()))
	}
	return nil
}

func (d *Decoder) GetU8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[d.off]
	d.off++
	return v, nil
}

func (d *Decoder) GetU32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *Decoder) GetI32() (int32, error) {
	v, err := d.GetU32()
	return int32(v), err
}

func (d *Decoder) GetU64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *Decoder) GetBytes() ([]byte, error) {
	n, err := d.GetU32()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	v := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	return v, nil
}

func (d *Decoder) GetString() (string, error) {
	b, err := d.GetBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) GetU32Set() ([]uint32, error) {
	n, err := d.GetU32()
	if err != nil {
		return nil, err
	}
	vals := make([]uint32, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := d.GetU32()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// Done reports whether the decoder consumed the entire buffer. Callers
// that expect an exact-length body check this to catch trailing garbage.
func (d *Decoder) Done() bool { return d.remaining() == 0 }
