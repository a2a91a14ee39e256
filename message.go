// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// Frame layout constants
const (
	// HeaderSize is the size of the fixed frame header in bytes
	HeaderSize = 16

	// fieldHeaderSize is the size of the per-field header in bytes
	fieldHeaderSize = 8

	// frameAlignment is the padding boundary for frames and fields
	frameAlignment = 8
)

// FieldType is the wire type tag of a message field
type FieldType uint8

// Field types
const (
	FieldInt32  FieldType = 0
	FieldString FieldType = 1
	FieldInt64  FieldType = 2
	FieldInt16  FieldType = 3
	FieldBinary FieldType = 4
	FieldFloat  FieldType = 5
)

// String returns the name of the field type
func (t FieldType) String() string {
	switch t {
	case FieldInt32:
		return "int32"
	case FieldString:
		return "string"
	case FieldInt64:
		return "int64"
	case FieldInt16:
		return "int16"
	case FieldBinary:
		return "binary"
	case FieldFloat:
		return "float"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Field is a single typed value carried in a message
type Field struct {
	ID   FieldID
	Type FieldType

	integer uint64
	float   float64
	str     string
	data    []byte
}

// Message is the wire-level unit exchanged with the server.
//
// A message either carries a set of typed fields keyed by FieldID or, when
// FlagBinary is set, an opaque raw payload (bulk data, file chunks).
//
// Example:
//
//	msg := nxcp.NewMessage(nxcp.CmdGetObjects)
//	msg.SetInt16(nxcp.VidSyncComments, 1)
type Message struct {
	Code  Code
	ID    uint32
	Flags uint16

	fields map[FieldID]Field
	data   []byte
}

// NewMessage creates an empty field-set message with the given code
func NewMessage(code Code) *Message {
	return &Message{Code: code, fields: make(map[FieldID]Field)}
}

// NewDataMessage creates a raw payload message
func NewDataMessage(code Code, id uint32, data []byte) *Message {
	return &Message{Code: code, ID: id, Flags: FlagBinary, data: data}
}

// IsBinary reports whether the message carries a raw payload
func (m *Message) IsBinary() bool {
	return m.Flags&FlagBinary != 0
}

// IsEndOfFile reports whether the end-of-file flag is set
func (m *Message) IsEndOfFile() bool {
	return m.Flags&FlagEndOfFile != 0
}

// Data returns the raw payload of a binary message
func (m *Message) Data() []byte {
	return m.data
}

// NumFields returns the number of fields in the message
func (m *Message) NumFields() int {
	return len(m.fields)
}

// Has reports whether a field with the given id is present
func (m *Message) Has(id FieldID) bool {
	_, ok := m.fields[id]
	return ok
}

// Field returns the raw field with the given id
func (m *Message) Field(id FieldID) (Field, bool) {
	f, ok := m.fields[id]
	return f, ok
}

func (m *Message) set(f Field) {
	if m.fields == nil {
		m.fields = make(map[FieldID]Field)
	}
	m.fields[f.ID] = f
}

// SetInt16 sets a 16-bit integer field
func (m *Message) SetInt16(id FieldID, v uint16) {
	m.set(Field{ID: id, Type: FieldInt16, integer: uint64(v)})
}

// SetInt32 sets a 32-bit integer field
func (m *Message) SetInt32(id FieldID, v uint32) {
	m.set(Field{ID: id, Type: FieldInt32, integer: uint64(v)})
}

// SetInt64 sets a 64-bit integer field
func (m *Message) SetInt64(id FieldID, v uint64) {
	m.set(Field{ID: id, Type: FieldInt64, integer: v})
}

// SetFloat sets a floating point field
func (m *Message) SetFloat(id FieldID, v float64) {
	m.set(Field{ID: id, Type: FieldFloat, float: v})
}

// SetString sets a string field
func (m *Message) SetString(id FieldID, v string) {
	m.set(Field{ID: id, Type: FieldString, str: v})
}

// SetBinary sets a binary field
func (m *Message) SetBinary(id FieldID, v []byte) {
	m.set(Field{ID: id, Type: FieldBinary, data: v})
}

// SetBool sets a boolean as a 16-bit integer field
func (m *Message) SetBool(id FieldID, v bool) {
	if v {
		m.SetInt16(id, 1)
	} else {
		m.SetInt16(id, 0)
	}
}

// SetUint32Array stores a list of 32-bit integers as a binary field
func (m *Message) SetUint32Array(id FieldID, values []uint32) {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint32(buf[i*4:], v)
	}
	m.SetBinary(id, buf)
}

func (m *Message) integer(id FieldID) uint64 {
	f, ok := m.fields[id]
	if !ok {
		return 0
	}
	switch f.Type {
	case FieldInt16, FieldInt32, FieldInt64:
		return f.integer
	case FieldFloat:
		return uint64(f.float)
	default:
		return 0
	}
}

// Int16 returns a field as a 16-bit integer, or zero if absent
func (m *Message) Int16(id FieldID) uint16 {
	return uint16(m.integer(id))
}

// Uint32 returns a field as an unsigned 32-bit integer, or zero if absent
func (m *Message) Uint32(id FieldID) uint32 {
	return uint32(m.integer(id))
}

// Int32 returns a field as a signed 32-bit integer, or zero if absent
func (m *Message) Int32(id FieldID) int32 {
	return int32(uint32(m.integer(id)))
}

// Uint64 returns a field as an unsigned 64-bit integer, or zero if absent
func (m *Message) Uint64(id FieldID) uint64 {
	return m.integer(id)
}

// Bool returns a field as a boolean (non-zero is true)
func (m *Message) Bool(id FieldID) bool {
	return m.integer(id) != 0
}

// Float returns a floating point field, or zero if absent
func (m *Message) Float(id FieldID) float64 {
	f, ok := m.fields[id]
	if !ok {
		return 0
	}
	if f.Type == FieldFloat {
		return f.float
	}
	return float64(f.integer)
}

// String returns a string field, or "" if absent or not a string
func (m *Message) String(id FieldID) string {
	f, ok := m.fields[id]
	if !ok || f.Type != FieldString {
		return ""
	}
	return f.str
}

// Binary returns a binary field, or nil if absent
func (m *Message) Binary(id FieldID) []byte {
	f, ok := m.fields[id]
	if !ok || f.Type != FieldBinary {
		return nil
	}
	return f.data
}

// Uint32Array decodes a binary field holding big-endian 32-bit integers
func (m *Message) Uint32Array(id FieldID) []uint32 {
	b := m.Binary(id)
	out := make([]uint32, 0, len(b)/4)
	for i := 0; i+4 <= len(b); i += 4 {
		out = append(out, binary.BigEndian.Uint32(b[i:]))
	}
	return out
}

func padded(n int) int {
	return (n + frameAlignment - 1) &^ (frameAlignment - 1)
}

// Encode serializes the message into a single frame.
//
// Fields are written in ascending id order so that equal messages always
// produce identical frames.
func (m *Message) Encode() ([]byte, error) {
	if m.IsBinary() {
		size := padded(HeaderSize + len(m.data))
		buf := make([]byte, size)
		putHeader(buf, m, uint32(size), uint32(len(m.data)))
		copy(buf[HeaderSize:], m.data)
		return buf, nil
	}

	ids := make([]FieldID, 0, len(m.fields))
	for id := range m.fields {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	body := make([]byte, 0, 64*len(ids))
	for _, id := range ids {
		var err error
		body, err = appendField(body, m.fields[id])
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", id, err)
		}
	}

	size := HeaderSize + len(body)
	buf := make([]byte, size)
	putHeader(buf, m, uint32(size), uint32(len(ids)))
	copy(buf[HeaderSize:], body)
	return buf, nil
}

func putHeader(buf []byte, m *Message, size, count uint32) {
	binary.BigEndian.PutUint16(buf[0:], uint16(m.Code))
	binary.BigEndian.PutUint16(buf[2:], m.Flags)
	binary.BigEndian.PutUint32(buf[4:], size)
	binary.BigEndian.PutUint32(buf[8:], m.ID)
	binary.BigEndian.PutUint32(buf[12:], count)
}

func appendField(b []byte, f Field) ([]byte, error) {
	start := len(b)
	var hdr [fieldHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:], uint32(f.ID))
	hdr[4] = byte(f.Type)

	switch f.Type {
	case FieldInt16:
		binary.BigEndian.PutUint16(hdr[6:], uint16(f.integer))
		b = append(b, hdr[:]...)
	case FieldInt32:
		b = append(b, hdr[:]...)
		b = binary.BigEndian.AppendUint32(b, uint32(f.integer))
	case FieldInt64:
		b = append(b, hdr[:]...)
		b = binary.BigEndian.AppendUint64(b, f.integer)
	case FieldFloat:
		b = append(b, hdr[:]...)
		b = binary.BigEndian.AppendUint64(b, math.Float64bits(f.float))
	case FieldString:
		s, err := encodeWireString(f.str)
		if err != nil {
			return nil, err
		}
		b = append(b, hdr[:]...)
		b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
		b = append(b, s...)
	case FieldBinary:
		b = append(b, hdr[:]...)
		b = binary.BigEndian.AppendUint32(b, uint32(len(f.data)))
		b = append(b, f.data...)
	default:
		return nil, fmt.Errorf("unsupported field type %s", f.Type)
	}

	for (len(b)-start)%frameAlignment != 0 {
		b = append(b, 0)
	}
	return b, nil
}

// ReadMessage reads exactly one frame from r.
//
// I/O errors and frames whose declared size cannot be trusted are returned
// as-is and must be treated as fatal for the stream. Frames larger than
// maxSize are consumed and discarded, and frames whose body cannot be
// decoded are reported as *MalformedFrameError; in both cases the stream
// remains positioned at the next frame.
func ReadMessage(r io.Reader, maxSize int) (*Message, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	code := Code(binary.BigEndian.Uint16(hdr[0:]))
	flags := binary.BigEndian.Uint16(hdr[2:])
	size := binary.BigEndian.Uint32(hdr[4:])
	id := binary.BigEndian.Uint32(hdr[8:])
	count := binary.BigEndian.Uint32(hdr[12:])

	if size < HeaderSize || size%frameAlignment != 0 {
		return nil, fmt.Errorf("frame desynchronized: invalid size %d", size)
	}

	bodyLen := int64(size) - HeaderSize
	if maxSize > 0 && int64(size) > int64(maxSize) {
		if _, err := io.CopyN(io.Discard, r, bodyLen); err != nil {
			return nil, err
		}
		return nil, &MalformedFrameError{
			Code:   code,
			ID:     id,
			Reason: fmt.Sprintf("frame size %d exceeds limit %d", size, maxSize),
		}
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	msg := &Message{Code: code, ID: id, Flags: flags}
	if flags&FlagBinary != 0 {
		if int64(count) > bodyLen {
			return nil, &MalformedFrameError{
				Code:   code,
				ID:     id,
				Reason: fmt.Sprintf("payload length %d exceeds frame body %d", count, bodyLen),
			}
		}
		msg.data = body[:count]
		return msg, nil
	}

	fields, err := decodeFields(body, count)
	if err != nil {
		return nil, &MalformedFrameError{Code: code, ID: id, Reason: err.Error()}
	}
	msg.fields = fields
	return msg, nil
}

func decodeFields(body []byte, count uint32) (map[FieldID]Field, error) {
	fields := make(map[FieldID]Field, count)
	pos := 0
	for i := uint32(0); i < count; i++ {
		if len(body)-pos < fieldHeaderSize {
			return nil, fmt.Errorf("truncated field header at offset %d", pos)
		}
		start := pos
		f := Field{
			ID:   FieldID(binary.BigEndian.Uint32(body[pos:])),
			Type: FieldType(body[pos+4]),
		}
		pos += fieldHeaderSize

		need := func(n int) error {
			if len(body)-pos < n {
				return fmt.Errorf("truncated %s field %d", f.Type, f.ID)
			}
			return nil
		}

		switch f.Type {
		case FieldInt16:
			f.integer = uint64(binary.BigEndian.Uint16(body[start+6:]))
		case FieldInt32:
			if err := need(4); err != nil {
				return nil, err
			}
			f.integer = uint64(binary.BigEndian.Uint32(body[pos:]))
			pos += 4
		case FieldInt64:
			if err := need(8); err != nil {
				return nil, err
			}
			f.integer = binary.BigEndian.Uint64(body[pos:])
			pos += 8
		case FieldFloat:
			if err := need(8); err != nil {
				return nil, err
			}
			f.float = math.Float64frombits(binary.BigEndian.Uint64(body[pos:]))
			pos += 8
		case FieldString, FieldBinary:
			if err := need(4); err != nil {
				return nil, err
			}
			n := int(binary.BigEndian.Uint32(body[pos:]))
			pos += 4
			if err := need(n); err != nil {
				return nil, err
			}
			raw := body[pos : pos+n]
			pos += n
			if f.Type == FieldString {
				s, err := decodeWireString(raw)
				if err != nil {
					return nil, fmt.Errorf("field %d: %w", f.ID, err)
				}
				f.str = s
			} else {
				f.data = append([]byte(nil), raw...)
			}
		default:
			return nil, fmt.Errorf("unknown type %d for field %d", uint8(f.Type), f.ID)
		}

		pos = start + padded(pos-start)
		if pos > len(body) {
			pos = len(body)
		}
		fields[f.ID] = f
	}
	return fields, nil
}

// count reads a list length field. Lists cannot have more entries than the
// message has fields, so larger values are clamped.
func (m *Message) count(id FieldID) uint32 {
	n := m.Uint32(id)
	if int64(n) > int64(len(m.fields)) {
		return uint32(len(m.fields))
	}
	return n
}
