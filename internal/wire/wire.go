// Package wire builds and parses the protobuf-encoded messages carried by
// both the coordinator RPC envelope and the storage-node data-transfer
// envelope, without depending on generated, .proto-compiled message types.
// It is a thin convenience layer over google.golang.org/protobuf's
// low-level wire primitives (encoding/protowire): callers describe a
// message as a sequence of numbered fields, and this package handles tag
// bytes, varint (and zigzag) encoding, and length-delimited framing.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Builder accumulates fields into a protobuf-encoded message body.
type Builder struct {
	buf []byte
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Bytes() []byte {
	return b.buf
}

func (b *Builder) Len() int {
	return len(b.buf)
}

// Uint64 appends a varint-typed field (covers proto uint32/uint64/bool/enum).
func (b *Builder) Uint64(num protowire.Number, v uint64) *Builder {
	b.buf = protowire.AppendTag(b.buf, num, protowire.VarintType)
	b.buf = protowire.AppendVarint(b.buf, v)
	return b
}

// Int64 appends a plain (non-zigzag) signed varint field, matching proto's
// int32/int64 wire representation: the value is reinterpreted as an
// unsigned 64-bit integer before varint-encoding, so negative numbers
// occupy the full ten bytes.
func (b *Builder) Int64(num protowire.Number, v int64) *Builder {
	return b.Uint64(num, uint64(v))
}

// SInt64 appends a zigzag-encoded signed varint field, matching proto's
// sint32/sint64 wire representation.
func (b *Builder) SInt64(num protowire.Number, v int64) *Builder {
	return b.Uint64(num, protowire.EncodeZigZag(v))
}

func (b *Builder) Bool(num protowire.Number, v bool) *Builder {
	if v {
		return b.Uint64(num, 1)
	}
	return b.Uint64(num, 0)
}

func (b *Builder) String(num protowire.Number, v string) *Builder {
	b.buf = protowire.AppendTag(b.buf, num, protowire.BytesType)
	b.buf = protowire.AppendString(b.buf, v)
	return b
}

func (b *Builder) Bytes_(num protowire.Number, v []byte) *Builder {
	b.buf = protowire.AppendTag(b.buf, num, protowire.BytesType)
	b.buf = protowire.AppendBytes(b.buf, v)
	return b
}

// Message appends msg (the already-encoded bytes of a submessage) as a
// length-delimited field, the same wire shape as Bytes_.
func (b *Builder) Message(num protowire.Number, msg []byte) *Builder {
	return b.Bytes_(num, msg)
}

// Fixed64 appends a 64-bit fixed-width field.
func (b *Builder) Fixed64(num protowire.Number, v uint64) *Builder {
	b.buf = protowire.AppendTag(b.buf, num, protowire.Fixed64Type)
	b.buf = protowire.AppendFixed64(b.buf, v)
	return b
}

// Field is one parsed field of a message: the raw wire type plus whichever
// accessor matches it is meaningful.
type Field struct {
	Number  protowire.Number
	Type    protowire.Type
	Varint  uint64
	Fixed64 uint64
	Fixed32 uint32
	Bytes   []byte
}

// ParseFields decodes buf into an ordered slice of fields. Repeated fields
// (same Number appearing more than once) are preserved in encounter order,
// as required to decode "repeated" proto fields.
func ParseFields(buf []byte) ([]Field, error) {
	var fields []Field
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, fmt.Errorf("wire: invalid tag at offset %d", len(buf))
		}
		buf = buf[n:]

		var f Field
		f.Number = num
		f.Type = typ

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return nil, fmt.Errorf("wire: invalid varint for field %d", num)
			}
			f.Varint = v
			buf = buf[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(buf)
			if n < 0 {
				return nil, fmt.Errorf("wire: invalid fixed64 for field %d", num)
			}
			f.Fixed64 = v
			buf = buf[n:]
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(buf)
			if n < 0 {
				return nil, fmt.Errorf("wire: invalid fixed32 for field %d", num)
			}
			f.Fixed32 = v
			buf = buf[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return nil, fmt.Errorf("wire: invalid bytes for field %d", num)
			}
			f.Bytes = v
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, fmt.Errorf("wire: cannot skip field %d of type %d", num, typ)
			}
			buf = buf[n:]
			continue
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// First returns the first field with the given number, if any.
func First(fields []Field, num protowire.Number) (Field, bool) {
	for _, f := range fields {
		if f.Number == num {
			return f, true
		}
	}
	return Field{}, false
}

// All returns every field with the given number, in encounter order —
// used to decode "repeated" fields.
func All(fields []Field, num protowire.Number) []Field {
	var out []Field
	for _, f := range fields {
		if f.Number == num {
			out = append(out, f)
		}
	}
	return out
}

// SInt64 reverses the zigzag encoding applied by Builder.SInt64.
func SInt64(v uint64) int64 {
	return protowire.DecodeZigZag(v)
}
