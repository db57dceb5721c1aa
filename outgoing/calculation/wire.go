package calculation

import (
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// decoder walks the fields of one protobuf message. Each call to next
// positions it on a field whose value must then be consumed by exactly one
// of the typed readers, or skipped.
type decoder struct {
	b   []byte
	num protowire.Number
	typ protowire.Type
	err error
}

func newDecoder(b []byte) *decoder {
	return &decoder{b: b}
}

func (d *decoder) next() bool {
	if d.err != nil || len(d.b) == 0 {
		return false
	}
	num, typ, n := protowire.ConsumeTag(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return false
	}
	d.num, d.typ, d.b = num, typ, d.b[n:]
	return true
}

func (d *decoder) fail(n int) {
	if d.err == nil {
		d.err = errors.Wrapf(protowire.ParseError(n), "field %d", d.num)
	}
	d.b = nil
}

func (d *decoder) expect(typ protowire.Type) bool {
	if d.typ != typ {
		d.err = errors.Errorf("field %d: unexpected wire type %d", d.num, d.typ)
		d.b = nil
		return false
	}
	return true
}

func (d *decoder) skip() {
	n := protowire.ConsumeFieldValue(d.num, d.typ, d.b)
	if n < 0 {
		d.fail(n)
		return
	}
	d.b = d.b[n:]
}

func (d *decoder) varint() uint64 {
	if !d.expect(protowire.VarintType) {
		return 0
	}
	v, n := protowire.ConsumeVarint(d.b)
	if n < 0 {
		d.fail(n)
		return 0
	}
	d.b = d.b[n:]
	return v
}

func (d *decoder) int64() int64 { return int64(d.varint()) }

func (d *decoder) int32() int32 { return int32(d.varint()) }

func (d *decoder) sfixed32() int32 {
	if !d.expect(protowire.Fixed32Type) {
		return 0
	}
	v, n := protowire.ConsumeFixed32(d.b)
	if n < 0 {
		d.fail(n)
		return 0
	}
	d.b = d.b[n:]
	return int32(v)
}

func (d *decoder) bytes() []byte {
	if !d.expect(protowire.BytesType) {
		return nil
	}
	v, n := protowire.ConsumeBytes(d.b)
	if n < 0 {
		d.fail(n)
		return nil
	}
	d.b = d.b[n:]
	return v
}

func (d *decoder) string() string { return string(d.bytes()) }

// enums reads a repeated enum field, packed or not, appending to dst.
func (d *decoder) enums(dst []int32) []int32 {
	if d.typ == protowire.VarintType {
		return append(dst, d.int32())
	}
	packed := d.bytes()
	for len(packed) > 0 {
		v, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			d.fail(n)
			return dst
		}
		dst = append(dst, int32(v))
		packed = packed[n:]
	}
	return dst
}

// timestamp reads a google.protobuf.Timestamp.
func (d *decoder) timestamp() time.Time {
	var seconds int64
	var nanos int32
	m := newDecoder(d.bytes())
	for m.next() {
		switch m.num {
		case 1:
			seconds = m.int64()
		case 2:
			nanos = m.int32()
		default:
			m.skip()
		}
	}
	if m.err != nil && d.err == nil {
		d.err = errors.Wrapf(m.err, "field %d", d.num)
	}
	return time.Unix(seconds, int64(nanos)).UTC()
}

// sub decodes an embedded message with f and records its error.
func (d *decoder) sub(f func(*decoder)) {
	m := newDecoder(d.bytes())
	f(m)
	if m.err != nil && d.err == nil {
		d.err = errors.Wrapf(m.err, "field %d", d.num)
	}
}

// encoder builds protobuf messages. Zero values are left out as proto3 does.
type encoder struct {
	b []byte
}

func (e *encoder) varint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) int64(num protowire.Number, v int64) { e.varint(num, uint64(v)) }

func (e *encoder) enum(num protowire.Number, v int32) { e.varint(num, uint64(v)) }

func (e *encoder) sfixed32(num protowire.Number, v int32) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.Fixed32Type)
	e.b = protowire.AppendFixed32(e.b, uint32(v))
}

func (e *encoder) string(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, v)
}

func (e *encoder) message(num protowire.Number, f func(*encoder)) {
	var m encoder
	f(&m)
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, m.b)
}

func (e *encoder) packed(num protowire.Number, vs []int32) {
	if len(vs) == 0 {
		return
	}
	var p []byte
	for _, v := range vs {
		p = protowire.AppendVarint(p, uint64(v))
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, p)
}

func (e *encoder) timestamp(num protowire.Number, t time.Time) {
	e.message(num, func(m *encoder) {
		m.int64(1, t.Unix())
		m.enum(2, int32(t.Nanosecond()))
	})
}
