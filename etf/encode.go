package etf

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Tuple encodes as a small or large tuple depending on arity.
type Tuple []interface{}

// Atom encodes as a small-atom (or atom when longer than 255 bytes).
type Atom string

// Encoder writes terms into a Buffer.
type Encoder struct {
	b *Buffer
}

// NewEncoder returns an encoder writing into b.
func NewEncoder(b *Buffer) *Encoder {
	return &Encoder{b: b}
}

// Marshal encodes v as a complete term, version byte included.
func Marshal(v interface{}) ([]byte, error) {
	b := NewBuffer()
	if err := NewEncoder(b).Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Encode writes the version byte followed by the term for v.
func (e *Encoder) Encode(v interface{}) error {
	if err := e.b.writeByte(Version); err != nil {
		return err
	}
	return e.encode(reflect.ValueOf(v))
}

// WriteAtom writes an atom term. Atoms up to 255 bytes use the small form.
func (e *Encoder) WriteAtom(s string) error {
	if len(s) <= math.MaxUint8 {
		if err := e.b.writeByte(TagSmallAtom); err != nil {
			return err
		}
		if err := e.b.writeByte(byte(len(s))); err != nil {
			return err
		}
		return e.b.write([]byte(s))
	}
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("etf: atom of %d bytes too long", len(s))
	}
	if err := e.b.writeByte(TagAtom); err != nil {
		return err
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(s)))
	if err := e.b.write(hdr[:]); err != nil {
		return err
	}
	return e.b.write([]byte(s))
}

// WriteBinary writes a binary term.
func (e *Encoder) WriteBinary(p []byte) error {
	if err := e.b.writeByte(TagBinary); err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(p)))
	if err := e.b.write(hdr[:]); err != nil {
		return err
	}
	return e.b.write(p)
}

// WriteString writes s as a binary term. Strings are carried as binaries
// on the wire, never as the legacy string tag.
func (e *Encoder) WriteString(s string) error {
	return e.WriteBinary([]byte(s))
}

// WriteBool writes the atom true or false.
func (e *Encoder) WriteBool(v bool) error {
	if v {
		return e.WriteAtom("true")
	}
	return e.WriteAtom("false")
}

// WriteNilAtom writes the atom nil, the encoding of a null value.
func (e *Encoder) WriteNilAtom() error {
	return e.WriteAtom("nil")
}

// WriteEmptyList writes the nil tag, the encoding of an empty list.
func (e *Encoder) WriteEmptyList() error {
	return e.b.writeByte(TagNil)
}

// WriteInt writes a length-minimal integer term.
func (e *Encoder) WriteInt(v int64) error {
	if v >= 0 {
		return e.WriteUint(uint64(v))
	}
	if v >= math.MinInt32 {
		return e.writeInt32(int32(v))
	}
	// Sign-magnitude; negating MinInt64 directly would overflow.
	mag := uint64(-(v + 1)) + 1
	return e.writeBig(1, mag)
}

// WriteUint writes a length-minimal unsigned integer term.
func (e *Encoder) WriteUint(v uint64) error {
	switch {
	case v <= math.MaxUint8:
		if err := e.b.writeByte(TagSmallInt); err != nil {
			return err
		}
		return e.b.writeByte(byte(v))
	case v <= math.MaxInt32:
		return e.writeInt32(int32(v))
	default:
		return e.writeBig(0, v)
	}
}

func (e *Encoder) writeInt32(v int32) error {
	if err := e.b.writeByte(TagInt); err != nil {
		return err
	}
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], uint32(v))
	return e.b.write(p[:])
}

// writeBig emits a small-big with the minimal little-endian magnitude.
func (e *Encoder) writeBig(sign byte, mag uint64) error {
	var digits [8]byte
	n := 0
	for mag > 0 {
		digits[n] = byte(mag)
		mag >>= 8
		n++
	}
	if n == 0 {
		n = 1
	}
	if err := e.b.writeByte(TagSmallBig); err != nil {
		return err
	}
	if err := e.b.writeByte(byte(n)); err != nil {
		return err
	}
	if err := e.b.writeByte(sign); err != nil {
		return err
	}
	return e.b.write(digits[:n])
}

// WriteFloat writes a new-float term.
func (e *Encoder) WriteFloat(v float64) error {
	if err := e.b.writeByte(TagNewFloat); err != nil {
		return err
	}
	var p [8]byte
	binary.BigEndian.PutUint64(p[:], math.Float64bits(v))
	return e.b.write(p[:])
}

// WriteTupleHeader writes a tuple header; arity elements must follow.
func (e *Encoder) WriteTupleHeader(arity int) error {
	if arity <= math.MaxUint8 {
		if err := e.b.writeByte(TagSmallTuple); err != nil {
			return err
		}
		return e.b.writeByte(byte(arity))
	}
	if err := e.b.writeByte(TagLargeTuple); err != nil {
		return err
	}
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], uint32(arity))
	return e.b.write(p[:])
}

// WriteListHeader writes a list header; n elements and a nil tail must follow.
func (e *Encoder) WriteListHeader(n int) error {
	if err := e.b.writeByte(TagList); err != nil {
		return err
	}
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], uint32(n))
	return e.b.write(p[:])
}

// WriteMapHeader writes a map header; n key/value pairs must follow.
func (e *Encoder) WriteMapHeader(n int) error {
	if err := e.b.writeByte(TagMap); err != nil {
		return err
	}
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], uint32(n))
	return e.b.write(p[:])
}

var marshalerType = reflect.TypeOf((*Marshaler)(nil)).Elem()

func (e *Encoder) encode(rv reflect.Value) error {
	if !rv.IsValid() {
		return e.WriteNilAtom()
	}
	if rv.Type().Implements(marshalerType) {
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return e.WriteNilAtom()
		}
		return rv.Interface().(Marshaler).MarshalETF(e)
	}
	if rv.CanAddr() && rv.Addr().Type().Implements(marshalerType) {
		return rv.Addr().Interface().(Marshaler).MarshalETF(e)
	}

	switch rv.Kind() {
	case reflect.Bool:
		return e.WriteBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.WriteInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return e.WriteUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return e.WriteFloat(rv.Float())
	case reflect.String:
		if rv.Type() == reflect.TypeOf(Atom("")) {
			return e.WriteAtom(rv.String())
		}
		return e.WriteString(rv.String())
	case reflect.Slice, reflect.Array:
		return e.encodeSequence(rv)
	case reflect.Map:
		return e.encodeMap(rv)
	case reflect.Struct:
		return e.encodeStruct(rv)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return e.WriteNilAtom()
		}
		return e.encode(rv.Elem())
	default:
		return fmt.Errorf("etf: cannot encode %s", rv.Type())
	}
}

func (e *Encoder) encodeSequence(rv reflect.Value) error {
	if rv.Type() == reflect.TypeOf(Tuple(nil)) {
		if err := e.WriteTupleHeader(rv.Len()); err != nil {
			return err
		}
		for i := 0; i < rv.Len(); i++ {
			if err := e.encode(rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		if rv.Kind() == reflect.Slice {
			return e.WriteBinary(rv.Bytes())
		}
		p := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(p), rv)
		return e.WriteBinary(p)
	}
	if rv.Len() == 0 {
		return e.WriteEmptyList()
	}
	if err := e.WriteListHeader(rv.Len()); err != nil {
		return err
	}
	for i := 0; i < rv.Len(); i++ {
		if err := e.encode(rv.Index(i)); err != nil {
			return err
		}
	}
	return e.WriteEmptyList()
}

func (e *Encoder) encodeMap(rv reflect.Value) error {
	if err := e.WriteMapHeader(rv.Len()); err != nil {
		return err
	}
	iter := rv.MapRange()
	for iter.Next() {
		if err := e.encode(iter.Key()); err != nil {
			return err
		}
		if err := e.encode(iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// encodeStruct emits a map whose keys are the json tag names as binaries.
func (e *Encoder) encodeStruct(rv reflect.Value) error {
	fields := structFields(rv.Type())
	emit := make([]int, 0, len(fields))
	for i, f := range fields {
		fv := rv.Field(f.index)
		if f.omitEmpty && fv.IsZero() {
			continue
		}
		if (fv.Kind() == reflect.Ptr || fv.Kind() == reflect.Interface) && fv.IsNil() {
			continue
		}
		emit = append(emit, i)
	}
	if err := e.WriteMapHeader(len(emit)); err != nil {
		return err
	}
	for _, i := range emit {
		f := fields[i]
		if err := e.WriteBinary([]byte(f.name)); err != nil {
			return err
		}
		if err := e.encode(rv.Field(f.index)); err != nil {
			return err
		}
	}
	return nil
}

type structField struct {
	name      string
	index     int
	omitEmpty bool
}

// structFields resolves the wire name of each encodable field, honoring
// json tags so the same records serve both encodings.
func structFields(t reflect.Type) []structField {
	fields := make([]structField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		name := f.Name
		omitEmpty := false
		if tag, ok := f.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitEmpty = true
				}
			}
		}
		fields = append(fields, structField{name: name, index: i, omitEmpty: omitEmpty})
	}
	return fields
}
