package etf

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Decoder reads terms from a byte slice.
type Decoder struct {
	data []byte
	pos  int
}

// NewDecoder returns a decoder positioned at the start of data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Unmarshal decodes a complete term, version byte included, into v.
func Unmarshal(data []byte, v interface{}) error {
	return NewDecoder(data).Decode(v)
}

// Decode reads the version byte and the following term into v, which must
// be a non-nil pointer.
func (d *Decoder) Decode(v interface{}) error {
	b, err := d.readByte()
	if err != nil {
		return err
	}
	if b != Version {
		return ErrBadVersion
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("etf: decode target must be a non-nil pointer")
	}
	return d.decode(rv.Elem())
}

func (d *Decoder) readByte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, ErrShortBuffer
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) readN(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.data) {
		return nil, ErrShortBuffer
	}
	p := d.data[d.pos : d.pos+n]
	d.pos += n
	return p, nil
}

func (d *Decoder) readU16() (int, error) {
	p, err := d.readN(2)
	if err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint16(p)), nil
}

func (d *Decoder) readU32() (int, error) {
	p, err := d.readN(4)
	if err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint32(p)), nil
}

var unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()

func (d *Decoder) decode(rv reflect.Value) error {
	if rv.CanAddr() && rv.Addr().Type().Implements(unmarshalerType) {
		return rv.Addr().Interface().(Unmarshaler).UnmarshalETF(d)
	}
	tag, err := d.readByte()
	if err != nil {
		return err
	}
	switch tag {
	case TagSmallInt:
		b, err := d.readByte()
		if err != nil {
			return err
		}
		return assignInt(rv, false, uint64(b))
	case TagInt:
		p, err := d.readN(4)
		if err != nil {
			return err
		}
		v := int32(binary.BigEndian.Uint32(p))
		if v < 0 {
			return assignInt(rv, true, uint64(-int64(v)))
		}
		return assignInt(rv, false, uint64(v))
	case TagSmallBig, TagLargeBig:
		neg, mag, err := d.readBig(tag)
		if err != nil {
			return err
		}
		return assignInt(rv, neg, mag)
	case TagNewFloat:
		p, err := d.readN(8)
		if err != nil {
			return err
		}
		return assignFloat(rv, math.Float64frombits(binary.BigEndian.Uint64(p)))
	case TagAtom, TagAtomUTF8, TagSmallAtom, TagSmallAtomUTF8:
		s, err := d.readAtomText(tag)
		if err != nil {
			return err
		}
		return assignAtom(rv, s)
	case TagBinary:
		n, err := d.readU32()
		if err != nil {
			return err
		}
		p, err := d.readN(n)
		if err != nil {
			return err
		}
		return assignText(rv, string(p))
	case TagString:
		n, err := d.readU16()
		if err != nil {
			return err
		}
		p, err := d.readN(n)
		if err != nil {
			return err
		}
		return assignText(rv, string(p))
	case TagNil:
		return assignEmpty(rv)
	case TagList:
		n, err := d.readU32()
		if err != nil {
			return err
		}
		if err := d.decodeSequence(rv, n); err != nil {
			return err
		}
		// Tail is expected to be nil; tolerate and skip anything else.
		return d.skipTerm()
	case TagSmallTuple:
		n, err := d.readByte()
		if err != nil {
			return err
		}
		return d.decodeSequence(rv, int(n))
	case TagLargeTuple:
		n, err := d.readU32()
		if err != nil {
			return err
		}
		return d.decodeSequence(rv, n)
	case TagMap:
		n, err := d.readU32()
		if err != nil {
			return err
		}
		return d.decodeMap(rv, n)
	default:
		return &BadTagError{Tag: tag}
	}
}

func (d *Decoder) readAtomText(tag byte) (string, error) {
	var n int
	var err error
	switch tag {
	case TagAtom, TagAtomUTF8:
		n, err = d.readU16()
	default:
		var b byte
		b, err = d.readByte()
		n = int(b)
	}
	if err != nil {
		return "", err
	}
	p, err := d.readN(n)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// readBig reads a small-big or large-big payload as sign and magnitude.
// Magnitudes wider than 64 bits fail with ErrRange.
func (d *Decoder) readBig(tag byte) (bool, uint64, error) {
	var n int
	var err error
	if tag == TagSmallBig {
		var b byte
		b, err = d.readByte()
		n = int(b)
	} else {
		n, err = d.readU32()
	}
	if err != nil {
		return false, 0, err
	}
	sign, err := d.readByte()
	if err != nil {
		return false, 0, err
	}
	digits, err := d.readN(n)
	if err != nil {
		return false, 0, err
	}
	var mag uint64
	for i := len(digits) - 1; i >= 0; i-- {
		if i >= 8 {
			if digits[i] != 0 {
				return false, 0, ErrRange
			}
			continue
		}
		mag = mag<<8 | uint64(digits[i])
	}
	return sign != 0, mag, nil
}

func indirect(rv reflect.Value) reflect.Value {
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		rv = rv.Elem()
	}
	return rv
}

func assignInt(rv reflect.Value, neg bool, mag uint64) error {
	rv = indirect(rv)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var v int64
		if neg {
			if mag > uint64(math.MaxInt64)+1 {
				return ErrRange
			}
			v = -int64(mag - 1)
			v--
		} else {
			if mag > math.MaxInt64 {
				return ErrRange
			}
			v = int64(mag)
		}
		if rv.OverflowInt(v) {
			return ErrRange
		}
		rv.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if neg {
			return ErrRange
		}
		if rv.OverflowUint(mag) {
			return ErrRange
		}
		rv.SetUint(mag)
	case reflect.Float32, reflect.Float64:
		f := float64(mag)
		if neg {
			f = -f
		}
		rv.SetFloat(f)
	case reflect.Interface:
		if neg {
			if mag > uint64(math.MaxInt64)+1 {
				return ErrRange
			}
			v := -int64(mag - 1)
			v--
			rv.Set(reflect.ValueOf(v))
		} else if mag > math.MaxInt64 {
			rv.Set(reflect.ValueOf(mag))
		} else {
			rv.Set(reflect.ValueOf(int64(mag)))
		}
	default:
		return fmt.Errorf("etf: cannot decode integer into %s", rv.Type())
	}
	return nil
}

func assignFloat(rv reflect.Value, f float64) error {
	rv = indirect(rv)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		rv.SetFloat(f)
	case reflect.Interface:
		rv.Set(reflect.ValueOf(f))
	default:
		return fmt.Errorf("etf: cannot decode float into %s", rv.Type())
	}
	return nil
}

// assignAtom maps the atoms true, false and nil onto their Go values and
// falls back to plain text for anything else.
func assignAtom(rv reflect.Value, s string) error {
	switch s {
	case "nil":
		return assignNull(rv)
	case "true", "false":
		t := indirect(rv)
		switch t.Kind() {
		case reflect.Bool:
			t.SetBool(s == "true")
			return nil
		case reflect.Interface:
			t.Set(reflect.ValueOf(s == "true"))
			return nil
		}
	}
	return assignText(rv, s)
}

func assignNull(rv reflect.Value) error {
	if rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		rv.Set(reflect.Zero(rv.Type()))
		return nil
	}
	rv.Set(reflect.Zero(rv.Type()))
	return nil
}

func assignText(rv reflect.Value, s string) error {
	rv = indirect(rv)
	switch rv.Kind() {
	case reflect.String:
		rv.SetString(s)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			rv.SetBytes([]byte(s))
			return nil
		}
		return fmt.Errorf("etf: cannot decode text into %s", rv.Type())
	case reflect.Interface:
		rv.Set(reflect.ValueOf(s))
	default:
		return fmt.Errorf("etf: cannot decode text into %s", rv.Type())
	}
	return nil
}

// assignEmpty handles the nil tag, the encoding of an empty list.
func assignEmpty(rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		rv.Set(reflect.Zero(rv.Type()))
	case reflect.Slice:
		rv.Set(reflect.MakeSlice(rv.Type(), 0, 0))
	case reflect.Map:
		rv.Set(reflect.MakeMap(rv.Type()))
	case reflect.String:
		rv.SetString("")
	default:
		rv.Set(reflect.Zero(rv.Type()))
	}
	return nil
}

func (d *Decoder) decodeSequence(rv reflect.Value, n int) error {
	rv = indirect(rv)
	switch rv.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(rv.Type(), n, n)
		for i := 0; i < n; i++ {
			if err := d.decode(out.Index(i)); err != nil {
				return err
			}
		}
		rv.Set(out)
	case reflect.Array:
		for i := 0; i < n; i++ {
			if i < rv.Len() {
				if err := d.decode(rv.Index(i)); err != nil {
					return err
				}
			} else if err := d.skipTerm(); err != nil {
				return err
			}
		}
	case reflect.Interface:
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			if err := d.decode(reflect.ValueOf(&out[i]).Elem()); err != nil {
				return err
			}
		}
		rv.Set(reflect.ValueOf(out))
	default:
		return fmt.Errorf("etf: cannot decode sequence into %s", rv.Type())
	}
	return nil
}

func (d *Decoder) decodeMap(rv reflect.Value, n int) error {
	rv = indirect(rv)
	switch rv.Kind() {
	case reflect.Struct:
		return d.decodeStruct(rv, n)
	case reflect.Map:
		if rv.IsNil() {
			rv.Set(reflect.MakeMapWithSize(rv.Type(), n))
		}
		for i := 0; i < n; i++ {
			k := reflect.New(rv.Type().Key()).Elem()
			if err := d.decode(k); err != nil {
				return err
			}
			v := reflect.New(rv.Type().Elem()).Elem()
			if err := d.decode(v); err != nil {
				return err
			}
			rv.SetMapIndex(k, v)
		}
	case reflect.Interface:
		out := make(map[string]interface{}, n)
		for i := 0; i < n; i++ {
			var k string
			if err := d.decode(reflect.ValueOf(&k).Elem()); err != nil {
				return err
			}
			var v interface{}
			if err := d.decode(reflect.ValueOf(&v).Elem()); err != nil {
				return err
			}
			out[k] = v
		}
		rv.Set(reflect.ValueOf(out))
	default:
		return fmt.Errorf("etf: cannot decode map into %s", rv.Type())
	}
	return nil
}

// decodeStruct fills fields by wire name; unknown keys are skipped and
// missing keys keep their defaults.
func (d *Decoder) decodeStruct(rv reflect.Value, n int) error {
	fields := structFields(rv.Type())
	byName := make(map[string]int, len(fields))
	for _, f := range fields {
		byName[f.name] = f.index
	}
	for i := 0; i < n; i++ {
		var key string
		if err := d.decode(reflect.ValueOf(&key).Elem()); err != nil {
			return err
		}
		idx, ok := byName[key]
		if !ok {
			if err := d.skipTerm(); err != nil {
				return err
			}
			continue
		}
		if err := d.decode(rv.Field(idx)); err != nil {
			return err
		}
	}
	return nil
}

// ReadUint64 reads one term as an unsigned 64-bit value, accepting any
// integer tag or a textual decimal representation.
func (d *Decoder) ReadUint64() (uint64, error) {
	tag, err := d.readByte()
	if err != nil {
		return 0, err
	}
	switch tag {
	case TagSmallInt:
		b, err := d.readByte()
		return uint64(b), err
	case TagInt:
		p, err := d.readN(4)
		if err != nil {
			return 0, err
		}
		v := int32(binary.BigEndian.Uint32(p))
		if v < 0 {
			return 0, ErrRange
		}
		return uint64(v), nil
	case TagSmallBig, TagLargeBig:
		neg, mag, err := d.readBig(tag)
		if err != nil {
			return 0, err
		}
		if neg {
			return 0, ErrRange
		}
		return mag, nil
	case TagAtom, TagAtomUTF8, TagSmallAtom, TagSmallAtomUTF8:
		s, err := d.readAtomText(tag)
		if err != nil {
			return 0, err
		}
		return parseDecimal(s)
	case TagBinary:
		n, err := d.readU32()
		if err != nil {
			return 0, err
		}
		p, err := d.readN(n)
		if err != nil {
			return 0, err
		}
		return parseDecimal(string(p))
	case TagString:
		n, err := d.readU16()
		if err != nil {
			return 0, err
		}
		p, err := d.readN(n)
		if err != nil {
			return 0, err
		}
		return parseDecimal(string(p))
	case TagNil:
		return 0, nil
	default:
		return 0, &BadTagError{Tag: tag}
	}
}

func parseDecimal(s string) (uint64, error) {
	if s == "" || s == "nil" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("etf: %q is not a decimal integer: %w", s, err)
	}
	return v, nil
}

// skipTerm consumes one complete term without interpreting it.
func (d *Decoder) skipTerm() error {
	tag, err := d.readByte()
	if err != nil {
		return err
	}
	return d.skipPayload(tag)
}

func (d *Decoder) skipPayload(tag byte) error {
	switch tag {
	case TagSmallInt:
		_, err := d.readByte()
		return err
	case TagInt:
		_, err := d.readN(4)
		return err
	case TagNewFloat:
		_, err := d.readN(8)
		return err
	case TagAtom, TagAtomUTF8:
		n, err := d.readU16()
		if err != nil {
			return err
		}
		_, err = d.readN(n)
		return err
	case TagSmallAtom, TagSmallAtomUTF8:
		b, err := d.readByte()
		if err != nil {
			return err
		}
		_, err = d.readN(int(b))
		return err
	case TagBinary:
		n, err := d.readU32()
		if err != nil {
			return err
		}
		_, err = d.readN(n)
		return err
	case TagString:
		n, err := d.readU16()
		if err != nil {
			return err
		}
		_, err = d.readN(n)
		return err
	case TagNil:
		return nil
	case TagSmallBig:
		b, err := d.readByte()
		if err != nil {
			return err
		}
		if _, err := d.readByte(); err != nil {
			return err
		}
		_, err = d.readN(int(b))
		return err
	case TagLargeBig:
		n, err := d.readU32()
		if err != nil {
			return err
		}
		if _, err := d.readByte(); err != nil {
			return err
		}
		_, err = d.readN(n)
		return err
	case TagSmallTuple:
		b, err := d.readByte()
		if err != nil {
			return err
		}
		for i := 0; i < int(b); i++ {
			if err := d.skipTerm(); err != nil {
				return err
			}
		}
		return nil
	case TagLargeTuple:
		n, err := d.readU32()
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := d.skipTerm(); err != nil {
				return err
			}
		}
		return nil
	case TagList:
		n, err := d.readU32()
		if err != nil {
			return err
		}
		for i := 0; i < n+1; i++ {
			if err := d.skipTerm(); err != nil {
				return err
			}
		}
		return nil
	case TagMap:
		n, err := d.readU32()
		if err != nil {
			return err
		}
		for i := 0; i < n*2; i++ {
			if err := d.skipTerm(); err != nil {
				return err
			}
		}
		return nil
	default:
		return &BadTagError{Tag: tag}
	}
}
