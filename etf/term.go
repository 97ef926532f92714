package etf

import (
	"encoding/binary"
	"math"
)

// Term is one node of a parsed term tree. Scalar payloads are kept as raw
// bytes so interpretation can be deferred; Start and End delimit the whole
// term within the parsed input, which lets a caller cut a nested term back
// out of the frame and decode it selectively.
type Term struct {
	Tag    byte
	Data   []byte
	Items  []Term
	Pairs  []TermPair
	Start  int
	End    int
}

// TermPair is one map entry.
type TermPair struct {
	Key   Term
	Value Term
}

// ParseTerm parses a complete buffer, version byte included, into a tree.
func ParseTerm(data []byte) (Term, error) {
	d := NewDecoder(data)
	b, err := d.readByte()
	if err != nil {
		return Term{}, err
	}
	if b != Version {
		return Term{}, ErrBadVersion
	}
	return d.parseTerm()
}

func (d *Decoder) parseTerm() (Term, error) {
	start := d.pos
	tag, err := d.readByte()
	if err != nil {
		return Term{}, err
	}
	t := Term{Tag: tag, Start: start}
	switch tag {
	case TagSmallInt:
		t.Data, err = d.readN(1)
	case TagInt:
		t.Data, err = d.readN(4)
	case TagNewFloat:
		t.Data, err = d.readN(8)
	case TagAtom, TagAtomUTF8, TagString:
		var n int
		if n, err = d.readU16(); err == nil {
			t.Data, err = d.readN(n)
		}
	case TagSmallAtom, TagSmallAtomUTF8:
		var b byte
		if b, err = d.readByte(); err == nil {
			t.Data, err = d.readN(int(b))
		}
	case TagBinary:
		var n int
		if n, err = d.readU32(); err == nil {
			t.Data, err = d.readN(n)
		}
	case TagSmallBig:
		var b byte
		if b, err = d.readByte(); err == nil {
			t.Data, err = d.readN(int(b) + 1)
		}
	case TagLargeBig:
		var n int
		if n, err = d.readU32(); err == nil {
			t.Data, err = d.readN(n + 1)
		}
	case TagNil:
	case TagSmallTuple, TagLargeTuple:
		var n int
		if tag == TagSmallTuple {
			var b byte
			b, err = d.readByte()
			n = int(b)
		} else {
			n, err = d.readU32()
		}
		if err != nil {
			break
		}
		t.Items = make([]Term, 0, n)
		for i := 0; i < n; i++ {
			var el Term
			if el, err = d.parseTerm(); err != nil {
				break
			}
			t.Items = append(t.Items, el)
		}
	case TagList:
		var n int
		if n, err = d.readU32(); err != nil {
			break
		}
		t.Items = make([]Term, 0, n)
		for i := 0; i < n; i++ {
			var el Term
			if el, err = d.parseTerm(); err != nil {
				break
			}
			t.Items = append(t.Items, el)
		}
		if err == nil {
			// Consume the tail; a proper list ends in nil.
			_, err = d.parseTerm()
		}
	case TagMap:
		var n int
		if n, err = d.readU32(); err != nil {
			break
		}
		t.Pairs = make([]TermPair, 0, n)
		for i := 0; i < n; i++ {
			var k, v Term
			if k, err = d.parseTerm(); err != nil {
				break
			}
			if v, err = d.parseTerm(); err != nil {
				break
			}
			t.Pairs = append(t.Pairs, TermPair{Key: k, Value: v})
		}
	default:
		err = &BadTagError{Tag: tag}
	}
	if err != nil {
		return Term{}, err
	}
	t.End = d.pos
	return t, nil
}

// IsNil reports whether the term is an empty list or the atom nil.
func (t Term) IsNil() bool {
	if t.Tag == TagNil {
		return true
	}
	return t.isAtom() && string(t.Data) == "nil"
}

func (t Term) isAtom() bool {
	switch t.Tag {
	case TagAtom, TagAtomUTF8, TagSmallAtom, TagSmallAtomUTF8:
		return true
	}
	return false
}

// Text interprets the term as text. Non-textual terms yield "".
func (t Term) Text() string {
	switch t.Tag {
	case TagAtom, TagAtomUTF8, TagSmallAtom, TagSmallAtomUTF8, TagBinary, TagString:
		return string(t.Data)
	}
	return ""
}

// Int64 interprets the term as a signed integer.
func (t Term) Int64() (int64, error) {
	switch t.Tag {
	case TagSmallInt:
		return int64(t.Data[0]), nil
	case TagInt:
		return int64(int32(binary.BigEndian.Uint32(t.Data))), nil
	case TagSmallBig, TagLargeBig:
		sign := t.Data[0]
		digits := t.Data[1:]
		var mag uint64
		for i := len(digits) - 1; i >= 0; i-- {
			if i >= 8 {
				if digits[i] != 0 {
					return 0, ErrRange
				}
				continue
			}
			mag = mag<<8 | uint64(digits[i])
		}
		if sign != 0 {
			if mag > uint64(math.MaxInt64)+1 {
				return 0, ErrRange
			}
			v := -int64(mag - 1)
			v--
			return v, nil
		}
		if mag > math.MaxInt64 {
			return 0, ErrRange
		}
		return int64(mag), nil
	}
	return 0, &BadTagError{Tag: t.Tag}
}

// Get returns the value term for a textual map key.
func (t Term) Get(key string) (Term, bool) {
	for _, p := range t.Pairs {
		if p.Key.Text() == key {
			return p.Value, true
		}
	}
	return Term{}, false
}
