package etf

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func roundTrip(t *testing.T, in, out interface{}) {
	t.Helper()
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal(%v): %v", in, err)
	}
	if err := Unmarshal(data, out); err != nil {
		t.Fatalf("Unmarshal(%v): %v", in, err)
	}
}

func TestRoundTripIntegers(t *testing.T) {
	cases := []int64{0, 1, 127, 255, 256, 1 << 20, math.MaxInt32, math.MaxInt32 + 1,
		math.MaxInt64, -1, -255, -256, math.MinInt32, int64(math.MinInt32) - 1, math.MinInt64}
	for _, v := range cases {
		var got int64
		roundTrip(t, v, &got)
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestRoundTripUnsigned(t *testing.T) {
	cases := []uint64{0, 255, 256, math.MaxInt32, math.MaxInt64, math.MaxUint64}
	for _, v := range cases {
		var got uint64
		roundTrip(t, v, &got)
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestRoundTripFloats(t *testing.T) {
	for _, v := range []float64{0, 1.5, -2.25, math.MaxFloat64, math.SmallestNonzeroFloat64} {
		var got float64
		roundTrip(t, v, &got)
		if got != v {
			t.Errorf("round trip %g: got %g", v, got)
		}
	}
}

func TestRoundTripStrings(t *testing.T) {
	for _, v := range []string{"", "hello", "héllo wörld", "日本語", string([]byte{0, 1, 2})} {
		var got string
		roundTrip(t, v, &got)
		if got != v {
			t.Errorf("round trip %q: got %q", v, got)
		}
	}
}

func TestRoundTripBools(t *testing.T) {
	var got bool
	roundTrip(t, true, &got)
	if !got {
		t.Error("true did not survive")
	}
	roundTrip(t, false, &got)
	if got {
		t.Error("false did not survive")
	}
}

func TestRoundTripSlices(t *testing.T) {
	in := []int{1, 2, 3}
	var got []int
	roundTrip(t, in, &got)
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("slice mismatch (-want +got):\n%s", diff)
	}

	var empty []string
	roundTrip(t, []string{}, &empty)
	if len(empty) != 0 {
		t.Errorf("empty slice came back with %d elements", len(empty))
	}
}

func TestRoundTripTuple(t *testing.T) {
	in := Tuple{int64(1), "two", true}
	var got []interface{}
	roundTrip(t, in, &got)
	want := []interface{}{int64(1), "two", true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tuple mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripMap(t *testing.T) {
	in := map[string]int64{"a": 1, "b": -2}
	var got map[string]int64
	roundTrip(t, in, &got)
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("map mismatch (-want +got):\n%s", diff)
	}
}

type record struct {
	ID    uint64  `json:"id"`
	Name  string  `json:"name"`
	Nick  *string `json:"nick,omitempty"`
	Roles []int   `json:"roles,omitempty"`
	Muted bool    `json:"muted"`
}

func TestRoundTripRecord(t *testing.T) {
	nick := "neo"
	in := record{ID: 42, Name: "anderson", Nick: &nick, Roles: []int{1, 2}, Muted: true}
	var got record
	roundTrip(t, in, &got)
	if diff := cmp.Diff(in, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	// Absent optional fields stay at their defaults.
	in2 := record{ID: 7, Name: "smith"}
	var got2 record
	roundTrip(t, in2, &got2)
	if got2.Nick != nil {
		t.Errorf("absent nick decoded as %q", *got2.Nick)
	}
	if len(got2.Roles) != 0 {
		t.Errorf("absent roles decoded as %v", got2.Roles)
	}
}

func TestDecodeUnknownFieldsSkipped(t *testing.T) {
	data, err := Marshal(map[string]interface{}{
		"id":      uint64(9),
		"unknown": []int{1, 2, 3},
		"name":    "x",
	})
	if err != nil {
		t.Fatal(err)
	}
	var got record
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ID != 9 || got.Name != "x" {
		t.Errorf("got %+v", got)
	}
}

func TestGoldenAtom(t *testing.T) {
	data, err := Marshal(Atom("Hello World"))
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte{131, 115, 0x0B}, "Hello World"...)
	if !bytes.Equal(data, want) {
		t.Errorf("atom golden mismatch:\n got % X\nwant % X", data, want)
	}
}

func TestGoldenBooleans(t *testing.T) {
	data, _ := Marshal(true)
	want := append([]byte{131, 115, 4}, "true"...)
	if !bytes.Equal(data, want) {
		t.Errorf("true golden mismatch: got % X want % X", data, want)
	}
	data, _ = Marshal(false)
	want = append([]byte{131, 115, 5}, "false"...)
	if !bytes.Equal(data, want) {
		t.Errorf("false golden mismatch: got % X want % X", data, want)
	}
}

func TestGoldenFloat(t *testing.T) {
	data, _ := Marshal(1.5)
	want := []byte{131, 70, 0x3F, 0xF8, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(data, want) {
		t.Errorf("float golden mismatch: got % X want % X", data, want)
	}
}

func TestGoldenSmallInt(t *testing.T) {
	data, _ := Marshal(200)
	want := []byte{131, 97, 200}
	if !bytes.Equal(data, want) {
		t.Errorf("small int golden mismatch: got % X want % X", data, want)
	}
}

func TestFixedBufferRejectsOverflow(t *testing.T) {
	b := NewFixedBuffer(4)
	e := NewEncoder(b)
	if err := e.Encode("this does not fit"); !errors.Is(err, ErrBufferResize) {
		t.Fatalf("want ErrBufferResize, got %v", err)
	}
	// The failing step must not corrupt what was already written: only
	// the version byte and binary tag fit before the length header.
	for _, c := range b.Bytes() {
		if c != 131 && c != TagBinary {
			t.Errorf("unexpected byte %d in buffer after failed encode", c)
		}
	}

	ok := NewFixedBuffer(32)
	if err := NewEncoder(ok).Encode("fits"); err != nil {
		t.Fatalf("encode within capacity: %v", err)
	}
	var got string
	if err := Unmarshal(ok.Bytes(), &got); err != nil || got != "fits" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestDecodeErrors(t *testing.T) {
	var v interface{}
	if err := Unmarshal([]byte{42, 97, 1}, &v); !errors.Is(err, ErrBadVersion) {
		t.Errorf("bad version: got %v", err)
	}
	if err := Unmarshal([]byte{131, 200}, &v); err == nil {
		t.Error("bad tag: want error")
	} else {
		var bad *BadTagError
		if !errors.As(err, &bad) || bad.Tag != 200 {
			t.Errorf("bad tag: got %v", err)
		}
	}
	if err := Unmarshal([]byte{131, 109, 0, 0, 0, 10, 'x'}, &v); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("truncated binary: got %v", err)
	}
	var small int8
	if err := Unmarshal(mustMarshal(t, 1000), &small); !errors.Is(err, ErrRange) {
		t.Errorf("narrow target: got %v", err)
	}
	var u uint64
	if err := Unmarshal(mustMarshal(t, -1), &u); !errors.Is(err, ErrRange) {
		t.Errorf("negative into unsigned: got %v", err)
	}
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestWideningAcrossTags(t *testing.T) {
	// A value encoded as small-big must decode into int64 targets.
	b := NewBuffer()
	e := NewEncoder(b)
	if err := b.writeByte(Version); err != nil {
		t.Fatal(err)
	}
	if err := e.writeBig(0, 300); err != nil {
		t.Fatal(err)
	}
	var got int64
	if err := Unmarshal(b.Bytes(), &got); err != nil || got != 300 {
		t.Fatalf("got %d, %v", got, err)
	}
}

func TestTextualTolerance(t *testing.T) {
	// An atom decodes into a string target.
	var s string
	if err := Unmarshal(mustMarshal(t, Atom("online")), &s); err != nil || s != "online" {
		t.Fatalf("atom into string: %q, %v", s, err)
	}
	// The legacy string tag decodes into a string target.
	payload := append([]byte{131, TagString, 0, 2}, "ok"...)
	if err := Unmarshal(payload, &s); err != nil || s != "ok" {
		t.Fatalf("string tag into string: %q, %v", s, err)
	}
	// The nil tag decodes into an empty string.
	if err := Unmarshal([]byte{131, TagNil}, &s); err != nil || s != "" {
		t.Fatalf("nil into string: %q, %v", s, err)
	}
}

func TestParseTerm(t *testing.T) {
	data := mustMarshal(t, map[string]interface{}{
		"op": 0,
		"t":  "MESSAGE_CREATE",
		"d":  map[string]interface{}{"id": uint64(123)},
	})
	term, err := ParseTerm(data)
	if err != nil {
		t.Fatal(err)
	}
	if term.Tag != TagMap || len(term.Pairs) != 3 {
		t.Fatalf("unexpected root term: tag=%d pairs=%d", term.Tag, len(term.Pairs))
	}
	op, ok := term.Get("op")
	if !ok {
		t.Fatal("no op key")
	}
	if v, err := op.Int64(); err != nil || v != 0 {
		t.Errorf("op = %d, %v", v, err)
	}
	evt, _ := term.Get("t")
	if evt.Text() != "MESSAGE_CREATE" {
		t.Errorf("t = %q", evt.Text())
	}

	// A nested term cut out by offsets decodes standalone.
	d, ok := term.Get("d")
	if !ok {
		t.Fatal("no d key")
	}
	raw := append([]byte{Version}, data[d.Start:d.End]...)
	var inner struct {
		ID uint64 `json:"id"`
	}
	if err := Unmarshal(raw, &inner); err != nil || inner.ID != 123 {
		t.Fatalf("nested decode: %+v, %v", inner, err)
	}
}
