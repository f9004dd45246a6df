package cbor_test

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"
	"time"

	cbor "github.com/synadia-labs/cborval/runtime"
)

func TestEncodeScalars(t *testing.T) {
	cases := []struct {
		value   any
		wantHex string
	}{
		{uint64(0), "00"},
		{1, "01"},
		{10, "0a"},
		{-1, "20"},
		{-1000, "3903e7"},
		{false, "f4"},
		{true, "f5"},
		{nil, "f6"},
		{cbor.Undefined, "f7"},
		{cbor.SimpleValue(16), "f0"},
		{cbor.SimpleValue(24), "f818"},
		{cbor.SimpleValue(255), "f8ff"},
		{[]byte{}, "40"},
		{[]byte{1, 2, 3, 4}, "4401020304"},
		{"", "60"},
		{"IETF", "6449455446"},
		{"\"\\", "62225c"},
		{"ü", "62c3bc"},
	}
	for _, tc := range cases {
		checkHex(t, mustMarshal(t, tc.value, cbor.EncOptions{}), tc.wantHex)
	}
}

func TestEncodeContainers(t *testing.T) {
	checkHex(t, mustMarshal(t, []any{1, 2, 3}, cbor.EncOptions{}), "83010203")
	checkHex(t, mustMarshal(t, []any{}, cbor.EncOptions{}), "80")

	canonical := cbor.EncOptions{Canonical: true}
	m := map[string]any{"a": 1, "b": []any{2, 3}}
	checkHex(t, mustMarshal(t, m, canonical), "a26161016162820203")

	// Insertion order is preserved without canonical mode.
	om := cbor.NewMap()
	if err := om.Set("b", 2); err != nil {
		t.Fatal(err)
	}
	if err := om.Set("a", 1); err != nil {
		t.Fatal(err)
	}
	checkHex(t, mustMarshal(t, om, cbor.EncOptions{}), "a2616202616101")
	checkHex(t, mustMarshal(t, om, canonical), "a2616101616202")
}

func TestEncodeTaggedDatetime(t *testing.T) {
	inner := cbor.Tag{Number: 0, Content: "2013-03-21T20:04:00Z"}
	got := mustMarshal(t, cbor.Tag{Number: 55799, Content: inner}, cbor.EncOptions{})
	checkHex(t, got, "d9d9f7c074323031332d30332d32315432303a30343a30305a")

	when := time.Date(2013, 3, 21, 20, 4, 0, 0, time.UTC)
	checkHex(t, mustMarshal(t, when, cbor.EncOptions{}),
		"c074323031332d30332d32315432303a30343a30305a")
	checkHex(t, mustMarshal(t, when, cbor.EncOptions{DatetimeAsTimestamp: true}),
		"c11a514b67b0")

	frac := time.Date(2013, 3, 21, 20, 4, 0, 500_000_000, time.UTC)
	checkHex(t, mustMarshal(t, frac, cbor.EncOptions{DatetimeAsTimestamp: true}),
		"c1fb41d452d9ec200000")
	checkHex(t, mustMarshal(t, frac, cbor.EncOptions{}),
		"c0781b323031332d30332d32315432303a30343a30302e3530303030305a")
}

func TestEncodeDate(t *testing.T) {
	d := cbor.Date{Year: 2013, Month: time.March, Day: 21}
	checkHex(t, mustMarshal(t, d, cbor.EncOptions{}), "d903ec6a323031332d30332d3231")

	got := mustMarshal(t, d, cbor.EncOptions{DateAsDatetime: true})
	checkHex(t, got, "c074323031332d30332d32315430303a30303a30305a")
}

func TestCanonicalKeyOrder(t *testing.T) {
	// RFC 8949 section 4.2.1: keys sort by the bytewise lexicographic
	// order of their canonical encodings.
	m := cbor.NewMap()
	for _, kv := range []cbor.MapPair{
		{Key: false, Value: 6},
		{Key: []any{100}, Value: 5},
		{Key: "z", Value: 4},
		{Key: -1, Value: 3},
		{Key: 100, Value: 2},
		{Key: 10, Value: 1},
	} {
		if err := m.Set(kv.Key, kv.Value); err != nil {
			t.Fatal(err)
		}
	}
	got := mustMarshal(t, m, cbor.EncOptions{Canonical: true})
	checkHex(t, got, "a60a011864022003617a0481186405f406")
}

func TestIndefiniteContainers(t *testing.T) {
	opts := cbor.EncOptions{IndefiniteContainers: true}
	checkHex(t, mustMarshal(t, []any{1, 2}, opts), "9f0102ff")
	checkHex(t, mustMarshal(t, "hi", opts), "7f626869ff")
	checkHex(t, mustMarshal(t, []byte{1}, opts), "5f4101ff")

	m := cbor.NewMap()
	if err := m.Set("a", 1); err != nil {
		t.Fatal(err)
	}
	checkHex(t, mustMarshal(t, m, opts), "bf616101ff")

	// Round trip through the decoder.
	v := mustUnmarshal(t, mustMarshal(t, []any{uint64(1), "ab"}, opts), cbor.DecOptions{})
	if !reflect.DeepEqual(v, []any{uint64(1), "ab"}) {
		t.Fatalf("indefinite round trip gave %v", v)
	}
}

func TestInvalidOptionCombinations(t *testing.T) {
	if _, err := cbor.NewEncoder(io.Discard, cbor.EncOptions{Canonical: true, IndefiniteContainers: true}); err == nil {
		t.Fatal("canonical + indefinite containers accepted")
	}
	if _, err := cbor.NewEncoder(io.Discard, cbor.EncOptions{StringReferencing: true, IndefiniteContainers: true}); err == nil {
		t.Fatal("string referencing + indefinite containers accepted")
	}
}

func TestEncodeTypeErrors(t *testing.T) {
	type opaque struct{ n int }
	_, err := cbor.Marshal(opaque{1}, cbor.EncOptions{})
	if err == nil {
		t.Fatal("expected encode error for unsupported type")
	}
	if !errors.Is(err, cbor.ErrEncode) {
		t.Fatalf("error %v does not match ErrEncode", err)
	}
	var te *cbor.EncodeTypeError
	if !errors.As(err, &te) {
		t.Fatalf("error %v is not an EncodeTypeError", err)
	}

	if _, err := cbor.Marshal(cbor.SimpleValue(31), cbor.EncOptions{}); err == nil {
		t.Fatal("break stop code as a simple value accepted")
	}
	if _, err := cbor.Marshal("\xc3\x28", cbor.EncOptions{}); err == nil {
		t.Fatal("invalid UTF-8 text accepted")
	}
}

func TestEncodeFallback(t *testing.T) {
	type opaque struct{ n int }
	opts := cbor.EncOptions{
		Default: func(e *cbor.Encoder, v any) error {
			return e.Emit(fmt.Sprintf("opaque:%d", v.(opaque).n))
		},
	}
	got := mustMarshal(t, opaque{7}, opts)
	checkHex(t, got, "686f70617175653a37")
}

func TestUserEncoderExactTypeOnly(t *testing.T) {
	type base struct{ n int }
	type derived struct{ base }

	opts := cbor.EncOptions{
		Encoders: map[reflect.Type]cbor.EncodeFunc{
			reflect.TypeOf(base{}): func(e *cbor.Encoder, v any) error {
				return e.Emit(int64(v.(base).n))
			},
		},
	}
	checkHex(t, mustMarshal(t, base{5}, opts), "05")

	// No subtype lookup: the embedding type stays unencodable.
	if _, err := cbor.Marshal(derived{base{5}}, opts); err == nil {
		t.Fatal("embedded type matched a user encoder")
	}
}

func TestUserEncoderOverridesBuiltin(t *testing.T) {
	opts := cbor.EncOptions{
		Encoders: map[reflect.Type]cbor.EncodeFunc{
			reflect.TypeOf(""): func(e *cbor.Encoder, v any) error {
				return e.EmitTagged(4711, len(v.(string)))
			},
		},
	}
	got := mustMarshal(t, "abcd", opts)
	checkHex(t, got, "d9126704")
}

func TestEncoderStreamsToSink(t *testing.T) {
	var sink writeRecorder
	e, err := cbor.NewEncoder(&sink, cbor.EncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Encode([]any{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := e.Encode("x"); err != nil {
		t.Fatal(err)
	}
	if got := hex.EncodeToString(sink.data); got != "830102036178" {
		t.Fatalf("sink content %s", got)
	}
	// Nothing is flushed for a failed encode.
	before := len(sink.data)
	if err := e.Encode(make(chan int)); err == nil {
		t.Fatal("expected error")
	}
	if len(sink.data) != before {
		t.Fatal("failed encode leaked bytes to the sink")
	}
}

type writeRecorder struct {
	data []byte
}

func (w *writeRecorder) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}
