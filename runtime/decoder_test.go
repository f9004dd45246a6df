package cbor_test

import (
	"bytes"
	"errors"
	"io"
	"math"
	"reflect"
	"strings"
	"testing"

	cbor "github.com/synadia-labs/cborval/runtime"
)

func TestDecodeScalars(t *testing.T) {
	cases := []struct {
		hexIn string
		want  any
	}{
		{"00", uint64(0)},
		{"01", uint64(1)},
		{"17", uint64(23)},
		{"1818", uint64(24)},
		{"1bffffffffffffffff", uint64(math.MaxUint64)},
		{"20", int64(-1)},
		{"3903e7", int64(-1000)},
		{"f4", false},
		{"f5", true},
		{"f6", nil},
		{"f7", cbor.Undefined},
		{"f0", cbor.SimpleValue(16)},
		{"f8ff", cbor.SimpleValue(255)},
		{"f818", cbor.SimpleValue(24)},
		{"f800", cbor.SimpleValue(0)},
		{"60", ""},
		{"6449455446", "IETF"},
		{"40", []byte{}},
		{"4401020304", []byte{1, 2, 3, 4}},
		{"f93c00", 1.0},
		{"f93e00", 1.5},
		{"fa47c35000", 100000.0},
		{"fb7e37e43c8800759c", 1e300},
		{"f97c00", math.Inf(1)},
		{"f9fc00", math.Inf(-1)},
	}
	for _, tc := range cases {
		got := mustUnmarshal(t, mustHex(t, tc.hexIn), cbor.DecOptions{})
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("decode(%s) = %#v, want %#v", tc.hexIn, got, tc.want)
		}
	}

	if v := mustUnmarshal(t, mustHex(t, "f97e00"), cbor.DecOptions{}); !math.IsNaN(v.(float64)) {
		t.Errorf("decode(f97e00) = %v, want NaN", v)
	}
}

func TestDecodeNonCanonicalHeadersAccepted(t *testing.T) {
	// Decoders accept any sufficient header width.
	for _, h := range []string{"1800", "190001", "1a00000001", "1b0000000000000001"} {
		got := mustUnmarshal(t, mustHex(t, h), cbor.DecOptions{})
		want := uint64(0)
		if h != "1800" {
			want = 1
		}
		if got != want {
			t.Errorf("decode(%s) = %v, want %v", h, got, want)
		}
	}
}

func TestDecodeContainers(t *testing.T) {
	got := mustUnmarshal(t, mustHex(t, "83010203"), cbor.DecOptions{})
	if !reflect.DeepEqual(got, []any{uint64(1), uint64(2), uint64(3)}) {
		t.Fatalf("array decode = %#v", got)
	}

	m := mustUnmarshal(t, mustHex(t, "a26161016162820203"), cbor.DecOptions{}).(*cbor.Map)
	if m.Len() != 2 {
		t.Fatalf("map length %d", m.Len())
	}
	if v, ok := m.Get("a"); !ok || v != uint64(1) {
		t.Fatalf(`m["a"] = %v`, v)
	}
	if v, ok := m.Get("b"); !ok || !reflect.DeepEqual(v, []any{uint64(2), uint64(3)}) {
		t.Fatalf(`m["b"] = %v`, v)
	}
}

func TestDecodeIndefiniteLength(t *testing.T) {
	if v := mustUnmarshal(t, mustHex(t, "5f42010243030405ff"), cbor.DecOptions{}); !reflect.DeepEqual(v, []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("indefinite bytes = %v", v)
	}
	if v := mustUnmarshal(t, mustHex(t, "7f657374726561646d696e67ff"), cbor.DecOptions{}); v != "streaming" {
		t.Fatalf("indefinite text = %v", v)
	}
	want := []any{uint64(1), []any{uint64(2), uint64(3)}, []any{uint64(4), uint64(5)}}
	if v := mustUnmarshal(t, mustHex(t, "9f018202039f0405ffff"), cbor.DecOptions{}); !reflect.DeepEqual(v, want) {
		t.Fatalf("indefinite array = %v", v)
	}
	m := mustUnmarshal(t, mustHex(t, "bf61610161629f0203ffff"), cbor.DecOptions{}).(*cbor.Map)
	if v, _ := m.Get("b"); !reflect.DeepEqual(v, []any{uint64(2), uint64(3)}) {
		t.Fatalf("indefinite map value = %v", v)
	}
}

func TestDecodeMapOrderAndDuplicates(t *testing.T) {
	// Insertion order of first appearance survives; the last duplicate
	// value wins.
	m := mustUnmarshal(t, mustHex(t, "a3616202616101616203"), cbor.DecOptions{}).(*cbor.Map)
	if m.Len() != 2 {
		t.Fatalf("map length %d", m.Len())
	}
	pairs := m.Pairs()
	if pairs[0].Key != "b" || pairs[1].Key != "a" {
		t.Fatalf("key order %v, %v", pairs[0].Key, pairs[1].Key)
	}
	if v, _ := m.Get("b"); v != uint64(3) {
		t.Fatalf("duplicate key value = %v", v)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []string{
		"ff",       // stray break
		"81ff",     // break inside definite array
		"a1ff",     // break in place of a map key
		"f814",     // two-byte form of false
		"f817",     // two-byte form of undefined
		"f81f",     // two-byte form of the break stop code
		"fe",       // reserved additional information 30
		"5f4101",   // unterminated indefinite bytes
		"5f6161ff", // text chunk inside indefinite bytes
	}
	for _, h := range cases {
		_, err := cbor.Unmarshal(mustHex(t, h), cbor.DecOptions{})
		if err == nil {
			t.Errorf("decode(%s) succeeded, want error", h)
			continue
		}
		if !errors.Is(err, cbor.ErrDecode) {
			t.Errorf("decode(%s) error %v does not match ErrDecode", h, err)
		}
	}
}

func TestDecodeEOF(t *testing.T) {
	for _, h := range []string{"", "19", "1a0000", "62", "8201", "a161"} {
		_, err := cbor.Unmarshal(mustHex(t, h), cbor.DecOptions{})
		if err == nil {
			t.Errorf("decode(%s) succeeded, want EOF error", h)
			continue
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) || !errors.Is(err, cbor.ErrDecode) {
			t.Errorf("decode(%s) error %v does not match EOF families", h, err)
		}
	}
}

func TestDecodeDepthLimit(t *testing.T) {
	nested := func(depth int) []byte {
		b := bytes.Repeat([]byte{0x81}, depth)
		return append(b, 0x00)
	}
	if _, err := cbor.Unmarshal(nested(4), cbor.DecOptions{MaxDepth: 5}); err != nil {
		t.Fatalf("depth 4 failed under limit 5: %v", err)
	}
	_, err := cbor.Unmarshal(nested(5), cbor.DecOptions{MaxDepth: 5})
	if err == nil || !errors.Is(err, cbor.ErrDecode) {
		t.Fatalf("depth 5 under limit 5: %v", err)
	}
	// The default limit handles realistic nesting.
	if _, err := cbor.Unmarshal(nested(500), cbor.DecOptions{}); err != nil {
		t.Fatalf("depth 500 failed under default limit: %v", err)
	}
}

func TestStrErrorsPolicy(t *testing.T) {
	bad := mustHex(t, "62c328")

	if _, err := cbor.Unmarshal(bad, cbor.DecOptions{}); err == nil || !errors.Is(err, cbor.ErrDecode) {
		t.Fatalf("strict mode error = %v", err)
	}
	if v := mustUnmarshal(t, bad, cbor.DecOptions{StrErrors: cbor.StrErrorsReplace}); v != "�(" {
		t.Fatalf("replace mode = %q", v)
	}
	if v := mustUnmarshal(t, bad, cbor.DecOptions{StrErrors: cbor.StrErrorsIgnore}); v != "(" {
		t.Fatalf("ignore mode = %q", v)
	}
}

func TestTagHook(t *testing.T) {
	var seen cbor.Tag
	opts := cbor.DecOptions{
		TagHook: func(d *cbor.Decoder, tag cbor.Tag) (any, error) {
			seen = tag
			return "hooked", nil
		},
	}
	v := mustUnmarshal(t, mustHex(t, "d86a01"), opts)
	if v != "hooked" {
		t.Fatalf("hook result = %v", v)
	}
	if seen.Number != 106 || seen.Content != uint64(1) {
		t.Fatalf("hook saw %v", seen)
	}

	// Without a hook the tag surfaces opaquely.
	v = mustUnmarshal(t, mustHex(t, "d86a01"), cbor.DecOptions{})
	if tag, ok := v.(cbor.Tag); !ok || tag.Number != 106 {
		t.Fatalf("opaque tag = %v", v)
	}
}

func TestObjectHook(t *testing.T) {
	opts := cbor.DecOptions{
		ObjectHook: func(d *cbor.Decoder, m *cbor.Map) (any, error) {
			return m.Len(), nil
		},
	}
	v := mustUnmarshal(t, mustHex(t, "a26161016162820203"), opts)
	if v != 2 {
		t.Fatalf("object hook result = %v", v)
	}
}

func TestImmutableContexts(t *testing.T) {
	// A map used as a map key is frozen.
	m := mustUnmarshal(t, mustHex(t, "a1a161610102"), cbor.DecOptions{}).(*cbor.Map)
	key := m.Pairs()[0].Key.(*cbor.Map)
	if !key.Frozen() {
		t.Fatal("map key not frozen")
	}
	if err := key.Set("x", 1); err == nil {
		t.Fatal("frozen map accepted Set")
	}
	// The outer map stays mutable.
	if m.Frozen() {
		t.Fatal("outer map frozen")
	}
}

func TestReadahead(t *testing.T) {
	payload := mustMarshal(t, []any{strings.Repeat("x", 10000), 42}, cbor.EncOptions{})
	for _, readSize := range []int{0, 7, 64, -1} {
		d, err := cbor.NewDecoder(bytes.NewReader(payload), cbor.DecOptions{ReadSize: readSize})
		if err != nil {
			t.Fatal(err)
		}
		v, err := d.Decode()
		if err != nil {
			t.Fatalf("ReadSize %d: %v", readSize, err)
		}
		arr := v.([]any)
		if arr[0] != strings.Repeat("x", 10000) || arr[1] != uint64(42) {
			t.Fatalf("ReadSize %d: wrong value", readSize)
		}
	}
}

func TestDecoderSequentialItems(t *testing.T) {
	var buf bytes.Buffer
	e, err := cbor.NewEncoder(&buf, cbor.EncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []any{1, "two", []any{3}} {
		if err := e.Encode(v); err != nil {
			t.Fatal(err)
		}
	}
	d, err := cbor.NewDecoder(&buf, cbor.DecOptions{ReadSize: -1})
	if err != nil {
		t.Fatal(err)
	}
	want := []any{uint64(1), "two", []any{uint64(3)}}
	for i, w := range want {
		v, err := d.Decode()
		if err != nil {
			t.Fatalf("item %d: %v", i, err)
		}
		if !reflect.DeepEqual(v, w) {
			t.Fatalf("item %d = %v", i, v)
		}
	}
	if _, err := d.Decode(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("end of sequence error = %v", err)
	}
}

func TestSelfDescribedCBOR(t *testing.T) {
	if v := mustUnmarshal(t, mustHex(t, "d9d9f701"), cbor.DecOptions{}); v != uint64(1) {
		t.Fatalf("self-describe passthrough = %v", v)
	}
}
