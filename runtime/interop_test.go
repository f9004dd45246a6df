package cbor_test

import (
	"bytes"
	"math"
	"reflect"
	"testing"

	fxcbor "github.com/fxamacker/cbor/v2"
	cbor "github.com/synadia-labs/cborval/runtime"
)

// Canonical output is cross-checked against an independent CBOR
// implementation configured for RFC 8949 core deterministic encoding.
func TestCanonicalInteropWithFxamacker(t *testing.T) {
	em, err := fxcbor.CoreDetEncOptions().EncMode()
	if err != nil {
		t.Fatal(err)
	}

	values := []any{
		uint64(0),
		uint64(23),
		uint64(24),
		uint64(1000000),
		int64(-1),
		int64(-1000),
		"IETF",
		"",
		[]byte{1, 2, 3},
		[]any{uint64(1), []any{uint64(2), uint64(3)}},
		map[string]any{"a": uint64(1), "b": uint64(2), "aa": uint64(3)},
		true,
		false,
		nil,
		float64(0),
		float64(1.5),
		float64(65504),
		float64(100000),
		float64(1e300),
		math.Inf(1),
		math.NaN(),
	}
	for _, v := range values {
		mine, err := cbor.Marshal(v, cbor.EncOptions{Canonical: true})
		if err != nil {
			t.Errorf("Marshal(%v): %v", v, err)
			continue
		}
		theirs, err := em.Marshal(v)
		if err != nil {
			t.Errorf("reference Marshal(%v): %v", v, err)
			continue
		}
		if !bytes.Equal(mine, theirs) {
			t.Errorf("canonical encoding of %v differs: mine %x, reference %x", v, mine, theirs)
		}
	}
}

// The reference implementation must be able to read what this package
// writes with default options.
func TestDefaultOutputReadableByFxamacker(t *testing.T) {
	payload := map[string]any{
		"numbers": []any{uint64(1), uint64(2), uint64(3)},
		"flag":    true,
		"blob":    []byte{0xde, 0xad},
	}
	mine := mustMarshal(t, payload, cbor.EncOptions{})
	var back map[string]any
	if err := fxcbor.Unmarshal(mine, &back); err != nil {
		t.Fatalf("reference decoder rejected output: %v", err)
	}
	if back["flag"] != true {
		t.Fatalf("reference decode = %v", back)
	}
}

// And this package must read what the reference implementation writes.
func TestFxamackerOutputDecodable(t *testing.T) {
	theirs, err := fxcbor.Marshal([]any{uint64(7), "x", []byte{1}})
	if err != nil {
		t.Fatal(err)
	}
	v := mustUnmarshal(t, theirs, cbor.DecOptions{})
	want := []any{uint64(7), "x", []byte{1}}
	if !reflect.DeepEqual(v, want) {
		t.Fatalf("decode of reference output = %v", v)
	}
}
