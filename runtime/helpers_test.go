package cbor_test

import (
	"bytes"
	"encoding/hex"
	"testing"

	cbor "github.com/synadia-labs/cborval/runtime"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func mustMarshal(t *testing.T, v any, opts cbor.EncOptions) []byte {
	t.Helper()
	b, err := cbor.Marshal(v, opts)
	if err != nil {
		t.Fatalf("Marshal(%v) error: %v", v, err)
	}
	return b
}

func mustUnmarshal(t *testing.T, b []byte, opts cbor.DecOptions) any {
	t.Helper()
	v, err := cbor.Unmarshal(b, opts)
	if err != nil {
		t.Fatalf("Unmarshal(%s) error: %v", hex.EncodeToString(b), err)
	}
	return v
}

func checkHex(t *testing.T, got []byte, wantHex string) {
	t.Helper()
	if !bytes.Equal(got, mustHex(t, wantHex)) {
		t.Fatalf("encoding mismatch: got %s want %s", hex.EncodeToString(got), wantHex)
	}
}
