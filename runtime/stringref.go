package cbor

// String references (tags 25 and 256) replace repeated byte and text
// strings with compact indices into a per-namespace table. A namespace is
// opened by tag 256 and covers its entire child item; tag 25 wraps an
// index into the table of the innermost open namespace.

// stringRefEligible reports whether a string of the given byte length is
// worth an entry when it would be assigned index nextIndex: the tag-25
// reference that index produces must be strictly shorter than re-emitting
// the string itself. Strings under 3 bytes never qualify.
func stringRefEligible(length int, nextIndex int64) bool {
	switch {
	case nextIndex < 24:
		return length >= 3
	case nextIndex < 256:
		return length >= 4
	case nextIndex < 65536:
		return length >= 5
	case nextIndex < 4294967296:
		return length >= 7
	default:
		return length >= 11
	}
}

// stringRefNamespace is the decode-side table: strings in registration
// order. Entries are string or []byte values.
type stringRefNamespace struct {
	strings []any
}

func (ns *stringRefNamespace) resolve(k uint64) (any, error) {
	if k >= uint64(len(ns.strings)) {
		return nil, decodeValueErr("string reference index out of range")
	}
	return ns.strings[k], nil
}

func (ns *stringRefNamespace) register(v any, length int) {
	if stringRefEligible(length, int64(len(ns.strings))) {
		ns.strings = append(ns.strings, v)
	}
}

// stringRefTable is the encode-side table: previously emitted strings
// mapped to their assigned indices. Text and byte strings occupy the same
// index space but are distinct keys.
type stringRefTable struct {
	text  map[string]uint64
	bin   map[string]uint64
	count int64
}

func newStringRefTable() *stringRefTable {
	return &stringRefTable{
		text: make(map[string]uint64),
		bin:  make(map[string]uint64),
	}
}

func (t *stringRefTable) lookupText(s string) (uint64, bool) {
	idx, ok := t.text[s]
	return idx, ok
}

func (t *stringRefTable) lookupBin(b []byte) (uint64, bool) {
	idx, ok := t.bin[string(b)]
	return idx, ok
}

func (t *stringRefTable) registerText(s string) {
	if stringRefEligible(len(s), t.count) {
		t.text[s] = uint64(t.count)
		t.count++
	}
}

func (t *stringRefTable) registerBin(b []byte) {
	if stringRefEligible(len(b), t.count) {
		t.bin[string(b)] = uint64(t.count)
		t.count++
	}
}
