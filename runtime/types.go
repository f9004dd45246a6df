package cbor

import (
	"math/big"
	"strconv"
	"time"
)

// Tag is an opaque semantic tag wrapping a single content item. The
// decoder produces Tag values for tag numbers it has no built-in handler
// for (unless a TagHook intercepts them); the encoder emits any Tag as
// the tag number followed by its content.
type Tag struct {
	Number  uint64
	Content any
}

// SimpleValue is a CBOR simple value (major type 7) outside the
// false/true/null/undefined literals. Values 0..23 encode in the initial
// byte (20..23 produce the corresponding literals); values 24..255 use
// the two-byte form. Value 31 is the break stop code and is rejected.
type SimpleValue uint8

// String implements fmt.Stringer
func (v SimpleValue) String() string { return "simple(" + strconv.Itoa(int(v)) + ")" }

// UndefinedValue is the type of Undefined.
type UndefinedValue struct{}

// Undefined is the CBOR "undefined" literal (major type 7, value 23).
var Undefined UndefinedValue

// String implements fmt.Stringer
func (UndefinedValue) String() string { return "undefined" }

// BreakValue is the type of Break.
type BreakValue struct{}

// Break is the stop code terminating indefinite-length items (0xff). It
// is encodable for callers producing indefinite streams by hand; the
// decoder never surfaces it.
var Break BreakValue

// DecimalFraction is a tag-4 decimal fraction: Mantissa * 10**Exponent.
type DecimalFraction struct {
	Exponent int64
	Mantissa *big.Int
}

// Bigfloat is a tag-5 binary fraction: Mantissa * 2**Exponent.
type Bigfloat struct {
	Exponent int64
	Mantissa *big.Int
}

// Date is a calendar date without a time or zone, the content of tags
// 100 and 1004.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight of the date in the given location.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// String formats the date as RFC 3339 full-date.
func (d Date) String() string {
	return d.Time(time.UTC).Format("2006-01-02")
}

// MIMEMessage is a parsed RFC 2822 message, the content of tag 36.
// Header order is not preserved; headers serialize sorted by name.
type MIMEMessage struct {
	Header map[string][]string
	Body   string
}

// MapPair is a single key/value entry of a Map.
type MapPair struct {
	Key   any
	Value any
}

// Map is an insertion-ordered CBOR map. Unlike native Go maps it accepts
// any encodable value as a key, including arrays, maps and tags: entries
// are keyed by the canonical encoding of the key, which also gives maps a
// well-defined equality for use inside sets and as keys themselves.
//
// The decoder produces a *Map for every map item. A map decoded in an
// immutable context (a map key, or set contents) is frozen; Set calls on
// a frozen map fail.
type Map struct {
	pairs  []MapPair
	index  map[string]int
	frozen bool
}

// NewMap returns an empty mutable Map.
func NewMap() *Map {
	return &Map{index: make(map[string]int)}
}

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.pairs) }

// Frozen reports whether the map was decoded in an immutable context.
func (m *Map) Frozen() bool { return m.frozen }

func (m *Map) freeze() { m.frozen = true }

// Set inserts or replaces the entry for key. Later writes to an existing
// key overwrite the value in place, keeping the key's original position.
func (m *Map) Set(key, value any) error {
	if m.frozen {
		return encodeValueErr("cannot modify a frozen map")
	}
	ck, err := canonicalBytes(key)
	if err != nil {
		return err
	}
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[string(ck)]; ok {
		m.pairs[i].Value = value
		return nil
	}
	m.index[string(ck)] = len(m.pairs)
	m.pairs = append(m.pairs, MapPair{Key: key, Value: value})
	return nil
}

// Get returns the value stored for key.
func (m *Map) Get(key any) (any, bool) {
	ck, err := canonicalBytes(key)
	if err != nil {
		return nil, false
	}
	i, ok := m.index[string(ck)]
	if !ok {
		return nil, false
	}
	return m.pairs[i].Value, true
}

// Pairs returns the entries in insertion order. The slice is shared;
// callers must not modify it.
func (m *Map) Pairs() []MapPair { return m.pairs }

// Set is an insertion-ordered CBOR set (tag 258). Like Map it admits any
// encodable value as an element, deduplicated by canonical encoding.
type Set struct {
	elems  []any
	index  map[string]struct{}
	frozen bool
}

// NewSet returns an empty mutable Set.
func NewSet() *Set {
	return &Set{index: make(map[string]struct{})}
}

// Len returns the number of elements.
func (s *Set) Len() int { return len(s.elems) }

// Frozen reports whether the set was decoded in an immutable context.
func (s *Set) Frozen() bool { return s.frozen }

func (s *Set) freeze() { s.frozen = true }

// Add inserts v unless an equal element is already present.
func (s *Set) Add(v any) error {
	if s.frozen {
		return encodeValueErr("cannot modify a frozen set")
	}
	ck, err := canonicalBytes(v)
	if err != nil {
		return err
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[string(ck)]; ok {
		return nil
	}
	s.index[string(ck)] = struct{}{}
	s.elems = append(s.elems, v)
	return nil
}

// Contains reports whether an element equal to v is present.
func (s *Set) Contains(v any) bool {
	ck, err := canonicalBytes(v)
	if err != nil {
		return false
	}
	_, ok := s.index[string(ck)]
	return ok
}

// Elems returns the elements in insertion order. The slice is shared;
// callers must not modify it.
func (s *Set) Elems() []any { return s.elems }

// sharedPlaceholder stands in for a shareable slot that has not been
// bound yet. It appears only transiently, when a shared reference targets
// a slot whose value is still decoding (an indefinite-length or very large
// array, a set, or an enclosing shareable), and is patched out when the
// slot binds.
type sharedPlaceholder struct {
	index int
}

// breakValue is the internal decode-side sentinel for the 0xff stop code.
type breakValue struct{}

var breakSentinel breakValue
