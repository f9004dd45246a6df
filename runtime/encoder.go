package cbor

import (
	"bytes"
	"io"
	"math"
	"math/big"
	"net/netip"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// EncodeFunc encodes one value by appending exactly one data item
// through the encoder.
type EncodeFunc func(e *Encoder, v any) error

// EncodeFallback is consulted for values whose type has no encoder. It
// must call back into the encoder to emit exactly one data item.
type EncodeFallback func(e *Encoder, v any) error

// EncOptions configures an Encoder.
type EncOptions struct {
	// DatetimeAsTimestamp encodes datetimes as tag 1 epoch numbers
	// instead of tag 0 RFC 3339 strings.
	DatetimeAsTimestamp bool
	// Timezone is the zone used when promoting dates to datetimes.
	Timezone *time.Location
	// ValueSharing enables tags 28/29 so repeated and cyclic containers
	// encode as references.
	ValueSharing bool
	// Default is the fallback for types without an encoder.
	Default EncodeFallback
	// Canonical enforces RFC 8949 deterministic encoding: shortest
	// headers, shortest floats, map keys sorted by encoded bytes.
	Canonical bool
	// DateAsDatetime promotes Date values to midnight datetimes.
	DateAsDatetime bool
	// StringReferencing enables tags 25/256, wrapping the root item in
	// a string-reference namespace.
	StringReferencing bool
	// IndefiniteContainers emits indefinite-length arrays, maps and
	// strings for streaming consumers. Incompatible with Canonical and
	// StringReferencing.
	IndefiniteContainers bool
	// Encoders maps exact types to user encoders, consulted before the
	// built-ins. There is no subtype lookup.
	Encoders map[reflect.Type]EncodeFunc
}

// containerKey identifies a container for value-sharing purposes.
type containerKey struct {
	ptr    uintptr
	length int
}

type containerEntry struct {
	index      int
	inProgress bool
}

// Encoder writes native values as CBOR data items to a byte sink. An
// Encoder is not safe for concurrent use; the shareable registry and
// string-reference table are consumed in strict sequence. Output for a
// top-level item is buffered and flushed to the sink only on success.
type Encoder struct {
	w    io.Writer
	buf  []byte
	opts EncOptions

	containers  map[containerKey]containerEntry
	sharedCount int
	strRefs     *stringRefTable
}

// NewEncoder returns an Encoder writing to w. Invalid option
// combinations are rejected here rather than at encode time.
func NewEncoder(w io.Writer, opts EncOptions) (*Encoder, error) {
	if opts.IndefiniteContainers && opts.Canonical {
		return nil, encodeValueErr("canonical encoding cannot use indefinite-length containers")
	}
	if opts.IndefiniteContainers && opts.StringReferencing {
		return nil, encodeValueErr("string referencing cannot use indefinite-length strings")
	}
	return &Encoder{w: w, opts: opts}, nil
}

// Marshal encodes v into a byte slice.
func Marshal(v any, opts EncOptions) ([]byte, error) {
	var out bytes.Buffer
	e, err := NewEncoder(&out, opts)
	if err != nil {
		return nil, err
	}
	if err := e.Encode(v); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Encode writes one data item for v to w.
func Encode(w io.Writer, v any, opts EncOptions) error {
	e, err := NewEncoder(w, opts)
	if err != nil {
		return err
	}
	return e.Encode(v)
}

// Encode writes one data item for v. The shareable registry and
// string-reference table are scoped to the call.
func (e *Encoder) Encode(v any) error {
	e.containers = nil
	e.sharedCount = 0
	e.strRefs = nil
	e.buf = e.buf[:0]
	if e.opts.StringReferencing {
		e.buf = AppendTag(e.buf, tagStringRefNamespace)
		e.strRefs = newStringRefTable()
	}
	if err := e.encode(v); err != nil {
		e.buf = e.buf[:0]
		return err
	}
	_, err := e.w.Write(e.buf)
	e.buf = e.buf[:0]
	return err
}

// Emit appends one data item for v to the in-progress encoding. It is
// the entry point for user encoders and the Default fallback, which must
// emit exactly one item per value they are handed.
func (e *Encoder) Emit(v any) error { return e.encode(v) }

// EmitTagged appends a tag head followed by one data item for v.
func (e *Encoder) EmitTagged(tag uint64, v any) error {
	e.buf = AppendTag(e.buf, tag)
	return e.encode(v)
}

func (e *Encoder) encode(v any) error {
	if e.opts.Encoders != nil && v != nil {
		if fn, ok := e.opts.Encoders[reflect.TypeOf(v)]; ok {
			return fn(e, v)
		}
	}
	switch x := v.(type) {
	case nil:
		e.buf = AppendNil(e.buf)
	case bool:
		e.buf = AppendBool(e.buf, x)
	case int:
		e.buf = AppendInt64(e.buf, int64(x))
	case int8:
		e.buf = AppendInt64(e.buf, int64(x))
	case int16:
		e.buf = AppendInt64(e.buf, int64(x))
	case int32:
		e.buf = AppendInt64(e.buf, int64(x))
	case int64:
		e.buf = AppendInt64(e.buf, x)
	case uint:
		e.buf = AppendUint64(e.buf, uint64(x))
	case uint8:
		e.buf = AppendUint64(e.buf, uint64(x))
	case uint16:
		e.buf = AppendUint64(e.buf, uint64(x))
	case uint32:
		e.buf = AppendUint64(e.buf, uint64(x))
	case uint64:
		e.buf = AppendUint64(e.buf, x)
	case float32:
		e.encodeFloat(float64(x))
	case float64:
		e.encodeFloat(x)
	case string:
		return e.encodeText(x)
	case []byte:
		return e.encodeBinary(x)
	case []any:
		return e.encodeArray(x)
	case *Map:
		if x == nil {
			e.buf = AppendNil(e.buf)
			return nil
		}
		return e.encodeMap(x)
	case map[string]any:
		return e.encodeStringMap(x)
	case *Set:
		if x == nil {
			e.buf = AppendNil(e.buf)
			return nil
		}
		return e.encodeSet(x)
	case Tag:
		e.buf = AppendTag(e.buf, x.Number)
		return e.encode(x.Content)
	case SimpleValue:
		if x == simpleBreak {
			return encodeValueErr("reserved simple value " + x.String())
		}
		e.buf = AppendSimpleValue(e.buf, uint8(x))
	case UndefinedValue:
		e.buf = AppendUndefined(e.buf)
	case BreakValue:
		e.buf = AppendBreak(e.buf)
	case *big.Int:
		if x == nil {
			e.buf = AppendNil(e.buf)
			return nil
		}
		e.buf = AppendBigInt(e.buf, x)
	case *big.Rat:
		if x == nil {
			e.buf = AppendNil(e.buf)
			return nil
		}
		e.encodeRational(x)
	case DecimalFraction:
		e.encodeDecimalFraction(x)
	case Bigfloat:
		e.encodeBigfloat(x)
	case time.Time:
		return e.encodeTime(x)
	case Date:
		return e.encodeDate(x)
	case uuid.UUID:
		e.buf = AppendTag(e.buf, tagUUID)
		return e.encodeBinary(x[:])
	case *regexp.Regexp:
		if x == nil {
			e.buf = AppendNil(e.buf)
			return nil
		}
		e.buf = AppendTag(e.buf, tagRegexp)
		return e.encodeText(x.String())
	case MIMEMessage:
		e.buf = AppendTag(e.buf, tagMIME)
		return e.encodeText(x.format())
	case netip.Addr:
		return e.encodeAddr(x)
	case netip.Prefix:
		return e.encodePrefix(x)
	case complex64:
		return e.encodeComplex(complex128(x))
	case complex128:
		return e.encodeComplex(x)
	default:
		if e.opts.Default != nil {
			return e.opts.Default(e, v)
		}
		return &EncodeTypeError{Type: reflect.TypeOf(v)}
	}
	return nil
}

func (e *Encoder) encodeFloat(f float64) {
	if e.opts.Canonical || math.IsNaN(f) || math.IsInf(f, 0) {
		e.buf = AppendFloatCanonical(e.buf, f)
		return
	}
	e.buf = AppendFloat64(e.buf, f)
}

func (e *Encoder) encodeText(s string) error {
	if !utf8.ValidString(s) {
		return encodeValueErr("text string is not valid UTF-8")
	}
	if e.strRefs != nil {
		if idx, ok := e.strRefs.lookupText(s); ok {
			e.buf = AppendTag(e.buf, tagStringRef)
			e.buf = AppendUint64(e.buf, idx)
			return nil
		}
		e.strRefs.registerText(s)
	}
	if e.opts.IndefiniteContainers {
		e.buf = AppendTextHeaderIndefinite(e.buf)
		if len(s) > 0 {
			e.buf = AppendString(e.buf, s)
		}
		e.buf = AppendBreak(e.buf)
		return nil
	}
	e.buf = AppendString(e.buf, s)
	return nil
}

func (e *Encoder) encodeBinary(b []byte) error {
	if e.strRefs != nil {
		if idx, ok := e.strRefs.lookupBin(b); ok {
			e.buf = AppendTag(e.buf, tagStringRef)
			e.buf = AppendUint64(e.buf, idx)
			return nil
		}
		e.strRefs.registerBin(b)
	}
	if e.opts.IndefiniteContainers {
		e.buf = AppendBytesHeaderIndefinite(e.buf)
		if len(b) > 0 {
			e.buf = AppendBytes(e.buf, b)
		}
		e.buf = AppendBreak(e.buf)
		return nil
	}
	e.buf = AppendBytes(e.buf, b)
	return nil
}

// identityKey derives a sharing identity for a container value. Values
// without stable identity (empty slices, scalars) are not shareable.
func identityKey(v any) (containerKey, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.UnsafePointer:
		return containerKey{ptr: rv.Pointer()}, true
	case reflect.Slice:
		if rv.Cap() == 0 {
			return containerKey{}, false
		}
		return containerKey{ptr: rv.Pointer(), length: rv.Len()}, true
	default:
		return containerKey{}, false
	}
}

// encodeShared wraps the emission of a container with value-sharing
// bookkeeping. With sharing enabled, the first emission writes tag 28
// and later emissions of the same identity write tag 29 plus the
// assigned index. With sharing disabled, revisiting a container that is
// still being emitted is a cycle and fails.
func (e *Encoder) encodeShared(key containerKey, hasIdentity bool, body func() error) error {
	if !hasIdentity {
		return body()
	}
	if ent, ok := e.containers[key]; ok {
		if e.opts.ValueSharing {
			e.buf = AppendTag(e.buf, tagSharedRef)
			e.buf = AppendUint64(e.buf, uint64(ent.index))
			return nil
		}
		if ent.inProgress {
			return encodeValueErr("cyclic data structure detected but value sharing is disabled")
		}
		return body()
	}
	if e.containers == nil {
		e.containers = make(map[containerKey]containerEntry)
	}
	if e.opts.ValueSharing {
		e.containers[key] = containerEntry{index: e.sharedCount}
		e.sharedCount++
		e.buf = AppendTag(e.buf, tagShareable)
		return body()
	}
	e.containers[key] = containerEntry{inProgress: true}
	err := body()
	delete(e.containers, key)
	return err
}

// Shareable wraps a user EncodeFunc with the same value-sharing
// bookkeeping the built-in container encoders use, so first emissions
// write tag 28 and repeats write tag 29.
func Shareable(fn EncodeFunc) EncodeFunc {
	return func(e *Encoder, v any) error {
		key, ok := identityKey(v)
		return e.encodeShared(key, ok, func() error { return fn(e, v) })
	}
}

func (e *Encoder) encodeArray(v []any) error {
	key, ok := identityKey(v)
	return e.encodeShared(key, ok, func() error {
		if e.opts.IndefiniteContainers {
			e.buf = AppendArrayHeaderIndefinite(e.buf)
			for _, item := range v {
				if err := e.encode(item); err != nil {
					return err
				}
			}
			e.buf = AppendBreak(e.buf)
			return nil
		}
		e.buf = AppendArrayHeader(e.buf, uint64(len(v)))
		for _, item := range v {
			if err := e.encode(item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Encoder) encodeMap(m *Map) error {
	key, ok := identityKey(m)
	return e.encodeShared(key, ok, func() error {
		return e.encodePairs(m.Pairs())
	})
}

func (e *Encoder) encodeStringMap(m map[string]any) error {
	key, ok := identityKey(m)
	return e.encodeShared(key, ok, func() error {
		pairs := make([]MapPair, 0, len(m))
		for k, v := range m {
			pairs = append(pairs, MapPair{Key: k, Value: v})
		}
		return e.encodePairs(pairs)
	})
}

func (e *Encoder) encodePairs(pairs []MapPair) error {
	if e.opts.Canonical {
		return e.encodeCanonicalPairs(pairs)
	}
	if e.opts.IndefiniteContainers {
		e.buf = AppendMapHeaderIndefinite(e.buf)
		for _, p := range pairs {
			if err := e.encode(p.Key); err != nil {
				return err
			}
			if err := e.encode(p.Value); err != nil {
				return err
			}
		}
		e.buf = AppendBreak(e.buf)
		return nil
	}
	e.buf = AppendMapHeader(e.buf, uint64(len(pairs)))
	for _, p := range pairs {
		if err := e.encode(p.Key); err != nil {
			return err
		}
		if err := e.encode(p.Value); err != nil {
			return err
		}
	}
	return nil
}

// encodeCanonicalPairs sorts entries by the canonical encoding of their
// keys. Each key is pre-encoded by a pristine sub-encoder for ordering
// and collision detection, then the pair is re-emitted through the live
// engine so sharing and string references stay bookkept.
func (e *Encoder) encodeCanonicalPairs(pairs []MapPair) error {
	type entry struct {
		keyEnc []byte
		pair   MapPair
	}
	items := make([]entry, len(pairs))
	for i, p := range pairs {
		kb, err := e.sortKeyBytes(p.Key)
		if err != nil {
			return err
		}
		items[i] = entry{keyEnc: kb, pair: p}
	}
	sort.Slice(items, func(i, j int) bool {
		return bytes.Compare(items[i].keyEnc, items[j].keyEnc) < 0
	})
	for i := 1; i < len(items); i++ {
		if bytes.Equal(items[i-1].keyEnc, items[i].keyEnc) {
			return encodeValueErr("duplicate map key in canonical encoding")
		}
	}
	e.buf = AppendMapHeader(e.buf, uint64(len(items)))
	for _, it := range items {
		if err := e.encode(it.pair.Key); err != nil {
			return err
		}
		if err := e.encode(it.pair.Value); err != nil {
			return err
		}
	}
	return nil
}

// sortKeyBytes canonically encodes a key in isolation: no sharing, no
// string references, no indefinite forms.
func (e *Encoder) sortKeyBytes(key any) ([]byte, error) {
	sub := &Encoder{opts: e.opts}
	sub.opts.Canonical = true
	sub.opts.ValueSharing = false
	sub.opts.StringReferencing = false
	sub.opts.IndefiniteContainers = false
	if err := sub.encode(key); err != nil {
		return nil, err
	}
	return sub.buf, nil
}

// canonicalBytes is the package-internal canonical encoding used as the
// identity of Map keys and Set elements.
func canonicalBytes(v any) ([]byte, error) {
	sub := &Encoder{opts: EncOptions{Canonical: true}}
	if err := sub.encode(v); err != nil {
		return nil, err
	}
	return sub.buf, nil
}

func (e *Encoder) encodeSet(s *Set) error {
	key, ok := identityKey(s)
	return e.encodeShared(key, ok, func() error {
		e.buf = AppendTag(e.buf, tagSet)
		elems := s.Elems()
		if e.opts.Canonical {
			type entry struct {
				enc  []byte
				elem any
			}
			items := make([]entry, len(elems))
			for i, el := range elems {
				eb, err := e.sortKeyBytes(el)
				if err != nil {
					return err
				}
				items[i] = entry{enc: eb, elem: el}
			}
			sort.Slice(items, func(i, j int) bool {
				return bytes.Compare(items[i].enc, items[j].enc) < 0
			})
			e.buf = AppendArrayHeader(e.buf, uint64(len(items)))
			for _, it := range items {
				if err := e.encode(it.elem); err != nil {
					return err
				}
			}
			return nil
		}
		if e.opts.IndefiniteContainers {
			e.buf = AppendArrayHeaderIndefinite(e.buf)
			for _, el := range elems {
				if err := e.encode(el); err != nil {
					return err
				}
			}
			e.buf = AppendBreak(e.buf)
			return nil
		}
		e.buf = AppendArrayHeader(e.buf, uint64(len(elems)))
		for _, el := range elems {
			if err := e.encode(el); err != nil {
				return err
			}
		}
		return nil
	})
}

// encodeTime emits tag 0 (RFC 3339 string) or tag 1 (epoch number)
// depending on DatetimeAsTimestamp. Sub-second precision is carried as
// microseconds in string form and as a float in timestamp form.
func (e *Encoder) encodeTime(t time.Time) error {
	if e.opts.DatetimeAsTimestamp {
		e.buf = AppendTag(e.buf, tagEpochDateTime)
		if t.Nanosecond() == 0 {
			e.buf = AppendInt64(e.buf, t.Unix())
			return nil
		}
		return e.encode(float64(t.Unix()) + float64(t.Nanosecond())/1e9)
	}
	e.buf = AppendTag(e.buf, tagDateTimeString)
	return e.encode(formatRFC3339(t))
}

func formatRFC3339(t time.Time) string {
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05Z07:00")
	}
	return t.Format("2006-01-02T15:04:05.000000Z07:00")
}

// encodeDate emits tag 1004 (RFC 3339 full-date), or promotes the date
// to midnight in the configured timezone when DateAsDatetime is set.
func (e *Encoder) encodeDate(d Date) error {
	if e.opts.DateAsDatetime {
		loc := e.opts.Timezone
		if loc == nil {
			loc = time.UTC
		}
		return e.encodeTime(d.Time(loc))
	}
	e.buf = AppendTag(e.buf, tagDateString)
	return e.encode(d.String())
}

// The number tags below never contain containers, so they bypass the
// sharing machinery and write through the framing codec directly.

func (e *Encoder) encodeDecimalFraction(v DecimalFraction) {
	e.buf = AppendTag(e.buf, tagDecimalFrac)
	e.buf = AppendArrayHeader(e.buf, 2)
	e.buf = AppendInt64(e.buf, v.Exponent)
	if v.Mantissa == nil {
		e.buf = AppendInt64(e.buf, 0)
		return
	}
	e.buf = AppendBigInt(e.buf, v.Mantissa)
}

func (e *Encoder) encodeBigfloat(v Bigfloat) {
	e.buf = AppendTag(e.buf, tagBigfloat)
	e.buf = AppendArrayHeader(e.buf, 2)
	e.buf = AppendInt64(e.buf, v.Exponent)
	if v.Mantissa == nil {
		e.buf = AppendInt64(e.buf, 0)
		return
	}
	e.buf = AppendBigInt(e.buf, v.Mantissa)
}

func (e *Encoder) encodeRational(v *big.Rat) {
	e.buf = AppendTag(e.buf, tagRational)
	e.buf = AppendArrayHeader(e.buf, 2)
	e.buf = AppendBigInt(e.buf, v.Num())
	e.buf = AppendBigInt(e.buf, v.Denom())
}

func (e *Encoder) encodeAddr(a netip.Addr) error {
	if !a.IsValid() {
		return encodeValueErr("invalid IP address")
	}
	if a.Is4() {
		e.buf = AppendTag(e.buf, tagIPv4)
		b := a.As4()
		return e.encodeBinary(b[:])
	}
	e.buf = AppendTag(e.buf, tagIPv6)
	b := a.As16()
	return e.encodeBinary(b[:])
}

// encodePrefix emits the RFC 9164 array form [prefix-length, bytes] with
// trailing zero octets elided.
func (e *Encoder) encodePrefix(p netip.Prefix) error {
	if !p.IsValid() {
		return encodeValueErr("invalid IP prefix")
	}
	addr := p.Addr()
	var raw []byte
	if addr.Is4() {
		e.buf = AppendTag(e.buf, tagIPv4)
		b := addr.As4()
		raw = b[:]
	} else {
		e.buf = AppendTag(e.buf, tagIPv6)
		b := addr.As16()
		raw = b[:]
	}
	for len(raw) > 0 && raw[len(raw)-1] == 0 {
		raw = raw[:len(raw)-1]
	}
	e.buf = AppendArrayHeader(e.buf, 2)
	e.buf = AppendInt64(e.buf, int64(p.Bits()))
	e.buf = AppendBytes(e.buf, raw)
	return nil
}

func (e *Encoder) encodeComplex(c complex128) error {
	e.buf = AppendTag(e.buf, tagComplex)
	e.buf = AppendArrayHeader(e.buf, 2)
	e.encodeFloat(real(c))
	e.encodeFloat(imag(c))
	return nil
}

// format serializes a MIMEMessage with headers sorted by name.
func (m MIMEMessage) format() string {
	var sb strings.Builder
	names := make([]string, 0, len(m.Header))
	for name := range m.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range m.Header[name] {
			sb.WriteString(name)
			sb.WriteString(": ")
			sb.WriteString(v)
			sb.WriteString("\r\n")
		}
	}
	sb.WriteString("\r\n")
	sb.WriteString(m.Body)
	return sb.String()
}
