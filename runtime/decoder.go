package cbor

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/x448/float16"
)

// StrErrorMode selects how invalid UTF-8 in text strings is handled.
type StrErrorMode int

const (
	// StrErrorsStrict fails the decode with a DecodeValueError.
	StrErrorsStrict StrErrorMode = iota
	// StrErrorsReplace substitutes U+FFFD for each invalid run.
	StrErrorsReplace
	// StrErrorsIgnore drops invalid bytes.
	StrErrorsIgnore
)

// TagHook is invoked for every tag number without a built-in handler.
// The returned value replaces the Tag in the decoded output.
type TagHook func(d *Decoder, tag Tag) (any, error)

// ObjectHook is invoked for every decoded map. The returned value
// replaces the *Map in the decoded output.
type ObjectHook func(d *Decoder, m *Map) (any, error)

// Defaults for DecOptions zero values.
const (
	DefaultReadSize = 4096
	DefaultMaxDepth = 1000
)

// DecOptions configures a Decoder.
type DecOptions struct {
	TagHook    TagHook
	ObjectHook ObjectHook
	StrErrors  StrErrorMode
	// ReadSize is the readahead buffer size in bytes. Zero selects
	// DefaultReadSize; a negative value disables readahead so every
	// read goes straight to the source.
	ReadSize int
	// MaxDepth bounds decoder recursion. Zero selects DefaultMaxDepth.
	MaxDepth int
}

// unboundShareable marks an allocated but not yet bound shareable slot.
var unboundShareable any = &struct{}{}

// Decoder reads CBOR data items from a byte source and materializes them
// as native values. A Decoder is not safe for concurrent use; the
// shareable registry, string-reference namespaces and depth counter are
// consumed in strict sequence.
type Decoder struct {
	src  source
	opts DecOptions

	depth      int
	immutable  bool
	shareIndex int

	shareables   []any
	placeholders map[int]bool
	strNS        []*stringRefNamespace

	num [8]byte
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader, opts DecOptions) (*Decoder, error) {
	if opts.MaxDepth < 0 {
		return nil, decodeValueErr("MaxDepth must not be negative")
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Decoder{src: newSource(r, opts.ReadSize), opts: opts, shareIndex: -1}, nil
}

// Unmarshal decodes a single data item from data.
func Unmarshal(data []byte, opts DecOptions) (any, error) {
	d, err := NewDecoder(bytes.NewReader(data), opts)
	if err != nil {
		return nil, err
	}
	return d.Decode()
}

// Decode reads a single data item from r.
func Decode(r io.Reader, opts DecOptions) (any, error) {
	d, err := NewDecoder(r, opts)
	if err != nil {
		return nil, err
	}
	return d.Decode()
}

// Decode reads and returns the next top-level data item. The shareable
// registry and string-reference namespaces are scoped to the call.
func (d *Decoder) Decode() (any, error) {
	d.shareables = d.shareables[:0]
	d.placeholders = nil
	d.strNS = d.strNS[:0]
	d.shareIndex = -1
	d.immutable = false
	return d.decodeChild()
}

// DecodeFromBytes decodes one item from buf while sharing the live
// registries of the decoder. It is intended for use inside tag hooks
// when part of the document has been captured as an embedded byte
// string.
func (d *Decoder) DecodeFromBytes(buf []byte) (any, error) {
	old := d.src
	d.src = &directSource{r: bytes.NewReader(buf)}
	defer func() { d.src = old }()
	return d.decodeChild()
}

func (d *Decoder) readByte() (byte, error) {
	c, err := d.src.readByte()
	if err != nil {
		return 0, &DecodeEOFError{Wanted: 1}
	}
	return c, nil
}

// readN reads exactly n payload bytes. Allocation is chunked so a bogus
// huge length fails with an EOF error before exhausting memory.
func (d *Decoder) readN(n uint64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if n > math.MaxInt {
		return nil, decodeValueErr("length " + strconv.FormatUint(n, 10) + " exceeds platform capacity")
	}
	const chunk = 1 << 16
	remaining := int(n)
	buf := make([]byte, 0, min(remaining, chunk))
	for remaining > 0 {
		step := min(remaining, chunk)
		start := len(buf)
		buf = append(buf, make([]byte, step)...)
		got, err := d.src.readFull(buf[start:])
		if err != nil {
			return nil, &DecodeEOFError{Wanted: step, Got: got}
		}
		remaining -= step
	}
	return buf, nil
}

// decode reads one data item, which may be the break sentinel. Callers
// outside indefinite-length collection loops use decodeChild instead.
func (d *Decoder) decode() (any, error) {
	if d.depth >= d.opts.MaxDepth {
		return nil, decodeValueErr("maximum recursion depth exceeded")
	}
	d.depth++
	defer func() { d.depth-- }()

	ib, err := d.readByte()
	if err != nil {
		return nil, err
	}
	subtype := getAddInfo(ib)
	switch getMajorType(ib) {
	case majorTypeUint:
		u, _, err := d.decodeLength(subtype, false)
		return u, err
	case majorTypeNegInt:
		return d.decodeNegInt(subtype)
	case majorTypeBytes:
		return d.decodeBytestring(subtype)
	case majorTypeText:
		return d.decodeString(subtype)
	case majorTypeArray:
		return d.decodeArray(subtype)
	case majorTypeMap:
		return d.decodeMap(subtype)
	case majorTypeTag:
		return d.decodeSemantic(subtype)
	default:
		return d.decodeSpecial(subtype)
	}
}

// decodeChild decodes one item in a position where the break stop code
// is not allowed.
func (d *Decoder) decodeChild() (any, error) {
	v, err := d.decode()
	if err != nil {
		return nil, err
	}
	if _, ok := v.(breakValue); ok {
		return nil, decodeValueErr("break stop code outside indefinite-length item")
	}
	return v, nil
}

// decodeScoped decodes one item with the immutable flag and/or the
// shareable slot temporarily overridden, restoring both on exit.
func (d *Decoder) decodeScoped(immutable, unshared bool) (any, error) {
	oldImmutable, oldIndex := d.immutable, d.shareIndex
	if immutable {
		d.immutable = true
	}
	if unshared {
		d.shareIndex = -1
	}
	v, err := d.decode()
	d.immutable, d.shareIndex = oldImmutable, oldIndex
	return v, err
}

// decodeLength reads the argument of a header. It returns indefinite=true
// for subtype 31 where allowed.
func (d *Decoder) decodeLength(subtype uint8, allowIndefinite bool) (u uint64, indefinite bool, err error) {
	switch {
	case subtype <= addInfoDirect:
		return uint64(subtype), false, nil
	case subtype == addInfoUint8:
		c, err := d.readByte()
		return uint64(c), false, err
	case subtype == addInfoUint16:
		if got, err := d.src.readFull(d.num[:2]); err != nil {
			return 0, false, &DecodeEOFError{Wanted: 2, Got: got}
		}
		return uint64(binary.BigEndian.Uint16(d.num[:2])), false, nil
	case subtype == addInfoUint32:
		if got, err := d.src.readFull(d.num[:4]); err != nil {
			return 0, false, &DecodeEOFError{Wanted: 4, Got: got}
		}
		return uint64(binary.BigEndian.Uint32(d.num[:4])), false, nil
	case subtype == addInfoUint64:
		if got, err := d.src.readFull(d.num[:8]); err != nil {
			return 0, false, &DecodeEOFError{Wanted: 8, Got: got}
		}
		return binary.BigEndian.Uint64(d.num[:8]), false, nil
	case subtype == addInfoIndefinite && allowIndefinite:
		return 0, true, nil
	default:
		return 0, false, decodeValueErr("invalid additional information " + strconv.Itoa(int(subtype)))
	}
}

// decodeNegInt decodes major type 1: value = -1 - argument. Arguments
// past the int64 range fall back to a big integer.
func (d *Decoder) decodeNegInt(subtype uint8) (any, error) {
	u, _, err := d.decodeLength(subtype, false)
	if err != nil {
		return nil, err
	}
	if u <= math.MaxInt64 {
		return -1 - int64(u), nil
	}
	z := new(big.Int).SetUint64(u)
	z.Neg(z)
	z.Sub(z, big.NewInt(1))
	return z, nil
}

// decodeBytestring decodes major type 2, concatenating indefinite-length
// chunks. Definite-length strings register in the innermost active
// string-reference namespace.
func (d *Decoder) decodeBytestring(subtype uint8) (any, error) {
	n, indefinite, err := d.decodeLength(subtype, true)
	if err != nil {
		return nil, err
	}
	if indefinite {
		out := []byte{}
		for {
			ib, err := d.readByte()
			if err != nil {
				return nil, err
			}
			if ib == makeByte(majorTypeSimple, simpleBreak) {
				return out, nil
			}
			if getMajorType(ib) != majorTypeBytes {
				return nil, decodeValueErr("indefinite byte string chunk is not a byte string")
			}
			cn, _, err := d.decodeLength(getAddInfo(ib), false)
			if err != nil {
				return nil, err
			}
			chunk, err := d.readN(cn)
			if err != nil {
				return nil, err
			}
			out = append(out, chunk...)
		}
	}
	v, err := d.readN(n)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = []byte{}
	}
	d.registerStringRef(v, len(v))
	return v, nil
}

// decodeString decodes major type 3 and applies the UTF-8 policy.
func (d *Decoder) decodeString(subtype uint8) (any, error) {
	n, indefinite, err := d.decodeLength(subtype, true)
	if err != nil {
		return nil, err
	}
	if indefinite {
		var out []byte
		for {
			ib, err := d.readByte()
			if err != nil {
				return nil, err
			}
			if ib == makeByte(majorTypeSimple, simpleBreak) {
				return d.applyStrErrors(out)
			}
			if getMajorType(ib) != majorTypeText {
				return nil, decodeValueErr("indefinite text string chunk is not a text string")
			}
			cn, _, err := d.decodeLength(getAddInfo(ib), false)
			if err != nil {
				return nil, err
			}
			chunk, err := d.readN(cn)
			if err != nil {
				return nil, err
			}
			out = append(out, chunk...)
		}
	}
	raw, err := d.readN(n)
	if err != nil {
		return nil, err
	}
	s, err := d.applyStrErrors(raw)
	if err != nil {
		return nil, err
	}
	d.registerStringRef(s, len(s))
	return s, nil
}

func (d *Decoder) applyStrErrors(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	switch d.opts.StrErrors {
	case StrErrorsReplace:
		return strings.ToValidUTF8(string(raw), "�"), nil
	case StrErrorsIgnore:
		return strings.ToValidUTF8(string(raw), ""), nil
	default:
		return "", decodeValueErr("invalid UTF-8 in text string")
	}
}

func (d *Decoder) registerStringRef(v any, length int) {
	if len(d.strNS) == 0 {
		return
	}
	d.strNS[len(d.strNS)-1].register(v, length)
}

// Definite-length arrays up to this many elements are preallocated in
// full so a shareable slot can bind the final slice header before its
// children decode; larger arrays grow incrementally and bind late.
const arrayPreallocLimit = 1 << 16

// decodeArray decodes major type 4. Children decode with the shareable
// slot cleared; the array itself binds the slot.
func (d *Decoder) decodeArray(subtype uint8) (any, error) {
	n, indefinite, err := d.decodeLength(subtype, true)
	if err != nil {
		return nil, err
	}
	if indefinite {
		items := []any{}
		for {
			v, err := d.decodeScoped(false, true)
			if err != nil {
				return nil, err
			}
			if _, ok := v.(breakValue); ok {
				break
			}
			items = append(items, v)
		}
		d.bindShareable(items)
		return items, nil
	}
	if n > math.MaxInt {
		return nil, decodeValueErr("array length exceeds platform capacity")
	}
	if n <= arrayPreallocLimit {
		items := make([]any, int(n))
		d.bindShareable(items)
		for i := range items {
			v, err := d.decodeScoped(false, true)
			if err != nil {
				return nil, err
			}
			if _, ok := v.(breakValue); ok {
				return nil, decodeValueErr("break stop code inside definite-length array")
			}
			items[i] = v
		}
		return items, nil
	}
	items := make([]any, 0, arrayPreallocLimit)
	for i := uint64(0); i < n; i++ {
		v, err := d.decodeScoped(false, true)
		if err != nil {
			return nil, err
		}
		if _, ok := v.(breakValue); ok {
			return nil, decodeValueErr("break stop code inside definite-length array")
		}
		items = append(items, v)
	}
	d.bindShareable(items)
	return items, nil
}

// decodeMap decodes major type 5 into a *Map. Keys decode immutable and
// unshared; duplicate keys keep their first position, last value wins.
func (d *Decoder) decodeMap(subtype uint8) (any, error) {
	n, indefinite, err := d.decodeLength(subtype, true)
	if err != nil {
		return nil, err
	}
	m := NewMap()
	d.bindShareable(m)
	if indefinite {
		for {
			key, err := d.decodeScoped(true, true)
			if err != nil {
				return nil, err
			}
			if _, ok := key.(breakValue); ok {
				break
			}
			value, err := d.decodeScoped(false, true)
			if err != nil {
				return nil, err
			}
			if _, ok := value.(breakValue); ok {
				return nil, decodeValueErr("break stop code in place of map value")
			}
			if err := m.Set(key, value); err != nil {
				return nil, decodeValueErr("unusable map key: " + err.Error())
			}
		}
	} else {
		for i := uint64(0); i < n; i++ {
			key, err := d.decodeScoped(true, true)
			if err != nil {
				return nil, err
			}
			if _, ok := key.(breakValue); ok {
				return nil, decodeValueErr("break stop code inside definite-length map")
			}
			value, err := d.decodeScoped(false, true)
			if err != nil {
				return nil, err
			}
			if _, ok := value.(breakValue); ok {
				return nil, decodeValueErr("break stop code in place of map value")
			}
			if err := m.Set(key, value); err != nil {
				return nil, decodeValueErr("unusable map key: " + err.Error())
			}
		}
	}
	if d.opts.ObjectHook != nil {
		v, err := d.opts.ObjectHook(d, m)
		if err != nil {
			return nil, err
		}
		d.bindShareable(v)
		return v, nil
	}
	if d.immutable {
		m.freeze()
	}
	return m, nil
}

// decodeSemantic decodes major type 6, dispatching to the built-in
// handler for the tag number. Unhandled tags surface as Tag values or
// go through the TagHook.
func (d *Decoder) decodeSemantic(subtype uint8) (any, error) {
	tagnum, _, err := d.decodeLength(subtype, false)
	if err != nil {
		return nil, err
	}
	switch tagnum {
	case tagDateTimeString:
		return d.decodeDateTimeString()
	case tagEpochDateTime:
		return d.decodeEpochDateTime()
	case tagPosBignum:
		return d.decodeBignum(false)
	case tagNegBignum:
		return d.decodeBignum(true)
	case tagDecimalFrac:
		return d.decodeDecimalFraction()
	case tagBigfloat:
		return d.decodeBigfloat()
	case tagStringRef:
		return d.decodeStringRef()
	case tagShareable:
		return d.decodeShareable()
	case tagSharedRef:
		return d.decodeSharedRef()
	case tagRational:
		return d.decodeRational()
	case tagRegexp:
		return d.decodeRegexp()
	case tagMIME:
		return d.decodeMIME()
	case tagUUID:
		return d.decodeUUID()
	case tagIPv4:
		return d.decodeIP(4)
	case tagIPv6:
		return d.decodeIP(16)
	case tagEpochDate:
		return d.decodeEpochDate()
	case tagStringRefNamespace:
		return d.decodeStringRefNamespace()
	case tagSet:
		return d.decodeSet()
	case tagNetworkAddress:
		return d.decodeNetworkAddress()
	case tagNetworkPrefix:
		return d.decodeNetworkPrefix()
	case tagDateString:
		return d.decodeDateString()
	case tagComplex:
		return d.decodeComplex()
	case tagSelfDescribeCBOR:
		// Inert: the tag exists for content sniffing only.
		return d.decodeChild()
	default:
		content, err := d.decodeScoped(false, true)
		if err != nil {
			return nil, err
		}
		if _, ok := content.(breakValue); ok {
			return nil, decodeValueErr("break stop code in place of tag content")
		}
		tag := Tag{Number: tagnum, Content: content}
		if d.opts.TagHook != nil {
			return d.opts.TagHook(d, tag)
		}
		return tag, nil
	}
}

// decodeShareable handles tag 28: the slot is allocated before the child
// decodes so self-references inside the child resolve to it.
func (d *Decoder) decodeShareable() (any, error) {
	oldIndex := d.shareIndex
	index := len(d.shareables)
	d.shareIndex = index
	d.shareables = append(d.shareables, unboundShareable)
	v, err := d.decode()
	d.shareIndex = oldIndex
	if err != nil {
		return nil, err
	}
	if _, ok := v.(breakValue); ok {
		return nil, decodeValueErr("break stop code in place of shareable value")
	}
	// Containers bound themselves mid-decode; rebinding the final value
	// also covers scalars and hook-transformed results.
	d.shareables[index] = v
	d.resolvePlaceholders(index, v)
	return v, nil
}

// decodeSharedRef handles tag 29. A reference to a slot that is still
// decoding yields a placeholder, patched when the slot binds.
func (d *Decoder) decodeSharedRef() (any, error) {
	v, err := d.decodeScoped(false, true)
	if err != nil {
		return nil, err
	}
	k, ok := v.(uint64)
	if !ok {
		return nil, decodeValueErr("shared reference index must be an unsigned integer")
	}
	if k >= uint64(len(d.shareables)) {
		return nil, decodeValueErr("shared reference " + strconv.FormatUint(k, 10) + " not found")
	}
	sv := d.shareables[k]
	if sv == unboundShareable {
		if d.placeholders == nil {
			d.placeholders = make(map[int]bool)
		}
		d.placeholders[int(k)] = true
		return sharedPlaceholder{index: int(k)}, nil
	}
	return sv, nil
}

// bindShareable stores v in the pending shareable slot, if any, and
// patches placeholders that referenced the slot while it was unbound.
func (d *Decoder) bindShareable(v any) {
	if d.shareIndex < 0 {
		return
	}
	d.shareables[d.shareIndex] = v
	d.resolvePlaceholders(d.shareIndex, v)
}

func (d *Decoder) resolvePlaceholders(index int, v any) {
	if !d.placeholders[index] {
		return
	}
	delete(d.placeholders, index)
	patchPlaceholder(v, index, v, 0, d.opts.MaxDepth)
}

// patchPlaceholder replaces sharedPlaceholder{index} with repl throughout
// root. The graph may already be cyclic, so traversal is depth-bounded.
func patchPlaceholder(root any, index int, repl any, depth, maxDepth int) any {
	if depth > maxDepth {
		return root
	}
	switch x := root.(type) {
	case sharedPlaceholder:
		if x.index == index {
			return repl
		}
		return root
	case []any:
		for i, e := range x {
			x[i] = patchPlaceholder(e, index, repl, depth+1, maxDepth)
		}
		return x
	case *Map:
		for i := range x.pairs {
			x.pairs[i].Key = patchPlaceholder(x.pairs[i].Key, index, repl, depth+1, maxDepth)
			x.pairs[i].Value = patchPlaceholder(x.pairs[i].Value, index, repl, depth+1, maxDepth)
		}
		return x
	case *Set:
		for i, e := range x.elems {
			x.elems[i] = patchPlaceholder(e, index, repl, depth+1, maxDepth)
		}
		return x
	case Tag:
		x.Content = patchPlaceholder(x.Content, index, repl, depth+1, maxDepth)
		return x
	default:
		return root
	}
}

// decodeStringRefNamespace handles tag 256.
func (d *Decoder) decodeStringRefNamespace() (any, error) {
	d.strNS = append(d.strNS, &stringRefNamespace{})
	defer func() { d.strNS = d.strNS[:len(d.strNS)-1] }()
	return d.decodeChild()
}

// decodeStringRef handles tag 25.
func (d *Decoder) decodeStringRef() (any, error) {
	v, err := d.decodeScoped(false, true)
	if err != nil {
		return nil, err
	}
	k, ok := v.(uint64)
	if !ok {
		return nil, decodeValueErr("string reference index must be an unsigned integer")
	}
	if len(d.strNS) == 0 {
		return nil, decodeValueErr("string reference outside of a namespace")
	}
	return d.strNS[len(d.strNS)-1].resolve(k)
}

// decodeSpecial decodes major type 7.
func (d *Decoder) decodeSpecial(subtype uint8) (any, error) {
	switch subtype {
	case simpleFalse:
		return false, nil
	case simpleTrue:
		return true, nil
	case simpleNull:
		return nil, nil
	case simpleUndefined:
		return Undefined, nil
	case addInfoUint8:
		c, err := d.readByte()
		if err != nil {
			return nil, err
		}
		switch c {
		case simpleFalse, simpleTrue, simpleNull, simpleUndefined, simpleBreak:
			return nil, decodeValueErr("reserved two-byte simple value " + strconv.Itoa(int(c)))
		}
		return SimpleValue(c), nil
	case simpleFloat16:
		if got, err := d.src.readFull(d.num[:2]); err != nil {
			return nil, &DecodeEOFError{Wanted: 2, Got: got}
		}
		h := float16.Frombits(binary.BigEndian.Uint16(d.num[:2]))
		return float64(h.Float32()), nil
	case simpleFloat32:
		if got, err := d.src.readFull(d.num[:4]); err != nil {
			return nil, &DecodeEOFError{Wanted: 4, Got: got}
		}
		return float64(math.Float32frombits(binary.BigEndian.Uint32(d.num[:4]))), nil
	case simpleFloat64:
		if got, err := d.src.readFull(d.num[:8]); err != nil {
			return nil, &DecodeEOFError{Wanted: 8, Got: got}
		}
		return math.Float64frombits(binary.BigEndian.Uint64(d.num[:8])), nil
	case simpleBreak:
		return breakSentinel, nil
	default:
		if subtype < simpleFalse {
			return SimpleValue(subtype), nil
		}
		return nil, decodeValueErr("invalid simple value subtype " + strconv.Itoa(int(subtype)))
	}
}
