package cbor

import (
	"io"
	"math"
	"math/big"
	"net/mail"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Decode-side handlers for the registered semantic tags. Each handler
// observes a fully materialized child item and converts it to the
// corresponding native type; a child of the wrong shape is a
// DecodeValueError.

// tagChild decodes the content item of a scalar tag. The shareable slot
// is cleared so a surrounding tag 28 binds the handler's result, not the
// intermediate content.
func (d *Decoder) tagChild() (any, error) {
	v, err := d.decodeScoped(false, true)
	if err != nil {
		return nil, err
	}
	if _, ok := v.(breakValue); ok {
		return nil, decodeValueErr("break stop code in place of tag content")
	}
	return v, nil
}

func (d *Decoder) tagChildString(tag string) (string, error) {
	v, err := d.tagChild()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", decodeValueErr(tag + " content must be a text string")
	}
	return s, nil
}

func (d *Decoder) tagChildBytes(tag string) ([]byte, error) {
	v, err := d.tagChild()
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, decodeValueErr(tag + " content must be a byte string")
	}
	return b, nil
}

func (d *Decoder) tagChildPair(tag string) (any, any, error) {
	v, err := d.tagChild()
	if err != nil {
		return nil, nil, err
	}
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return nil, nil, decodeValueErr(tag + " content must be a two-element array")
	}
	return arr[0], arr[1], nil
}

// asInt64 coerces a decoded integer to int64.
func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

// asBigInt coerces a decoded integer (including bignums) to a big.Int.
func asBigInt(v any) (*big.Int, bool) {
	switch x := v.(type) {
	case uint64:
		return new(big.Int).SetUint64(x), true
	case int64:
		return big.NewInt(x), true
	case *big.Int:
		return x, true
	}
	return nil, false
}

// asFloat coerces a decoded number to float64.
func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case uint64:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// decodeDateTimeString handles tag 0: an RFC 3339 date/time string with
// a mandatory offset.
func (d *Decoder) decodeDateTimeString() (any, error) {
	s, err := d.tagChildString("tag 0")
	if err != nil {
		return nil, err
	}
	t, perr := time.Parse(time.RFC3339Nano, s)
	if perr != nil {
		return nil, decodeValueErr("invalid datetime string " + strconv.Quote(s))
	}
	return t, nil
}

// decodeEpochDateTime handles tag 1: seconds since the Unix epoch as an
// integer or float.
func (d *Decoder) decodeEpochDateTime() (any, error) {
	v, err := d.tagChild()
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case uint64:
		if x > math.MaxInt64 {
			return nil, decodeValueErr("epoch timestamp out of range")
		}
		return time.Unix(int64(x), 0).UTC(), nil
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, decodeValueErr("epoch timestamp must be finite")
		}
		sec := math.Floor(x)
		ns := int64(math.Round((x - sec) * 1e9))
		secs := int64(sec)
		if ns >= 1e9 {
			secs++
			ns -= 1e9
		}
		return time.Unix(secs, ns).UTC(), nil
	default:
		return nil, decodeValueErr("tag 1 content must be a number")
	}
}

// decodeBignum handles tags 2 and 3.
func (d *Decoder) decodeBignum(negative bool) (any, error) {
	bs, err := d.tagChildBytes("bignum")
	if err != nil {
		return nil, err
	}
	z := new(big.Int).SetBytes(bs)
	if negative {
		z.Add(z, big.NewInt(1))
		z.Neg(z)
	}
	return z, nil
}

// decodeDecimalFraction handles tag 4: [exponent, mantissa].
func (d *Decoder) decodeDecimalFraction() (any, error) {
	ev, mv, err := d.tagChildPair("tag 4")
	if err != nil {
		return nil, err
	}
	exp, ok := asInt64(ev)
	if !ok {
		return nil, decodeValueErr("tag 4 exponent must be an integer")
	}
	mant, ok := asBigInt(mv)
	if !ok {
		return nil, decodeValueErr("tag 4 mantissa must be an integer")
	}
	return DecimalFraction{Exponent: exp, Mantissa: mant}, nil
}

// decodeBigfloat handles tag 5: [exponent, mantissa] with radix 2.
func (d *Decoder) decodeBigfloat() (any, error) {
	ev, mv, err := d.tagChildPair("tag 5")
	if err != nil {
		return nil, err
	}
	exp, ok := asInt64(ev)
	if !ok {
		return nil, decodeValueErr("tag 5 exponent must be an integer")
	}
	mant, ok := asBigInt(mv)
	if !ok {
		return nil, decodeValueErr("tag 5 mantissa must be an integer")
	}
	return Bigfloat{Exponent: exp, Mantissa: mant}, nil
}

// decodeRational handles tag 30: [numerator, denominator].
func (d *Decoder) decodeRational() (any, error) {
	nv, dv, err := d.tagChildPair("tag 30")
	if err != nil {
		return nil, err
	}
	num, ok := asBigInt(nv)
	if !ok {
		return nil, decodeValueErr("tag 30 numerator must be an integer")
	}
	den, ok := asBigInt(dv)
	if !ok {
		return nil, decodeValueErr("tag 30 denominator must be an integer")
	}
	if den.Sign() == 0 {
		return nil, decodeValueErr("tag 30 denominator must not be zero")
	}
	return new(big.Rat).SetFrac(num, den), nil
}

// decodeRegexp handles tag 35.
func (d *Decoder) decodeRegexp() (any, error) {
	s, err := d.tagChildString("tag 35")
	if err != nil {
		return nil, err
	}
	re, cerr := regexp.Compile(s)
	if cerr != nil {
		return nil, decodeValueErr("invalid regular expression: " + cerr.Error())
	}
	return re, nil
}

// decodeMIME handles tag 36.
func (d *Decoder) decodeMIME() (any, error) {
	s, err := d.tagChildString("tag 36")
	if err != nil {
		return nil, err
	}
	msg, merr := mail.ReadMessage(strings.NewReader(s))
	if merr != nil {
		return nil, decodeValueErr("invalid MIME message: " + merr.Error())
	}
	body, rerr := io.ReadAll(msg.Body)
	if rerr != nil {
		return nil, decodeValueErr("invalid MIME message: " + rerr.Error())
	}
	return MIMEMessage{Header: msg.Header, Body: string(body)}, nil
}

// decodeUUID handles tag 37: exactly 16 bytes.
func (d *Decoder) decodeUUID() (any, error) {
	bs, err := d.tagChildBytes("tag 37")
	if err != nil {
		return nil, err
	}
	id, uerr := uuid.FromBytes(bs)
	if uerr != nil {
		return nil, decodeValueErr("tag 37 content must be 16 bytes")
	}
	return id, nil
}

// decodeIP handles tags 52 and 54 (RFC 9164): a byte string is an
// address, a [prefix-length, address-bytes] array is a prefix with
// trailing zero octets possibly elided.
func (d *Decoder) decodeIP(addrLen int) (any, error) {
	v, err := d.tagChild()
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []byte:
		if len(x) != addrLen {
			return nil, decodeValueErr("IP address must be " + strconv.Itoa(addrLen) + " bytes")
		}
		addr, ok := netip.AddrFromSlice(x)
		if !ok {
			return nil, decodeValueErr("invalid IP address bytes")
		}
		return addr, nil
	case []any:
		if len(x) != 2 {
			return nil, decodeValueErr("IP prefix must be a two-element array")
		}
		bits, ok := asInt64(x[0])
		if !ok || bits < 0 || bits > int64(addrLen)*8 {
			return nil, decodeValueErr("invalid IP prefix length")
		}
		raw, ok := x[1].([]byte)
		if !ok || len(raw) > addrLen {
			return nil, decodeValueErr("invalid IP prefix address bytes")
		}
		full := make([]byte, addrLen)
		copy(full, raw)
		addr, ok := netip.AddrFromSlice(full)
		if !ok {
			return nil, decodeValueErr("invalid IP prefix address bytes")
		}
		return netip.PrefixFrom(addr, int(bits)), nil
	default:
		return nil, decodeValueErr("IP tag content must be a byte string or array")
	}
}

// decodeNetworkAddress handles the deprecated tag 260.
func (d *Decoder) decodeNetworkAddress() (any, error) {
	bs, err := d.tagChildBytes("tag 260")
	if err != nil {
		return nil, err
	}
	if len(bs) != 4 && len(bs) != 16 {
		return nil, decodeValueErr("tag 260 content must be 4 or 16 bytes")
	}
	addr, ok := netip.AddrFromSlice(bs)
	if !ok {
		return nil, decodeValueErr("invalid tag 260 address bytes")
	}
	return addr, nil
}

// decodeNetworkPrefix handles the deprecated tag 261: a single-entry map
// of address bytes to prefix length.
func (d *Decoder) decodeNetworkPrefix() (any, error) {
	v, err := d.tagChild()
	if err != nil {
		return nil, err
	}
	m, ok := v.(*Map)
	if !ok || m.Len() != 1 {
		return nil, decodeValueErr("tag 261 content must be a single-entry map")
	}
	pair := m.Pairs()[0]
	raw, ok := pair.Key.([]byte)
	if !ok {
		return nil, decodeValueErr("tag 261 key must be a byte string")
	}
	addr, ok := netip.AddrFromSlice(raw)
	if !ok {
		return nil, decodeValueErr("tag 261 key must be 4 or 16 address bytes")
	}
	bits, ok := asInt64(pair.Value)
	if !ok || bits < 0 || int(bits) > addr.BitLen() {
		return nil, decodeValueErr("invalid tag 261 prefix length")
	}
	return netip.PrefixFrom(addr, int(bits)), nil
}

// decodeEpochDate handles tag 100: days since the Unix epoch.
func (d *Decoder) decodeEpochDate() (any, error) {
	v, err := d.tagChild()
	if err != nil {
		return nil, err
	}
	days, ok := asInt64(v)
	if !ok {
		return nil, decodeValueErr("tag 100 content must be an integer")
	}
	if days > math.MaxInt32 || days < math.MinInt32 {
		return nil, decodeValueErr("tag 100 day count out of range")
	}
	return DateOf(time.Date(1970, time.January, 1+int(days), 0, 0, 0, 0, time.UTC)), nil
}

// decodeDateString handles tag 1004: an RFC 3339 full-date string.
func (d *Decoder) decodeDateString() (any, error) {
	s, err := d.tagChildString("tag 1004")
	if err != nil {
		return nil, err
	}
	t, perr := time.Parse("2006-01-02", s)
	if perr != nil {
		return nil, decodeValueErr("invalid date string " + strconv.Quote(s))
	}
	return DateOf(t), nil
}

// decodeSet handles tag 258. Contents decode in an immutable context;
// the set itself is frozen when the surrounding context is immutable.
func (d *Decoder) decodeSet() (any, error) {
	v, err := d.decodeScoped(true, true)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, decodeValueErr("tag 258 content must be an array")
	}
	s := NewSet()
	for _, e := range arr {
		if err := s.Add(e); err != nil {
			return nil, decodeValueErr("unusable set element: " + err.Error())
		}
	}
	if d.immutable {
		s.freeze()
	}
	d.bindShareable(s)
	return s, nil
}

// decodeComplex handles tag 43000: [real, imaginary].
func (d *Decoder) decodeComplex() (any, error) {
	rv, iv, err := d.tagChildPair("tag 43000")
	if err != nil {
		return nil, err
	}
	re, ok := asFloat(rv)
	if !ok {
		return nil, decodeValueErr("tag 43000 real part must be a number")
	}
	im, ok := asFloat(iv)
	if !ok {
		return nil, decodeValueErr("tag 43000 imaginary part must be a number")
	}
	return complex(re, im), nil
}
