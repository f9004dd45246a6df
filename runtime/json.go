package cbor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/netip"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
)

// JSONValue converts a decoded value into a form encoding/json can
// marshal. The mapping is lossy by design: byte strings become base64
// text, non-string map keys are stringified, tags without a JSON
// analogue surface as {"tag": n, "value": v} wrappers.
//
// Map entries keep their wire order unless sortKeys is set, in which
// case object keys are alphabetized.
func JSONValue(v any, sortKeys bool) any {
	switch x := v.(type) {
	case nil, bool, string, uint64, int64, float64:
		return x
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case *big.Int:
		return json.Number(x.String())
	case *big.Rat:
		return x.RatString()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = JSONValue(e, sortKeys)
		}
		return out
	case *Map:
		obj := jsonObject{pairs: make([]jsonMember, 0, x.Len())}
		for _, p := range x.Pairs() {
			obj.pairs = append(obj.pairs, jsonMember{
				key:   jsonKey(p.Key),
				value: JSONValue(p.Value, sortKeys),
			})
		}
		if sortKeys {
			sort.SliceStable(obj.pairs, func(i, j int) bool {
				return obj.pairs[i].key < obj.pairs[j].key
			})
		}
		return obj
	case *Set:
		out := make([]any, 0, x.Len())
		for _, e := range x.Elems() {
			out = append(out, JSONValue(e, sortKeys))
		}
		return out
	case Tag:
		return jsonObject{pairs: []jsonMember{
			{key: "tag", value: x.Number},
			{key: "value", value: JSONValue(x.Content, sortKeys)},
		}}
	case SimpleValue:
		return x.String()
	case UndefinedValue:
		return nil
	case time.Time:
		return formatRFC3339(x)
	case Date:
		return x.String()
	case uuid.UUID:
		return x.String()
	case *regexp.Regexp:
		return x.String()
	case MIMEMessage:
		return x.format()
	case netip.Addr:
		return x.String()
	case netip.Prefix:
		return x.String()
	case DecimalFraction:
		return x.String()
	case Bigfloat:
		return x.String()
	case complex128:
		return []any{real(x), imag(x)}
	default:
		return fmt.Sprint(x)
	}
}

// jsonMember is one member of a jsonObject.
type jsonMember struct {
	key   string
	value any
}

// jsonObject is a JSON object that marshals its members in the order
// they are held, unlike a native map which encoding/json always
// alphabetizes.
type jsonObject struct {
	pairs []jsonMember
}

// MarshalJSON implements json.Marshaler.
func (o jsonObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range o.pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(p.value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// jsonKey renders a map key as a JSON object key.
func jsonKey(k any) string {
	switch x := k.(type) {
	case string:
		return x
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	default:
		return fmt.Sprint(JSONValue(x, false))
	}
}

// String renders the fraction in scientific notation.
func (v DecimalFraction) String() string {
	mant := "0"
	if v.Mantissa != nil {
		mant = v.Mantissa.String()
	}
	return fmt.Sprintf("%se%d", mant, v.Exponent)
}

// String renders the bigfloat as mantissa and binary exponent.
func (v Bigfloat) String() string {
	mant := "0"
	if v.Mantissa != nil {
		mant = v.Mantissa.String()
	}
	return fmt.Sprintf("%sp%d", mant, v.Exponent)
}
