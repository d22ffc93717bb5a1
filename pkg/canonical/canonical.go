// Package canonical produces the deterministic byte representation that intent
// signatures are computed over.
//
// Payloads are normalized into plain JSON values, serialized, and then
// rewritten according to RFC 8785 (JSON Canonicalization Scheme): object keys
// are sorted at every depth, arrays keep their order, and numbers and strings
// use one fixed textual form. The digest of that form is what gets signed.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/R3E-Network/relay_layer/internal/errors"
)

// MaxSafeInteger is the largest integer a JSON number carries without loss.
// Larger values must travel as decimal strings.
const MaxSafeInteger = 1<<53 - 1

// EncodingError reports a value that has no canonical form.
type EncodingError struct {
	Path   string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("canonical encoding failed at %s: %s", e.Path, e.Reason)
}

// ErrorKind implements errors.Kinded.
func (e *EncodingError) ErrorKind() errors.Kind { return errors.KindValidation }

// Encode returns the RFC 8785 canonical JSON form of payload.
func Encode(payload any) ([]byte, error) {
	normalized, err := normalize(reflect.ValueOf(payload), "$")
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, &EncodingError{Path: "$", Reason: err.Error()}
	}

	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, &EncodingError{Path: "$", Reason: err.Error()}
	}
	return out, nil
}

// Hash returns the SHA-256 digest of the canonical form of payload.
func Hash(payload any) ([32]byte, error) {
	data, err := Encode(payload)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// HashHex is Hash rendered as lowercase hex.
func HashHex(payload any) (string, error) {
	digest, err := Hash(payload)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest[:]), nil
}

// DecodeObject parses a JSON object keeping numbers as json.Number, which is
// the form Encode expects for payloads received over the wire.
func DecodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, &EncodingError{Path: "$", Reason: "payload must be a JSON object"}
	}
	return obj, nil
}

// ToObject converts a struct into the generic object form used for signing,
// honoring its JSON tags.
func ToObject(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &EncodingError{Path: "$", Reason: err.Error()}
	}
	return DecodeObject(raw)
}

var (
	jsonNumberType    = reflect.TypeOf(json.Number(""))
	bigIntType        = reflect.TypeOf(big.Int{})
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

func normalize(v reflect.Value, path string) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	switch v.Type() {
	case jsonNumberType:
		return normalizeNumber(json.Number(v.String()), path)
	case bigIntType:
		b := v.Interface().(big.Int)
		return normalizeBig(&b, path)
	}
	if v.Kind() == reflect.Ptr && v.Type().Elem() == bigIntType {
		if v.IsNil() {
			return nil, nil
		}
		return normalizeBig(v.Interface().(*big.Int), path)
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Ptr:
		if v.IsNil() {
			return nil, nil
		}
		if v.Kind() == reflect.Ptr && v.Type().Implements(jsonMarshalerType) {
			return viaJSON(v, path)
		}
		return normalize(v.Elem(), path)

	case reflect.Bool:
		return v.Bool(), nil

	case reflect.String:
		return v.String(), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := v.Int()
		if n > MaxSafeInteger || n < -MaxSafeInteger {
			return nil, &EncodingError{Path: path, Reason: "integer exceeds 2^53-1; encode it as a string"}
		}
		return n, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := v.Uint()
		if n > MaxSafeInteger {
			return nil, &EncodingError{Path: path, Reason: "integer exceeds 2^53-1; encode it as a string"}
		}
		return n, nil

	case reflect.Float32, reflect.Float64:
		return normalizeFloat(v.Float(), path)

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, &EncodingError{Path: path, Reason: "map keys must be strings"}
		}
		if v.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			elem, err := normalize(iter.Value(), path+"."+key)
			if err != nil {
				return nil, err
			}
			out[key] = elem
		}
		return out, nil

	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return viaJSON(v, path)
		}
		return normalizeList(v, path)

	case reflect.Array:
		return normalizeList(v, path)

	case reflect.Struct:
		return viaJSON(v, path)

	default:
		return nil, &EncodingError{Path: path, Reason: "unsupported kind " + v.Kind().String()}
	}
}

func normalizeList(v reflect.Value, path string) (any, error) {
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		elem, err := normalize(v.Index(i), path+"["+strconv.Itoa(i)+"]")
		if err != nil {
			return nil, err
		}
		out[i] = elem
	}
	return out, nil
}

// viaJSON handles structs, byte slices and custom marshalers by going through
// their JSON form first.
func viaJSON(v reflect.Value, path string) (any, error) {
	raw, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, &EncodingError{Path: path, Reason: err.Error()}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, &EncodingError{Path: path, Reason: err.Error()}
	}
	return normalize(reflect.ValueOf(generic), path)
}

func normalizeNumber(n json.Number, path string) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		b, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, &EncodingError{Path: path, Reason: "invalid number " + s}
		}
		return normalizeBig(b, path)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, &EncodingError{Path: path, Reason: "invalid number " + s}
	}
	return normalizeFloat(f, path)
}

func normalizeBig(b *big.Int, path string) (any, error) {
	if !b.IsInt64() || b.Int64() > MaxSafeInteger || b.Int64() < -MaxSafeInteger {
		return nil, &EncodingError{Path: path, Reason: "integer exceeds 2^53-1; encode it as a string"}
	}
	return b.Int64(), nil
}

func normalizeFloat(f float64, path string) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &EncodingError{Path: path, Reason: "NaN and Inf have no JSON form"}
	}
	if f == math.Trunc(f) && math.Abs(f) > MaxSafeInteger {
		return nil, &EncodingError{Path: path, Reason: "integer exceeds 2^53-1; encode it as a string"}
	}
	return f, nil
}
