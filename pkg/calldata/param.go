// Package calldata defines the tagged call parameters carried by transaction
// intents and their ABI encoding.
//
// A parameter's tag alone decides how it is encoded. There is no inspection of
// the value's shape, so an address-looking string passed as Str stays a string.
package calldata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/R3E-Network/relay_layer/internal/entityid"
	"github.com/R3E-Network/relay_layer/internal/errors"
)

// Kind is a parameter tag.
type Kind string

const (
	KindAddress Kind = "address"
	KindUInt256 Kind = "uint256"
	KindBool    Kind = "bool"
	KindString  Kind = "string"
	KindList    Kind = "list"
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ParamError reports an invalid parameter.
type ParamError struct {
	Path   string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("param %s: %s", e.Path, e.Reason)
}

// ErrorKind implements errors.Kinded.
func (e *ParamError) ErrorKind() errors.Kind { return errors.KindValidation }

// Param is one tagged call argument. Build it with Address, UInt256, Bool, Str
// or List.
type Param struct {
	kind     Kind
	str      string
	num      *big.Int
	flag     bool
	elemType string
	items    []Param
}

// Address tags s (triplet or 20-byte hex) as an address.
func Address(s string) Param { return Param{kind: KindAddress, str: s} }

// UInt256 tags n as an unsigned 256-bit integer.
func UInt256(n *big.Int) Param { return Param{kind: KindUInt256, num: n} }

// Uint64 is a UInt256 convenience.
func Uint64(n uint64) Param { return UInt256(new(big.Int).SetUint64(n)) }

// Bool tags b as a boolean.
func Bool(b bool) Param { return Param{kind: KindBool, flag: b} }

// Str tags s as a string.
func Str(s string) Param { return Param{kind: KindString, str: s} }

// List tags items as a homogeneous array whose elements have ABI type elemType
// (e.g. "uint256", "address", "uint256[]").
func List(elemType string, items ...Param) Param {
	return Param{kind: KindList, elemType: elemType, items: items}
}

// Kind returns the tag.
func (p Param) Kind() Kind { return p.kind }

// ABIType returns the Solidity type of p.
func (p Param) ABIType() string {
	switch p.kind {
	case KindList:
		return p.elemType + "[]"
	default:
		return string(p.kind)
	}
}

// Validate checks the value against its tag.
func (p Param) Validate() error {
	_, err := p.goValue("$")
	return err
}

func (p Param) goValue(path string) (any, error) {
	switch p.kind {
	case KindAddress:
		id, err := entityid.Parse(p.str)
		if err != nil {
			return nil, &ParamError{Path: path, Reason: err.Error()}
		}
		return id.Address(), nil

	case KindUInt256:
		if p.num == nil {
			return nil, &ParamError{Path: path, Reason: "uint256 value required"}
		}
		if p.num.Sign() < 0 || p.num.Cmp(maxUint256) > 0 {
			return nil, &ParamError{Path: path, Reason: "uint256 out of range"}
		}
		return new(big.Int).Set(p.num), nil

	case KindBool:
		return p.flag, nil

	case KindString:
		return p.str, nil

	case KindList:
		typ, err := abi.NewType(p.ABIType(), "", nil)
		if err != nil {
			return nil, &ParamError{Path: path, Reason: "unsupported element type " + p.elemType}
		}
		slice := reflect.MakeSlice(typ.GetType(), len(p.items), len(p.items))
		for i, item := range p.items {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if item.ABIType() != p.elemType {
				return nil, &ParamError{Path: itemPath, Reason: fmt.Sprintf("element type %s does not match list type %s", item.ABIType(), p.elemType)}
			}
			v, err := item.goValue(itemPath)
			if err != nil {
				return nil, err
			}
			slice.Index(i).Set(reflect.ValueOf(v))
		}
		return slice.Interface(), nil

	default:
		return nil, &ParamError{Path: path, Reason: fmt.Sprintf("unknown type %q", p.kind)}
	}
}

type wireParam struct {
	Type        Kind            `json:"type"`
	ElementType string          `json:"elementType,omitempty"`
	Value       json.RawMessage `json:"value"`
}

// MarshalJSON renders the tagged wire form.
func (p Param) MarshalJSON() ([]byte, error) {
	var value any
	switch p.kind {
	case KindAddress, KindString:
		value = p.str
	case KindUInt256:
		if p.num == nil {
			return nil, &ParamError{Path: "$", Reason: "uint256 value required"}
		}
		value = p.num.String()
	case KindBool:
		value = p.flag
	case KindList:
		items := p.items
		if items == nil {
			items = []Param{}
		}
		value = items
	default:
		return nil, &ParamError{Path: "$", Reason: fmt.Sprintf("unknown type %q", p.kind)}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireParam{Type: p.kind, ElementType: p.elemType, Value: raw})
}

// UnmarshalJSON parses and validates the tagged wire form.
func (p *Param) UnmarshalJSON(data []byte) error {
	var w wireParam
	if err := json.Unmarshal(data, &w); err != nil {
		return &ParamError{Path: "$", Reason: "expected {type, value} object"}
	}
	if len(w.Value) == 0 || string(w.Value) == "null" {
		return &ParamError{Path: "$", Reason: "value required"}
	}

	out := Param{kind: w.Type}
	switch w.Type {
	case KindAddress, KindString:
		if err := json.Unmarshal(w.Value, &out.str); err != nil {
			return &ParamError{Path: "$", Reason: string(w.Type) + " value must be a string"}
		}
	case KindUInt256:
		n, err := parseUint(w.Value)
		if err != nil {
			return err
		}
		out.num = n
	case KindBool:
		if err := json.Unmarshal(w.Value, &out.flag); err != nil {
			return &ParamError{Path: "$", Reason: "bool value must be true or false"}
		}
	case KindList:
		if strings.TrimSpace(w.ElementType) == "" {
			return &ParamError{Path: "$", Reason: "list requires elementType"}
		}
		out.elemType = strings.TrimSpace(w.ElementType)
		if err := json.Unmarshal(w.Value, &out.items); err != nil {
			return err
		}
	default:
		return &ParamError{Path: "$", Reason: fmt.Sprintf("unknown type %q", w.Type)}
	}

	if err := out.Validate(); err != nil {
		return err
	}
	*p = out
	return nil
}

func parseUint(raw json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return nil, &ParamError{Path: "$", Reason: "uint256 value must be a decimal string or integer"}
		}
		s = n.String()
	}
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, &ParamError{Path: "$", Reason: fmt.Sprintf("invalid uint256 %q", s)}
	}
	return n, nil
}

// AddressOf returns the 20-byte address an Address param refers to.
func AddressOf(p Param) (common.Address, error) {
	if p.kind != KindAddress {
		return common.Address{}, &ParamError{Path: "$", Reason: "not an address"}
	}
	v, err := p.goValue("$")
	if err != nil {
		return common.Address{}, err
	}
	return v.(common.Address), nil
}
