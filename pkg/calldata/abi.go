package calldata

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Signature returns the canonical function signature, e.g. "transfer(address,uint256)".
// A functionName that already carries a parameter list is checked against params
// and returned verbatim.
func Signature(functionName string, params []Param) (string, error) {
	name := strings.TrimSpace(functionName)
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = p.ABIType()
	}
	want := strings.Join(types, ",")

	if open := strings.IndexByte(name, '('); open >= 0 {
		if !strings.HasSuffix(name, ")") || !identifier.MatchString(name[:open]) {
			return "", &ParamError{Path: "functionName", Reason: fmt.Sprintf("malformed signature %q", functionName)}
		}
		declared := strings.ReplaceAll(name[open+1:len(name)-1], " ", "")
		if declared != want {
			return "", &ParamError{Path: "functionName", Reason: fmt.Sprintf("signature declares (%s) but params are (%s)", declared, want)}
		}
		return name[:open] + "(" + declared + ")", nil
	}

	if !identifier.MatchString(name) {
		return "", &ParamError{Path: "functionName", Reason: fmt.Sprintf("invalid function name %q", functionName)}
	}
	return name + "(" + want + ")", nil
}

// Selector returns the first four bytes of keccak256(signature).
func Selector(functionName string, params []Param) ([4]byte, error) {
	var sel [4]byte
	sig, err := Signature(functionName, params)
	if err != nil {
		return sel, err
	}
	copy(sel[:], crypto.Keccak256([]byte(sig))[:4])
	return sel, nil
}

// EncodeArgs ABI-encodes params without a selector.
func EncodeArgs(params []Param) ([]byte, error) {
	args := make(abi.Arguments, 0, len(params))
	values := make([]any, 0, len(params))
	for i, p := range params {
		path := fmt.Sprintf("params[%d]", i)
		typ, err := abi.NewType(p.ABIType(), "", nil)
		if err != nil {
			return nil, &ParamError{Path: path, Reason: "unsupported type " + p.ABIType()}
		}
		v, err := p.goValue(path)
		if err != nil {
			return nil, err
		}
		args = append(args, abi.Argument{Type: typ})
		values = append(values, v)
	}
	out, err := args.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("pack arguments: %w", err)
	}
	return out, nil
}

// EncodeCall returns selector || EncodeArgs(params).
func EncodeCall(functionName string, params []Param) ([]byte, error) {
	sel, err := Selector(functionName, params)
	if err != nil {
		return nil, err
	}
	args, err := EncodeArgs(params)
	if err != nil {
		return nil, err
	}
	return append(sel[:], args...), nil
}
