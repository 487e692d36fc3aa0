package fuse

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// PackCall encodes a call from its full signature, e.g.
// "safeLiquidate(address,uint256,address)". Only flat parameter lists are
// supported, which covers every liquidator entry point.
func PackCall(signature string, args []any) ([]byte, error) {
	_, params, err := parseSignature(signature)
	if err != nil {
		return nil, err
	}
	if len(params) != len(args) {
		return nil, fmt.Errorf("%s: %d args for %d params", signature, len(args), len(params))
	}
	encoded, err := params.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", signature, err)
	}
	selector := crypto.Keccak256([]byte(signature))[:4]
	return append(append(make([]byte, 0, 4+len(encoded)), selector...), encoded...), nil
}

// MethodName returns the function name of a signature.
func MethodName(signature string) string {
	if i := strings.IndexByte(signature, '('); i > 0 {
		return signature[:i]
	}
	return signature
}

func parseSignature(signature string) (string, abi.Arguments, error) {
	signature = strings.TrimSpace(signature)
	open := strings.IndexByte(signature, '(')
	if open <= 0 || !strings.HasSuffix(signature, ")") {
		return "", nil, fmt.Errorf("malformed signature %q", signature)
	}
	name := signature[:open]
	inner := signature[open+1 : len(signature)-1]
	if strings.ContainsAny(inner, "() ") {
		return "", nil, fmt.Errorf("unsupported signature %q", signature)
	}
	if inner == "" {
		return name, abi.Arguments{}, nil
	}

	parts := strings.Split(inner, ",")
	args := make(abi.Arguments, 0, len(parts))
	for _, p := range parts {
		typ, err := abi.NewType(p, "", nil)
		if err != nil {
			return "", nil, fmt.Errorf("signature %q type %q: %w", signature, p, err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return name, args, nil
}
