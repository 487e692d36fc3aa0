package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// MustABI parses a constant ABI JSON definition and panics if it is malformed.
func MustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// MustType returns the ABI type named t, panicking for an unknown name.
func MustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
