package ethutil

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// nativeAliases name the chain's own currency in token lists. It is stored as
// the zero address.
var nativeAliases = map[string]struct{}{
	"eth":    {},
	"native": {},
	"0x0":    {},
}

func splitList(raw string) []string {
	return strings.FieldsFunc(strings.TrimSpace(raw), func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\n', '\r', '\t':
			return true
		default:
			return false
		}
	})
}

// ParseAddressList parses a list of hex addresses from a single string.
//
// Supported separators: commas and whitespace (space/newline/tab), plus semicolons.
// Duplicate addresses are ignored (first occurrence wins).
//
// Returns (nil, nil) if raw is empty/whitespace.
func ParseAddressList(raw string) ([]common.Address, error) {
	return parseList(raw, false)
}

// ParseTokenList is ParseAddressList that also accepts the native currency,
// written as "ETH", "native", "0x0" or the zero address.
func ParseTokenList(raw string) ([]common.Address, error) {
	return parseList(raw, true)
}

// ParseToken parses a single token, allowing the native aliases.
func ParseToken(raw string) (common.Address, error) {
	s := strings.TrimSpace(raw)
	if addr, ok := nativeAlias(s); ok {
		return addr, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid hex address %q", s)
	}
	return common.HexToAddress(s), nil
}

func nativeAlias(s string) (common.Address, bool) {
	_, ok := nativeAliases[strings.ToLower(s)]
	return common.Address{}, ok
}

func parseList(raw string, allowNative bool) ([]common.Address, error) {
	parts := splitList(raw)
	if len(parts) == 0 {
		return nil, nil
	}

	out := make([]common.Address, 0, len(parts))
	seen := make(map[common.Address]struct{}, len(parts))
	for _, s := range parts {
		var addr common.Address
		if native, ok := nativeAlias(s); ok && allowNative {
			addr = native
		} else if common.IsHexAddress(s) {
			addr = common.HexToAddress(s)
			if addr == (common.Address{}) && !allowNative {
				return nil, fmt.Errorf("zero address in %q", raw)
			}
		} else {
			return nil, fmt.Errorf("invalid hex address %q in %q", s, raw)
		}

		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out, nil
}

// JoinHex renders addresses for log lines, with the native sentinel shown as
// symbol.
func JoinHex(addrs []common.Address, symbol string) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == (common.Address{}) && symbol != "" {
			parts = append(parts, symbol)
			continue
		}
		parts = append(parts, a.Hex())
	}
	return strings.Join(parts, ",")
}
