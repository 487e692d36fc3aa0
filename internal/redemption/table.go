package redemption

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// TokenEntry describes how one collateral token is redeemed.
type TokenEntry struct {
	Steps []Tag
	// Router overrides best-liquidity router selection for the final swap.
	Router *common.Address
}

// Table is the static redemption configuration for one chain.
type Table struct {
	Tokens     map[common.Address]TokenEntry
	Strategies map[Tag]common.Address
	// Unwraps maps a staked derivative to the token a staked-unwrap step yields.
	Unwraps map[common.Address]common.Address
}

type fileTable struct {
	Strategies map[string]string    `yaml:"strategies"`
	Tokens     map[string]fileEntry `yaml:"tokens"`
	Unwraps    map[string]string    `yaml:"unwraps"`
}

type fileEntry struct {
	Steps  []string `yaml:"steps"`
	Router string   `yaml:"router"`
}

// EmptyTable returns a table with no configured tokens.
func EmptyTable() Table {
	return Table{
		Tokens:     map[common.Address]TokenEntry{},
		Strategies: map[Tag]common.Address{},
		Unwraps:    map[common.Address]common.Address{},
	}
}

// LoadTable reads a YAML redemption table from path. An empty path yields an
// empty table.
func LoadTable(path string) (Table, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return EmptyTable(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("open strategy table: %w", err)
	}
	return ParseTable(bytes.NewReader(b))
}

// ParseTable decodes and validates a YAML redemption table.
func ParseTable(r io.Reader) (Table, error) {
	var raw fileTable
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && err != io.EOF {
		return Table{}, fmt.Errorf("decode strategy table: %w", err)
	}

	out := EmptyTable()
	for name, addr := range raw.Strategies {
		tag := Tag(strings.TrimSpace(name))
		if !knownTag(tag) {
			return Table{}, fmt.Errorf("strategies: unknown tag %q", name)
		}
		a, err := parseAddress(addr)
		if err != nil {
			return Table{}, fmt.Errorf("strategies.%s: %w", name, err)
		}
		out.Strategies[tag] = a
	}

	for from, to := range raw.Unwraps {
		f, err := parseAddress(from)
		if err != nil {
			return Table{}, fmt.Errorf("unwraps: %w", err)
		}
		t, err := parseAddress(to)
		if err != nil {
			return Table{}, fmt.Errorf("unwraps.%s: %w", from, err)
		}
		out.Unwraps[f] = t
	}

	for key, e := range raw.Tokens {
		token, err := parseAddress(key)
		if err != nil {
			return Table{}, fmt.Errorf("tokens: %w", err)
		}
		entry := TokenEntry{Steps: make([]Tag, 0, len(e.Steps))}
		for i, s := range e.Steps {
			tag := Tag(strings.TrimSpace(s))
			if !knownTag(tag) {
				return Table{}, fmt.Errorf("tokens.%s.steps[%d]: unknown tag %q", key, i, s)
			}
			if tag == AMMSwap && i != len(e.Steps)-1 {
				return Table{}, fmt.Errorf("tokens.%s: %s must be the last step", key, AMMSwap)
			}
			if tag != AMMSwap {
				if _, ok := out.Strategies[tag]; !ok {
					return Table{}, fmt.Errorf("tokens.%s: no strategy contract for %q", key, tag)
				}
			}
			entry.Steps = append(entry.Steps, tag)
		}
		if len(entry.Steps) > maxSteps {
			return Table{}, fmt.Errorf("tokens.%s: %w", key, ErrChainTooLong)
		}
		if strings.TrimSpace(e.Router) != "" {
			r, err := parseAddress(e.Router)
			if err != nil {
				return Table{}, fmt.Errorf("tokens.%s.router: %w", key, err)
			}
			entry.Router = &r
		}
		if len(entry.Steps) > 0 && entry.Steps[0] == StakedUnwrap {
			if _, ok := out.Unwraps[token]; !ok {
				return Table{}, fmt.Errorf("tokens.%s: %s requires an unwraps entry", key, StakedUnwrap)
			}
		}
		out.Tokens[token] = entry
	}
	return out, nil
}

func knownTag(t Tag) bool {
	switch t {
	case CurveLP, YearnVault, StakedUnwrap, AMMSwap:
		return true
	default:
		return false
	}
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid hex address %q", s)
	}
	return common.HexToAddress(s), nil
}
