package fixedpoint

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func u(s string) *uint256.Int { return uint256.MustFromDecimal(s) }

func TestMulDiv_Truncates(t *testing.T) {
	got, err := MulDiv(u("10"), u("10"), u("3"))
	if err != nil {
		t.Fatalf("MulDiv: %v", err)
	}
	if got.Uint64() != 33 {
		t.Fatalf("got=%s want 33", got)
	}
}

func TestMulDiv_WideIntermediate(t *testing.T) {
	// 2^255 * 4 / 8 overflows 256 bits before the division.
	x := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	got, err := MulDiv(x, u("4"), u("8"))
	if err != nil {
		t.Fatalf("MulDiv: %v", err)
	}
	want := new(uint256.Int).Lsh(uint256.NewInt(1), 254)
	if !got.Eq(want) {
		t.Fatalf("got=%s want %s", got, want)
	}
}

func TestMulDiv_Errors(t *testing.T) {
	if _, err := MulDiv(u("1"), u("1"), u("0")); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("err=%v want ErrDivisionByZero", err)
	}
	x := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	if _, err := MulDiv(x, u("4"), u("1")); !errors.Is(err, ErrOverflow) {
		t.Fatalf("err=%v want ErrOverflow", err)
	}
}

func TestToBase18_RoundTripNeverIncreases(t *testing.T) {
	cases := []struct {
		amount   string
		decimals uint8
	}{
		{"123456789", 6},
		{"1", 0},
		{"1000000000000000001", 18},
		{"123456789012345678901234", 24},
		{"999", 20},
	}
	for _, tc := range cases {
		in := u(tc.amount)
		b18, err := ToBase18(in, tc.decimals)
		if err != nil {
			t.Fatalf("ToBase18(%s,%d): %v", tc.amount, tc.decimals, err)
		}
		back, err := FromBase18(b18, tc.decimals)
		if err != nil {
			t.Fatalf("FromBase18: %v", err)
		}
		if back.Gt(in) {
			t.Fatalf("round trip %s (dec %d) -> %s increased", tc.amount, tc.decimals, back)
		}
		if tc.decimals <= BaseDecimals && !back.Eq(in) {
			t.Fatalf("round trip %s (dec %d) -> %s, want exact", tc.amount, tc.decimals, back)
		}
	}
}

func TestToBase18_RejectsWideDecimals(t *testing.T) {
	if _, err := ToBase18(u("1"), 36); !errors.Is(err, ErrInvalidDecimals) {
		t.Fatalf("err=%v want ErrInvalidDecimals", err)
	}
}

func TestWholeUnitPrice(t *testing.T) {
	// A 6-decimal token worth 0.0005 native per whole unit has an oracle
	// price of 5e14 * 1e12.
	got, err := WholeUnitPrice(u("500000000000000000000000000"), 6)
	if err != nil {
		t.Fatalf("WholeUnitPrice: %v", err)
	}
	if !got.Eq(u("500000000000000")) {
		t.Fatalf("got=%s want 500000000000000", got)
	}
}

func TestParseFormatUnits(t *testing.T) {
	got, err := ParseUnits("0.05", 18)
	if err != nil {
		t.Fatalf("ParseUnits: %v", err)
	}
	if !got.Eq(u("50000000000000000")) {
		t.Fatalf("got=%s", got)
	}
	if s := FormatUnits(u("1500000"), 6); s != "1.5" {
		t.Fatalf("FormatUnits=%q want 1.5", s)
	}
	if _, err := ParseUnits("-1", 18); !errors.Is(err, ErrNegative) {
		t.Fatalf("err=%v want ErrNegative", err)
	}
	if got, err := ParseUnits("  ", 18); err != nil || !got.IsZero() {
		t.Fatalf("blank: got=%v err=%v", got, err)
	}
}

func TestFromBig(t *testing.T) {
	if _, err := FromBig(big.NewInt(-1)); !errors.Is(err, ErrNegative) {
		t.Fatalf("err=%v want ErrNegative", err)
	}
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := FromBig(tooBig); !errors.Is(err, ErrOverflow) {
		t.Fatalf("err=%v want ErrOverflow", err)
	}
	got, err := FromBig(big.NewInt(42))
	if err != nil || got.Uint64() != 42 {
		t.Fatalf("got=%v err=%v", got, err)
	}
}
