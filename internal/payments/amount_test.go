package payments

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1999.5", 199950},
		{"500", 50000},
		{"500.00", 50000},
		{"0.015", 2},
		{"0.014", 1},
		{"12.345", 1235},
		{"1", 100},
	}
	for _, tc := range cases {
		got, err := ToMinorUnits(decimal.RequireFromString(tc.in))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestToMinorUnitsOverflow(t *testing.T) {
	if _, err := ToMinorUnits(decimal.RequireFromString("1e30")); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestFromMinorUnits(t *testing.T) {
	if got := FromMinorUnits(199950).StringFixed(2); got != "1999.50" {
		t.Fatalf("got %s", got)
	}
}
