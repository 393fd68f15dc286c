package payments

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// ToMinorUnits converts a major-unit price (rupees) into the integer minor
// units (paise) the provider expects: major x 100, rounded half away from zero.
func ToMinorUnits(major decimal.Decimal) (int64, error) {
	minor := major.Shift(2).Round(0)
	if minor.GreaterThan(maxMinorUnits) || minor.LessThan(maxMinorUnits.Neg()) {
		return 0, fmt.Errorf("amount %s overflows minor units", major.String())
	}
	return minor.IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits for display.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
