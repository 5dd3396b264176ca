package domain

import "github.com/shopspring/decimal"

// Currency is the ISO code every amount in the store is denominated in.
const Currency = "PHP"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts an amount to centavos, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts centavos back to a decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
