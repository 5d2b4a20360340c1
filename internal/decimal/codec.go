// Package decimal converts between the 2-decimal "minor unit" integers used
// throughout the payment model and the atomic U256 amounts tokens speak
// on-chain.
package decimal

import (
	"math/big"
	"strings"
)

// minorDecimals is the fixed precision of every amount_minor value: cents.
const minorDecimals = 2

var (
	maxInt32Big = big.NewInt(int64(^uint32(0) >> 1))
	ten         = big.NewInt(10)
)

// ToMinor converts an atomic amount (as held on-chain, with `decimal` digits
// of precision) into a 2-decimal minor-unit int32. It rounds toward zero and
// saturates at math.MaxInt32.
func ToMinor(atomic *big.Int, decimal uint8) int32 {
	scale := scaleFactor(decimal)
	var res *big.Int
	if int(decimal) >= minorDecimals {
		res = new(big.Int).Quo(atomic, scale)
	} else {
		res = new(big.Int).Mul(atomic, scale)
	}
	if res.Cmp(maxInt32Big) > 0 {
		return int32(maxInt32Big.Int64())
	}
	return int32(res.Int64())
}

// ToAtomic converts a 2-decimal minor-unit amount into the token's atomic
// U256 representation for the given decimal precision.
func ToAtomic(minor int32, decimal uint8) *big.Int {
	scale := scaleFactor(decimal)
	i := big.NewInt(int64(minor))
	if int(decimal) >= minorDecimals {
		return new(big.Int).Mul(i, scale)
	}
	return new(big.Int).Quo(i, scale)
}

// scaleFactor returns 10^|decimal-2|.
func scaleFactor(decimal uint8) *big.Int {
	var exp int
	if int(decimal) >= minorDecimals {
		exp = int(decimal) - minorDecimals
	} else {
		exp = minorDecimals - int(decimal)
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(exp)), nil)
}

// PriceToAtomic parses a decimal price string of the form "[int].[frac]?"
// into the atomic amount for a token with the given decimal precision.
// Fractional digits beyond `decimal` are truncated, not rounded. Non-numeric
// fragments parse as zero; this never returns an error.
func PriceToAtomic(price string, decimal uint8) *big.Int {
	intPart, fracPart, _ := strings.Cut(price, ".")

	i := parseDigitsOrZero(intPart)
	if len(fracPart) > int(decimal) {
		fracPart = fracPart[:decimal]
	}
	f := parseDigitsOrZero(fracPart)

	scale := new(big.Int).Exp(ten, big.NewInt(int64(decimal)), nil)
	fracScale := new(big.Int).Exp(ten, big.NewInt(int64(decimal)-int64(len(fracPart))), nil)

	result := new(big.Int).Mul(i, scale)
	result.Add(result, new(big.Int).Mul(f, fracScale))
	return result
}

func parseDigitsOrZero(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
