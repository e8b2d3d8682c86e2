package facilitator

import (
	"math/big"
	"strings"
)

// formatUnits renders a smallest-unit integer as a decimal string with the
// given number of fractional digits, trailing zeros trimmed.
func formatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quo, rem := new(big.Int).QuoRem(value, scale, new(big.Int))

	if rem.Sign() == 0 {
		return quo.String()
	}

	frac := rem.String()
	for len(frac) < decimals {
		frac = "0" + frac
	}
	frac = strings.TrimRight(frac, "0")
	return quo.String() + "." + frac
}
