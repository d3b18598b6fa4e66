package channel

import (
	"fmt"
	"math/big"
	"strings"
)

// TokenDecimals is the precision of required amounts entered in token units.
const TokenDecimals = 18

// ParseAmount converts a decimal token amount such as "1.5" into base units.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > TokenDecimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, TokenDecimals)
	}
	digits := whole + frac + strings.Repeat("0", TokenDecimals-len(frac))
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok || n.Sign() < 0 || strings.ContainsAny(digits, "+-") {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}

// FormatAmount renders base units as a decimal token amount.
func FormatAmount(n *big.Int) string {
	if n == nil {
		return "0"
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)
	whole, frac := new(big.Int).QuoRem(n, unit, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	f := frac.String()
	f = strings.Repeat("0", TokenDecimals-len(f)) + f
	return whole.String() + "." + strings.TrimRight(f, "0")
}
