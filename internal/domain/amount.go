package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// MinChargeAmount is the smallest amount a charge may carry (R$ 0,01).
const MinChargeAmount Amount = 1

// Amount is a BRL value in centavos.
type Amount int64

var (
	hundred = big.NewInt(100)
	one     = big.NewInt(1)
)

// ParseAmount reads a decimal string ("100", "100.5", "1e2") and rounds it
// half away from zero to whole centavos.
func ParseAmount(value string) (Amount, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("amount is empty")
	}
	r, ok := new(big.Rat).SetString(value)
	if !ok {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	r.Mul(r, new(big.Rat).SetInt(hundred))

	num, den := r.Num(), r.Denom()
	q, m := new(big.Int).QuoRem(num, den, new(big.Int))
	if new(big.Int).Mul(new(big.Int).Abs(m), big.NewInt(2)).Cmp(den) >= 0 {
		if num.Sign() < 0 {
			q.Sub(q, one)
		} else {
			q.Add(q, one)
		}
	}
	if !q.IsInt64() {
		return 0, fmt.Errorf("amount %q is out of range", value)
	}
	return Amount(q.Int64()), nil
}

// FormatAmount normalises a decimal string to two decimal places.
// Formatting an already normalised string returns it unchanged.
func FormatAmount(value string) (string, error) {
	amount, err := ParseAmount(value)
	if err != nil {
		return "", err
	}
	return amount.String(), nil
}

// String renders the amount as the provider expects it in valor.original.
func (a Amount) String() string {
	v := int64(a)
	negative := v < 0
	if negative {
		v = -v
	}
	formatted := fmt.Sprintf("%d.%02d", v/100, v%100)
	if negative {
		return "-" + formatted
	}
	return formatted
}
