package solana

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// USDC carries 6 decimal places on every chain we settle on.
const (
	USDCDecimals   = 6
	usdcMultiplier = 1_000_000
)

// USDCAmount is a USDC value held in its smallest unit (micro-USDC). All
// ledger math happens in smallest units; floats exist only at the display
// and input edges.
type USDCAmount struct {
	Value *big.Int
}

// NewUSDCAmount converts a user-facing float into micro-USDC. The float is
// formatted to exactly six decimal places first so binary float artifacts
// never leak into the stored value.
func NewUSDCAmount(amount float64) (*USDCAmount, error) {
	str := fmt.Sprintf("%.6f", amount)
	parts := strings.Split(str, ".")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid amount format: %q", str)
	}
	value, ok := new(big.Int).SetString(parts[0]+parts[1], 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount format: %q", str)
	}
	return &USDCAmount{Value: value}, nil
}

// FromSmallestUnit wraps a raw micro-USDC value.
func FromSmallestUnit(v uint64) *USDCAmount {
	return &USDCAmount{Value: new(big.Int).SetUint64(v)}
}

// Zero returns a zero amount.
func Zero() *USDCAmount {
	return &USDCAmount{Value: new(big.Int)}
}

// ToSmallestUnit returns the amount in micro-USDC.
func (a *USDCAmount) ToSmallestUnit() *big.Int {
	return a.Value
}

// ToUSDC renders the amount as a float64. Display only; never feed the
// result back into arithmetic.
func (a *USDCAmount) ToUSDC() float64 {
	str := a.Value.String()
	if len(str) <= USDCDecimals {
		str = strings.Repeat("0", USDCDecimals-len(str)+1) + str
	}
	whole := str[:len(str)-USDCDecimals]
	decimal := str[len(str)-USDCDecimals:]
	result, _ := strconv.ParseFloat(whole+"."+decimal, 64)
	return result
}

// Add returns a+b.
func (a *USDCAmount) Add(b *USDCAmount) *USDCAmount {
	if a == nil || b == nil {
		return nil
	}
	return &USDCAmount{Value: new(big.Int).Add(a.Value, b.Value)}
}

// Sub returns a-b.
func (a *USDCAmount) Sub(b *USDCAmount) *USDCAmount {
	if a == nil || b == nil {
		return nil
	}
	return &USDCAmount{Value: new(big.Int).Sub(a.Value, b.Value)}
}

// Cmp compares a and b, returning -1, 0, or 1.
func (a *USDCAmount) Cmp(b *USDCAmount) int {
	if a == nil || b == nil {
		return 0
	}
	return a.Value.Cmp(b.Value)
}

// IsZero reports whether the amount is zero.
func (a *USDCAmount) IsZero() bool {
	return a == nil || a.Value == nil || a.Value.Sign() == 0
}

// IsPositive reports whether the amount is strictly positive.
func (a *USDCAmount) IsPositive() bool {
	return a != nil && a.Value != nil && a.Value.Sign() > 0
}
