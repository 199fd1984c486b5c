package engine

import "math/bits"

// All balances and payment amounts are smallest-unit integers (micro-USDC
// for the production deployment). Arithmetic on them is checked: anything
// that would wrap aborts the surrounding operation instead of silently
// corrupting the pool.

// CheckedAdd returns a+b, or ErrArithmeticOverflow if the sum wraps.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b, or ErrArithmeticOverflow if b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}

// CheckedMul returns a*b, or ErrArithmeticOverflow if the product does not
// fit in 64 bits.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return lo, nil
}

// Split partitions amount into (primary, secondary) where primary is
// floor(amount * primaryPct / 100) and secondary is the rest. The two shares
// always sum exactly to amount: the secondary side absorbs the rounding
// remainder, so callers must not assume the percentage side is the precise
// one. Used at 60 (entry payment, pool side is primary), 20 (escape plan,
// last participant is primary), and 10 (emergency recovery ceiling).
func Split(amount uint64, primaryPct uint8) (primary, secondary uint64, err error) {
	if primaryPct > 100 {
		return 0, 0, ErrInvalidInput
	}
	scaled, err := CheckedMul(amount, uint64(primaryPct))
	if err != nil {
		return 0, 0, err
	}
	primary = scaled / 100
	secondary, err = CheckedSub(amount, primary)
	if err != nil {
		return 0, 0, err
	}
	return primary, secondary, nil
}
