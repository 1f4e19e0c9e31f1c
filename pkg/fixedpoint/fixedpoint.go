// Package fixedpoint holds the integer arithmetic the ledger relies on: checked
// uint64 addition/subtraction for balances and scaled percentage comparisons for
// quorum and approval thresholds. Nothing here uses floating point.
package fixedpoint

import (
	"math/bits"

	dErrors "curaledger/pkg/domain-errors"
)

// Scale multiplies both sides of a ratio comparison before the percentage is
// applied so that sub-percent fractions survive integer division.
const Scale uint64 = 10_000

// PercentBase is the denominator of every percentage threshold.
const PercentBase uint64 = 100

// CheckedAdd returns a+b or CodeOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, dErrors.New(dErrors.CodeOverflow, "arithmetic overflow")
	}
	return sum, nil
}

// CheckedSub returns a-b or CodeUnderflow.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, dErrors.New(dErrors.CodeUnderflow, "arithmetic underflow")
	}
	return diff, nil
}

// CheckedMul returns a*b or CodeOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, dErrors.New(dErrors.CodeOverflow, "arithmetic overflow")
	}
	return lo, nil
}

// Sum adds values with overflow checking.
func Sum(values ...uint64) (uint64, error) {
	var total uint64
	for _, v := range values {
		next, err := CheckedAdd(total, v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}

// MeetsThreshold reports whether part/whole >= percent/100, evaluated as
// part*Scale*100 >= whole*Scale*percent. A zero whole never meets a threshold.
func MeetsThreshold(part, whole, percent uint64) (bool, error) {
	if whole == 0 {
		return false, nil
	}
	lhs, err := scaled(part, PercentBase)
	if err != nil {
		return false, err
	}
	rhs, err := scaled(whole, percent)
	if err != nil {
		return false, err
	}
	return lhs >= rhs, nil
}

// BasisPoints returns part/whole in hundredths of a percent, rounded down.
// Used for read views only; threshold decisions go through MeetsThreshold.
func BasisPoints(part, whole uint64) (uint64, error) {
	if whole == 0 {
		return 0, nil
	}
	num, err := CheckedMul(part, Scale)
	if err != nil {
		return 0, err
	}
	return num / whole, nil
}

func scaled(v, factor uint64) (uint64, error) {
	s, err := CheckedMul(v, Scale)
	if err != nil {
		return 0, err
	}
	return CheckedMul(s, factor)
}

// Min returns the smaller of a and b.
func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
