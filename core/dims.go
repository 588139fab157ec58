package core

import (
	"math"
	"math/bits"
)

// MaxIntVal is the largest element count or byte size an array may have.
// The top bit stays free for tagging.
const MaxIntVal = math.MaxInt

// ValidateDims computes the element count and payload byte size of an array
// with the given extents and element size. Partial products are formed in
// double width so an overflow is detected instead of wrapped.
//
// A shape whose element count does not fit fails with KindDimOverflow; a shape
// that fits but whose byte size does not fails with KindSizeOverflow.
func ValidateDims(dims []int, elsz int) (nel, nbytes int, err error) {
	n := uint64(1)
	for _, d := range dims {
		if d < 0 || uint64(d) >= MaxIntVal {
			return 0, 0, Errorf(KindDimOverflow, "validate_dims", "invalid Array dimensions")
		}
		hi, lo := bits.Mul64(n, uint64(d))
		if hi != 0 || lo >= MaxIntVal {
			return 0, 0, Errorf(KindDimOverflow, "validate_dims", "invalid Array dimensions")
		}
		n = lo
	}
	if elsz < 0 {
		return 0, 0, Errorf(KindArgument, "validate_dims", "negative element size %d", elsz)
	}
	hi, lo := bits.Mul64(uint64(elsz), n)
	if hi != 0 || lo >= MaxIntVal {
		return 0, 0, Errorf(KindSizeOverflow, "validate_dims", "invalid Array size")
	}
	return int(n), int(lo), nil
}

// DimsProduct multiplies extents with the same overflow rules as ValidateDims
// but without an element size. Used for reshape and foreign wraps.
func DimsProduct(dims []int) (int, error) {
	nel, _, err := ValidateDims(dims, 0)
	return nel, err
}
