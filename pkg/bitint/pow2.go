/*
Package bitint provides the power-of-two helpers used to size and validate
FFT blocks. Everything here is branch-light, allocation free and safe to call
from the audio callback.

Usage:

	// Reject a block length the FFT cannot handle
	if !bitint.IsPowerOfTwo(blockLength) { ... }

	// Number of radix-2 stages for a 1024 point transform
	m := bitint.Log2(1024) // 10

----------------------------------------------------------------------

What this code does:

	NextPowerOfTwo returns the smallest power of 2 >= size. The
	subtraction (size-1) keeps exact powers of 2 unchanged:

	- For input 8 (binary 1000):
	  size-1 = 7 (binary 0111)
	  bits.Len(7) = 3
	  1 << 3 = 8

	Without the subtraction bits.Len(8) = 4 and the result would
	double to 16.

	Log2 is the inverse for exact powers of 2: the index of the single
	set bit, which bits.TrailingZeros reports directly.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size.
//
// Examples:
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo checks if n is a power of 2 using bit manipulation.
// The expression (n & (n-1)) == 0 works because:
//   - Powers of 2 have exactly one bit set
//   - Subtracting 1 from a power of 2 sets all lower bits
//   - AND operation will be 0 only for powers of 2
//
// Examples:
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
//	-8     false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns m such that 1<<m == n. It panics if n is not a power of 2,
// callers are expected to validate with IsPowerOfTwo first.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		panic("bitint: Log2 of a non power of 2")
	}
	return bits.TrailingZeros(uint(n))
}
