// Package digestcodec holds the canonical byte encodings the world's state
// digest is built from. Two worlds that write the same logical state through
// these helpers produce identical digests on any platform.
package digestcodec

import "math"

// BoolByte encodes a flag as a single byte.
func BoolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// MilliUnits converts a currency or value amount to integral thousandths.
// Digests hash the integer so float formatting can never wobble them.
func MilliUnits(v float64) int64 {
	return int64(math.Round(v * 1000))
}
