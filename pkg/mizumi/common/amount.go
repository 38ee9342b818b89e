package common

import "math"

// MaxAmount is the largest token amount or accumulated total the ledger
// stores. Persisted amounts are signed 64 bit integers.
const MaxAmount uint64 = math.MaxInt64

// AddAmounts returns a + b, or false when the sum exceeds MaxAmount
func AddAmounts(a, b uint64) (uint64, bool) {
	if a > MaxAmount || b > MaxAmount-a {
		return 0, false
	}
	return a + b, true
}
