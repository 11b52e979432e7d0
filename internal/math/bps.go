package math

import "math/big"

// Denominator is the basis-point scale: 10000 bps == 100%.
const Denominator int64 = 10_000

const maxInt64 = int64(1<<63 - 1)

// ShareOf returns amount * bps / Denominator, truncating toward zero.
// Falls back to big.Int when the int64 product would overflow, so bound
// checks stay exact for arbitrarily large debts.
func ShareOf(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	if amount <= maxInt64/bps {
		return amount * bps / Denominator
	}

	product := new(big.Int).Mul(big.NewInt(amount), big.NewInt(bps))
	product.Quo(product, big.NewInt(Denominator))
	if !product.IsInt64() {
		// Bound exceeds the int64 range; any representable delta passes.
		return maxInt64
	}
	return product.Int64()
}

// WithinBound reports whether delta <= debt * bps / Denominator.
func WithinBound(delta, debt, bps int64) bool {
	return delta <= ShareOf(debt, bps)
}
