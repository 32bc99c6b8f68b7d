package composer

import (
	"math/big"
)

// toSmallestUnit converts a human-decimal amount to smallest units,
// truncating toward zero. A route must never claim more smallest units than
// the human amount represents.
func toSmallestUnit(amount float64, decimals uint8) *big.Int {
	if amount <= 0 {
		return big.NewInt(0)
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)) //nolint:gomnd
	scaled := new(big.Float).Mul(big.NewFloat(amount), scale)
	result, _ := scaled.Int(nil)
	return result
}

// fromSmallestUnit converts smallest units back to a human-decimal amount.
// Only used for display steps, never for execution amounts.
func fromSmallestUnit(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)) //nolint:gomnd
	result, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), scale).Float64()
	return result
}
