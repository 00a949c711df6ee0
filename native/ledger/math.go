package ledger

import "math/big"

// DefaultWithdrawIncrement is the smallest withdrawable step in minor units
// (10 minor units = 0.1 of the display currency).
var DefaultWithdrawIncrement = big.NewInt(10)

// floorToIncrement rounds amount down to a whole multiple of increment. An
// increment of zero or one leaves the amount untouched.
func floorToIncrement(amount, increment *big.Int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	if increment == nil || increment.Sign() <= 0 || increment.Cmp(big.NewInt(1)) == 0 {
		return new(big.Int).Set(amount)
	}
	rem := new(big.Int).Mod(amount, increment)
	return new(big.Int).Sub(amount, rem)
}
