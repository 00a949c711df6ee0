package funding

import (
	"math/big"
	"sort"
)

var (
	oneHundred = big.NewInt(100)
	two        = big.NewInt(2)
)

// roundHalfUpPercent computes value × pct / 100 rounded half-up to the
// ledger's minor unit. Callers pass a non-negative value.
func roundHalfUpPercent(value *big.Int, pct uint32) *big.Int {
	if value == nil || value.Sign() <= 0 || pct == 0 {
		return big.NewInt(0)
	}
	n := new(big.Int).Mul(value, new(big.Int).SetUint64(uint64(pct)))
	q, r := new(big.Int).QuoRem(n, oneHundred, new(big.Int))
	if new(big.Int).Mul(r, two).Cmp(oneHundred) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// stake is one investor's aggregate position in a pool.
type stake struct {
	investor string
	amount   *big.Int
}

// proRataShares partitions distributed across stakes proportionally to their
// share of poolTotal, flooring per investor. Flooring keeps the residual
// non-negative, so no share can exceed its exact proportion; the residual is
// assigned to the largest contributor (ties broken by smallest investor id)
// and the shares always sum to distributed exactly.
func proRataShares(distributed, poolTotal *big.Int, stakes []stake) map[string]*big.Int {
	shares := make(map[string]*big.Int, len(stakes))
	if distributed == nil || distributed.Sign() <= 0 || poolTotal == nil || poolTotal.Sign() <= 0 {
		for _, s := range stakes {
			shares[s.investor] = big.NewInt(0)
		}
		return shares
	}
	assigned := big.NewInt(0)
	for _, s := range stakes {
		n := new(big.Int).Mul(distributed, s.amount)
		q := new(big.Int).Quo(n, poolTotal)
		shares[s.investor] = q
		assigned.Add(assigned, q)
	}
	residual := new(big.Int).Sub(distributed, assigned)
	if residual.Sign() > 0 && len(stakes) > 0 {
		largest := largestStake(stakes)
		shares[largest] = new(big.Int).Add(shares[largest], residual)
	}
	return shares
}

func largestStake(stakes []stake) string {
	ordered := make([]stake, len(stakes))
	copy(ordered, stakes)
	sort.Slice(ordered, func(i, j int) bool {
		cmp := ordered[i].amount.Cmp(ordered[j].amount)
		if cmp != 0 {
			return cmp > 0
		}
		return ordered[i].investor < ordered[j].investor
	})
	return ordered[0].investor
}
