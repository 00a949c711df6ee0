package funding

import "math/big"

// Contribution records one investor payment into a publication pool. Several
// contributions per (investor, publication) pair are allowed; the pool total
// is their sum.
type Contribution struct {
	Investor      string   `json:"investor"`
	PublicationID string   `json:"publicationId"`
	Amount        *big.Int `json:"amount"`
	CreatedAt     int64    `json:"createdAt"`
}

// Clone returns a deep copy of the contribution.
func (c *Contribution) Clone() *Contribution {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Amount != nil {
		clone.Amount = new(big.Int).Set(c.Amount)
	}
	return &clone
}

// ClosingSummary is computed exactly once when a publication transitions to
// closed and is stored immutably alongside it.
type ClosingSummary struct {
	PublicationID string   `json:"publicationId"`
	TotalEarned   *big.Int `json:"totalEarned"`
	PoolReturned  *big.Int `json:"poolReturned"`
	Distributed   *big.Int `json:"distributedToInvestors"`
	AuthorShare   *big.Int `json:"authorReceived"`
	ClosedAt      int64    `json:"closedAt"`
}

// Clone returns a deep copy of the summary.
func (s *ClosingSummary) Clone() *ClosingSummary {
	if s == nil {
		return nil
	}
	clone := *s
	for _, pair := range []struct {
		src *big.Int
		dst **big.Int
	}{
		{s.TotalEarned, &clone.TotalEarned},
		{s.PoolReturned, &clone.PoolReturned},
		{s.Distributed, &clone.Distributed},
		{s.AuthorShare, &clone.AuthorShare},
	} {
		if pair.src != nil {
			*pair.dst = new(big.Int).Set(pair.src)
		} else {
			*pair.dst = big.NewInt(0)
		}
	}
	return &clone
}
