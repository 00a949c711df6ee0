package ledger

import (
	"errors"
	"math/big"

	"meritledger/core/types"
)

// Transaction is the immutable system of record for a single value movement.
// AmountTotal is signed: positive credits the target, negative consumes score
// (withdrawals). AmountQuota and AmountWallet carry the funding split and
// must sum to AmountTotal; the invariant is checked at construction and the
// record is never mutated afterwards.
type Transaction struct {
	ID           string           `json:"id"`
	From         string           `json:"from"`
	Community    string           `json:"community"`
	TargetType   types.TargetType `json:"targetType"`
	TargetID     string           `json:"targetId"`
	ParentID     string           `json:"parentId,omitempty"`
	AmountQuota  *big.Int         `json:"amountQuota"`
	AmountWallet *big.Int         `json:"amountWallet"`
	AmountTotal  *big.Int         `json:"amountTotal"`
	Comment      string           `json:"comment,omitempty"`
	CreatedAt    int64            `json:"createdAt"`
}

// Validate enforces the structural invariants of a transaction record.
func (tx *Transaction) Validate() error {
	if tx == nil {
		return errors.New("ledger: nil transaction")
	}
	if tx.ID == "" {
		return errors.New("ledger: transaction id required")
	}
	if tx.From == "" {
		return errors.New("ledger: transaction funder required")
	}
	if !tx.TargetType.Valid() {
		return errors.New("ledger: invalid target type")
	}
	if tx.AmountQuota == nil || tx.AmountWallet == nil || tx.AmountTotal == nil {
		return errors.New("ledger: transaction amounts must be set")
	}
	sum := new(big.Int).Add(tx.AmountQuota, tx.AmountWallet)
	if sum.Cmp(tx.AmountTotal) != 0 {
		return errors.New("ledger: amount split does not sum to total")
	}
	return nil
}

// Clone returns a deep copy of the transaction.
func (tx *Transaction) Clone() *Transaction {
	if tx == nil {
		return nil
	}
	clone := *tx
	if tx.AmountQuota != nil {
		clone.AmountQuota = new(big.Int).Set(tx.AmountQuota)
	}
	if tx.AmountWallet != nil {
		clone.AmountWallet = new(big.Int).Set(tx.AmountWallet)
	}
	if tx.AmountTotal != nil {
		clone.AmountTotal = new(big.Int).Set(tx.AmountTotal)
	}
	return &clone
}

// ContentScore is the running aggregate of all transactions against one
// target. It is owned by the transaction ledger; withdrawal and closing read
// it but never mutate it directly.
type ContentScore struct {
	Positive *big.Int `json:"positive"`
	Negative *big.Int `json:"negative"`
}

// NewContentScore returns a zero-valued score.
func NewContentScore() *ContentScore {
	return &ContentScore{Positive: big.NewInt(0), Negative: big.NewInt(0)}
}

// Net returns positive minus negative.
func (s *ContentScore) Net() *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	pos := s.Positive
	if pos == nil {
		pos = big.NewInt(0)
	}
	neg := s.Negative
	if neg == nil {
		neg = big.NewInt(0)
	}
	return new(big.Int).Sub(pos, neg)
}

// Apply folds a signed transaction total into the aggregate.
func (s *ContentScore) Apply(delta *big.Int) {
	if s == nil || delta == nil || delta.Sign() == 0 {
		return
	}
	if s.Positive == nil {
		s.Positive = big.NewInt(0)
	}
	if s.Negative == nil {
		s.Negative = big.NewInt(0)
	}
	if delta.Sign() > 0 {
		s.Positive = new(big.Int).Add(s.Positive, delta)
		return
	}
	s.Negative = new(big.Int).Add(s.Negative, new(big.Int).Neg(delta))
}

// Clone returns a deep copy of the score.
func (s *ContentScore) Clone() *ContentScore {
	if s == nil {
		return NewContentScore()
	}
	clone := NewContentScore()
	if s.Positive != nil {
		clone.Positive = new(big.Int).Set(s.Positive)
	}
	if s.Negative != nil {
		clone.Negative = new(big.Int).Set(s.Negative)
	}
	return clone
}

// Pagination bounds read projections over the append-only log. A zero Limit
// falls back to DefaultPageSize; results are ordered newest-first.
type Pagination struct {
	Offset int
	Limit  int
}

// DefaultPageSize caps unbounded list requests.
const DefaultPageSize = 50

// Normalize clamps the pagination window to sane values.
func (p Pagination) Normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 || p.Limit > DefaultPageSize {
		p.Limit = DefaultPageSize
	}
	return p
}
