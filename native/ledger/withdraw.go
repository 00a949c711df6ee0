package ledger

import (
	"math/big"
	"strings"

	"meritledger/core/events"
	"meritledger/core/types"
)

// Withdraw converts a bounded portion of the target's accumulated net score
// into spendable balance for the content owner. The request is floored to the
// configured minimum increment; the score reduction and the wallet credit
// commit as one unit.
func (e *Engine) Withdraw(targetID, caller string, amount *big.Int) (*Transaction, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	target, err := e.loadOpenTarget(targetID)
	if err != nil {
		return nil, err
	}
	if caller != target.Owner() {
		return nil, ErrNotAuthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	floored := floorToIncrement(amount, e.withdrawIncrement)
	if floored.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	score, _, err := e.state.ScoreGet(target.ID)
	if err != nil {
		return nil, err
	}
	score = score.Clone()
	if floored.Cmp(score.Net()) > 0 {
		return nil, ErrAmountExceedsScore
	}

	tx := &Transaction{
		ID:           e.idFn(),
		From:         caller,
		Community:    target.Community,
		TargetType:   target.Type,
		TargetID:     target.ID,
		ParentID:     target.ParentID,
		AmountQuota:  big.NewInt(0),
		AmountWallet: new(big.Int).Neg(floored),
		AmountTotal:  new(big.Int).Neg(floored),
		Comment:      "withdrawal",
		CreatedAt:    e.now(),
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if err := e.state.TransactionPut(tx); err != nil {
		return nil, err
	}
	score.Apply(tx.AmountTotal)
	if err := e.state.ScorePut(target.ID, score); err != nil {
		return nil, err
	}
	key := types.WalletKey{Actor: caller, Community: target.Community}
	if _, err := e.wallets.Credit(key, floored); err != nil {
		return nil, err
	}
	e.emit(events.ScoreWithdrawn{
		TargetID:  target.ID,
		Owner:     caller,
		Community: target.Community,
		Amount:    new(big.Int).Set(floored),
		NetScore:  score.Net(),
	})
	return tx.Clone(), nil
}

// Transfer moves spendable balance from one actor's wallet to another's
// within the same community and appends the movement to the transaction log.
// Unlike Withdraw it is bounded by the source wallet, not a content score.
func (e *Engine) Transfer(community, from, to string, amount *big.Int, comment string) (*Transaction, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" || to == "" {
		return nil, ErrNotAuthorized
	}
	if from == to {
		return nil, &SelfFundingError{Actor: from, TargetID: to}
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	floored := floorToIncrement(amount, e.withdrawIncrement)
	if floored.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := e.wallets.Debit(types.WalletKey{Actor: from, Community: community}, floored); err != nil {
		return nil, err
	}
	if _, err := e.wallets.Credit(types.WalletKey{Actor: to, Community: community}, floored); err != nil {
		return nil, err
	}
	tx := &Transaction{
		ID:           e.idFn(),
		From:         from,
		Community:    community,
		TargetType:   types.TargetActor,
		TargetID:     to,
		AmountQuota:  big.NewInt(0),
		AmountWallet: new(big.Int).Set(floored),
		AmountTotal:  new(big.Int).Set(floored),
		Comment:      strings.TrimSpace(comment),
		CreatedAt:    e.now(),
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if err := e.state.TransactionPut(tx); err != nil {
		return nil, err
	}
	e.emit(events.BalanceTransferred{
		From:      from,
		To:        to,
		Community: community,
		Amount:    new(big.Int).Set(floored),
	})
	return tx.Clone(), nil
}
