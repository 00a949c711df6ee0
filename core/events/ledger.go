package events

import (
	"math/big"

	"meritledger/core/types"
)

const (
	TypeTransactionRecorded = "ledger.transaction.recorded"
	TypeScoreWithdrawn      = "ledger.score.withdrawn"
	TypeBalanceTransferred  = "ledger.balance.transferred"
)

// TransactionRecorded is emitted for every committed funded action.
type TransactionRecorded struct {
	ID          string
	From        string
	Community   string
	TargetType  types.TargetType
	TargetID    string
	AmountQuota *big.Int
	AmountTotal *big.Int
	CreatedAt   int64
}

func (TransactionRecorded) EventType() string { return TypeTransactionRecorded }

func (e TransactionRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeTransactionRecorded,
		Attributes: map[string]string{
			"id":          e.ID,
			"from":        e.From,
			"community":   e.Community,
			"targetType":  string(e.TargetType),
			"targetId":    e.TargetID,
			"amountQuota": formatAmount(e.AmountQuota),
			"amountTotal": formatAmount(e.AmountTotal),
			"createdAt":   intToString(e.CreatedAt),
		},
	}
}

// ScoreWithdrawn is emitted when accumulated score is converted into wallet
// balance for the content owner.
type ScoreWithdrawn struct {
	TargetID  string
	Owner     string
	Community string
	Amount    *big.Int
	NetScore  *big.Int
}

func (ScoreWithdrawn) EventType() string { return TypeScoreWithdrawn }

func (e ScoreWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeScoreWithdrawn,
		Attributes: map[string]string{
			"targetId":  e.TargetID,
			"owner":     e.Owner,
			"community": e.Community,
			"amount":    formatAmount(e.Amount),
			"netScore":  formatAmount(e.NetScore),
		},
	}
}

// BalanceTransferred is emitted for wallet-to-wallet transfers.
type BalanceTransferred struct {
	From      string
	To        string
	Community string
	Amount    *big.Int
}

func (BalanceTransferred) EventType() string { return TypeBalanceTransferred }

func (e BalanceTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeBalanceTransferred,
		Attributes: map[string]string{
			"from":      e.From,
			"to":        e.To,
			"community": e.Community,
			"amount":    formatAmount(e.Amount),
		},
	}
}
