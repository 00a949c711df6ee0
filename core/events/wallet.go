package events

import (
	"math/big"

	"meritledger/core/types"
)

const (
	TypeWalletCredited = "wallet.credited"
	TypeWalletDebited  = "wallet.debited"
)

// WalletCredited is emitted after a committed credit to a wallet.
type WalletCredited struct {
	Key     types.WalletKey
	Amount  *big.Int
	Balance *big.Int
}

func (WalletCredited) EventType() string { return TypeWalletCredited }

func (e WalletCredited) Event() *types.Event {
	return &types.Event{
		Type: TypeWalletCredited,
		Attributes: map[string]string{
			"actor":     e.Key.Actor,
			"community": e.Key.Community,
			"amount":    formatAmount(e.Amount),
			"balance":   formatAmount(e.Balance),
		},
	}
}

// WalletDebited is emitted after a committed debit from a wallet.
type WalletDebited struct {
	Key     types.WalletKey
	Amount  *big.Int
	Balance *big.Int
}

func (WalletDebited) EventType() string { return TypeWalletDebited }

func (e WalletDebited) Event() *types.Event {
	return &types.Event{
		Type: TypeWalletDebited,
		Attributes: map[string]string{
			"actor":     e.Key.Actor,
			"community": e.Key.Community,
			"amount":    formatAmount(e.Amount),
			"balance":   formatAmount(e.Balance),
		},
	}
}
