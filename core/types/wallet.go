package types

import "math/big"

// WalletKey identifies a single balance scoped to one community. A wallet is
// created lazily on first credit or debit and is never deleted.
type WalletKey struct {
	Actor     string `json:"actor"`
	Community string `json:"community"`
}

// Wallet holds the spendable balance for one (actor, community) pair. Amounts
// are expressed in minor units (one unit = 0.01 of the community currency)
// and the balance is never negative after a committed debit.
type Wallet struct {
	Key       WalletKey `json:"key"`
	Balance   *big.Int  `json:"balance"`
	UpdatedAt int64     `json:"updatedAt"`
}

// Clone returns a deep copy of the wallet so callers can safely mutate the
// copy without affecting the stored instance.
func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	clone := *w
	if w.Balance != nil {
		clone.Balance = new(big.Int).Set(w.Balance)
	} else {
		clone.Balance = big.NewInt(0)
	}
	return &clone
}

// EnsureWallet normalises a possibly-nil wallet into a usable zero-balance
// instance for the supplied key.
func EnsureWallet(w *Wallet, key WalletKey) *Wallet {
	if w == nil {
		return &Wallet{Key: key, Balance: big.NewInt(0)}
	}
	if w.Balance == nil {
		w.Balance = big.NewInt(0)
	}
	return w
}
