package wallet

import (
	"math/big"
	"time"

	"meritledger/core/events"
	"meritledger/core/types"
)

// State describes the persistence the wallet ledger needs from the
// surrounding state implementation.
type State interface {
	WalletGet(key types.WalletKey) (*types.Wallet, bool, error)
	WalletPut(wallet *types.Wallet) error
}

// Ledger is the atomic per-(actor, community) balance counter. All spending
// and crediting in the system passes through it; callers compose debits and
// credits with their own bookkeeping inside one state unit.
type Ledger struct {
	state   State
	emitter events.Emitter
	nowFn   func() int64
}

// NewLedger constructs a wallet ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state State) { l.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(evt)
}

func (l *Ledger) now() int64 {
	if l == nil || l.nowFn == nil {
		return time.Now().Unix()
	}
	return l.nowFn()
}

// Balance returns the current balance for the key, zero if the wallet was
// never touched.
func (l *Ledger) Balance(key types.WalletKey) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	w, ok, err := l.state.WalletGet(key)
	if err != nil {
		return nil, err
	}
	if !ok || w == nil || w.Balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(w.Balance), nil
}

// Credit unconditionally increases the balance and returns the new value.
func (l *Ledger) Credit(key types.WalletKey, amount *big.Int) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	w, _, err := l.state.WalletGet(key)
	if err != nil {
		return nil, err
	}
	w = types.EnsureWallet(w, key)
	w.Balance = new(big.Int).Add(w.Balance, amount)
	w.UpdatedAt = l.now()
	if err := l.state.WalletPut(w); err != nil {
		return nil, err
	}
	l.emit(events.WalletCredited{Key: key, Amount: new(big.Int).Set(amount), Balance: new(big.Int).Set(w.Balance)})
	return new(big.Int).Set(w.Balance), nil
}

// Debit decreases the balance when sufficient funds exist. The check and the
// decrement happen under the state unit's per-key exclusivity, so two
// concurrent debits can never both succeed past the available balance. On
// failure the balance is unchanged and the error reports the shortfall.
func (l *Ledger) Debit(key types.WalletKey, amount *big.Int) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	w, _, err := l.state.WalletGet(key)
	if err != nil {
		return nil, err
	}
	w = types.EnsureWallet(w, key)
	if w.Balance.Cmp(amount) < 0 {
		return nil, &InsufficientFundsError{
			Actor:     key.Actor,
			Community: key.Community,
			Available: new(big.Int).Set(w.Balance),
			Requested: new(big.Int).Set(amount),
		}
	}
	w.Balance = new(big.Int).Sub(w.Balance, amount)
	w.UpdatedAt = l.now()
	if err := l.state.WalletPut(w); err != nil {
		return nil, err
	}
	l.emit(events.WalletDebited{Key: key, Amount: new(big.Int).Set(amount), Balance: new(big.Int).Set(w.Balance)})
	return new(big.Int).Set(w.Balance), nil
}
