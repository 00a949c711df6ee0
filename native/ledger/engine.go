package ledger

import (
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"meritledger/core/events"
	"meritledger/core/types"
	"meritledger/native/quota"
	"meritledger/native/wallet"
)

// State describes the persistence the transaction ledger needs from the
// surrounding state implementation. List projections return newest-first.
type State interface {
	TargetGet(id string) (*types.Target, bool, error)
	TransactionPut(tx *Transaction) error
	TransactionGet(id string) (*Transaction, bool, error)
	TransactionsByTarget(targetID string, p Pagination) ([]*Transaction, error)
	TransactionsByActor(actor string, p Pagination) ([]*Transaction, error)
	TransactionsByParent(parentID string, p Pagination) ([]*Transaction, error)
	ScoreGet(targetID string) (*ContentScore, bool, error)
	ScorePut(targetID string, score *ContentScore) error
}

// Engine appends funded actions to the transaction log, splitting each amount
// into its quota-funded and wallet-funded portions and folding the total into
// the target's content score. Every mutating entry point is expected to run
// inside one atomic state unit so a failure leaves no partial application.
type Engine struct {
	state             State
	wallets           *wallet.Ledger
	quotas            *quota.Tracker
	emitter           events.Emitter
	nowFn             func() int64
	idFn              func() string
	withdrawIncrement *big.Int
}

// NewEngine constructs a ledger engine over the wallet ledger and quota
// tracker that fund its entries.
func NewEngine(wallets *wallet.Ledger, quotas *quota.Tracker) *Engine {
	return &Engine{
		wallets:           wallets,
		quotas:            quotas,
		emitter:           events.NoopEmitter{},
		nowFn:             func() int64 { return time.Now().Unix() },
		idFn:              uuid.NewString,
		withdrawIncrement: new(big.Int).Set(DefaultWithdrawIncrement),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetIDFunc overrides transaction id generation for deterministic tests.
func (e *Engine) SetIDFunc(fn func() string) {
	if fn == nil {
		e.idFn = uuid.NewString
		return
	}
	e.idFn = fn
}

// SetWithdrawIncrement configures the minimum withdrawable step in minor
// units. Non-positive values reset the default.
func (e *Engine) SetWithdrawIncrement(inc *big.Int) {
	if inc == nil || inc.Sign() <= 0 {
		e.withdrawIncrement = new(big.Int).Set(DefaultWithdrawIncrement)
		return
	}
	e.withdrawIncrement = new(big.Int).Set(inc)
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// loadOpenTarget resolves a target and rejects it when it, or its parent
// publication, has reached the terminal closed state.
func (e *Engine) loadOpenTarget(id string) (*types.Target, error) {
	target, ok, err := e.state.TargetGet(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if !ok || target == nil {
		return nil, ErrTargetNotFound
	}
	if target.Status == types.TargetClosed {
		return nil, ErrTargetClosed
	}
	if target.ParentID != "" {
		parent, ok, err := e.state.TargetGet(target.ParentID)
		if err != nil {
			return nil, err
		}
		if ok && parent != nil && parent.Status == types.TargetClosed {
			return nil, ErrTargetClosed
		}
	}
	return target, nil
}

// Record appends a funded action against a target. The signed amount credits
// (positive) or debits (negative) the target's score; the funder always pays
// the absolute value, quota first, wallet for the remainder. Zero-amount
// records (plain comments) skip the split but still append an entry.
func (e *Engine) Record(from, targetID string, amount *big.Int, comment string) (*Transaction, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	target, err := e.loadOpenTarget(targetID)
	if err != nil {
		return nil, err
	}
	if err := CheckSelfFunding(from, target); err != nil {
		return nil, err
	}
	requested := big.NewInt(0)
	if amount != nil {
		requested = new(big.Int).Set(amount)
	}

	quotaPortion := big.NewInt(0)
	walletPortion := big.NewInt(0)
	if requested.Sign() != 0 {
		cost := new(big.Int).Abs(requested)
		quotaPortion, err = e.quotas.Consume(target.Community, from, cost)
		if err != nil {
			return nil, err
		}
		walletPortion = new(big.Int).Sub(cost, quotaPortion)
		if walletPortion.Sign() > 0 {
			// A failed debit aborts the surrounding state unit, which
			// discards the quota consumption taken above.
			key := types.WalletKey{Actor: from, Community: target.Community}
			if _, err := e.wallets.Debit(key, walletPortion); err != nil {
				return nil, err
			}
		}
		if requested.Sign() < 0 {
			quotaPortion = new(big.Int).Neg(quotaPortion)
			walletPortion = new(big.Int).Neg(walletPortion)
		}
	}

	tx := &Transaction{
		ID:           e.idFn(),
		From:         from,
		Community:    target.Community,
		TargetType:   target.Type,
		TargetID:     target.ID,
		ParentID:     target.ParentID,
		AmountQuota:  quotaPortion,
		AmountWallet: walletPortion,
		AmountTotal:  requested,
		Comment:      strings.TrimSpace(comment),
		CreatedAt:    e.now(),
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if err := e.state.TransactionPut(tx); err != nil {
		return nil, err
	}
	if requested.Sign() != 0 {
		score, _, err := e.state.ScoreGet(target.ID)
		if err != nil {
			return nil, err
		}
		score = score.Clone()
		score.Apply(requested)
		if err := e.state.ScorePut(target.ID, score); err != nil {
			return nil, err
		}
	}
	e.emit(events.TransactionRecorded{
		ID:          tx.ID,
		From:        tx.From,
		Community:   tx.Community,
		TargetType:  tx.TargetType,
		TargetID:    tx.TargetID,
		AmountQuota: new(big.Int).Set(tx.AmountQuota),
		AmountTotal: new(big.Int).Set(tx.AmountTotal),
		CreatedAt:   tx.CreatedAt,
	})
	return tx.Clone(), nil
}

// SumForTarget returns the current score aggregate for a target.
func (e *Engine) SumForTarget(targetID string) (*ContentScore, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	score, ok, err := e.state.ScoreGet(targetID)
	if err != nil {
		return nil, err
	}
	if !ok || score == nil {
		return NewContentScore(), nil
	}
	return score.Clone(), nil
}

// ListForTarget returns transactions against one target, newest first.
func (e *Engine) ListForTarget(targetID string, p Pagination) ([]*Transaction, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.TransactionsByTarget(targetID, p.Normalize())
}

// ListForActor returns transactions funded by one actor, newest first.
func (e *Engine) ListForActor(actor string, p Pagination) ([]*Transaction, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.TransactionsByActor(actor, p.Normalize())
}

// ListReplies returns transactions whose targets share the supplied parent,
// newest first.
func (e *Engine) ListReplies(parentID string, p Pagination) ([]*Transaction, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.TransactionsByParent(parentID, p.Normalize())
}
