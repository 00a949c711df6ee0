package funding

import (
	"math/big"
	"sort"
	"strings"
	"time"

	"meritledger/core/events"
	"meritledger/core/types"
	"meritledger/native/wallet"
)

// State describes the persistence the funding engine needs from the
// surrounding state implementation. ScoreNet reads the target's current net
// content score without exposing the ledger's score type.
type State interface {
	TargetGet(id string) (*types.Target, bool, error)
	TargetPut(t *types.Target) error
	ContributionAppend(c *Contribution) error
	ContributionsByPublication(publicationID string) ([]*Contribution, error)
	ClosingGet(publicationID string) (*ClosingSummary, bool, error)
	ClosingPut(s *ClosingSummary) error
	ScoreNet(targetID string) (*big.Int, error)
}

// Engine accepts investor contributions into publication-scoped pools and
// performs the one-time close transition that partitions the final score
// between investors and the author. Both entry points are expected to run
// inside one atomic state unit.
type Engine struct {
	state        State
	wallets      *wallet.Ledger
	emitter      events.Emitter
	nowFn        func() int64
	defaultShare uint32
}

// NewEngine constructs a funding engine over the wallet ledger that funds
// contributions and receives distributions.
func NewEngine(wallets *wallet.Ledger) *Engine {
	return &Engine{
		wallets:      wallets,
		emitter:      events.NoopEmitter{},
		nowFn:        func() int64 { return time.Now().Unix() },
		defaultShare: 50,
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

// SetDefaultInvestorShare configures the share percent applied when a
// publication was registered without an explicit value. Values above 100 are
// clamped.
func (e *Engine) SetDefaultInvestorShare(pct uint32) {
	if pct > 100 {
		pct = 100
	}
	e.defaultShare = pct
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

func (e *Engine) loadPublication(id string) (*types.Target, error) {
	target, ok, err := e.state.TargetGet(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if !ok || target == nil {
		return nil, ErrPublicationNotFound
	}
	if target.Type != types.TargetPublication {
		return nil, ErrNotPublication
	}
	return target, nil
}

func (e *Engine) shareFor(target *types.Target) uint32 {
	pct := target.InvestorShare
	if pct == 0 {
		pct = e.defaultShare
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Invest debits the investor's wallet and appends a contribution to the
// publication pool.
func (e *Engine) Invest(publicationID, investor string, amount *big.Int) (*Contribution, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	target, err := e.loadPublication(publicationID)
	if err != nil {
		return nil, err
	}
	if target.Status == types.TargetClosed {
		return nil, ErrPublicationClosed
	}
	if !target.InvestingEnabled {
		return nil, ErrInvestingDisabled
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	key := types.WalletKey{Actor: investor, Community: target.Community}
	if _, err := e.wallets.Debit(key, amount); err != nil {
		return nil, err
	}
	contribution := &Contribution{
		Investor:      investor,
		PublicationID: target.ID,
		Amount:        new(big.Int).Set(amount),
		CreatedAt:     e.now(),
	}
	if err := e.state.ContributionAppend(contribution); err != nil {
		return nil, err
	}
	poolTotal, err := e.poolTotal(target.ID)
	if err != nil {
		return nil, err
	}
	e.emit(events.InvestmentAccepted{
		PublicationID: target.ID,
		Investor:      investor,
		Community:     target.Community,
		Amount:        new(big.Int).Set(amount),
		PoolTotal:     poolTotal,
	})
	return contribution.Clone(), nil
}

func (e *Engine) poolTotal(publicationID string) (*big.Int, error) {
	contributions, err := e.state.ContributionsByPublication(publicationID)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, c := range contributions {
		if c != nil && c.Amount != nil {
			total.Add(total, c.Amount)
		}
	}
	return total, nil
}

// aggregateStakes folds contributions into one position per investor,
// ordered by investor id for deterministic iteration.
func aggregateStakes(contributions []*Contribution) []stake {
	byInvestor := make(map[string]*big.Int)
	for _, c := range contributions {
		if c == nil || c.Amount == nil {
			continue
		}
		if existing, ok := byInvestor[c.Investor]; ok {
			existing.Add(existing, c.Amount)
			continue
		}
		byInvestor[c.Investor] = new(big.Int).Set(c.Amount)
	}
	ids := make([]string, 0, len(byInvestor))
	for id := range byInvestor {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	stakes := make([]stake, 0, len(ids))
	for _, id := range ids {
		stakes = append(stakes, stake{investor: id, amount: byInvestor[id]})
	}
	return stakes
}

// Close performs the terminal transition for a publication: the pool
// principal returns to every investor, the final net score is partitioned
// between investors (pro-rata, scaled by the share percent) and the author,
// and the score freezes. Only the author may close. A repeated close returns
// the stored summary together with ErrAlreadyClosed and moves no money.
func (e *Engine) Close(publicationID, requester string) (*ClosingSummary, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	target, err := e.loadPublication(publicationID)
	if err != nil {
		return nil, err
	}
	if summary, ok, err := e.state.ClosingGet(target.ID); err != nil {
		return nil, err
	} else if ok && summary != nil {
		return summary.Clone(), ErrAlreadyClosed
	}
	if target.Status == types.TargetClosed {
		return nil, ErrAlreadyClosed
	}
	if requester != target.Author {
		return nil, ErrNotAuthorized
	}

	contributions, err := e.state.ContributionsByPublication(target.ID)
	if err != nil {
		return nil, err
	}
	stakes := aggregateStakes(contributions)
	poolTotal := big.NewInt(0)
	for _, s := range stakes {
		poolTotal.Add(poolTotal, s.amount)
	}
	net, err := e.state.ScoreNet(target.ID)
	if err != nil {
		return nil, err
	}
	if net == nil {
		net = big.NewInt(0)
	}

	distributed := big.NewInt(0)
	if len(stakes) > 0 && net.Sign() > 0 {
		distributed = roundHalfUpPercent(net, e.shareFor(target))
	}
	authorShare := new(big.Int).Sub(net, distributed)

	shares := proRataShares(distributed, poolTotal, stakes)
	for _, s := range stakes {
		key := types.WalletKey{Actor: s.investor, Community: target.Community}
		share := shares[s.investor]
		if share != nil && share.Sign() > 0 {
			if _, err := e.wallets.Credit(key, share); err != nil {
				return nil, err
			}
		}
		// Principal always returns in full, independent of the score split.
		if _, err := e.wallets.Credit(key, s.amount); err != nil {
			return nil, err
		}
		e.emit(events.InvestorDistributed{
			PublicationID: target.ID,
			Investor:      s.investor,
			Share:         new(big.Int).Set(share),
			Principal:     new(big.Int).Set(s.amount),
		})
	}
	if authorShare.Sign() > 0 {
		key := types.WalletKey{Actor: target.Author, Community: target.Community}
		if _, err := e.wallets.Credit(key, authorShare); err != nil {
			return nil, err
		}
	}

	summary := &ClosingSummary{
		PublicationID: target.ID,
		TotalEarned:   new(big.Int).Add(net, poolTotal),
		PoolReturned:  poolTotal,
		Distributed:   distributed,
		AuthorShare:   authorShare,
		ClosedAt:      e.now(),
	}
	closed := target.Clone()
	closed.Status = types.TargetClosed
	if err := e.state.TargetPut(closed); err != nil {
		return nil, err
	}
	if err := e.state.ClosingPut(summary); err != nil {
		return nil, err
	}
	e.emit(events.PublicationClosed{
		PublicationID: target.ID,
		Author:        target.Author,
		Community:     target.Community,
		TotalEarned:   new(big.Int).Set(summary.TotalEarned),
		PoolReturned:  new(big.Int).Set(summary.PoolReturned),
		Distributed:   new(big.Int).Set(summary.Distributed),
		AuthorShare:   new(big.Int).Set(summary.AuthorShare),
	})
	return summary.Clone(), nil
}

// PoolTotal returns the current pool principal for a publication.
func (e *Engine) PoolTotal(publicationID string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.poolTotal(strings.TrimSpace(publicationID))
}

// Summary returns the stored closing summary, if the publication has closed.
func (e *Engine) Summary(publicationID string) (*ClosingSummary, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	summary, ok, err := e.state.ClosingGet(strings.TrimSpace(publicationID))
	if err != nil {
		return nil, false, err
	}
	if !ok || summary == nil {
		return nil, false, nil
	}
	return summary.Clone(), true, nil
}
