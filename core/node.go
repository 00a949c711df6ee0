package core

import (
	"math/big"
	"strings"
	"time"

	"meritledger/core/events"
	"meritledger/core/types"
	"meritledger/native/funding"
	"meritledger/native/ledger"
	"meritledger/native/quota"
	"meritledger/native/wallet"
	"meritledger/state"
)

// Node is the central controller, wiring the state manager and the native
// engines together. Every inbound operation runs inside one state unit;
// engine events buffer during the unit and fan out to subscribers only after
// the unit commits, so a failed operation is invisible to both state and
// event consumers.
type Node struct {
	st     *state.Manager
	fanout *events.Fanout

	defaultAllowance     *big.Int
	allowances           map[string]*big.Int
	withdrawIncrement    *big.Int
	defaultInvestorShare uint32
	nowFn                func() int64
}

// NodeConfig carries the economy parameters resolved from daemon
// configuration.
type NodeConfig struct {
	// DefaultAllowance is the daily quota granted per (actor, community)
	// in minor units when the community has no override.
	DefaultAllowance *big.Int
	// CommunityAllowances overrides the daily quota per community.
	CommunityAllowances map[string]*big.Int
	// WithdrawIncrement is the withdrawal granularity in minor units.
	WithdrawIncrement *big.Int
	// DefaultInvestorShare is the percentage of a closed publication's net
	// score distributed to investors when the publication does not set one.
	DefaultInvestorShare uint32
}

// DefaultNodeConfig returns the stock economy parameters: a 10.00 daily
// allowance, 0.10 withdrawal increment, and an even investor split.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		DefaultAllowance:     big.NewInt(1000),
		WithdrawIncrement:    new(big.Int).Set(ledger.DefaultWithdrawIncrement),
		DefaultInvestorShare: 50,
	}
}

// NewNode wires a node over the state manager.
func NewNode(st *state.Manager, cfg NodeConfig) (*Node, error) {
	if st == nil {
		return nil, state.ErrNilDatabase
	}
	n := &Node{
		st:                   st,
		fanout:               &events.Fanout{},
		defaultAllowance:     big.NewInt(0),
		allowances:           make(map[string]*big.Int),
		withdrawIncrement:    new(big.Int).Set(ledger.DefaultWithdrawIncrement),
		defaultInvestorShare: 50,
		nowFn:                func() int64 { return time.Now().Unix() },
	}
	if cfg.DefaultAllowance != nil && cfg.DefaultAllowance.Sign() > 0 {
		n.defaultAllowance = new(big.Int).Set(cfg.DefaultAllowance)
	}
	for community, allowance := range cfg.CommunityAllowances {
		if allowance != nil && allowance.Sign() >= 0 {
			n.allowances[community] = new(big.Int).Set(allowance)
		}
	}
	if cfg.WithdrawIncrement != nil && cfg.WithdrawIncrement.Sign() > 0 {
		n.withdrawIncrement = new(big.Int).Set(cfg.WithdrawIncrement)
	}
	if cfg.DefaultInvestorShare > 0 && cfg.DefaultInvestorShare <= 100 {
		n.defaultInvestorShare = cfg.DefaultInvestorShare
	}
	return n, nil
}

// SetNowFunc overrides the node clock for deterministic tests. The override
// propagates to every engine constructed afterwards.
func (n *Node) SetNowFunc(now func() int64) {
	if now == nil {
		n.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	n.nowFn = now
}

// SubscribeEvents registers a callback receiving every committed event.
func (n *Node) SubscribeEvents(fn func(events.Event)) {
	n.fanout.Subscribe(fn)
}

func (n *Node) allowanceFor(community string) *big.Int {
	if allowance, ok := n.allowances[community]; ok {
		return new(big.Int).Set(allowance)
	}
	return new(big.Int).Set(n.defaultAllowance)
}

// engines bundles the per-unit engine set sharing one event buffer.
type engines struct {
	wallets *wallet.Ledger
	quotas  *quota.Tracker
	ledger  *ledger.Engine
	funding *funding.Engine
	buffer  *events.Buffer
}

func (n *Node) newEngines(tx *state.Tx) *engines {
	buffer := &events.Buffer{}
	nowUnix := n.nowFn

	wallets := wallet.NewLedger()
	wallets.SetState(tx)
	wallets.SetEmitter(buffer)
	wallets.SetNowFunc(nowUnix)

	quotas := quota.NewTracker(n.allowanceFor)
	quotas.SetState(tx)
	quotas.SetNowFunc(func() time.Time { return time.Unix(nowUnix(), 0) })

	ledgerEngine := ledger.NewEngine(wallets, quotas)
	ledgerEngine.SetState(tx)
	ledgerEngine.SetEmitter(buffer)
	ledgerEngine.SetNowFunc(nowUnix)
	ledgerEngine.SetWithdrawIncrement(n.withdrawIncrement)

	fundingEngine := funding.NewEngine(wallets)
	fundingEngine.SetState(tx)
	fundingEngine.SetEmitter(buffer)
	fundingEngine.SetNowFunc(nowUnix)
	fundingEngine.SetDefaultInvestorShare(n.defaultInvestorShare)

	return &engines{
		wallets: wallets,
		quotas:  quotas,
		ledger:  ledgerEngine,
		funding: fundingEngine,
		buffer:  buffer,
	}
}

// update runs fn inside a read-write unit and flushes buffered events to
// subscribers after the commit succeeds.
func (n *Node) update(fn func(*engines) error) error {
	var buffer *events.Buffer
	err := n.st.Update(func(tx *state.Tx) error {
		eng := n.newEngines(tx)
		buffer = eng.buffer
		return fn(eng)
	})
	if err != nil {
		return err
	}
	buffer.Flush(n.fanout)
	return nil
}

// view runs fn inside a read-only unit; events raised by read paths are
// discarded with the unit.
func (n *Node) view(fn func(*engines) error) error {
	return n.st.View(func(tx *state.Tx) error {
		return fn(n.newEngines(tx))
	})
}

// --- target registry ---

// RegisterPublication records publication metadata so value transfers can
// resolve it. InvestorShare zero falls back to the node default at close.
func (n *Node) RegisterPublication(id, community, author, beneficiary string, investingEnabled bool, investorShare uint32) (*types.Target, error) {
	target := &types.Target{
		ID:               strings.TrimSpace(id),
		Type:             types.TargetPublication,
		Community:        community,
		Author:           author,
		Beneficiary:      beneficiary,
		InvestingEnabled: investingEnabled,
		InvestorShare:    investorShare,
		Status:           types.TargetActive,
		CreatedAt:        n.nowFn(),
	}
	if err := n.registerTarget(target); err != nil {
		return nil, err
	}
	return target.Clone(), nil
}

// RegisterComment records comment metadata under a parent target.
func (n *Node) RegisterComment(id, community, author, parentID string) (*types.Target, error) {
	target := &types.Target{
		ID:        strings.TrimSpace(id),
		Type:      types.TargetComment,
		Community: community,
		Author:    author,
		ParentID:  parentID,
		Status:    types.TargetActive,
		CreatedAt: n.nowFn(),
	}
	if err := n.registerTarget(target); err != nil {
		return nil, err
	}
	return target.Clone(), nil
}

// RegisterPollOption records a poll option belonging to a parent poll
// publication.
func (n *Node) RegisterPollOption(id, community, author, parentID string) (*types.Target, error) {
	target := &types.Target{
		ID:        strings.TrimSpace(id),
		Type:      types.TargetPollOption,
		Community: community,
		Author:    author,
		ParentID:  parentID,
		Status:    types.TargetActive,
		CreatedAt: n.nowFn(),
	}
	if err := n.registerTarget(target); err != nil {
		return nil, err
	}
	return target.Clone(), nil
}

func (n *Node) registerTarget(target *types.Target) error {
	if target.ID == "" || target.Community == "" || target.Author == "" {
		return ledger.ErrInvalidTarget
	}
	return n.st.Update(func(tx *state.Tx) error {
		return tx.RegisterTarget(target)
	})
}

// Target returns stored target metadata.
func (n *Node) Target(id string) (*types.Target, error) {
	var target *types.Target
	err := n.st.View(func(tx *state.Tx) error {
		t, ok, err := tx.TargetGet(id)
		if err != nil {
			return err
		}
		if !ok {
			return ledger.ErrTargetNotFound
		}
		target = t
		return nil
	})
	return target, err
}

// --- value transfer ---

// Record applies a signed value transfer from an actor to a target.
func (n *Node) Record(from, targetID string, amount *big.Int, comment string) (*ledger.Transaction, error) {
	var record *ledger.Transaction
	err := n.update(func(eng *engines) error {
		var err error
		record, err = eng.ledger.Record(from, targetID, amount, comment)
		return err
	})
	return record, err
}

// Withdraw converts accumulated content score into the owner's wallet
// balance.
func (n *Node) Withdraw(targetID, caller string, amount *big.Int) (*ledger.Transaction, error) {
	var record *ledger.Transaction
	err := n.update(func(eng *engines) error {
		var err error
		record, err = eng.ledger.Withdraw(targetID, caller, amount)
		return err
	})
	return record, err
}

// Transfer moves wallet balance between two actors in a community.
func (n *Node) Transfer(community, from, to string, amount *big.Int, comment string) (*ledger.Transaction, error) {
	var record *ledger.Transaction
	err := n.update(func(eng *engines) error {
		var err error
		record, err = eng.ledger.Transfer(community, from, to, amount, comment)
		return err
	})
	return record, err
}

// Deposit credits an actor's wallet from outside the economy (top-ups,
// administrative grants).
func (n *Node) Deposit(actor, community string, amount *big.Int) (*big.Int, error) {
	var balance *big.Int
	err := n.update(func(eng *engines) error {
		var err error
		balance, err = eng.wallets.Credit(types.WalletKey{Actor: actor, Community: community}, amount)
		return err
	})
	return balance, err
}

// --- funding ---

// Invest contributes wallet balance to a publication's investment pool.
func (n *Node) Invest(publicationID, investor string, amount *big.Int) (*funding.Contribution, error) {
	var contribution *funding.Contribution
	err := n.update(func(eng *engines) error {
		var err error
		contribution, err = eng.funding.Invest(publicationID, investor, amount)
		return err
	})
	return contribution, err
}

// ClosePublication performs the terminal close transition for a publication.
// A repeated close returns the stored summary with funding.ErrAlreadyClosed.
func (n *Node) ClosePublication(publicationID, requester string) (*funding.ClosingSummary, error) {
	var summary *funding.ClosingSummary
	err := n.update(func(eng *engines) error {
		var err error
		summary, err = eng.funding.Close(publicationID, requester)
		return err
	})
	return summary, err
}

// --- read projections ---

// Balance returns the wallet balance for an (actor, community) pair.
func (n *Node) Balance(actor, community string) (*big.Int, error) {
	var balance *big.Int
	err := n.view(func(eng *engines) error {
		var err error
		balance, err = eng.wallets.Balance(types.WalletKey{Actor: actor, Community: community})
		return err
	})
	return balance, err
}

// QuotaAvailable returns the remaining daily allowance for an
// (actor, community) pair.
func (n *Node) QuotaAvailable(actor, community string) (*big.Int, error) {
	var remaining *big.Int
	err := n.view(func(eng *engines) error {
		var err error
		remaining, err = eng.quotas.Available(community, actor)
		return err
	})
	return remaining, err
}

// Score returns the accumulated content score for a target.
func (n *Node) Score(targetID string) (*ledger.ContentScore, error) {
	var score *ledger.ContentScore
	err := n.view(func(eng *engines) error {
		var err error
		score, err = eng.ledger.SumForTarget(targetID)
		return err
	})
	return score, err
}

// Transaction returns one ledger record by id.
func (n *Node) Transaction(id string) (*ledger.Transaction, error) {
	var record *ledger.Transaction
	err := n.st.View(func(tx *state.Tx) error {
		r, ok, err := tx.TransactionGet(id)
		if err != nil {
			return err
		}
		if !ok {
			return ledger.ErrTransactionNotFound
		}
		record = r
		return nil
	})
	return record, err
}

// TransactionsForTarget lists ledger records against a target, newest first.
func (n *Node) TransactionsForTarget(targetID string, p ledger.Pagination) ([]*ledger.Transaction, error) {
	var records []*ledger.Transaction
	err := n.view(func(eng *engines) error {
		var err error
		records, err = eng.ledger.ListForTarget(targetID, p)
		return err
	})
	return records, err
}

// TransactionsForActor lists ledger records funded by an actor, newest first.
func (n *Node) TransactionsForActor(actor string, p ledger.Pagination) ([]*ledger.Transaction, error) {
	var records []*ledger.Transaction
	err := n.view(func(eng *engines) error {
		var err error
		records, err = eng.ledger.ListForActor(actor, p)
		return err
	})
	return records, err
}

// TransactionsForParent lists ledger records under a parent target, newest
// first.
func (n *Node) TransactionsForParent(parentID string, p ledger.Pagination) ([]*ledger.Transaction, error) {
	var records []*ledger.Transaction
	err := n.view(func(eng *engines) error {
		var err error
		records, err = eng.ledger.ListReplies(parentID, p)
		return err
	})
	return records, err
}

// PoolTotal returns the current investment pool principal for a publication.
func (n *Node) PoolTotal(publicationID string) (*big.Int, error) {
	var total *big.Int
	err := n.view(func(eng *engines) error {
		var err error
		total, err = eng.funding.PoolTotal(publicationID)
		return err
	})
	return total, err
}

// ClosingSummary returns the stored close summary, if the publication has
// been closed.
func (n *Node) ClosingSummary(publicationID string) (*funding.ClosingSummary, bool, error) {
	var (
		summary *funding.ClosingSummary
		ok      bool
	)
	err := n.view(func(eng *engines) error {
		var err error
		summary, ok, err = eng.funding.Summary(publicationID)
		return err
	})
	return summary, ok, err
}
