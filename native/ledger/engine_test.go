package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"meritledger/core/types"
	"meritledger/native/quota"
	"meritledger/native/wallet"
)

// mockState backs the wallet ledger, quota tracker, and transaction ledger in
// one place, mirroring how the production state manager serves all three.
type mockState struct {
	wallets  map[types.WalletKey]*types.Wallet
	quotas   map[string]*quota.Quota
	targets  map[string]*types.Target
	txs      map[string]*Transaction
	byTarget map[string][]string
	byActor  map[string][]string
	byParent map[string][]string
	scores   map[string]*ContentScore
}

func newMockState() *mockState {
	return &mockState{
		wallets:  make(map[types.WalletKey]*types.Wallet),
		quotas:   make(map[string]*quota.Quota),
		targets:  make(map[string]*types.Target),
		txs:      make(map[string]*Transaction),
		byTarget: make(map[string][]string),
		byActor:  make(map[string][]string),
		byParent: make(map[string][]string),
		scores:   make(map[string]*ContentScore),
	}
}

func (m *mockState) WalletGet(key types.WalletKey) (*types.Wallet, bool, error) {
	w, ok := m.wallets[key]
	if !ok {
		return nil, false, nil
	}
	return w.Clone(), true, nil
}

func (m *mockState) WalletPut(w *types.Wallet) error {
	m.wallets[w.Key] = w.Clone()
	return nil
}

func (m *mockState) QuotaGet(community, actor string) (*quota.Quota, bool, error) {
	q, ok := m.quotas[community+"/"+actor]
	if !ok {
		return nil, false, nil
	}
	return q.Clone(), true, nil
}

func (m *mockState) QuotaPut(q *quota.Quota) error {
	m.quotas[q.Community+"/"+q.Actor] = q.Clone()
	return nil
}

func (m *mockState) TargetGet(id string) (*types.Target, bool, error) {
	t, ok := m.targets[id]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

func (m *mockState) TransactionPut(tx *Transaction) error {
	m.txs[tx.ID] = tx.Clone()
	m.byTarget[tx.TargetID] = append(m.byTarget[tx.TargetID], tx.ID)
	m.byActor[tx.From] = append(m.byActor[tx.From], tx.ID)
	if tx.ParentID != "" {
		m.byParent[tx.ParentID] = append(m.byParent[tx.ParentID], tx.ID)
	}
	return nil
}

func (m *mockState) TransactionGet(id string) (*Transaction, bool, error) {
	tx, ok := m.txs[id]
	if !ok {
		return nil, false, nil
	}
	return tx.Clone(), true, nil
}

func (m *mockState) page(ids []string, p Pagination) []*Transaction {
	out := make([]*Transaction, 0, p.Limit)
	for i := len(ids) - 1 - p.Offset; i >= 0 && len(out) < p.Limit; i-- {
		out = append(out, m.txs[ids[i]].Clone())
	}
	return out
}

func (m *mockState) TransactionsByTarget(targetID string, p Pagination) ([]*Transaction, error) {
	return m.page(m.byTarget[targetID], p), nil
}

func (m *mockState) TransactionsByActor(actor string, p Pagination) ([]*Transaction, error) {
	return m.page(m.byActor[actor], p), nil
}

func (m *mockState) TransactionsByParent(parentID string, p Pagination) ([]*Transaction, error) {
	return m.page(m.byParent[parentID], p), nil
}

func (m *mockState) ScoreGet(targetID string) (*ContentScore, bool, error) {
	s, ok := m.scores[targetID]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

func (m *mockState) ScorePut(targetID string, score *ContentScore) error {
	m.scores[targetID] = score.Clone()
	return nil
}

func (m *mockState) fund(actor, community string, balance int64) {
	key := types.WalletKey{Actor: actor, Community: community}
	m.wallets[key] = &types.Wallet{Key: key, Balance: big.NewInt(balance)}
}

func (m *mockState) addTarget(t *types.Target) {
	m.targets[t.ID] = t.Clone()
}

func newTestEngine(t *testing.T, state *mockState, allowance int64) *Engine {
	t.Helper()
	wallets := wallet.NewLedger()
	wallets.SetState(state)
	wallets.SetNowFunc(func() int64 { return 1_700_000_000 })
	quotas := quota.NewTracker(func(string) *big.Int { return big.NewInt(allowance) })
	quotas.SetState(state)
	quotas.SetNowFunc(func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	})
	engine := NewEngine(wallets, quotas)
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	seq := 0
	engine.SetIDFunc(func() string {
		seq++
		return fmt.Sprintf("tx-%04d", seq)
	})
	return engine
}

func publication(id, community, author, beneficiary string) *types.Target {
	return &types.Target{
		ID:          id,
		Type:        types.TargetPublication,
		Community:   community,
		Author:      author,
		Beneficiary: beneficiary,
		Status:      types.TargetActive,
	}
}

func TestRecordSplitsQuotaThenWallet(t *testing.T) {
	state := newMockState()
	state.addTarget(publication("pub-1", "books", "alice", "bob"))
	state.fund("carol", "books", 2000)
	engine := newTestEngine(t, state, 600)

	tx, err := engine.Record("carol", "pub-1", big.NewInt(1000), "great read")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if tx.AmountQuota.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected quota portion 600, got %s", tx.AmountQuota)
	}
	if tx.AmountWallet.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected wallet portion 400, got %s", tx.AmountWallet)
	}
	if tx.AmountTotal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected total 1000, got %s", tx.AmountTotal)
	}
	balance := state.wallets[types.WalletKey{Actor: "carol", Community: "books"}].Balance
	if balance.Cmp(big.NewInt(1600)) != 0 {
		t.Fatalf("expected wallet debited to 1600, got %s", balance)
	}
	score := state.scores["pub-1"]
	if score.Positive.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected positive sum 1000, got %s", score.Positive)
	}
}

func TestRecordQuotaCoversEverything(t *testing.T) {
	state := newMockState()
	state.addTarget(publication("pub-1", "books", "alice", ""))
	engine := newTestEngine(t, state, 600)

	tx, err := engine.Record("carol", "pub-1", big.NewInt(500), "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if tx.AmountQuota.Cmp(big.NewInt(500)) != 0 || tx.AmountWallet.Sign() != 0 {
		t.Fatalf("expected pure quota funding, got quota=%s wallet=%s", tx.AmountQuota, tx.AmountWallet)
	}
}

func TestRecordInsufficientCombinedFunds(t *testing.T) {
	state := newMockState()
	state.addTarget(publication("pub-1", "books", "alice", ""))
	state.fund("carol", "books", 100)
	engine := newTestEngine(t, state, 600)

	_, err := engine.Record("carol", "pub-1", big.NewInt(1000), "")
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestRecordZeroAmountSkipsSplit(t *testing.T) {
	state := newMockState()
	state.addTarget(publication("pub-1", "books", "alice", ""))
	engine := newTestEngine(t, state, 600)

	tx, err := engine.Record("carol", "pub-1", nil, "just a comment")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if tx.AmountTotal.Sign() != 0 || tx.AmountQuota.Sign() != 0 || tx.AmountWallet.Sign() != 0 {
		t.Fatalf("expected zero amounts, got %+v", tx)
	}
	if _, ok := state.scores["pub-1"]; ok {
		t.Fatalf("zero-amount record must leave the score untouched")
	}
	if q, ok := state.quotas["books/carol"]; ok && q.Remaining.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("zero-amount record must not consume quota")
	}
}

func TestRecordDownvoteCostsAbsoluteValue(t *testing.T) {
	state := newMockState()
	state.addTarget(publication("pub-1", "books", "alice", ""))
	state.fund("carol", "books", 2000)
	engine := newTestEngine(t, state, 0)

	tx, err := engine.Record("carol", "pub-1", big.NewInt(-300), "disagree")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if tx.AmountWallet.Cmp(big.NewInt(-300)) != 0 {
		t.Fatalf("expected signed wallet portion -300, got %s", tx.AmountWallet)
	}
	balance := state.wallets[types.WalletKey{Actor: "carol", Community: "books"}].Balance
	if balance.Cmp(big.NewInt(1700)) != 0 {
		t.Fatalf("downvote must cost its absolute value, balance %s", balance)
	}
	score := state.scores["pub-1"]
	if score.Negative.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected negative sum 300, got %s", score.Negative)
	}
	if score.Net().Cmp(big.NewInt(-300)) != 0 {
		t.Fatalf("expected net -300, got %s", score.Net())
	}
}

func TestRecordSelfFundingRejected(t *testing.T) {
	state := newMockState()
	state.addTarget(publication("pub-1", "books", "alice", ""))
	state.fund("alice", "books", 2000)
	engine := newTestEngine(t, state, 600)

	_, err := engine.Record("alice", "pub-1", big.NewInt(100), "")
	if !errors.Is(err, ErrSelfFunding) {
		t.Fatalf("expected self-funding violation, got %v", err)
	}
	var violation *SelfFundingError
	if !errors.As(err, &violation) || violation.Actor != "alice" || violation.TargetID != "pub-1" {
		t.Fatalf("expected structured violation context, got %v", err)
	}
}

func TestRecordAuthorMayFundWithDistinctBeneficiary(t *testing.T) {
	state := newMockState()
	state.addTarget(publication("pub-1", "books", "alice", "bob"))
	state.fund("alice", "books", 2000)
	engine := newTestEngine(t, state, 0)

	if _, err := engine.Record("alice", "pub-1", big.NewInt(100), ""); err != nil {
		t.Fatalf("author funding on behalf of a distinct beneficiary must succeed: %v", err)
	}
}

func TestRecordBeneficiaryEqualToAuthorStillSelfFunding(t *testing.T) {
	state := newMockState()
	state.addTarget(publication("pub-1", "books", "alice", "alice"))
	state.fund("alice", "books", 2000)
	engine := newTestEngine(t, state, 600)

	if _, err := engine.Record("alice", "pub-1", big.NewInt(100), ""); !errors.Is(err, ErrSelfFunding) {
		t.Fatalf("expected self-funding violation, got %v", err)
	}
}

func TestRecordUnknownTarget(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(t, state, 600)
	if _, err := engine.Record("carol", "missing", big.NewInt(10), ""); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected target not found, got %v", err)
	}
}

func TestRecordClosedTargetRejected(t *testing.T) {
	state := newMockState()
	closed := publication("pub-1", "books", "alice", "")
	closed.Status = types.TargetClosed
	state.addTarget(closed)
	engine := newTestEngine(t, state, 600)

	if _, err := engine.Record("carol", "pub-1", big.NewInt(10), ""); !errors.Is(err, ErrTargetClosed) {
		t.Fatalf("expected target closed, got %v", err)
	}
}

func TestRecordCommentUnderClosedPublicationRejected(t *testing.T) {
	state := newMockState()
	parent := publication("pub-1", "books", "alice", "")
	parent.Status = types.TargetClosed
	state.addTarget(parent)
	comment := &types.Target{
		ID:        "com-1",
		Type:      types.TargetComment,
		Community: "books",
		Author:    "dave",
		ParentID:  "pub-1",
		Status:    types.TargetActive,
	}
	state.addTarget(comment)
	engine := newTestEngine(t, state, 600)

	if _, err := engine.Record("carol", "com-1", big.NewInt(10), ""); !errors.Is(err, ErrTargetClosed) {
		t.Fatalf("expected target closed via parent, got %v", err)
	}
}

func TestListProjectionsNewestFirst(t *testing.T) {
	state := newMockState()
	state.addTarget(publication("pub-1", "books", "alice", ""))
	state.fund("carol", "books", 10_000)
	engine := newTestEngine(t, state, 0)

	for i := 0; i < 3; i++ {
		if _, err := engine.Record("carol", "pub-1", big.NewInt(100), ""); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	txs, err := engine.ListForTarget("pub-1", Pagination{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	if txs[0].ID != "tx-0003" || txs[2].ID != "tx-0001" {
		t.Fatalf("expected newest-first ordering, got %s..%s", txs[0].ID, txs[2].ID)
	}
	page, err := engine.ListForActor("carol", Pagination{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("list actor: %v", err)
	}
	if len(page) != 1 || page[0].ID != "tx-0002" {
		t.Fatalf("unexpected paginated window: %+v", page)
	}
}

func TestSumForTargetDefaultsToZero(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(t, state, 0)
	score, err := engine.SumForTarget("unseen")
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if score.Net().Sign() != 0 {
		t.Fatalf("expected zero score, got %s", score.Net())
	}
}
