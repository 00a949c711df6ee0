package funding

import (
	"errors"
	"math/big"
	"testing"

	"meritledger/core/events"
	"meritledger/core/types"
	"meritledger/native/wallet"
)

type mockState struct {
	wallets       map[types.WalletKey]*types.Wallet
	targets       map[string]*types.Target
	contributions map[string][]*Contribution
	closings      map[string]*ClosingSummary
	scores        map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		wallets:       make(map[types.WalletKey]*types.Wallet),
		targets:       make(map[string]*types.Target),
		contributions: make(map[string][]*Contribution),
		closings:      make(map[string]*ClosingSummary),
		scores:        make(map[string]*big.Int),
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

func (m *mockState) TargetGet(id string) (*types.Target, bool, error) {
	t, ok := m.targets[id]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

func (m *mockState) TargetPut(t *types.Target) error {
	m.targets[t.ID] = t.Clone()
	return nil
}

func (m *mockState) ContributionAppend(c *Contribution) error {
	m.contributions[c.PublicationID] = append(m.contributions[c.PublicationID], c.Clone())
	return nil
}

func (m *mockState) ContributionsByPublication(id string) ([]*Contribution, error) {
	list := m.contributions[id]
	out := make([]*Contribution, 0, len(list))
	for _, c := range list {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (m *mockState) ClosingGet(id string) (*ClosingSummary, bool, error) {
	s, ok := m.closings[id]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

func (m *mockState) ClosingPut(s *ClosingSummary) error {
	m.closings[s.PublicationID] = s.Clone()
	return nil
}

func (m *mockState) ScoreNet(id string) (*big.Int, error) {
	net, ok := m.scores[id]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(net), nil
}

func (m *mockState) fund(actor, community string, balance int64) {
	key := types.WalletKey{Actor: actor, Community: community}
	m.wallets[key] = &types.Wallet{Key: key, Balance: big.NewInt(balance)}
}

func (m *mockState) balance(actor, community string) *big.Int {
	w, ok := m.wallets[types.WalletKey{Actor: actor, Community: community}]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(w.Balance)
}

func newTestEngine(t *testing.T, state *mockState) *Engine {
	t.Helper()
	wallets := wallet.NewLedger()
	wallets.SetState(state)
	wallets.SetNowFunc(func() int64 { return 1_700_000_000 })
	engine := NewEngine(wallets)
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine
}

func investablePublication(id, community, author string, sharePct uint32) *types.Target {
	return &types.Target{
		ID:               id,
		Type:             types.TargetPublication,
		Community:        community,
		Author:           author,
		InvestingEnabled: true,
		InvestorShare:    sharePct,
		Status:           types.TargetActive,
	}
}

func TestInvestDebitsWalletAndAppendsContribution(t *testing.T) {
	state := newMockState()
	state.targets["pub-1"] = investablePublication("pub-1", "books", "alice", 50)
	state.fund("xavier", "books", 500)
	engine := newTestEngine(t, state)

	c, err := engine.Invest("pub-1", "xavier", big.NewInt(100))
	if err != nil {
		t.Fatalf("invest: %v", err)
	}
	if c.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected contribution amount %s", c.Amount)
	}
	if got := state.balance("xavier", "books"); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected wallet debited to 400, got %s", got)
	}
	total, err := engine.PoolTotal("pub-1")
	if err != nil {
		t.Fatalf("pool total: %v", err)
	}
	if total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected pool total 100, got %s", total)
	}
}

func TestInvestRequiresEnabledFlag(t *testing.T) {
	state := newMockState()
	pub := investablePublication("pub-1", "books", "alice", 50)
	pub.InvestingEnabled = false
	state.targets["pub-1"] = pub
	state.fund("xavier", "books", 500)
	engine := newTestEngine(t, state)

	if _, err := engine.Invest("pub-1", "xavier", big.NewInt(100)); !errors.Is(err, ErrInvestingDisabled) {
		t.Fatalf("expected investing disabled, got %v", err)
	}
}

func TestInvestClosedPublicationRejected(t *testing.T) {
	state := newMockState()
	pub := investablePublication("pub-1", "books", "alice", 50)
	pub.Status = types.TargetClosed
	state.targets["pub-1"] = pub
	engine := newTestEngine(t, state)

	if _, err := engine.Invest("pub-1", "xavier", big.NewInt(100)); !errors.Is(err, ErrPublicationClosed) {
		t.Fatalf("expected publication closed, got %v", err)
	}
}

func TestInvestInsufficientFunds(t *testing.T) {
	state := newMockState()
	state.targets["pub-1"] = investablePublication("pub-1", "books", "alice", 50)
	state.fund("xavier", "books", 50)
	engine := newTestEngine(t, state)

	if _, err := engine.Invest("pub-1", "xavier", big.NewInt(100)); !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestInvestCommentRejected(t *testing.T) {
	state := newMockState()
	state.targets["com-1"] = &types.Target{
		ID: "com-1", Type: types.TargetComment, Community: "books", Author: "alice",
	}
	engine := newTestEngine(t, state)

	if _, err := engine.Invest("com-1", "xavier", big.NewInt(100)); !errors.Is(err, ErrNotPublication) {
		t.Fatalf("expected not-publication error, got %v", err)
	}
}

// Single investor holding the whole pool: share percent 50, net score 40 at
// close means 20 distributed, 20 to the author, and the investor recovers
// 100 principal + 20 share.
func TestCloseSingleInvestorScenario(t *testing.T) {
	state := newMockState()
	state.targets["pub-1"] = investablePublication("pub-1", "books", "alice", 50)
	state.fund("xavier", "books", 100)
	state.scores["pub-1"] = big.NewInt(40)
	engine := newTestEngine(t, state)

	if _, err := engine.Invest("pub-1", "xavier", big.NewInt(100)); err != nil {
		t.Fatalf("invest: %v", err)
	}
	summary, err := engine.Close("pub-1", "alice")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if summary.Distributed.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("expected 20 distributed, got %s", summary.Distributed)
	}
	if summary.AuthorShare.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("expected author share 20, got %s", summary.AuthorShare)
	}
	if summary.PoolReturned.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected pool returned 100, got %s", summary.PoolReturned)
	}
	if summary.TotalEarned.Cmp(big.NewInt(140)) != 0 {
		t.Fatalf("expected total earned 140, got %s", summary.TotalEarned)
	}
	if got := state.balance("xavier", "books"); got.Cmp(big.NewInt(120)) != 0 {
		t.Fatalf("expected investor credited 120 total, got %s", got)
	}
	if got := state.balance("alice", "books"); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("expected author credited 20, got %s", got)
	}
	if state.targets["pub-1"].Status != types.TargetClosed {
		t.Fatalf("expected publication closed")
	}
}

func TestCloseIdempotent(t *testing.T) {
	state := newMockState()
	state.targets["pub-1"] = investablePublication("pub-1", "books", "alice", 50)
	state.fund("xavier", "books", 100)
	state.scores["pub-1"] = big.NewInt(40)
	engine := newTestEngine(t, state)

	if _, err := engine.Invest("pub-1", "xavier", big.NewInt(100)); err != nil {
		t.Fatalf("invest: %v", err)
	}
	first, err := engine.Close("pub-1", "alice")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	investorBefore := state.balance("xavier", "books")
	authorBefore := state.balance("alice", "books")

	second, err := engine.Close("pub-1", "alice")
	if !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected already closed, got %v", err)
	}
	if second == nil || second.Distributed.Cmp(first.Distributed) != 0 || second.ClosedAt != first.ClosedAt {
		t.Fatalf("second close must return the original summary")
	}
	if state.balance("xavier", "books").Cmp(investorBefore) != 0 ||
		state.balance("alice", "books").Cmp(authorBefore) != 0 {
		t.Fatalf("second close must not move money")
	}
}

func TestCloseOnlyAuthor(t *testing.T) {
	state := newMockState()
	state.targets["pub-1"] = investablePublication("pub-1", "books", "alice", 50)
	engine := newTestEngine(t, state)

	if _, err := engine.Close("pub-1", "mallory"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
}

func TestCloseWithoutInvestorsNegativeScore(t *testing.T) {
	state := newMockState()
	state.targets["pub-1"] = investablePublication("pub-1", "books", "alice", 50)
	state.scores["pub-1"] = big.NewInt(-30)
	engine := newTestEngine(t, state)

	summary, err := engine.Close("pub-1", "alice")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if summary.Distributed.Sign() != 0 {
		t.Fatalf("expected nothing distributed, got %s", summary.Distributed)
	}
	if summary.AuthorShare.Cmp(big.NewInt(-30)) != 0 {
		t.Fatalf("expected author share -30 (informational), got %s", summary.AuthorShare)
	}
	if got := state.balance("alice", "books"); got.Sign() != 0 {
		t.Fatalf("negative share must not credit the author, got %s", got)
	}
}

// Three investors at 50/30/20 of a 100 pool with share percent 33 and net
// score 100: per-investor flooring yields 16+9+6 = 31, two units short of the
// 33 distributed, so the largest contributor absorbs the residual and the
// credits sum to the distribution exactly.
func TestCloseRoundingResidualGoesToLargestContributor(t *testing.T) {
	state := newMockState()
	state.targets["pub-1"] = investablePublication("pub-1", "books", "alice", 33)
	state.fund("ana", "books", 50)
	state.fund("ben", "books", 30)
	state.fund("cy", "books", 20)
	state.scores["pub-1"] = big.NewInt(100)
	engine := newTestEngine(t, state)

	for _, inv := range []struct {
		actor  string
		amount int64
	}{{"ana", 50}, {"ben", 30}, {"cy", 20}} {
		if _, err := engine.Invest("pub-1", inv.actor, big.NewInt(inv.amount)); err != nil {
			t.Fatalf("invest %s: %v", inv.actor, err)
		}
	}
	summary, err := engine.Close("pub-1", "alice")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if summary.Distributed.Cmp(big.NewInt(33)) != 0 {
		t.Fatalf("expected 33 distributed, got %s", summary.Distributed)
	}
	// Balances: principal back plus share.
	wantShares := map[string]int64{"ana": 18, "ben": 9, "cy": 6}
	sum := int64(0)
	for actor, share := range wantShares {
		principal := map[string]int64{"ana": 50, "ben": 30, "cy": 20}[actor]
		want := big.NewInt(principal + share)
		if got := state.balance(actor, "books"); got.Cmp(want) != 0 {
			t.Fatalf("investor %s: expected balance %s, got %s", actor, want, got)
		}
		sum += share
	}
	if sum != 33 {
		t.Fatalf("per-investor shares must sum to the distribution, got %d", sum)
	}
	if got := state.balance("alice", "books"); got.Cmp(big.NewInt(67)) != 0 {
		t.Fatalf("expected author 67, got %s", got)
	}
}

// Four equal investors of 1 each with net score 4 and share percent 50:
// distributed is 2 while each exact proportion is 0.5. Flooring assigns 0 per
// investor and the full residual goes to the tie-broken smallest id, so the
// credits still sum to the distribution and nothing beyond the net score is
// paid out.
func TestCloseEvenSplitConservesDistribution(t *testing.T) {
	state := newMockState()
	state.targets["pub-1"] = investablePublication("pub-1", "books", "alice", 50)
	state.scores["pub-1"] = big.NewInt(4)
	investors := []string{"ana", "ben", "cy", "dee"}
	for _, inv := range investors {
		state.fund(inv, "books", 1)
	}
	engine := newTestEngine(t, state)

	for _, inv := range investors {
		if _, err := engine.Invest("pub-1", inv, big.NewInt(1)); err != nil {
			t.Fatalf("invest %s: %v", inv, err)
		}
	}
	summary, err := engine.Close("pub-1", "alice")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if summary.Distributed.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected 2 distributed, got %s", summary.Distributed)
	}
	sum := big.NewInt(0)
	for _, inv := range investors {
		// Balance is principal (1) plus share; no share may be negative.
		share := new(big.Int).Sub(state.balance(inv, "books"), big.NewInt(1))
		if share.Sign() < 0 {
			t.Fatalf("investor %s received a negative share %s", inv, share)
		}
		sum.Add(sum, share)
	}
	if sum.Cmp(summary.Distributed) != 0 {
		t.Fatalf("investor credits sum %s, want %s", sum, summary.Distributed)
	}
	if got := state.balance("ana", "books"); got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("expected tie-broken residual on ana (balance 3), got %s", got)
	}
	if got := state.balance("alice", "books"); got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected author 2, got %s", got)
	}
}

func TestCloseMultipleContributionsAggregatePerInvestor(t *testing.T) {
	state := newMockState()
	state.targets["pub-1"] = investablePublication("pub-1", "books", "alice", 50)
	state.fund("xavier", "books", 300)
	state.scores["pub-1"] = big.NewInt(40)
	engine := newTestEngine(t, state)

	for i := 0; i < 3; i++ {
		if _, err := engine.Invest("pub-1", "xavier", big.NewInt(100)); err != nil {
			t.Fatalf("invest %d: %v", i, err)
		}
	}
	summary, err := engine.Close("pub-1", "alice")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if summary.PoolReturned.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected pool 300, got %s", summary.PoolReturned)
	}
	// 300 principal + 20 share.
	if got := state.balance("xavier", "books"); got.Cmp(big.NewInt(320)) != 0 {
		t.Fatalf("expected 320, got %s", got)
	}
}

func TestCloseEmitsBufferedEvents(t *testing.T) {
	state := newMockState()
	state.targets["pub-1"] = investablePublication("pub-1", "books", "alice", 50)
	state.scores["pub-1"] = big.NewInt(10)
	engine := newTestEngine(t, state)
	buf := &events.Buffer{}
	engine.SetEmitter(buf)

	if _, err := engine.Close("pub-1", "alice"); err != nil {
		t.Fatalf("close: %v", err)
	}
	var seen []string
	buf.Flush(emitterFunc(func(evt events.Event) {
		seen = append(seen, evt.EventType())
	}))
	if len(seen) != 1 || seen[0] != events.TypePublicationClosed {
		t.Fatalf("expected one publication.closed event, got %v", seen)
	}
}

type emitterFunc func(events.Event)

func (f emitterFunc) Emit(evt events.Event) { f(evt) }
