package quota

import (
	"errors"
	"math/big"
	"time"
)

var (
	// ErrNilState is returned when the tracker has no state backend configured.
	ErrNilState = errors.New("quota: state not configured")
	// ErrNegativeAmount is returned when a caller requests a negative consume.
	ErrNegativeAmount = errors.New("quota: amount must not be negative")
)

const dayLayout = "2006-01-02"

// Quota tracks the remaining daily free-spend allowance for one
// (actor, community) pair. PeriodStart is the UTC day key the remaining
// amount belongs to; the reset is evaluated lazily on access so arbitrarily
// long idle gaps roll forward to a single fresh allowance.
type Quota struct {
	Actor       string   `json:"actor"`
	Community   string   `json:"community"`
	Remaining   *big.Int `json:"remaining"`
	PeriodStart string   `json:"periodStart"`
	Allowance   *big.Int `json:"allowance"`
}

// Clone returns a deep copy of the quota row.
func (q *Quota) Clone() *Quota {
	if q == nil {
		return nil
	}
	clone := *q
	if q.Remaining != nil {
		clone.Remaining = new(big.Int).Set(q.Remaining)
	}
	if q.Allowance != nil {
		clone.Allowance = new(big.Int).Set(q.Allowance)
	}
	return &clone
}

// State describes the persistence the tracker needs.
type State interface {
	QuotaGet(community, actor string) (*Quota, bool, error)
	QuotaPut(q *Quota) error
}

// AllowanceFunc resolves the configured daily allowance for a community.
type AllowanceFunc func(community string) *big.Int

// Tracker is the "free tier first" allocator: callers consume as much of the
// requested amount as quota covers and debit the wallet for the remainder.
type Tracker struct {
	state     State
	allowance AllowanceFunc
	nowFn     func() time.Time
}

// NewTracker constructs a tracker resolving allowances via fn. A nil fn
// yields a zero allowance for every community.
func NewTracker(fn AllowanceFunc) *Tracker {
	if fn == nil {
		fn = func(string) *big.Int { return big.NewInt(0) }
	}
	return &Tracker{
		allowance: fn,
		nowFn:     time.Now,
	}
}

// SetState configures the state backend used by the tracker.
func (t *Tracker) SetState(state State) { t.state = state }

// SetNowFunc overrides the wall clock, primarily for deterministic tests.
func (t *Tracker) SetNowFunc(now func() time.Time) {
	if now == nil {
		t.nowFn = time.Now
		return
	}
	t.nowFn = now
}

func (t *Tracker) dayKey() string {
	return t.nowFn().UTC().Format(dayLayout)
}

func (t *Tracker) allowanceFor(community string) *big.Int {
	a := t.allowance(community)
	if a == nil || a.Sign() < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a)
}

// load fetches the quota row and rolls the period forward when the stored
// day key is not the current UTC day. The rolled row is not persisted here;
// mutating operations persist, Available persists only when a roll happened
// so repeated reads stay cheap.
func (t *Tracker) load(community, actor string) (*Quota, bool, error) {
	q, ok, err := t.state.QuotaGet(community, actor)
	if err != nil {
		return nil, false, err
	}
	today := t.dayKey()
	allowance := t.allowanceFor(community)
	if !ok || q == nil {
		return &Quota{
			Actor:       actor,
			Community:   community,
			Remaining:   new(big.Int).Set(allowance),
			PeriodStart: today,
			Allowance:   allowance,
		}, true, nil
	}
	q = q.Clone()
	if q.PeriodStart != today {
		q.Remaining = new(big.Int).Set(allowance)
		q.PeriodStart = today
		q.Allowance = allowance
		return q, true, nil
	}
	if q.Remaining == nil {
		q.Remaining = big.NewInt(0)
	}
	return q, false, nil
}

// Available returns the free allowance remaining for the current UTC day.
func (t *Tracker) Available(community, actor string) (*big.Int, error) {
	if t == nil || t.state == nil {
		return nil, ErrNilState
	}
	q, rolled, err := t.load(community, actor)
	if err != nil {
		return nil, err
	}
	if rolled {
		if err := t.state.QuotaPut(q); err != nil {
			return nil, err
		}
	}
	return new(big.Int).Set(q.Remaining), nil
}

// Consume takes up to amount from the remaining allowance and returns the
// actually-consumed portion, which may be less than requested. It never
// reports insufficiency; the caller covers the shortfall from the wallet.
func (t *Tracker) Consume(community, actor string, amount *big.Int) (*big.Int, error) {
	if t == nil || t.state == nil {
		return nil, ErrNilState
	}
	if amount == nil {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	q, _, err := t.load(community, actor)
	if err != nil {
		return nil, err
	}
	consumed := new(big.Int).Set(amount)
	if consumed.Cmp(q.Remaining) > 0 {
		consumed = new(big.Int).Set(q.Remaining)
	}
	if consumed.Sign() > 0 {
		q.Remaining = new(big.Int).Sub(q.Remaining, consumed)
	}
	if err := t.state.QuotaPut(q); err != nil {
		return nil, err
	}
	return consumed, nil
}
