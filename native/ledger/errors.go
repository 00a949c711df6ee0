package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNilState is returned when the engine has no state backend configured.
	ErrNilState = errors.New("ledger: state not configured")
	// ErrTargetNotFound is returned when the referenced target is unknown.
	ErrTargetNotFound = errors.New("ledger: target not found")
	// ErrTargetClosed is returned when the target publication has reached its
	// terminal closed state.
	ErrTargetClosed = errors.New("ledger: target closed")
	// ErrSelfFunding is the sentinel matched by errors.Is for self-funding
	// violations; the concrete error carries actor and target context.
	ErrSelfFunding = errors.New("ledger: self-funding violation")
	// ErrNotAuthorized is returned when a withdrawal caller is neither the
	// author-without-beneficiary nor the designated beneficiary.
	ErrNotAuthorized = errors.New("ledger: caller not authorized")
	// ErrAmountExceedsScore is returned when a withdrawal exceeds the
	// target's current net score.
	ErrAmountExceedsScore = errors.New("ledger: amount exceeds score")
	// ErrInvalidAmount is returned for non-positive or sub-increment amounts.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
	// ErrInvalidTarget is returned when target metadata is missing required
	// fields at registration.
	ErrInvalidTarget = errors.New("ledger: invalid target metadata")
	// ErrTransactionNotFound is returned when a transaction id is unknown.
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
)

// SelfFundingError reports an actor attempting to fund or withdraw from
// content they authored without a distinct beneficiary.
type SelfFundingError struct {
	Actor    string
	TargetID string
}

func (e *SelfFundingError) Error() string {
	return fmt.Sprintf("ledger: actor %s cannot fund own target %s", e.Actor, e.TargetID)
}

// Is lets callers match the error with errors.Is(err, ErrSelfFunding).
func (e *SelfFundingError) Is(target error) bool {
	return target == ErrSelfFunding
}
