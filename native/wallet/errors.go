package wallet

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrNilState is returned when the ledger has no state backend configured.
	ErrNilState = errors.New("wallet: state not configured")
	// ErrInvalidAmount is returned for non-positive credit or debit amounts.
	ErrInvalidAmount = errors.New("wallet: amount must be positive")
	// ErrInsufficientFunds is the sentinel matched by errors.Is for failed
	// debits. The concrete error carries the shortfall context.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
)

// InsufficientFundsError reports a rejected debit together with the balance
// that was available at decision time.
type InsufficientFundsError struct {
	Actor     string
	Community string
	Available *big.Int
	Requested *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("wallet: insufficient funds for %s in %s: available %s, requested %s",
		e.Actor, e.Community, e.Available, e.Requested)
}

// Is lets callers match the error with errors.Is(err, ErrInsufficientFunds).
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
