package funding

import "errors"

var (
	// ErrNilState is returned when the engine has no state backend configured.
	ErrNilState = errors.New("funding: state not configured")
	// ErrPublicationNotFound is returned when the publication id is unknown.
	ErrPublicationNotFound = errors.New("funding: publication not found")
	// ErrNotPublication is returned when the target exists but is not a
	// publication (comments and poll options cannot carry pools).
	ErrNotPublication = errors.New("funding: target is not a publication")
	// ErrPublicationClosed is returned when investing against a publication
	// that has reached its terminal state.
	ErrPublicationClosed = errors.New("funding: publication closed")
	// ErrInvestingDisabled is returned when the publication was registered
	// without the investing flag.
	ErrInvestingDisabled = errors.New("funding: investing disabled")
	// ErrAlreadyClosed is returned by a repeated close attempt; the stored
	// summary from the first close accompanies it.
	ErrAlreadyClosed = errors.New("funding: publication already closed")
	// ErrNotAuthorized is returned when someone other than the author closes.
	ErrNotAuthorized = errors.New("funding: caller not authorized")
	// ErrInvalidAmount is returned for non-positive contribution amounts.
	ErrInvalidAmount = errors.New("funding: amount must be positive")
)
