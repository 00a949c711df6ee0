package types

import (
	"fmt"
	"strings"
)

// TargetType enumerates the kinds of content a transaction may fund.
type TargetType string

const (
	TargetPublication TargetType = "publication"
	TargetComment     TargetType = "comment"
	TargetPollOption  TargetType = "pollOption"
	// TargetActor marks wallet-to-wallet transfers that bypass content scores.
	TargetActor TargetType = "actor"
)

// Valid reports whether the target type is a supported value.
func (t TargetType) Valid() bool {
	switch t {
	case TargetPublication, TargetComment, TargetPollOption, TargetActor:
		return true
	default:
		return false
	}
}

// ParseTargetType normalises a caller-supplied target type string.
func ParseTargetType(raw string) (TargetType, error) {
	t := TargetType(strings.TrimSpace(raw))
	if !t.Valid() {
		return "", fmt.Errorf("unsupported target type: %s", raw)
	}
	return t, nil
}

// TargetStatus captures the one-way publication lifecycle.
type TargetStatus uint8

const (
	TargetActive TargetStatus = iota
	TargetClosed
)

// String returns the lifecycle state as a readable label.
func (s TargetStatus) String() string {
	switch s {
	case TargetClosed:
		return "closed"
	default:
		return "active"
	}
}

// Target describes a registered piece of content that can accumulate score.
// Author and beneficiary are fixed at registration; Status only ever moves
// from active to closed.
type Target struct {
	ID               string       `json:"id"`
	Type             TargetType   `json:"type"`
	Community        string       `json:"community"`
	Author           string       `json:"author"`
	Beneficiary      string       `json:"beneficiary,omitempty"`
	ParentID         string       `json:"parentId,omitempty"`
	InvestingEnabled bool         `json:"investingEnabled"`
	InvestorShare    uint32       `json:"investorShare"`
	Status           TargetStatus `json:"status"`
	CreatedAt        int64        `json:"createdAt"`
}

// Clone returns a copy of the target metadata.
func (t *Target) Clone() *Target {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// HasDistinctBeneficiary reports whether a beneficiary other than the author
// was designated at registration time.
func (t *Target) HasDistinctBeneficiary() bool {
	if t == nil {
		return false
	}
	return t.Beneficiary != "" && t.Beneficiary != t.Author
}

// Owner returns the actor entitled to withdraw accumulated score: the
// beneficiary when one was designated, otherwise the author.
func (t *Target) Owner() string {
	if t == nil {
		return ""
	}
	if t.HasDistinctBeneficiary() {
		return t.Beneficiary
	}
	return t.Author
}
