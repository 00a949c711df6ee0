package ledger

import "meritledger/core/types"

// CheckSelfFunding enforces the no-self-funding rule shared by funded actions
// and withdrawals: an actor may not move value into content they authored
// unless a distinct beneficiary was designated at registration time. A
// distinct beneficiary relaxes the rule entirely for that target; a
// beneficiary equal to the author does not.
func CheckSelfFunding(actor string, target *types.Target) error {
	if target == nil {
		return ErrTargetNotFound
	}
	if target.HasDistinctBeneficiary() {
		return nil
	}
	if actor == target.Author {
		return &SelfFundingError{Actor: actor, TargetID: target.ID}
	}
	return nil
}
