package events

import (
	"math/big"

	"meritledger/core/types"
)

const (
	TypeInvestmentAccepted  = "funding.investment.accepted"
	TypePublicationClosed   = "funding.publication.closed"
	TypeInvestorDistributed = "funding.investor.distributed"
)

// InvestmentAccepted is emitted when an investor contribution joins a
// publication pool.
type InvestmentAccepted struct {
	PublicationID string
	Investor      string
	Community     string
	Amount        *big.Int
	PoolTotal     *big.Int
}

func (InvestmentAccepted) EventType() string { return TypeInvestmentAccepted }

func (e InvestmentAccepted) Event() *types.Event {
	return &types.Event{
		Type: TypeInvestmentAccepted,
		Attributes: map[string]string{
			"publicationId": e.PublicationID,
			"investor":      e.Investor,
			"community":     e.Community,
			"amount":        formatAmount(e.Amount),
			"poolTotal":     formatAmount(e.PoolTotal),
		},
	}
}

// PublicationClosed is emitted once per publication when the terminal close
// transition commits.
type PublicationClosed struct {
	PublicationID string
	Author        string
	Community     string
	TotalEarned   *big.Int
	PoolReturned  *big.Int
	Distributed   *big.Int
	AuthorShare   *big.Int
}

func (PublicationClosed) EventType() string { return TypePublicationClosed }

func (e PublicationClosed) Event() *types.Event {
	return &types.Event{
		Type: TypePublicationClosed,
		Attributes: map[string]string{
			"publicationId": e.PublicationID,
			"author":        e.Author,
			"community":     e.Community,
			"totalEarned":   formatAmount(e.TotalEarned),
			"poolReturned":  formatAmount(e.PoolReturned),
			"distributed":   formatAmount(e.Distributed),
			"authorShare":   formatAmount(e.AuthorShare),
		},
	}
}

// InvestorDistributed is emitted per investor during a close, covering both
// the pro-rata score share and the principal refund.
type InvestorDistributed struct {
	PublicationID string
	Investor      string
	Share         *big.Int
	Principal     *big.Int
}

func (InvestorDistributed) EventType() string { return TypeInvestorDistributed }

func (e InvestorDistributed) Event() *types.Event {
	return &types.Event{
		Type: TypeInvestorDistributed,
		Attributes: map[string]string{
			"publicationId": e.PublicationID,
			"investor":      e.Investor,
			"share":         formatAmount(e.Share),
			"principal":     formatAmount(e.Principal),
		},
	}
}
