package gateway

import (
	"math/big"

	"meritledger/core/events"
	"meritledger/core/types"
	"meritledger/observability/metrics"
)

// attributed is implemented by every event payload that can flatten itself
// into a wire-friendly attribute map.
type attributed interface {
	Event() *types.Event
}

// bridgeEvents fans committed node events into the webhook outbox, the
// websocket hub, and the metrics registry.
func (s *Server) bridgeEvents() {
	s.node.SubscribeEvents(func(evt events.Event) {
		payload, ok := evt.(attributed)
		if !ok {
			return
		}
		flat := payload.Event()
		if flat == nil {
			return
		}
		s.observe(evt, flat)
		s.hub.broadcast(flat)
		if s.outbox != nil {
			if _, err := s.outbox.Enqueue(flat.Type, flat.Attributes); err != nil {
				s.logger.Error("outbox: enqueue failed", "type", flat.Type, "err", err)
			}
		}
	})
}

func (s *Server) observe(evt events.Event, flat *types.Event) {
	m := metrics.Ledger()
	switch evt.EventType() {
	case events.TypeTransactionRecorded:
		m.ObserveTransaction("record")
		quota := parseAmount(flat.Attributes["amountQuota"])
		total := parseAmount(flat.Attributes["amountTotal"])
		m.ObserveSplit(quota, new(big.Int).Sub(total, quota))
	case events.TypeScoreWithdrawn:
		m.ObserveTransaction("withdraw")
		m.ObserveWithdrawal()
	case events.TypeBalanceTransferred:
		m.ObserveTransaction("transfer")
	case events.TypeInvestmentAccepted:
		m.ObserveInvestment()
	case events.TypePublicationClosed:
		m.ObserveClose(parseAmount(flat.Attributes["distributed"]))
	}
}

func parseAmount(raw string) *big.Int {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
