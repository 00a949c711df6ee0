package metrics

import (
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records economy activity: value transfers, withdrawals,
// investment flow, and publication closes.
type LedgerMetrics struct {
	transactions   *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	quotaConsumed  prometheus.Counter
	walletDebited  prometheus.Counter
	withdrawals    prometheus.Counter
	investments    prometheus.Counter
	closes         prometheus.Counter
	closeDistrib   prometheus.Gauge
	webhookRetries *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the lazily-initialised economy metrics registry.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "meritledger_transactions_total",
				Help: "Count of committed ledger transactions by operation.",
			}, []string{"operation"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "meritledger_rejections_total",
				Help: "Count of rejected operations by reason.",
			}, []string{"operation", "reason"}),
			quotaConsumed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "meritledger_quota_consumed_minor_units",
				Help: "Cumulative quota-funded value in minor units.",
			}),
			walletDebited: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "meritledger_wallet_debited_minor_units",
				Help: "Cumulative wallet-funded value in minor units.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "meritledger_withdrawals_total",
				Help: "Count of score withdrawals.",
			}),
			investments: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "meritledger_investments_total",
				Help: "Count of accepted pool contributions.",
			}),
			closes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "meritledger_publication_closes_total",
				Help: "Count of publication close transitions.",
			}),
			closeDistrib: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "meritledger_last_close_distributed_minor_units",
				Help: "Investor distribution of the most recent close.",
			}),
			webhookRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "meritledger_webhook_retries_total",
				Help: "Count of webhook delivery retries by destination.",
			}, []string{"destination"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.transactions,
			ledgerRegistry.rejections,
			ledgerRegistry.quotaConsumed,
			ledgerRegistry.walletDebited,
			ledgerRegistry.withdrawals,
			ledgerRegistry.investments,
			ledgerRegistry.closes,
			ledgerRegistry.closeDistrib,
			ledgerRegistry.webhookRetries,
		)
	})
	return ledgerRegistry
}

// ObserveTransaction counts one committed operation.
func (m *LedgerMetrics) ObserveTransaction(operation string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.transactions.WithLabelValues(operation).Inc()
}

// ObserveRejection counts one rejected operation.
func (m *LedgerMetrics) ObserveRejection(operation, reason string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

// ObserveSplit accumulates the quota/wallet funding split of a transaction.
func (m *LedgerMetrics) ObserveSplit(quota, wallet *big.Int) {
	if m == nil {
		return
	}
	m.quotaConsumed.Add(bigAbsFloat(quota))
	m.walletDebited.Add(bigAbsFloat(wallet))
}

// ObserveWithdrawal counts one score withdrawal.
func (m *LedgerMetrics) ObserveWithdrawal() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

// ObserveInvestment counts one accepted contribution.
func (m *LedgerMetrics) ObserveInvestment() {
	if m == nil {
		return
	}
	m.investments.Inc()
}

// ObserveClose records one publication close and its investor distribution.
func (m *LedgerMetrics) ObserveClose(distributed *big.Int) {
	if m == nil {
		return
	}
	m.closes.Inc()
	m.closeDistrib.Set(bigAbsFloat(distributed))
}

// ObserveWebhookRetry counts one webhook redelivery attempt.
func (m *LedgerMetrics) ObserveWebhookRetry(destination string) {
	if m == nil {
		return
	}
	if destination == "" {
		destination = "unknown"
	}
	m.webhookRetries.WithLabelValues(destination).Inc()
}

func bigAbsFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(new(big.Int).Abs(v)).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
