package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(creditMutationsTotal, creditDebitRefusalsTotal) }

var creditMutationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credit_mutations_total",
		Help: "Ledger transactions written, labeled by type.",
	},
	[]string{"type"}, // 'purchase', 'subscription', 'story_generation', 'refund'
)

var creditDebitRefusalsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credit_debit_refusals_total",
		Help: "Debits refused before spending, labeled by tier.",
	},
	[]string{"tier"},
)

func IncCreditMutation(typ string) {
	creditMutationsTotal.WithLabelValues(norm(typ)).Inc()
}

func IncDebitRefused(tier string) {
	creditDebitRefusalsTotal.WithLabelValues(norm(tier)).Inc()
}
