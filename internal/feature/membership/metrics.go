package membership

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "membership_transitions_total", Help: "Applied membership status transitions"},
		[]string{"trigger", "from", "to"},
	)
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "membership_webhook_events_total", Help: "Verified webhook events by kind and outcome"},
		[]string{"kind", "outcome"},
	)
	redemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "membership_redemptions_total", Help: "Checkout redemptions by outcome"},
		[]string{"outcome"},
	)
	ledgerAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "membership_ledger_appends_total", Help: "Ledger inserts by source, deduplicated ones included"},
		[]string{"source", "inserted"},
	)
)

func init() {
	prometheus.MustRegister(transitionsTotal, webhookEventsTotal, redemptionsTotal, ledgerAppendsTotal)
}
