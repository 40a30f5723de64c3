// Package metrics holds the Prometheus collectors for the reservation and
// inventory flows. Collectors register with the default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TxConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_tx_conflicts_total",
			Help: "Transaction attempts that lost a write conflict and were retried",
		},
		[]string{"op"},
	)

	TxExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_tx_exhausted_total",
			Help: "Transactions that ran out of retry attempts",
		},
		[]string{"op"},
	)

	lockOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_operations_total",
			Help: "Lock manager operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	lockHeldDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lock_held_duration_seconds",
			Help:    "Time between lock creation and conversion into a registration",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	shipments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_shipments_total",
			Help: "Order to shipment conversions by outcome",
		},
		[]string{"outcome"},
	)

	stockDeducted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_units_deducted_total",
			Help: "Units removed from stock by shipment conversions",
		},
	)

	paymentVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "Payment signature checks by result",
		},
		[]string{"result"},
	)

	locksSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "locks_swept_total",
			Help: "Expired lock records removed by the sweeper",
		},
	)
)

// TrackLockOperation counts an acquire/release by outcome ("created",
// "reused", "exhausted", "released", "error").
func TrackLockOperation(operation, outcome string) {
	lockOperations.WithLabelValues(operation, outcome).Inc()
}

func TrackLockHeld(d time.Duration) {
	if d < 0 {
		return
	}
	lockHeldDuration.Observe(d.Seconds())
}

// TrackShipment counts a conversion by outcome ("created", "existing",
// "error") and the units it deducted.
func TrackShipment(outcome string, units int) {
	shipments.WithLabelValues(outcome).Inc()
	if units > 0 {
		stockDeducted.Add(float64(units))
	}
}

func TrackPaymentVerification(result string) {
	paymentVerifications.WithLabelValues(result).Inc()
}

func TrackSweep(removed int) {
	if removed > 0 {
		locksSwept.Add(float64(removed))
	}
}
