/*
Package metrics exposes Prometheus collectors for the two transactional
ledger operations. Scraped via the /metrics endpoint.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GrantDuration tracks grant-recording latency by outcome.
	GrantDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pontos_grant_duration_seconds",
			Help:    "Duration of grant recording requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// RedeemDuration tracks redemption latency by outcome.
	RedeemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pontos_redeem_duration_seconds",
			Help:    "Duration of redemption requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// PointsGranted counts points handed out.
	PointsGranted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pontos_points_granted_total",
		Help: "Total points granted",
	})

	// PointsRedeemed counts points spent on rewards.
	PointsRedeemed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pontos_points_redeemed_total",
		Help: "Total points redeemed",
	})
)

// RecordGrant records one grant-recording request.
func RecordGrant(status string, seconds float64) {
	GrantDuration.WithLabelValues(status).Observe(seconds)
}

// RecordRedeem records one redemption request.
func RecordRedeem(status string, seconds float64) {
	RedeemDuration.WithLabelValues(status).Observe(seconds)
}
