package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PointsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_points_granted_total",
		Help: "Total points granted by transaction type",
	}, []string{"type"})

	PointsRedeemed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_redeemed_total",
		Help: "Total points spent on reward redemptions",
	})

	TierUpgrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_tier_upgrades_total",
		Help: "Tier promotions by target tier",
	}, []string{"tier"})

	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_rejections_total",
		Help: "Business-rule rejections by operation and code",
	}, []string{"operation", "code"})

	ReferralsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_referrals_completed_total",
		Help: "Referrals converted by a confirmed order",
	})

	PromoRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_promo_redemptions_total",
		Help: "Promo code redemptions by promo type",
	}, []string{"type"})

	PayoutTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_payout_transitions_total",
		Help: "Cashback payout state transitions by target status",
	}, []string{"status"})

	TxRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_tx_retries_total",
		Help: "Ledger transactions retried after a serialization conflict",
	}, []string{"operation"})

	TxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loyalty_tx_duration_seconds",
		Help:    "Ledger transaction latency including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	ScheduledJobAffected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loyalty_scheduled_job_affected_rows_total",
		Help: "Rows changed by housekeeping jobs",
	}, []string{"job"})

	SSEClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loyalty_sse_clients",
		Help: "Current number of SSE clients connected",
	})
)

func labelOrUnknown(value string) string {
	label := strings.TrimSpace(value)
	if label == "" {
		return "unknown"
	}
	return label
}

func AddPointsGranted(txType string, points int64) {
	if points <= 0 {
		return
	}
	PointsGranted.WithLabelValues(labelOrUnknown(txType)).Add(float64(points))
}

func AddPointsRedeemed(points int64) {
	if points <= 0 {
		return
	}
	PointsRedeemed.Add(float64(points))
}

func IncTierUpgrade(tierName string) {
	TierUpgrades.WithLabelValues(labelOrUnknown(tierName)).Inc()
}

func IncRejection(operation, code string) {
	Rejections.WithLabelValues(labelOrUnknown(operation), labelOrUnknown(code)).Inc()
}

func IncReferralCompleted() {
	ReferralsCompleted.Inc()
}

func IncPromoRedemption(promoType string) {
	PromoRedemptions.WithLabelValues(labelOrUnknown(promoType)).Inc()
}

func IncPayoutTransition(status string) {
	PayoutTransitions.WithLabelValues(labelOrUnknown(status)).Inc()
}

func IncTxRetry(operation string) {
	TxRetries.WithLabelValues(labelOrUnknown(operation)).Inc()
}

func ObserveTxDuration(operation string, duration time.Duration) {
	TxDuration.WithLabelValues(labelOrUnknown(operation)).Observe(duration.Seconds())
}

func AddScheduledJobAffected(job string, rows int64) {
	if rows <= 0 {
		return
	}
	ScheduledJobAffected.WithLabelValues(labelOrUnknown(job)).Add(float64(rows))
}

func SetSSEClients(count int) {
	if count < 0 {
		count = 0
	}
	SSEClients.Set(float64(count))
}
