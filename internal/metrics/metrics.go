package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nailbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	checkouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome.",
		},
		[]string{"outcome"},
	)

	confirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirmations_total",
			Help:      "Payment confirmation watcher results.",
		},
		[]string{"state"},
	)

	webhooks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhooks_total",
			Help:      "Payment webhook deliveries by result.",
		},
		[]string{"result"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_tasks_total",
			Help:      "Agenda sync tasks by result.",
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications sent by channel and result.",
		},
		[]string{"channel", "result"},
	)

	orphanBookings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orphan_pending_bookings",
			Help:      "Pending bookings older than the orphan threshold.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, checkouts, confirmations,
			webhooks, syncTasks, notifications, orphanBookings)
	})
}

func ObserveHTTP(route, code string, seconds float64) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(seconds)
}

// IncCheckout counts a checkout attempt by outcome (redirected, invalid, slot_unavailable, link_failed, ...).
func IncCheckout(outcome string) {
	checkouts.WithLabelValues(outcome).Inc()
}

func IncConfirmation(state string) {
	confirmations.WithLabelValues(state).Inc()
}

func IncWebhook(result string) {
	webhooks.WithLabelValues(result).Inc()
}

func IncSyncTask(result string) {
	syncTasks.WithLabelValues(result).Inc()
}

func IncNotification(channel, result string) {
	notifications.WithLabelValues(channel, result).Inc()
}

func SetOrphanBookings(n int) {
	orphanBookings.Set(float64(n))
}
