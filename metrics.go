package cell_rate_limiter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the rate limiter. A nil
// *Metrics records nothing.
type Metrics struct {
	Checks            *prometheus.CounterVec
	RoundTripDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Checks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cell_rate_limiter",
				Name:      "checks_total",
				Help:      "Total rate limit checks by policy and outcome",
			},
			[]string{"policy", "outcome"}, // outcome=allowed/throttled/extract/transport/protocol
		),
		RoundTripDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cell_rate_limiter",
				Name:      "round_trip_seconds",
				Help:      "CL.THROTTLE round trip duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
			[]string{"policy"},
		),
	}
}

func (m *Metrics) observe(policy, outcome string) {
	if m == nil {
		return
	}
	if policy == "" {
		policy = "none"
	}
	m.Checks.WithLabelValues(policy, outcome).Inc()
}

func (m *Metrics) observeRoundTrip(policy string, d time.Duration) {
	if m == nil {
		return
	}
	m.RoundTripDuration.WithLabelValues(policy).Observe(d.Seconds())
}
