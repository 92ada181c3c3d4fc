package observability

import "github.com/prometheus/client_golang/prometheus"

// RenewalsTotal counts renewal attempts by outcome ("success" or
// "failure"). Attempts suppressed by the rate limiter are counted by
// RateLimitedTotal instead.
var RenewalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tokenmanager",
	Name:      "renewals_total",
	Help:      "Total renewal attempts, by outcome.",
}, []string{"outcome"})

// RenewDuration observes wall-clock latency of a single (possibly
// singleflight-shared) renewal call.
var RenewDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "tokenmanager",
	Name:      "renew_duration_seconds",
	Help:      "Latency of TokenClient.Renew calls.",
	Buckets:   prometheus.DefBuckets,
})

// RateLimitedTotal counts renewal attempts suppressed by the rate
// limiter.
var RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "tokenmanager",
	Name:      "rate_limited_total",
	Help:      "Total expired-driven renewal attempts suppressed by the rate limiter.",
})

// ExpiredTotal counts ExpirationScheduler fires, by tokenKey.
var ExpiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tokenmanager",
	Name:      "expired_total",
	Help:      "Total expiration timer fires, by token key.",
}, []string{"token_key"})

// MustRegister registers every collector above against reg. Called once
// at startup; tests that construct a Manager repeatedly should pass a
// fresh prometheus.Registry rather than the global default.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(RenewalsTotal, RenewDuration, RateLimitedTotal, ExpiredTotal)
}
