package rest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rest_request_attempts_total",
		Help: "HTTP attempts issued, including retries.",
	}, []string{"method"})

	requestRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rest_request_retries_total",
		Help: "Attempts that had to be retried, by cause.",
	}, []string{"cause"})

	rateLimitSleeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rest_rate_limit_sleeps_total",
		Help: "Sleeps imposed by rate-limit state, by scope.",
	}, []string{"scope"})

	fetchCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rest_fetch_cache_requests_total",
		Help: "Fetch cache lookups by outcome.",
	}, []string{"outcome"})
)
