// Package metrics registers the process's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Launches counts LTI launches by resolved mode and outcome.
	Launches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "annolti_launches_total",
		Help: "LTI launches handled, by document mode and status.",
	}, []string{"mode", "status"})

	// LMSRequests counts outbound LMS API calls by host and HTTP status.
	LMSRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "annolti_lms_requests_total",
		Help: "Outbound LMS API requests, by host and status code.",
	}, []string{"host", "status"})

	// TokenRefreshes counts LMS access-token refresh attempts.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "annolti_token_refreshes_total",
		Help: "LMS OAuth2 token refresh attempts, by result.",
	}, []string{"result"})
)
