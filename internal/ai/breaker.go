package ai

import (
	"time"

	"github.com/sony/gobreaker"

	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/telemetry"
)

func newBreaker(name string, metrics *telemetry.Metrics) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.RecordCircuitBreakerState(name, to.String())
			if to == gobreaker.StateOpen {
				logger.Error("Circuit breaker opened, upstream degraded", "breaker", name, "from", from.String())
				return
			}
			logger.Info("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}
