package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront_customer"

// Collector records session and customer API activity.
// A nil *Collector is valid and records nothing.
type Collector struct {
	logins          *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	apiRequests     *prometheus.CounterVec
	apiRequestTimes *prometheus.HistogramVec
}

// NewCollector creates the collectors and registers them on reg
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Completed login callbacks by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refreshes by mode (blocking, background, startup, retry) and result.",
		}, []string{"mode", "result"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Customer account API requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		apiRequestTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Customer account API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	for _, collector := range []prometheus.Collector{c.logins, c.refreshes, c.apiRequests, c.apiRequestTimes} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return c, nil
}

// ObserveLogin counts a login outcome
func (c *Collector) ObserveLogin(result string) {
	if c == nil {
		return
	}
	c.logins.WithLabelValues(result).Inc()
}

// ObserveRefresh counts a token refresh outcome
func (c *Collector) ObserveRefresh(mode string, result string) {
	if c == nil {
		return
	}
	c.refreshes.WithLabelValues(mode, result).Inc()
}

// ObserveRequest counts an API round trip and records its latency
func (c *Collector) ObserveRequest(operation string, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.apiRequests.WithLabelValues(operation, outcome).Inc()
	c.apiRequestTimes.WithLabelValues(operation).Observe(duration.Seconds())
}
