package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the server's Prometheus collectors.
type metrics struct {
	requestsTotal *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	inflight      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_requests_total",
			Help: "Processed requests by route and final status.",
		}, []string{"route", "status"}),
		failuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_failures_total",
			Help: "Failed requests by failure kind.",
		}, []string{"kind"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "triage_requests_inflight",
			Help: "Requests currently being processed.",
		}),
	}
}
