package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the core subsystems
type Metrics struct {
	InboundMessages    *prometheus.CounterVec
	OutboundRequests   prometheus.Counter
	CurfewEvaluations  *prometheus.CounterVec
	DirectoryRefreshes *prometheus.CounterVec
}

// New registers and returns the application metrics
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		InboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "homeguard_inbound_messages_total",
			Help: "Inbound SMS messages by terminal disposition.",
		}, []string{"disposition"}),
		OutboundRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "homeguard_outbound_location_requests_total",
			Help: "Outbound SMS location requests handed to the gateway.",
		}),
		CurfewEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "homeguard_curfew_evaluations_total",
			Help: "Curfew evaluations by result.",
		}, []string{"result"}),
		DirectoryRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "homeguard_directory_refreshes_total",
			Help: "Directory snapshot refreshes by outcome.",
		}, []string{"outcome"}),
	}
}
