package service

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	OrdersPlaced           *prometheus.CounterVec
	OrdersCancelled        prometheus.Counter
	OrdersRejected         *prometheus.CounterVec
	MatchAttempts          prometheus.Counter
	TradesMatched          prometheus.Counter
	PartialMatchRejections prometheus.Counter
	EventsPublished        prometheus.Counter
	EventsDropped          prometheus.Counter
	AuditFailures          prometheus.Counter
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		OrdersPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_placed_total",
				Help: "Total orders accepted, by side.",
			},
			[]string{"side"},
		),
		OrdersCancelled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orders_cancelled_total",
				Help: "Total orders cancelled by their owners.",
			},
		),
		OrdersRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_rejected_total",
				Help: "Total order placements rejected, by reason.",
			},
			[]string{"reason"},
		),
		MatchAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "match_attempts_total",
				Help: "Total matching engine invocations.",
			},
		),
		TradesMatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trades_matched_total",
				Help: "Total trades settled.",
			},
		),
		PartialMatchRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "partial_match_rejections_total",
				Help: "Total placements aborted because amounts differed.",
			},
		),
		EventsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "match_events_published_total",
				Help: "Total match notifications delivered to the publisher.",
			},
		),
		EventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "match_events_dropped_total",
				Help: "Total match notifications dropped after a publish failure.",
			},
		),
		AuditFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_write_failures_total",
				Help: "Total audit log writes that failed and were swallowed.",
			},
		),
	}

	registry.MustRegister(
		m.OrdersPlaced, m.OrdersCancelled, m.OrdersRejected,
		m.MatchAttempts, m.TradesMatched, m.PartialMatchRejections,
		m.EventsPublished, m.EventsDropped, m.AuditFailures,
	)
	return m
}
