package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	signalMessages    *prometheus.CounterVec
	signalDropped     *prometheus.CounterVec

	matchRequests prometheus.Counter
	matchesFound  prometheus.Counter
	usersWaiting  prometheus.Gauge

	callsActive  prometheus.Gauge
	callsTotal   *prometheus.CounterVec
	callDuration prometheus.Histogram

	eventsPublished *prometheus.CounterVec
	eventRetries    prometheus.Counter
	eventsLost      prometheus.Counter
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "skillcall_connections_active",
			Help: "Number of open websocket connections",
		}),

		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skillcall_connections_total",
			Help: "Total number of accepted websocket connections",
		}),

		signalMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skillcall_signal_messages_total",
			Help: "Inbound signaling messages by type",
		}, []string{"type"}),

		signalDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skillcall_signal_dropped_total",
			Help: "Signaling messages dropped by reason",
		}, []string{"reason"}),

		matchRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skillcall_match_requests_total",
			Help: "Total match:start requests",
		}),

		matchesFound: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skillcall_matches_found_total",
			Help: "Total successful pairings",
		}),

		usersWaiting: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "skillcall_users_waiting",
			Help: "Users currently enqueued for matching on this instance",
		}),

		callsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "skillcall_calls_active",
			Help: "Calls currently tracked by this instance",
		}),

		callsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skillcall_calls_total",
			Help: "Terminated calls by final state",
		}, []string{"state"}),

		callDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "skillcall_call_duration_seconds",
			Help:    "Duration of connected calls",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		eventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skillcall_events_published_total",
			Help: "Session lifecycle events published by subject",
		}, []string{"subject"}),

		eventRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skillcall_event_publish_retries_total",
			Help: "Event publish attempts that needed the retry queue",
		}),

		eventsLost: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skillcall_events_lost_total",
			Help: "Events dropped after exhausting retries; investigate broker health when nonzero",
		}),
	}
}

func (p *PrometheusCollector) RecordConnectionOpened() {
	if p == nil {
		return
	}
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) RecordConnectionClosed() {
	if p == nil {
		return
	}
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) RecordSignalMessage(msgType string) {
	if p == nil {
		return
	}
	p.signalMessages.WithLabelValues(msgType).Inc()
}

func (p *PrometheusCollector) RecordSignalDropped(reason string) {
	if p == nil {
		return
	}
	p.signalDropped.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordMatchRequest() {
	if p == nil {
		return
	}
	p.matchRequests.Inc()
}

func (p *PrometheusCollector) RecordMatchFound() {
	if p == nil {
		return
	}
	p.matchesFound.Inc()
}

func (p *PrometheusCollector) SetUsersWaiting(n int) {
	if p == nil {
		return
	}
	p.usersWaiting.Set(float64(n))
}

func (p *PrometheusCollector) RecordCallCreated() {
	if p == nil {
		return
	}
	p.callsActive.Inc()
}

func (p *PrometheusCollector) RecordCallTerminated(state string, duration time.Duration) {
	if p == nil {
		return
	}
	p.callsActive.Dec()
	p.callsTotal.WithLabelValues(state).Inc()
	if duration > 0 {
		p.callDuration.Observe(duration.Seconds())
	}
}

func (p *PrometheusCollector) RecordEventPublished(subject string) {
	if p == nil {
		return
	}
	p.eventsPublished.WithLabelValues(subject).Inc()
}

func (p *PrometheusCollector) RecordEventRetry() {
	if p == nil {
		return
	}
	p.eventRetries.Inc()
}

func (p *PrometheusCollector) RecordEventLost() {
	if p == nil {
		return
	}
	p.eventsLost.Inc()
}
