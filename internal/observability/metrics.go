package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "f1_live"

// Metrics holds the Prometheus counters, histograms, and gauges for the live leaderboard.
type Metrics struct {
	// Session signal metrics.
	SessionPolls  *prometheus.CounterVec // labels: outcome={active,inactive,error}
	SessionActive prometheus.Gauge

	// OpenF1 feed metrics.
	FeedRequests *prometheus.CounterVec   // labels: endpoint, outcome={success,error,canceled}
	FeedDuration *prometheus.HistogramVec // labels: endpoint

	// Reconciler metrics.
	TrackerRunning prometheus.Gauge
	Ticks          *prometheus.CounterVec // labels: outcome={accepted,failed,stale,empty}
	TickDuration   prometheus.Histogram
	RankingSize    prometheus.Gauge
	RetiredCars    prometheus.Gauge

	// Publishing metrics.
	PublishErrors    *prometheus.CounterVec // labels: sink
	PublishDropped   prometheus.Counter
	WebsocketClients prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SessionPolls,
		m.SessionActive,
		m.FeedRequests,
		m.FeedDuration,
		m.TrackerRunning,
		m.Ticks,
		m.TickDuration,
		m.RankingSize,
		m.RetiredCars,
		m.PublishErrors,
		m.PublishDropped,
		m.WebsocketClients,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SessionPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_polls_total",
			Help:      "Session status polls by outcome.",
		}, []string{"outcome"}),
		SessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a live session is detected, 0 otherwise.",
		}),
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      "OpenF1 API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		FeedDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_request_duration_seconds",
			Help:      "OpenF1 API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		TrackerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracker_running",
			Help:      "1 while the leaderboard tracker is polling a session, 0 otherwise.",
		}),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Leaderboard ticks by outcome.",
		}, []string{"outcome"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of a joint interval and position fetch plus reconciliation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RankingSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ranking_size",
			Help:      "Number of rows in the current leaderboard.",
		}),
		RetiredCars: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retired_cars",
			Help:      "Number of cars retired in the current session.",
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Snapshot publish failures by sink.",
		}, []string{"sink"}),
		PublishDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_dropped_total",
			Help:      "Snapshots dropped because the publish queue was full.",
		}),
		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket leaderboard clients.",
		}),
	}
}
