package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the match engine.
type Metrics struct {
	MatchesStarted   prometheus.Counter
	MatchesCompleted *prometheus.CounterVec
	ActiveMatches    prometheus.Gauge
	Answers          *prometheus.CounterVec
	AnswerLatency    prometheus.Histogram
	SuspiciousFlags  *prometheus.CounterVec
	Suspensions      prometheus.Counter
	DispatchErrors   *prometheus.CounterVec
}

// New registers the engine metrics on reg. Use a fresh registry per test.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MatchesStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "quizbattle",
			Subsystem: "engine",
			Name:      "matches_started_total",
			Help:      "Matches initialized",
		}),
		MatchesCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizbattle",
			Subsystem: "engine",
			Name:      "matches_completed_total",
			Help:      "Matches that reached a terminal phase",
		}, []string{"status"}),
		ActiveMatches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "quizbattle",
			Subsystem: "engine",
			Name:      "active_matches",
			Help:      "Matches currently registered",
		}),
		Answers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizbattle",
			Subsystem: "engine",
			Name:      "answers_total",
			Help:      "Submitted answers by result",
		}, []string{"result"}), // correct, incorrect, rejected, duplicate
		AnswerLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quizbattle",
			Subsystem: "engine",
			Name:      "answer_latency_seconds",
			Help:      "Server-measured time from question start to accepted answer",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 21, 30},
		}),
		SuspiciousFlags: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizbattle",
			Subsystem: "anticheat",
			Name:      "suspicious_activity_total",
			Help:      "Anti-cheat findings by kind",
		}, []string{"kind"}),
		Suspensions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "quizbattle",
			Subsystem: "anticheat",
			Name:      "suspensions_total",
			Help:      "Players suspended after repeated flags",
		}),
		DispatchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizbattle",
			Subsystem: "dispatch",
			Name:      "errors_total",
			Help:      "Collaborator deliveries that failed",
		}, []string{"event"}),
	}
}
