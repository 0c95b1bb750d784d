// Package metrics exposes Prometheus collectors for assessment traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "assessments"

// Recorder bundles the collectors used by the attempt service.
type Recorder struct {
	attemptsStarted    *prometheus.CounterVec
	attemptsCompleted  *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	submissionFailures *prometheus.CounterVec
	liveSessions       prometheus.Gauge
	completionSeconds  *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		attemptsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_started_total",
			Help:      "Attempts started, by assessment.",
		}, []string{"assessment"}),
		attemptsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_completed_total",
			Help:      "Attempts that reached the completed state, by assessment.",
		}, []string{"assessment"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Runner operations, by operation and result.",
		}, []string{"op", "result"}),
		submissionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submission_failures_total",
			Help:      "Completed attempts whose submission could not be stored.",
		}, []string{"assessment"}),
		liveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions",
			Help:      "Open WebSocket assessment sessions.",
		}),
		completionSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_seconds",
			Help:      "Time from attempt start to completion.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1800},
		}, []string{"assessment"}),
	}
	if reg != nil {
		reg.MustRegister(
			r.attemptsStarted,
			r.attemptsCompleted,
			r.transitions,
			r.submissionFailures,
			r.liveSessions,
			r.completionSeconds,
		)
	}
	return r
}

// Nop returns a recorder that is not registered anywhere.
func Nop() *Recorder {
	return New(nil)
}

func (r *Recorder) AttemptStarted(assessmentID string) {
	r.attemptsStarted.WithLabelValues(assessmentID).Inc()
}

func (r *Recorder) AttemptCompleted(assessmentID string, seconds float64) {
	r.attemptsCompleted.WithLabelValues(assessmentID).Inc()
	if seconds >= 0 {
		r.completionSeconds.WithLabelValues(assessmentID).Observe(seconds)
	}
}

// Transition records one runner operation. result is "ok", "rejected" or "error".
func (r *Recorder) Transition(op, result string) {
	r.transitions.WithLabelValues(op, result).Inc()
}

func (r *Recorder) SubmissionFailed(assessmentID string) {
	r.submissionFailures.WithLabelValues(assessmentID).Inc()
}

func (r *Recorder) SessionOpened() { r.liveSessions.Inc() }

func (r *Recorder) SessionClosed() { r.liveSessions.Dec() }
