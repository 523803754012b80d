// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Submission outcomes.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

var (
	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "submissions_total",
		Help:      "Attendance create attempts by outcome.",
	}, []string{"outcome"})

	PublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "event_publish_failures_total",
		Help:      "Recorded events that could not be queued.",
	})

	SummariesApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Name:      "summaries_applied_total",
		Help:      "Recorded events folded into weekly summaries, by result.",
	}, []string{"result"})

	Captures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Subsystem: "recorder",
		Name:      "captures_total",
		Help:      "Captures handled on the recorder, by how they left the device.",
	}, []string{"path"})

	Imports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rollcall",
		Subsystem: "recorder",
		Name:      "imports_total",
		Help:      "Reconciled files and backlog entries, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(Submissions, PublishFailures, SummariesApplied, Captures, Imports)
}
