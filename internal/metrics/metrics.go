// Package metrics holds the Prometheus collectors of the compliance service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fleet_compliance"

// Metrics is a private registry plus the service's collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Reviews              *prometheus.CounterVec
	Submissions          *prometheus.CounterVec
	InstancesEnsured     *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	ProgressSaves        prometheus.Counter
}

// New creates and registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Review transitions applied to credential instances.",
		}, []string{"action", "subject_kind"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Credential submissions finalized by drivers.",
		}, []string{"subject_kind"}),
		InstancesEnsured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_created_total",
			Help:      "Credential instances created lazily on first use.",
		}, []string{"subject_kind"}),
		NotificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be published.",
		}, []string{"event"}),
		ProgressSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_saves_total",
			Help:      "Instruction progress auto-saves.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Reviews,
		m.Submissions,
		m.InstancesEnsured,
		m.NotificationFailures,
		m.ProgressSaves,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) ObserveReview(action, subjectKind string) {
	if m == nil {
		return
	}
	m.Reviews.WithLabelValues(action, subjectKind).Inc()
}

func (m *Metrics) ObserveSubmission(subjectKind string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(subjectKind).Inc()
}

func (m *Metrics) ObserveEnsured(subjectKind string) {
	if m == nil {
		return
	}
	m.InstancesEnsured.WithLabelValues(subjectKind).Inc()
}

func (m *Metrics) ObserveNotificationFailure(event string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveProgressSave() {
	if m == nil {
		return
	}
	m.ProgressSaves.Inc()
}
