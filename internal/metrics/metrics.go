package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReminderMetrics tracks the scheduling pipeline end to end: alerts created
// by the orchestrator, jobs accepted by the queue, and terminal worker
// outcomes.
type ReminderMetrics struct {
	AlertsScheduled  *prometheus.CounterVec
	JobsEnqueued     prometheus.Counter
	JobsDeduplicated prometheus.Counter
	RemindersSent    *prometheus.CounterVec
	RemindersFailed  *prometheus.CounterVec
	RemindersSkipped *prometheus.CounterVec

	registry *prometheus.Registry
}

func NewReminderMetrics() *ReminderMetrics {
	m := &ReminderMetrics{
		AlertsScheduled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "garantio_alerts_scheduled_total",
				Help: "Total number of alert records created",
			},
			[]string{"kind"},
		),
		JobsEnqueued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "garantio_jobs_enqueued_total",
				Help: "Total number of delayed jobs accepted by the queue",
			},
		),
		JobsDeduplicated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "garantio_jobs_deduplicated_total",
				Help: "Total number of enqueues ignored because the job key already existed",
			},
		),
		RemindersSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "garantio_reminders_sent_total",
				Help: "Total number of reminders delivered by the worker",
			},
			[]string{"kind"},
		),
		RemindersFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "garantio_reminders_failed_total",
				Help: "Total number of reminder deliveries that failed",
			},
			[]string{"kind"},
		),
		RemindersSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "garantio_reminders_skipped_total",
				Help: "Total number of jobs completed without delivery (cancelled, already sent, missing warranty)",
			},
			[]string{"reason"},
		),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.AlertsScheduled,
		m.JobsEnqueued,
		m.JobsDeduplicated,
		m.RemindersSent,
		m.RemindersFailed,
		m.RemindersSkipped,
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *ReminderMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
