package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry         *prometheus.Registry
	jobsTotal        *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	activeJobs       prometheus.Gauge
	failuresTotal    *prometheus.CounterVec
	outputBytesTotal prometheus.Counter
	webhookFailures  prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelcut_worker_jobs_total",
			Help: "Total worker job attempts by final status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelcut_worker_job_duration_seconds",
			Help:    "Processing duration of each worker job attempt.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelcut_worker_active_jobs",
			Help: "Current number of active processing jobs in the worker.",
		}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelcut_worker_failures_total",
			Help: "Failed job attempts by error kind.",
		}, []string{"kind"}),
		outputBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelcut_worker_output_bytes_total",
			Help: "Total PNG bytes written for successful jobs.",
		}),
		webhookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelcut_worker_webhook_failures_total",
			Help: "Webhook notifications that could not be delivered.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.failuresTotal,
		m.outputBytesTotal,
		m.webhookFailures,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
