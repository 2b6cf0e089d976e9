package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProofRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draw_prover_proof_requests_total",
			Help: "Total number of proof generation requests by circuit",
		},
		[]string{"circuit"},
	)

	ProofGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draw_prover_proof_generation_duration_seconds",
			Help:    "Duration of proof generation in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 15),
		},
		[]string{"circuit"},
	)

	ProofGenerationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draw_prover_proof_generation_errors_total",
			Help: "Total number of proof generation errors by circuit",
		},
		[]string{"circuit", "error_type"},
	)

	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draw_prover_verifications_total",
			Help: "Total number of verification requests by outcome",
		},
		[]string{"circuit", "outcome"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draw_prover_jobs_processed_total",
			Help: "Total number of queued jobs processed",
		},
		[]string{"status"},
	)

	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "draw_prover_active_jobs",
			Help: "Number of currently active proof generation jobs",
		},
	)
)

type MetricTimer struct {
	start   time.Time
	circuit string
}

func StartProofTimer(circuit string) *MetricTimer {
	ProofRequestsTotal.WithLabelValues(circuit).Inc()
	ActiveJobs.Inc()
	return &MetricTimer{start: time.Now(), circuit: circuit}
}

func (t *MetricTimer) ObserveDuration() {
	ProofGenerationDuration.WithLabelValues(t.circuit).Observe(time.Since(t.start).Seconds())
	ActiveJobs.Dec()
}

func (t *MetricTimer) ObserveError(errorType string) {
	ProofGenerationErrors.WithLabelValues(t.circuit, errorType).Inc()
	ActiveJobs.Dec()
}

func RecordVerification(circuit string, valid bool) {
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	VerificationsTotal.WithLabelValues(circuit, outcome).Inc()
}

func RecordJobComplete(success bool) {
	if success {
		JobsProcessed.WithLabelValues("completed").Inc()
	} else {
		JobsProcessed.WithLabelValues("failed").Inc()
	}
}
