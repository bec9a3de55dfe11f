// Package metrics holds the archiver's Prometheus instrumentation: queue
// depth, worker pool occupancy, and per-stage job outcomes.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the archiver registers.
type Metrics struct {
	QueueDepth       prometheus.Gauge
	QueuePollsTotal  prometheus.Counter
	QueuePollErrors  prometheus.Counter
	WorkersActive    prometheus.Gauge
	WorkersTotal     prometheus.Gauge
	JobsClaimedTotal prometheus.Counter
	JobsLostLease    prometheus.Counter
	JobsRetried      prometheus.Counter
	JobsExhausted    prometheus.Counter

	StageDuration   prometheus.HistogramVec
	StageFailures   prometheus.CounterVec
	JobDuration     prometheus.Histogram
	JobsSucceeded   prometheus.Counter
	JobsFailedTotal prometheus.Counter
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers every metric. Safe to call more than
// once; only the first call registers collectors.
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "archivesvc_queue_depth",
				Help: "Number of leased job candidates currently buffered in the queue's in-memory channel",
			}),
			QueuePollsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "archivesvc_queue_polls_total",
				Help: "Total number of job table poll cycles run",
			}),
			QueuePollErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "archivesvc_queue_poll_errors_total",
				Help: "Total number of job table poll cycles that errored",
			}),
			WorkersActive: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "archivesvc_workers_active",
				Help: "Number of worker pool goroutines currently running a job",
			}),
			WorkersTotal: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "archivesvc_workers_total",
				Help: "Configured size of the worker pool",
			}),
			JobsClaimedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "archivesvc_jobs_claimed_total",
				Help: "Total number of job leases successfully claimed",
			}),
			JobsLostLease: promauto.NewCounter(prometheus.CounterOpts{
				Name: "archivesvc_jobs_lost_lease_total",
				Help: "Total number of job candidates discarded because another worker claimed the lease first",
			}),
			JobsRetried: promauto.NewCounter(prometheus.CounterOpts{
				Name: "archivesvc_jobs_retried_total",
				Help: "Total number of failed jobs that were rescheduled with a new row",
			}),
			JobsExhausted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "archivesvc_jobs_retries_exhausted_total",
				Help: "Total number of jobs that failed with no retries remaining",
			}),
			StageDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "archivesvc_pipeline_stage_duration_seconds",
					Help:    "Time spent in each pipeline stage",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
				},
				[]string{"stage"},
			),
			StageFailures: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "archivesvc_pipeline_stage_failures_total",
					Help: "Total number of pipeline stage failures by stage",
				},
				[]string{"stage"},
			),
			JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "archivesvc_job_duration_seconds",
				Help:    "End-to-end duration of a job run, fetch through delete-at-provider",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			}),
			JobsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
				Name: "archivesvc_jobs_succeeded_total",
				Help: "Total number of jobs that completed without error",
			}),
			JobsFailedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "archivesvc_jobs_failed_total",
				Help: "Total number of jobs that completed with an error, retried or not",
			}),
		}
	})
	return instance
}

// Get returns the global metrics instance, initializing it on first use.
func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}

// RecordPoll records one job table poll cycle.
func RecordPoll(err error) {
	m := Get()
	m.QueuePollsTotal.Inc()
	if err != nil {
		m.QueuePollErrors.Inc()
	}
}

// SetQueueDepth reports the current number of buffered candidates.
func SetQueueDepth(depth int) {
	Get().QueueDepth.Set(float64(depth))
}

// SetWorkerPoolSize reports the configured worker count, once at startup.
func SetWorkerPoolSize(n int) {
	Get().WorkersTotal.Set(float64(n))
}

// RecordWorkerStart/RecordWorkerDone bracket one job run on a worker.
func RecordWorkerStart() {
	Get().WorkersActive.Inc()
}

func RecordWorkerDone() {
	Get().WorkersActive.Dec()
}

// RecordJobOutcome records a claimed job's terminal lease outcome.
func RecordJobOutcome(err error) {
	m := Get()
	switch {
	case err == nil:
		m.JobsSucceeded.Inc()
	default:
		m.JobsFailedTotal.Inc()
	}
}

func RecordLeaseLost() {
	Get().JobsLostLease.Inc()
}

func RecordJobClaimed() {
	Get().JobsClaimedTotal.Inc()
}

func RecordJobRetried() {
	Get().JobsRetried.Inc()
}

func RecordJobRetriesExhausted() {
	Get().JobsExhausted.Inc()
}

// RecordJobDuration records the end-to-end duration of one job run.
func RecordJobDuration(d float64) {
	Get().JobDuration.Observe(d)
}

// RecordStage records a pipeline stage's duration and, on failure, bumps
// its failure counter.
func RecordStage(stage string, seconds float64, err error) {
	m := Get()
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
	if err != nil {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}
