package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce                 sync.Once
	apiRequestsTotal             *prometheus.CounterVec
	apiLatencySeconds            *prometheus.HistogramVec
	apiErrorsTotal               *prometheus.CounterVec
	buildResultsProcessedTotal   *prometheus.CounterVec
	gradingEventsPublishedTotal  *prometheus.CounterVec
	resultFeedClientsActive      prometheus.Gauge
	duplicateTestDetectionsTotal prometheus.Counter
	reevaluatedResultsTotal      prometheus.Counter
	assessmentLockConflictsTotal prometheus.Counter
	assessmentsSubmittedTotal    prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		buildResultsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_build_results_processed_total",
			Help: "Total number of CI build notifications turned into results.",
		}, []string{"outcome"})

		gradingEventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_events_published_total",
			Help: "Total number of grading events fanned out to subscribers.",
		}, []string{"kind"})

		resultFeedClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grading_result_feed_clients_active",
			Help: "Number of websocket clients subscribed to the result feed.",
		})

		duplicateTestDetectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grading_duplicate_test_detections_total",
			Help: "Total number of grading passes that detected duplicate test case output.",
		})

		reevaluatedResultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grading_reevaluated_results_total",
			Help: "Total number of results updated by re-evaluation passes.",
		})

		assessmentLockConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grading_assessment_lock_conflicts_total",
			Help: "Total number of assessment lock attempts rejected because the round was taken.",
		})

		assessmentsSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grading_assessments_submitted_total",
			Help: "Total number of completed manual assessments.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			buildResultsProcessedTotal,
			gradingEventsPublishedTotal,
			resultFeedClientsActive,
			duplicateTestDetectionsTotal,
			reevaluatedResultsTotal,
			assessmentLockConflictsTotal,
			assessmentsSubmittedTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// BuildResultsProcessedTotal exposes the counter for processed build notifications.
func BuildResultsProcessedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return buildResultsProcessedTotal
}

// GradingEventsPublishedTotal exposes the counter for published grading events.
func GradingEventsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingEventsPublishedTotal
}

// ResultFeedClientsActive exposes the gauge for live feed subscribers.
func ResultFeedClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return resultFeedClientsActive
}

// DuplicateTestDetectionsTotal exposes the counter for duplicate detections.
func DuplicateTestDetectionsTotal() prometheus.Counter {
	RegisterMetrics()
	return duplicateTestDetectionsTotal
}

// ReevaluatedResultsTotal exposes the counter for re-evaluated results.
func ReevaluatedResultsTotal() prometheus.Counter {
	RegisterMetrics()
	return reevaluatedResultsTotal
}

// AssessmentLockConflictsTotal exposes the counter for lock conflicts.
func AssessmentLockConflictsTotal() prometheus.Counter {
	RegisterMetrics()
	return assessmentLockConflictsTotal
}

// AssessmentsSubmittedTotal exposes the counter for submitted assessments.
func AssessmentsSubmittedTotal() prometheus.Counter {
	RegisterMetrics()
	return assessmentsSubmittedTotal
}
