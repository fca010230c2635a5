package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	recommendationsTotal     *prometheus.CounterVec
	recommendationLatency    prometheus.Histogram
	signalDegradedTotal      *prometheus.CounterVec
	recommendationCacheTotal *prometheus.CounterVec
	embeddingCacheTotal      *prometheus.CounterVec
	trainingRunsTotal        *prometheus.CounterVec
	trainingDuration         prometheus.Histogram
	modelGeneration          *prometheus.GaugeVec
	moodleRequestsTotal      *prometheus.CounterVec
	interactionEventsTotal   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		recommendationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendations_total",
			Help: "Recommendation responses by type and status.",
		}, []string{"type", "status"})

		recommendationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recommendation_latency_seconds",
			Help:    "End to end latency of a recommendation request.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		})

		signalDegradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_signal_degraded_total",
			Help: "Requests served without one of the ranking signals.",
		}, []string{"signal", "reason"})

		recommendationCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_cache_total",
			Help: "Recommendation response cache lookups.",
		}, []string{"result"})

		embeddingCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "embedding_cache_total",
			Help: "Embedding cache lookups.",
		}, []string{"result"})

		trainingRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recommender_training_runs_total",
			Help: "Model training runs by trigger and outcome.",
		}, []string{"trigger", "status"})

		trainingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recommender_training_duration_seconds",
			Help:    "Duration of model training runs.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		})

		modelGeneration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "recommender_model_generation",
			Help: "Generation of the currently published model per engine.",
		}, []string{"engine"})

		moodleRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moodle_requests_total",
			Help: "Moodle web service calls by function and outcome.",
		}, []string{"function", "status"})

		interactionEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interaction_events_total",
			Help: "Interaction events consumed from the message bus.",
		}, []string{"status"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			recommendationsTotal, recommendationLatency, signalDegradedTotal, recommendationCacheTotal,
			embeddingCacheTotal,
			trainingRunsTotal, trainingDuration, modelGeneration,
			moodleRequestsTotal, interactionEventsTotal,
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

// Recommendations counts recommendation responses.
func Recommendations() *prometheus.CounterVec {
	RegisterMetrics()
	return recommendationsTotal
}

// RecommendationLatency exposes the recommendation latency histogram.
func RecommendationLatency() prometheus.Histogram {
	RegisterMetrics()
	return recommendationLatency
}

// SignalDegraded counts requests that lost a ranking signal.
func SignalDegraded() *prometheus.CounterVec {
	RegisterMetrics()
	return signalDegradedTotal
}

// RecommendationCache counts response cache hits and misses.
func RecommendationCache() *prometheus.CounterVec {
	RegisterMetrics()
	return recommendationCacheTotal
}

// EmbeddingCache counts embedding cache hits and misses.
func EmbeddingCache() *prometheus.CounterVec {
	RegisterMetrics()
	return embeddingCacheTotal
}

// TrainingRuns counts training runs.
func TrainingRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return trainingRunsTotal
}

// TrainingDuration exposes the training duration histogram.
func TrainingDuration() prometheus.Histogram {
	RegisterMetrics()
	return trainingDuration
}

// ModelGeneration exposes the published generation per engine.
func ModelGeneration() *prometheus.GaugeVec {
	RegisterMetrics()
	return modelGeneration
}

// MoodleRequests counts Moodle web service calls.
func MoodleRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return moodleRequestsTotal
}

// InteractionEvents counts consumed interaction events.
func InteractionEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return interactionEventsTotal
}
