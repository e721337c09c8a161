package metrics

import "github.com/prometheus/client_golang/prometheus"

// RAG pipeline Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fksintel",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding backend requests",
		},
		[]string{"backend", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fksintel",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend", "model"},
	)

	EmbeddingDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fksintel",
			Name:      "embedding_degraded_total",
			Help:      "Inputs substituted with zero vectors after backend failure",
		},
		[]string{"backend", "model"},
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fksintel",
			Name:      "generation_requests_total",
			Help:      "Total number of text generation requests",
		},
		[]string{"backend", "model", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fksintel",
			Name:      "generation_request_duration_seconds",
			Help:      "Text generation request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"backend", "model"},
	)

	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fksintel",
			Name:      "generation_rate_limit_rejected_total",
			Help:      "Generation requests rejected before the network call",
		},
		[]string{"scope"}, // "minute" / "day"
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fksintel",
			Name:      "rag_queries_total",
			Help:      "Total knowledge-base queries",
		},
		[]string{"status"},
	)

	DocumentsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fksintel",
			Name:      "documents_ingested_total",
			Help:      "Documents ingested into the knowledge base",
		},
		[]string{"doc_type"},
	)
)

var ragMetricsRegistered bool

// RegisterRAGMetrics registers pipeline metrics. Must be called once from main.
func RegisterRAGMetrics() {
	if ragMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingDegradedTotal)
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	prometheus.MustRegister(RateLimitRejectedTotal)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(DocumentsIngestedTotal)
	ragMetricsRegistered = true
}
