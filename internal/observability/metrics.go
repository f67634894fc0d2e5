package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetmetry_tool_calls_total",
		Help: "Tool dispatches by tool name and HTTP-equivalent status.",
	}, []string{"tool", "status"})

	toolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetmetry_tool_call_duration_seconds",
		Help:    "Tool dispatch latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	modelRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetmetry_model_requests_total",
		Help: "Model invocations by outcome.",
	}, []string{"status"})

	turnIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetmetry_turn_iterations",
		Help:    "Model iterations consumed per conversation turn.",
		Buckets: []float64{1, 2, 3, 5, 8, 10, 15},
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveToolCall records one tool dispatch.
func ObserveToolCall(tool string, status int, took time.Duration) {
	toolCalls.WithLabelValues(tool, strconv.Itoa(status)).Inc()
	toolCallDuration.WithLabelValues(tool).Observe(took.Seconds())
}

// ObserveModelRequest records one model invocation outcome ("ok",
// "tool_call", "error").
func ObserveModelRequest(status string) {
	modelRequests.WithLabelValues(status).Inc()
}

// ObserveTurn records how many model iterations a finished turn consumed.
func ObserveTurn(iterations int) {
	turnIterations.Observe(float64(iterations))
}
