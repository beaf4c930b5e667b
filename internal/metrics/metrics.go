// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 30},
		},
		[]string{"method", "endpoint"},
	)

	AnswersRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprep_answers_recorded_total",
			Help: "Answers recorded into study sessions",
		},
		[]string{"mode", "correct"},
	)

	SessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprep_session_events_total",
			Help: "Study session lifecycle events",
		},
		[]string{"event"},
	)

	SuggestionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprep_suggestions_total",
			Help: "Suggestion lists produced, by source",
		},
		[]string{"source"},
	)

	CollaboratorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprep_collaborator_failures_total",
			Help: "Failed calls to question, grading and material collaborators",
		},
		[]string{"op"},
	)
)

// Session lifecycle event labels.
const (
	SessionStarted   = "started"
	SessionCompleted = "completed"
	SessionAbandoned = "abandoned"
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AnswersRecorded,
			SessionEvents,
			SuggestionRuns,
			CollaboratorFailures,
		)
	})
}

func ObserveAnswer(mode string, correct bool) {
	AnswersRecorded.WithLabelValues(mode, strconv.FormatBool(correct)).Inc()
}

func ObserveSession(event string) {
	SessionEvents.WithLabelValues(event).Inc()
}

func ObserveSuggestion(source string) {
	SuggestionRuns.WithLabelValues(source).Inc()
}

func ObserveCollaboratorFailure(op string) {
	CollaboratorFailures.WithLabelValues(op).Inc()
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		duration := time.Since(start).Seconds()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
