package httpserver

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsRecorder owns the server's Prometheus collectors. Each Server gets
// its own registry so parallel test servers never collide on registration.
type metricsRecorder struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	rateLimited   prometheus.Counter
	bookings      prometheus.Counter
	cancellations prometheus.Counter
	refreshSlots  *prometheus.CounterVec
}

func newMetricsRecorder() *metricsRecorder {
	recorder := &metricsRecorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observatory_http_requests_total",
			Help: "HTTP requests by route, method, and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "observatory_http_request_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "observatory_rate_limited_total",
			Help: "Requests rejected by the per-account rate limiter.",
		}),
		bookings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "observatory_bookings_total",
			Help: "Seats booked on viewing events.",
		}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "observatory_cancellations_total",
			Help: "Bookings cancelled by their holders.",
		}),
		refreshSlots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observatory_weather_refresh_slots_total",
			Help: "Slots touched by weather refreshes, by outcome.",
		}, []string{"outcome"}),
	}
	recorder.registry.MustRegister(
		recorder.requests,
		recorder.latency,
		recorder.rateLimited,
		recorder.bookings,
		recorder.cancellations,
		recorder.refreshSlots,
	)
	return recorder
}

func (recorder *metricsRecorder) recordWeatherRefresh(updated int, failed int) {
	recorder.refreshSlots.WithLabelValues("updated").Add(float64(updated))
	recorder.refreshSlots.WithLabelValues("failed").Add(float64(failed))
}

func (recorder *metricsRecorder) middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		recorder.requests.WithLabelValues(route, ctx.Request.Method, strconv.Itoa(ctx.Writer.Status())).Inc()
		recorder.latency.WithLabelValues(route).Observe(time.Since(started).Seconds())
	}
}

func (recorder *metricsRecorder) handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(recorder.registry, promhttp.HandlerOpts{}))
}
