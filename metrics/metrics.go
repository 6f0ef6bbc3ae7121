package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the portal's collectors.
	Registry = prometheus.NewRegistry()

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wave_portal",
			Subsystem: "submissions",
			Name:      "total",
			Help:      "Wave submissions by outcome.",
		},
		[]string{"outcome"},
	)

	feedAppends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wave_portal",
			Subsystem: "feed",
			Name:      "appends_total",
			Help:      "Waves offered to the feed by source.",
		},
		[]string{"source"},
	)

	activeSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wave_portal",
			Subsystem: "feed",
			Name:      "active_subscriptions",
			Help:      "Live NewWave subscriptions currently held.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wave_portal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	Registry.MustRegister(submissions, feedAppends, activeSubscriptions, httpRequests)
}

// Handler exposes the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

// RecordFeedAppend counts a wave offered from source ("history" or "live"); duplicates are counted separately.
func RecordFeedAppend(source string, added bool) {
	if !added {
		source = "duplicate"
	}
	feedAppends.WithLabelValues(source).Inc()
}

// RecordHistoryAppends counts history records a reload added to the feed.
func RecordHistoryAppends(n int) {
	if n > 0 {
		feedAppends.WithLabelValues("history").Add(float64(n))
	}
}

func SubscriptionOpened() { activeSubscriptions.Inc() }

func SubscriptionClosed() { activeSubscriptions.Dec() }

// Middleware counts requests by route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
