package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adamwoolhether/downloader/web/mux"
)

// HTTPMetrics holds the request metrics recorded by Metrics.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the request metrics with reg.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	if reg == nil {
		return nil, errors.New("registerer must not be nil")
	}

	m := HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "downloader_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "downloader_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	if err := reg.Register(m.requests); err != nil {
		return nil, err
	}
	if err := reg.Register(m.duration); err != nil {
		return nil, err
	}

	return &m, nil
}

// Metrics counts requests and observes their latency per route. It must
// run outside Errors to see the final status code.
func Metrics(m *HTTPMetrics) mux.Middleware {
	mw := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)

			v := mux.GetValues(ctx)
			code := v.StatusCode
			if code == 0 {
				code = http.StatusOK
			}

			m.requests.WithLabelValues(v.Route, strconv.Itoa(code)).Inc()
			m.duration.WithLabelValues(v.Route).Observe(time.Since(v.Now).Seconds())

			return err
		}

		return h
	}

	return mw
}
