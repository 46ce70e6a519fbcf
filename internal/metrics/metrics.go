// Package metrics defines the Prometheus collectors exported by Hermes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hermes"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Identity
	UsersRegistered    prometheus.Counter
	UsersDestroyed     prometheus.Counter
	Authentications    *prometheus.CounterVec
	CredentialUpgrades prometheus.Counter

	// Graph and feed
	RelationshipChanges *prometheus.CounterVec
	FeedQueryDuration   prometheus.Histogram
	MicropostsCreated   prometheus.Counter

	// Cache
	CacheLookups *prometheus.CounterVec
}

// New registers all collectors, plus the Go and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		UsersRegistered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_registered_total",
			Help:      "Users successfully registered.",
		}),
		UsersDestroyed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_destroyed_total",
			Help:      "Users deleted together with their posts and relationships.",
		}),
		Authentications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authentications_total",
			Help:      "Authentication attempts by result.",
		}, []string{"result"}),
		CredentialUpgrades: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_upgrades_total",
			Help:      "Stored passwords rehashed to the current scheme after login.",
		}),

		RelationshipChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relationship_changes_total",
			Help:      "Follow and unfollow operations that changed the graph.",
		}, []string{"op"}),
		FeedQueryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_query_duration_seconds",
			Help:      "Latency of one feed page query.",
			Buckets:   prometheus.DefBuckets,
		}),
		MicropostsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "microposts_created_total",
			Help:      "Microposts created.",
		}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "User cache lookups by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAuthentication counts one authentication attempt.
func (m *Metrics) RecordAuthentication(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.Authentications.WithLabelValues(result).Inc()
}

// RecordRelationshipChange counts one follow or unfollow.
func (m *Metrics) RecordRelationshipChange(op string) {
	if m == nil {
		return
	}
	m.RelationshipChanges.WithLabelValues(op).Inc()
}

// RecordFeedQuery observes the latency of one feed page.
func (m *Metrics) RecordFeedQuery(d time.Duration) {
	if m == nil {
		return
	}
	m.FeedQueryDuration.Observe(d.Seconds())
}

// RecordCacheLookup counts a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordRegistration counts one new user.
func (m *Metrics) RecordRegistration() {
	if m == nil {
		return
	}
	m.UsersRegistered.Inc()
}

// RecordDestroy counts one deleted user.
func (m *Metrics) RecordDestroy() {
	if m == nil {
		return
	}
	m.UsersDestroyed.Inc()
}

// RecordCredentialUpgrade counts one rehashed credential.
func (m *Metrics) RecordCredentialUpgrade() {
	if m == nil {
		return
	}
	m.CredentialUpgrades.Inc()
}

// RecordMicropost counts one new micropost.
func (m *Metrics) RecordMicropost() {
	if m == nil {
		return
	}
	m.MicropostsCreated.Inc()
}

// Middleware records request counts and latency labelled by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
