package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordAuthentication(true)
	m.RecordRelationshipChange("follow")
	m.RecordFeedQuery(time.Millisecond)
	m.RecordCacheLookup(false)
	m.RecordRegistration()
	m.RecordDestroy()
	m.RecordCredentialUpgrade()
	m.RecordMicropost()

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordAuthentication(true)
	m.RecordAuthentication(false)
	m.RecordAuthentication(false)
	m.RecordRelationshipChange("follow")
	m.RecordCacheLookup(true)
	m.RecordRegistration()
	m.RecordMicropost()
	m.RecordMicropost()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Authentications.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Authentications.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelationshipChanges.WithLabelValues("follow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UsersRegistered))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MicropostsCreated))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/users/{id}", "404")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "hermes_http_requests_total"))
}
