package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func getHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	h, ok := o.(prometheus.Histogram)
	require.True(t, ok)
	m := &dto.Metric{}
	require.NoError(t, h.Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/rtc/api/config", "/rtc/api/config"},
		{"/rtc/api/config/list", "/rtc/api/config/list"},
		{"/rtc/api/config/item", "/rtc/api/config/item"},
		{"/rtc/api/client", "/rtc/api/client"},
		{"/connect", "/connect"},
		{"/metrics", "/metrics"},
		{"/healthz", "/healthz"},
		{"/favicon.ico", "/other"},
		{"/", "/other"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizePath(tc.path))
		})
	}
}

func TestHTTPMiddleware(t *testing.T) {
	t.Run("records status and duration", func(t *testing.T) {
		handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		before := getCounterValue(t, HTTPRequestsTotal.WithLabelValues("GET", "/rtc/api/config", "404"))
		durBefore := getHistogramCount(t, HTTPRequestDuration.WithLabelValues("GET", "/rtc/api/config"))

		req := httptest.NewRequest(http.MethodGet, "/rtc/api/config?config_name=web", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, before+1, getCounterValue(t, HTTPRequestsTotal.WithLabelValues("GET", "/rtc/api/config", "404")))
		assert.Equal(t, durBefore+1, getHistogramCount(t, HTTPRequestDuration.WithLabelValues("GET", "/rtc/api/config")))
	})

	t.Run("implicit 200", func(t *testing.T) {
		handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))

		before := getCounterValue(t, HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200"))

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, before+1, getCounterValue(t, HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200")))
	})
}

func TestGauges(t *testing.T) {
	base := getGaugeValue(t, ActiveSessions)
	ActiveSessions.Inc()
	assert.Equal(t, base+1, getGaugeValue(t, ActiveSessions))
	ActiveSessions.Dec()
	assert.Equal(t, base, getGaugeValue(t, ActiveSessions))
}
