package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRouteLabel(t *testing.T) {
	for in, want := range map[string]string{
		"/v1/runs":                   "/v1/runs",
		"/v1/runs/":                  "/v1/runs/",
		"/v1/runs/abc":               "/v1/runs/{id}",
		"/v1/runs/abc/events/stream": "/v1/runs/{id}/events/stream",
		"/healthz":                   "/healthz",
	} {
		assert.Equal(t, want, routeLabel(in), in)
	}
}

func TestLogMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := LogMiddleware(zap.New(core), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.(http.Flusher).Flush()
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/x", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.True(t, rr.Flushed)

	entries := logs.FilterMessage("http request").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, int64(http.StatusTeapot), entries[0].ContextMap()["status"])
		assert.Equal(t, "/v1/runs/x", entries[0].ContextMap()["path"])
	}
}
