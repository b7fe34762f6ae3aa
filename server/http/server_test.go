package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lunarcache/lunardb/engine"
	"github.com/lunarcache/lunardb/shard"
)

func newTestServer() *Server {
	mgr := shard.New(2, 1000, func(cap int) *engine.Engine {
		return engine.New(engine.Options{Capacity: cap})
	}, nil)
	return New(":0", mgr, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHTTPServer_SetGetDelete(t *testing.T) {
	t.Parallel()
	s := newTestServer()

	rec, env := doJSON(t, s, http.MethodPost, "/set", map[string]string{"key": "foo", "value": "bar"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, http.StatusOK, env.Status)

	rec, _ = doJSON(t, s, http.MethodGet, "/get/foo", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, s, http.MethodDelete, "/delete/foo", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, s, http.MethodGet, "/get/foo", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPServer_SetMalformedBody(t *testing.T) {
	t.Parallel()
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/set", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPServer_ListRoutes(t *testing.T) {
	t.Parallel()
	s := newTestServer()

	rec, _ := doJSON(t, s, http.MethodPost, "/lpush", map[string]string{"key": "l", "value": "a"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doJSON(t, s, http.MethodPost, "/rpush", map[string]string{"key": "l", "value": "b"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, s, http.MethodGet, "/lrange?key=l&start=0&stop=-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, s, http.MethodPost, "/lpop/l", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPServer_HealthzAndMetrics(t *testing.T) {
	t.Parallel()
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
