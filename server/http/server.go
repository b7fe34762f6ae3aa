// Package httpapi implements the HTTP surface (C10): the same semantic
// operations as the line protocol, exposed as JSON routes over the
// shard manager shared with the TCP server, plus the ambient
// /metrics and /healthz operational endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lunarcache/lunardb/shard"
)

// Server exposes LunarCache's JSON HTTP surface over a shared shard
// manager. The underlying engine instance is the one used by the TCP
// server (spec.md §4.8: "the same instance").
type Server struct {
	mgr *shard.Manager
	log *zap.SugaredLogger
	mux *http.ServeMux
	srv *http.Server
}

type envelope struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New constructs a Server and wires its routes. /metrics serves the
// default Prometheus registry via promhttp.Handler().
func New(addr string, mgr *shard.Manager, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{mgr: mgr, log: log, mux: http.NewServeMux()}
	s.routes()
	s.srv = &http.Server{Addr: addr, Handler: s.mux}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/get/", s.handleGet)
	s.mux.HandleFunc("/set", s.handleSet)
	s.mux.HandleFunc("/delete/", s.handleDelete)
	s.mux.HandleFunc("/mget", s.handleMGet)
	s.mux.HandleFunc("/mset", s.handleMSet)
	s.mux.HandleFunc("/keys", s.handleKeys)
	s.mux.HandleFunc("/lpush", s.handleListPush(true))
	s.mux.HandleFunc("/rpush", s.handleListPush(false))
	s.mux.HandleFunc("/lpop/", s.handleListPop(true))
	s.mux.HandleFunc("/rpop/", s.handleListPop(false))
	s.mux.HandleFunc("/lrange", s.handleLRange)
	s.mux.HandleFunc("/llen/", s.handleLLen)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/healthz", s.handleHealthz)
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.srv.Shutdown(context.Background())
}

func writeJSON(w http.ResponseWriter, status int, msg string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Status: status, Message: msg, Data: data})
}

func pathTail(r *http.Request, prefix string) string {
	return r.URL.Path[len(prefix):]
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := pathTail(r, "/get/")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, "missing key", nil)
		return
	}
	v, ok := s.mgr.Get(key)
	if !ok {
		writeJSON(w, http.StatusNotFound, "key not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, "ok", map[string]string{"key": key, "value": v})
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key   string `json:"key"`
		Value string `json:"value"`
		TTL   int64  `json:"ttl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Key == "" {
		writeJSON(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	s.mgr.Set(body.Key, body.Value, body.TTL)
	writeJSON(w, http.StatusOK, "ok", nil)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := pathTail(r, "/delete/")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, "missing key", nil)
		return
	}
	if !s.mgr.Del(key) {
		writeJSON(w, http.StatusNotFound, "key not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, "ok", nil)
}

func (s *Server) handleMGet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Keys []string `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Keys) == 0 {
		writeJSON(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	vals := s.mgr.MGet(body.Keys)
	out := make(map[string]*string, len(body.Keys))
	for i, k := range body.Keys {
		out[k] = vals[i]
	}
	writeJSON(w, http.StatusOK, "ok", out)
}

func (s *Server) handleMSet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pairs []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"pairs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Pairs) == 0 {
		writeJSON(w, http.StatusBadRequest, "malformed body", nil)
		return
	}
	pairs := make([][2]string, len(body.Pairs))
	for i, p := range body.Pairs {
		pairs[i] = [2]string{p.Key, p.Value}
	}
	s.mgr.MSet(pairs)
	writeJSON(w, http.StatusOK, "ok", nil)
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "ok", s.mgr.Keys())
}

func (s *Server) handleListPush(front bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Key == "" {
			writeJSON(w, http.StatusBadRequest, "malformed body", nil)
			return
		}
		var err error
		if front {
			err = s.mgr.LPush(body.Key, body.Value)
		} else {
			err = s.mgr.RPush(body.Key, body.Value)
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		writeJSON(w, http.StatusOK, "ok", nil)
	}
}

func (s *Server) handleListPop(front bool) http.HandlerFunc {
	prefix := "/rpop/"
	if front {
		prefix = "/lpop/"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := pathTail(r, prefix)
		if key == "" {
			writeJSON(w, http.StatusBadRequest, "missing key", nil)
			return
		}
		var v string
		var ok bool
		var err error
		if front {
			v, ok, err = s.mgr.LPop(key)
		} else {
			v, ok, err = s.mgr.RPop(key)
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, "empty list", nil)
			return
		}
		writeJSON(w, http.StatusOK, "ok", map[string]string{"value": v})
	}
}

func (s *Server) handleLRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	start, err1 := strconv.Atoi(q.Get("start"))
	stop, err2 := strconv.Atoi(q.Get("stop"))
	if key == "" || err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, "malformed query", nil)
		return
	}
	items, err := s.mgr.LRange(key, start, stop)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if len(items) == 0 {
		writeJSON(w, http.StatusNotFound, "empty list", nil)
		return
	}
	writeJSON(w, http.StatusOK, "ok", items)
}

func (s *Server) handleLLen(w http.ResponseWriter, r *http.Request) {
	key := pathTail(r, "/llen/")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, "missing key", nil)
		return
	}
	n, err := s.mgr.LLen(key)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, "ok", map[string]int{"len": n})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
