// Package api exposes the connection manager client over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/trvinh99/redis-actor/core/actor"
	"github.com/trvinh99/redis-actor/core/connmgr"
	"github.com/trvinh99/redis-actor/ports/kv"
)

const (
	// DefaultMaxValueSize bounds request bodies of PUT /kv/{key}.
	DefaultMaxValueSize = 1 << 20
	// MaxControlBodySize bounds request bodies of POST /connect and
	// POST /reconnect, independently of MaxValueSize.
	MaxControlBodySize = 64 << 10
)

type (
	Options struct {
		Log          *slog.Logger
		MaxValueSize int64
	}

	// URLsRequestBody is the body of POST /connect and POST /reconnect.
	URLsRequestBody struct {
		URLs []string `json:"urls"`
	}

	ErrorResponseBody struct {
		Error string `json:"error"`
	}

	server struct {
		client *connmgr.Client
		log    *slog.Logger
		max    int64
	}
)

// NewHandler routes:
//
//	PUT    /kv/{key}?ttl=30s  insert the request body
//	GET    /kv/{key}          query
//	DELETE /kv/{key}          delete
//	POST   /connect           {"urls": [...]}
//	POST   /reconnect         {"urls": [...]}
//	GET    /status            connection manager status
//
// Writes are fire-and-forget and answered with 202.
func NewHandler(client *connmgr.Client, opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.MaxValueSize <= 0 {
		opts.MaxValueSize = DefaultMaxValueSize
	}
	s := &server{client: client, log: opts.Log.With(slog.String("component", "api")), max: opts.MaxValueSize}

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /kv/{key}", s.insert)
	mux.HandleFunc("GET /kv/{key}", s.query)
	mux.HandleFunc("DELETE /kv/{key}", s.delete)
	mux.HandleFunc("POST /connect", s.urls(s.client.Connect))
	mux.HandleFunc("POST /reconnect", s.urls(s.client.Reconnect))
	mux.HandleFunc("GET /status", s.status)
	return mux
}

func (s *server) insert(w http.ResponseWriter, r *http.Request) {
	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			s.fail(w, http.StatusBadRequest, fmt.Errorf("invalid ttl %q", raw))
			return
		}
		ttl = d
	}

	value, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.max))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	if err := s.client.Insert(r.Context(), r.PathValue("key"), value, ttl); err != nil {
		s.fail(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) query(w http.ResponseWriter, r *http.Request) {
	v, err := s.client.Query(r.Context(), r.PathValue("key"))
	if err != nil {
		s.fail(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(v)
}

func (s *server) delete(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Delete(r.Context(), r.PathValue("key")); err != nil {
		s.fail(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) urls(send func(ctx context.Context, urls []string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body URLsRequestBody
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxControlBodySize)).Decode(&body); err != nil {
			s.fail(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
			return
		}
		if err := send(r.Context(), body.URLs); err != nil {
			s.fail(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.client.Status(r.Context())
	if err != nil {
		s.fail(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) fail(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.log.Warn("request failed", slog.Int("status", code), slog.Any("error", err))
	}
	writeJSON(w, code, ErrorResponseBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, connmgr.ErrEmptyKey), errors.Is(err, kv.ErrNoURLs):
		return http.StatusBadRequest
	case errors.Is(err, connmgr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, connmgr.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, connmgr.ErrUnavailable), errors.Is(err, actor.ErrNotRegistered):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
