package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/dunamismax/pixelcut/internal/pipeline"
	"github.com/dunamismax/pixelcut/internal/queue"
	"github.com/dunamismax/pixelcut/internal/store"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type queueEnqueuer interface {
	EnqueueRemoveBackground(ctx context.Context, payload queue.RemoveBackgroundPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

type Config struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	PresignExpiry  time.Duration
	// TrustedProxies lists the peers (IPs or CIDRs) whose X-Forwarded-For
	// header is believed. Requests from anyone else are keyed by RemoteAddr.
	TrustedProxies []string
}

// Deps are the collaborators of the server. Queue, Jobs, Storage,
// RateLimiter and Tracer are optional; the routes that need a missing one
// answer 503.
type Deps struct {
	Processor   Processor
	Queue       queueEnqueuer
	Jobs        store.JobStore
	Storage     objectStorage
	RateLimiter RateLimiter
	Tracer      trace.Tracer
	Logger      logrus.FieldLogger
}

type Server struct {
	logger         logrus.FieldLogger
	processor      Processor
	queueClient    queueEnqueuer
	jobStore       store.JobStore
	storage        objectStorage
	rateLimiter    RateLimiter
	tracer         trace.Tracer
	metrics        *metrics
	allowedOrigins []string
	trustedProxies []netip.Prefix
	requestTimeout time.Duration
	presignTTL     time.Duration
	mux            *http.ServeMux
}

func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Processor == nil {
		return nil, errors.New("processor is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Minute
	}
	presignTTL := cfg.PresignExpiry
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	trusted, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	s := &Server{
		logger:         logger,
		processor:      deps.Processor,
		queueClient:    deps.Queue,
		jobStore:       deps.Jobs,
		storage:        deps.Storage,
		rateLimiter:    deps.RateLimiter,
		tracer:         deps.Tracer,
		metrics:        newMetrics(),
		allowedOrigins: cfg.AllowedOrigins,
		trustedProxies: trusted,
		requestTimeout: requestTimeout,
		presignTTL:     presignTTL,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func parseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.withRateLimit(h)
	h = s.withRequestLog(h)
	h = s.metrics.withHTTPMetrics(h)
	h = s.withTracing(h)
	h = s.withCORS(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /removebg", s.handleRemoveBackground)
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
