// Package server wires the defense pipeline into an HTTP surface.
package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/cyphergate/cyphergate/cmd/server/config"
	"github.com/cyphergate/cyphergate/cmd/server/middleware"
	"github.com/cyphergate/cyphergate/pkg/gateway"
	"github.com/cyphergate/cyphergate/pkg/infrastructure/metrics"
	"github.com/cyphergate/cyphergate/pkg/models"
)

// Pinger reports backing-store health for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front end for the gateway.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger
	gw     *gateway.Gateway
	pinger Pinger

	httpServer *http.Server
}

// New creates a server. pinger may be nil when no backing store is
// configured; the health endpoint then only reports process liveness.
func New(cfg *config.Config, logger zerolog.Logger, gw *gateway.Gateway, pinger Pinger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		gw:     gw,
		pinger: pinger,
	}
}

// Handler builds the full middleware chain around the route mux.
func (s *Server) Handler(collector metrics.Collector) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/query", s.handleQuery)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	var handler http.Handler = mux
	handler = middleware.NewAuthMiddleware(s.cfg.Auth, s.logger).Handler(handler)
	if collector != nil {
		handler = middleware.NewMetricsMiddleware(&middlewareMetricsAdapter{collector}).Handler(handler)
	}
	handler = middleware.NewLoggingMiddleware(s.logger).Handler(handler)
	handler = middleware.NewRecoveryMiddleware(s.logger).Handler(handler)
	return handler
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start(collector metrics.Collector) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.Handler(collector),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	if s.cfg.TLS.Enabled {
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type queryPayload struct {
	Query      string         `json:"query"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type queryResponse struct {
	Accepted   bool             `json:"accepted"`
	Records    []map[string]any `json:"records,omitempty"`
	FinalQuery string           `json:"final_query,omitempty"`
	Stage      string           `json:"stage,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	RetryAfter float64          `json:"retry_after_seconds,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var payload queryPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req := models.QueryRequest{
		Query:      payload.Query,
		Parameters: payload.Parameters,
		ClientID:   s.clientID(r),
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	records, verdict, err := s.gw.Execute(ctx, req)
	if err != nil && verdict.Accepted {
		s.logger.Error().Err(err).Str("client_id", req.ClientID).Msg("Query execution failed")
		writeJSON(w, http.StatusBadGateway, queryResponse{
			Accepted: true,
			Stage:    string(models.StageExecution),
			Reason:   "query execution failed",
		})
		return
	}

	if !verdict.Accepted {
		status := rejectionStatus(verdict.Stage)
		if verdict.Stage == models.StageRateLimit && verdict.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(verdict.RetryAfter))))
		}
		writeJSON(w, status, queryResponse{
			Accepted:   false,
			Stage:      string(verdict.Stage),
			Reason:     verdict.Reason,
			RetryAfter: verdict.RetryAfter,
		})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Accepted:   true,
		Records:    records,
		FinalQuery: verdict.FinalQuery,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// clientID derives the rate-limiting identity: the authenticated user when
// available, the remote address otherwise.
func (s *Server) clientID(r *http.Request) string {
	if user, ok := middleware.GetUser(r.Context()); ok && user != "" {
		return user
	}
	return r.RemoteAddr
}

func rejectionStatus(stage models.Stage) int {
	switch stage {
	case models.StageRateLimit:
		return http.StatusTooManyRequests
	case models.StageReadOnly:
		return http.StatusForbidden
	case models.StageCanceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
