// Package server exposes the quote engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tournevent/shipquote/internal/quote"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// QuoteService prices carts.
type QuoteService interface {
	Quote(ctx context.Context, req *quote.Request) (*quote.Result, error)
}

// CarrierLister lists the registered rate providers.
type CarrierLister interface {
	Names() []string
}

// Config holds server configuration.
type Config struct {
	Port         int
	QuoteTimeout time.Duration
}

// Server is the HTTP server for the quote service.
type Server struct {
	cfg      Config
	quotes   QuoteService
	carriers CarrierLister
	gatherer prometheus.Gatherer
	logger   *otelzap.Logger
	validate *validator.Validate
}

// New creates a new server instance. A nil gatherer serves the default
// Prometheus registry.
func New(cfg Config, quotes QuoteService, carriers CarrierLister, gatherer prometheus.Gatherer, logger *otelzap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg:      cfg,
		quotes:   quotes,
		carriers: carriers,
		gatherer: gatherer,
		logger:   logger,
		validate: validator.New(),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/carriers", s.handleCarriers)
		r.Post("/quotes", s.handleQuote)
	})
	return r
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Ctx(r.Context()).Debug("HTTP request",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleCarriers(w http.ResponseWriter, r *http.Request) {
	names := s.carriers.Names()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, carriersResponse{Carriers: names})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var body quoteRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.validate.Struct(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	req, err := body.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if s.cfg.QuoteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QuoteTimeout)
		defer cancel()
	}

	result, err := s.quotes.Quote(ctx, req)
	switch {
	case errors.Is(err, quote.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Ctx(ctx).Warn("Quote aborted", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "quote aborted: "+err.Error())
		return
	case err != nil:
		s.logger.Ctx(ctx).Error("Quote failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, newQuoteResponse(result))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func newQuoteResponse(result *quote.Result) quoteResponse {
	resp := quoteResponse{
		QuoteID:                      uuid.New().String(),
		Options:                      result.Options,
		Errors:                       result.Errors,
		ShippedFromMultipleLocations: result.ShippedFromMultipleLocations,
	}
	if resp.Options == nil {
		resp.Options = []quote.Option{}
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	return resp
}
