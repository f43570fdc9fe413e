// Package api serves predictions over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/metrics"
	"github.com/lox/balloonpredict/internal/models"
	"github.com/lox/balloonpredict/internal/predict"
	"github.com/lox/balloonpredict/internal/weather"
)

const (
	DefaultRequestTimeout = 60 * time.Second
	maxRequestBytes       = 1 << 20
)

// Briefer writes a plain-language summary of a prediction.
type Briefer interface {
	Generate(ctx context.Context, res *models.PredictionResult) (string, error)
}

// Publisher forwards finished predictions downstream.
type Publisher interface {
	Publish(ctx context.Context, res *models.PredictionResult) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Addr           string
	RequestTimeout time.Duration
	Predict        predict.Config
}

type Server struct {
	cfg       Config
	provider  weather.Provider
	log       logging.Logger
	briefer   Briefer
	publisher Publisher
	store     Pinger
}

type Option func(*Server)

func WithBriefer(b Briefer) Option       { return func(s *Server) { s.briefer = b } }
func WithPublisher(p Publisher) Option   { return func(s *Server) { s.publisher = p } }
func WithStore(p Pinger) Option          { return func(s *Server) { s.store = p } }
func WithLogger(l logging.Logger) Option { return func(s *Server) { s.log = l } }

func NewServer(provider weather.Provider, cfg Config, opts ...Option) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	s := &Server{
		cfg:      cfg,
		provider: provider,
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Noop()
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/predict", s.instrument("predict", http.HandlerFunc(s.handlePredict)))
	mux.Handle("GET /health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Info(ctx, "api: listening", logging.String("addr", s.cfg.Addr))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument attaches a request-scoped logger and counts responses by route
// and status code.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, log := logging.WithRequestLogger(r.Context(), s.log)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		rec.Header().Set("X-Request-ID", logging.RequestID(ctx))

		next.ServeHTTP(rec, r.WithContext(ctx))

		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		log.Debug(ctx, "api: request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}
