// Package api serves retrieval and cited answers over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/telemetry"
)

// ModelChecker reports whether the generation model can serve requests.
type ModelChecker interface {
	ModelReady(ctx context.Context) (bool, string)
}

// Options wires the server's collaborators.
type Options struct {
	Holder   *search.Holder
	Answerer *answer.Answerer
	Metrics  *telemetry.Metrics

	// Models is nil when generation is disabled.
	Models ModelChecker

	Config *config.Config
}

// Server is the HTTP front end.
type Server struct {
	holder   *search.Holder
	answerer *answer.Answerer
	metrics  *telemetry.Metrics
	models   ModelChecker
	cfg      *config.Config
	router   chi.Router
}

// New builds the server and its routes.
func New(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	holder := opts.Holder
	if holder == nil {
		holder = search.NewHolder(nil)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.New(nil)
	}
	answerer := opts.Answerer
	if answerer == nil {
		answerer = answer.NewAnswerer(holder, nil, answer.ConfigFrom(cfg))
	}

	s := &Server{
		holder:   holder,
		answerer: answerer,
		metrics:  metrics,
		models:   opts.Models,
		cfg:      cfg,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(cors(s.cfg.Server.CORSAllowOrigins))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/metrics", s.handleMetrics)

	r.Group(func(r chi.Router) {
		r.Use(s.countRequests)
		r.Use(s.requireReady)
		r.Use(apiKey(s.cfg.Server.APIKey))
		r.Post("/answer", s.handleAnswer)
		r.Post("/retrieve", s.handleRetrieve)
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http_listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("http_shutdown")
		return srv.Shutdown(shutdownCtx)
	}
}
