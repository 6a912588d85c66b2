package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/MorpheusAIs/ponder-builders-index/internal/logger"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/api/docs"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/MorpheusAIs/ponder-builders-index/pkg/indexer"
)

var _ = docs.SwaggerInfo

const shutdownCtxTimeout = 10 * time.Second

// Server represents the API HTTP server.
type Server struct {
	config  *config.APIConfig
	handler *Handler
	server  *http.Server
	log     *logger.Logger
}

// NewServer creates the API server. The ingestion endpoints are registered
// only when cfg.Ingestion is set and sink is not nil.
func NewServer(cfg *config.APIConfig, chains []config.ChainConfig, s Store, status indexer.StatusProvider,
	sink indexer.EventSink, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}
	handler := NewHandler(chains, s, status, sink, log)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      newRouter(cfg, handler, log),
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  cfg.IdleTimeout.Duration,
	}

	return &Server{
		config:  cfg,
		handler: handler,
		server:  httpServer,
		log:     log,
	}
}

func newRouter(cfg *config.APIConfig, handler *Handler, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.Health)
	mux.HandleFunc("GET /ready", handler.Ready)

	mux.HandleFunc("GET /api/v1/stats", handler.GetStats)
	mux.HandleFunc("GET /api/v1/chains", handler.ListChains)
	mux.HandleFunc("GET /api/v1/pools", handler.ListPools)
	mux.HandleFunc("GET /api/v1/pools/{id}", handler.GetPool)
	mux.HandleFunc("GET /api/v1/pools/{id}/users", handler.ListPoolUsers)
	mux.HandleFunc("GET /api/v1/users", handler.ListUsers)
	mux.HandleFunc("GET /api/v1/users/{id}/interactions", handler.ListUserInteractions)
	mux.HandleFunc("GET /api/v1/interactions", handler.ListInteractions)
	mux.HandleFunc("GET /api/v1/referrals", handler.ListReferrals)
	mux.HandleFunc("GET /api/v1/referrers", handler.ListReferrers)
	mux.HandleFunc("GET /api/v1/transfers", handler.ListTransfers)
	mux.HandleFunc("GET /api/v1/admin-events", handler.ListAdminEvents)
	mux.HandleFunc("GET /api/v1/rewards", handler.ListRewards)

	if cfg.Ingestion && handler.sink != nil {
		mux.HandleFunc("POST /api/v1/events", handler.PostEvent)
		mux.HandleFunc("POST /api/v1/chains/{chainId}/rollback", handler.PostRollback)
	}

	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
	))

	var h http.Handler = mux
	h = RecoveryMiddleware(log)(h)
	h = LoggingMiddleware(log)(h)

	if cfg.CORS.Enabled {
		h = CORSMiddleware(cfg.CORS.AllowedOrigins)(h)
	}
	return h
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API server is disabled")
		return nil
	}

	s.log.Infow("starting API server", "address", s.config.ListenAddress, "ingestion", s.config.Ingestion)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownCtxTimeout)
	defer cancel()

	s.log.Info("shutting down API server")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown error: %w", err)
	}

	s.log.Info("API server stopped")
	return nil
}
