// Package server is the HTTP face of the application: the gin engine,
// the session cookie middleware, the JSON API the page talks to, and
// the embedded page itself.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tablechat/tablechat/internal/agent"
	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/config"
	"github.com/tablechat/tablechat/internal/dataset"
	"github.com/tablechat/tablechat/internal/session"
)

// Asker dispatches one question, with the full conversation history
// and the loaded dataset, to the external analysis agent. Satisfied by
// *agent.Client; tests substitute a scripted double.
type Asker interface {
	Ask(ctx context.Context, question string, history []chat.Turn, ds *dataset.Dataset) (*agent.Result, error)
}

// Server wires config, sessions, and the agent client behind the HTTP
// API.
type Server struct {
	cfg    *config.Settings
	log    *zap.Logger
	store  *session.Store
	agent  Asker
	engine *gin.Engine
}

// New assembles the engine with its middleware chain and routes. The
// caller picks the gin mode before constructing.
func New(cfg *config.Settings, log *zap.Logger, store *session.Store, asker Asker) *Server {
	s := &Server{
		cfg:   cfg,
		log:   log,
		store: store,
		agent: asker,
	}
	engine := gin.New()
	engine.Use(requestLogger(log), gin.Recovery(), cors())
	s.engine = engine
	s.registerRoutes()
	return s
}

// Handler exposes the engine for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("listening",
		zap.String("addr", s.cfg.ListenAddr),
		zap.String("url", "http://"+s.cfg.ListenAddr))

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}
