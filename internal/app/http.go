package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/exportd/internal/platform/logger"
)

// httpServer wraps the stdlib server so Close can drain in-flight requests
// instead of cutting connections on shutdown.
type httpServer struct {
	srv *http.Server
	log *logger.Logger
}

func newHTTPServer(addr string, router *gin.Engine, log *logger.Logger) *httpServer {
	return &httpServer{
		srv: &http.Server{Addr: addr, Handler: router},
		log: log.With("component", "app.httpServer"),
	}
}

// Run blocks serving HTTP until the server is shut down. It returns nil on
// a clean shutdown, any other error otherwise.
func (s *httpServer) Run() error {
	s.log.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *httpServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
