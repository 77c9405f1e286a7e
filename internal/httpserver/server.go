package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server 包装 http.Server，支持优雅关闭
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(port string, router *Router, logger *zap.Logger) *Server {
	if port != "" && port[0] != ':' {
		port = ":" + port
	}
	return &Server{
		srv: &http.Server{
			Addr:              port,
			Handler:           router.Engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run 阻塞直到 ctx 取消，然后在 timeout 内关闭
func (s *Server) Run(ctx context.Context, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	return s.srv.Shutdown(shutdownCtx)
}
