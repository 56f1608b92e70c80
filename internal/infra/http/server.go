package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/config"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	cfg config.Config
	r   *gin.Engine

	pipeline      *usecase.Pipeline
	signers       *usecase.Signers
	authenticator domain.Authenticator
	health        map[string]HealthCheck
	log           *zap.Logger

	authInitErr error
}

type ServerDeps struct {
	Pipeline      *usecase.Pipeline
	Signers       *usecase.Signers
	Authenticator domain.Authenticator
	Health        map[string]HealthCheck
	Logger        *zap.Logger
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		cfg:           cfg,
		r:             r,
		pipeline:      deps.Pipeline,
		signers:       deps.Signers,
		authenticator: deps.Authenticator,
		health:        deps.Health,
		log:           log,
	}
	if s.authenticator == nil {
		s.authInitErr = errors.New("authenticator is required")
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)

	v1 := s.r.Group("/v1")
	{
		v1.POST("/auth-proofs", s.handleIssueProof)
		v1.GET("/keys/:key_type/address", s.handleKeyAddress)
		v1.POST("/keys/:key_type/signatures", s.handleSignMessage)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeMessage(c, http.StatusNotFound, "route not found")
	})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	if s.authInitErr != nil {
		return s.authInitErr
	}
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
