package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KadevalArpit/prelax-email-api/pkg/config"
	"github.com/KadevalArpit/prelax-email-api/pkg/metrics"
	"github.com/KadevalArpit/prelax-email-api/pkg/ratelimit"
	"github.com/KadevalArpit/prelax-email-api/pkg/version"
)

type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

type Server struct {
	gin    *gin.Engine
	config config.Config
}

func NewServer(log *zap.Logger, cfg config.Config, debug bool, limiter *ratelimit.IPRateLimiter) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
	)

	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Sugar().Warnw("Invalid trusted proxy configuration", "error", err)
	}

	if limiter != nil {
		// Scrape and probe traffic arrives on a fixed interval and must not
		// consume API budget.
		engine.Use(limiter.MiddlewareWithExclusions([]string{"/metrics", "/healthz"}))
	}

	if debug {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins: []string{"http://localhost:5173", "127.0.0.1:8080"},
				AllowMethods: []string{"GET", "POST", "OPTIONS"},
				AllowHeaders: []string{"Origin", "Authorization", "Content-Type"},
				MaxAge:       12 * time.Hour,
			}),
		)
	}

	s := &Server{
		gin:    engine,
		config: cfg,
	}

	engine.GET("/healthz", s.getHealth)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))
	engine.GET("api/version", s.getVersion)

	return s
}

func (s *Server) RegisterAll(controllers []APIController) error {
	r := s.gin.Group("api")
	for _, c := range controllers {
		if err := c.Register(r.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) Listen() {
	if s.config.Server.TLSCertFile != "" && s.config.Server.TLSKeyFile != "" {
		// Never fall back to plain HTTP when TLS was configured.
		_ = s.gin.RunTLS(s.config.Server.ListenAddress, s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
		return
	}
	_ = s.gin.Run(s.config.Server.ListenAddress)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.gin
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetBuildInfo())
}
