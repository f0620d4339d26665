package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/headline-goat/splitgoat/internal/experiment"
	"github.com/headline-goat/splitgoat/internal/store"
)

// Deps are the components a Server exposes over HTTP.
type Deps struct {
	Engine *experiment.Engine
	Ledger *experiment.Ledger
	// Store is the durable mirror; nil when conversions stay in memory.
	Store    store.Store
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	// RateLimit caps /api requests per second per client IP; 0 disables it.
	RateLimit float64
	RateBurst int
}

type Server struct {
	echo      *echo.Echo
	http      *http.Server
	registry  *experiment.Registry
	engine    *experiment.Engine
	ledger    *experiment.Ledger
	store     store.Store
	gatherer  prometheus.Gatherer
	log       *zap.Logger
	rateLimit float64
	rateBurst int
	port      int
	token     string
	tokenFile string
	startTime time.Time
}

func New(deps Deps, port int, tokenFile string) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		registry:  deps.Engine.Registry(),
		engine:    deps.Engine,
		ledger:    deps.Ledger,
		store:     deps.Store,
		gatherer:  gatherer,
		log:       log.With(zap.String("component", "server")),
		rateLimit: deps.RateLimit,
		rateBurst: deps.RateBurst,
		port:      port,
		token:     generateToken(),
		tokenFile: tokenFile,
		startTime: time.Now(),
	}
	srv.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.requestLogger())
	// Preflight requests never match a group route, so CORS runs globally
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper: func(c echo.Context) bool {
			return !strings.HasPrefix(c.Request().URL.Path, "/api/")
		},
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	// Public endpoints
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	s.echo.GET("/sg.js", s.handleClientJS)

	api := s.echo.Group("/api")
	if s.rateLimit > 0 {
		api.Use(s.rateLimiter())
	}
	api.GET("/experiments", s.handleListExperiments)
	api.POST("/experiments", s.handleCreateExperiment)
	api.GET("/experiments/:id", s.handleGetExperiment)
	api.PUT("/experiments/:id/status", s.handleUpdateStatus)
	api.GET("/experiments/:id/variant", s.handleGetVariant)
	api.POST("/experiments/:id/conversions", s.handleTrackConversion)
	api.GET("/experiments/:id/conversions", s.handleListConversions)
	api.GET("/experiments/:id/results", s.handleResults)

	// Dashboard endpoints (protected)
	dash := s.echo.Group("/dashboard", s.authMiddleware)
	dash.GET("", s.handleDashboard)
	dash.GET("/experiments/:id", s.handleDashboardExperiment)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				s.log.Warn("Request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			s.log.Debug("Request", fields...)
			return nil
		},
	})
}

func (s *Server) rateLimiter() echo.MiddlewareFunc {
	burst := s.rateBurst
	if burst <= 0 {
		burst = int(math.Ceil(s.rateLimit))
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(s.rateLimit),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			s.log.Debug("Rate limit exceeded", zap.String("client_ip", identifier))
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests")
		},
	})
}

// Start listens until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.log.Warn("Failed to write token file", zap.String("path", s.tokenFile), zap.Error(err))
		}
	}

	s.log.Info("Server listening", zap.Int("port", s.port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Port() int {
	return s.port
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func generateToken() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
