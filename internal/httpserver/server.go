// Package httpserver exposes the observatory over HTTP: account and session
// endpoints, the booking surface, and the administrative API.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/observatory/pkg/booking"
	"github.com/MarkoPoloResearchLab/observatory/pkg/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownGrace = 5 * time.Second

// Config holds the HTTP surface settings.
type Config struct {
	ListenAddr        string
	AllowedOrigins    []string
	SessionSigningKey []byte
	SessionTTL        time.Duration
	SessionCookieName string
	SecureCookies     bool
}

// WeatherRefresher triggers a forecast refresh across upcoming slots. The
// admin API calls it after configuration changes and on demand.
type WeatherRefresher interface {
	RefreshAll(ctx context.Context) (updated int, failed int, err error)
}

// Server is the assembled HTTP surface.
type Server struct {
	cfg       Config
	logger    *zap.Logger
	service   *booking.Service
	refresher WeatherRefresher
	limiter   *ratelimit.Limiter
	sessions  *sessionManager
	metrics   *metricsRecorder
	router    *gin.Engine
}

// New assembles the router around the booking service.
func New(cfg Config, logger *zap.Logger, service *booking.Service, refresher WeatherRefresher, limiter *ratelimit.Limiter) (*Server, error) {
	sessions, err := newSessionManager(cfg.SessionSigningKey, cfg.SessionTTL, cfg.SessionCookieName, cfg.SecureCookies)
	if err != nil {
		return nil, err
	}
	server := &Server{
		cfg:       cfg,
		logger:    logger,
		service:   service,
		refresher: refresher,
		limiter:   limiter,
		sessions:  sessions,
		metrics:   newMetricsRecorder(),
	}
	server.router = server.setupRouter()
	return server, nil
}

// Handler returns the underlying router, used directly by tests.
func (server *Server) Handler() http.Handler {
	return server.router
}

var errNoRefresher = errors.New("httpserver: weather refresher not configured")

// RefreshWeather re-rates upcoming events and records per-slot outcome
// counters. The admin endpoint, configuration updates, and the background
// schedule all funnel through here so the counters stay whole.
func (server *Server) RefreshWeather(ctx context.Context) (int, int, error) {
	if server.refresher == nil {
		return 0, 0, errNoRefresher
	}
	updated, failed, err := server.refresher.RefreshAll(ctx)
	if err != nil {
		return 0, 0, err
	}
	server.metrics.recordWeatherRefresh(updated, failed)
	return updated, failed, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.router,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("observatory listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(server.metrics.middleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", server.metrics.handler())

	api := router.Group("/api")
	api.POST("/register", server.handleRegister)
	api.POST("/login", server.handleLogin)

	authed := api.Group("")
	authed.Use(server.requireSession())
	authed.Use(server.rateLimit())

	authed.POST("/logout", server.handleLogout)
	authed.GET("/session", server.handleSession)
	authed.POST("/password", server.handleChangePassword)

	authed.GET("/events", server.handleListEvents)
	authed.POST("/events/:slot_id/book", server.handleBook)
	authed.DELETE("/events/:slot_id/book", server.handleCancel)

	admin := authed.Group("/admin")
	admin.Use(server.requireRole(booking.RoleAdmin))

	admin.POST("/events", server.handleConfirmEvent)
	admin.PUT("/events/:slot_id", server.handleConfirmEvent)
	admin.DELETE("/events/:slot_id", server.handleDeleteEvent)
	admin.GET("/users", server.handleListAccounts)
	admin.POST("/users/:account_id/role", server.handleSetRole)
	admin.POST("/users/:account_id/blocked", server.handleSetBlocked)
	admin.DELETE("/users/:account_id", server.handleDeleteAccount)
	admin.GET("/configuration", server.handleGetConfiguration)
	admin.PUT("/configuration", server.handleUpdateConfiguration)
	admin.POST("/weather/refresh", server.handleRefreshWeather)

	return router
}

// rateLimit throttles authenticated traffic per account identity.
func (server *Server) rateLimit() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		session := currentSession(ctx)
		if session == nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		if !server.limiter.Allow(session.AccountID) {
			server.metrics.rateLimited.Inc()
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse("rate_limited", "too many requests"))
			return
		}
		ctx.Next()
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
