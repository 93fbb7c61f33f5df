package router

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go-bridge/internal/config"
	"go-bridge/internal/handlers"
	"go-bridge/internal/middleware"
	"go-bridge/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	allowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	allowHeaders = "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept, " + middleware.TOTPHeader
)

// Dependencies everything the HTTP surface serves
type Dependencies struct {
	Config *config.Config
	DB     *gorm.DB
	Bridge *services.BridgeService
	Push   *services.WebSocketPushService
	Logger *logrus.Logger
}

// corsMiddleware CORS middleware. An empty origin list or "*" allows every origin.
func corsMiddleware(cfg config.CORSConfig, logger *logrus.Logger) gin.HandlerFunc {
	allowAll := len(cfg.AllowedOrigins) == 0
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	maxAge := 3600
	if cfg.MaxAge > 0 {
		maxAge = cfg.MaxAge
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		case origin != "":
			logger.WithFields(logrus.Fields{
				"request_origin": origin,
				"path":           c.Request.URL.Path,
				"method":         c.Request.Method,
			}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
		}

		c.Header("Access-Control-Allow-Methods", allowMethods)
		c.Header("Access-Control-Allow-Headers", allowHeaders)
		if cfg.AllowCredentials && !allowAll {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type")
		c.Next()
	}
}

// requestLogger access log through logrus
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		}).Debug("🌐 HTTP request")
	}
}

// SetupRouter builds the gin engine
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg, logger := deps.Config, deps.Logger

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger), corsMiddleware(cfg.CORS, logger))

	if len(cfg.Admin.AllowedIPs) > 0 {
		logger.WithFields(logrus.Fields{
			"allowed_ips": cfg.Admin.AllowedIPs,
			"count":       len(cfg.Admin.AllowedIPs),
		}).Info("Metrics IP whitelist configured")
	}
	localhostOnly := middleware.NewLocalhostOnly(logger, cfg.Admin.AllowedIPs)
	auth := middleware.NewAuthMiddleware([]byte(cfg.Auth.JWTSecret), logger)
	adminAuth := middleware.NewAdminAuthMiddleware(cfg.Auth.AdminTOTPSecret, logger)

	health := handlers.NewHealthHandler(deps.DB)
	authHandler := handlers.NewAuthHandler([]byte(cfg.Auth.JWTSecret), cfg.TokenTTL(), logger)
	bridgeHandler := handlers.NewBridgeHandler(deps.Bridge, logger)
	adminHandler := handlers.NewAdminHandler(deps.Bridge, logger)

	// ============ Check ============
	r.GET("/ping", handlers.PingHandler)
	r.GET("/health", health.HealthCheckHandler)

	// ============ Prometheus Metrics ============
	r.GET("/metrics", localhostOnly.Restrict(), gin.WrapH(promhttp.Handler()))

	// ============ Auth ============
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/nonce", authHandler.GenerateNonceHandler)
		authGroup.POST("/login", authHandler.AuthenticateHandler)
	}

	// ============ Bridge ============
	bridge := r.Group("/api/bridge", auth.RequireAuth())
	{
		bridge.POST("/tokens/lock", bridgeHandler.LockTokensHandler)
		bridge.POST("/nfts/lock", bridgeHandler.LockNFTHandler)
		bridge.POST("/tokens/process", bridgeHandler.ProcessTokenMessageHandler)
		bridge.POST("/nfts/process", bridgeHandler.ProcessNFTMessageHandler)
		bridge.GET("/transfers/:id", bridgeHandler.GetTransferHandler)
		bridge.GET("/chains", bridgeHandler.ListChainsHandler)
		bridge.GET("/status", bridgeHandler.StatusHandler)
	}

	// ============ Admin ============
	admin := r.Group("/api/admin", auth.RequireAuth(), adminAuth.RequireTOTP())
	{
		admin.PUT("/contracts", adminHandler.SetContractsHandler)
		admin.PUT("/chains/:local_id", adminHandler.SetChainMappingHandler)
		admin.PUT("/chains/:local_id/emitter", adminHandler.SetChainEmitterHandler)
		admin.PUT("/consistency-level", adminHandler.SetConsistencyLevelHandler)
		admin.POST("/pause", adminHandler.PauseHandler)
		admin.POST("/unpause", adminHandler.UnpauseHandler)
		admin.POST("/emergency-withdraw", adminHandler.EmergencyWithdrawHandler)
		admin.POST("/emergency-withdraw-nft", adminHandler.EmergencyWithdrawNFTHandler)
		admin.POST("/roles", adminHandler.GrantRoleHandler)
		admin.DELETE("/roles", adminHandler.RevokeRoleHandler)
		admin.GET("/events", adminHandler.ListEventsHandler)
	}

	// ============ WebSocket ============
	if deps.Push != nil {
		ws := handlers.NewWebSocketHandler(deps.Push)
		r.GET("/ws/events", auth.RequireAuth(), ws.HandleEvents)
		r.GET("/ws/stats", localhostOnly.Restrict(), ws.GetStats)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "NOT_FOUND",
			"message": "API endpoint not found",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}
