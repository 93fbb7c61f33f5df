package middleware

import (
	"net/http"
	"strings"

	"go-bridge/internal/handlers"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthMiddleware JWT caller identity
type AuthMiddleware struct {
	secret []byte
	logger *logrus.Logger
}

// NewAuthMiddleware create
func NewAuthMiddleware(secret []byte, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret: secret,
		logger: logger,
	}
}

func (a *AuthMiddleware) reject(c *gin.Context, code, message string) {
	a.logger.WithFields(logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
		"code":   code,
	}).Warn("JWT authentication failed")

	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   code,
		"message": message,
	})
	c.Abort()
}

// tokenFrom reads the bearer token, falling back to ?token= for websocket upgrades
func tokenFrom(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, ""
		}
		return "", "MISSING_AUTH_HEADER"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "INVALID_AUTH_FORMAT"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "EMPTY_TOKEN"
	}
	return token, ""
}

// RequireAuth sets the caller address or aborts with 401
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, code := tokenFrom(c)
		switch code {
		case "MISSING_AUTH_HEADER":
			a.reject(c, code, "Missing Authorization header. Please provide a valid JWT token.")
			return
		case "INVALID_AUTH_FORMAT":
			a.reject(c, code, "Authorization header must be in format: Bearer <token>")
			return
		case "EMPTY_TOKEN":
			a.reject(c, code, "Token cannot be empty")
			return
		}

		claims, err := handlers.ValidateJWTToken(a.secret, tokenString)
		if err != nil {
			a.reject(c, "INVALID_TOKEN", err.Error())
			return
		}

		caller := common.HexToAddress(claims.Address)
		c.Set(handlers.CallerKey, caller)

		a.logger.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"caller": caller.Hex(),
		}).Debug("JWT success")

		c.Next()
	}
}

// OptionalAuth sets the caller when a valid token is present
func (a *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, code := tokenFrom(c)
		if code != "" {
			c.Next()
			return
		}
		claims, err := handlers.ValidateJWTToken(a.secret, tokenString)
		if err != nil {
			a.logger.WithField("path", c.Request.URL.Path).WithError(err).Debug("ignoring invalid token")
			c.Next()
			return
		}
		c.Set(handlers.CallerKey, common.HexToAddress(claims.Address))
		c.Next()
	}
}
