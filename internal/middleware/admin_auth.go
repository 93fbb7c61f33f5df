package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
)

// TOTPHeader carries the admin one-time code
const TOTPHeader = "X-Admin-TOTP"

// AdminAuthMiddleware TOTP second factor on admin routes; the Admin role itself is checked by the bridge
type AdminAuthMiddleware struct {
	secret string
	logger *logrus.Logger
}

// NewAdminAuthMiddleware an empty secret disables the second factor
func NewAdminAuthMiddleware(secret string, logger *logrus.Logger) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		secret: secret,
		logger: logger,
	}
}

// RequireTOTP validates the X-Admin-TOTP header
func (a *AdminAuthMiddleware) RequireTOTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.secret == "" {
			c.Next()
			return
		}

		code := c.GetHeader(TOTPHeader)
		if code == "" || !totp.Validate(code, a.secret) {
			a.logger.WithFields(logrus.Fields{
				"path":      c.Request.URL.Path,
				"method":    c.Request.Method,
				"client_ip": c.ClientIP(),
			}).Warn("Admin auth failed - invalid TOTP code")

			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "INVALID_TOTP",
				"message": "A valid " + TOTPHeader + " code is required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
