package handlers

import (
	"context"
	"net/http"
	"time"

	"go-bridge/internal/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler liveness plus a database ping
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler create
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthCheckHandler GET /health
func (h *HealthHandler) HealthCheckHandler(c *gin.Context) {
	database := "ok"
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		database = "unreachable"
		status = http.StatusServiceUnavailable
		metrics.DBConnectionStatus.Set(0)
	} else {
		metrics.DBConnectionStatus.Set(1)
		metrics.DBConnectionOpen.Set(float64(sqlDB.Stats().OpenConnections))
	}

	c.JSON(status, gin.H{
		"status":   http.StatusText(status),
		"service":  "go-bridge",
		"database": database,
	})
}

// PingHandler GET /ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
