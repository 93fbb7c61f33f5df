package handlers

import (
	"net/http"
	"strings"

	"go-bridge/internal/services"

	"github.com/gin-gonic/gin"
)

var knownEventTypes = map[services.EventType]bool{
	services.EventLocked:                  true,
	services.EventPublished:               true,
	services.EventReleased:                true,
	services.EventChainMappingUpdated:     true,
	services.EventChainEmitterUpdated:     true,
	services.EventContractsUpdated:        true,
	services.EventPauseToggled:            true,
	services.EventConsistencyLevelUpdated: true,
	services.EventEmergencyWithdrawal:     true,
	services.EventRoleUpdated:             true,
}

// WebSocketHandler streams committed bridge events
type WebSocketHandler struct {
	pushService *services.WebSocketPushService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(pushService *services.WebSocketPushService) *WebSocketHandler {
	return &WebSocketHandler{pushService: pushService}
}

// ParseEventTypes splits a comma separated filter; empty means every type
func ParseEventTypes(raw string) ([]services.EventType, bool) {
	var out []services.EventType
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t := services.EventType(part)
		if !knownEventTypes[t] {
			return nil, false
		}
		out = append(out, t)
	}
	return out, true
}

// HandleEvents GET /ws/events?types=Locked,Released
func (h *WebSocketHandler) HandleEvents(c *gin.Context) {
	types, ok := ParseEventTypes(c.Query("types"))
	if !ok {
		respondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "unknown event type in types")
		return
	}
	h.pushService.HandleWebSocket(c.Writer, c.Request, types)
}

// GetStats GET /ws/stats
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_connections": h.pushService.GetActiveConnections(),
	})
}
