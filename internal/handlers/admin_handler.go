package handlers

import (
	"net/http"
	"strconv"

	"go-bridge/internal/dto"
	"go-bridge/internal/models"
	"go-bridge/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	defaultEventPage = 100
	maxEventPage     = 500
)

// AdminHandler administrative bridge operations. The bridge checks the Admin role itself.
type AdminHandler struct {
	bridge *services.BridgeService
	logger *logrus.Logger
}

// NewAdminHandler create
func NewAdminHandler(bridge *services.BridgeService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{bridge: bridge, logger: logger}
}

func (h *AdminHandler) done(c *gin.Context, operation string, err error) {
	if err != nil {
		respondWithBridgeError(c, h.logger, operation, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetContractsHandler PUT /api/admin/contracts
func (h *AdminHandler) SetContractsHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.SetContractsRequest
	if !bindJSON(c, &req) {
		return
	}
	err := h.bridge.SetContracts(c.Request.Context(), caller, services.Contracts{
		Token: req.Token,
		NFT:   req.NFT,
		Relay: req.Relay,
	})
	h.done(c, "set_contracts", err)
}

func localChainParam(c *gin.Context) (uint32, bool) {
	id, err := strconv.ParseUint(c.Param("local_id"), 10, 32)
	if err != nil || id == 0 {
		respondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "local_id must be a positive 32-bit integer")
		return 0, false
	}
	return uint32(id), true
}

// SetChainMappingHandler PUT /api/admin/chains/:local_id
func (h *AdminHandler) SetChainMappingHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	localID, ok := localChainParam(c)
	if !ok {
		return
	}
	var req dto.SetChainMappingRequest
	if !bindJSON(c, &req) {
		return
	}
	h.done(c, "set_chain_mapping", h.bridge.SetChainMapping(c.Request.Context(), caller, localID, req.ExternalChainID))
}

// SetChainEmitterHandler PUT /api/admin/chains/:local_id/emitter
func (h *AdminHandler) SetChainEmitterHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	localID, ok := localChainParam(c)
	if !ok {
		return
	}
	var req dto.SetChainEmitterRequest
	if !bindJSON(c, &req) {
		return
	}
	h.done(c, "set_chain_emitter", h.bridge.SetChainEmitter(c.Request.Context(), caller, localID, req.Emitter))
}

// SetConsistencyLevelHandler PUT /api/admin/consistency-level
func (h *AdminHandler) SetConsistencyLevelHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.SetConsistencyLevelRequest
	if !bindJSON(c, &req) {
		return
	}
	h.done(c, "set_consistency_level", h.bridge.SetConsistencyLevel(c.Request.Context(), caller, *req.Level))
}

// PauseHandler POST /api/admin/pause
func (h *AdminHandler) PauseHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	h.done(c, "pause", h.bridge.Pause(c.Request.Context(), caller))
}

// UnpauseHandler POST /api/admin/unpause
func (h *AdminHandler) UnpauseHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	h.done(c, "unpause", h.bridge.Unpause(c.Request.Context(), caller))
}

// EmergencyWithdrawHandler POST /api/admin/emergency-withdraw
func (h *AdminHandler) EmergencyWithdrawHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.EmergencyWithdrawRequest
	if !bindJSON(c, &req) {
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_RECIPIENT", err.Error())
		return
	}
	amount, err := parseUint256("amount", req.Amount)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	h.done(c, "emergency_withdraw", h.bridge.EmergencyWithdraw(c.Request.Context(), caller, asset, to, amount))
}

// EmergencyWithdrawNFTHandler POST /api/admin/emergency-withdraw-nft
func (h *AdminHandler) EmergencyWithdrawNFTHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.EmergencyWithdrawNFTRequest
	if !bindJSON(c, &req) {
		return
	}
	tokenID, err := parseUint256("token_id", req.TokenID)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_RECIPIENT", err.Error())
		return
	}
	h.done(c, "emergency_withdraw_nft", h.bridge.EmergencyWithdrawNFT(c.Request.Context(), caller, tokenID, to))
}

func (h *AdminHandler) bindRole(c *gin.Context) (caller, account common.Address, role string, ok bool) {
	if caller, ok = requireCaller(c); !ok {
		return
	}
	var req dto.RoleRequest
	if ok = bindJSON(c, &req); !ok {
		return
	}
	var err error
	if account, err = parseAddress("account", req.Account); err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return caller, account, "", false
	}
	return caller, account, req.Role, true
}

// GrantRoleHandler POST /api/admin/roles
func (h *AdminHandler) GrantRoleHandler(c *gin.Context) {
	caller, account, role, ok := h.bindRole(c)
	if !ok {
		return
	}
	h.done(c, "grant_role", h.bridge.GrantRole(c.Request.Context(), caller, account, role))
}

// RevokeRoleHandler DELETE /api/admin/roles
func (h *AdminHandler) RevokeRoleHandler(c *gin.Context) {
	caller, account, role, ok := h.bindRole(c)
	if !ok {
		return
	}
	h.done(c, "revoke_role", h.bridge.RevokeRole(c.Request.Context(), caller, account, role))
}

// ListEventsHandler GET /api/admin/events?after_id=&type=&limit=
func (h *AdminHandler) ListEventsHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	isAdmin, err := h.bridge.HasRole(c.Request.Context(), caller, string(models.RoleAdmin))
	if err != nil {
		respondWithBridgeError(c, h.logger, "list_events", err)
		return
	}
	if !isAdmin {
		respondWithError(c, http.StatusForbidden, "NOT_AUTHORIZED", "admin role required")
		return
	}

	afterID, err := strconv.ParseUint(c.DefaultQuery("after_id", "0"), 10, 64)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "after_id must be an unsigned integer")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultEventPage)))
	if err != nil || limit <= 0 {
		respondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
		return
	}
	if limit > maxEventPage {
		limit = maxEventPage
	}

	events, err := h.bridge.ListEvents(c.Request.Context(), afterID, c.Query("type"), limit)
	if err != nil {
		respondWithBridgeError(c, h.logger, "list_events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "events": events, "count": len(events)})
}
