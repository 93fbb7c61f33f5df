package handlers

import (
	"context"
	"errors"
	"net/http"

	"go-bridge/internal/dto"
	"go-bridge/internal/services"
	"go-bridge/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BridgeHandler caller-facing bridge operations
type BridgeHandler struct {
	bridge *services.BridgeService
	logger *logrus.Logger
}

// NewBridgeHandler create
func NewBridgeHandler(bridge *services.BridgeService, logger *logrus.Logger) *BridgeHandler {
	return &BridgeHandler{bridge: bridge, logger: logger}
}

// LockTokensHandler POST /api/bridge/tokens/lock
func (h *BridgeHandler) LockTokensHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.LockTokensRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, err := parseUint256("amount", req.Amount)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	recipient, ok := parseRecipient(c, req.Recipient)
	if !ok {
		return
	}

	result, err := h.bridge.LockTokens(c.Request.Context(), caller, amount, req.TargetChain, recipient)
	if err != nil {
		respondWithBridgeError(c, h.logger, "lock_tokens", err)
		return
	}
	c.JSON(http.StatusOK, dto.LockResponse{
		Success:    true,
		TransferID: result.TransferID,
		Sequence:   result.Sequence,
		Nonce:      result.Nonce,
	})
}

// LockNFTHandler POST /api/bridge/nfts/lock
func (h *BridgeHandler) LockNFTHandler(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.LockNFTRequest
	if !bindJSON(c, &req) {
		return
	}
	tokenID, err := parseUint256("token_id", req.TokenID)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	recipient, ok := parseRecipient(c, req.Recipient)
	if !ok {
		return
	}

	result, err := h.bridge.LockNFT(c.Request.Context(), caller, tokenID, req.TargetChain, recipient)
	if err != nil {
		respondWithBridgeError(c, h.logger, "lock_nft", err)
		return
	}
	c.JSON(http.StatusOK, dto.LockResponse{
		Success:    true,
		TransferID: result.TransferID,
		Sequence:   result.Sequence,
		Nonce:      result.Nonce,
	})
}

// parseRecipient rejects malformed recipients. An empty one goes through so the
// bridge reports it after its pause gate.
func parseRecipient(c *gin.Context, raw string) ([]byte, bool) {
	recipient, err := utils.RecipientBytes(raw)
	if errors.Is(err, utils.ErrEmptyRecipient) {
		return nil, true
	}
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_RECIPIENT", err.Error())
		return nil, false
	}
	return recipient, true
}

// ProcessTokenMessageHandler POST /api/bridge/tokens/process
func (h *BridgeHandler) ProcessTokenMessageHandler(c *gin.Context) {
	h.process(c, "process_token_message", h.bridge.ProcessTokenMessage)
}

// ProcessNFTMessageHandler POST /api/bridge/nfts/process
func (h *BridgeHandler) ProcessNFTMessageHandler(c *gin.Context) {
	h.process(c, "process_nft_message", h.bridge.ProcessNFTMessage)
}

type processFunc func(ctx context.Context, caller common.Address, proof []byte) (*services.ProcessResult, error)

func (h *BridgeHandler) process(c *gin.Context, operation string, fn processFunc) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req dto.ProcessMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	proof, err := parseHexBytes("proof", req.Proof)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := fn(c.Request.Context(), caller, proof)
	if err != nil {
		respondWithBridgeError(c, h.logger, operation, err)
		return
	}
	c.JSON(http.StatusOK, dto.ProcessResponse{
		Success:     true,
		TransferID:  result.TransferID,
		Recipient:   result.Recipient.Hex(),
		Asset:       result.Asset.Hex(),
		Amount:      result.AmountOrTokenID.String(),
		SourceChain: result.SourceChain,
		Sequence:    result.Sequence,
		Minted:      result.Minted,
	})
}

// GetTransferHandler GET /api/bridge/transfers/:id
func (h *BridgeHandler) GetTransferHandler(c *gin.Context) {
	record, err := h.bridge.GetTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithBridgeError(c, h.logger, "get_transfer", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "transfer": record})
}

// ListChainsHandler GET /api/bridge/chains
func (h *BridgeHandler) ListChainsHandler(c *gin.Context) {
	chains, err := h.bridge.ListChains(c.Request.Context())
	if err != nil {
		respondWithBridgeError(c, h.logger, "list_chains", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "chains": chains})
}

// StatusHandler GET /api/bridge/status
func (h *BridgeHandler) StatusHandler(c *gin.Context) {
	status, err := h.bridge.Status(c.Request.Context())
	if err != nil {
		respondWithBridgeError(c, h.logger, "status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": status})
}
