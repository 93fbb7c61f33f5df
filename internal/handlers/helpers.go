package handlers

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"go-bridge/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CallerKey gin context key holding the authenticated caller address
const CallerKey = "caller_address"

// Caller authenticated caller set by the auth middleware
func Caller(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(CallerKey)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}

// StatusForError HTTP status of a bridge error
func StatusForError(err error) int {
	switch {
	case errors.Is(err, types.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, types.ErrAlreadyProcessed), errors.Is(err, types.ErrAssetTransferFailed):
		return http.StatusConflict
	case errors.Is(err, types.ErrValidationFailed),
		errors.Is(err, types.ErrUnsupportedMessageType),
		errors.Is(err, types.ErrDecodeError):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrUnknownChain),
		errors.Is(err, types.ErrInvalidTarget),
		errors.Is(err, types.ErrInvalidRecipient):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrBridgePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrRelayUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, types.ErrRelayTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError unified error response
func respondWithError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   code,
		"message": message,
	})
}

// respondWithBridgeError maps err to its status and stable code
func respondWithBridgeError(c *gin.Context, logger *logrus.Logger, operation string, err error) {
	status := StatusForError(err)
	code := types.ErrorCode(err)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		code = "NOT_FOUND"
	}
	entry := logger.WithFields(logrus.Fields{
		"operation": operation,
		"code":      code,
		"path":      c.Request.URL.Path,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("❌ Request failed")
	} else {
		entry.Debug("request rejected")
	}
	message := err.Error()
	if code == "INTERNAL_ERROR" {
		message = "internal error"
	}
	respondWithError(c, status, code, message)
}

// bindJSON binds the body or writes a 400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return false
	}
	return true
}

func parseUint256(field, value string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(value, 10)
	if !ok || n.Sign() < 0 || n.BitLen() > 256 {
		return nil, fmt.Errorf("%s must be an unsigned 256-bit decimal, got %q", field, value)
	}
	return n, nil
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

func parseHexBytes(field, value string) ([]byte, error) {
	b, err := hexutil.Decode(ensure0x(value))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return b, nil
}

// requireCaller aborts with 401 when no caller was authenticated
func requireCaller(c *gin.Context) (common.Address, bool) {
	caller, ok := Caller(c)
	if !ok {
		respondWithError(c, http.StatusUnauthorized, "MISSING_AUTH", "authentication required")
	}
	return caller, ok
}
