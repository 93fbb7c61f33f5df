package types

import "errors"

// Bridge error taxonomy. Lower layers wrap these with context; callers match with errors.Is.
var (
	ErrValidationFailed       = errors.New("validation failed")
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrUnknownChain           = errors.New("unknown chain")
	ErrAssetTransferFailed    = errors.New("asset transfer failed")
	ErrAlreadyProcessed       = errors.New("message already processed")
	ErrNotAuthorized          = errors.New("not authorized")
	ErrBridgePaused           = errors.New("bridge paused")
	ErrInvalidRecipient       = errors.New("invalid recipient")
	ErrInvalidTarget          = errors.New("invalid target chain")
	ErrRelayUnavailable       = errors.New("relay unavailable")
	ErrRelayTimeout           = errors.New("relay timeout")
	ErrDecodeError            = errors.New("payload decode error")
)

// ErrorCode returns the stable API code for a bridge error, or "INTERNAL_ERROR".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidationFailed):
		return "VALIDATION_FAILED"
	case errors.Is(err, ErrUnsupportedMessageType):
		return "UNSUPPORTED_MESSAGE_TYPE"
	case errors.Is(err, ErrUnknownChain):
		return "UNKNOWN_CHAIN"
	case errors.Is(err, ErrAssetTransferFailed):
		return "ASSET_TRANSFER_FAILED"
	case errors.Is(err, ErrAlreadyProcessed):
		return "ALREADY_PROCESSED"
	case errors.Is(err, ErrNotAuthorized):
		return "NOT_AUTHORIZED"
	case errors.Is(err, ErrBridgePaused):
		return "BRIDGE_PAUSED"
	case errors.Is(err, ErrInvalidRecipient):
		return "INVALID_RECIPIENT"
	case errors.Is(err, ErrInvalidTarget):
		return "INVALID_TARGET"
	case errors.Is(err, ErrRelayUnavailable):
		return "RELAY_UNAVAILABLE"
	case errors.Is(err, ErrRelayTimeout):
		return "RELAY_TIMEOUT"
	case errors.Is(err, ErrDecodeError):
		return "DECODE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
