package dto

import (
	"github.com/golang-jwt/jwt/v5"
)

// NonceRequest asks for a login challenge
type NonceRequest struct {
	Address string `json:"address" binding:"required"`
}

// NonceResponse login challenge; the caller signs Message with EIP-191 personal_sign
type NonceResponse struct {
	Success   bool   `json:"success"`
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	ExpiresAt int64  `json:"expires_at"`
}

// AuthRequest login with a signed challenge
type AuthRequest struct {
	Address   string `json:"address" binding:"required"`
	Nonce     string `json:"nonce" binding:"required"`
	Signature string `json:"signature" binding:"required"` // 65-byte hex, v in {0,1,27,28}
}

// AuthResponse response
type AuthResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Address   string `json:"address,omitempty"`
	Message   string `json:"message,omitempty"`
}

// JWTClaims caller identity carried by bridge tokens
type JWTClaims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}
