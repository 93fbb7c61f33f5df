package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go-bridge/internal/dto"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	jwtIssuer = "go-bridge"
	nonceTTL  = 5 * time.Minute
)

type pendingNonce struct {
	address   common.Address
	message   string
	expiresAt time.Time
}

// NonceStore single-use login challenges
type NonceStore struct {
	mu      sync.Mutex
	pending map[string]pendingNonce
	now     func() time.Time
}

// NewNonceStore create
func NewNonceStore() *NonceStore {
	return &NonceStore{pending: make(map[string]pendingNonce), now: time.Now}
}

// Issue creates a challenge for address
func (s *NonceStore) Issue(address common.Address) (nonce, message string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, p := range s.pending {
		if now.After(p.expiresAt) {
			delete(s.pending, k)
		}
	}
	nonce = uuid.NewString()
	expiresAt = now.Add(nonceTTL)
	message = LoginMessage(address, nonce, expiresAt)
	s.pending[nonce] = pendingNonce{address: address, message: message, expiresAt: expiresAt}
	return nonce, message, expiresAt
}

// Consume returns the challenge message for nonce and forgets it
func (s *NonceStore) Consume(address common.Address, nonce string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[nonce]
	if !ok {
		return "", false
	}
	delete(s.pending, nonce)
	if p.address != address || s.now().After(p.expiresAt) {
		return "", false
	}
	return p.message, true
}

// LoginMessage text the caller signs with personal_sign
func LoginMessage(address common.Address, nonce string, expiresAt time.Time) string {
	return fmt.Sprintf("Sign in to go-bridge\nAddress: %s\nNonce: %s\nExpires: %s",
		address.Hex(), nonce, expiresAt.UTC().Format(time.RFC3339))
}

// RecoverSigner EIP-191 signer of message
func RecoverSigner(message string, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// GenerateJWTToken signs a caller token for address
func GenerateJWTToken(secret []byte, address common.Address, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := dto.JWTClaims{
		Address: address.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address.Hex(),
			Issuer:    jwtIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateJWTToken parses and verifies a caller token
func ValidateJWTToken(secret []byte, tokenString string) (*dto.JWTClaims, error) {
	claims := &dto.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(jwtIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if !common.IsHexAddress(claims.Address) {
		return nil, fmt.Errorf("token address %q is not an address", claims.Address)
	}
	return claims, nil
}

// AuthHandler signature login
type AuthHandler struct {
	secret []byte
	ttl    time.Duration
	nonces *NonceStore
	logger *logrus.Logger
}

// NewAuthHandler create
func NewAuthHandler(secret []byte, ttl time.Duration, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{secret: secret, ttl: ttl, nonces: NewNonceStore(), logger: logger}
}

// GenerateNonceHandler POST /api/auth/nonce
func (h *AuthHandler) GenerateNonceHandler(c *gin.Context) {
	var req dto.NonceRequest
	if !bindJSON(c, &req) {
		return
	}
	address, err := parseAddress("address", req.Address)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return
	}
	nonce, message, expiresAt := h.nonces.Issue(address)
	c.JSON(http.StatusOK, dto.NonceResponse{
		Success:   true,
		Nonce:     nonce,
		Message:   message,
		ExpiresAt: expiresAt.Unix(),
	})
}

// AuthenticateHandler POST /api/auth/login
func (h *AuthHandler) AuthenticateHandler(c *gin.Context) {
	var req dto.AuthRequest
	if !bindJSON(c, &req) {
		return
	}
	address, err := parseAddress("address", req.Address)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return
	}
	signature, err := hexutil.Decode(ensure0x(req.Signature))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "INVALID_SIGNATURE", err.Error())
		return
	}

	message, ok := h.nonces.Consume(address, req.Nonce)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.AuthResponse{Success: false, Message: "unknown or expired nonce"})
		return
	}
	signer, err := RecoverSigner(message, signature)
	if err != nil || signer != address {
		h.logger.WithFields(logrus.Fields{
			"address": address.Hex(),
			"signer":  signer.Hex(),
		}).Warn("🔐 Login signature mismatch")
		c.JSON(http.StatusUnauthorized, dto.AuthResponse{Success: false, Message: "signature verification failed"})
		return
	}

	token, expiresAt, err := GenerateJWTToken(h.secret, address, h.ttl)
	if err != nil {
		h.logger.WithError(err).Error("❌ JWT generation failed")
		c.JSON(http.StatusInternalServerError, dto.AuthResponse{Success: false, Message: "token generation failed"})
		return
	}
	h.logger.WithField("address", address.Hex()).Info("🔐 Caller authenticated")
	c.JSON(http.StatusOK, dto.AuthResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
		Address:   address.Hex(),
	})
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
