package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-bridge/internal/config"
	"go-bridge/internal/dto"
	"go-bridge/internal/handlers"
	"go-bridge/internal/middleware"
	"go-bridge/internal/router"
	"go-bridge/internal/services"
	"go-bridge/internal/testkit"
	"go-bridge/internal/types"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "router-test-secret"

type apiEnv struct {
	fixture *testkit.BridgeFixture
	engine  *gin.Engine
	push    *services.WebSocketPushService
}

func newAPI(t *testing.T, mutate ...func(*config.Config)) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fixture := testkit.NewBridge(t)
	cfg := config.Default()
	cfg.Auth.JWTSecret = jwtSecret
	for _, m := range mutate {
		m(cfg)
	}

	push := services.NewWebSocketPushService(fixture.Logger, nil)
	t.Cleanup(push.Stop)
	push.Attach(fixture.Bus)

	engine := router.SetupRouter(router.Dependencies{
		Config: cfg,
		DB:     fixture.DB,
		Bridge: fixture.Bridge,
		Push:   push,
		Logger: fixture.Logger,
	})
	return &apiEnv{fixture: fixture, engine: engine, push: push}
}

func tokenFor(t *testing.T, addr common.Address) string {
	t.Helper()
	token, _, err := handlers.GenerateJWTToken([]byte(jwtSecret), addr, time.Hour)
	require.NoError(t, err)
	return token
}

type call struct {
	method string
	path   string
	body   interface{}
	token  string
	header map[string]string
	remote string
}

func (e *apiEnv) do(t *testing.T, c call) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	if c.remote != "" {
		req.RemoteAddr = c.remote
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestSignatureLogin(t *testing.T) {
	env := newAPI(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	w, body := env.do(t, call{method: http.MethodPost, path: "/api/auth/nonce", body: dto.NonceRequest{Address: address.Hex()}})
	require.Equal(t, http.StatusOK, w.Code)
	nonce := body["nonce"].(string)
	message := body["message"].(string)
	assert.Contains(t, message, nonce)

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	login := dto.AuthRequest{Address: address.Hex(), Nonce: nonce, Signature: hexutil.Encode(sig)}
	w, body = env.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: login})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := body["token"].(string)

	claims, err := handlers.ValidateJWTToken([]byte(jwtSecret), token)
	require.NoError(t, err)
	assert.Equal(t, address.Hex(), claims.Address)

	w, _ = env.do(t, call{method: http.MethodGet, path: "/api/bridge/status", token: token})
	assert.Equal(t, http.StatusOK, w.Code)

	// nonces are single use
	w, _ = env.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: login})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRejectsWrongSigner(t *testing.T) {
	env := newAPI(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, body := env.do(t, call{method: http.MethodPost, path: "/api/auth/nonce", body: dto.NonceRequest{Address: testkit.Alice.Hex()}})
	sig, err := crypto.Sign(accounts.TextHash([]byte(body["message"].(string))), key)
	require.NoError(t, err)

	w, _ := env.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: dto.AuthRequest{
		Address:   testkit.Alice.Hex(),
		Nonce:     body["nonce"].(string),
		Signature: hexutil.Encode(sig),
	}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBridgeRoutesRequireToken(t *testing.T) {
	env := newAPI(t)

	w, body := env.do(t, call{method: http.MethodGet, path: "/api/bridge/status"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "MISSING_AUTH_HEADER", body["error"])

	w, body = env.do(t, call{method: http.MethodGet, path: "/api/bridge/status", token: "not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", body["error"])

	other, _, err := handlers.GenerateJWTToken([]byte("another-secret"), testkit.Alice, time.Hour)
	require.NoError(t, err)
	w, _ = env.do(t, call{method: http.MethodGet, path: "/api/bridge/status", token: other})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLockAndProcessOverHTTP(t *testing.T) {
	env := newAPI(t)
	env.fixture.Fund(t, testkit.Alice, 500)

	w, body := env.do(t, call{
		method: http.MethodPost,
		path:   "/api/bridge/tokens/lock",
		token:  tokenFor(t, testkit.Alice),
		body:   dto.LockTokensRequest{Amount: "100", TargetChain: testkit.RemoteChainID, Recipient: hexutil.Encode(testkit.Bob.Bytes())},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	transferID := body["transfer_id"].(string)
	assert.Equal(t, int64(400), env.fixture.Balance(t, testkit.Alice))

	w, body = env.do(t, call{method: http.MethodGet, path: "/api/bridge/transfers/" + transferID, token: tokenFor(t, testkit.Alice)})
	require.Equal(t, http.StatusOK, w.Code)
	transfer := body["transfer"].(map[string]interface{})
	assert.Equal(t, "published", transfer["status"])

	proof := env.fixture.RemoteTokenProof(t, 3, 100, testkit.Bob)
	process := call{
		method: http.MethodPost,
		path:   "/api/bridge/tokens/process",
		token:  tokenFor(t, testkit.Relayer),
		body:   dto.ProcessMessageRequest{Proof: hexutil.Encode(proof)},
	}
	w, body = env.do(t, process)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "100", body["amount"])
	assert.Equal(t, testkit.Bob.Hex(), body["recipient"])
	assert.Equal(t, int64(100), env.fixture.Balance(t, testkit.Bob))

	w, body = env.do(t, process)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_PROCESSED", body["error"])
}

func TestBridgeErrorsMapToStatus(t *testing.T) {
	env := newAPI(t)
	env.fixture.Fund(t, testkit.Alice, 50)
	alice := tokenFor(t, testkit.Alice)
	lock := func(amount string, target uint32, recipient string) (*httptest.ResponseRecorder, map[string]interface{}) {
		return env.do(t, call{
			method: http.MethodPost,
			path:   "/api/bridge/tokens/lock",
			token:  alice,
			body:   dto.LockTokensRequest{Amount: amount, TargetChain: target, Recipient: recipient},
		})
	}
	bob := hexutil.Encode(testkit.Bob.Bytes())

	w, body := lock("10", 99, bob)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNKNOWN_CHAIN", body["error"])

	w, body = lock("10", testkit.LocalChainID, bob)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_TARGET", body["error"])

	for _, recipient := range []string{"", "0x"} {
		w, body = lock("10", testkit.RemoteChainID, recipient)
		assert.Equal(t, http.StatusBadRequest, w.Code, recipient)
		assert.Equal(t, "INVALID_RECIPIENT", body["error"], recipient)
	}

	w, body = lock("1000", testkit.RemoteChainID, bob)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ASSET_TRANSFER_FAILED", body["error"])

	w, _ = lock("-1", testkit.RemoteChainID, bob)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = env.do(t, call{
		method: http.MethodPost,
		path:   "/api/bridge/tokens/process",
		token:  alice,
		body:   dto.ProcessMessageRequest{Proof: hexutil.Encode(env.fixture.RemoteTokenProof(t, 1, 5, testkit.Bob))},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_AUTHORIZED", body["error"])

	w, body = env.do(t, call{
		method: http.MethodPost,
		path:   "/api/bridge/tokens/process",
		token:  tokenFor(t, testkit.Relayer),
		body:   dto.ProcessMessageRequest{Proof: "0xdeadbeef"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", body["error"])

	w, _ = env.do(t, call{method: http.MethodGet, path: "/api/bridge/transfers/missing", token: alice})
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, env.fixture.Bridge.Pause(context.Background(), testkit.Admin))
	w, body = lock("10", testkit.RemoteChainID, bob)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "BRIDGE_PAUSED", body["error"])

	// the pause gate comes before recipient checks; only unparseable input is refused earlier
	for _, recipient := range []string{"", "0x"} {
		w, body = lock("10", testkit.RemoteChainID, recipient)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, recipient)
		assert.Equal(t, "BRIDGE_PAUSED", body["error"], recipient)
	}
	w, body = lock("10", testkit.RemoteChainID, "hello")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_RECIPIENT", body["error"])
}

func TestStatusForError(t *testing.T) {
	cases := map[error]int{
		types.ErrRelayTimeout:           http.StatusGatewayTimeout,
		types.ErrRelayUnavailable:       http.StatusBadGateway,
		types.ErrDecodeError:            http.StatusUnprocessableEntity,
		types.ErrUnsupportedMessageType: http.StatusUnprocessableEntity,
		assert.AnError:                  http.StatusInternalServerError,
	}
	for err, status := range cases {
		assert.Equal(t, status, handlers.StatusForError(err), err.Error())
	}
}

func TestAdminRoutesRequireTOTP(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "go-bridge", AccountName: "admin"})
	require.NoError(t, err)
	env := newAPI(t, func(cfg *config.Config) { cfg.Auth.AdminTOTPSecret = key.Secret() })
	admin := tokenFor(t, testkit.Admin)

	w, body := env.do(t, call{method: http.MethodPost, path: "/api/admin/pause", token: admin})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOTP", body["error"])

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)
	otp := map[string]string{middleware.TOTPHeader: code}

	w, _ = env.do(t, call{method: http.MethodPost, path: "/api/admin/pause", token: admin, header: otp})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = env.do(t, call{method: http.MethodGet, path: "/api/bridge/status", token: admin})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["status"].(map[string]interface{})["paused"])

	// a valid second factor does not grant the Admin role
	w, body = env.do(t, call{method: http.MethodPost, path: "/api/admin/unpause", token: tokenFor(t, testkit.Alice), header: otp})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_AUTHORIZED", body["error"])
}

func TestAdminOperationsOverHTTP(t *testing.T) {
	env := newAPI(t)
	admin := tokenFor(t, testkit.Admin)

	w, _ := env.do(t, call{method: http.MethodPut, path: "/api/admin/chains/7", token: admin, body: dto.SetChainMappingRequest{ExternalChainID: 9}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = env.do(t, call{method: http.MethodPut, path: "/api/admin/chains/7/emitter", token: admin, body: dto.SetChainEmitterRequest{Emitter: testkit.RemoteEmitter.String()}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = env.do(t, call{method: http.MethodPut, path: "/api/admin/chains/abc", token: admin, body: dto.SetChainMappingRequest{ExternalChainID: 9}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	level := uint8(15)
	w, _ = env.do(t, call{method: http.MethodPut, path: "/api/admin/consistency-level", token: admin, body: dto.SetConsistencyLevelRequest{Level: &level}})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, call{method: http.MethodPost, path: "/api/admin/roles", token: admin, body: dto.RoleRequest{Account: testkit.Alice.Hex(), Role: "relayer"}})
	require.Equal(t, http.StatusOK, w.Code)
	isRelayer, err := env.fixture.Bridge.HasRole(context.Background(), testkit.Alice, "relayer")
	require.NoError(t, err)
	assert.True(t, isRelayer)

	w, _ = env.do(t, call{method: http.MethodDelete, path: "/api/admin/roles", token: admin, body: dto.RoleRequest{Account: testkit.Alice.Hex(), Role: "relayer"}})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := env.do(t, call{method: http.MethodGet, path: "/api/bridge/chains", token: admin})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["chains"], 3)

	w, body = env.do(t, call{method: http.MethodGet, path: "/api/admin/events?type=ChainEmitterUpdated", token: admin})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])

	w, _ = env.do(t, call{method: http.MethodGet, path: "/api/admin/events", token: tokenFor(t, testkit.Alice)})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMetricsAllowList(t *testing.T) {
	env := newAPI(t, func(cfg *config.Config) { cfg.Admin.AllowedIPs = []string{"10.1.0.0/16"} })

	w, _ := env.do(t, call{method: http.MethodGet, path: "/metrics", remote: "127.0.0.1:4000"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, call{method: http.MethodGet, path: "/metrics", remote: "10.1.2.3:4000"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := env.do(t, call{method: http.MethodGet, path: "/metrics", remote: "203.0.113.9:4000"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "IP_NOT_ALLOWED", body["error"])
}

func TestHealth(t *testing.T) {
	env := newAPI(t)
	w, body := env.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["database"])
}

func TestEventStream(t *testing.T) {
	env := newAPI(t)
	env.fixture.Fund(t, testkit.Alice, 100)
	server := httptest.NewServer(env.engine)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events?types=Locked&token=" + tokenFor(t, testkit.Bob)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	read := func() services.PushMessage {
		var msg services.PushMessage
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}
	require.Equal(t, "connection_established", read().Type)

	_, err = env.fixture.Bridge.LockTokens(context.Background(), testkit.Alice, big.NewInt(40), testkit.RemoteChainID, testkit.Bob.Bytes())
	require.NoError(t, err)

	msg := read()
	assert.Equal(t, string(services.EventLocked), msg.Type)
	assert.Equal(t, testkit.Alice.Hex(), msg.Actor)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws/events?types=Bogus&token="+tokenFor(t, testkit.Bob), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
