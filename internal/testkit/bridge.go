package testkit

import (
	"context"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"go-bridge/internal/clients"
	"go-bridge/internal/config"
	"go-bridge/internal/models"
	"go-bridge/internal/repository"
	"go-bridge/internal/services"
	"go-bridge/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Chain layout used by bridge fixtures: this bridge runs on local chain 1 (relay id 1),
// the counterpart bridge on local chain 2 (relay id 2).
const (
	LocalChainID     uint32 = 1
	LocalExternalID  uint16 = 1
	RemoteChainID    uint32 = 2
	RemoteExternalID uint16 = 2
)

var (
	Admin         = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	Relayer       = common.HexToAddress("0x000000000000000000000000000000000000e1a1")
	Alice         = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	Bob           = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	Token         = common.HexToAddress("0x00000000000000000000000000000000000070c0")
	NFT           = common.HexToAddress("0x00000000000000000000000000000000000000f7")
	Custody       = common.HexToAddress("0x00000000000000000000000000000000000c0575")
	LocalEmitter  = clients.EmitterFromAddress(common.HexToAddress("0x0000000000000000000000000000000000000b1d"))
	RemoteEmitter = clients.EmitterFromAddress(common.HexToAddress("0x0000000000000000000000000000000000000b2d"))
)

// EventRecorder collects dispatched bridge events
type EventRecorder struct {
	mu     sync.Mutex
	events []*services.Event
}

func (r *EventRecorder) handle(evt *services.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Of returns the recorded events of one type
func (r *EventRecorder) Of(eventType services.EventType) []*services.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*services.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Len total recorded events
func (r *EventRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset drops recorded events
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// BridgeFixture a bootstrapped bridge on an in-memory database and devnet relay
type BridgeFixture struct {
	DB      *gorm.DB
	Bridge  *services.BridgeService
	Bus     *services.EventBus
	Network *clients.DevnetNetwork
	Events  *EventRecorder
	Logger  *logrus.Logger
}

type fixtureConfig struct {
	relay        func(*clients.DevnetNetwork) clients.RelayClient
	policy       string
	relayTimeout time.Duration
}

// FixtureOption customizes NewBridge
type FixtureOption func(*fixtureConfig)

// WithRelay replaces the devnet relay client used by the bridge
func WithRelay(build func(*clients.DevnetNetwork) clients.RelayClient) FixtureOption {
	return func(c *fixtureConfig) { c.relay = build }
}

// WithReleasePolicy sets the fungible release policy
func WithReleasePolicy(policy string) FixtureOption {
	return func(c *fixtureConfig) { c.policy = policy }
}

// WithRelayTimeout bounds relay calls
func WithRelayTimeout(d time.Duration) FixtureOption {
	return func(c *fixtureConfig) { c.relayTimeout = d }
}

// NewBridge builds a bridge with Admin and Relayer roles granted, both chains mapped
// and the Token/NFT contracts configured
func NewBridge(t testing.TB, opts ...FixtureOption) *BridgeFixture {
	t.Helper()
	cfg := fixtureConfig{
		policy:       config.ReleasePolicyTransfer,
		relayTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	keys, err := clients.GenerateGuardianKeys(3)
	require.NoError(t, err)
	network := clients.NewDevnetNetwork(keys)

	var relay clients.RelayClient = network.Client(LocalExternalID, LocalEmitter)
	if cfg.relay != nil {
		relay = cfg.relay(network)
	}

	database := NewDB(t)
	bus := services.NewEventBus(logger)
	recorder := &EventRecorder{}
	bus.Subscribe("testkit", recorder.handle)

	ctx := context.Background()
	bridge, err := services.NewBridgeService(ctx, database, relay,
		services.NewChainRegistry(database),
		services.NewCustodyService(Custody, cfg.policy, logger),
		bus,
		services.BridgeOptions{
			LocalChainID:    LocalChainID,
			ExternalChainID: LocalExternalID,
			Emitter:         LocalEmitter,
			RelayTimeout:    cfg.relayTimeout,
			Defaults: models.BridgeSetting{
				ConsistencyLevel: 1,
				TokenContract:    Token.Hex(),
				NFTContract:      NFT.Hex(),
			},
		}, logger)
	require.NoError(t, err)

	require.NoError(t, bridge.Bootstrap(ctx, []common.Address{Admin}, []common.Address{Relayer}))
	require.NoError(t, bridge.SetChainMapping(ctx, Admin, RemoteChainID, RemoteExternalID))
	recorder.Reset()

	return &BridgeFixture{
		DB:      database,
		Bridge:  bridge,
		Bus:     bus,
		Network: network,
		Events:  recorder,
		Logger:  logger,
	}
}

// Fund credits account with amount of the fixture token
func (f *BridgeFixture) Fund(t testing.TB, account common.Address, amount int64) {
	t.Helper()
	require.NoError(t, repository.NewLedgerRepository(f.DB).Credit(context.Background(), Token.Hex(), account.Hex(), big.NewInt(amount)))
}

// MintNFT creates tokenID of the fixture collection owned by owner
func (f *BridgeFixture) MintNFT(t testing.TB, owner common.Address, tokenID int64, metadata types.TokenMetadata) {
	t.Helper()
	require.NoError(t, repository.NewLedgerRepository(f.DB).CreateToken(context.Background(), &models.TokenOwnership{
		Asset:   NFT.Hex(),
		TokenID: big.NewInt(tokenID).String(),
		Owner:   owner.Hex(),
		Name:    metadata.Name,
		Symbol:  metadata.Symbol,
		URI:     metadata.URI,
	}))
}

// Balance fixture token balance of account
func (f *BridgeFixture) Balance(t testing.TB, account common.Address) int64 {
	t.Helper()
	balance, err := f.Bridge.BalanceOf(context.Background(), Token, account)
	require.NoError(t, err)
	return balance.Int64()
}

// Proof builds a guardian-signed proof of intent as emitted by emitter on the relay chain source
func (f *BridgeFixture) Proof(t testing.TB, source uint16, emitter clients.EmitterAddress, sequence uint64, intent *types.TransferIntent) []byte {
	t.Helper()
	payload, err := types.EncodeTransfer(intent)
	require.NoError(t, err)
	proof, err := f.Network.Attest(&clients.Envelope{
		Timestamp:        uint32(time.Now().Unix()),
		Nonce:            uint32(sequence),
		EmitterChain:     source,
		Emitter:          emitter,
		Sequence:         sequence,
		ConsistencyLevel: 1,
		Payload:          payload,
	})
	require.NoError(t, err)
	return proof
}

// RemoteTokenProof a fungible transfer of amount to recipient, from the counterpart bridge
func (f *BridgeFixture) RemoteTokenProof(t testing.TB, sequence uint64, amount int64, recipient common.Address) []byte {
	t.Helper()
	intent := types.NewTokenTransfer(Bob, big.NewInt(amount), LocalExternalID, recipient.Bytes())
	return f.Proof(t, RemoteExternalID, RemoteEmitter, sequence, intent)
}

// RemoteNFTProof a non-fungible transfer of tokenID to recipient, from the counterpart bridge
func (f *BridgeFixture) RemoteNFTProof(t testing.TB, sequence uint64, tokenID int64, metadata types.TokenMetadata, recipient common.Address) []byte {
	t.Helper()
	intent := types.NewNFTTransfer(Bob, big.NewInt(tokenID), metadata, LocalExternalID, recipient.Bytes())
	return f.Proof(t, RemoteExternalID, RemoteEmitter, sequence, intent)
}
