package services_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"go-bridge/internal/clients"
	"go-bridge/internal/config"
	"go-bridge/internal/models"
	"go-bridge/internal/repository"
	"go-bridge/internal/services"
	"go-bridge/internal/testkit"
	"go-bridge/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transfersWithStatus(t *testing.T, f *testkit.BridgeFixture, status models.TransferStatus) []*models.TransferRecord {
	t.Helper()
	records, _, err := repository.NewTransferRepository(f.DB).FindByStatus(context.Background(), status, 1, 100)
	require.NoError(t, err)
	return records
}

func TestLockTokensPublishesAndReleasesOnce(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()
	f.Fund(t, testkit.Alice, 250)
	f.Network.SetNextSequence(testkit.LocalExternalID, testkit.LocalEmitter, 7)

	res, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(100), testkit.RemoteChainID, testkit.Bob.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), res.Sequence)

	assert.Equal(t, int64(150), f.Balance(t, testkit.Alice))
	assert.Equal(t, int64(100), f.Balance(t, testkit.Custody))
	outstanding, err := f.Bridge.Outstanding(ctx, testkit.Token, testkit.RemoteExternalID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), outstanding.Int64())

	record, err := f.Bridge.GetTransfer(ctx, res.TransferID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusPublished, record.Status)
	require.NotNil(t, record.Sequence)
	assert.Equal(t, uint64(7), *record.Sequence)
	assert.Equal(t, testkit.RemoteExternalID, record.TargetChain)

	require.Len(t, f.Events.Of(services.EventLocked), 1)
	published := f.Events.Of(services.EventPublished)
	require.Len(t, published, 1)
	assert.Equal(t, uint64(7), published[0].Data.(*services.PublishedEvent).Sequence)

	// the published message decodes to the intent that was locked
	proof, err := f.Network.Observe(testkit.LocalExternalID, testkit.LocalEmitter, 7)
	require.NoError(t, err)
	verification := f.Network.Verify(proof)
	require.True(t, verification.Valid)
	intent, err := types.DecodeTransfer(verification.Envelope.Payload)
	require.NoError(t, err)
	assert.Equal(t, types.AssetKindFungible, intent.Kind)
	assert.Equal(t, int64(100), intent.Amount.Int64())
	assert.Equal(t, testkit.Alice, intent.Sender)
	assert.Equal(t, testkit.RemoteExternalID, intent.TargetChain)
	assert.Equal(t, testkit.Bob.Bytes(), intent.Recipient)

	// the counterpart sends 100 back to Bob
	inbound := f.RemoteTokenProof(t, 3, 100, testkit.Bob)
	released, err := f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, inbound)
	require.NoError(t, err)
	assert.Equal(t, testkit.Bob, released.Recipient)
	assert.Equal(t, testkit.RemoteChainID, released.SourceChain)
	assert.Equal(t, uint64(3), released.Sequence)
	assert.Equal(t, int64(100), f.Balance(t, testkit.Bob))
	assert.Equal(t, int64(0), f.Balance(t, testkit.Custody))

	_, err = f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, inbound)
	assert.ErrorIs(t, err, types.ErrAlreadyProcessed)
	assert.Equal(t, int64(100), f.Balance(t, testkit.Bob))

	redeemed, err := f.Bridge.GetTransfer(ctx, released.TransferID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusRedeemed, redeemed.Status)
	assert.Len(t, f.Events.Of(services.EventReleased), 1)

	status, err := f.Bridge.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.ProcessedCount)
}

func TestSequencesIncreasePerLock(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()
	f.Fund(t, testkit.Alice, 30)

	var last uint64
	for i := 0; i < 3; i++ {
		res, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(10), testkit.RemoteChainID, testkit.Bob.Bytes())
		require.NoError(t, err)
		if i > 0 {
			assert.Greater(t, res.Sequence, last)
		}
		last = res.Sequence
	}
}

func TestLockRejectsBadTargets(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()
	f.Fund(t, testkit.Alice, 100)

	_, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(10), 99, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrUnknownChain)

	_, err = f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(10), testkit.LocalChainID, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrInvalidTarget)

	_, err = f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(10), testkit.RemoteChainID, nil)
	assert.ErrorIs(t, err, types.ErrInvalidRecipient)

	_, err = f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(1000), testkit.RemoteChainID, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrAssetTransferFailed)

	_, err = f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(0), testkit.RemoteChainID, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrAssetTransferFailed)

	assert.Equal(t, int64(100), f.Balance(t, testkit.Alice))
	assert.Equal(t, 0, f.Events.Len())
}

func TestLockNFTTwiceFails(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()
	meta := types.TokenMetadata{Name: "Relic", Symbol: "RLC", URI: "ipfs://relic/42"}
	f.MintNFT(t, testkit.Alice, 42, meta)

	res, err := f.Bridge.LockNFT(ctx, testkit.Alice, big.NewInt(42), testkit.RemoteChainID, testkit.Bob.Bytes())
	require.NoError(t, err)

	owner, err := f.Bridge.OwnerOf(ctx, testkit.NFT, big.NewInt(42))
	require.NoError(t, err)
	assert.Equal(t, testkit.Custody, owner)

	proof, err := f.Network.Observe(testkit.LocalExternalID, testkit.LocalEmitter, res.Sequence)
	require.NoError(t, err)
	intent, err := types.DecodeTransfer(f.Network.Verify(proof).Envelope.Payload)
	require.NoError(t, err)
	assert.Equal(t, types.AssetKindNonFungible, intent.Kind)
	assert.Equal(t, meta, intent.Metadata)

	_, err = f.Bridge.LockNFT(ctx, testkit.Alice, big.NewInt(42), testkit.RemoteChainID, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrAssetTransferFailed)

	_, err = f.Bridge.LockNFT(ctx, testkit.Bob, big.NewInt(7), testkit.RemoteChainID, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrAssetTransferFailed)
}

func TestProcessNFTMintsThenReturnsCustody(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()
	meta := types.TokenMetadata{Name: "Relic", Symbol: "RLC", URI: "ipfs://relic/9"}

	res, err := f.Bridge.ProcessNFTMessage(ctx, testkit.Relayer, f.RemoteNFTProof(t, 1, 9, meta, testkit.Alice))
	require.NoError(t, err)
	assert.True(t, res.Minted)
	owner, err := f.Bridge.OwnerOf(ctx, testkit.NFT, big.NewInt(9))
	require.NoError(t, err)
	assert.Equal(t, testkit.Alice, owner)

	// send it back out and home again: the second release comes out of custody
	_, err = f.Bridge.LockNFT(ctx, testkit.Alice, big.NewInt(9), testkit.RemoteChainID, testkit.Bob.Bytes())
	require.NoError(t, err)
	res, err = f.Bridge.ProcessNFTMessage(ctx, testkit.Relayer, f.RemoteNFTProof(t, 2, 9, meta, testkit.Bob))
	require.NoError(t, err)
	assert.False(t, res.Minted)
	owner, err = f.Bridge.OwnerOf(ctx, testkit.NFT, big.NewInt(9))
	require.NoError(t, err)
	assert.Equal(t, testkit.Bob, owner)
}

func TestProcessNFTRejectsTokenOutsideCustody(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()
	f.MintNFT(t, testkit.Alice, 5, types.TokenMetadata{})

	_, err := f.Bridge.ProcessNFTMessage(ctx, testkit.Relayer, f.RemoteNFTProof(t, 1, 5, types.TokenMetadata{}, testkit.Bob))
	assert.ErrorIs(t, err, types.ErrAssetTransferFailed)
	assert.Len(t, transfersWithStatus(t, f, models.TransferStatusRejected), 1)

	owner, err := f.Bridge.OwnerOf(ctx, testkit.NFT, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, testkit.Alice, owner)
}

func TestPauseBlocksAssetMovement(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()
	f.Fund(t, testkit.Alice, 100)
	f.MintNFT(t, testkit.Alice, 1, types.TokenMetadata{})

	require.NoError(t, f.Bridge.Pause(ctx, testkit.Admin))
	require.Len(t, f.Events.Of(services.EventPauseToggled), 1)

	_, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(10), testkit.RemoteChainID, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrBridgePaused)
	_, err = f.Bridge.LockNFT(ctx, testkit.Alice, big.NewInt(1), testkit.RemoteChainID, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrBridgePaused)
	_, err = f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, f.RemoteTokenProof(t, 1, 10, testkit.Bob))
	assert.ErrorIs(t, err, types.ErrBridgePaused)
	_, err = f.Bridge.ProcessNFTMessage(ctx, testkit.Relayer, f.RemoteNFTProof(t, 2, 3, types.TokenMetadata{}, testkit.Bob))
	assert.ErrorIs(t, err, types.ErrBridgePaused)

	assert.Equal(t, int64(100), f.Balance(t, testkit.Alice))
	status, err := f.Bridge.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Paused)

	require.NoError(t, f.Bridge.Unpause(ctx, testkit.Admin))
	_, err = f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(10), testkit.RemoteChainID, testkit.Bob.Bytes())
	assert.NoError(t, err)
}

func TestRelayFailureRollsBackLock(t *testing.T) {
	relay := &testkit.FailingRelay{}
	f := testkit.NewBridge(t, testkit.WithRelay(func(*clients.DevnetNetwork) clients.RelayClient { return relay }))
	ctx := context.Background()
	f.Fund(t, testkit.Alice, 100)

	_, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(40), testkit.RemoteChainID, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrRelayUnavailable)
	assert.Equal(t, int32(1), relay.Calls.Load())

	assert.Equal(t, int64(100), f.Balance(t, testkit.Alice))
	assert.Equal(t, int64(0), f.Balance(t, testkit.Custody))
	outstanding, err := f.Bridge.Outstanding(ctx, testkit.Token, testkit.RemoteExternalID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), outstanding.Int64())
	assert.Empty(t, f.Events.Of(services.EventLocked))

	events, err := f.Bridge.ListEvents(ctx, 0, string(services.EventLocked), 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	reverted := transfersWithStatus(t, f, models.TransferStatusReverted)
	require.Len(t, reverted, 1)
	assert.Contains(t, reverted[0].Reason, "relay")
}

func TestRelayTimeout(t *testing.T) {
	f := testkit.NewBridge(t,
		testkit.WithRelay(func(*clients.DevnetNetwork) clients.RelayClient { return testkit.StallingRelay{} }),
		testkit.WithRelayTimeout(50*time.Millisecond))
	ctx := context.Background()
	f.Fund(t, testkit.Alice, 100)

	_, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(40), testkit.RemoteChainID, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrRelayTimeout)
	assert.Equal(t, int64(100), f.Balance(t, testkit.Alice))

	_, err = f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, f.RemoteTokenProof(t, 1, 10, testkit.Bob))
	assert.ErrorIs(t, err, types.ErrRelayTimeout)
}

func TestLockSurvivesCallerLeavingAfterPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := testkit.NewBridge(t, testkit.WithRelay(func(n *clients.DevnetNetwork) clients.RelayClient {
		return &testkit.CancelAfterPublish{Relay: n.Client(testkit.LocalExternalID, testkit.LocalEmitter), Cancel: cancel}
	}))
	f.Fund(t, testkit.Alice, 100)

	res, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(100), testkit.RemoteChainID, testkit.Bob.Bytes())
	require.NoError(t, err)
	require.ErrorIs(t, ctx.Err(), context.Canceled)

	// the published message is backed by the lock
	proof, err := f.Network.Observe(testkit.LocalExternalID, testkit.LocalEmitter, res.Sequence)
	require.NoError(t, err)
	intent, err := types.DecodeTransfer(f.Network.Verify(proof).Envelope.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(100), intent.Amount.Int64())

	assert.Equal(t, int64(0), f.Balance(t, testkit.Alice))
	assert.Equal(t, int64(100), f.Balance(t, testkit.Custody))
	outstanding, err := f.Bridge.Outstanding(context.Background(), testkit.Token, testkit.RemoteExternalID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), outstanding.Int64())

	record, err := f.Bridge.GetTransfer(context.Background(), res.TransferID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusPublished, record.Status)
	require.NotNil(t, record.Sequence)
	assert.Equal(t, res.Sequence, *record.Sequence)
	assert.Len(t, f.Events.Of(services.EventLocked), 1)
	assert.Len(t, f.Events.Of(services.EventPublished), 1)
}

func TestRelayFailureReturnsLockedNFT(t *testing.T) {
	relay := &testkit.FailingRelay{}
	f := testkit.NewBridge(t, testkit.WithRelay(func(*clients.DevnetNetwork) clients.RelayClient { return relay }))
	ctx := context.Background()
	f.MintNFT(t, testkit.Alice, 12, types.TokenMetadata{Name: "Relic"})

	_, err := f.Bridge.LockNFT(ctx, testkit.Alice, big.NewInt(12), testkit.RemoteChainID, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrRelayUnavailable)

	owner, err := f.Bridge.OwnerOf(ctx, testkit.NFT, big.NewInt(12))
	require.NoError(t, err)
	assert.Equal(t, testkit.Alice, owner)
	assert.Len(t, transfersWithStatus(t, f, models.TransferStatusReverted), 1)
	assert.Empty(t, transfersWithStatus(t, f, models.TransferStatusLocked))

	// back with its owner, the token reaches the relay again
	_, err = f.Bridge.LockNFT(ctx, testkit.Alice, big.NewInt(12), testkit.RemoteChainID, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrRelayUnavailable)
	assert.Equal(t, int32(2), relay.Calls.Load())
}

func TestPauseAppliesToOperationsWaitingOnAsset(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()
	f.Fund(t, testkit.Alice, 100)
	proof := f.RemoteTokenProof(t, 1, 10, testkit.Bob)
	key := services.FungibleKey(testkit.Token)
	locks := f.Bridge.AssetLocks()

	release := locks.Lock(key)
	results := make(chan error, 2)
	go func() {
		_, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(10), testkit.RemoteChainID, testkit.Bob.Bytes())
		results <- err
	}()
	go func() {
		_, err := f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, proof)
		results <- err
	}()
	require.Eventually(t, func() bool { return locks.Holders(key) == 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.Bridge.Pause(ctx, testkit.Admin))
	release()

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			assert.ErrorIs(t, err, types.ErrBridgePaused)
		case <-time.After(2 * time.Second):
			t.Fatal("operation did not return")
		}
	}
	assert.Equal(t, int64(100), f.Balance(t, testkit.Alice))
	assert.Equal(t, int64(0), f.Balance(t, testkit.Bob))
	assert.Empty(t, f.Events.Of(services.EventLocked))
	assert.Empty(t, f.Events.Of(services.EventReleased))
}

func TestConcurrentDuplicateDelivery(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()
	f.Fund(t, testkit.Alice, 50)
	_, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(50), testkit.RemoteChainID, testkit.Alice.Bytes())
	require.NoError(t, err)

	proof := f.RemoteTokenProof(t, 11, 50, testkit.Bob)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		duplicate int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, proof)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, types.ErrAlreadyProcessed):
				duplicate++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, duplicate)
	assert.Equal(t, int64(50), f.Balance(t, testkit.Bob))
}

func TestReleaseCannotExceedOutstanding(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()
	f.Fund(t, testkit.Alice, 30)
	_, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(30), testkit.RemoteChainID, testkit.Alice.Bytes())
	require.NoError(t, err)

	_, err = f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, f.RemoteTokenProof(t, 1, 31, testkit.Bob))
	assert.ErrorIs(t, err, types.ErrAssetTransferFailed)
	assert.Equal(t, int64(0), f.Balance(t, testkit.Bob))
	assert.Equal(t, int64(30), f.Balance(t, testkit.Custody))

	// a rejected message is not marked processed; a later valid one with another sequence goes through
	_, err = f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, f.RemoteTokenProof(t, 2, 30, testkit.Bob))
	require.NoError(t, err)
	assert.Equal(t, int64(30), f.Balance(t, testkit.Bob))
}

func TestMintPolicyCreditsWithoutCustody(t *testing.T) {
	f := testkit.NewBridge(t, testkit.WithReleasePolicy(config.ReleasePolicyMint))
	ctx := context.Background()

	_, err := f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, f.RemoteTokenProof(t, 1, 500, testkit.Bob))
	require.NoError(t, err)
	assert.Equal(t, int64(500), f.Balance(t, testkit.Bob))
	assert.Equal(t, int64(0), f.Balance(t, testkit.Custody))
}

func TestProcessRejections(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()
	stranger := common.HexToAddress("0x00000000000000000000000000000000000051a9")

	t.Run("not a relayer", func(t *testing.T) {
		_, err := f.Bridge.ProcessTokenMessage(ctx, stranger, f.RemoteTokenProof(t, 1, 1, testkit.Bob))
		assert.ErrorIs(t, err, types.ErrNotAuthorized)
	})

	t.Run("wrong entry point", func(t *testing.T) {
		proof := f.RemoteNFTProof(t, 2, 1, types.TokenMetadata{}, testkit.Bob)
		_, err := f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, proof)
		assert.ErrorIs(t, err, types.ErrUnsupportedMessageType)
		_, err = f.Bridge.ProcessNFTMessage(ctx, testkit.Relayer, f.RemoteTokenProof(t, 3, 1, testkit.Bob))
		assert.ErrorIs(t, err, types.ErrUnsupportedMessageType)
	})

	t.Run("forged signature", func(t *testing.T) {
		other := clients.NewDevnetNetwork(mustKeys(t, 3))
		payload, err := types.EncodeTransfer(types.NewTokenTransfer(testkit.Bob, big.NewInt(1), testkit.LocalExternalID, testkit.Bob.Bytes()))
		require.NoError(t, err)
		forged, err := other.Attest(&clients.Envelope{EmitterChain: testkit.RemoteExternalID, Emitter: testkit.RemoteEmitter, Sequence: 4, Payload: payload})
		require.NoError(t, err)
		_, err = f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, forged)
		assert.ErrorIs(t, err, types.ErrValidationFailed)
	})

	t.Run("garbage proof", func(t *testing.T) {
		_, err := f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, []byte{0x01, 0x02})
		assert.ErrorIs(t, err, types.ErrValidationFailed)
	})

	t.Run("undecodable payload", func(t *testing.T) {
		proof, err := f.Network.Attest(&clients.Envelope{EmitterChain: testkit.RemoteExternalID, Emitter: testkit.RemoteEmitter, Sequence: 5, Payload: []byte{9, 9, 9}})
		require.NoError(t, err)
		_, err = f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, proof)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, types.ErrAlreadyProcessed)
	})

	t.Run("unknown source chain", func(t *testing.T) {
		intent := types.NewTokenTransfer(testkit.Bob, big.NewInt(1), testkit.LocalExternalID, testkit.Bob.Bytes())
		_, err := f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, f.Proof(t, 77, testkit.RemoteEmitter, 6, intent))
		assert.ErrorIs(t, err, types.ErrUnknownChain)
	})

	t.Run("addressed to another chain", func(t *testing.T) {
		intent := types.NewTokenTransfer(testkit.Bob, big.NewInt(1), testkit.RemoteExternalID, testkit.Bob.Bytes())
		_, err := f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, f.Proof(t, testkit.RemoteExternalID, testkit.RemoteEmitter, 7, intent))
		assert.ErrorIs(t, err, types.ErrInvalidTarget)
	})

	t.Run("recipient not a local account", func(t *testing.T) {
		intent := types.NewTokenTransfer(testkit.Bob, big.NewInt(1), testkit.LocalExternalID, []byte{1, 2, 3})
		_, err := f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, f.Proof(t, testkit.RemoteExternalID, testkit.RemoteEmitter, 8, intent))
		assert.ErrorIs(t, err, types.ErrInvalidRecipient)
	})

	assert.Empty(t, f.Events.Of(services.EventReleased))
	assert.NotEmpty(t, transfersWithStatus(t, f, models.TransferStatusRejected))
}

func TestEmitterPin(t *testing.T) {
	f := testkit.NewBridge(t, testkit.WithReleasePolicy(config.ReleasePolicyMint))
	ctx := context.Background()
	require.NoError(t, f.Bridge.SetChainEmitter(ctx, testkit.Admin, testkit.RemoteChainID, testkit.RemoteEmitter.String()))

	impostor := clients.EmitterFromAddress(common.HexToAddress("0x0000000000000000000000000000000000000bad"))
	intent := types.NewTokenTransfer(testkit.Bob, big.NewInt(5), testkit.LocalExternalID, testkit.Bob.Bytes())
	_, err := f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, f.Proof(t, testkit.RemoteExternalID, impostor, 1, intent))
	assert.ErrorIs(t, err, types.ErrValidationFailed)

	_, err = f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, f.RemoteTokenProof(t, 1, 5, testkit.Bob))
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.Balance(t, testkit.Bob))
}

func TestRemapMovesOutboundTarget(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()
	f.Fund(t, testkit.Alice, 10)

	require.NoError(t, f.Bridge.SetChainMapping(ctx, testkit.Admin, 3, testkit.RemoteExternalID))
	changes := f.Events.Of(services.EventChainMappingUpdated)
	require.Len(t, changes, 1)
	assert.Equal(t, testkit.RemoteChainID, changes[0].Data.(*services.ChainMappingUpdatedEvent).OldLocalChainID)

	_, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(5), testkit.RemoteChainID, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrUnknownChain)

	res, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(5), 3, testkit.Bob.Bytes())
	require.NoError(t, err)
	record, err := f.Bridge.GetTransfer(ctx, res.TransferID)
	require.NoError(t, err)
	assert.Equal(t, testkit.RemoteExternalID, record.TargetChain)
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.Bridge.Pause(ctx, testkit.Alice), types.ErrNotAuthorized)
	assert.ErrorIs(t, f.Bridge.SetChainMapping(ctx, testkit.Relayer, 5, 5), types.ErrNotAuthorized)
	assert.ErrorIs(t, f.Bridge.SetConsistencyLevel(ctx, testkit.Alice, 15), types.ErrNotAuthorized)
	assert.ErrorIs(t, f.Bridge.EmergencyWithdraw(ctx, testkit.Alice, testkit.Token, testkit.Alice, big.NewInt(1)), types.ErrNotAuthorized)
	assert.ErrorIs(t, f.Bridge.GrantRole(ctx, testkit.Alice, testkit.Alice, string(models.RoleAdmin)), types.ErrNotAuthorized)
	assert.ErrorIs(t, f.Bridge.RevokeRole(ctx, testkit.Admin, testkit.Admin, string(models.RoleAdmin)), types.ErrNotAuthorized)
	assert.Equal(t, 0, f.Events.Len())

	require.NoError(t, f.Bridge.GrantRole(ctx, testkit.Admin, testkit.Alice, string(models.RoleRelayer)))
	require.Len(t, f.Events.Of(services.EventRoleUpdated), 1)
	require.NoError(t, f.Bridge.RevokeRole(ctx, testkit.Admin, testkit.Relayer, string(models.RoleRelayer)))

	_, err := f.Bridge.ProcessTokenMessage(ctx, testkit.Relayer, f.RemoteTokenProof(t, 1, 1, testkit.Bob))
	assert.ErrorIs(t, err, types.ErrNotAuthorized)
}

func TestSettingsUpdates(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()

	require.NoError(t, f.Bridge.SetConsistencyLevel(ctx, testkit.Admin, 15))
	f.Fund(t, testkit.Alice, 10)
	res, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(10), testkit.RemoteChainID, testkit.Bob.Bytes())
	require.NoError(t, err)
	proof, err := f.Network.Observe(testkit.LocalExternalID, testkit.LocalEmitter, res.Sequence)
	require.NoError(t, err)
	assert.Equal(t, clients.ConsistencyLevel(15), f.Network.Verify(proof).Envelope.ConsistencyLevel)

	newToken := common.HexToAddress("0x0000000000000000000000000000000000007777")
	require.NoError(t, f.Bridge.SetContracts(ctx, testkit.Admin, services.Contracts{Token: newToken.Hex(), NFT: testkit.NFT.Hex()}))
	status, err := f.Bridge.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, newToken.Hex(), status.Contracts.Token)
	assert.Equal(t, uint8(15), status.ConsistencyLevel)
	require.Len(t, f.Events.Of(services.EventContractsUpdated), 1)

	// the old token's balances are untouched, the new one has none
	_, err = f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(1), testkit.RemoteChainID, testkit.Bob.Bytes())
	assert.ErrorIs(t, err, types.ErrAssetTransferFailed)
}

func TestEmergencyWithdraw(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()
	f.Fund(t, testkit.Alice, 80)
	_, err := f.Bridge.LockTokens(ctx, testkit.Alice, big.NewInt(80), testkit.RemoteChainID, testkit.Bob.Bytes())
	require.NoError(t, err)
	f.Events.Reset()

	require.NoError(t, f.Bridge.Pause(ctx, testkit.Admin))
	require.NoError(t, f.Bridge.EmergencyWithdraw(ctx, testkit.Admin, testkit.Token, testkit.Admin, big.NewInt(30)))
	assert.Equal(t, int64(50), f.Balance(t, testkit.Custody))
	assert.Equal(t, int64(30), f.Balance(t, testkit.Admin))

	withdrawals := f.Events.Of(services.EventEmergencyWithdrawal)
	require.Len(t, withdrawals, 1)
	payload := withdrawals[0].Data.(*services.EmergencyWithdrawalEvent)
	assert.Equal(t, "80", payload.OldCustody)
	assert.Equal(t, "50", payload.NewCustody)

	err = f.Bridge.EmergencyWithdraw(ctx, testkit.Admin, testkit.Token, testkit.Admin, big.NewInt(51))
	assert.ErrorIs(t, err, types.ErrAssetTransferFailed)

	f.MintNFT(t, testkit.Alice, 3, types.TokenMetadata{})
	require.NoError(t, f.Bridge.Unpause(ctx, testkit.Admin))
	_, err = f.Bridge.LockNFT(ctx, testkit.Alice, big.NewInt(3), testkit.RemoteChainID, testkit.Bob.Bytes())
	require.NoError(t, err)
	require.NoError(t, f.Bridge.EmergencyWithdrawNFT(ctx, testkit.Admin, big.NewInt(3), testkit.Alice))
	owner, err := f.Bridge.OwnerOf(ctx, testkit.NFT, big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, testkit.Alice, owner)
	assert.ErrorIs(t, f.Bridge.EmergencyWithdrawNFT(ctx, testkit.Admin, big.NewInt(3), testkit.Alice), types.ErrAssetTransferFailed)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	f := testkit.NewBridge(t)
	ctx := context.Background()

	require.NoError(t, f.Bridge.Bootstrap(ctx, []common.Address{testkit.Admin}, []common.Address{testkit.Relayer}))
	assert.Equal(t, 0, f.Events.Len())

	chains, err := f.Bridge.ListChains(ctx)
	require.NoError(t, err)
	require.Len(t, chains, 2)
	assert.Equal(t, testkit.LocalChainID, chains[0].LocalChainID)
	assert.Equal(t, testkit.LocalExternalID, chains[0].ExternalChainID)
}

func mustKeys(t *testing.T, n int) []*ecdsa.PrivateKey {
	t.Helper()
	keys, err := clients.GenerateGuardianKeys(n)
	require.NoError(t, err)
	return keys
}
