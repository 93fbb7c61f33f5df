package testkit

import (
	"context"
	"errors"
	"sync/atomic"

	"go-bridge/internal/clients"
)

// ErrRelayDown is returned by FailingRelay
var ErrRelayDown = errors.New("relay network unreachable")

// FailingRelay publishes nothing and fails every call
type FailingRelay struct {
	Calls atomic.Int32
}

func (r *FailingRelay) Publish(context.Context, []byte, uint32, clients.ConsistencyLevel) (uint64, error) {
	r.Calls.Add(1)
	return 0, ErrRelayDown
}

func (r *FailingRelay) Verify(context.Context, []byte) (*clients.Verification, error) {
	r.Calls.Add(1)
	return nil, ErrRelayDown
}

// StallingRelay never answers; calls return when the context ends
type StallingRelay struct{}

func (StallingRelay) Publish(ctx context.Context, _ []byte, _ uint32, _ clients.ConsistencyLevel) (uint64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func (StallingRelay) Verify(ctx context.Context, _ []byte) (*clients.Verification, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// CancelAfterPublish publishes through Relay and then runs Cancel, as when the
// caller of the lock goes away right after the message left
type CancelAfterPublish struct {
	Relay  clients.RelayClient
	Cancel context.CancelFunc
}

func (r *CancelAfterPublish) Publish(ctx context.Context, payload []byte, nonce uint32, level clients.ConsistencyLevel) (uint64, error) {
	seq, err := r.Relay.Publish(ctx, payload, nonce, level)
	r.Cancel()
	return seq, err
}

func (r *CancelAfterPublish) Verify(ctx context.Context, proof []byte) (*clients.Verification, error) {
	return r.Relay.Verify(ctx, proof)
}
